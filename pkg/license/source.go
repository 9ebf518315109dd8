package license

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"maps"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// Source loads the plan table.
type Source interface {
	Load(ctx context.Context) (map[Type]Plan, error)
}

// LoadCatalog builds a Catalog from src.
func LoadCatalog(ctx context.Context, src Source) (*Catalog, error) {
	plans, err := src.Load(ctx)
	if err != nil {
		return nil, errors.Join(ErrFailedToLoadPlans, err)
	}
	return NewCatalog(plans)
}

type inMemSource struct {
	plans map[Type]Plan
}

// NewInMemSource returns a Source serving a copy of plans.
func NewInMemSource(plans map[Type]Plan) Source {
	return &inMemSource{plans: maps.Clone(plans)}
}

func (s *inMemSource) Load(context.Context) (map[Type]Plan, error) {
	return maps.Clone(s.plans), nil
}

// yamlCatalog is the on-disk plan file layout:
//
//	currency: USD
//	plans:
//	  monthly:
//	    name: Monthly
//	    vehicles: 4
//	    analyses: unlimited
//	    setups: unlimited
//	    price: "29.95"
//	    duration_days: 30
//	    recurring: true
type yamlCatalog struct {
	Currency string              `yaml:"currency"`
	Plans    map[string]yamlPlan `yaml:"plans"`
}

type yamlPlan struct {
	Name         string    `yaml:"name"`
	Vehicles     int64     `yaml:"vehicles"`
	Analyses     yamlLimit `yaml:"analyses"`
	Setups       yamlLimit `yaml:"setups"`
	Price        string    `yaml:"price"`
	Currency     string    `yaml:"currency"`
	DurationDays int       `yaml:"duration_days"`
	Recurring    bool      `yaml:"recurring"`
}

// yamlLimit accepts an integer or the word "unlimited".
type yamlLimit int64

func (l *yamlLimit) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind != yaml.ScalarNode {
		return fmt.Errorf("line %d: limit must be a scalar", node.Line)
	}
	v := strings.TrimSpace(node.Value)
	if strings.EqualFold(v, "unlimited") {
		*l = yamlLimit(Unlimited)
		return nil
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return fmt.Errorf("line %d: invalid limit %q", node.Line, node.Value)
	}
	*l = yamlLimit(n)
	return nil
}

type yamlSource struct {
	read func() ([]byte, error)
}

// NewYAMLSource reads the plan table from a YAML file on every Load.
func NewYAMLSource(path string) Source {
	return &yamlSource{read: func() ([]byte, error) { return os.ReadFile(path) }}
}

// NewYAMLSourceFromReader reads the plan table once from r.
func NewYAMLSourceFromReader(r io.Reader) Source {
	data, err := io.ReadAll(r)
	return &yamlSource{read: func() ([]byte, error) { return data, err }}
}

func (s *yamlSource) Load(ctx context.Context) (map[Type]Plan, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	data, err := s.read()
	if err != nil {
		return nil, err
	}

	var doc yamlCatalog
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&doc); err != nil {
		return nil, fmt.Errorf("decode plan catalog: %w", err)
	}
	if len(doc.Plans) == 0 {
		return nil, errors.Join(ErrInvalidPlan, errors.New("catalog has no plans"))
	}

	plans := make(map[Type]Plan, len(doc.Plans))
	for key, p := range doc.Plans {
		code := p.Currency
		if code == "" {
			code = doc.Currency
		}
		if code == "" {
			code = "USD"
		}
		price := p.Price
		if price == "" {
			price = "0"
		}
		money, err := ParseMoney(price, code)
		if err != nil {
			return nil, fmt.Errorf("plan %s: %w", key, err)
		}

		plans[Type(key)] = Plan{
			Type:          Type(key),
			Name:          p.Name,
			VehicleLimit:  p.Vehicles,
			AnalysisLimit: int64(p.Analyses),
			SetupLimit:    int64(p.Setups),
			Price:         money,
			DurationDays:  p.DurationDays,
			Recurring:     p.Recurring,
		}
	}
	return plans, nil
}
