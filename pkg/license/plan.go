package license

import (
	"errors"
	"fmt"
	"maps"
	"slices"
	"time"
)

// Plan describes what a license type grants and costs.
type Plan struct {
	Type          Type
	Name          string
	VehicleLimit  int64 // always finite
	AnalysisLimit int64 // Unlimited allowed
	SetupLimit    int64 // Unlimited allowed
	Price         Money
	DurationDays  int  // 0 means the license never expires
	Recurring     bool // renewal semantics are not modelled; the flag is carried through orders
}

// Paid reports whether the plan must be bought.
func (p Plan) Paid() bool {
	return p.Price.Amount > 0
}

// ExpiresAt returns the expiry of a license issued at from, or nil for plans without a duration.
func (p Plan) ExpiresAt(from time.Time) *time.Time {
	if p.DurationDays <= 0 {
		return nil
	}
	t := from.AddDate(0, 0, p.DurationDays).UTC()
	return &t
}

func (p Plan) validate() error {
	var errs []error
	if p.Type == "" {
		errs = append(errs, errors.New("empty plan type"))
	}
	if p.VehicleLimit < 0 {
		errs = append(errs, fmt.Errorf("%s: vehicle limit must be finite and non-negative", p.Type))
	}
	if p.AnalysisLimit < Unlimited {
		errs = append(errs, fmt.Errorf("%s: invalid analysis limit %d", p.Type, p.AnalysisLimit))
	}
	if p.SetupLimit < Unlimited {
		errs = append(errs, fmt.Errorf("%s: invalid setup limit %d", p.Type, p.SetupLimit))
	}
	if p.DurationDays < 0 {
		errs = append(errs, fmt.Errorf("%s: negative duration", p.Type))
	}
	if p.Price.Amount < 0 {
		errs = append(errs, fmt.Errorf("%s: negative price", p.Type))
	}
	if p.Paid() && p.Price.Currency == "" {
		errs = append(errs, fmt.Errorf("%s: paid plan without currency", p.Type))
	}
	if len(errs) > 0 {
		return errors.Join(append([]error{ErrInvalidPlan}, errs...)...)
	}
	return nil
}

// Catalog maps license types to plans. It is read-only after construction.
type Catalog struct {
	plans map[Type]Plan
}

// NewCatalog validates and copies plans. Each plan's Type is set from its key.
func NewCatalog(plans map[Type]Plan) (*Catalog, error) {
	c := &Catalog{plans: make(map[Type]Plan, len(plans))}
	for t, p := range plans {
		p.Type = t
		if err := p.validate(); err != nil {
			return nil, err
		}
		c.plans[t] = p
	}
	return c, nil
}

// DefaultCatalog returns the built-in plans.
func DefaultCatalog() *Catalog {
	c, err := NewCatalog(DefaultPlans())
	if err != nil {
		panic(fmt.Sprintf("license: default catalog: %v", err))
	}
	return c
}

// DefaultPlans returns a fresh copy of the built-in plan table.
func DefaultPlans() map[Type]Plan {
	return map[Type]Plan{
		TypeFreeTrial: {
			Name:          "Free trial",
			VehicleLimit:  1,
			AnalysisLimit: 1,
			SetupLimit:    1,
			Price:         Money{Currency: "USD"},
		},
		TypeTwoDays: {
			Name:          "Two days",
			VehicleLimit:  4,
			AnalysisLimit: Unlimited,
			SetupLimit:    Unlimited,
			Price:         MustParseMoney("9.95", "USD"),
			DurationDays:  2,
		},
		TypeMonthly: {
			Name:          "Monthly",
			VehicleLimit:  4,
			AnalysisLimit: Unlimited,
			SetupLimit:    Unlimited,
			Price:         MustParseMoney("29.95", "USD"),
			DurationDays:  30,
			Recurring:     true,
		},
		TypeAnnual: {
			Name:          "Annual",
			VehicleLimit:  10,
			AnalysisLimit: Unlimited,
			SetupLimit:    Unlimited,
			Price:         MustParseMoney("199.95", "USD"),
			DurationDays:  365,
			Recurring:     true,
		},
	}
}

// Plan looks up a plan by type.
func (c *Catalog) Plan(t Type) (Plan, bool) {
	p, ok := c.plans[t]
	return p, ok
}

// MustPlan looks up a plan or returns ErrPlanNotFound.
func (c *Catalog) MustPlan(t Type) (Plan, error) {
	p, ok := c.plans[t]
	if !ok {
		return Plan{}, fmt.Errorf("%w: %q", ErrPlanNotFound, t)
	}
	return p, nil
}

// Types lists the catalog's license types in sorted order.
func (c *Catalog) Types() []Type {
	return slices.Sorted(maps.Keys(c.plans))
}

// Plans returns a copy of the plan table.
func (c *Catalog) Plans() map[Type]Plan {
	return maps.Clone(c.plans)
}
