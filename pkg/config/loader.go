package config

import (
	"errors"
	"fmt"
	"os"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// Option tunes a single Load call.
type Option func(*options)

type options struct {
	files       []string
	environment map[string]string
	prefix      string
}

// WithEnvFiles loads the given dotenv files before parsing. Files that do not
// exist are skipped; variables already set in the process environment win.
func WithEnvFiles(paths ...string) Option {
	return func(o *options) { o.files = append(o.files, paths...) }
}

// WithEnvironment parses from the given map instead of the process environment.
// Mostly useful in tests.
func WithEnvironment(vars map[string]string) Option {
	return func(o *options) { o.environment = vars }
}

// WithPrefix prepends prefix to every env tag, e.g. "BILLING_".
func WithPrefix(prefix string) Option {
	return func(o *options) { o.prefix = prefix }
}

// Load parses environment variables into v according to its `env` struct tags.
// The default ".env" file is read when present. Each call parses afresh:
// services receive their config explicitly instead of through a process-wide cache.
//
//	var cfg payment.PayPalConfig
//	if err := config.Load(&cfg); err != nil {
//		return err
//	}
func Load[T any](v *T, opts ...Option) error {
	if v == nil {
		return ErrNilPointer
	}

	o := &options{files: []string{".env"}}
	for _, opt := range opts {
		opt(o)
	}

	if o.environment == nil {
		for _, f := range o.files {
			if _, err := os.Stat(f); err != nil {
				continue
			}
			if err := godotenv.Load(f); err != nil {
				return errors.Join(ErrEnvFile, fmt.Errorf("%s: %w", f, err))
			}
		}
	}

	parseOpts := env.Options{Prefix: o.prefix}
	if o.environment != nil {
		parseOpts.Environment = o.environment
	}

	if err := env.ParseWithOptions(v, parseOpts); err != nil {
		return errors.Join(ErrParsingConfig, err)
	}
	return nil
}

// MustLoad works like Load but panics on failure. Intended for process startup.
func MustLoad[T any](v *T, opts ...Option) {
	if err := Load(v, opts...); err != nil {
		panic(fmt.Sprintf("failed to load required configuration: %v", err))
	}
}
