package payment

import "time"

// Config tunes the Coordinator.
type Config struct {
	Provider           string        `env:"PAYMENT_PROVIDER" envDefault:"paypal"`
	Currency           string        `env:"PAYMENT_CURRENCY" envDefault:"USD"`
	ProviderTimeout    time.Duration `env:"PAYMENT_PROVIDER_TIMEOUT" envDefault:"20s"`
	AbandonAfter       time.Duration `env:"PAYMENT_ABANDON_AFTER" envDefault:"24h"`
	MaxCaptureAttempts int           `env:"PAYMENT_MAX_CAPTURE_ATTEMPTS" envDefault:"2"`
	LockTTL            time.Duration `env:"PAYMENT_LOCK_TTL" envDefault:"1m"`
	ReturnURL          string        `env:"PAYMENT_RETURN_URL" envDefault:"http://localhost:8080/billing/return"`
	CancelURL          string        `env:"PAYMENT_CANCEL_URL" envDefault:"http://localhost:8080/billing/cancel"`
	BrandName          string        `env:"PAYMENT_BRAND_NAME" envDefault:"licensekit"`
}

// DefaultConfig mirrors the envDefault values.
func DefaultConfig() Config {
	return Config{
		Provider:           "paypal",
		Currency:           "USD",
		ProviderTimeout:    20 * time.Second,
		AbandonAfter:       24 * time.Hour,
		MaxCaptureAttempts: 2,
		LockTTL:            time.Minute,
		ReturnURL:          "http://localhost:8080/billing/return",
		CancelURL:          "http://localhost:8080/billing/cancel",
		BrandName:          "licensekit",
	}
}
