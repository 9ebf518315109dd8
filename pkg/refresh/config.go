package refresh

import "time"

// Config holds the background refresh settings.
type Config struct {
	Interval time.Duration `env:"REFRESH_INTERVAL" envDefault:"5m"`
	Timeout  time.Duration `env:"REFRESH_TIMEOUT" envDefault:"10s"`
}

// DefaultConfig returns the values used when no config is given.
func DefaultConfig() Config {
	return Config{
		Interval: 5 * time.Minute,
		Timeout:  10 * time.Second,
	}
}
