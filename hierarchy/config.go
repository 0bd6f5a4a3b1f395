package hierarchy

import (
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
)

// Config bounds the subordinate walk and the allow-list cache.
type Config struct {
	MaxDepth      int           `mapstructure:"max_depth"`
	MaxSize       int           `mapstructure:"max_size"`
	CacheTTL      time.Duration `mapstructure:"cache_ttl"`
	CacheCapacity int           `mapstructure:"cache_capacity"`
	// AdminCodes are treated as administrators regardless of the directory.
	AdminCodes []string `mapstructure:"admin_codes"`
}

// DefaultConfig returns the limits used when none are configured.
func DefaultConfig() Config {
	return Config{
		MaxDepth:      12,
		MaxSize:       5000,
		CacheTTL:      time.Minute,
		CacheCapacity: 10000,
	}
}

func (c Config) Validate() error {
	return validation.ValidateStruct(&c,
		validation.Field(&c.MaxDepth, validation.Required, validation.Min(1)),
		validation.Field(&c.MaxSize, validation.Required, validation.Min(1)),
		validation.Field(&c.CacheTTL, validation.Required, validation.Min(time.Second), validation.Max(10*time.Minute)),
		validation.Field(&c.CacheCapacity, validation.Required, validation.Min(1)),
	)
}
