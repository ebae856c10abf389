package config

import (
	"fmt"
	"time"

	"github.com/spf13/pflag"
)

// ServeConfig holds settings for the read API.
type ServeConfig struct {
	PGDSN          string
	Listen         string
	MaxTake        int
	RequestTimeout time.Duration
	Migrate        bool
	LogLevel       string
}

// LoadServe merges config file, environment variables, and flags into ServeConfig.
func LoadServe(cfgFile string, flags *pflag.FlagSet) (ServeConfig, error) {
	v := newViper()

	v.SetDefault("listen", ":8080")
	v.SetDefault("max-take", 1000)
	v.SetDefault("request-timeout", 30*time.Second)
	v.SetDefault("migrate", true)
	v.SetDefault("log-level", "info")

	if err := read(v, cfgFile, flags); err != nil {
		return ServeConfig{}, err
	}

	cfg := ServeConfig{
		PGDSN:          v.GetString("pg-dsn"),
		Listen:         v.GetString("listen"),
		MaxTake:        v.GetInt("max-take"),
		RequestTimeout: v.GetDuration("request-timeout"),
		Migrate:        v.GetBool("migrate"),
		LogLevel:       v.GetString("log-level"),
	}
	if cfg.PGDSN == "" {
		return ServeConfig{}, fmt.Errorf("pg-dsn is required")
	}
	return cfg, nil
}
