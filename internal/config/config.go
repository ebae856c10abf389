package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"txTracker/internal/indexer"
	"txTracker/internal/schema"
)

const envPrefix = "TRACKER"

// Config holds ingestion settings loaded from flags, env, or config file.
type Config struct {
	RPCURL            string
	PGDSN             string
	CursorFile        string
	TokenAddress      string
	EventsAddress     string
	TokenABI          string
	EventsABI         string
	LockAddresses     []string
	GenesisBlock      uint64
	WindowSize        uint64
	LogsBatch         uint64
	Interval          time.Duration
	PhaseTimeout      time.Duration
	CycleTimeout      time.Duration
	Concurrency       int
	RPCRate           float64
	MaxRetries        int
	RetryBackoff      time.Duration
	MaxWindowFailures int
	Quarantine        string
	RedisURL          string
	LeaseTTL          time.Duration
	LeaseKey          string
	MetricsAddr       string
	Migrate           bool
	DryRun            bool
	LogLevel          string
}

// Load merges config file, environment variables, and flags into Config.
func Load(cfgFile string, flags *pflag.FlagSet) (Config, error) {
	v := newViper()

	v.SetDefault("token-address", schema.DefaultTokenAddress)
	v.SetDefault("events-address", schema.DefaultEventsAddress)
	v.SetDefault("lock-addresses", indexer.DefaultLockAddresses)
	v.SetDefault("genesis-block", uint64(5573385))
	v.SetDefault("window-size", uint64(75000))
	v.SetDefault("logs-batch", uint64(0))
	v.SetDefault("interval", time.Duration(0))
	v.SetDefault("phase-timeout", 2*time.Minute)
	v.SetDefault("cycle-timeout", 6*time.Minute)
	v.SetDefault("concurrency", 16)
	v.SetDefault("rpc-rate", 25.0)
	v.SetDefault("max-retries", 5)
	v.SetDefault("retry-backoff", 500*time.Millisecond)
	v.SetDefault("max-window-failures", 5)
	v.SetDefault("quarantine", "./data/quarantine.jsonl")
	v.SetDefault("lease-ttl", 7*time.Minute)
	v.SetDefault("lease-key", "tracker:ingest:lease")
	v.SetDefault("migrate", true)
	v.SetDefault("dry-run", false)
	v.SetDefault("log-level", "info")

	if err := read(v, cfgFile, flags); err != nil {
		return Config{}, err
	}

	cfg := Config{
		RPCURL:            v.GetString("rpc"),
		PGDSN:             v.GetString("pg-dsn"),
		CursorFile:        v.GetString("cursor-file"),
		TokenAddress:      v.GetString("token-address"),
		EventsAddress:     v.GetString("events-address"),
		TokenABI:          v.GetString("token-abi"),
		EventsABI:         v.GetString("events-abi"),
		LockAddresses:     getStringSlice(v, "lock-addresses"),
		GenesisBlock:      v.GetUint64("genesis-block"),
		WindowSize:        v.GetUint64("window-size"),
		LogsBatch:         v.GetUint64("logs-batch"),
		Interval:          v.GetDuration("interval"),
		PhaseTimeout:      v.GetDuration("phase-timeout"),
		CycleTimeout:      v.GetDuration("cycle-timeout"),
		Concurrency:       v.GetInt("concurrency"),
		RPCRate:           v.GetFloat64("rpc-rate"),
		MaxRetries:        v.GetInt("max-retries"),
		RetryBackoff:      v.GetDuration("retry-backoff"),
		MaxWindowFailures: v.GetInt("max-window-failures"),
		Quarantine:        v.GetString("quarantine"),
		RedisURL:          v.GetString("redis-url"),
		LeaseTTL:          v.GetDuration("lease-ttl"),
		LeaseKey:          v.GetString("lease-key"),
		MetricsAddr:       v.GetString("metrics-addr"),
		Migrate:           v.GetBool("migrate"),
		DryRun:            v.GetBool("dry-run"),
		LogLevel:          v.GetString("log-level"),
	}

	return cfg, nil
}

// Validate checks the settings an ingestion run cannot start without.
func (c Config) Validate() error {
	switch {
	case c.RPCURL == "":
		return fmt.Errorf("rpc url is required")
	case c.PGDSN == "" && !c.DryRun:
		return fmt.Errorf("pg-dsn is required")
	case c.DryRun && c.CursorFile != "":
		return fmt.Errorf("cursor-file cannot be used with dry-run")
	case c.WindowSize == 0:
		return fmt.Errorf("window-size must be greater than zero")
	case c.Concurrency <= 0:
		return fmt.Errorf("concurrency must be greater than zero")
	case c.CycleTimeout > 0 && c.LeaseTTL > 0 && c.LeaseTTL < c.CycleTimeout:
		return fmt.Errorf("lease-ttl (%s) must not be shorter than cycle-timeout (%s)", c.LeaseTTL, c.CycleTimeout)
	}
	if _, err := indexer.ParseAddresses(c.LockAddresses); err != nil {
		return fmt.Errorf("lock-addresses: %w", err)
	}
	return nil
}

func newViper() *viper.Viper {
	v := viper.New()
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()
	return v
}

// read binds flags and reads the config file. Without an explicit file a missing
// ./config.* is not an error.
func read(v *viper.Viper, cfgFile string, flags *pflag.FlagSet) error {
	if flags != nil {
		if err := v.BindPFlags(flags); err != nil {
			return fmt.Errorf("bind flags: %w", err)
		}
	}

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
		if err := v.ReadInConfig(); err != nil {
			return fmt.Errorf("read config: %w", err)
		}
		return nil
	}

	v.SetConfigName("config")
	v.AddConfigPath(".")
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return fmt.Errorf("read config: %w", err)
		}
	}
	return nil
}

func getStringSlice(v *viper.Viper, key string) []string {
	if !v.IsSet(key) {
		return nil
	}

	val := v.Get(key)
	switch typed := val.(type) {
	case []string:
		return cleanStrings(typed)
	case string:
		return splitAndClean(typed)
	case []interface{}:
		items := make([]string, 0, len(typed))
		for _, item := range typed {
			items = append(items, fmt.Sprintf("%v", item))
		}
		return cleanStrings(items)
	default:
		return nil
	}
}

func splitAndClean(input string) []string {
	if input == "" {
		return nil
	}
	parts := strings.Split(input, ",")
	return cleanStrings(parts)
}

func cleanStrings(items []string) []string {
	out := make([]string, 0, len(items))
	for _, item := range items {
		item = strings.TrimSpace(item)
		if item == "" {
			continue
		}
		out = append(out, item)
	}
	return out
}
