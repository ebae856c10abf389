package config

import (
	"github.com/spf13/pflag"

	"txTracker/internal/indexer"
	"txTracker/internal/schema"
)

// DecodeConfig holds configuration for the offline decode command.
type DecodeConfig struct {
	In            string
	Out           string
	Errors        string
	TokenAddress  string
	EventsAddress string
	TokenABI      string
	EventsABI     string
	LockAddresses []string
	LogLevel      string
}

// LoadDecode merges config file, environment variables, and flags into DecodeConfig.
func LoadDecode(cfgFile string, flags *pflag.FlagSet) (DecodeConfig, error) {
	v := newViper()

	v.SetDefault("out", "./data/events.jsonl")
	v.SetDefault("errors", "./data/decode_errors.jsonl")
	v.SetDefault("token-address", schema.DefaultTokenAddress)
	v.SetDefault("events-address", schema.DefaultEventsAddress)
	v.SetDefault("lock-addresses", indexer.DefaultLockAddresses)
	v.SetDefault("log-level", "info")

	if err := read(v, cfgFile, flags); err != nil {
		return DecodeConfig{}, err
	}

	cfg := DecodeConfig{
		In:            v.GetString("in"),
		Out:           v.GetString("out"),
		Errors:        v.GetString("errors"),
		TokenAddress:  v.GetString("token-address"),
		EventsAddress: v.GetString("events-address"),
		TokenABI:      v.GetString("token-abi"),
		EventsABI:     v.GetString("events-abi"),
		LockAddresses: getStringSlice(v, "lock-addresses"),
		LogLevel:      v.GetString("log-level"),
	}

	return cfg, nil
}
