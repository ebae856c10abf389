package main

import (
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"txTracker/internal/indexer"
	"txTracker/internal/schema"
)

func main() {
	// A missing .env is fine; flags, env and config files still apply.
	_ = godotenv.Load()

	root := &cobra.Command{
		Use:          "tracker",
		Short:        "Ledger event ingestion and transaction tracker",
		SilenceUsage: true,
	}

	root.PersistentFlags().String("config", "", "config file path")

	ingestCmd := &cobra.Command{
		Use:   "ingest",
		Short: "Scan the next block window and persist events and transactions",
		RunE:  runIngest,
	}

	ingestCmd.Flags().String("rpc", "", "ledger RPC URL")
	ingestCmd.Flags().String("pg-dsn", "", "Postgres DSN")
	ingestCmd.Flags().String("cursor-file", "", "keep the cursor in a local JSON file instead of Postgres")
	addContractFlags(ingestCmd)
	ingestCmd.Flags().Uint64("genesis-block", 5573385, "first block scanned when no cursor exists")
	ingestCmd.Flags().Uint64("window-size", 75000, "maximum blocks scanned per cycle")
	ingestCmd.Flags().Uint64("logs-batch", 0, "blocks per eth_getLogs request, 0 means the whole window")
	ingestCmd.Flags().Duration("interval", 0, "run a cycle every interval, 0 means a single pass")
	ingestCmd.Flags().Duration("phase-timeout", 2*time.Minute, "timeout for each ledger phase")
	ingestCmd.Flags().Duration("cycle-timeout", 6*time.Minute, "timeout for a whole cycle")
	ingestCmd.Flags().Int("concurrency", 16, "parallel block and transaction lookups")
	ingestCmd.Flags().Float64("rpc-rate", 25, "maximum RPC requests per second, 0 disables limiting")
	ingestCmd.Flags().Int("max-retries", 5, "maximum retry attempts")
	ingestCmd.Flags().Duration("retry-backoff", 500*time.Millisecond, "initial retry backoff")
	ingestCmd.Flags().Int("max-window-failures", 5, "quarantine a window after this many consecutive failures, 0 disables")
	ingestCmd.Flags().String("quarantine", "./data/quarantine.jsonl", "quarantined windows JSONL")
	ingestCmd.Flags().String("redis-url", "", "Redis URL for the cross-process lease")
	ingestCmd.Flags().Duration("lease-ttl", 7*time.Minute, "lease expiry")
	ingestCmd.Flags().String("lease-key", "tracker:ingest:lease", "lease key")
	ingestCmd.Flags().String("metrics-addr", "", "serve Prometheus metrics on this address while ingesting")
	ingestCmd.Flags().Bool("migrate", true, "apply database migrations on start")
	ingestCmd.Flags().Bool("dry-run", false, "keep events, transactions and the cursor in memory; nothing is written")
	ingestCmd.Flags().String("log-level", "info", "log level (debug, info, warn, error)")

	root.AddCommand(ingestCmd)

	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the transaction and anomalous event listings",
		RunE:  runServe,
	}

	serveCmd.Flags().String("pg-dsn", "", "Postgres DSN")
	serveCmd.Flags().String("listen", ":8080", "HTTP listen address")
	serveCmd.Flags().Int("max-take", 1000, "maximum page size")
	serveCmd.Flags().Duration("request-timeout", 30*time.Second, "per-request timeout")
	serveCmd.Flags().Bool("migrate", true, "apply database migrations on start")
	serveCmd.Flags().String("log-level", "info", "log level (debug, info, warn, error)")

	root.AddCommand(serveCmd)

	migrateCmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply database migrations",
		RunE:  runMigrate,
	}

	migrateCmd.Flags().String("pg-dsn", "", "Postgres DSN")
	migrateCmd.Flags().String("log-level", "info", "log level (debug, info, warn, error)")

	root.AddCommand(migrateCmd)

	decodeCmd := &cobra.Command{
		Use:   "decode",
		Short: "Decode raw logs JSONL into events offline",
		RunE:  runDecode,
	}

	decodeCmd.Flags().String("in", "", "input raw logs JSONL")
	decodeCmd.Flags().String("out", "./data/events.jsonl", "output events JSONL")
	decodeCmd.Flags().String("errors", "./data/decode_errors.jsonl", "decode errors JSONL")
	addContractFlags(decodeCmd)
	decodeCmd.Flags().String("log-level", "info", "log level (debug, info, warn, error)")

	root.AddCommand(decodeCmd)

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

func addContractFlags(cmd *cobra.Command) {
	cmd.Flags().String("token-address", schema.DefaultTokenAddress, "token contract address")
	cmd.Flags().String("events-address", schema.DefaultEventsAddress, "events contract address")
	cmd.Flags().String("token-abi", "", "optional token contract ABI JSON file")
	cmd.Flags().String("events-abi", "", "optional events contract ABI JSON file")
	cmd.Flags().StringSlice("lock-addresses", indexer.DefaultLockAddresses, "lock addresses (comma-separated)")
}

func buildRegistry(tokenAddress, tokenABI, eventsAddress, eventsABI string) (*schema.Registry, error) {
	token, err := schema.LoadContract(tokenAddress, tokenABI, schema.TokenABI)
	if err != nil {
		return nil, err
	}
	events, err := schema.LoadContract(eventsAddress, eventsABI, schema.EventsABI)
	if err != nil {
		return nil, err
	}
	return schema.NewRegistry([]schema.Contract{token, events})
}

func newLogger(level string) (*zap.Logger, error) {
	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevel()
	if err := cfg.Level.UnmarshalText([]byte(level)); err != nil {
		return nil, err
	}

	cfg.EncoderConfig.TimeKey = "ts"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	return cfg.Build()
}
