package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"txTracker/internal/chain"
	"txTracker/internal/config"
	"txTracker/internal/indexer"
	"txTracker/internal/lease"
	"txTracker/internal/storage"
	"txTracker/internal/storage/memory"
	"txTracker/internal/storage/postgres"
)

func runIngest(cmd *cobra.Command, _ []string) error {
	cfgFile, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(cfgFile, cmd.Flags())
	if err != nil {
		return err
	}

	logger, err := newLogger(cfg.LogLevel)
	if err != nil {
		return err
	}
	defer logger.Sync()

	if err := cfg.Validate(); err != nil {
		return err
	}

	registry, err := buildRegistry(cfg.TokenAddress, cfg.TokenABI, cfg.EventsAddress, cfg.EventsABI)
	if err != nil {
		return err
	}
	locks, err := indexer.NewLockSet(cfg.LockAddresses)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	chainClient, err := chain.NewClient(ctx, cfg.RPCURL, cfg.RPCRate)
	if err != nil {
		return fmt.Errorf("connect rpc: %w", err)
	}
	defer chainClient.Close()

	writer, cursor, closeStore, err := openIngestStore(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer closeStore()

	var ingestLease lease.Lease = lease.NewLocal()
	if cfg.RedisURL != "" {
		client, err := lease.NewRedisClient(ctx, cfg.RedisURL)
		if err != nil {
			return err
		}
		defer client.Close()
		ingestLease = lease.NewRedis(client, cfg.LeaseKey, cfg.LeaseTTL)
	}

	if cfg.MetricsAddr != "" {
		go serveMetrics(ctx, cfg.MetricsAddr, logger)
	}

	var quarantine storage.Quarantine
	if !cfg.DryRun {
		quarantine = storage.NewJsonlStorage(cfg.Quarantine)
	}

	runner := indexer.NewRunner(indexer.RunConfig{
		Addresses:    registry.Addresses(),
		GenesisBlock: cfg.GenesisBlock,
		WindowSize:   cfg.WindowSize,
		LogsBatch:    cfg.LogsBatch,
		Interval:     cfg.Interval,
		PhaseTimeout: cfg.PhaseTimeout,
		CycleTimeout: cfg.CycleTimeout,
		Concurrency:  cfg.Concurrency,
		Retry: indexer.RetryPolicy{
			MaxRetries: cfg.MaxRetries,
			Backoff:    cfg.RetryBackoff,
		},
		MaxWindowFailures: cfg.MaxWindowFailures,
	}, indexer.Deps{
		Ledger:     chainClient,
		Decoder:    registry,
		Locks:      locks,
		Writer:     writer,
		Cursor:     cursor,
		Quarantine: quarantine,
		Lease:      ingestLease,
	}, logger)

	logger.Info("ingest start",
		zap.String("rpc", cfg.RPCURL),
		zap.String("token_address", cfg.TokenAddress),
		zap.String("events_address", cfg.EventsAddress),
		zap.Int("lock_addresses", locks.Len()),
		zap.Uint64("genesis_block", cfg.GenesisBlock),
		zap.Uint64("window_size", cfg.WindowSize),
		zap.Duration("interval", cfg.Interval),
		zap.Bool("redis_lease", cfg.RedisURL != ""),
		zap.String("cursor_file", cfg.CursorFile),
		zap.Bool("dry_run", cfg.DryRun),
	)

	return runner.Run(ctx)
}

// openIngestStore returns the event writer and cursor store for an ingest run. A dry run
// keeps both in memory and reports what it would have written on close.
func openIngestStore(ctx context.Context, cfg config.Config, logger *zap.Logger) (storage.Writer, storage.CursorStore, func(), error) {
	if cfg.DryRun {
		mem := memory.NewStore()
		closeFn := func() {
			state, _, _ := mem.LoadCursor(context.Background())
			logger.Info("dry run summary",
				zap.Int("events", len(mem.Events())),
				zap.Int("transactions", len(mem.Transactions())),
				zap.Uint64("cursor", state.LastProcessedBlock),
			)
		}
		return mem, mem, closeFn, nil
	}

	store, err := postgres.NewStore(ctx, cfg.PGDSN)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("connect postgres: %w", err)
	}
	if cfg.Migrate {
		if err := store.Migrate(ctx); err != nil {
			store.Close()
			return nil, nil, nil, err
		}
	}

	var cursor storage.CursorStore = store
	if cfg.CursorFile != "" {
		cursor = indexer.NewCheckpointStore(cfg.CursorFile)
	}
	return store, cursor, store.Close, nil
}

func serveMetrics(ctx context.Context, addr string, logger *zap.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	logger.Info("metrics listening", zap.String("addr", addr))
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("metrics server failed", zap.Error(err))
	}
}
