package indexer

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"txTracker/internal/lease"
	"txTracker/internal/metrics"
	"txTracker/internal/model"
	"txTracker/internal/storage"
)

// ErrPartialFailure is returned when some events or transactions of a window failed to
// persist. The cursor is not advanced.
var ErrPartialFailure = errors.New("partial persistence failure")

const bookkeepingTimeout = 10 * time.Second

// Reasons reported for skipped cycles.
const (
	ReasonLeaseHeld   = "lease held by another cycle"
	ReasonNoNewBlocks = "no new blocks"
)

// RunConfig holds runtime settings for the ingestion runner.
type RunConfig struct {
	Addresses         []common.Address
	GenesisBlock      uint64
	WindowSize        uint64
	LogsBatch         uint64
	Interval          time.Duration
	PhaseTimeout      time.Duration
	CycleTimeout      time.Duration
	Concurrency       int
	Retry             RetryPolicy
	MaxWindowFailures int
}

// Deps are the collaborators of a Runner.
type Deps struct {
	Ledger     Ledger
	Decoder    Decoder
	Locks      *LockSet
	Writer     storage.Writer
	Cursor     storage.CursorStore
	Quarantine storage.Quarantine
	Lease      lease.Lease
}

// Runner executes ingestion cycles: select a window, fetch and decode its logs, persist
// events, correlate and persist transactions, then advance the cursor.
type Runner struct {
	cfg    RunConfig
	deps   Deps
	logger *zap.Logger
}

// NewRunner builds a Runner with its dependencies.
func NewRunner(cfg RunConfig, deps Deps, logger *zap.Logger) *Runner {
	if logger == nil {
		logger = zap.NewNop()
	}
	if deps.Lease == nil {
		deps.Lease = lease.NewLocal()
	}
	return &Runner{cfg: cfg, deps: deps, logger: logger}
}

func (r *Runner) validate() error {
	switch {
	case r.deps.Ledger == nil:
		return fmt.Errorf("ledger is nil")
	case r.deps.Decoder == nil:
		return fmt.Errorf("decoder is nil")
	case r.deps.Writer == nil:
		return fmt.Errorf("writer is nil")
	case r.deps.Cursor == nil:
		return fmt.Errorf("cursor store is nil")
	case r.cfg.WindowSize == 0:
		return fmt.Errorf("window size must be greater than zero")
	case len(r.cfg.Addresses) == 0:
		return fmt.Errorf("at least one address is required")
	}
	return nil
}

// Run executes one cycle, or loops every Interval until ctx is done when Interval > 0.
func (r *Runner) Run(ctx context.Context) error {
	if err := r.validate(); err != nil {
		return err
	}
	if r.cfg.Interval <= 0 {
		_, err := r.RunOnce(ctx)
		return err
	}

	ticker := time.NewTicker(r.cfg.Interval)
	defer ticker.Stop()

	for {
		if _, err := r.RunOnce(ctx); err != nil && ctx.Err() == nil {
			r.logger.Error("cycle failed", zap.Error(err))
		}

		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

// RunOnce executes a single ingestion cycle.
func (r *Runner) RunOnce(ctx context.Context) (report model.CycleReport, err error) {
	if err := r.validate(); err != nil {
		return report, err
	}

	start := time.Now()
	defer func() {
		report.Duration = time.Since(start)
		r.observe(report, err)
	}()

	parent := ctx
	if r.cfg.CycleTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.cfg.CycleTimeout)
		defer cancel()
	}

	release, ok, err := r.deps.Lease.Acquire(ctx)
	if err != nil {
		return report, fmt.Errorf("acquire lease: %w", err)
	}
	if !ok {
		report.Skipped = true
		report.Reason = ReasonLeaseHeld
		return report, nil
	}
	defer func() {
		releaseCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), bookkeepingTimeout)
		defer cancel()
		if err := release(releaseCtx); err != nil {
			r.logger.Warn("release lease failed", zap.Error(err))
		}
	}()

	state, hasCursor, err := r.deps.Cursor.LoadCursor(ctx)
	if err != nil {
		return report, fmt.Errorf("load cursor: %w", err)
	}
	report.CursorBefore = state.LastProcessedBlock
	report.CursorAfter = state.LastProcessedBlock

	var head uint64
	err = r.phase(ctx, func(ctx context.Context) error {
		return r.cfg.Retry.do(ctx, func(ctx context.Context) error {
			var err error
			head, err = r.deps.Ledger.LatestBlockNumber(ctx)
			return err
		})
	})
	if err != nil {
		return report, fmt.Errorf("get latest block: %w", err)
	}
	metrics.ChainHeadBlock.Set(float64(head))

	window, ok := SelectWindow(state.LastProcessedBlock, hasCursor, r.cfg.GenesisBlock, head, r.cfg.WindowSize)
	if !ok {
		report.Skipped = true
		report.Reason = ReasonNoNewBlocks
		r.logger.Info("nothing to sync", zap.Uint64("cursor", state.LastProcessedBlock), zap.Uint64("head", head))
		return report, nil
	}
	report.From = window.From
	report.To = window.To

	r.logger.Info("cycle start",
		zap.Uint64("from", window.From),
		zap.Uint64("to", window.To),
		zap.Uint64("head", head),
	)

	cycleErr := r.process(ctx, window, &report)
	if cycleErr == nil && report.Failed() {
		cycleErr = fmt.Errorf("%w: %d events, %d transactions", ErrPartialFailure, report.EventsFailed, report.TransactionsFailed)
	}
	if cycleErr != nil {
		// A cycle cut short by the caller is retried as is on the next run.
		if parent.Err() != nil {
			r.logger.Warn("cycle interrupted",
				zap.Error(cycleErr),
				zap.Uint64("from", window.From),
				zap.Uint64("to", window.To),
			)
			return report, cycleErr
		}
		return report, r.recordFailure(ctx, state, window, cycleErr, &report)
	}

	if err := r.deps.Cursor.SaveCursor(ctx, model.CursorState{LastProcessedBlock: window.To}); err != nil {
		return report, fmt.Errorf("save cursor: %w", err)
	}
	report.CursorAfter = window.To
	return report, nil
}

func (r *Runner) process(ctx context.Context, window BlockRange, report *model.CycleReport) error {
	var logs []model.RawLog
	err := r.phase(ctx, func(ctx context.Context) error {
		var err error
		logs, err = FetchLogs(ctx, r.deps.Ledger, r.cfg.Addresses, window, r.cfg.LogsBatch, r.cfg.Retry, r.logger)
		return err
	})
	if err != nil {
		return fmt.Errorf("fetch logs: %w", err)
	}
	report.Logs = len(logs)

	events := DecodeLogs(r.deps.Decoder, r.deps.Locks, logs, report)

	err = r.phase(ctx, func(ctx context.Context) error {
		return ResolveTimestamps(ctx, r.deps.Ledger, events, r.cfg.Concurrency, r.cfg.Retry)
	})
	if err != nil {
		return fmt.Errorf("resolve timestamps: %w", err)
	}

	PersistEvents(ctx, r.deps.Writer, events, report, r.logger)

	var txs []model.Transaction
	err = r.phase(ctx, func(ctx context.Context) error {
		var err error
		txs, err = Correlate(ctx, r.deps.Ledger, events, r.cfg.Concurrency, r.cfg.Retry)
		return err
	})
	if err != nil {
		return fmt.Errorf("correlate transactions: %w", err)
	}

	PersistTransactions(ctx, r.deps.Writer, txs, report, r.logger)
	return nil
}

// recordFailure counts consecutive failures of the same window and quarantines it once
// MaxWindowFailures is reached.
func (r *Runner) recordFailure(ctx context.Context, state model.CursorState, window BlockRange, cycleErr error, report *model.CycleReport) error {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), bookkeepingTimeout)
	defer cancel()

	failures := state.FailuresFor(window.From, window.To) + 1
	r.logger.Warn("window failed",
		zap.Error(cycleErr),
		zap.Uint64("from", window.From),
		zap.Uint64("to", window.To),
		zap.Int("failures", failures),
	)

	if r.cfg.MaxWindowFailures > 0 && failures >= r.cfg.MaxWindowFailures && r.deps.Quarantine != nil {
		record := model.QuarantineRecord{
			From:          window.From,
			To:            window.To,
			Failures:      failures,
			LastError:     cycleErr.Error(),
			QuarantinedAt: time.Now().UTC().Format(time.RFC3339Nano),
		}
		if err := r.deps.Quarantine.PutQuarantine(record); err != nil {
			return errors.Join(cycleErr, fmt.Errorf("quarantine window: %w", err))
		}
		if err := r.deps.Cursor.SaveCursor(ctx, model.CursorState{LastProcessedBlock: window.To}); err != nil {
			return errors.Join(cycleErr, fmt.Errorf("save cursor: %w", err))
		}
		report.Quarantined = true
		report.CursorAfter = window.To
		r.logger.Error("window quarantined",
			zap.Uint64("from", window.From),
			zap.Uint64("to", window.To),
			zap.Int("failures", failures),
		)
		return nil
	}

	// The window starts right after the cursor, so From-1 keeps the cursor in place.
	if window.From == 0 {
		return cycleErr
	}
	next := model.CursorState{
		LastProcessedBlock: window.From - 1,
		FailedFrom:         window.From,
		FailedTo:           window.To,
		Failures:           failures,
	}
	if err := r.deps.Cursor.SaveCursor(ctx, next); err != nil {
		return errors.Join(cycleErr, fmt.Errorf("save failure count: %w", err))
	}
	return cycleErr
}

func (r *Runner) phase(ctx context.Context, fn func(context.Context) error) error {
	if r.cfg.PhaseTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.cfg.PhaseTimeout)
		defer cancel()
	}
	return fn(ctx)
}

func (r *Runner) observe(report model.CycleReport, err error) {
	result := "ok"
	switch {
	case report.Quarantined:
		result = "quarantined"
	case err != nil:
		result = "failed"
	case report.Reason == ReasonLeaseHeld:
		result = "locked"
	case report.Skipped:
		result = "noop"
	}
	metrics.CyclesTotal.WithLabelValues(result).Inc()
	metrics.CycleDuration.Observe(report.Duration.Seconds())
	if result == "ok" || result == "noop" || result == "quarantined" {
		metrics.CursorBlock.Set(float64(report.CursorAfter))
	}

	fields := []zap.Field{
		zap.String("result", result),
		zap.Uint64("from", report.From),
		zap.Uint64("to", report.To),
		zap.Int("logs", report.Logs),
		zap.Int("unknown_events", report.UnknownEvents),
		zap.Int("locked_events", report.LockedEvents),
		zap.Int("events_inserted", report.EventsInserted),
		zap.Int("events_duplicate", report.EventsDuplicate),
		zap.Int("events_failed", report.EventsFailed),
		zap.Int("transactions_saved", report.TransactionsSaved),
		zap.Int("transactions_failed", report.TransactionsFailed),
		zap.Uint64("cursor_before", report.CursorBefore),
		zap.Uint64("cursor_after", report.CursorAfter),
		zap.Duration("duration", report.Duration),
	}
	if err != nil {
		fields = append(fields, zap.Error(err))
	}
	r.logger.Info("cycle complete", fields...)
}
