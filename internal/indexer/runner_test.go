package indexer

import (
	"context"
	"errors"
	"math/big"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"txTracker/internal/lease"
	"txTracker/internal/model"
	"txTracker/internal/storage"
	"txTracker/internal/storage/memory"
)

const (
	testGenesis = 5573385
	testHead    = 5700000
	testWindow  = 75000
)

type runnerFixture struct {
	ledger     *fakeLedger
	store      *memory.Store
	quarantine *storage.JsonlStorage
	lease      *lease.Local
	runner     *Runner
}

func newRunnerFixture(t *testing.T, maxFailures int) *runnerFixture {
	t.Helper()

	f := &runnerFixture{
		ledger:     newFakeLedger(testHead),
		store:      memory.NewStore(),
		quarantine: storage.NewJsonlStorage(filepath.Join(t.TempDir(), "quarantine.jsonl")),
		lease:      lease.NewLocal(),
	}
	f.runner = NewRunner(RunConfig{
		Addresses:         []common.Address{tokenAddress, eventsAddress},
		GenesisBlock:      testGenesis,
		WindowSize:        testWindow,
		PhaseTimeout:      time.Minute,
		CycleTimeout:      time.Minute,
		Concurrency:       4,
		Retry:             RetryPolicy{MaxRetries: 0, Backoff: time.Millisecond},
		MaxWindowFailures: maxFailures,
	}, Deps{
		Ledger:     f.ledger,
		Decoder:    newTestRegistry(t),
		Locks:      newTestLockSet(t),
		Writer:     f.store,
		Cursor:     f.store,
		Quarantine: f.quarantine,
		Lease:      f.lease,
	}, nil)
	return f
}

// seed registers two transactions in the first window: one with a locked transfer and an
// unknown log, one contract creation with a plain transfer.
func (f *runnerFixture) seed(t *testing.T) {
	f.ledger.addLog(transferLog(t, 5573400, 0, txHash(1), lockAddress, userAddress, 1000))
	f.ledger.addLog(unknownLog(5573400, 1, txHash(1)))
	f.ledger.addLog(transferLog(t, 5600000, 3, txHash(2), userAddress, otherAddress, 7))
	f.ledger.addTx(txHash(1), 5573400, &otherAddress, big.NewInt(10))
	f.ledger.addTx(txHash(2), 5600000, nil, new(big.Int).Lsh(big.NewInt(1), 100))
}

func (f *runnerFixture) cursor(t *testing.T) model.CursorState {
	t.Helper()

	state, ok, err := f.store.LoadCursor(context.Background())
	if err != nil || !ok {
		t.Fatalf("load cursor: ok=%v err=%v", ok, err)
	}
	return state
}

func TestRunOnceFirstWindow(t *testing.T) {
	f := newRunnerFixture(t, 0)
	f.seed(t)

	report, err := f.runner.RunOnce(context.Background())
	if err != nil {
		t.Fatalf("run once: %v", err)
	}

	if report.From != 5573385 || report.To != 5648384 {
		t.Fatalf("window mismatch: [%d, %d]", report.From, report.To)
	}
	if report.Logs != 3 || report.UnknownEvents != 1 || report.LockedEvents != 1 {
		t.Fatalf("unexpected counters: %+v", report)
	}
	if report.EventsInserted != 3 || report.TransactionsSaved != 2 || report.Failed() {
		t.Fatalf("unexpected persistence counters: %+v", report)
	}
	if got := f.cursor(t).LastProcessedBlock; got != 5648384 {
		t.Fatalf("cursor = %d, want 5648384", got)
	}

	events := f.store.Events()
	for _, e := range events {
		if e.Timestamp == 0 {
			t.Fatalf("timestamp not resolved for %+v", e)
		}
		if e.Name == model.UnknownEventName {
			for i := 0; i < model.EventParamCount; i++ {
				if p := e.Param(i); p == nil || *p != model.UnknownParam {
					t.Fatalf("unknown event param %d not a placeholder", i)
				}
			}
		}
		if e.Name == model.TransferEventName && e.Hash == txHash(1) && !e.Locked() {
			t.Fatalf("transfer from lock address must be locked")
		}
	}

	txs, err := f.store.ListTransactions(context.Background(), "", 0, 10)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(txs) != 2 {
		t.Fatalf("expected 2 transactions, got %d", len(txs))
	}
	for _, tx := range txs {
		for _, e := range tx.Events {
			if e.Hash != tx.Hash {
				t.Fatalf("event %s attached to %s", e.Hash, tx.Hash)
			}
		}
	}
	creation := f.store.Transactions()[txHash(2)]
	if creation.To != model.NoRecipient {
		t.Fatalf("contract creation recipient = %q", creation.To)
	}
	if creation.Value != "0x10000000000000000000000000" {
		t.Fatalf("value precision lost: %s", creation.Value)
	}
}

func TestRunOnceCursorProgression(t *testing.T) {
	f := newRunnerFixture(t, 0)
	f.seed(t)
	ctx := context.Background()

	if _, err := f.runner.RunOnce(ctx); err != nil {
		t.Fatalf("first run: %v", err)
	}

	report, err := f.runner.RunOnce(ctx)
	if err != nil {
		t.Fatalf("second run: %v", err)
	}
	if report.From != 5648385 || report.To != testHead {
		t.Fatalf("second window mismatch: [%d, %d]", report.From, report.To)
	}

	report, err = f.runner.RunOnce(ctx)
	if err != nil {
		t.Fatalf("third run: %v", err)
	}
	if !report.Skipped || report.Reason != ReasonNoNewBlocks {
		t.Fatalf("expected no-op cycle, got %+v", report)
	}
	if got := f.cursor(t).LastProcessedBlock; got != testHead {
		t.Fatalf("cursor = %d, want %d", got, testHead)
	}
}

func TestRunOnceReplayIsDeduplicated(t *testing.T) {
	f := newRunnerFixture(t, 0)
	f.seed(t)
	ctx := context.Background()

	if _, err := f.runner.RunOnce(ctx); err != nil {
		t.Fatalf("first run: %v", err)
	}
	if err := f.store.SaveCursor(ctx, model.CursorState{LastProcessedBlock: testGenesis - 1}); err != nil {
		t.Fatalf("rewind cursor: %v", err)
	}

	report, err := f.runner.RunOnce(ctx)
	if err != nil {
		t.Fatalf("replay: %v", err)
	}
	if report.EventsInserted != 0 || report.EventsDuplicate != 3 {
		t.Fatalf("replay should only find duplicates: %+v", report)
	}
	if len(f.store.Events()) != 3 || len(f.store.Transactions()) != 2 {
		t.Fatalf("replay created extra rows")
	}
}

func TestRunOnceLedgerFailureKeepsCursor(t *testing.T) {
	f := newRunnerFixture(t, 0)
	f.seed(t)
	f.ledger.txErr = errors.New("rpc unavailable")

	if _, err := f.runner.RunOnce(context.Background()); err == nil {
		t.Fatalf("expected error")
	}

	state := f.cursor(t)
	if state.LastProcessedBlock != testGenesis-1 {
		t.Fatalf("cursor moved: %d", state.LastProcessedBlock)
	}
	if state.Failures != 1 || state.FailedFrom != testGenesis {
		t.Fatalf("failure not recorded: %+v", state)
	}

	f.ledger.txErr = nil
	report, err := f.runner.RunOnce(context.Background())
	if err != nil {
		t.Fatalf("retry: %v", err)
	}
	if report.From != testGenesis {
		t.Fatalf("failed window should be retried, got from=%d", report.From)
	}
	if state := f.cursor(t); state.Failures != 0 || state.LastProcessedBlock != 5648384 {
		t.Fatalf("unexpected state after recovery: %+v", state)
	}
}

func TestRunOncePartialPersistFailure(t *testing.T) {
	f := newRunnerFixture(t, 0)
	f.seed(t)
	f.store.FailTransaction = func(tx model.Transaction) error {
		if tx.Hash == txHash(2) {
			return errors.New("disk full")
		}
		return nil
	}

	report, err := f.runner.RunOnce(context.Background())
	if !errors.Is(err, ErrPartialFailure) {
		t.Fatalf("expected partial failure, got %v", err)
	}
	if report.TransactionsSaved != 1 || report.TransactionsFailed != 1 {
		t.Fatalf("unexpected counters: %+v", report)
	}
	if got := f.cursor(t).LastProcessedBlock; got != testGenesis-1 {
		t.Fatalf("cursor advanced despite failure: %d", got)
	}
}

func TestRunOnceQuarantinesPoisonWindow(t *testing.T) {
	f := newRunnerFixture(t, 2)
	f.seed(t)
	f.ledger.filterErr = errors.New("bad range")
	ctx := context.Background()

	if _, err := f.runner.RunOnce(ctx); err == nil {
		t.Fatalf("expected first failure")
	}

	report, err := f.runner.RunOnce(ctx)
	if err != nil {
		t.Fatalf("quarantine run: %v", err)
	}
	if !report.Quarantined || report.CursorAfter != 5648384 {
		t.Fatalf("window not quarantined: %+v", report)
	}
	if got := f.cursor(t).LastProcessedBlock; got != 5648384 {
		t.Fatalf("cursor = %d, want 5648384", got)
	}

	data, err := os.ReadFile(f.quarantine.Path())
	if err != nil {
		t.Fatalf("read quarantine: %v", err)
	}
	if !strings.Contains(string(data), `"from":5573385`) || !strings.Contains(string(data), "bad range") {
		t.Fatalf("unexpected quarantine file: %s", data)
	}
}

func TestRunOnceCancelledCycleIsNotCounted(t *testing.T) {
	f := newRunnerFixture(t, 2)
	f.seed(t)
	f.ledger.filterErr = context.Canceled

	for i := 0; i < 3; i++ {
		ctx, cancel := context.WithCancel(context.Background())
		f.ledger.onFilter = cancel

		report, err := f.runner.RunOnce(ctx)
		cancel()
		if !errors.Is(err, context.Canceled) {
			t.Fatalf("run %d: expected cancellation, got %v", i, err)
		}
		if report.Quarantined {
			t.Fatalf("run %d: interrupted window was quarantined", i)
		}
		if _, ok, _ := f.store.LoadCursor(context.Background()); ok {
			t.Fatalf("run %d: cursor written for an interrupted cycle", i)
		}
	}
	if _, err := os.Stat(f.quarantine.Path()); !os.IsNotExist(err) {
		t.Fatalf("quarantine file should not exist, stat err=%v", err)
	}

	f.ledger.onFilter = nil
	f.ledger.filterErr = nil
	report, err := f.runner.RunOnce(context.Background())
	if err != nil {
		t.Fatalf("resume: %v", err)
	}
	if report.From != testGenesis || report.EventsInserted != 3 {
		t.Fatalf("window not retried after shutdown: %+v", report)
	}
	if state := f.cursor(t); state.Failures != 0 || state.LastProcessedBlock != 5648384 {
		t.Fatalf("unexpected state after resume: %+v", state)
	}
}

func TestRunOnceSkipsWhileLeaseHeld(t *testing.T) {
	f := newRunnerFixture(t, 0)
	ctx := context.Background()

	release, ok, err := f.lease.Acquire(ctx)
	if err != nil || !ok {
		t.Fatalf("acquire: ok=%v err=%v", ok, err)
	}
	defer release(ctx)

	report, err := f.runner.RunOnce(ctx)
	if err != nil {
		t.Fatalf("run once: %v", err)
	}
	if !report.Skipped || report.Reason != ReasonLeaseHeld {
		t.Fatalf("expected lease skip, got %+v", report)
	}
	if _, ok, _ := f.store.LoadCursor(ctx); ok {
		t.Fatalf("cursor must not be written while lease is held")
	}
}

func TestRunValidatesConfig(t *testing.T) {
	r := NewRunner(RunConfig{WindowSize: 10}, Deps{}, nil)
	if err := r.Run(context.Background()); err == nil {
		t.Fatalf("expected validation error")
	}
}
