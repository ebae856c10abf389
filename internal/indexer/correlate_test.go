package indexer

import (
	"context"
	"errors"
	"math/big"
	"reflect"
	"sort"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"txTracker/internal/model"
)

func TestBuildTransactionContractCreation(t *testing.T) {
	value, _ := new(big.Int).SetString("123456789012345678901234567890", 10)
	detail := model.TxDetail{
		Hash:        "0xaa",
		BlockHash:   "0xbb",
		BlockNumber: 7,
		From:        "0xSender",
		Value:       value,
		GasPrice:    big.NewInt(1),
		GasLimit:    21000,
		Nonce:       3,
	}

	tx := buildTransaction(detail, []model.Event{{Hash: "0xaa", Name: "Transfer"}})

	if tx.To != model.NoRecipient {
		t.Fatalf("expected recipient sentinel, got %q", tx.To)
	}
	if tx.Value != "0x18ee90ff6c373e0ee4e3f0ad2" {
		t.Fatalf("value mismatch: %s", tx.Value)
	}
	if tx.GasLimit != "0x5208" || tx.GasPrice != "0x1" {
		t.Fatalf("gas mismatch: %s %s", tx.GasLimit, tx.GasPrice)
	}
	if tx.Data != "0x" {
		t.Fatalf("empty data should be 0x, got %q", tx.Data)
	}
	if len(tx.Events) != 1 {
		t.Fatalf("events not attached")
	}
}

func TestCorrelateGroupsByHash(t *testing.T) {
	ledger := newFakeLedger(100)
	ledger.addTx(txHash(1), 10, &otherAddress, big.NewInt(1))
	ledger.addTx(txHash(2), 11, nil, big.NewInt(0))

	events := []model.Event{
		{Name: "Transfer", Hash: txHash(2), LogIndex: 0},
		{Name: "Approval", Hash: txHash(1), LogIndex: 1},
		{Name: "Transfer", Hash: txHash(2), LogIndex: 2},
	}

	txs, err := Correlate(context.Background(), ledger, events, 4, RetryPolicy{})
	if err != nil {
		t.Fatalf("correlate: %v", err)
	}
	if ledger.txCalls != 2 {
		t.Fatalf("expected one lookup per distinct hash, got %d", ledger.txCalls)
	}

	var hashes []string
	for _, tx := range txs {
		hashes = append(hashes, tx.Hash)
	}
	if !reflect.DeepEqual(hashes, []string{txHash(2), txHash(1)}) {
		t.Fatalf("transactions should follow first appearance: %v", hashes)
	}

	// Every event is attached to exactly the transaction with its hash.
	attached := 0
	for _, tx := range txs {
		for _, e := range tx.Events {
			if e.Hash != tx.Hash {
				t.Fatalf("event %s attached to %s", e.Hash, tx.Hash)
			}
			attached++
		}
	}
	if attached != len(events) {
		t.Fatalf("expected %d attached events, got %d", len(events), attached)
	}
	if txs[0].To != model.NoRecipient || txs[1].To != otherAddress.Hex() {
		t.Fatalf("recipient mismatch: %q %q", txs[0].To, txs[1].To)
	}
}

func TestCorrelateLookupFailure(t *testing.T) {
	ledger := newFakeLedger(100)
	ledger.txErr = errors.New("rpc down")

	events := []model.Event{{Hash: txHash(1)}}
	if _, err := Correlate(context.Background(), ledger, events, 2, RetryPolicy{MaxRetries: 1, Backoff: time.Millisecond}); err == nil {
		t.Fatalf("expected error")
	}
	if ledger.txCalls != 2 {
		t.Fatalf("expected one retry, got %d calls", ledger.txCalls)
	}
}

func TestResolveTimestamps(t *testing.T) {
	ledger := newFakeLedger(100)
	events := []model.Event{
		{BlockHash: blockHash(5)},
		{BlockHash: blockHash(7)},
		{BlockHash: blockHash(5)},
	}

	if err := ResolveTimestamps(context.Background(), ledger, events, 2, RetryPolicy{}); err != nil {
		t.Fatalf("resolve: %v", err)
	}

	got := []uint64{events[0].Timestamp, events[1].Timestamp, events[2].Timestamp}
	if !reflect.DeepEqual(got, []uint64{50, 70, 50}) {
		t.Fatalf("timestamps mismatch: %v", got)
	}
}

func TestFetchLogsMergesAddresses(t *testing.T) {
	ledger := newFakeLedger(100)
	ledger.addLog(unknownLog(12, 0, txHash(3)))
	ledger.addLog(transferLog(t, 12, 1, txHash(3), userAddress, otherAddress, 5))
	ledger.addLog(transferLog(t, 10, 4, txHash(1), userAddress, otherAddress, 5))
	ledger.addLog(transferLog(t, 99, 0, txHash(9), userAddress, otherAddress, 5))

	logs, err := FetchLogs(context.Background(), ledger, []common.Address{tokenAddress, eventsAddress}, BlockRange{From: 10, To: 50}, 7, RetryPolicy{}, nil)
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if len(logs) != 3 {
		t.Fatalf("expected 3 logs in range, got %d", len(logs))
	}
	ordered := sort.SliceIsSorted(logs, func(i, j int) bool {
		if logs[i].BlockNumber != logs[j].BlockNumber {
			return logs[i].BlockNumber < logs[j].BlockNumber
		}
		return logs[i].LogIndex < logs[j].LogIndex
	})
	if !ordered {
		t.Fatalf("logs not ordered: %+v", logs)
	}
	// 41 blocks in batches of 7 for two addresses.
	if ledger.filterCalls != 12 {
		t.Fatalf("expected 12 filter calls, got %d", ledger.filterCalls)
	}
}

func TestFetchLogsRejectsMalformed(t *testing.T) {
	ledger := newFakeLedger(100)
	bad := unknownLog(10, 0, "0x1234")
	ledger.addLog(bad)

	if _, err := FetchLogs(context.Background(), ledger, []common.Address{eventsAddress}, BlockRange{From: 1, To: 20}, 0, RetryPolicy{}, nil); err == nil {
		t.Fatalf("expected malformed log error")
	}
}

func TestDecodeLogsFallback(t *testing.T) {
	registry := newTestRegistry(t)
	locks := newTestLockSet(t)
	logs := []model.RawLog{
		unknownLog(10, 0, txHash(1)),
		transferLog(t, 10, 1, txHash(1), lockAddress, userAddress, 1000),
		transferLog(t, 11, 0, txHash(2), userAddress, otherAddress, 1000),
	}

	var report model.CycleReport
	events := DecodeLogs(registry, locks, logs, &report)

	if report.UnknownEvents != 1 || report.LockedEvents != 1 {
		t.Fatalf("unexpected counters: %+v", report)
	}

	unknown := events[0]
	if unknown.Name != model.UnknownEventName {
		t.Fatalf("expected unknown event, got %s", unknown.Name)
	}
	for i := 0; i < model.EventParamCount; i++ {
		p := unknown.Param(i)
		if p == nil || *p != model.UnknownParam {
			t.Fatalf("param %d should be the placeholder", i)
		}
	}
	if unknown.Hash != txHash(1) || unknown.BlockNumber != 10 {
		t.Fatalf("unknown event lost log metadata: %+v", unknown)
	}

	if !events[1].Locked() {
		t.Fatalf("transfer from lock address should be locked")
	}
	if *events[1].P0 != lockAddress.Hex() || *events[1].P2 != "1000" {
		t.Fatalf("transfer params mismatch: %s %s", *events[1].P0, *events[1].P2)
	}
	if events[2].IsLock != nil {
		t.Fatalf("plain transfer should leave isLock unset")
	}
}
