package indexer

import (
	"context"
	"fmt"
	"math/big"
	"sync"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"

	"txTracker/internal/model"
	"txTracker/internal/schema"
)

var (
	tokenAddress  = common.HexToAddress(schema.DefaultTokenAddress)
	eventsAddress = common.HexToAddress(schema.DefaultEventsAddress)
	lockAddress   = common.HexToAddress(DefaultLockAddresses[0])
	userAddress   = common.HexToAddress("0x1111111111111111111111111111111111111111")
	otherAddress  = common.HexToAddress("0x2222222222222222222222222222222222222222")
)

type fakeLedger struct {
	mu          sync.Mutex
	head        uint64
	logs        map[common.Address][]model.RawLog
	txs         map[string]model.TxDetail
	filterErr   error
	onFilter    func()
	txErr       error
	filterCalls int
	txCalls     int
}

func newFakeLedger(head uint64) *fakeLedger {
	return &fakeLedger{
		head: head,
		logs: make(map[common.Address][]model.RawLog),
		txs:  make(map[string]model.TxDetail),
	}
}

func (f *fakeLedger) LatestBlockNumber(context.Context) (uint64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.head, nil
}

func (f *fakeLedger) FilterLogs(_ context.Context, address common.Address, fromBlock, toBlock uint64) ([]model.RawLog, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.filterCalls++
	if f.onFilter != nil {
		f.onFilter()
	}
	if f.filterErr != nil {
		return nil, f.filterErr
	}
	out := make([]model.RawLog, 0)
	for _, log := range f.logs[address] {
		if log.BlockNumber >= fromBlock && log.BlockNumber <= toBlock {
			out = append(out, log)
		}
	}
	return out, nil
}

func (f *fakeLedger) BlockTimestamp(_ context.Context, blockHash string) (uint64, error) {
	hash := common.HexToHash(blockHash)
	return new(big.Int).SetBytes(hash[24:]).Uint64() * 10, nil
}

func (f *fakeLedger) Transaction(_ context.Context, txHash string) (model.TxDetail, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.txCalls++
	if f.txErr != nil {
		return model.TxDetail{}, f.txErr
	}
	detail, ok := f.txs[txHash]
	if !ok {
		return model.TxDetail{}, fmt.Errorf("transaction %s not found", txHash)
	}
	return detail, nil
}

func (f *fakeLedger) addLog(log model.RawLog) {
	address := common.HexToAddress(log.Address)
	f.logs[address] = append(f.logs[address], log)
}

// addTx registers a transaction mined in block. A nil to marks a contract creation.
func (f *fakeLedger) addTx(hash string, block uint64, to *common.Address, value *big.Int) {
	detail := model.TxDetail{
		Hash:        hash,
		BlockHash:   blockHash(block),
		BlockNumber: block,
		From:        userAddress.Hex(),
		Data:        "0x",
		Value:       value,
		GasPrice:    big.NewInt(20_000_000_000),
		GasLimit:    90000,
		Nonce:       1,
	}
	if to != nil {
		addr := to.Hex()
		detail.To = &addr
	}
	f.txs[hash] = detail
}

func newTestRegistry(t *testing.T) *schema.Registry {
	t.Helper()

	token, err := schema.LoadContract(schema.DefaultTokenAddress, "", schema.TokenABI)
	if err != nil {
		t.Fatalf("load token contract: %v", err)
	}
	events, err := schema.LoadContract(schema.DefaultEventsAddress, "", schema.EventsABI)
	if err != nil {
		t.Fatalf("load events contract: %v", err)
	}
	registry, err := schema.NewRegistry([]schema.Contract{token, events})
	if err != nil {
		t.Fatalf("new registry: %v", err)
	}
	return registry
}

func newTestLockSet(t *testing.T) *LockSet {
	t.Helper()

	set, err := NewLockSet(DefaultLockAddresses)
	if err != nil {
		t.Fatalf("new lock set: %v", err)
	}
	return set
}

func txHash(n uint64) string {
	return common.BigToHash(new(big.Int).SetUint64(0xabc000 + n)).Hex()
}

func blockHash(block uint64) string {
	return common.BigToHash(new(big.Int).SetUint64(block)).Hex()
}

func transferLog(t *testing.T, block, logIndex uint64, tx string, from, to common.Address, amount int64) model.RawLog {
	t.Helper()

	parsed, err := schema.TokenABI()
	if err != nil {
		t.Fatalf("token abi: %v", err)
	}
	event := parsed.Events["Transfer"]
	data, err := event.Inputs.NonIndexed().Pack(big.NewInt(amount))
	if err != nil {
		t.Fatalf("pack transfer: %v", err)
	}

	return model.RawLog{
		BlockNumber: block,
		BlockHash:   blockHash(block),
		TxHash:      tx,
		LogIndex:    logIndex,
		Address:     tokenAddress.Hex(),
		Topics: []string{
			event.ID.Hex(),
			common.BytesToHash(from.Bytes()).Hex(),
			common.BytesToHash(to.Bytes()).Hex(),
		},
		Data: hexutil.Encode(data),
	}
}

func unknownLog(block, logIndex uint64, tx string) model.RawLog {
	return model.RawLog{
		BlockNumber: block,
		BlockHash:   blockHash(block),
		TxHash:      tx,
		LogIndex:    logIndex,
		Address:     eventsAddress.Hex(),
		Topics:      []string{common.HexToHash("0xdeadbeef").Hex()},
		Data:        "0x",
	}
}
