package chain

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/ethereum/go-ethereum/rpc"
	"golang.org/x/time/rate"

	"txTracker/internal/metrics"
	"txTracker/internal/model"
)

const maxCachedTimestamps = 100_000

// ErrPendingTransaction is returned for transactions not yet included in a block.
var ErrPendingTransaction = errors.New("transaction is pending")

// Client wraps go-ethereum RPC and provides the ledger reads used by the tracker.
type Client struct {
	rpcClient *rpc.Client
	ethClient *ethclient.Client
	limiter   *rate.Limiter

	mu      sync.RWMutex
	tsCache map[common.Hash]uint64
}

// NewClient creates a new chain client from the RPC URL. A non-positive rps disables
// rate limiting.
func NewClient(ctx context.Context, rpcURL string, rps float64) (*Client, error) {
	rpcClient, err := rpc.DialContext(ctx, rpcURL)
	if err != nil {
		return nil, err
	}

	limiter := rate.NewLimiter(rate.Inf, 1)
	if rps > 0 {
		burst := int(rps)
		if burst < 1 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(rps), burst)
	}

	return &Client{
		rpcClient: rpcClient,
		ethClient: ethclient.NewClient(rpcClient),
		limiter:   limiter,
		tsCache:   make(map[common.Hash]uint64),
	}, nil
}

// Close closes the underlying RPC client.
func (c *Client) Close() {
	if c.rpcClient != nil {
		c.rpcClient.Close()
	}
}

func (c *Client) wait(ctx context.Context) error {
	if c.limiter == nil {
		return nil
	}
	return c.limiter.Wait(ctx)
}

// LatestBlockNumber returns the chain head height.
func (c *Client) LatestBlockNumber(ctx context.Context) (uint64, error) {
	if err := c.wait(ctx); err != nil {
		return 0, err
	}
	number, err := c.ethClient.BlockNumber(ctx)
	metrics.RecordRPCCall("eth_blockNumber", err)
	return number, err
}

// BlockTimestamp returns the timestamp of the block with the given hash, using an
// in-memory cache.
func (c *Client) BlockTimestamp(ctx context.Context, blockHash string) (uint64, error) {
	hash, err := parseHash(blockHash)
	if err != nil {
		return 0, err
	}

	c.mu.RLock()
	ts, ok := c.tsCache[hash]
	c.mu.RUnlock()
	if ok {
		return ts, nil
	}

	if err := c.wait(ctx); err != nil {
		return 0, err
	}
	header, err := c.ethClient.HeaderByHash(ctx, hash)
	metrics.RecordRPCCall("eth_getBlockByHash", err)
	if err != nil {
		return 0, fmt.Errorf("header %s: %w", blockHash, err)
	}

	ts = header.Time
	c.mu.Lock()
	if len(c.tsCache) >= maxCachedTimestamps {
		c.tsCache = make(map[common.Hash]uint64)
	}
	c.tsCache[hash] = ts
	c.mu.Unlock()

	return ts, nil
}

// FilterLogs returns the logs emitted by address in the given inclusive range.
// Logs removed by a reorganization are dropped.
func (c *Client) FilterLogs(ctx context.Context, address common.Address, fromBlock, toBlock uint64) ([]model.RawLog, error) {
	if err := c.wait(ctx); err != nil {
		return nil, err
	}
	logs, err := c.ethClient.FilterLogs(ctx, ethereum.FilterQuery{
		FromBlock: new(big.Int).SetUint64(fromBlock),
		ToBlock:   new(big.Int).SetUint64(toBlock),
		Addresses: []common.Address{address},
	})
	metrics.RecordRPCCall("eth_getLogs", err)
	if err != nil {
		return nil, err
	}

	records := make([]model.RawLog, 0, len(logs))
	for _, log := range logs {
		if log.Removed {
			continue
		}
		records = append(records, buildRawLog(log))
	}
	return records, nil
}

// Transaction fetches a mined transaction by hash.
func (c *Client) Transaction(ctx context.Context, txHash string) (model.TxDetail, error) {
	hash, err := parseHash(txHash)
	if err != nil {
		return model.TxDetail{}, err
	}
	if err := c.wait(ctx); err != nil {
		return model.TxDetail{}, err
	}

	var raw *rpcTransaction
	err = c.rpcClient.CallContext(ctx, &raw, "eth_getTransactionByHash", hash)
	metrics.RecordRPCCall("eth_getTransactionByHash", err)
	if err != nil {
		return model.TxDetail{}, err
	}
	if raw == nil {
		return model.TxDetail{}, fmt.Errorf("transaction %s: %w", txHash, ethereum.NotFound)
	}
	return raw.toDetail()
}

func buildRawLog(log types.Log) model.RawLog {
	topics := make([]string, 0, len(log.Topics))
	for _, topic := range log.Topics {
		topics = append(topics, topic.Hex())
	}

	return model.RawLog{
		BlockNumber: log.BlockNumber,
		BlockHash:   log.BlockHash.Hex(),
		TxHash:      log.TxHash.Hex(),
		LogIndex:    uint64(log.Index),
		Address:     log.Address.Hex(),
		Topics:      topics,
		Data:        hexutil.Encode(log.Data),
	}
}

func parseHash(input string) (common.Hash, error) {
	data, err := hexutil.Decode(input)
	if err != nil {
		return common.Hash{}, fmt.Errorf("invalid hash %q: %w", input, err)
	}
	if len(data) != common.HashLength {
		return common.Hash{}, fmt.Errorf("invalid hash length %q", input)
	}
	return common.BytesToHash(data), nil
}
