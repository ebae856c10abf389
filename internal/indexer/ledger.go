package indexer

import (
	"context"

	"github.com/ethereum/go-ethereum/common"

	"txTracker/internal/model"
)

// Ledger is the read capability the pipeline needs from the chain.
type Ledger interface {
	LatestBlockNumber(ctx context.Context) (uint64, error)
	FilterLogs(ctx context.Context, address common.Address, fromBlock, toBlock uint64) ([]model.RawLog, error)
	BlockTimestamp(ctx context.Context, blockHash string) (uint64, error)
	Transaction(ctx context.Context, txHash string) (model.TxDetail, error)
}

// Decoder turns raw logs into named events without failing.
type Decoder interface {
	DecodeOrUnknown(log model.RawLog) (model.Decoded, bool)
}
