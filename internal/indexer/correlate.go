package indexer

import (
	"context"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"golang.org/x/sync/errgroup"

	"txTracker/internal/model"
)

// ResolveTimestamps sets each event's timestamp from its block. Lookups run in parallel,
// one per distinct block hash; the first error cancels the rest.
func ResolveTimestamps(ctx context.Context, ledger Ledger, events []model.Event, concurrency int, retry RetryPolicy) error {
	blockHashes := make([]string, 0)
	positions := make(map[string]int)
	for _, e := range events {
		if _, ok := positions[e.BlockHash]; ok {
			continue
		}
		positions[e.BlockHash] = len(blockHashes)
		blockHashes = append(blockHashes, e.BlockHash)
	}

	timestamps := make([]uint64, len(blockHashes))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(limit(concurrency))
	for i, hash := range blockHashes {
		i, hash := i, hash
		g.Go(func() error {
			return retry.do(gctx, func(ctx context.Context) error {
				ts, err := ledger.BlockTimestamp(ctx, hash)
				if err != nil {
					return fmt.Errorf("block %s: %w", hash, err)
				}
				timestamps[i] = ts
				return nil
			})
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	for i := range events {
		events[i].Timestamp = timestamps[positions[events[i].BlockHash]]
	}
	return nil
}

// GroupByHash returns the distinct transaction hashes in order of first appearance and
// the events sharing each hash.
func GroupByHash(events []model.Event) ([]string, map[string][]model.Event) {
	order := make([]string, 0)
	groups := make(map[string][]model.Event)
	for _, e := range events {
		if _, ok := groups[e.Hash]; !ok {
			order = append(order, e.Hash)
		}
		groups[e.Hash] = append(groups[e.Hash], e)
	}
	return order, groups
}

// Correlate fetches the detail of every distinct transaction behind events and attaches
// the events sharing its hash.
func Correlate(ctx context.Context, ledger Ledger, events []model.Event, concurrency int, retry RetryPolicy) ([]model.Transaction, error) {
	order, groups := GroupByHash(events)

	details := make([]model.TxDetail, len(order))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(limit(concurrency))
	for i, hash := range order {
		i, hash := i, hash
		g.Go(func() error {
			return retry.do(gctx, func(ctx context.Context) error {
				detail, err := ledger.Transaction(ctx, hash)
				if err != nil {
					return fmt.Errorf("transaction %s: %w", hash, err)
				}
				if !strings.EqualFold(detail.Hash, hash) {
					return fmt.Errorf("transaction %s: ledger returned %s", hash, detail.Hash)
				}
				details[i] = detail
				return nil
			})
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	txs := make([]model.Transaction, 0, len(order))
	for i, hash := range order {
		tx := buildTransaction(details[i], groups[hash])
		tx.Hash = hash
		txs = append(txs, tx)
	}
	return txs, nil
}

func buildTransaction(detail model.TxDetail, events []model.Event) model.Transaction {
	to := model.NoRecipient
	if detail.To != nil && *detail.To != "" {
		to = *detail.To
	}
	data := detail.Data
	if data == "" {
		data = "0x"
	}

	return model.Transaction{
		Hash:        detail.Hash,
		BlockHash:   detail.BlockHash,
		BlockNumber: detail.BlockNumber,
		To:          to,
		Data:        data,
		From:        detail.From,
		GasLimit:    hexutil.EncodeUint64(detail.GasLimit),
		GasPrice:    encodeBig(detail.GasPrice),
		Nonce:       detail.Nonce,
		Value:       encodeBig(detail.Value),
		Events:      append([]model.Event(nil), events...),
	}
}

func encodeBig(v *big.Int) string {
	if v == nil {
		return "0x0"
	}
	return hexutil.EncodeBig(v)
}

func limit(concurrency int) int {
	if concurrency <= 0 {
		return 1
	}
	return concurrency
}
