package indexer

import (
	"context"
	"fmt"
	"sort"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"txTracker/internal/model"
)

// FetchLogs reads the logs of every address over window, one goroutine per address.
// batchSize splits the window into smaller eth_getLogs spans; zero means one request.
// The result is ordered by block number then log index.
func FetchLogs(ctx context.Context, ledger Ledger, addresses []common.Address, window BlockRange, batchSize uint64, retry RetryPolicy, logger *zap.Logger) ([]model.RawLog, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if batchSize == 0 {
		batchSize = window.To - window.From + 1
	}
	ranges, err := SplitRange(window.From, window.To, batchSize)
	if err != nil {
		return nil, err
	}

	perAddress := make([][]model.RawLog, len(addresses))
	g, gctx := errgroup.WithContext(ctx)
	for i, address := range addresses {
		i, address := i, address
		g.Go(func() error {
			for _, br := range ranges {
				var logs []model.RawLog
				err := retry.do(gctx, func(ctx context.Context) error {
					var err error
					logs, err = ledger.FilterLogs(ctx, address, br.From, br.To)
					if err != nil {
						logger.Warn("filter logs failed",
							zap.Error(err),
							zap.String("address", address.Hex()),
							zap.Uint64("from", br.From),
							zap.Uint64("to", br.To),
						)
					}
					return err
				})
				if err != nil {
					return fmt.Errorf("filter logs %s [%d, %d]: %w", address.Hex(), br.From, br.To, err)
				}
				for _, log := range logs {
					if err := log.Validate(); err != nil {
						return fmt.Errorf("malformed log from %s: %w", address.Hex(), err)
					}
				}
				perAddress[i] = append(perAddress[i], logs...)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	merged := make([]model.RawLog, 0)
	for _, logs := range perAddress {
		merged = append(merged, logs...)
	}
	sort.SliceStable(merged, func(i, j int) bool {
		if merged[i].BlockNumber != merged[j].BlockNumber {
			return merged[i].BlockNumber < merged[j].BlockNumber
		}
		return merged[i].LogIndex < merged[j].LogIndex
	})
	return merged, nil
}

// DecodeLogs decodes and classifies every log. Unknown logs become placeholder events.
func DecodeLogs(decoder Decoder, locks *LockSet, logs []model.RawLog, report *model.CycleReport) []model.Event {
	events := make([]model.Event, 0, len(logs))
	for _, log := range logs {
		decoded, known := decoder.DecodeOrUnknown(log)
		event := model.NewEvent(log, decoded)
		if !known && report != nil {
			report.UnknownEvents++
		}
		if locks.Classify(&event) && report != nil {
			report.LockedEvents++
		}
		events = append(events, event)
	}
	return events
}
