package indexer

import (
	"context"

	"go.uber.org/zap"

	"txTracker/internal/metrics"
	"txTracker/internal/model"
	"txTracker/internal/storage"
)

// PersistEvents inserts every event, recording per-item outcomes in report. A failed
// insert does not stop the remaining ones.
func PersistEvents(ctx context.Context, writer storage.Writer, events []model.Event, report *model.CycleReport, logger *zap.Logger) {
	for i := range events {
		inserted, err := writer.InsertEvent(ctx, &events[i])
		switch {
		case err != nil:
			report.EventsFailed++
			metrics.EventsTotal.WithLabelValues("failed").Inc()
			logger.Error("persist event failed",
				zap.Error(err),
				zap.String("tx_hash", events[i].Hash),
				zap.Uint64("log_index", events[i].LogIndex),
			)
		case inserted:
			report.EventsInserted++
			metrics.EventsTotal.WithLabelValues("inserted").Inc()
		default:
			report.EventsDuplicate++
			metrics.EventsTotal.WithLabelValues("duplicate").Inc()
		}
	}
}

// PersistTransactions upserts every transaction, recording per-item outcomes in report.
func PersistTransactions(ctx context.Context, writer storage.Writer, txs []model.Transaction, report *model.CycleReport, logger *zap.Logger) {
	for _, tx := range txs {
		if err := writer.UpsertTransaction(ctx, tx); err != nil {
			report.TransactionsFailed++
			metrics.TransactionsTotal.WithLabelValues("failed").Inc()
			logger.Error("persist transaction failed", zap.Error(err), zap.String("tx_hash", tx.Hash))
			continue
		}
		report.TransactionsSaved++
		metrics.TransactionsTotal.WithLabelValues("saved").Inc()
	}
}
