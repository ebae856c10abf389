package storage

import (
	"context"

	"txTracker/internal/model"
)

// Writer persists ingested records one item at a time.
type Writer interface {
	// InsertEvent stores a new event and sets its ID. inserted is false when an event
	// with the same transaction hash and log index already exists.
	InsertEvent(ctx context.Context, event *model.Event) (inserted bool, err error)
	// UpsertTransaction inserts a transaction or updates the row with the same hash.
	UpsertTransaction(ctx context.Context, tx model.Transaction) error
}

// CursorStore holds the last fully processed block.
type CursorStore interface {
	LoadCursor(ctx context.Context) (model.CursorState, bool, error)
	SaveCursor(ctx context.Context, state model.CursorState) error
}

// Reader serves the read-only listings.
type Reader interface {
	// ListTransactions returns transactions ordered by block number descending, each with
	// its events. An empty to disables the recipient filter.
	ListTransactions(ctx context.Context, to string, skip, take int) ([]model.Transaction, error)
	LockedEvents(ctx context.Context) ([]model.Event, error)
	// EventsWithP1 returns events whose second parameter equals value.
	EventsWithP1(ctx context.Context, value string) ([]model.Event, error)
}

// Quarantine records windows skipped after repeated failures.
type Quarantine interface {
	PutQuarantine(record model.QuarantineRecord) error
}
