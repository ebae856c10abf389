package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"txTracker/internal/model"
)

// Store is an in-process implementation of the storage interfaces.
type Store struct {
	mu        sync.Mutex
	nextID    int64
	events    []model.Event
	eventKeys map[string]int64
	txs       map[string]model.Transaction
	cursor    *model.CursorState

	// FailEvent and FailTransaction, when set, make the matching write fail.
	FailEvent       func(event model.Event) error
	FailTransaction func(tx model.Transaction) error
}

func NewStore() *Store {
	return &Store{
		eventKeys: make(map[string]int64),
		txs:       make(map[string]model.Transaction),
	}
}

func eventKey(txHash string, logIndex uint64) string {
	return fmt.Sprintf("%s:%d", txHash, logIndex)
}

// InsertEvent stores the event unless one with the same hash and log index exists.
func (s *Store) InsertEvent(_ context.Context, event *model.Event) (bool, error) {
	if event == nil {
		return false, fmt.Errorf("nil event")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.FailEvent != nil {
		if err := s.FailEvent(*event); err != nil {
			return false, err
		}
	}

	key := eventKey(event.Hash, event.LogIndex)
	if id, ok := s.eventKeys[key]; ok {
		event.ID = id
		return false, nil
	}

	s.nextID++
	event.ID = s.nextID
	s.eventKeys[key] = event.ID
	s.events = append(s.events, *event)
	return true, nil
}

// UpsertTransaction stores tx by hash. Events are not kept on the row.
func (s *Store) UpsertTransaction(_ context.Context, tx model.Transaction) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.FailTransaction != nil {
		if err := s.FailTransaction(tx); err != nil {
			return err
		}
	}

	tx.Events = nil
	s.txs[tx.Hash] = tx
	return nil
}

func (s *Store) LoadCursor(_ context.Context) (model.CursorState, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cursor == nil {
		return model.CursorState{}, false, nil
	}
	return *s.cursor, true, nil
}

func (s *Store) SaveCursor(_ context.Context, state model.CursorState) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.cursor = &state
	return nil
}

// ListTransactions returns transactions by block number descending, ties by hash.
func (s *Store) ListTransactions(_ context.Context, to string, skip, take int) ([]model.Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	txs := make([]model.Transaction, 0, len(s.txs))
	for _, tx := range s.txs {
		if to != "" && tx.To != to {
			continue
		}
		txs = append(txs, tx)
	}
	sort.Slice(txs, func(i, j int) bool {
		if txs[i].BlockNumber != txs[j].BlockNumber {
			return txs[i].BlockNumber > txs[j].BlockNumber
		}
		return txs[i].Hash < txs[j].Hash
	})

	if skip >= len(txs) {
		return []model.Transaction{}, nil
	}
	txs = txs[skip:]
	if take < len(txs) {
		txs = txs[:take]
	}

	for i := range txs {
		txs[i].Events = s.eventsForLocked(txs[i].Hash)
	}
	return txs, nil
}

func (s *Store) eventsForLocked(hash string) []model.Event {
	events := make([]model.Event, 0)
	for _, e := range s.events {
		if e.Hash == hash {
			events = append(events, e)
		}
	}
	return events
}

func (s *Store) LockedEvents(_ context.Context) ([]model.Event, error) {
	return s.filterEvents(func(e model.Event) bool { return e.Locked() }), nil
}

func (s *Store) EventsWithP1(_ context.Context, value string) ([]model.Event, error) {
	return s.filterEvents(func(e model.Event) bool { return e.P1 != nil && *e.P1 == value }), nil
}

func (s *Store) filterEvents(match func(model.Event) bool) []model.Event {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]model.Event, 0)
	for _, e := range s.events {
		if match(e) {
			out = append(out, e)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].BlockNumber < out[j].BlockNumber })
	return out
}

// Events returns a copy of all stored events in insertion order.
func (s *Store) Events() []model.Event {
	s.mu.Lock()
	defer s.mu.Unlock()

	return append([]model.Event(nil), s.events...)
}

// Transactions returns a copy of all stored transactions keyed by hash.
func (s *Store) Transactions() map[string]model.Transaction {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make(map[string]model.Transaction, len(s.txs))
	for k, v := range s.txs {
		out[k] = v
	}
	return out
}
