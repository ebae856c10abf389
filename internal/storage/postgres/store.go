package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"txTracker/internal/model"
)

// DefaultStateName keys the cursor row in indexer_state.
const DefaultStateName = "tracker"

// Store provides Postgres persistence for events, transactions and the cursor.
type Store struct {
	pool      *pgxpool.Pool
	stateName string
}

func NewStore(ctx context.Context, dsn string) (*Store, error) {
	if dsn == "" {
		return nil, fmt.Errorf("pg dsn is required")
	}
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, err
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return &Store{pool: pool, stateName: DefaultStateName}, nil
}

func (s *Store) Close() {
	if s.pool != nil {
		s.pool.Close()
	}
}

// Ping checks that a connection can be acquired.
func (s *Store) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// withConn runs fn on a pooled connection, releasing it on every path.
func (s *Store) withConn(ctx context.Context, fn func(conn *pgxpool.Conn) error) error {
	conn, err := s.pool.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()
	return fn(conn)
}

// InsertEvent inserts the event and sets its ID. Existing (tx_hash, log_index) rows are
// left untouched and their ID is returned with inserted=false.
func (s *Store) InsertEvent(ctx context.Context, event *model.Event) (bool, error) {
	if event == nil {
		return false, fmt.Errorf("nil event")
	}

	var inserted bool
	err := s.withConn(ctx, func(conn *pgxpool.Conn) error {
		var id int64
		err := conn.QueryRow(ctx, `
			INSERT INTO events (
				name, tx_hash, log_index, address, p0, p1, p2, p3, block_number, timestamp, is_lock
			) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)
			ON CONFLICT (tx_hash, log_index) DO NOTHING
			RETURNING id
		`,
			event.Name,
			event.Hash,
			int64(event.LogIndex),
			event.Address,
			event.P0,
			event.P1,
			event.P2,
			event.P3,
			int64(event.BlockNumber),
			int64(event.Timestamp),
			event.IsLock,
		).Scan(&id)
		if err == nil {
			event.ID = id
			inserted = true
			return nil
		}
		if !errors.Is(err, pgx.ErrNoRows) {
			return err
		}

		return conn.QueryRow(ctx,
			`SELECT id FROM events WHERE tx_hash=$1 AND log_index=$2`,
			event.Hash, int64(event.LogIndex),
		).Scan(&event.ID)
	})
	if err != nil {
		return false, fmt.Errorf("insert event %s:%d: %w", event.Hash, event.LogIndex, err)
	}
	return inserted, nil
}

// UpsertTransaction inserts or updates a transaction by hash.
func (s *Store) UpsertTransaction(ctx context.Context, tx model.Transaction) error {
	err := s.withConn(ctx, func(conn *pgxpool.Conn) error {
		_, err := conn.Exec(ctx, `
			INSERT INTO transactions (
				hash, block_hash, block_number, sender, recipient, data, value, gas_price, gas_limit, nonce,
				created_at, updated_at
			) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,now(),now())
			ON CONFLICT (hash)
			DO UPDATE SET
				block_hash = EXCLUDED.block_hash,
				block_number = EXCLUDED.block_number,
				sender = EXCLUDED.sender,
				recipient = EXCLUDED.recipient,
				data = EXCLUDED.data,
				value = EXCLUDED.value,
				gas_price = EXCLUDED.gas_price,
				gas_limit = EXCLUDED.gas_limit,
				nonce = EXCLUDED.nonce,
				updated_at = now()
		`,
			tx.Hash,
			tx.BlockHash,
			int64(tx.BlockNumber),
			tx.From,
			tx.To,
			tx.Data,
			tx.Value,
			tx.GasPrice,
			tx.GasLimit,
			int64(tx.Nonce),
		)
		return err
	})
	if err != nil {
		return fmt.Errorf("upsert transaction %s: %w", tx.Hash, err)
	}
	return nil
}

// LoadCursor returns the stored cursor. Databases populated before indexer_state existed
// fall back to the highest stored transaction block.
func (s *Store) LoadCursor(ctx context.Context) (model.CursorState, bool, error) {
	var (
		state                      model.CursorState
		last, failedFrom, failedTo int64
		failures                   int32
	)
	err := s.pool.QueryRow(ctx, `
		SELECT last_processed_block, failed_from, failed_to, failures
		FROM indexer_state WHERE name=$1
	`, s.stateName).Scan(&last, &failedFrom, &failedTo, &failures)
	if err == nil {
		state.LastProcessedBlock = uint64(last)
		state.FailedFrom = uint64(failedFrom)
		state.FailedTo = uint64(failedTo)
		state.Failures = int(failures)
		return state, true, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return model.CursorState{}, false, fmt.Errorf("load cursor: %w", err)
	}

	var maxBlock *int64
	if err := s.pool.QueryRow(ctx, `SELECT MAX(block_number) FROM transactions`).Scan(&maxBlock); err != nil {
		return model.CursorState{}, false, fmt.Errorf("derive cursor: %w", err)
	}
	if maxBlock == nil {
		return model.CursorState{}, false, nil
	}
	return model.CursorState{LastProcessedBlock: uint64(*maxBlock)}, true, nil
}

// SaveCursor upserts the cursor row.
func (s *Store) SaveCursor(ctx context.Context, state model.CursorState) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO indexer_state (name, last_processed_block, failed_from, failed_to, failures, updated_at)
		VALUES ($1, $2, $3, $4, $5, now())
		ON CONFLICT (name) DO UPDATE
		SET last_processed_block = EXCLUDED.last_processed_block,
			failed_from = EXCLUDED.failed_from,
			failed_to = EXCLUDED.failed_to,
			failures = EXCLUDED.failures,
			updated_at = now()
	`, s.stateName, int64(state.LastProcessedBlock), int64(state.FailedFrom), int64(state.FailedTo), int32(state.Failures))
	if err != nil {
		return fmt.Errorf("save cursor: %w", err)
	}
	return nil
}
