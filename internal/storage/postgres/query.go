package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"txTracker/internal/model"
)

const eventColumns = `id, name, tx_hash, log_index, address, p0, p1, p2, p3, block_number, timestamp, is_lock`

// ListTransactions returns a page of transactions by block number descending with their
// events attached in id order.
func (s *Store) ListTransactions(ctx context.Context, to string, skip, take int) ([]model.Transaction, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT hash, block_hash, block_number, sender, recipient, data, value, gas_price, gas_limit, nonce
		FROM transactions
		WHERE ($1 = '' OR recipient = $1)
		ORDER BY block_number DESC, hash
		OFFSET $2 LIMIT $3
	`, to, skip, take)
	if err != nil {
		return nil, fmt.Errorf("query transactions: %w", err)
	}
	defer rows.Close()

	txs := make([]model.Transaction, 0)
	hashes := make([]string, 0)
	for rows.Next() {
		var (
			tx                 model.Transaction
			blockNumber, nonce int64
		)
		if err := rows.Scan(
			&tx.Hash,
			&tx.BlockHash,
			&blockNumber,
			&tx.From,
			&tx.To,
			&tx.Data,
			&tx.Value,
			&tx.GasPrice,
			&tx.GasLimit,
			&nonce,
		); err != nil {
			return nil, fmt.Errorf("scan transaction: %w", err)
		}
		tx.BlockNumber = uint64(blockNumber)
		tx.Nonce = uint64(nonce)
		tx.Events = make([]model.Event, 0)
		txs = append(txs, tx)
		hashes = append(hashes, tx.Hash)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate transactions: %w", err)
	}
	if len(txs) == 0 {
		return txs, nil
	}

	events, err := s.queryEvents(ctx, `SELECT `+eventColumns+` FROM events WHERE tx_hash = ANY($1) ORDER BY id`, hashes)
	if err != nil {
		return nil, err
	}

	index := make(map[string]int, len(txs))
	for i, tx := range txs {
		index[tx.Hash] = i
	}
	for _, e := range events {
		if i, ok := index[e.Hash]; ok {
			txs[i].Events = append(txs[i].Events, e)
		}
	}
	return txs, nil
}

// LockedEvents returns events classified as locked, ascending by block number.
func (s *Store) LockedEvents(ctx context.Context) ([]model.Event, error) {
	return s.queryEvents(ctx, `SELECT `+eventColumns+` FROM events WHERE is_lock ORDER BY block_number, id`)
}

// EventsWithP1 returns events whose p1 equals value, ascending by block number.
func (s *Store) EventsWithP1(ctx context.Context, value string) ([]model.Event, error) {
	return s.queryEvents(ctx, `SELECT `+eventColumns+` FROM events WHERE p1 = $1 ORDER BY block_number, id`, value)
}

func (s *Store) queryEvents(ctx context.Context, sql string, args ...interface{}) ([]model.Event, error) {
	rows, err := s.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("query events: %w", err)
	}
	defer rows.Close()

	events := make([]model.Event, 0)
	for rows.Next() {
		e, err := scanEvent(rows)
		if err != nil {
			return nil, err
		}
		events = append(events, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate events: %w", err)
	}
	return events, nil
}

func scanEvent(rows pgx.Rows) (model.Event, error) {
	var (
		e                             model.Event
		logIndex, blockNumber, tstamp int64
	)
	if err := rows.Scan(
		&e.ID,
		&e.Name,
		&e.Hash,
		&logIndex,
		&e.Address,
		&e.P0,
		&e.P1,
		&e.P2,
		&e.P3,
		&blockNumber,
		&tstamp,
		&e.IsLock,
	); err != nil {
		return model.Event{}, fmt.Errorf("scan event: %w", err)
	}
	e.LogIndex = uint64(logIndex)
	e.BlockNumber = uint64(blockNumber)
	e.Timestamp = uint64(tstamp)
	return e, nil
}
