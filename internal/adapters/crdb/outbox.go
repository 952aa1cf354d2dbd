package crdb

import (
	"context"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
)

type OutboxRecord struct {
	ID            uuid.UUID
	AggregateType string
	AggregateID   uuid.UUID
	EventType     string
	Payload       []byte
	CreatedAt     time.Time
	PublishedAt   *time.Time
	Status        string // NEW, PUBLISHED, FAILED
	DedupeKey     string
}

// RelayResult summarises one relay batch.
type RelayResult struct {
	Published int
	Failed    int
	Oldest    time.Time
}

// RelayOutbox claims up to limit NEW records with SKIP LOCKED, hands each to
// publish and marks the ones that were published. Records whose publish
// failed stay NEW and are retried by the next batch. Concurrent relays never
// see the same record.
func (r *Repository) RelayOutbox(ctx context.Context, limit int, publish func(ctx context.Context, rec OutboxRecord) error) (RelayResult, error) {
	var res RelayResult

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return res, errors.Wrap(err, "begin relay tx")
	}
	defer tx.Rollback(ctx)

	rows, err := tx.Query(ctx, `
		SELECT id, aggregate_type, aggregate_id, event_type, payload_json, created_at, published_at, status, dedupe_key
		FROM outbox WHERE status = 'NEW' ORDER BY created_at ASC LIMIT $1 FOR UPDATE SKIP LOCKED
	`, limit)
	if err != nil {
		return res, err
	}
	var records []OutboxRecord
	for rows.Next() {
		var rec OutboxRecord
		err := rows.Scan(&rec.ID, &rec.AggregateType, &rec.AggregateID, &rec.EventType, &rec.Payload, &rec.CreatedAt, &rec.PublishedAt, &rec.Status, &rec.DedupeKey)
		if err != nil {
			rows.Close()
			return res, err
		}
		records = append(records, rec)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return res, err
	}

	for _, rec := range records {
		if res.Oldest.IsZero() || rec.CreatedAt.Before(res.Oldest) {
			res.Oldest = rec.CreatedAt
		}
		if err := publish(ctx, rec); err != nil {
			res.Failed++
			continue
		}
		if _, err := tx.Exec(ctx, `
			UPDATE outbox SET status = 'PUBLISHED', published_at = now() WHERE id = $1
		`, rec.ID); err != nil {
			return res, err
		}
		res.Published++
	}

	if err := tx.Commit(ctx); err != nil {
		return res, errors.Wrap(err, "commit relay tx")
	}
	return res, nil
}

// PendingOutbox counts records still waiting to be relayed.
func (r *Repository) PendingOutbox(ctx context.Context) (int, error) {
	var n int64
	err := r.pool.QueryRow(ctx, `SELECT count(*) FROM outbox WHERE status = 'NEW'`).Scan(&n)
	return int(n), err
}
