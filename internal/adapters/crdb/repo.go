package crdb

import (
	"context"
	"fmt"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/tunbebong-creator/music-space/internal/domain"
	"github.com/tunbebong-creator/music-space/internal/ports"
)

const (
	SerializationFailureCode = "40001"
	LockNotAvailableCode     = "55P03"

	defaultLockTimeout = 5 * time.Second
)

type Repository struct {
	pool        *pgxpool.Pool
	lockTimeout time.Duration
}

func NewRepository(pool *pgxpool.Pool, lockTimeout time.Duration) *Repository {
	if lockTimeout <= 0 {
		lockTimeout = defaultLockTimeout
	}
	return &Repository{pool: pool, lockTimeout: lockTimeout}
}

var _ ports.BookingStore = (*Repository)(nil)

// WithTx runs fn in a SERIALIZABLE transaction whose lock waits are bounded
// by the repository lock timeout. The transaction is rolled back unless fn
// returns nil and the commit succeeds.
func (r *Repository) WithTx(ctx context.Context, fn func(tx ports.BookingTx) error) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return errors.Wrap(err, "begin tx")
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, "SET TRANSACTION ISOLATION LEVEL SERIALIZABLE"); err != nil {
		return mapErr(err)
	}
	if _, err := tx.Exec(ctx, fmt.Sprintf("SET LOCAL lock_timeout = '%dms'", r.lockTimeout.Milliseconds())); err != nil {
		return mapErr(err)
	}

	if err := fn(&txRepo{tx: tx}); err != nil {
		return mapErr(err)
	}
	return mapErr(tx.Commit(ctx))
}

// mapErr marks retryable serialization aborts and lock timeouts so callers can
// match them with errors.Is while the driver detail stays attached.
func mapErr(err error) error {
	if err == nil {
		return nil
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case SerializationFailureCode:
			return errors.Mark(err, domain.ErrSerializationFailure)
		case LockNotAvailableCode:
			return errors.Mark(errors.Wrap(err, "lock wait timeout"), domain.ErrLockTimeout)
		}
	}
	return err
}

func (r *Repository) Ping(ctx context.Context) error {
	return r.pool.Ping(ctx)
}

type txRepo struct {
	tx pgx.Tx
}

const eventColumns = `id, slug, title, start_time, end_time, COALESCE(capacity, 0), price_cents,
	currency, COALESCE(venue_name, ''), COALESCE(city, '')`

func (t *txRepo) LockEventBySlug(ctx context.Context, slug string) (*domain.Event, error) {
	row := t.tx.QueryRow(ctx, `
		SELECT `+eventColumns+`
		FROM events WHERE lower(slug) = lower($1)
		LIMIT 1
		FOR UPDATE
	`, slug)
	ev, err := scanEvent(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrEventNotFound
	}
	return ev, err
}

func (t *txRepo) BookedQuantity(ctx context.Context, eventID uuid.UUID) (int, error) {
	return bookedQuantity(ctx, t.tx, eventID)
}

func (t *txRepo) InsertBooking(ctx context.Context, b domain.Booking) (bool, error) {
	var id uuid.UUID
	err := t.tx.QueryRow(ctx, `
		INSERT INTO bookings (id, event_id, code, quantity, amount_cents, method, status,
			customer_name, customer_email, customer_phone, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		ON CONFLICT (code) DO NOTHING
		RETURNING id
	`, b.ID, b.EventID, b.Code, b.Quantity, b.AmountCents, b.Method, string(b.Status),
		b.Customer.Name, b.Customer.Email, b.Customer.Phone, b.CreatedAt, b.UpdatedAt).Scan(&id)
	if errors.Is(err, pgx.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

func (t *txRepo) UpdateStatus(ctx context.Context, id uuid.UUID, status domain.Status, at time.Time) error {
	result, err := t.tx.Exec(ctx, `
		UPDATE bookings SET status = $2, updated_at = $3 WHERE id = $1
	`, id, string(status), at)
	if err != nil {
		return err
	}
	if result.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (t *txRepo) InsertOutbox(ctx context.Context, msg domain.OutboxMessage) error {
	_, err := t.tx.Exec(ctx, `
		INSERT INTO outbox (id, aggregate_type, aggregate_id, event_type, payload_json, status, dedupe_key)
		VALUES ($1, $2, $3, $4, $5, 'NEW', $6)
	`, msg.ID, msg.AggregateType, msg.AggregateID, msg.EventType, msg.Payload, msg.DedupeKey)
	return err
}

type querier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

func bookedQuantity(ctx context.Context, q querier, eventID uuid.UUID) (int, error) {
	var booked int64
	err := q.QueryRow(ctx, `
		SELECT COALESCE(SUM(quantity), 0)::INT8
		FROM bookings WHERE event_id = $1 AND status <> 'cancelled'
	`, eventID).Scan(&booked)
	return int(booked), err
}

func scanEvent(row pgx.Row) (*domain.Event, error) {
	var ev domain.Event
	err := row.Scan(&ev.ID, &ev.Slug, &ev.Title, &ev.StartTime, &ev.EndTime, &ev.Capacity,
		&ev.PriceCents, &ev.Currency, &ev.VenueName, &ev.City)
	if err != nil {
		return nil, err
	}
	return &ev, nil
}
