package crdb

import (
	"context"

	"github.com/cockroachdb/errors"
	"github.com/tunbebong-creator/music-space/internal/domain"
)

var schema = []string{
	`CREATE TABLE IF NOT EXISTS events (
		id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
		slug TEXT NOT NULL UNIQUE,
		title TEXT NOT NULL,
		start_time TIMESTAMPTZ NOT NULL,
		end_time TIMESTAMPTZ NULL,
		capacity INT NULL,
		price_cents INT8 NOT NULL DEFAULT 0 CHECK (price_cents >= 0),
		currency TEXT NOT NULL DEFAULT 'VND',
		venue_name TEXT NULL,
		city TEXT NULL,
		created_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE UNIQUE INDEX IF NOT EXISTS events_slug_lower_idx ON events (lower(slug))`,
	`CREATE TABLE IF NOT EXISTS bookings (
		id UUID PRIMARY KEY,
		event_id UUID NOT NULL REFERENCES events (id),
		code TEXT NOT NULL UNIQUE,
		quantity INT NOT NULL CHECK (quantity >= 1),
		amount_cents INT8 NOT NULL CHECK (amount_cents >= 0),
		method TEXT NOT NULL DEFAULT 'cash',
		status TEXT NOT NULL DEFAULT 'pending'
			CHECK (status IN ('pending', 'confirmed', 'cancelled', 'checked_in')),
		customer_name TEXT NOT NULL,
		customer_email TEXT NULL,
		customer_phone TEXT NOT NULL,
		created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
		updated_at TIMESTAMPTZ NOT NULL DEFAULT now(),
		sent_at TIMESTAMPTZ NULL
	)`,
	`CREATE INDEX IF NOT EXISTS bookings_event_status_idx ON bookings (event_id, status)`,
	`CREATE TABLE IF NOT EXISTS outbox (
		id UUID PRIMARY KEY,
		aggregate_type TEXT NOT NULL,
		aggregate_id UUID NOT NULL,
		event_type TEXT NOT NULL,
		payload_json JSONB NOT NULL,
		created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
		published_at TIMESTAMPTZ NULL,
		status TEXT NOT NULL DEFAULT 'NEW' CHECK (status IN ('NEW', 'PUBLISHED', 'FAILED')),
		dedupe_key TEXT NOT NULL UNIQUE
	)`,
	`CREATE INDEX IF NOT EXISTS outbox_status_created_idx ON outbox (status, created_at)`,
}

// Migrate creates the tables the repository needs. It is idempotent.
func (r *Repository) Migrate(ctx context.Context) error {
	for _, stmt := range schema {
		if _, err := r.pool.Exec(ctx, stmt); err != nil {
			return errors.Wrap(err, "migrate")
		}
	}
	return nil
}

// SeedEvent inserts an event. Event management belongs to the catalog, so
// this exists for tests and local tooling only.
func (r *Repository) SeedEvent(ctx context.Context, ev domain.Event) error {
	var capacity *int
	if ev.Capacity > 0 {
		capacity = &ev.Capacity
	}
	currency := ev.Currency
	if currency == "" {
		currency = "VND"
	}
	_, err := r.pool.Exec(ctx, `
		INSERT INTO events (id, slug, title, start_time, end_time, capacity, price_cents, currency, venue_name, city)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, NULLIF($9, ''), NULLIF($10, ''))
	`, ev.ID, ev.Slug, ev.Title, ev.StartTime, ev.EndTime, capacity, ev.PriceCents, currency, ev.VenueName, ev.City)
	return err
}

// SetEventPrice changes the current list price. Existing bookings keep the
// amount they were created with.
func (r *Repository) SetEventPrice(ctx context.Context, slug string, priceCents int64) error {
	result, err := r.pool.Exec(ctx, `UPDATE events SET price_cents = $2 WHERE lower(slug) = lower($1)`, slug, priceCents)
	if err != nil {
		return err
	}
	if result.RowsAffected() == 0 {
		return domain.ErrEventNotFound
	}
	return nil
}
