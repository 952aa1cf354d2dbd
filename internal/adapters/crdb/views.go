package crdb

import (
	"context"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/tunbebong-creator/music-space/internal/domain"
)

const viewQuery = `
	SELECT b.id, b.event_id, b.code, b.quantity, b.amount_cents, b.method, b.status,
		b.customer_name, COALESCE(b.customer_email, ''), b.customer_phone,
		b.created_at, b.updated_at, b.sent_at,
		e.id, e.slug, e.title, e.start_time, e.end_time, COALESCE(e.capacity, 0), e.price_cents,
		e.currency, COALESCE(e.venue_name, ''), COALESCE(e.city, '')
	FROM bookings b
	JOIN events e ON e.id = b.event_id`

func scanView(row pgx.Row) (*domain.BookingView, error) {
	var (
		v      domain.BookingView
		status string
	)
	err := row.Scan(
		&v.ID, &v.EventID, &v.Code, &v.Quantity, &v.AmountCents, &v.Method, &status,
		&v.Customer.Name, &v.Customer.Email, &v.Customer.Phone,
		&v.CreatedAt, &v.UpdatedAt, &v.SentAt,
		&v.Event.ID, &v.Event.Slug, &v.Event.Title, &v.Event.StartTime, &v.Event.EndTime,
		&v.Event.Capacity, &v.Event.PriceCents, &v.Event.Currency, &v.Event.VenueName, &v.Event.City,
	)
	if err != nil {
		return nil, err
	}
	v.Status = domain.Status(status)
	return &v, nil
}

func (r *Repository) getView(ctx context.Context, where string, arg any) (*domain.BookingView, error) {
	v, err := scanView(r.pool.QueryRow(ctx, viewQuery+" WHERE "+where+" LIMIT 1", arg))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	return v, err
}

// GetByCode matches codes case-insensitively. Stored codes are upper-case so
// the comparison is done on the upper-cased argument.
func (r *Repository) GetByCode(ctx context.Context, code string) (*domain.BookingView, error) {
	return r.getView(ctx, "b.code = upper($1)", code)
}

func (r *Repository) GetByID(ctx context.Context, id uuid.UUID) (*domain.BookingView, error) {
	return r.getView(ctx, "b.id = $1", id)
}

func (r *Repository) List(ctx context.Context) ([]domain.BookingView, error) {
	rows, err := r.pool.Query(ctx, viewQuery+" ORDER BY b.created_at DESC")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	views := []domain.BookingView{}
	for rows.Next() {
		v, err := scanView(rows)
		if err != nil {
			return nil, err
		}
		views = append(views, *v)
	}
	return views, rows.Err()
}

func (r *Repository) GetEventBySlug(ctx context.Context, slug string) (*domain.Event, error) {
	ev, err := scanEvent(r.pool.QueryRow(ctx, `
		SELECT `+eventColumns+`
		FROM events WHERE lower(slug) = lower($1)
		LIMIT 1
	`, slug))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrEventNotFound
	}
	return ev, err
}

func (r *Repository) BookedQuantity(ctx context.Context, eventID uuid.UUID) (int, error) {
	return bookedQuantity(ctx, r.pool, eventID)
}

func (r *Repository) MarkSent(ctx context.Context, id uuid.UUID, at time.Time) error {
	result, err := r.pool.Exec(ctx, `UPDATE bookings SET sent_at = $2 WHERE id = $1`, id, at)
	if err != nil {
		return err
	}
	if result.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}
