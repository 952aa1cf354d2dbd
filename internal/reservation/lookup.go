package reservation

import (
	"context"

	"github.com/google/uuid"
	"github.com/tunbebong-creator/music-space/internal/domain"
)

// GetByCode finds a booking by its code, ignoring case. Results may be served
// from the cache and can lag status or sent_at changes by the cache TTL.
func (s *Service) GetByCode(ctx context.Context, code string) (*domain.BookingView, error) {
	code = domain.NormalizeCode(code)
	if code == "" {
		return nil, domain.ErrInvalidInput
	}

	if s.cache != nil {
		view, err := s.cache.GetBooking(ctx, code)
		if err != nil {
			s.logger.WithError(err).Warn("booking cache read")
		} else if view != nil {
			return view, nil
		}
	}

	view, err := s.store.GetByCode(ctx, code)
	if err != nil {
		return nil, err
	}

	if s.cache != nil {
		if err := s.cache.SetBooking(ctx, *view); err != nil {
			s.logger.WithError(err).Warn("booking cache write")
		}
	}
	return view, nil
}

func (s *Service) GetByID(ctx context.Context, id uuid.UUID) (*domain.BookingView, error) {
	return s.store.GetByID(ctx, id)
}

// List returns every booking, newest first.
func (s *Service) List(ctx context.Context) ([]domain.BookingView, error) {
	return s.store.List(ctx)
}

// Availability reads the ledger without locking. The figure is advisory; only
// Reserve decides under the lock.
func (s *Service) Availability(ctx context.Context, slug string) (*domain.Availability, error) {
	ev, err := s.store.GetEventBySlug(ctx, slug)
	if err != nil {
		return nil, err
	}
	booked, err := s.store.BookedQuantity(ctx, ev.ID)
	if err != nil {
		return nil, err
	}
	a := domain.NewAvailability(ev.Capacity, booked)
	return &a, nil
}

func (s *Service) invalidate(ctx context.Context, code string) {
	if s.cache == nil {
		return
	}
	if err := s.cache.InvalidateBooking(ctx, code); err != nil {
		s.logger.WithError(err).WithField("code", code).Warn("booking cache invalidate")
	}
}
