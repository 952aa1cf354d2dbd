// Package idempotency lets clients retry POST /bookings safely. The first
// request with a key claims it; later requests with the same key get the
// stored response instead of creating a second booking.
package idempotency

import (
	"context"
	"time"

	"github.com/cockroachdb/errors"
	redisadapter "github.com/tunbebong-creator/music-space/internal/adapters/redis"
)

const (
	MinKeyLength = 16
	MaxKeyLength = 128
)

var (
	ErrInProgress = errors.New("request with this idempotency key is in progress")
	ErrInvalidKey = errors.New("invalid idempotency key")
)

// Store is the persistence the service needs. redisadapter.Idempotency
// satisfies it.
type Store interface {
	Get(ctx context.Context, key string) (*redisadapter.IdempRecord, error)
	Claim(ctx context.Context, key string, ttl time.Duration) (bool, error)
	Set(ctx context.Context, key string, rec redisadapter.IdempRecord, ttl time.Duration) error
	Release(ctx context.Context, key string) error
}

type Idempotency struct {
	store Store
	ttl   time.Duration
}

func NewIdempotency(store Store, ttl time.Duration) *Idempotency {
	return &Idempotency{store: store, ttl: ttl}
}

type Response struct {
	Status int
	Body   []byte
}

func ValidKey(key string) bool {
	return len(key) >= MinKeyLength && len(key) <= MaxKeyLength
}

// Begin claims key. A nil response with nil error means the caller owns the
// key and must later call Complete or Abandon. A non-nil response is a
// replay of a finished request.
func (i *Idempotency) Begin(ctx context.Context, key string) (*Response, error) {
	if !ValidKey(key) {
		return nil, ErrInvalidKey
	}
	claimed, err := i.store.Claim(ctx, key, i.ttl)
	if err != nil {
		return nil, errors.Wrap(err, "claim idempotency key")
	}
	if claimed {
		return nil, nil
	}

	rec, err := i.store.Get(ctx, key)
	if err != nil {
		return nil, errors.Wrap(err, "read idempotency key")
	}
	if rec == nil || !rec.Done {
		return nil, ErrInProgress
	}
	return &Response{Status: rec.Status, Body: rec.Body}, nil
}

// Complete stores the final response for key.
func (i *Idempotency) Complete(ctx context.Context, key string, resp Response) error {
	return i.store.Set(ctx, key, redisadapter.IdempRecord{Done: true, Status: resp.Status, Body: resp.Body}, i.ttl)
}

// Abandon frees key so the request can be retried, used when the request
// failed on the server side.
func (i *Idempotency) Abandon(ctx context.Context, key string) error {
	return i.store.Release(ctx, key)
}
