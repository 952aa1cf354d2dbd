package redis

import (
	"context"
	"encoding/json"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/redis/go-redis/v9"
	"github.com/tunbebong-creator/music-space/internal/domain"
	"github.com/tunbebong-creator/music-space/internal/ports"
)

const bookingKeyPrefix = "booking:code:"

// Cache holds booking views keyed by their normalised code.
type Cache struct {
	client *redis.Client
	ttl    time.Duration
}

func NewCache(client *redis.Client, ttl time.Duration) *Cache {
	return &Cache{client: client, ttl: ttl}
}

var _ ports.ViewCache = (*Cache)(nil)

func BookingKey(code string) string {
	return bookingKeyPrefix + domain.NormalizeCode(code)
}

// GetBooking returns nil without error on a miss.
func (c *Cache) GetBooking(ctx context.Context, code string) (*domain.BookingView, error) {
	val, err := c.client.Get(ctx, BookingKey(code)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var v domain.BookingView
	if err := json.Unmarshal(val, &v); err != nil {
		return nil, errors.Wrap(err, "decode cached booking")
	}
	return &v, nil
}

func (c *Cache) SetBooking(ctx context.Context, v domain.BookingView) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, BookingKey(v.Code), data, c.ttl).Err()
}

func (c *Cache) InvalidateBooking(ctx context.Context, code string) error {
	return c.client.Del(ctx, BookingKey(code)).Err()
}

// Ping reports whether Redis answers. It backs the API readiness check.
func (c *Cache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}
