package redis

import (
	"context"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

const rateKeyPrefix = "rl:"

// Window counts hits per key in fixed windows of a given period.
type Window struct {
	client *redis.Client
	now    func() time.Time
}

func NewWindow(client *redis.Client) *Window {
	return &Window{client: client, now: time.Now}
}

// Hit increments the counter for key in the current window and returns the
// new count.
func (w *Window) Hit(ctx context.Context, key string, period time.Duration) (int64, error) {
	bucket := w.now().UnixNano() / int64(period)
	fullKey := rateKeyPrefix + key + ":" + strconv.FormatInt(bucket, 10)

	pipe := w.client.Pipeline()
	incr := pipe.Incr(ctx, fullKey)
	pipe.Expire(ctx, fullKey, period)
	if _, err := pipe.Exec(ctx); err != nil {
		return 0, err
	}
	return incr.Val(), nil
}
