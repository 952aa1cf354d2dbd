package redis

import (
	"context"
	"encoding/json"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/redis/go-redis/v9"
)

const idempKeyPrefix = "idemp:"

type Idempotency struct {
	client *redis.Client
}

func NewIdempotency(client *redis.Client) *Idempotency {
	return &Idempotency{client: client}
}

// IdempRecord is what is stored under an idempotency key. Done is false while
// the first request holding the key is still running.
type IdempRecord struct {
	Done   bool   `json:"done"`
	Status int    `json:"status,omitempty"`
	Body   []byte `json:"body,omitempty"`
}

func (i *Idempotency) Get(ctx context.Context, key string) (*IdempRecord, error) {
	val, err := i.client.Get(ctx, idempKeyPrefix+key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var rec IdempRecord
	if err := json.Unmarshal(val, &rec); err != nil {
		return nil, errors.Wrap(err, "decode idempotency record")
	}
	return &rec, nil
}

// Claim stores a pending record if the key is free and reports whether it did.
func (i *Idempotency) Claim(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	data, err := json.Marshal(IdempRecord{})
	if err != nil {
		return false, err
	}
	return i.client.SetNX(ctx, idempKeyPrefix+key, data, ttl).Result()
}

func (i *Idempotency) Set(ctx context.Context, key string, rec IdempRecord, ttl time.Duration) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	return i.client.Set(ctx, idempKeyPrefix+key, data, ttl).Err()
}

func (i *Idempotency) Release(ctx context.Context, key string) error {
	return i.client.Del(ctx, idempKeyPrefix+key).Err()
}
