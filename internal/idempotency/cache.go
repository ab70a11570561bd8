package idempotency

import (
	"context"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/ariefcatur/order-lifecycle/internal/redisx"
)

// ReplayCache holds response bodies of COMPLETED keys. It is a read-through
// accelerator only; the Store stays authoritative.
type ReplayCache interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, body []byte) error
}

type RedisCache struct{ Client *redis.Client }

func (c *RedisCache) Get(ctx context.Context, key string) ([]byte, bool, error) {
	b, err := c.Client.Get(ctx, fmt.Sprintf(redisx.KeyIdemReplay, key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return b, true, nil
}

func (c *RedisCache) Set(ctx context.Context, key string, body []byte) error {
	return c.Client.Set(ctx, fmt.Sprintf(redisx.KeyIdemReplay, key), body, redisx.TTLIdempotency).Err()
}
