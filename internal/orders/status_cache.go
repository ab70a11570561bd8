package orders

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/ariefcatur/order-lifecycle/internal/logging"
	"github.com/ariefcatur/order-lifecycle/internal/redisx"
)

// StatusView is the cached projection served by GET /orders/{id}/status.
type StatusView struct {
	OrderID   int64     `json:"order_id"`
	Status    Status    `json:"status"`
	UpdatedAt time.Time `json:"updated_at"`
}

type StatusCache interface {
	GetStatus(ctx context.Context, orderID int64) (StatusView, bool, error)
	SetStatus(ctx context.Context, v StatusView) error
	// FillStatus writes v only when no entry exists for the order. It
	// reports whether v was written.
	FillStatus(ctx context.Context, v StatusView) (bool, error)
}

type RedisStatusCache struct{ Client *redis.Client }

func (c *RedisStatusCache) GetStatus(ctx context.Context, orderID int64) (StatusView, bool, error) {
	b, err := c.Client.Get(ctx, fmt.Sprintf(redisx.KeyOrderStatus, orderID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return StatusView{}, false, nil
	}
	if err != nil {
		return StatusView{}, false, err
	}
	var v StatusView
	if err := json.Unmarshal(b, &v); err != nil {
		return StatusView{}, false, fmt.Errorf("decode status view: %w", err)
	}
	return v, true, nil
}

func (c *RedisStatusCache) SetStatus(ctx context.Context, v StatusView) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return c.Client.Set(ctx, fmt.Sprintf(redisx.KeyOrderStatus, v.OrderID), b, redisx.TTLStatusCache).Err()
}

func (c *RedisStatusCache) FillStatus(ctx context.Context, v StatusView) (bool, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return false, err
	}
	return c.Client.SetNX(ctx, fmt.Sprintf(redisx.KeyOrderStatus, v.OrderID), b, redisx.TTLStatusCache).Result()
}

func WithStatusCache(c StatusCache) ServiceOption {
	return func(s *Service) { s.statuses = c }
}

// Status serves the cached projection and falls back to the database,
// refilling the cache on a miss. The refill never replaces an entry, so a
// transition written through after the read wins.
func (s *Service) Status(ctx context.Context, id int64) (StatusView, error) {
	if s.statuses != nil {
		v, ok, err := s.statuses.GetStatus(ctx, id)
		if err != nil {
			logging.FromContext(ctx).Warn("status cache get failed", zap.Int64("order_id", id), zap.Error(err))
		}
		if ok {
			return v, nil
		}
	}

	o, err := s.Get(ctx, id)
	if err != nil {
		return StatusView{}, err
	}
	v := StatusView{OrderID: o.ID, Status: o.Status, UpdatedAt: o.UpdatedAt.UTC()}
	if s.statuses != nil {
		if _, err := s.statuses.FillStatus(ctx, v); err != nil {
			logging.FromContext(ctx).Warn("status cache fill failed", zap.Int64("order_id", id), zap.Error(err))
		}
	}
	return v, nil
}

func (s *Service) cacheStatus(ctx context.Context, v StatusView) {
	if s.statuses == nil {
		return
	}
	if err := s.statuses.SetStatus(ctx, v); err != nil {
		logging.FromContext(ctx).Warn("status cache set failed", zap.Int64("order_id", v.OrderID), zap.Error(err))
	}
}
