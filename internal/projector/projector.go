// Package projector keeps the order status cache in step with the order
// lifecycle events on Kafka.
package projector

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"
	kafkago "github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	kafkax "github.com/ariefcatur/order-lifecycle/internal/kafka"
	"github.com/ariefcatur/order-lifecycle/internal/metrics"
	"github.com/ariefcatur/order-lifecycle/internal/orders"
	"github.com/ariefcatur/order-lifecycle/internal/redisx"
)

// Deduper remembers which event ids were already projected.
type Deduper interface {
	Claim(ctx context.Context, eventID string) (bool, error)
	Forget(ctx context.Context, eventID string) error
}

type RedisDeduper struct {
	Client  *redis.Client
	Service string
}

func (d *RedisDeduper) key(id string) string { return fmt.Sprintf(redisx.KeyDedup, d.Service, id) }

func (d *RedisDeduper) Claim(ctx context.Context, id string) (bool, error) {
	return redisx.Claim(ctx, d.Client, d.key(id), redisx.TTLDedup)
}

func (d *RedisDeduper) Forget(ctx context.Context, id string) error {
	return redisx.Release(ctx, d.Client, d.key(id))
}

type Projector struct {
	Dedup    Deduper
	Statuses orders.StatusCache
	Metrics  *metrics.Metrics
	Log      *zap.Logger
}

// Handle is a kafka.Handler. Undecodable messages are logged and committed
// so they cannot block the partition.
func (p *Projector) Handle(ctx context.Context, m kafkago.Message) error {
	var env orders.Envelope
	if err := json.Unmarshal(m.Value, &env); err != nil {
		p.Log.Error("undecodable event", zap.String("topic", m.Topic), zap.Int64("offset", m.Offset), zap.Error(err))
		p.Metrics.Projected("unknown", "invalid")
		return nil
	}
	switch env.EventType {
	case orders.EventOrderCreated, orders.EventOrderConfirmed, orders.EventOrderCanceled:
	default:
		p.Metrics.Projected(env.EventType, "ignored")
		return nil
	}

	fresh, err := p.Dedup.Claim(ctx, env.EventID)
	if err != nil {
		return fmt.Errorf("dedup %s: %w", env.EventID, err)
	}
	if !fresh {
		p.Metrics.Projected(env.EventType, "duplicate")
		return nil
	}

	outcome, err := p.project(ctx, env)
	if err != nil {
		if ferr := p.Dedup.Forget(ctx, env.EventID); ferr != nil {
			p.Log.Warn("dedup release failed", zap.String("event_id", env.EventID), zap.Error(ferr))
		}
		p.Metrics.Projected(env.EventType, "failed")
		return err
	}
	p.Metrics.Projected(env.EventType, outcome)
	return nil
}

func (p *Projector) project(ctx context.Context, env orders.Envelope) (string, error) {
	payload, err := kafkax.UnwrapPayload[orders.OrderEventPayload](env.Payload)
	if err != nil {
		p.Log.Error("undecodable payload", zap.String("event_id", env.EventID), zap.Error(err))
		return "invalid", nil
	}

	// Workers run partitions concurrently; never let an older event
	// overwrite a newer status.
	cur, ok, err := p.Statuses.GetStatus(ctx, payload.OrderID)
	if err != nil {
		return "", fmt.Errorf("read status %d: %w", payload.OrderID, err)
	}
	if ok && cur.UpdatedAt.After(env.OccurredAt) {
		return "stale", nil
	}

	v := orders.StatusView{OrderID: payload.OrderID, Status: payload.Status, UpdatedAt: env.OccurredAt}
	if err := p.Statuses.SetStatus(ctx, v); err != nil {
		return "", fmt.Errorf("write status %d: %w", payload.OrderID, err)
	}
	p.Log.Debug("status projected", zap.Int64("order_id", v.OrderID), zap.String("status", string(v.Status)),
		zap.String("trace_id", env.TraceID))
	return "ok", nil
}
