package idempotency

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/ariefcatur/order-lifecycle/internal/apperr"
	"github.com/ariefcatur/order-lifecycle/internal/logging"
	"github.com/ariefcatur/order-lifecycle/internal/metrics"
)

// Claim is the outcome of TryClaim. When Replayed is set the key already
// completed and Body is the stored response; the caller must not run the
// guarded step again.
type Claim struct {
	Replayed bool
	Body     []byte
}

type Coordinator struct {
	store   Store
	cache   ReplayCache
	metrics *metrics.Metrics
}

type Option func(*Coordinator)

func WithCache(c ReplayCache) Option { return func(co *Coordinator) { co.cache = c } }

func WithMetrics(m *metrics.Metrics) Option { return func(co *Coordinator) { co.metrics = m } }

func NewCoordinator(store Store, opts ...Option) *Coordinator {
	c := &Coordinator{store: store}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// TryClaim claims key for one execution of the guarded step.
//
// A COMPLETED key replays its stored body. A PROCESSING key, or losing the
// insert race for a fresh key, fails with REQUEST_IN_PROGRESS.
func (c *Coordinator) TryClaim(ctx context.Context, key, targetType string, targetID int64) (Claim, error) {
	if body, ok := c.cached(ctx, key); ok {
		c.metrics.Claim("replayed")
		return Claim{Replayed: true, Body: body}, nil
	}

	rec, err := c.store.Find(ctx, key)
	if err != nil {
		return Claim{}, fmt.Errorf("find idempotency key: %w", err)
	}
	if rec != nil {
		if rec.Status == StatusCompleted {
			c.remember(ctx, key, rec.ResponseBody)
			c.metrics.Claim("replayed")
			return Claim{Replayed: true, Body: rec.ResponseBody}, nil
		}
		c.metrics.Claim("in_progress")
		return Claim{}, apperr.ErrRequestInProgress
	}

	err = c.store.Insert(ctx, Record{Key: key, TargetType: targetType, TargetID: targetID, Status: StatusProcessing})
	if err != nil {
		if !errors.Is(err, ErrKeyExists) {
			logging.FromContext(ctx).Warn("idempotency claim insert failed", zap.String("key", key), zap.Error(err))
		}
		c.metrics.Claim("in_progress")
		return Claim{}, apperr.ErrRequestInProgress
	}
	c.metrics.Claim("claimed")
	return Claim{}, nil
}

// Lookup returns the stored body when key is COMPLETED. It never claims.
func (c *Coordinator) Lookup(ctx context.Context, key string) ([]byte, bool, error) {
	if body, ok := c.cached(ctx, key); ok {
		return body, true, nil
	}

	rec, err := c.store.Find(ctx, key)
	if err != nil {
		return nil, false, fmt.Errorf("find idempotency key: %w", err)
	}
	if rec == nil || rec.Status != StatusCompleted {
		return nil, false, nil
	}
	c.remember(ctx, key, rec.ResponseBody)
	return rec.ResponseBody, true, nil
}

// Complete stores body verbatim so later replays are byte-identical.
func (c *Coordinator) Complete(ctx context.Context, key string, body []byte) error {
	if err := c.store.Complete(ctx, key, body); err != nil {
		return fmt.Errorf("complete idempotency key: %w", err)
	}
	c.remember(ctx, key, body)
	return nil
}

// Release drops the claim so the key can be retried.
func (c *Coordinator) Release(ctx context.Context, key string) error {
	if err := c.store.Delete(ctx, key); err != nil {
		return fmt.Errorf("release idempotency key: %w", err)
	}
	return nil
}

func (c *Coordinator) cached(ctx context.Context, key string) ([]byte, bool) {
	if c.cache == nil {
		return nil, false
	}
	body, ok, err := c.cache.Get(ctx, key)
	if err != nil {
		logging.FromContext(ctx).Warn("replay cache get failed", zap.String("key", key), zap.Error(err))
		return nil, false
	}
	return body, ok
}

func (c *Coordinator) remember(ctx context.Context, key string, body []byte) {
	if c.cache == nil {
		return
	}
	if err := c.cache.Set(ctx, key, body); err != nil {
		logging.FromContext(ctx).Warn("replay cache set failed", zap.String("key", key), zap.Error(err))
	}
}
