package idempotency

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/ariefcatur/order-lifecycle/internal/metrics"
)

const staleScanLimit = 100

// StaleReporter periodically lists PROCESSING claims older than StaleAfter.
// It only reports them; claims never expire on their own.
type StaleReporter struct {
	Store      Store
	StaleAfter time.Duration
	Interval   time.Duration
	Log        *zap.Logger
	Metrics    *metrics.Metrics
	Now        func() time.Time
}

func (r *StaleReporter) Run(ctx context.Context) error {
	interval := r.Interval
	if interval <= 0 {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	r.Log.Info("stale claim reporter started", zap.Duration("stale_after", r.StaleAfter))
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if _, err := r.Scan(ctx); err != nil {
				r.Log.Error("stale claim scan failed", zap.Error(err))
			}
		}
	}
}

// Scan runs one pass. The gauge carries the full count of stale claims;
// only the oldest staleScanLimit are logged and returned.
func (r *StaleReporter) Scan(ctx context.Context) ([]Record, error) {
	now := time.Now
	if r.Now != nil {
		now = r.Now
	}
	before := now().Add(-r.StaleAfter)
	total, err := r.Store.CountProcessingBefore(ctx, before)
	if err != nil {
		return nil, err
	}
	r.Metrics.SetStaleClaims(total)
	if total == 0 {
		return nil, nil
	}
	stale, err := r.Store.ListProcessingBefore(ctx, before, staleScanLimit)
	if err != nil {
		return nil, err
	}
	for _, rec := range stale {
		r.Log.Warn("idempotency claim stuck in PROCESSING",
			zap.String("key", rec.Key),
			zap.String("target_type", rec.TargetType),
			zap.Int64("target_id", rec.TargetID),
			zap.Time("claimed_at", rec.CreatedAt),
		)
	}
	return stale, nil
}
