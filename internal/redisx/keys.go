package redisx

import "time"

const (
	// Response body of a COMPLETED idempotency key: idem:replay:{key}
	KeyIdemReplay = "idem:replay:%s"

	// Projected order status: order_status:{order_id} -> {"order_id":..,"status":..,"updated_at":..}
	KeyOrderStatus = "order_status:%d"

	// Dedup of event processing: dedup:{service}:{event_id}
	KeyDedup = "dedup:%s:%s"
)

var (
	TTLIdempotency = 24 * time.Hour
	TTLStatusCache = 5 * time.Minute
	TTLDedup       = 48 * time.Hour
)
