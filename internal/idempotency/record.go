// Package idempotency turns an at-least-once delivered request into an
// exactly-once business effect. A caller-supplied key is claimed with a
// PROCESSING record, completed with the serialized response, or released on
// failure so the same key can be retried.
package idempotency

import (
	"errors"
	"time"
)

type Status string

const (
	StatusProcessing Status = "PROCESSING"
	StatusCompleted  Status = "COMPLETED"
)

const TargetOrder = "ORDER"

type Record struct {
	Key          string
	TargetType   string
	TargetID     int64
	Status       Status
	ResponseBody []byte
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

var (
	// ErrKeyExists is returned by Store.Insert when the key is already claimed.
	ErrKeyExists = errors.New("idempotency key already exists")
	// ErrClaimLost is returned by Store.Complete when no PROCESSING record
	// exists for the key.
	ErrClaimLost = errors.New("idempotency claim no longer held")
)
