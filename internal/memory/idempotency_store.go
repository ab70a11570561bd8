package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/ariefcatur/order-lifecycle/internal/idempotency"
)

type IdempotencyStore struct {
	mu      sync.Mutex
	records map[string]idempotency.Record
	Now     func() time.Time
}

func NewIdempotencyStore() *IdempotencyStore {
	return &IdempotencyStore{records: make(map[string]idempotency.Record)}
}

func (s *IdempotencyStore) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

func (s *IdempotencyStore) Find(_ context.Context, key string) (*idempotency.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.records[key]
	if !ok {
		return nil, nil
	}
	rec.ResponseBody = append([]byte(nil), rec.ResponseBody...)
	return &rec, nil
}

func (s *IdempotencyStore) Insert(_ context.Context, rec idempotency.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.records[rec.Key]; ok {
		return idempotency.ErrKeyExists
	}
	now := s.now()
	rec.Status = idempotency.StatusProcessing
	rec.CreatedAt, rec.UpdatedAt = now, now
	s.records[rec.Key] = rec
	return nil
}

func (s *IdempotencyStore) Complete(_ context.Context, key string, body []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.records[key]
	if !ok || rec.Status != idempotency.StatusProcessing {
		return idempotency.ErrClaimLost
	}
	rec.Status = idempotency.StatusCompleted
	rec.ResponseBody = append([]byte(nil), body...)
	rec.UpdatedAt = s.now()
	s.records[key] = rec
	return nil
}

func (s *IdempotencyStore) Delete(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.records, key)
	return nil
}

func (s *IdempotencyStore) ListProcessingBefore(_ context.Context, before time.Time, limit int) ([]idempotency.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []idempotency.Record
	for _, rec := range s.records {
		if rec.Status == idempotency.StatusProcessing && rec.CreatedAt.Before(before) {
			out = append(out, rec)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *IdempotencyStore) CountProcessingBefore(_ context.Context, before time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, rec := range s.records {
		if rec.Status == idempotency.StatusProcessing && rec.CreatedAt.Before(before) {
			n++
		}
	}
	return n, nil
}

// Len reports how many records exist, in any status.
func (s *IdempotencyStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.records)
}
