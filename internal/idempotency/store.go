package idempotency

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type Store interface {
	// Find returns nil, nil when no record exists for key.
	Find(ctx context.Context, key string) (*Record, error)
	// Insert writes a PROCESSING record, or fails with ErrKeyExists.
	Insert(ctx context.Context, rec Record) error
	Complete(ctx context.Context, key string, body []byte) error
	Delete(ctx context.Context, key string) error
	ListProcessingBefore(ctx context.Context, before time.Time, limit int) ([]Record, error)
	CountProcessingBefore(ctx context.Context, before time.Time) (int, error)
}

type PostgresStore struct{ DB *pgxpool.Pool }

func (s *PostgresStore) Find(ctx context.Context, key string) (*Record, error) {
	var rec Record
	err := s.DB.QueryRow(ctx, `
		SELECT key_id, target_type, target_id, status, response_body, created_at, updated_at
		FROM idempotency_keys WHERE key_id=$1`, key).
		Scan(&rec.Key, &rec.TargetType, &rec.TargetID, &rec.Status, &rec.ResponseBody, &rec.CreatedAt, &rec.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

// Insert relies on the primary key over key_id: of concurrent inserts for
// one key exactly one affects a row.
func (s *PostgresStore) Insert(ctx context.Context, rec Record) error {
	ct, err := s.DB.Exec(ctx, `
		INSERT INTO idempotency_keys(key_id, target_type, target_id, status)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (key_id) DO NOTHING`, rec.Key, rec.TargetType, rec.TargetID, StatusProcessing)
	if err != nil {
		return err
	}
	if ct.RowsAffected() == 0 {
		return ErrKeyExists
	}
	return nil
}

func (s *PostgresStore) Complete(ctx context.Context, key string, body []byte) error {
	ct, err := s.DB.Exec(ctx, `
		UPDATE idempotency_keys SET status=$2, response_body=$3, updated_at=now()
		WHERE key_id=$1 AND status=$4`, key, StatusCompleted, body, StatusProcessing)
	if err != nil {
		return err
	}
	if ct.RowsAffected() == 0 {
		return ErrClaimLost
	}
	return nil
}

func (s *PostgresStore) Delete(ctx context.Context, key string) error {
	_, err := s.DB.Exec(ctx, `DELETE FROM idempotency_keys WHERE key_id=$1`, key)
	return err
}

func (s *PostgresStore) ListProcessingBefore(ctx context.Context, before time.Time, limit int) ([]Record, error) {
	rows, err := s.DB.Query(ctx, `
		SELECT key_id, target_type, target_id, status, created_at, updated_at
		FROM idempotency_keys
		WHERE status=$1 AND created_at < $2
		ORDER BY created_at
		LIMIT $3`, StatusProcessing, before, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Record
	for rows.Next() {
		var rec Record
		if err := rows.Scan(&rec.Key, &rec.TargetType, &rec.TargetID, &rec.Status, &rec.CreatedAt, &rec.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

func (s *PostgresStore) CountProcessingBefore(ctx context.Context, before time.Time) (int, error) {
	var n int
	err := s.DB.QueryRow(ctx, `
		SELECT count(*) FROM idempotency_keys
		WHERE status=$1 AND created_at < $2`, StatusProcessing, before).Scan(&n)
	return n, err
}
