// Package customers owns the customer collaborator: its storage, and the
// validator other services use to check a customer exists.
package customers

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ariefcatur/order-lifecycle/internal/apperr"
)

type Customer struct {
	ID        int64     `json:"id"`
	Name      string    `json:"name"`
	Email     string    `json:"email"`
	Phone     string    `json:"phone"`
	CreatedAt time.Time `json:"created_at"`
}

type Repo struct{ DB *pgxpool.Pool }

// FindByID returns apperr.ErrCustomerNotFound when no row matches.
func (r *Repo) FindByID(ctx context.Context, id int64) (*Customer, error) {
	var c Customer
	err := r.DB.QueryRow(ctx, `SELECT id, name, email, phone, created_at FROM customers WHERE id=$1`, id).
		Scan(&c.ID, &c.Name, &c.Email, &c.Phone, &c.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperr.ErrCustomerNotFound
	}
	if err != nil {
		return nil, err
	}
	return &c, nil
}
