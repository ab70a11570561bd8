package orders

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ariefcatur/order-lifecycle/internal/apperr"
)

type Repo struct{ DB *pgxpool.Pool }

// querier is satisfied by both the pool and an open transaction.
type querier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

// CreateOrderTx locks each product row (FOR UPDATE) in the order given,
// decrements its stock and snapshots its price, then writes the order header
// and items. Any failure rolls the whole transaction back.
func (r *Repo) CreateOrderTx(ctx context.Context, customerID int64, in []ItemInput) (*Order, error) {
	tx, err := r.DB.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	items := make([]OrderItem, 0, len(in))
	for _, it := range in {
		var price int64
		var stock int
		err := tx.QueryRow(ctx, `SELECT price_cents, stock FROM products WHERE id=$1 FOR UPDATE`, it.ProductID).
			Scan(&price, &stock)
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperr.ProductNotFound(it.ProductID)
		}
		if err != nil {
			return nil, fmt.Errorf("lock product %d: %w", it.ProductID, err)
		}
		if stock < it.Qty {
			return nil, apperr.InsufficientStock(it.ProductID)
		}
		if _, err := tx.Exec(ctx, `UPDATE products SET stock = stock - $2, updated_at = now() WHERE id=$1`,
			it.ProductID, it.Qty); err != nil {
			return nil, fmt.Errorf("decrement stock %d: %w", it.ProductID, err)
		}
		items = append(items, newItem(0, it.ProductID, it.Qty, price))
	}

	o := &Order{CustomerID: customerID, TotalCents: sumSubtotals(items), Status: StatusCreated}
	err = tx.QueryRow(ctx, `
		INSERT INTO orders(customer_id, total_cents, status)
		VALUES ($1, $2, $3)
		RETURNING id, created_at, updated_at`, customerID, o.TotalCents, o.Status).Scan(&o.ID, &o.CreatedAt, &o.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("insert order: %w", err)
	}

	for i := range items {
		items[i].OrderID = o.ID
		it := items[i]
		if _, err := tx.Exec(ctx, `
			INSERT INTO order_items(order_id, product_id, qty, unit_price_cents, subtotal_cents)
			VALUES ($1, $2, $3, $4, $5)`,
			it.OrderID, it.ProductID, it.Qty, it.UnitPriceCents, it.SubtotalCents); err != nil {
			return nil, fmt.Errorf("insert order item: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	o.Items = items
	return o, nil
}

// FindByID returns nil, nil when the order does not exist.
func (r *Repo) FindByID(ctx context.Context, id int64) (*Order, error) {
	return findOrder(ctx, r.DB, id)
}

// UpdateStatus moves the order from -> to. It reports false when the order
// was no longer in from.
func (r *Repo) UpdateStatus(ctx context.Context, id int64, from, to Status) (bool, error) {
	ct, err := r.DB.Exec(ctx, `UPDATE orders SET status=$3, updated_at=now() WHERE id=$1 AND status=$2`, id, from, to)
	if err != nil {
		return false, err
	}
	return ct.RowsAffected() == 1, nil
}

// CancelWithRestock marks the order CANCELED and returns each item's qty to
// stock in one transaction. from is the status the caller read; if the row
// moved on in the meantime nothing is written. The cancellation window is
// measured with the database clock.
func (r *Repo) CancelWithRestock(ctx context.Context, id int64, from Status, items []OrderItem) (*Order, error) {
	tx, err := r.DB.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	var current Status
	var createdAt, dbNow time.Time
	err = tx.QueryRow(ctx, `SELECT status, created_at, now() FROM orders WHERE id=$1 FOR UPDATE`, id).
		Scan(&current, &createdAt, &dbNow)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperr.ErrOrderNotFound
	}
	if err != nil {
		return nil, err
	}
	switch {
	case current == StatusCanceled:
		return nil, apperr.ErrOrderAlreadyCanceled
	case current != from:
		return nil, apperr.ErrInvalidOrderStatus
	}
	if err := CheckCancel(current, dbNow.Sub(createdAt)); err != nil {
		return nil, err
	}

	if _, err := tx.Exec(ctx, `UPDATE orders SET status=$2, updated_at=now() WHERE id=$1`, id, StatusCanceled); err != nil {
		return nil, err
	}
	for _, it := range items {
		if _, err := tx.Exec(ctx, `UPDATE products SET stock = stock + $2, updated_at = now() WHERE id=$1`,
			it.ProductID, it.Qty); err != nil {
			return nil, fmt.Errorf("restock product %d: %w", it.ProductID, err)
		}
	}

	o, err := findOrder(ctx, tx, id)
	if err != nil {
		return nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return o, nil
}

func findOrder(ctx context.Context, q querier, id int64) (*Order, error) {
	var o Order
	err := q.QueryRow(ctx, `
		SELECT id, customer_id, total_cents, status, created_at, updated_at
		FROM orders WHERE id=$1`, id).
		Scan(&o.ID, &o.CustomerID, &o.TotalCents, &o.Status, &o.CreatedAt, &o.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	rows, err := q.Query(ctx, `
		SELECT order_id, product_id, qty, unit_price_cents, subtotal_cents
		FROM order_items WHERE order_id=$1 ORDER BY id`, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	o.Items = []OrderItem{}
	for rows.Next() {
		var it OrderItem
		if err := rows.Scan(&it.OrderID, &it.ProductID, &it.Qty, &it.UnitPriceCents, &it.SubtotalCents); err != nil {
			return nil, err
		}
		o.Items = append(o.Items, it)
	}
	return &o, rows.Err()
}
