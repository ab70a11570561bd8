// Package memory provides in-process implementations of the storage ports.
// A single mutex stands in for the database transaction, so every operation
// is atomic in the same way the Postgres versions are.
package memory

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/ariefcatur/order-lifecycle/internal/apperr"
	"github.com/ariefcatur/order-lifecycle/internal/orders"
)

type OrderStore struct {
	mu       sync.Mutex
	products map[int64]*orders.Product
	orders   map[int64]*orders.Order
	nextID   int64
	// Now stamps created_at and updated_at and measures the cancel window; defaults to time.Now.
	Now func() time.Time
}

func NewOrderStore() *OrderStore {
	return &OrderStore{
		products: make(map[int64]*orders.Product),
		orders:   make(map[int64]*orders.Order),
	}
}

func (s *OrderStore) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

// PutProduct inserts or replaces a product.
func (s *OrderStore) PutProduct(p orders.Product) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.products[p.ID] = &p
}

func (s *OrderStore) Product(id int64) (orders.Product, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.products[id]
	if !ok {
		return orders.Product{}, false
	}
	return *p, true
}

func (s *OrderStore) OrderCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.orders)
}

func (s *OrderStore) CreateOrderTx(_ context.Context, customerID int64, in []orders.ItemInput) (*orders.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	// Work on copies so a failure part-way leaves stock untouched.
	stock := make(map[int64]int, len(in))
	items := make([]orders.OrderItem, 0, len(in))
	var total int64
	for _, it := range in {
		p, ok := s.products[it.ProductID]
		if !ok {
			return nil, apperr.ProductNotFound(it.ProductID)
		}
		have, seen := stock[p.ID]
		if !seen {
			have = p.Stock
		}
		if have < it.Qty {
			return nil, apperr.InsufficientStock(it.ProductID)
		}
		stock[p.ID] = have - it.Qty
		sub := p.PriceCents * int64(it.Qty)
		total += sub
		items = append(items, orders.OrderItem{
			ProductID: p.ID, Qty: it.Qty, UnitPriceCents: p.PriceCents, SubtotalCents: sub,
		})
	}

	for id, left := range stock {
		s.products[id].Stock = left
	}
	s.nextID++
	now := s.now()
	o := &orders.Order{
		ID:         s.nextID,
		CustomerID: customerID,
		TotalCents: total,
		Status:     orders.StatusCreated,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	for i := range items {
		items[i].OrderID = o.ID
	}
	o.Items = items
	s.orders[o.ID] = o
	return cloneOrder(o), nil
}

func (s *OrderStore) FindByID(_ context.Context, id int64) (*orders.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.orders[id]
	if !ok {
		return nil, nil
	}
	return cloneOrder(o), nil
}

func (s *OrderStore) UpdateStatus(_ context.Context, id int64, from, to orders.Status) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.orders[id]
	if !ok || o.Status != from {
		return false, nil
	}
	o.Status = to
	o.UpdatedAt = s.now()
	return true, nil
}

func (s *OrderStore) CancelWithRestock(_ context.Context, id int64, from orders.Status, items []orders.OrderItem) (*orders.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.orders[id]
	if !ok {
		return nil, apperr.ErrOrderNotFound
	}
	switch {
	case o.Status == orders.StatusCanceled:
		return nil, apperr.ErrOrderAlreadyCanceled
	case o.Status != from:
		return nil, apperr.ErrInvalidOrderStatus
	}
	if err := orders.CheckCancel(o.Status, s.now().Sub(o.CreatedAt)); err != nil {
		return nil, err
	}
	for _, it := range items {
		if p, ok := s.products[it.ProductID]; ok {
			p.Stock += it.Qty
		}
	}
	o.Status = orders.StatusCanceled
	o.UpdatedAt = s.now()
	return cloneOrder(o), nil
}

func (s *OrderStore) ListProducts(_ context.Context, f orders.ProductFilter) ([]orders.Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	limit := f.Limit
	if limit <= 0 {
		limit = orders.DefaultPageSize
	}
	search := strings.ToLower(f.Search)
	out := []orders.Product{}
	for _, p := range s.products {
		if p.ID <= f.Cursor {
			continue
		}
		if search != "" && !strings.Contains(strings.ToLower(p.Name), search) &&
			!strings.Contains(strings.ToLower(p.SKU), search) {
			continue
		}
		out = append(out, *p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func cloneOrder(o *orders.Order) *orders.Order {
	c := *o
	c.Items = append([]orders.OrderItem(nil), o.Items...)
	return &c
}
