package orders

import "time"

type Product struct {
	ID         int64     `json:"id"`
	SKU        string    `json:"sku"`
	Name       string    `json:"name"`
	PriceCents int64     `json:"price_cents"`
	Stock      int       `json:"stock"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// Order.TotalCents always equals the sum of its items' SubtotalCents.
type Order struct {
	ID         int64       `json:"id"`
	CustomerID int64       `json:"customer_id"`
	TotalCents int64       `json:"total_cents"`
	Status     Status      `json:"status"`
	CreatedAt  time.Time   `json:"created_at"`
	Items      []OrderItem `json:"items"`
	// UpdatedAt is the time of the last status change, as stamped by the store.
	UpdatedAt time.Time `json:"-"`
}

// OrderItem snapshots the product price at creation time.
type OrderItem struct {
	OrderID        int64 `json:"order_id"`
	ProductID      int64 `json:"product_id"`
	Qty            int   `json:"qty"`
	UnitPriceCents int64 `json:"unit_price_cents"`
	SubtotalCents  int64 `json:"subtotal_cents"`
}

type ItemInput struct {
	ProductID int64 `json:"product_id"`
	Qty       int   `json:"qty"`
}

type CreateOrderInput struct {
	CustomerID int64       `json:"customer_id"`
	Items      []ItemInput `json:"items"`
}

func newItem(orderID, productID int64, qty int, unitPrice int64) OrderItem {
	return OrderItem{
		OrderID:        orderID,
		ProductID:      productID,
		Qty:            qty,
		UnitPriceCents: unitPrice,
		SubtotalCents:  unitPrice * int64(qty),
	}
}

func sumSubtotals(items []OrderItem) int64 {
	var total int64
	for _, it := range items {
		total += it.SubtotalCents
	}
	return total
}
