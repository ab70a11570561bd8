package orders

import (
	"context"
	"strings"
)

const (
	DefaultPageSize = 10
	MaxPageSize     = 100
)

type ProductFilter struct {
	Search string
	Cursor int64
	Limit  int
}

func (f ProductFilter) normalized() ProductFilter {
	if f.Limit <= 0 {
		f.Limit = DefaultPageSize
	}
	if f.Limit > MaxPageSize {
		f.Limit = MaxPageSize
	}
	return f
}

// likeEscaper makes a search term match literally inside an ILIKE pattern.
// Backslash is the default LIKE escape character in Postgres.
var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

func productQuery(f ProductFilter) (string, []any) {
	q := Select(`SELECT id, sku, name, price_cents, stock, created_at, updated_at FROM products`)
	if f.Search != "" {
		like := "%" + likeEscaper.Replace(f.Search) + "%"
		q.WhereAny([]string{"name ILIKE ?", "sku ILIKE ?"}, like, like)
	}
	if f.Cursor > 0 {
		q.Where("id > ?", f.Cursor)
	}
	return q.OrderBy("id ASC").Limit(f.Limit).Build()
}

func (r *Repo) ListProducts(ctx context.Context, f ProductFilter) ([]Product, error) {
	sql, args := productQuery(f.normalized())
	rows, err := r.DB.Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []Product{}
	for rows.Next() {
		var p Product
		if err := rows.Scan(&p.ID, &p.SKU, &p.Name, &p.PriceCents, &p.Stock, &p.CreatedAt, &p.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}
