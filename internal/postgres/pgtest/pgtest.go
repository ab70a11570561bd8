// Package pgtest starts a throwaway Postgres for repository tests.
package pgtest

import (
	"context"
	"testing"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"

	"github.com/ariefcatur/order-lifecycle/internal/postgres"
)

// New returns a migrated pool. The test is skipped when no container
// provider is reachable.
func New(t *testing.T) *pgxpool.Pool {
	t.Helper()
	testcontainers.SkipIfProviderIsNotHealthy(t)

	ctx := context.Background()
	ctr, err := tcpostgres.Run(ctx, "postgres:16-alpine",
		tcpostgres.WithDatabase("orders"),
		tcpostgres.WithUsername("app"),
		tcpostgres.WithPassword("secret"),
		tcpostgres.BasicWaitStrategies(),
	)
	t.Cleanup(func() {
		if ctr != nil {
			require.NoError(t, ctr.Terminate(context.Background()))
		}
	})
	require.NoError(t, err)

	dsn, err := ctr.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	pool, err := postgres.Connect(ctx, dsn)
	require.NoError(t, err)
	t.Cleanup(pool.Close)

	require.NoError(t, postgres.Migrate(ctx, pool))
	return pool
}

// SeedProduct inserts a product and returns its id.
func SeedProduct(t *testing.T, pool *pgxpool.Pool, sku string, priceCents int64, stock int) int64 {
	t.Helper()
	var id int64
	err := pool.QueryRow(context.Background(),
		`INSERT INTO products(sku, name, price_cents, stock) VALUES ($1, $1, $2, $3) RETURNING id`,
		sku, priceCents, stock,
	).Scan(&id)
	require.NoError(t, err)
	return id
}

func Stock(t *testing.T, pool *pgxpool.Pool, productID int64) int {
	t.Helper()
	var stock int
	require.NoError(t, pool.QueryRow(context.Background(),
		`SELECT stock FROM products WHERE id=$1`, productID).Scan(&stock))
	return stock
}
