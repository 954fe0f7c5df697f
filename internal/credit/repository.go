package credit

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/odyssey-erp/backoffice/internal/platform/db"
	"github.com/odyssey-erp/backoffice/internal/sales/customers"
)

type repository struct {
	*customers.CustomerStore
	pool *pgxpool.Pool
}

// NewRepository returns the Postgres-backed credit repository.
func NewRepository(pool *pgxpool.Pool) Repository {
	return &repository{CustomerStore: customers.NewCustomerStore(pool), pool: pool}
}

func (r *repository) WithTx(ctx context.Context, fn func(context.Context, Store) error) error {
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, customers.NewCustomerStore(tx))
	})
}
