package conversion

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/odyssey-erp/backoffice/internal/platform/db"
	"github.com/odyssey-erp/backoffice/internal/sales/orders"
	"github.com/odyssey-erp/backoffice/internal/sales/quotations"
	"github.com/odyssey-erp/backoffice/internal/shared"
)

// TxRepository spans the sale creation path and the source quotation.
type TxRepository interface {
	orders.TxRepository
	GetQuotationForUpdate(ctx context.Context, id int64) (*quotations.Quotation, error)
	MarkQuotationConverted(ctx context.Context, id, saleID int64) error
	RecordAudit(ctx context.Context, log shared.AuditLog) error
}

// Repository opens conversion transactions.
type Repository interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
}

type txRepository struct {
	orders.TxRepository
	*quotations.QuotationStore
	*shared.AuditLogger
}

// NewTxRepository binds every store to tx.
func NewTxRepository(tx db.DBTX) TxRepository {
	return &txRepository{
		TxRepository:   orders.NewTxRepository(tx),
		QuotationStore: quotations.NewQuotationStore(tx),
		AuditLogger:    shared.NewAuditLogger(tx),
	}
}

type repository struct {
	pool *pgxpool.Pool
}

func NewRepository(pool *pgxpool.Pool) Repository {
	return &repository{pool: pool}
}

func (r *repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, NewTxRepository(tx))
	})
}
