package orders

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/backoffice/internal/credit"
	"github.com/odyssey-erp/backoffice/internal/masterdata/products"
	"github.com/odyssey-erp/backoffice/internal/numbering"
	"github.com/odyssey-erp/backoffice/internal/platform/db"
	"github.com/odyssey-erp/backoffice/internal/sales/customers"
	"github.com/odyssey-erp/backoffice/internal/shared"
)

// TxRepository is everything sale creation and maintenance touch inside one
// transaction, including the customer credit rows.
type TxRepository interface {
	credit.Store
	products.Finder
	NextNumber(ctx context.Context, prefix string, at time.Time) (string, error)
	GetSale(ctx context.Context, id int64) (*Sale, error)
	GetSaleForUpdate(ctx context.Context, id int64) (*Sale, error)
	InsertSale(ctx context.Context, sale *Sale) (int64, error)
	UpdateSaleDetails(ctx context.Context, id int64, details SaleDetails) error
	ReplaceSaleItems(ctx context.Context, id int64, items []Item, totals shared.Totals) error
	UpdateSaleStatus(ctx context.Context, id int64, from, to Status) error
	DeleteSale(ctx context.Context, id int64) error
	CountSaleAllocations(ctx context.Context, id int64) (int, error)
}

// Repository opens transactions and serves sale reads.
type Repository interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	GetSale(ctx context.Context, id int64) (*Sale, error)
	ListSales(ctx context.Context, req ListSalesRequest) ([]Sale, int, error)
	ListOverdueCandidates(ctx context.Context, asOf time.Time, limit int) ([]int64, error)
}

const saleColumns = `s.id, s.number, s.customer_id, c.name, s.quotation_id, s.sale_date, s.due_date, s.status,
	s.payment_status, s.subtotal, s.discount_amount, s.tax_amount, s.total_amount, s.paid_amount,
	s.balance_amount, COALESCE(s.notes, ''), s.created_by, s.created_at, s.updated_at`

// SaleStore persists sales and their items.
type SaleStore struct {
	db db.DBTX
}

// NewSaleStore binds the store to a pool or transaction.
func NewSaleStore(q db.DBTX) *SaleStore {
	return &SaleStore{db: q}
}

type txRepository struct {
	*SaleStore
	*customers.CustomerStore
	*products.CatalogStore
	*numbering.Counter
}

// NewTxRepository composes the stores bound to tx.
func NewTxRepository(tx db.DBTX) TxRepository {
	return &txRepository{
		SaleStore:     NewSaleStore(tx),
		CustomerStore: customers.NewCustomerStore(tx),
		CatalogStore:  products.NewCatalogStore(tx),
		Counter:       numbering.NewCounter(tx),
	}
}

type repository struct {
	*SaleStore
	pool *pgxpool.Pool
}

// NewRepository returns the pool-backed sale repository.
func NewRepository(pool *pgxpool.Pool) Repository {
	return &repository{SaleStore: NewSaleStore(pool), pool: pool}
}

func (r *repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, NewTxRepository(tx))
	})
}

func scanSale(row pgx.Row) (*Sale, error) {
	var s Sale
	err := row.Scan(&s.ID, &s.Number, &s.CustomerID, &s.CustomerName, &s.QuotationID, &s.SaleDate, &s.DueDate, &s.Status,
		&s.PaymentStatus, &s.Subtotal, &s.DiscountAmount, &s.TaxAmount, &s.TotalAmount, &s.PaidAmount,
		&s.BalanceAmount, &s.Notes, &s.CreatedBy, &s.CreatedAt, &s.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &s, nil
}

// GetSale loads a sale with its items and customer name.
func (s *SaleStore) GetSale(ctx context.Context, id int64) (*Sale, error) {
	sale, err := scanSale(s.db.QueryRow(ctx, `SELECT `+saleColumns+`
		FROM sales s JOIN customers c ON c.id = s.customer_id WHERE s.id = $1`, id))
	if err != nil {
		return nil, db.NotFound(err, "sale", id)
	}
	items, err := s.saleItems(ctx, id)
	if err != nil {
		return nil, err
	}
	sale.Items = items
	return sale, nil
}

// GetSaleForUpdate row-locks the sale header. Items are not loaded.
func (s *SaleStore) GetSaleForUpdate(ctx context.Context, id int64) (*Sale, error) {
	sale, err := scanSale(s.db.QueryRow(ctx, `SELECT `+saleColumns+`
		FROM sales s JOIN customers c ON c.id = s.customer_id WHERE s.id = $1 FOR UPDATE OF s`, id))
	if err != nil {
		return nil, db.NotFound(err, "sale", id)
	}
	return sale, nil
}

func (s *SaleStore) saleItems(ctx context.Context, saleID int64) ([]Item, error) {
	rows, err := s.db.Query(ctx, `
		SELECT id, sale_id, product_id, product_name, product_sku, COALESCE(product_description, ''),
			quantity, unit_price, discount_amount, tax_amount, line_total, line_order
		FROM sale_items WHERE sale_id = $1 ORDER BY line_order, id`, saleID)
	if err != nil {
		return nil, fmt.Errorf("orders: items: %w", err)
	}
	defer rows.Close()
	var items []Item
	for rows.Next() {
		var it Item
		if err := rows.Scan(&it.ID, &it.SaleID, &it.ProductID, &it.ProductName, &it.ProductSKU, &it.ProductDescription,
			&it.Quantity, &it.UnitPrice, &it.DiscountAmount, &it.TaxAmount, &it.LineTotal, &it.LineOrder); err != nil {
			return nil, err
		}
		items = append(items, it)
	}
	return items, rows.Err()
}

// InsertSale writes the header and items. Number collisions surface as
// shared.ErrConflict.
func (s *SaleStore) InsertSale(ctx context.Context, sale *Sale) (int64, error) {
	var id int64
	err := s.db.QueryRow(ctx, `
		INSERT INTO sales (number, customer_id, quotation_id, sale_date, due_date, status, payment_status,
			subtotal, discount_amount, tax_amount, total_amount, paid_amount, balance_amount, notes, created_by)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, NULLIF($14, ''), $15)
		RETURNING id`,
		sale.Number, sale.CustomerID, sale.QuotationID, sale.SaleDate, sale.DueDate, sale.Status, sale.PaymentStatus,
		sale.Subtotal, sale.DiscountAmount, sale.TaxAmount, sale.TotalAmount, sale.PaidAmount, sale.BalanceAmount,
		sale.Notes, sale.CreatedBy,
	).Scan(&id)
	if err != nil {
		return 0, db.MapError(err)
	}
	if err := s.insertItems(ctx, id, sale.Items); err != nil {
		return 0, err
	}
	return id, nil
}

func (s *SaleStore) insertItems(ctx context.Context, saleID int64, items []Item) error {
	for _, it := range items {
		_, err := s.db.Exec(ctx, `
			INSERT INTO sale_items (sale_id, product_id, product_name, product_sku, product_description,
				quantity, unit_price, discount_amount, tax_amount, line_total, line_order)
			VALUES ($1, $2, $3, $4, NULLIF($5, ''), $6, $7, $8, $9, $10, $11)`,
			saleID, it.ProductID, it.ProductName, it.ProductSKU, it.ProductDescription,
			it.Quantity, it.UnitPrice, it.DiscountAmount, it.TaxAmount, it.LineTotal, it.LineOrder)
		if err != nil {
			return fmt.Errorf("orders: insert item: %w", err)
		}
	}
	return nil
}

func (s *SaleStore) UpdateSaleDetails(ctx context.Context, id int64, d SaleDetails) error {
	_, err := s.db.Exec(ctx, `
		UPDATE sales SET sale_date = $2, due_date = $3, notes = NULLIF($4, ''), updated_at = NOW()
		WHERE id = $1`, id, d.SaleDate, d.DueDate, d.Notes)
	return err
}

// ReplaceSaleItems swaps the lines of an unpaid sale and resets its totals.
// The paid_amount guard keeps the balance identity intact.
func (s *SaleStore) ReplaceSaleItems(ctx context.Context, id int64, items []Item, t shared.Totals) error {
	tag, err := s.db.Exec(ctx, `
		UPDATE sales SET subtotal = $2, discount_amount = $3, tax_amount = $4, total_amount = $5,
			balance_amount = $5, payment_status = $6, updated_at = NOW()
		WHERE id = $1 AND paid_amount = 0`, id, t.Subtotal, t.Discount, t.Tax, t.Total, shared.PaymentUnpaid)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: sale %d changed concurrently", shared.ErrConflict, id)
	}
	if _, err := s.db.Exec(ctx, `DELETE FROM sale_items WHERE sale_id = $1`, id); err != nil {
		return err
	}
	return s.insertItems(ctx, id, items)
}

// UpdateSaleStatus moves the sale from one status to another. The from
// predicate turns a lost race into a conflict instead of a silent overwrite.
func (s *SaleStore) UpdateSaleStatus(ctx context.Context, id int64, from, to Status) error {
	tag, err := s.db.Exec(ctx, `UPDATE sales SET status = $3, updated_at = NOW() WHERE id = $1 AND status = $2`, id, from, to)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: sale %d is no longer %s", shared.ErrConflict, id, from)
	}
	return nil
}

// SetSaleBalance stores the ledger's recomputed payment position.
func (s *SaleStore) SetSaleBalance(ctx context.Context, id int64, paid, balance decimal.Decimal, status shared.PaymentStatus) error {
	_, err := s.db.Exec(ctx, `
		UPDATE sales SET paid_amount = $2, balance_amount = $3, payment_status = $4, updated_at = NOW()
		WHERE id = $1`, id, paid, balance, status)
	return err
}

func (s *SaleStore) DeleteSale(ctx context.Context, id int64) error {
	_, err := s.db.Exec(ctx, `DELETE FROM sales WHERE id = $1`, id)
	return err
}

func (s *SaleStore) CountSaleAllocations(ctx context.Context, id int64) (int, error) {
	var n int
	err := s.db.QueryRow(ctx, `SELECT COUNT(*) FROM payment_allocations WHERE order_type = 'sale' AND order_id = $1`, id).Scan(&n)
	return n, err
}

func (s *SaleStore) ListSales(ctx context.Context, req ListSalesRequest) ([]Sale, int, error) {
	where := []string{"1=1"}
	args := []interface{}{}
	argPos := 1

	if req.CustomerID != nil {
		where = append(where, fmt.Sprintf("s.customer_id = $%d", argPos))
		args = append(args, *req.CustomerID)
		argPos++
	}
	if req.Status != "" {
		where = append(where, fmt.Sprintf("s.status = $%d", argPos))
		args = append(args, req.Status)
		argPos++
	}
	if req.PaymentStatus != "" {
		where = append(where, fmt.Sprintf("s.payment_status = $%d", argPos))
		args = append(args, req.PaymentStatus)
		argPos++
	}
	if req.DateFrom != nil {
		where = append(where, fmt.Sprintf("s.sale_date >= $%d", argPos))
		args = append(args, *req.DateFrom)
		argPos++
	}
	if req.DateTo != nil {
		where = append(where, fmt.Sprintf("s.sale_date <= $%d", argPos))
		args = append(args, *req.DateTo)
		argPos++
	}
	if req.Search != "" {
		where = append(where, fmt.Sprintf("(s.number ILIKE $%d OR c.name ILIKE $%d)", argPos, argPos))
		args = append(args, "%"+req.Search+"%")
		argPos++
	}
	whereClause := strings.Join(where, " AND ")

	var total int
	countQuery := "SELECT COUNT(*) FROM sales s JOIN customers c ON c.id = s.customer_id WHERE " + whereClause
	if err := s.db.QueryRow(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("orders: count: %w", err)
	}

	limit := req.Limit
	if limit <= 0 {
		limit = 20
	}
	query := fmt.Sprintf(`SELECT %s FROM sales s JOIN customers c ON c.id = s.customer_id
		WHERE %s ORDER BY s.sale_date DESC, s.id DESC LIMIT $%d OFFSET $%d`, saleColumns, whereClause, argPos, argPos+1)
	args = append(args, limit, req.Offset)

	rows, err := s.db.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("orders: list: %w", err)
	}
	defer rows.Close()

	var out []Sale
	for rows.Next() {
		sale, err := scanSale(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, *sale)
	}
	return out, total, rows.Err()
}

// ListOverdueCandidates returns ids of live sales past their due date with an
// open balance.
func (s *SaleStore) ListOverdueCandidates(ctx context.Context, asOf time.Time, limit int) ([]int64, error) {
	rows, err := s.db.Query(ctx, `
		SELECT id FROM sales
		WHERE due_date < $1::date AND balance_amount > 0 AND status IN ('pending', 'confirmed', 'delivered')
		ORDER BY due_date, id
		LIMIT $2`, asOf, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}
