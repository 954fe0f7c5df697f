package procurement

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/backoffice/internal/masterdata/products"
	"github.com/odyssey-erp/backoffice/internal/masterdata/suppliers"
	"github.com/odyssey-erp/backoffice/internal/numbering"
	"github.com/odyssey-erp/backoffice/internal/platform/db"
	"github.com/odyssey-erp/backoffice/internal/shared"
)

// TxRepository exposes transactional operations.
type TxRepository interface {
	products.Finder
	GetSupplier(ctx context.Context, id int64) (*suppliers.Supplier, error)
	NextNumber(ctx context.Context, prefix string, at time.Time) (string, error)
	GetPurchase(ctx context.Context, id int64) (*Purchase, error)
	GetPurchaseForUpdate(ctx context.Context, id int64) (*Purchase, error)
	InsertPurchase(ctx context.Context, p *Purchase) (int64, error)
	UpdatePurchaseDetails(ctx context.Context, id int64, details PurchaseDetails) error
	ReplacePurchaseItems(ctx context.Context, id int64, items []Item, totals shared.Totals) error
	UpdatePurchaseStatus(ctx context.Context, id int64, from, to Status) error
	DeletePurchase(ctx context.Context, id int64) error
	CountPurchaseAllocations(ctx context.Context, id int64) (int, error)
}

// Repository provides PostgreSQL backed persistence.
type Repository interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	GetPurchase(ctx context.Context, id int64) (*Purchase, error)
	ListPurchases(ctx context.Context, req ListPurchasesRequest) ([]Purchase, int, error)
}

const purchaseColumns = `p.id, p.number, p.supplier_id, COALESCE(s.name, ''), p.purchase_date, p.expected_date, p.status,
	p.payment_status, p.subtotal, p.discount_amount, p.tax_amount, p.total_amount, p.paid_amount,
	p.balance_amount, COALESCE(p.notes, ''), p.created_by, p.created_at, p.updated_at`

// PurchaseStore persists purchases and their items.
type PurchaseStore struct {
	db db.DBTX
}

func NewPurchaseStore(q db.DBTX) *PurchaseStore {
	return &PurchaseStore{db: q}
}

type txRepo struct {
	*PurchaseStore
	*suppliers.SupplierStore
	*products.CatalogStore
	*numbering.Counter
}

// NewTxRepository composes the stores bound to tx.
func NewTxRepository(tx db.DBTX) TxRepository {
	return &txRepo{
		PurchaseStore: NewPurchaseStore(tx),
		SupplierStore: suppliers.NewSupplierStore(tx),
		CatalogStore:  products.NewCatalogStore(tx),
		Counter:       numbering.NewCounter(tx),
	}
}

type repository struct {
	*PurchaseStore
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) Repository {
	return &repository{PurchaseStore: NewPurchaseStore(pool), pool: pool}
}

// WithTx runs fn in a read committed transaction; purchase rows are locked
// explicitly where it matters.
func (r *repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, NewTxRepository(tx))
	})
}

func scanPurchase(row pgx.Row) (*Purchase, error) {
	var p Purchase
	if err := row.Scan(&p.ID, &p.Number, &p.SupplierID, &p.SupplierName, &p.PurchaseDate, &p.ExpectedDate, &p.Status,
		&p.PaymentStatus, &p.Subtotal, &p.DiscountAmount, &p.TaxAmount, &p.TotalAmount, &p.PaidAmount,
		&p.BalanceAmount, &p.Notes, &p.CreatedBy, &p.CreatedAt, &p.UpdatedAt); err != nil {
		return nil, err
	}
	return &p, nil
}

// GetPurchase returns the purchase and its lines.
func (s *PurchaseStore) GetPurchase(ctx context.Context, id int64) (*Purchase, error) {
	p, err := scanPurchase(s.db.QueryRow(ctx, `SELECT `+purchaseColumns+`
		FROM purchases p LEFT JOIN suppliers s ON s.id = p.supplier_id WHERE p.id = $1`, id))
	if err != nil {
		return nil, db.NotFound(err, "purchase", id)
	}
	rows, err := s.db.Query(ctx, `
		SELECT id, purchase_id, product_id, product_name, product_sku, COALESCE(product_description, ''),
			quantity, unit_cost, discount_amount, tax_amount, line_total, line_order
		FROM purchase_items WHERE purchase_id = $1 ORDER BY line_order, id`, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var it Item
		if err := rows.Scan(&it.ID, &it.PurchaseID, &it.ProductID, &it.ProductName, &it.ProductSKU, &it.ProductDescription,
			&it.Quantity, &it.UnitCost, &it.DiscountAmount, &it.TaxAmount, &it.LineTotal, &it.LineOrder); err != nil {
			return nil, err
		}
		p.Items = append(p.Items, it)
	}
	return p, rows.Err()
}

func (s *PurchaseStore) GetPurchaseForUpdate(ctx context.Context, id int64) (*Purchase, error) {
	p, err := scanPurchase(s.db.QueryRow(ctx, `SELECT `+purchaseColumns+`
		FROM purchases p LEFT JOIN suppliers s ON s.id = p.supplier_id WHERE p.id = $1 FOR UPDATE OF p`, id))
	if err != nil {
		return nil, db.NotFound(err, "purchase", id)
	}
	return p, nil
}

func (s *PurchaseStore) InsertPurchase(ctx context.Context, p *Purchase) (int64, error) {
	var id int64
	err := s.db.QueryRow(ctx, `
		INSERT INTO purchases (number, supplier_id, purchase_date, expected_date, status, payment_status,
			subtotal, discount_amount, tax_amount, total_amount, paid_amount, balance_amount, notes, created_by)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, NULLIF($13, ''), $14)
		RETURNING id`,
		p.Number, p.SupplierID, p.PurchaseDate, p.ExpectedDate, p.Status, p.PaymentStatus,
		p.Subtotal, p.DiscountAmount, p.TaxAmount, p.TotalAmount, p.PaidAmount, p.BalanceAmount, p.Notes, p.CreatedBy,
	).Scan(&id)
	if err != nil {
		return 0, db.MapError(err)
	}
	if err := s.insertItems(ctx, id, p.Items); err != nil {
		return 0, err
	}
	return id, nil
}

func (s *PurchaseStore) insertItems(ctx context.Context, purchaseID int64, items []Item) error {
	for _, it := range items {
		if _, err := s.db.Exec(ctx, `
			INSERT INTO purchase_items (purchase_id, product_id, product_name, product_sku, product_description,
				quantity, unit_cost, discount_amount, tax_amount, line_total, line_order)
			VALUES ($1, $2, $3, $4, NULLIF($5, ''), $6, $7, $8, $9, $10, $11)`,
			purchaseID, it.ProductID, it.ProductName, it.ProductSKU, it.ProductDescription,
			it.Quantity, it.UnitCost, it.DiscountAmount, it.TaxAmount, it.LineTotal, it.LineOrder); err != nil {
			return fmt.Errorf("procurement: insert item: %w", err)
		}
	}
	return nil
}

func (s *PurchaseStore) UpdatePurchaseDetails(ctx context.Context, id int64, d PurchaseDetails) error {
	_, err := s.db.Exec(ctx, `
		UPDATE purchases SET purchase_date = $2, expected_date = $3, notes = NULLIF($4, ''), updated_at = NOW()
		WHERE id = $1`, id, d.PurchaseDate, d.ExpectedDate, d.Notes)
	return err
}

// ReplacePurchaseItems swaps the lines of an unpaid purchase and resets totals.
func (s *PurchaseStore) ReplacePurchaseItems(ctx context.Context, id int64, items []Item, t shared.Totals) error {
	tag, err := s.db.Exec(ctx, `
		UPDATE purchases SET subtotal = $2, discount_amount = $3, tax_amount = $4, total_amount = $5,
			balance_amount = $5, payment_status = $6, updated_at = NOW()
		WHERE id = $1 AND paid_amount = 0`, id, t.Subtotal, t.Discount, t.Tax, t.Total, shared.PaymentUnpaid)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: purchase %d changed concurrently", shared.ErrConflict, id)
	}
	if _, err := s.db.Exec(ctx, `DELETE FROM purchase_items WHERE purchase_id = $1`, id); err != nil {
		return err
	}
	return s.insertItems(ctx, id, items)
}

func (s *PurchaseStore) UpdatePurchaseStatus(ctx context.Context, id int64, from, to Status) error {
	tag, err := s.db.Exec(ctx, `UPDATE purchases SET status = $3, updated_at = NOW() WHERE id = $1 AND status = $2`, id, from, to)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: purchase %d is no longer %s", shared.ErrConflict, id, from)
	}
	return nil
}

// SetPurchaseBalance stores the ledger's recomputed payment position.
func (s *PurchaseStore) SetPurchaseBalance(ctx context.Context, id int64, paid, balance decimal.Decimal, status shared.PaymentStatus) error {
	_, err := s.db.Exec(ctx, `
		UPDATE purchases SET paid_amount = $2, balance_amount = $3, payment_status = $4, updated_at = NOW()
		WHERE id = $1`, id, paid, balance, status)
	return err
}

func (s *PurchaseStore) DeletePurchase(ctx context.Context, id int64) error {
	_, err := s.db.Exec(ctx, `DELETE FROM purchases WHERE id = $1`, id)
	return err
}

func (s *PurchaseStore) CountPurchaseAllocations(ctx context.Context, id int64) (int, error) {
	var n int
	err := s.db.QueryRow(ctx, `SELECT COUNT(*) FROM payment_allocations WHERE order_type = 'purchase' AND order_id = $1`, id).Scan(&n)
	return n, err
}

// ListPurchases returns purchases with supplier names.
func (s *PurchaseStore) ListPurchases(ctx context.Context, req ListPurchasesRequest) ([]Purchase, int, error) {
	filterSQL := ``
	args := []any{}
	argNum := 1

	if req.SupplierID != nil {
		filterSQL += ` AND p.supplier_id = $` + itoa(argNum)
		args = append(args, *req.SupplierID)
		argNum++
	}
	if req.Status != "" {
		filterSQL += ` AND p.status = $` + itoa(argNum)
		args = append(args, req.Status)
		argNum++
	}
	if req.PaymentStatus != "" {
		filterSQL += ` AND p.payment_status = $` + itoa(argNum)
		args = append(args, req.PaymentStatus)
		argNum++
	}
	if req.DateFrom != nil {
		filterSQL += ` AND p.purchase_date >= $` + itoa(argNum)
		args = append(args, *req.DateFrom)
		argNum++
	}
	if req.DateTo != nil {
		filterSQL += ` AND p.purchase_date <= $` + itoa(argNum)
		args = append(args, *req.DateTo)
		argNum++
	}
	if req.Search != "" {
		filterSQL += ` AND (p.number ILIKE $` + itoa(argNum) + ` OR s.name ILIKE $` + itoa(argNum) + `)`
		args = append(args, "%"+req.Search+"%")
		argNum++
	}

	var total int
	countSQL := `SELECT COUNT(*) FROM purchases p LEFT JOIN suppliers s ON s.id = p.supplier_id WHERE 1=1` + filterSQL
	if err := s.db.QueryRow(ctx, countSQL, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	limit := req.Limit
	if limit <= 0 {
		limit = 20
	}
	dataSQL := `SELECT ` + purchaseColumns + ` FROM purchases p LEFT JOIN suppliers s ON s.id = p.supplier_id WHERE 1=1` +
		filterSQL + ` ORDER BY ` + sortOrder(req.SortBy, req.SortDir) +
		` LIMIT $` + itoa(argNum) + ` OFFSET $` + itoa(argNum+1)
	args = append(args, limit, req.Offset)

	rows, err := s.db.Query(ctx, dataSQL, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var items []Purchase
	for rows.Next() {
		p, err := scanPurchase(rows)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, *p)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}
	return items, total, nil
}

// itoa converts int to string for dynamic query building.
func itoa(i int) string {
	return fmt.Sprintf("%d", i)
}

// sortOrder returns a safe ORDER BY clause for purchase queries.
func sortOrder(sortBy, sortDir string) string {
	dir := "DESC"
	if sortDir == "asc" {
		dir = "ASC"
	}
	switch sortBy {
	case "number":
		return "p.number " + dir
	case "supplier":
		return "s.name " + dir
	case "purchase_date":
		return "p.purchase_date " + dir
	case "total":
		return "p.total_amount " + dir
	case "balance":
		return "p.balance_amount " + dir
	case "status":
		return "p.status " + dir
	default:
		return "p.purchase_date DESC, p.id DESC"
	}
}
