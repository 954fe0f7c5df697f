package quotations

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/odyssey-erp/backoffice/internal/masterdata/products"
	"github.com/odyssey-erp/backoffice/internal/numbering"
	"github.com/odyssey-erp/backoffice/internal/platform/db"
	"github.com/odyssey-erp/backoffice/internal/sales/customers"
	"github.com/odyssey-erp/backoffice/internal/shared"
)

// TxRepository is the transaction-scoped quotation store.
type TxRepository interface {
	products.Finder
	GetCustomer(ctx context.Context, id int64) (*customers.Customer, error)
	NextNumber(ctx context.Context, prefix string, at time.Time) (string, error)
	GetQuotation(ctx context.Context, id int64) (*Quotation, error)
	GetQuotationForUpdate(ctx context.Context, id int64) (*Quotation, error)
	InsertQuotation(ctx context.Context, q *Quotation) (int64, error)
	UpdateQuotationDetails(ctx context.Context, id int64, details QuotationDetails) error
	ReplaceQuotationLines(ctx context.Context, id int64, lines []QuotationLine, totals shared.Totals) error
	UpdateQuotationStatus(ctx context.Context, id int64, from, to QuotationStatus) error
	MarkQuotationConverted(ctx context.Context, id, saleID int64) error
	DeleteQuotation(ctx context.Context, id int64) error
}

type Repository interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	GetQuotation(ctx context.Context, id int64) (*Quotation, error)
	ListQuotations(ctx context.Context, req ListQuotationsRequest) ([]Quotation, int, error)
	ListExpiredCandidates(ctx context.Context, asOf time.Time, limit int) ([]int64, error)
}

const quotationColumns = `q.id, q.number, q.customer_id, c.name, q.quote_date, q.valid_until, q.status,
	q.subtotal, q.discount_amount, q.tax_amount, q.total_amount, COALESCE(q.notes, ''), q.converted_sale_id,
	q.created_by, q.created_at, q.updated_at`

// QuotationStore persists quotations and their lines.
type QuotationStore struct {
	db db.DBTX
}

func NewQuotationStore(q db.DBTX) *QuotationStore {
	return &QuotationStore{db: q}
}

type txRepository struct {
	*QuotationStore
	*customers.CustomerStore
	*products.CatalogStore
	*numbering.Counter
}

func NewTxRepository(tx db.DBTX) TxRepository {
	return &txRepository{
		QuotationStore: NewQuotationStore(tx),
		CustomerStore:  customers.NewCustomerStore(tx),
		CatalogStore:   products.NewCatalogStore(tx),
		Counter:        numbering.NewCounter(tx),
	}
}

type repository struct {
	*QuotationStore
	pool *pgxpool.Pool
}

func NewRepository(pool *pgxpool.Pool) Repository {
	return &repository{QuotationStore: NewQuotationStore(pool), pool: pool}
}

func (r *repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, NewTxRepository(tx))
	})
}

func scanQuotation(row pgx.Row) (*Quotation, error) {
	var q Quotation
	err := row.Scan(&q.ID, &q.Number, &q.CustomerID, &q.CustomerName, &q.QuoteDate, &q.ValidUntil, &q.Status,
		&q.Subtotal, &q.DiscountAmount, &q.TaxAmount, &q.TotalAmount, &q.Notes, &q.ConvertedSaleID,
		&q.CreatedBy, &q.CreatedAt, &q.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &q, nil
}

func (s *QuotationStore) GetQuotation(ctx context.Context, id int64) (*Quotation, error) {
	return s.getQuotation(ctx, id, "")
}

// GetQuotationForUpdate locks the quotation row and loads its lines; the
// conversion workflow copies them into the sale.
func (s *QuotationStore) GetQuotationForUpdate(ctx context.Context, id int64) (*Quotation, error) {
	return s.getQuotation(ctx, id, " FOR UPDATE OF q")
}

func (s *QuotationStore) getQuotation(ctx context.Context, id int64, lock string) (*Quotation, error) {
	q, err := scanQuotation(s.db.QueryRow(ctx, `SELECT `+quotationColumns+`
		FROM quotations q JOIN customers c ON c.id = q.customer_id WHERE q.id = $1`+lock, id))
	if err != nil {
		return nil, db.NotFound(err, "quotation", id)
	}
	rows, err := s.db.Query(ctx, `
		SELECT id, quotation_id, product_id, product_name, product_sku, COALESCE(product_description, ''),
			quantity, unit_price, discount_amount, tax_amount, line_total, line_order
		FROM quotation_items WHERE quotation_id = $1 ORDER BY line_order, id`, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var l QuotationLine
		if err := rows.Scan(&l.ID, &l.QuotationID, &l.ProductID, &l.ProductName, &l.ProductSKU, &l.ProductDescription,
			&l.Quantity, &l.UnitPrice, &l.DiscountAmount, &l.TaxAmount, &l.LineTotal, &l.LineOrder); err != nil {
			return nil, err
		}
		q.Lines = append(q.Lines, l)
	}
	return q, rows.Err()
}

func (s *QuotationStore) InsertQuotation(ctx context.Context, q *Quotation) (int64, error) {
	var id int64
	err := s.db.QueryRow(ctx, `
		INSERT INTO quotations (number, customer_id, quote_date, valid_until, status,
			subtotal, discount_amount, tax_amount, total_amount, notes, created_by)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, NULLIF($10, ''), $11)
		RETURNING id`,
		q.Number, q.CustomerID, q.QuoteDate, q.ValidUntil, q.Status,
		q.Subtotal, q.DiscountAmount, q.TaxAmount, q.TotalAmount, q.Notes, q.CreatedBy,
	).Scan(&id)
	if err != nil {
		return 0, db.MapError(err)
	}
	return id, s.insertLines(ctx, id, q.Lines)
}

func (s *QuotationStore) insertLines(ctx context.Context, quotationID int64, lines []QuotationLine) error {
	for _, l := range lines {
		_, err := s.db.Exec(ctx, `
			INSERT INTO quotation_items (quotation_id, product_id, product_name, product_sku, product_description,
				quantity, unit_price, discount_amount, tax_amount, line_total, line_order)
			VALUES ($1, $2, $3, $4, NULLIF($5, ''), $6, $7, $8, $9, $10, $11)`,
			quotationID, l.ProductID, l.ProductName, l.ProductSKU, l.ProductDescription,
			l.Quantity, l.UnitPrice, l.DiscountAmount, l.TaxAmount, l.LineTotal, l.LineOrder)
		if err != nil {
			return fmt.Errorf("insert quotation line: %w", err)
		}
	}
	return nil
}

func (s *QuotationStore) UpdateQuotationDetails(ctx context.Context, id int64, d QuotationDetails) error {
	_, err := s.db.Exec(ctx, `
		UPDATE quotations SET quote_date = $2, valid_until = $3, notes = NULLIF($4, ''), updated_at = NOW()
		WHERE id = $1`, id, d.QuoteDate, d.ValidUntil, d.Notes)
	return err
}

func (s *QuotationStore) ReplaceQuotationLines(ctx context.Context, id int64, lines []QuotationLine, t shared.Totals) error {
	_, err := s.db.Exec(ctx, `
		UPDATE quotations SET subtotal = $2, discount_amount = $3, tax_amount = $4, total_amount = $5, updated_at = NOW()
		WHERE id = $1`, id, t.Subtotal, t.Discount, t.Tax, t.Total)
	if err != nil {
		return err
	}
	if _, err := s.db.Exec(ctx, `DELETE FROM quotation_items WHERE quotation_id = $1`, id); err != nil {
		return err
	}
	return s.insertLines(ctx, id, lines)
}

func (s *QuotationStore) UpdateQuotationStatus(ctx context.Context, id int64, from, to QuotationStatus) error {
	tag, err := s.db.Exec(ctx, `UPDATE quotations SET status = $3, updated_at = NOW() WHERE id = $1 AND status = $2`, id, from, to)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: quotation %d is no longer %s", shared.ErrConflict, id, from)
	}
	return nil
}

// MarkQuotationConverted closes an accepted quotation and links the sale.
func (s *QuotationStore) MarkQuotationConverted(ctx context.Context, id, saleID int64) error {
	tag, err := s.db.Exec(ctx, `
		UPDATE quotations SET status = 'converted', converted_sale_id = $2, updated_at = NOW()
		WHERE id = $1 AND status = 'accepted'`, id, saleID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: quotation %d is no longer accepted", shared.ErrConflict, id)
	}
	return nil
}

func (s *QuotationStore) DeleteQuotation(ctx context.Context, id int64) error {
	_, err := s.db.Exec(ctx, `DELETE FROM quotations WHERE id = $1`, id)
	return err
}

func (s *QuotationStore) ListQuotations(ctx context.Context, req ListQuotationsRequest) ([]Quotation, int, error) {
	conditions := []string{"1=1"}
	var args []interface{}
	argPos := 1

	if req.CustomerID != nil {
		conditions = append(conditions, fmt.Sprintf("q.customer_id = $%d", argPos))
		args = append(args, *req.CustomerID)
		argPos++
	}
	if req.Status != "" {
		conditions = append(conditions, fmt.Sprintf("q.status = $%d", argPos))
		args = append(args, req.Status)
		argPos++
	}
	if req.DateFrom != nil {
		conditions = append(conditions, fmt.Sprintf("q.quote_date >= $%d", argPos))
		args = append(args, *req.DateFrom)
		argPos++
	}
	if req.DateTo != nil {
		conditions = append(conditions, fmt.Sprintf("q.quote_date <= $%d", argPos))
		args = append(args, *req.DateTo)
		argPos++
	}
	if req.Search != "" {
		conditions = append(conditions, fmt.Sprintf("(q.number ILIKE $%d OR c.name ILIKE $%d)", argPos, argPos))
		args = append(args, "%"+req.Search+"%")
		argPos++
	}

	whereClause := "WHERE " + conditions[0]
	for i := 1; i < len(conditions); i++ {
		whereClause += " AND " + conditions[i]
	}

	var total int
	countQuery := fmt.Sprintf("SELECT COUNT(*) FROM quotations q JOIN customers c ON c.id = q.customer_id %s", whereClause)
	if err := s.db.QueryRow(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	limit := req.Limit
	if limit <= 0 {
		limit = 20
	}
	query := fmt.Sprintf(`
		SELECT %s
		FROM quotations q
		JOIN customers c ON q.customer_id = c.id
		%s
		ORDER BY q.quote_date DESC, q.id DESC
		LIMIT $%d OFFSET $%d
	`, quotationColumns, whereClause, argPos, argPos+1)
	args = append(args, limit, req.Offset)

	rows, err := s.db.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var out []Quotation
	for rows.Next() {
		q, err := scanQuotation(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, *q)
	}
	return out, total, rows.Err()
}

// ListExpiredCandidates returns sent quotations whose validity ended before asOf.
func (s *QuotationStore) ListExpiredCandidates(ctx context.Context, asOf time.Time, limit int) ([]int64, error) {
	rows, err := s.db.Query(ctx, `
		SELECT id FROM quotations WHERE status = 'sent' AND valid_until < $1::date
		ORDER BY valid_until, id LIMIT $2`, asOf, limit)
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
