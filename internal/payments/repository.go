package payments

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/backoffice/internal/credit"
	"github.com/odyssey-erp/backoffice/internal/masterdata/suppliers"
	"github.com/odyssey-erp/backoffice/internal/numbering"
	"github.com/odyssey-erp/backoffice/internal/platform/db"
	"github.com/odyssey-erp/backoffice/internal/procurement"
	"github.com/odyssey-erp/backoffice/internal/sales/customers"
	"github.com/odyssey-erp/backoffice/internal/sales/orders"
	"github.com/odyssey-erp/backoffice/internal/shared"
)

// TxRepository is the ledger's view of one transaction: payments and
// allocations, the order rows they settle, and the customer credit rows.
type TxRepository interface {
	credit.Store
	GetSupplier(ctx context.Context, id int64) (*suppliers.Supplier, error)
	GetSaleForUpdate(ctx context.Context, id int64) (*orders.Sale, error)
	SetSaleBalance(ctx context.Context, id int64, paid, balance decimal.Decimal, status shared.PaymentStatus) error
	GetPurchaseForUpdate(ctx context.Context, id int64) (*procurement.Purchase, error)
	SetPurchaseBalance(ctx context.Context, id int64, paid, balance decimal.Decimal, status shared.PaymentStatus) error
	NextNumber(ctx context.Context, prefix string, at time.Time) (string, error)
	ClaimIdempotencyKey(ctx context.Context, key, scope string) error
	RecordAudit(ctx context.Context, log shared.AuditLog) error

	GetPayment(ctx context.Context, id int64) (*Payment, error)
	GetPaymentForUpdate(ctx context.Context, id int64) (*Payment, error)
	InsertPayment(ctx context.Context, p *Payment) (int64, error)
	InsertAllocation(ctx context.Context, a Allocation) (int64, error)
	DeletePaymentAllocations(ctx context.Context, paymentID int64) error
	SetPaymentAllocation(ctx context.Context, id int64, allocated, unallocated decimal.Decimal) error
	UpdatePaymentStatus(ctx context.Context, id int64, from, to Status) error
	DeletePayment(ctx context.Context, id int64) error
	SumOrderAllocations(ctx context.Context, ref OrderRef) (decimal.Decimal, error)
}

// Repository opens ledger transactions and serves payment reads.
type Repository interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	GetPayment(ctx context.Context, id int64) (*Payment, error)
	ListPayments(ctx context.Context, req ListPaymentsRequest) ([]Payment, int, error)
	ListOrderAllocations(ctx context.Context, ref OrderRef) ([]Allocation, error)
}

const paymentColumns = `p.id, p.number, p.party_type, COALESCE(p.customer_id, p.supplier_id), COALESCE(c.name, s.name, ''),
	p.payment_date, p.amount, p.allocated_amount, p.unallocated_amount, p.method, COALESCE(p.reference, ''),
	p.status, COALESCE(p.notes, ''), p.created_by, p.created_at, p.updated_at`

const paymentFrom = `payments p
	LEFT JOIN customers c ON c.id = p.customer_id
	LEFT JOIN suppliers s ON s.id = p.supplier_id`

// PaymentStore persists payments and allocations.
type PaymentStore struct {
	db db.DBTX
}

func NewPaymentStore(q db.DBTX) *PaymentStore {
	return &PaymentStore{db: q}
}

type txRepository struct {
	*PaymentStore
	*orders.SaleStore
	*procurement.PurchaseStore
	*customers.CustomerStore
	*suppliers.SupplierStore
	*numbering.Counter
	*shared.IdempotencyStore
	*shared.AuditLogger
}

// NewTxRepository binds every store the ledger touches to tx.
func NewTxRepository(tx db.DBTX) TxRepository {
	return &txRepository{
		PaymentStore:     NewPaymentStore(tx),
		SaleStore:        orders.NewSaleStore(tx),
		PurchaseStore:    procurement.NewPurchaseStore(tx),
		CustomerStore:    customers.NewCustomerStore(tx),
		SupplierStore:    suppliers.NewSupplierStore(tx),
		Counter:          numbering.NewCounter(tx),
		IdempotencyStore: shared.NewIdempotencyStore(tx),
		AuditLogger:      shared.NewAuditLogger(tx),
	}
}

type repository struct {
	*PaymentStore
	pool *pgxpool.Pool
}

// NewRepository returns the pool-backed ledger repository.
func NewRepository(pool *pgxpool.Pool) Repository {
	return &repository{PaymentStore: NewPaymentStore(pool), pool: pool}
}

func (r *repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, NewTxRepository(tx))
	})
}

func scanPayment(row pgx.Row) (*Payment, error) {
	var p Payment
	if err := row.Scan(&p.ID, &p.Number, &p.PartyType, &p.PartyID, &p.PartyName,
		&p.PaymentDate, &p.Amount, &p.AllocatedAmount, &p.UnallocatedAmount, &p.Method, &p.Reference,
		&p.Status, &p.Notes, &p.CreatedBy, &p.CreatedAt, &p.UpdatedAt); err != nil {
		return nil, err
	}
	return &p, nil
}

// GetPayment loads a payment and its allocations.
func (s *PaymentStore) GetPayment(ctx context.Context, id int64) (*Payment, error) {
	return s.getPayment(ctx, id, "")
}

// GetPaymentForUpdate locks the payment row before loading its allocations.
func (s *PaymentStore) GetPaymentForUpdate(ctx context.Context, id int64) (*Payment, error) {
	return s.getPayment(ctx, id, " FOR UPDATE OF p")
}

func (s *PaymentStore) getPayment(ctx context.Context, id int64, lock string) (*Payment, error) {
	p, err := scanPayment(s.db.QueryRow(ctx, `SELECT `+paymentColumns+` FROM `+paymentFrom+` WHERE p.id = $1`+lock, id))
	if err != nil {
		return nil, db.NotFound(err, "payment", id)
	}
	p.Allocations, err = s.queryAllocations(ctx, `WHERE payment_id = $1`, id)
	if err != nil {
		return nil, err
	}
	return p, nil
}

func (s *PaymentStore) queryAllocations(ctx context.Context, where string, args ...any) ([]Allocation, error) {
	rows, err := s.db.Query(ctx, `
		SELECT id, payment_id, order_type, order_id, order_number, amount, created_at
		FROM payment_allocations `+where+` ORDER BY id`, args...)
	if err != nil {
		return nil, fmt.Errorf("payments: allocations: %w", err)
	}
	defer rows.Close()
	var out []Allocation
	for rows.Next() {
		var a Allocation
		if err := rows.Scan(&a.ID, &a.PaymentID, &a.OrderType, &a.OrderID, &a.OrderNumber, &a.Amount, &a.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

// ListOrderAllocations returns every allocation that references ref.
func (s *PaymentStore) ListOrderAllocations(ctx context.Context, ref OrderRef) ([]Allocation, error) {
	return s.queryAllocations(ctx, `WHERE order_type = $1 AND order_id = $2`, ref.Type, ref.ID)
}

// InsertPayment writes the payment header. The party is stored in the
// customer_id or supplier_id column so both keep their foreign keys.
func (s *PaymentStore) InsertPayment(ctx context.Context, p *Payment) (int64, error) {
	var customerID, supplierID *int64
	if p.PartyType == PartySupplier {
		supplierID = &p.PartyID
	} else {
		customerID = &p.PartyID
	}
	var id int64
	err := s.db.QueryRow(ctx, `
		INSERT INTO payments (number, party_type, customer_id, supplier_id, payment_date, amount,
			allocated_amount, unallocated_amount, method, reference, status, notes, created_by)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, NULLIF($10, ''), $11, NULLIF($12, ''), $13)
		RETURNING id`,
		p.Number, p.PartyType, customerID, supplierID, p.PaymentDate, p.Amount,
		p.AllocatedAmount, p.UnallocatedAmount, p.Method, p.Reference, p.Status, p.Notes, p.CreatedBy,
	).Scan(&id)
	if err != nil {
		return 0, db.MapError(err)
	}
	return id, nil
}

// InsertAllocation writes one allocation row with the order number snapshot.
func (s *PaymentStore) InsertAllocation(ctx context.Context, a Allocation) (int64, error) {
	var id int64
	err := s.db.QueryRow(ctx, `
		INSERT INTO payment_allocations (payment_id, order_type, order_id, order_number, amount)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id`, a.PaymentID, a.OrderType, a.OrderID, a.OrderNumber, a.Amount).Scan(&id)
	if err != nil {
		return 0, db.MapError(err)
	}
	return id, nil
}

func (s *PaymentStore) DeletePaymentAllocations(ctx context.Context, paymentID int64) error {
	_, err := s.db.Exec(ctx, `DELETE FROM payment_allocations WHERE payment_id = $1`, paymentID)
	return err
}

// SetPaymentAllocation stores the allocated/unallocated split.
func (s *PaymentStore) SetPaymentAllocation(ctx context.Context, id int64, allocated, unallocated decimal.Decimal) error {
	_, err := s.db.Exec(ctx, `
		UPDATE payments SET allocated_amount = $2, unallocated_amount = $3, updated_at = NOW()
		WHERE id = $1`, id, allocated, unallocated)
	return err
}

func (s *PaymentStore) UpdatePaymentStatus(ctx context.Context, id int64, from, to Status) error {
	tag, err := s.db.Exec(ctx, `UPDATE payments SET status = $3, updated_at = NOW() WHERE id = $1 AND status = $2`, id, from, to)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: payment %d is no longer %s", shared.ErrConflict, id, from)
	}
	return nil
}

func (s *PaymentStore) DeletePayment(ctx context.Context, id int64) error {
	_, err := s.db.Exec(ctx, `DELETE FROM payments WHERE id = $1`, id)
	return err
}

// SumOrderAllocations is the authoritative paid amount of an order.
func (s *PaymentStore) SumOrderAllocations(ctx context.Context, ref OrderRef) (decimal.Decimal, error) {
	var sum decimal.Decimal
	err := s.db.QueryRow(ctx, `
		SELECT COALESCE(SUM(amount), 0) FROM payment_allocations
		WHERE order_type = $1 AND order_id = $2`, ref.Type, ref.ID).Scan(&sum)
	return sum, err
}

// ListPayments returns payments with party names, newest first.
func (s *PaymentStore) ListPayments(ctx context.Context, req ListPaymentsRequest) ([]Payment, int, error) {
	where := []string{"1=1"}
	var args []any
	add := func(cond string, v any) {
		args = append(args, v)
		where = append(where, fmt.Sprintf(cond, len(args)))
	}
	if req.PartyType != "" {
		add("p.party_type = $%d", req.PartyType)
	}
	if req.PartyID != nil {
		add("COALESCE(p.customer_id, p.supplier_id) = $%d", *req.PartyID)
	}
	if req.Status != "" {
		add("p.status = $%d", req.Status)
	}
	if req.Method != "" {
		add("p.method = $%d", req.Method)
	}
	if req.DateFrom != nil {
		add("p.payment_date >= $%d", *req.DateFrom)
	}
	if req.DateTo != nil {
		add("p.payment_date <= $%d", *req.DateTo)
	}
	if req.Search != "" {
		args = append(args, "%"+req.Search+"%")
		n := len(args)
		where = append(where, fmt.Sprintf("(p.number ILIKE $%d OR p.reference ILIKE $%d OR c.name ILIKE $%d OR s.name ILIKE $%d)", n, n, n, n))
	}
	clause := strings.Join(where, " AND ")

	var total int
	if err := s.db.QueryRow(ctx, `SELECT COUNT(*) FROM `+paymentFrom+` WHERE `+clause, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("payments: count: %w", err)
	}
	limit := req.Limit
	if limit <= 0 {
		limit = 20
	}
	query := fmt.Sprintf(`SELECT %s FROM %s WHERE %s ORDER BY p.payment_date DESC, p.id DESC LIMIT $%d OFFSET $%d`,
		paymentColumns, paymentFrom, clause, len(args)+1, len(args)+2)
	args = append(args, limit, req.Offset)

	rows, err := s.db.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("payments: list: %w", err)
	}
	defer rows.Close()
	var out []Payment
	for rows.Next() {
		p, err := scanPayment(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, *p)
	}
	return out, total, rows.Err()
}
