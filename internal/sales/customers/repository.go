package customers

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/odyssey-erp/backoffice/internal/platform/db"
)

// Repository is the persistence port of the customer service.
type Repository interface {
	WithTx(ctx context.Context, fn func(context.Context, Repository) error) error
	GetCustomer(ctx context.Context, id int64) (*Customer, error)
	GetCustomerForUpdate(ctx context.Context, id int64) (*Customer, error)
	GetCustomerByCode(ctx context.Context, code string) (*Customer, error)
	ListCustomers(ctx context.Context, req ListCustomersRequest) ([]Customer, int, error)
	CreateCustomer(ctx context.Context, c Customer) (int64, error)
	UpdateCustomer(ctx context.Context, id int64, req UpdateCustomerRequest) error
	DeleteCustomer(ctx context.Context, id int64) error
	CountCustomerDependents(ctx context.Context, id int64) (Dependents, error)
	InsertCreditHistory(ctx context.Context, entry CreditHistoryEntry) (int64, error)
}

const customerColumns = `c.id, c.code, c.name, COALESCE(c.email, ''), COALESCE(c.phone, ''), COALESCE(c.address, ''),
	c.status, c.payment_terms_days, c.credit_limit, c.used_credit, c.available_credit, c.overdue_amount,
	c.total_outstanding, c.credit_status, c.created_at, c.updated_at`

// CustomerStore is the Postgres implementation of customer persistence, including the
// credit columns and credit history used by the credit engine.
type CustomerStore struct {
	db db.DBTX
}

// NewCustomerStore binds the store to a pool or transaction.
func NewCustomerStore(q db.DBTX) *CustomerStore {
	return &CustomerStore{db: q}
}

type repository struct {
	*CustomerStore
	pool *pgxpool.Pool
}

// NewRepository returns the pool-backed repository.
func NewRepository(pool *pgxpool.Pool) Repository {
	return &repository{CustomerStore: NewCustomerStore(pool), pool: pool}
}

func (r *repository) WithTx(ctx context.Context, fn func(context.Context, Repository) error) error {
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, &repository{CustomerStore: NewCustomerStore(tx), pool: r.pool})
	})
}

func scanCustomer(row pgx.Row) (*Customer, error) {
	var c Customer
	err := row.Scan(&c.ID, &c.Code, &c.Name, &c.Email, &c.Phone, &c.Address,
		&c.Status, &c.PaymentTermsDays, &c.CreditLimit, &c.UsedCredit, &c.AvailableCredit, &c.OverdueAmount,
		&c.TotalOutstanding, &c.CreditStatus, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &c, nil
}

// GetCustomer loads a customer without locking.
func (s *CustomerStore) GetCustomer(ctx context.Context, id int64) (*Customer, error) {
	c, err := scanCustomer(s.db.QueryRow(ctx, `SELECT `+customerColumns+` FROM customers c WHERE c.id = $1`, id))
	if err != nil {
		return nil, db.NotFound(err, "customer", id)
	}
	return c, nil
}

// GetCustomerForUpdate loads and row-locks a customer for the rest of the transaction.
func (s *CustomerStore) GetCustomerForUpdate(ctx context.Context, id int64) (*Customer, error) {
	c, err := scanCustomer(s.db.QueryRow(ctx, `SELECT `+customerColumns+` FROM customers c WHERE c.id = $1 FOR UPDATE`, id))
	if err != nil {
		return nil, db.NotFound(err, "customer", id)
	}
	return c, nil
}

func (s *CustomerStore) GetCustomerByCode(ctx context.Context, code string) (*Customer, error) {
	c, err := scanCustomer(s.db.QueryRow(ctx, `SELECT `+customerColumns+` FROM customers c WHERE c.code = $1`, code))
	if err != nil {
		return nil, db.NotFound(err, "customer", code)
	}
	return c, nil
}

func (s *CustomerStore) ListCustomers(ctx context.Context, req ListCustomersRequest) ([]Customer, int, error) {
	where := []string{"1=1"}
	args := []interface{}{}
	argPos := 1

	if req.Status != "" {
		where = append(where, fmt.Sprintf("c.status = $%d", argPos))
		args = append(args, req.Status)
		argPos++
	}
	if req.CreditStatus != "" {
		where = append(where, fmt.Sprintf("c.credit_status = $%d", argPos))
		args = append(args, req.CreditStatus)
		argPos++
	}
	if req.Search != "" {
		where = append(where, fmt.Sprintf("(c.name ILIKE $%d OR c.code ILIKE $%d)", argPos, argPos))
		args = append(args, "%"+req.Search+"%")
		argPos++
	}
	whereClause := strings.Join(where, " AND ")

	var total int
	if err := s.db.QueryRow(ctx, "SELECT COUNT(*) FROM customers c WHERE "+whereClause, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("customers: count: %w", err)
	}

	limit := req.Limit
	if limit <= 0 {
		limit = 20
	}
	query := fmt.Sprintf("SELECT %s FROM customers c WHERE %s ORDER BY c.name LIMIT $%d OFFSET $%d",
		customerColumns, whereClause, argPos, argPos+1)
	args = append(args, limit, req.Offset)

	rows, err := s.db.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("customers: list: %w", err)
	}
	defer rows.Close()

	var out []Customer
	for rows.Next() {
		c, err := scanCustomer(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, *c)
	}
	return out, total, rows.Err()
}

func (s *CustomerStore) CreateCustomer(ctx context.Context, c Customer) (int64, error) {
	var id int64
	err := s.db.QueryRow(ctx, `
		INSERT INTO customers (code, name, email, phone, address, status, payment_terms_days,
			credit_limit, used_credit, available_credit, overdue_amount, total_outstanding, credit_status)
		VALUES ($1, $2, NULLIF($3, ''), NULLIF($4, ''), NULLIF($5, ''), $6, $7, $8, $9, $10, $11, $12, $13)
		RETURNING id`,
		c.Code, c.Name, c.Email, c.Phone, c.Address, c.Status, c.PaymentTermsDays,
		c.CreditLimit, c.UsedCredit, c.AvailableCredit, c.OverdueAmount, c.TotalOutstanding, c.CreditStatus,
	).Scan(&id)
	if err != nil {
		return 0, db.MapError(err)
	}
	return id, nil
}

// UpdateCustomer applies the allow-listed fields only.
func (s *CustomerStore) UpdateCustomer(ctx context.Context, id int64, req UpdateCustomerRequest) error {
	sets := []string{}
	args := []interface{}{}
	argPos := 1
	add := func(column string, value interface{}) {
		sets = append(sets, fmt.Sprintf("%s = $%d", column, argPos))
		args = append(args, value)
		argPos++
	}
	if req.Name != nil {
		add("name", *req.Name)
	}
	if req.Email != nil {
		add("email", *req.Email)
	}
	if req.Phone != nil {
		add("phone", *req.Phone)
	}
	if req.Address != nil {
		add("address", *req.Address)
	}
	if req.PaymentTermsDays != nil {
		add("payment_terms_days", *req.PaymentTermsDays)
	}
	if req.Active != nil {
		status := StatusInactive
		if *req.Active {
			status = StatusActive
		}
		add("status", status)
	}
	if len(sets) == 0 {
		return nil
	}
	sets = append(sets, "updated_at = NOW()")
	args = append(args, id)
	tag, err := s.db.Exec(ctx, fmt.Sprintf("UPDATE customers SET %s WHERE id = $%d", strings.Join(sets, ", "), argPos), args...)
	if err != nil {
		return db.MapError(err)
	}
	if tag.RowsAffected() == 0 {
		return db.NotFound(pgx.ErrNoRows, "customer", id)
	}
	return nil
}

func (s *CustomerStore) DeleteCustomer(ctx context.Context, id int64) error {
	_, err := s.db.Exec(ctx, `DELETE FROM customers WHERE id = $1`, id)
	return err
}

func (s *CustomerStore) CountCustomerDependents(ctx context.Context, id int64) (Dependents, error) {
	var d Dependents
	err := s.db.QueryRow(ctx, `
		SELECT
			(SELECT COUNT(*) FROM sales WHERE customer_id = $1),
			(SELECT COUNT(*) FROM quotations WHERE customer_id = $1),
			(SELECT COUNT(*) FROM payments WHERE customer_id = $1)`, id,
	).Scan(&d.Sales, &d.Quotations, &d.Payments)
	return d, err
}

// SaveCustomerCredit writes the credit columns and status. Only the credit
// engine calls this.
func (s *CustomerStore) SaveCustomerCredit(ctx context.Context, c *Customer) error {
	_, err := s.db.Exec(ctx, `
		UPDATE customers
		SET status = $2, credit_limit = $3, used_credit = $4, available_credit = $5,
			overdue_amount = $6, total_outstanding = $7, credit_status = $8, updated_at = NOW()
		WHERE id = $1`,
		c.ID, c.Status, c.CreditLimit, c.UsedCredit, c.AvailableCredit, c.OverdueAmount, c.TotalOutstanding, c.CreditStatus)
	if err != nil {
		return fmt.Errorf("customers: save credit: %w", err)
	}
	return nil
}

// CustomerExposure sums the open balances of a customer's live sales. A sale is
// overdue once it carries the overdue status or its due date is before asOf.
func (s *CustomerStore) CustomerExposure(ctx context.Context, customerID int64, asOf time.Time) (Exposure, error) {
	var e Exposure
	err := s.db.QueryRow(ctx, `
		SELECT
			COALESCE(SUM(balance_amount) FILTER (WHERE balance_amount > 0), 0),
			COALESCE(SUM(balance_amount) FILTER (WHERE balance_amount > 0
				AND (status = 'overdue' OR (due_date IS NOT NULL AND due_date < $2::date))), 0)
		FROM sales
		WHERE customer_id = $1 AND status <> 'cancelled'`, customerID, asOf).Scan(&e.TotalOutstanding, &e.OverdueAmount)
	if err != nil {
		return Exposure{}, fmt.Errorf("customers: exposure: %w", err)
	}
	return e, nil
}

func (s *CustomerStore) InsertCreditHistory(ctx context.Context, e CreditHistoryEntry) (int64, error) {
	var id int64
	err := s.db.QueryRow(ctx, `
		INSERT INTO customer_credit_history (event_id, customer_id, kind, direction, amount,
			used_before, used_after, limit_before, limit_after, status_before, status_after,
			reason, reference_type, reference_id, created_by)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, NULLIF($13, ''), $14, $15)
		RETURNING id`,
		e.EventID, e.CustomerID, e.Kind, e.Direction, e.Amount,
		e.UsedBefore, e.UsedAfter, e.LimitBefore, e.LimitAfter, e.StatusBefore, e.StatusAfter,
		e.Reason, e.ReferenceType, e.ReferenceID, e.CreatedBy,
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("customers: insert credit history: %w", err)
	}
	return id, nil
}

func (s *CustomerStore) ListCreditHistory(ctx context.Context, customerID int64, limit, offset int) ([]CreditHistoryEntry, int, error) {
	var total int
	if err := s.db.QueryRow(ctx, `SELECT COUNT(*) FROM customer_credit_history WHERE customer_id = $1`, customerID).Scan(&total); err != nil {
		return nil, 0, err
	}
	rows, err := s.db.Query(ctx, `
		SELECT id, event_id, customer_id, kind, direction, amount, used_before, used_after,
			limit_before, limit_after, status_before, status_after, reason,
			COALESCE(reference_type, ''), reference_id, created_by, created_at
		FROM customer_credit_history
		WHERE customer_id = $1
		ORDER BY created_at DESC, id DESC
		LIMIT $2 OFFSET $3`, customerID, limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("customers: list credit history: %w", err)
	}
	defer rows.Close()

	var out []CreditHistoryEntry
	for rows.Next() {
		var e CreditHistoryEntry
		if err := rows.Scan(&e.ID, &e.EventID, &e.CustomerID, &e.Kind, &e.Direction, &e.Amount, &e.UsedBefore, &e.UsedAfter,
			&e.LimitBefore, &e.LimitAfter, &e.StatusBefore, &e.StatusAfter, &e.Reason,
			&e.ReferenceType, &e.ReferenceID, &e.CreatedBy, &e.CreatedAt); err != nil {
			return nil, 0, err
		}
		out = append(out, e)
	}
	return out, total, rows.Err()
}

// ListCustomerIDs returns ids of customers holding credit or open balances.
func (s *CustomerStore) ListCustomerIDs(ctx context.Context) ([]int64, error) {
	rows, err := s.db.Query(ctx, `
		SELECT id FROM customers
		WHERE used_credit > 0 OR total_outstanding > 0 OR overdue_amount > 0 OR credit_status <> 'good'
		   OR EXISTS (SELECT 1 FROM sales s WHERE s.customer_id = customers.id AND s.balance_amount > 0 AND s.status <> 'cancelled')
		ORDER BY id`)
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
