package suppliers

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/odyssey-erp/backoffice/internal/platform/db"
	"github.com/odyssey-erp/backoffice/internal/shared"
)

const supplierColumns = `id, code, name, COALESCE(email, ''), COALESCE(phone, ''), COALESCE(address, ''), status, created_at, updated_at`

// Repository is the persistence port of the supplier service.
type Repository interface {
	GetSupplier(ctx context.Context, id int64) (*Supplier, error)
	ListSuppliers(ctx context.Context, filters ListFilters) ([]Supplier, int, error)
	CreateSupplier(ctx context.Context, s *Supplier) (int64, error)
	UpdateSupplier(ctx context.Context, id int64, in SupplierInput) error
	UpdateSupplierStatus(ctx context.Context, id int64, status Status) error
}

// SupplierStore reads and writes suppliers.
type SupplierStore struct {
	db db.DBTX
}

// NewSupplierStore binds the store to a pool or transaction.
func NewSupplierStore(q db.DBTX) *SupplierStore {
	return &SupplierStore{db: q}
}

// NewRepository returns the pool-backed store.
func NewRepository(pool *pgxpool.Pool) Repository {
	return NewSupplierStore(pool)
}

func scanSupplier(row pgx.Row) (*Supplier, error) {
	var sp Supplier
	err := row.Scan(&sp.ID, &sp.Code, &sp.Name, &sp.Email, &sp.Phone, &sp.Address, &sp.Status, &sp.CreatedAt, &sp.UpdatedAt)
	return &sp, err
}

// GetSupplier loads a supplier by id.
func (s *SupplierStore) GetSupplier(ctx context.Context, id int64) (*Supplier, error) {
	sp, err := scanSupplier(s.db.QueryRow(ctx, `SELECT `+supplierColumns+` FROM suppliers WHERE id = $1`, id))
	if err != nil {
		return nil, db.NotFound(err, "supplier", id)
	}
	return sp, nil
}

func (s *SupplierStore) ListSuppliers(ctx context.Context, filters ListFilters) ([]Supplier, int, error) {
	var conds []string
	var args []any
	if filters.Status != "" {
		args = append(args, filters.Status)
		conds = append(conds, fmt.Sprintf("status = $%d", len(args)))
	}
	if filters.Search != "" {
		args = append(args, "%"+filters.Search+"%")
		conds = append(conds, fmt.Sprintf("(code ILIKE $%d OR name ILIKE $%d)", len(args), len(args)))
	}
	where := ""
	if len(conds) > 0 {
		where = " WHERE " + strings.Join(conds, " AND ")
	}

	var total int
	if err := s.db.QueryRow(ctx, `SELECT COUNT(*) FROM suppliers`+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("suppliers: count: %w", err)
	}
	args = append(args, filters.Limit, filters.Offset)
	rows, err := s.db.Query(ctx, `SELECT `+supplierColumns+` FROM suppliers`+where+
		fmt.Sprintf(" ORDER BY name ASC LIMIT $%d OFFSET $%d", len(args)-1, len(args)), args...)
	if err != nil {
		return nil, 0, fmt.Errorf("suppliers: list: %w", err)
	}
	defer rows.Close()
	var out []Supplier
	for rows.Next() {
		sp, err := scanSupplier(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, *sp)
	}
	return out, total, rows.Err()
}

func (s *SupplierStore) CreateSupplier(ctx context.Context, sp *Supplier) (int64, error) {
	var id int64
	err := s.db.QueryRow(ctx, `
		INSERT INTO suppliers (code, name, email, phone, address, status, created_at, updated_at)
		VALUES ($1, $2, NULLIF($3, ''), NULLIF($4, ''), NULLIF($5, ''), $6, NOW(), NOW())
		RETURNING id`, sp.Code, sp.Name, sp.Email, sp.Phone, sp.Address, sp.Status).Scan(&id)
	if err != nil {
		return 0, db.MapError(err)
	}
	return id, nil
}

func (s *SupplierStore) UpdateSupplier(ctx context.Context, id int64, in SupplierInput) error {
	tag, err := s.db.Exec(ctx, `
		UPDATE suppliers SET code = $2, name = $3, email = NULLIF($4, ''), phone = NULLIF($5, ''),
			address = NULLIF($6, ''), updated_at = NOW()
		WHERE id = $1`, id, in.Code, in.Name, in.Email, in.Phone, in.Address)
	if err != nil {
		return db.MapError(err)
	}
	if tag.RowsAffected() == 0 {
		return &shared.NotFoundError{Entity: "supplier", ID: id}
	}
	return nil
}

func (s *SupplierStore) UpdateSupplierStatus(ctx context.Context, id int64, status Status) error {
	tag, err := s.db.Exec(ctx, `UPDATE suppliers SET status = $2, updated_at = NOW() WHERE id = $1`, id, status)
	if err != nil {
		return db.MapError(err)
	}
	if tag.RowsAffected() == 0 {
		return &shared.NotFoundError{Entity: "supplier", ID: id}
	}
	return nil
}
