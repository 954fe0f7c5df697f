package products

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/odyssey-erp/backoffice/internal/platform/db"
	"github.com/odyssey-erp/backoffice/internal/shared"
)

const productColumns = `id, sku, name, COALESCE(description, ''), price, is_active, created_at, updated_at`

// CatalogStore reads and writes the product catalog.
type CatalogStore struct {
	db db.DBTX
}

// NewCatalogStore binds the store to a pool or transaction.
func NewCatalogStore(q db.DBTX) *CatalogStore {
	return &CatalogStore{db: q}
}

func NewRepository(pool *pgxpool.Pool) Repository {
	return NewCatalogStore(pool)
}

func scanProduct(row pgx.Row) (*Product, error) {
	var p Product
	err := row.Scan(&p.ID, &p.SKU, &p.Name, &p.Description, &p.Price, &p.IsActive, &p.CreatedAt, &p.UpdatedAt)
	return &p, err
}

// FindProductsByIDs returns the products whose id is in ids. Missing ids are
// simply absent from the result.
func (s *CatalogStore) FindProductsByIDs(ctx context.Context, ids []int64) ([]Product, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	rows, err := s.db.Query(ctx, `SELECT `+productColumns+` FROM products WHERE id = ANY($1) ORDER BY id`, ids)
	if err != nil {
		return nil, fmt.Errorf("products: find by ids: %w", err)
	}
	defer rows.Close()

	var out []Product
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *p)
	}
	return out, rows.Err()
}

func (s *CatalogStore) GetProduct(ctx context.Context, id int64) (*Product, error) {
	p, err := scanProduct(s.db.QueryRow(ctx, `SELECT `+productColumns+` FROM products WHERE id = $1`, id))
	if err != nil {
		return nil, db.NotFound(err, "product", id)
	}
	return p, nil
}

func (s *CatalogStore) ListProducts(ctx context.Context, filters ListFilters) ([]Product, int, error) {
	var conds []string
	var args []any
	if filters.IsActive != nil {
		args = append(args, *filters.IsActive)
		conds = append(conds, fmt.Sprintf("is_active = $%d", len(args)))
	}
	if filters.Search != "" {
		args = append(args, "%"+filters.Search+"%")
		conds = append(conds, fmt.Sprintf("(sku ILIKE $%d OR name ILIKE $%d)", len(args), len(args)))
	}
	where := ""
	if len(conds) > 0 {
		where = " WHERE " + strings.Join(conds, " AND ")
	}

	var total int
	if err := s.db.QueryRow(ctx, `SELECT COUNT(*) FROM products`+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("products: count: %w", err)
	}
	args = append(args, filters.Limit, filters.Offset)
	rows, err := s.db.Query(ctx, `SELECT `+productColumns+` FROM products`+where+
		fmt.Sprintf(" ORDER BY name ASC LIMIT $%d OFFSET $%d", len(args)-1, len(args)), args...)
	if err != nil {
		return nil, 0, fmt.Errorf("products: list: %w", err)
	}
	defer rows.Close()
	var out []Product
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, *p)
	}
	return out, total, rows.Err()
}

func (s *CatalogStore) CreateProduct(ctx context.Context, p *Product) (int64, error) {
	var id int64
	err := s.db.QueryRow(ctx, `
		INSERT INTO products (sku, name, description, price, is_active, created_at, updated_at)
		VALUES ($1, $2, NULLIF($3, ''), $4, $5, NOW(), NOW())
		RETURNING id`, p.SKU, p.Name, p.Description, p.Price, p.IsActive).Scan(&id)
	if err != nil {
		return 0, db.MapError(err)
	}
	return id, nil
}

func (s *CatalogStore) UpdateProduct(ctx context.Context, id int64, in ProductInput) error {
	tag, err := s.db.Exec(ctx, `
		UPDATE products SET sku = $2, name = $3, description = NULLIF($4, ''), price = $5,
			is_active = COALESCE($6, is_active), updated_at = NOW()
		WHERE id = $1`, id, in.SKU, in.Name, in.Description, in.Price, in.IsActive)
	if err != nil {
		return db.MapError(err)
	}
	if tag.RowsAffected() == 0 {
		return &shared.NotFoundError{Entity: "product", ID: id}
	}
	return nil
}
