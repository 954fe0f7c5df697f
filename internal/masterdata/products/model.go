package products

import (
	"time"

	"github.com/shopspring/decimal"
)

// Product represents a catalog entry.
type Product struct {
	ID          int64           `json:"id"`
	SKU         string          `json:"sku"`
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Price       decimal.Decimal `json:"price"`
	IsActive    bool            `json:"is_active"`
	CreatedAt   time.Time       `json:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at"`
}

// Snapshot is the copy of catalog fields frozen onto an order line.
type Snapshot struct {
	Name        string `json:"product_name"`
	SKU         string `json:"product_sku"`
	Description string `json:"product_description"`
}

// Snapshot freezes the display fields of p.
func (p Product) Snapshot() Snapshot {
	return Snapshot{Name: p.Name, SKU: p.SKU, Description: p.Description}
}
