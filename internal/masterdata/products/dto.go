package products

import "github.com/shopspring/decimal"

// ProductInput is the editable part of a catalog entry.
type ProductInput struct {
	SKU         string          `json:"sku" validate:"required,max=64"`
	Name        string          `json:"name" validate:"required,max=200"`
	Description string          `json:"description,omitempty" validate:"max=2000"`
	Price       decimal.Decimal `json:"price"`
	IsActive    *bool           `json:"is_active,omitempty"`
}

// ListFilters narrows the catalog listing.
type ListFilters struct {
	Search   string
	IsActive *bool
	Limit    int
	Offset   int
}
