package orders

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/backoffice/internal/masterdata/products"
	"github.com/odyssey-erp/backoffice/internal/shared"
)

// CreateSaleRequest opens a sale. QuotationID is set by the conversion
// workflow only.
type CreateSaleRequest struct {
	CustomerID  int64       `json:"customer_id" validate:"required,gt=0"`
	SaleDate    time.Time   `json:"sale_date"`
	DueDate     *time.Time  `json:"due_date,omitempty"`
	Notes       string      `json:"notes,omitempty" validate:"max=2000"`
	Items       []ItemInput `json:"items" validate:"required,min=1,dive"`
	QuotationID *int64      `json:"-"`
}

// ItemInput describes one requested line. Snapshot is filled in when the line
// is copied from a quotation and is never accepted from clients.
type ItemInput struct {
	ProductID      int64              `json:"product_id" validate:"required,gt=0"`
	Quantity       decimal.Decimal    `json:"quantity"`
	UnitPrice      decimal.Decimal    `json:"unit_price"`
	DiscountAmount decimal.Decimal    `json:"discount_amount"`
	TaxAmount      decimal.Decimal    `json:"tax_amount"`
	Snapshot       *products.Snapshot `json:"-"`
}

func (in ItemInput) amount() shared.LineAmount {
	return shared.LineAmount{Quantity: in.Quantity, UnitPrice: in.UnitPrice, Discount: in.DiscountAmount, Tax: in.TaxAmount}
}

// UpdateSaleRequest is the allow-list of editable sale fields. Replacing items
// recomputes totals; payment fields are not reachable from here.
type UpdateSaleRequest struct {
	SaleDate *time.Time  `json:"sale_date,omitempty"`
	DueDate  *time.Time  `json:"due_date,omitempty"`
	Notes    *string     `json:"notes,omitempty" validate:"omitempty,max=2000"`
	Items    []ItemInput `json:"items,omitempty" validate:"omitempty,min=1,dive"`
}

// SaleDetails are the header fields written by an update.
type SaleDetails struct {
	SaleDate time.Time
	DueDate  *time.Time
	Notes    string
}

// TransitionRequest asks for a status change.
type TransitionRequest struct {
	Status Status `json:"status" validate:"required"`
}

// ListSalesRequest filters the sales listing.
type ListSalesRequest struct {
	CustomerID    *int64               `json:"customer_id,omitempty"`
	Status        Status               `json:"status,omitempty"`
	PaymentStatus shared.PaymentStatus `json:"payment_status,omitempty"`
	DateFrom      *time.Time           `json:"date_from,omitempty"`
	DateTo        *time.Time           `json:"date_to,omitempty"`
	Search        string               `json:"search,omitempty"`
	Limit         int                  `json:"limit"`
	Offset        int                  `json:"offset"`
}
