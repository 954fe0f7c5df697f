package procurement

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/backoffice/internal/shared"
)

// CreatePurchaseRequest opens a purchase.
type CreatePurchaseRequest struct {
	SupplierID   int64       `json:"supplier_id" validate:"required,gt=0"`
	PurchaseDate time.Time   `json:"purchase_date"`
	ExpectedDate *time.Time  `json:"expected_date,omitempty"`
	Notes        string      `json:"notes,omitempty" validate:"max=2000"`
	Items        []ItemInput `json:"items" validate:"required,min=1,dive"`
}

// ItemInput is one requested purchase line.
type ItemInput struct {
	ProductID      int64           `json:"product_id" validate:"required,gt=0"`
	Quantity       decimal.Decimal `json:"quantity"`
	UnitCost       decimal.Decimal `json:"unit_cost"`
	DiscountAmount decimal.Decimal `json:"discount_amount"`
	TaxAmount      decimal.Decimal `json:"tax_amount"`
}

func (in ItemInput) amount() shared.LineAmount {
	return shared.LineAmount{Quantity: in.Quantity, UnitPrice: in.UnitCost, Discount: in.DiscountAmount, Tax: in.TaxAmount}
}

// UpdatePurchaseRequest holds the editable purchase fields.
type UpdatePurchaseRequest struct {
	PurchaseDate *time.Time  `json:"purchase_date,omitempty"`
	ExpectedDate *time.Time  `json:"expected_date,omitempty"`
	Notes        *string     `json:"notes,omitempty" validate:"omitempty,max=2000"`
	Items        []ItemInput `json:"items,omitempty" validate:"omitempty,min=1,dive"`
}

// PurchaseDetails are the header fields written by an update.
type PurchaseDetails struct {
	PurchaseDate time.Time
	ExpectedDate *time.Time
	Notes        string
}

// TransitionRequest asks for a status change.
type TransitionRequest struct {
	Status Status `json:"status" validate:"required"`
}

// ListPurchasesRequest filters the purchase listing.
type ListPurchasesRequest struct {
	SupplierID    *int64
	Status        Status
	PaymentStatus shared.PaymentStatus
	DateFrom      *time.Time
	DateTo        *time.Time
	Search        string
	SortBy        string
	SortDir       string
	Limit         int
	Offset        int
}
