package quotations

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/backoffice/internal/shared"
)

type CreateQuotationRequest struct {
	CustomerID int64                    `json:"customer_id" validate:"required,gt=0"`
	QuoteDate  time.Time                `json:"quote_date"`
	ValidUntil time.Time                `json:"valid_until" validate:"required"`
	Notes      string                   `json:"notes,omitempty" validate:"max=2000"`
	Lines      []CreateQuotationLineReq `json:"lines" validate:"required,min=1,dive"`
}

type CreateQuotationLineReq struct {
	ProductID      int64           `json:"product_id" validate:"required,gt=0"`
	Quantity       decimal.Decimal `json:"quantity"`
	UnitPrice      decimal.Decimal `json:"unit_price"`
	DiscountAmount decimal.Decimal `json:"discount_amount"`
	TaxAmount      decimal.Decimal `json:"tax_amount"`
}

func (l CreateQuotationLineReq) amount() shared.LineAmount {
	return shared.LineAmount{Quantity: l.Quantity, UnitPrice: l.UnitPrice, Discount: l.DiscountAmount, Tax: l.TaxAmount}
}

// UpdateQuotationRequest is accepted only while the quotation is a draft.
type UpdateQuotationRequest struct {
	QuoteDate  *time.Time               `json:"quote_date,omitempty"`
	ValidUntil *time.Time               `json:"valid_until,omitempty"`
	Notes      *string                  `json:"notes,omitempty" validate:"omitempty,max=2000"`
	Lines      []CreateQuotationLineReq `json:"lines,omitempty" validate:"omitempty,min=1,dive"`
}

type QuotationDetails struct {
	QuoteDate  time.Time
	ValidUntil time.Time
	Notes      string
}

type TransitionRequest struct {
	Status QuotationStatus `json:"status" validate:"required"`
}

type ListQuotationsRequest struct {
	CustomerID *int64
	Status     QuotationStatus
	DateFrom   *time.Time
	DateTo     *time.Time
	Search     string
	Limit      int
	Offset     int
}
