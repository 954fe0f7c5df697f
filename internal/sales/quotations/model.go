package quotations

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/backoffice/internal/lifecycle"
	"github.com/odyssey-erp/backoffice/internal/shared"
)

type QuotationStatus string

const (
	QuotationStatusDraft     QuotationStatus = "draft"
	QuotationStatusSent      QuotationStatus = "sent"
	QuotationStatusAccepted  QuotationStatus = "accepted"
	QuotationStatusDeclined  QuotationStatus = "declined"
	QuotationStatusExpired   QuotationStatus = "expired"
	QuotationStatusConverted QuotationStatus = "converted"
)

// Transitions is the quotation lifecycle. Converted is only reached through
// the conversion workflow.
var Transitions = lifecycle.Table[QuotationStatus]{
	QuotationStatusDraft:     {QuotationStatusSent, QuotationStatusDeclined},
	QuotationStatusSent:      {QuotationStatusAccepted, QuotationStatusDeclined, QuotationStatusExpired},
	QuotationStatusAccepted:  {QuotationStatusConverted},
	QuotationStatusDeclined:  {},
	QuotationStatusExpired:   {},
	QuotationStatusConverted: {},
}

type Quotation struct {
	ID              int64           `json:"id"`
	Number          string          `json:"number"`
	CustomerID      int64           `json:"customer_id"`
	CustomerName    string          `json:"customer_name,omitempty"`
	QuoteDate       time.Time       `json:"quote_date"`
	ValidUntil      time.Time       `json:"valid_until"`
	Status          QuotationStatus `json:"status"`
	Subtotal        decimal.Decimal `json:"subtotal"`
	DiscountAmount  decimal.Decimal `json:"discount_amount"`
	TaxAmount       decimal.Decimal `json:"tax_amount"`
	TotalAmount     decimal.Decimal `json:"total_amount"`
	Notes           string          `json:"notes,omitempty"`
	ConvertedSaleID *int64          `json:"converted_sale_id,omitempty"`
	CreatedBy       int64           `json:"created_by"`
	CreatedAt       time.Time       `json:"created_at"`
	UpdatedAt       time.Time       `json:"updated_at"`
	Lines           []QuotationLine `json:"lines,omitempty"`
}

type QuotationLine struct {
	ID                 int64           `json:"id"`
	QuotationID        int64           `json:"quotation_id"`
	ProductID          int64           `json:"product_id"`
	ProductName        string          `json:"product_name"`
	ProductSKU         string          `json:"product_sku"`
	ProductDescription string          `json:"product_description,omitempty"`
	Quantity           decimal.Decimal `json:"quantity"`
	UnitPrice          decimal.Decimal `json:"unit_price"`
	DiscountAmount     decimal.Decimal `json:"discount_amount"`
	TaxAmount          decimal.Decimal `json:"tax_amount"`
	LineTotal          decimal.Decimal `json:"line_total"`
	LineOrder          int             `json:"line_order"`
}

func (q *Quotation) Totals() shared.Totals {
	return shared.Totals{Subtotal: q.Subtotal, Discount: q.DiscountAmount, Tax: q.TaxAmount, Total: q.TotalAmount}
}

func (q *Quotation) applyTotals(t shared.Totals) {
	q.Subtotal, q.DiscountAmount, q.TaxAmount, q.TotalAmount = t.Subtotal, t.Discount, t.Tax, t.Total
}

// IsExpiredAt reports whether a sent quotation has passed its validity date.
func (q *Quotation) IsExpiredAt(asOf time.Time) bool {
	return q.Status == QuotationStatusSent && q.ValidUntil.Before(asOf)
}
