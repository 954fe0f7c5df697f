package orders

import (
	"slices"
	"time"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/backoffice/internal/lifecycle"
	"github.com/odyssey-erp/backoffice/internal/shared"
)

// Status of a sale.
type Status string

const (
	StatusPending   Status = "pending"
	StatusConfirmed Status = "confirmed"
	StatusDelivered Status = "delivered"
	StatusOverdue   Status = "overdue"
	StatusCancelled Status = "cancelled"
)

// Transitions is the sale lifecycle. Overdue is reachable from every live
// status; the payment guards live in CheckTransition.
var Transitions = lifecycle.Table[Status]{
	StatusPending:   {StatusConfirmed, StatusOverdue, StatusCancelled},
	StatusConfirmed: {StatusDelivered, StatusOverdue, StatusCancelled},
	StatusDelivered: {StatusOverdue},
	StatusOverdue:   {StatusCancelled},
	StatusCancelled: {},
}

// overdueSources are the statuses the overdue sweep moves from.
var overdueSources = []Status{StatusPending, StatusConfirmed, StatusDelivered}

// Sale is a customer order with its payment position. PaidAmount,
// BalanceAmount and PaymentStatus are written only by the payment ledger.
type Sale struct {
	ID             int64                `json:"id"`
	Number         string               `json:"number"`
	CustomerID     int64                `json:"customer_id"`
	CustomerName   string               `json:"customer_name,omitempty"`
	QuotationID    *int64               `json:"quotation_id,omitempty"`
	SaleDate       time.Time            `json:"sale_date"`
	DueDate        *time.Time           `json:"due_date,omitempty"`
	Status         Status               `json:"status"`
	PaymentStatus  shared.PaymentStatus `json:"payment_status"`
	Subtotal       decimal.Decimal      `json:"subtotal"`
	DiscountAmount decimal.Decimal      `json:"discount_amount"`
	TaxAmount      decimal.Decimal      `json:"tax_amount"`
	TotalAmount    decimal.Decimal      `json:"total_amount"`
	PaidAmount     decimal.Decimal      `json:"paid_amount"`
	BalanceAmount  decimal.Decimal      `json:"balance_amount"`
	Notes          string               `json:"notes,omitempty"`
	CreatedBy      int64                `json:"created_by"`
	CreatedAt      time.Time            `json:"created_at"`
	UpdatedAt      time.Time            `json:"updated_at"`
	Items          []Item               `json:"items,omitempty"`
}

// Item is a sale line with the catalog fields frozen at creation.
type Item struct {
	ID                 int64           `json:"id"`
	SaleID             int64           `json:"sale_id"`
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

// Totals returns the header amounts.
func (s *Sale) Totals() shared.Totals {
	return shared.Totals{Subtotal: s.Subtotal, Discount: s.DiscountAmount, Tax: s.TaxAmount, Total: s.TotalAmount}
}

func (s *Sale) applyTotals(t shared.Totals) {
	s.Subtotal, s.DiscountAmount, s.TaxAmount, s.TotalAmount = t.Subtotal, t.Discount, t.Tax, t.Total
}

// IsModifiable reports whether header and lines may still be edited.
func (s *Sale) IsModifiable() bool {
	return s.Status == StatusPending && !s.PaymentStatus.IsSettled()
}

// CheckTransition validates to against the lifecycle table and the payment
// guards: a sale can only go overdue while money is still owed, and can only
// be cancelled while nothing has been paid.
func CheckTransition(s *Sale, to Status) error {
	if err := lifecycle.Validate("sale", s.Status, to, Transitions); err != nil {
		return err
	}
	switch to {
	case StatusOverdue:
		if s.PaymentStatus != shared.PaymentUnpaid && s.PaymentStatus != shared.PaymentPartiallyPaid {
			return lifecycle.Reject("sale", s.Status, to, "sale is "+string(s.PaymentStatus))
		}
	case StatusCancelled:
		if !s.PaidAmount.IsZero() {
			return lifecycle.Reject("sale", s.Status, to, "payments allocated: "+s.PaidAmount.StringFixed(2))
		}
	}
	return nil
}

// IsOverdueCandidate reports whether the sweep should mark s overdue at asOf.
func IsOverdueCandidate(s *Sale, asOf time.Time) bool {
	if s.DueDate == nil || !s.DueDate.Before(asOf) {
		return false
	}
	return slices.Contains(overdueSources, s.Status) && s.BalanceAmount.IsPositive()
}
