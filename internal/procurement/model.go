// Package procurement manages purchases from suppliers and their payment
// position.
package procurement

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/backoffice/internal/lifecycle"
	"github.com/odyssey-erp/backoffice/internal/shared"
)

// Status of a purchase.
type Status string

const (
	StatusPending   Status = "pending"
	StatusOrdered   Status = "ordered"
	StatusReceived  Status = "received"
	StatusCancelled Status = "cancelled"
)

// Transitions is the purchase lifecycle.
var Transitions = lifecycle.Table[Status]{
	StatusPending:   {StatusOrdered, StatusCancelled},
	StatusOrdered:   {StatusReceived, StatusCancelled},
	StatusReceived:  {},
	StatusCancelled: {},
}

// Purchase is a supplier order. PaidAmount, BalanceAmount and PaymentStatus
// are maintained by the payment ledger.
type Purchase struct {
	ID             int64                `json:"id"`
	Number         string               `json:"number"`
	SupplierID     int64                `json:"supplier_id"`
	SupplierName   string               `json:"supplier_name,omitempty"`
	PurchaseDate   time.Time            `json:"purchase_date"`
	ExpectedDate   *time.Time           `json:"expected_date,omitempty"`
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

// Item is a purchase line.
type Item struct {
	ID                 int64           `json:"id"`
	PurchaseID         int64           `json:"purchase_id"`
	ProductID          int64           `json:"product_id"`
	ProductName        string          `json:"product_name"`
	ProductSKU         string          `json:"product_sku"`
	ProductDescription string          `json:"product_description,omitempty"`
	Quantity           decimal.Decimal `json:"quantity"`
	UnitCost           decimal.Decimal `json:"unit_cost"`
	DiscountAmount     decimal.Decimal `json:"discount_amount"`
	TaxAmount          decimal.Decimal `json:"tax_amount"`
	LineTotal          decimal.Decimal `json:"line_total"`
	LineOrder          int             `json:"line_order"`
}

func (p *Purchase) applyTotals(t shared.Totals) {
	p.Subtotal, p.DiscountAmount, p.TaxAmount, p.TotalAmount = t.Subtotal, t.Discount, t.Tax, t.Total
}

// IsModifiable reports whether the purchase can still be edited.
func (p *Purchase) IsModifiable() bool {
	return p.Status == StatusPending && !p.PaymentStatus.IsSettled()
}

// CheckTransition validates to against the lifecycle table. A purchase with
// payments allocated cannot be cancelled.
func CheckTransition(p *Purchase, to Status) error {
	if err := lifecycle.Validate("purchase", p.Status, to, Transitions); err != nil {
		return err
	}
	if to == StatusCancelled && !p.PaidAmount.IsZero() {
		return lifecycle.Reject("purchase", p.Status, to, "payments allocated: "+p.PaidAmount.StringFixed(2))
	}
	return nil
}
