// Package payments implements the payment allocation ledger: payments from
// customers and to suppliers, their allocations to sales and purchases, and
// the recomputation of order balances from those allocations.
package payments

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/backoffice/internal/lifecycle"
	"github.com/odyssey-erp/backoffice/internal/shared"
)

// PartyType identifies who a payment is from or to.
type PartyType string

const (
	PartyCustomer PartyType = "customer"
	PartySupplier PartyType = "supplier"
)

// OrderType discriminates allocation targets.
type OrderType string

const (
	OrderSale     OrderType = "sale"
	OrderPurchase OrderType = "purchase"
)

// PartyFor returns the party type that owns orders of type t.
func (t OrderType) PartyFor() PartyType {
	if t == OrderPurchase {
		return PartySupplier
	}
	return PartyCustomer
}

// Status of a payment.
type Status string

const (
	StatusPending   Status = "pending"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
)

// Transitions is the payment lifecycle.
var Transitions = lifecycle.Table[Status]{
	StatusPending:   {StatusCompleted, StatusFailed},
	StatusCompleted: {StatusFailed},
	StatusFailed:    {},
}

// Payment is money received from a customer or paid to a supplier.
// AllocatedAmount + UnallocatedAmount always equals Amount.
type Payment struct {
	ID                int64           `json:"id"`
	Number            string          `json:"number"`
	PartyType         PartyType       `json:"party_type"`
	PartyID           int64           `json:"party_id"`
	PartyName         string          `json:"party_name,omitempty"`
	PaymentDate       time.Time       `json:"payment_date"`
	Amount            decimal.Decimal `json:"amount"`
	AllocatedAmount   decimal.Decimal `json:"allocated_amount"`
	UnallocatedAmount decimal.Decimal `json:"unallocated_amount"`
	Method            string          `json:"method"`
	Reference         string          `json:"reference,omitempty"`
	Status            Status          `json:"status"`
	Notes             string          `json:"notes,omitempty"`
	CreatedBy         int64           `json:"created_by"`
	CreatedAt         time.Time       `json:"created_at"`
	UpdatedAt         time.Time       `json:"updated_at"`
	Allocations       []Allocation    `json:"allocations,omitempty"`
}

// Allocation applies part of a payment to one order. Rows are never updated;
// corrections delete and recreate them.
type Allocation struct {
	ID          int64           `json:"id"`
	PaymentID   int64           `json:"payment_id"`
	OrderType   OrderType       `json:"order_type"`
	OrderID     int64           `json:"order_id"`
	OrderNumber string          `json:"order_number"`
	Amount      decimal.Decimal `json:"amount"`
	CreatedAt   time.Time       `json:"created_at"`
}

// OrderRef names an allocation target.
type OrderRef struct {
	Type OrderType `json:"order_type"`
	ID   int64     `json:"order_id"`
}

// Less orders refs by (type, id), the order rows are locked in.
func (r OrderRef) Less(o OrderRef) bool {
	if r.Type != o.Type {
		return r.Type < o.Type
	}
	return r.ID < o.ID
}

// OrderBalance is the payment position of an order after recomputation.
type OrderBalance struct {
	OrderRef
	Number        string               `json:"number"`
	TotalAmount   decimal.Decimal      `json:"total_amount"`
	PaidAmount    decimal.Decimal      `json:"paid_amount"`
	BalanceAmount decimal.Decimal      `json:"balance_amount"`
	PaymentStatus shared.PaymentStatus `json:"payment_status"`
}
