package payments

import (
	"time"

	"github.com/shopspring/decimal"
)

// AllocationRequest asks for amount of a payment to be applied to an order.
type AllocationRequest struct {
	OrderType OrderType       `json:"order_type" validate:"required,oneof=sale purchase"`
	OrderID   int64           `json:"order_id" validate:"required,gt=0"`
	Amount    decimal.Decimal `json:"amount"`
}

func (a AllocationRequest) ref() OrderRef { return OrderRef{Type: a.OrderType, ID: a.OrderID} }

// CreatePaymentRequest records a payment with optional allocations.
type CreatePaymentRequest struct {
	PartyType      PartyType           `json:"party_type" validate:"required,oneof=customer supplier"`
	PartyID        int64               `json:"party_id" validate:"required,gt=0"`
	PaymentDate    time.Time           `json:"payment_date"`
	Amount         decimal.Decimal     `json:"amount"`
	Method         string              `json:"method" validate:"required,oneof=cash bank_transfer card cheque other"`
	Reference      string              `json:"reference,omitempty" validate:"max=100"`
	Notes          string              `json:"notes,omitempty" validate:"max=2000"`
	Pending        bool                `json:"pending,omitempty"`
	IdempotencyKey string              `json:"idempotency_key,omitempty" validate:"max=200"`
	Allocations    []AllocationRequest `json:"allocations,omitempty" validate:"dive"`
}

// ReallocateRequest replaces every allocation of a payment.
type ReallocateRequest struct {
	Allocations []AllocationRequest `json:"allocations" validate:"dive"`
}

// ListPaymentsRequest filters the payment listing.
type ListPaymentsRequest struct {
	PartyType PartyType
	PartyID   *int64
	Status    Status
	Method    string
	DateFrom  *time.Time
	DateTo    *time.Time
	Search    string
	Limit     int
	Offset    int
}
