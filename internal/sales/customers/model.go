package customers

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/backoffice/internal/shared"
)

// Status of a customer account.
type Status string

const (
	StatusActive   Status = "active"
	StatusInactive Status = "inactive"
	StatusBlocked  Status = "blocked"
)

// CreditStatus is derived from utilization and overdue exposure.
type CreditStatus string

const (
	CreditGood    CreditStatus = "good"
	CreditWarning CreditStatus = "warning"
	CreditBlocked CreditStatus = "blocked"
)

// Customer carries contact data plus the credit fields maintained by the
// credit engine. Credit fields are never written through UpdateCustomer.
type Customer struct {
	ID               int64           `json:"id"`
	Code             string          `json:"code"`
	Name             string          `json:"name"`
	Email            string          `json:"email,omitempty"`
	Phone            string          `json:"phone,omitempty"`
	Address          string          `json:"address,omitempty"`
	Status           Status          `json:"status"`
	PaymentTermsDays int             `json:"payment_terms_days"`
	CreditLimit      decimal.Decimal `json:"credit_limit"`
	UsedCredit       decimal.Decimal `json:"used_credit"`
	AvailableCredit  decimal.Decimal `json:"available_credit"`
	OverdueAmount    decimal.Decimal `json:"overdue_amount"`
	TotalOutstanding decimal.Decimal `json:"total_outstanding"`
	CreditStatus     CreditStatus    `json:"credit_status"`
	CreatedAt        time.Time       `json:"created_at"`
	UpdatedAt        time.Time       `json:"updated_at"`
}

// EnsureActive refuses inactive and blocked customers.
func (c *Customer) EnsureActive() error {
	if c.Status != StatusActive {
		return &shared.BlockedCounterpartyError{Entity: "customer", ID: c.ID, Status: string(c.Status)}
	}
	return nil
}

// Exposure is the receivable position computed from a customer's sales.
type Exposure struct {
	TotalOutstanding decimal.Decimal
	OverdueAmount    decimal.Decimal
}

// HistoryKind classifies a credit history entry.
type HistoryKind string

const (
	HistoryUsage   HistoryKind = "usage"
	HistoryLimit   HistoryKind = "limit"
	HistoryBlock   HistoryKind = "block"
	HistoryUnblock HistoryKind = "unblock"
)

// Direction of a credit movement.
type Direction string

const (
	DirectionAdd      Direction = "add"
	DirectionSubtract Direction = "subtract"
	DirectionSet      Direction = "set"
	DirectionNone     Direction = "none"
)

// CreditHistoryEntry is an append-only record of a credit change or a manual
// block/unblock event.
type CreditHistoryEntry struct {
	ID            int64           `json:"id"`
	EventID       uuid.UUID       `json:"event_id"`
	CustomerID    int64           `json:"customer_id"`
	Kind          HistoryKind     `json:"kind"`
	Direction     Direction       `json:"direction"`
	Amount        decimal.Decimal `json:"amount"`
	UsedBefore    decimal.Decimal `json:"used_before"`
	UsedAfter     decimal.Decimal `json:"used_after"`
	LimitBefore   decimal.Decimal `json:"limit_before"`
	LimitAfter    decimal.Decimal `json:"limit_after"`
	StatusBefore  CreditStatus    `json:"credit_status_before"`
	StatusAfter   CreditStatus    `json:"credit_status_after"`
	Reason        string          `json:"reason"`
	ReferenceType string          `json:"reference_type,omitempty"`
	ReferenceID   *int64          `json:"reference_id,omitempty"`
	CreatedBy     int64           `json:"created_by"`
	CreatedAt     time.Time       `json:"created_at"`
}

// Dependents counts records that keep a customer from being deleted.
type Dependents struct {
	Sales      int
	Quotations int
	Payments   int
}
