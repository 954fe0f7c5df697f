package shared

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

var (
	// ErrNotFound indicates resource not found.
	ErrNotFound = errors.New("not found")
	// ErrInvalidTransition indicates a status change absent from the lifecycle table.
	ErrInvalidTransition = errors.New("invalid status transition")
	// ErrBlockedCounterparty indicates the customer or supplier is blocked or inactive.
	ErrBlockedCounterparty = errors.New("counterparty blocked")
	// ErrOverAllocation indicates an allocation beyond the payment or order limits.
	ErrOverAllocation = errors.New("over allocation")
	// ErrModificationNotAllowed indicates an edit on a record in a locked status.
	ErrModificationNotAllowed = errors.New("modification not allowed")
	// ErrDeletionBlocked indicates a delete refused because dependent records exist.
	ErrDeletionBlocked = errors.New("deletion blocked")
	// ErrConflict indicates a concurrent write or duplicate key; the caller may retry.
	ErrConflict = errors.New("conflict")
	// ErrValidation indicates malformed input.
	ErrValidation = errors.New("validation failed")
)

// Invalid wraps a message as a validation failure.
func Invalid(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrValidation, fmt.Sprintf(format, args...))
}

// NotFoundError names the missing record.
type NotFoundError struct {
	Entity  string
	ID      any
	Message string
}

func (e *NotFoundError) Error() string {
	if e.Message != "" {
		return e.Message
	}
	if e.ID == nil {
		return fmt.Sprintf("%s not found", e.Entity)
	}
	return fmt.Sprintf("%s %v not found", e.Entity, e.ID)
}

func (e *NotFoundError) Is(target error) bool { return target == ErrNotFound }

// InvalidTransitionError carries the attempted source and target states.
type InvalidTransitionError struct {
	Entity string
	From   string
	To     string
	Reason string
}

func (e *InvalidTransitionError) Error() string {
	msg := fmt.Sprintf("%s: cannot transition from %q to %q", e.Entity, e.From, e.To)
	if e.Reason != "" {
		msg += ": " + e.Reason
	}
	return msg
}

func (e *InvalidTransitionError) Is(target error) bool { return target == ErrInvalidTransition }

// BlockedCounterpartyError is returned before any write touches a blocked party.
type BlockedCounterpartyError struct {
	Entity string
	ID     int64
	Status string
}

func (e *BlockedCounterpartyError) Error() string {
	return fmt.Sprintf("%s %d is %s", e.Entity, e.ID, e.Status)
}

func (e *BlockedCounterpartyError) Is(target error) bool { return target == ErrBlockedCounterparty }

// Allocation limits reported by OverAllocationError.
const (
	LimitPaymentAmount      = "payment_amount"
	LimitPaymentUnallocated = "payment_unallocated"
	LimitOrderBalance       = "order_balance"
)

// OverAllocationError reports which bound an allocation request exceeded.
type OverAllocationError struct {
	PaymentID int64
	OrderType string
	OrderID   int64
	Requested decimal.Decimal
	Available decimal.Decimal
	Limit     string
}

func (e *OverAllocationError) Error() string {
	switch e.Limit {
	case LimitOrderBalance:
		return fmt.Sprintf("allocation %s exceeds %s %d balance %s", e.Requested.StringFixed(2), e.OrderType, e.OrderID, e.Available.StringFixed(2))
	case LimitPaymentUnallocated:
		return fmt.Sprintf("allocation %s exceeds payment %d unallocated amount %s", e.Requested.StringFixed(2), e.PaymentID, e.Available.StringFixed(2))
	default:
		return fmt.Sprintf("allocations %s exceed payment amount %s", e.Requested.StringFixed(2), e.Available.StringFixed(2))
	}
}

func (e *OverAllocationError) Is(target error) bool { return target == ErrOverAllocation }

// ModificationNotAllowedError is returned for edits outside the modifiable statuses.
type ModificationNotAllowedError struct {
	Entity string
	ID     int64
	Status string
	Reason string
}

func (e *ModificationNotAllowedError) Error() string {
	msg := fmt.Sprintf("%s %d cannot be modified in status %q", e.Entity, e.ID, e.Status)
	if e.Reason != "" {
		msg += ": " + e.Reason
	}
	return msg
}

func (e *ModificationNotAllowedError) Is(target error) bool { return target == ErrModificationNotAllowed }

// DeletionBlockedError explains why a delete was refused.
type DeletionBlockedError struct {
	Entity string
	ID     int64
	Reason string
}

func (e *DeletionBlockedError) Error() string {
	return fmt.Sprintf("%s %d cannot be deleted: %s", e.Entity, e.ID, e.Reason)
}

func (e *DeletionBlockedError) Is(target error) bool { return target == ErrDeletionBlocked }
