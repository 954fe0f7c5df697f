package credit

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/backoffice/internal/sales/customers"
	"github.com/odyssey-erp/backoffice/internal/shared"
)

// Store is the transaction-scoped view the engine works against. Callers that
// already hold a transaction (the ledger, sale creation) pass their own.
type Store interface {
	GetCustomer(ctx context.Context, id int64) (*customers.Customer, error)
	GetCustomerForUpdate(ctx context.Context, id int64) (*customers.Customer, error)
	SaveCustomerCredit(ctx context.Context, c *customers.Customer) error
	InsertCreditHistory(ctx context.Context, entry customers.CreditHistoryEntry) (int64, error)
	CustomerExposure(ctx context.Context, customerID int64, asOf time.Time) (customers.Exposure, error)
}

// Repository opens transactions and serves credit reads.
type Repository interface {
	WithTx(ctx context.Context, fn func(context.Context, Store) error) error
	GetCustomer(ctx context.Context, id int64) (*customers.Customer, error)
	ListCreditHistory(ctx context.Context, customerID int64, limit, offset int) ([]customers.CreditHistoryEntry, int, error)
	ListCustomerIDs(ctx context.Context) ([]int64, error)
}

// Recorder observes credit status changes.
type Recorder interface {
	CreditStatusChanged(from, to string)
}

// Movement is a change of used credit.
type Movement struct {
	CustomerID    int64               `json:"-"`
	Amount        decimal.Decimal     `json:"amount"`
	Direction     customers.Direction `json:"direction" validate:"required,oneof=add subtract"`
	Reason        string              `json:"reason" validate:"max=500"`
	ReferenceType string              `json:"reference_type,omitempty" validate:"max=50"`
	ReferenceID   *int64              `json:"reference_id,omitempty"`
}

// Engine is the credit engine.
type Engine struct {
	repo     Repository
	recorder Recorder
	logger   *slog.Logger
	validate *validator.Validate
	now      func() time.Time
}

// NewEngine constructs the engine. repo may be nil when the engine is only
// used inside transactions owned by other services.
func NewEngine(repo Repository, recorder Recorder, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{repo: repo, recorder: recorder, logger: logger, validate: validator.New(), now: time.Now}
}

// WithClock overrides the time source.
func (e *Engine) WithClock(now func() time.Time) *Engine {
	e.now = now
	return e
}

// UpdateCredit applies one movement in its own transaction.
func (e *Engine) UpdateCredit(ctx context.Context, m Movement) (*customers.Customer, error) {
	var out *customers.Customer
	err := e.repo.WithTx(ctx, func(ctx context.Context, store Store) error {
		var err error
		out, err = e.ApplyTx(ctx, store, m)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("credit: update: %w", err)
	}
	return out, nil
}

// ApplyTx moves used credit by m.Amount, floored at zero, writes exactly one
// history entry, and re-derives available credit and credit status.
func (e *Engine) ApplyTx(ctx context.Context, store Store, m Movement) (*customers.Customer, error) {
	if err := e.validate.Struct(m); err != nil {
		return nil, shared.Invalid("%v", err)
	}
	if !m.Amount.IsPositive() {
		return nil, shared.Invalid("credit amount must be greater than zero")
	}
	c, err := store.GetCustomerForUpdate(ctx, m.CustomerID)
	if err != nil {
		return nil, err
	}
	usedBefore, statusBefore := c.UsedCredit, c.CreditStatus

	switch m.Direction {
	case customers.DirectionAdd:
		c.UsedCredit = c.UsedCredit.Add(m.Amount)
	case customers.DirectionSubtract:
		c.UsedCredit = c.UsedCredit.Sub(m.Amount)
		if c.UsedCredit.IsNegative() {
			c.UsedCredit = decimal.Zero
		}
	}
	settle(c)

	if err := store.SaveCustomerCredit(ctx, c); err != nil {
		return nil, err
	}
	_, err = store.InsertCreditHistory(ctx, customers.CreditHistoryEntry{
		EventID:       uuid.New(),
		CustomerID:    c.ID,
		Kind:          customers.HistoryUsage,
		Direction:     m.Direction,
		Amount:        m.Amount,
		UsedBefore:    usedBefore,
		UsedAfter:     c.UsedCredit,
		LimitBefore:   c.CreditLimit,
		LimitAfter:    c.CreditLimit,
		StatusBefore:  statusBefore,
		StatusAfter:   c.CreditStatus,
		Reason:        m.Reason,
		ReferenceType: m.ReferenceType,
		ReferenceID:   m.ReferenceID,
		CreatedBy:     shared.ActorFromContext(ctx),
	})
	if err != nil {
		return nil, err
	}
	e.statusChanged(c.ID, statusBefore, c.CreditStatus)
	return c, nil
}

// RefreshTx recomputes outstanding and overdue exposure from the customer's
// sales and re-derives the credit status. It writes no history entry since it
// moves neither the limit nor used credit.
func (e *Engine) RefreshTx(ctx context.Context, store Store, customerID int64) (*customers.Customer, error) {
	c, err := store.GetCustomerForUpdate(ctx, customerID)
	if err != nil {
		return nil, err
	}
	exposure, err := store.CustomerExposure(ctx, customerID, e.now())
	if err != nil {
		return nil, err
	}
	statusBefore := c.CreditStatus
	c.TotalOutstanding = exposure.TotalOutstanding
	c.OverdueAmount = exposure.OverdueAmount
	settle(c)
	if err := store.SaveCustomerCredit(ctx, c); err != nil {
		return nil, err
	}
	e.statusChanged(c.ID, statusBefore, c.CreditStatus)
	return c, nil
}

// Refresh runs RefreshTx in its own transaction.
func (e *Engine) Refresh(ctx context.Context, customerID int64) (*customers.Customer, error) {
	var out *customers.Customer
	err := e.repo.WithTx(ctx, func(ctx context.Context, store Store) error {
		var err error
		out, err = e.RefreshTx(ctx, store, customerID)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("credit: refresh: %w", err)
	}
	return out, nil
}

// RefreshSummary reports a RefreshAll run.
type RefreshSummary struct {
	Refreshed int
	Failed    int
}

// RefreshAll refreshes every customer with credit exposure, one transaction per
// customer, and keeps going past individual failures.
func (e *Engine) RefreshAll(ctx context.Context) (RefreshSummary, error) {
	ids, err := e.repo.ListCustomerIDs(ctx)
	if err != nil {
		return RefreshSummary{}, fmt.Errorf("credit: list customers: %w", err)
	}
	var summary RefreshSummary
	var errs []error
	for _, id := range ids {
		if err := ctx.Err(); err != nil {
			return summary, err
		}
		if _, err := e.Refresh(ctx, id); err != nil {
			summary.Failed++
			errs = append(errs, fmt.Errorf("customer %d: %w", id, err))
			continue
		}
		summary.Refreshed++
	}
	return summary, errors.Join(errs...)
}

// BlockCustomer blocks the account and logs a zero-amount history entry.
func (e *Engine) BlockCustomer(ctx context.Context, customerID int64, reason string) (*customers.Customer, error) {
	return e.setBlocked(ctx, customerID, true, reason)
}

// UnblockCustomer reactivates a blocked account; its credit status is derived
// again from current figures.
func (e *Engine) UnblockCustomer(ctx context.Context, customerID int64, reason string) (*customers.Customer, error) {
	return e.setBlocked(ctx, customerID, false, reason)
}

func (e *Engine) setBlocked(ctx context.Context, customerID int64, block bool, reason string) (*customers.Customer, error) {
	var out *customers.Customer
	err := e.repo.WithTx(ctx, func(ctx context.Context, store Store) error {
		c, err := store.GetCustomerForUpdate(ctx, customerID)
		if err != nil {
			return err
		}
		target, kind := customers.StatusBlocked, customers.HistoryBlock
		if !block {
			target, kind = customers.StatusActive, customers.HistoryUnblock
		}
		if block == (c.Status == customers.StatusBlocked) {
			return &shared.InvalidTransitionError{Entity: "customer", From: string(c.Status), To: string(target)}
		}
		statusBefore := c.CreditStatus
		c.Status = target
		settle(c)
		if err := store.SaveCustomerCredit(ctx, c); err != nil {
			return err
		}
		if _, err := store.InsertCreditHistory(ctx, customers.CreditHistoryEntry{
			EventID:      uuid.New(),
			CustomerID:   c.ID,
			Kind:         kind,
			Direction:    customers.DirectionNone,
			Amount:       decimal.Zero,
			UsedBefore:   c.UsedCredit,
			UsedAfter:    c.UsedCredit,
			LimitBefore:  c.CreditLimit,
			LimitAfter:   c.CreditLimit,
			StatusBefore: statusBefore,
			StatusAfter:  c.CreditStatus,
			Reason:       reason,
			CreatedBy:    shared.ActorFromContext(ctx),
		}); err != nil {
			return err
		}
		e.statusChanged(c.ID, statusBefore, c.CreditStatus)
		out = c
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("credit: set blocked: %w", err)
	}
	e.logger.Info("customer block state changed", slog.Int64("customer_id", customerID), slog.Bool("blocked", block), slog.String("reason", reason))
	return out, nil
}

// SetCreditLimit replaces the credit limit and logs the change.
func (e *Engine) SetCreditLimit(ctx context.Context, customerID int64, limit decimal.Decimal, reason string) (*customers.Customer, error) {
	if limit.IsNegative() {
		return nil, shared.Invalid("credit limit must not be negative")
	}
	var out *customers.Customer
	err := e.repo.WithTx(ctx, func(ctx context.Context, store Store) error {
		c, err := store.GetCustomerForUpdate(ctx, customerID)
		if err != nil {
			return err
		}
		limitBefore, statusBefore := c.CreditLimit, c.CreditStatus
		c.CreditLimit = limit
		settle(c)
		if err := store.SaveCustomerCredit(ctx, c); err != nil {
			return err
		}
		if _, err := store.InsertCreditHistory(ctx, customers.CreditHistoryEntry{
			EventID:      uuid.New(),
			CustomerID:   c.ID,
			Kind:         customers.HistoryLimit,
			Direction:    customers.DirectionSet,
			Amount:       limit,
			UsedBefore:   c.UsedCredit,
			UsedAfter:    c.UsedCredit,
			LimitBefore:  limitBefore,
			LimitAfter:   limit,
			StatusBefore: statusBefore,
			StatusAfter:  c.CreditStatus,
			Reason:       reason,
			CreatedBy:    shared.ActorFromContext(ctx),
		}); err != nil {
			return err
		}
		e.statusChanged(c.ID, statusBefore, c.CreditStatus)
		out = c
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("credit: set limit: %w", err)
	}
	return out, nil
}

// Summary is the credit view of one customer.
type Summary struct {
	Customer    *customers.Customer `json:"customer"`
	Utilization decimal.Decimal     `json:"utilization_percent"`
}

// GetSummary reads the stored credit figures.
func (e *Engine) GetSummary(ctx context.Context, customerID int64) (*Summary, error) {
	c, err := e.repo.GetCustomer(ctx, customerID)
	if err != nil {
		return nil, err
	}
	return &Summary{Customer: c, Utilization: Utilization(c.CreditLimit, c.UsedCredit).Round(2)}, nil
}

// History lists a customer's credit history, newest first.
func (e *Engine) History(ctx context.Context, customerID int64, page shared.PageRequest) ([]customers.CreditHistoryEntry, int, error) {
	if _, err := e.repo.GetCustomer(ctx, customerID); err != nil {
		return nil, 0, err
	}
	return e.repo.ListCreditHistory(ctx, customerID, page.Limit(), page.Offset())
}

func (e *Engine) statusChanged(customerID int64, from, to customers.CreditStatus) {
	if from == to {
		return
	}
	e.logger.Info("credit status changed",
		slog.Int64("customer_id", customerID),
		slog.String("from", string(from)),
		slog.String("to", string(to)))
	if e.recorder != nil {
		e.recorder.CreditStatusChanged(string(from), string(to))
	}
}
