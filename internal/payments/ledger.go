package payments

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"slices"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/backoffice/internal/credit"
	"github.com/odyssey-erp/backoffice/internal/lifecycle"
	"github.com/odyssey-erp/backoffice/internal/numbering"
	"github.com/odyssey-erp/backoffice/internal/procurement"
	"github.com/odyssey-erp/backoffice/internal/sales/customers"
	"github.com/odyssey-erp/backoffice/internal/sales/orders"
	"github.com/odyssey-erp/backoffice/internal/shared"
)

const idempotencyScope = "payments.create"

// Locker serialises ledger writes per party across instances.
type Locker interface {
	Acquire(ctx context.Context, key string) (func(), error)
}

// Recorder observes ledger outcomes.
type Recorder interface {
	PaymentRecorded(partyType string)
	AllocationRejected(limit string)
	OrderOverpaid(orderType string)
}

// Ledger is the only writer of paid, balance, allocated and unallocated
// amounts. Every operation runs in one transaction; rows are locked payment
// first, then orders by (type, id), then the customer.
type Ledger struct {
	repo     Repository
	credit   *credit.Engine
	locker   Locker
	metrics  Recorder
	validate *validator.Validate
	logger   *slog.Logger
	now      func() time.Time
}

// NewLedger wires the ledger. engine, locker and recorder are optional.
func NewLedger(repo Repository, engine *credit.Engine, locker Locker, recorder Recorder, logger *slog.Logger) *Ledger {
	if logger == nil {
		logger = slog.Default()
	}
	return &Ledger{
		repo:     repo,
		credit:   engine,
		locker:   locker,
		metrics:  recorder,
		validate: validator.New(),
		logger:   logger,
		now:      time.Now,
	}
}

// WithClock overrides the time source.
func (l *Ledger) WithClock(now func() time.Time) *Ledger {
	l.now = now
	return l
}

// lockedOrder is a sale or purchase row held FOR UPDATE.
type lockedOrder struct {
	ref       OrderRef
	number    string
	partyID   int64
	status    string
	cancelled bool
	total     decimal.Decimal
	balance   decimal.Decimal
}

func lockOrder(ctx context.Context, tx TxRepository, ref OrderRef) (*lockedOrder, error) {
	switch ref.Type {
	case OrderSale:
		s, err := tx.GetSaleForUpdate(ctx, ref.ID)
		if err != nil {
			return nil, err
		}
		return &lockedOrder{ref: ref, number: s.Number, partyID: s.CustomerID, status: string(s.Status),
			cancelled: s.Status == orders.StatusCancelled, total: s.TotalAmount, balance: s.BalanceAmount}, nil
	case OrderPurchase:
		p, err := tx.GetPurchaseForUpdate(ctx, ref.ID)
		if err != nil {
			return nil, err
		}
		return &lockedOrder{ref: ref, number: p.Number, partyID: p.SupplierID, status: string(p.Status),
			cancelled: p.Status == procurement.StatusCancelled, total: p.TotalAmount, balance: p.BalanceAmount}, nil
	default:
		return nil, shared.Invalid("unknown order type %q", ref.Type)
	}
}

// lockOrders locks refs in (type, id) order so concurrent ledger calls
// touching overlapping orders cannot deadlock.
func lockOrders(ctx context.Context, tx TxRepository, refs []OrderRef) (map[OrderRef]*lockedOrder, error) {
	sorted := slices.Clone(refs)
	slices.SortFunc(sorted, func(a, b OrderRef) int {
		switch {
		case a.Less(b):
			return -1
		case b.Less(a):
			return 1
		}
		return 0
	})
	sorted = slices.Compact(sorted)
	out := make(map[OrderRef]*lockedOrder, len(sorted))
	for _, ref := range sorted {
		o, err := lockOrder(ctx, tx, ref)
		if err != nil {
			return nil, err
		}
		out[ref] = o
	}
	return out, nil
}

// recompute derives the order's payment position from its allocation rows.
func (l *Ledger) recompute(ctx context.Context, tx TxRepository, o *lockedOrder) (*OrderBalance, error) {
	paid, err := tx.SumOrderAllocations(ctx, o.ref)
	if err != nil {
		return nil, err
	}
	balance := shared.Balance(o.total, paid)
	status := shared.DerivePaymentStatus(o.total, paid)
	switch o.ref.Type {
	case OrderSale:
		err = tx.SetSaleBalance(ctx, o.ref.ID, paid, balance, status)
	case OrderPurchase:
		err = tx.SetPurchaseBalance(ctx, o.ref.ID, paid, balance, status)
	}
	if err != nil {
		return nil, fmt.Errorf("store %s %d balance: %w", o.ref.Type, o.ref.ID, err)
	}
	o.balance = balance
	if status == shared.PaymentOverpaid {
		l.logger.Warn("order overpaid",
			slog.String("order_type", string(o.ref.Type)),
			slog.Int64("order_id", o.ref.ID),
			slog.String("total", o.total.StringFixed(2)),
			slog.String("paid", paid.StringFixed(2)))
		if l.metrics != nil {
			l.metrics.OrderOverpaid(string(o.ref.Type))
		}
	}
	return &OrderBalance{OrderRef: o.ref, Number: o.number, TotalAmount: o.total, PaidAmount: paid,
		BalanceAmount: balance, PaymentStatus: status}, nil
}

func (l *Ledger) recomputeAll(ctx context.Context, tx TxRepository, locked map[OrderRef]*lockedOrder) error {
	for _, ref := range slices.SortedFunc(maps.Keys(locked), compareRefs) {
		if _, err := l.recompute(ctx, tx, locked[ref]); err != nil {
			return err
		}
	}
	return nil
}

func compareRefs(a, b OrderRef) int {
	switch {
	case a.Less(b):
		return -1
	case b.Less(a):
		return 1
	}
	return 0
}

// checkRequest validates requested allocations against the payment amount and
// merges them per order.
func (l *Ledger) checkRequest(party PartyType, paymentID int64, amount decimal.Decimal, reqs []AllocationRequest) (map[OrderRef]decimal.Decimal, decimal.Decimal, error) {
	perOrder := make(map[OrderRef]decimal.Decimal, len(reqs))
	total := decimal.Zero
	for i, a := range reqs {
		if err := l.validate.Struct(a); err != nil {
			return nil, decimal.Zero, shared.Invalid("allocation %d: %v", i+1, err)
		}
		if !a.Amount.IsPositive() {
			return nil, decimal.Zero, shared.Invalid("allocation %d: amount must be greater than zero", i+1)
		}
		if a.OrderType.PartyFor() != party {
			return nil, decimal.Zero, shared.Invalid("allocation %d: %s orders cannot be paid by a %s payment", i+1, a.OrderType, party)
		}
		perOrder[a.ref()] = perOrder[a.ref()].Add(a.Amount)
		total = total.Add(a.Amount)
	}
	if total.GreaterThan(amount) {
		return nil, decimal.Zero, &shared.OverAllocationError{PaymentID: paymentID, Requested: total, Available: amount, Limit: shared.LimitPaymentAmount}
	}
	return perOrder, total, nil
}

// checkOrders validates each target order as read under lock. headroom adds
// back what this payment already holds on an order during reallocation.
func checkOrders(partyID, paymentID int64, locked map[OrderRef]*lockedOrder, perOrder, headroom map[OrderRef]decimal.Decimal) error {
	for _, ref := range slices.SortedFunc(maps.Keys(perOrder), compareRefs) {
		o := locked[ref]
		if o.partyID != partyID {
			return shared.Invalid("%s %s belongs to another %s", ref.Type, o.number, ref.Type.PartyFor())
		}
		if o.cancelled {
			return &shared.ModificationNotAllowedError{Entity: string(ref.Type), ID: ref.ID, Status: o.status, Reason: "cancelled orders cannot receive payments"}
		}
		available := o.balance.Add(headroom[ref])
		if perOrder[ref].GreaterThan(available) {
			return &shared.OverAllocationError{PaymentID: paymentID, OrderType: string(ref.Type), OrderID: ref.ID,
				Requested: perOrder[ref], Available: available, Limit: shared.LimitOrderBalance}
		}
	}
	return nil
}

func ensureParty(ctx context.Context, tx TxRepository, party PartyType, id int64) error {
	if party == PartySupplier {
		s, err := tx.GetSupplier(ctx, id)
		if err != nil {
			return err
		}
		return s.EnsureActive()
	}
	c, err := tx.GetCustomer(ctx, id)
	if err != nil {
		return err
	}
	return c.EnsureActive()
}

func salesTotal(perOrder map[OrderRef]decimal.Decimal) (decimal.Decimal, bool) {
	sum, touched := decimal.Zero, false
	for ref, amt := range perOrder {
		if ref.Type == OrderSale {
			sum, touched = sum.Add(amt), true
		}
	}
	return sum, touched
}

func allocationsByOrder(allocs []Allocation) map[OrderRef]decimal.Decimal {
	out := make(map[OrderRef]decimal.Decimal, len(allocs))
	for _, a := range allocs {
		ref := OrderRef{Type: a.OrderType, ID: a.OrderID}
		out[ref] = out[ref].Add(a.Amount)
	}
	return out
}

// settleCredit moves the customer's used credit by the change in amounts
// allocated to sales (positive frees credit) and refreshes exposure.
func (l *Ledger) settleCredit(ctx context.Context, tx TxRepository, p *Payment, allocatedDelta decimal.Decimal, reason string) error {
	if l.credit == nil || p.PartyType != PartyCustomer {
		return nil
	}
	if !allocatedDelta.IsZero() {
		direction := customers.DirectionSubtract
		if allocatedDelta.IsNegative() {
			direction = customers.DirectionAdd
		}
		if _, err := l.credit.ApplyTx(ctx, tx, credit.Movement{
			CustomerID:    p.PartyID,
			Amount:        allocatedDelta.Abs(),
			Direction:     direction,
			Reason:        reason,
			ReferenceType: "payment",
			ReferenceID:   &p.ID,
		}); err != nil {
			return err
		}
	}
	_, err := l.credit.RefreshTx(ctx, tx, p.PartyID)
	return err
}

func (l *Ledger) withPartyLock(ctx context.Context, party PartyType, id int64, fn func() error) error {
	if l.locker == nil {
		return fn()
	}
	release, err := l.locker.Acquire(ctx, shared.PartyLockKey(string(party), id))
	if err != nil {
		return err
	}
	defer release()
	return fn()
}

func (l *Ledger) observe(err error) {
	var over *shared.OverAllocationError
	if l.metrics != nil && errors.As(err, &over) {
		l.metrics.AllocationRejected(over.Limit)
	}
}

func audit(ctx context.Context, tx TxRepository, action string, p *Payment, meta map[string]any) error {
	return tx.RecordAudit(ctx, shared.AuditLog{
		ActorID:  shared.ActorFromContext(ctx),
		Action:   action,
		Entity:   "payment",
		EntityID: p.ID,
		Meta:     meta,
	})
}

// CreatePayment records a payment and applies its allocations atomically.
func (l *Ledger) CreatePayment(ctx context.Context, req CreatePaymentRequest) (*Payment, error) {
	out, err := l.createPayment(ctx, req)
	if err != nil {
		l.observe(err)
		return nil, fmt.Errorf("payments: create: %w", err)
	}
	if l.metrics != nil {
		l.metrics.PaymentRecorded(string(out.PartyType))
	}
	l.logger.Info("payment recorded",
		slog.Int64("payment_id", out.ID),
		slog.String("number", out.Number),
		slog.String("amount", out.Amount.StringFixed(2)),
		slog.Int("allocations", len(out.Allocations)))
	return out, nil
}

func (l *Ledger) createPayment(ctx context.Context, req CreatePaymentRequest) (*Payment, error) {
	if err := l.validate.Struct(req); err != nil {
		return nil, shared.Invalid("%v", err)
	}
	if !req.Amount.IsPositive() {
		return nil, shared.Invalid("payment amount must be greater than zero")
	}
	if req.Pending && len(req.Allocations) > 0 {
		return nil, shared.Invalid("a pending payment cannot be allocated")
	}
	perOrder, allocated, err := l.checkRequest(req.PartyType, 0, req.Amount, req.Allocations)
	if err != nil {
		return nil, err
	}

	var out *Payment
	err = l.withPartyLock(ctx, req.PartyType, req.PartyID, func() error {
		return l.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
			if req.IdempotencyKey != "" {
				if err := tx.ClaimIdempotencyKey(ctx, req.IdempotencyKey, idempotencyScope); err != nil {
					return err
				}
			}
			if err := ensureParty(ctx, tx, req.PartyType, req.PartyID); err != nil {
				return err
			}
			locked, err := lockOrders(ctx, tx, slices.Collect(maps.Keys(perOrder)))
			if err != nil {
				return err
			}
			if err := checkOrders(req.PartyID, 0, locked, perOrder, nil); err != nil {
				return err
			}

			date := req.PaymentDate
			if date.IsZero() {
				date = l.now()
			}
			number, err := tx.NextNumber(ctx, numbering.PrefixPayment, date)
			if err != nil {
				return err
			}
			status := StatusCompleted
			if req.Pending {
				status = StatusPending
			}
			p := &Payment{
				Number:            number,
				PartyType:         req.PartyType,
				PartyID:           req.PartyID,
				PaymentDate:       date,
				Amount:            req.Amount,
				AllocatedAmount:   allocated,
				UnallocatedAmount: req.Amount.Sub(allocated),
				Method:            req.Method,
				Reference:         req.Reference,
				Status:            status,
				Notes:             req.Notes,
				CreatedBy:         shared.ActorFromContext(ctx),
			}
			if p.ID, err = tx.InsertPayment(ctx, p); err != nil {
				return err
			}
			for _, ref := range slices.SortedFunc(maps.Keys(perOrder), compareRefs) {
				if _, err := tx.InsertAllocation(ctx, Allocation{PaymentID: p.ID, OrderType: ref.Type, OrderID: ref.ID,
					OrderNumber: locked[ref].number, Amount: perOrder[ref]}); err != nil {
					return err
				}
			}
			if err := l.recomputeAll(ctx, tx, locked); err != nil {
				return err
			}
			if sales, touched := salesTotal(perOrder); touched {
				if err := l.settleCredit(ctx, tx, p, sales, "payment "+p.Number); err != nil {
					return err
				}
			}
			if err := audit(ctx, tx, "payment.created", p, map[string]any{
				"number": p.Number, "amount": p.Amount.String(), "allocated": allocated.String(),
			}); err != nil {
				return err
			}
			out, err = tx.GetPayment(ctx, p.ID)
			return err
		})
	})
	return out, err
}

// AllocateExistingPayment applies part of a completed payment's unallocated
// amount to one more order.
func (l *Ledger) AllocateExistingPayment(ctx context.Context, paymentID int64, req AllocationRequest) (*Payment, error) {
	out, err := l.allocateExisting(ctx, paymentID, req)
	if err != nil {
		l.observe(err)
		return nil, fmt.Errorf("payments: allocate: %w", err)
	}
	return out, nil
}

func (l *Ledger) allocateExisting(ctx context.Context, paymentID int64, req AllocationRequest) (*Payment, error) {
	head, err := l.repo.GetPayment(ctx, paymentID)
	if err != nil {
		return nil, err
	}
	var out *Payment
	err = l.withPartyLock(ctx, head.PartyType, head.PartyID, func() error {
		return l.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
			p, err := tx.GetPaymentForUpdate(ctx, paymentID)
			if err != nil {
				return err
			}
			if p.Status != StatusCompleted {
				return &shared.ModificationNotAllowedError{Entity: "payment", ID: p.ID, Status: string(p.Status), Reason: "only completed payments can be allocated"}
			}
			perOrder, amount, err := l.checkRequest(p.PartyType, p.ID, p.Amount, []AllocationRequest{req})
			if err != nil {
				return err
			}
			if amount.GreaterThan(p.UnallocatedAmount) {
				return &shared.OverAllocationError{PaymentID: p.ID, OrderType: string(req.OrderType), OrderID: req.OrderID,
					Requested: amount, Available: p.UnallocatedAmount, Limit: shared.LimitPaymentUnallocated}
			}
			if err := ensureParty(ctx, tx, p.PartyType, p.PartyID); err != nil {
				return err
			}
			locked, err := lockOrders(ctx, tx, []OrderRef{req.ref()})
			if err != nil {
				return err
			}
			if err := checkOrders(p.PartyID, p.ID, locked, perOrder, nil); err != nil {
				return err
			}
			o := locked[req.ref()]
			if _, err := tx.InsertAllocation(ctx, Allocation{PaymentID: p.ID, OrderType: req.OrderType, OrderID: req.OrderID,
				OrderNumber: o.number, Amount: amount}); err != nil {
				return err
			}
			allocated := p.AllocatedAmount.Add(amount)
			if err := tx.SetPaymentAllocation(ctx, p.ID, allocated, p.Amount.Sub(allocated)); err != nil {
				return err
			}
			if _, err := l.recompute(ctx, tx, o); err != nil {
				return err
			}
			if req.OrderType == OrderSale {
				if err := l.settleCredit(ctx, tx, p, amount, "payment "+p.Number+" allocated to "+o.number); err != nil {
					return err
				}
			}
			if err := audit(ctx, tx, "payment.allocated", p, map[string]any{
				"order_type": req.OrderType, "order_id": req.OrderID, "amount": amount.String(),
			}); err != nil {
				return err
			}
			out, err = tx.GetPayment(ctx, p.ID)
			return err
		})
	})
	return out, err
}

// ReallocatePayment replaces every allocation of a completed payment with
// reqs. This is the only way to correct an allocation.
func (l *Ledger) ReallocatePayment(ctx context.Context, paymentID int64, reqs []AllocationRequest) (*Payment, error) {
	out, err := l.reallocate(ctx, paymentID, reqs)
	if err != nil {
		l.observe(err)
		return nil, fmt.Errorf("payments: reallocate: %w", err)
	}
	return out, nil
}

func (l *Ledger) reallocate(ctx context.Context, paymentID int64, reqs []AllocationRequest) (*Payment, error) {
	head, err := l.repo.GetPayment(ctx, paymentID)
	if err != nil {
		return nil, err
	}
	var out *Payment
	err = l.withPartyLock(ctx, head.PartyType, head.PartyID, func() error {
		return l.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
			p, err := tx.GetPaymentForUpdate(ctx, paymentID)
			if err != nil {
				return err
			}
			if p.Status != StatusCompleted {
				return &shared.ModificationNotAllowedError{Entity: "payment", ID: p.ID, Status: string(p.Status), Reason: "only completed payments can be reallocated"}
			}
			perOrder, allocated, err := l.checkRequest(p.PartyType, p.ID, p.Amount, reqs)
			if err != nil {
				return err
			}
			if len(perOrder) > 0 {
				if err := ensureParty(ctx, tx, p.PartyType, p.PartyID); err != nil {
					return err
				}
			}
			previous := allocationsByOrder(p.Allocations)
			refs := slices.Collect(maps.Keys(previous))
			refs = append(refs, slices.Collect(maps.Keys(perOrder))...)
			locked, err := lockOrders(ctx, tx, refs)
			if err != nil {
				return err
			}
			if err := checkOrders(p.PartyID, p.ID, locked, perOrder, previous); err != nil {
				return err
			}

			if err := tx.DeletePaymentAllocations(ctx, p.ID); err != nil {
				return err
			}
			for _, ref := range slices.SortedFunc(maps.Keys(perOrder), compareRefs) {
				if _, err := tx.InsertAllocation(ctx, Allocation{PaymentID: p.ID, OrderType: ref.Type, OrderID: ref.ID,
					OrderNumber: locked[ref].number, Amount: perOrder[ref]}); err != nil {
					return err
				}
			}
			if err := tx.SetPaymentAllocation(ctx, p.ID, allocated, p.Amount.Sub(allocated)); err != nil {
				return err
			}
			if err := l.recomputeAll(ctx, tx, locked); err != nil {
				return err
			}
			newSales, touchedNew := salesTotal(perOrder)
			oldSales, touchedOld := salesTotal(previous)
			if touchedNew || touchedOld {
				if err := l.settleCredit(ctx, tx, p, newSales.Sub(oldSales), "payment "+p.Number+" reallocated"); err != nil {
					return err
				}
			}
			if err := audit(ctx, tx, "payment.reallocated", p, map[string]any{
				"previous": p.AllocatedAmount.String(), "allocated": allocated.String(),
			}); err != nil {
				return err
			}
			out, err = tx.GetPayment(ctx, p.ID)
			return err
		})
	})
	return out, err
}

// RecomputeOrderBalance re-derives an order's paid amount, balance and
// payment status from its allocations. Running it twice yields the same result.
func (l *Ledger) RecomputeOrderBalance(ctx context.Context, ref OrderRef) (*OrderBalance, error) {
	var out *OrderBalance
	err := l.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		o, err := lockOrder(ctx, tx, ref)
		if err != nil {
			return err
		}
		out, err = l.recompute(ctx, tx, o)
		if err != nil {
			return err
		}
		if ref.Type == OrderSale && l.credit != nil {
			_, err = l.credit.RefreshTx(ctx, tx, o.partyID)
		}
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("payments: recompute %s %d: %w", ref.Type, ref.ID, err)
	}
	return out, nil
}

// DeletePayment removes a payment with its allocations and restores the
// balances of every order it had paid.
func (l *Ledger) DeletePayment(ctx context.Context, paymentID int64) error {
	head, err := l.repo.GetPayment(ctx, paymentID)
	if err != nil {
		return fmt.Errorf("payments: delete: %w", err)
	}
	err = l.withPartyLock(ctx, head.PartyType, head.PartyID, func() error {
		return l.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
			p, err := tx.GetPaymentForUpdate(ctx, paymentID)
			if err != nil {
				return err
			}
			if err := l.dropAllocations(ctx, tx, p, "payment "+p.Number+" deleted"); err != nil {
				return err
			}
			if err := tx.DeletePayment(ctx, p.ID); err != nil {
				return err
			}
			return audit(ctx, tx, "payment.deleted", p, map[string]any{"number": p.Number, "amount": p.Amount.String()})
		})
	})
	if err != nil {
		return fmt.Errorf("payments: delete: %w", err)
	}
	l.logger.Info("payment deleted", slog.Int64("payment_id", paymentID))
	return nil
}

// dropAllocations removes every allocation of p and recomputes the orders they
// referenced, giving sale amounts back to used credit.
func (l *Ledger) dropAllocations(ctx context.Context, tx TxRepository, p *Payment, reason string) error {
	previous := allocationsByOrder(p.Allocations)
	locked, err := lockOrders(ctx, tx, slices.Collect(maps.Keys(previous)))
	if err != nil {
		return err
	}
	if err := tx.DeletePaymentAllocations(ctx, p.ID); err != nil {
		return err
	}
	if err := l.recomputeAll(ctx, tx, locked); err != nil {
		return err
	}
	if sales, touched := salesTotal(previous); touched {
		return l.settleCredit(ctx, tx, p, sales.Neg(), reason)
	}
	return nil
}

// CompletePayment confirms a pending payment.
func (l *Ledger) CompletePayment(ctx context.Context, paymentID int64) (*Payment, error) {
	var out *Payment
	err := l.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		p, err := tx.GetPaymentForUpdate(ctx, paymentID)
		if err != nil {
			return err
		}
		if err := lifecycle.Validate("payment", p.Status, StatusCompleted, Transitions); err != nil {
			return err
		}
		if err := tx.UpdatePaymentStatus(ctx, p.ID, p.Status, StatusCompleted); err != nil {
			return err
		}
		if err := audit(ctx, tx, "payment.completed", p, nil); err != nil {
			return err
		}
		out, err = tx.GetPayment(ctx, p.ID)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("payments: complete: %w", err)
	}
	return out, nil
}

// FailPayment marks a payment failed, e.g. a bounced transfer. Its
// allocations are dropped and the orders it paid are owed again.
func (l *Ledger) FailPayment(ctx context.Context, paymentID int64, reason string) (*Payment, error) {
	head, err := l.repo.GetPayment(ctx, paymentID)
	if err != nil {
		return nil, fmt.Errorf("payments: fail: %w", err)
	}
	var out *Payment
	err = l.withPartyLock(ctx, head.PartyType, head.PartyID, func() error {
		return l.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
			p, err := tx.GetPaymentForUpdate(ctx, paymentID)
			if err != nil {
				return err
			}
			if err := lifecycle.Validate("payment", p.Status, StatusFailed, Transitions); err != nil {
				return err
			}
			if err := l.dropAllocations(ctx, tx, p, "payment "+p.Number+" failed"); err != nil {
				return err
			}
			if err := tx.SetPaymentAllocation(ctx, p.ID, decimal.Zero, p.Amount); err != nil {
				return err
			}
			if err := tx.UpdatePaymentStatus(ctx, p.ID, p.Status, StatusFailed); err != nil {
				return err
			}
			if err := audit(ctx, tx, "payment.failed", p, map[string]any{"reason": reason}); err != nil {
				return err
			}
			out, err = tx.GetPayment(ctx, p.ID)
			return err
		})
	})
	if err != nil {
		return nil, fmt.Errorf("payments: fail: %w", err)
	}
	l.logger.Info("payment failed", slog.Int64("payment_id", paymentID), slog.String("reason", reason))
	return out, nil
}

func (l *Ledger) GetPayment(ctx context.Context, id int64) (*Payment, error) {
	return l.repo.GetPayment(ctx, id)
}

func (l *Ledger) ListPayments(ctx context.Context, req ListPaymentsRequest) ([]Payment, int, error) {
	return l.repo.ListPayments(ctx, req)
}

func (l *Ledger) ListOrderAllocations(ctx context.Context, ref OrderRef) ([]Allocation, error) {
	if ref.Type != OrderSale && ref.Type != OrderPurchase {
		return nil, shared.Invalid("unknown order type %q", ref.Type)
	}
	return l.repo.ListOrderAllocations(ctx, ref)
}
