package orders_test

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/backoffice/internal/credit"
	"github.com/odyssey-erp/backoffice/internal/sales/customers"
	"github.com/odyssey-erp/backoffice/internal/sales/orders"
	"github.com/odyssey-erp/backoffice/internal/shared"
	"github.com/odyssey-erp/backoffice/internal/testing/memstore"
)

func d(v string) decimal.Decimal { return decimal.RequireFromString(v) }

var today = time.Date(2026, 7, 15, 9, 30, 0, 0, time.UTC)

type harness struct {
	store    *memstore.Store
	engine   *credit.Engine
	svc      *orders.Service
	customer int64
	product  int64
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	clock := func() time.Time { return today }
	store := memstore.New().WithClock(clock)
	engine := credit.NewEngine(store.Credit(), nil, nil).WithClock(clock)
	return &harness{
		store:    store,
		engine:   engine,
		svc:      orders.NewService(store.Sales(), engine, nil).WithClock(clock),
		customer: store.SeedCustomer("C-1", d("2000"), 14),
		product:  store.SeedProduct("SKU-1", d("50")),
	}
}

func (h *harness) create(t *testing.T, qty, price string) *orders.Sale {
	t.Helper()
	sale, err := h.svc.Create(context.Background(), orders.CreateSaleRequest{
		CustomerID: h.customer,
		Items:      []orders.ItemInput{{ProductID: h.product, Quantity: d(qty), UnitPrice: d(price)}},
	})
	require.NoError(t, err)
	return sale
}

func (h *harness) usedCredit(t *testing.T) decimal.Decimal {
	t.Helper()
	c, err := h.store.GetCustomer(context.Background(), h.customer)
	require.NoError(t, err)
	return c.UsedCredit
}

func TestCreateSaleChargesCredit(t *testing.T) {
	h := newHarness(t)
	sale := h.create(t, "4", "50")

	assert.Equal(t, "SAL-202607-0001", sale.Number)
	assert.Equal(t, orders.StatusPending, sale.Status)
	assert.Equal(t, shared.PaymentUnpaid, sale.PaymentStatus)
	assert.True(t, sale.TotalAmount.Equal(d("200")))
	assert.True(t, sale.BalanceAmount.Equal(d("200")))
	assert.True(t, sale.PaidAmount.IsZero())
	require.NotNil(t, sale.DueDate)
	assert.True(t, sale.DueDate.Equal(today.AddDate(0, 0, 14)))
	require.Len(t, sale.Items, 1)
	assert.Equal(t, "SKU-1", sale.Items[0].ProductSKU)

	assert.True(t, h.usedCredit(t).Equal(d("200")))
	history := h.store.CreditHistory(h.customer)
	require.Len(t, history, 1)
	assert.Equal(t, "sale", history[0].ReferenceType)
	assert.Equal(t, sale.ID, *history[0].ReferenceID)
}

func TestCreateSaleRefusals(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	_, err := h.svc.Create(ctx, orders.CreateSaleRequest{CustomerID: h.customer})
	assert.ErrorIs(t, err, shared.ErrValidation)

	past := today.AddDate(0, 0, -3)
	_, err = h.svc.Create(ctx, orders.CreateSaleRequest{
		CustomerID: h.customer,
		DueDate:    &past,
		Items:      []orders.ItemInput{{ProductID: h.product, Quantity: d("1"), UnitPrice: d("5")}},
	})
	assert.ErrorIs(t, err, shared.ErrValidation)

	_, err = h.engine.UpdateCredit(ctx, credit.Movement{CustomerID: h.customer, Amount: d("1900"), Direction: customers.DirectionAdd})
	require.NoError(t, err)
	_, err = h.svc.Create(ctx, orders.CreateSaleRequest{
		CustomerID: h.customer,
		Items:      []orders.ItemInput{{ProductID: h.product, Quantity: d("1"), UnitPrice: d("5")}},
	})
	assert.ErrorIs(t, err, shared.ErrBlockedCounterparty)

	_, total, err := h.svc.List(ctx, orders.ListSalesRequest{})
	require.NoError(t, err)
	assert.Zero(t, total)
}

func TestUpdatePendingSaleMovesCreditByDifference(t *testing.T) {
	h := newHarness(t)
	sale := h.create(t, "2", "50")

	notes := "call before delivery"
	updated, err := h.svc.Update(context.Background(), sale.ID, orders.UpdateSaleRequest{
		Notes: &notes,
		Items: []orders.ItemInput{{ProductID: h.product, Quantity: d("5"), UnitPrice: d("50")}},
	})
	require.NoError(t, err)
	assert.Equal(t, notes, updated.Notes)
	assert.True(t, updated.TotalAmount.Equal(d("250")))
	assert.True(t, updated.BalanceAmount.Equal(d("250")))
	assert.True(t, h.usedCredit(t).Equal(d("250")))

	_, err = h.svc.Transition(context.Background(), sale.ID, orders.StatusConfirmed)
	require.NoError(t, err)
	_, err = h.svc.Update(context.Background(), sale.ID, orders.UpdateSaleRequest{Notes: &notes})
	assert.ErrorIs(t, err, shared.ErrModificationNotAllowed)
}

func TestSaleLifecycle(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	sale := h.create(t, "1", "100")

	_, err := h.svc.Transition(ctx, sale.ID, orders.StatusDelivered)
	assert.ErrorIs(t, err, shared.ErrInvalidTransition)

	for _, to := range []orders.Status{orders.StatusConfirmed, orders.StatusDelivered} {
		sale, err = h.svc.Transition(ctx, sale.ID, to)
		require.NoError(t, err)
		assert.Equal(t, to, sale.Status)
	}
	_, err = h.svc.Transition(ctx, sale.ID, orders.StatusCancelled)
	assert.ErrorIs(t, err, shared.ErrInvalidTransition)
}

func TestCancelReleasesCredit(t *testing.T) {
	h := newHarness(t)
	sale := h.create(t, "3", "100")
	assert.True(t, h.usedCredit(t).Equal(d("300")))

	cancelled, err := h.svc.Transition(context.Background(), sale.ID, orders.StatusCancelled)
	require.NoError(t, err)
	assert.Equal(t, orders.StatusCancelled, cancelled.Status)
	assert.True(t, h.usedCredit(t).IsZero())

	_, err = h.svc.Transition(context.Background(), sale.ID, orders.StatusPending)
	assert.ErrorIs(t, err, shared.ErrInvalidTransition)
}

func TestCancelRefusedOncePaid(t *testing.T) {
	h := newHarness(t)
	sale := h.create(t, "1", "100")
	require.NoError(t, h.store.SetSaleBalance(context.Background(), sale.ID, d("40"), d("60"), shared.PaymentPartiallyPaid))

	_, err := h.svc.Transition(context.Background(), sale.ID, orders.StatusCancelled)
	require.Error(t, err)
	var transition *shared.InvalidTransitionError
	require.ErrorAs(t, err, &transition)
	assert.Contains(t, transition.Reason, "payments allocated")
}

func TestDeleteSettledSaleIsBlocked(t *testing.T) {
	h := newHarness(t)
	sale := h.create(t, "1", "100")
	require.NoError(t, h.store.SetSaleBalance(context.Background(), sale.ID, d("100"), decimal.Zero, shared.PaymentPaid))

	err := h.svc.Delete(context.Background(), sale.ID)
	assert.ErrorIs(t, err, shared.ErrDeletionBlocked)
}

func TestDeleteUnpaidSaleReleasesCredit(t *testing.T) {
	h := newHarness(t)
	sale := h.create(t, "2", "100")

	require.NoError(t, h.svc.Delete(context.Background(), sale.ID))
	_, err := h.svc.Get(context.Background(), sale.ID)
	assert.ErrorIs(t, err, shared.ErrNotFound)
	assert.True(t, h.usedCredit(t).IsZero())
}

func TestMarkOverdueSweep(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	old, err := h.svc.Create(ctx, orders.CreateSaleRequest{
		CustomerID: h.customer,
		SaleDate:   today.AddDate(0, 0, -30),
		Items:      []orders.ItemInput{{ProductID: h.product, Quantity: d("1"), UnitPrice: d("100")}},
	})
	require.NoError(t, err)
	settled, err := h.svc.Create(ctx, orders.CreateSaleRequest{
		CustomerID: h.customer,
		SaleDate:   today.AddDate(0, 0, -30),
		Items:      []orders.ItemInput{{ProductID: h.product, Quantity: d("1"), UnitPrice: d("80")}},
	})
	require.NoError(t, err)
	require.NoError(t, h.store.SetSaleBalance(ctx, settled.ID, d("80"), decimal.Zero, shared.PaymentPaid))
	fresh := h.create(t, "1", "60")

	res, err := h.svc.MarkOverdue(ctx, today, 0)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Marked)

	got, err := h.svc.Get(ctx, old.ID)
	require.NoError(t, err)
	assert.Equal(t, orders.StatusOverdue, got.Status)
	for _, id := range []int64{settled.ID, fresh.ID} {
		got, err = h.svc.Get(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, orders.StatusPending, got.Status)
	}

	c, err := h.store.GetCustomer(ctx, h.customer)
	require.NoError(t, err)
	assert.True(t, c.OverdueAmount.Equal(d("100")))
	assert.Equal(t, customers.CreditBlocked, c.CreditStatus)

	again, err := h.svc.MarkOverdue(ctx, today, 0)
	require.NoError(t, err)
	assert.Zero(t, again.Marked)
}

func TestIsOverdueCandidate(t *testing.T) {
	due := today.AddDate(0, 0, -1)
	base := orders.Sale{Status: orders.StatusConfirmed, DueDate: &due, BalanceAmount: d("10")}

	assert.True(t, orders.IsOverdueCandidate(&base, today))

	noDue := base
	noDue.DueDate = nil
	assert.False(t, orders.IsOverdueCandidate(&noDue, today))

	paid := base
	paid.BalanceAmount = decimal.Zero
	assert.False(t, orders.IsOverdueCandidate(&paid, today))

	already := base
	already.Status = orders.StatusOverdue
	assert.False(t, orders.IsOverdueCandidate(&already, today))
}
