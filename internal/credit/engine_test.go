package credit_test

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

var today = time.Date(2026, 5, 20, 10, 0, 0, 0, time.UTC)

type statusChange struct{ from, to string }

type fakeRecorder struct{ changes []statusChange }

func (r *fakeRecorder) CreditStatusChanged(from, to string) {
	r.changes = append(r.changes, statusChange{from, to})
}

func newEngine(t *testing.T) (*memstore.Store, *credit.Engine, *fakeRecorder) {
	t.Helper()
	clock := func() time.Time { return today }
	store := memstore.New().WithClock(clock)
	rec := &fakeRecorder{}
	return store, credit.NewEngine(store.Credit(), rec, nil).WithClock(clock), rec
}

func move(customerID int64, amount string, dir customers.Direction) credit.Movement {
	return credit.Movement{CustomerID: customerID, Amount: d(amount), Direction: dir, Reason: "manual"}
}

func TestUpdateCreditDerivesStatus(t *testing.T) {
	store, engine, rec := newEngine(t)
	ctx := context.Background()
	id := store.SeedCustomer("C-1", d("1000"), 0)

	c, err := engine.UpdateCredit(ctx, move(id, "800", customers.DirectionAdd))
	require.NoError(t, err)
	assert.Equal(t, customers.CreditWarning, c.CreditStatus)
	assert.True(t, c.AvailableCredit.Equal(d("200")))

	c, err = engine.UpdateCredit(ctx, move(id, "150", customers.DirectionAdd))
	require.NoError(t, err)
	assert.Equal(t, customers.CreditBlocked, c.CreditStatus)
	assert.True(t, c.UsedCredit.Equal(d("950")))

	assert.Equal(t, []statusChange{{"good", "warning"}, {"warning", "blocked"}}, rec.changes)

	history := store.CreditHistory(id)
	require.Len(t, history, 2)
	assert.True(t, history[1].UsedBefore.Equal(d("800")))
	assert.True(t, history[1].UsedAfter.Equal(d("950")))
	assert.Equal(t, customers.CreditWarning, history[1].StatusBefore)
	assert.Equal(t, customers.CreditBlocked, history[1].StatusAfter)
	assert.NotEqual(t, history[0].EventID, history[1].EventID)
}

func TestSubtractFloorsUsedCreditAtZero(t *testing.T) {
	store, engine, _ := newEngine(t)
	id := store.SeedCustomer("C-1", d("1000"), 0)

	_, err := engine.UpdateCredit(context.Background(), move(id, "100", customers.DirectionAdd))
	require.NoError(t, err)
	c, err := engine.UpdateCredit(context.Background(), move(id, "250", customers.DirectionSubtract))
	require.NoError(t, err)
	assert.True(t, c.UsedCredit.IsZero())
	assert.True(t, c.AvailableCredit.Equal(d("1000")))

	last := store.CreditHistory(id)[1]
	assert.True(t, last.Amount.Equal(d("250")))
	assert.True(t, last.UsedAfter.IsZero())
}

func TestUpdateCreditRejectsBadMovements(t *testing.T) {
	store, engine, _ := newEngine(t)
	id := store.SeedCustomer("C-1", d("1000"), 0)

	_, err := engine.UpdateCredit(context.Background(), move(id, "0", customers.DirectionAdd))
	assert.ErrorIs(t, err, shared.ErrValidation)
	_, err = engine.UpdateCredit(context.Background(), move(id, "10", customers.DirectionSet))
	assert.ErrorIs(t, err, shared.ErrValidation)
	_, err = engine.UpdateCredit(context.Background(), move(999, "10", customers.DirectionAdd))
	assert.ErrorIs(t, err, shared.ErrNotFound)
	assert.Empty(t, store.CreditHistory(id))
}

func TestFailedHistoryWriteLeavesCreditUnchanged(t *testing.T) {
	store, engine, _ := newEngine(t)
	id := store.SeedCustomer("C-1", d("1000"), 0)

	store.FailOnce("InsertCreditHistory", assert.AnError)
	_, err := engine.UpdateCredit(context.Background(), move(id, "100", customers.DirectionAdd))
	require.ErrorIs(t, err, assert.AnError)

	summary, err := engine.GetSummary(context.Background(), id)
	require.NoError(t, err)
	assert.True(t, summary.Customer.UsedCredit.IsZero())
}

func TestBlockAndUnblockCustomer(t *testing.T) {
	store, engine, _ := newEngine(t)
	ctx := context.Background()
	id := store.SeedCustomer("C-1", d("1000"), 0)

	c, err := engine.BlockCustomer(ctx, id, "fraud review")
	require.NoError(t, err)
	assert.Equal(t, customers.StatusBlocked, c.Status)
	assert.Equal(t, customers.CreditBlocked, c.CreditStatus)

	_, err = engine.BlockCustomer(ctx, id, "again")
	assert.ErrorIs(t, err, shared.ErrInvalidTransition)

	c, err = engine.UnblockCustomer(ctx, id, "cleared")
	require.NoError(t, err)
	assert.Equal(t, customers.StatusActive, c.Status)
	assert.Equal(t, customers.CreditGood, c.CreditStatus)

	_, err = engine.UnblockCustomer(ctx, id, "again")
	assert.ErrorIs(t, err, shared.ErrInvalidTransition)

	history := store.CreditHistory(id)
	require.Len(t, history, 2)
	assert.Equal(t, customers.HistoryBlock, history[0].Kind)
	assert.True(t, history[0].Amount.IsZero())
	assert.Equal(t, "fraud review", history[0].Reason)
	assert.Equal(t, customers.HistoryUnblock, history[1].Kind)
}

func TestSetCreditLimitRederivesStatus(t *testing.T) {
	store, engine, _ := newEngine(t)
	ctx := context.Background()
	id := store.SeedCustomer("C-1", d("0"), 0)

	_, err := engine.UpdateCredit(ctx, move(id, "950", customers.DirectionAdd))
	require.NoError(t, err)

	c, err := engine.SetCreditLimit(ctx, id, d("1000"), "annual review")
	require.NoError(t, err)
	assert.Equal(t, customers.CreditBlocked, c.CreditStatus)

	c, err = engine.SetCreditLimit(ctx, id, d("2000"), "raised")
	require.NoError(t, err)
	assert.Equal(t, customers.CreditGood, c.CreditStatus)

	last := store.CreditHistory(id)[2]
	assert.Equal(t, customers.HistoryLimit, last.Kind)
	assert.True(t, last.LimitBefore.Equal(d("1000")))
	assert.True(t, last.LimitAfter.Equal(d("2000")))

	_, err = engine.SetCreditLimit(ctx, id, d("-1"), "")
	assert.ErrorIs(t, err, shared.ErrValidation)

	summary, err := engine.GetSummary(ctx, id)
	require.NoError(t, err)
	assert.True(t, summary.Utilization.Equal(d("47.5")))
}

func TestRefreshPicksUpOverdueSales(t *testing.T) {
	store, engine, _ := newEngine(t)
	ctx := context.Background()
	id := store.SeedCustomer("C-1", d("10000"), 30)
	product := store.SeedProduct("SKU-1", d("10"))
	sales := orders.NewService(store.Sales(), engine, nil).WithClock(func() time.Time { return today })

	_, err := sales.Create(ctx, orders.CreateSaleRequest{
		CustomerID: id,
		SaleDate:   today.AddDate(0, 0, -45),
		Items:      []orders.ItemInput{{ProductID: product, Quantity: d("3"), UnitPrice: d("100")}},
	})
	require.NoError(t, err)
	_, err = sales.Create(ctx, orders.CreateSaleRequest{
		CustomerID: id,
		Items:      []orders.ItemInput{{ProductID: product, Quantity: d("1"), UnitPrice: d("200")}},
	})
	require.NoError(t, err)

	c, err := engine.Refresh(ctx, id)
	require.NoError(t, err)
	assert.True(t, c.TotalOutstanding.Equal(d("500")))
	assert.True(t, c.OverdueAmount.Equal(d("300")))
	assert.Equal(t, customers.CreditBlocked, c.CreditStatus)

	// refresh writes no history: only the two sale charges are recorded
	assert.Len(t, store.CreditHistory(id), 2)
}

func TestRefreshAllVisitsCustomersWithExposure(t *testing.T) {
	store, engine, _ := newEngine(t)
	ctx := context.Background()
	busy := store.SeedCustomer("C-1", d("1000"), 0)
	store.SeedCustomer("C-2", d("1000"), 0)

	_, err := engine.UpdateCredit(ctx, move(busy, "100", customers.DirectionAdd))
	require.NoError(t, err)

	summary, err := engine.RefreshAll(ctx)
	require.NoError(t, err)
	assert.Equal(t, credit.RefreshSummary{Refreshed: 1}, summary)
}

func TestHistoryIsNewestFirst(t *testing.T) {
	store, engine, _ := newEngine(t)
	ctx := context.Background()
	id := store.SeedCustomer("C-1", d("1000"), 0)
	for _, amt := range []string{"10", "20", "30"} {
		_, err := engine.UpdateCredit(ctx, move(id, amt, customers.DirectionAdd))
		require.NoError(t, err)
	}

	entries, total, err := engine.History(ctx, id, shared.PageRequest{Page: 1, PerPage: 2})
	require.NoError(t, err)
	assert.Equal(t, 3, total)
	require.Len(t, entries, 2)
	assert.True(t, entries[0].Amount.Equal(d("30")))
	assert.True(t, entries[1].Amount.Equal(d("20")))

	_, _, err = engine.History(ctx, 999, shared.PageRequest{})
	assert.ErrorIs(t, err, shared.ErrNotFound)
}
