package payments_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/backoffice/internal/credit"
	"github.com/odyssey-erp/backoffice/internal/masterdata/suppliers"
	"github.com/odyssey-erp/backoffice/internal/observability"
	"github.com/odyssey-erp/backoffice/internal/payments"
	"github.com/odyssey-erp/backoffice/internal/platform/lock"
	"github.com/odyssey-erp/backoffice/internal/procurement"
	"github.com/odyssey-erp/backoffice/internal/sales/customers"
	"github.com/odyssey-erp/backoffice/internal/sales/orders"
	"github.com/odyssey-erp/backoffice/internal/shared"
	"github.com/odyssey-erp/backoffice/internal/testing/memstore"
)

func d(v string) decimal.Decimal { return decimal.RequireFromString(v) }

var today = time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)

type fixture struct {
	store       *memstore.Store
	sales       *orders.Service
	procurement *procurement.Service
	ledger      *payments.Ledger
	metrics     *observability.Metrics
	customer    int64
	product     int64
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	srv := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: srv.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	clock := func() time.Time { return today }
	store := memstore.New().WithClock(clock)
	engine := credit.NewEngine(store.Credit(), nil, nil).WithClock(clock)
	metrics := observability.NewMetrics()

	f := &fixture{
		store:       store,
		sales:       orders.NewService(store.Sales(), engine, nil).WithClock(clock),
		procurement: procurement.NewService(store.Procurement(), nil).WithClock(clock),
		ledger: payments.NewLedger(store.Payments(), engine, lock.New(rdb, time.Second, nil), metrics.Ledger(), nil).
			WithClock(clock),
		metrics:  metrics,
		customer: store.SeedCustomer("C-001", d("5000"), 30),
		product:  store.SeedProduct("SKU-1", d("100")),
	}
	return f
}

func (f *fixture) sale(t *testing.T, customerID int64, total string) *orders.Sale {
	t.Helper()
	sale, err := f.sales.Create(context.Background(), orders.CreateSaleRequest{
		CustomerID: customerID,
		Items:      []orders.ItemInput{{ProductID: f.product, Quantity: d("1"), UnitPrice: d(total)}},
	})
	require.NoError(t, err)
	return sale
}

func (f *fixture) pay(customerID int64, amount string, allocs ...payments.AllocationRequest) (*payments.Payment, error) {
	return f.ledger.CreatePayment(context.Background(), payments.CreatePaymentRequest{
		PartyType:   payments.PartyCustomer,
		PartyID:     customerID,
		Amount:      d(amount),
		Method:      "bank_transfer",
		Allocations: allocs,
	})
}

func (f *fixture) getSale(t *testing.T, id int64) *orders.Sale {
	t.Helper()
	sale, err := f.sales.Get(context.Background(), id)
	require.NoError(t, err)
	return sale
}

func (f *fixture) getCustomer(t *testing.T, id int64) *customers.Customer {
	t.Helper()
	c, err := f.store.GetCustomer(context.Background(), id)
	require.NoError(t, err)
	return c
}

func toSale(id int64, amount string) payments.AllocationRequest {
	return payments.AllocationRequest{OrderType: payments.OrderSale, OrderID: id, Amount: d(amount)}
}

// assertLedgerConsistent checks the allocation sums against every payment
// and every sale in the store.
func (f *fixture) assertLedgerConsistent(t *testing.T) {
	t.Helper()
	ctx := context.Background()

	list, _, err := f.ledger.ListPayments(ctx, payments.ListPaymentsRequest{Limit: 1000})
	require.NoError(t, err)
	for _, head := range list {
		p, err := f.ledger.GetPayment(ctx, head.ID)
		require.NoError(t, err)
		sum := decimal.Zero
		for _, a := range p.Allocations {
			sum = sum.Add(a.Amount)
		}
		assert.True(t, sum.LessThanOrEqual(p.Amount), "payment %s over-allocated", p.Number)
		assert.True(t, sum.Equal(p.AllocatedAmount), "payment %s allocated %s, rows %s", p.Number, p.AllocatedAmount, sum)
		assert.True(t, p.AllocatedAmount.Add(p.UnallocatedAmount).Equal(p.Amount), "payment %s split", p.Number)
	}

	sales, _, err := f.sales.List(ctx, orders.ListSalesRequest{Limit: 1000})
	require.NoError(t, err)
	for _, s := range sales {
		allocs, err := f.ledger.ListOrderAllocations(ctx, payments.OrderRef{Type: payments.OrderSale, ID: s.ID})
		require.NoError(t, err)
		paid := decimal.Zero
		for _, a := range allocs {
			paid = paid.Add(a.Amount)
		}
		assert.True(t, paid.Equal(s.PaidAmount), "sale %s paid %s, rows %s", s.Number, s.PaidAmount, paid)
		assert.True(t, s.BalanceAmount.Equal(s.TotalAmount.Sub(s.PaidAmount)), "sale %s balance", s.Number)
		assert.Equal(t, shared.DerivePaymentStatus(s.TotalAmount, s.PaidAmount), s.PaymentStatus, "sale %s status", s.Number)
	}
}

// ============================================================================
// CREATE PAYMENT
// ============================================================================

func TestPartialThenFullPaymentSettlesSale(t *testing.T) {
	f := newFixture(t)
	sale := f.sale(t, f.customer, "1000")
	assert.True(t, f.getCustomer(t, f.customer).UsedCredit.Equal(d("1000")))

	first, err := f.pay(f.customer, "400", toSale(sale.ID, "400"))
	require.NoError(t, err)
	assert.Equal(t, payments.StatusCompleted, first.Status)
	assert.True(t, first.AllocatedAmount.Equal(d("400")))
	assert.True(t, first.UnallocatedAmount.IsZero())
	require.Len(t, first.Allocations, 1)
	assert.Equal(t, sale.Number, first.Allocations[0].OrderNumber)

	got := f.getSale(t, sale.ID)
	assert.Equal(t, shared.PaymentPartiallyPaid, got.PaymentStatus)
	assert.True(t, got.PaidAmount.Equal(d("400")))
	assert.True(t, got.BalanceAmount.Equal(d("600")))
	assert.True(t, f.getCustomer(t, f.customer).UsedCredit.Equal(d("600")))

	second, err := f.pay(f.customer, "600")
	require.NoError(t, err)
	second, err = f.ledger.AllocateExistingPayment(context.Background(), second.ID, toSale(sale.ID, "600"))
	require.NoError(t, err)
	assert.True(t, second.UnallocatedAmount.IsZero())

	got = f.getSale(t, sale.ID)
	assert.Equal(t, shared.PaymentPaid, got.PaymentStatus)
	assert.True(t, got.BalanceAmount.IsZero())
	c := f.getCustomer(t, f.customer)
	assert.True(t, c.UsedCredit.IsZero())
	assert.True(t, c.TotalOutstanding.IsZero())

	_, err = f.pay(f.customer, "100", toSale(sale.ID, "50"))
	require.Error(t, err)
	assert.ErrorIs(t, err, shared.ErrOverAllocation)
	var over *shared.OverAllocationError
	require.True(t, errors.As(err, &over))
	assert.Equal(t, shared.LimitOrderBalance, over.Limit)

	f.assertLedgerConsistent(t)
}

func TestAllocationsCannotExceedPaymentAmount(t *testing.T) {
	f := newFixture(t)
	a := f.sale(t, f.customer, "500")
	b := f.sale(t, f.customer, "500")

	_, err := f.pay(f.customer, "600", toSale(a.ID, "400"), toSale(b.ID, "300"))
	require.Error(t, err)
	var over *shared.OverAllocationError
	require.True(t, errors.As(err, &over))
	assert.Equal(t, shared.LimitPaymentAmount, over.Limit)
	assert.True(t, over.Requested.Equal(d("700")))

	p, err := f.pay(f.customer, "600", toSale(a.ID, "400"), toSale(b.ID, "200"))
	require.NoError(t, err)
	assert.Len(t, p.Allocations, 2)
	f.assertLedgerConsistent(t)
}

func TestDuplicateAllocationRowsAreMergedPerOrder(t *testing.T) {
	f := newFixture(t)
	sale := f.sale(t, f.customer, "500")

	_, err := f.pay(f.customer, "500", toSale(sale.ID, "300"), toSale(sale.ID, "300"))
	require.ErrorIs(t, err, shared.ErrOverAllocation)

	p, err := f.pay(f.customer, "500", toSale(sale.ID, "200"), toSale(sale.ID, "100"))
	require.NoError(t, err)
	require.Len(t, p.Allocations, 1)
	assert.True(t, p.Allocations[0].Amount.Equal(d("300")))
}

func TestUnallocatedPaymentKeepsFullAmountOpen(t *testing.T) {
	f := newFixture(t)
	p, err := f.pay(f.customer, "250")
	require.NoError(t, err)
	assert.True(t, p.UnallocatedAmount.Equal(d("250")))
	assert.True(t, p.AllocatedAmount.IsZero())
	assert.Regexp(t, `^PAY-202603-\d{4}$`, p.Number)
}

func TestCreatePaymentValidation(t *testing.T) {
	f := newFixture(t)
	sale := f.sale(t, f.customer, "500")

	cases := []struct {
		name string
		req  payments.CreatePaymentRequest
	}{
		{"zero amount", payments.CreatePaymentRequest{PartyType: payments.PartyCustomer, PartyID: f.customer, Amount: decimal.Zero, Method: "cash"}},
		{"unknown method", payments.CreatePaymentRequest{PartyType: payments.PartyCustomer, PartyID: f.customer, Amount: d("10"), Method: "barter"}},
		{"negative allocation", payments.CreatePaymentRequest{PartyType: payments.PartyCustomer, PartyID: f.customer, Amount: d("10"), Method: "cash",
			Allocations: []payments.AllocationRequest{toSale(sale.ID, "-5")}}},
		{"pending with allocations", payments.CreatePaymentRequest{PartyType: payments.PartyCustomer, PartyID: f.customer, Amount: d("10"), Method: "cash",
			Pending: true, Allocations: []payments.AllocationRequest{toSale(sale.ID, "5")}}},
		{"supplier paying a sale", payments.CreatePaymentRequest{PartyType: payments.PartySupplier, PartyID: f.customer, Amount: d("10"), Method: "cash",
			Allocations: []payments.AllocationRequest{toSale(sale.ID, "5")}}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := f.ledger.CreatePayment(context.Background(), tc.req)
			require.Error(t, err)
			assert.ErrorIs(t, err, shared.ErrValidation)
		})
	}
}

func TestPaymentForAnotherCustomersSaleIsRejected(t *testing.T) {
	f := newFixture(t)
	other := f.store.SeedCustomer("C-002", d("5000"), 30)
	sale := f.sale(t, f.customer, "500")

	_, err := f.pay(other, "100", toSale(sale.ID, "100"))
	require.Error(t, err)
	assert.ErrorIs(t, err, shared.ErrValidation)
	assert.True(t, f.getSale(t, sale.ID).PaidAmount.IsZero())
}

func TestBlockedCustomerCannotPay(t *testing.T) {
	f := newFixture(t)
	sale := f.sale(t, f.customer, "500")
	f.store.SetCustomerStatus(f.customer, customers.StatusBlocked)

	_, err := f.pay(f.customer, "100", toSale(sale.ID, "100"))
	require.Error(t, err)
	assert.ErrorIs(t, err, shared.ErrBlockedCounterparty)
}

func TestCancelledSaleCannotReceivePayment(t *testing.T) {
	f := newFixture(t)
	sale := f.sale(t, f.customer, "500")
	_, err := f.sales.Transition(context.Background(), sale.ID, orders.StatusCancelled)
	require.NoError(t, err)

	_, err = f.pay(f.customer, "100", toSale(sale.ID, "100"))
	require.Error(t, err)
	assert.ErrorIs(t, err, shared.ErrModificationNotAllowed)
}

func TestIdempotencyKeyRejectsReplay(t *testing.T) {
	f := newFixture(t)
	sale := f.sale(t, f.customer, "500")
	req := payments.CreatePaymentRequest{
		PartyType:      payments.PartyCustomer,
		PartyID:        f.customer,
		Amount:         d("200"),
		Method:         "card",
		IdempotencyKey: "pay-7f3a",
		Allocations:    []payments.AllocationRequest{toSale(sale.ID, "200")},
	}

	_, err := f.ledger.CreatePayment(context.Background(), req)
	require.NoError(t, err)

	_, err = f.ledger.CreatePayment(context.Background(), req)
	require.Error(t, err)
	assert.ErrorIs(t, err, shared.ErrConflict)
	assert.ErrorIs(t, err, shared.ErrIdempotencyConflict)

	assert.True(t, f.getSale(t, sale.ID).PaidAmount.Equal(d("200")))
	_, total, err := f.ledger.ListPayments(context.Background(), payments.ListPaymentsRequest{})
	require.NoError(t, err)
	assert.Equal(t, 1, total)
}

func TestFailedWriteRollsBackEverything(t *testing.T) {
	f := newFixture(t)
	a := f.sale(t, f.customer, "500")
	b := f.sale(t, f.customer, "500")
	auditBefore := len(f.store.AuditLogs())
	historyBefore := len(f.store.CreditHistory(f.customer))

	f.store.FailOnce("SetSaleBalance", errors.New("connection reset"))
	_, err := f.ledger.CreatePayment(context.Background(), payments.CreatePaymentRequest{
		PartyType:      payments.PartyCustomer,
		PartyID:        f.customer,
		Amount:         d("800"),
		Method:         "cash",
		IdempotencyKey: "retry-me",
		Allocations:    []payments.AllocationRequest{toSale(a.ID, "500"), toSale(b.ID, "300")},
	})
	require.Error(t, err)

	for _, id := range []int64{a.ID, b.ID} {
		s := f.getSale(t, id)
		assert.True(t, s.PaidAmount.IsZero())
		assert.Equal(t, shared.PaymentUnpaid, s.PaymentStatus)
	}
	_, total, err := f.ledger.ListPayments(context.Background(), payments.ListPaymentsRequest{})
	require.NoError(t, err)
	assert.Zero(t, total)
	assert.Zero(t, f.store.IdempotencyKeys())
	assert.Len(t, f.store.AuditLogs(), auditBefore)
	assert.Len(t, f.store.CreditHistory(f.customer), historyBefore)
	assert.True(t, f.getCustomer(t, f.customer).UsedCredit.Equal(d("1000")))

	// the same key can be used once the failure is gone
	_, err = f.ledger.CreatePayment(context.Background(), payments.CreatePaymentRequest{
		PartyType:      payments.PartyCustomer,
		PartyID:        f.customer,
		Amount:         d("800"),
		Method:         "cash",
		IdempotencyKey: "retry-me",
		Allocations:    []payments.AllocationRequest{toSale(a.ID, "500"), toSale(b.ID, "300")},
	})
	require.NoError(t, err)
	f.assertLedgerConsistent(t)
}

func TestAuditFailureRollsBackAllocation(t *testing.T) {
	f := newFixture(t)
	sale := f.sale(t, f.customer, "500")

	f.store.FailOnce("RecordAudit", errors.New("audit unavailable"))
	_, err := f.pay(f.customer, "500", toSale(sale.ID, "500"))
	require.Error(t, err)
	assert.Equal(t, shared.PaymentUnpaid, f.getSale(t, sale.ID).PaymentStatus)
}

// ============================================================================
// ALLOCATE / REALLOCATE
// ============================================================================

func TestAllocateExistingPaymentUsesUnallocatedAmount(t *testing.T) {
	f := newFixture(t)
	a := f.sale(t, f.customer, "200")
	b := f.sale(t, f.customer, "500")

	p, err := f.pay(f.customer, "300", toSale(a.ID, "200"))
	require.NoError(t, err)

	_, err = f.ledger.AllocateExistingPayment(context.Background(), p.ID, toSale(b.ID, "150"))
	require.Error(t, err)
	var over *shared.OverAllocationError
	require.True(t, errors.As(err, &over))
	assert.Equal(t, shared.LimitPaymentUnallocated, over.Limit)

	p, err = f.ledger.AllocateExistingPayment(context.Background(), p.ID, toSale(b.ID, "100"))
	require.NoError(t, err)
	assert.True(t, p.UnallocatedAmount.IsZero())
	assert.Len(t, p.Allocations, 2)

	got := f.getSale(t, b.ID)
	assert.True(t, got.BalanceAmount.Equal(d("400")))
	assert.True(t, f.getCustomer(t, f.customer).UsedCredit.Equal(d("400")))
	f.assertLedgerConsistent(t)
}

func TestPendingPaymentMustCompleteBeforeAllocation(t *testing.T) {
	f := newFixture(t)
	sale := f.sale(t, f.customer, "500")

	p, err := f.ledger.CreatePayment(context.Background(), payments.CreatePaymentRequest{
		PartyType: payments.PartyCustomer, PartyID: f.customer, Amount: d("500"), Method: "cheque", Pending: true,
	})
	require.NoError(t, err)
	assert.Equal(t, payments.StatusPending, p.Status)

	_, err = f.ledger.AllocateExistingPayment(context.Background(), p.ID, toSale(sale.ID, "500"))
	require.ErrorIs(t, err, shared.ErrModificationNotAllowed)

	p, err = f.ledger.CompletePayment(context.Background(), p.ID)
	require.NoError(t, err)
	assert.Equal(t, payments.StatusCompleted, p.Status)

	_, err = f.ledger.CompletePayment(context.Background(), p.ID)
	require.ErrorIs(t, err, shared.ErrInvalidTransition)

	_, err = f.ledger.AllocateExistingPayment(context.Background(), p.ID, toSale(sale.ID, "500"))
	require.NoError(t, err)
	assert.Equal(t, shared.PaymentPaid, f.getSale(t, sale.ID).PaymentStatus)
}

func TestReallocateMovesAmountsBetweenSales(t *testing.T) {
	f := newFixture(t)
	a := f.sale(t, f.customer, "500")
	b := f.sale(t, f.customer, "500")

	p, err := f.pay(f.customer, "400", toSale(a.ID, "400"))
	require.NoError(t, err)
	assert.True(t, f.getCustomer(t, f.customer).UsedCredit.Equal(d("600")))

	p, err = f.ledger.ReallocatePayment(context.Background(), p.ID, []payments.AllocationRequest{toSale(b.ID, "300")})
	require.NoError(t, err)
	assert.True(t, p.AllocatedAmount.Equal(d("300")))
	assert.True(t, p.UnallocatedAmount.Equal(d("100")))
	require.Len(t, p.Allocations, 1)
	assert.Equal(t, b.ID, p.Allocations[0].OrderID)

	gotA, gotB := f.getSale(t, a.ID), f.getSale(t, b.ID)
	assert.Equal(t, shared.PaymentUnpaid, gotA.PaymentStatus)
	assert.True(t, gotA.BalanceAmount.Equal(d("500")))
	assert.Equal(t, shared.PaymentPartiallyPaid, gotB.PaymentStatus)
	assert.True(t, gotB.BalanceAmount.Equal(d("200")))

	c := f.getCustomer(t, f.customer)
	assert.True(t, c.UsedCredit.Equal(d("700")))
	assert.True(t, c.TotalOutstanding.Equal(d("700")))
	f.assertLedgerConsistent(t)
}

func TestReallocateCountsOwnAllocationAsHeadroom(t *testing.T) {
	f := newFixture(t)
	sale := f.sale(t, f.customer, "500")

	p, err := f.pay(f.customer, "500", toSale(sale.ID, "400"))
	require.NoError(t, err)

	_, err = f.ledger.ReallocatePayment(context.Background(), p.ID, []payments.AllocationRequest{toSale(sale.ID, "500")})
	require.NoError(t, err)
	assert.Equal(t, shared.PaymentPaid, f.getSale(t, sale.ID).PaymentStatus)
}

func TestReallocateToNothingClearsAllocations(t *testing.T) {
	f := newFixture(t)
	sale := f.sale(t, f.customer, "500")
	p, err := f.pay(f.customer, "300", toSale(sale.ID, "300"))
	require.NoError(t, err)

	p, err = f.ledger.ReallocatePayment(context.Background(), p.ID, nil)
	require.NoError(t, err)
	assert.Empty(t, p.Allocations)
	assert.True(t, p.UnallocatedAmount.Equal(d("300")))
	assert.True(t, f.getSale(t, sale.ID).BalanceAmount.Equal(d("500")))
	assert.True(t, f.getCustomer(t, f.customer).UsedCredit.Equal(d("500")))
}

// ============================================================================
// RECOMPUTE / DELETE / FAIL
// ============================================================================

func TestRecomputeOrderBalanceIsIdempotent(t *testing.T) {
	f := newFixture(t)
	sale := f.sale(t, f.customer, "1000")
	_, err := f.pay(f.customer, "250", toSale(sale.ID, "250"))
	require.NoError(t, err)

	ref := payments.OrderRef{Type: payments.OrderSale, ID: sale.ID}
	first, err := f.ledger.RecomputeOrderBalance(context.Background(), ref)
	require.NoError(t, err)
	second, err := f.ledger.RecomputeOrderBalance(context.Background(), ref)
	require.NoError(t, err)

	assert.True(t, first.PaidAmount.Equal(second.PaidAmount))
	assert.True(t, first.BalanceAmount.Equal(second.BalanceAmount))
	assert.Equal(t, first.PaymentStatus, second.PaymentStatus)
	assert.True(t, second.PaidAmount.Equal(d("250")))
	assert.True(t, second.BalanceAmount.Equal(d("750")))
	assert.Equal(t, shared.PaymentPartiallyPaid, second.PaymentStatus)

	_, err = f.ledger.RecomputeOrderBalance(context.Background(), payments.OrderRef{Type: payments.OrderSale, ID: 9999})
	assert.ErrorIs(t, err, shared.ErrNotFound)
}

func TestRecomputeAfterTotalDropMarksOverpaid(t *testing.T) {
	f := newFixture(t)
	sale := f.sale(t, f.customer, "1000")
	_, err := f.pay(f.customer, "600", toSale(sale.ID, "600"))
	require.NoError(t, err)

	f.store.SetSaleTotal(sale.ID, d("400"))
	got, err := f.ledger.RecomputeOrderBalance(context.Background(), payments.OrderRef{Type: payments.OrderSale, ID: sale.ID})
	require.NoError(t, err)
	assert.Equal(t, shared.PaymentOverpaid, got.PaymentStatus)
	assert.True(t, got.PaidAmount.Equal(d("600")))
	assert.True(t, got.BalanceAmount.Equal(d("-200")), "balance %s", got.BalanceAmount)

	stored := f.getSale(t, sale.ID)
	assert.Equal(t, shared.PaymentOverpaid, stored.PaymentStatus)
	assert.True(t, stored.BalanceAmount.Equal(d("-200")))

	rec := httptest.NewRecorder()
	f.metrics.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Contains(t, rec.Body.String(), `backoffice_orders_overpaid_total{order_type="sale"} 1`)
}

func TestDeletePaymentRestoresBalances(t *testing.T) {
	f := newFixture(t)
	a := f.sale(t, f.customer, "500")
	b := f.sale(t, f.customer, "300")
	p, err := f.pay(f.customer, "800", toSale(a.ID, "500"), toSale(b.ID, "300"))
	require.NoError(t, err)
	assert.True(t, f.getCustomer(t, f.customer).UsedCredit.IsZero())

	require.NoError(t, f.ledger.DeletePayment(context.Background(), p.ID))

	for _, id := range []int64{a.ID, b.ID} {
		s := f.getSale(t, id)
		assert.Equal(t, shared.PaymentUnpaid, s.PaymentStatus)
		assert.True(t, s.BalanceAmount.Equal(s.TotalAmount))
	}
	assert.True(t, f.getCustomer(t, f.customer).UsedCredit.Equal(d("800")))

	_, err = f.ledger.GetPayment(context.Background(), p.ID)
	assert.ErrorIs(t, err, shared.ErrNotFound)

	last := f.store.AuditLogs()[len(f.store.AuditLogs())-1]
	assert.Equal(t, "payment.deleted", last.Action)
	f.assertLedgerConsistent(t)
}

func TestFailPaymentReopensSales(t *testing.T) {
	f := newFixture(t)
	sale := f.sale(t, f.customer, "500")
	p, err := f.pay(f.customer, "500", toSale(sale.ID, "500"))
	require.NoError(t, err)

	p, err = f.ledger.FailPayment(context.Background(), p.ID, "cheque bounced")
	require.NoError(t, err)
	assert.Equal(t, payments.StatusFailed, p.Status)
	assert.Empty(t, p.Allocations)
	assert.True(t, p.UnallocatedAmount.Equal(d("500")))

	got := f.getSale(t, sale.ID)
	assert.Equal(t, shared.PaymentUnpaid, got.PaymentStatus)
	assert.True(t, got.BalanceAmount.Equal(d("500")))
	assert.True(t, f.getCustomer(t, f.customer).UsedCredit.Equal(d("500")))

	_, err = f.ledger.FailPayment(context.Background(), p.ID, "again")
	require.ErrorIs(t, err, shared.ErrInvalidTransition)
	_, err = f.ledger.ReallocatePayment(context.Background(), p.ID, []payments.AllocationRequest{toSale(sale.ID, "100")})
	require.ErrorIs(t, err, shared.ErrModificationNotAllowed)
}

// ============================================================================
// SUPPLIER PAYMENTS
// ============================================================================

func TestSupplierPaymentSettlesPurchase(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	supplier := f.store.SeedSupplier("S-001")
	purchase, err := f.procurement.Create(ctx, procurement.CreatePurchaseRequest{
		SupplierID: supplier,
		Items:      []procurement.ItemInput{{ProductID: f.product, Quantity: d("2"), UnitCost: d("400")}},
	})
	require.NoError(t, err)
	assert.True(t, purchase.TotalAmount.Equal(d("800")))

	_, err = f.ledger.CreatePayment(ctx, payments.CreatePaymentRequest{
		PartyType: payments.PartySupplier, PartyID: supplier, Amount: d("800"), Method: "bank_transfer",
		Allocations: []payments.AllocationRequest{toSale(purchase.ID, "800")},
	})
	require.ErrorIs(t, err, shared.ErrValidation)

	p, err := f.ledger.CreatePayment(ctx, payments.CreatePaymentRequest{
		PartyType: payments.PartySupplier, PartyID: supplier, Amount: d("800"), Method: "bank_transfer",
		Allocations: []payments.AllocationRequest{{OrderType: payments.OrderPurchase, OrderID: purchase.ID, Amount: d("800")}},
	})
	require.NoError(t, err)
	assert.Equal(t, "Supplier S-001", p.PartyName)

	got, err := f.procurement.Get(ctx, purchase.ID)
	require.NoError(t, err)
	assert.Equal(t, shared.PaymentPaid, got.PaymentStatus)
	assert.True(t, got.BalanceAmount.IsZero())

	_, err = f.procurement.Transition(ctx, purchase.ID, procurement.StatusCancelled)
	assert.ErrorIs(t, err, shared.ErrInvalidTransition)

	assert.Empty(t, f.store.CreditHistory(f.customer), "supplier payments leave customer credit untouched")
}

func TestReceivedPurchaseStillTakesPayments(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	supplier := f.store.SeedSupplier("S-003")
	purchase, err := f.procurement.Create(ctx, procurement.CreatePurchaseRequest{
		SupplierID: supplier,
		Items:      []procurement.ItemInput{{ProductID: f.product, Quantity: d("1"), UnitCost: d("300")}},
	})
	require.NoError(t, err)
	for _, to := range []procurement.Status{procurement.StatusOrdered, procurement.StatusReceived} {
		_, err = f.procurement.Transition(ctx, purchase.ID, to)
		require.NoError(t, err)
	}

	toPurchase := payments.AllocationRequest{OrderType: payments.OrderPurchase, OrderID: purchase.ID, Amount: d("300")}
	_, err = f.ledger.CreatePayment(ctx, payments.CreatePaymentRequest{
		PartyType: payments.PartySupplier, PartyID: supplier, Amount: d("300"), Method: "bank_transfer",
		Allocations: []payments.AllocationRequest{toPurchase},
	})
	require.NoError(t, err)

	got, err := f.procurement.Get(ctx, purchase.ID)
	require.NoError(t, err)
	assert.Equal(t, procurement.StatusReceived, got.Status)
	assert.Equal(t, shared.PaymentPaid, got.PaymentStatus)

	// a cancelled purchase is the one refused
	other, err := f.procurement.Create(ctx, procurement.CreatePurchaseRequest{
		SupplierID: supplier,
		Items:      []procurement.ItemInput{{ProductID: f.product, Quantity: d("1"), UnitCost: d("50")}},
	})
	require.NoError(t, err)
	_, err = f.procurement.Transition(ctx, other.ID, procurement.StatusCancelled)
	require.NoError(t, err)
	_, err = f.ledger.CreatePayment(ctx, payments.CreatePaymentRequest{
		PartyType: payments.PartySupplier, PartyID: supplier, Amount: d("50"), Method: "cash",
		Allocations: []payments.AllocationRequest{{OrderType: payments.OrderPurchase, OrderID: other.ID, Amount: d("50")}},
	})
	assert.ErrorIs(t, err, shared.ErrModificationNotAllowed)
}

func TestBlockedSupplierCannotBePaid(t *testing.T) {
	f := newFixture(t)
	supplier := f.store.SeedSupplier("S-002")
	require.NoError(t, f.store.UpdateSupplierStatus(context.Background(), supplier, suppliers.StatusBlocked))

	_, err := f.ledger.CreatePayment(context.Background(), payments.CreatePaymentRequest{
		PartyType: payments.PartySupplier, PartyID: supplier, Amount: d("10"), Method: "cash",
	})
	assert.ErrorIs(t, err, shared.ErrBlockedCounterparty)
}

func TestListOrderAllocationsRejectsUnknownType(t *testing.T) {
	f := newFixture(t)
	_, err := f.ledger.ListOrderAllocations(context.Background(), payments.OrderRef{Type: "invoice", ID: 1})
	assert.ErrorIs(t, err, shared.ErrValidation)
}
