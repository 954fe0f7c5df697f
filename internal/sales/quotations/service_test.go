package quotations_test

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/backoffice/internal/sales/customers"
	"github.com/odyssey-erp/backoffice/internal/sales/quotations"
	"github.com/odyssey-erp/backoffice/internal/shared"
	"github.com/odyssey-erp/backoffice/internal/testing/memstore"
)

func d(v string) decimal.Decimal { return decimal.RequireFromString(v) }

var today = time.Date(2026, 4, 1, 8, 0, 0, 0, time.UTC)

func setup(t *testing.T) (*memstore.Store, *quotations.Service, quotations.CreateQuotationRequest) {
	t.Helper()
	store := memstore.New().WithClock(func() time.Time { return today })
	svc := quotations.NewService(store.Quotations(), nil).WithClock(func() time.Time { return today })
	customer := store.SeedCustomer("C-1", d("0"), 0)
	product := store.SeedProduct("SKU-1", d("25"))
	req := quotations.CreateQuotationRequest{
		CustomerID: customer,
		ValidUntil: today.AddDate(0, 0, 14),
		Lines: []quotations.CreateQuotationLineReq{
			{ProductID: product, Quantity: d("4"), UnitPrice: d("25"), DiscountAmount: d("10"), TaxAmount: d("9")},
		},
	}
	return store, svc, req
}

func TestCreateQuotationComputesTotals(t *testing.T) {
	_, svc, req := setup(t)

	q, err := svc.Create(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, quotations.QuotationStatusDraft, q.Status)
	assert.Equal(t, "QUO-202604-0001", q.Number)
	assert.True(t, q.Subtotal.Equal(d("100")))
	assert.True(t, q.DiscountAmount.Equal(d("10")))
	assert.True(t, q.TaxAmount.Equal(d("9")))
	assert.True(t, q.TotalAmount.Equal(d("99")))
	require.Len(t, q.Lines, 1)
	assert.Equal(t, "Product SKU-1", q.Lines[0].ProductName)
	assert.True(t, q.Lines[0].LineTotal.Equal(d("99")))
}

func TestCreateQuotationValidation(t *testing.T) {
	store, svc, req := setup(t)
	ctx := context.Background()

	bad := req
	bad.ValidUntil = today.AddDate(0, 0, -1)
	_, err := svc.Create(ctx, bad)
	assert.ErrorIs(t, err, shared.ErrValidation)

	bad = req
	bad.Lines = []quotations.CreateQuotationLineReq{{ProductID: req.Lines[0].ProductID, Quantity: d("1"), UnitPrice: d("5"), DiscountAmount: d("6")}}
	_, err = svc.Create(ctx, bad)
	assert.ErrorIs(t, err, shared.ErrValidation)

	bad = req
	bad.Lines = []quotations.CreateQuotationLineReq{{ProductID: 404, Quantity: d("1"), UnitPrice: d("5")}}
	_, err = svc.Create(ctx, bad)
	assert.Error(t, err)

	store.SetCustomerStatus(req.CustomerID, customers.StatusInactive)
	_, err = svc.Create(ctx, req)
	assert.ErrorIs(t, err, shared.ErrBlockedCounterparty)
}

func TestQuotationLifecycle(t *testing.T) {
	_, svc, req := setup(t)
	ctx := context.Background()
	q, err := svc.Create(ctx, req)
	require.NoError(t, err)

	_, err = svc.Transition(ctx, q.ID, quotations.QuotationStatusAccepted)
	require.Error(t, err)
	assert.ErrorIs(t, err, shared.ErrInvalidTransition)
	var transition *shared.InvalidTransitionError
	require.ErrorAs(t, err, &transition)
	assert.Equal(t, "draft", transition.From)
	assert.Equal(t, "accepted", transition.To)

	q, err = svc.Transition(ctx, q.ID, quotations.QuotationStatusSent)
	require.NoError(t, err)
	assert.Equal(t, quotations.QuotationStatusSent, q.Status)

	_, err = svc.Update(ctx, q.ID, quotations.UpdateQuotationRequest{Notes: ptr("late edit")})
	assert.ErrorIs(t, err, shared.ErrModificationNotAllowed)

	q, err = svc.Transition(ctx, q.ID, quotations.QuotationStatusAccepted)
	require.NoError(t, err)

	_, err = svc.Transition(ctx, q.ID, quotations.QuotationStatusConverted)
	assert.ErrorIs(t, err, shared.ErrInvalidTransition, "conversion has its own operation")
}

func TestUpdateDraftReplacesLines(t *testing.T) {
	_, svc, req := setup(t)
	ctx := context.Background()
	q, err := svc.Create(ctx, req)
	require.NoError(t, err)

	q, err = svc.Update(ctx, q.ID, quotations.UpdateQuotationRequest{
		Notes: ptr("revised"),
		Lines: []quotations.CreateQuotationLineReq{{ProductID: req.Lines[0].ProductID, Quantity: d("2"), UnitPrice: d("30")}},
	})
	require.NoError(t, err)
	assert.Equal(t, "revised", q.Notes)
	assert.True(t, q.TotalAmount.Equal(d("60")))
	require.Len(t, q.Lines, 1)
}

func TestExpireDueMovesOnlySentQuotations(t *testing.T) {
	_, svc, req := setup(t)
	ctx := context.Background()

	sent, err := svc.Create(ctx, req)
	require.NoError(t, err)
	_, err = svc.Transition(ctx, sent.ID, quotations.QuotationStatusSent)
	require.NoError(t, err)
	draft, err := svc.Create(ctx, req)
	require.NoError(t, err)

	n, err := svc.ExpireDue(ctx, today.AddDate(0, 0, 7), 0)
	require.NoError(t, err)
	assert.Zero(t, n)

	n, err = svc.ExpireDue(ctx, today.AddDate(0, 0, 30), 0)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	got, err := svc.Get(ctx, sent.ID)
	require.NoError(t, err)
	assert.Equal(t, quotations.QuotationStatusExpired, got.Status)
	got, err = svc.Get(ctx, draft.ID)
	require.NoError(t, err)
	assert.Equal(t, quotations.QuotationStatusDraft, got.Status)
}

func TestDeleteQuotation(t *testing.T) {
	_, svc, req := setup(t)
	ctx := context.Background()
	q, err := svc.Create(ctx, req)
	require.NoError(t, err)

	require.NoError(t, svc.Delete(ctx, q.ID))
	_, err = svc.Get(ctx, q.ID)
	assert.ErrorIs(t, err, shared.ErrNotFound)

	err = svc.Delete(ctx, q.ID)
	require.ErrorIs(t, err, shared.ErrNotFound)
	assert.Contains(t, err.Error(), "quotations: delete:")

	_, err = svc.Update(ctx, q.ID, quotations.UpdateQuotationRequest{})
	require.ErrorIs(t, err, shared.ErrNotFound)
	assert.Contains(t, err.Error(), "quotations: update:")
}

func ptr[T any](v T) *T { return &v }
