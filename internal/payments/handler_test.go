package payments_test

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/backoffice/internal/payments"
	"github.com/odyssey-erp/backoffice/internal/platform/httpx"
	"github.com/odyssey-erp/backoffice/internal/shared"
)

func newRouter(f *fixture) http.Handler {
	r := chi.NewRouter()
	payments.NewHandler(slog.New(slog.NewTextHandler(io.Discard, nil)), f.ledger).MountRoutes(r)
	return r
}

func do(t *testing.T, h http.Handler, method, path, body string, headers ...string) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	return rr
}

func TestHandlerCreateAndShowPayment(t *testing.T) {
	f := newFixture(t)
	sale := f.sale(t, f.customer, "1000")
	router := newRouter(f)

	body := fmt.Sprintf(`{"party_type":"customer","party_id":%d,"amount":"400","method":"cash",
		"allocations":[{"order_type":"sale","order_id":%d,"amount":"400"}]}`, f.customer, sale.ID)
	rr := do(t, router, http.MethodPost, "/payments", body)
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())

	var created payments.Payment
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &created))
	assert.True(t, created.AllocatedAmount.Equal(d("400")))

	rr = do(t, router, http.MethodGet, fmt.Sprintf("/payments/%d", created.ID), "")
	require.Equal(t, http.StatusOK, rr.Code)

	rr = do(t, router, http.MethodGet, fmt.Sprintf("/orders/sale/%d/allocations", sale.ID), "")
	require.Equal(t, http.StatusOK, rr.Code)
	var allocs []payments.Allocation
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &allocs))
	require.Len(t, allocs, 1)
	assert.Equal(t, created.ID, allocs[0].PaymentID)

	rr = do(t, router, http.MethodGet, "/payments?party_type=customer", "")
	require.Equal(t, http.StatusOK, rr.Code)
	var page httpx.Page[payments.Payment]
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &page))
	assert.Len(t, page.Data, 1)
	assert.Equal(t, 1, page.Pagination.Total)
}

func TestHandlerMapsLedgerErrors(t *testing.T) {
	f := newFixture(t)
	sale := f.sale(t, f.customer, "300")
	router := newRouter(f)

	over := fmt.Sprintf(`{"party_type":"customer","party_id":%d,"amount":"500","method":"cash",
		"allocations":[{"order_type":"sale","order_id":%d,"amount":"400"}]}`, f.customer, sale.ID)
	rr := do(t, router, http.MethodPost, "/payments", over)
	assert.Equal(t, http.StatusUnprocessableEntity, rr.Code)
	assert.Contains(t, rr.Body.String(), "Over Allocation")

	smuggled := fmt.Sprintf(`{"party_type":"customer","party_id":%d,"amount":"10","method":"cash","allocated_amount":"10"}`, f.customer)
	rr = do(t, router, http.MethodPost, "/payments", smuggled)
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	rr = do(t, router, http.MethodGet, "/payments/999", "")
	assert.Equal(t, http.StatusNotFound, rr.Code)

	rr = do(t, router, http.MethodGet, "/orders/invoice/1/allocations", "")
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestHandlerIdempotencyHeader(t *testing.T) {
	f := newFixture(t)
	router := newRouter(f)
	body := fmt.Sprintf(`{"party_type":"customer","party_id":%d,"amount":"50","method":"card"}`, f.customer)

	rr := do(t, router, http.MethodPost, "/payments", body, "Idempotency-Key", "req-1")
	require.Equal(t, http.StatusCreated, rr.Code)
	rr = do(t, router, http.MethodPost, "/payments", body, "Idempotency-Key", "req-1")
	assert.Equal(t, http.StatusConflict, rr.Code)
}

func TestHandlerFailAndRecompute(t *testing.T) {
	f := newFixture(t)
	sale := f.sale(t, f.customer, "200")
	router := newRouter(f)
	p, err := f.pay(f.customer, "200", toSale(sale.ID, "200"))
	require.NoError(t, err)

	rr := do(t, router, http.MethodPost, fmt.Sprintf("/payments/%d/fail", p.ID), `{"reason":"chargeback"}`)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())

	rr = do(t, router, http.MethodPost, fmt.Sprintf("/orders/sale/%d/recompute", sale.ID), "")
	require.Equal(t, http.StatusOK, rr.Code)
	var balance payments.OrderBalance
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &balance))
	assert.Equal(t, shared.PaymentUnpaid, balance.PaymentStatus)
	assert.True(t, balance.BalanceAmount.Equal(d("200")))

	rr = do(t, router, http.MethodDelete, fmt.Sprintf("/payments/%d", p.ID), "")
	assert.Equal(t, http.StatusNoContent, rr.Code)
}
