package app_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/backoffice/internal/app"
	"github.com/odyssey-erp/backoffice/internal/credit"
	"github.com/odyssey-erp/backoffice/internal/observability"
	"github.com/odyssey-erp/backoffice/internal/sales/customers"
	_ "github.com/odyssey-erp/backoffice/internal/testing/guard"
	"github.com/odyssey-erp/backoffice/internal/testing/memstore"
)

type pinger struct{ err error }

func (p pinger) Ping(context.Context) error { return p.err }

func newRouter(t *testing.T, db app.Pinger) (http.Handler, *memstore.Store) {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	store := memstore.New()
	engine := credit.NewEngine(store.Credit(), nil, logger)
	return app.NewRouter(app.RouterParams{
		Logger:          logger,
		Config:          &app.Config{AppEnv: "test"},
		Metrics:         observability.NewMetrics(),
		DB:              db,
		CustomerHandler: customers.NewHandler(logger, customers.NewService(store.Customers(), logger)),
		CreditHandler:   credit.NewHandler(logger, engine),
	}), store
}

func serve(h http.Handler, method, path, body string, header map[string]string) *httptest.ResponseRecorder {
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	req.RemoteAddr = "10.0.0.1:5000"
	for k, v := range header {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestGuardEnablesTestMode(t *testing.T) {
	app.RefreshTestMode()
	assert.True(t, app.InTestMode())
}

func TestHealthz(t *testing.T) {
	h, _ := newRouter(t, pinger{})
	rec := serve(h, http.MethodGet, "/healthz", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok","database":"ok"}`, rec.Body.String())
	assert.Equal(t, "DENY", rec.Header().Get("X-Frame-Options"))

	h, _ = newRouter(t, pinger{err: errors.New("connection refused")})
	rec = serve(h, http.MethodGet, "/healthz", "", nil)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Contains(t, rec.Body.String(), "unreachable")
}

func TestMetricsEndpoint(t *testing.T) {
	h, _ := newRouter(t, nil)
	serve(h, http.MethodGet, "/healthz", "", nil)

	rec := serve(h, http.MethodGet, "/metrics", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "backoffice_http_requests_total")
}

func TestActorHeaderReachesCreditHistory(t *testing.T) {
	h, store := newRouter(t, nil)

	rec := serve(h, http.MethodPost, "/api/v1/customers",
		`{"code":"ACME","name":"Acme","payment_terms_days":30,"credit_limit":"1500"}`,
		map[string]string{"Content-Type": "application/json", app.ActorHeader: "42"})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	c, err := store.GetCustomerByCode(context.Background(), "ACME")
	require.NoError(t, err)
	history := store.CreditHistory(c.ID)
	require.Len(t, history, 1)
	assert.Equal(t, int64(42), history[0].CreatedBy)

	rec = serve(h, http.MethodGet, "/api/v1/customers/"+strconv.FormatInt(c.ID, 10)+"/credit", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"credit_status":"good"`)
}

func TestMalformedActorHeaderIsRejected(t *testing.T) {
	h, _ := newRouter(t, nil)
	rec := serve(h, http.MethodGet, "/api/v1/customers", "", map[string]string{app.ActorHeader: "root"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestUnmountedHandlersAreSkipped(t *testing.T) {
	h, _ := newRouter(t, nil)
	rec := serve(h, http.MethodGet, "/api/v1/payments", "", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
