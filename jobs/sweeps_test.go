package jobs_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-chi/chi/v5"
	"github.com/hibiken/asynq"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/backoffice/internal/credit"
	jobmetrics "github.com/odyssey-erp/backoffice/internal/jobs"
	"github.com/odyssey-erp/backoffice/internal/sales/orders"
	"github.com/odyssey-erp/backoffice/internal/shared"
	"github.com/odyssey-erp/backoffice/jobs"
)

type fakeSales struct {
	asOf  time.Time
	batch int
	res   orders.SweepResult
	err   error
}

func (f *fakeSales) MarkOverdue(_ context.Context, asOf time.Time, batch int) (orders.SweepResult, error) {
	f.asOf, f.batch = asOf, batch
	return f.res, f.err
}

type fakeQuotations struct {
	asOf    time.Time
	expired int
}

func (f *fakeQuotations) ExpireDue(_ context.Context, asOf time.Time, _ int) (int, error) {
	f.asOf = asOf
	return f.expired, nil
}

type fakeCredit struct {
	calls int
}

func (f *fakeCredit) RefreshAll(context.Context) (credit.RefreshSummary, error) {
	f.calls++
	return credit.RefreshSummary{Refreshed: 3}, nil
}

type fakeKeys struct {
	retention time.Duration
}

func (f *fakeKeys) PurgeIdempotencyKeys(_ context.Context, olderThan time.Duration) (int64, error) {
	f.retention = olderThan
	return 2, nil
}

func newSweeps() (*jobs.Sweeps, *fakeSales, *fakeQuotations, *fakeCredit, *fakeKeys) {
	sales, quotes, cr, keys := &fakeSales{}, &fakeQuotations{}, &fakeCredit{}, &fakeKeys{}
	s := &jobs.Sweeps{
		Sales:      sales,
		Quotations: quotes,
		Credit:     cr,
		Keys:       keys,
		Metrics:    jobmetrics.NewMetrics(prometheus.NewRegistry()),
	}
	s.WithClock(func() time.Time { return time.Date(2026, 3, 10, 4, 0, 0, 0, time.UTC) })
	return s, sales, quotes, cr, keys
}

func task(t *testing.T, taskType string, payload any) *asynq.Task {
	t.Helper()
	tk, err := jobs.NewTask(taskType, payload)
	require.NoError(t, err)
	return tk
}

func TestMarkOverdueDefaultsToToday(t *testing.T) {
	s, sales, _, _, _ := newSweeps()
	sales.res = orders.SweepResult{Marked: 2}

	require.NoError(t, s.HandleMarkOverdue(context.Background(), task(t, jobs.TaskSalesMarkOverdue, nil)))
	assert.Equal(t, time.Date(2026, 3, 10, 4, 0, 0, 0, time.UTC), sales.asOf)
	assert.Equal(t, 500, sales.batch)
}

func TestMarkOverdueHonoursPayload(t *testing.T) {
	s, sales, _, _, _ := newSweeps()
	err := s.HandleMarkOverdue(context.Background(), task(t, jobs.TaskSalesMarkOverdue, jobs.SweepPayload{AsOf: "2026-02-01", BatchSize: 10}))
	require.NoError(t, err)
	assert.Equal(t, time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC), sales.asOf)
	assert.Equal(t, 10, sales.batch)
}

func TestMarkOverdueBadPayloadSkipsRetry(t *testing.T) {
	s, _, _, _, _ := newSweeps()
	err := s.HandleMarkOverdue(context.Background(), asynq.NewTask(jobs.TaskSalesMarkOverdue, []byte("{")))
	assert.ErrorIs(t, err, asynq.SkipRetry)

	err = s.HandleMarkOverdue(context.Background(), task(t, jobs.TaskSalesMarkOverdue, jobs.SweepPayload{AsOf: "yesterday"}))
	assert.ErrorIs(t, err, asynq.SkipRetry)
}

func TestMarkOverdueSurfacesServiceError(t *testing.T) {
	s, sales, _, _, _ := newSweeps()
	sales.err = errors.New("db down")
	assert.ErrorIs(t, s.HandleMarkOverdue(context.Background(), task(t, jobs.TaskSalesMarkOverdue, nil)), sales.err)
}

func TestOtherSweepsDelegate(t *testing.T) {
	s, _, quotes, cr, keys := newSweeps()
	ctx := context.Background()

	require.NoError(t, s.HandleExpireQuotations(ctx, task(t, jobs.TaskQuotationsExpire, jobs.SweepPayload{AsOf: "2026-03-01"})))
	assert.Equal(t, time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC), quotes.asOf)

	require.NoError(t, s.HandleCreditRefresh(ctx, task(t, jobs.TaskCreditRefresh, nil)))
	assert.Equal(t, 1, cr.calls)

	require.NoError(t, s.HandlePurgeKeys(ctx, task(t, jobs.TaskIdempotencyPurge, jobs.PurgePayload{RetentionHours: 24})))
	assert.Equal(t, 24*time.Hour, keys.retention)

	require.NoError(t, s.HandlePurgeKeys(ctx, task(t, jobs.TaskIdempotencyPurge, nil)))
	assert.Equal(t, 72*time.Hour, keys.retention)
}

func TestUnconfiguredSweepFails(t *testing.T) {
	s := &jobs.Sweeps{}
	assert.Error(t, s.HandleCreditRefresh(context.Background(), task(t, jobs.TaskCreditRefresh, nil)))
}

func TestHandlersCoverEveryTask(t *testing.T) {
	s, _, _, _, _ := newSweeps()
	var types []string
	for _, h := range s.Handlers() {
		types = append(types, h.Type)
		assert.True(t, jobs.KnownTask(h.Type))
	}
	assert.ElementsMatch(t, []string{jobs.TaskSalesMarkOverdue, jobs.TaskQuotationsExpire, jobs.TaskCreditRefresh, jobs.TaskIdempotencyPurge}, types)
}

func TestClientRejectsUnknownTask(t *testing.T) {
	mr := miniredis.RunT(t)
	client := jobs.NewClient(asynq.RedisClientOpt{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	_, err := client.Enqueue(context.Background(), "mail:send", nil)
	assert.ErrorIs(t, err, shared.ErrValidation)
}

func TestTriggerWithoutClientIsUnavailable(t *testing.T) {
	r := chi.NewRouter()
	jobs.NewHandler(nil, nil, nil).MountRoutes(r)

	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/jobs/credit:refresh", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rr.Code)

	rr = httptest.NewRecorder()
	r.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/jobs/health", nil))
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), `"queue":"default"`)
}
