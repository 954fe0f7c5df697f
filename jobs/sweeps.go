package jobs

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	"github.com/odyssey-erp/backoffice/internal/credit"
	jobmetrics "github.com/odyssey-erp/backoffice/internal/jobs"
	"github.com/odyssey-erp/backoffice/internal/sales/orders"
)

// OverdueMarker moves past-due sales to overdue.
type OverdueMarker interface {
	MarkOverdue(ctx context.Context, asOf time.Time, batch int) (orders.SweepResult, error)
}

// QuotationExpirer expires quotations past their validity.
type QuotationExpirer interface {
	ExpireDue(ctx context.Context, asOf time.Time, batch int) (int, error)
}

// CreditRefresher recomputes every customer's exposure.
type CreditRefresher interface {
	RefreshAll(ctx context.Context) (credit.RefreshSummary, error)
}

// KeyPurger deletes idempotency keys older than a retention window.
type KeyPurger interface {
	PurgeIdempotencyKeys(ctx context.Context, olderThan time.Duration) (int64, error)
}

// Sweeps holds the asynq handlers for the periodic maintenance tasks. Each
// handler only calls into the owning service; none writes rows directly.
type Sweeps struct {
	Sales      OverdueMarker
	Quotations QuotationExpirer
	Credit     CreditRefresher
	Keys       KeyPurger
	Logger     *slog.Logger
	Metrics    *jobmetrics.Metrics
	clock      func() time.Time
}

// WithClock overrides the time source used for the default as-of date.
func (s *Sweeps) WithClock(clock func() time.Time) *Sweeps {
	s.clock = clock
	return s
}

// Handlers lists the task handlers for the worker mux.
func (s *Sweeps) Handlers() []TaskHandler {
	return []TaskHandler{
		{Type: TaskSalesMarkOverdue, Handler: s.HandleMarkOverdue},
		{Type: TaskQuotationsExpire, Handler: s.HandleExpireQuotations},
		{Type: TaskCreditRefresh, Handler: s.HandleCreditRefresh},
		{Type: TaskIdempotencyPurge, Handler: s.HandlePurgeKeys},
	}
}

// HandleMarkOverdue runs the sales overdue sweep.
func (s *Sweeps) HandleMarkOverdue(ctx context.Context, t *asynq.Task) (err error) {
	if s == nil || s.Sales == nil {
		return errors.New("mark overdue: handler not configured")
	}
	var payload SweepPayload
	if err := decode(t, &payload); err != nil {
		return err
	}
	asOf, err := payload.asOf(s.now())
	if err != nil {
		return errors.Join(err, asynq.SkipRetry)
	}
	tracker := s.Metrics.Track(TaskSalesMarkOverdue)
	defer func() { err = tracker.End(err) }()

	start := time.Now()
	res, err := s.Sales.MarkOverdue(ctx, asOf, payload.batch())
	if err != nil {
		s.logger().Error("mark overdue failed", slog.Any("error", err))
		return err
	}
	s.Metrics.AddItems(TaskSalesMarkOverdue, "marked", res.Marked)
	s.Metrics.AddItems(TaskSalesMarkOverdue, "skipped", res.Skipped)
	s.logger().Info("mark overdue completed",
		slog.String("as_of", asOf.Format(asOfLayout)),
		slog.Int("marked", res.Marked),
		slog.Int("skipped", res.Skipped),
		slog.Duration("duration", time.Since(start)))
	return nil
}

// HandleExpireQuotations runs the quotation expiry sweep.
func (s *Sweeps) HandleExpireQuotations(ctx context.Context, t *asynq.Task) (err error) {
	if s == nil || s.Quotations == nil {
		return errors.New("expire quotations: handler not configured")
	}
	var payload SweepPayload
	if err := decode(t, &payload); err != nil {
		return err
	}
	asOf, err := payload.asOf(s.now())
	if err != nil {
		return errors.Join(err, asynq.SkipRetry)
	}
	tracker := s.Metrics.Track(TaskQuotationsExpire)
	defer func() { err = tracker.End(err) }()

	expired, err := s.Quotations.ExpireDue(ctx, asOf, payload.batch())
	if err != nil {
		s.logger().Error("expire quotations failed", slog.Any("error", err))
		return err
	}
	s.Metrics.AddItems(TaskQuotationsExpire, "expired", expired)
	s.logger().Info("expire quotations completed",
		slog.String("as_of", asOf.Format(asOfLayout)),
		slog.Int("expired", expired))
	return nil
}

// HandleCreditRefresh recomputes credit exposure for every customer.
func (s *Sweeps) HandleCreditRefresh(ctx context.Context, _ *asynq.Task) (err error) {
	if s == nil || s.Credit == nil {
		return errors.New("credit refresh: handler not configured")
	}
	tracker := s.Metrics.Track(TaskCreditRefresh)
	defer func() { err = tracker.End(err) }()

	summary, err := s.Credit.RefreshAll(ctx)
	s.Metrics.AddItems(TaskCreditRefresh, "refreshed", summary.Refreshed)
	s.Metrics.AddItems(TaskCreditRefresh, "failed", summary.Failed)
	if err != nil {
		s.logger().Error("credit refresh failed", slog.Int("refreshed", summary.Refreshed), slog.Any("error", err))
		return err
	}
	s.logger().Info("credit refresh completed",
		slog.Int("refreshed", summary.Refreshed),
		slog.Int("failed", summary.Failed))
	return nil
}

// HandlePurgeKeys drops expired idempotency keys.
func (s *Sweeps) HandlePurgeKeys(ctx context.Context, t *asynq.Task) (err error) {
	if s == nil || s.Keys == nil {
		return errors.New("purge keys: handler not configured")
	}
	var payload PurgePayload
	if err := decode(t, &payload); err != nil {
		return err
	}
	tracker := s.Metrics.Track(TaskIdempotencyPurge)
	defer func() { err = tracker.End(err) }()

	removed, err := s.Keys.PurgeIdempotencyKeys(ctx, payload.retention())
	if err != nil {
		s.logger().Error("purge idempotency keys failed", slog.Any("error", err))
		return err
	}
	s.Metrics.AddItems(TaskIdempotencyPurge, "removed", int(removed))
	s.logger().Info("purge idempotency keys completed", slog.Int64("removed", removed))
	return nil
}

func (s *Sweeps) logger() *slog.Logger {
	if s.Logger == nil {
		return slog.Default()
	}
	return s.Logger
}

func (s *Sweeps) now() time.Time {
	if s.clock == nil {
		return time.Now().UTC()
	}
	return s.clock()
}
