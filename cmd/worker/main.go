package main

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/hibiken/asynq"

	"github.com/odyssey-erp/backoffice/internal/app"
	jobmetrics "github.com/odyssey-erp/backoffice/internal/jobs"
	"github.com/odyssey-erp/backoffice/jobs"
)

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping worker startup")
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := app.LoadConfig()
	if err != nil {
		slog.Default().Error("load config", slog.Any("error", err))
		os.Exit(1)
	}
	logger := app.NewLogger(cfg).With(slog.String("component", "worker"))

	rt, err := app.Open(ctx, cfg, logger)
	if err != nil {
		logger.Error("open runtime", slog.Any("error", err))
		os.Exit(1)
	}
	defer rt.Close()

	svc := rt.BuildServices()
	sweeps := &jobs.Sweeps{
		Sales:      svc.Sales,
		Quotations: svc.Quotations,
		Credit:     svc.Credit,
		Keys:       svc.Keys,
		Logger:     logger,
		Metrics:    jobmetrics.NewMetrics(nil),
	}

	cron, err := cronRegistrations(cfg)
	if err != nil {
		logger.Error("build cron tasks", slog.Any("error", err))
		os.Exit(1)
	}

	worker, err := jobs.NewWorker(jobs.WorkerConfig{
		RedisOpts:   cfg.AsynqRedisOpt(),
		Concurrency: cfg.WorkerConcurrency,
		Logger:      logger,
		Handlers:    sweeps.Handlers(),
		Cron:        cron,
	})
	if err != nil {
		logger.Error("init worker", slog.Any("error", err))
		os.Exit(1)
	}

	logger.Info("worker started", slog.Int("concurrency", cfg.WorkerConcurrency))
	if err := worker.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("worker stopped", slog.Any("error", err))
		os.Exit(1)
	}
	logger.Info("worker stopped")
}

// cronRegistrations schedules the daily sweeps. An empty spec disables the
// corresponding schedule.
func cronRegistrations(cfg *app.Config) ([]jobs.CronRegistration, error) {
	entries := []struct {
		spec    string
		task    string
		payload any
	}{
		{cfg.OverdueSweepCron, jobs.TaskSalesMarkOverdue, jobs.SweepPayload{}},
		{cfg.QuotationExpiryCron, jobs.TaskQuotationsExpire, jobs.SweepPayload{}},
		{cfg.CreditRefreshCron, jobs.TaskCreditRefresh, nil},
		{cfg.IdempotencyPurgeCron, jobs.TaskIdempotencyPurge, jobs.PurgePayload{RetentionHours: int(cfg.IdempotencyRetention.Hours())}},
	}
	var out []jobs.CronRegistration
	for _, e := range entries {
		if e.spec == "" {
			continue
		}
		task, err := jobs.NewTask(e.task, e.payload)
		if err != nil {
			return nil, err
		}
		out = append(out, jobs.CronRegistration{Spec: e.spec, Task: task, Options: []asynq.Option{asynq.MaxRetry(3)}})
	}
	return out, nil
}
