package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/hibiken/asynq"
	"golang.org/x/sync/errgroup"

	"github.com/odyssey-erp/backoffice/internal/app"
	"github.com/odyssey-erp/backoffice/internal/credit"
	"github.com/odyssey-erp/backoffice/internal/masterdata/products"
	"github.com/odyssey-erp/backoffice/internal/masterdata/suppliers"
	"github.com/odyssey-erp/backoffice/internal/payments"
	"github.com/odyssey-erp/backoffice/internal/procurement"
	"github.com/odyssey-erp/backoffice/internal/sales/conversion"
	"github.com/odyssey-erp/backoffice/internal/sales/customers"
	"github.com/odyssey-erp/backoffice/internal/sales/orders"
	"github.com/odyssey-erp/backoffice/internal/sales/quotations"
	"github.com/odyssey-erp/backoffice/jobs"
)

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping runtime startup")
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := app.LoadConfig()
	if err != nil {
		slog.Default().Error("load config", slog.Any("error", err))
		os.Exit(1)
	}
	logger := app.NewLogger(cfg)

	rt, err := app.Open(ctx, cfg, logger)
	if err != nil {
		logger.Error("open runtime", slog.Any("error", err))
		os.Exit(1)
	}
	defer rt.Close()

	svc := rt.BuildServices()

	jobClient := jobs.NewClient(cfg.AsynqRedisOpt())
	defer func() {
		if err := jobClient.Close(); err != nil {
			logger.Warn("job client close", slog.Any("error", err))
		}
	}()
	inspector := asynq.NewInspector(cfg.AsynqRedisOpt())
	defer func() {
		if err := inspector.Close(); err != nil {
			logger.Warn("inspector close", slog.Any("error", err))
		}
	}()

	router := app.NewRouter(app.RouterParams{
		Logger:             logger,
		Config:             cfg,
		Metrics:            rt.Metrics,
		DB:                 rt.Pool,
		CustomerHandler:    customers.NewHandler(logger, svc.Customers),
		CreditHandler:      credit.NewHandler(logger, svc.Credit),
		ProductHandler:     products.NewHandler(logger, svc.Products),
		SupplierHandler:    suppliers.NewHandler(logger, svc.Suppliers),
		SalesHandler:       orders.NewHandler(logger, svc.Sales),
		QuotationHandler:   quotations.NewHandler(logger, svc.Quotations),
		ConversionHandler:  conversion.NewHandler(logger, svc.Conversion),
		ProcurementHandler: procurement.NewHandler(logger, svc.Procurement),
		PaymentHandler:     payments.NewHandler(logger, svc.Payments),
		JobHandler:         jobs.NewHandler(jobClient, inspector, logger),
	})

	server := &http.Server{
		Addr:         cfg.AppAddr,
		Handler:      router,
		ReadTimeout:  cfg.AppReadTimeout,
		WriteTimeout: cfg.AppWriteTimeout,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("starting http server", slog.String("addr", cfg.AppAddr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.AppShutdownGrace)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})
	if err := g.Wait(); err != nil {
		logger.Error("http server", slog.Any("error", err))
		os.Exit(1)
	}
}
