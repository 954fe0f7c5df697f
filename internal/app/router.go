package app

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/odyssey-erp/backoffice/internal/credit"
	"github.com/odyssey-erp/backoffice/internal/masterdata/products"
	"github.com/odyssey-erp/backoffice/internal/masterdata/suppliers"
	"github.com/odyssey-erp/backoffice/internal/observability"
	"github.com/odyssey-erp/backoffice/internal/payments"
	"github.com/odyssey-erp/backoffice/internal/platform/httpx"
	"github.com/odyssey-erp/backoffice/internal/procurement"
	"github.com/odyssey-erp/backoffice/internal/sales/conversion"
	"github.com/odyssey-erp/backoffice/internal/sales/customers"
	"github.com/odyssey-erp/backoffice/internal/sales/orders"
	"github.com/odyssey-erp/backoffice/internal/sales/quotations"
	"github.com/odyssey-erp/backoffice/jobs"
)

// Pinger reports backing store health for /healthz.
type Pinger interface {
	Ping(ctx context.Context) error
}

// RouterParams groups dependencies for building the HTTP router. Nil handlers
// are skipped.
type RouterParams struct {
	Logger  *slog.Logger
	Config  *Config
	Metrics *observability.Metrics
	DB      Pinger

	CustomerHandler    *customers.Handler
	CreditHandler      *credit.Handler
	ProductHandler     *products.Handler
	SupplierHandler    *suppliers.Handler
	SalesHandler       *orders.Handler
	QuotationHandler   *quotations.Handler
	ConversionHandler  *conversion.Handler
	ProcurementHandler *procurement.Handler
	PaymentHandler     *payments.Handler
	JobHandler         *jobs.Handler
}

type healthResponse struct {
	Status   string `json:"status"`
	Database string `json:"database,omitempty"`
}

// NewRouter constructs the chi.Router with API defaults.
func NewRouter(params RouterParams) http.Handler {
	r := chi.NewRouter()

	for _, mw := range MiddlewareStack(MiddlewareConfig{
		Logger:  params.Logger,
		Config:  params.Config,
		Metrics: params.Metrics,
	}) {
		r.Use(mw)
	}

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		if params.DB == nil {
			httpx.JSON(w, http.StatusOK, healthResponse{Status: "ok"})
			return
		}
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := params.DB.Ping(ctx); err != nil {
			params.Logger.Warn("health check failed", slog.Any("error", err))
			httpx.JSON(w, http.StatusServiceUnavailable, healthResponse{Status: "degraded", Database: "unreachable"})
			return
		}
		httpx.JSON(w, http.StatusOK, healthResponse{Status: "ok", Database: "ok"})
	})
	if params.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", params.Metrics.Handler())
	}

	r.Route("/api/v1", func(r chi.Router) {
		// customers and credit share /customers/{id}; both register flat routes.
		if params.CustomerHandler != nil {
			params.CustomerHandler.MountRoutes(r)
		}
		if params.CreditHandler != nil {
			params.CreditHandler.MountRoutes(r)
		}
		if params.ProductHandler != nil {
			params.ProductHandler.MountRoutes(r)
		}
		if params.SupplierHandler != nil {
			params.SupplierHandler.MountRoutes(r)
		}
		if params.SalesHandler != nil {
			params.SalesHandler.MountRoutes(r)
		}
		if params.QuotationHandler != nil {
			params.QuotationHandler.MountRoutes(r)
		}
		if params.ConversionHandler != nil {
			params.ConversionHandler.MountRoutes(r)
		}
		if params.ProcurementHandler != nil {
			params.ProcurementHandler.MountRoutes(r)
		}
		if params.PaymentHandler != nil {
			params.PaymentHandler.MountRoutes(r)
		}
		if params.JobHandler != nil {
			params.JobHandler.MountRoutes(r)
		}
	})

	return r
}
