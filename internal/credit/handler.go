package credit

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/backoffice/internal/platform/httpx"
	"github.com/odyssey-erp/backoffice/internal/sales/customers"
)

// Handler exposes the credit engine under /customers/{id}.
type Handler struct {
	logger *slog.Logger
	engine *Engine
}

func NewHandler(logger *slog.Logger, engine *Engine) *Handler {
	return &Handler{logger: logger, engine: engine}
}

type limitRequest struct {
	CreditLimit decimal.Decimal `json:"credit_limit"`
	Reason      string          `json:"reason"`
}

type reasonRequest struct {
	Reason string `json:"reason"`
}

func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/customers/{id}/credit", h.Summary)
	r.Post("/customers/{id}/credit", h.Move)
	r.Put("/customers/{id}/credit/limit", h.SetLimit)
	r.Post("/customers/{id}/credit/refresh", h.Refresh)
	r.Get("/customers/{id}/credit-history", h.History)
	r.Post("/customers/{id}/block", h.Block)
	r.Post("/customers/{id}/unblock", h.Unblock)
}

func (h *Handler) Summary(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.IDParam(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	summary, err := h.engine.GetSummary(r.Context(), id)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, summary)
}

// Move applies a manual credit movement.
func (h *Handler) Move(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.IDParam(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	var m Movement
	if err := httpx.DecodeJSON(r, &m); err != nil {
		httpx.RespondError(w, err)
		return
	}
	m.CustomerID = id
	if m.ReferenceType == "" {
		m.ReferenceType = "manual"
	}
	c, err := h.engine.UpdateCredit(r.Context(), m)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, c)
}

func (h *Handler) SetLimit(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.IDParam(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	var req limitRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	c, err := h.engine.SetCreditLimit(r.Context(), id, req.CreditLimit, req.Reason)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, c)
}

func (h *Handler) Refresh(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.IDParam(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	c, err := h.engine.Refresh(r.Context(), id)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, c)
}

func (h *Handler) History(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.IDParam(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	page := httpx.PageParams(r)
	entries, total, err := h.engine.History(r.Context(), id, page)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, httpx.NewPage(entries, page, total))
}

func (h *Handler) Block(w http.ResponseWriter, r *http.Request) {
	h.setBlocked(w, r, true)
}

func (h *Handler) Unblock(w http.ResponseWriter, r *http.Request) {
	h.setBlocked(w, r, false)
}

func (h *Handler) setBlocked(w http.ResponseWriter, r *http.Request, block bool) {
	id, err := httpx.IDParam(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	var req reasonRequest
	if r.ContentLength != 0 {
		if err := httpx.DecodeJSON(r, &req); err != nil {
			httpx.RespondError(w, err)
			return
		}
	}
	var c *customers.Customer
	if block {
		c, err = h.engine.BlockCustomer(r.Context(), id, req.Reason)
	} else {
		c, err = h.engine.UnblockCustomer(r.Context(), id, req.Reason)
	}
	if err != nil {
		h.logger.Warn("customer block change failed", slog.Int64("customer_id", id), slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, c)
}
