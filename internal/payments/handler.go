package payments

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/odyssey-erp/backoffice/internal/platform/httpx"
	"github.com/odyssey-erp/backoffice/internal/shared"
)

// Handler exposes the ledger over HTTP.
type Handler struct {
	logger *slog.Logger
	ledger *Ledger
}

func NewHandler(logger *slog.Logger, ledger *Ledger) *Handler {
	return &Handler{logger: logger, ledger: ledger}
}

type failRequest struct {
	Reason string `json:"reason"`
}

func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/payments", h.List)
	r.Post("/payments", h.Create)
	r.Get("/payments/{id}", h.Show)
	r.Delete("/payments/{id}", h.Delete)
	r.Post("/payments/{id}/allocations", h.Allocate)
	r.Put("/payments/{id}/allocations", h.Reallocate)
	r.Post("/payments/{id}/complete", h.Complete)
	r.Post("/payments/{id}/fail", h.Fail)
	r.Get("/orders/{type}/{id}/allocations", h.OrderAllocations)
	r.Post("/orders/{type}/{id}/recompute", h.Recompute)
}

func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	page := httpx.PageParams(r)
	q := r.URL.Query()
	partyID, err := httpx.Int64Query(r, "party_id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	req := ListPaymentsRequest{
		PartyType: PartyType(q.Get("party_type")),
		PartyID:   partyID,
		Status:    Status(q.Get("status")),
		Method:    q.Get("method"),
		Search:    q.Get("search"),
		Limit:     page.Limit(),
		Offset:    page.Offset(),
	}
	if req.DateFrom, err = dateQuery(r, "date_from"); err != nil {
		httpx.RespondError(w, err)
		return
	}
	if req.DateTo, err = dateQuery(r, "date_to"); err != nil {
		httpx.RespondError(w, err)
		return
	}
	items, total, err := h.ledger.ListPayments(r.Context(), req)
	if err != nil {
		h.logger.Error("list payments", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, httpx.NewPage(items, page, total))
}

func (h *Handler) Show(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.IDParam(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	p, err := h.ledger.GetPayment(r.Context(), id)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, p)
}

// Create records a payment. An Idempotency-Key header is used when the body
// carries none.
func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	var req CreatePaymentRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	if req.IdempotencyKey == "" {
		req.IdempotencyKey = r.Header.Get("Idempotency-Key")
	}
	p, err := h.ledger.CreatePayment(r.Context(), req)
	if err != nil {
		h.fail(w, "create payment", 0, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, p)
}

func (h *Handler) Allocate(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.IDParam(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	var req AllocationRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	p, err := h.ledger.AllocateExistingPayment(r.Context(), id, req)
	if err != nil {
		h.fail(w, "allocate payment", id, err)
		return
	}
	httpx.JSON(w, http.StatusOK, p)
}

func (h *Handler) Reallocate(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.IDParam(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	var req ReallocateRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	p, err := h.ledger.ReallocatePayment(r.Context(), id, req.Allocations)
	if err != nil {
		h.fail(w, "reallocate payment", id, err)
		return
	}
	httpx.JSON(w, http.StatusOK, p)
}

func (h *Handler) Complete(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.IDParam(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	p, err := h.ledger.CompletePayment(r.Context(), id)
	if err != nil {
		h.fail(w, "complete payment", id, err)
		return
	}
	httpx.JSON(w, http.StatusOK, p)
}

func (h *Handler) Fail(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.IDParam(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	var req failRequest
	if r.ContentLength != 0 {
		if err := httpx.DecodeJSON(r, &req); err != nil {
			httpx.RespondError(w, err)
			return
		}
	}
	p, err := h.ledger.FailPayment(r.Context(), id, req.Reason)
	if err != nil {
		h.fail(w, "fail payment", id, err)
		return
	}
	httpx.JSON(w, http.StatusOK, p)
}

func (h *Handler) Delete(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.IDParam(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	if err := h.ledger.DeletePayment(r.Context(), id); err != nil {
		h.fail(w, "delete payment", id, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) OrderAllocations(w http.ResponseWriter, r *http.Request) {
	ref, err := orderParam(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	allocs, err := h.ledger.ListOrderAllocations(r.Context(), ref)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	if allocs == nil {
		allocs = []Allocation{}
	}
	httpx.JSON(w, http.StatusOK, allocs)
}

func (h *Handler) Recompute(w http.ResponseWriter, r *http.Request) {
	ref, err := orderParam(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	balance, err := h.ledger.RecomputeOrderBalance(r.Context(), ref)
	if err != nil {
		h.fail(w, "recompute order", ref.ID, err)
		return
	}
	httpx.JSON(w, http.StatusOK, balance)
}

func (h *Handler) fail(w http.ResponseWriter, op string, id int64, err error) {
	h.logger.Warn(op, slog.Int64("id", id), slog.Any("error", err))
	httpx.RespondError(w, err)
}

func orderParam(r *http.Request) (OrderRef, error) {
	t := OrderType(chi.URLParam(r, "type"))
	if t != OrderSale && t != OrderPurchase {
		return OrderRef{}, shared.Invalid("unknown order type %q", t)
	}
	id, err := httpx.IDParam(r, "id")
	if err != nil {
		return OrderRef{}, err
	}
	return OrderRef{Type: t, ID: id}, nil
}

func dateQuery(r *http.Request, name string) (*time.Time, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return nil, nil
	}
	t, err := time.Parse("2006-01-02", raw)
	if err != nil {
		return nil, shared.Invalid("invalid %s %q", name, raw)
	}
	return &t, nil
}
