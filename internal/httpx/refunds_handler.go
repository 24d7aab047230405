package httpx

import (
	"net/http"

	"github.com/ariefcatur/go-marketplace-core/internal/redisx"
	"github.com/ariefcatur/go-marketplace-core/internal/refund"
	"github.com/go-chi/chi/v5"
)

// RefundsHandler exposes the operator actions that settle a pending refund.
type RefundsHandler struct {
	Refunds RefundService
	Cache   redisx.Cache
}

type FailRefundReq struct {
	Reason string `json:"reason" validate:"required"`
}

func (h *RefundsHandler) Register(r chi.Router) {
	r.Post("/refunds/{id}/processed", h.processed)
	r.Post("/refunds/{id}/failed", h.failed)
}

func (h *RefundsHandler) processed(w http.ResponseWriter, r *http.Request) {
	rec, err := h.Refunds.MarkProcessed(r.Context(), chi.URLParam(r, "id"))
	h.respond(w, r, rec, err)
}

func (h *RefundsHandler) failed(w http.ResponseWriter, r *http.Request) {
	var req FailRefundReq
	if err := decode(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	rec, err := h.Refunds.MarkFailed(r.Context(), chi.URLParam(r, "id"), req.Reason)
	h.respond(w, r, rec, err)
}

func (h *RefundsHandler) respond(w http.ResponseWriter, r *http.Request, rec *refund.Record, err error) {
	if err != nil {
		writeError(w, r, err)
		return
	}
	invalidateOrder(r.Context(), h.Cache, rec.OrderID)
	writeJSON(w, http.StatusOK, rec)
}
