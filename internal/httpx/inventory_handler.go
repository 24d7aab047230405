package httpx

import (
	"context"
	"net/http"

	"github.com/ariefcatur/go-marketplace-core/internal/inventory"
	"github.com/go-chi/chi/v5"
)

type InventoryService interface {
	Allocate(ctx context.Context, productID string, qty int) (inventory.Allocation, error)
	Revert(ctx context.Context, productID string, qty int, fromStock bool) error
}

// InventoryHandler exposes raw allocation for integrations that manage their
// own orders.
type InventoryHandler struct {
	Inventory InventoryService
}

type AllocateReq struct {
	ProductID string `json:"product_id" validate:"required"`
	Quantity  int    `json:"quantity" validate:"gt=0"`
}

type RevertReq struct {
	ProductID string `json:"product_id" validate:"required"`
	Quantity  int    `json:"quantity" validate:"gt=0"`
	FromStock bool   `json:"from_stock"`
}

func (h *InventoryHandler) Register(r chi.Router) {
	r.Post("/inventory/allocate", h.allocate)
	r.Post("/inventory/revert", h.revert)
}

func (h *InventoryHandler) allocate(w http.ResponseWriter, r *http.Request) {
	var req AllocateReq
	if err := decode(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	alloc, err := h.Inventory.Allocate(r.Context(), req.ProductID, req.Quantity)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, alloc)
}

func (h *InventoryHandler) revert(w http.ResponseWriter, r *http.Request) {
	var req RevertReq
	if err := decode(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	if err := h.Inventory.Revert(r.Context(), req.ProductID, req.Quantity, req.FromStock); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
