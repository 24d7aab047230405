package httpx

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/ariefcatur/go-marketplace-core/internal/logger"
	"github.com/ariefcatur/go-marketplace-core/internal/orders"
	"github.com/ariefcatur/go-marketplace-core/internal/redisx"
	"github.com/ariefcatur/go-marketplace-core/internal/refund"
	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

type OrderService interface {
	Create(ctx context.Context, d orders.Draft) (*orders.Order, error)
	Get(ctx context.Context, id string) (*orders.Order, error)
	Transition(ctx context.Context, orderID string, next orders.Status) error
}

type RefundService interface {
	Compute(ctx context.Context, o *orders.Order) (*refund.Record, error)
	MarkProcessed(ctx context.Context, refundID string) (*refund.Record, error)
	MarkFailed(ctx context.Context, refundID, reason string) (*refund.Record, error)
}

// OrdersHandler serves the order lifecycle. Cache is optional: without it
// create-order idempotency and the read cache are skipped.
type OrdersHandler struct {
	Orders  OrderService
	Refunds RefundService
	Cache   redisx.Cache
}

type CreateOrderResp struct {
	Order      *orders.Order `json:"order"`
	Idempotent bool          `json:"idempotent"`
}

type TransitionReq struct {
	Status orders.Status `json:"status" validate:"required"`
}

func (h *OrdersHandler) Register(r chi.Router) {
	r.Post("/orders", h.createOrder)
	r.Get("/orders/{id}", h.getOrder)
	r.Post("/orders/{id}/status", h.transition)
	r.Post("/orders/{id}/refund", h.computeRefund)
}

func (h *OrdersHandler) createOrder(w http.ResponseWriter, r *http.Request) {
	var d orders.Draft
	if err := decode(r, &d); err != nil {
		writeError(w, r, err)
		return
	}
	ctx := r.Context()

	idemKey := ""
	if h.Cache != nil && d.ExternalID != "" {
		idemKey = redisx.IdemOrderCreate(d.ExternalID)
		if cached, ok := h.cachedOrder(ctx, idemKey); ok {
			writeJSON(w, http.StatusOK, CreateOrderResp{Order: cached, Idempotent: true})
			return
		}
	}

	o, err := h.Orders.Create(ctx, d)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if idemKey != "" {
		h.cacheOrder(ctx, idemKey, o, redisx.TTLIdempotency)
	}
	h.cacheOrder(ctx, redisx.OrderStatus(o.ID), o, redisx.TTLStatusCache)
	writeJSON(w, http.StatusCreated, CreateOrderResp{Order: o})
}

func (h *OrdersHandler) getOrder(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	ctx := r.Context()

	key := redisx.OrderStatus(id)
	if o, ok := h.cachedOrder(ctx, key); ok {
		writeJSON(w, http.StatusOK, o)
		return
	}
	o, err := h.Orders.Get(ctx, id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	h.cacheOrder(ctx, key, o, redisx.TTLStatusCache)
	writeJSON(w, http.StatusOK, o)
}

func (h *OrdersHandler) transition(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	var req TransitionReq
	if err := decode(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	ctx := r.Context()

	err := h.Orders.Transition(ctx, id, req.Status)
	h.invalidate(ctx, id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	o, err := h.Orders.Get(ctx, id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, o)
}

func (h *OrdersHandler) computeRefund(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	ctx := r.Context()

	o, err := h.Orders.Get(ctx, id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	rec, err := h.Refunds.Compute(ctx, o)
	if err != nil {
		writeError(w, r, err)
		return
	}
	h.invalidate(ctx, id)
	writeJSON(w, http.StatusCreated, rec)
}

func (h *OrdersHandler) cachedOrder(ctx context.Context, key string) (*orders.Order, bool) {
	if h.Cache == nil {
		return nil, false
	}
	s, ok, err := h.Cache.Get(ctx, key)
	if err != nil {
		logger.FromCtx(ctx).Warn("cache read failed", zap.String("key", key), zap.Error(err))
		return nil, false
	}
	if !ok {
		return nil, false
	}
	var o orders.Order
	if err := json.Unmarshal([]byte(s), &o); err != nil {
		return nil, false
	}
	return &o, true
}

func (h *OrdersHandler) cacheOrder(ctx context.Context, key string, o *orders.Order, ttl time.Duration) {
	if h.Cache == nil {
		return
	}
	b, err := json.Marshal(o)
	if err != nil {
		return
	}
	if err := h.Cache.Set(ctx, key, string(b), ttl); err != nil {
		logger.FromCtx(ctx).Warn("cache write failed", zap.String("key", key), zap.Error(err))
	}
}

// invalidate drops the cached read of an order after any write to it; a
// failed write may still have changed refund fields.
func (h *OrdersHandler) invalidate(ctx context.Context, orderID string) {
	invalidateOrder(ctx, h.Cache, orderID)
}

func invalidateOrder(ctx context.Context, cache redisx.Cache, orderID string) {
	if cache == nil {
		return
	}
	if err := cache.Del(ctx, redisx.OrderStatus(orderID)); err != nil {
		logger.FromCtx(ctx).Warn("cache invalidation failed", zap.String("order_id", orderID), zap.Error(err))
	}
}
