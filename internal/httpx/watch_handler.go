package httpx

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/ariefcatur/go-marketplace-core/internal/apperr"
	"github.com/ariefcatur/go-marketplace-core/internal/catalog"
	"github.com/ariefcatur/go-marketplace-core/internal/logger"
	"github.com/ariefcatur/go-marketplace-core/internal/orders"
	"github.com/ariefcatur/go-marketplace-core/internal/realtime"
	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

// WatchHandler streams live views as Server-Sent Events. Each event carries
// the full current window; clients replace, not merge.
type WatchHandler struct {
	Supervisor *realtime.Supervisor
}

func (h *WatchHandler) Register(r chi.Router) {
	r.Get("/watch/products", h.products)
	r.Get("/watch/orders", h.orders)
	r.Get("/watch/orders/stats", h.orderStats)
}

func (h *WatchHandler) products(w http.ResponseWriter, r *http.Request) {
	f, err := productFilter(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	stream(w, r, func(emit func([]catalog.Product)) *realtime.Watch {
		return h.Supervisor.WatchProducts(f, emit)
	})
}

func (h *WatchHandler) orders(w http.ResponseWriter, r *http.Request) {
	f, err := orderFilter(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	stream(w, r, func(emit func([]orders.Order)) *realtime.Watch {
		return h.Supervisor.WatchOrders(f, emit)
	})
}

func (h *WatchHandler) orderStats(w http.ResponseWriter, r *http.Request) {
	f, err := orderFilter(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	stream(w, r, func(emit func(realtime.OrderStats)) *realtime.Watch {
		return h.Supervisor.WatchOrderStats(f, emit)
	})
}

func orderFilter(r *http.Request) (orders.Filter, error) {
	q := r.URL.Query()
	f := orders.Filter{
		SellerID:  q.Get("seller_id"),
		BuyerID:   q.Get("buyer_id"),
		ProductID: q.Get("product_id"),
		Status:    orders.Status(q.Get("status")),
	}
	if f.Status != "" && !f.Status.Valid() {
		return f, apperr.InvalidInput("unknown status %q", f.Status)
	}
	return f, nil
}

// stream runs one watch for the lifetime of the request. Only the latest
// value is kept for a slow client.
func stream[T any](w http.ResponseWriter, r *http.Request, start func(emit func(T)) *realtime.Watch) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, r, fmt.Errorf("streaming unsupported by response writer"))
		return
	}
	log := logger.FromCtx(r.Context())

	latest := make(chan T, 1)
	emit := func(v T) {
		for {
			select {
			case latest <- v:
				return
			default:
			}
			select {
			case <-latest:
			default:
			}
		}
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	watch := start(emit)
	defer watch.Stop()

	send := func(event string, v any) bool {
		b, err := json.Marshal(v)
		if err != nil {
			log.Error("encode watch event", zap.Error(err))
			return false
		}
		if _, err := fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event, b); err != nil {
			return false
		}
		flusher.Flush()
		return true
	}

	for {
		select {
		case <-r.Context().Done():
			return
		case v := <-latest:
			if !send("snapshot", v) {
				return
			}
		case <-watch.Done():
			select {
			case v := <-latest:
				send("snapshot", v)
			default:
			}
			send("end", map[string]string{"state": watch.State().String()})
			return
		}
	}
}
