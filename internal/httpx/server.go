package httpx

import (
	"net/http"
	"time"

	"github.com/ariefcatur/go-marketplace-core/internal/logger"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"
)

type RouterOptions struct {
	RequestTimeout time.Duration
	// RateLimit is requests per second per client IP; 0 disables it.
	RateLimit float64
	RateBurst int
}

type Registrar interface {
	Register(r chi.Router)
}

// NewRouter builds the API router. Streaming handlers are mounted outside
// the request timeout.
func NewRouter(log *zap.Logger, opts RouterOptions, api []Registrar, streams ...Registrar) *chi.Mux {
	r := chi.NewRouter()
	r.Use(middleware.RequestID, middleware.RealIP, logger.Middleware(log), middleware.Recoverer)
	if opts.RateLimit > 0 {
		r.Use(NewRateLimiter(opts.RateLimit, opts.RateBurst).Middleware)
	}
	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	r.Group(func(r chi.Router) {
		if opts.RequestTimeout > 0 {
			r.Use(middleware.Timeout(opts.RequestTimeout))
		}
		for _, h := range api {
			h.Register(r)
		}
	})
	r.Group(func(r chi.Router) {
		for _, h := range streams {
			h.Register(r)
		}
	})
	return r
}
