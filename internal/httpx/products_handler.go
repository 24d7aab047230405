package httpx

import (
	"context"
	"net/http"

	"github.com/ariefcatur/go-marketplace-core/internal/apperr"
	"github.com/ariefcatur/go-marketplace-core/internal/catalog"
	"github.com/ariefcatur/go-marketplace-core/internal/store"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
)

type ProductStore interface {
	CreateProduct(ctx context.Context, p catalog.Product) error
	GetProduct(ctx context.Context, id string) (*catalog.Product, error)
	ListProducts(ctx context.Context, f catalog.Filter) ([]catalog.Product, error)
}

type ProductsHandler struct {
	Products ProductStore
	Clock    store.Clock
}

func (h *ProductsHandler) Register(r chi.Router) {
	r.Post("/products", h.create)
	r.Get("/products", h.list)
	r.Get("/products/{id}", h.get)
}

func (h *ProductsHandler) create(w http.ResponseWriter, r *http.Request) {
	var req catalog.NewProduct
	if err := decode(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	if req.Price.IsNegative() {
		writeError(w, r, apperr.InvalidInput("price must not be negative"))
		return
	}
	p := req.Build(uuid.NewString(), h.Clock.Now())
	if err := h.Products.CreateProduct(r.Context(), p); err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, p)
}

func (h *ProductsHandler) list(w http.ResponseWriter, r *http.Request) {
	f, err := productFilter(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	ps, err := h.Products.ListProducts(r.Context(), f)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if ps == nil {
		ps = []catalog.Product{}
	}
	writeJSON(w, http.StatusOK, ps)
}

func (h *ProductsHandler) get(w http.ResponseWriter, r *http.Request) {
	p, err := h.Products.GetProduct(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func productFilter(r *http.Request) (catalog.Filter, error) {
	q := r.URL.Query()
	f := catalog.Filter{
		SellerID:      q.Get("seller_id"),
		AvailableOnly: q.Get("available") == "true",
	}
	if k := q.Get("kind"); k != "" {
		kind, err := catalog.ParseKind(k)
		if err != nil {
			return f, err
		}
		f.Kind = kind
	}
	return f, nil
}
