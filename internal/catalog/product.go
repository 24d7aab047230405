package catalog

import (
	"time"

	"github.com/ariefcatur/go-marketplace-core/internal/apperr"
	"github.com/shopspring/decimal"
)

// Kind is the fulfilment model of a product. It is set when the product is
// created and stored with the document; nothing re-infers it from fields.
type Kind string

const (
	// KindReady products are sold only from on-hand stock.
	KindReady Kind = "ready"
	// KindBaked products accept backlog demand when on-hand stock runs out.
	KindBaked Kind = "baked"
)

func (k Kind) Valid() bool { return k == KindReady || k == KindBaked }

func ParseKind(s string) (Kind, error) {
	k := Kind(s)
	if !k.Valid() {
		return "", apperr.InvalidInput("unknown product kind %q", s)
	}
	return k, nil
}

type Product struct {
	ID       string          `json:"id"`
	SellerID string          `json:"seller_id"`
	Name     string          `json:"name"`
	Kind     Kind            `json:"kind"`
	Price    decimal.Decimal `json:"price"`

	// Quantity is the number of units on hand.
	Quantity int `json:"quantity"`
	// InStockQuantity counts units sold out of stock. It is a sales counter,
	// not a remaining-stock figure.
	InStockQuantity int  `json:"in_stock_quantity"`
	Available       bool `json:"available"`
	// Amount is backlog demand for baked products. It never turns into Quantity.
	Amount int `json:"amount"`

	Version   int64     `json:"version"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (p *Product) IsBaked() bool { return p.Kind == KindBaked }

// Update is a field-level delta. Nil fields are left untouched. When
// ExpectedVersion is set the store applies the delta only if the stored
// version still matches, and bumps the version on success.
type Update struct {
	Quantity        *int
	InStockQuantity *int
	Available       *bool
	Amount          *int
	ExpectedVersion *int64
}

func (u Update) Empty() bool {
	return u.Quantity == nil && u.InStockQuantity == nil && u.Available == nil && u.Amount == nil
}

// Apply writes the delta onto p. Stores use it so every backend applies the
// same field semantics.
func (u Update) Apply(p *Product) {
	if u.Quantity != nil {
		p.Quantity = *u.Quantity
	}
	if u.InStockQuantity != nil {
		p.InStockQuantity = *u.InStockQuantity
	}
	if u.Available != nil {
		p.Available = *u.Available
	}
	if u.Amount != nil {
		p.Amount = *u.Amount
	}
}

type NewProduct struct {
	SellerID string          `json:"seller_id" validate:"required"`
	Name     string          `json:"name" validate:"required"`
	Kind     Kind            `json:"kind" validate:"required,oneof=ready baked"`
	Price    decimal.Decimal `json:"price"`
	Quantity int             `json:"quantity" validate:"gte=0"`
}

// Build turns a seller draft into the initial product document.
func (n NewProduct) Build(id string, now time.Time) Product {
	return Product{
		ID:        id,
		SellerID:  n.SellerID,
		Name:      n.Name,
		Kind:      n.Kind,
		Price:     n.Price,
		Quantity:  n.Quantity,
		Available: n.Quantity > 0,
		Version:   1,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// Filter selects products for watches and listings. Zero fields match all.
type Filter struct {
	SellerID      string `json:"seller_id,omitempty"`
	Kind          Kind   `json:"kind,omitempty"`
	AvailableOnly bool   `json:"available_only,omitempty"`
}

func (f Filter) Match(p Product) bool {
	if f.SellerID != "" && p.SellerID != f.SellerID {
		return false
	}
	if f.Kind != "" && p.Kind != f.Kind {
		return false
	}
	if f.AvailableOnly && !p.Available {
		return false
	}
	return true
}
