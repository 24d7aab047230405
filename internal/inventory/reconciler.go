package inventory

import (
	"context"
	"errors"
	"fmt"

	"github.com/ariefcatur/go-marketplace-core/internal/apperr"
	"github.com/ariefcatur/go-marketplace-core/internal/catalog"
	"go.uber.org/zap"
)

const DefaultConflictRetries = 5

type ProductStore interface {
	GetProduct(ctx context.Context, id string) (*catalog.Product, error)
	UpdateProduct(ctx context.Context, id string, u catalog.Update) error
}

// Allocation is the outcome of placing an order quantity against a product.
type Allocation struct {
	FromStock bool `json:"from_stock"`
	// Product is the document as written by the allocation.
	Product catalog.Product `json:"product"`
}

// Reconciler applies and reverses the stock/backlog accounting of a product.
// Each call reads the product and writes it back conditionally on its
// version, re-reading when another writer got there first.
type Reconciler struct {
	Store      ProductStore
	Log        *zap.Logger
	MaxRetries int
}

func NewReconciler(s ProductStore, log *zap.Logger, maxRetries int) *Reconciler {
	if maxRetries <= 0 {
		maxRetries = DefaultConflictRetries
	}
	return &Reconciler{Store: s, Log: log, MaxRetries: maxRetries}
}

// Allocate satisfies qty entirely from on-hand stock or, for baked products
// only, records it entirely as backlog demand.
func (r *Reconciler) Allocate(ctx context.Context, productID string, qty int) (Allocation, error) {
	if qty <= 0 {
		return Allocation{}, apperr.InvalidInput("order quantity must be positive, got %d", qty)
	}
	var out Allocation
	err := r.mutate(ctx, productID, func(p *catalog.Product) (catalog.Update, error) {
		r.checkCounters(p)
		var u catalog.Update
		if p.Quantity >= qty && (p.Available || !p.IsBaked()) {
			u = takeFromStock(p, qty)
			out.FromStock = true
		} else if p.IsBaked() {
			amount := p.Amount + qty
			u.Amount = &amount
			out.FromStock = false
		} else {
			return u, apperr.InsufficientStock(p.ID, qty, p.Quantity)
		}
		u.Apply(p)
		p.Version++
		out.Product = *p
		return u, nil
	})
	if err != nil {
		return Allocation{}, err
	}
	r.Log.Debug("order quantity allocated",
		zap.String("product_id", productID),
		zap.Int("qty", qty),
		zap.Bool("from_stock", out.FromStock),
	)
	return out, nil
}

// Revert undoes an allocation using the fromStock flag recorded when it was
// made. Backlog reversal only lowers amount; it never creates stock.
func (r *Reconciler) Revert(ctx context.Context, productID string, qty int, fromStock bool) error {
	if qty <= 0 {
		return apperr.InvalidInput("order quantity must be positive, got %d", qty)
	}
	err := r.mutate(ctx, productID, func(p *catalog.Product) (catalog.Update, error) {
		r.checkCounters(p)
		var u catalog.Update
		if fromStock {
			sold := p.InStockQuantity - qty
			if sold < 0 {
				apperr.WarnConsistency(r.Log, "in_stock_quantity below reverted quantity, clamping to zero",
					zap.String("product_id", p.ID),
					zap.Int("in_stock_quantity", p.InStockQuantity),
					zap.Int("qty", qty),
				)
				sold = 0
			}
			quantity := p.Quantity + qty
			available := quantity > 0
			u.InStockQuantity = &sold
			u.Quantity = &quantity
			u.Available = &available
			return u, nil
		}
		amount := p.Amount - qty
		if amount < 0 {
			apperr.WarnConsistency(r.Log, "backlog amount below reverted quantity, clamping to zero",
				zap.String("product_id", p.ID),
				zap.Int("amount", p.Amount),
				zap.Int("qty", qty),
			)
			amount = 0
		}
		u.Amount = &amount
		return u, nil
	})
	if err != nil {
		return err
	}
	r.Log.Debug("order quantity reverted",
		zap.String("product_id", productID),
		zap.Int("qty", qty),
		zap.Bool("from_stock", fromStock),
	)
	return nil
}

func takeFromStock(p *catalog.Product, qty int) catalog.Update {
	quantity := p.Quantity - qty
	sold := p.InStockQuantity + qty
	available := quantity > 0
	return catalog.Update{Quantity: &quantity, InStockQuantity: &sold, Available: &available}
}

// mutate runs one read-modify-write of a product. fn sees a fresh copy on
// every attempt; an error from fn aborts without writing.
func (r *Reconciler) mutate(ctx context.Context, productID string, fn func(p *catalog.Product) (catalog.Update, error)) error {
	for attempt := 1; ; attempt++ {
		p, err := r.Store.GetProduct(ctx, productID)
		if err != nil {
			return err
		}
		version := p.Version
		u, err := fn(p)
		if err != nil {
			return err
		}
		u.ExpectedVersion = &version
		err = r.Store.UpdateProduct(ctx, productID, u)
		if err == nil {
			return nil
		}
		if !errors.Is(err, apperr.ErrConcurrencyConflict) || attempt >= r.MaxRetries {
			return fmt.Errorf("update product %s: %w", productID, err)
		}
		r.Log.Debug("product changed underneath, retrying",
			zap.String("product_id", productID),
			zap.Int("attempt", attempt),
		)
	}
}

func (r *Reconciler) checkCounters(p *catalog.Product) {
	if p.Quantity < 0 || p.InStockQuantity < 0 || p.Amount < 0 {
		apperr.WarnConsistency(r.Log, "negative inventory counter",
			zap.String("product_id", p.ID),
			zap.Int("quantity", p.Quantity),
			zap.Int("in_stock_quantity", p.InStockQuantity),
			zap.Int("amount", p.Amount),
		)
	}
	if !p.IsBaked() && p.Amount != 0 {
		apperr.WarnConsistency(r.Log, "ready product carries backlog amount",
			zap.String("product_id", p.ID),
			zap.Int("amount", p.Amount),
		)
	}
	if p.Available != (p.Quantity > 0) {
		apperr.WarnConsistency(r.Log, "available flag disagrees with on-hand quantity",
			zap.String("product_id", p.ID),
			zap.Int("quantity", p.Quantity),
			zap.Bool("available", p.Available),
		)
	}
}
