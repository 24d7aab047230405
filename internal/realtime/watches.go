package realtime

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/ariefcatur/go-marketplace-core/internal/apperr"
	"github.com/ariefcatur/go-marketplace-core/internal/catalog"
	"github.com/ariefcatur/go-marketplace-core/internal/orders"
	"github.com/ariefcatur/go-marketplace-core/internal/store"
	"go.uber.org/zap"
)

// WatchProducts keeps cb fed with the most recently updated products
// matching f. cb may run on any goroutine.
func (s *Supervisor) WatchProducts(f catalog.Filter, cb func([]catalog.Product)) *Watch {
	return start(s, watchDef[catalog.Product]{
		collection: store.CollectionProducts,
		filters:    productFilters(f),
		parse:      parseProduct,
		match:      f.Match,
		emit:       cb,
	})
}

// WatchOrders keeps cb fed with the most recently updated orders matching f.
func (s *Supervisor) WatchOrders(f orders.Filter, cb func([]orders.Order)) *Watch {
	return start(s, watchDef[orders.Order]{
		collection: store.CollectionOrders,
		filters:    orderFilters(f),
		parse:      parseOrder,
		match:      f.Match,
		emit:       cb,
	})
}

// WatchOrderStats recomputes dashboard aggregates once per coalesced batch.
func (s *Supervisor) WatchOrderStats(f orders.Filter, cb func(OrderStats)) *Watch {
	return s.WatchOrders(f, func(list []orders.Order) { cb(ComputeOrderStats(list)) })
}

func productFilters(f catalog.Filter) []store.Filter {
	var fs []store.Filter
	if f.SellerID != "" {
		fs = append(fs, store.Filter{Field: "seller_id", Value: f.SellerID})
	}
	if f.Kind != "" {
		fs = append(fs, store.Filter{Field: "kind", Value: string(f.Kind)})
	}
	if f.AvailableOnly {
		fs = append(fs, store.Filter{Field: "available", Value: true})
	}
	return fs
}

func orderFilters(f orders.Filter) []store.Filter {
	var fs []store.Filter
	if f.SellerID != "" {
		fs = append(fs, store.Filter{Field: "seller_id", Value: f.SellerID})
	}
	if f.BuyerID != "" {
		fs = append(fs, store.Filter{Field: "buyer_id", Value: f.BuyerID})
	}
	if f.ProductID != "" {
		fs = append(fs, store.Filter{Field: "product_id", Value: f.ProductID})
	}
	if f.Status != "" {
		fs = append(fs, store.Filter{Field: "status", Value: string(f.Status)})
	}
	return fs
}

var errPartialDocument = errors.New("partial document")

func parseProduct(log *zap.Logger, doc store.RawDocument) (catalog.Product, error) {
	var p catalog.Product
	if err := json.Unmarshal(doc.Data, &p); err != nil {
		return p, err
	}
	if p.ID == "" {
		p.ID = doc.ID
	}
	if !p.Kind.Valid() {
		return p, fmt.Errorf("%w: product kind %q", errPartialDocument, p.Kind)
	}
	if p.Quantity < 0 || p.InStockQuantity < 0 || p.Amount < 0 {
		apperr.WarnConsistency(log, "negative inventory counter in feed",
			zap.String("product_id", p.ID),
			zap.Int("quantity", p.Quantity),
			zap.Int("in_stock_quantity", p.InStockQuantity),
			zap.Int("amount", p.Amount))
	}
	return p, nil
}

func parseOrder(_ *zap.Logger, doc store.RawDocument) (orders.Order, error) {
	var o orders.Order
	if err := json.Unmarshal(doc.Data, &o); err != nil {
		return o, err
	}
	if o.ID == "" {
		o.ID = doc.ID
	}
	switch {
	case o.ProductID == "":
		return o, fmt.Errorf("%w: order without product_id", errPartialDocument)
	case !o.Status.Valid():
		return o, fmt.Errorf("%w: order status %q", errPartialDocument, o.Status)
	case o.Quantity <= 0:
		return o, fmt.Errorf("%w: order quantity %d", errPartialDocument, o.Quantity)
	}
	return o, nil
}
