package orders

import (
	"context"
	"errors"
	"fmt"

	"github.com/ariefcatur/go-marketplace-core/internal/apperr"
	"github.com/ariefcatur/go-marketplace-core/internal/inventory"
	"github.com/ariefcatur/go-marketplace-core/internal/logger"
	"github.com/ariefcatur/go-marketplace-core/internal/store"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

type Store interface {
	CreateOrder(ctx context.Context, o *Order) error
	GetOrder(ctx context.Context, id string) (*Order, error)
	UpdateOrder(ctx context.Context, id string, u Update) error
}

type Inventory interface {
	Allocate(ctx context.Context, productID string, qty int) (inventory.Allocation, error)
	Revert(ctx context.Context, productID string, qty int, fromStock bool) error
}

// Refunder issues the refund owed for a cancelled card-paid order.
type Refunder interface {
	RefundCancelled(ctx context.Context, o *Order) error
}

// Manager owns the order status machine and triggers inventory reversal and
// refunds on cancellation.
type Manager struct {
	Orders    Store
	Inventory Inventory
	Refunds   Refunder
	Events    Publisher
	Clock     store.Clock
	Log       *zap.Logger
	Service   string
}

func (m *Manager) log(ctx context.Context) *zap.Logger {
	return logger.With(ctx, m.Log)
}

func (m *Manager) publish(ctx context.Context, topic, eventType, orderID string, payload any) {
	if err := PublishEvent(m.Events, m.Service, topic, eventType, orderID, logger.RequestIDFrom(ctx), payload); err != nil {
		m.log(ctx).Error("publish event failed", zap.String("event_type", eventType), zap.Error(err))
	}
}

func validateDraft(d Draft) error {
	switch {
	case d.ProductID == "":
		return apperr.InvalidInput("product_id is required")
	case d.Quantity <= 0:
		return apperr.InvalidInput("quantity must be positive, got %d", d.Quantity)
	case d.TotalPrice.IsNegative():
		return apperr.InvalidInput("total_price must not be negative")
	}
	switch d.PaymentMethod {
	case PaymentCash:
		if d.PaymentType != "" {
			return apperr.InvalidInput("payment_type is only allowed for card payments")
		}
	case PaymentCard:
		if d.PaymentType == "" {
			return apperr.InvalidInput("payment_type is required for card payments")
		}
	default:
		return apperr.InvalidInput("unknown payment_method %q", d.PaymentMethod)
	}
	return nil
}

// Create allocates the ordered quantity and persists a pending order carrying
// the allocation outcome. If the order cannot be stored the allocation is
// reverted.
func (m *Manager) Create(ctx context.Context, d Draft) (*Order, error) {
	if err := validateDraft(d); err != nil {
		return nil, err
	}

	alloc, err := m.Inventory.Allocate(ctx, d.ProductID, d.Quantity)
	if err != nil {
		return nil, err
	}

	now := m.Clock.Now()
	o := &Order{
		ID:            uuid.NewString(),
		ExternalID:    d.ExternalID,
		ProductID:     d.ProductID,
		BuyerID:       d.BuyerID,
		SellerID:      alloc.Product.SellerID,
		Quantity:      d.Quantity,
		FromStock:     alloc.FromStock,
		Status:        StatusPending,
		TotalPrice:    d.TotalPrice,
		PaymentMethod: d.PaymentMethod,
		PaymentType:   d.PaymentType,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if err := m.Orders.CreateOrder(ctx, o); err != nil {
		if rerr := m.Inventory.Revert(ctx, d.ProductID, d.Quantity, alloc.FromStock); rerr != nil {
			m.log(ctx).Error("revert after failed order insert",
				zap.String("product_id", d.ProductID),
				zap.Bool("from_stock", alloc.FromStock),
				zap.Error(rerr),
			)
		}
		return nil, fmt.Errorf("store order: %w", err)
	}

	m.log(ctx).Info("order created",
		zap.String("order_id", o.ID),
		zap.String("product_id", o.ProductID),
		zap.Int("qty", o.Quantity),
		zap.Bool("from_stock", o.FromStock),
	)
	m.publish(ctx, TopicOrderCreated, EventOrderCreated, o.ID, OrderCreatedPayload{
		OrderID:   o.ID,
		ProductID: o.ProductID,
		BuyerID:   o.BuyerID,
		Quantity:  o.Quantity,
		FromStock: o.FromStock,
		Total:     o.TotalPrice.String(),
	})
	return o, nil
}

func (m *Manager) Get(ctx context.Context, id string) (*Order, error) {
	return m.Orders.GetOrder(ctx, id)
}

// Transition moves an order along the status graph. Cancelling reverses the
// inventory allocation and, for card payments, issues a refund.
//
// The status is written conditionally on the status that was read, before
// inventory is touched: of two racing transitions only one wins, so an
// allocation is reverted at most once.
func (m *Manager) Transition(ctx context.Context, orderID string, next Status) error {
	if !next.Valid() {
		return apperr.InvalidInput("unknown status %q", next)
	}
	o, err := m.Orders.GetOrder(ctx, orderID)
	if err != nil {
		return err
	}
	if !CanTransition(o.Status, next) {
		return apperr.InvalidTransition(string(o.Status), string(next))
	}
	log := m.log(ctx).With(zap.String("order_id", o.ID))

	prev := o.Status
	if err := m.Orders.UpdateOrder(ctx, o.ID, Update{ExpectedStatus: &prev, Status: &next}); err != nil {
		return fmt.Errorf("update order status: %w", err)
	}
	o.Status = next

	if next == StatusCancelled {
		err := m.Inventory.Revert(ctx, o.ProductID, o.Quantity, o.FromStock)
		switch {
		case errors.Is(err, apperr.ErrNotFound):
			log.Warn("product gone, skipping inventory reversal", zap.String("product_id", o.ProductID))
		case err != nil:
			m.restoreStatus(ctx, o, prev)
			return fmt.Errorf("revert allocation: %w", err)
		}
	}

	log.Info("order status changed", zap.String("from", string(prev)), zap.String("to", string(next)))
	m.publish(ctx, TopicOrderStatusChanged, EventOrderStatusChanged, o.ID, OrderStatusChangedPayload{
		OrderID: o.ID, From: prev, To: next,
	})

	if next == StatusCancelled && o.PaymentMethod == PaymentCard {
		if err := m.Refunds.RefundCancelled(ctx, o); err != nil {
			return fmt.Errorf("refund order %s: %w", o.ID, err)
		}
	}
	return nil
}

// restoreStatus puts back the status a failed cancellation claimed.
func (m *Manager) restoreStatus(ctx context.Context, o *Order, prev Status) {
	claimed := o.Status
	if err := m.Orders.UpdateOrder(ctx, o.ID, Update{ExpectedStatus: &claimed, Status: &prev}); err != nil {
		apperr.WarnConsistency(m.log(ctx), "order left cancelled with its allocation still applied",
			zap.String("order_id", o.ID),
			zap.String("product_id", o.ProductID),
			zap.Error(err),
		)
		return
	}
	o.Status = prev
}
