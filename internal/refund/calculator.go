package refund

import (
	"context"
	"errors"
	"fmt"

	"github.com/ariefcatur/go-marketplace-core/internal/apperr"
	"github.com/ariefcatur/go-marketplace-core/internal/logger"
	"github.com/ariefcatur/go-marketplace-core/internal/orders"
	"github.com/ariefcatur/go-marketplace-core/internal/store"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// FeeTable holds the service fee kept per card provider. It is data: the
// calculator only looks fees up.
type FeeTable struct {
	Fees    map[orders.PaymentType]decimal.Decimal
	Default decimal.Decimal
}

func DefaultFeeTable() FeeTable {
	return FeeTable{
		Fees: map[orders.PaymentType]decimal.Decimal{
			orders.PaymentTypeClick: decimal.NewFromInt(2000),
			orders.PaymentTypePayme: decimal.NewFromInt(1500),
			orders.PaymentTypeVisa:  decimal.NewFromInt(3000),
		},
		Default: decimal.NewFromInt(2500),
	}
}

func (t FeeTable) Fee(pt orders.PaymentType) decimal.Decimal {
	if fee, ok := t.Fees[pt]; ok {
		return fee
	}
	return t.Default
}

type Quote struct {
	OriginalAmount decimal.Decimal
	ServiceFee     decimal.Decimal
	RefundAmount   decimal.Decimal
}

// Quote computes max(0, total - fee) for the order's card provider.
func (t FeeTable) Quote(o *orders.Order) Quote {
	fee := t.Fee(o.PaymentType)
	amount := o.TotalPrice.Sub(fee)
	if amount.IsNegative() {
		amount = decimal.Zero
	}
	return Quote{OriginalAmount: o.TotalPrice, ServiceFee: fee, RefundAmount: amount}
}

type Store interface {
	CreateRefund(ctx context.Context, r *Record) error
	GetRefund(ctx context.Context, id string) (*Record, error)
	GetRefundByOrder(ctx context.Context, orderID string) (*Record, error)
	UpdateRefundStatus(ctx context.Context, id string, c StatusChange) error
}

type OrderUpdater interface {
	UpdateOrder(ctx context.Context, id string, u orders.Update) error
}

type Calculator struct {
	Fees    FeeTable
	Refunds Store
	Orders  OrderUpdater
	Events  orders.Publisher
	Clock   store.Clock
	Log     *zap.Logger
	Service string
}

// Compute creates the pending refund for a cancelled card-paid order, records
// it on the order and asks the notification side to tell the customer.
// Repeating it after the order write failed picks the stored refund up again.
func (c *Calculator) Compute(ctx context.Context, o *orders.Order) (*Record, error) {
	if o.PaymentMethod != orders.PaymentCard {
		return nil, apperr.InvalidInput("order %s was not paid by card", o.ID)
	}
	if o.Status != orders.StatusCancelled {
		return nil, apperr.InvalidInput("order %s is %s, refunds need a cancelled order", o.ID, o.Status)
	}

	q := c.Fees.Quote(o)
	now := c.Clock.Now()
	rec := &Record{
		ID:             uuid.NewString(),
		OrderID:        o.ID,
		BuyerID:        o.BuyerID,
		OriginalAmount: q.OriginalAmount,
		ServiceFee:     q.ServiceFee,
		RefundAmount:   q.RefundAmount,
		Status:         orders.RefundPending,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if err := c.Refunds.CreateRefund(ctx, rec); err != nil {
		if !errors.Is(err, apperr.ErrAlreadyExists) {
			return nil, fmt.Errorf("store refund: %w", err)
		}
		existing, err := c.Refunds.GetRefundByOrder(ctx, o.ID)
		if err != nil {
			return nil, fmt.Errorf("load refund of order %s: %w", o.ID, err)
		}
		if o.RefundID == existing.ID {
			return nil, apperr.New(apperr.CodeAlreadyExists, "order "+o.ID+" already has a refund")
		}
		rec = existing
	}

	status := rec.Status
	onOrder := orders.Update{
		RefundID:     &rec.ID,
		RefundAmount: &rec.RefundAmount,
		RefundStatus: &status,
	}
	if err := c.Orders.UpdateOrder(ctx, o.ID, onOrder); err != nil {
		return nil, fmt.Errorf("record refund on order: %w", err)
	}
	onOrder.Apply(o)

	log := logger.With(ctx, c.Log)
	log.Info("refund requested",
		zap.String("refund_id", rec.ID),
		zap.String("order_id", o.ID),
		zap.String("payment_type", string(o.PaymentType)),
		zap.String("refund_amount", rec.RefundAmount.String()),
	)
	err := orders.PublishEvent(c.Events, c.Service, orders.TopicRefundRequested, orders.EventRefundRequested, o.ID,
		logger.RequestIDFrom(ctx), orders.RefundRequestedPayload{
			RefundID:       rec.ID,
			OrderID:        o.ID,
			BuyerID:        o.BuyerID,
			OriginalAmount: rec.OriginalAmount.String(),
			ServiceFee:     rec.ServiceFee.String(),
			RefundAmount:   rec.RefundAmount.String(),
		})
	if err != nil {
		log.Error("publish refund notification failed", zap.Error(err))
	}
	return rec, nil
}

// RefundCancelled lets the order lifecycle trigger Compute.
func (c *Calculator) RefundCancelled(ctx context.Context, o *orders.Order) error {
	_, err := c.Compute(ctx, o)
	return err
}

func (c *Calculator) MarkProcessed(ctx context.Context, refundID string) (*Record, error) {
	return c.settle(ctx, refundID, orders.RefundProcessed, "")
}

func (c *Calculator) MarkFailed(ctx context.Context, refundID, reason string) (*Record, error) {
	return c.settle(ctx, refundID, orders.RefundFailed, reason)
}

func (c *Calculator) settle(ctx context.Context, refundID string, to Status, reason string) (*Record, error) {
	rec, err := c.Refunds.GetRefund(ctx, refundID)
	if err != nil {
		return nil, err
	}
	if !CanTransition(rec.Status, to) {
		return nil, apperr.InvalidTransition(string(rec.Status), string(to))
	}
	if err := c.Refunds.UpdateRefundStatus(ctx, refundID, StatusChange{From: rec.Status, To: to, Reason: reason}); err != nil {
		return nil, err
	}
	if err := c.Orders.UpdateOrder(ctx, rec.OrderID, orders.Update{RefundStatus: &to}); err != nil {
		return nil, fmt.Errorf("record refund status on order: %w", err)
	}
	rec.Status = to
	rec.FailureReason = reason

	log := logger.With(ctx, c.Log)
	log.Info("refund settled", zap.String("refund_id", refundID), zap.String("status", string(to)))
	err = orders.PublishEvent(c.Events, c.Service, orders.TopicRefundSettled, orders.EventRefundSettled, rec.OrderID,
		logger.RequestIDFrom(ctx), orders.RefundSettledPayload{
			RefundID: refundID, OrderID: rec.OrderID, BuyerID: rec.BuyerID, Status: to, Reason: reason,
		})
	if err != nil {
		log.Error("publish refund settlement failed", zap.Error(err))
	}
	return rec, nil
}
