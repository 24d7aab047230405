// Package notify consumes refund events and tells the buyer about them.
// Delivery itself belongs to an external channel; Sender is that seam.
package notify

import (
	"context"
	"encoding/json"
	"fmt"

	kafkax "github.com/ariefcatur/go-marketplace-core/internal/kafka"
	"github.com/ariefcatur/go-marketplace-core/internal/orders"
	"github.com/ariefcatur/go-marketplace-core/internal/redisx"
	kafkago "github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

// Message is what the customer is told about a refund.
type Message struct {
	OrderID  string
	BuyerID  string
	RefundID string
	Subject  string
	Body     string
}

type Sender interface {
	Send(ctx context.Context, m Message) error
}

// LogSender writes notifications to the log. Used until a real channel exists.
type LogSender struct{ Log *zap.Logger }

func (s LogSender) Send(_ context.Context, m Message) error {
	s.Log.Info("customer notification",
		zap.String("order_id", m.OrderID),
		zap.String("buyer_id", m.BuyerID),
		zap.String("refund_id", m.RefundID),
		zap.String("subject", m.Subject),
		zap.String("body", m.Body),
	)
	return nil
}

type Service struct {
	Dedup       redisx.Cache
	Sender      Sender
	Log         *zap.Logger
	ServiceName string
}

// Topics lists the streams the service consumes.
func Topics() []string {
	return []string{orders.TopicRefundRequested, orders.TopicRefundSettled}
}

// Handle is installed as the consumer handler. Redelivered events are
// recognised by event id and acknowledged without a second notification.
func (s *Service) Handle(ctx context.Context, m kafkago.Message) error {
	switch kafkax.Header(m, "x-event-type") {
	case "", orders.EventRefundRequested, orders.EventRefundSettled:
	default:
		return nil
	}
	var env orders.Envelope
	if err := json.Unmarshal(m.Value, &env); err != nil {
		s.Log.Warn("dropping undecodable event", zap.String("topic", m.Topic), zap.Error(err))
		return nil
	}
	log := s.Log.With(
		zap.String("event_id", env.EventID),
		zap.String("event_type", env.EventType),
		zap.String("trace_id", env.TraceID),
	)

	var msg Message
	switch env.EventType {
	case orders.EventRefundRequested:
		p, err := kafkax.UnwrapPayload[orders.RefundRequestedPayload](env.Payload)
		if err != nil {
			log.Warn("dropping event", zap.Error(err))
			return nil
		}
		msg = requestedMessage(p)
	case orders.EventRefundSettled:
		p, err := kafkax.UnwrapPayload[orders.RefundSettledPayload](env.Payload)
		if err != nil {
			log.Warn("dropping event", zap.Error(err))
			return nil
		}
		msg = settledMessage(p)
	default:
		return nil
	}

	if s.Dedup != nil {
		first, err := s.Dedup.Claim(ctx, redisx.Dedup(s.ServiceName, env.EventID), redisx.TTLDedup)
		if err != nil {
			log.Warn("dedup unavailable, notifying anyway", zap.Error(err))
		} else if !first {
			log.Debug("duplicate event ignored")
			return nil
		}
	}

	if err := s.Sender.Send(ctx, msg); err != nil {
		if s.Dedup != nil {
			_ = s.Dedup.Del(ctx, redisx.Dedup(s.ServiceName, env.EventID))
		}
		return fmt.Errorf("send notification for order %s: %w", msg.OrderID, err)
	}
	return nil
}

func requestedMessage(p orders.RefundRequestedPayload) Message {
	return Message{
		OrderID:  p.OrderID,
		BuyerID:  p.BuyerID,
		RefundID: p.RefundID,
		Subject:  "Your refund is on its way",
		Body: fmt.Sprintf("Order %s was cancelled. We will refund %s (paid %s, service fee %s).",
			p.OrderID, p.RefundAmount, p.OriginalAmount, p.ServiceFee),
	}
}

func settledMessage(p orders.RefundSettledPayload) Message {
	m := Message{OrderID: p.OrderID, BuyerID: p.BuyerID, RefundID: p.RefundID}
	switch p.Status {
	case orders.RefundProcessed:
		m.Subject = "Refund completed"
		m.Body = fmt.Sprintf("The refund for order %s has been processed.", p.OrderID)
	default:
		m.Subject = "Refund could not be completed"
		m.Body = fmt.Sprintf("The refund for order %s failed: %s. Support will contact you.", p.OrderID, p.Reason)
	}
	return m
}
