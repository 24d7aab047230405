package refund

import (
	"time"

	"github.com/ariefcatur/go-marketplace-core/internal/orders"
	"github.com/shopspring/decimal"
)

type Status = orders.RefundStatus

// Record is created once per card-paid cancellation.
type Record struct {
	ID             string          `json:"id"`
	OrderID        string          `json:"order_id"`
	BuyerID        string          `json:"buyer_id"`
	OriginalAmount decimal.Decimal `json:"original_amount"`
	ServiceFee     decimal.Decimal `json:"service_fee"`
	RefundAmount   decimal.Decimal `json:"refund_amount"`
	Status         Status          `json:"status"`
	FailureReason  string          `json:"failure_reason,omitempty"`
	CreatedAt      time.Time       `json:"created_at"`
	UpdatedAt      time.Time       `json:"updated_at"`
}

// StatusChange moves a record out of From. Stores reject it with
// apperr.ErrInvalidTransition when the stored status differs.
type StatusChange struct {
	From   Status
	To     Status
	Reason string
}

var validNext = map[Status]map[Status]bool{
	orders.RefundPending: {orders.RefundProcessed: true, orders.RefundFailed: true},
}

func CanTransition(from, to Status) bool {
	return validNext[from][to]
}
