package orders

import (
	"time"

	"github.com/shopspring/decimal"
)

type PaymentMethod string

const (
	PaymentCash PaymentMethod = "cash"
	PaymentCard PaymentMethod = "card"
)

// PaymentType names the card provider. Empty for cash orders.
type PaymentType string

const (
	PaymentTypeClick PaymentType = "click"
	PaymentTypePayme PaymentType = "payme"
	PaymentTypeVisa  PaymentType = "visa"
)

type RefundStatus string

const (
	RefundPending   RefundStatus = "pending"
	RefundProcessed RefundStatus = "processed"
	RefundFailed    RefundStatus = "failed"
)

type Order struct {
	ID         string `json:"id"`
	ExternalID string `json:"external_id,omitempty"`
	ProductID  string `json:"product_id"`
	BuyerID    string `json:"buyer_id"`
	SellerID   string `json:"seller_id"`
	Quantity   int    `json:"quantity"`
	// FromStock records how the order was allocated. It is fixed at creation
	// and selects the reversal path on cancellation.
	FromStock     bool            `json:"from_stock"`
	Status        Status          `json:"status"`
	TotalPrice    decimal.Decimal `json:"total_price"`
	PaymentMethod PaymentMethod   `json:"payment_method"`
	PaymentType   PaymentType     `json:"payment_type,omitempty"`

	RefundID     string           `json:"refund_id,omitempty"`
	RefundAmount *decimal.Decimal `json:"refund_amount,omitempty"`
	RefundStatus RefundStatus     `json:"refund_status,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Draft is what a buyer submits to place an order.
type Draft struct {
	ExternalID    string          `json:"external_id"`
	ProductID     string          `json:"product_id" validate:"required"`
	BuyerID       string          `json:"buyer_id" validate:"required"`
	Quantity      int             `json:"quantity" validate:"gt=0"`
	TotalPrice    decimal.Decimal `json:"total_price"`
	PaymentMethod PaymentMethod   `json:"payment_method" validate:"required,oneof=cash card"`
	PaymentType   PaymentType     `json:"payment_type"`
}

// Update is a field-level delta for an order document. Nil fields are kept.
// When ExpectedStatus is set, stores apply the delta only while the stored
// order still has that status.
type Update struct {
	ExpectedStatus *Status

	Status       *Status
	RefundID     *string
	RefundAmount *decimal.Decimal
	RefundStatus *RefundStatus
}

func (u Update) Apply(o *Order) {
	if u.Status != nil {
		o.Status = *u.Status
	}
	if u.RefundID != nil {
		o.RefundID = *u.RefundID
	}
	if u.RefundAmount != nil {
		amt := *u.RefundAmount
		o.RefundAmount = &amt
	}
	if u.RefundStatus != nil {
		o.RefundStatus = *u.RefundStatus
	}
}

// Filter selects orders for watches. Zero fields match all.
type Filter struct {
	SellerID  string `json:"seller_id,omitempty"`
	BuyerID   string `json:"buyer_id,omitempty"`
	ProductID string `json:"product_id,omitempty"`
	Status    Status `json:"status,omitempty"`
}

func (f Filter) Match(o Order) bool {
	switch {
	case f.SellerID != "" && o.SellerID != f.SellerID:
		return false
	case f.BuyerID != "" && o.BuyerID != f.BuyerID:
		return false
	case f.ProductID != "" && o.ProductID != f.ProductID:
		return false
	case f.Status != "" && o.Status != f.Status:
		return false
	}
	return true
}
