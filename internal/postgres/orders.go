package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/ariefcatur/go-marketplace-core/internal/apperr"
	"github.com/ariefcatur/go-marketplace-core/internal/orders"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"
)

const orderColumns = `id, COALESCE(external_id, ''), product_id, buyer_id, seller_id, quantity, from_stock,
	status, total_price::text, payment_method, payment_type, refund_id, refund_amount::text,
	refund_status, created_at, updated_at`

func scanOrder(row pgx.Row) (*orders.Order, error) {
	var o orders.Order
	var total string
	var refund *string
	if err := row.Scan(&o.ID, &o.ExternalID, &o.ProductID, &o.BuyerID, &o.SellerID, &o.Quantity, &o.FromStock,
		&o.Status, &total, &o.PaymentMethod, &o.PaymentType, &o.RefundID, &refund,
		&o.RefundStatus, &o.CreatedAt, &o.UpdatedAt); err != nil {
		return nil, err
	}
	d, err := decimal.NewFromString(total)
	if err != nil {
		return nil, fmt.Errorf("order %s total: %w", o.ID, err)
	}
	o.TotalPrice = d
	if refund != nil {
		r, err := decimal.NewFromString(*refund)
		if err != nil {
			return nil, fmt.Errorf("order %s refund amount: %w", o.ID, err)
		}
		o.RefundAmount = &r
	}
	return &o, nil
}

func (s *Store) CreateOrder(ctx context.Context, o *orders.Order) error {
	_, err := s.DB.Exec(ctx, `
		INSERT INTO orders(id, external_id, product_id, buyer_id, seller_id, quantity, from_stock,
			status, total_price, payment_method, payment_type, created_at, updated_at)
		VALUES ($1, NULLIF($2, ''), $3, $4, $5, $6, $7, $8, $9::numeric, $10, $11, $12, $13)`,
		o.ID, o.ExternalID, o.ProductID, o.BuyerID, o.SellerID, o.Quantity, o.FromStock,
		string(o.Status), o.TotalPrice.String(), string(o.PaymentMethod), string(o.PaymentType),
		o.CreatedAt, o.UpdatedAt)
	if isUniqueViolation(err) {
		return apperr.ErrAlreadyExists
	}
	return err
}

func (s *Store) GetOrder(ctx context.Context, id string) (*orders.Order, error) {
	o, err := scanOrder(s.DB.QueryRow(ctx, `SELECT `+orderColumns+` FROM orders WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperr.NotFound("order", id)
	}
	return o, err
}

func (s *Store) UpdateOrder(ctx context.Context, id string, u orders.Update) error {
	sql, args := orderUpdateSQL(id, u, s.Clock.Now())
	ct, err := s.DB.Exec(ctx, sql, args...)
	if err != nil {
		return err
	}
	if ct.RowsAffected() == 1 {
		return nil
	}
	current, err := s.GetOrder(ctx, id)
	if err != nil {
		return err
	}
	if u.ExpectedStatus != nil && current.Status != *u.ExpectedStatus {
		return orders.StatusMismatch(current.Status, u)
	}
	return apperr.ErrConcurrencyConflict
}
