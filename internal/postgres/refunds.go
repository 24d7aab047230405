package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/ariefcatur/go-marketplace-core/internal/apperr"
	"github.com/ariefcatur/go-marketplace-core/internal/refund"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"
)

func (s *Store) CreateRefund(ctx context.Context, r *refund.Record) error {
	_, err := s.DB.Exec(ctx, `
		INSERT INTO refunds(id, order_id, buyer_id, original_amount, service_fee, refund_amount,
			status, failure_reason, created_at, updated_at)
		VALUES ($1, $2, $3, $4::numeric, $5::numeric, $6::numeric, $7, $8, $9, $10)`,
		r.ID, r.OrderID, r.BuyerID, r.OriginalAmount.String(), r.ServiceFee.String(), r.RefundAmount.String(),
		string(r.Status), r.FailureReason, r.CreatedAt, r.UpdatedAt)
	if isUniqueViolation(err) {
		return apperr.ErrAlreadyExists
	}
	return err
}

const refundColumns = `id, order_id, buyer_id, original_amount::text, service_fee::text, refund_amount::text,
	status, failure_reason, created_at, updated_at`

func scanRefund(row pgx.Row) (*refund.Record, error) {
	var r refund.Record
	var orig, fee, amount string
	if err := row.Scan(&r.ID, &r.OrderID, &r.BuyerID, &orig, &fee, &amount, &r.Status, &r.FailureReason,
		&r.CreatedAt, &r.UpdatedAt); err != nil {
		return nil, err
	}
	for _, f := range []struct {
		dst *decimal.Decimal
		src string
	}{{&r.OriginalAmount, orig}, {&r.ServiceFee, fee}, {&r.RefundAmount, amount}} {
		d, err := decimal.NewFromString(f.src)
		if err != nil {
			return nil, fmt.Errorf("refund %s amounts: %w", r.ID, err)
		}
		*f.dst = d
	}
	return &r, nil
}

func (s *Store) GetRefund(ctx context.Context, id string) (*refund.Record, error) {
	r, err := scanRefund(s.DB.QueryRow(ctx, `SELECT `+refundColumns+` FROM refunds WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperr.NotFound("refund", id)
	}
	return r, err
}

func (s *Store) GetRefundByOrder(ctx context.Context, orderID string) (*refund.Record, error) {
	r, err := scanRefund(s.DB.QueryRow(ctx, `SELECT `+refundColumns+` FROM refunds WHERE order_id = $1`, orderID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperr.NotFound("refund for order", orderID)
	}
	return r, err
}

// UpdateRefundStatus moves the record only while it is still in c.From.
func (s *Store) UpdateRefundStatus(ctx context.Context, id string, c refund.StatusChange) error {
	ct, err := s.DB.Exec(ctx, `
		UPDATE refunds SET status = $2, failure_reason = $3, updated_at = $4
		WHERE id = $1 AND status = $5`,
		id, string(c.To), c.Reason, s.Clock.Now(), string(c.From))
	if err != nil {
		return err
	}
	if ct.RowsAffected() == 1 {
		return nil
	}
	current, err := s.GetRefund(ctx, id)
	if err != nil {
		return err
	}
	return apperr.InvalidTransition(string(current.Status), string(c.To))
}
