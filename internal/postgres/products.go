package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/ariefcatur/go-marketplace-core/internal/apperr"
	"github.com/ariefcatur/go-marketplace-core/internal/catalog"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"
)

const productColumns = `id, seller_id, name, kind, price::text, quantity, in_stock_quantity,
	available, amount, version, created_at, updated_at`

func scanProduct(row pgx.Row) (*catalog.Product, error) {
	var p catalog.Product
	var price string
	if err := row.Scan(&p.ID, &p.SellerID, &p.Name, &p.Kind, &price, &p.Quantity, &p.InStockQuantity,
		&p.Available, &p.Amount, &p.Version, &p.CreatedAt, &p.UpdatedAt); err != nil {
		return nil, err
	}
	d, err := decimal.NewFromString(price)
	if err != nil {
		return nil, fmt.Errorf("product %s price: %w", p.ID, err)
	}
	p.Price = d
	return &p, nil
}

func (s *Store) CreateProduct(ctx context.Context, p catalog.Product) error {
	_, err := s.DB.Exec(ctx, `
		INSERT INTO products(id, seller_id, name, kind, price, quantity, in_stock_quantity,
			available, amount, version, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5::numeric, $6, $7, $8, $9, $10, $11, $12)`,
		p.ID, p.SellerID, p.Name, string(p.Kind), p.Price.String(), p.Quantity, p.InStockQuantity,
		p.Available, p.Amount, p.Version, p.CreatedAt, p.UpdatedAt)
	if isUniqueViolation(err) {
		return apperr.ErrAlreadyExists
	}
	return err
}

func (s *Store) GetProduct(ctx context.Context, id string) (*catalog.Product, error) {
	p, err := scanProduct(s.DB.QueryRow(ctx, `SELECT `+productColumns+` FROM products WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperr.NotFound("product", id)
	}
	return p, err
}

// UpdateProduct applies u in one statement. With ExpectedVersion set, a
// row whose version moved on is left alone and ErrConcurrencyConflict returned.
func (s *Store) UpdateProduct(ctx context.Context, id string, u catalog.Update) error {
	sql, args := productUpdateSQL(id, u, s.Clock.Now())
	ct, err := s.DB.Exec(ctx, sql, args...)
	if err != nil {
		return err
	}
	if ct.RowsAffected() == 1 {
		return nil
	}
	return s.missingOr(ctx, "products", "product", id, apperr.ErrConcurrencyConflict)
}

func (s *Store) ListProducts(ctx context.Context, f catalog.Filter) ([]catalog.Product, error) {
	sql, args := productListSQL(f)
	rows, err := s.DB.Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []catalog.Product
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *p)
	}
	return out, rows.Err()
}
