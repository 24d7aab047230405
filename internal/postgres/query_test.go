package postgres

import (
	"testing"
	"time"

	"github.com/ariefcatur/go-marketplace-core/internal/apperr"
	"github.com/ariefcatur/go-marketplace-core/internal/catalog"
	"github.com/ariefcatur/go-marketplace-core/internal/orders"
	"github.com/ariefcatur/go-marketplace-core/internal/store"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var now = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

func TestProductUpdateSQL_Conditional(t *testing.T) {
	qty, sold, avail, ver := 3, 7, true, int64(4)
	sql, args := productUpdateSQL("p1", catalog.Update{
		Quantity: &qty, InStockQuantity: &sold, Available: &avail, ExpectedVersion: &ver,
	}, now)

	assert.Equal(t, "UPDATE products SET quantity = $1, in_stock_quantity = $2, available = $3, "+
		"version = version + 1, updated_at = $4 WHERE id = $5 AND version = $6", sql)
	assert.Equal(t, []any{3, 7, true, now, "p1", int64(4)}, args)
}

func TestProductUpdateSQL_BacklogOnly(t *testing.T) {
	amount := 9
	sql, args := productUpdateSQL("p2", catalog.Update{Amount: &amount}, now)
	assert.Equal(t, "UPDATE products SET amount = $1, version = version + 1, updated_at = $2 WHERE id = $3", sql)
	assert.Equal(t, []any{9, now, "p2"}, args)
}

func TestOrderUpdateSQL(t *testing.T) {
	status := orders.StatusCancelled
	refundID := "r1"
	amount := decimal.NewFromInt(98000)
	rs := orders.RefundPending
	sql, args := orderUpdateSQL("o1", orders.Update{
		Status: &status, RefundID: &refundID, RefundAmount: &amount, RefundStatus: &rs,
	}, now)

	assert.Equal(t, "UPDATE orders SET status = $1, refund_id = $2, refund_amount = $3::numeric, "+
		"refund_status = $4, updated_at = $5 WHERE id = $6", sql)
	assert.Equal(t, []any{"cancelled", "r1", "98000", "pending", now, "o1"}, args)
}

func TestOrderUpdateSQL_ExpectedStatus(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	from, to := orders.StatusPending, orders.StatusCancelled
	sql, args := orderUpdateSQL("o1", orders.Update{ExpectedStatus: &from, Status: &to}, now)

	assert.Equal(t, "UPDATE orders SET status = $1, updated_at = $2 WHERE id = $3 AND status = $4", sql)
	assert.Equal(t, []any{"cancelled", now, "o1", "pending"}, args)
}

func TestWindowSQL(t *testing.T) {
	sql, args, err := windowSQL(store.Query{
		Collection: store.CollectionOrders,
		Filters:    []store.Filter{{Field: "seller_id", Value: "s1"}},
		Limit:      100,
	})
	require.NoError(t, err)
	assert.Equal(t, `SELECT t.id, row_to_json(t)::text FROM (SELECT * FROM "orders" WHERE "seller_id" = $1 `+
		`ORDER BY "updated_at" DESC LIMIT $2) t ORDER BY t."updated_at" DESC`, sql)
	assert.Equal(t, []any{"s1", 100}, args)
}

func TestWindowSQL_Unfiltered(t *testing.T) {
	sql, args, err := windowSQL(store.Query{Collection: store.CollectionProducts, Limit: 5})
	require.NoError(t, err)
	assert.Equal(t, `SELECT t.id, row_to_json(t)::text FROM (SELECT * FROM "products" `+
		`ORDER BY "updated_at" DESC LIMIT $1) t ORDER BY t."updated_at" DESC`, sql)
	assert.Equal(t, []any{5}, args)
}

func TestWindowSQL_Rejects(t *testing.T) {
	_, _, err := windowSQL(store.Query{Collection: "users", Limit: 5})
	assert.ErrorIs(t, err, apperr.ErrInvalidInput)

	_, _, err = windowSQL(store.Query{Collection: store.CollectionProducts})
	assert.ErrorIs(t, err, apperr.ErrInvalidInput)

	_, _, err = windowSQL(store.Query{
		Collection: store.CollectionProducts,
		Filters:    []store.Filter{{Field: "name; DROP TABLE products", Value: "x"}},
		Limit:      5,
	})
	assert.ErrorIs(t, err, apperr.ErrQueryTooComplex)
}

func TestProductListSQL(t *testing.T) {
	sql, args := productListSQL(catalog.Filter{SellerID: "s1", Kind: catalog.KindBaked, AvailableOnly: true})
	assert.Equal(t, "SELECT "+productColumns+" FROM products WHERE seller_id = $1 AND kind = $2 AND available ORDER BY id", sql)
	assert.Equal(t, []any{"s1", "baked"}, args)

	sql, args = productListSQL(catalog.Filter{})
	assert.Equal(t, "SELECT "+productColumns+" FROM products ORDER BY id", sql)
	assert.Empty(t, args)
}

func TestNotifyChannelMatchesTrigger(t *testing.T) {
	assert.Equal(t, "products_changed", notifyChannel(store.CollectionProducts))
	assert.Contains(t, schema, "TG_TABLE_NAME || '_changed'")
}
