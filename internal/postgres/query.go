package postgres

import (
	"fmt"
	"strings"
	"time"

	"github.com/ariefcatur/go-marketplace-core/internal/apperr"
	"github.com/ariefcatur/go-marketplace-core/internal/catalog"
	"github.com/ariefcatur/go-marketplace-core/internal/orders"
	"github.com/ariefcatur/go-marketplace-core/internal/store"
	"github.com/jackc/pgx/v5"
)

// filterable columns per collection; filters on anything else are rejected
var columns = map[string]map[string]bool{
	store.CollectionProducts: {"seller_id": true, "kind": true, "available": true, "updated_at": true},
	store.CollectionOrders:   {"seller_id": true, "buyer_id": true, "product_id": true, "status": true, "updated_at": true},
	store.CollectionRefunds:  {"order_id": true, "status": true, "updated_at": true},
}

func notifyChannel(collection string) string { return collection + "_changed" }

// setList accumulates "col = $n" assignments and their arguments.
type setList struct {
	sets []string
	args []any
}

func (s *setList) add(col string, v any) {
	s.args = append(s.args, v)
	s.sets = append(s.sets, fmt.Sprintf("%s = $%d", col, len(s.args)))
}

func (s *setList) addRaw(expr string) { s.sets = append(s.sets, expr) }

func (s *setList) arg(v any) string {
	s.args = append(s.args, v)
	return fmt.Sprintf("$%d", len(s.args))
}

func productUpdateSQL(id string, u catalog.Update, now time.Time) (string, []any) {
	var s setList
	if u.Quantity != nil {
		s.add("quantity", *u.Quantity)
	}
	if u.InStockQuantity != nil {
		s.add("in_stock_quantity", *u.InStockQuantity)
	}
	if u.Available != nil {
		s.add("available", *u.Available)
	}
	if u.Amount != nil {
		s.add("amount", *u.Amount)
	}
	s.addRaw("version = version + 1")
	s.add("updated_at", now)

	where := "id = " + s.arg(id)
	if u.ExpectedVersion != nil {
		where += " AND version = " + s.arg(*u.ExpectedVersion)
	}
	return "UPDATE products SET " + strings.Join(s.sets, ", ") + " WHERE " + where, s.args
}

func orderUpdateSQL(id string, u orders.Update, now time.Time) (string, []any) {
	var s setList
	if u.Status != nil {
		s.add("status", string(*u.Status))
	}
	if u.RefundID != nil {
		s.add("refund_id", *u.RefundID)
	}
	if u.RefundAmount != nil {
		s.sets = append(s.sets, "refund_amount = "+s.arg(u.RefundAmount.String())+"::numeric")
	}
	if u.RefundStatus != nil {
		s.add("refund_status", string(*u.RefundStatus))
	}
	s.add("updated_at", now)
	where := " WHERE id = " + s.arg(id)
	if u.ExpectedStatus != nil {
		where += " AND status = " + s.arg(string(*u.ExpectedStatus))
	}
	return "UPDATE orders SET " + strings.Join(s.sets, ", ") + where, s.args
}

// windowSQL selects the query window as JSON documents, newest first.
func windowSQL(q store.Query) (string, []any, error) {
	cols, ok := columns[q.Collection]
	if !ok {
		return "", nil, apperr.InvalidInput("unknown collection %q", q.Collection)
	}
	if q.Limit <= 0 {
		return "", nil, apperr.InvalidInput("subscription window must be bounded")
	}
	orderBy := q.OrderBy
	if orderBy == "" {
		orderBy = "updated_at"
	}
	if !cols[orderBy] {
		return "", nil, apperr.InvalidInput("cannot order %s by %q", q.Collection, orderBy)
	}

	var args []any
	var where []string
	for _, f := range q.Filters {
		if !cols[f.Field] {
			return "", nil, apperr.QueryTooComplex("no column " + f.Field + " on " + q.Collection)
		}
		args = append(args, f.Value)
		where = append(where, fmt.Sprintf("%s = $%d", pgx.Identifier{f.Field}.Sanitize(), len(args)))
	}
	args = append(args, q.Limit)

	table := pgx.Identifier{q.Collection}.Sanitize()
	order := pgx.Identifier{orderBy}.Sanitize()
	var b strings.Builder
	b.WriteString("SELECT t.id, row_to_json(t)::text FROM (SELECT * FROM ")
	b.WriteString(table)
	if len(where) > 0 {
		b.WriteString(" WHERE ")
		b.WriteString(strings.Join(where, " AND "))
	}
	fmt.Fprintf(&b, " ORDER BY %s DESC LIMIT $%d) t ORDER BY t.%s DESC", order, len(args), order)
	return b.String(), args, nil
}

func productListSQL(f catalog.Filter) (string, []any) {
	var args []any
	var where []string
	if f.SellerID != "" {
		args = append(args, f.SellerID)
		where = append(where, fmt.Sprintf("seller_id = $%d", len(args)))
	}
	if f.Kind != "" {
		args = append(args, string(f.Kind))
		where = append(where, fmt.Sprintf("kind = $%d", len(args)))
	}
	if f.AvailableOnly {
		where = append(where, "available")
	}
	sql := "SELECT " + productColumns + " FROM products"
	if len(where) > 0 {
		sql += " WHERE " + strings.Join(where, " AND ")
	}
	return sql + " ORDER BY id", args
}
