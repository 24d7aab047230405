// Package store defines the document-store contract the reconciliation core
// consumes: point reads, field-level updates, change subscriptions and a clock.
// Backends live in internal/postgres and internal/store/memstore.
package store

import (
	"context"
	"encoding/json"
	"time"
)

const (
	CollectionProducts = "products"
	CollectionOrders   = "orders"
	CollectionRefunds  = "refunds"
)

type Clock interface {
	Now() time.Time
}

type ClockFunc func() time.Time

func (f ClockFunc) Now() time.Time { return f() }

// SystemClock reports UTC wall time.
var SystemClock Clock = ClockFunc(func() time.Time { return time.Now().UTC() })

// Filter is a store-side equality predicate on a document field.
type Filter struct {
	Field string
	Value any
}

// Query describes a watched window of a collection.
type Query struct {
	Collection string
	Filters    []Filter
	// OrderBy is always descending; "updated_at" when empty.
	OrderBy string
	// Limit caps the window; backends reject zero.
	Limit int
}

func (q Query) Unfiltered() Query {
	q.Filters = nil
	return q
}

// RawDocument is a document as the store holds it. Data may be malformed or
// partially written; consumers must parse defensively.
type RawDocument struct {
	ID   string
	Data json.RawMessage
}

// ChangeBatch is a full snapshot of the query window after a change.
type ChangeBatch struct {
	Docs []RawDocument
	At   time.Time
}

// Feed is a live subscription. Batches is closed when the feed ends, after
// which Err reports why (nil after Close). Close is safe to call repeatedly.
type Feed interface {
	Batches() <-chan ChangeBatch
	Err() error
	Close()
}

type Subscriber interface {
	Subscribe(ctx context.Context, q Query) (Feed, error)
}
