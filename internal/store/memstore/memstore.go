// Package memstore is an in-process document store used for local runs and
// tests. Documents are held as JSON so subscribers see exactly what a remote
// store would hand them, including documents a writer left malformed.
package memstore

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/ariefcatur/go-marketplace-core/internal/apperr"
	"github.com/ariefcatur/go-marketplace-core/internal/catalog"
	"github.com/ariefcatur/go-marketplace-core/internal/orders"
	"github.com/ariefcatur/go-marketplace-core/internal/refund"
	"github.com/ariefcatur/go-marketplace-core/internal/store"
)

type entry struct {
	data json.RawMessage
	seq  uint64
}

type subscription struct {
	q    store.Query
	feed *store.ChanFeed
}

type Store struct {
	mu      sync.Mutex
	clock   store.Clock
	indexes store.IndexSet
	docs    map[string]map[string]*entry
	seq     uint64

	subs    map[string]map[int]*subscription
	nextSub int
	// injected Subscribe failures, consumed in order
	subscribeErrs map[string][]error
}

type Option func(*Store)

func WithClock(c store.Clock) Option { return func(s *Store) { s.clock = c } }

func WithIndexes(idx store.IndexSet) Option { return func(s *Store) { s.indexes = idx } }

func New(opts ...Option) *Store {
	s := &Store{
		clock:         store.SystemClock,
		indexes:       store.DefaultIndexes(),
		docs:          map[string]map[string]*entry{},
		subs:          map[string]map[int]*subscription{},
		subscribeErrs: map[string][]error{},
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

func (s *Store) Now() time.Time { return s.clock.Now() }

// ---- raw document access ----

func (s *Store) getLocked(col, id string) (*entry, bool) {
	e, ok := s.docs[col][id]
	return e, ok
}

// putLocked stores data and fans the new window out to the collection's feeds.
func (s *Store) putLocked(col, id string, data json.RawMessage) {
	if s.docs[col] == nil {
		s.docs[col] = map[string]*entry{}
	}
	s.seq++
	s.docs[col][id] = &entry{data: data, seq: s.seq}
	for _, sub := range s.subs[col] {
		sub.feed.Send(s.snapshotLocked(sub.q))
	}
}

// PutRaw writes an arbitrary document body, bypassing decoding. Used to
// simulate partially written documents.
func (s *Store) PutRaw(col, id string, data []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.putLocked(col, id, append(json.RawMessage(nil), data...))
}

func (s *Store) snapshotLocked(q store.Query) store.ChangeBatch {
	type row struct {
		id string
		e  *entry
	}
	var rows []row
	for id, e := range s.docs[q.Collection] {
		if matches(e.data, q.Filters) {
			rows = append(rows, row{id, e})
		}
	}
	sort.Slice(rows, func(i, j int) bool { return rows[i].e.seq > rows[j].e.seq })
	if q.Limit > 0 && len(rows) > q.Limit {
		rows = rows[:q.Limit]
	}
	docs := make([]store.RawDocument, 0, len(rows))
	for _, r := range rows {
		docs = append(docs, store.RawDocument{ID: r.id, Data: r.e.data})
	}
	return store.ChangeBatch{Docs: docs, At: s.clock.Now()}
}

// matches applies store-side equality filters. Undecodable documents never
// match a filtered query but still appear in unfiltered windows.
func matches(data json.RawMessage, fs []store.Filter) bool {
	if len(fs) == 0 {
		return true
	}
	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil {
		return false
	}
	for _, f := range fs {
		v, ok := m[f.Field]
		if !ok || fmt.Sprint(v) != fmt.Sprint(f.Value) {
			return false
		}
	}
	return true
}

func decode[T any](col, id string, data json.RawMessage) (*T, error) {
	var v T
	if err := json.Unmarshal(data, &v); err != nil {
		return nil, fmt.Errorf("decode %s %s: %w", col, id, err)
	}
	return &v, nil
}

func (s *Store) writeLocked(col, id string, v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode %s %s: %w", col, id, err)
	}
	s.putLocked(col, id, b)
	return nil
}

// ---- products ----

func (s *Store) CreateProduct(_ context.Context, p catalog.Product) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.getLocked(store.CollectionProducts, p.ID); ok {
		return apperr.ErrAlreadyExists
	}
	return s.writeLocked(store.CollectionProducts, p.ID, p)
}

func (s *Store) GetProduct(_ context.Context, id string) (*catalog.Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.getLocked(store.CollectionProducts, id)
	if !ok {
		return nil, apperr.NotFound("product", id)
	}
	return decode[catalog.Product](store.CollectionProducts, id, e.data)
}

func (s *Store) UpdateProduct(_ context.Context, id string, u catalog.Update) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.getLocked(store.CollectionProducts, id)
	if !ok {
		return apperr.NotFound("product", id)
	}
	p, err := decode[catalog.Product](store.CollectionProducts, id, e.data)
	if err != nil {
		return err
	}
	if u.ExpectedVersion != nil && *u.ExpectedVersion != p.Version {
		return apperr.ErrConcurrencyConflict
	}
	u.Apply(p)
	p.Version++
	p.UpdatedAt = s.clock.Now()
	return s.writeLocked(store.CollectionProducts, id, p)
}

func (s *Store) ListProducts(_ context.Context, f catalog.Filter) ([]catalog.Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []catalog.Product
	for id, e := range s.docs[store.CollectionProducts] {
		p, err := decode[catalog.Product](store.CollectionProducts, id, e.data)
		if err != nil {
			continue
		}
		if f.Match(*p) {
			out = append(out, *p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// ---- orders ----

func (s *Store) CreateOrder(_ context.Context, o *orders.Order) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.getLocked(store.CollectionOrders, o.ID); ok {
		return apperr.ErrAlreadyExists
	}
	return s.writeLocked(store.CollectionOrders, o.ID, o)
}

func (s *Store) GetOrder(_ context.Context, id string) (*orders.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.getLocked(store.CollectionOrders, id)
	if !ok {
		return nil, apperr.NotFound("order", id)
	}
	return decode[orders.Order](store.CollectionOrders, id, e.data)
}

func (s *Store) UpdateOrder(_ context.Context, id string, u orders.Update) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.getLocked(store.CollectionOrders, id)
	if !ok {
		return apperr.NotFound("order", id)
	}
	o, err := decode[orders.Order](store.CollectionOrders, id, e.data)
	if err != nil {
		return err
	}
	if u.ExpectedStatus != nil && o.Status != *u.ExpectedStatus {
		return orders.StatusMismatch(o.Status, u)
	}
	u.Apply(o)
	o.UpdatedAt = s.clock.Now()
	return s.writeLocked(store.CollectionOrders, id, o)
}

// ---- refunds ----

func (s *Store) CreateRefund(_ context.Context, r *refund.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, e := range s.docs[store.CollectionRefunds] {
		existing, err := decode[refund.Record](store.CollectionRefunds, id, e.data)
		if err == nil && existing.OrderID == r.OrderID {
			return apperr.ErrAlreadyExists
		}
	}
	return s.writeLocked(store.CollectionRefunds, r.ID, r)
}

func (s *Store) GetRefund(_ context.Context, id string) (*refund.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.getLocked(store.CollectionRefunds, id)
	if !ok {
		return nil, apperr.NotFound("refund", id)
	}
	return decode[refund.Record](store.CollectionRefunds, id, e.data)
}

func (s *Store) GetRefundByOrder(_ context.Context, orderID string) (*refund.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, e := range s.docs[store.CollectionRefunds] {
		r, err := decode[refund.Record](store.CollectionRefunds, id, e.data)
		if err == nil && r.OrderID == orderID {
			return r, nil
		}
	}
	return nil, apperr.NotFound("refund for order", orderID)
}

func (s *Store) UpdateRefundStatus(_ context.Context, id string, c refund.StatusChange) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.getLocked(store.CollectionRefunds, id)
	if !ok {
		return apperr.NotFound("refund", id)
	}
	r, err := decode[refund.Record](store.CollectionRefunds, id, e.data)
	if err != nil {
		return err
	}
	if r.Status != c.From {
		return apperr.InvalidTransition(string(r.Status), string(c.To))
	}
	r.Status = c.To
	r.FailureReason = c.Reason
	r.UpdatedAt = s.clock.Now()
	return s.writeLocked(store.CollectionRefunds, id, r)
}

// ---- subscriptions ----

// FailSubscribe queues errors returned by the next Subscribe calls on col.
func (s *Store) FailSubscribe(col string, errs ...error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.subscribeErrs[col] = append(s.subscribeErrs[col], errs...)
}

// BreakFeeds ends every live feed on col with err.
func (s *Store) BreakFeeds(col string, err error) {
	s.mu.Lock()
	var feeds []*store.ChanFeed
	for _, sub := range s.subs[col] {
		feeds = append(feeds, sub.feed)
	}
	s.mu.Unlock()
	for _, f := range feeds {
		f.Fail(err)
	}
}

// Subscribers reports the number of live feeds on col.
func (s *Store) Subscribers(col string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.subs[col])
}

func (s *Store) Subscribe(ctx context.Context, q store.Query) (store.Feed, error) {
	if q.Limit <= 0 {
		return nil, apperr.InvalidInput("subscription window must be bounded")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if errs := s.subscribeErrs[q.Collection]; len(errs) > 0 {
		s.subscribeErrs[q.Collection] = errs[1:]
		return nil, errs[0]
	}
	if err := s.indexes.Check(q); err != nil {
		return nil, err
	}

	s.nextSub++
	id := s.nextSub
	feed := store.NewChanFeed(16, func() {
		s.mu.Lock()
		delete(s.subs[q.Collection], id)
		s.mu.Unlock()
	})
	if s.subs[q.Collection] == nil {
		s.subs[q.Collection] = map[int]*subscription{}
	}
	s.subs[q.Collection][id] = &subscription{q: q, feed: feed}
	feed.Send(s.snapshotLocked(q))

	go func() {
		select {
		case <-ctx.Done():
			feed.Close()
		case <-feed.Done():
		}
	}()
	return feed, nil
}
