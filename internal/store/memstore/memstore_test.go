package memstore

import (
	"context"
	"testing"
	"time"

	"github.com/ariefcatur/go-marketplace-core/internal/apperr"
	"github.com/ariefcatur/go-marketplace-core/internal/catalog"
	"github.com/ariefcatur/go-marketplace-core/internal/orders"
	"github.com/ariefcatur/go-marketplace-core/internal/refund"
	"github.com/ariefcatur/go-marketplace-core/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var t0 = time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC)

func fixedClock() store.Clock { return store.ClockFunc(func() time.Time { return t0 }) }

func TestUpdateProduct_VersionCheck(t *testing.T) {
	s := New(WithClock(fixedClock()))
	ctx := context.Background()
	require.NoError(t, s.CreateProduct(ctx, catalog.NewProduct{SellerID: "s", Name: "n", Kind: catalog.KindReady, Quantity: 2}.Build("p1", t0)))
	assert.ErrorIs(t, s.CreateProduct(ctx, catalog.Product{ID: "p1"}), apperr.ErrAlreadyExists)

	qty := 1
	stale := int64(7)
	err := s.UpdateProduct(ctx, "p1", catalog.Update{Quantity: &qty, ExpectedVersion: &stale})
	assert.ErrorIs(t, err, apperr.ErrConcurrencyConflict)

	current := int64(1)
	require.NoError(t, s.UpdateProduct(ctx, "p1", catalog.Update{Quantity: &qty, ExpectedVersion: &current}))
	p, err := s.GetProduct(ctx, "p1")
	require.NoError(t, err)
	assert.Equal(t, 1, p.Quantity)
	assert.Equal(t, int64(2), p.Version)

	assert.ErrorIs(t, s.UpdateProduct(ctx, "ghost", catalog.Update{}), apperr.ErrNotFound)
}

func TestRefunds_OnePerOrderAndGuardedStatus(t *testing.T) {
	s := New()
	ctx := context.Background()
	require.NoError(t, s.CreateRefund(ctx, &refund.Record{ID: "r1", OrderID: "o1", Status: orders.RefundPending}))
	assert.ErrorIs(t, s.CreateRefund(ctx, &refund.Record{ID: "r2", OrderID: "o1", Status: orders.RefundPending}), apperr.ErrAlreadyExists)

	err := s.UpdateRefundStatus(ctx, "r1", refund.StatusChange{From: orders.RefundFailed, To: orders.RefundProcessed})
	assert.ErrorIs(t, err, apperr.ErrInvalidTransition)

	require.NoError(t, s.UpdateRefundStatus(ctx, "r1", refund.StatusChange{From: orders.RefundPending, To: orders.RefundFailed, Reason: "declined"}))
	r, err := s.GetRefund(ctx, "r1")
	require.NoError(t, err)
	assert.Equal(t, orders.RefundFailed, r.Status)
	assert.Equal(t, "declined", r.FailureReason)
}

func TestUpdateOrder_ExpectedStatus(t *testing.T) {
	s := New()
	ctx := context.Background()
	require.NoError(t, s.CreateOrder(ctx, &orders.Order{ID: "o1", ProductID: "p1", Quantity: 1, Status: orders.StatusPending}))

	from, to := orders.StatusPending, orders.StatusCancelled
	require.NoError(t, s.UpdateOrder(ctx, "o1", orders.Update{ExpectedStatus: &from, Status: &to}))

	err := s.UpdateOrder(ctx, "o1", orders.Update{ExpectedStatus: &from, Status: &to})
	assert.ErrorIs(t, err, apperr.ErrInvalidTransition)
	rid := "r1"
	err = s.UpdateOrder(ctx, "o1", orders.Update{ExpectedStatus: &from, RefundID: &rid})
	assert.ErrorIs(t, err, apperr.ErrConcurrencyConflict)

	o, err := s.GetOrder(ctx, "o1")
	require.NoError(t, err)
	assert.Equal(t, orders.StatusCancelled, o.Status)
	assert.Empty(t, o.RefundID)
}

func TestGetRefundByOrder(t *testing.T) {
	s := New()
	ctx := context.Background()
	require.NoError(t, s.CreateRefund(ctx, &refund.Record{ID: "r1", OrderID: "o1", Status: orders.RefundPending}))

	r, err := s.GetRefundByOrder(ctx, "o1")
	require.NoError(t, err)
	assert.Equal(t, "r1", r.ID)
	_, err = s.GetRefundByOrder(ctx, "o2")
	assert.ErrorIs(t, err, apperr.ErrNotFound)
}

func TestSubscribe(t *testing.T) {
	s := New()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	_, err := s.Subscribe(ctx, store.Query{Collection: store.CollectionOrders})
	assert.ErrorIs(t, err, apperr.ErrInvalidInput, "window must be bounded")

	_, err = s.Subscribe(ctx, store.Query{
		Collection: store.CollectionOrders,
		Filters:    []store.Filter{{Field: "seller_id", Value: "s"}, {Field: "status", Value: "pending"}},
		Limit:      10,
	})
	assert.ErrorIs(t, err, apperr.ErrQueryTooComplex)

	feed, err := s.Subscribe(ctx, store.Query{
		Collection: store.CollectionOrders,
		Filters:    []store.Filter{{Field: "seller_id", Value: "s"}},
		Limit:      10,
	})
	require.NoError(t, err)
	initial := <-feed.Batches()
	assert.Empty(t, initial.Docs)

	require.NoError(t, s.CreateOrder(ctx, &orders.Order{ID: "other", SellerID: "x", ProductID: "p", Quantity: 1, Status: orders.StatusPending}))
	require.NoError(t, s.CreateOrder(ctx, &orders.Order{ID: "mine", SellerID: "s", ProductID: "p", Quantity: 1, Status: orders.StatusPending}))

	var last store.ChangeBatch
	for i := 0; i < 2; i++ {
		last = <-feed.Batches()
	}
	require.Len(t, last.Docs, 1)
	assert.Equal(t, "mine", last.Docs[0].ID)

	cancel()
	require.Eventually(t, func() bool { return s.Subscribers(store.CollectionOrders) == 0 }, time.Second, 5*time.Millisecond)
	_, open := <-feed.Batches()
	assert.False(t, open)
	assert.NoError(t, feed.Err())
}

func TestFailSubscribeConsumesInOrder(t *testing.T) {
	s := New()
	boom := apperr.Sync(store.CollectionProducts, assert.AnError)
	s.FailSubscribe(store.CollectionProducts, boom)

	q := store.Query{Collection: store.CollectionProducts, Limit: 5}
	_, err := s.Subscribe(context.Background(), q)
	assert.ErrorIs(t, err, apperr.ErrSync)

	feed, err := s.Subscribe(context.Background(), q)
	require.NoError(t, err)
	feed.Close()
	feed.Close()
	assert.Equal(t, 0, s.Subscribers(store.CollectionProducts))
}
