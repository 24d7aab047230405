package realtime

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/ariefcatur/go-marketplace-core/internal/catalog"
	"github.com/ariefcatur/go-marketplace-core/internal/orders"
	"github.com/ariefcatur/go-marketplace-core/internal/store"
	"github.com/ariefcatur/go-marketplace-core/internal/store/memstore"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const (
	waitFor = 2 * time.Second
	tick    = 5 * time.Millisecond
)

func fastPolicy() Policy {
	return Policy{
		WindowLimit: 50,
		BaseDelay:   5 * time.Millisecond,
		MaxDelay:    20 * time.Millisecond,
		MaxRetries:  3,
		Debounce:    0,
	}
}

type collector[T any] struct {
	mu    sync.Mutex
	calls [][]T
}

func (c *collector[T]) cb(v []T) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls = append(c.calls, v)
}

func (c *collector[T]) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.calls)
}

func (c *collector[T]) last() []T {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.calls) == 0 {
		return nil
	}
	return c.calls[len(c.calls)-1]
}

func newProduct(id, seller string, kind catalog.Kind, qty int) catalog.Product {
	return catalog.NewProduct{SellerID: seller, Name: id, Kind: kind, Quantity: qty}.Build(id, time.Now().UTC())
}

func ids(ps []catalog.Product) []string {
	out := make([]string, 0, len(ps))
	for _, p := range ps {
		out = append(out, p.ID)
	}
	return out
}

func TestPolicyDelay(t *testing.T) {
	p := DefaultPolicy()
	assert.Equal(t, 500*time.Millisecond, p.Delay(1))
	assert.Equal(t, time.Second, p.Delay(2))
	assert.Equal(t, 2*time.Second, p.Delay(3))
	assert.Equal(t, 8*time.Second, p.Delay(5))
	assert.Equal(t, 8*time.Second, p.Delay(40))
}

func TestWatchProducts_LiveUpdates(t *testing.T) {
	ms := memstore.New()
	ctx := context.Background()
	require.NoError(t, ms.CreateProduct(ctx, newProduct("p1", "s1", catalog.KindReady, 1)))
	require.NoError(t, ms.CreateProduct(ctx, newProduct("p2", "s2", catalog.KindReady, 1)))

	sup := NewSupervisor(ms, zap.NewNop(), fastPolicy())
	c := &collector[catalog.Product]{}
	w := sup.WatchProducts(catalog.Filter{SellerID: "s1"}, c.cb)
	defer w.Stop()

	require.Eventually(t, func() bool { return c.count() >= 1 }, waitFor, tick)
	assert.Equal(t, []string{"p1"}, ids(c.last()))
	assert.Equal(t, PhaseLive, w.State().Phase)

	require.NoError(t, ms.CreateProduct(ctx, newProduct("p3", "s1", catalog.KindBaked, 0)))
	require.Eventually(t, func() bool { return len(c.last()) == 2 }, waitFor, tick)
	assert.Equal(t, []string{"p3", "p1"}, ids(c.last()), "most recently updated first")
}

func TestWatchProducts_WindowIsBounded(t *testing.T) {
	ms := memstore.New()
	ctx := context.Background()
	for _, id := range []string{"a", "b", "c", "d"} {
		require.NoError(t, ms.CreateProduct(ctx, newProduct(id, "s1", catalog.KindReady, 1)))
	}
	p := fastPolicy()
	p.WindowLimit = 2
	c := &collector[catalog.Product]{}
	w := NewSupervisor(ms, zap.NewNop(), p).WatchProducts(catalog.Filter{}, c.cb)
	defer w.Stop()

	require.Eventually(t, func() bool { return c.count() >= 1 }, waitFor, tick)
	assert.Equal(t, []string{"d", "c"}, ids(c.last()))
}

func TestWatch_DebounceCoalescesBursts(t *testing.T) {
	ms := memstore.New()
	p := fastPolicy()
	p.Debounce = 150 * time.Millisecond
	c := &collector[catalog.Product]{}
	w := NewSupervisor(ms, zap.NewNop(), p).WatchProducts(catalog.Filter{}, c.cb)
	defer w.Stop()

	for _, id := range []string{"a", "b", "c", "d", "e"} {
		require.NoError(t, ms.CreateProduct(context.Background(), newProduct(id, "s1", catalog.KindReady, 1)))
	}

	require.Eventually(t, func() bool { return c.count() == 1 }, waitFor, tick)
	time.Sleep(3 * p.Debounce)
	assert.Equal(t, 1, c.count())
	assert.Len(t, c.last(), 5)
}

func TestWatch_SkipsMalformedDocuments(t *testing.T) {
	ms := memstore.New()
	require.NoError(t, ms.CreateProduct(context.Background(), newProduct("ok", "s1", catalog.KindReady, 2)))
	ms.PutRaw(store.CollectionProducts, "broken", []byte(`{"id":"broken","quantity":`))
	ms.PutRaw(store.CollectionProducts, "partial", []byte(`{"id":"partial","quantity":3}`))

	c := &collector[catalog.Product]{}
	w := NewSupervisor(ms, zap.NewNop(), fastPolicy()).WatchProducts(catalog.Filter{}, c.cb)
	defer w.Stop()

	require.Eventually(t, func() bool { return c.count() >= 1 }, waitFor, tick)
	assert.Equal(t, []string{"ok"}, ids(c.last()))
}

func TestWatch_FallsBackWhenQueryTooComplex(t *testing.T) {
	ms := memstore.New()
	ctx := context.Background()
	require.NoError(t, ms.CreateProduct(ctx, newProduct("match", "s1", catalog.KindBaked, 0)))
	require.NoError(t, ms.CreateProduct(ctx, newProduct("other-kind", "s1", catalog.KindReady, 1)))
	require.NoError(t, ms.CreateProduct(ctx, newProduct("other-seller", "s2", catalog.KindBaked, 0)))

	c := &collector[catalog.Product]{}
	w := NewSupervisor(ms, zap.NewNop(), fastPolicy()).
		WatchProducts(catalog.Filter{SellerID: "s1", Kind: catalog.KindBaked}, c.cb)
	defer w.Stop()

	require.Eventually(t, func() bool { return c.count() >= 1 }, waitFor, tick)
	assert.Equal(t, []string{"match"}, ids(c.last()))
	assert.True(t, w.Degraded())
	assert.Equal(t, PhaseDegraded, w.State().Phase)
}

func TestWatch_RecoversAfterTransientErrors(t *testing.T) {
	ms := memstore.New()
	require.NoError(t, ms.CreateProduct(context.Background(), newProduct("p1", "s1", catalog.KindReady, 1)))
	ms.FailSubscribe(store.CollectionProducts, errors.New("unavailable"), errors.New("unavailable"))

	c := &collector[catalog.Product]{}
	w := NewSupervisor(ms, zap.NewNop(), fastPolicy()).WatchProducts(catalog.Filter{}, c.cb)
	defer w.Stop()

	require.Eventually(t, func() bool { return c.count() >= 1 }, waitFor, tick)
	assert.Equal(t, []string{"p1"}, ids(c.last()))
	assert.Equal(t, PhaseLive, w.State().Phase)
}

func TestWatch_ReconnectsWhenFeedBreaks(t *testing.T) {
	ms := memstore.New()
	ctx := context.Background()
	c := &collector[catalog.Product]{}
	w := NewSupervisor(ms, zap.NewNop(), fastPolicy()).WatchProducts(catalog.Filter{}, c.cb)
	defer w.Stop()

	require.Eventually(t, func() bool { return ms.Subscribers(store.CollectionProducts) == 1 }, waitFor, tick)
	ms.BreakFeeds(store.CollectionProducts, errors.New("connection reset"))

	require.Eventually(t, func() bool {
		return ms.Subscribers(store.CollectionProducts) == 1 && w.State().Phase == PhaseLive
	}, waitFor, tick)
	require.NoError(t, ms.CreateProduct(ctx, newProduct("after", "s1", catalog.KindReady, 1)))
	require.Eventually(t, func() bool { return len(c.last()) == 1 }, waitFor, tick)
}

func TestWatch_FlappingFeedExhaustsRetries(t *testing.T) {
	ms := memstore.New()
	require.NoError(t, ms.CreateProduct(context.Background(), newProduct("p1", "s1", catalog.KindReady, 1)))

	c := &collector[catalog.Product]{}
	w := NewSupervisor(ms, zap.NewNop(), fastPolicy()).WatchProducts(catalog.Filter{}, c.cb)
	defer w.Stop()

	var mu sync.Mutex
	maxAttempt := 0
	go func() {
		for {
			select {
			case <-w.Done():
				return
			case <-time.After(time.Millisecond):
			}
			if st := w.State(); st.Phase == PhaseBackoff {
				mu.Lock()
				if st.Attempt > maxAttempt {
					maxAttempt = st.Attempt
				}
				mu.Unlock()
			}
			if ms.Subscribers(store.CollectionProducts) > 0 {
				ms.BreakFeeds(store.CollectionProducts, errors.New("connection reset"))
			}
		}
	}()

	select {
	case <-w.Done():
	case <-time.After(waitFor):
		t.Fatal("flapping feed never exhausted the retry budget")
	}
	// one snapshot per subscribe, then the terminal empty view
	require.Equal(t, fastPolicy().MaxRetries+2, c.count())
	assert.NotNil(t, c.last())
	assert.Empty(t, c.last())
	assert.Equal(t, PhaseStopped, w.State().Phase)
	mu.Lock()
	assert.Equal(t, fastPolicy().MaxRetries, maxAttempt)
	mu.Unlock()
}

func TestWatch_ChangeAfterSnapshotResetsRetries(t *testing.T) {
	ms := memstore.New()
	ctx := context.Background()
	c := &collector[catalog.Product]{}
	w := NewSupervisor(ms, zap.NewNop(), fastPolicy()).WatchProducts(catalog.Filter{}, c.cb)
	defer w.Stop()

	// Each round breaks the feed after a real change, so the budget never runs out.
	for i, id := range []string{"a", "b", "c", "d", "e", "f"} {
		require.Eventually(t, func() bool {
			return ms.Subscribers(store.CollectionProducts) == 1 && w.State().Phase == PhaseLive
		}, waitFor, tick)
		require.NoError(t, ms.CreateProduct(ctx, newProduct(id, "s1", catalog.KindReady, 1)))
		want := i + 1
		require.Eventually(t, func() bool { return len(c.last()) == want }, waitFor, tick)
		ms.BreakFeeds(store.CollectionProducts, errors.New("connection reset"))
	}

	require.Eventually(t, func() bool { return w.State().Phase == PhaseLive }, waitFor, tick)
	select {
	case <-w.Done():
		t.Fatal("watch stopped although every session delivered changes")
	default:
	}
}

func TestWatch_GivesUpWithEmptyResult(t *testing.T) {
	ms := memstore.New()
	require.NoError(t, ms.CreateProduct(context.Background(), newProduct("p1", "s1", catalog.KindReady, 1)))
	boom := errors.New("permission denied")
	ms.FailSubscribe(store.CollectionProducts, boom, boom, boom, boom)

	c := &collector[catalog.Product]{}
	w := NewSupervisor(ms, zap.NewNop(), fastPolicy()).WatchProducts(catalog.Filter{}, c.cb)

	select {
	case <-w.Done():
	case <-time.After(waitFor):
		t.Fatal("watch did not stop")
	}
	require.Equal(t, 1, c.count())
	assert.NotNil(t, c.last())
	assert.Empty(t, c.last())
	assert.Equal(t, PhaseStopped, w.State().Phase)

	w.Stop()
	w.Stop()
}

func TestWatch_StopIsIdempotentAndSilencesCallbacks(t *testing.T) {
	ms := memstore.New()
	p := fastPolicy()
	p.Debounce = 50 * time.Millisecond
	c := &collector[orders.Order]{}
	w := NewSupervisor(ms, zap.NewNop(), p).WatchOrders(orders.Filter{}, c.cb)

	require.Eventually(t, func() bool { return c.count() >= 1 }, waitFor, tick)
	require.NoError(t, ms.CreateOrder(context.Background(), &orders.Order{
		ID: "o1", ProductID: "p1", Quantity: 1, Status: orders.StatusPending,
	}))
	w.Stop()
	w.Stop()

	<-w.Done()
	seen := c.count()
	time.Sleep(3 * p.Debounce)
	assert.Equal(t, seen, c.count())
	assert.Equal(t, 0, ms.Subscribers(store.CollectionOrders))
	assert.Equal(t, PhaseStopped, w.State().Phase)
	w.Stop()
}

func TestWatchOrderStats(t *testing.T) {
	ms := memstore.New()
	ctx := context.Background()
	refunded := decimal.NewFromInt(8000)
	for _, o := range []*orders.Order{
		{ID: "o1", ProductID: "p", Quantity: 1, Status: orders.StatusDelivered, TotalPrice: decimal.NewFromInt(5000), FromStock: true},
		{ID: "o2", ProductID: "p", Quantity: 2, Status: orders.StatusPending, TotalPrice: decimal.NewFromInt(1000)},
		{ID: "o3", ProductID: "p", Quantity: 1, Status: orders.StatusCancelled, TotalPrice: decimal.NewFromInt(10000),
			RefundStatus: orders.RefundProcessed, RefundAmount: &refunded},
		{ID: "o4", ProductID: "p", Quantity: 1, Status: orders.StatusCancelled, RefundStatus: orders.RefundPending},
	} {
		require.NoError(t, ms.CreateOrder(ctx, o))
	}

	var mu sync.Mutex
	var got *OrderStats
	w := NewSupervisor(ms, zap.NewNop(), fastPolicy()).WatchOrderStats(orders.Filter{}, func(s OrderStats) {
		mu.Lock()
		got = &s
		mu.Unlock()
	})
	defer w.Stop()

	require.Eventually(t, func() bool { mu.Lock(); defer mu.Unlock(); return got != nil }, waitFor, tick)
	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, 4, got.Total)
	assert.Equal(t, 2, got.ByStatus[orders.StatusCancelled])
	assert.Equal(t, 1, got.Backlog)
	assert.Equal(t, 1, got.PendingRefunds)
	assert.Equal(t, "5000", got.DeliveredRevenue.String())
	assert.Equal(t, "8000", got.RefundedAmount.String())
}
