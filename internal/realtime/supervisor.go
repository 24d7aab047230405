// Package realtime keeps live, debounced views of the product and order
// collections on top of the store's change feeds. Each watch runs its own
// state machine: Connecting -> Live, Backoff(n) on failure, Degraded after a
// permanent switch to an unfiltered query, Stopped when unsubscribed or out of
// retries.
package realtime

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/ariefcatur/go-marketplace-core/internal/apperr"
	"github.com/ariefcatur/go-marketplace-core/internal/store"
	"go.uber.org/zap"
)

type Phase string

const (
	PhaseConnecting Phase = "connecting"
	PhaseLive       Phase = "live"
	PhaseBackoff    Phase = "backoff"
	PhaseDegraded   Phase = "degraded"
	PhaseStopped    Phase = "stopped"
)

type State struct {
	Phase Phase
	// Attempt is the retry number while in PhaseBackoff.
	Attempt int
}

func (s State) String() string {
	if s.Phase == PhaseBackoff {
		return fmt.Sprintf("%s(%d)", s.Phase, s.Attempt)
	}
	return string(s.Phase)
}

type Policy struct {
	// WindowLimit bounds the number of documents per subscription.
	WindowLimit int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
	// MaxRetries caps the backoff attempts that follow a failed subscription.
	// The first subscribe is not one of them, so a watch that never connects
	// calls Subscribe MaxRetries+1 times before it gives up.
	MaxRetries int
	// Debounce coalesces batches arriving within this window.
	Debounce time.Duration
	// HealthyAfter is how long a feed must stay open before its failure no
	// longer counts against MaxRetries. Zero disables the timer; a change
	// delivered after the initial snapshot always resets the count.
	HealthyAfter time.Duration
}

func DefaultPolicy() Policy {
	return Policy{
		WindowLimit:  100,
		BaseDelay:    500 * time.Millisecond,
		MaxDelay:     8 * time.Second,
		MaxRetries:   3,
		Debounce:     time.Second,
		HealthyAfter: 30 * time.Second,
	}
}

// Delay returns the wait before retry n (1-based): base doubled per retry,
// capped at MaxDelay.
func (p Policy) Delay(n int) time.Duration {
	d := p.BaseDelay
	for i := 1; i < n; i++ {
		d *= 2
		if d >= p.MaxDelay {
			return p.MaxDelay
		}
	}
	if d > p.MaxDelay {
		return p.MaxDelay
	}
	return d
}

var errFeedEnded = errors.New("feed ended")

type Supervisor struct {
	Store  store.Subscriber
	Log    *zap.Logger
	Policy Policy
}

func NewSupervisor(s store.Subscriber, log *zap.Logger, p Policy) *Supervisor {
	return &Supervisor{Store: s, Log: log, Policy: p}
}

// Watch is the cancellation handle of one live view.
type Watch struct {
	cancel context.CancelFunc
	done   chan struct{}

	mu       sync.Mutex
	state    State
	degraded bool
}

// Stop cancels the watch. It is safe to call any number of times, from any
// goroutine, including after the watch stopped on its own.
func (w *Watch) Stop() { w.cancel() }

// Done is closed once the watch goroutine has exited.
func (w *Watch) Done() <-chan struct{} { return w.done }

func (w *Watch) State() State {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.state
}

func (w *Watch) Degraded() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.degraded
}

func (w *Watch) setState(s State) {
	w.mu.Lock()
	w.state = s
	w.mu.Unlock()
}

type watchDef[T any] struct {
	collection string
	filters    []store.Filter
	parse      func(log *zap.Logger, doc store.RawDocument) (T, error)
	match      func(T) bool
	emit       func([]T)
}

func start[T any](s *Supervisor, sp watchDef[T]) *Watch {
	ctx, cancel := context.WithCancel(context.Background())
	w := &Watch{cancel: cancel, done: make(chan struct{}), state: State{Phase: PhaseConnecting}}
	r := &runner[T]{
		sup:   s,
		w:     w,
		def:   sp,
		log:   s.Log.With(zap.String("collection", sp.collection)),
		debo:  newDebouncer(s.Policy.Debounce, sp.emit),
		query: store.Query{Collection: sp.collection, Filters: sp.filters, OrderBy: "updated_at", Limit: s.Policy.WindowLimit},
	}
	go r.run(ctx)
	return w
}

type runner[T any] struct {
	sup   *Supervisor
	w     *Watch
	def   watchDef[T]
	log   *zap.Logger
	debo  *debouncer[T]
	query store.Query
}

func (r *runner[T]) liveState() State {
	if r.w.Degraded() {
		return State{Phase: PhaseDegraded}
	}
	return State{Phase: PhaseLive}
}

func (r *runner[T]) run(ctx context.Context) {
	defer close(r.w.done)
	defer r.w.setState(State{Phase: PhaseStopped})
	defer r.debo.stop()

	retries := 0
	for {
		if ctx.Err() != nil {
			return
		}
		if !r.w.Degraded() {
			r.w.setState(State{Phase: PhaseConnecting})
		}

		healthy := false
		feed, err := r.sup.Store.Subscribe(ctx, r.query)
		if err == nil {
			r.w.setState(r.liveState())
			openedAt := time.Now()
			var batches int
			batches, err = r.consume(ctx, feed)
			if ctx.Err() != nil {
				return
			}
			// Every subscribe starts with a snapshot, so only a later change
			// or a long enough session proves the feed works.
			healthy = batches > 1 ||
				(r.sup.Policy.HealthyAfter > 0 && time.Since(openedAt) >= r.sup.Policy.HealthyAfter)
		}
		if healthy {
			retries = 0
		}

		if errors.Is(err, apperr.ErrQueryTooComplex) && len(r.query.Filters) > 0 {
			r.log.Warn("store cannot serve filtered query, falling back to client-side filtering",
				zap.Error(err))
			r.query = r.query.Unfiltered()
			r.w.mu.Lock()
			r.w.degraded = true
			r.w.state = State{Phase: PhaseDegraded}
			r.w.mu.Unlock()
			continue
		}

		retries++
		if retries > r.sup.Policy.MaxRetries {
			r.log.Error("subscription failed permanently, publishing empty view",
				zap.Int("retries", retries-1),
				zap.Error(apperr.Sync(r.def.collection, err)))
			r.debo.cancel()
			r.def.emit([]T{})
			return
		}

		delay := r.sup.Policy.Delay(retries)
		r.w.setState(State{Phase: PhaseBackoff, Attempt: retries})
		r.log.Warn("subscription error, backing off",
			zap.Int("attempt", retries),
			zap.Duration("delay", delay),
			zap.Error(err))

		t := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			t.Stop()
			return
		case <-t.C:
		}
	}
}

// consume drains feed until it ends or ctx is cancelled. It reports how many
// batches arrived, and the feed's terminal error.
func (r *runner[T]) consume(ctx context.Context, feed store.Feed) (int, error) {
	defer feed.Close()
	batches := 0
	for {
		select {
		case <-ctx.Done():
			return batches, nil
		case b, ok := <-feed.Batches():
			if !ok {
				if err := feed.Err(); err != nil {
					return batches, err
				}
				return batches, errFeedEnded
			}
			batches++
			r.debo.push(r.parseBatch(b))
		}
	}
}

// parseBatch decodes every document it can. Malformed or partial documents
// are logged and skipped; the rest of the batch still goes out.
func (r *runner[T]) parseBatch(b store.ChangeBatch) []T {
	out := make([]T, 0, len(b.Docs))
	for _, doc := range b.Docs {
		v, err := r.def.parse(r.log, doc)
		if err != nil {
			r.log.Warn("skipping unreadable document", zap.String("doc_id", doc.ID), zap.Error(err))
			continue
		}
		if r.def.match != nil && !r.def.match(v) {
			continue
		}
		out = append(out, v)
	}
	return out
}

// debouncer delivers the latest pushed value at most once per window.
type debouncer[T any] struct {
	window time.Duration
	emit   func([]T)

	mu      sync.Mutex
	timer   *time.Timer
	pending []T
	stopped bool
}

func newDebouncer[T any](window time.Duration, emit func([]T)) *debouncer[T] {
	return &debouncer[T]{window: window, emit: emit}
}

func (d *debouncer[T]) push(items []T) {
	d.mu.Lock()
	if d.stopped {
		d.mu.Unlock()
		return
	}
	if d.window <= 0 {
		d.mu.Unlock()
		d.emit(items)
		return
	}
	d.pending = items
	if d.timer == nil {
		d.timer = time.AfterFunc(d.window, d.fire)
	}
	d.mu.Unlock()
}

func (d *debouncer[T]) fire() {
	d.mu.Lock()
	if d.stopped || d.timer == nil {
		d.mu.Unlock()
		return
	}
	items := d.pending
	d.pending = nil
	d.timer = nil
	d.mu.Unlock()
	d.emit(items)
}

// cancel drops any pending delivery but keeps the debouncer usable.
func (d *debouncer[T]) cancel() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
	}
	d.pending = nil
}

func (d *debouncer[T]) stop() {
	d.cancel()
	d.mu.Lock()
	d.stopped = true
	d.mu.Unlock()
}
