package aigate

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/atomic"
)

// ErrInvalidCapacity is returned by New when the configured capacity is not positive.
var ErrInvalidCapacity = errors.New("aigate: capacity must be positive")

// Observer is the minimal interface for recording how long an operation
// waited for admission. A prometheus Histogram satisfies it.
type Observer interface {
	Observe(float64)
}

// Gauge is the minimal interface for publishing the current in-flight count.
// A prometheus Gauge satisfies it.
type Gauge interface {
	Set(float64)
}

// Gate bounds the number of AI requests running at the same time, protecting
// the rate-limited upstream provider. An operation holds exactly one slot while
// it runs; the slot is released no matter how the operation ends (return, error
// or context cancellation), so a failing call never permanently shrinks capacity.
//
// The gate adds no retry, timeout or error-transformation semantics of its own.
// Waiters are served in the order the underlying channel delivers (FIFO-ish,
// unspecified); operations that never exceed capacity are never delayed.
//
// Construct one gate during startup and inject it into every caller that issues
// AI requests — there is deliberately no package-level shared instance.
type Gate struct {
	capacity int
	slots    chan struct{}
	inFlight atomic.Int64

	waitDuration  Observer // optional, nil when not tracking
	inFlightGauge Gauge    // optional, nil when not tracking
}

// Option mutates the gate during construction.
type Option func(*Gate)

// WithWaitObserver records the time spent waiting for a free slot, in seconds.
func WithWaitObserver(o Observer) Option {
	return func(g *Gate) { g.waitDuration = o }
}

// WithInFlightGauge publishes the in-flight count on every acquire/release.
func WithInFlightGauge(gg Gauge) Option {
	return func(g *Gate) { g.inFlightGauge = gg }
}

// New constructs a Gate admitting at most capacity concurrent operations.
// Capacity must be positive; it is immutable afterwards.
func New(capacity int, opts ...Option) (*Gate, error) {
	if capacity <= 0 {
		return nil, fmt.Errorf("%w, got %d", ErrInvalidCapacity, capacity)
	}
	g := &Gate{
		capacity: capacity,
		slots:    make(chan struct{}, capacity),
	}
	for _, o := range opts {
		o(g)
	}
	return g, nil
}

// Run waits for a free slot, invokes op and releases the slot when op returns.
// The error (or result, see the package-level Run) of op is passed through
// untouched. If ctx is cancelled while waiting, no slot is acquired and the
// context error is returned; op is never started in that case.
func (g *Gate) Run(ctx context.Context, op func(context.Context) error) error {
	if err := g.acquire(ctx); err != nil {
		return err
	}
	defer g.release()
	return op(ctx)
}

// Run is the result-carrying variant of (*Gate).Run for operations that
// produce a value. Semantics are identical: one slot per operation, released
// on any outcome, error passed through unchanged.
func Run[T any](ctx context.Context, g *Gate, op func(context.Context) (T, error)) (T, error) {
	if err := g.acquire(ctx); err != nil {
		var zero T
		return zero, err
	}
	defer g.release()
	return op(ctx)
}

// ActiveCount returns the number of operations currently admitted and not yet
// finished.
func (g *Gate) ActiveCount() int {
	return int(g.inFlight.Load())
}

// AvailableSlots returns how many more operations could be admitted right now.
func (g *Gate) AvailableSlots() int {
	return g.capacity - g.ActiveCount()
}

// Capacity returns the configured maximum number of concurrent operations.
func (g *Gate) Capacity() int {
	return g.capacity
}

func (g *Gate) acquire(ctx context.Context) error {
	if g.waitDuration != nil {
		// Fast path first so an uncontended acquire does not pay for timing.
		select {
		case g.slots <- struct{}{}:
			g.waitDuration.Observe(0)
			g.admitted()
			return nil
		default:
		}
		start := time.Now()
		select {
		case <-ctx.Done():
			return ctx.Err()
		case g.slots <- struct{}{}:
			g.waitDuration.Observe(time.Since(start).Seconds())
			g.admitted()
			return nil
		}
	}

	select {
	case <-ctx.Done():
		return ctx.Err()
	case g.slots <- struct{}{}:
		g.admitted()
		return nil
	}
}

func (g *Gate) admitted() {
	n := g.inFlight.Inc()
	if g.inFlightGauge != nil {
		g.inFlightGauge.Set(float64(n))
	}
}

func (g *Gate) release() {
	select {
	case <-g.slots:
	default:
		panic("aigate: release without matching acquire")
	}
	n := g.inFlight.Dec()
	if g.inFlightGauge != nil {
		g.inFlightGauge.Set(float64(n))
	}
}
