package event

import (
	"context"
	"fmt"
	"sync"

	"github.com/sirupsen/logrus"
)

// Bus is a per-scope registry of listeners that drives broadcasts.
type Bus struct {
	mu     sync.RWMutex
	tiers  [tierCount][]*Listener
	nextID uint64
	closed bool

	monitors  sync.WaitGroup
	stopScope func() bool
	closeOnce sync.Once

	logger  *logrus.Logger
	onError ErrorHandler
}

// BusOption configures a Bus.
type BusOption func(*Bus)

// WithLogger sets the logger used for listener failures. A nil logger is ignored.
func WithLogger(logger *logrus.Logger) BusOption {
	return func(b *Bus) {
		if logger != nil {
			b.logger = logger
		}
	}
}

// WithBusErrorHandler sets the handler used for listeners without their
// own error handler.
func WithBusErrorHandler(h ErrorHandler) BusOption {
	return func(b *Bus) {
		b.onError = h
	}
}

// NewBus creates a bus bound to ctx. When ctx ends the bus is closed and
// every listener completes. A nil ctx means the bus lives until Close.
func NewBus(ctx context.Context, opts ...BusOption) *Bus {
	b := &Bus{
		logger: logrus.StandardLogger(),
	}
	for _, opt := range opts {
		opt(b)
	}
	if ctx != nil {
		b.stopScope = context.AfterFunc(ctx, b.shutdown)
	}
	return b
}

// Close completes every listener and waits for running monitor invocations.
// Close must not be called from inside a monitor handler.
func (b *Bus) Close() {
	if b.stopScope != nil {
		b.stopScope()
	}
	b.shutdown()
}

func (b *Bus) shutdown() {
	b.closeOnce.Do(func() {
		b.mu.Lock()
		b.closed = true
		var all []*Listener
		for p := range b.tiers {
			all = append(all, b.tiers[p]...)
			b.tiers[p] = nil
		}
		b.mu.Unlock()

		for _, l := range all {
			l.complete()
		}
		b.monitors.Wait()

		b.logger.WithFields(logrus.Fields{
			"function":  "Close",
			"listeners": len(all),
		}).Debug("Event bus closed")
	})
}

// IsClosed reports whether the bus was closed.
func (b *Bus) IsClosed() bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.closed
}

// ListenerCount returns the number of active listeners.
func (b *Bus) ListenerCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()

	n := 0
	for _, tier := range b.tiers {
		n += len(tier)
	}
	return n
}

// Wait blocks until monitor invocations started so far have finished.
func (b *Bus) Wait() {
	b.monitors.Wait()
}

// add registers l. Tier slices are copied on write so broadcasts can iterate
// a snapshot without holding the lock.
func (b *Bus) add(l *Listener) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return false
	}
	b.nextID++
	l.id = b.nextID

	tier := b.tiers[l.priority]
	next := make([]*Listener, len(tier), len(tier)+1)
	copy(next, tier)
	b.tiers[l.priority] = append(next, l)
	return true
}

func (b *Bus) remove(l *Listener) {
	b.mu.Lock()
	defer b.mu.Unlock()

	tier := b.tiers[l.priority]
	for i, existing := range tier {
		if existing == l {
			next := make([]*Listener, 0, len(tier)-1)
			next = append(next, tier[:i]...)
			next = append(next, tier[i+1:]...)
			b.tiers[l.priority] = next
			return
		}
	}
}

func (b *Bus) snapshot() [tierCount][]*Listener {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.tiers
}

// Broadcast delivers ev to every matching listener and returns ev. Ranked
// tiers run synchronously in priority then subscription order; monitor
// listeners are started in goroutines and not awaited. Listener failures
// are contained.
func (b *Bus) Broadcast(ctx context.Context, ev any) any {
	if ev == nil {
		return nil
	}
	if ctx == nil {
		ctx = context.Background()
	}

	tiers := b.snapshot()
	for p := 0; p < rankedTiers; p++ {
		for _, l := range tiers[p] {
			if l.accepts(ev) {
				b.dispatch(ctx, l, ev)
			}
		}
	}

	// Cancellation is decided by the ranked tiers alone.
	if s, ok := ev.(sealer); ok {
		s.seal()
	}

	monitorCtx := context.WithoutCancel(ctx)
	for _, l := range tiers[PriorityMonitor] {
		if !l.accepts(ev) {
			continue
		}
		if !b.startMonitor() {
			break
		}
		go func(l *Listener) {
			defer b.monitors.Done()
			b.dispatch(monitorCtx, l, ev)
		}(l)
	}
	return ev
}

// startMonitor accounts for a monitor goroutine unless the bus is closing.
func (b *Bus) startMonitor() bool {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		return false
	}
	b.monitors.Add(1)
	return true
}

// dispatch runs one listener for ev, honouring its concurrency kind and state.
func (b *Bus) dispatch(ctx context.Context, l *Listener, ev any) {
	if !l.IsActive() {
		return
	}

	if l.concurrency == Locked {
		if err := l.guard.Acquire(ctx, 1); err != nil {
			b.logger.WithFields(logrus.Fields{
				"function": "dispatch",
				"listener": l.id,
				"event":    fmt.Sprintf("%T", ev),
				"error":    err.Error(),
			}).Debug("Broadcast context ended while waiting for listener guard")
			return
		}
		defer l.guard.Release(1)

		// The listener may have stopped while we waited.
		if !l.IsActive() {
			return
		}
	}

	status, err := l.run(ctx, ev)
	if err != nil {
		b.reportError(l, ev, err)
	}
	if status == Stopped {
		l.complete()
	}
}

func (b *Bus) reportError(l *Listener, ev any, err error) {
	listenerErrors.WithLabelValues(l.priority.String()).Inc()

	handler := l.onError
	if handler == nil {
		handler = b.onError
	}
	if handler != nil {
		if b.safeHandle(handler, l, ev, err) {
			return
		}
	}

	logger := b.logger
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	logger.WithFields(logrus.Fields{
		"function": "dispatch",
		"listener": l.id,
		"priority": l.priority.String(),
		"event":    fmt.Sprintf("%T", ev),
		"error":    err.Error(),
	}).Error("Event listener failed")
}

// safeHandle runs an error handler, reporting false if it panicked.
func (b *Bus) safeHandle(h ErrorHandler, l *Listener, ev any, err error) (ok bool) {
	defer func() {
		if r := recover(); r != nil {
			ok = false
		}
	}()
	h(l, ev, err)
	return true
}
