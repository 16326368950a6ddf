package event

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"golang.org/x/sync/semaphore"
)

// ErrorHandler receives errors and recovered panics from listener handlers.
type ErrorHandler func(l *Listener, ev any, err error)

// Listener is one subscription on a Bus.
type Listener struct {
	id          uint64
	bus         *Bus
	eventType   string
	priority    Priority
	concurrency ConcurrencyKind
	onError     ErrorHandler

	accepts func(ev any) bool
	invoke  func(ctx context.Context, ev any) (ListeningStatus, error)

	guard *semaphore.Weighted
	state atomic.Uint32

	done       chan struct{}
	completeMu sync.Mutex
	stopScope  func() bool
}

// ID returns the listener id, unique within its bus.
func (l *Listener) ID() uint64 { return l.id }

// Priority returns the dispatch tier.
func (l *Listener) Priority() Priority { return l.priority }

// Concurrency returns the concurrency kind.
func (l *Listener) Concurrency() ConcurrencyKind { return l.concurrency }

// EventType returns the name of the subscribed event type.
func (l *Listener) EventType() string { return l.eventType }

// State returns the lifecycle state.
func (l *Listener) State() ListenerState {
	return ListenerState(l.state.Load())
}

// IsActive reports whether the listener still receives events.
func (l *Listener) IsActive() bool {
	return l.State() == StateActive
}

// Done returns a channel closed when the listener completes.
func (l *Listener) Done() <-chan struct{} {
	return l.done
}

// Cancel completes the listener and removes it from its bus. An invocation
// already running is not interrupted. Cancel is idempotent.
func (l *Listener) Cancel() {
	l.complete()
}

// String implements fmt.Stringer.
func (l *Listener) String() string {
	return fmt.Sprintf("Listener(%d, %s, %s, %s)", l.id, l.eventType, l.priority, l.concurrency)
}

// complete moves the listener to StateStopped exactly once.
func (l *Listener) complete() bool {
	if !l.state.CompareAndSwap(uint32(StateActive), uint32(StateStopped)) {
		return false
	}

	l.completeMu.Lock()
	stop := l.stopScope
	l.stopScope = nil
	l.completeMu.Unlock()
	if stop != nil {
		stop()
	}

	if l.bus != nil {
		l.bus.remove(l)
	}
	close(l.done)
	return true
}

// bindScope completes the listener when ctx ends.
func (l *Listener) bindScope(ctx context.Context) {
	if ctx == nil {
		return
	}
	stop := context.AfterFunc(ctx, func() { l.complete() })

	l.completeMu.Lock()
	if l.IsActive() {
		l.stopScope = stop
		l.completeMu.Unlock()
		return
	}
	l.completeMu.Unlock()
	stop()
}

// run invokes the handler, converting panics into errors.
func (l *Listener) run(ctx context.Context, ev any) (status ListeningStatus, err error) {
	defer func() {
		if r := recover(); r != nil {
			status = Listening
			err = fmt.Errorf("listener %d panicked: %v", l.id, r)
		}
	}()
	return l.invoke(ctx, ev)
}
