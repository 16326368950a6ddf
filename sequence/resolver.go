package sequence

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// ErrTimedOut indicates the sequence id was not resolved within the wait bound.
var ErrTimedOut = errors.New("timed out awaiting sequence id")

// ErrDuplicateRandom indicates a random value is already registered.
var ErrDuplicateRandom = errors.New("random already pending")

// DefaultTimeout is used by Await when a non-positive timeout is given.
const DefaultTimeout = 3 * time.Second

// State is the resolution state of a Handle.
type State uint8

const (
	// StatePending means no server acknowledgement has arrived yet.
	StatePending State = iota
	// StateResolved means the sequence id is known.
	StateResolved
	// StateTimedOut means the wait bound elapsed before resolution.
	StateTimedOut
)

// String returns the state name.
func (s State) String() string {
	switch s {
	case StatePending:
		return "pending"
	case StateResolved:
		return "resolved"
	case StateTimedOut:
		return "timed_out"
	default:
		return fmt.Sprintf("state(%d)", uint8(s))
	}
}

// Handle is a one-shot, monotonic holder for a server-assigned sequence id.
type Handle struct {
	random uint32

	mu    sync.Mutex
	state State
	value int32
	done  chan struct{}
}

// NewHandle creates a pending handle for random without registering it.
func NewHandle(random uint32) *Handle {
	return &Handle{random: random, done: make(chan struct{})}
}

// ResolvedHandle creates a handle that is already resolved to seq.
func ResolvedHandle(random uint32, seq int32) *Handle {
	h := NewHandle(random)
	h.transition(StateResolved, seq)
	return h
}

// Random returns the client random the handle is keyed by.
func (h *Handle) Random() uint32 {
	return h.random
}

// Value returns the sequence id and the current state. The value is only
// meaningful when the state is StateResolved.
func (h *Handle) Value() (int32, State) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.value, h.state
}

// State returns the current state.
func (h *Handle) State() State {
	_, s := h.Value()
	return s
}

// Done returns a channel closed once the handle leaves StatePending.
func (h *Handle) Done() <-chan struct{} {
	return h.done
}

// transition moves the handle out of StatePending. It reports false when the
// handle already transitioned.
func (h *Handle) transition(state State, value int32) bool {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.state != StatePending {
		return false
	}
	h.state = state
	h.value = value
	close(h.done)
	return true
}

// Resolver maps client randoms to pending handles.
type Resolver struct {
	mu      sync.Mutex
	pending map[uint32]*Handle
	logger  *logrus.Logger
}

// NewResolver creates an empty resolver.
func NewResolver() *Resolver {
	return &Resolver{
		pending: make(map[uint32]*Handle),
		logger:  logrus.StandardLogger(),
	}
}

// SetLogger replaces the logger. A nil logger is ignored.
func (r *Resolver) SetLogger(logger *logrus.Logger) {
	if logger == nil {
		return
	}
	r.mu.Lock()
	r.logger = logger
	r.mu.Unlock()
}

// Register creates and tracks a pending handle for random. Registering a
// random that is still pending returns the existing handle and
// ErrDuplicateRandom.
func (r *Resolver) Register(random uint32) (*Handle, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if existing, ok := r.pending[random]; ok {
		return existing, fmt.Errorf("%w: %d", ErrDuplicateRandom, random)
	}
	h := NewHandle(random)
	r.pending[random] = h
	return h, nil
}

// Resolve completes the pending handle registered for random with seq.
// It reports whether a pending handle was found and transitioned.
func (r *Resolver) Resolve(random uint32, seq int32) bool {
	r.mu.Lock()
	h, ok := r.pending[random]
	if ok {
		delete(r.pending, random)
	}
	logger := r.logger
	r.mu.Unlock()

	if !ok {
		logger.WithFields(logrus.Fields{
			"function": "Resolve",
			"random":   random,
			"sequence": seq,
		}).Debug("No pending handle for receipt, dropping")
		return false
	}
	return h.transition(StateResolved, seq)
}

// Forget stops tracking random without resolving it. Used when the request
// carrying random was never accepted by the server.
func (r *Resolver) Forget(random uint32) {
	r.mu.Lock()
	delete(r.pending, random)
	r.mu.Unlock()
}

// Pending returns the number of tracked handles.
func (r *Resolver) Pending() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.pending)
}

// Await waits until h is resolved, the timeout elapses or ctx is done.
// On timeout the handle transitions to StateTimedOut and ErrTimedOut is
// returned. Context cancellation returns ctx.Err() and leaves the handle
// pending. Only the owner of h should call Await.
func (r *Resolver) Await(ctx context.Context, h *Handle, timeout time.Duration) (int32, error) {
	value, err := r.Wait(ctx, h, timeout)
	if errors.Is(err, ErrTimedOut) {
		h.transition(StateTimedOut, 0)
		r.Forget(h.random)
		// A receipt may have won the race with the timer.
		if v, state := h.Value(); state == StateResolved {
			return v, nil
		}
	}
	return value, err
}

// Wait is Await without side effects on h: on timeout the handle stays
// pending and its owner can still receive the resolution.
func (r *Resolver) Wait(ctx context.Context, h *Handle, timeout time.Duration) (int32, error) {
	if h == nil {
		return 0, errors.New("nil handle")
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case <-h.Done():
	case <-timer.C:
	case <-ctx.Done():
		return 0, ctx.Err()
	}

	value, state := h.Value()
	if state != StateResolved {
		return 0, fmt.Errorf("%w: random %d after %v", ErrTimedOut, h.random, timeout)
	}
	return value, nil
}
