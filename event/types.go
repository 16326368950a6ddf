package event

import (
	"fmt"
	"sync/atomic"
)

// Priority is the dispatch tier of a listener.
type Priority uint8

const (
	// PriorityHighest runs first.
	PriorityHighest Priority = iota
	// PriorityHigh runs after PriorityHighest.
	PriorityHigh
	// PriorityNormal is the default tier.
	PriorityNormal
	// PriorityLow runs after PriorityNormal.
	PriorityLow
	// PriorityLowest is the last ranked tier.
	PriorityLowest
	// PriorityMonitor listeners run concurrently after all ranked tiers and
	// are not awaited.
	PriorityMonitor
)

// rankedTiers is the number of synchronous tiers.
const rankedTiers = int(PriorityMonitor)

// tierCount includes the monitor tier.
const tierCount = rankedTiers + 1

// String returns the priority name.
func (p Priority) String() string {
	switch p {
	case PriorityHighest:
		return "highest"
	case PriorityHigh:
		return "high"
	case PriorityNormal:
		return "normal"
	case PriorityLow:
		return "low"
	case PriorityLowest:
		return "lowest"
	case PriorityMonitor:
		return "monitor"
	default:
		return fmt.Sprintf("priority(%d)", uint8(p))
	}
}

// ConcurrencyKind controls whether a listener may be re-entered.
type ConcurrencyKind uint8

const (
	// Locked admits one invocation of the listener at a time.
	Locked ConcurrencyKind = iota
	// Concurrent allows overlapping broadcasts to invoke the listener together.
	Concurrent
)

// String returns the concurrency kind name.
func (k ConcurrencyKind) String() string {
	switch k {
	case Locked:
		return "locked"
	case Concurrent:
		return "concurrent"
	default:
		return fmt.Sprintf("concurrency(%d)", uint8(k))
	}
}

// ListeningStatus is returned by a handler to keep or end its subscription.
type ListeningStatus uint8

const (
	// Listening keeps the listener subscribed.
	Listening ListeningStatus = iota
	// Stopped completes the listener.
	Stopped
)

// ListenerState is the lifecycle state of a listener.
type ListenerState uint32

const (
	// StateActive listeners receive events.
	StateActive ListenerState = iota
	// StateStopped listeners are completed and never invoked again.
	StateStopped
)

// String returns the state name.
func (s ListenerState) String() string {
	if s == StateActive {
		return "active"
	}
	return "stopped"
}

// Cancellable is implemented by events that listeners may cancel.
type Cancellable interface {
	Cancel()
	IsCancelled() bool
}

// CancellableEvent is embedded by events to implement Cancellable.
type CancellableEvent struct {
	cancelled atomic.Bool
	sealed    atomic.Bool
}

// Cancel marks the event as cancelled. It has no effect once the ranked
// tiers of a broadcast have completed.
func (e *CancellableEvent) Cancel() {
	if e.sealed.Load() {
		return
	}
	e.cancelled.Store(true)
}

func (e *CancellableEvent) seal() {
	e.sealed.Store(true)
}

// sealer is implemented by events embedding CancellableEvent.
type sealer interface {
	seal()
}

// IsCancelled reports whether a listener cancelled the event.
func (e *CancellableEvent) IsCancelled() bool {
	return e.cancelled.Load()
}

// BotEvent is implemented by events that belong to one client account.
type BotEvent interface {
	BotID() int64
}
