// Package event implements a priority-ordered, concurrency-aware event bus
// with cooperative cancellation.
//
// # Priorities
//
// Listeners are grouped into tiers. Broadcasting invokes the five ranked
// tiers in order, synchronously:
//
//	PriorityHighest -> PriorityHigh -> PriorityNormal -> PriorityLow -> PriorityLowest -> PriorityMonitor
//
// Within a tier, listeners run in subscription order and each invocation
// completes before the next starts, so a slow high-priority listener delays
// every lower one. Monitor listeners run last, each in its own goroutine;
// Broadcast does not wait for them. Listeners that only observe should use
// PriorityMonitor.
//
// # Event Families
//
// Events are plain Go values, usually pointers so listeners can mutate them.
// A listener subscribed for type E receives every event whose dynamic type
// satisfies E. Subscribing with an interface type therefore observes a whole
// family of events:
//
//	event.SubscribeAlways(bus, func(ctx context.Context, e group.Event) error {
//	    log.Printf("group %d: %T", e.Group().ID(), e)
//	    return nil
//	})
//
// # Concurrency
//
// A Locked listener owns a guard that admits one invocation at a time, even
// across overlapping broadcasts. A Concurrent listener has no guard and may
// be re-entered. Locked is the default.
//
// # Cancellation
//
// Events embedding CancellableEvent can be cancelled by a listener. The bus
// keeps delivering to later tiers; the producer inspects the flag after
// Broadcast returns and decides what to do:
//
//	e := event.Broadcast(ctx, bus, &MessageSendEvent{...})
//	if e.IsCancelled() {
//	    return ErrSendCancelled
//	}
//
// The flag is sealed once the ranked tiers complete. Monitor listeners
// receive the same event value and may read the settled flag, but Cancel has
// no effect for them, so a monitor cannot change the producer's decision.
// An event is broadcast once; a sealed event cannot be cancelled again.
//
// # Listener Lifecycle
//
// A listener completes when its handler returns Stopped, when Cancel is
// called, when the context passed with WithScope ends, or when the bus is
// closed. A completed listener is never invoked again.
//
// # Errors
//
// Handler errors and panics never reach the broadcaster. They are passed to
// the listener's error handler, else the bus error handler, else logged via
// logrus. The listener stays subscribed.
package event
