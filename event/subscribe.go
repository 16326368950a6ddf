package event

import (
	"context"
	"reflect"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/semaphore"
)

// Handler handles an event and decides whether to keep listening.
type Handler[E any] func(ctx context.Context, ev E) (ListeningStatus, error)

// subscribeConfig collects subscription options.
type subscribeConfig struct {
	priority    Priority
	concurrency ConcurrencyKind
	scope       context.Context
	onError     ErrorHandler
}

// SubscribeOption configures a subscription.
type SubscribeOption func(*subscribeConfig)

// WithPriority sets the dispatch tier.
func WithPriority(p Priority) SubscribeOption {
	return func(c *subscribeConfig) {
		if p <= PriorityMonitor {
			c.priority = p
		}
	}
}

// WithConcurrency sets the concurrency kind.
func WithConcurrency(k ConcurrencyKind) SubscribeOption {
	return func(c *subscribeConfig) {
		c.concurrency = k
	}
}

// WithScope completes the listener when ctx ends.
func WithScope(ctx context.Context) SubscribeOption {
	return func(c *subscribeConfig) {
		c.scope = ctx
	}
}

// WithErrorHandler sets the handler for this listener's failures.
func WithErrorHandler(h ErrorHandler) SubscribeOption {
	return func(c *subscribeConfig) {
		c.onError = h
	}
}

func newSubscribeConfig(opts []SubscribeOption) subscribeConfig {
	cfg := subscribeConfig{
		priority:    PriorityNormal,
		concurrency: Locked,
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	return cfg
}

// Subscribe registers handler for every broadcast event assignable to E.
// The listener stays active until handler returns Stopped, it is cancelled,
// its scope ends or the bus closes. Defaults are PriorityNormal and Locked.
func Subscribe[E any](bus *Bus, handler Handler[E], opts ...SubscribeOption) *Listener {
	return subscribe(bus, nil, handler, newSubscribeConfig(opts))
}

// SubscribeAlways registers handler and keeps listening regardless of what
// it returns.
func SubscribeAlways[E any](bus *Bus, handler func(ctx context.Context, ev E) error, opts ...SubscribeOption) *Listener {
	return subscribe(bus, nil, always(handler), newSubscribeConfig(opts))
}

// SubscribeOnce registers handler for a single event. The listener is always
// Locked so concurrent broadcasts cannot invoke it twice.
func SubscribeOnce[E any](bus *Bus, handler func(ctx context.Context, ev E) error, opts ...SubscribeOption) *Listener {
	cfg := newSubscribeConfig(opts)
	cfg.concurrency = Locked
	return subscribe(bus, nil, once(handler), cfg)
}

// SubscribeBot is Subscribe restricted to events of the given bot.
func SubscribeBot[E BotEvent](bus *Bus, botID int64, handler Handler[E], opts ...SubscribeOption) *Listener {
	return subscribe(bus, botFilter[E](botID), handler, newSubscribeConfig(opts))
}

// SubscribeBotAlways is SubscribeAlways restricted to events of the given bot.
// It defaults to Concurrent.
func SubscribeBotAlways[E BotEvent](bus *Bus, botID int64, handler func(ctx context.Context, ev E) error, opts ...SubscribeOption) *Listener {
	opts = append([]SubscribeOption{WithConcurrency(Concurrent)}, opts...)
	return subscribe(bus, botFilter[E](botID), always(handler), newSubscribeConfig(opts))
}

// SubscribeBotOnce is SubscribeOnce restricted to events of the given bot.
func SubscribeBotOnce[E BotEvent](bus *Bus, botID int64, handler func(ctx context.Context, ev E) error, opts ...SubscribeOption) *Listener {
	cfg := newSubscribeConfig(opts)
	cfg.concurrency = Locked
	return subscribe(bus, botFilter[E](botID), once(handler), cfg)
}

// Broadcast is the typed form of Bus.Broadcast.
func Broadcast[E any](ctx context.Context, bus *Bus, ev E) E {
	bus.Broadcast(ctx, ev)
	return ev
}

func always[E any](handler func(ctx context.Context, ev E) error) Handler[E] {
	return func(ctx context.Context, ev E) (ListeningStatus, error) {
		return Listening, handler(ctx, ev)
	}
}

func once[E any](handler func(ctx context.Context, ev E) error) Handler[E] {
	return func(ctx context.Context, ev E) (ListeningStatus, error) {
		return Stopped, handler(ctx, ev)
	}
}

func botFilter[E BotEvent](botID int64) func(E) bool {
	return func(ev E) bool {
		return ev.BotID() == botID
	}
}

func subscribe[E any](bus *Bus, filter func(E) bool, handler Handler[E], cfg subscribeConfig) *Listener {
	l := &Listener{
		bus:         bus,
		eventType:   reflect.TypeFor[E]().String(),
		priority:    cfg.priority,
		concurrency: cfg.concurrency,
		onError:     cfg.onError,
		guard:       semaphore.NewWeighted(1),
		done:        make(chan struct{}),
	}
	l.accepts = func(ev any) bool {
		typed, ok := ev.(E)
		if !ok {
			return false
		}
		return filter == nil || filter(typed)
	}
	l.invoke = func(ctx context.Context, ev any) (ListeningStatus, error) {
		return handler(ctx, ev.(E))
	}

	if !bus.add(l) {
		bus.logger.WithFields(logrus.Fields{
			"function": "Subscribe",
			"event":    l.eventType,
		}).Warn("Subscribing on a closed event bus, listener completed immediately")
		l.state.Store(uint32(StateStopped))
		close(l.done)
		return l
	}

	l.bindScope(cfg.scope)
	return l
}
