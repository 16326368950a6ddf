package event

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func newTestBus(t *testing.T, opts ...BusOption) *Bus {
	t.Helper()
	opts = append([]BusOption{WithLogger(quietLogger())}, opts...)
	bus := NewBus(context.Background(), opts...)
	t.Cleanup(bus.Close)
	return bus
}

func TestBroadcastPriorityOrder(t *testing.T) {
	bus := newTestBus(t)

	var mu sync.Mutex
	var order []string
	record := func(label string) func(context.Context, *testEvent) error {
		return func(context.Context, *testEvent) error {
			mu.Lock()
			order = append(order, label)
			mu.Unlock()
			return nil
		}
	}

	SubscribeAlways(bus, record("lowest"), WithPriority(PriorityLowest))
	SubscribeAlways(bus, record("normal-1"))
	SubscribeAlways(bus, record("highest"), WithPriority(PriorityHighest))
	SubscribeAlways(bus, record("normal-2"))
	SubscribeAlways(bus, record("high"), WithPriority(PriorityHigh))
	SubscribeAlways(bus, record("low"), WithPriority(PriorityLow))

	Broadcast(context.Background(), bus, &testEvent{name: "ordered"})

	assert.Equal(t, []string{"highest", "high", "normal-1", "normal-2", "low", "lowest"}, order)
}

func TestBroadcastMatchesEventFamily(t *testing.T) {
	bus := newTestBus(t)

	var family, joins atomic.Int32
	SubscribeAlways(bus, func(_ context.Context, ev familyEvent) error {
		assert.Equal(t, "membership", ev.Family())
		family.Add(1)
		return nil
	})
	SubscribeAlways(bus, func(context.Context, *joinEvent) error {
		joins.Add(1)
		return nil
	})

	bus.Broadcast(context.Background(), &joinEvent{member: "alice"})
	bus.Broadcast(context.Background(), &leaveEvent{member: "bob"})
	bus.Broadcast(context.Background(), &testEvent{name: "unrelated"})

	assert.Equal(t, int32(2), family.Load())
	assert.Equal(t, int32(1), joins.Load())
}

func TestCancelledEventStillReachesLaterTiers(t *testing.T) {
	bus := newTestBus(t)

	var lowSawCancelled bool
	SubscribeAlways(bus, func(_ context.Context, ev *cancellableTestEvent) error {
		ev.Cancel()
		return nil
	}, WithPriority(PriorityHighest))
	SubscribeAlways(bus, func(_ context.Context, ev *cancellableTestEvent) error {
		lowSawCancelled = ev.IsCancelled()
		return nil
	}, WithPriority(PriorityLowest))

	ev := Broadcast(context.Background(), bus, &cancellableTestEvent{name: "c"})

	assert.True(t, ev.IsCancelled())
	assert.True(t, lowSawCancelled)
}

func TestMonitorCannotChangeCancellation(t *testing.T) {
	bus := newTestBus(t)

	seen := make(chan bool, 1)
	SubscribeAlways(bus, func(_ context.Context, ev *cancellableTestEvent) error {
		ev.Cancel()
		seen <- ev.IsCancelled()
		return nil
	}, WithPriority(PriorityMonitor), WithConcurrency(Concurrent))

	ev := Broadcast(context.Background(), bus, &cancellableTestEvent{name: "observed"})

	select {
	case cancelled := <-seen:
		assert.False(t, cancelled, "monitor sees the settled decision")
	case <-time.After(testEventuallyWait):
		t.Fatal("monitor listener was not invoked")
	}
	assert.False(t, ev.IsCancelled())
}

func TestStoppedListenerIsRemoved(t *testing.T) {
	bus := newTestBus(t)

	var calls atomic.Int32
	l := Subscribe(bus, func(_ context.Context, ev *testEvent) (ListeningStatus, error) {
		calls.Add(1)
		if ev.name == "stop" {
			return Stopped, nil
		}
		return Listening, nil
	})
	require.Equal(t, 1, bus.ListenerCount())

	bus.Broadcast(context.Background(), &testEvent{name: "keep"})
	assert.True(t, l.IsActive())

	bus.Broadcast(context.Background(), &testEvent{name: "stop"})
	assert.Equal(t, StateStopped, l.State())
	assert.Equal(t, 0, bus.ListenerCount())

	bus.Broadcast(context.Background(), &testEvent{name: "after"})
	assert.Equal(t, int32(2), calls.Load())

	select {
	case <-l.Done():
	default:
		t.Fatal("Done channel not closed after Stopped")
	}
}

func TestStoppedWithErrorStillCompletes(t *testing.T) {
	bus := newTestBus(t)

	var reported atomic.Int32
	l := Subscribe(bus, func(context.Context, *testEvent) (ListeningStatus, error) {
		return Stopped, errors.New("final failure")
	}, WithErrorHandler(func(*Listener, any, error) { reported.Add(1) }))

	bus.Broadcast(context.Background(), &testEvent{})

	assert.Equal(t, int32(1), reported.Load())
	assert.False(t, l.IsActive())
}

func TestSubscribeOnceUnderConcurrentBroadcasts(t *testing.T) {
	bus := newTestBus(t)

	var calls atomic.Int32
	l := SubscribeOnce(bus, func(context.Context, *testEvent) error {
		calls.Add(1)
		time.Sleep(testHandlerDelay)
		return nil
	}, WithConcurrency(Concurrent))
	assert.Equal(t, Locked, l.Concurrency())

	var wg sync.WaitGroup
	for i := 0; i < testBroadcasters; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			bus.Broadcast(context.Background(), &testEvent{name: "once"})
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), calls.Load())
	assert.False(t, l.IsActive())
}

func TestLockedListenerIsNotReentered(t *testing.T) {
	bus := newTestBus(t)

	var active, maxActive atomic.Int32
	SubscribeAlways(bus, func(context.Context, *testEvent) error {
		n := active.Add(1)
		for {
			m := maxActive.Load()
			if n <= m || maxActive.CompareAndSwap(m, n) {
				break
			}
		}
		time.Sleep(testHandlerDelay)
		active.Add(-1)
		return nil
	})

	var wg sync.WaitGroup
	for i := 0; i < testBroadcasters; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			bus.Broadcast(context.Background(), &testEvent{})
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), maxActive.Load())
}

func TestConcurrentListenerOverlaps(t *testing.T) {
	bus := newTestBus(t)

	arrived := make(chan struct{}, 2)
	release := make(chan struct{})
	SubscribeAlways(bus, func(context.Context, *testEvent) error {
		arrived <- struct{}{}
		<-release
		return nil
	}, WithConcurrency(Concurrent))

	var wg sync.WaitGroup
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			bus.Broadcast(context.Background(), &testEvent{})
		}()
	}

	// Both invocations must be inside the handler at the same time.
	for i := 0; i < 2; i++ {
		select {
		case <-arrived:
		case <-time.After(testEventuallyWait):
			t.Fatal("concurrent listener was serialized")
		}
	}
	close(release)
	wg.Wait()
}

func TestLockedWaitHonoursContext(t *testing.T) {
	bus := newTestBus(t)

	entered := make(chan struct{})
	release := make(chan struct{})
	var calls atomic.Int32
	SubscribeAlways(bus, func(context.Context, *testEvent) error {
		if calls.Add(1) == 1 {
			close(entered)
			<-release
		}
		return nil
	})

	go bus.Broadcast(context.Background(), &testEvent{})
	<-entered

	ctx, cancel := context.WithTimeout(context.Background(), testHandlerDelay)
	defer cancel()
	bus.Broadcast(ctx, &testEvent{})

	close(release)
	assert.Eventually(t, func() bool { return calls.Load() == 1 }, testEventuallyWait, testPollInterval)
}

func TestListenerErrorsAreContained(t *testing.T) {
	bus := newTestBus(t)

	before := testutil.ToFloat64(listenerErrors.WithLabelValues(PriorityHigh.String()))

	var mu sync.Mutex
	var reported []error
	l := SubscribeAlways(bus, func(_ context.Context, ev *testEvent) error {
		if ev.name == "panic" {
			panic("boom")
		}
		return errors.New("handler failed")
	}, WithPriority(PriorityHigh), WithErrorHandler(func(_ *Listener, _ any, err error) {
		mu.Lock()
		reported = append(reported, err)
		mu.Unlock()
	}))

	var later atomic.Int32
	SubscribeAlways(bus, func(context.Context, *testEvent) error {
		later.Add(1)
		return nil
	}, WithPriority(PriorityLow))

	assert.NotPanics(t, func() {
		bus.Broadcast(context.Background(), &testEvent{name: "error"})
		bus.Broadcast(context.Background(), &testEvent{name: "panic"})
	})

	require.Len(t, reported, 2)
	assert.EqualError(t, reported[0], "handler failed")
	assert.Contains(t, reported[1].Error(), "boom")
	assert.True(t, l.IsActive())
	assert.Equal(t, int32(2), later.Load())

	after := testutil.ToFloat64(listenerErrors.WithLabelValues(PriorityHigh.String()))
	assert.Equal(t, before+2, after)
}

func TestBusErrorHandlerFallback(t *testing.T) {
	var reported atomic.Int32
	bus := newTestBus(t, WithBusErrorHandler(func(*Listener, any, error) {
		reported.Add(1)
	}))

	SubscribeAlways(bus, func(context.Context, *testEvent) error {
		return errors.New("no own handler")
	})
	bus.Broadcast(context.Background(), &testEvent{})

	assert.Equal(t, int32(1), reported.Load())
}

func TestMonitorListenersAreNotAwaited(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	bus := NewBus(context.Background(), WithLogger(quietLogger()))
	defer bus.Close()

	release := make(chan struct{})
	var monitored atomic.Int32
	SubscribeAlways(bus, func(ctx context.Context, _ *testEvent) error {
		<-release
		monitored.Add(1)
		return ctx.Err()
	}, WithPriority(PriorityMonitor), WithConcurrency(Concurrent))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		bus.Broadcast(ctx, &testEvent{})
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(testEventuallyWait):
		t.Fatal("broadcast waited for monitor listener")
	}
	cancel()
	assert.Equal(t, int32(0), monitored.Load())

	close(release)
	bus.Wait()
	assert.Equal(t, int32(1), monitored.Load())
}

func TestScopeCancellationCompletesListener(t *testing.T) {
	bus := newTestBus(t)

	scope, cancel := context.WithCancel(context.Background())
	l := SubscribeAlways(bus, func(context.Context, *testEvent) error { return nil }, WithScope(scope))
	require.True(t, l.IsActive())

	cancel()

	select {
	case <-l.Done():
	case <-time.After(testEventuallyWait):
		t.Fatal("listener not completed after scope cancellation")
	}
	assert.Equal(t, 0, bus.ListenerCount())
}

func TestBusScopeAndClose(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	scope, cancel := context.WithCancel(context.Background())
	bus := NewBus(scope, WithLogger(quietLogger()))

	a := SubscribeAlways(bus, func(context.Context, *testEvent) error { return nil })
	b := SubscribeAlways(bus, func(context.Context, *testEvent) error { return nil }, WithPriority(PriorityMonitor))
	require.Equal(t, 2, bus.ListenerCount())

	cancel()
	assert.Eventually(t, bus.IsClosed, testEventuallyWait, testPollInterval)
	<-a.Done()
	<-b.Done()
	assert.Equal(t, 0, bus.ListenerCount())

	late := SubscribeAlways(bus, func(context.Context, *testEvent) error {
		t.Error("listener on closed bus invoked")
		return nil
	})
	assert.Equal(t, StateStopped, late.State())
	bus.Broadcast(context.Background(), &testEvent{})

	bus.Close()
}

func TestCancelIsIdempotent(t *testing.T) {
	bus := newTestBus(t)

	l := SubscribeAlways(bus, func(context.Context, *testEvent) error { return nil })
	l.Cancel()
	l.Cancel()

	assert.Equal(t, StateStopped, l.State())
	assert.Equal(t, 0, bus.ListenerCount())
}

func TestSubscribeDuringBroadcast(t *testing.T) {
	bus := newTestBus(t)

	var added atomic.Int32
	SubscribeAlways(bus, func(context.Context, *testEvent) error {
		SubscribeAlways(bus, func(context.Context, *testEvent) error {
			added.Add(1)
			return nil
		})
		return nil
	}, WithConcurrency(Concurrent))

	bus.Broadcast(context.Background(), &testEvent{})
	assert.Equal(t, int32(0), added.Load())
	assert.Equal(t, 2, bus.ListenerCount())
}

func TestSubscribeBotFiltersByAccount(t *testing.T) {
	bus := newTestBus(t)

	var got []string
	l := SubscribeBotAlways(bus, testBotA, func(_ context.Context, ev *botTestEvent) error {
		got = append(got, ev.text)
		return nil
	})
	assert.Equal(t, Concurrent, l.Concurrency())

	bus.Broadcast(context.Background(), &botTestEvent{bot: testBotA, text: "a1"})
	bus.Broadcast(context.Background(), &botTestEvent{bot: testBotB, text: "b1"})
	bus.Broadcast(context.Background(), &botTestEvent{bot: testBotA, text: "a2"})

	assert.Equal(t, []string{"a1", "a2"}, got)

	var once atomic.Int32
	SubscribeBotOnce(bus, testBotB, func(context.Context, *botTestEvent) error {
		once.Add(1)
		return nil
	})
	bus.Broadcast(context.Background(), &botTestEvent{bot: testBotA})
	bus.Broadcast(context.Background(), &botTestEvent{bot: testBotB})
	bus.Broadcast(context.Background(), &botTestEvent{bot: testBotB})
	assert.Equal(t, int32(1), once.Load())
}

func TestPriorityStrings(t *testing.T) {
	assert.Equal(t, "highest", PriorityHighest.String())
	assert.Equal(t, "monitor", PriorityMonitor.String())
	assert.Equal(t, "priority(9)", Priority(9).String())
	assert.Equal(t, "locked", Locked.String())
	assert.Equal(t, "concurrent", Concurrent.String())
}
