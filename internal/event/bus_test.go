package event

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/benbjohnson/clock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/dshills/scenekit/internal/host/frame"
	"github.com/dshills/scenekit/internal/host/sim"
	"github.com/dshills/scenekit/internal/logging"
)

type ping struct{ N int }

type pong struct{}

type actor struct {
	*sim.Node
	got []int
}

func (a *actor) Handle(_ context.Context, evt any) error {
	a.got = append(a.got, evt.(ping).N)
	return nil
}

type fixture struct {
	bus   *Bus
	tree  *sim.Tree
	sched *frame.Scheduler
	clock *clock.Mock
	logs  *observer.ObservedLogs
}

func newFixture(t *testing.T, opts ...BusOption) *fixture {
	t.Helper()
	mock := clock.NewMock()
	sched := frame.New(frame.WithClock(mock))
	tree := sim.NewTree("test", sim.WithScheduler(sched))
	core, logs := observer.New(zapcore.DebugLevel)
	base := []BusOption{
		WithHost(tree.Host(sched)),
		WithClock(mock),
		WithLogger(logging.FromZap(zap.New(core))),
	}
	return &fixture{
		bus:   NewBus(append(base, opts...)...),
		tree:  tree,
		sched: sched,
		clock: mock,
		logs:  logs,
	}
}

func (f *fixture) spawn(t *testing.T, name string) *actor {
	t.Helper()
	a := &actor{Node: sim.NewNode(name)}
	require.NoError(t, f.tree.Add(a))
	return a
}

func recorder(order *[]string, label string) Handler {
	return HandlerFunc(func(context.Context, any) error {
		*order = append(*order, label)
		return nil
	})
}

func TestType_Names(t *testing.T) {
	assert.Equal(t, Type("github.com/dshills/scenekit/internal/event.ping"), TypeOf[ping]())
	assert.Equal(t, TypeOf[ping](), TypeOfValue(ping{N: 1}))
	assert.Equal(t, "event.ping", TypeOf[ping]().Short())
	assert.Equal(t, "*event.ping", TypeOf[*ping]().Short())
	assert.Equal(t, Type("int"), TypeOf[int]())
	assert.Equal(t, Type(""), TypeOfValue(nil))
}

func TestBus_PriorityOrder(t *testing.T) {
	f := newFixture(t)
	var order []string
	typ := TypeOf[ping]()

	_, err := f.bus.Subscribe(typ, recorder(&order, "A"), WithPriority(0))
	require.NoError(t, err)
	_, err = f.bus.Subscribe(typ, recorder(&order, "B"), WithPriority(10))
	require.NoError(t, err)
	_, err = f.bus.Subscribe(typ, recorder(&order, "C"), WithPriority(-5))
	require.NoError(t, err)

	require.NoError(t, f.bus.Publish(context.Background(), ping{}))
	assert.Equal(t, []string{"C", "A", "B"}, order)
}

func TestBus_EqualPrioritiesKeepSubscriptionOrder(t *testing.T) {
	f := newFixture(t)
	var order []string
	typ := TypeOf[ping]()
	for _, label := range []string{"1", "2", "3"} {
		_, err := f.bus.Subscribe(typ, recorder(&order, label), WithPriority(PriorityLast))
		require.NoError(t, err)
	}
	_, err := f.bus.Subscribe(typ, recorder(&order, "first"), WithPriority(PriorityFirst))
	require.NoError(t, err)

	require.NoError(t, f.bus.Publish(context.Background(), ping{}))
	assert.Equal(t, []string{"first", "1", "2", "3"}, order)
}

func TestBus_SubscribeOnce(t *testing.T) {
	f := newFixture(t)
	calls := 0
	_, err := SubscribeOnce(f.bus, func(context.Context, ping) error {
		calls++
		return nil
	})
	require.NoError(t, err)

	require.NoError(t, f.bus.Publish(context.Background(), ping{}))
	require.NoError(t, f.bus.Publish(context.Background(), ping{}))

	assert.Equal(t, 1, calls)
	assert.False(t, f.bus.HasSubscribers(TypeOf[ping]()))
}

func TestBus_SubscribeValidation(t *testing.T) {
	f := newFixture(t)

	_, err := f.bus.Subscribe("", HandlerFunc(func(context.Context, any) error { return nil }))
	assert.ErrorIs(t, err, ErrInvalidType)

	_, err = f.bus.Subscribe(TypeOf[ping](), nil)
	assert.ErrorIs(t, err, ErrNilHandler)

	var fn HandlerFunc
	_, err = f.bus.Subscribe(TypeOf[ping](), fn)
	assert.ErrorIs(t, err, ErrNilHandler)

	assert.ErrorIs(t, f.bus.Publish(context.Background(), nil), ErrNilEvent)
}

func TestBus_ReentrantPublishIsSkipped(t *testing.T) {
	f := newFixture(t)
	calls := 0
	var nested error
	_, err := Subscribe(f.bus, func(ctx context.Context, e ping) error {
		calls++
		nested = f.bus.Publish(ctx, ping{N: e.N + 1})
		return nil
	})
	require.NoError(t, err)

	require.NoError(t, f.bus.Publish(context.Background(), ping{}))
	assert.Equal(t, 1, calls)
	assert.NoError(t, nested)
	assert.Equal(t, uint64(1), f.bus.Stats().Skipped)

	require.NoError(t, f.bus.Publish(context.Background(), ping{}))
	assert.Equal(t, 2, calls, "guard is released after the outer publish")
}

func TestBus_NestedPublishOfOtherTypeRuns(t *testing.T) {
	f := newFixture(t)
	var order []string
	_, err := Subscribe(f.bus, func(ctx context.Context, _ ping) error {
		order = append(order, "ping")
		return f.bus.Publish(ctx, pong{})
	})
	require.NoError(t, err)
	_, err = Subscribe(f.bus, func(context.Context, pong) error {
		order = append(order, "pong")
		return nil
	})
	require.NoError(t, err)

	require.NoError(t, f.bus.Publish(context.Background(), ping{}))
	assert.Equal(t, []string{"ping", "pong"}, order)
}

func TestBus_MaxPublishDepth(t *testing.T) {
	f := newFixture(t)
	reached := 0
	var depthErr error
	for i := 0; i <= MaxPublishDepth+1; i++ {
		i := i
		_, err := f.bus.Subscribe(Type(fmt.Sprintf("chain.%d", i)), HandlerFunc(func(ctx context.Context, _ any) error {
			reached = i + 1
			err := f.bus.PublishAs(ctx, Type(fmt.Sprintf("chain.%d", i+1)), nil)
			if errors.Is(err, ErrPublishDepthExceeded) {
				depthErr = err
			}
			return err
		}))
		require.NoError(t, err)
	}

	require.NoError(t, f.bus.PublishAs(context.Background(), "chain.0", nil))
	assert.Equal(t, MaxPublishDepth, reached)
	require.ErrorIs(t, depthErr, ErrPublishDepthExceeded)
	assert.Equal(t, uint64(1), f.bus.Stats().DepthExceeded)
	assert.NotZero(t, f.logs.FilterMessageSnippet("exceeds max depth").Len())

	reached = 0
	require.NoError(t, f.bus.PublishAs(context.Background(), "chain.5", nil))
	assert.Equal(t, MaxPublishDepth+2, reached, "bus stays usable and depth restarts from zero")
}

func TestBus_Filter(t *testing.T) {
	f := newFixture(t)
	var got []int
	_, err := Subscribe(f.bus, func(_ context.Context, e ping) error {
		got = append(got, e.N)
		return nil
	}, WithFilter(FilterOf(func(e ping) bool { return e.N%2 == 0 })))
	require.NoError(t, err)

	for i := 0; i < 5; i++ {
		require.NoError(t, f.bus.Publish(context.Background(), ping{N: i}))
	}
	assert.Equal(t, []int{0, 2, 4}, got)
	assert.Equal(t, uint64(2), f.bus.Stats().Filtered)
}

func TestBus_PanickingFilterIsFilteredOutWhenProtected(t *testing.T) {
	f := newFixture(t)
	var order []string
	_, err := f.bus.Subscribe(TypeOf[ping](), recorder(&order, "bad"), WithFilter(func(any) bool { panic("nope") }))
	require.NoError(t, err)
	_, err = f.bus.Subscribe(TypeOf[ping](), recorder(&order, "good"))
	require.NoError(t, err)

	require.NoError(t, f.bus.Publish(context.Background(), ping{}))
	assert.Equal(t, []string{"good"}, order)
	assert.Equal(t, 1, f.logs.FilterLevelExact(zapcore.WarnLevel).Len())
}

func TestBus_ExceptionProtectionIsolatesFailures(t *testing.T) {
	f := newFixture(t)
	var order []string
	typ := TypeOf[ping]()
	_, err := f.bus.Subscribe(typ, HandlerFunc(func(context.Context, any) error { return errors.New("boom") }))
	require.NoError(t, err)
	_, err = f.bus.Subscribe(typ, HandlerFunc(func(context.Context, any) error { panic("kaboom") }))
	require.NoError(t, err)
	_, err = f.bus.Subscribe(typ, recorder(&order, "after"))
	require.NoError(t, err)

	require.NoError(t, f.bus.Publish(context.Background(), ping{}))
	assert.Equal(t, []string{"after"}, order)

	stats := f.bus.Stats()
	assert.Equal(t, uint64(1), stats.HandlerErrors)
	assert.Equal(t, uint64(1), stats.HandlerPanics)
	assert.Equal(t, 2, f.logs.FilterLevelExact(zapcore.ErrorLevel).Len())

	recovered := f.logs.FilterMessageSnippet("recovered panic handling").All()
	require.Len(t, recovered, 1)
	assert.Equal(t, zapcore.DebugLevel, recovered[0].Level)
	assert.Contains(t, recovered[0].ContextMap()["stack"], "goroutine")
}

func TestBus_WithoutProtectionErrorsAbort(t *testing.T) {
	f := newFixture(t)
	f.bus.SetExceptionProtection(false)
	var order []string
	typ := TypeOf[ping]()
	boom := errors.New("boom")
	sub, err := f.bus.Subscribe(typ, HandlerFunc(func(context.Context, any) error { return boom }))
	require.NoError(t, err)
	_, err = f.bus.Subscribe(typ, recorder(&order, "after"))
	require.NoError(t, err)

	err = f.bus.Publish(context.Background(), ping{})
	require.ErrorIs(t, err, boom)
	var herr *HandlerError
	require.ErrorAs(t, err, &herr)
	assert.Equal(t, sub.ID(), herr.SubscriptionID)
	assert.Equal(t, typ, herr.Type)
	assert.Empty(t, order)
}

func TestBus_WithoutProtectionPanicsPropagate(t *testing.T) {
	f := newFixture(t, WithSettings(Settings{MaxHistorySize: 10}))
	calls := 0
	_, err := f.bus.SubscribeOnce(TypeOf[ping](), HandlerFunc(func(context.Context, any) error {
		calls++
		panic("kaboom")
	}))
	require.NoError(t, err)

	assert.PanicsWithValue(t, "kaboom", func() {
		_ = f.bus.Publish(context.Background(), ping{})
	})

	require.NoError(t, f.bus.Publish(context.Background(), ping{}))
	assert.Equal(t, 1, calls, "one-time subscription is removed even when the pass panics")
}

func TestBus_Unsubscribe(t *testing.T) {
	f := newFixture(t)
	var order []string
	sub, err := f.bus.Subscribe(TypeOf[ping](), recorder(&order, "x"))
	require.NoError(t, err)

	assert.True(t, f.bus.Unsubscribe(sub))
	assert.False(t, sub.Active())
	assert.False(t, f.bus.Unsubscribe(sub))
	assert.False(t, f.bus.Unsubscribe(nil))

	require.NoError(t, f.bus.Publish(context.Background(), ping{}))
	assert.Empty(t, order)
}

func TestBus_UnsubscribeHandler(t *testing.T) {
	f := newFixture(t)
	a := f.spawn(t, "a")
	typ := TypeOf[ping]()
	_, err := f.bus.Subscribe(typ, a)
	require.NoError(t, err)
	_, err = f.bus.Subscribe(typ, a)
	require.NoError(t, err)

	assert.True(t, f.bus.UnsubscribeHandler(typ, a))
	assert.Equal(t, 1, f.bus.SubscriberCount(typ))
	assert.True(t, f.bus.UnsubscribeHandler(typ, a))
	assert.False(t, f.bus.UnsubscribeHandler(typ, a))
	assert.False(t, f.bus.UnsubscribeHandler(TypeOf[pong](), a))

	closure := HandlerFunc(func(context.Context, any) error { return nil })
	assert.False(t, f.bus.UnsubscribeHandler(typ, closure))
}

// relay forwards to another handler, so its comparability depends on what
// it wraps.
type relay struct{ next Handler }

func (r relay) Handle(ctx context.Context, evt any) error { return r.next.Handle(ctx, evt) }

func TestBus_UnsubscribeHandlerWrappingFunc(t *testing.T) {
	f := newFixture(t)
	typ := TypeOf[ping]()
	wrapped := relay{next: HandlerFunc(func(context.Context, any) error { return nil })}
	_, err := f.bus.Subscribe(typ, wrapped)
	require.NoError(t, err)

	assert.NotPanics(t, func() {
		assert.False(t, f.bus.UnsubscribeHandler(typ, wrapped))
	})
	assert.Equal(t, 1, f.bus.SubscriberCount(typ))

	a := f.spawn(t, "a")
	_, err = f.bus.Subscribe(typ, relay{next: a})
	require.NoError(t, err)
	assert.NotPanics(t, func() {
		assert.True(t, f.bus.UnsubscribeHandler(typ, relay{next: a}))
	})
	assert.Equal(t, 1, f.bus.SubscriberCount(typ))
}

func TestBus_UnsubscribeDuringDispatchSkipsLaterHandler(t *testing.T) {
	f := newFixture(t)
	var order []string
	typ := TypeOf[ping]()
	var victim *Subscription
	_, err := f.bus.Subscribe(typ, HandlerFunc(func(context.Context, any) error {
		order = append(order, "first")
		f.bus.Unsubscribe(victim)
		return nil
	}))
	require.NoError(t, err)
	victim, err = f.bus.Subscribe(typ, recorder(&order, "victim"))
	require.NoError(t, err)

	require.NoError(t, f.bus.Publish(context.Background(), ping{}))
	assert.Equal(t, []string{"first"}, order)
}

func TestBus_HandlerObjectOwnsItself(t *testing.T) {
	f := newFixture(t)
	a := f.spawn(t, "hero")
	sub, err := f.bus.Subscribe(TypeOf[ping](), a)
	require.NoError(t, err)
	assert.Same(t, a, sub.Owner())

	require.NoError(t, f.bus.Publish(context.Background(), ping{N: 7}))
	assert.Equal(t, []int{7}, a.got)

	f.tree.Free(a)
	assert.False(t, f.bus.HasSubscribers(TypeOf[ping]()))
	assert.Zero(t, f.bus.registry.Len(TypeOf[ping]()))
}

func TestBus_QueuedOwnerIsSkippedThenRemoved(t *testing.T) {
	f := newFixture(t)
	owner := f.spawn(t, "dying")
	calls := 0
	_, err := Subscribe(f.bus, func(context.Context, ping) error {
		calls++
		return nil
	}, WithOwner(owner))
	require.NoError(t, err)
	_, err = Subscribe(f.bus, func(context.Context, pong) error {
		calls++
		return nil
	}, WithOwner(owner))
	require.NoError(t, err)

	f.tree.QueueFree(owner)
	require.NoError(t, f.bus.Publish(context.Background(), ping{}))
	assert.Zero(t, calls)

	f.sched.Process()
	assert.Empty(t, f.bus.SubscriptionCounts())
	require.NoError(t, f.bus.Publish(context.Background(), pong{}))
	assert.Zero(t, calls)
}

func TestBus_ClearRemovesEverything(t *testing.T) {
	f := newFixture(t)
	_, err := Subscribe(f.bus, func(context.Context, ping) error { return nil })
	require.NoError(t, err)
	require.NoError(t, f.bus.PublishDebounced(pong{}, 0))

	f.bus.Clear()
	assert.Empty(t, f.bus.SubscriptionCounts())
	assert.False(t, f.bus.PendingDebounced(TypeOf[pong]()))
}

func TestBus_TypedHandlerMismatchIsReported(t *testing.T) {
	f := newFixture(t)
	_, err := Subscribe(f.bus, func(context.Context, ping) error { return nil })
	require.NoError(t, err)

	require.NoError(t, f.bus.PublishAs(context.Background(), TypeOf[ping](), "not a ping"))
	assert.Equal(t, uint64(1), f.bus.Stats().HandlerErrors)
	assert.NotZero(t, f.logs.FilterMessageSnippet("event type mismatch").Len())
}

func TestBus_DebugModeLogsPublishes(t *testing.T) {
	f := newFixture(t)
	f.bus.SetDebugMode(true)
	_, err := Subscribe(f.bus, func(context.Context, ping) error { return nil })
	require.NoError(t, err)

	require.NoError(t, f.bus.Publish(context.Background(), ping{}))
	assert.NotZero(t, f.logs.FilterMessageSnippet("publishing event.ping to 1 subscribers").Len())
}

func TestBus_PublishSpans(t *testing.T) {
	exp := tracetest.NewInMemoryExporter()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSyncer(exp))
	f := newFixture(t, WithTracer(tp.Tracer("test")))
	f.bus.SetExceptionProtection(false)
	_, err := Subscribe(f.bus, func(context.Context, ping) error { return errors.New("boom") })
	require.NoError(t, err)

	require.Error(t, f.bus.Publish(context.Background(), ping{}))

	spans := exp.GetSpans()
	require.Len(t, spans, 1)
	assert.Equal(t, "event.publish", spans[0].Name)
	assert.Len(t, spans[0].Events, 1)
}
