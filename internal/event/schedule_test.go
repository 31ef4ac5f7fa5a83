package event

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func collectPings(t *testing.T, f *fixture) *[]int {
	t.Helper()
	var got []int
	_, err := Subscribe(f.bus, func(_ context.Context, e ping) error {
		got = append(got, e.N)
		return nil
	})
	require.NoError(t, err)
	return &got
}

func TestBus_PublishDebouncedKeepsLatest(t *testing.T) {
	f := newFixture(t)
	got := collectPings(t, f)

	require.NoError(t, f.bus.PublishDebounced(ping{N: 1}, 100*time.Millisecond))
	f.clock.Add(50 * time.Millisecond)
	f.sched.Process()
	require.NoError(t, f.bus.PublishDebounced(ping{N: 2}, 100*time.Millisecond))

	f.clock.Add(70 * time.Millisecond)
	f.sched.Process()
	assert.Empty(t, *got, "first timer was cancelled")
	assert.True(t, f.bus.PendingDebounced(TypeOf[ping]()))

	f.clock.Add(30 * time.Millisecond)
	f.sched.Process()
	assert.Equal(t, []int{2}, *got)
	assert.False(t, f.bus.PendingDebounced(TypeOf[ping]()))

	f.clock.Add(time.Second)
	f.sched.Process()
	assert.Equal(t, []int{2}, *got)
}

func TestBus_PublishDebouncedTypesAreIndependent(t *testing.T) {
	f := newFixture(t)
	got := collectPings(t, f)
	pongs := 0
	_, err := Subscribe(f.bus, func(context.Context, pong) error {
		pongs++
		return nil
	})
	require.NoError(t, err)

	require.NoError(t, f.bus.PublishDebounced(ping{N: 1}, 10*time.Millisecond))
	require.NoError(t, f.bus.PublishDebounced(pong{}, 10*time.Millisecond))
	f.clock.Add(10 * time.Millisecond)
	f.sched.Process()

	assert.Equal(t, []int{1}, *got)
	assert.Equal(t, 1, pongs)
}

func TestBus_ScheduledPublishHooks(t *testing.T) {
	f := newFixture(t)
	got := collectPings(t, f)

	require.NoError(t, f.bus.PublishAfterDelay(ping{N: 1}, time.Second))
	require.NoError(t, f.bus.PublishOnNextTick(ping{N: 2}))
	require.NoError(t, f.bus.PublishDeferred(ping{N: 3}))
	require.NoError(t, f.bus.PublishOnNextPhysicsTick(ping{N: 4}))
	assert.Empty(t, *got)

	f.sched.Process()
	assert.Equal(t, []int{2, 3}, *got)

	f.sched.PhysicsProcess()
	assert.Equal(t, []int{2, 3, 4}, *got)

	f.clock.Add(time.Second)
	f.sched.Process()
	assert.Equal(t, []int{2, 3, 4, 1}, *got)
}

func TestBus_DeferredPublishRunsAfterSynchronous(t *testing.T) {
	f := newFixture(t)
	var order []string
	_, err := f.bus.Subscribe(TypeOf[ping](), recorder(&order, "A"))
	require.NoError(t, err)
	_, err = f.bus.Subscribe(TypeOf[pong](), recorder(&order, "B"))
	require.NoError(t, err)

	require.NoError(t, f.bus.PublishDeferred(ping{N: 1}))
	require.NoError(t, f.bus.Publish(context.Background(), pong{}))
	assert.Equal(t, []string{"B"}, order)

	f.sched.Process()
	assert.Equal(t, []string{"B", "A"}, order)
}

func TestBus_ScheduledPublishNeedsScheduler(t *testing.T) {
	bus := NewBus()
	assert.ErrorIs(t, bus.PublishDeferred(ping{}), ErrNoScheduler)
	assert.ErrorIs(t, bus.PublishDebounced(ping{}, time.Second), ErrNoScheduler)
	assert.ErrorIs(t, bus.PublishOnNextTick(nil), ErrNilEvent)
	assert.ErrorIs(t, bus.Sequence().Wait(time.Second).Then(ping{}).Start(), ErrNoScheduler)
}

func TestSequence_StartSchedulesByCumulativeDelay(t *testing.T) {
	f := newFixture(t)
	got := collectPings(t, f)

	require.NoError(t, f.bus.Sequence().
		Then(ping{N: 1}).
		Wait(time.Second).
		Then(ping{N: 2}).
		Wait(2*time.Second).
		Then(ping{N: 3}).
		Start())
	assert.Equal(t, []int{1}, *got, "leading publish is synchronous")

	f.clock.Add(time.Second)
	f.sched.Process()
	assert.Equal(t, []int{1, 2}, *got)

	f.clock.Add(time.Second)
	f.sched.Process()
	assert.Equal(t, []int{1, 2}, *got)

	f.clock.Add(time.Second)
	f.sched.Process()
	assert.Equal(t, []int{1, 2, 3}, *got)
}

func TestSequence_RunChainsWaitsAfterPublishes(t *testing.T) {
	f := newFixture(t)
	got := collectPings(t, f)
	done := false

	require.NoError(t, f.bus.Sequence().
		Wait(time.Second).
		Then(ping{N: 1}).
		Then(ping{N: 2}).
		Wait(time.Second).
		Then(ping{N: 3}).
		Run(func() { done = true }))
	assert.Empty(t, *got)

	f.clock.Add(time.Second)
	f.sched.Process()
	assert.Equal(t, []int{1, 2}, *got)
	assert.False(t, done)

	f.clock.Add(time.Second)
	f.sched.Process()
	assert.Equal(t, []int{1, 2, 3}, *got)
	assert.True(t, done)
}

func TestSequence_InvalidStep(t *testing.T) {
	f := newFixture(t)
	assert.ErrorIs(t, f.bus.Sequence().Then(nil).Start(), ErrNilEvent)
	assert.ErrorIs(t, f.bus.Sequence().ThenAs("", 1).Run(nil), ErrInvalidType)
	assert.Equal(t, 3, f.bus.Sequence().Then(ping{}).Wait(0).Wait(time.Second).Then(ping{}).Len(), "zero waits are dropped")
}
