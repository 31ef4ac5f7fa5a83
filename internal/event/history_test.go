package event

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func historyFixture(t *testing.T, max int) *fixture {
	s := DefaultSettings()
	s.EnableHistory = true
	s.MaxHistorySize = max
	return newFixture(t, WithSettings(s))
}

func TestHistory_NewestFirstAndCapped(t *testing.T) {
	f := historyFixture(t, 3)
	for i := 0; i < 5; i++ {
		f.clock.Add(time.Second)
		require.NoError(t, f.bus.Publish(context.Background(), ping{N: i}))
	}

	h := f.bus.History()
	require.Len(t, h, 3)
	assert.True(t, h[0].Timestamp.After(h[1].Timestamp))
	assert.True(t, h[1].Timestamp.After(h[2].Timestamp))

	f.bus.SetMaxHistorySize(1)
	assert.Len(t, f.bus.History(), 1)

	f.bus.ClearHistory()
	assert.Empty(t, f.bus.History())
}

func TestHistory_DisabledRecordsNothing(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.bus.Publish(context.Background(), ping{}))
	assert.Empty(t, f.bus.History())

	f.bus.SetHistoryEnabled(true)
	require.NoError(t, f.bus.Publish(context.Background(), ping{}))
	assert.Len(t, f.bus.History(), 1)
}

func TestHistory_RecordsHandlerOutcomes(t *testing.T) {
	f := historyFixture(t, 10)
	owner := f.spawn(t, "hero")
	_, err := Subscribe(f.bus, func(context.Context, ping) error {
		f.clock.Add(2 * time.Millisecond)
		return nil
	}, WithOwner(owner), WithName("on-ping"))
	require.NoError(t, err)
	_, err = Subscribe(f.bus, func(context.Context, ping) error { panic("x") }, WithName("bad"))
	require.NoError(t, err)

	require.NoError(t, f.bus.Publish(context.Background(), ping{}))

	entries := f.bus.HistoryByType(TypeOf[ping]())
	require.Len(t, entries, 1)
	e := entries[0]
	assert.Equal(t, 2*time.Millisecond, e.ProcessingTime)
	require.Len(t, e.Handlers, 2)
	assert.Equal(t, "actor:hero/on-ping ok 2.00ms", e.Handlers[0])
	assert.True(t, strings.HasPrefix(e.Handlers[1], "bad panic"))
}

func TestAnalytics(t *testing.T) {
	f := historyFixture(t, 50)
	_, err := Subscribe(f.bus, func(context.Context, ping) error { return nil })
	require.NoError(t, err)
	_, err = Subscribe(f.bus, func(context.Context, ping) error { return nil })
	require.NoError(t, err)
	slow, err := Subscribe(f.bus, func(context.Context, pong) error {
		f.clock.Add(20 * time.Millisecond)
		return nil
	})
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		require.NoError(t, f.bus.Publish(context.Background(), ping{}))
	}
	require.NoError(t, f.bus.Publish(context.Background(), pong{}))
	require.NoError(t, f.bus.PublishAs(context.Background(), "nobody.listens", nil))

	assert.Equal(t, map[Type]int{TypeOf[ping](): 2, TypeOf[pong](): 1}, f.bus.SubscriptionCounts())

	slowEntries := f.bus.SlowHandlers(0)
	require.Len(t, slowEntries, 1)
	assert.Equal(t, TypeOf[pong](), slowEntries[0].Type)
	assert.Empty(t, f.bus.SlowHandlers(time.Second))

	top := f.bus.MostFrequent(2)
	require.Len(t, top, 2)
	assert.Equal(t, TypeCount{Type: TypeOf[ping](), Count: 3}, top[0])
	assert.Equal(t, 1, top[1].Count)

	assert.Equal(t, []Type{"nobody.listens"}, f.bus.Orphaned())
	f.bus.Unsubscribe(slow)
	assert.Equal(t, []Type{TypeOf[pong](), "nobody.listens"}, f.bus.Orphaned())
}
