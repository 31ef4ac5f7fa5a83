package dispatch

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type handlerFunc func(ctx context.Context, event any) error

func (f handlerFunc) Handle(ctx context.Context, event any) error { return f(ctx, event) }

func TestExecutor_Success(t *testing.T) {
	mock := clock.NewMock()
	e := NewExecutor(WithClock(mock))

	res := e.Execute(context.Background(), "evt", handlerFunc(func(context.Context, any) error {
		mock.Add(5 * time.Millisecond)
		return nil
	}))

	assert.True(t, res.IsSuccess())
	assert.Equal(t, 5*time.Millisecond, res.Duration)
	assert.Equal(t, "ok", res.Outcome())
}

func TestExecutor_Error(t *testing.T) {
	e := NewExecutor()
	boom := errors.New("boom")

	res := e.Execute(context.Background(), "evt", handlerFunc(func(context.Context, any) error { return boom }))

	assert.True(t, res.IsError())
	assert.ErrorIs(t, res.Error, boom)
	assert.Equal(t, "error", res.Outcome())
}

func TestExecutor_RecoversPanic(t *testing.T) {
	var seen any
	e := NewExecutor(WithPanicHandler(func(event, v any, stack []byte) {
		seen = v
		panic("handler of panics panics too")
	}))

	res := e.Execute(context.Background(), "evt", handlerFunc(func(context.Context, any) error {
		panic("kaboom")
	}))

	assert.True(t, res.Panicked)
	assert.Equal(t, "kaboom", res.PanicValue)
	assert.NotEmpty(t, res.PanicStack)
	assert.Equal(t, "kaboom", seen)
	assert.Equal(t, "panic", res.Outcome())
}

func TestExecutor_UnprotectedPropagates(t *testing.T) {
	e := NewExecutor()
	assert.PanicsWithValue(t, "kaboom", func() {
		e.ExecuteUnprotected(context.Background(), "evt", handlerFunc(func(context.Context, any) error {
			panic("kaboom")
		}))
	})
}

func TestExecutor_SkipsCancelledContext(t *testing.T) {
	e := NewExecutor()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	called := false
	res := e.Execute(ctx, "evt", handlerFunc(func(context.Context, any) error {
		called = true
		return nil
	}))

	assert.False(t, called)
	assert.True(t, res.Skipped)
	require.ErrorIs(t, res.Error, context.Canceled)
}

func TestExecutor_Allow(t *testing.T) {
	e := NewExecutor()

	ok, pv := e.Allow(func(any) bool { return true }, 1)
	assert.True(t, ok)
	assert.Nil(t, pv)

	ok, pv = e.Allow(func(any) bool { panic("bad filter") }, 1)
	assert.False(t, ok)
	assert.Equal(t, "bad filter", pv)

	assert.Panics(t, func() { e.AllowUnprotected(func(any) bool { panic("bad") }, 1) })
}
