package dispatch

import (
	"context"
	"runtime/debug"

	"github.com/benbjohnson/clock"
)

// Executor runs handlers and filters, timing them against a clock.
//
// Execute and Allow are protected: panics are recovered and reported.
// ExecuteUnprotected and AllowUnprotected let panics reach the caller.
type Executor struct {
	clock        clock.Clock
	panicHandler PanicHandler
}

// ExecutorOption configures an Executor.
type ExecutorOption func(*Executor)

// WithClock sets the clock used for durations.
func WithClock(c clock.Clock) ExecutorOption {
	return func(e *Executor) {
		e.clock = c
	}
}

// WithPanicHandler sets a callback for recovered panics.
func WithPanicHandler(h PanicHandler) ExecutorOption {
	return func(e *Executor) {
		e.panicHandler = h
	}
}

// NewExecutor creates an executor.
func NewExecutor(opts ...ExecutorOption) *Executor {
	e := &Executor{clock: clock.New()}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Execute runs handler, recovering panics.
func (e *Executor) Execute(ctx context.Context, event any, handler Handler) (result Result) {
	if err := ctx.Err(); err != nil {
		return Result{Error: err, Skipped: true}
	}

	start := e.clock.Now()
	defer func() {
		result.Duration = e.clock.Since(start)

		if r := recover(); r != nil {
			stack := debug.Stack()
			result.Success = false
			result.Panicked = true
			result.PanicValue = r
			result.PanicStack = stack

			if e.panicHandler != nil {
				func() {
					defer func() { _ = recover() }()
					e.panicHandler(event, r, stack)
				}()
			}
		}
	}()

	if err := handler.Handle(ctx, event); err != nil {
		result.Error = err
	} else {
		result.Success = true
	}
	return result
}

// ExecuteUnprotected runs handler without recovering panics.
func (e *Executor) ExecuteUnprotected(ctx context.Context, event any, handler Handler) Result {
	if err := ctx.Err(); err != nil {
		return Result{Error: err, Skipped: true}
	}

	start := e.clock.Now()
	err := handler.Handle(ctx, event)
	result := Result{Duration: e.clock.Since(start), Error: err, Success: err == nil}
	return result
}

// Allow evaluates filter against event. A panicking filter rejects the event
// and its panic value is returned.
func (e *Executor) Allow(filter func(any) bool, event any) (ok bool, panicValue any) {
	defer func() {
		if r := recover(); r != nil {
			ok = false
			panicValue = r
		}
	}()
	return filter(event), nil
}

// AllowUnprotected evaluates filter, letting panics propagate.
func (e *Executor) AllowUnprotected(filter func(any) bool, event any) bool {
	return filter(event)
}
