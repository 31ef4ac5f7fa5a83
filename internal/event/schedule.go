package event

import (
	"time"

	"github.com/dshills/scenekit/internal/host"
)

// debounced is the pending publish of one type.
type debounced struct {
	timer host.Timer
	data  any
}

// PublishDebounced publishes evt once delay has passed without another
// debounced publish of the same type. Each call restarts the wait and only
// the latest data is delivered.
func (b *Bus) PublishDebounced(evt any, delay time.Duration) error {
	if evt == nil {
		return ErrNilEvent
	}
	return b.PublishDebouncedAs(TypeOfValue(evt), evt, delay)
}

// PublishDebouncedAs is PublishDebounced with an explicit type.
func (b *Bus) PublishDebouncedAs(typ Type, data any, delay time.Duration) error {
	if typ == "" {
		return ErrInvalidType
	}
	if b.scheduler == nil {
		return ErrNoScheduler
	}
	if prev, ok := b.debounce[typ]; ok {
		prev.timer.Stop()
	}

	d := &debounced{data: data}
	d.timer = b.scheduler.After(delay, func() {
		if b.debounce[typ] != d {
			return
		}
		delete(b.debounce, typ)
		b.publishScheduled(typ, d.data)
	})
	b.debounce[typ] = d
	return nil
}

// PublishDeferred publishes evt at the end of the current frame.
func (b *Bus) PublishDeferred(evt any) error {
	return b.schedule(TypeOfValue(evt), evt, func(fn func()) { b.scheduler.Defer(fn) })
}

// PublishDeferredAs is PublishDeferred with an explicit type.
func (b *Bus) PublishDeferredAs(typ Type, data any) error {
	return b.schedule(typ, data, func(fn func()) { b.scheduler.Defer(fn) })
}

// PublishAfterDelay publishes evt once delay has elapsed.
func (b *Bus) PublishAfterDelay(evt any, delay time.Duration) error {
	return b.PublishAfterDelayAs(TypeOfValue(evt), evt, delay)
}

// PublishAfterDelayAs is PublishAfterDelay with an explicit type.
func (b *Bus) PublishAfterDelayAs(typ Type, data any, delay time.Duration) error {
	return b.schedule(typ, data, func(fn func()) { b.scheduler.After(delay, fn) })
}

// PublishOnNextTick publishes evt at the start of the next idle frame.
func (b *Bus) PublishOnNextTick(evt any) error {
	return b.schedule(TypeOfValue(evt), evt, func(fn func()) { b.scheduler.NextTick(fn) })
}

// PublishOnNextPhysicsTick publishes evt on the next physics step.
func (b *Bus) PublishOnNextPhysicsTick(evt any) error {
	return b.schedule(TypeOfValue(evt), evt, func(fn func()) { b.scheduler.NextPhysicsTick(fn) })
}

func (b *Bus) schedule(typ Type, data any, hook func(func())) error {
	if data == nil {
		return ErrNilEvent
	}
	if typ == "" {
		return ErrInvalidType
	}
	if b.scheduler == nil {
		return ErrNoScheduler
	}
	hook(func() { b.publishScheduled(typ, data) })
	return nil
}

// publishScheduled runs a publish from a scheduler callback, where there is
// no caller to return errors to.
func (b *Bus) publishScheduled(typ Type, data any) {
	if err := b.PublishAs(b.baseCtx, typ, data); err != nil {
		b.log.Error("scheduled publish of %s failed: %v", typ.Short(), err)
	}
}

// PendingDebounced reports whether a debounced publish of typ is waiting.
func (b *Bus) PendingDebounced(typ Type) bool {
	_, ok := b.debounce[typ]
	return ok
}
