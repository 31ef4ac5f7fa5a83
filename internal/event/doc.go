// Package event provides the scene event bus.
//
// Events are plain Go values. Their dynamic type selects the subscribers:
//
//	type PlayerDied struct{ Name string }
//
//	event.Subscribe(bus, func(ctx context.Context, e PlayerDied) error {
//		hud.ShowGameOver(e.Name)
//		return nil
//	}, event.WithOwner(hud), event.WithPriority(event.PriorityFirst))
//
//	bus.Publish(ctx, PlayerDied{Name: "hero"})
//
// # Dispatch
//
// Handlers run synchronously on the publisher's goroutine in ascending
// priority, ties in subscription order. A handler may publish other types; a
// nested publish of a type already being dispatched is skipped, and nesting
// beyond MaxPublishDepth fails with ErrPublishDepthExceeded.
//
// # Lifecycle
//
// Subscriptions bound to a host object stop receiving events as soon as the
// object is dead or queued for deletion, and are removed when the host
// reports its destruction. Dead entries are dropped from a type's list in
// bulk once they make up a third of it.
//
// # Scheduling
//
// PublishDebounced, PublishDeferred, PublishAfterDelay, PublishOnNextTick and
// PublishOnNextPhysicsTick hand publishes to the host scheduler. Sequence
// chains publishes and waits.
//
// # Diagnostics
//
// With history enabled, each publish is recorded with the outcome and timing
// of every handler. SubscriptionCounts, SlowHandlers, MostFrequent and
// Orphaned summarize it.
package event
