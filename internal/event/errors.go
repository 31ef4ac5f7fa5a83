package event

import "errors"

// Sentinel errors for the event bus.
var (
	// ErrPublishDepthExceeded is returned when nested publishing goes deeper
	// than MaxPublishDepth.
	ErrPublishDepthExceeded = errors.New("maximum publish depth exceeded")

	// ErrInvalidType is returned for an empty event type.
	ErrInvalidType = errors.New("invalid event type")

	// ErrNilEvent is returned by Publish for a nil event.
	ErrNilEvent = errors.New("event cannot be nil")

	// ErrNilHandler is returned when a nil handler is provided.
	ErrNilHandler = errors.New("handler cannot be nil")

	// ErrHandlerPanic is returned when a handler panics.
	ErrHandlerPanic = errors.New("handler panicked")

	// ErrTypeMismatch is returned by typed handlers given the wrong payload.
	ErrTypeMismatch = errors.New("event type mismatch")

	// ErrNoScheduler is returned by scheduled publishing without a scheduler.
	ErrNoScheduler = errors.New("bus has no scheduler")
)

// HandlerError wraps an error from a handler with additional context.
type HandlerError struct {
	// SubscriptionID is the ID of the subscription whose handler failed.
	SubscriptionID string

	// Type is the event type being dispatched.
	Type Type

	// Owner describes the subscription's owner, if any.
	Owner string

	// Err is the underlying error.
	Err error
}

// Error implements the error interface.
func (e *HandlerError) Error() string {
	msg := "handler error for subscription " + e.SubscriptionID + " on " + e.Type.Short()
	if e.Owner != "" {
		msg += " (owner " + e.Owner + ")"
	}
	return msg + ": " + e.Err.Error()
}

// Unwrap returns the underlying error.
func (e *HandlerError) Unwrap() error {
	return e.Err
}

// PanicError wraps a recovered panic value as an error.
type PanicError struct {
	SubscriptionID string
	Type           Type
	Value          any
	Stack          string
}

// Error implements the error interface.
func (e *PanicError) Error() string {
	return "handler panic for subscription " + e.SubscriptionID + " on " + e.Type.Short()
}

// Is allows errors.Is to match PanicError with ErrHandlerPanic.
func (e *PanicError) Is(target error) bool {
	return target == ErrHandlerPanic
}
