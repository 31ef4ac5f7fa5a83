package event

import (
	"context"
	"fmt"
	"reflect"
	"strings"
)

// Type identifies an event type. Go event types map to their package path
// and name; scripts and other dynamic publishers use plain names.
type Type string

// TypeOf returns the Type for T.
func TypeOf[T any]() Type {
	return typeKey(reflect.TypeFor[T]())
}

// TypeOfValue returns the Type of v's dynamic type.
func TypeOfValue(v any) Type {
	if v == nil {
		return ""
	}
	return typeKey(reflect.TypeOf(v))
}

func typeKey(t reflect.Type) Type {
	if t.Kind() == reflect.Pointer {
		return "*" + typeKey(t.Elem())
	}
	if t.Name() != "" && t.PkgPath() != "" {
		return Type(t.PkgPath() + "." + t.Name())
	}
	return Type(t.String())
}

// Short returns the type without its import path, e.g. "game.PlayerDied".
func (t Type) Short() string {
	s := string(t)
	ptr := strings.HasPrefix(s, "*")
	if i := strings.LastIndex(s, "/"); i >= 0 {
		s = s[i+1:]
		if ptr {
			s = "*" + s
		}
	}
	return s
}

// String implements fmt.Stringer.
func (t Type) String() string {
	return t.Short()
}

// Priority determines handler execution order. Lower values run first.
type Priority int32

const (
	// PriorityFirst runs before default handlers.
	PriorityFirst Priority = -100

	// PriorityNormal is the default.
	PriorityNormal Priority = 0

	// PriorityLast runs after default handlers.
	PriorityLast Priority = 100
)

// Handler is the interface for event handlers.
type Handler interface {
	// Handle processes an event.
	// The event parameter is type-erased; handlers should type-assert.
	Handle(ctx context.Context, event any) error
}

// HandlerFunc is a function adapter for Handler.
type HandlerFunc func(ctx context.Context, event any) error

// Handle implements the Handler interface.
func (f HandlerFunc) Handle(ctx context.Context, event any) error {
	return f(ctx, event)
}

// FilterFunc is a predicate for filtering events.
// Return true to allow the event, false to filter it out.
type FilterFunc func(event any) bool

// Typed adapts a typed function to a Handler.
func Typed[T any](fn func(ctx context.Context, event T) error) Handler {
	return HandlerFunc(func(ctx context.Context, event any) error {
		v, ok := event.(T)
		if !ok {
			return fmt.Errorf("%w: want %s, got %T", ErrTypeMismatch, TypeOf[T](), event)
		}
		return fn(ctx, v)
	})
}

// FilterOf adapts a typed predicate. Events of other types are rejected.
func FilterOf[T any](fn func(event T) bool) FilterFunc {
	return func(event any) bool {
		v, ok := event.(T)
		return ok && fn(v)
	}
}

// Stats counts bus activity since creation.
type Stats struct {
	Published     uint64
	Delivered     uint64
	Filtered      uint64
	Skipped       uint64
	DepthExceeded uint64
	HandlerErrors uint64
	HandlerPanics uint64
	Compactions   uint64
}
