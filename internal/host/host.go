// Package host defines the ports through which scenekit talks to the host
// runtime: the scene tree, object liveness, destruction notifications and the
// frame scheduler.
//
// Nothing in the event bus or the injection container depends on a concrete
// engine. The frame and sim subpackages provide headless implementations used
// by tests, the CLI demo, and embedders that drive their own loop.
package host

import (
	"reflect"
	"time"
)

// Object is a node living in the host scene tree.
type Object interface {
	// ObjectID returns an identifier unique among live objects.
	ObjectID() uint64

	// ObjectName returns the object's name in the tree.
	ObjectName() string
}

// Liveness answers whether an object may still receive calls.
type Liveness interface {
	IsAlive(obj Object) bool
	IsQueuedForDeletion(obj Object) bool
}

// DestroyNotifier runs callbacks when objects leave the tree for good.
type DestroyNotifier interface {
	// OnDestroy registers fn to run once when obj is destroyed.
	OnDestroy(obj Object, fn func())
}

// Timer is a pending one-shot scheduler callback.
type Timer interface {
	// Stop cancels the callback. It reports false if the callback already ran
	// or was stopped before.
	Stop() bool
}

// Scheduler defers work onto the host's main loop.
//
// All callbacks run on the loop goroutine. Callbacks queued while a frame is
// being processed run on a later frame.
type Scheduler interface {
	// After runs fn once d has elapsed.
	After(d time.Duration, fn func()) Timer

	// Defer runs fn at the end of the current frame.
	Defer(fn func())

	// NextTick runs fn at the start of the next idle frame.
	NextTick(fn func())

	// NextPhysicsTick runs fn on the next fixed-rate physics step.
	NextPhysicsTick(fn func())
}

// Vec3 is a position or Euler rotation in host space.
type Vec3 struct {
	X, Y, Z float64
}

// Transform places a node relative to its parent.
type Transform struct {
	Position Vec3
	Rotation Vec3
}

// Tree is the subset of scene-tree operations scenekit needs.
type Tree interface {
	// FindAllOfType returns every live object whose dynamic type is t, or
	// implements t when t is an interface.
	FindAllOfType(t reflect.Type) []Object

	// FindInGroup returns every live object carrying the group marker.
	FindInGroup(group string) []Object

	// CurrentScope names the active scene, used to tag registrations.
	CurrentScope() string

	// Instantiate duplicates a template object. The copy is not in the tree.
	Instantiate(template Object) (Object, error)

	// AddChild attaches child under parent. A nil parent means the scene
	// root.
	AddChild(parent, child Object) error

	// SetTransform positions obj.
	SetTransform(obj Object, t Transform) error

	// QueueFree marks obj for destruction at the end of the frame.
	QueueFree(obj Object)

	// Free destroys obj immediately.
	Free(obj Object)
}

// Host bundles every port. Embedders usually back all of them with one engine
// adapter.
type Host struct {
	Tree      Tree
	Liveness  Liveness
	Notifier  DestroyNotifier
	Scheduler Scheduler
}

// Describe formats an object as "Type:Name" for logs.
func Describe(obj Object) string {
	if obj == nil {
		return "<nil>"
	}
	t := reflect.TypeOf(obj)
	for t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	return t.Name() + ":" + obj.ObjectName()
}

// FrameworkTypes lists the host interfaces that are never used as injection
// keys.
var FrameworkTypes = []reflect.Type{
	reflect.TypeFor[Object](),
	reflect.TypeFor[Liveness](),
	reflect.TypeFor[DestroyNotifier](),
	reflect.TypeFor[Scheduler](),
	reflect.TypeFor[Tree](),
}
