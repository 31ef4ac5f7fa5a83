package sim

import (
	"errors"
	"fmt"
	"reflect"

	"github.com/dshills/scenekit/internal/host"
)

var (
	// ErrNotSimObject is returned for objects that do not embed *Node.
	ErrNotSimObject = errors.New("object does not embed a sim node")

	// ErrNotDuplicable is returned by Instantiate for templates without a
	// Duplicate method.
	ErrNotDuplicable = errors.New("template cannot be duplicated")

	// ErrFreed is returned when operating on a destroyed node.
	ErrFreed = errors.New("node has been freed")
)

// Tree is a headless scene tree.
type Tree struct {
	root   *Node
	scope  string
	sched  host.Scheduler
	queued []*Node
}

// TreeOption configures a Tree.
type TreeOption func(*Tree)

// WithScheduler makes QueueFree release nodes at the end of the current frame
// instead of waiting for FlushDeletions.
func WithScheduler(s host.Scheduler) TreeOption {
	return func(t *Tree) {
		t.sched = s
	}
}

// NewTree creates a tree whose current scene is scope.
func NewTree(scope string, opts ...TreeOption) *Tree {
	root := NewNode("root")
	root.state = stateInTree
	t := &Tree{root: root, scope: scope}
	root.self = rootObject{root}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

type rootObject struct{ *Node }

// Root returns the tree's root object.
func (t *Tree) Root() host.Object { return t.root.self }

// Add attaches obj under the root.
func (t *Tree) Add(obj host.Object) error {
	return t.AddChild(nil, obj)
}

// AddChild implements host.Tree. A nil parent means the root.
func (t *Tree) AddChild(parent, child host.Object) error {
	c, err := nodeOf(child)
	if err != nil {
		return err
	}
	if c.state == stateFreed {
		return fmt.Errorf("add %s: %w", host.Describe(child), ErrFreed)
	}
	p := t.root
	if parent != nil {
		if p, err = nodeOf(parent); err != nil {
			return err
		}
		if p.state == stateFreed {
			return fmt.Errorf("add under %s: %w", host.Describe(parent), ErrFreed)
		}
	}
	c.self = child
	c.detach()
	c.parent = p
	p.children = append(p.children, c)
	if p.state == stateInTree {
		markInTree(c)
	}
	return nil
}

func markInTree(n *Node) {
	if n.state == stateDetached {
		n.state = stateInTree
	}
	for _, c := range n.children {
		markInTree(c)
	}
}

// FindAllOfType implements host.Tree. Results are in depth-first tree order.
func (t *Tree) FindAllOfType(rt reflect.Type) []host.Object {
	return t.collect(func(n *Node) bool {
		ot := reflect.TypeOf(n.self)
		if rt.Kind() == reflect.Interface {
			return ot.Implements(rt)
		}
		return ot == rt
	})
}

// FindInGroup implements host.Tree.
func (t *Tree) FindInGroup(group string) []host.Object {
	return t.collect(func(n *Node) bool { return n.InGroup(group) })
}

func (t *Tree) collect(match func(*Node) bool) []host.Object {
	var out []host.Object
	var walk func(*Node)
	walk = func(n *Node) {
		for _, c := range n.children {
			if c.state == stateInTree && match(c) {
				out = append(out, c.self)
			}
			walk(c)
		}
	}
	walk(t.root)
	return out
}

// CurrentScope implements host.Tree.
func (t *Tree) CurrentScope() string { return t.scope }

// ChangeScene frees every node under the root and switches the current scope.
func (t *Tree) ChangeScene(scope string) {
	for _, c := range append([]*Node(nil), t.root.children...) {
		t.free(c)
	}
	t.scope = scope
}

// Instantiate implements host.Tree.
func (t *Tree) Instantiate(template host.Object) (host.Object, error) {
	d, ok := template.(Duplicator)
	if !ok {
		return nil, fmt.Errorf("instantiate %s: %w", host.Describe(template), ErrNotDuplicable)
	}
	obj := d.Duplicate()
	n, err := nodeOf(obj)
	if err != nil {
		return nil, err
	}
	n.self = obj
	return obj, nil
}

// SetTransform implements host.Tree.
func (t *Tree) SetTransform(obj host.Object, tr host.Transform) error {
	n, err := nodeOf(obj)
	if err != nil {
		return err
	}
	n.transform = tr
	return nil
}

// QueueFree implements host.Tree.
func (t *Tree) QueueFree(obj host.Object) {
	n, err := nodeOf(obj)
	if err != nil || n.state == stateFreed || n.state == stateQueued {
		return
	}
	n.state = stateQueued
	t.queued = append(t.queued, n)
	if t.sched != nil && len(t.queued) == 1 {
		t.sched.Defer(t.FlushDeletions)
	}
}

// FlushDeletions frees every node queued with QueueFree.
func (t *Tree) FlushDeletions() {
	queued := t.queued
	t.queued = nil
	for _, n := range queued {
		t.free(n)
	}
}

// Free implements host.Tree.
func (t *Tree) Free(obj host.Object) {
	n, err := nodeOf(obj)
	if err != nil {
		return
	}
	t.free(n)
}

// free destroys n and its subtree, children first, running destroy hooks.
func (t *Tree) free(n *Node) {
	if n.state == stateFreed {
		return
	}
	for _, c := range append([]*Node(nil), n.children...) {
		t.free(c)
	}
	n.detach()
	n.state = stateFreed
	hooks := n.hooks
	n.hooks = nil
	for _, fn := range hooks {
		fn()
	}
}

// IsAlive implements host.Liveness.
func (t *Tree) IsAlive(obj host.Object) bool {
	n, err := nodeOf(obj)
	return err == nil && n.state != stateFreed
}

// IsQueuedForDeletion implements host.Liveness.
func (t *Tree) IsQueuedForDeletion(obj host.Object) bool {
	n, err := nodeOf(obj)
	return err == nil && n.state == stateQueued
}

// OnDestroy implements host.DestroyNotifier. Hooks on an already freed
// object run immediately.
func (t *Tree) OnDestroy(obj host.Object, fn func()) {
	n, err := nodeOf(obj)
	if err != nil {
		return
	}
	if n.state == stateFreed {
		fn()
		return
	}
	n.hooks = append(n.hooks, fn)
}

// Host returns the tree's ports bundled with sched.
func (t *Tree) Host(sched host.Scheduler) host.Host {
	return host.Host{
		Tree:      t,
		Liveness:  t,
		Notifier:  t,
		Scheduler: sched,
	}
}

func nodeOf(obj host.Object) (*Node, error) {
	if obj == nil {
		return nil, ErrNotSimObject
	}
	so, ok := obj.(simObject)
	if !ok || so.SimNode() == nil {
		return nil, fmt.Errorf("%s: %w", host.Describe(obj), ErrNotSimObject)
	}
	return so.SimNode(), nil
}

var (
	_ host.Tree            = (*Tree)(nil)
	_ host.Liveness        = (*Tree)(nil)
	_ host.DestroyNotifier = (*Tree)(nil)
)
