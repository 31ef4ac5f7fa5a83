package inject

import (
	"fmt"
	"io"
	"reflect"
	"slices"
	"time"

	"go.uber.org/multierr"

	"github.com/dshills/scenekit/internal/host"
)

// SpawnOption configures CreateAsService.
type SpawnOption func(*spawnOptions)

type spawnOptions struct {
	parent       host.Object
	transform    host.Transform
	hasTransform bool
	register     []RegisterOption
}

// WithParent attaches the new node under parent instead of the scene root.
func WithParent(parent host.Object) SpawnOption {
	return func(o *spawnOptions) {
		o.parent = parent
	}
}

// WithPosition places the new node.
func WithPosition(p host.Vec3) SpawnOption {
	return func(o *spawnOptions) {
		o.transform.Position = p
		o.hasTransform = true
	}
}

// WithRotation rotates the new node.
func WithRotation(r host.Vec3) SpawnOption {
	return func(o *spawnOptions) {
		o.transform.Rotation = r
		o.hasTransform = true
	}
}

// WithRegisterOptions passes options through to Register.
func WithRegisterOptions(opts ...RegisterOption) SpawnOption {
	return func(o *spawnOptions) {
		o.register = append(o.register, opts...)
	}
}

// CreateAsService instantiates template into the tree and registers the
// copy under name. A taken key fails before anything is instantiated.
func (c *Container) CreateAsService(template host.Object, name string, opts ...SpawnOption) (host.Object, error) {
	if c.tree == nil {
		return nil, ErrNoTree
	}
	if template == nil {
		return nil, ErrNilInstance
	}
	var o spawnOptions
	for _, opt := range opts {
		opt(&o)
	}

	t := reflect.TypeOf(template)
	if name == "" {
		name = TypeName(t)
	}
	if k := (Key{Name: name, Type: t}); c.Has(k) {
		c.log.Error("create %s: key already registered", k)
		return nil, &DuplicateKeyError{Key: k}
	}

	obj, err := c.tree.Instantiate(template)
	if err != nil {
		c.log.Warn("create %s: %v", name, err)
		return nil, fmt.Errorf("%w: %w", ErrNodeFactory, err)
	}
	if err := c.tree.AddChild(o.parent, obj); err != nil {
		c.tree.Free(obj)
		return nil, fmt.Errorf("attach %s: %w", name, err)
	}
	if o.hasTransform {
		if err := c.tree.SetTransform(obj, o.transform); err != nil {
			c.log.Warn("position %s: %v", name, err)
		}
	}
	if err := c.Register(name, obj, o.register...); err != nil {
		c.tree.Free(obj)
		return nil, err
	}
	return obj, nil
}

// Spawn is CreateAsService returning the template's own type.
func Spawn[T host.Object](c *Container, template T, name string, opts ...SpawnOption) (T, error) {
	var zero T
	obj, err := c.CreateAsService(template, name, opts...)
	if err != nil {
		return zero, err
	}
	return obj.(T), nil
}

// Delete removes the registration of instance under name. With destroy set,
// nodes are queued for freeing and owned closers closed, after delay when it
// is positive.
func (c *Container) Delete(instance any, name string, destroy bool, delay time.Duration) error {
	e, err := c.lookupEntry(instance, name)
	if err != nil {
		return err
	}
	c.remove(e)
	if !destroy {
		return nil
	}

	if delay > 0 && c.scheduler != nil {
		c.scheduler.After(delay, func() {
			if err := c.destroy(e, false); err != nil {
				c.log.Error("delayed destroy of %s: %v", e.primary(), err)
			}
		})
		return nil
	}
	return c.destroy(e, false)
}

// DeleteImmediate removes the registration and destroys the instance now.
func (c *Container) DeleteImmediate(instance any, name string) error {
	e, err := c.lookupEntry(instance, name)
	if err != nil {
		return err
	}
	c.remove(e)
	return c.destroy(e, true)
}

func (c *Container) lookupEntry(instance any, name string) (*entry, error) {
	if instance == nil {
		return nil, ErrNilInstance
	}
	if name == "" {
		name = TypeName(reflect.TypeOf(instance))
	}
	if e, ok := c.entries[Key{Name: name, Type: reflect.TypeOf(instance)}]; ok && sameInstance(e.instance, instance) {
		return e, nil
	}
	for _, e := range c.order {
		if e.primary().Name == name && sameInstance(e.instance, instance) {
			return e, nil
		}
	}
	c.log.Warn("delete %s: %T not registered", name, instance)
	return nil, fmt.Errorf("delete %s: %w", name, ErrNotRegistered)
}

// destroy frees a node or closes an owned instance.
func (c *Container) destroy(e *entry, immediate bool) error {
	if obj, ok := e.instance.(host.Object); ok {
		if c.tree == nil {
			return ErrNoTree
		}
		if immediate {
			c.tree.Free(obj)
		} else {
			c.tree.QueueFree(obj)
		}
		return nil
	}
	if closer, ok := e.instance.(io.Closer); ok {
		return closer.Close()
	}
	return nil
}

// Clear removes the registrations tagged with scope, plus persistent ones
// when includePersistent is set. An empty scope means the current scene.
// Owned instances implementing io.Closer are closed; nodes are left to the
// host. The shelved worklist is always emptied.
func (c *Container) Clear(scope string, includePersistent bool) error {
	if scope == "" {
		scope = c.currentScope()
	}
	var errs error
	removed := 0
	for _, e := range slices.Clone(c.order) {
		if e.persistent {
			if !includePersistent {
				continue
			}
		} else if !e.inScope(scope) {
			continue
		}
		c.remove(e)
		removed++
		if e.node {
			continue
		}
		if closer, ok := e.instance.(io.Closer); ok {
			errs = multierr.Append(errs, closer.Close())
		}
	}
	c.pending.clear()
	c.log.Info("cleared scope %q: %d registrations removed", scope, removed)
	return errs
}

// ClearAll removes every registration in every scope.
func (c *Container) ClearAll() error {
	var errs error
	scopes := make(map[string]struct{})
	for _, e := range c.order {
		for s := range e.scopes {
			scopes[s] = struct{}{}
		}
	}
	for s := range scopes {
		errs = multierr.Append(errs, c.Clear(s, false))
	}
	return multierr.Append(errs, c.Clear(c.currentScope(), true))
}
