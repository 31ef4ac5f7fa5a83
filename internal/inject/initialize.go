package inject

import (
	"context"
	"fmt"
	"reflect"
	"slices"
)

// Initialize registers the host nodes selected by the catalog, constructs
// catalog components in dependency order, then injects every instance not
// yet wired. Persistent registrations are injected in a second pass after
// the scene-scoped ones. It may be called again after a scene change; nodes
// and components already registered are left alone.
func (c *Container) Initialize(ctx context.Context) error {
	if err := c.registerNodes(); err != nil {
		return err
	}
	if err := c.construct(ctx); err != nil {
		return err
	}
	c.initialized = true

	order := slices.Clone(c.order)
	for _, persistent := range []bool{false, true} {
		for _, e := range order {
			if e.wired || e.persistent != persistent {
				continue
			}
			c.inject(e)
		}
	}
	c.log.Info("initialized: %d registrations, %d pending", len(c.order), c.pending.len())
	return nil
}

// registerNodes registers every host node matched by a binding.
func (c *Container) registerNodes() error {
	if len(c.catalog.Nodes) == 0 {
		return nil
	}
	if c.tree == nil {
		return ErrNoTree
	}
	for _, b := range c.catalog.Nodes {
		var found []any
		switch {
		case b.Type != nil && b.Group == "":
			for _, obj := range c.tree.FindAllOfType(b.Type) {
				found = append(found, obj)
			}
		default:
			for _, obj := range c.tree.FindInGroup(b.Group) {
				if b.Type == nil || reflect.TypeOf(obj).AssignableTo(b.Type) {
					found = append(found, obj)
				}
			}
		}

		for _, obj := range found {
			if c.entryOf(obj) != nil {
				continue
			}
			name := ResolveName(b.Naming, b.Name, b.NameField, b.Type, obj)
			opts := []RegisterOption{As(b.As...)}
			if b.Type != nil {
				opts = append(opts, AsType(b.Type))
			}
			if b.Persistent {
				opts = append(opts, Persistent())
			}
			if err := c.Register(name, obj, opts...); err != nil {
				return fmt.Errorf("register node: %w", err)
			}
		}
	}
	return nil
}

// construct builds catalog components in passes. Each pass builds every
// component whose constructor dependencies are registered; it stops when a
// pass makes no progress.
func (c *Container) construct(ctx context.Context) error {
	var remaining []int
	for i := range c.catalog.Components {
		if !c.built(i) {
			remaining = append(remaining, i)
		}
	}

	for pass := 1; len(remaining) > 0; pass++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		var next []int
		var missing []Key
		for _, i := range remaining {
			comp := c.catalog.Components[i]
			inst, miss, err := c.build(comp)
			if err != nil {
				return fmt.Errorf("construct %s: %w", componentName(comp), err)
			}
			if inst == nil {
				next = append(next, i)
				missing = append(missing, miss...)
				continue
			}
			t := comp.componentType()
			name := ResolveName(comp.Naming, comp.Name, comp.NameField, t, inst)
			opts := []RegisterOption{fromComponent(i), As(comp.As...), InScope(comp.Scopes...)}
			if t != nil {
				opts = append(opts, AsType(t))
			}
			if comp.Persistent {
				opts = append(opts, Persistent())
			}
			if err := c.Register(name, inst, opts...); err != nil {
				return err
			}
		}

		if len(next) == len(remaining) {
			uerr := &UnresolvableError{Missing: dedupeKeys(missing)}
			for _, i := range next {
				uerr.Components = append(uerr.Components, componentName(c.catalog.Components[i]))
			}
			if c.settings.Lenient {
				c.log.Warn("dropping %v", uerr)
				return nil
			}
			return uerr
		}
		c.log.Debug("construction pass %d built %d components", pass, len(remaining)-len(next))
		remaining = next
	}
	return nil
}

func (c *Container) built(component int) bool {
	for _, e := range c.order {
		if e.component == component {
			return true
		}
	}
	return false
}

// build tries constructors with parameters in declared order, then the
// parameterless ones. It returns nil and the missing keys when none can be
// satisfied yet.
func (c *Container) build(comp Component) (any, []Key, error) {
	if len(comp.Constructors) == 0 {
		t := comp.componentType()
		if t == nil {
			return nil, nil, fmt.Errorf("%w: no type or constructor", ErrBadConstructor)
		}
		if t.Kind() == reflect.Pointer {
			return reflect.New(t.Elem()).Interface(), nil, nil
		}
		return reflect.New(t).Elem().Interface(), nil, nil
	}

	ctors := slices.Clone(comp.Constructors)
	slices.SortStableFunc(ctors, func(a, b Constructor) int {
		switch {
		case len(a.Params) > 0 && len(b.Params) == 0:
			return -1
		case len(a.Params) == 0 && len(b.Params) > 0:
			return 1
		}
		return 0
	})

	var missing []Key
	for _, ctor := range ctors {
		if ctor.err != nil {
			return nil, nil, ctor.err
		}
		args := make([]any, len(ctor.Params))
		ok := true
		for i, p := range ctor.Params {
			e, found := c.entries[p.key()]
			if !found {
				missing = append(missing, p.key())
				ok = false
				break
			}
			args[i] = e.instance
		}
		if !ok {
			continue
		}
		inst, err := ctor.Call(args)
		if err != nil {
			return nil, nil, err
		}
		if inst == nil {
			return nil, nil, fmt.Errorf("%w: constructor returned nil", ErrBadConstructor)
		}
		return inst, nil, nil
	}
	return nil, missing, nil
}

func componentName(comp Component) string {
	if t := comp.componentType(); t != nil {
		return TypeName(t)
	}
	return comp.Name
}

func dedupeKeys(keys []Key) []Key {
	var out []Key
	for _, k := range keys {
		if !slices.Contains(out, k) {
			out = append(out, k)
		}
	}
	return out
}
