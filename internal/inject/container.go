package inject

import (
	"fmt"
	"reflect"
	"slices"
	"strings"

	"github.com/dshills/scenekit/internal/host"
	"github.com/dshills/scenekit/internal/logging"
)

// DefaultScope tags registrations when the host reports no current scene.
const DefaultScope = "default"

// Settings are the container's configurable behaviors.
type Settings struct {
	// Lenient drops components that no construction pass can build, with a
	// warning, instead of failing Initialize.
	Lenient bool `toml:"lenient" yaml:"lenient" mapstructure:"lenient"`

	// DefaultScope replaces DefaultScope.
	DefaultScope string `toml:"default_scope" yaml:"default_scope" mapstructure:"default_scope"`
}

// entry is one registration, reachable through each of its keys.
type entry struct {
	keys       []Key
	instance   any
	scopes     map[string]struct{}
	persistent bool
	node       bool
	wired      bool
	component  int
}

func (e *entry) primary() Key { return e.keys[0] }

func (e *entry) inScope(scope string) bool {
	_, ok := e.scopes[scope]
	return ok
}

// Container is the injection container.
//
// Like the event bus, a Container belongs to the host loop goroutine and is
// not safe for concurrent use.
type Container struct {
	log       *logging.Logger
	tree      host.Tree
	notifier  host.DestroyNotifier
	scheduler host.Scheduler
	settings  Settings
	catalog   Catalog

	entries     map[Key]*entry
	order       []*entry
	interfaces  []reflect.Type
	excluded    map[reflect.Type]struct{}
	members     map[reflect.Type][]member
	properties  map[reflect.Type][]Property
	pending     *worklist
	watched     map[uint64]struct{}
	initialized bool
}

// Option configures a Container.
type Option func(*Container)

// WithLogger sets the logger.
func WithLogger(l *logging.Logger) Option {
	return func(c *Container) {
		c.log = l
	}
}

// WithHost wires the tree, destroy notifications and scheduler.
func WithHost(h host.Host) Option {
	return func(c *Container) {
		c.tree = h.Tree
		c.notifier = h.Notifier
		c.scheduler = h.Scheduler
	}
}

// WithCatalog sets the component and node descriptors.
func WithCatalog(cat Catalog) Option {
	return func(c *Container) {
		c.catalog = cat
	}
}

// WithSettings sets the container settings.
func WithSettings(s Settings) Option {
	return func(c *Container) {
		c.settings = s
	}
}

// WithLenientConstruction drops unbuildable components instead of failing.
func WithLenientConstruction() Option {
	return func(c *Container) {
		c.settings.Lenient = true
	}
}

// New creates a container.
func New(opts ...Option) *Container {
	c := &Container{
		log:        logging.Nop(),
		entries:    make(map[Key]*entry),
		excluded:   make(map[reflect.Type]struct{}),
		members:    make(map[reflect.Type][]member),
		properties: make(map[reflect.Type][]Property),
		pending:    newWorklist(),
		watched:    make(map[uint64]struct{}),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.log = c.log.WithComponent("injector")
	for _, t := range host.FrameworkTypes {
		c.excluded[t] = struct{}{}
	}
	c.DeclareInterfaces(c.catalog.interfaces()...)
	for _, comp := range c.catalog.Components {
		c.addProperties(comp.componentType(), comp.Properties)
	}
	for _, n := range c.catalog.Nodes {
		c.addProperties(n.Type, n.Properties)
	}
	return c
}

// DeclareInterfaces adds interface types that registrations are also keyed
// under when their instance implements them. Existing registrations are
// keyed under a newly declared interface too, and shelved instances are
// retried. Non-interfaces and host framework interfaces are ignored.
func (c *Container) DeclareInterfaces(types ...reflect.Type) {
	if c.declare(types...) {
		c.resolvePending()
	}
}

// declare records new interfaces and back-fills their keys. It reports
// whether any key was added.
func (c *Container) declare(types ...reflect.Type) bool {
	added := false
	for _, t := range types {
		if t == nil || t.Kind() != reflect.Interface {
			continue
		}
		if _, skip := c.excluded[t]; skip || slices.Contains(c.interfaces, t) {
			continue
		}
		c.interfaces = append(c.interfaces, t)
		if c.backfill(t) {
			added = true
		}
	}
	return added
}

// backfill keys every registration implementing iface under it, keeping
// the first holder when two registrations share a name.
func (c *Container) backfill(iface reflect.Type) bool {
	added := false
	for _, e := range c.order {
		if !reflect.TypeOf(e.instance).Implements(iface) {
			continue
		}
		k := Key{Name: e.primary().Name, Type: iface}
		if holder, taken := c.entries[k]; taken {
			if holder != e {
				c.log.Warn("declare %s: key held by %s, %s not keyed", k, holder.primary(), e.primary())
			}
			continue
		}
		c.entries[k] = e
		e.keys = append(e.keys, k)
		added = true
	}
	return added
}

// RegisterOption configures a single registration.
type RegisterOption func(*registerOptions)

type registerOptions struct {
	typ        reflect.Type
	as         []reflect.Type
	scopes     []string
	persistent bool
	component  int
}

// AsType registers under t instead of the instance's dynamic type.
func AsType(t reflect.Type) RegisterOption {
	return func(o *registerOptions) {
		o.typ = t
	}
}

// As adds further types to register under.
func As(types ...reflect.Type) RegisterOption {
	return func(o *registerOptions) {
		o.as = append(o.as, types...)
	}
}

// InScope tags the registration with scopes instead of the current scene.
func InScope(scopes ...string) RegisterOption {
	return func(o *registerOptions) {
		o.scopes = append(o.scopes, scopes...)
	}
}

// Persistent exempts the registration from scope clearing.
func Persistent() RegisterOption {
	return func(o *registerOptions) {
		o.persistent = true
	}
}

func fromComponent(i int) RegisterOption {
	return func(o *registerOptions) {
		o.component = i
	}
}

// Register adds instance under name. An empty name means the type's simple
// name.
//
// The instance is keyed under its registered type and every declared
// interface it implements. If any of those keys is taken nothing is
// inserted and a *DuplicateKeyError is returned.
func (c *Container) Register(name string, instance any, opts ...RegisterOption) error {
	if instance == nil {
		return ErrNilInstance
	}
	o := registerOptions{component: -1}
	for _, opt := range opts {
		opt(&o)
	}

	dyn := reflect.TypeOf(instance)
	primary := dyn
	if o.typ != nil {
		if !dyn.AssignableTo(o.typ) {
			return fmt.Errorf("register %s as %s: %w", TypeName(dyn), TypeName(o.typ), ErrTypeMismatch)
		}
		primary = o.typ
	}
	for _, t := range o.as {
		if !dyn.AssignableTo(t) {
			return fmt.Errorf("register %s as %s: %w", TypeName(dyn), TypeName(t), ErrTypeMismatch)
		}
	}
	if name == "" {
		name = TypeName(primary)
	}
	keys := c.keysFor(name, primary, dyn, o.as)
	for _, k := range keys {
		if _, taken := c.entries[k]; taken {
			c.log.Error("duplicate registration %s", k)
			return &DuplicateKeyError{Key: k}
		}
	}

	e := &entry{
		keys:       keys,
		instance:   instance,
		persistent: o.persistent,
		component:  o.component,
		scopes:     make(map[string]struct{}),
	}
	if !o.persistent {
		scopes := o.scopes
		if len(scopes) == 0 {
			scopes = []string{c.currentScope()}
		}
		for _, s := range scopes {
			e.scopes[s] = struct{}{}
		}
	}
	obj, isNode := instance.(host.Object)
	e.node = isNode

	for _, k := range keys {
		c.entries[k] = e
	}
	c.order = append(c.order, e)
	c.declare(o.as...)
	if isNode {
		c.watch(obj)
	}
	c.log.Debug("registered %s under %d keys", e.primary(), len(keys))

	if c.initialized {
		c.inject(e)
	}
	c.resolvePending()
	return nil
}

// keysFor lists the primary key first, then explicit and implemented
// interface keys.
func (c *Container) keysFor(name string, primary, dyn reflect.Type, as []reflect.Type) []Key {
	keys := []Key{{Name: name, Type: primary}}
	seen := map[reflect.Type]struct{}{primary: {}}
	add := func(t reflect.Type) {
		if _, ok := seen[t]; ok {
			return
		}
		if _, skip := c.excluded[t]; skip {
			return
		}
		seen[t] = struct{}{}
		keys = append(keys, Key{Name: name, Type: t})
	}
	for _, t := range as {
		add(t)
	}
	for _, iface := range c.interfaces {
		if dyn.Implements(iface) {
			add(iface)
		}
	}
	return keys
}

// watch purges obj's registrations when the host destroys it.
func (c *Container) watch(obj host.Object) {
	if c.notifier == nil {
		return
	}
	id := obj.ObjectID()
	if _, ok := c.watched[id]; ok {
		return
	}
	c.watched[id] = struct{}{}
	c.notifier.OnDestroy(obj, func() {
		delete(c.watched, id)
		for _, e := range slices.Clone(c.order) {
			if sameInstance(e.instance, obj) {
				c.remove(e)
				c.log.Debug("purged %s after host destruction", e.primary())
			}
		}
	})
}

func (c *Container) currentScope() string {
	if c.tree != nil {
		if s := c.tree.CurrentScope(); s != "" {
			return s
		}
	}
	if c.settings.DefaultScope != "" {
		return c.settings.DefaultScope
	}
	return DefaultScope
}

// remove deletes every key of e and its pending injection.
func (c *Container) remove(e *entry) {
	for _, k := range e.keys {
		if c.entries[k] == e {
			delete(c.entries, k)
		}
	}
	if i := slices.Index(c.order, e); i >= 0 {
		c.order = slices.Delete(c.order, i, i+1)
	}
	c.pending.remove(e.instance)
}

// Get returns the instance registered under exactly (name, t). An empty
// name means TypeName(t).
func (c *Container) Get(name string, t reflect.Type) (any, bool) {
	if name == "" {
		name = TypeName(t)
	}
	e, ok := c.entries[Key{Name: name, Type: t}]
	if !ok {
		return nil, false
	}
	return e.instance, true
}

// Get returns the T registered under name.
func Get[T any](c *Container, name string) (T, bool) {
	var zero T
	k := KeyOf[T](name)
	v, ok := c.Get(k.Name, k.Type)
	if !ok {
		return zero, false
	}
	t, ok := v.(T)
	return t, ok
}

// Has reports whether key is registered.
func (c *Container) Has(k Key) bool {
	_, ok := c.entries[k]
	return ok
}

// Keys returns every registered key sorted by name then type.
func (c *Container) Keys() []Key {
	keys := make([]Key, 0, len(c.entries))
	for k := range c.entries {
		keys = append(keys, k)
	}
	slices.SortFunc(keys, func(a, b Key) int {
		return strings.Compare(a.String(), b.String())
	})
	return keys
}

// Count returns the number of registrations, not keys.
func (c *Container) Count() int {
	return len(c.order)
}

func (c *Container) entryOf(instance any) *entry {
	for _, e := range c.order {
		if sameInstance(e.instance, instance) {
			return e
		}
	}
	return nil
}

// sameInstance compares by identity, treating values of non-comparable
// types as distinct.
func sameInstance(a, b any) bool {
	ta, tb := reflect.TypeOf(a), reflect.TypeOf(b)
	if ta != tb || ta == nil || !ta.Comparable() {
		return false
	}
	return a == b
}
