package inject

import (
	"reflect"
	"slices"
)

// Pending describes an instance waiting for dependencies.
type Pending struct {
	OwnerKey string
	Instance any
	Injected []string
}

type pendingEntry struct {
	ownerKey string
	instance any
	injected map[string]struct{}
}

func (p *pendingEntry) has(member string) bool {
	_, ok := p.injected[member]
	return ok
}

// worklist holds at most one entry per instance, in shelving order.
type worklist struct {
	byInstance map[any]*pendingEntry
	order      []*pendingEntry
}

func newWorklist() *worklist {
	return &worklist{byInstance: make(map[any]*pendingEntry)}
}

// add shelves instance, merging into an existing entry.
func (w *worklist) add(ownerKey string, instance any, injected []string) *pendingEntry {
	p, ok := w.byInstance[instance]
	if !ok {
		p = &pendingEntry{ownerKey: ownerKey, instance: instance, injected: make(map[string]struct{})}
		w.byInstance[instance] = p
		w.order = append(w.order, p)
	}
	for _, m := range injected {
		p.injected[m] = struct{}{}
	}
	return p
}

func (w *worklist) get(instance any) *pendingEntry {
	if !shelvable(instance) {
		return nil
	}
	return w.byInstance[instance]
}

func (w *worklist) remove(instance any) {
	if !shelvable(instance) {
		return
	}
	p, ok := w.byInstance[instance]
	if !ok {
		return
	}
	delete(w.byInstance, instance)
	if i := slices.Index(w.order, p); i >= 0 {
		w.order = slices.Delete(w.order, i, i+1)
	}
}

func (w *worklist) len() int { return len(w.order) }

func (w *worklist) clear() {
	w.byInstance = make(map[any]*pendingEntry)
	w.order = nil
}

// shelvable reports whether instance can key the worklist. Only pointers
// have injection points, so anything else is never shelved.
func shelvable(instance any) bool {
	return instance != nil && reflect.TypeOf(instance).Kind() == reflect.Pointer
}

// inject performs field and property injection on e. On the first member
// that cannot be resolved the instance is shelved with the members injected
// so far, and the rest wait for later registrations.
func (c *Container) inject(e *entry) {
	inst := e.instance
	if !shelvable(inst) {
		e.wired = true
		return
	}
	ms := c.membersOf(reflect.TypeOf(inst))
	target := reflect.ValueOf(inst)
	p := c.pending.get(inst)

	var injected []string
	for _, m := range ms {
		if p != nil && p.has(m.name) {
			continue
		}
		dep, ok := c.entries[m.lookup]
		if !ok {
			c.pending.add(e.primary().String(), inst, injected)
			c.log.Debug("shelved %s waiting for %s", e.primary(), m.lookup)
			return
		}
		if m.set(target, reflect.ValueOf(dep.instance)) {
			injected = append(injected, m.name)
		}
	}
	e.wired = true
	c.pending.remove(inst)
}

// resolvePending re-attempts every shelved instance and drops those whose
// members are now all satisfied.
func (c *Container) resolvePending() {
	if c.pending.len() == 0 {
		return
	}
	for _, p := range slices.Clone(c.pending.order) {
		ms := c.membersOf(reflect.TypeOf(p.instance))
		target := reflect.ValueOf(p.instance)
		done := true
		for _, m := range ms {
			if p.has(m.name) {
				continue
			}
			dep, ok := c.entries[m.lookup]
			if !ok {
				done = false
				continue
			}
			if m.set(target, reflect.ValueOf(dep.instance)) {
				p.injected[m.name] = struct{}{}
			}
		}
		if done {
			c.pending.remove(p.instance)
			if e := c.entryOf(p.instance); e != nil {
				e.wired = true
			}
			c.log.Debug("resolved shelved %s", p.ownerKey)
		}
	}
}

// Pending returns a snapshot of shelved instances.
func (c *Container) Pending() []Pending {
	out := make([]Pending, 0, c.pending.len())
	for _, p := range c.pending.order {
		injected := make([]string, 0, len(p.injected))
		for m := range p.injected {
			injected = append(injected, m)
		}
		slices.Sort(injected)
		out = append(out, Pending{OwnerKey: p.ownerKey, Instance: p.instance, Injected: injected})
	}
	return out
}
