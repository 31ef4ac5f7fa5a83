package event

import (
	"slices"
	"sort"
)

// Invalid subscriptions are compacted out of a list once they make up more
// than a third of it or number more than compactAbsolute.
const compactAbsolute = 5

// Registry holds subscriptions per event type, each list kept in ascending
// priority with insertion order preserved among equal priorities.
//
// Dead-owner subscriptions are invalidated lazily during dispatch and only
// physically removed when compaction triggers.
type Registry struct {
	subs        map[Type][]*Subscription
	byID        map[string]*Subscription
	compactions uint64
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		subs: make(map[Type][]*Subscription),
		byID: make(map[string]*Subscription),
	}
}

// Add inserts sub and re-sorts its type's list.
func (r *Registry) Add(sub *Subscription) {
	subs := append(r.subs[sub.typ], sub)
	sort.SliceStable(subs, func(i, j int) bool {
		return subs[i].config.Priority < subs[j].config.Priority
	})
	r.subs[sub.typ] = subs
	r.byID[sub.id] = sub
	sub.active = true
}

// Remove deletes sub. It reports false if sub was not registered.
func (r *Registry) Remove(sub *Subscription) bool {
	if _, ok := r.byID[sub.id]; !ok {
		return false
	}
	delete(r.byID, sub.id)
	sub.active = false

	subs := r.subs[sub.typ]
	if i := slices.Index(subs, sub); i >= 0 {
		r.subs[sub.typ] = slices.Delete(subs, i, i+1)
	}
	return true
}

// Find returns the first active subscription of typ matching pred.
func (r *Registry) Find(typ Type, pred func(*Subscription) bool) (*Subscription, bool) {
	for _, sub := range r.subs[typ] {
		if sub.active && pred(sub) {
			return sub, true
		}
	}
	return nil, false
}

// RemoveOwner deletes every subscription bound to the owner ID across all
// types and returns how many were removed.
func (r *Registry) RemoveOwner(ownerID uint64) int {
	removed := 0
	for typ, subs := range r.subs {
		kept := subs[:0]
		for _, sub := range subs {
			if sub.config.Owner != nil && sub.config.Owner.ObjectID() == ownerID {
				sub.active = false
				delete(r.byID, sub.id)
				removed++
				continue
			}
			kept = append(kept, sub)
		}
		clear(subs[len(kept):])
		r.subs[typ] = kept
	}
	return removed
}

// Prepare invalidates subscriptions rejected by valid, compacts the list when
// enough are invalid, and returns a snapshot of the active ones.
func (r *Registry) Prepare(typ Type, valid func(*Subscription) bool) []*Subscription {
	subs := r.subs[typ]
	if len(subs) == 0 {
		return nil
	}

	invalid := 0
	for _, sub := range subs {
		if sub.active && !valid(sub) {
			sub.active = false
		}
		if !sub.active {
			invalid++
		}
	}

	if invalid > 0 && (invalid*3 > len(subs) || invalid > compactAbsolute) {
		subs = r.compact(typ)
	}

	snapshot := make([]*Subscription, 0, len(subs))
	for _, sub := range subs {
		if sub.active {
			snapshot = append(snapshot, sub)
		}
	}
	return snapshot
}

func (r *Registry) compact(typ Type) []*Subscription {
	subs := r.subs[typ]
	kept := make([]*Subscription, 0, len(subs))
	for _, sub := range subs {
		if sub.active {
			kept = append(kept, sub)
			continue
		}
		delete(r.byID, sub.id)
	}
	r.subs[typ] = kept
	r.compactions++
	return kept
}

// Len returns the physical list length for typ, including invalidated
// entries not yet compacted.
func (r *Registry) Len(typ Type) int {
	return len(r.subs[typ])
}

// Count returns the number of active subscriptions for typ.
func (r *Registry) Count(typ Type) int {
	n := 0
	for _, sub := range r.subs[typ] {
		if sub.active {
			n++
		}
	}
	return n
}

// Types returns every type that has a list, active or not.
func (r *Registry) Types() []Type {
	types := make([]Type, 0, len(r.subs))
	for typ := range r.subs {
		types = append(types, typ)
	}
	slices.Sort(types)
	return types
}

// Compactions returns how many times a list was compacted.
func (r *Registry) Compactions() uint64 {
	return r.compactions
}

// Clear removes every subscription.
func (r *Registry) Clear() {
	for _, sub := range r.byID {
		sub.active = false
	}
	r.subs = make(map[Type][]*Subscription)
	r.byID = make(map[string]*Subscription)
}
