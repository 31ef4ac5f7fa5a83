package event

import (
	"github.com/dshills/scenekit/internal/host"
)

// SubscriptionConfig contains configuration for a subscription.
type SubscriptionConfig struct {
	// Priority determines execution order (lower values execute first).
	Priority Priority

	// Filter is an optional predicate. Events are delivered only if it
	// returns true.
	Filter FilterFunc

	// Once removes the subscription after its first delivery.
	Once bool

	// Owner binds the subscription to a host object. It is skipped while the
	// owner is dying and removed when the owner is destroyed.
	Owner host.Object

	// Name labels the handler in logs and history.
	Name string
}

// SubscriptionOption is a function that configures a subscription.
type SubscriptionOption func(*SubscriptionConfig)

// WithPriority sets the subscription priority.
func WithPriority(p Priority) SubscriptionOption {
	return func(c *SubscriptionConfig) {
		c.Priority = p
	}
}

// WithFilter sets a filter predicate.
func WithFilter(f FilterFunc) SubscriptionOption {
	return func(c *SubscriptionConfig) {
		c.Filter = f
	}
}

// WithOnce sets the subscription to cancel after the first event.
func WithOnce() SubscriptionOption {
	return func(c *SubscriptionConfig) {
		c.Once = true
	}
}

// WithOwner binds the subscription to a host object.
func WithOwner(owner host.Object) SubscriptionOption {
	return func(c *SubscriptionConfig) {
		c.Owner = owner
	}
}

// WithName labels the handler.
func WithName(name string) SubscriptionOption {
	return func(c *SubscriptionConfig) {
		c.Name = name
	}
}

// Subscription is a handle to a registered handler.
type Subscription struct {
	id      string
	typ     Type
	handler Handler
	config  SubscriptionConfig

	active bool
	fired  bool
}

// ID returns the unique subscription identifier.
func (s *Subscription) ID() string { return s.id }

// Type returns the subscribed event type.
func (s *Subscription) Type() Type { return s.typ }

// Priority returns the dispatch priority.
func (s *Subscription) Priority() Priority { return s.config.Priority }

// Once reports whether the subscription is one-time.
func (s *Subscription) Once() bool { return s.config.Once }

// Owner returns the bound host object, or nil.
func (s *Subscription) Owner() host.Object { return s.config.Owner }

// Active reports whether the subscription can still receive events.
func (s *Subscription) Active() bool { return s.active }

// describe labels the handler as "Owner(Type:Name)" or by its name or ID.
func (s *Subscription) describe() string {
	label := s.config.Name
	if label == "" {
		label = "sub-" + s.id[:8]
	}
	if s.config.Owner != nil {
		return host.Describe(s.config.Owner) + "/" + label
	}
	return label
}

func (s *Subscription) ownerLabel() string {
	if s.config.Owner == nil {
		return ""
	}
	return host.Describe(s.config.Owner)
}
