package event

import (
	"context"
	"fmt"
	"reflect"
	"strconv"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"

	"github.com/dshills/scenekit/internal/event/dispatch"
	"github.com/dshills/scenekit/internal/host"
	"github.com/dshills/scenekit/internal/logging"
)

// MaxPublishDepth bounds how deeply publishes may nest inside handlers.
const MaxPublishDepth = 10

// DefaultMaxHistorySize is the default number of history entries kept.
const DefaultMaxHistorySize = 100

// Settings are the runtime toggles of a Bus.
type Settings struct {
	// DebugMode logs every publish and subscription change.
	DebugMode bool `toml:"debug_mode" yaml:"debug_mode" mapstructure:"debug_mode"`

	// EnableHistory records a HistoryEntry per publish.
	EnableHistory bool `toml:"enable_history" yaml:"enable_history" mapstructure:"enable_history"`

	// MaxHistorySize caps the history.
	MaxHistorySize int `toml:"max_history_size" yaml:"max_history_size" mapstructure:"max_history_size"`

	// ExceptionProtection isolates handler errors and panics. When off, the
	// first failing handler aborts the dispatch.
	ExceptionProtection bool `toml:"exception_protection" yaml:"exception_protection" mapstructure:"exception_protection"`

	// SlowHandlerMS is the default SlowHandlers threshold in milliseconds.
	SlowHandlerMS int `toml:"slow_handler_ms" yaml:"slow_handler_ms" mapstructure:"slow_handler_ms"`
}

// DefaultSettings returns protection on, history off.
func DefaultSettings() Settings {
	return Settings{
		MaxHistorySize:      DefaultMaxHistorySize,
		ExceptionProtection: true,
		SlowHandlerMS:       int(DefaultSlowThreshold / time.Millisecond),
	}
}

func (s Settings) slowThreshold() time.Duration {
	if s.SlowHandlerMS <= 0 {
		return DefaultSlowThreshold
	}
	return time.Duration(s.SlowHandlerMS) * time.Millisecond
}

// Bus is a typed publish/subscribe hub bound to the host object lifecycle.
//
// A Bus is not safe for concurrent use. Every call, and every scheduled
// callback, must happen on the host loop goroutine; other goroutines reach it
// through the scheduler's Post.
type Bus struct {
	registry *Registry
	exec     *dispatch.Executor
	log      *logging.Logger

	liveness  host.Liveness
	notifier  host.DestroyNotifier
	scheduler host.Scheduler
	clock     clock.Clock
	tracer    trace.Tracer
	baseCtx   context.Context

	settings   Settings
	publishing map[Type]struct{}
	depth      int
	debounce   map[Type]*debounced
	owners     map[uint64]struct{}
	history    *History
	stats      Stats
}

// BusOption configures a Bus.
type BusOption func(*Bus)

// WithLogger sets the logger.
func WithLogger(l *logging.Logger) BusOption {
	return func(b *Bus) {
		b.log = l
	}
}

// WithHost wires liveness checks, destroy notifications and scheduling from
// the host ports. Nil ports are ignored.
func WithHost(h host.Host) BusOption {
	return func(b *Bus) {
		if h.Liveness != nil {
			b.liveness = h.Liveness
		}
		if h.Notifier != nil {
			b.notifier = h.Notifier
		}
		if h.Scheduler != nil {
			b.scheduler = h.Scheduler
		}
	}
}

// WithScheduler sets the scheduler used by deferred publishing.
func WithScheduler(s host.Scheduler) BusOption {
	return func(b *Bus) {
		b.scheduler = s
	}
}

// WithClock sets the clock used for timestamps and handler timing.
func WithClock(c clock.Clock) BusOption {
	return func(b *Bus) {
		b.clock = c
	}
}

// WithTracer records a span per publish.
func WithTracer(t trace.Tracer) BusOption {
	return func(b *Bus) {
		b.tracer = t
	}
}

// WithSettings sets the initial toggles.
func WithSettings(s Settings) BusOption {
	return func(b *Bus) {
		b.settings = s
	}
}

// WithContext sets the context used by scheduled publishes.
func WithContext(ctx context.Context) BusOption {
	return func(b *Bus) {
		b.baseCtx = ctx
	}
}

// NewBus creates a bus.
func NewBus(opts ...BusOption) *Bus {
	b := &Bus{
		registry:   NewRegistry(),
		log:        logging.Nop(),
		clock:      clock.New(),
		tracer:     noop.NewTracerProvider().Tracer("noop"),
		baseCtx:    context.Background(),
		settings:   DefaultSettings(),
		publishing: make(map[Type]struct{}),
		debounce:   make(map[Type]*debounced),
		owners:     make(map[uint64]struct{}),
	}
	for _, opt := range opts {
		opt(b)
	}
	b.log = b.log.WithComponent("event-bus")
	b.exec = dispatch.NewExecutor(
		dispatch.WithClock(b.clock),
		dispatch.WithPanicHandler(func(evt, v any, stack []byte) {
			b.log.WithField("stack", string(stack)).Debug("recovered panic handling %T: %v", evt, v)
		}),
	)
	b.history = newHistory(b.settings.MaxHistorySize)
	return b
}

// Subscribe registers handler for typ.
//
// A handler that is itself a host.Object is owned by itself unless WithOwner
// says otherwise.
func (b *Bus) Subscribe(typ Type, handler Handler, opts ...SubscriptionOption) (*Subscription, error) {
	if typ == "" {
		return nil, ErrInvalidType
	}
	if handler == nil || isNilFunc(handler) {
		return nil, ErrNilHandler
	}

	sub := &Subscription{id: uuid.NewString(), typ: typ, handler: handler}
	if obj, ok := handler.(host.Object); ok {
		sub.config.Owner = obj
	}
	for _, opt := range opts {
		opt(&sub.config)
	}

	b.registry.Add(sub)
	b.watchOwner(sub.config.Owner)

	if b.settings.DebugMode {
		b.log.Debug("subscribed %s to %s (priority %d, once %t)", sub.describe(), typ.Short(), sub.config.Priority, sub.config.Once)
	}
	return sub, nil
}

// SubscribeOnce registers a handler removed after its first delivery.
func (b *Bus) SubscribeOnce(typ Type, handler Handler, opts ...SubscriptionOption) (*Subscription, error) {
	return b.Subscribe(typ, handler, append(opts, WithOnce())...)
}

// Subscribe registers a typed handler for events of type T.
func Subscribe[T any](b *Bus, fn func(ctx context.Context, event T) error, opts ...SubscriptionOption) (*Subscription, error) {
	if fn == nil {
		return nil, ErrNilHandler
	}
	return b.Subscribe(TypeOf[T](), Typed(fn), opts...)
}

// SubscribeOnce registers a one-time typed handler for events of type T.
func SubscribeOnce[T any](b *Bus, fn func(ctx context.Context, event T) error, opts ...SubscriptionOption) (*Subscription, error) {
	return Subscribe(b, fn, append(opts, WithOnce())...)
}

// watchOwner hooks owner destruction once per owner.
func (b *Bus) watchOwner(owner host.Object) {
	if owner == nil || b.notifier == nil {
		return
	}
	id := owner.ObjectID()
	if _, ok := b.owners[id]; ok {
		return
	}
	b.owners[id] = struct{}{}
	label := host.Describe(owner)
	b.notifier.OnDestroy(owner, func() {
		delete(b.owners, id)
		n := b.registry.RemoveOwner(id)
		if b.settings.DebugMode {
			b.log.Debug("removed %d subscriptions of destroyed %s", n, label)
		}
	})
}

// Unsubscribe removes sub. It reports false if sub was already removed.
func (b *Bus) Unsubscribe(sub *Subscription) bool {
	if sub == nil {
		return false
	}
	if !b.registry.Remove(sub) {
		b.log.Debug("unsubscribe: %s on %s not registered", sub.describe(), sub.typ.Short())
		return false
	}
	return true
}

// UnsubscribeHandler removes the first subscription of typ whose handler
// equals handler. Only comparable handler values can match; HandlerFunc
// closures, and structs holding one, must be removed through their
// Subscription.
func (b *Bus) UnsubscribeHandler(typ Type, handler Handler) bool {
	if handler == nil || !reflect.ValueOf(handler).Comparable() {
		b.log.Debug("unsubscribe: handler %T for %s is not comparable", handler, typ.Short())
		return false
	}
	sub, ok := b.registry.Find(typ, func(s *Subscription) bool {
		return sameHandler(s.handler, handler)
	})
	if !ok {
		b.log.Debug("unsubscribe: no handler %T for %s", handler, typ.Short())
		return false
	}
	return b.registry.Remove(sub)
}

// Publish dispatches evt to the subscribers of its dynamic type.
func (b *Bus) Publish(ctx context.Context, evt any) error {
	if evt == nil {
		return ErrNilEvent
	}
	return b.PublishAs(ctx, TypeOfValue(evt), evt)
}

// PublishAs dispatches data to the subscribers of typ.
//
// A publish of a type that is already being dispatched further up the stack
// is skipped and returns nil. Nesting deeper than MaxPublishDepth returns
// ErrPublishDepthExceeded.
func (b *Bus) PublishAs(ctx context.Context, typ Type, data any) (err error) {
	if typ == "" {
		return ErrInvalidType
	}
	if _, busy := b.publishing[typ]; busy {
		b.stats.Skipped++
		if b.settings.DebugMode {
			b.log.Debug("skipping reentrant publish of %s", typ.Short())
		}
		return nil
	}
	if b.depth >= MaxPublishDepth {
		b.stats.DepthExceeded++
		b.log.Error("publish of %s exceeds max depth %d", typ.Short(), MaxPublishDepth)
		return fmt.Errorf("publish %s: %w", typ.Short(), ErrPublishDepthExceeded)
	}

	ctx, span := b.tracer.Start(ctx, "event.publish", trace.WithAttributes(
		attribute.String("event.type", string(typ)),
		attribute.Int("event.depth", b.depth),
	))
	defer span.End()

	b.publishing[typ] = struct{}{}
	b.depth++
	b.stats.Published++

	start := b.clock.Now()
	var entry *HistoryEntry
	if b.settings.EnableHistory {
		entry = &HistoryEntry{Type: typ, Timestamp: start}
	}
	var fired []*Subscription

	defer func() {
		delete(b.publishing, typ)
		b.depth--
		for _, sub := range fired {
			b.registry.Remove(sub)
		}
		if entry != nil {
			entry.ProcessingTime = b.clock.Since(start)
			b.history.add(*entry)
		}
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
	}()

	subs := b.registry.Prepare(typ, b.valid)
	span.SetAttributes(attribute.Int("event.subscribers", len(subs)))
	if b.settings.DebugMode {
		b.log.Debug("publishing %s to %d subscribers", typ.Short(), len(subs))
	}

	protect := b.settings.ExceptionProtection
	for _, sub := range subs {
		if !sub.active || (sub.config.Once && sub.fired) {
			continue
		}
		if !b.valid(sub) {
			sub.active = false
			continue
		}
		if sub.config.Filter != nil && !b.allow(sub, typ, data, protect) {
			b.stats.Filtered++
			continue
		}
		if sub.config.Once {
			sub.fired = true
			fired = append(fired, sub)
		}

		var res dispatch.Result
		if protect {
			res = b.exec.Execute(ctx, data, sub.handler)
		} else {
			res = b.exec.ExecuteUnprotected(ctx, data, sub.handler)
		}
		if entry != nil {
			entry.Handlers = append(entry.Handlers, formatOutcome(sub, res))
		}

		switch {
		case res.Skipped:
			return res.Error
		case res.Panicked:
			b.stats.HandlerPanics++
			perr := &PanicError{SubscriptionID: sub.id, Type: typ, Value: res.PanicValue, Stack: string(res.PanicStack)}
			b.log.WithField("owner", sub.ownerLabel()).Error("%v: %v", perr, res.PanicValue)
		case res.IsError():
			b.stats.HandlerErrors++
			herr := &HandlerError{SubscriptionID: sub.id, Type: typ, Owner: sub.ownerLabel(), Err: res.Error}
			if !protect {
				return herr
			}
			b.log.Error("%v", herr)
		case res.IsSuccess():
			b.stats.Delivered++
		}
	}
	return nil
}

// allow evaluates sub's filter. A panicking filter counts as filtered out
// when protected.
func (b *Bus) allow(sub *Subscription, typ Type, data any, protect bool) bool {
	if !protect {
		return b.exec.AllowUnprotected(sub.config.Filter, data)
	}
	ok, pv := b.exec.Allow(sub.config.Filter, data)
	if pv != nil {
		b.log.Warn("filter of %s on %s panicked: %v", sub.describe(), typ.Short(), pv)
	}
	return ok
}

// valid reports whether sub's owner can still receive events.
func (b *Bus) valid(sub *Subscription) bool {
	owner := sub.config.Owner
	if owner == nil || b.liveness == nil {
		return true
	}
	return b.liveness.IsAlive(owner) && !b.liveness.IsQueuedForDeletion(owner)
}

func formatOutcome(sub *Subscription, res dispatch.Result) string {
	ms := strconv.FormatFloat(float64(res.Duration)/float64(time.Millisecond), 'f', 2, 64)
	return sub.describe() + " " + res.Outcome() + " " + ms + "ms"
}

// sameHandler compares handlers by value. Values whose dynamic contents are
// not comparable, such as a struct wrapping a func, never match.
func sameHandler(a, b Handler) bool {
	if reflect.TypeOf(a) != reflect.TypeOf(b) || !reflect.ValueOf(a).Comparable() {
		return false
	}
	return a == b
}

func isNilFunc(h Handler) bool {
	v := reflect.ValueOf(h)
	return v.Kind() == reflect.Func && v.IsNil()
}

// HasSubscribers reports whether typ has any active subscription.
func (b *Bus) HasSubscribers(typ Type) bool {
	return b.registry.Count(typ) > 0
}

// SubscriberCount returns the number of active subscriptions for typ.
func (b *Bus) SubscriberCount(typ Type) int {
	return b.registry.Count(typ)
}

// Clear removes all subscriptions and cancels pending debounced publishes.
func (b *Bus) Clear() {
	b.registry.Clear()
	for typ, d := range b.debounce {
		d.timer.Stop()
		delete(b.debounce, typ)
	}
	b.owners = make(map[uint64]struct{})
	if b.settings.DebugMode {
		b.log.Debug("cleared all subscriptions")
	}
}

// History returns recorded publishes, newest first.
func (b *Bus) History() []HistoryEntry {
	return b.history.Entries()
}

// HistoryByType returns recorded publishes of typ, newest first.
func (b *Bus) HistoryByType(typ Type) []HistoryEntry {
	var out []HistoryEntry
	for _, e := range b.history.entries {
		if e.Type == typ {
			out = append(out, e)
		}
	}
	return out
}

// ClearHistory drops all history entries.
func (b *Bus) ClearHistory() {
	b.history.reset()
}

// Settings returns the current toggles.
func (b *Bus) Settings() Settings {
	return b.settings
}

// Apply replaces all toggles at once.
func (b *Bus) Apply(s Settings) {
	b.settings = s
	b.history.resize(s.MaxHistorySize)
}

// SetDebugMode toggles verbose logging.
func (b *Bus) SetDebugMode(on bool) { b.settings.DebugMode = on }

// SetHistoryEnabled toggles history recording.
func (b *Bus) SetHistoryEnabled(on bool) { b.settings.EnableHistory = on }

// SetMaxHistorySize changes the history cap, truncating if needed.
func (b *Bus) SetMaxHistorySize(n int) {
	b.settings.MaxHistorySize = n
	b.history.resize(n)
}

// SetExceptionProtection toggles handler isolation.
func (b *Bus) SetExceptionProtection(on bool) { b.settings.ExceptionProtection = on }

// Stats returns activity counters.
func (b *Bus) Stats() Stats {
	s := b.stats
	s.Compactions = b.registry.Compactions()
	return s
}
