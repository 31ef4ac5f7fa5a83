// Package script exposes the event bus to Lua.
//
// A script sees a global "bus" table:
//
//	local id = bus.on("door_opened", function(ev) print(ev.by) end, {priority = -10})
//	bus.once("level_loaded", function(ev) ... end)
//	bus.off(id)
//	bus.emit("door_opened", {by = "player"})
//	bus.emit_later("alarm", {}, 1.5)
//	bus.emit_deferred("tick_done")
//	bus.emit_debounced("search", {text = "abc"}, 0.25)
//	bus.count("door_opened")
//
// Event names are plain strings unless bound to a Go type with Alias, in
// which case tables are decoded into that type and Go-typed handlers receive
// them as usual.
package script

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"strings"
	"time"

	lua "github.com/yuin/gopher-lua"

	"github.com/dshills/scenekit/internal/event"
	"github.com/dshills/scenekit/internal/host"
	"github.com/dshills/scenekit/internal/logging"
)

// DefaultTimeout bounds a single DoString or DoFile call.
const DefaultTimeout = 5 * time.Second

// ErrClosed is returned by operations on a closed Engine.
var ErrClosed = errors.New("script engine closed")

// Engine is one Lua state bound to a bus. Like the bus it belongs to the
// host loop goroutine: handlers call back into the same state.
type Engine struct {
	L *lua.LState

	bus     *event.Bus
	owner   host.Object
	log     *logging.Logger
	ctx     context.Context
	timeout time.Duration
	aliases map[string]reflect.Type

	handlers *lua.LTable
	subs     map[string]*event.Subscription
	nextID   uint64
	closed   bool
}

// Option configures an Engine.
type Option func(*Engine)

// WithOwner binds every subscription the script makes to owner, so they go
// away when the host destroys it.
func WithOwner(owner host.Object) Option {
	return func(e *Engine) {
		e.owner = owner
	}
}

// WithLogger sets the logger. Script print output goes to it as well.
func WithLogger(l *logging.Logger) Option {
	return func(e *Engine) {
		e.log = l
	}
}

// WithContext sets the context publishes run under.
func WithContext(ctx context.Context) Option {
	return func(e *Engine) {
		e.ctx = ctx
	}
}

// WithTimeout bounds script execution. Zero disables the bound.
func WithTimeout(d time.Duration) Option {
	return func(e *Engine) {
		e.timeout = d
	}
}

// Alias binds a script event name to the Go event type T.
func Alias[T any](name string) Option {
	return func(e *Engine) {
		e.aliases[name] = reflect.TypeFor[T]()
	}
}

// NewEngine creates a sandboxed Lua state with the bus module installed.
func NewEngine(bus *event.Bus, opts ...Option) (*Engine, error) {
	if bus == nil {
		return nil, errors.New("script: nil bus")
	}
	e := &Engine{
		bus:     bus,
		log:     logging.Nop(),
		ctx:     context.Background(),
		timeout: DefaultTimeout,
		aliases: make(map[string]reflect.Type),
		subs:    make(map[string]*event.Subscription),
	}
	for _, opt := range opts {
		opt(e)
	}
	e.log = e.log.WithComponent("script")

	L := lua.NewState(lua.Options{SkipOpenLibs: true})
	lua.OpenBase(L)
	lua.OpenTable(L)
	lua.OpenString(L)
	lua.OpenMath(L)
	for _, name := range []string{"dofile", "loadfile", "load", "loadstring", "require"} {
		L.SetGlobal(name, lua.LNil)
	}
	L.SetGlobal("print", L.NewFunction(e.print))

	e.L = L
	e.handlers = L.NewTable()
	L.SetGlobal("_bus_handlers", e.handlers)

	mod := L.NewTable()
	L.SetFuncs(mod, map[string]lua.LGFunction{
		"on":             e.on,
		"once":           e.once,
		"off":            e.off,
		"emit":           e.emit,
		"emit_later":     e.emitLater,
		"emit_deferred":  e.emitDeferred,
		"emit_debounced": e.emitDebounced,
		"count":          e.count,
	})
	L.SetGlobal("bus", mod)
	return e, nil
}

// DoString runs a chunk of Lua.
func (e *Engine) DoString(code string) error {
	return e.run(func() error { return e.L.DoString(code) })
}

// DoFile runs a Lua file.
func (e *Engine) DoFile(path string) error {
	return e.run(func() error { return e.L.DoFile(path) })
}

func (e *Engine) run(fn func() error) (err error) {
	if e.closed {
		return ErrClosed
	}
	if e.timeout > 0 {
		ctx, cancel := context.WithTimeout(e.ctx, e.timeout)
		defer cancel()
		e.L.SetContext(ctx)
		defer e.L.RemoveContext()
	}
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("lua panic: %v", r)
		}
	}()
	return fn()
}

// Subscriptions returns the number of live subscriptions made by the script.
func (e *Engine) Subscriptions() int {
	n := 0
	for _, sub := range e.subs {
		if sub.Active() {
			n++
		}
	}
	return n
}

// Close unsubscribes every script handler and closes the Lua state.
func (e *Engine) Close() {
	if e.closed {
		return
	}
	e.closed = true
	for id, sub := range e.subs {
		e.bus.Unsubscribe(sub)
		delete(e.subs, id)
	}
	e.L.Close()
}

// resolve maps a script event name to its bus type and, for aliases, the
// Go type payloads decode into.
func (e *Engine) resolve(name string) (event.Type, reflect.Type) {
	if t, ok := e.aliases[name]; ok {
		return event.TypeOfValue(reflect.New(t).Elem().Interface()), t
	}
	return event.Type(name), nil
}

func (e *Engine) print(L *lua.LState) int {
	n := L.GetTop()
	parts := make([]string, 0, n)
	for i := 1; i <= n; i++ {
		parts = append(parts, L.ToStringMeta(L.Get(i)).String())
	}
	e.log.Info("%s", strings.Join(parts, "\t"))
	return 0
}

// on(name, fn [, opts]) -> id
func (e *Engine) on(L *lua.LState) int {
	return e.subscribe(L, false)
}

// once(name, fn [, opts]) -> id
func (e *Engine) once(L *lua.LState) int {
	return e.subscribe(L, true)
}

func (e *Engine) subscribe(L *lua.LState, once bool) int {
	name := L.CheckString(1)
	fn := L.CheckFunction(2)
	opts := L.OptTable(3, nil)
	if name == "" {
		L.ArgError(1, "event name cannot be empty")
		return 0
	}

	e.nextID++
	id := fmt.Sprintf("lua_%d", e.nextID)
	e.handlers.RawSetString(id, fn)

	subOpts := []event.SubscriptionOption{event.WithName("lua:" + name)}
	if e.owner != nil {
		subOpts = append(subOpts, event.WithOwner(e.owner))
	}
	if once {
		subOpts = append(subOpts, event.WithOnce())
	}
	if opts != nil {
		if p, ok := opts.RawGetString("priority").(lua.LNumber); ok {
			subOpts = append(subOpts, event.WithPriority(event.Priority(p)))
		}
		if f, ok := opts.RawGetString("filter").(*lua.LFunction); ok {
			subOpts = append(subOpts, event.WithFilter(e.filter(f)))
		}
		if label, ok := opts.RawGetString("name").(lua.LString); ok {
			subOpts = append(subOpts, event.WithName(string(label)))
		}
	}

	typ, _ := e.resolve(name)
	sub, err := e.bus.Subscribe(typ, event.HandlerFunc(func(_ context.Context, data any) error {
		if once {
			e.forget(id)
		}
		return e.call(id, fn, data)
	}), subOpts...)
	if err != nil {
		e.handlers.RawSetString(id, lua.LNil)
		L.RaiseError("on %s: %v", name, err)
		return 0
	}
	e.subs[id] = sub
	L.Push(lua.LString(id))
	return 1
}

// call invokes a script handler. Lua errors become handler errors.
func (e *Engine) call(id string, fn *lua.LFunction, data any) error {
	if e.closed {
		return nil
	}
	arg, err := toLua(e.L, data)
	if err != nil {
		return fmt.Errorf("handler %s: %w", id, err)
	}
	if err := e.L.CallByParam(lua.P{Fn: fn, NRet: 0, Protect: true}, arg); err != nil {
		return fmt.Errorf("handler %s: %w", id, err)
	}
	return nil
}

func (e *Engine) filter(fn *lua.LFunction) event.FilterFunc {
	return func(data any) bool {
		if e.closed {
			return false
		}
		arg, err := toLua(e.L, data)
		if err != nil {
			return false
		}
		if err := e.L.CallByParam(lua.P{Fn: fn, NRet: 1, Protect: true}, arg); err != nil {
			e.log.Warn("filter: %v", err)
			return false
		}
		ret := e.L.Get(-1)
		e.L.Pop(1)
		return lua.LVAsBool(ret)
	}
}

func (e *Engine) forget(id string) {
	delete(e.subs, id)
	e.handlers.RawSetString(id, lua.LNil)
}

// off(id) -> bool
func (e *Engine) off(L *lua.LState) int {
	id := L.CheckString(1)
	sub, ok := e.subs[id]
	if !ok {
		L.Push(lua.LFalse)
		return 1
	}
	e.forget(id)
	L.Push(lua.LBool(e.bus.Unsubscribe(sub)))
	return 1
}

// payload reads the optional data table at idx and converts it for typ.
func (e *Engine) payload(L *lua.LState, name string, idx int) (event.Type, any) {
	typ, goType := e.resolve(name)
	var data map[string]any
	if tbl := L.OptTable(idx, nil); tbl != nil {
		data = tableToMap(tbl)
	} else {
		data = make(map[string]any)
	}
	if goType == nil {
		return typ, data
	}
	v, err := decodeInto(goType, data)
	if err != nil {
		L.RaiseError("%s: %v", name, err)
	}
	return typ, v
}

// emit(name [, data])
func (e *Engine) emit(L *lua.LState) int {
	name := L.CheckString(1)
	typ, data := e.payload(L, name, 2)
	if err := e.bus.PublishAs(e.ctx, typ, data); err != nil {
		L.RaiseError("emit %s: %v", name, err)
	}
	return 0
}

// emit_later(name, data, seconds)
func (e *Engine) emitLater(L *lua.LState) int {
	name := L.CheckString(1)
	typ, data := e.payload(L, name, 2)
	delay := seconds(L.CheckNumber(3))
	if err := e.bus.PublishAfterDelayAs(typ, data, delay); err != nil {
		L.RaiseError("emit_later %s: %v", name, err)
	}
	return 0
}

// emit_deferred(name [, data])
func (e *Engine) emitDeferred(L *lua.LState) int {
	name := L.CheckString(1)
	typ, data := e.payload(L, name, 2)
	if err := e.bus.PublishDeferredAs(typ, data); err != nil {
		L.RaiseError("emit_deferred %s: %v", name, err)
	}
	return 0
}

// emit_debounced(name, data, seconds)
func (e *Engine) emitDebounced(L *lua.LState) int {
	name := L.CheckString(1)
	typ, data := e.payload(L, name, 2)
	delay := seconds(L.CheckNumber(3))
	if err := e.bus.PublishDebouncedAs(typ, data, delay); err != nil {
		L.RaiseError("emit_debounced %s: %v", name, err)
	}
	return 0
}

// count(name) -> n
func (e *Engine) count(L *lua.LState) int {
	typ, _ := e.resolve(L.CheckString(1))
	L.Push(lua.LNumber(e.bus.SubscriberCount(typ)))
	return 1
}

func seconds(n lua.LNumber) time.Duration {
	return time.Duration(float64(n) * float64(time.Second))
}
