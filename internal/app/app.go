// Package app wires the runtime together with fx: logger, tracing, frame
// scheduler, event bus and injection container, plus optional config hot
// reload.
//
// The host is supplied by the caller through Options.Host, which receives
// the frame scheduler so that host deletions and bus timers share one loop.
package app

import (
	"context"

	"github.com/benbjohnson/clock"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"
	"go.uber.org/multierr"
	"go.uber.org/zap/zapcore"

	"github.com/dshills/scenekit/internal/config"
	"github.com/dshills/scenekit/internal/event"
	"github.com/dshills/scenekit/internal/host"
	"github.com/dshills/scenekit/internal/host/frame"
	"github.com/dshills/scenekit/internal/host/sim"
	"github.com/dshills/scenekit/internal/inject"
	"github.com/dshills/scenekit/internal/logging"
	"github.com/dshills/scenekit/internal/tracing"
)

// BusServiceName is the name the bus is registered under in the container.
const BusServiceName = "EventBus"

// Options configures the runtime module.
type Options struct {
	// Config is required.
	Config *config.Config

	// ConfigPath, when set, is watched and bus and log settings are
	// re-applied on change.
	ConfigPath string

	// Host builds the host ports. Defaults to an empty sim tree.
	Host func(*frame.Scheduler) host.Host

	// Catalog declares the container's components and node bindings.
	Catalog inject.Catalog

	// Logger overrides the logger built from Config.Log.
	Logger *logging.Logger

	// Exporter replaces the configured span exporter when tracing is
	// enabled.
	Exporter sdktrace.SpanExporter

	// Clock drives the frame scheduler. Defaults to the wall clock.
	Clock clock.Clock
}

// Runtime is the assembled set of services.
type Runtime struct {
	Config    *config.Config
	Log       *logging.Logger
	Tracing   *tracing.Provider
	Scheduler *frame.Scheduler
	Host      host.Host
	Bus       *event.Bus
	Container *inject.Container
}

// Module returns the fx options that build and run a Runtime.
func Module(opts Options) fx.Option {
	if opts.Config == nil {
		return fx.Error(ErrNoConfig)
	}
	return fx.Module("scenekit",
		fx.Supply(opts),
		fx.Provide(
			newLogger,
			newTracing,
			newScheduler,
			newHost,
			newBus,
			newContainer,
			newRuntime,
		),
		fx.Invoke(registerLifecycle),
	)
}

// New builds an fx application around Module. fx's own logs go to the
// runtime logger at debug level.
func New(opts Options, extra ...fx.Option) *fx.App {
	all := []fx.Option{
		Module(opts),
		fx.WithLogger(func(log *logging.Logger) fxevent.Logger {
			l := &fxevent.ZapLogger{Logger: log.Zap()}
			l.UseLogLevel(zapcore.DebugLevel)
			return l
		}),
	}
	return fx.New(append(all, extra...)...)
}

func newLogger(opts Options) (*logging.Logger, error) {
	if opts.Logger != nil {
		return opts.Logger, nil
	}
	l, err := logging.New(opts.Config.Log)
	if err != nil {
		return nil, NewComponentError("logging", "create", err)
	}
	return l, nil
}

func newTracing(opts Options) (*tracing.Provider, error) {
	var topts []tracing.Option
	if opts.Exporter != nil {
		topts = append(topts, tracing.WithExporter(opts.Exporter))
	}
	p, err := tracing.NewProvider(opts.Config.Tracing, topts...)
	if err != nil {
		return nil, NewComponentError("tracing", "create", err)
	}
	return p, nil
}

func newScheduler(opts Options) *frame.Scheduler {
	if opts.Clock != nil {
		return frame.New(frame.WithClock(opts.Clock))
	}
	return frame.New()
}

func newHost(opts Options, sched *frame.Scheduler) host.Host {
	if opts.Host != nil {
		return opts.Host(sched)
	}
	return sim.NewTree(inject.DefaultScope, sim.WithScheduler(sched)).Host(sched)
}

func newBus(opts Options, log *logging.Logger, tp *tracing.Provider, sched *frame.Scheduler, h host.Host) *event.Bus {
	return event.NewBus(
		event.WithLogger(log),
		event.WithTracer(tp.Tracer()),
		event.WithHost(h),
		event.WithClock(sched.Clock()),
		event.WithSettings(opts.Config.Bus),
	)
}

func newContainer(opts Options, log *logging.Logger, h host.Host) *inject.Container {
	return inject.New(
		inject.WithLogger(log),
		inject.WithHost(h),
		inject.WithSettings(opts.Config.Container),
		inject.WithCatalog(opts.Catalog),
	)
}

func newRuntime(opts Options, log *logging.Logger, tp *tracing.Provider, sched *frame.Scheduler,
	h host.Host, bus *event.Bus, c *inject.Container) *Runtime {
	return &Runtime{
		Config:    opts.Config,
		Log:       log,
		Tracing:   tp,
		Scheduler: sched,
		Host:      h,
		Bus:       bus,
		Container: c,
	}
}

func registerLifecycle(lc fx.Lifecycle, opts Options, rt *Runtime) {
	var watcher *config.Watcher

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			if err := rt.Container.Register(BusServiceName, rt.Bus, inject.Persistent()); err != nil {
				return NewComponentError("container", "register bus", err)
			}
			if err := rt.Container.Initialize(ctx); err != nil {
				return NewComponentError("container", "initialize", err)
			}
			if opts.ConfigPath == "" {
				return nil
			}
			w, err := config.NewWatcher(opts.ConfigPath, config.WithWatchLogger(rt.Log))
			if err != nil {
				return NewComponentError("config", "watch", err)
			}
			w.OnChange(func(cfg *config.Config) {
				rt.Scheduler.Post(func() { rt.Apply(cfg) })
			})
			if err := w.Start(); err != nil {
				_ = w.Close()
				return NewComponentError("config", "watch", err)
			}
			watcher = w
			return nil
		},
		OnStop: func(ctx context.Context) error {
			var errs error
			if watcher != nil {
				errs = multierr.Append(errs, watcher.Close())
			}
			rt.Bus.Clear()
			if err := rt.Container.ClearAll(); err != nil {
				errs = multierr.Append(errs, NewComponentError("container", "clear", err))
			}
			if err := rt.Tracing.Shutdown(ctx); err != nil {
				errs = multierr.Append(errs, NewComponentError("tracing", "shutdown", err))
			}
			_ = rt.Log.Sync()
			return errs
		},
	})
}

// Apply takes over the settings that can change at runtime: bus toggles and
// the log level. It must run on the loop goroutine.
func (rt *Runtime) Apply(cfg *config.Config) {
	rt.Bus.Apply(cfg.Bus)
	rt.Log.SetLevel(cfg.Log.Level)
	rt.Config.Bus = cfg.Bus
	rt.Config.Log.Level = cfg.Log.Level
	rt.Log.Info("applied configuration: history=%t protection=%t debug=%t",
		cfg.Bus.EnableHistory, cfg.Bus.ExceptionProtection, cfg.Bus.DebugMode)
}

// Run drives the frame loop at the configured rates until ctx is done.
func (rt *Runtime) Run(ctx context.Context) error {
	return rt.Scheduler.Run(ctx, rt.Config.Frame.FrameRate, rt.Config.Frame.PhysicsRate)
}
