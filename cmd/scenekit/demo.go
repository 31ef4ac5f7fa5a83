package main

import (
	"context"
	"fmt"
	"io"
	"maps"
	"reflect"
	"slices"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/spf13/cobra"
	"go.uber.org/fx"

	"github.com/dshills/scenekit/internal/app"
	"github.com/dshills/scenekit/internal/event"
	"github.com/dshills/scenekit/internal/host"
	"github.com/dshills/scenekit/internal/host/frame"
	"github.com/dshills/scenekit/internal/host/sim"
	"github.com/dshills/scenekit/internal/inject"
	"github.com/dshills/scenekit/internal/script"
)

// Events of the arena demo.
type (
	WaveStarted   struct{ Wave int }
	EnemySpawned  struct{ Name string }
	EnemyDefeated struct {
		Name   string
		Points int
	}
	ScoreChanged struct{ Score int }
	WaveCleared  struct{ Wave int }
)

// Enemy is spawned from a template for every wave.
type Enemy struct {
	*sim.Node
	Points int
}

func (e *Enemy) Duplicate() host.Object {
	return &Enemy{Node: e.Node.Clone(), Points: e.Points}
}

// Scoreboard is built by the container and debounces score updates.
type Scoreboard struct {
	Bus   *event.Bus `inject:"EventBus"`
	Score int
}

func (b *Scoreboard) onDefeated(_ context.Context, ev EnemyDefeated) error {
	b.Score += ev.Points
	return b.Bus.PublishDebounced(ScoreChanged{Score: b.Score}, 250*time.Millisecond)
}

// Spawner is a scene node bound by the container. It spawns each wave's
// enemies as services and deletes them when they fall.
type Spawner struct {
	*sim.Node
	Bus   *event.Bus  `inject:"EventBus"`
	Board *Scoreboard `inject:""`

	services *inject.Container
	template *Enemy
	alive    map[string]*Enemy
	wave     int
}

func (s *Spawner) onWave(_ context.Context, ev WaveStarted) error {
	s.wave = ev.Wave
	for i := range ev.Wave + 1 {
		name := fmt.Sprintf("wave%d-enemy%d", ev.Wave, i)
		enemy, err := inject.Spawn(s.services, s.template, name,
			inject.WithParent(s),
			inject.WithPosition(host.Vec3{X: float64(i) * 2}))
		if err != nil {
			return err
		}
		s.alive[name] = enemy
		if err := s.Bus.PublishDeferred(EnemySpawned{Name: name}); err != nil {
			return err
		}
		defeat := EnemyDefeated{Name: name, Points: enemy.Points * (i + 1)}
		if err := s.Bus.PublishAfterDelay(defeat, time.Duration(i+1)*400*time.Millisecond); err != nil {
			return err
		}
	}
	return nil
}

func (s *Spawner) onDefeated(_ context.Context, ev EnemyDefeated) error {
	enemy, ok := s.alive[ev.Name]
	if !ok {
		return nil
	}
	delete(s.alive, ev.Name)
	if err := s.services.Delete(enemy, ev.Name, true, 0); err != nil {
		return err
	}
	if len(s.alive) == 0 {
		return s.Bus.PublishOnNextTick(WaveCleared{Wave: s.wave})
	}
	return nil
}

// demoScript chains waves from Lua: each cleared wave schedules the next.
const demoScript = `
defeated = 0
bus.on("enemy_defeated", function(ev) defeated = defeated + 1 end)
bus.on("score_changed", function(ev) print("score", ev.Score) end)
bus.on("wave_cleared", function(ev)
	print("wave cleared", ev.Wave)
	if ev.Wave < max_waves then
		bus.emit_later("wave_started", {wave = ev.Wave + 1}, 0.5)
	end
end, {priority = 10})
`

type demoOptions struct {
	frames  int
	waves   int
	script  string
	history int
}

func newDemoCmd(s *settings) *cobra.Command {
	var o demoOptions
	cmd := &cobra.Command{
		Use:   "demo",
		Short: "Run a scripted arena scene for a number of frames and report bus analytics",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runDemo(cmd.Context(), cmd.OutOrStdout(), s, o)
		},
	}
	flags := cmd.Flags()
	flags.IntVarP(&o.frames, "frames", "n", 600, "frames to simulate")
	flags.IntVar(&o.waves, "waves", 3, "waves before the script stops")
	flags.StringVar(&o.script, "script", "", "Lua script to run instead of the built-in one")
	flags.IntVar(&o.history, "history", 10, "history entries to print when history is enabled")
	return cmd
}

func runDemo(ctx context.Context, out io.Writer, s *settings, o demoOptions) error {
	if ctx == nil {
		ctx = context.Background()
	}
	if o.frames <= 0 {
		return fmt.Errorf("frames must be positive, got %d", o.frames)
	}

	mock := clock.NewMock()
	spawner := &Spawner{
		Node:     sim.NewNode("spawner", "spawners"),
		template: &Enemy{Node: sim.NewNode("enemy"), Points: 10},
		alive:    make(map[string]*Enemy),
	}

	var tree *sim.Tree
	opts := app.Options{
		Config: s.cfg,
		Clock:  mock,
		Host: func(sched *frame.Scheduler) host.Host {
			tree = sim.NewTree("arena", sim.WithScheduler(sched))
			return tree.Host(sched)
		},
		Catalog: inject.Catalog{
			Components: []inject.Component{{Type: reflect.TypeFor[*Scoreboard]()}},
			Nodes: []inject.NodeBinding{{
				Type:   reflect.TypeFor[*Spawner](),
				Group:  "spawners",
				Naming: inject.NamingHostObjectName,
			}},
		},
	}

	var rt *app.Runtime
	fxApp := app.New(opts,
		fx.Populate(&rt),
		fx.Invoke(func(*app.Runtime) error { return tree.Add(spawner) }),
	)
	if err := fxApp.Start(ctx); err != nil {
		return err
	}
	defer func() { _ = fxApp.Stop(context.Background()) }()
	spawner.services = rt.Container

	if err := subscribeDemo(rt, spawner); err != nil {
		return err
	}

	eng, err := script.NewEngine(rt.Bus,
		script.WithLogger(rt.Log.WithComponent("script")),
		script.WithContext(ctx),
		script.Alias[WaveStarted]("wave_started"),
		script.Alias[EnemyDefeated]("enemy_defeated"),
		script.Alias[ScoreChanged]("score_changed"),
		script.Alias[WaveCleared]("wave_cleared"),
	)
	if err != nil {
		return err
	}
	defer eng.Close()
	if err := eng.DoString(fmt.Sprintf("max_waves = %d", o.waves)); err != nil {
		return err
	}
	if o.script != "" {
		err = eng.DoFile(o.script)
	} else {
		err = eng.DoString(demoScript)
	}
	if err != nil {
		return err
	}

	if err := rt.Bus.Sequence().Wait(250 * time.Millisecond).Then(WaveStarted{Wave: 1}).Start(); err != nil {
		return err
	}

	simulate(mock, rt, o.frames)
	report(out, rt, spawner.Board, o)
	return nil
}

func subscribeDemo(rt *app.Runtime, spawner *Spawner) error {
	subs := []func() error{
		func() error {
			_, err := event.Subscribe(rt.Bus, spawner.onWave, event.WithOwner(spawner), event.WithName("spawn-wave"))
			return err
		},
		func() error {
			_, err := event.Subscribe(rt.Bus, spawner.Board.onDefeated, event.WithName("tally"))
			return err
		},
		func() error {
			_, err := event.Subscribe(rt.Bus, spawner.onDefeated,
				event.WithOwner(spawner), event.WithName("despawn"), event.WithPriority(5))
			return err
		},
		func() error {
			_, err := event.Subscribe(rt.Bus, func(_ context.Context, ev EnemySpawned) error {
				rt.Log.Debug("spawned %s", ev.Name)
				return nil
			}, event.WithName("spawn-log"))
			return err
		},
	}
	for _, sub := range subs {
		if err := sub(); err != nil {
			return err
		}
	}
	return nil
}

// simulate advances the mock clock one frame at a time, running physics
// ticks at their own rate.
func simulate(mock *clock.Mock, rt *app.Runtime, frames int) {
	step := time.Second / time.Duration(rt.Config.Frame.FrameRate)
	physics := time.Second / time.Duration(rt.Config.Frame.PhysicsRate)
	var acc time.Duration
	for range frames {
		mock.Add(step)
		for acc += step; acc >= physics; acc -= physics {
			rt.Scheduler.PhysicsProcess()
		}
		rt.Scheduler.Process()
	}
}

func report(out io.Writer, rt *app.Runtime, board *Scoreboard, o demoOptions) {
	st := rt.Bus.Stats()
	fmt.Fprintf(out, "frames: %d  score: %d  services: %d\n", o.frames, board.Score, rt.Container.Count())
	fmt.Fprintf(out, "published: %d  delivered: %d  filtered: %d  errors: %d  panics: %d\n",
		st.Published, st.Delivered, st.Filtered, st.HandlerErrors, st.HandlerPanics)

	counts := rt.Bus.SubscriptionCounts()
	fmt.Fprintln(out, "subscriptions:")
	for _, t := range slices.Sorted(maps.Keys(counts)) {
		fmt.Fprintf(out, "  %-16s %d\n", t.Short(), counts[t])
	}

	if !rt.Config.Bus.EnableHistory {
		return
	}
	fmt.Fprintln(out, "most frequent:")
	for _, tc := range rt.Bus.MostFrequent(5) {
		fmt.Fprintf(out, "  %-16s %d\n", tc.Type.Short(), tc.Count)
	}
	if orphans := rt.Bus.Orphaned(); len(orphans) > 0 {
		fmt.Fprintln(out, "published without subscribers:")
		for _, t := range orphans {
			fmt.Fprintf(out, "  %s\n", t.Short())
		}
	}
	fmt.Fprintln(out, "recent history:")
	for i, e := range rt.Bus.History() {
		if i >= o.history {
			break
		}
		fmt.Fprintf(out, "  %s %-16s %v %v\n", e.Timestamp.Format("15:04:05.000"), e.Type.Short(), e.ProcessingTime, e.Handlers)
	}
}
