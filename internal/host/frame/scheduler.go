// Package frame implements host.Scheduler on top of an explicit frame loop.
//
// The loop owner calls Process once per rendered frame and PhysicsProcess once
// per fixed physics step, or hands both to Run. Time comes from a
// benbjohnson/clock.Clock so tests can drive timers with a mock clock.
package frame

import (
	"container/heap"
	"context"
	"sync"
	"time"

	"github.com/benbjohnson/clock"

	"github.com/dshills/scenekit/internal/host"
)

// maxDeferredFlushes bounds how many times Process re-drains deferred
// callbacks that were queued by deferred callbacks.
const maxDeferredFlushes = 64

// Scheduler is a single-goroutine frame scheduler.
//
// Only Post is safe to call from other goroutines. Every other method, and
// every callback, runs on the loop goroutine.
type Scheduler struct {
	clock clock.Clock

	mu     sync.Mutex
	posted []func()

	seq      uint64
	timers   timerQueue
	idle     []func()
	deferred []func()
	physics  []func()

	frames        uint64
	physicsFrames uint64
}

// Option configures a Scheduler.
type Option func(*Scheduler)

// WithClock sets the time source. Defaults to the wall clock.
func WithClock(c clock.Clock) Option {
	return func(s *Scheduler) {
		s.clock = c
	}
}

// New creates a scheduler.
func New(opts ...Option) *Scheduler {
	s := &Scheduler{clock: clock.New()}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Clock returns the scheduler's time source.
func (s *Scheduler) Clock() clock.Clock {
	return s.clock
}

// After implements host.Scheduler.
func (s *Scheduler) After(d time.Duration, fn func()) host.Timer {
	if d < 0 {
		d = 0
	}
	s.seq++
	t := &timer{
		s:        s,
		deadline: s.clock.Now().Add(d),
		seq:      s.seq,
		fn:       fn,
	}
	heap.Push(&s.timers, t)
	return t
}

// Defer implements host.Scheduler.
func (s *Scheduler) Defer(fn func()) {
	s.deferred = append(s.deferred, fn)
}

// NextTick implements host.Scheduler.
func (s *Scheduler) NextTick(fn func()) {
	s.idle = append(s.idle, fn)
}

// NextPhysicsTick implements host.Scheduler.
func (s *Scheduler) NextPhysicsTick(fn func()) {
	s.physics = append(s.physics, fn)
}

// Post queues fn to run on the loop goroutine during the next Process call.
// It is safe for concurrent use.
func (s *Scheduler) Post(fn func()) {
	s.mu.Lock()
	s.posted = append(s.posted, fn)
	s.mu.Unlock()
}

// Process runs one idle frame: posted work, due timers in deadline order,
// next-tick callbacks, then deferred callbacks.
func (s *Scheduler) Process() {
	s.frames++

	s.mu.Lock()
	posted := s.posted
	s.posted = nil
	s.mu.Unlock()
	for _, fn := range posted {
		fn()
	}

	now := s.clock.Now()
	var due []*timer
	for s.timers.Len() > 0 && !s.timers[0].deadline.After(now) {
		t := heap.Pop(&s.timers).(*timer)
		due = append(due, t)
	}
	for _, t := range due {
		if t.stopped {
			continue
		}
		t.fired = true
		t.fn()
	}

	idle := s.idle
	s.idle = nil
	for _, fn := range idle {
		fn()
	}

	for i := 0; i < maxDeferredFlushes && len(s.deferred) > 0; i++ {
		deferred := s.deferred
		s.deferred = nil
		for _, fn := range deferred {
			fn()
		}
	}
}

// PhysicsProcess runs one physics step.
func (s *Scheduler) PhysicsProcess() {
	s.physicsFrames++
	physics := s.physics
	s.physics = nil
	for _, fn := range physics {
		fn()
	}
}

// Frames returns how many idle and physics frames have run.
func (s *Scheduler) Frames() (idle, physics uint64) {
	return s.frames, s.physicsFrames
}

// Pending returns the number of queued callbacks of every kind.
func (s *Scheduler) Pending() int {
	s.mu.Lock()
	n := len(s.posted)
	s.mu.Unlock()
	return n + s.timers.Len() + len(s.idle) + len(s.deferred) + len(s.physics)
}

// Run drives Process at frameRate and PhysicsProcess at physicsRate ticks per
// second until ctx is cancelled.
func (s *Scheduler) Run(ctx context.Context, frameRate, physicsRate int) error {
	if frameRate <= 0 {
		frameRate = 60
	}
	if physicsRate <= 0 {
		physicsRate = 60
	}
	idle := s.clock.Ticker(time.Second / time.Duration(frameRate))
	defer idle.Stop()
	physics := s.clock.Ticker(time.Second / time.Duration(physicsRate))
	defer physics.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-physics.C:
			s.PhysicsProcess()
		case <-idle.C:
			s.Process()
		}
	}
}

type timer struct {
	s        *Scheduler
	deadline time.Time
	seq      uint64
	fn       func()
	index    int
	stopped  bool
	fired    bool
}

// Stop implements host.Timer.
func (t *timer) Stop() bool {
	if t.stopped || t.fired {
		return false
	}
	t.stopped = true
	if t.index >= 0 {
		heap.Remove(&t.s.timers, t.index)
	}
	return true
}

// timerQueue orders timers by deadline, then by scheduling order.
type timerQueue []*timer

func (q timerQueue) Len() int { return len(q) }

func (q timerQueue) Less(i, j int) bool {
	if q[i].deadline.Equal(q[j].deadline) {
		return q[i].seq < q[j].seq
	}
	return q[i].deadline.Before(q[j].deadline)
}

func (q timerQueue) Swap(i, j int) {
	q[i], q[j] = q[j], q[i]
	q[i].index = i
	q[j].index = j
}

func (q *timerQueue) Push(x any) {
	t := x.(*timer)
	t.index = len(*q)
	*q = append(*q, t)
}

func (q *timerQueue) Pop() any {
	old := *q
	n := len(old)
	t := old[n-1]
	old[n-1] = nil
	t.index = -1
	*q = old[:n-1]
	return t
}

var _ host.Scheduler = (*Scheduler)(nil)
