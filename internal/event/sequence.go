package event

import (
	"time"
)

type sequenceStep struct {
	wait time.Duration
	typ  Type
	data any
}

// Sequence is a timed script of publishes built with Wait and Then.
//
//	bus.Sequence().
//		Then(RoundStarting{}).
//		Wait(3 * time.Second).
//		Then(RoundStarted{}).
//		Start()
type Sequence struct {
	bus   *Bus
	steps []sequenceStep
	err   error
}

// Sequence starts building a sequence.
func (b *Bus) Sequence() *Sequence {
	return &Sequence{bus: b}
}

// Wait inserts a pause before the following publishes.
func (s *Sequence) Wait(d time.Duration) *Sequence {
	if d > 0 {
		s.steps = append(s.steps, sequenceStep{wait: d})
	}
	return s
}

// Then appends a publish of evt.
func (s *Sequence) Then(evt any) *Sequence {
	if evt == nil {
		s.err = ErrNilEvent
		return s
	}
	return s.ThenAs(TypeOfValue(evt), evt)
}

// ThenAs appends a publish with an explicit type.
func (s *Sequence) ThenAs(typ Type, data any) *Sequence {
	if typ == "" {
		s.err = ErrInvalidType
		return s
	}
	s.steps = append(s.steps, sequenceStep{typ: typ, data: data})
	return s
}

// Len returns the number of steps.
func (s *Sequence) Len() int {
	return len(s.steps)
}

// Start schedules every publish independently at its cumulative delay.
// Publishes with no preceding wait happen synchronously, in order.
func (s *Sequence) Start() error {
	if err := s.check(); err != nil {
		return err
	}
	var at time.Duration
	for _, step := range s.steps {
		if step.typ == "" {
			at += step.wait
			continue
		}
		if at == 0 {
			s.bus.publishScheduled(step.typ, step.data)
			continue
		}
		step := step
		s.bus.scheduler.After(at, func() { s.bus.publishScheduled(step.typ, step.data) })
	}
	return nil
}

// Run executes the steps strictly in order: each wait begins only after the
// preceding publish has completed. done, if non-nil, runs after the last
// step.
func (s *Sequence) Run(done func()) error {
	if err := s.check(); err != nil {
		return err
	}
	s.run(0, done)
	return nil
}

func (s *Sequence) run(i int, done func()) {
	for ; i < len(s.steps); i++ {
		step := s.steps[i]
		if step.typ == "" {
			next := i + 1
			s.bus.scheduler.After(step.wait, func() { s.run(next, done) })
			return
		}
		s.bus.publishScheduled(step.typ, step.data)
	}
	if done != nil {
		done()
	}
}

func (s *Sequence) check() error {
	if s.err != nil {
		return s.err
	}
	if s.bus.scheduler == nil {
		for _, step := range s.steps {
			if step.typ == "" {
				return ErrNoScheduler
			}
		}
	}
	return nil
}
