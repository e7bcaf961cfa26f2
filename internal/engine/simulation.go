package engine

import (
	"github.com/zyedidia/generic/heap"
)

// Event is a scheduled action at an absolute virtual time, in seconds.
type Event struct {
	Time   float64
	Action func()
	seq    uint64
}

// Simulation manages the virtual clock and the event schedule.
// Events fire one at a time, in non-decreasing time order; events scheduled
// for the same instant fire in the order they were scheduled.
type Simulation struct {
	now     float64
	seq     uint64
	events  *heap.Heap[Event]
	stopped bool
	fired   uint64
}

// NewSimulation initialises a simulation environment at time zero.
func NewSimulation() *Simulation {
	return &Simulation{
		events: heap.New[Event](func(a, b Event) bool {
			if a.Time == b.Time {
				return a.seq < b.seq
			}
			return a.Time < b.Time
		}),
	}
}

// Now returns the current virtual time.
func (s *Simulation) Now() float64 {
	return s.now
}

// Schedule runs action after delay seconds of virtual time.
// Negative delays are clamped to zero.
func (s *Simulation) Schedule(delay float64, action func()) {
	if delay < 0 {
		delay = 0
	}
	s.ScheduleAt(s.now+delay, action)
}

// ScheduleAt runs action at the absolute time at, or now if at is in the past.
func (s *Simulation) ScheduleAt(at float64, action func()) {
	if at < s.now {
		at = s.now
	}
	s.seq++
	s.events.Push(Event{Time: at, Action: action, seq: s.seq})
}

// Stop makes Run return after the event currently executing.
func (s *Simulation) Stop() {
	s.stopped = true
}

// Run processes events until the queue drains, Stop is called, or the next
// event lies beyond until. The clock is left at until unless stopped early.
func (s *Simulation) Run(until float64) {
	s.stopped = false
	for !s.stopped {
		next, ok := s.events.Peek()
		if !ok || next.Time > until {
			break
		}
		s.events.Pop()
		s.now = next.Time
		s.fired++
		next.Action()
	}
	if !s.stopped && s.now < until {
		s.now = until
	}
}

// Pending returns the number of events still queued.
func (s *Simulation) Pending() int {
	return s.events.Size()
}

// Fired returns the number of events executed so far.
func (s *Simulation) Fired() uint64 {
	return s.fired
}
