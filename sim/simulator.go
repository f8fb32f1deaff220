package sim

import (
	"container/heap"
	"fmt"
	"math"

	"github.com/sirupsen/logrus"
)

// Simulator is the single-threaded event loop backing the control plane.
// It implements Substrate.
type Simulator struct {
	Clock   int64 // current time in ticks
	Horizon int64 // events after the horizon are not executed

	// DeliveryLatency is added to every SendMessage. Zero keeps delivery
	// in the same instant, after the sender's event completes.
	DeliveryLatency int64

	queue    EventQueue
	handlers map[string]Handler
	seq      int64
	executed int
}

var _ Substrate = (*Simulator)(nil)

// NewSimulator creates a simulator that stops at horizon ticks.
// A non-positive horizon means "run until the queue drains".
func NewSimulator(horizon int64) *Simulator {
	if horizon <= 0 {
		horizon = math.MaxInt64
	}
	return &Simulator{
		Horizon:  horizon,
		handlers: make(map[string]Handler),
	}
}

// Now returns the current simulation time in ticks.
func (s *Simulator) Now() int64 { return s.Clock }

// Schedule adds an event to the queue.
func (s *Simulator) Schedule(ev Event) {
	if ev.Timestamp() < s.Clock {
		panic(fmt.Sprintf("event %T scheduled in the past: %d < %d", ev, ev.Timestamp(), s.Clock))
	}
	s.seq++
	heap.Push(&s.queue, eventEntry{event: ev, seqID: s.seq})
}

// ScheduleTimer runs fire after delay ticks. Negative delays are clamped to zero.
func (s *Simulator) ScheduleTimer(delay int64, fire func()) {
	s.Schedule(&TimerEvent{time: s.Clock + max(delay, 0), fire: fire})
}

// SendMessage queues msg for endpoint's handler.
func (s *Simulator) SendMessage(endpoint string, msg Message) error {
	if _, ok := s.handlers[endpoint]; !ok {
		return Errorf(KindDelivery, "sim.SendMessage", endpoint, "no handler registered for %s", msg.Kind)
	}
	s.Schedule(&DeliveryEvent{time: s.Clock + s.DeliveryLatency, endpoint: endpoint, msg: msg})
	return nil
}

// OnMessage registers h for endpoint.
func (s *Simulator) OnMessage(endpoint string, h Handler) {
	s.handlers[endpoint] = h
}

// Pending returns the number of queued events.
func (s *Simulator) Pending() int { return s.queue.Len() }

// Executed returns the number of events executed so far.
func (s *Simulator) Executed() int { return s.executed }

// Step executes the next event. It returns false when the queue is empty or
// the next event lies beyond the horizon.
func (s *Simulator) Step() bool {
	if s.queue.Len() == 0 {
		return false
	}
	if s.queue[0].event.Timestamp() > s.Horizon {
		return false
	}
	entry := heap.Pop(&s.queue).(eventEntry)
	s.Clock = entry.event.Timestamp()
	logrus.Tracef("[tick %d] Executing %T", s.Clock, entry.event)
	entry.event.Execute(s)
	s.executed++
	return true
}

// Run executes events until the queue drains or the horizon is reached.
func (s *Simulator) Run() {
	for s.Step() {
	}
	logrus.Debugf("[tick %d] Simulation ended after %d events", s.Clock, s.executed)
}
