package sim

import "github.com/sirupsen/logrus"

// Event defines the interface for all simulation events.
// Each event must have a Timestamp (in ticks), a Priority used to order
// events sharing a timestamp, and an Execute method that advances simulation
// state when invoked.
type Event interface {
	Timestamp() int64
	Priority() int // 0=Delivery, 1=Timer
	Execute(*Simulator)
}

// DeliveryEvent hands a message to the handler registered on an endpoint.
// Priority 0: messages sent at time t are consumed before timers firing at t.
type DeliveryEvent struct {
	time     int64
	endpoint string
	msg      Message
}

func (e *DeliveryEvent) Timestamp() int64 { return e.time }
func (e *DeliveryEvent) Priority() int     { return 0 }

// Execute delivers the message. A handler that was unregistered after the send
// is treated as a lost delivery and logged.
func (e *DeliveryEvent) Execute(s *Simulator) {
	h, ok := s.handlers[e.endpoint]
	if !ok {
		logrus.Warnf("[tick %d] dropping %s for %q: no handler", e.time, e.msg.Kind, e.endpoint)
		return
	}
	logrus.Debugf("<< Delivery: %s from %q to %q at %d ticks", e.msg.Kind, e.msg.From, e.endpoint, e.time)
	h(e.msg)
}

// TimerEvent runs a callback at its timestamp.
type TimerEvent struct {
	time int64
	fire func()
}

func (e *TimerEvent) Timestamp() int64 { return e.time }
func (e *TimerEvent) Priority() int     { return 1 }

// Execute the TimerEvent
func (e *TimerEvent) Execute(_ *Simulator) {
	e.fire()
}
