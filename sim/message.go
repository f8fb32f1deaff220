package sim

// MessageKind identifies the payload carried by a Message.
type MessageKind int

const (
	// KindStreamRequest carries a stream.Request from a talker to the CUC.
	KindStreamRequest MessageKind = iota + 1
	// KindStreamResponse carries a stream.Response from the CUC back to a talker.
	KindStreamResponse
)

// String returns the string representation of MessageKind
func (k MessageKind) String() string {
	switch k {
	case KindStreamRequest:
		return "stream-request"
	case KindStreamResponse:
		return "stream-response"
	default:
		return "unknown"
	}
}

// Message is the unit of delivery between named endpoints.
type Message struct {
	Kind    MessageKind
	From    string // sending endpoint, informational
	Payload any
}

// Handler consumes messages delivered to an endpoint.
type Handler func(msg Message)

// Substrate is the event-delivery boundary the control plane runs on.
// Implementations deliver events one at a time; handlers never observe
// concurrent mutation.
type Substrate interface {
	// Now returns the current simulation time in ticks.
	Now() int64
	// ScheduleTimer runs fire after delay ticks.
	ScheduleTimer(delay int64, fire func())
	// SendMessage queues msg for the handler registered on endpoint.
	// It fails with ErrDelivery when no handler is registered there.
	SendMessage(endpoint string, msg Message) error
	// OnMessage registers h as the receiver for endpoint, replacing any previous one.
	OnMessage(endpoint string, h Handler)
}
