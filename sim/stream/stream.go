// Package stream defines the admission request a talker sends and the status
// the controller returns for it.
package stream

import (
	"fmt"

	"github.com/tsn-sim/tsn-sim/sim"
)

// Unresolved marks a talker or listener index that could not be found in the
// topology.
const Unresolved = -1

// Request asks for admission of one periodic stream. Times are in seconds,
// sizes in bytes.
type Request struct {
	StreamID      string
	Talker        string
	TalkerIndex   int
	Listener      string
	ListenerIndex int
	PacketSize    int
	Priority      int     // PCP, 0..7
	Period        float64 // production interval
	MaxJitter     float64
	MaxLatency    float64
	Gamma         float64 // opaque weight passed through to the engine
}

// Validate checks the request parameters that do not depend on the topology.
func (r *Request) Validate() error {
	const op = "stream.Validate"
	switch {
	case r.StreamID == "":
		return sim.Errorf(sim.KindInvalidRequest, op, r.Talker, "stream id must not be empty")
	case r.Priority < 0 || r.Priority > 7:
		return sim.Errorf(sim.KindInvalidRequest, op, r.StreamID, "priority %d outside 0..7", r.Priority)
	case r.Period <= 0:
		return sim.Errorf(sim.KindInvalidRequest, op, r.StreamID, "period must be > 0, got %v", r.Period)
	case r.PacketSize < 0:
		return sim.Errorf(sim.KindInvalidRequest, op, r.StreamID, "packet size must be >= 0, got %d", r.PacketSize)
	case r.MaxJitter < 0 || r.MaxLatency < 0:
		return sim.Errorf(sim.KindInvalidRequest, op, r.StreamID, "latency and jitter bounds must be >= 0")
	}
	return nil
}

// Resolved reports whether both endpoints were found in the topology.
func (r *Request) Resolved() bool {
	return r.TalkerIndex != Unresolved && r.ListenerIndex != Unresolved
}

// DataRate returns the stream's bandwidth in bit/s.
func (r *Request) DataRate() float64 {
	return float64(r.PacketSize*8) / r.Period
}

func (r *Request) String() string {
	return fmt.Sprintf("%s(%s->%s pcp=%d period=%v)", r.StreamID, r.Talker, r.Listener, r.Priority, r.Period)
}

// Status is the admission outcome for one request. Offset is meaningful
// only when Admitted is true.
type Status struct {
	StreamID string
	Talker   string
	Admitted bool
	Offset   float64 // seconds after the start of the gate cycle
	Reason   string  // why the stream was rejected
}

// Admitted builds the status for an admitted request.
func Admitted(req Request, offset float64) Status {
	return Status{StreamID: req.StreamID, Talker: req.Talker, Admitted: true, Offset: offset}
}

// Rejected builds the status for a rejected request.
func Rejected(req Request, reason string) Status {
	return Status{StreamID: req.StreamID, Talker: req.Talker, Reason: reason}
}

// Response is the payload carried by a stream response message.
type Response struct {
	StreamID string
	Admitted bool
	Offset   float64
}

// ResponseFor strips a status down to what the talker receives.
func ResponseFor(s Status) Response {
	return Response{StreamID: s.StreamID, Admitted: s.Admitted, Offset: s.Offset}
}
