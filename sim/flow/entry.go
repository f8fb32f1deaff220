package flow

import (
	"fmt"

	"github.com/tsn-sim/tsn-sim/sim"
)

// DefaultApplication is the relative sub-endpoint a flow starts from when an
// entry does not name one.
const DefaultApplication = "app[0]"

// Entry is one declarative flow-pattern configuration entry. Source and
// Destination are glob patterns matched against node names; every matching
// ordered pair yields one Flow. Times are in seconds, lengths in bytes.
type Entry struct {
	Name           string     `yaml:"name,omitempty"`
	Source         string     `yaml:"source"`
	Destination    string     `yaml:"destination"`
	Application    string     `yaml:"application,omitempty"`
	Priority       int        `yaml:"priority"`
	GateIndex      *int       `yaml:"gate_index,omitempty"` // nil = Priority
	PacketLength   int        `yaml:"packet_length"`
	PacketInterval float64    `yaml:"packet_interval"`
	MaxLatency     float64    `yaml:"max_latency,omitempty"`
	MaxJitter      float64    `yaml:"max_jitter,omitempty"`
	Gamma          float64    `yaml:"gamma,omitempty"`
	Start          float64    `yaml:"start,omitempty"`
	End            float64    `yaml:"end,omitempty"` // 0 = no end
	PathFragments  [][]string `yaml:"path_fragments,omitempty"`
}

// Validate checks the entry's own fields. It does not look at the topology.
func (e *Entry) Validate() error {
	subject := e.label()
	switch {
	case e.Source == "" || e.Destination == "":
		return sim.Errorf(sim.KindConfiguration, "flow.Entry", subject, "source and destination patterns are required")
	case e.Priority < 0 || e.Priority > 7:
		return sim.Errorf(sim.KindConfiguration, "flow.Entry", subject, "priority %d outside 0..7", e.Priority)
	case e.GateIndex != nil && (*e.GateIndex < 0 || *e.GateIndex > 7):
		return sim.Errorf(sim.KindConfiguration, "flow.Entry", subject, "gate index %d outside 0..7", *e.GateIndex)
	case e.PacketLength < 0:
		return sim.Errorf(sim.KindConfiguration, "flow.Entry", subject, "packet length must be >= 0")
	case e.PacketInterval <= 0:
		return sim.Errorf(sim.KindConfiguration, "flow.Entry", subject, "packet interval must be > 0, got %v", e.PacketInterval)
	case e.MaxLatency < 0 || e.MaxJitter < 0 || e.Gamma < 0:
		return sim.Errorf(sim.KindConfiguration, "flow.Entry", subject, "latency, jitter and gamma must be >= 0")
	case e.End != 0 && e.End < e.Start:
		return sim.Errorf(sim.KindConfiguration, "flow.Entry", subject, "end %v before start %v", e.End, e.Start)
	}
	return nil
}

func (e *Entry) application() string {
	if e.Application == "" {
		return DefaultApplication
	}
	return e.Application
}

func (e *Entry) gateIndex() int {
	if e.GateIndex == nil {
		return e.Priority
	}
	return *e.GateIndex
}

func (e *Entry) label() string {
	if e.Name != "" {
		return e.Name
	}
	return fmt.Sprintf("%s->%s", e.Source, e.Destination)
}
