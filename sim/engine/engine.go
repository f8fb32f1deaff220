// Package engine defines the contract between the schedule orchestrator and
// a pluggable gate-scheduling solver, plus the solver strategies shipped with
// the simulator.
package engine

import (
	"context"
	"fmt"
	"sort"

	"github.com/tsn-sim/tsn-sim/sim/flow"
	"github.com/tsn-sim/tsn-sim/sim/topology"
)

// NodeRef names a topology node by index.
type NodeRef struct {
	Index int    `json:"index"`
	Name  string `json:"name"`
}

// PortRef is one directed egress port.
type PortRef struct {
	Node     int     `json:"node"`
	Port     int     `json:"port"`
	Remote   int     `json:"remote"`
	Datarate float64 `json:"datarate"` // bit/s
}

// Input is everything a solver sees for one scheduling run. Flows are
// ordered by descending priority.
type Input struct {
	Switches          []NodeRef   `json:"switches"`
	Devices           []NodeRef   `json:"devices"`
	Flows             []flow.Flow `json:"flows"`
	Ports             []PortRef   `json:"ports"`
	GateCycleDuration float64     `json:"gate_cycle_duration"` // seconds, 0 = solver's choice
}

// NewInput assembles the solver input from the topology partition and the
// flows of one run.
func NewInput(topo *topology.Topology, flows []flow.Flow, gateCycle float64) *Input {
	in := &Input{Flows: flows, GateCycleDuration: gateCycle}
	for _, n := range topo.Nodes() {
		ref := NodeRef{Index: n.Index, Name: n.Name}
		if n.IsDevice() {
			in.Devices = append(in.Devices, ref)
		} else {
			in.Switches = append(in.Switches, ref)
		}
		for _, l := range n.Links {
			in.Ports = append(in.Ports, PortRef{Node: l.Src, Port: l.Port, Remote: l.Dst, Datarate: l.Datarate})
		}
	}
	return in
}

// GateRef identifies one gate: a traffic-class queue on a node's egress port.
type GateRef struct {
	Node int `json:"node"`
	Port int `json:"port"`
	Gate int `json:"gate"`
}

// Window is an open interval of a gate within its cycle, in seconds.
type Window struct {
	Offset   float64 `json:"offset"`
	Duration float64 `json:"duration"`
}

// GateSchedule is the repeating open/close cycle of one gate.
type GateSchedule struct {
	Gate          GateRef  `json:"gate"`
	CycleDuration float64  `json:"cycle_duration"`
	Windows       []Window `json:"windows"`
}

// TalkerOffset is the start time assigned to one flow's talker.
type TalkerOffset struct {
	Flow   string  `json:"flow"`
	Offset float64 `json:"offset"`
}

// Output is a solver result. A flow without a talker offset was not placed.
type Output struct {
	GateSchedules []GateSchedule `json:"gate_schedules"`
	TalkerOffsets []TalkerOffset `json:"talker_offsets"`
}

// OffsetFor returns the talker offset assigned to the named flow.
func (o *Output) OffsetFor(name string) (float64, bool) {
	if o == nil {
		return 0, false
	}
	for _, t := range o.TalkerOffsets {
		if t.Flow == name {
			return t.Offset, true
		}
	}
	return 0, false
}

func sortSchedules(gs []GateSchedule) {
	sort.Slice(gs, func(i, j int) bool {
		a, b := gs[i].Gate, gs[j].Gate
		if a.Node != b.Node {
			return a.Node < b.Node
		}
		if a.Port != b.Port {
			return a.Port < b.Port
		}
		return a.Gate < b.Gate
	})
}

// Engine computes gate schedules and talker offsets for an Input.
// Compute must honour ctx cancellation where it can block.
type Engine interface {
	Name() string
	Compute(ctx context.Context, in *Input) (*Output, error)
}

// Config selects and parameterizes an engine. Loaded from YAML as part of a
// scenario.
type Config struct {
	Name    string    `yaml:"name"`
	Offsets []float64 `yaml:"offsets,omitempty"` // stub: offsets in flow order
	Spacing float64   `yaml:"spacing,omitempty"` // stub: offset step once Offsets run out
	Command string    `yaml:"command,omitempty"` // external: solver executable
	Args    []string  `yaml:"args,omitempty"`    // external: arguments before the script
	Script  string    `yaml:"script,omitempty"`  // external: solver script path
	WorkDir string    `yaml:"work_dir,omitempty"`
	Timeout float64   `yaml:"timeout,omitempty"` // seconds, 0 = DefaultTimeout
}

// ValidEngines is the set of recognized engine names.
// Shared by Config.Validate() and NewEngine() to avoid duplication.
var ValidEngines = map[string]bool{"": true, "stub": true, "greedy": true, "external": true}

// IsValidEngine returns true if name is a recognized engine.
func IsValidEngine(name string) bool { return ValidEngines[name] }

// Validate checks the engine name and the parameters it needs.
func (c *Config) Validate() error {
	if !IsValidEngine(c.Name) {
		return fmt.Errorf("unknown engine %q", c.Name)
	}
	if c.Spacing < 0 {
		return fmt.Errorf("spacing must be >= 0, got %v", c.Spacing)
	}
	for i, o := range c.Offsets {
		if o < 0 {
			return fmt.Errorf("offsets[%d] must be >= 0, got %v", i, o)
		}
	}
	if c.Timeout < 0 {
		return fmt.Errorf("timeout must be >= 0, got %v", c.Timeout)
	}
	if c.Name == "external" && c.Command == "" {
		return fmt.Errorf("external engine requires a command")
	}
	return nil
}

// NewEngine creates an engine by name. An empty name selects "greedy".
// Panics on unrecognized names.
func NewEngine(cfg Config) Engine {
	if !IsValidEngine(cfg.Name) {
		panic(fmt.Sprintf("unknown engine %q", cfg.Name))
	}
	switch cfg.Name {
	case "", "greedy":
		return &Greedy{}
	case "stub":
		return &Stub{Offsets: cfg.Offsets, Spacing: cfg.Spacing}
	case "external":
		return &External{Command: cfg.Command, Args: cfg.Args, Script: cfg.Script, WorkDir: cfg.WorkDir}
	default:
		panic(fmt.Sprintf("unhandled engine %q", cfg.Name))
	}
}
