// Package flow expands declarative flow-pattern entries into concrete flows
// bound to topology endpoints, each with a path and timing constraints.
package flow

import (
	"golang.org/x/exp/slices"
)

// Application describes the talker side of a flow.
type Application struct {
	Device         int     `json:"device"` // node index of the talker device
	Name           string  `json:"name"`   // relative sub-endpoint, e.g. "app[0]"
	Priority       int     `json:"priority"`
	PacketLength   int     `json:"packet_length"`   // bytes
	PacketInterval float64 `json:"packet_interval"` // seconds
	MaxLatency     float64 `json:"max_latency"`
	MaxJitter      float64 `json:"max_jitter"`
}

// Flow is one schedulable unit of periodic traffic bound to a concrete path.
type Flow struct {
	Name          string      `json:"name"`
	GateIndex     int         `json:"gate_index"` // egress gate at the first hop
	Source        Application `json:"source"`
	Destination   int         `json:"destination"` // node index of the listener device
	Path          []int       `json:"path"`        // node indices, talker first, listener last
	PathFragments [][]int     `json:"path_fragments,omitempty"`
	Gamma         float64     `json:"gamma"`
	Start         float64     `json:"start"`
	End           float64     `json:"end"` // 0 = no end
}

// ActiveAt reports whether t falls inside the flow's validity window.
func (f *Flow) ActiveAt(t float64) bool {
	if t < f.Start {
		return false
	}
	return f.End == 0 || t < f.End
}

// DataRate returns the flow's bandwidth in bit/s.
func (f *Flow) DataRate() float64 {
	return float64(f.Source.PacketLength*8) / f.Source.PacketInterval
}

// Hops returns the number of links the flow traverses.
func (f *Flow) Hops() int {
	if len(f.Path) == 0 {
		return 0
	}
	return len(f.Path) - 1
}

// SortByPriority orders flows by descending priority, keeping the relative
// order of flows with equal priority.
func SortByPriority(flows []Flow) {
	slices.SortStableFunc(flows, func(a, b Flow) int {
		return b.Source.Priority - a.Source.Priority
	})
}
