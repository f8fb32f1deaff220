// Package testutil provides shared test infrastructure for the simulator.
// It consolidates topology fixtures and assertion helpers used across the
// sim/ sub-package tests.
package testutil

import (
	"math"
	"testing"

	"github.com/tsn-sim/tsn-sim/sim/topology"
)

// DefaultApp is the application sub-endpoint every fixture device hosts.
const DefaultApp = "app[0]"

func device(name string) topology.NodeSpec {
	return topology.NodeSpec{Name: name, Applications: []string{DefaultApp}}
}

// LinearDescription is device1 - switchA - switchB - device2.
func LinearDescription() topology.Description {
	return topology.Description{
		Network: "simpleTsn",
		Nodes: []topology.NodeSpec{
			device("device1"),
			{Name: "switchA"},
			{Name: "switchB"},
			device("device2"),
		},
		Links: []topology.LinkSpec{
			{A: "device1", B: "switchA"},
			{A: "switchA", B: "switchB"},
			{A: "switchB", B: "device2"},
		},
	}
}

// StarDescription is two connected switches with two devices each:
// device1, device2 on switch1 and device3, device4 on switch2.
func StarDescription() topology.Description {
	return topology.Description{
		Network: "tsnStar",
		Nodes: []topology.NodeSpec{
			{Name: "switch1"},
			{Name: "switch2"},
			device("device1"),
			device("device2"),
			device("device3"),
			device("device4"),
		},
		Links: []topology.LinkSpec{
			{A: "switch1", B: "switch2"},
			{A: "device1", B: "switch1"},
			{A: "device2", B: "switch1"},
			{A: "device3", B: "switch2"},
			{A: "device4", B: "switch2"},
		},
	}
}

// DiamondDescription has two equal-length routes between device1 and device2,
// through switchC (index 2) or switchB (index 3).
func DiamondDescription() topology.Description {
	return topology.Description{
		Nodes: []topology.NodeSpec{
			device("device1"),
			{Name: "switchA"},
			{Name: "switchC"},
			{Name: "switchB"},
			{Name: "switchD"},
			device("device2"),
		},
		Links: []topology.LinkSpec{
			{A: "device1", B: "switchA"},
			{A: "switchA", B: "switchB"},
			{A: "switchA", B: "switchC"},
			{A: "switchB", B: "switchD"},
			{A: "switchC", B: "switchD"},
			{A: "switchD", B: "device2"},
		},
	}
}

// MustDiscover discovers desc or fails the test.
func MustDiscover(t *testing.T, desc topology.Description) *topology.Topology {
	t.Helper()
	topo, err := topology.Discover(desc)
	if err != nil {
		t.Fatalf("Discover: %v", err)
	}
	return topo
}

// MustIndex returns the index of name or fails the test.
func MustIndex(t *testing.T, topo *topology.Topology, name string) int {
	t.Helper()
	i, ok := topo.FindIndexByName(name)
	if !ok {
		t.Fatalf("node %q not found", name)
	}
	return i
}

// AssertFloat64Equal compares two float64 values with relative tolerance.
func AssertFloat64Equal(t *testing.T, name string, want, got, relTol float64) {
	t.Helper()
	if want == 0 && got == 0 {
		return
	}
	diff := math.Abs(want - got)
	maxVal := math.Max(math.Abs(want), math.Abs(got))
	if diff/maxVal > relTol {
		t.Errorf("%s: got %v, want %v (diff=%v, relDiff=%v)", name, got, want, diff, diff/maxVal)
	}
}
