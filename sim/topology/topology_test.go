package topology_test

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tsn-sim/tsn-sim/sim"
	"github.com/tsn-sim/tsn-sim/sim/internal/testutil"
	"github.com/tsn-sim/tsn-sim/sim/topology"
)

func TestDiscover_IndexStability(t *testing.T) {
	desc := testutil.StarDescription()
	first := testutil.MustDiscover(t, desc)
	second := testutil.MustDiscover(t, desc)

	require.Equal(t, first.NodeCount(), second.NodeCount())
	for i, n := range first.Nodes() {
		assert.Equal(t, i, n.Index)
		assert.Equal(t, n.Name, second.Node(i).Name)
		j, ok := first.FindIndexByName(n.Name)
		require.True(t, ok)
		assert.Equal(t, i, j)
	}
}

func TestDiscover_RolesAndModuleIDs(t *testing.T) {
	topo := testutil.MustDiscover(t, testutil.StarDescription())

	assert.Equal(t, []int{0, 1}, topo.Switches())
	assert.Equal(t, []int{2, 3, 4, 5}, topo.Devices())
	assert.True(t, topo.IsDevice(2))
	assert.False(t, topo.IsDevice(0))
	assert.False(t, topo.IsDevice(42))

	id, ok := topo.ModuleIDFor("device3")
	require.True(t, ok)
	assert.Equal(t, 5, id)
	_, ok = topo.ModuleIDFor("nope")
	assert.False(t, ok)

	assert.Equal(t, "tsnStar.device1", topo.Node(2).FullPath)
}

func TestDiscover_ExplicitModuleID(t *testing.T) {
	desc := testutil.LinearDescription()
	desc.Nodes[0].ModuleID = 100
	topo := testutil.MustDiscover(t, desc)
	id, _ := topo.ModuleIDFor("device1")
	assert.Equal(t, 100, id)
}

func TestDiscover_PortsAreReciprocal(t *testing.T) {
	topo := testutil.MustDiscover(t, testutil.StarDescription())
	for _, n := range topo.Nodes() {
		for port, l := range n.Links {
			assert.Equal(t, port, l.Port)
			assert.Equal(t, n.Index, l.Src)
			back, ok := topo.Node(l.Dst).LinkTo(n.Index)
			require.True(t, ok, "missing reverse link %s -> %d", n.Name, l.Dst)
			assert.Equal(t, l.Port, back.RemotePort)
			assert.Equal(t, l.RemotePort, back.Port)
			assert.Equal(t, topology.DefaultDatarate, l.Datarate)
		}
	}
}

func TestDiscover_ConfigurationErrors(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*topology.Description)
	}{
		{"empty name", func(d *topology.Description) { d.Nodes[1].Name = "" }},
		{"duplicate name", func(d *topology.Description) { d.Nodes[1].Name = "device1" }},
		{"duplicate module id", func(d *topology.Description) { d.Nodes[0].ModuleID = 2 }},
		{"unknown endpoint", func(d *topology.Description) { d.Links[0].B = "ghost" }},
		{"self link", func(d *topology.Description) { d.Links[0].B = "device1" }},
		{"duplicate link", func(d *topology.Description) {
			d.Links = append(d.Links, topology.LinkSpec{A: "switchA", B: "device1"})
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			desc := testutil.LinearDescription()
			tt.mutate(&desc)
			_, err := topology.Discover(desc)
			require.Error(t, err)
			assert.ErrorIs(t, err, sim.ErrConfiguration)
		})
	}
}

func TestShortestPath_Linear(t *testing.T) {
	topo := testutil.MustDiscover(t, testutil.LinearDescription())
	src := testutil.MustIndex(t, topo, "device1")
	dst := testutil.MustIndex(t, topo, "device2")

	path := topo.ShortestPath(src, dst)

	var names []string
	for _, i := range path {
		names = append(names, topo.Node(i).Name)
	}
	assert.Equal(t, []string{"device1", "switchA", "switchB", "device2"}, names)
	assert.Equal(t, []int{3, 2, 1, 0}, topo.ShortestPath(dst, src))
}

func TestShortestPath_TieBreakLowestIndex(t *testing.T) {
	topo := testutil.MustDiscover(t, testutil.DiamondDescription())
	// switchC has index 2, switchB index 3.
	assert.Equal(t, []int{0, 1, 2, 4, 5}, topo.ShortestPath(0, 5))
}

func TestShortestPath_DevicesDoNotForward(t *testing.T) {
	desc := topology.Description{
		Nodes: []topology.NodeSpec{{Name: "device1"}, {Name: "device2"}, {Name: "device3"}},
		Links: []topology.LinkSpec{{A: "device1", B: "device2"}, {A: "device2", B: "device3"}},
	}
	topo := testutil.MustDiscover(t, desc)
	assert.Nil(t, topo.ShortestPath(0, 2))
	assert.Equal(t, []int{0, 1}, topo.ShortestPath(0, 1))
}

func TestShortestPath_Degenerate(t *testing.T) {
	topo := testutil.MustDiscover(t, testutil.LinearDescription())
	assert.Equal(t, []int{1}, topo.ShortestPath(1, 1))
	assert.Nil(t, topo.ShortestPath(0, 99))
	assert.Nil(t, topo.ShortestPath(-1, 0))
}

func TestMatchPattern_Anchored(t *testing.T) {
	assert.True(t, topology.MatchPattern("device1", "device1"))
	assert.False(t, topology.MatchPattern("device1", "device10"))
	assert.True(t, topology.MatchPattern("device*", "device10"))
	assert.True(t, topology.MatchPattern("*.device1", "simpleTsn.device1"))
	assert.False(t, topology.MatchPattern("*.device1", "net.sub.device1"))
	assert.True(t, topology.MatchPattern("device?", "device3"))
	assert.False(t, topology.MatchPattern("[", "device1"))
}

func TestNode_Matches(t *testing.T) {
	desc := testutil.StarDescription()
	desc.Nodes = append(desc.Nodes, topology.NodeSpec{Name: "device10"})
	topo := testutil.MustDiscover(t, desc)

	var matched []string
	for _, n := range topo.Nodes() {
		if n.Matches("device1") {
			matched = append(matched, n.Name)
		}
	}
	assert.Equal(t, []string{"device1"}, matched)

	n := topo.Node(testutil.MustIndex(t, topo, "device2"))
	assert.True(t, n.Matches("tsnStar.device2"))
	assert.True(t, n.Matches("tsnStar.*"))
	assert.False(t, n.Matches("other.device2"))
}

func TestNode_HasApplication(t *testing.T) {
	topo := testutil.MustDiscover(t, testutil.LinearDescription())
	assert.True(t, topo.Node(0).HasApplication(testutil.DefaultApp))
	assert.False(t, topo.Node(1).HasApplication(testutil.DefaultApp))
}

func TestDump(t *testing.T) {
	topo := testutil.MustDiscover(t, testutil.LinearDescription())
	var buf bytes.Buffer
	topo.Dump(&buf)
	out := buf.String()
	assert.Contains(t, out, "4 nodes detected")
	assert.Contains(t, out, "Node(1)device1 [device] with 1 outgoing links")
	assert.Contains(t, out, "  --> Node(2)switchA via port 0 (1000000000 bit/s)")
	assert.Contains(t, out, "2\t3\tsimpleTsn.switchB")
}
