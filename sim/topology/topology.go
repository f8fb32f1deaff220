// Package topology discovers the network structure once and answers index,
// name and path queries against it.
package topology

import (
	"bufio"
	"bytes"
	"fmt"
	"io"

	"github.com/sirupsen/logrus"
	"gonum.org/v1/gonum/graph"
	"gonum.org/v1/gonum/graph/simple"
	"gonum.org/v1/gonum/graph/traverse"

	"github.com/tsn-sim/tsn-sim/sim"
)

// Topology is an immutable index over discovered nodes. Nodes live in one
// owned slice; links and lookups refer to them by index.
type Topology struct {
	network string
	nodes   []Node
	graph   *simple.DirectedGraph
}

// Discover walks desc once and returns the index. Nodes are indexed in
// declaration order. Every LinkSpec yields a forward and a reverse Link.
func Discover(desc Description) (*Topology, error) {
	pattern := desc.DevicePattern
	if pattern == "" {
		pattern = DefaultDevicePattern
	}
	t := &Topology{
		network: desc.Network,
		nodes:   make([]Node, 0, len(desc.Nodes)),
		graph:   simple.NewDirectedGraph(),
	}
	byName := make(map[string]int, len(desc.Nodes))
	moduleIDs := make(map[int]string, len(desc.Nodes))
	for i, spec := range desc.Nodes {
		if spec.Name == "" {
			return nil, sim.Errorf(sim.KindConfiguration, "topology.Discover", fmt.Sprintf("nodes[%d]", i), "node name must not be empty")
		}
		if _, dup := byName[spec.Name]; dup {
			return nil, sim.Errorf(sim.KindConfiguration, "topology.Discover", spec.Name, "duplicate node name")
		}
		moduleID := spec.ModuleID
		if moduleID == 0 {
			moduleID = i + 1
		}
		if other, dup := moduleIDs[moduleID]; dup {
			return nil, sim.Errorf(sim.KindConfiguration, "topology.Discover", spec.Name, "module id %d already used by %s", moduleID, other)
		}
		moduleIDs[moduleID] = spec.Name
		byName[spec.Name] = i

		n := Node{
			Index:        i,
			ModuleID:     moduleID,
			Name:         spec.Name,
			FullPath:     qualify(desc.Network, spec.Name),
			Applications: append([]string(nil), spec.Applications...),
		}
		if n.Matches(pattern) {
			n.Role = RoleDevice
		}
		t.nodes = append(t.nodes, n)
		t.graph.AddNode(simple.Node(i))
	}

	for i, spec := range desc.Links {
		subject := fmt.Sprintf("links[%d]", i)
		a, okA := byName[spec.A]
		b, okB := byName[spec.B]
		if !okA || !okB {
			return nil, sim.Errorf(sim.KindConfiguration, "topology.Discover", subject, "unknown endpoint in %s <-> %s", spec.A, spec.B)
		}
		if a == b {
			return nil, sim.Errorf(sim.KindConfiguration, "topology.Discover", subject, "self link on %s", spec.A)
		}
		if t.graph.HasEdgeFromTo(int64(a), int64(b)) {
			return nil, sim.Errorf(sim.KindConfiguration, "topology.Discover", subject, "duplicate link %s <-> %s", spec.A, spec.B)
		}
		rate := spec.Datarate
		if rate <= 0 {
			rate = DefaultDatarate
		}
		portA, portB := len(t.nodes[a].Links), len(t.nodes[b].Links)
		t.nodes[a].Links = append(t.nodes[a].Links, Link{Port: portA, Src: a, Dst: b, RemotePort: portB, Datarate: rate})
		t.nodes[b].Links = append(t.nodes[b].Links, Link{Port: portB, Src: b, Dst: a, RemotePort: portA, Datarate: rate})
		t.graph.SetEdge(t.graph.NewEdge(simple.Node(a), simple.Node(b)))
		t.graph.SetEdge(t.graph.NewEdge(simple.Node(b), simple.Node(a)))
	}

	t.LogAdjacency()
	return t, nil
}

func qualify(network, name string) string {
	if network == "" {
		return name
	}
	return network + "." + name
}

// NodeCount returns the number of discovered nodes.
func (t *Topology) NodeCount() int { return len(t.nodes) }

// Node returns the node with index i. Panics on an out-of-range index.
func (t *Topology) Node(i int) Node { return t.nodes[i] }

// Nodes returns all nodes in index order. The slice must not be modified.
func (t *Topology) Nodes() []Node { return t.nodes }

// Valid reports whether i is a node index.
func (t *Topology) Valid(i int) bool { return i >= 0 && i < len(t.nodes) }

// FindIndexByName returns the index of the node named name.
func (t *Topology) FindIndexByName(name string) (int, bool) {
	for i := range t.nodes {
		if t.nodes[i].Name == name {
			return i, true
		}
	}
	return -1, false
}

// ModuleIDFor returns the module id of the node named name.
func (t *Topology) ModuleIDFor(name string) (int, bool) {
	i, ok := t.FindIndexByName(name)
	if !ok {
		return -1, false
	}
	return t.nodes[i].ModuleID, true
}

// IsDevice reports whether node i is a device.
func (t *Topology) IsDevice(i int) bool { return t.Valid(i) && t.nodes[i].IsDevice() }

// Switches returns the indices of all switch nodes in index order.
func (t *Topology) Switches() []int { return t.byRole(RoleSwitch) }

// Devices returns the indices of all device nodes in index order.
func (t *Topology) Devices() []int { return t.byRole(RoleDevice) }

func (t *Topology) byRole(r Role) []int {
	out := make([]int, 0, len(t.nodes))
	for i := range t.nodes {
		if t.nodes[i].Role == r {
			out = append(out, i)
		}
	}
	return out
}

// ShortestPath returns the fewest-hop path from src to dst as node indices,
// both ends included. Among equal-length paths the one whose index sequence
// is lexically smallest wins. Devices other than src and dst never forward.
// Returns nil when dst is unreachable.
func (t *Topology) ShortestPath(src, dst int) []int {
	if !t.Valid(src) || !t.Valid(dst) {
		return nil
	}
	if src == dst {
		return []int{src}
	}

	// Hop distance of every usable node to dst. Links are bidirectional, so a
	// BFS rooted at dst over forward edges yields distances towards dst.
	depth := make(map[int]int, len(t.nodes))
	bfs := traverse.BreadthFirst{
		Traverse: func(e graph.Edge) bool {
			to := int(e.To().ID())
			return to == src || !t.nodes[to].IsDevice()
		},
	}
	bfs.Walk(t.graph, simple.Node(dst), func(n graph.Node, d int) bool {
		depth[int(n.ID())] = d
		return false
	})

	d, ok := depth[src]
	if !ok {
		return nil
	}
	path := make([]int, 0, d+1)
	path = append(path, src)
	for u := src; u != dst; d-- {
		next := -1
		for _, l := range t.nodes[u].Links {
			if dv, ok := depth[l.Dst]; ok && dv == d-1 && (next < 0 || l.Dst < next) {
				next = l.Dst
			}
		}
		path = append(path, next)
		u = next
	}
	return path
}

// Dump writes a human-readable adjacency listing followed by the
// index -> module id mapping.
func (t *Topology) Dump(w io.Writer) {
	fmt.Fprintf(w, "%d nodes detected\n", len(t.nodes))
	for _, n := range t.nodes {
		fmt.Fprintf(w, "Node(%d)%s [%s] with %d outgoing links\n", n.ModuleID, n.Name, n.Role, len(n.Links))
		for _, l := range n.Links {
			remote := t.nodes[l.Dst]
			fmt.Fprintf(w, "  --> Node(%d)%s via port %d (%.0f bit/s)\n", remote.ModuleID, remote.Name, l.Port, l.Datarate)
		}
	}
	fmt.Fprintln(w, "TopoIndex\tModuleId\tPath")
	for _, n := range t.nodes {
		fmt.Fprintf(w, "%d\t%d\t%s\n", n.Index, n.ModuleID, n.FullPath)
	}
}

// LogAdjacency emits Dump through the logger, one line per entry.
func (t *Topology) LogAdjacency() {
	if !logrus.IsLevelEnabled(logrus.InfoLevel) {
		return
	}
	var buf bytes.Buffer
	t.Dump(&buf)
	sc := bufio.NewScanner(&buf)
	for sc.Scan() {
		logrus.Info(sc.Text())
	}
}
