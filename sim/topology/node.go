package topology

import "golang.org/x/exp/slices"

// Role separates bridges from end stations.
type Role int

const (
	RoleSwitch Role = iota
	RoleDevice
)

// String returns the string representation of Role
func (r Role) String() string {
	if r == RoleDevice {
		return "device"
	}
	return "switch"
}

// Node is a topology vertex. Nodes are created once by Discover and never
// mutated afterwards.
type Node struct {
	Index        int    // stable topological index, 0..N-1
	ModuleID     int    // external endpoint identifier
	Name         string // bare name, e.g. "device1"
	FullPath     string // fully-qualified name, e.g. "simpleTsn.device1"
	Role         Role
	Applications []string
	Links        []Link // outgoing links ordered by egress port
}

// Link is a directed edge. Nodes are referenced by index only.
type Link struct {
	Port       int     // local egress port on Src
	Src        int     // source node index
	Dst        int     // remote node index
	RemotePort int     // ingress port on Dst (the reverse link's egress port)
	Datarate   float64 // bit/s
}

// IsDevice reports whether n is an end station.
func (n Node) IsDevice() bool { return n.Role == RoleDevice }

// HasApplication reports whether n hosts the application sub-endpoint app.
func (n Node) HasApplication(app string) bool {
	return slices.Contains(n.Applications, app)
}

// LinkTo returns the outgoing link from n to node dst.
func (n Node) LinkTo(dst int) (Link, bool) {
	for _, l := range n.Links {
		if l.Dst == dst {
			return l, true
		}
	}
	return Link{}, false
}
