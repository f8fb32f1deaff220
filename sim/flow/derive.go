package flow

import (
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/tsn-sim/tsn-sim/sim"
	"github.com/tsn-sim/tsn-sim/sim/stream"
	"github.com/tsn-sim/tsn-sim/sim/topology"
)

// Derive expands entries against topo. Each entry is matched against every
// ordered (source, destination) pair of distinct nodes; a pattern that
// matches nothing contributes no flows. A broken entry aborts the whole
// derivation with a configuration error. Flow names are unique within the
// result. The result is ordered by descending priority.
func Derive(entries []Entry, topo *topology.Topology) ([]Flow, error) {
	var flows []Flow
	// index into flows of the first flow of each entry, and how many it produced
	first := make([]int, len(entries))
	count := make([]int, len(entries))
	nodes := topo.Nodes()
	for i := range entries {
		e := &entries[i]
		if err := e.Validate(); err != nil {
			return nil, err
		}
		first[i] = len(flows)
		for _, src := range nodes {
			if !src.Matches(e.Source) {
				continue
			}
			for _, dst := range nodes {
				if dst.Index == src.Index || !dst.Matches(e.Destination) {
					continue
				}
				f, err := build(e, topo, src, dst)
				if err != nil {
					return nil, err
				}
				flows = append(flows, f)
				count[i]++
			}
		}
	}
	if err := assignNames(entries, flows, first, count); err != nil {
		return nil, err
	}
	for _, f := range flows {
		logrus.Debugf("[flow] %s: %s -> %s pcp=%d rate=%.0f bit/s path=%v",
			f.Name, topo.Node(f.Source.Device).Name, topo.Node(f.Destination).Name,
			f.Source.Priority, f.DataRate(), f.Path)
	}
	SortByPriority(flows)
	return flows, nil
}

// assignNames makes every flow name unique. An explicit name matching
// several pairs is suffixed with the match number, e.g. "control[1]". Two
// entries claiming the same name is a configuration error. Unnamed flows get
// "flow<N>" from a per-run counter that skips names already taken.
func assignNames(entries []Entry, flows []Flow, first, count []int) error {
	taken := make(map[string]string, len(flows)) // name -> owning entry
	for i := range entries {
		e := &entries[i]
		if e.Name == "" {
			continue
		}
		for k := 0; k < count[i]; k++ {
			name := e.Name
			if count[i] > 1 {
				name = fmt.Sprintf("%s[%d]", e.Name, k)
			}
			if owner, dup := taken[name]; dup {
				return sim.Errorf(sim.KindConfiguration, "flow.Derive", e.label(),
					"flow name %q already used by %s", name, owner)
			}
			taken[name] = fmt.Sprintf("entry %d", i)
			flows[first[i]+k].Name = name
		}
	}
	counter := 0
	for i := range flows {
		if flows[i].Name != "" {
			continue
		}
		name := fmt.Sprintf("flow%d", counter)
		counter++
		for taken[name] != "" {
			name = fmt.Sprintf("flow%d", counter)
			counter++
		}
		taken[name] = "generated"
		flows[i].Name = name
	}
	return nil
}

func build(e *Entry, topo *topology.Topology, src, dst topology.Node) (Flow, error) {
	app := e.application()
	if !src.HasApplication(app) {
		return Flow{}, sim.Errorf(sim.KindConfiguration, "flow.Derive", e.label(),
			"source %s has no application %q", src.Name, app)
	}
	f := Flow{
		Name:      e.Name,
		GateIndex: e.gateIndex(),
		Source: Application{
			Device:         src.Index,
			Name:           app,
			Priority:       e.Priority,
			PacketLength:   e.PacketLength,
			PacketInterval: e.PacketInterval,
			MaxLatency:     e.MaxLatency,
			MaxJitter:      e.MaxJitter,
		},
		Destination: dst.Index,
		Gamma:       e.Gamma,
		Start:       e.Start,
		End:         e.End,
	}
	if len(e.PathFragments) > 0 {
		fragments, path, err := resolveFragments(e, topo, src.Index, dst.Index)
		if err != nil {
			return Flow{}, err
		}
		f.PathFragments, f.Path = fragments, path
		return f, nil
	}
	f.Path = topo.ShortestPath(src.Index, dst.Index)
	if f.Path == nil {
		return Flow{}, sim.Errorf(sim.KindConfiguration, "flow.Derive", e.label(),
			"no path from %s to %s", src.Name, dst.Name)
	}
	return f, nil
}

// resolveFragments turns named fragments into index fragments and joins them
// into one path. Each fragment must continue where the previous one ended.
func resolveFragments(e *Entry, topo *topology.Topology, src, dst int) ([][]int, []int, error) {
	fail := func(format string, args ...any) ([][]int, []int, error) {
		return nil, nil, sim.Errorf(sim.KindConfiguration, "flow.Derive", e.label(), format, args...)
	}
	fragments := make([][]int, 0, len(e.PathFragments))
	var path []int
	seen := make(map[int]bool)
	for fi, names := range e.PathFragments {
		if len(names) == 0 {
			return fail("path fragment %d is empty", fi)
		}
		frag := make([]int, 0, len(names))
		for _, name := range names {
			idx, ok := topo.FindIndexByName(name)
			if !ok {
				return fail("path fragment %d names unknown node %q", fi, name)
			}
			frag = append(frag, idx)
		}
		fragments = append(fragments, frag)

		start := 0
		if len(path) > 0 {
			if path[len(path)-1] != frag[0] {
				return fail("path fragment %d does not continue from %s", fi, topo.Node(path[len(path)-1]).Name)
			}
			start = 1
		}
		for _, idx := range frag[start:] {
			if seen[idx] {
				return fail("path revisits %s", topo.Node(idx).Name)
			}
			if len(path) > 0 {
				if _, ok := topo.Node(path[len(path)-1]).LinkTo(idx); !ok {
					return fail("no link between %s and %s", topo.Node(path[len(path)-1]).Name, topo.Node(idx).Name)
				}
			}
			seen[idx] = true
			path = append(path, idx)
		}
	}
	if path[0] != src || path[len(path)-1] != dst {
		return fail("path must run from %s to %s", topo.Node(src).Name, topo.Node(dst).Name)
	}
	return fragments, path, nil
}

// FromRequest converts a resolved registration request into a flow named
// after the stream id, routed over the shortest path. Talker and listener
// must be devices and the talker must host app.
func FromRequest(req stream.Request, topo *topology.Topology, app string) (Flow, error) {
	const op = "flow.FromRequest"
	if err := req.Validate(); err != nil {
		return Flow{}, err
	}
	if !req.Resolved() || !topo.Valid(req.TalkerIndex) || !topo.Valid(req.ListenerIndex) {
		return Flow{}, sim.Errorf(sim.KindResolution, op, req.StreamID, "unresolved endpoint %s -> %s", req.Talker, req.Listener)
	}
	if req.TalkerIndex == req.ListenerIndex {
		return Flow{}, sim.Errorf(sim.KindInvalidRequest, op, req.StreamID, "talker and listener are the same node")
	}
	if !topo.IsDevice(req.TalkerIndex) || !topo.IsDevice(req.ListenerIndex) {
		return Flow{}, sim.Errorf(sim.KindInvalidRequest, op, req.StreamID, "talker %s and listener %s must both be devices", req.Talker, req.Listener)
	}
	if app == "" {
		app = DefaultApplication
	}
	if !topo.Node(req.TalkerIndex).HasApplication(app) {
		return Flow{}, sim.Errorf(sim.KindResolution, op, req.StreamID, "talker %s has no application %q", req.Talker, app)
	}
	path := topo.ShortestPath(req.TalkerIndex, req.ListenerIndex)
	if path == nil {
		return Flow{}, sim.Errorf(sim.KindResolution, op, req.StreamID, "no path from %s to %s", req.Talker, req.Listener)
	}
	return Flow{
		Name:      req.StreamID,
		GateIndex: req.Priority,
		Source: Application{
			Device:         req.TalkerIndex,
			Name:           app,
			Priority:       req.Priority,
			PacketLength:   req.PacketSize,
			PacketInterval: req.Period,
			MaxLatency:     req.MaxLatency,
			MaxJitter:      req.MaxJitter,
		},
		Destination: req.ListenerIndex,
		Path:        path,
		Gamma:       req.Gamma,
	}, nil
}
