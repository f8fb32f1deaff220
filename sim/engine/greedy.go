package engine

import (
	"context"
	"math"

	"github.com/sirupsen/logrus"
	"golang.org/x/exp/slices"

	"github.com/tsn-sim/tsn-sim/sim"
	"github.com/tsn-sim/tsn-sim/sim/flow"
)

// maxInstances caps how many times one flow repeats inside the hyperperiod.
const maxInstances = 100_000

// Greedy places flows one at a time, in input order, at the earliest talker
// offset whose frames collide with no already reserved frame on any egress
// port along the path. Frames are store-and-forward with no queuing, so each
// hop starts when the previous hop's transmission ends. Flows that cannot be
// placed within one period, or whose path latency exceeds their bound, are
// left out of the Output.
type Greedy struct{}

// Name implements Engine.
func (g *Greedy) Name() string { return "greedy" }

type portKey struct{ node, port int }

type interval struct{ start, end int64 }

// Compute implements Engine. All arithmetic runs on integer ticks.
func (g *Greedy) Compute(ctx context.Context, in *Input) (*Output, error) {
	cycle, err := hyperperiod(in)
	if err != nil {
		return nil, err
	}

	ports := make(map[[2]int]PortRef, len(in.Ports))
	for _, p := range in.Ports {
		ports[[2]int{p.Node, p.Remote}] = p
	}
	switches := make(map[int]bool, len(in.Switches))
	for _, s := range in.Switches {
		switches[s.Index] = true
	}

	busy := make(map[portKey][]interval)
	windows := make(map[GateRef][]Window)
	out := &Output{}

	for i := range in.Flows {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		f := &in.Flows[i]
		hops, ok := hopsOf(f, ports)
		if !ok {
			logrus.Warnf("[engine] greedy: flow %s has a hop without a port, skipped", f.Name)
			continue
		}
		period := sim.SecondsToTicks(f.Source.PacketInterval)
		if cycle/period > maxInstances {
			logrus.Warnf("[engine] greedy: flow %s repeats %d times per cycle, skipped", f.Name, cycle/period)
			continue
		}
		latency := int64(0)
		fits := true
		for _, h := range hops {
			latency += h.tx
			fits = fits && h.tx <= period
		}
		if !fits {
			logrus.Debugf("[engine] greedy: flow %s frame is longer than its period", f.Name)
			continue
		}
		if f.Source.MaxLatency > 0 && latency > sim.SecondsToTicks(f.Source.MaxLatency) {
			logrus.Debugf("[engine] greedy: flow %s latency %d ticks exceeds bound", f.Name, latency)
			continue
		}
		offset, placed := place(hops, period, cycle, busy)
		if !placed {
			logrus.Debugf("[engine] greedy: no slot for flow %s", f.Name)
			continue
		}
		reserve(f, hops, offset, period, cycle, busy, windows, switches)
		out.TalkerOffsets = append(out.TalkerOffsets, TalkerOffset{Flow: f.Name, Offset: sim.TicksToSeconds(offset)})
	}

	cycleSeconds := sim.TicksToSeconds(cycle)
	for gate, ws := range windows {
		sortWindows(ws)
		out.GateSchedules = append(out.GateSchedules, GateSchedule{Gate: gate, CycleDuration: cycleSeconds, Windows: ws})
	}
	sortSchedules(out.GateSchedules)
	return out, nil
}

type hop struct {
	port  PortRef
	delay int64 // ticks from talker offset to start of transmission on this hop
	tx    int64 // transmission time in ticks
}

func hopsOf(f *flow.Flow, ports map[[2]int]PortRef) ([]hop, bool) {
	hops := make([]hop, 0, f.Hops())
	var delay int64
	for k := 0; k+1 < len(f.Path); k++ {
		p, ok := ports[[2]int{f.Path[k], f.Path[k+1]}]
		if !ok || p.Datarate <= 0 {
			return nil, false
		}
		tx := int64(math.Ceil(float64(f.Source.PacketLength*8) / p.Datarate * sim.TicksPerSecond))
		if tx == 0 {
			tx = 1
		}
		hops = append(hops, hop{port: p, delay: delay, tx: tx})
		delay += tx
	}
	return hops, true
}

// hyperperiod is the least common multiple of every flow period and the
// configured gate cycle.
func hyperperiod(in *Input) (int64, error) {
	var h int64 = 1
	add := func(seconds float64) error {
		t := sim.SecondsToTicks(seconds)
		if t <= 0 {
			return sim.Errorf(sim.KindEngineInfeasible, "engine.greedy", "", "period %v rounds to zero ticks", seconds)
		}
		g := gcd(h, t)
		if h/g > math.MaxInt64/t {
			return sim.Errorf(sim.KindEngineInfeasible, "engine.greedy", "", "hyperperiod overflows")
		}
		h = h / g * t
		return nil
	}
	if in.GateCycleDuration > 0 {
		if err := add(in.GateCycleDuration); err != nil {
			return 0, err
		}
	}
	for i := range in.Flows {
		if err := add(in.Flows[i].Source.PacketInterval); err != nil {
			return 0, err
		}
	}
	return h, nil
}

func gcd(a, b int64) int64 {
	for b != 0 {
		a, b = b, a%b
	}
	return a
}

// pieces splits [start, start+length) modulo cycle into non-wrapping parts.
func pieces(start, length, cycle int64) []interval {
	start %= cycle
	end := start + length
	if end <= cycle {
		return []interval{{start, end}}
	}
	return []interval{{start, cycle}, {0, end - cycle}}
}

// place returns the earliest offset in [0, period) at which every instance
// of every hop is free.
func place(hops []hop, period, cycle int64, busy map[portKey][]interval) (int64, bool) {
	offset := int64(0)
	for offset < period {
		shift := collision(hops, offset, period, cycle, busy)
		if shift == 0 {
			return offset, true
		}
		offset += shift
	}
	return 0, false
}

// collision returns how far the offset must move to clear the first
// conflict found, or 0 when there is none.
func collision(hops []hop, offset, period, cycle int64, busy map[portKey][]interval) int64 {
	for _, h := range hops {
		taken := busy[portKey{h.port.Node, h.port.Port}]
		if len(taken) == 0 {
			continue
		}
		for inst := int64(0); inst < cycle/period; inst++ {
			for _, p := range pieces(offset+h.delay+inst*period, h.tx, cycle) {
				for _, t := range taken {
					if p.start < t.end && t.start < p.end {
						return t.end - p.start
					}
				}
			}
		}
	}
	return 0
}

func reserve(f *flow.Flow, hops []hop, offset, period, cycle int64, busy map[portKey][]interval, windows map[GateRef][]Window, switches map[int]bool) {
	for _, h := range hops {
		key := portKey{h.port.Node, h.port.Port}
		gate := GateRef{Node: h.port.Node, Port: h.port.Port, Gate: f.GateIndex}
		for inst := int64(0); inst < cycle/period; inst++ {
			for _, p := range pieces(offset+h.delay+inst*period, h.tx, cycle) {
				busy[key] = append(busy[key], p)
				if switches[h.port.Node] {
					windows[gate] = append(windows[gate], Window{
						Offset:   sim.TicksToSeconds(p.start),
						Duration: sim.TicksToSeconds(p.end - p.start),
					})
				}
			}
		}
	}
}

func sortWindows(ws []Window) {
	slices.SortFunc(ws, func(a, b Window) int {
		switch {
		case a.Offset < b.Offset:
			return -1
		case a.Offset > b.Offset:
			return 1
		}
		return 0
	})
}
