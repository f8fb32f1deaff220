package cmd

import (
	"fmt"
	"io"
	"strings"
	"time"

	"golang.org/x/exp/slices"

	"github.com/tsn-sim/tsn-sim/sim"
	"github.com/tsn-sim/tsn-sim/sim/engine"
	"github.com/tsn-sim/tsn-sim/sim/scenario"
	"github.com/tsn-sim/tsn-sim/sim/topology"
)

// printReport writes per-stream outcomes and, when decisions were traced,
// the aggregate summary.
func printReport(w io.Writer, res *scenario.Result, elapsed time.Duration) {
	fmt.Fprintln(w, "=== Admission Results ===")
	fmt.Fprintf(w, "Simulated Time       : %.6f s\n", sim.TicksToSeconds(res.EndTick))
	fmt.Fprintf(w, "Events Executed      : %d\n", res.Events)
	fmt.Fprintf(w, "Batches              : %d\n", res.Batches)
	fmt.Fprintf(w, "Pending Requests     : %d\n", res.Pending)
	fmt.Fprintf(w, "Wall Time            : %s\n", elapsed.Round(time.Millisecond))

	fmt.Fprintln(w, "Stream\tTalker\tAdmitted\tOffset(s)\tFirstPacket(s)\tPackets")
	for _, o := range res.Outcomes {
		first := "-"
		if o.FirstPacket >= 0 {
			first = fmt.Sprintf("%.6f", sim.TicksToSeconds(o.FirstPacket))
		}
		status := "pending"
		if o.Responses > 0 {
			status = fmt.Sprintf("%t", o.Admitted)
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%.6f\t%s\t%d\n", o.StreamID, o.Device, status, o.Offset, first, o.PacketsSent)
	}

	if s := res.Summary; s != nil && (s.TotalDecisions > 0 || s.TotalBatches > 0) {
		fmt.Fprintln(w, "=== Decision Trace ===")
		fmt.Fprintf(w, "Decisions            : %d (%d admitted, %d rejected)\n", s.TotalDecisions, s.AdmittedCount, s.RejectedCount)
		fmt.Fprintf(w, "Batches              : %d (%d failed, %d aborted)\n", s.TotalBatches, s.FailedBatches, s.AbortedBatches)
		fmt.Fprintf(w, "Mean Offset          : %.6f s\n", s.MeanOffset)
		fmt.Fprintf(w, "Max Offset           : %.6f s\n", s.MaxOffset)
		talkers := make([]string, 0, len(s.TalkerDistribution))
		for name := range s.TalkerDistribution {
			talkers = append(talkers, name)
		}
		slices.Sort(talkers)
		for _, name := range talkers {
			fmt.Fprintf(w, "  %s: %d admitted\n", name, s.TalkerDistribution[name])
		}
	}

	if res.LastOutput != nil && len(res.LastOutput.GateSchedules) > 0 {
		fmt.Fprintln(w, "=== Gate Schedules ===")
		printSchedules(w, res.LastOutput)
	}
}

func printSchedules(w io.Writer, out *engine.Output) {
	for _, gs := range out.GateSchedules {
		windows := make([]string, 0, len(gs.Windows))
		for _, win := range gs.Windows {
			windows = append(windows, fmt.Sprintf("%.6f+%.6f", win.Offset, win.Duration))
		}
		fmt.Fprintf(w, "node %d port %d gate %d cycle %.6f: %s\n", gs.Gate.Node, gs.Gate.Port, gs.Gate.Gate, gs.CycleDuration, strings.Join(windows, " "))
	}
}

// printFlows lists flows in the order the engine receives them.
func printFlows(w io.Writer, topo *topology.Topology, in *engine.Input) {
	fmt.Fprintf(w, "%d flows, gate cycle %.6f s\n", len(in.Flows), in.GateCycleDuration)
	fmt.Fprintln(w, "Name\tPriority\tGate\tSource\tDestination\tPath")
	for _, f := range in.Flows {
		hops := make([]string, 0, len(f.Path))
		for _, idx := range f.Path {
			hops = append(hops, topo.Node(idx).Name)
		}
		fmt.Fprintf(w, "%s\t%d\t%d\t%s\t%s\t%s\n", f.Name, f.Source.Priority, f.GateIndex,
			topo.Node(f.Source.Device).Name, topo.Node(f.Destination).Name, strings.Join(hops, " -> "))
	}
}
