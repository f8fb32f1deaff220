package scenario

import (
	"time"

	"github.com/sirupsen/logrus"

	"github.com/tsn-sim/tsn-sim/sim"
	"github.com/tsn-sim/tsn-sim/sim/cnc"
	"github.com/tsn-sim/tsn-sim/sim/cuc"
	"github.com/tsn-sim/tsn-sim/sim/engine"
	"github.com/tsn-sim/tsn-sim/sim/flow"
	"github.com/tsn-sim/tsn-sim/sim/metrics"
	"github.com/tsn-sim/tsn-sim/sim/talker"
	"github.com/tsn-sim/tsn-sim/sim/topology"
	"github.com/tsn-sim/tsn-sim/sim/trace"
)

// Options carries the collaborators a run may record into.
type Options struct {
	Metrics *metrics.Collector
	Trace   *trace.SimulationTrace
	Engine  engine.Engine // overrides Controller.Engine when set
}

// Run is a wired, not yet executed scenario.
type Run struct {
	Simulator    *sim.Simulator
	Topology     *topology.Topology
	Orchestrator *cnc.Orchestrator
	Aggregator   *cuc.Aggregator
	Talkers      []*talker.Talker

	trace *trace.SimulationTrace
}

// Result summarizes an executed scenario.
type Result struct {
	Outcomes   []talker.Outcome
	Batches    int
	Pending    int // requests still waiting for a batch at the horizon
	EndTick    int64
	Events     int
	LastOutput *engine.Output
	Summary    *trace.TraceSummary
}

// Build discovers the topology and wires every component. The spec must
// already be valid.
func Build(spec *Spec, opts Options) (*Run, error) {
	topo, err := topology.Discover(spec.Topology)
	if err != nil {
		return nil, err
	}

	s := sim.NewSimulator(sim.SecondsToTicks(spec.Horizon))
	s.DeliveryLatency = sim.SecondsToTicks(spec.Controller.DeliveryLatency)

	eng := opts.Engine
	if eng == nil {
		eng = engine.NewEngine(spec.Controller.Engine)
	}
	timeout := engine.DefaultTimeout
	if spec.Controller.Engine.Timeout > 0 {
		timeout = time.Duration(spec.Controller.Engine.Timeout * float64(time.Second))
	}
	orch := cnc.New(cnc.Config{
		Entries:           spec.Flows,
		GateCycleDuration: spec.Controller.GateCycleDuration,
		EngineTimeout:     timeout,
		Application:       spec.Controller.Application,
		Now:               s.Now,
	}, topo, eng, cnc.WithMetrics(opts.Metrics), cnc.WithTrace(opts.Trace))

	dist := cuc.NewDistributor(topo, s, spec.Controller.FeedbackEndpoint, opts.Metrics)
	agg, err := cuc.NewAggregator(cuc.Config{
		BatchSize:    spec.Controller.BatchSize,
		FlushTimeout: sim.SecondsToTicks(spec.Controller.FlushTimeout),
	}, topo, orch, dist, s, opts.Metrics)
	if err != nil {
		return nil, err
	}
	endpoint := spec.Controller.Endpoint
	if endpoint == "" {
		endpoint = cuc.DefaultEndpoint
	}
	agg.Listen(endpoint)

	run := &Run{Simulator: s, Topology: topo, Orchestrator: orch, Aggregator: agg, trace: opts.Trace}
	devices := make(map[string]*talker.Device)
	for _, tc := range spec.Talkers {
		dev, ok := devices[tc.Device]
		if !ok {
			dev = talker.NewDevice(tc.Device, s, endpoint, spec.Controller.FeedbackEndpoint)
			devices[tc.Device] = dev
		}
		run.Talkers = append(run.Talkers, dev.Add(tc))
	}
	logrus.Infof("[scenario] %d nodes, %d flow entries, %d talkers, batch size %d, engine %s",
		topo.NodeCount(), len(spec.Flows), len(spec.Talkers), agg.BatchSize(), eng.Name())
	return run, nil
}

// Execute starts every talker and runs the simulator to the horizon.
func (r *Run) Execute() *Result {
	for _, t := range r.Talkers {
		t.Start()
	}
	r.Simulator.Run()

	res := &Result{
		Batches:    r.Aggregator.Batches(),
		Pending:    r.Aggregator.Pending(),
		EndTick:    r.Simulator.Now(),
		Events:     r.Simulator.Executed(),
		LastOutput: r.Orchestrator.LastOutput(),
		Summary:    trace.Summarize(r.trace),
	}
	for _, t := range r.Talkers {
		res.Outcomes = append(res.Outcomes, t.Outcome())
	}
	if res.Pending > 0 {
		logrus.Warnf("[scenario] %d requests never completed a batch", res.Pending)
	}
	return res
}

// BaselineInput derives the configured flows against the scenario topology
// and assembles the engine input a first batch would start from.
func BaselineInput(spec *Spec) (*topology.Topology, *engine.Input, error) {
	topo, err := topology.Discover(spec.Topology)
	if err != nil {
		return nil, nil, err
	}
	flows, err := flow.Derive(spec.Flows, topo)
	if err != nil {
		return nil, nil, err
	}
	return topo, engine.NewInput(topo, flows, spec.Controller.GateCycleDuration), nil
}
