// Package cnc implements the schedule orchestrator: it turns a batch of
// registration requests plus the configured baseline flows into one engine
// input, runs the scheduling engine and maps its output back to per-stream
// admission decisions.
package cnc

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/tsn-sim/tsn-sim/sim"
	"github.com/tsn-sim/tsn-sim/sim/engine"
	"github.com/tsn-sim/tsn-sim/sim/flow"
	"github.com/tsn-sim/tsn-sim/sim/metrics"
	"github.com/tsn-sim/tsn-sim/sim/stream"
	"github.com/tsn-sim/tsn-sim/sim/topology"
	simtrace "github.com/tsn-sim/tsn-sim/sim/trace"
)

const tracerName = "github.com/tsn-sim/tsn-sim/sim/cnc"

// Config holds the orchestrator's fixed configuration.
type Config struct {
	Entries           []flow.Entry  // declarative baseline flows
	GateCycleDuration float64       // seconds, passed through to the engine
	EngineTimeout     time.Duration // 0 = engine.DefaultTimeout
	Application       string        // talker sub-endpoint for requested streams, "" = flow.DefaultApplication
	Now               func() int64  // substrate clock in ticks, nil = always 0
}

// Option configures optional collaborators.
type Option func(*Orchestrator)

// WithMetrics records batch, engine and decision metrics.
func WithMetrics(c *metrics.Collector) Option {
	return func(o *Orchestrator) { o.metrics = c }
}

// WithTrace records batch and admission decisions.
func WithTrace(st *simtrace.SimulationTrace) Option {
	return func(o *Orchestrator) { o.trace = st }
}

// Orchestrator is the CNC. It is not safe for concurrent use.
type Orchestrator struct {
	cfg       Config
	topo      *topology.Topology
	engine    engine.Engine
	committed []flow.Flow
	last      *engine.Output
	batches   int
	metrics   *metrics.Collector
	trace     *simtrace.SimulationTrace
}

// New returns an orchestrator over topo that schedules with e.
func New(cfg Config, topo *topology.Topology, e engine.Engine, opts ...Option) *Orchestrator {
	if cfg.EngineTimeout <= 0 {
		cfg.EngineTimeout = engine.DefaultTimeout
	}
	if cfg.Application == "" {
		cfg.Application = flow.DefaultApplication
	}
	o := &Orchestrator{cfg: cfg, topo: topo, engine: e}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

func (o *Orchestrator) now() int64 {
	if o.cfg.Now == nil {
		return 0
	}
	return o.cfg.Now()
}

// LastOutput returns the most recent successful engine output, nil before
// the first one.
func (o *Orchestrator) LastOutput() *engine.Output { return o.last }

// Committed returns the requested streams admitted so far, in admission order.
func (o *Orchestrator) Committed() []flow.Flow { return o.committed }

// Orchestrate runs one scheduling pass for batch and returns one status per
// request, in batch order. The only error returned is a configuration error,
// in which case no statuses are produced. Engine failures reject every
// stream of the batch.
func (o *Orchestrator) Orchestrate(ctx context.Context, batch []stream.Request) ([]stream.Status, error) {
	o.batches++
	batchID := o.batches
	clock := o.now()

	ctx, span := otel.Tracer(tracerName).Start(ctx, "cnc.Orchestrate",
		trace.WithAttributes(attribute.Int("batch.id", batchID), attribute.Int("batch.size", len(batch))))
	defer span.End()

	statuses := make([]stream.Status, len(batch))
	placing := make([]bool, len(batch))
	requested := make(map[string]flow.Flow, len(batch))

	inv := engine.NewInvocation(o.engine)
	err := inv.Build(func() (*engine.Input, error) {
		return o.buildInput(batch, clock, statuses, placing, requested)
	})
	if err != nil {
		logrus.Errorf("[cnc] batch %d aborted: %v", batchID, err)
		span.RecordError(err)
		o.metrics.Batch(metrics.BatchAborted)
		o.trace.RecordBatch(simtrace.BatchRecord{
			BatchID: batchID, Clock: clock, Size: len(batch), Engine: o.engine.Name(), State: "aborted", Error: err.Error(),
		})
		return nil, err
	}

	in := inv.Input()
	logrus.Debugf("[cnc] batch %d: %d switches, %d devices, %d flows", batchID, len(in.Switches), len(in.Devices), len(in.Flows))

	ictx, cancel := context.WithTimeout(ctx, o.cfg.EngineTimeout)
	out, err := inv.Invoke(ictx)
	cancel()
	o.metrics.EngineInvocation(o.engine.Name(), inv.State().String(), inv.Duration())

	record := simtrace.BatchRecord{
		BatchID: batchID, Clock: clock, Size: len(batch), Flows: len(in.Flows),
		Engine: o.engine.Name(), State: inv.State().String(),
	}
	if err != nil {
		logrus.Warnf("[cnc] batch %d: engine %s failed, rejecting %d requests: %v", batchID, o.engine.Name(), len(batch), err)
		record.Error = err.Error()
		for i := range batch {
			if placing[i] {
				statuses[i] = stream.Rejected(batch[i], err.Error())
			}
		}
	} else {
		o.last = out
		o.checkCommitted(out)
		for i, req := range batch {
			if !placing[i] {
				continue
			}
			offset, ok := out.OffsetFor(req.StreamID)
			if !ok {
				statuses[i] = stream.Rejected(req, "not placed by engine")
				continue
			}
			statuses[i] = stream.Admitted(req, offset)
			o.committed = append(o.committed, requested[req.StreamID])
			record.Admitted++
		}
	}

	o.metrics.Batch(metrics.BatchCompleted)
	o.trace.RecordBatch(record)
	for _, s := range statuses {
		o.metrics.Decision(s.Admitted)
		o.trace.RecordAdmission(simtrace.AdmissionRecord{
			StreamID: s.StreamID, Talker: s.Talker, BatchID: batchID, Clock: clock,
			Admitted: s.Admitted, Offset: s.Offset, Reason: s.Reason,
		})
		if s.Admitted {
			logrus.Infof("[cnc] stream %s admitted, talker %s offset %gs", s.StreamID, s.Talker, s.Offset)
		} else {
			logrus.Infof("[cnc] stream %s rejected: %s", s.StreamID, s.Reason)
		}
	}
	span.SetAttributes(attribute.Int("batch.admitted", record.Admitted))
	return statuses, nil
}

// buildInput derives the baseline, adds committed streams and the batch's
// requests, and rejects requests that cannot become flows. placing[i] is set
// for every request handed to the engine.
func (o *Orchestrator) buildInput(batch []stream.Request, clock int64, statuses []stream.Status, placing []bool, requested map[string]flow.Flow) (*engine.Input, error) {
	baseline, err := flow.Derive(o.cfg.Entries, o.topo)
	if err != nil {
		return nil, err
	}

	t := sim.TicksToSeconds(clock)
	names := make(map[string]bool, len(baseline)+len(o.committed)+len(batch))
	flows := make([]flow.Flow, 0, len(baseline)+len(o.committed)+len(batch))
	for _, f := range baseline {
		if !f.ActiveAt(t) {
			continue
		}
		names[f.Name] = true
		flows = append(flows, f)
	}
	for _, f := range o.committed {
		names[f.Name] = true
		flows = append(flows, f)
	}

	for i, req := range batch {
		if names[req.StreamID] {
			statuses[i] = stream.Rejected(req, fmt.Sprintf("duplicate stream id %q", req.StreamID))
			continue
		}
		f, err := flow.FromRequest(req, o.topo, o.cfg.Application)
		if err != nil {
			logrus.Debugf("[cnc] rejecting %s: %v", req.StreamID, err)
			statuses[i] = stream.Rejected(req, err.Error())
			continue
		}
		names[req.StreamID] = true
		requested[req.StreamID] = f
		placing[i] = true
		flows = append(flows, f)
	}

	flow.SortByPriority(flows)
	return engine.NewInput(o.topo, flows, o.cfg.GateCycleDuration), nil
}

func (o *Orchestrator) checkCommitted(out *engine.Output) {
	for _, f := range o.committed {
		if _, ok := out.OffsetFor(f.Name); !ok {
			logrus.Warnf("[cnc] committed stream %s lost its slot in the new schedule", f.Name)
		}
	}
}
