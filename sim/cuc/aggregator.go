// Package cuc implements the admission aggregator, which batches talker
// requests for the orchestrator, and the feedback distributor, which returns
// the decisions to the talkers.
package cuc

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/tsn-sim/tsn-sim/sim"
	"github.com/tsn-sim/tsn-sim/sim/metrics"
	"github.com/tsn-sim/tsn-sim/sim/stream"
	"github.com/tsn-sim/tsn-sim/sim/topology"
)

// DefaultEndpoint is where talkers send registration requests.
const DefaultEndpoint = "cuc"

// Orchestrator schedules one batch and returns a status per request.
type Orchestrator interface {
	Orchestrate(ctx context.Context, batch []stream.Request) ([]stream.Status, error)
}

// Config holds the aggregator's fixed configuration.
type Config struct {
	BatchSize    int   // requests per batch, 0 = 1
	FlushTimeout int64 // ticks a partial batch may wait, 0 = wait until full
}

// Aggregator collects requests until a batch is full and hands the batch to
// the orchestrator exactly once. It is not safe for concurrent use; the
// substrate delivers events one at a time.
type Aggregator struct {
	cfg          Config
	topo         *topology.Topology
	orchestrator Orchestrator
	distributor  *Distributor
	substrate    sim.Substrate
	metrics      *metrics.Collector

	pending    []stream.Request
	generation int // bumped on every flush; stale flush timers compare against it
	batches    int
}

// NewAggregator validates cfg and returns an empty aggregator. substrate is
// needed only for flush timers and Listen.
func NewAggregator(cfg Config, topo *topology.Topology, orch Orchestrator, dist *Distributor, substrate sim.Substrate, m *metrics.Collector) (*Aggregator, error) {
	if cfg.BatchSize < 0 {
		return nil, sim.Errorf(sim.KindConfiguration, "cuc.NewAggregator", "batch_size", "must be >= 1, got %d", cfg.BatchSize)
	}
	if cfg.BatchSize == 0 {
		cfg.BatchSize = 1
	}
	if cfg.FlushTimeout < 0 {
		return nil, sim.Errorf(sim.KindConfiguration, "cuc.NewAggregator", "flush_timeout", "must be >= 0, got %d", cfg.FlushTimeout)
	}
	if cfg.FlushTimeout > 0 && substrate == nil {
		return nil, fmt.Errorf("cuc.NewAggregator: flush timeout requires a substrate")
	}
	return &Aggregator{
		cfg:          cfg,
		topo:         topo,
		orchestrator: orch,
		distributor:  dist,
		substrate:    substrate,
		metrics:      m,
		pending:      make([]stream.Request, 0, cfg.BatchSize),
	}, nil
}

// BatchSize returns the fixed batch size.
func (a *Aggregator) BatchSize() int { return a.cfg.BatchSize }

// Pending returns the number of requests waiting for their batch to fill.
func (a *Aggregator) Pending() int { return len(a.pending) }

// Batches returns how many batches were handed to the orchestrator.
func (a *Aggregator) Batches() int { return a.batches }

// Listen registers the aggregator as the receiver of stream requests on
// endpoint.
func (a *Aggregator) Listen(endpoint string) {
	a.substrate.OnMessage(endpoint, func(msg sim.Message) {
		req, ok := msg.Payload.(stream.Request)
		if msg.Kind != sim.KindStreamRequest || !ok {
			logrus.Warnf("[cuc] ignoring %s message from %s", msg.Kind, msg.From)
			return
		}
		// configuration errors are logged by flush
		_ = a.Submit(context.Background(), req)
	})
}

// Submit resolves the request's endpoints and queues it. When the queue
// reaches the batch size the whole queue is orchestrated and the statuses
// distributed. A request with an unknown endpoint still takes its place in
// the batch and comes back rejected. The returned error is the
// configuration error of an aborted run.
func (a *Aggregator) Submit(ctx context.Context, req stream.Request) error {
	req.TalkerIndex = a.resolve(req.Talker)
	req.ListenerIndex = a.resolve(req.Listener)
	if !req.Resolved() {
		logrus.Debugf("[cuc] %s: unresolved endpoint (talker %s=%d, listener %s=%d)",
			req.StreamID, req.Talker, req.TalkerIndex, req.Listener, req.ListenerIndex)
	}

	a.pending = append(a.pending, req)
	a.metrics.RequestSubmitted(len(a.pending))
	logrus.Debugf("[cuc] queued %s (%d/%d)", req.StreamID, len(a.pending), a.cfg.BatchSize)

	if len(a.pending) == 1 && a.cfg.FlushTimeout > 0 && a.cfg.BatchSize > 1 {
		gen := a.generation
		a.substrate.ScheduleTimer(a.cfg.FlushTimeout, func() { a.expire(gen) })
	}
	if len(a.pending) < a.cfg.BatchSize {
		return nil
	}
	return a.flush(ctx)
}

// Flush orchestrates whatever is pending, even a partial batch.
func (a *Aggregator) Flush(ctx context.Context) error {
	if len(a.pending) == 0 {
		return nil
	}
	return a.flush(ctx)
}

func (a *Aggregator) expire(gen int) {
	if gen != a.generation || len(a.pending) == 0 {
		return
	}
	logrus.Debugf("[cuc] flush timeout, sending partial batch of %d", len(a.pending))
	_ = a.flush(context.Background())
}

func (a *Aggregator) flush(ctx context.Context) error {
	batch := a.pending
	a.pending = make([]stream.Request, 0, a.cfg.BatchSize)
	a.generation++
	a.batches++
	a.metrics.SetPending(0)

	statuses, err := a.orchestrator.Orchestrate(ctx, batch)
	if err != nil {
		logrus.Errorf("[cuc] scheduling run for %d requests aborted, no notifications sent: %v", len(batch), err)
		return err
	}
	sent := a.distributor.Distribute(statuses)
	logrus.Debugf("[cuc] batch done: %d statuses, %d notifications sent", len(statuses), sent)
	return nil
}

func (a *Aggregator) resolve(name string) int {
	if i, ok := a.topo.FindIndexByName(name); ok {
		return i
	}
	return stream.Unresolved
}
