package cnc

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	promtestutil "github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tsn-sim/tsn-sim/sim"
	"github.com/tsn-sim/tsn-sim/sim/engine"
	"github.com/tsn-sim/tsn-sim/sim/flow"
	"github.com/tsn-sim/tsn-sim/sim/internal/testutil"
	"github.com/tsn-sim/tsn-sim/sim/metrics"
	"github.com/tsn-sim/tsn-sim/sim/stream"
	"github.com/tsn-sim/tsn-sim/sim/topology"
	simtrace "github.com/tsn-sim/tsn-sim/sim/trace"
)

// recordingEngine wraps another engine and keeps every input it saw.
type recordingEngine struct {
	inner  engine.Engine
	inputs []*engine.Input
}

func (r *recordingEngine) Name() string { return "recording" }

func (r *recordingEngine) Compute(ctx context.Context, in *engine.Input) (*engine.Output, error) {
	r.inputs = append(r.inputs, in)
	return r.inner.Compute(ctx, in)
}

type failingEngine struct{ err error }

func (f failingEngine) Name() string { return "failing" }

func (f failingEngine) Compute(context.Context, *engine.Input) (*engine.Output, error) {
	return nil, f.err
}

// request builds a resolved request between two star devices.
func request(t *testing.T, topo *topology.Topology, id, talker, listener string, pcp int) stream.Request {
	t.Helper()
	return stream.Request{
		StreamID: id, Talker: talker, TalkerIndex: testutil.MustIndex(t, topo, talker),
		Listener: listener, ListenerIndex: testutil.MustIndex(t, topo, listener),
		PacketSize: 125, Priority: pcp, Period: 0.001,
	}
}

func starTopo(t *testing.T) *topology.Topology {
	return testutil.MustDiscover(t, testutil.StarDescription())
}

func TestOrchestrate_AdmitsWithEngineOffsets(t *testing.T) {
	// GIVEN a stub engine returning offsets 0, 1ms, 2ms
	topo := starTopo(t)
	o := New(Config{}, topo, &engine.Stub{Offsets: []float64{0, 0.001, 0.002}})
	batch := []stream.Request{
		request(t, topo, "s1", "device1", "device4", 5),
		request(t, topo, "s2", "device2", "device4", 5),
		request(t, topo, "s3", "device3", "device4", 5),
	}

	// WHEN the batch is orchestrated
	statuses, err := o.Orchestrate(context.Background(), batch)

	// THEN each stream is admitted with its offset, in batch order
	require.NoError(t, err)
	require.Len(t, statuses, 3)
	for i, want := range []float64{0, 0.001, 0.002} {
		assert.True(t, statuses[i].Admitted)
		assert.Equal(t, batch[i].StreamID, statuses[i].StreamID)
		assert.Equal(t, batch[i].Talker, statuses[i].Talker)
		assert.Equal(t, want, statuses[i].Offset)
	}
	assert.Len(t, o.Committed(), 3)
	assert.NotNil(t, o.LastOutput())
}

func TestOrchestrate_UnresolvedRequestRejectedLocally(t *testing.T) {
	topo := starTopo(t)
	rec := &recordingEngine{inner: &engine.Stub{Spacing: 0.001}}
	o := New(Config{}, topo, rec)
	ghost := request(t, topo, "s2", "device2", "device4", 5)
	ghost.Listener, ghost.ListenerIndex = "device9", stream.Unresolved

	statuses, err := o.Orchestrate(context.Background(), []stream.Request{
		request(t, topo, "s1", "device1", "device4", 5),
		ghost,
		request(t, topo, "s3", "device3", "device4", 5),
	})

	require.NoError(t, err)
	assert.True(t, statuses[0].Admitted)
	assert.False(t, statuses[1].Admitted)
	assert.Contains(t, statuses[1].Reason, "unresolved")
	assert.True(t, statuses[2].Admitted)
	require.Len(t, rec.inputs, 1)
	assert.Len(t, rec.inputs[0].Flows, 2)
}

func TestOrchestrate_SwitchEndpointsRejectedLocally(t *testing.T) {
	// GIVEN requests whose talker or listener is a switch
	topo := starTopo(t)
	rec := &recordingEngine{inner: &engine.Stub{Spacing: 0.001}}
	o := New(Config{}, topo, rec)

	// WHEN they are orchestrated alongside a valid request
	statuses, err := o.Orchestrate(context.Background(), []stream.Request{
		request(t, topo, "sw", "switch1", "device4", 5),
		request(t, topo, "sw2", "device1", "switch2", 5),
		request(t, topo, "s3", "device3", "device4", 5),
	})

	// THEN only the device-to-device stream reaches the engine and is committed
	require.NoError(t, err)
	assert.False(t, statuses[0].Admitted)
	assert.False(t, statuses[1].Admitted)
	assert.True(t, statuses[2].Admitted)
	require.Len(t, rec.inputs, 1)
	assert.Len(t, rec.inputs[0].Flows, 1)
	assert.Len(t, o.Committed(), 1)
}

func TestOrchestrate_EngineFailureRejectsAll(t *testing.T) {
	// GIVEN an engine that is unavailable
	topo := starTopo(t)
	cause := sim.Errorf(sim.KindEngineUnavailable, "test", "", "solver not installed")
	o := New(Config{}, topo, failingEngine{cause})
	batch := []stream.Request{
		request(t, topo, "s1", "device1", "device4", 5),
		request(t, topo, "s2", "device2", "device3", 7),
	}

	// WHEN the batch is orchestrated
	statuses, err := o.Orchestrate(context.Background(), batch)

	// THEN every stream is rejected without an offset and nothing is committed
	require.NoError(t, err)
	require.Len(t, statuses, 2)
	for _, s := range statuses {
		assert.False(t, s.Admitted)
		assert.Zero(t, s.Offset)
		assert.Contains(t, s.Reason, "solver not installed")
	}
	assert.Empty(t, o.Committed())
	assert.Nil(t, o.LastOutput())
}

func TestOrchestrate_HungEngineTimesOut(t *testing.T) {
	topo := starTopo(t)
	block := make(chan struct{})
	defer close(block)
	hung := &recordingEngine{inner: engineFunc(func(context.Context, *engine.Input) (*engine.Output, error) {
		<-block
		return &engine.Output{}, nil
	})}
	o := New(Config{EngineTimeout: 20 * time.Millisecond}, topo, hung)

	statuses, err := o.Orchestrate(context.Background(), []stream.Request{request(t, topo, "s1", "device1", "device4", 5)})

	require.NoError(t, err)
	assert.False(t, statuses[0].Admitted)
}

type engineFunc func(context.Context, *engine.Input) (*engine.Output, error)

func (f engineFunc) Name() string { return "func" }

func (f engineFunc) Compute(ctx context.Context, in *engine.Input) (*engine.Output, error) {
	return f(ctx, in)
}

func TestOrchestrate_PartialPlacement(t *testing.T) {
	topo := starTopo(t)
	partial := engineFunc(func(_ context.Context, in *engine.Input) (*engine.Output, error) {
		return &engine.Output{TalkerOffsets: []engine.TalkerOffset{{Flow: "s2", Offset: 0.0005}}}, nil
	})
	o := New(Config{}, topo, partial)

	statuses, err := o.Orchestrate(context.Background(), []stream.Request{
		request(t, topo, "s1", "device1", "device4", 5),
		request(t, topo, "s2", "device2", "device4", 5),
	})

	require.NoError(t, err)
	assert.False(t, statuses[0].Admitted)
	assert.Equal(t, "not placed by engine", statuses[0].Reason)
	assert.True(t, statuses[1].Admitted)
	assert.Equal(t, 0.0005, statuses[1].Offset)
	require.Len(t, o.Committed(), 1)
	assert.Equal(t, "s2", o.Committed()[0].Name)
}

func TestOrchestrate_ConfigurationErrorAbortsRun(t *testing.T) {
	// GIVEN a baseline entry whose source lacks the application
	topo := starTopo(t)
	reg := prometheus.NewRegistry()
	collector, err := metrics.NewCollector(reg)
	require.NoError(t, err)
	st := simtrace.NewSimulationTrace(simtrace.TraceConfig{Level: simtrace.TraceLevelDecisions})
	rec := &recordingEngine{inner: &engine.Stub{}}
	cfg := Config{Entries: []flow.Entry{{
		Source: "device1", Destination: "device2", Application: "app[9]", PacketLength: 64, PacketInterval: 0.001,
	}}}
	o := New(cfg, topo, rec, WithMetrics(collector), WithTrace(st))

	// WHEN a batch is orchestrated
	statuses, err := o.Orchestrate(context.Background(), []stream.Request{request(t, topo, "s1", "device1", "device4", 5)})

	// THEN the run aborts before the engine is called and no statuses exist
	assert.Nil(t, statuses)
	assert.True(t, sim.IsFatal(err))
	assert.Empty(t, rec.inputs)
	assert.Equal(t, 1.0, promtestutil.ToFloat64(collector.Batches.WithLabelValues(metrics.BatchAborted)))
	require.Len(t, st.Batches, 1)
	assert.Equal(t, "aborted", st.Batches[0].State)
	assert.Empty(t, st.Admissions)
}

func TestOrchestrate_DuplicateStreamID(t *testing.T) {
	topo := starTopo(t)
	o := New(Config{}, topo, &engine.Stub{})

	statuses, err := o.Orchestrate(context.Background(), []stream.Request{
		request(t, topo, "s1", "device1", "device4", 5),
		request(t, topo, "s1", "device2", "device4", 5),
	})
	require.NoError(t, err)
	assert.True(t, statuses[0].Admitted)
	assert.False(t, statuses[1].Admitted)
	assert.Contains(t, statuses[1].Reason, "duplicate")

	// a committed stream id cannot be reused by a later batch
	statuses, err = o.Orchestrate(context.Background(), []stream.Request{request(t, topo, "s1", "device3", "device4", 5)})
	require.NoError(t, err)
	assert.False(t, statuses[0].Admitted)
}

func TestOrchestrate_BaselineAndCommittedFlowsReachEngine(t *testing.T) {
	// GIVEN a baseline entry at priority 7 and a first admitted batch
	topo := starTopo(t)
	rec := &recordingEngine{inner: &engine.Greedy{}}
	cfg := Config{Entries: []flow.Entry{{
		Name: "control", Source: "device1", Destination: "device3", Priority: 7, PacketLength: 125, PacketInterval: 0.001,
	}}}
	o := New(cfg, topo, rec)
	_, err := o.Orchestrate(context.Background(), []stream.Request{request(t, topo, "s1", "device1", "device4", 3)})
	require.NoError(t, err)

	// WHEN a second batch arrives
	statuses, err := o.Orchestrate(context.Background(), []stream.Request{request(t, topo, "s2", "device1", "device2", 6)})
	require.NoError(t, err)
	assert.True(t, statuses[0].Admitted)

	// THEN the engine saw the baseline, the committed stream and the new one, by priority
	require.Len(t, rec.inputs, 2)
	var names []string
	for _, f := range rec.inputs[1].Flows {
		names = append(names, f.Name)
	}
	assert.Equal(t, []string{"control", "s2", "s1"}, names)
	assert.Len(t, rec.inputs[1].Switches, 2)
	assert.Len(t, rec.inputs[1].Devices, 4)
}

func TestOrchestrate_BaselineValidityWindow(t *testing.T) {
	topo := starTopo(t)
	rec := &recordingEngine{inner: &engine.Stub{}}
	now := int64(0)
	cfg := Config{
		Entries: []flow.Entry{{
			Name: "window", Source: "device1", Destination: "device2", PacketLength: 64, PacketInterval: 0.001,
			Start: 1, End: 2,
		}},
		Now: func() int64 { return now },
	}
	o := New(cfg, topo, rec)

	_, err := o.Orchestrate(context.Background(), nil)
	require.NoError(t, err)
	now = sim.SecondsToTicks(1.5)
	_, err = o.Orchestrate(context.Background(), nil)
	require.NoError(t, err)

	assert.Empty(t, rec.inputs[0].Flows)
	assert.Len(t, rec.inputs[1].Flows, 1)
}

func TestOrchestrate_RecordsDecisions(t *testing.T) {
	topo := starTopo(t)
	reg := prometheus.NewRegistry()
	collector, err := metrics.NewCollector(reg)
	require.NoError(t, err)
	st := simtrace.NewSimulationTrace(simtrace.TraceConfig{Level: simtrace.TraceLevelDecisions})
	o := New(Config{}, topo, &engine.Stub{Offsets: []float64{0.002}}, WithMetrics(collector), WithTrace(st))
	bad := request(t, topo, "s2", "device1", "device4", 5)
	bad.Period = 0

	_, err = o.Orchestrate(context.Background(), []stream.Request{request(t, topo, "s1", "device1", "device4", 5), bad})
	require.NoError(t, err)

	assert.Equal(t, 1.0, promtestutil.ToFloat64(collector.StreamDecisions.WithLabelValues("admitted")))
	assert.Equal(t, 1.0, promtestutil.ToFloat64(collector.StreamDecisions.WithLabelValues("rejected")))
	assert.Equal(t, 1.0, promtestutil.ToFloat64(collector.EngineInvocations.WithLabelValues("stub", "succeeded")))
	require.Len(t, st.Admissions, 2)
	assert.Equal(t, 0.002, st.Admissions[0].Offset)
	require.Len(t, st.Batches, 1)
	assert.Equal(t, 1, st.Batches[0].Admitted)
	assert.Equal(t, "succeeded", st.Batches[0].State)
}

func TestOrchestrate_UnclassifiedEngineError(t *testing.T) {
	topo := starTopo(t)
	o := New(Config{}, topo, failingEngine{errors.New("segfault")})
	statuses, err := o.Orchestrate(context.Background(), []stream.Request{request(t, topo, "s1", "device1", "device4", 5)})
	require.NoError(t, err)
	assert.False(t, statuses[0].Admitted)
}
