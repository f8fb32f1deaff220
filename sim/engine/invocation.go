package engine

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/tsn-sim/tsn-sim/sim"
)

const tracerName = "github.com/tsn-sim/tsn-sim/sim/engine"

// DefaultTimeout bounds one engine invocation when none is configured.
const DefaultTimeout = 30 * time.Second

// State is the lifecycle position of one engine invocation.
type State int

const (
	StateIdle State = iota
	StateBuilding
	StateInvoking
	StateSucceeded
	StateFailed
)

// String returns the string representation of State
func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateBuilding:
		return "building"
	case StateInvoking:
		return "invoking"
	case StateSucceeded:
		return "succeeded"
	case StateFailed:
		return "failed"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Terminal reports whether no further transition is possible.
func (s State) Terminal() bool { return s == StateSucceeded || s == StateFailed }

var transitions = map[State][]State{
	StateIdle:     {StateBuilding},
	StateBuilding: {StateInvoking, StateFailed},
	StateInvoking: {StateSucceeded, StateFailed},
}

// Invocation drives one engine call through
// Idle -> Building -> Invoking -> Succeeded | Failed. There is no retry: a
// failed invocation is terminal.
type Invocation struct {
	engine   Engine
	state    State
	input    *Input
	output   *Output
	err      error
	duration time.Duration
}

// NewInvocation returns an Idle invocation of e.
func NewInvocation(e Engine) *Invocation {
	return &Invocation{engine: e}
}

func (inv *Invocation) transition(to State) {
	for _, allowed := range transitions[inv.state] {
		if allowed == to {
			inv.state = to
			return
		}
	}
	panic(fmt.Sprintf("engine invocation: illegal transition %s -> %s", inv.state, to))
}

// State returns the current state.
func (inv *Invocation) State() State { return inv.state }

// Err returns the failure cause once the invocation has failed.
func (inv *Invocation) Err() error { return inv.err }

// Input returns the built input, nil before Build succeeds.
func (inv *Invocation) Input() *Input { return inv.input }

// Output returns the engine result once the invocation has succeeded.
func (inv *Invocation) Output() *Output { return inv.output }

// Duration returns the wall time spent in Invoking.
func (inv *Invocation) Duration() time.Duration { return inv.duration }

// Build runs build in the Building state. A build error moves the
// invocation to Failed and is returned unchanged.
func (inv *Invocation) Build(build func() (*Input, error)) error {
	inv.transition(StateBuilding)
	in, err := build()
	if err != nil {
		inv.err = err
		inv.transition(StateFailed)
		return err
	}
	inv.input = in
	return nil
}

type result struct {
	out *Output
	err error
}

// Invoke runs the engine on the built input. The call returns when the
// engine does or when ctx is done, whichever comes first; an engine that
// outlives ctx is abandoned. Unclassified engine errors are reported as
// unavailable.
func (inv *Invocation) Invoke(ctx context.Context) (*Output, error) {
	inv.transition(StateInvoking)

	ctx, span := otel.Tracer(tracerName).Start(ctx, "engine.Invoke",
		trace.WithAttributes(
			attribute.String("engine", inv.engine.Name()),
			attribute.Int("flows", len(inv.input.Flows)),
		))
	defer span.End()

	start := time.Now()
	done := make(chan result, 1)
	go func() {
		out, err := inv.engine.Compute(ctx, inv.input)
		done <- result{out, err}
	}()

	var res result
	select {
	case res = <-done:
	case <-ctx.Done():
		res.err = sim.Wrap(sim.KindEngineUnavailable, "engine.Invoke", inv.engine.Name(), ctx.Err())
	}
	inv.duration = time.Since(start)

	switch {
	case res.err != nil:
		if sim.KindOf(res.err) == sim.KindUnknown {
			res.err = sim.Wrap(sim.KindEngineUnavailable, "engine.Invoke", inv.engine.Name(), res.err)
		}
	case res.out == nil:
		res.err = sim.Errorf(sim.KindEngineUnavailable, "engine.Invoke", inv.engine.Name(), "engine returned no result")
	}
	if res.err != nil {
		inv.err = res.err
		inv.transition(StateFailed)
		span.RecordError(res.err)
		span.SetStatus(codes.Error, res.err.Error())
		return nil, res.err
	}

	inv.output = res.out
	inv.transition(StateSucceeded)
	span.SetAttributes(attribute.Int("talker_offsets", len(res.out.TalkerOffsets)))
	return res.out, nil
}
