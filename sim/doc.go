// Package sim provides the discrete-event substrate and shared vocabulary for
// the TSN control-plane simulator.
//
// # Reading Guide
//
// Start with these files to understand the kernel:
//   - event.go: Event types that drive the simulation (timer firings, message deliveries)
//   - simulator.go: The event loop and the Substrate implementation
//   - errors.go: The error taxonomy shared by every control-plane component
//
// # Architecture
//
// The sim package defines the substrate interface and the error kinds;
// control-plane components live in sub-packages:
//   - sim/topology/: Topology Index (discovery, lookups, shortest paths)
//   - sim/stream/: Stream registration requests and admission statuses
//   - sim/flow/: Flow Derivation Engine (pattern entries -> concrete flows)
//   - sim/engine/: Scheduling Engine contract and strategies
//   - sim/cnc/: Schedule Orchestrator
//   - sim/cuc/: Admission Aggregator and Feedback Distributor
//   - sim/talker/: Talker endpoint application
//   - sim/trace/: Decision trace recording
//   - sim/metrics/: Prometheus collectors
//   - sim/scenario/: YAML scenario loading and end-to-end wiring
//
// Components never reach for each other through package-level state. They are
// constructed explicitly and talk to the outside world only through Substrate,
// which exposes "schedule a timer", "send a message to a named endpoint" and
// "receive messages on an endpoint".
package sim
