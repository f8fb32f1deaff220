// Package scenario loads a complete control-plane run from YAML and wires the
// topology, controller, engine and talkers onto one simulator.
package scenario

import (
	"bytes"
	"fmt"
	"math"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/tsn-sim/tsn-sim/sim/engine"
	"github.com/tsn-sim/tsn-sim/sim/flow"
	"github.com/tsn-sim/tsn-sim/sim/talker"
	"github.com/tsn-sim/tsn-sim/sim/topology"
)

// Spec is the top-level scenario file. Times are in seconds.
type Spec struct {
	Topology   topology.Description `yaml:"topology"`
	Controller ControllerSpec       `yaml:"controller"`
	Flows      []flow.Entry         `yaml:"flows,omitempty"`
	Talkers    []talker.Config      `yaml:"talkers,omitempty"`
	Horizon    float64              `yaml:"horizon"`
}

// ControllerSpec configures the CUC and CNC.
type ControllerSpec struct {
	BatchSize         int           `yaml:"batch_size,omitempty"`
	FlushTimeout      float64       `yaml:"flush_timeout,omitempty"`
	GateCycleDuration float64       `yaml:"gate_cycle_duration,omitempty"`
	Application       string        `yaml:"application,omitempty"`
	Endpoint          string        `yaml:"endpoint,omitempty"`
	FeedbackEndpoint  string        `yaml:"feedback_endpoint,omitempty"`
	DeliveryLatency   float64       `yaml:"delivery_latency,omitempty"`
	Engine            engine.Config `yaml:"engine"`
}

// Load reads and parses a YAML scenario file.
// Uses strict parsing: unrecognized keys (typos) are rejected.
func Load(path string) (*Spec, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading scenario: %w", err)
	}
	return Parse(data)
}

// Parse decodes a YAML scenario with strict field checking.
func Parse(data []byte) (*Spec, error) {
	var spec Spec
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&spec); err != nil {
		return nil, fmt.Errorf("parsing scenario: %w", err)
	}
	return &spec, nil
}

// Validate checks field ranges and cross references that do not need a
// discovered topology.
func (s *Spec) Validate() error {
	if len(s.Topology.Nodes) == 0 {
		return fmt.Errorf("topology: at least one node required")
	}
	if err := validateFinite("horizon", s.Horizon); err != nil {
		return err
	}
	if s.Horizon <= 0 {
		return fmt.Errorf("horizon must be positive, got %v", s.Horizon)
	}
	if err := s.Controller.validate(); err != nil {
		return err
	}
	for i := range s.Flows {
		if err := s.Flows[i].Validate(); err != nil {
			return fmt.Errorf("flows[%d]: %w", i, err)
		}
	}
	ids := make(map[string]bool, len(s.Talkers))
	for i := range s.Talkers {
		prefix := fmt.Sprintf("talkers[%d]", i)
		tc := &s.Talkers[i]
		if tc.Device == "" || tc.StreamID == "" || tc.Listener == "" {
			return fmt.Errorf("%s: device, stream_id and listener are required", prefix)
		}
		if ids[tc.StreamID] {
			return fmt.Errorf("%s: duplicate stream_id %q", prefix, tc.StreamID)
		}
		ids[tc.StreamID] = true
		if tc.Start < 0 || tc.MaxPackets < 0 {
			return fmt.Errorf("%s: start and max_packets must be >= 0", prefix)
		}
		// Period, priority and size ranges are the controller's to reject.
	}
	return nil
}

func (c *ControllerSpec) validate() error {
	if c.BatchSize < 0 {
		return fmt.Errorf("controller.batch_size must be >= 1, got %d", c.BatchSize)
	}
	for name, v := range map[string]float64{
		"controller.flush_timeout":       c.FlushTimeout,
		"controller.gate_cycle_duration": c.GateCycleDuration,
		"controller.delivery_latency":    c.DeliveryLatency,
	} {
		if err := validateFinite(name, v); err != nil {
			return err
		}
		if v < 0 {
			return fmt.Errorf("%s must be >= 0, got %v", name, v)
		}
	}
	if err := c.Engine.Validate(); err != nil {
		return fmt.Errorf("controller.engine: %w", err)
	}
	return nil
}

func validateFinite(name string, v float64) error {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return fmt.Errorf("%s must be finite, got %v", name, v)
	}
	return nil
}
