// Package metrics exposes Prometheus collectors for the admission control
// plane.
package metrics

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Batch outcomes.
const (
	BatchCompleted = "completed"
	BatchAborted   = "aborted"
)

// Collector bundles the control-plane metrics. A nil *Collector is valid and
// records nothing.
type Collector struct {
	gatherer prometheus.Gatherer

	RequestsSubmitted prometheus.Counter
	PendingRequests   prometheus.Gauge
	StreamDecisions   *prometheus.CounterVec
	Batches           *prometheus.CounterVec
	EngineInvocations *prometheus.CounterVec
	EngineDuration    *prometheus.HistogramVec
	DeliveryFailures  prometheus.Counter
}

// NewCollector registers the metrics against reg, defaulting to the global
// Prometheus registry when nil. Registering twice against the same registry
// returns the existing collectors.
func NewCollector(reg prometheus.Registerer) (*Collector, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	gatherer := prometheus.DefaultGatherer
	if g, ok := reg.(prometheus.Gatherer); ok {
		gatherer = g
	}

	submitted, err := registerCounter(reg, prometheus.NewCounter(prometheus.CounterOpts{
		Name: "tsn_requests_submitted_total",
		Help: "Stream registration requests received by the aggregator.",
	}), "tsn_requests_submitted_total")
	if err != nil {
		return nil, err
	}
	pending, err := registerGauge(reg, prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "tsn_requests_pending",
		Help: "Requests waiting for their batch to fill.",
	}), "tsn_requests_pending")
	if err != nil {
		return nil, err
	}
	decisions, err := registerCounterVec(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "tsn_stream_decisions_total",
		Help: "Admission decisions, labeled by outcome.",
	}, []string{"outcome"}), "tsn_stream_decisions_total")
	if err != nil {
		return nil, err
	}
	batches, err := registerCounterVec(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "tsn_batches_total",
		Help: "Batches handed to the orchestrator, labeled by result.",
	}, []string{"result"}), "tsn_batches_total")
	if err != nil {
		return nil, err
	}
	invocations, err := registerCounterVec(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "tsn_engine_invocations_total",
		Help: "Scheduling engine invocations, labeled by engine and final state.",
	}, []string{"engine", "result"}), "tsn_engine_invocations_total")
	if err != nil {
		return nil, err
	}
	duration, err := registerHistogramVec(reg, prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "tsn_engine_duration_seconds",
		Help:    "Wall time spent inside the scheduling engine.",
		Buckets: []float64{0.0001, 0.001, 0.01, 0.05, 0.1, 0.5, 1, 5, 30},
	}, []string{"engine"}), "tsn_engine_duration_seconds")
	if err != nil {
		return nil, err
	}
	failures, err := registerCounter(reg, prometheus.NewCounter(prometheus.CounterOpts{
		Name: "tsn_delivery_failures_total",
		Help: "Status notifications that could not reach their talker.",
	}), "tsn_delivery_failures_total")
	if err != nil {
		return nil, err
	}

	return &Collector{
		gatherer:          gatherer,
		RequestsSubmitted: submitted,
		PendingRequests:   pending,
		StreamDecisions:   decisions,
		Batches:           batches,
		EngineInvocations: invocations,
		EngineDuration:    duration,
		DeliveryFailures:  failures,
	}, nil
}

// Gatherer returns the registry the collectors were registered against.
func (c *Collector) Gatherer() prometheus.Gatherer {
	if c == nil || c.gatherer == nil {
		return prometheus.DefaultGatherer
	}
	return c.gatherer
}

// WriteTextfile dumps every gathered metric to path in the Prometheus text
// format.
func (c *Collector) WriteTextfile(path string) error {
	return prometheus.WriteToTextfile(path, c.Gatherer())
}

// RequestSubmitted counts one request and updates the pending gauge.
func (c *Collector) RequestSubmitted(pending int) {
	if c == nil {
		return
	}
	c.RequestsSubmitted.Inc()
	c.PendingRequests.Set(float64(pending))
}

// SetPending records the pending buffer length.
func (c *Collector) SetPending(n int) {
	if c == nil {
		return
	}
	c.PendingRequests.Set(float64(n))
}

// Decision counts one admission decision.
func (c *Collector) Decision(admitted bool) {
	if c == nil {
		return
	}
	outcome := "rejected"
	if admitted {
		outcome = "admitted"
	}
	c.StreamDecisions.WithLabelValues(outcome).Inc()
}

// Batch counts one orchestrated batch with the given result.
func (c *Collector) Batch(result string) {
	if c == nil {
		return
	}
	c.Batches.WithLabelValues(result).Inc()
}

// EngineInvocation counts one engine call and records its duration.
func (c *Collector) EngineInvocation(engine, result string, d time.Duration) {
	if c == nil {
		return
	}
	c.EngineInvocations.WithLabelValues(engine, result).Inc()
	c.EngineDuration.WithLabelValues(engine).Observe(d.Seconds())
}

// DeliveryFailure counts one undeliverable notification.
func (c *Collector) DeliveryFailure() {
	if c == nil {
		return
	}
	c.DeliveryFailures.Inc()
}

func registerCounter(reg prometheus.Registerer, counter prometheus.Counter, name string) (prometheus.Counter, error) {
	if err := reg.Register(counter); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(prometheus.Counter); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return counter, nil
}

func registerCounterVec(reg prometheus.Registerer, vec *prometheus.CounterVec, name string) (*prometheus.CounterVec, error) {
	if err := reg.Register(vec); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(*prometheus.CounterVec); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return vec, nil
}

func registerHistogramVec(reg prometheus.Registerer, vec *prometheus.HistogramVec, name string) (*prometheus.HistogramVec, error) {
	if err := reg.Register(vec); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(*prometheus.HistogramVec); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return vec, nil
}

func registerGauge(reg prometheus.Registerer, gauge prometheus.Gauge, name string) (prometheus.Gauge, error) {
	if err := reg.Register(gauge); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(prometheus.Gauge); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return gauge, nil
}
