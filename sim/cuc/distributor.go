package cuc

import (
	"github.com/sirupsen/logrus"

	"github.com/tsn-sim/tsn-sim/sim"
	"github.com/tsn-sim/tsn-sim/sim/metrics"
	"github.com/tsn-sim/tsn-sim/sim/stream"
	"github.com/tsn-sim/tsn-sim/sim/topology"
)

// DefaultFeedbackEndpoint is the talker sub-endpoint that receives status
// notifications.
const DefaultFeedbackEndpoint = "app[0].source"

// Distributor pushes admission decisions back to talkers.
type Distributor struct {
	topo      *topology.Topology
	substrate sim.Substrate
	endpoint  string
	from      string
	metrics   *metrics.Collector
}

// NewDistributor returns a distributor that sends to
// "<talker>.<endpoint>" through substrate. An empty endpoint selects
// DefaultFeedbackEndpoint.
func NewDistributor(topo *topology.Topology, substrate sim.Substrate, endpoint string, m *metrics.Collector) *Distributor {
	if endpoint == "" {
		endpoint = DefaultFeedbackEndpoint
	}
	return &Distributor{topo: topo, substrate: substrate, endpoint: endpoint, from: DefaultEndpoint, metrics: m}
}

// Address returns the endpoint a talker's notifications are sent to.
func (d *Distributor) Address(talker string) string {
	return talker + "." + d.endpoint
}

// Distribute sends one notification per status and returns how many were
// handed to the substrate. A status whose talker is not in the topology, or
// whose endpoint has no receiver, is logged and skipped.
func (d *Distributor) Distribute(statuses []stream.Status) int {
	sent := 0
	for _, s := range statuses {
		if err := d.deliver(s); err != nil {
			logrus.Warnf("[cuc] %v", err)
			d.metrics.DeliveryFailure()
			continue
		}
		sent++
	}
	return sent
}

func (d *Distributor) deliver(s stream.Status) error {
	if _, ok := d.topo.FindIndexByName(s.Talker); !ok {
		return sim.Errorf(sim.KindDelivery, "cuc.Distribute", s.StreamID, "talker %q not in topology", s.Talker)
	}
	msg := sim.Message{Kind: sim.KindStreamResponse, From: d.from, Payload: stream.ResponseFor(s)}
	if err := d.substrate.SendMessage(d.Address(s.Talker), msg); err != nil {
		return sim.Wrap(sim.KindDelivery, "cuc.Distribute", s.StreamID, err)
	}
	logrus.Debugf("[cuc] status for %s sent to %s", s.StreamID, d.Address(s.Talker))
	return nil
}
