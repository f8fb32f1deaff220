// Package talker implements the talker side of stream admission: a device
// application that registers its stream with the CUC and starts periodic
// production once the stream is admitted.
package talker

import (
	"github.com/sirupsen/logrus"

	"github.com/tsn-sim/tsn-sim/sim"
	"github.com/tsn-sim/tsn-sim/sim/cuc"
	"github.com/tsn-sim/tsn-sim/sim/stream"
)

// Config describes one talker application and the stream it requests.
// Times are in seconds.
type Config struct {
	Device     string  `yaml:"device"`
	StreamID   string  `yaml:"stream_id"`
	Listener   string  `yaml:"listener"`
	PacketSize int     `yaml:"packet_size"`
	Priority   int     `yaml:"priority"`
	Period     float64 `yaml:"period"`
	MaxJitter  float64 `yaml:"max_jitter,omitempty"`
	MaxLatency float64 `yaml:"max_latency,omitempty"`
	Gamma      float64 `yaml:"gamma,omitempty"`
	Start      float64 `yaml:"start,omitempty"`       // when the request is sent
	MaxPackets int     `yaml:"max_packets,omitempty"` // 0 = produce until the horizon
}

// Request returns the registration request the talker sends. Indices are
// left unresolved for the aggregator to fill in.
func (c *Config) Request() stream.Request {
	return stream.Request{
		StreamID:      c.StreamID,
		Talker:        c.Device,
		TalkerIndex:   stream.Unresolved,
		Listener:      c.Listener,
		ListenerIndex: stream.Unresolved,
		PacketSize:    c.PacketSize,
		Priority:      c.Priority,
		Period:        c.Period,
		MaxJitter:     c.MaxJitter,
		MaxLatency:    c.MaxLatency,
		Gamma:         c.Gamma,
	}
}

// Outcome is what a talker observed by the end of a run.
type Outcome struct {
	StreamID    string
	Device      string
	Responses   int // status notifications received
	Admitted    bool
	Offset      float64
	FirstPacket int64 // tick of the first produced packet, -1 if none
	PacketsSent int
}

// Device hosts the talkers of one end station and routes status
// notifications to them by stream id.
type Device struct {
	name       string
	substrate  sim.Substrate
	controller string
	talkers    map[string]*Talker
}

// NewDevice registers the device's feedback receiver on
// "<name>.<feedbackEndpoint>". Requests go to controller. Empty endpoints
// select the cuc defaults.
func NewDevice(name string, substrate sim.Substrate, controller, feedbackEndpoint string) *Device {
	if controller == "" {
		controller = cuc.DefaultEndpoint
	}
	if feedbackEndpoint == "" {
		feedbackEndpoint = cuc.DefaultFeedbackEndpoint
	}
	d := &Device{name: name, substrate: substrate, controller: controller, talkers: make(map[string]*Talker)}
	substrate.OnMessage(name+"."+feedbackEndpoint, d.handle)
	return d
}

// Add creates a talker for cfg on this device. cfg.Device is overwritten
// with the device name.
func (d *Device) Add(cfg Config) *Talker {
	cfg.Device = d.name
	t := &Talker{
		cfg:     cfg,
		device:  d,
		outcome: Outcome{StreamID: cfg.StreamID, Device: d.name, FirstPacket: -1},
	}
	d.talkers[cfg.StreamID] = t
	return t
}

func (d *Device) handle(msg sim.Message) {
	resp, ok := msg.Payload.(stream.Response)
	if msg.Kind != sim.KindStreamResponse || !ok {
		logrus.Warnf("[talker %s] unexpected %s message from %s", d.name, msg.Kind, msg.From)
		return
	}
	t, ok := d.talkers[resp.StreamID]
	if !ok {
		logrus.Warnf("[talker %s] status for unknown stream %s", d.name, resp.StreamID)
		return
	}
	t.handle(resp)
}

// Talker is one stream source on a device.
type Talker struct {
	cfg     Config
	device  *Device
	outcome Outcome
}

// Start schedules the registration request at the configured start time.
func (t *Talker) Start() {
	sub := t.device.substrate
	sub.ScheduleTimer(sim.SecondsToTicks(t.cfg.Start)-sub.Now(), t.register)
}

// Outcome returns what the talker has observed so far.
func (t *Talker) Outcome() Outcome { return t.outcome }

func (t *Talker) register() {
	msg := sim.Message{Kind: sim.KindStreamRequest, From: t.cfg.Device, Payload: t.cfg.Request()}
	if err := t.device.substrate.SendMessage(t.device.controller, msg); err != nil {
		logrus.Warnf("[talker %s] registration of %s failed: %v", t.cfg.Device, t.cfg.StreamID, err)
		return
	}
	logrus.Debugf("[talker %s] requested stream %s", t.cfg.Device, t.cfg.StreamID)
}

func (t *Talker) handle(resp stream.Response) {
	t.outcome.Responses++
	if t.outcome.Responses > 1 {
		logrus.Warnf("[talker %s] duplicate status for %s ignored", t.cfg.Device, resp.StreamID)
		return
	}
	t.outcome.Admitted = resp.Admitted
	if !resp.Admitted {
		logrus.Infof("[talker %s] stream %s rejected", t.cfg.Device, resp.StreamID)
		return
	}
	t.outcome.Offset = resp.Offset
	logrus.Infof("[talker %s] stream %s admitted, producing from offset %gs", t.cfg.Device, resp.StreamID, resp.Offset)
	t.device.substrate.ScheduleTimer(sim.SecondsToTicks(resp.Offset), t.produce)
}

func (t *Talker) produce() {
	if t.outcome.PacketsSent == 0 {
		t.outcome.FirstPacket = t.device.substrate.Now()
	}
	t.outcome.PacketsSent++
	if t.cfg.MaxPackets > 0 && t.outcome.PacketsSent >= t.cfg.MaxPackets {
		return
	}
	t.device.substrate.ScheduleTimer(sim.SecondsToTicks(t.cfg.Period), t.produce)
}
