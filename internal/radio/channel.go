package radio

import (
	"errors"
	"fmt"
	"math"

	"github.com/sirupsen/logrus"

	"manetbench/internal/engine"
	"manetbench/internal/mobility"
	"manetbench/internal/model"
)

// SpeedOfLight is used for both the Friis wavelength and propagation delay.
const SpeedOfLight = 299792458.0

// ErrUnknownTopic is returned by Connect for a malformed or out-of-range topic.
var ErrUnknownTopic = errors.New("unknown trace topic")

// Params describes the PHY shared by every node.
type Params struct {
	TxPowerDbm       float64
	RxSensitivityDbm float64
	FrequencyHz      float64
	PhyRateBps       float64
}

// Receiver is invoked when a frame reaches a node.
type Receiver func(pkt model.Packet, from int)

// TxBeginFunc observes the start of a transmission on a node's radio.
type TxBeginFunc func(ev model.TransmissionEvent, pkt model.Packet)

// Stats counts channel activity for debugging and logging.
type Stats struct {
	Transmissions uint64
	Deliveries    uint64
	OutOfRange    uint64
}

// Channel is a single shared wireless medium. Reception is decided by
// free-space range at the instant a transmission begins.
type Channel struct {
	sim       *engine.Simulation
	models    []mobility.Model
	params    Params
	rangeM    float64
	receivers []Receiver
	subs      [][]TxBeginFunc
	nextUID   uint64
	stats     Stats
	log       logrus.FieldLogger
}

// FriisRange returns the distance at which free-space loss consumes the
// whole budget between transmit power and receive sensitivity.
func FriisRange(txPowerDbm, rxSensitivityDbm, frequencyHz float64) float64 {
	lambda := SpeedOfLight / frequencyHz
	budget := txPowerDbm - rxSensitivityDbm
	if budget <= 0 {
		return 0
	}
	return lambda / (4 * math.Pi) * math.Pow(10, budget/20)
}

// TopicTxBegin names the transmission-begin trace source of a node.
func TopicTxBegin(node int) string {
	return fmt.Sprintf("/nodes/%d/phy/tx-begin", node)
}

// NewChannel creates a channel over the nodes whose motion models are given.
func NewChannel(sim *engine.Simulation, models []mobility.Model, params Params, log logrus.FieldLogger) *Channel {
	c := &Channel{
		sim:       sim,
		models:    models,
		params:    params,
		rangeM:    FriisRange(params.TxPowerDbm, params.RxSensitivityDbm, params.FrequencyHz),
		receivers: make([]Receiver, len(models)),
		subs:      make([][]TxBeginFunc, len(models)),
		log:       log,
	}
	c.log.WithFields(logrus.Fields{
		"nodes":   len(models),
		"range_m": fmt.Sprintf("%.1f", c.rangeM),
	}).Debug("radio channel created")
	return c
}

// Connect subscribes fn to a trace topic such as TopicTxBegin(3).
func (c *Channel) Connect(topic string, fn TxBeginFunc) error {
	var node int
	var rest string
	if _, err := fmt.Sscanf(topic, "/nodes/%d/phy/%s", &node, &rest); err != nil {
		return fmt.Errorf("%w: %q", ErrUnknownTopic, topic)
	}
	if rest != "tx-begin" || node < 0 || node >= len(c.subs) {
		return fmt.Errorf("%w: %q", ErrUnknownTopic, topic)
	}
	c.subs[node] = append(c.subs[node], fn)
	return nil
}

// Attach installs the receive path of a node.
func (c *Channel) Attach(node int, r Receiver) {
	c.receivers[node] = r
}

// Nodes returns the number of nodes on the channel.
func (c *Channel) Nodes() int {
	return len(c.models)
}

// Range returns the maximum reception distance in meters.
func (c *Channel) Range() float64 {
	return c.rangeM
}

// Position returns where a node is now.
func (c *Channel) Position(node int) model.Position {
	return c.models[node].PositionAt(c.sim.Now())
}

// InRange reports whether b hears a transmission from a right now.
func (c *Channel) InRange(a, b int) bool {
	if a == b {
		return false
	}
	return c.Position(a).DistanceTo(c.Position(b)) <= c.rangeM
}

// Neighbors lists every node currently in range of node.
func (c *Channel) Neighbors(node int) []int {
	out := make([]int, 0, len(c.models))
	for i := range c.models {
		if c.InRange(node, i) {
			out = append(out, i)
		}
	}
	return out
}

// NextUID hands out packet identifiers unique within the channel.
func (c *Channel) NextUID() uint64 {
	c.nextUID++
	return c.nextUID
}

// Stats returns a copy of the activity counters.
func (c *Channel) Stats() Stats {
	return c.stats
}

func (c *Channel) airtime(size int) float64 {
	return float64(size*8) / c.params.PhyRateBps
}

// Transmit sends pkt from node to nextHop, or to every neighbor when nextHop
// is model.Broadcast. Subscribers of the sender's tx-begin topic fire first,
// synchronously. For unicast the result mirrors a link-layer ack: false when
// nextHop is out of range and nothing will be delivered.
func (c *Channel) Transmit(from, nextHop int, pkt model.Packet) bool {
	c.stats.Transmissions++
	ev := model.TransmissionEvent{Node: from, At: c.sim.Now()}
	for _, fn := range c.subs[from] {
		fn(ev, pkt)
	}

	airtime := c.airtime(pkt.Size)
	origin := c.Position(from)
	deliver := func(to int) {
		r := c.receivers[to]
		if r == nil {
			return
		}
		delay := airtime + origin.DistanceTo(c.Position(to))/SpeedOfLight
		c.stats.Deliveries++
		c.sim.Schedule(delay, func() { r(pkt, from) })
	}

	if nextHop == model.Broadcast {
		for _, to := range c.Neighbors(from) {
			deliver(to)
		}
		return true
	}

	if nextHop < 0 || nextHop >= len(c.models) || !c.InRange(from, nextHop) {
		c.stats.OutOfRange++
		return false
	}
	deliver(nextHop)
	return true
}
