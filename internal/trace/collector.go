package trace

import (
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/atomic"

	"manetbench/internal/model"
	"manetbench/internal/radio"
)

// Bus is the part of the engine a collector subscribes through.
type Bus interface {
	Connect(topic string, fn radio.TxBeginFunc) error
}

// Collector classifies radio transmissions as routing control or application
// data. The source node is the only originator of application traffic, so
// every transmission observed on any other node counts as control. This is
// an approximation: data relayed by intermediate nodes and any other
// non-application chatter are counted as routing overhead too.
type Collector struct {
	source  int
	control atomic.Uint64
	data    atomic.Uint64

	controlTotal prometheus.Counter
	dataTotal    prometheus.Counter
}

// NewCollector creates a run-scoped collector for a flow originating at
// source. Its counters are registered on reg when reg is non-nil.
func NewCollector(source int, reg prometheus.Registerer) *Collector {
	c := &Collector{
		source: source,
		controlTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "manet",
			Name:      "control_transmissions_total",
			Help:      "Transmissions classified as routing control traffic.",
		}),
		dataTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "manet",
			Name:      "data_transmissions_total",
			Help:      "Transmissions classified as application data traffic.",
		}),
	}
	if reg != nil {
		reg.MustRegister(c.controlTotal, c.dataTotal)
	}
	return c
}

// Subscribe connects the collector to the transmission-begin topic of every
// node. Transmissions on the source only ever feed the data counter; the
// source's own routing chatter is not counted as control.
func (c *Collector) Subscribe(bus Bus, nodes int) error {
	for i := 0; i < nodes; i++ {
		fn := c.onTxBegin
		if i == c.source {
			fn = c.onSourceTxBegin
		}
		if err := bus.Connect(radio.TopicTxBegin(i), fn); err != nil {
			return err
		}
	}
	return nil
}

func (c *Collector) onTxBegin(ev model.TransmissionEvent, _ model.Packet) {
	c.OnTransmissionBegin(ev.Node, ev.At)
}

func (c *Collector) onSourceTxBegin(ev model.TransmissionEvent, pkt model.Packet) {
	if pkt.Kind == model.Data {
		c.OnTransmissionBegin(ev.Node, ev.At)
	}
}

// OnTransmissionBegin classifies and counts one transmission.
func (c *Collector) OnTransmissionBegin(node int, _ float64) model.Classification {
	if node == c.source {
		c.data.Inc()
		c.dataTotal.Inc()
		return model.Data
	}
	c.control.Inc()
	c.controlTotal.Inc()
	return model.Control
}

// Reset zeroes the run counters. Prometheus counters are monotonic and keep
// their value; a fresh run uses a fresh registry.
func (c *Collector) Reset() {
	c.control.Store(0)
	c.data.Store(0)
}

// ControlPackets returns the number of transmissions classified as control.
func (c *Collector) ControlPackets() uint64 {
	return c.control.Load()
}

// DataPackets returns the number of transmissions classified as data.
func (c *Collector) DataPackets() uint64 {
	return c.data.Load()
}

// Collectors exposes the prometheus metrics for registration elsewhere.
func (c *Collector) Collectors() []prometheus.Collector {
	return []prometheus.Collector{c.controlTotal, c.dataTotal}
}
