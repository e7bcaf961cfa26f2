package traffic

import (
	"fmt"

	"manetbench/internal/engine"
	"manetbench/internal/model"
)

// AnyNode is the wildcard local address a sink can bind to.
const AnyNode = -1

// DefaultTTL is the hop limit of application packets.
const DefaultTTL = 64

// Flow is a single constant bit rate stream.
type Flow struct {
	ID         int
	Src        int
	Dst        int
	Port       int
	PacketSize int     // payload bytes
	RateBps    float64 // bits per second
	Start      float64 // seconds
	Stop       float64 // seconds, exclusive
}

// Interval is the time between two packets of the flow.
func (f Flow) Interval() float64 {
	return float64(f.PacketSize*8) / f.RateBps
}

// SendTimes lists every instant the source emits a packet: start + k*interval
// strictly before stop.
func (f Flow) SendTimes() []float64 {
	if f.RateBps <= 0 || f.PacketSize <= 0 || f.Stop <= f.Start {
		return nil
	}
	step := f.Interval()
	var out []float64
	for k := 0; ; k++ {
		t := f.Start + float64(k)*step
		if t >= f.Stop {
			break
		}
		out = append(out, t)
	}
	return out
}

func (f Flow) String() string {
	return fmt.Sprintf("flow %d: %d->%d:%d %dB @ %.0fbps [%.1fs, %.1fs)",
		f.ID, f.Src, f.Dst, f.Port, f.PacketSize, f.RateBps, f.Start, f.Stop)
}

// Sender is the network entry point of the source node.
type Sender interface {
	Send(pkt model.Packet)
}

// Observer is told about application-level sends and receipts.
type Observer interface {
	Sent(pkt model.Packet, at float64)
	Received(pkt model.Packet, at float64)
}

// UIDSource hands out packet identifiers.
type UIDSource interface {
	NextUID() uint64
}

// Source emits the flow's packets on schedule.
type Source struct {
	flow   Flow
	sim    *engine.Simulation
	sender Sender
	uids   UIDSource
	obs    Observer
	sent   uint64
}

// Sink accepts packets on a port. A sink bound to AnyNode accepts from any
// peer and for any local address.
type Sink struct {
	Node     int
	Port     int
	Bind     int
	Received uint64
	Bytes    uint64
	sim      *engine.Simulation
	obs      Observer
}

// Install schedules the send side on the flow's source and returns the
// receive side for its destination. No other node takes part.
func Install(sim *engine.Simulation, f Flow, sender Sender, uids UIDSource, obs Observer) (*Source, *Sink) {
	src := &Source{flow: f, sim: sim, sender: sender, uids: uids, obs: obs}
	for _, at := range f.SendTimes() {
		sim.ScheduleAt(at, src.emit)
	}
	sink := &Sink{Node: f.Dst, Port: f.Port, Bind: AnyNode, sim: sim, obs: obs}
	return src, sink
}

func (s *Source) emit() {
	s.sent++
	pkt := model.Packet{
		UID:       s.uids.NextUID(),
		Kind:      model.Data,
		Src:       s.flow.Src,
		Dst:       s.flow.Dst,
		Port:      s.flow.Port,
		Size:      s.flow.PacketSize + model.HeaderBytes,
		TTL:       DefaultTTL,
		FlowID:    s.flow.ID,
		Seq:       s.sent,
		CreatedAt: s.sim.Now(),
	}
	if s.obs != nil {
		s.obs.Sent(pkt, s.sim.Now())
	}
	s.sender.Send(pkt)
}

// Sent returns the number of packets emitted so far.
func (s *Source) Sent() uint64 {
	return s.sent
}

// Accepts reports whether the sink takes pkt.
func (s *Sink) Accepts(pkt model.Packet) bool {
	if pkt.Port != s.Port {
		return false
	}
	return s.Bind == AnyNode || s.Bind == pkt.Dst
}

// Deliver is the local delivery hook of the sink's node.
func (s *Sink) Deliver(pkt model.Packet) {
	if !s.Accepts(pkt) {
		return
	}
	s.Received++
	s.Bytes += uint64(pkt.Size - model.HeaderBytes)
	if s.obs != nil {
		s.obs.Received(pkt, s.sim.Now())
	}
}
