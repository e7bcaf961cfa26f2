package flowmon

import (
	"sort"

	"go.uber.org/atomic"

	"manetbench/internal/model"
)

// DefaultMaxPerHopDelay is how long a packet may stay in flight before
// CheckForLostPackets counts it as lost.
const DefaultMaxPerHopDelay = 10.0

// key classifies packets into flows by their end-to-end 3-tuple.
type key struct {
	src  int
	dst  int
	port int
}

type inFlight struct {
	flowID int
	sentAt float64
}

// Monitor tracks application packets end to end and produces the per-flow
// statistics table read after the run.
type Monitor struct {
	maxDelay float64
	flows    map[key]*model.FlowStats
	byID     map[int]*model.FlowStats
	pending  map[uint64]inFlight
	nextID   int
	observed atomic.Uint64
}

// New creates a monitor. maxDelay <= 0 selects DefaultMaxPerHopDelay.
func New(maxDelay float64) *Monitor {
	if maxDelay <= 0 {
		maxDelay = DefaultMaxPerHopDelay
	}
	return &Monitor{
		maxDelay: maxDelay,
		flows:    map[key]*model.FlowStats{},
		byID:     map[int]*model.FlowStats{},
		pending:  map[uint64]inFlight{},
	}
}

func (m *Monitor) classify(pkt model.Packet) *model.FlowStats {
	k := key{src: pkt.Src, dst: pkt.Dst, port: pkt.Port}
	fs, ok := m.flows[k]
	if !ok {
		m.nextID++
		fs = &model.FlowStats{FlowID: m.nextID, Src: pkt.Src, Dst: pkt.Dst}
		m.flows[k] = fs
		m.byID[fs.FlowID] = fs
	}
	return fs
}

// Sent records a packet leaving its source application.
func (m *Monitor) Sent(pkt model.Packet, at float64) {
	m.observed.Inc()
	fs := m.classify(pkt)
	fs.TxPackets++
	fs.TxBytes += uint64(pkt.Size)
	m.pending[pkt.UID] = inFlight{flowID: fs.FlowID, sentAt: at}
}

// Received records a packet reaching its destination application. Packets
// never seen leaving, or already counted as lost, are ignored.
func (m *Monitor) Received(pkt model.Packet, at float64) {
	p, ok := m.pending[pkt.UID]
	if !ok {
		return
	}
	delete(m.pending, pkt.UID)
	m.observed.Inc()
	fs := m.byID[p.flowID]
	fs.RxPackets++
	fs.RxBytes += uint64(pkt.Size)
	fs.DelaySum += at - p.sentAt
}

// CheckForLostPackets marks packets in flight for longer than the maximum
// delay as lost.
func (m *Monitor) CheckForLostPackets(now float64) {
	for uid, p := range m.pending {
		if now-p.sentAt > m.maxDelay {
			m.byID[p.flowID].LostPackets++
			delete(m.pending, uid)
		}
	}
}

// InFlight returns the number of packets neither received nor lost.
func (m *Monitor) InFlight() int {
	return len(m.pending)
}

// Observed returns the number of send and receive events recorded.
func (m *Monitor) Observed() uint64 {
	return m.observed.Load()
}

// Stats returns a copy of every flow record ordered by flow id.
func (m *Monitor) Stats() []model.FlowStats {
	out := make([]model.FlowStats, 0, len(m.byID))
	for _, fs := range m.byID {
		out = append(out, *fs)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].FlowID < out[j].FlowID })
	return out
}
