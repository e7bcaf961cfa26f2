package traffic

import (
	"math"
	"testing"

	"manetbench/internal/engine"
	"manetbench/internal/model"
)

type loopback struct {
	sink *Sink
	uid  uint64
}

func (l *loopback) Send(pkt model.Packet) { l.sink.Deliver(pkt) }

func (l *loopback) NextUID() uint64 {
	l.uid++
	return l.uid
}

type recorder struct {
	sent, received []float64
}

func (r *recorder) Sent(_ model.Packet, at float64)     { r.sent = append(r.sent, at) }
func (r *recorder) Received(_ model.Packet, at float64) { r.received = append(r.received, at) }

func baseline() Flow {
	return Flow{ID: 1, Src: 0, Dst: 1, Port: 9, PacketSize: 256, RateBps: 50000, Start: 1, Stop: 200}
}

func TestFlow_Interval(t *testing.T) {
	t.Parallel()

	if got := baseline().Interval(); math.Abs(got-0.04096) > 1e-12 {
		t.Fatalf("interval=%v", got)
	}
}

func TestFlow_SendTimesWithinWindow(t *testing.T) {
	t.Parallel()

	f := baseline()
	times := f.SendTimes()
	want := int(math.Ceil((f.Stop - f.Start) / f.Interval()))
	if len(times) != want {
		t.Fatalf("count=%d want=%d", len(times), want)
	}
	if times[0] != f.Start {
		t.Fatalf("first=%v", times[0])
	}
	if last := times[len(times)-1]; last >= f.Stop {
		t.Fatalf("last=%v", last)
	}
}

func TestFlow_DegenerateWindow(t *testing.T) {
	t.Parallel()

	f := baseline()
	f.Stop = f.Start
	if got := f.SendTimes(); len(got) != 0 {
		t.Fatalf("times=%v", got)
	}
}

func TestInstall_SourceEmitsAndSinkReceives(t *testing.T) {
	t.Parallel()

	sim := engine.NewSimulation()
	f := baseline()
	f.Stop = 2
	rec := &recorder{}
	lb := &loopback{}
	src, sink := Install(sim, f, lb, lb, rec)
	lb.sink = sink
	sim.Run(f.Stop)

	if src.Sent() == 0 || src.Sent() != sink.Received {
		t.Fatalf("sent=%d received=%d", src.Sent(), sink.Received)
	}
	if sink.Bytes != sink.Received*256 {
		t.Fatalf("bytes=%d", sink.Bytes)
	}
	if len(rec.sent) != len(rec.received) || rec.sent[0] != 1 {
		t.Fatalf("rec=%+v", rec)
	}
}

func TestSink_WildcardBindAcceptsAnyPeer(t *testing.T) {
	t.Parallel()

	sink := &Sink{Node: 1, Port: 9, Bind: AnyNode, sim: engine.NewSimulation()}
	for _, src := range []int{0, 5, 17} {
		if !sink.Accepts(model.Packet{Src: src, Dst: 1, Port: 9}) {
			t.Fatalf("rejected src=%d", src)
		}
	}
	if sink.Accepts(model.Packet{Src: 0, Dst: 1, Port: 10}) {
		t.Fatalf("accepted wrong port")
	}

	bound := &Sink{Node: 1, Port: 9, Bind: 1, sim: engine.NewSimulation()}
	if bound.Accepts(model.Packet{Src: 0, Dst: 2, Port: 9}) {
		t.Fatalf("bound sink accepted another address")
	}
}
