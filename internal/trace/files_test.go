package trace

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcapgo"

	"manetbench/internal/addrutil"
	"manetbench/internal/engine"
	"manetbench/internal/model"
	"manetbench/internal/radio"
	"manetbench/internal/routing"
)

func TestArtifactsFor_NamesFromProtocol(t *testing.T) {
	t.Parallel()

	a := ArtifactsFor("store", "aodv")
	want := Artifacts{
		WifiTrace:  filepath.Join("store", "aodv-wifi.tr"),
		PcapPrefix: filepath.Join("store", "aodv-pcap"),
		Animation:  filepath.Join("store", "aodv-anim.xml"),
		AnimRoutes: filepath.Join("store", "aodv-anim-routes.routes"),
	}
	if a != want {
		t.Fatalf("artifacts=%+v", a)
	}
	if got := a.Pcap(3); got != filepath.Join("store", "aodv-pcap-3-0.pcap") {
		t.Fatalf("pcap=%q", got)
	}
	if got := ArtifactsFor("store", "../x").WifiTrace; got != filepath.Join("store", "x-wifi.tr") {
		t.Fatalf("escaped dir: %q", got)
	}
}

func TestFileSink_WritesArtifacts(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	a := ArtifactsFor(dir, "dsdv")
	bus := &fakeBus{}
	sim := engine.NewSimulation()
	env := Env{
		Sim:         sim,
		Bus:         bus,
		Nodes:       2,
		Stop:        2,
		ControlPort: 269,
		Position:    func(node int) model.Position { return model.Position{X: float64(node) * 10} },
		Routes: func(node int) []routing.Route {
			return []routing.Route{{Dst: 1 - node, NextHop: 1 - node, Hops: 1, Seq: 4, Valid: true}}
		},
	}
	sink := &FileSink{}
	if err := sink.Open(a, env); err != nil {
		t.Fatalf("Open: %v", err)
	}
	if len(bus.topics) != 2 {
		t.Fatalf("topics=%v", bus.topics)
	}

	sim.ScheduleAt(1.5, func() {
		pkt := model.Packet{UID: 7, Kind: model.Data, Src: 0, Dst: 1, Port: 9, Size: 256 + model.HeaderBytes, TTL: 64}
		bus.fns[0](model.TransmissionEvent{Node: 0, At: sim.Now()}, pkt)
	})
	sim.Run(env.Stop)
	if err := sink.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	ascii, err := os.ReadFile(a.WifiTrace)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if !strings.Contains(string(ascii), "uid=7 data 10.1.1.1:9 > 10.1.1.2:9") {
		t.Fatalf("ascii trace:\n%s", ascii)
	}

	f, err := os.Open(a.Pcap(0))
	if err != nil {
		t.Fatalf("Open pcap: %v", err)
	}
	defer f.Close()
	r, err := pcapgo.NewReader(f)
	if err != nil {
		t.Fatalf("NewReader: %v", err)
	}
	data, _, err := r.ReadPacketData()
	if err != nil {
		t.Fatalf("ReadPacketData: %v", err)
	}
	if len(data) != 256+model.HeaderBytes {
		t.Fatalf("len=%d", len(data))
	}
	p := gopacket.NewPacket(data, layers.LayerTypeIPv4, gopacket.Default)
	udp, ok := p.Layer(layers.LayerTypeUDP).(*layers.UDP)
	if !ok || udp.DstPort != 9 {
		t.Fatalf("udp=%v", p)
	}
	ip := p.Layer(layers.LayerTypeIPv4).(*layers.IPv4)
	if !ip.DstIP.Equal(addrutil.NodeAddr(1)) {
		t.Fatalf("dst=%v", ip.DstIP)
	}

	anim, err := os.ReadFile(a.Animation)
	if err != nil {
		t.Fatalf("ReadFile anim: %v", err)
	}
	if !strings.Contains(string(anim), `<anim ver="netanim-3.108"`) || strings.Count(string(anim), "<nu ") != 6 {
		t.Fatalf("anim:\n%s", anim)
	}

	routes, err := os.ReadFile(a.AnimRoutes)
	if err != nil {
		t.Fatalf("ReadFile routes: %v", err)
	}
	if !strings.Contains(string(routes), "10.1.1.2 via 10.1.1.2 hops=1 seq=4 valid") {
		t.Fatalf("routes:\n%s", routes)
	}
}

func TestFileSink_FailedOpenRemovesPartialFiles(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	bus := &fakeBus{fail: radio.TopicTxBegin(2)}
	env := Env{
		Sim:      engine.NewSimulation(),
		Bus:      bus,
		Nodes:    3,
		Stop:     1,
		Position: func(int) model.Position { return model.Position{} },
	}
	sink := &FileSink{}
	if err := sink.Open(ArtifactsFor(dir, "aodv"), env); err == nil {
		t.Fatalf("expected error")
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("ReadDir: %v", err)
	}
	if len(entries) != 0 {
		t.Fatalf("left behind %d files, first %s", len(entries), entries[0].Name())
	}

	// Subscriptions made before the failure must not write.
	bus.fns[0](model.TransmissionEvent{Node: 0, At: 0.5}, model.Packet{UID: 1, Kind: model.Data, Dst: 1, Port: 9})
	if err := sink.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if entries, _ := os.ReadDir(dir); len(entries) != 0 {
		t.Fatalf("files after Close: %d", len(entries))
	}
}
