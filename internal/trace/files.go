package trace

import (
	"bufio"
	"encoding/xml"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcapgo"
	"github.com/sirupsen/logrus"

	"manetbench/internal/addrutil"
	"manetbench/internal/model"
	"manetbench/internal/radio"
)

// DefaultPollInterval is how often node positions and routing tables are
// sampled into the animation and route files.
const DefaultPollInterval = 1.0

const snapLen = 65535

// FileSink writes an ASCII transmission trace, one pcap per node, a node
// animation file and periodic routing table dumps.
type FileSink struct {
	PollInterval float64
	Log          logrus.FieldLogger

	env       Env
	files     []*os.File
	paths     []string
	ascii     *bufio.Writer
	routes    *bufio.Writer
	pcaps     []*pcapgo.Writer
	anim      animFile
	animPath  string
	writeErrs int
}

type animFile struct {
	XMLName  xml.Name     `xml:"anim"`
	Version  string       `xml:"ver,attr"`
	FileType string       `xml:"filetype,attr"`
	Nodes    []animNode   `xml:"node"`
	Updates  []animUpdate `xml:"nu"`
}

type animNode struct {
	ID    int     `xml:"id,attr"`
	Descr string  `xml:"descr,attr"`
	R     uint8   `xml:"r,attr"`
	G     uint8   `xml:"g,attr"`
	B     uint8   `xml:"b,attr"`
	X     float64 `xml:"locX,attr"`
	Y     float64 `xml:"locY,attr"`
}

type animUpdate struct {
	P  string  `xml:"p,attr"`
	T  float64 `xml:"t,attr"`
	ID int     `xml:"id,attr"`
	X  float64 `xml:"x,attr"`
	Y  float64 `xml:"y,attr"`
}

// Open creates every artifact and subscribes to the run.
func (s *FileSink) Open(a Artifacts, env Env) error {
	if s.PollInterval <= 0 {
		s.PollInterval = DefaultPollInterval
	}
	if s.Log == nil {
		s.Log = logrus.StandardLogger()
	}
	s.env = env
	s.animPath = a.Animation

	if err := os.MkdirAll(filepath.Dir(a.WifiTrace), 0o755); err != nil {
		return err
	}
	ascii, err := s.create(a.WifiTrace)
	if err != nil {
		return err
	}
	s.ascii = bufio.NewWriter(ascii)
	routes, err := s.create(a.AnimRoutes)
	if err != nil {
		return s.abort(err)
	}
	s.routes = bufio.NewWriter(routes)

	s.pcaps = make([]*pcapgo.Writer, env.Nodes)
	for i := 0; i < env.Nodes; i++ {
		f, err := s.create(a.Pcap(i))
		if err != nil {
			return s.abort(err)
		}
		w := pcapgo.NewWriter(f)
		if err := w.WriteFileHeader(snapLen, layers.LinkTypeRaw); err != nil {
			return s.abort(fmt.Errorf("pcap header %s: %w", a.Pcap(i), err))
		}
		s.pcaps[i] = w
	}

	s.anim = animFile{Version: "netanim-3.108", FileType: "animation"}
	for i := 0; i < env.Nodes; i++ {
		p := env.Position(i)
		s.anim.Nodes = append(s.anim.Nodes, animNode{
			ID: i, Descr: fmt.Sprintf("Node%d", i), R: 255, X: p.X, Y: p.Y,
		})
	}

	for i := 0; i < env.Nodes; i++ {
		if err := env.Bus.Connect(radio.TopicTxBegin(i), s.onTxBegin); err != nil {
			return s.abort(err)
		}
	}
	env.Sim.ScheduleAt(0, s.poll)
	return nil
}

func (s *FileSink) create(path string) (*os.File, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, err
	}
	s.files = append(s.files, f)
	s.paths = append(s.paths, path)
	return f, nil
}

// abort undoes a partial Open: handles are closed and every file created so
// far is removed. Subscriptions already made stay connected but write nothing.
func (s *FileSink) abort(err error) error {
	for _, f := range s.files {
		_ = f.Close()
	}
	for _, path := range s.paths {
		_ = os.Remove(path)
	}
	s.files, s.paths, s.pcaps = nil, nil, nil
	s.ascii, s.routes, s.animPath = nil, nil, ""
	s.anim = animFile{}
	return err
}

func (s *FileSink) onTxBegin(ev model.TransmissionEvent, pkt model.Packet) {
	if s.ascii == nil {
		return
	}
	port := s.port(pkt)
	_, err := fmt.Fprintf(s.ascii, "t %.9f %s uid=%d %s %s > %s size=%d ttl=%d\n",
		ev.At, radio.TopicTxBegin(ev.Node), pkt.UID, pkt.Kind,
		addrutil.Endpoint(pkt.Src, port), addrutil.Endpoint(pkt.Dst, port), pkt.Size, pkt.TTL)
	s.record(err)

	if ev.Node < 0 || ev.Node >= len(s.pcaps) {
		return
	}
	data, err := s.encode(pkt)
	if err != nil {
		s.record(err)
		return
	}
	ci := gopacket.CaptureInfo{
		Timestamp:     time.Unix(0, 0).Add(time.Duration(ev.At * float64(time.Second))),
		CaptureLength: len(data),
		Length:        len(data),
	}
	s.record(s.pcaps[ev.Node].WritePacket(ci, data))
}

func (s *FileSink) port(pkt model.Packet) int {
	if pkt.Kind == model.Control {
		return s.env.ControlPort
	}
	return pkt.Port
}

// encode renders pkt as the IPv4/UDP datagram it stands for.
func (s *FileSink) encode(pkt model.Packet) ([]byte, error) {
	port := s.port(pkt)
	ttl := pkt.TTL
	if ttl > 255 {
		ttl = 255
	}
	ip := &layers.IPv4{
		Version:  4,
		TTL:      uint8(ttl),
		Protocol: layers.IPProtocolUDP,
		SrcIP:    addrutil.NodeAddr(pkt.Src),
		DstIP:    addrutil.NodeAddr(pkt.Dst),
	}
	udp := &layers.UDP{SrcPort: layers.UDPPort(port), DstPort: layers.UDPPort(port)}
	if err := udp.SetNetworkLayerForChecksum(ip); err != nil {
		return nil, err
	}
	payload := pkt.Size - model.HeaderBytes
	if payload < 0 {
		payload = 0
	}
	buf := gopacket.NewSerializeBuffer()
	opts := gopacket.SerializeOptions{FixLengths: true, ComputeChecksums: true}
	if err := gopacket.SerializeLayers(buf, opts, ip, udp, gopacket.Payload(make([]byte, payload))); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (s *FileSink) poll() {
	now := s.env.Sim.Now()
	for i := 0; i < s.env.Nodes; i++ {
		p := s.env.Position(i)
		s.anim.Updates = append(s.anim.Updates, animUpdate{P: "p", T: now, ID: i, X: p.X, Y: p.Y})

		if s.env.Routes == nil {
			continue
		}
		_, err := fmt.Fprintf(s.routes, "t=%.3f node=%d\n", now, i)
		s.record(err)
		for _, r := range s.env.Routes(i) {
			state := "valid"
			if !r.Valid {
				state = "invalid"
			}
			_, err := fmt.Fprintf(s.routes, "  %s via %s hops=%d seq=%d %s\n",
				addrutil.NodeAddr(r.Dst), addrutil.NodeAddr(r.NextHop), r.Hops, r.Seq, state)
			s.record(err)
		}
	}
	if next := now + s.PollInterval; next <= s.env.Stop {
		s.env.Sim.ScheduleAt(next, s.poll)
	}
}

func (s *FileSink) record(err error) {
	if err == nil {
		return
	}
	s.writeErrs++
	if s.writeErrs == 1 {
		s.Log.WithError(err).Warn("trace write failed")
	}
}

// Close writes the animation file and releases every artifact.
func (s *FileSink) Close() error {
	var errs []error
	if s.ascii != nil {
		errs = append(errs, s.ascii.Flush())
	}
	if s.routes != nil {
		errs = append(errs, s.routes.Flush())
	}
	if s.animPath != "" && len(s.anim.Nodes) > 0 {
		errs = append(errs, s.writeAnimation())
	}
	for _, f := range s.files {
		errs = append(errs, f.Close())
	}
	s.files, s.paths = nil, nil
	s.ascii, s.routes, s.animPath = nil, nil, ""
	return errors.Join(errs...)
}

func (s *FileSink) writeAnimation() error {
	data, err := xml.MarshalIndent(s.anim, "", " ")
	if err != nil {
		return err
	}
	return os.WriteFile(s.animPath, append([]byte(xml.Header), data...), 0o644)
}
