package trace

import (
	"path/filepath"
	"strconv"

	"manetbench/internal/engine"
	"manetbench/internal/model"
	"manetbench/internal/routing"
)

// Artifacts names the trace outputs of one run.
type Artifacts struct {
	WifiTrace  string
	PcapPrefix string
	Animation  string
	AnimRoutes string
}

// ArtifactsFor derives the artifact paths under dir from the protocol name
// the run was started with.
func ArtifactsFor(dir, protocol string) Artifacts {
	name := filepath.Base(protocol)
	return Artifacts{
		WifiTrace:  filepath.Join(dir, name+"-wifi.tr"),
		PcapPrefix: filepath.Join(dir, name+"-pcap"),
		Animation:  filepath.Join(dir, name+"-anim.xml"),
		AnimRoutes: filepath.Join(dir, name+"-anim-routes.routes"),
	}
}

// Pcap names the capture file of one node.
func (a Artifacts) Pcap(node int) string {
	return a.PcapPrefix + "-" + strconv.Itoa(node) + "-0.pcap"
}

// Env is what a sink may observe of a run.
type Env struct {
	Sim         *engine.Simulation
	Bus         Bus
	Nodes       int
	Stop        float64
	ControlPort int
	Position    func(node int) model.Position
	Routes      func(node int) []routing.Route
}

// Sink turns a run's activity into trace files. The harness hands it the
// artifact names and the run's observation points.
type Sink interface {
	Open(a Artifacts, env Env) error
	Close() error
}
