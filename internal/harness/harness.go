package harness

import (
	"errors"
	"fmt"
	"io"
	"math/rand"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"

	"manetbench/internal/config"
	"manetbench/internal/engine"
	"manetbench/internal/flowmon"
	"manetbench/internal/metrics"
	"manetbench/internal/mobility"
	"manetbench/internal/model"
	"manetbench/internal/radio"
	"manetbench/internal/routing"
	"manetbench/internal/trace"
	"manetbench/internal/traffic"
)

var (
	ErrNoNodes           = errors.New("node count must be positive")
	ErrTooFewNodes       = errors.New("too few nodes for the flow endpoints")
	ErrInvalidTransition = errors.New("invalid lifecycle transition")
)

// State is the lifecycle position of a run.
type State int

const (
	Configuring State = iota
	TopologyBuilt
	RoutingInstalled
	TrafficInstalled
	Running
	Completed
	Reported
)

func (s State) String() string {
	switch s {
	case Configuring:
		return "configuring"
	case TopologyBuilt:
		return "topology-built"
	case RoutingInstalled:
		return "routing-installed"
	case TrafficInstalled:
		return "traffic-installed"
	case Running:
		return "running"
	case Completed:
		return "completed"
	case Reported:
		return "reported"
	}
	return fmt.Sprintf("State(%d)", int(s))
}

// Options are the optional collaborators of a run.
type Options struct {
	Log logrus.FieldLogger
	// TraceSink receives the artifact names and the run's observation
	// points. Nil disables trace output.
	TraceSink trace.Sink
	// Now stamps the report. Defaults to time.Now.
	Now func() time.Time
	// Progress receives the plain-text run transcript around the report.
	Progress io.Writer
}

// Harness drives one simulation run from configuration to report. Every
// piece of run state lives here; two harnesses share nothing.
type Harness struct {
	cfg      config.Config
	log      logrus.FieldLogger
	sink     trace.Sink
	now      func() time.Time
	progress io.Writer
	state    State
	runID    string
	seed     int64
	rng      *rand.Rand
	registry *prometheus.Registry

	sim        *engine.Simulation
	policies   []mobility.Policy
	models     []mobility.Model
	channel    *radio.Channel
	protocol   routing.Protocol
	strategies []routing.Strategy
	collector  *trace.Collector
	monitor    *flowmon.Monitor
	local      []func(model.Packet)
	source     *traffic.Source
	appSink    *traffic.Sink
	drops      map[string]uint64

	startedAt  time.Time
	aggregated bool
	report     model.Report
}

// New validates cfg and prepares a run. Nothing is built until
// BuildTopology.
func New(cfg config.Config, opts Options) (*Harness, error) {
	if cfg.Topology.Nodes <= 0 {
		return nil, fmt.Errorf("%w: got %d", ErrNoNodes, cfg.Topology.Nodes)
	}
	tr := cfg.Traffic
	if tr.Source >= cfg.Topology.Nodes || tr.Sink >= cfg.Topology.Nodes {
		return nil, fmt.Errorf("%w: flow %d->%d needs at least %d nodes",
			ErrTooFewNodes, tr.Source, tr.Sink, max(tr.Source, tr.Sink)+1)
	}
	if err := config.Validate(cfg); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	h := &Harness{
		cfg:      cfg,
		log:      opts.Log,
		sink:     opts.TraceSink,
		now:      opts.Now,
		progress: opts.Progress,
		runID:    uuid.NewString(),
		seed:     cfg.Seed,
		registry: prometheus.NewRegistry(),
		sim:      engine.NewSimulation(),
		drops:    map[string]uint64{},
	}
	if h.log == nil {
		h.log = logrus.StandardLogger()
	}
	if h.now == nil {
		h.now = time.Now
	}
	if h.progress == nil {
		h.progress = io.Discard
	}
	if h.seed == 0 {
		h.seed = time.Now().UnixNano()
	}
	h.rng = rand.New(rand.NewSource(h.seed))
	h.log = h.log.WithField("run_id", h.runID)
	return h, nil
}

func (h *Harness) advance(from, to State) error {
	if h.state != from {
		return fmt.Errorf("%w: %s -> %s while %s", ErrInvalidTransition, from, to, h.state)
	}
	h.state = to
	return nil
}

// State returns the current lifecycle state.
func (h *Harness) State() State { return h.state }

// RunID returns the unique id of the run.
func (h *Harness) RunID() string { return h.runID }

// Seed returns the effective seed, drawn from the clock when the config
// left it at zero.
func (h *Harness) Seed() int64 { return h.seed }

// Protocol returns the installed routing protocol.
func (h *Harness) Protocol() routing.Protocol { return h.protocol }

// Registry returns the run's private metrics registry.
func (h *Harness) Registry() *prometheus.Registry { return h.registry }

// Collector returns the run's transmission classifier. Nil before
// InstallRouting.
func (h *Harness) Collector() *trace.Collector { return h.collector }

// StartedAt returns when Run began.
func (h *Harness) StartedAt() time.Time { return h.startedAt }

// Artifacts names the trace files of the run.
func (h *Harness) Artifacts() trace.Artifacts {
	return trace.ArtifactsFor(h.cfg.Output.Dir, h.cfg.Protocol)
}

// BuildTopology creates the nodes, assigns mobility and brings up the
// shared channel.
func (h *Harness) BuildTopology() error {
	if err := h.advance(Configuring, TopologyBuilt); err != nil {
		return err
	}
	n := h.cfg.Topology.Nodes
	grid := mobility.Grid{Pitch: h.cfg.Topology.GridPitch, RowWidth: h.cfg.Topology.GridRowWidth}
	wp := mobility.WaypointParams{
		MinSpeed: h.cfg.Mobility.MinSpeed,
		MaxSpeed: h.cfg.Mobility.MaxSpeed,
		Pause:    h.cfg.Mobility.PauseSec,
		AreaSize: h.cfg.Mobility.AreaSize,
	}
	h.policies = mobility.Assign(n, grid, wp)
	h.models = make([]mobility.Model, n)
	for i, p := range h.policies {
		h.models[i] = mobility.NewModel(p, rand.New(rand.NewSource(h.rng.Int63())))
	}
	h.channel = radio.NewChannel(h.sim, h.models, radio.Params{
		TxPowerDbm:       h.cfg.Radio.TxPowerDbm,
		RxSensitivityDbm: h.cfg.Radio.RxSensitivityDbm,
		FrequencyHz:      h.cfg.Radio.FrequencyHz,
		PhyRateBps:       h.cfg.Radio.PhyRateMbps * 1e6,
	}, h.log)
	h.local = make([]func(model.Packet), n)

	// The transmission setting echoed here is the configured power in dBm.
	fmt.Fprintf(h.progress, "Set packet size to %d\n", h.cfg.Traffic.PacketSize)
	fmt.Fprintf(h.progress, "Set transmission range to %s\n", metrics.FormatFloat(h.cfg.Radio.TxPowerDbm))
	fmt.Fprint(h.progress, " \n Running simulation...\n")

	static, mobile := mobility.Split(n)
	h.log.WithFields(logrus.Fields{
		"nodes":       n,
		"static":      static,
		"mobile":      mobile,
		"packet_size": h.cfg.Traffic.PacketSize,
		"range_m":     fmt.Sprintf("%.1f", h.channel.Range()),
	}).Info("topology built")
	return nil
}

// InstallRouting selects the protocol, installs it on every node and
// attaches the transmission collector.
func (h *Harness) InstallRouting() error {
	if err := h.advance(TopologyBuilt, RoutingInstalled); err != nil {
		return err
	}
	h.protocol = routing.SelectStrategy(h.cfg.Protocol, h.log)
	rc := h.cfg.Routing
	params := routing.Params{
		DSDVUpdateInterval: rc.DSDVUpdateSec,
		HelloInterval:      rc.AODVHelloSec,
		ActiveRouteTimeout: rc.ActiveRouteSec,
		NetTraversalTime:   rc.NetTraversalSec,
		RREQRetries:        rc.RREQRetries,
		MaxQueueLen:        rc.MaxQueueLen,
		MaxQueueTime:       rc.MaxQueueTimeSec,
	}
	envs := make([]routing.Env, h.cfg.Topology.Nodes)
	for i := range envs {
		node := i
		envs[i] = routing.Env{
			Node:    node,
			Sim:     h.sim,
			Channel: h.channel,
			Params:  params,
			Rand:    rand.New(rand.NewSource(h.rng.Int63())),
			Log:     h.log,
			Deliver: func(pkt model.Packet) {
				if fn := h.local[node]; fn != nil {
					fn(pkt)
				}
			},
			Drop: func(_ model.Packet, reason string) { h.drops[reason]++ },
		}
	}
	h.strategies = routing.Install(h.protocol, envs)

	h.collector = trace.NewCollector(h.cfg.Traffic.Source, h.registry)
	h.collector.Reset()
	if err := h.collector.Subscribe(h.channel, h.cfg.Topology.Nodes); err != nil {
		return fmt.Errorf("subscribe collector: %w", err)
	}

	if h.sink != nil {
		env := trace.Env{
			Sim:         h.sim,
			Bus:         h.channel,
			Nodes:       h.cfg.Topology.Nodes,
			Stop:        h.cfg.Topology.DurationSec,
			ControlPort: h.protocol.Port(),
			Position:    h.channel.Position,
			Routes:      func(node int) []routing.Route { return h.strategies[node].Routes() },
		}
		if err := h.sink.Open(h.Artifacts(), env); err != nil {
			h.log.WithError(err).Warn("trace output disabled")
			h.sink = nil
		}
	}

	h.log.WithField("protocol", h.protocol).Info("routing installed")
	return nil
}

// InstallTraffic places the CBR source and its sink and starts the flow
// monitor.
func (h *Harness) InstallTraffic() error {
	if err := h.advance(RoutingInstalled, TrafficInstalled); err != nil {
		return err
	}
	tc := h.cfg.Traffic
	flow := traffic.Flow{
		ID:         1,
		Src:        tc.Source,
		Dst:        tc.Sink,
		Port:       tc.Port,
		PacketSize: tc.PacketSize,
		RateBps:    tc.RateKbps * 1000,
		Start:      tc.StartSec,
		Stop:       h.cfg.Topology.DurationSec,
	}
	h.monitor = flowmon.New(tc.LossCheckDelaySec)
	h.source, h.appSink = traffic.Install(h.sim, flow, h.strategies[flow.Src], h.channel, h.monitor)
	h.local[flow.Dst] = h.appSink.Deliver
	h.log.WithField("flow", flow.String()).Info("traffic installed")
	return nil
}

// Run advances the simulation to its stop time.
func (h *Harness) Run() error {
	if err := h.advance(TrafficInstalled, Running); err != nil {
		return err
	}
	h.startedAt = h.now()
	stop := h.cfg.Topology.DurationSec
	h.log.WithField("duration_sec", stop).Info("running simulation")

	fmt.Fprintf(h.progress, "Set time to %s\n", metrics.FormatFloat(stop))
	wall := time.Now()
	h.sim.Run(stop)
	fmt.Fprint(h.progress, "Done! Printing results...\n \n")

	if h.sink != nil {
		if err := h.sink.Close(); err != nil {
			h.log.WithError(err).Warn("closing trace output")
		}
	}
	stats := h.channel.Stats()
	h.log.WithFields(logrus.Fields{
		"nodes":         h.channel.Nodes(),
		"events":        h.sim.Fired(),
		"transmissions": stats.Transmissions,
		"deliveries":    stats.Deliveries,
		"data_tx":       h.collector.DataPackets(),
		"control_tx":    h.collector.ControlPackets(),
		"flow_events":   h.monitor.Observed(),
		"wall":          time.Since(wall).Round(time.Millisecond).String(),
	}).Info("simulation finished")
	h.state = Completed
	return nil
}

// Aggregate reduces the flow statistics and the control packet count into
// the run's report. It may be called more than once after Run.
func (h *Harness) Aggregate() (model.Report, error) {
	if h.state != Completed && h.state != Reported {
		return model.Report{}, fmt.Errorf("%w: aggregate while %s", ErrInvalidTransition, h.state)
	}
	if h.aggregated {
		return h.report, nil
	}
	h.monitor.CheckForLostPackets(h.sim.Now())
	r := metrics.Aggregate(h.monitor.Stats(), h.collector.ControlPackets())
	r.RunID = h.runID
	r.Protocol = h.protocol.String()
	r.Nodes = h.cfg.Topology.Nodes
	r.Seed = h.seed
	r.CompletedAt = h.now().UTC()
	h.report = r
	h.aggregated = true

	if len(h.drops) > 0 {
		fields := logrus.Fields{}
		for reason, n := range h.drops {
			fields["drop_"+strings.ReplaceAll(reason, " ", "_")] = n
		}
		h.log.WithFields(fields).Debug("routing drops")
	}
	return r, nil
}

// Report aggregates, prints the report to w and finishes the run.
func (h *Harness) Report(w io.Writer) (model.Report, error) {
	r, err := h.Aggregate()
	if err != nil {
		return model.Report{}, err
	}
	if err := h.advance(Completed, Reported); err != nil {
		return model.Report{}, err
	}
	if err := metrics.WriteReport(w, r); err != nil {
		return r, fmt.Errorf("write report: %w", err)
	}
	return r, nil
}

// Execute drives the whole lifecycle and returns the report.
func (h *Harness) Execute(w io.Writer) (model.Report, error) {
	steps := []func() error{h.BuildTopology, h.InstallRouting, h.InstallTraffic, h.Run}
	for _, step := range steps {
		if err := step(); err != nil {
			return model.Report{}, err
		}
	}
	return h.Report(w)
}
