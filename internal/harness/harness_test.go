package harness

import (
	"bytes"
	"errors"
	"io"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	logtest "github.com/sirupsen/logrus/hooks/test"

	"manetbench/internal/config"
	"manetbench/internal/model"
	"manetbench/internal/routing"
	"manetbench/internal/trace"
)

func quietLogger() *logrus.Logger {
	log := logrus.New()
	log.Out = io.Discard
	return log
}

func smallConfig(protocol string) config.Config {
	cfg := config.Default()
	cfg.Protocol = protocol
	cfg.Seed = 42
	cfg.Topology.Nodes = 8
	cfg.Topology.DurationSec = 20
	return cfg
}

func checkRanges(t *testing.T, r model.Report) {
	t.Helper()
	if r.PDR < 0 || r.PDR > 100 {
		t.Fatalf("pdr=%v", r.PDR)
	}
	if r.RoutingOverhead < 0 || r.RoutingOverhead > 100 {
		t.Fatalf("overhead=%v", r.RoutingOverhead)
	}
	if r.AvgDelay < 0 {
		t.Fatalf("delay=%v", r.AvgDelay)
	}
}

func TestExecute_DefaultDSDVRun(t *testing.T) {
	t.Parallel()

	cfg := config.Default()
	cfg.Seed = 1
	h, err := New(cfg, Options{Log: quietLogger()})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	var out bytes.Buffer
	r, err := h.Execute(&out)
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if h.State() != Reported {
		t.Fatalf("state=%s", h.State())
	}
	checkRanges(t, r)
	if r.Nodes != 30 || r.Protocol != "dsdv" || r.TxPackets == 0 || r.RxPackets == 0 {
		t.Fatalf("report=%+v", r)
	}
	if r.RxPackets+r.LostPackets > r.TxPackets {
		t.Fatalf("rx+lost exceeds tx: %+v", r)
	}
	if !strings.Contains(out.String(), "Packet Delivery Ratio (PDR): ") {
		t.Fatalf("report text:\n%s", out.String())
	}
}

func TestExecute_AODVDiscoversRoute(t *testing.T) {
	t.Parallel()

	h, err := New(smallConfig("aodv"), Options{Log: quietLogger()})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	r, err := h.Execute(io.Discard)
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	checkRanges(t, r)
	if h.Protocol() != routing.AODV || r.Protocol != "aodv" {
		t.Fatalf("protocol=%s", r.Protocol)
	}
	if r.RxPackets == 0 || r.RoutingPackets == 0 {
		t.Fatalf("report=%+v", r)
	}
}

func TestExecute_UnknownProtocolFallsBackToDSDV(t *testing.T) {
	t.Parallel()

	log, hook := logtest.NewNullLogger()
	h, err := New(smallConfig("bogus"), Options{Log: log})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	r, err := h.Execute(io.Discard)
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if h.Protocol() != routing.DSDV || r.Protocol != "dsdv" {
		t.Fatalf("protocol=%s", r.Protocol)
	}
	warned := false
	for _, e := range hook.AllEntries() {
		if e.Level == logrus.WarnLevel && e.Message == "Invalid routing protocol specified. Using default (DSDV)." {
			warned = true
		}
	}
	if !warned {
		t.Fatalf("fallback not logged")
	}
	if got := filepath.Base(h.Artifacts().WifiTrace); got != "bogus-wifi.tr" {
		t.Fatalf("artifact=%q", got)
	}
}

func TestRun_CountsSourceDataAndLogsTotals(t *testing.T) {
	t.Parallel()

	log, hook := logtest.NewNullLogger()
	h, err := New(smallConfig("dsdv"), Options{Log: log})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	r, err := h.Execute(io.Discard)
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if h.Collector().DataPackets() == 0 {
		t.Fatalf("data=0 with tx=%d", r.TxPackets)
	}
	if h.Collector().ControlPackets() != r.RoutingPackets {
		t.Fatalf("control=%d report=%d", h.Collector().ControlPackets(), r.RoutingPackets)
	}

	var finished *logrus.Entry
	for _, e := range hook.AllEntries() {
		if e.Message == "simulation finished" {
			finished = e
		}
	}
	if finished == nil {
		t.Fatalf("finish not logged")
	}
	if finished.Data["nodes"] != 8 {
		t.Fatalf("nodes=%v", finished.Data["nodes"])
	}
	if n, _ := finished.Data["flow_events"].(uint64); n == 0 {
		t.Fatalf("flow_events=%v", finished.Data["flow_events"])
	}
	if n, _ := finished.Data["data_tx"].(uint64); n == 0 {
		t.Fatalf("data_tx=%v", finished.Data["data_tx"])
	}
}

func TestExecute_WritesRunTranscript(t *testing.T) {
	t.Parallel()

	cfg := smallConfig("dsdv")
	cfg.Traffic.PacketSize = 512
	var progress, report bytes.Buffer
	h, err := New(cfg, Options{Log: quietLogger(), Progress: &progress})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if _, err := h.Execute(&report); err != nil {
		t.Fatalf("Execute: %v", err)
	}
	want := "Set packet size to 512\n" +
		"Set transmission range to 25\n" +
		" \n" +
		" Running simulation...\n" +
		"Set time to 20\n" +
		"Done! Printing results...\n" +
		" \n"
	if progress.String() != want {
		t.Fatalf("transcript=%q", progress.String())
	}
	if strings.Contains(report.String(), "Running simulation") {
		t.Fatalf("transcript leaked into report:\n%s", report.String())
	}
}

func TestNew_RejectsEmptyNetwork(t *testing.T) {
	t.Parallel()

	for _, n := range []int{0, -3} {
		cfg := config.Default()
		cfg.Topology.Nodes = n
		if _, err := New(cfg, Options{Log: quietLogger()}); !errors.Is(err, ErrNoNodes) {
			t.Fatalf("nodes=%d err=%v", n, err)
		}
	}

	cfg := config.Default()
	cfg.Topology.Nodes = 1
	if _, err := New(cfg, Options{Log: quietLogger()}); !errors.Is(err, ErrTooFewNodes) {
		t.Fatalf("err=%v", err)
	}
}

func TestNew_RejectsInvalidConfig(t *testing.T) {
	t.Parallel()

	cfg := config.Default()
	cfg.Traffic.PacketSize = -1
	if _, err := New(cfg, Options{Log: quietLogger()}); err == nil {
		t.Fatalf("expected error")
	}
}

func TestLifecycle_OutOfOrderCallsFail(t *testing.T) {
	t.Parallel()

	h, err := New(smallConfig("dsdv"), Options{Log: quietLogger()})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	for name, step := range map[string]func() error{
		"routing": h.InstallRouting,
		"traffic": h.InstallTraffic,
		"run":     h.Run,
	} {
		if err := step(); !errors.Is(err, ErrInvalidTransition) {
			t.Fatalf("%s before topology: err=%v", name, err)
		}
	}
	if _, err := h.Aggregate(); !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("aggregate before run: err=%v", err)
	}
	if h.State() != Configuring {
		t.Fatalf("state=%s", h.State())
	}

	if err := h.BuildTopology(); err != nil {
		t.Fatalf("BuildTopology: %v", err)
	}
	if err := h.BuildTopology(); !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("second BuildTopology: err=%v", err)
	}
	if err := h.InstallRouting(); err != nil {
		t.Fatalf("InstallRouting: %v", err)
	}
	if err := h.InstallTraffic(); err != nil {
		t.Fatalf("InstallTraffic: %v", err)
	}
	if err := h.Run(); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if h.State() != Completed {
		t.Fatalf("state=%s", h.State())
	}
	first, err := h.Aggregate()
	if err != nil {
		t.Fatalf("Aggregate: %v", err)
	}
	r, err := h.Report(io.Discard)
	if err != nil {
		t.Fatalf("Report: %v", err)
	}
	if r != first {
		t.Fatalf("report changed: %+v vs %+v", r, first)
	}
	if _, err := h.Report(io.Discard); !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("second Report: err=%v", err)
	}
}

func TestExecute_ParallelRunsAreIndependent(t *testing.T) {
	t.Parallel()

	fixed := time.Unix(1700000000, 0)
	var wg sync.WaitGroup
	harnesses := make([]*Harness, 4)
	reports := make([]model.Report, 4)
	errs := make([]error, 4)
	for i := range harnesses {
		h, err := New(smallConfig("dsdv"), Options{Log: quietLogger(), Now: func() time.Time { return fixed }})
		if err != nil {
			t.Fatalf("New: %v", err)
		}
		harnesses[i] = h
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			reports[i], errs[i] = harnesses[i].Execute(io.Discard)
		}(i)
	}
	wg.Wait()

	for i, err := range errs {
		if err != nil {
			t.Fatalf("run %d: %v", i, err)
		}
	}
	ids := map[string]bool{}
	for i, r := range reports {
		ids[r.RunID] = true
		r.RunID = reports[0].RunID
		if r != reports[0] {
			t.Fatalf("run %d diverged under the same seed:\n%+v\n%+v", i, r, reports[0])
		}
	}
	if len(ids) != len(reports) {
		t.Fatalf("run ids not unique: %v", ids)
	}
}

func TestNew_ZeroSeedDrawsFromClock(t *testing.T) {
	t.Parallel()

	cfg := smallConfig("dsdv")
	cfg.Seed = 0
	h, err := New(cfg, Options{Log: quietLogger()})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if h.Seed() == 0 {
		t.Fatalf("seed not drawn")
	}
}

type recordingSink struct {
	opened  trace.Artifacts
	env     trace.Env
	closed  bool
	openErr error
}

func (s *recordingSink) Open(a trace.Artifacts, env trace.Env) error {
	s.opened = a
	s.env = env
	return s.openErr
}

func (s *recordingSink) Close() error {
	s.closed = true
	return nil
}

func TestTraceSink_ReceivesArtifacts(t *testing.T) {
	t.Parallel()

	cfg := smallConfig("aodv")
	cfg.Output.Dir = "out"
	sink := &recordingSink{}
	h, err := New(cfg, Options{Log: quietLogger(), TraceSink: sink})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if _, err := h.Execute(io.Discard); err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if sink.opened.WifiTrace != filepath.Join("out", "aodv-wifi.tr") {
		t.Fatalf("artifacts=%+v", sink.opened)
	}
	if !sink.closed {
		t.Fatalf("sink not closed")
	}
	if sink.env.Nodes != 8 || sink.env.ControlPort != 654 {
		t.Fatalf("env=%+v", sink.env)
	}
}

func TestTraceSink_OpenFailureDoesNotAbortRun(t *testing.T) {
	t.Parallel()

	sink := &recordingSink{openErr: errors.New("disk full")}
	h, err := New(smallConfig("dsdv"), Options{Log: quietLogger(), TraceSink: sink})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if _, err := h.Execute(io.Discard); err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if sink.closed {
		t.Fatalf("closed a sink that failed to open")
	}
	if h.State() != Reported {
		t.Fatalf("state=%s", h.State())
	}
}

func TestFileSink_EndToEnd(t *testing.T) {
	t.Parallel()

	cfg := smallConfig("dsdv")
	cfg.Output.Dir = t.TempDir()
	sink := &trace.FileSink{Log: quietLogger()}
	h, err := New(cfg, Options{Log: quietLogger(), TraceSink: sink})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if _, err := h.Execute(io.Discard); err != nil {
		t.Fatalf("Execute: %v", err)
	}
	for _, path := range []string{h.Artifacts().WifiTrace, h.Artifacts().Animation, h.Artifacts().AnimRoutes, h.Artifacts().Pcap(0)} {
		if !fileNonEmpty(t, path) {
			t.Fatalf("empty artifact %s", path)
		}
	}
}
