package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"text/tabwriter"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/pflag"

	"manetbench/internal/config"
	"manetbench/internal/harness"
	"manetbench/internal/metrics"
	"manetbench/internal/model"
	"manetbench/internal/store"
	"manetbench/internal/trace"
)

const usage = `manetbench - AODV vs DSDV evaluation harness for mobile ad-hoc networks

Usage:
  manetbench [run] [--config <path>] [--protocol aodv|dsdv] [--seed n] [--nodes n]
                   [--packet-size b] [--duration s] [--trace] [--prom-textfile <path>]
  manetbench compare [--config <path>] [--seed n] [--nodes n] [--duration s]
  manetbench stats [--config <path>] [--csv <path>] [--protocol aodv|dsdv]
  manetbench history [--data-dir <dir>] [--run <id>]
  manetbench export csv --out <file> [--config <path>] [--csv <path>]
  manetbench config init --out <path>

Every command accepts --log-level (trace|debug|info|warn|error).
`

func main() {
	args := os.Args[1:]
	if len(args) == 0 {
		handleRun(nil)
		return
	}

	cmd := args[0]
	switch cmd {
	case "-h", "--help", "help":
		fmt.Print(usage)
	case "run":
		handleRun(args[1:])
	case "compare":
		handleCompare(args[1:])
	case "stats":
		handleStats(args[1:])
	case "history":
		handleHistory(args[1:])
	case "export":
		handleExport(args[1:])
	case "config":
		handleConfig(args[1:])
	default:
		if len(cmd) > 0 && cmd[0] == '-' {
			handleRun(args)
			return
		}
		fmt.Fprintf(os.Stderr, "unknown command %q\n\n", cmd)
		fmt.Fprint(os.Stderr, usage)
		os.Exit(2)
	}
}

// runFlags are the overrides shared by run and compare.
type runFlags struct {
	configPath string
	seed       int64
	nodes      int
	packetSize int
	duration   float64
	dataDir    string
	logLevel   string
	fs         *pflag.FlagSet
}

func addRunFlags(fs *pflag.FlagSet) *runFlags {
	f := &runFlags{fs: fs}
	fs.StringVar(&f.configPath, "config", "", "path to YAML config")
	fs.Int64Var(&f.seed, "seed", 0, "random seed (0 seeds from the clock)")
	fs.IntVar(&f.nodes, "nodes", 0, "number of nodes")
	fs.IntVar(&f.packetSize, "packet-size", 0, "CBR payload size in bytes")
	fs.Float64Var(&f.duration, "duration", 0, "simulated seconds")
	fs.StringVar(&f.dataDir, "data-dir", "", "directory for run artifacts and the run registry")
	fs.StringVar(&f.logLevel, "log-level", "info", "log level")
	return f
}

// load reads the config file and applies every flag the user set.
func (f *runFlags) load() (config.Config, error) {
	cfg, err := loadConfig(f.configPath)
	if err != nil {
		return config.Config{}, err
	}
	if f.fs.Changed("seed") {
		cfg.Seed = f.seed
	}
	if f.fs.Changed("nodes") {
		cfg.Topology.Nodes = f.nodes
	}
	if f.fs.Changed("packet-size") {
		cfg.Traffic.PacketSize = f.packetSize
	}
	if f.fs.Changed("duration") {
		cfg.Topology.DurationSec = f.duration
	}
	if f.dataDir != "" {
		cfg.Output.Dir = f.dataDir
		cfg.Output.HistoryCSV = filepath.Join(f.dataDir, filepath.Base(config.DefaultHistoryCSV))
	}
	if cfg.Topology.Nodes <= 0 {
		return config.Config{}, fmt.Errorf("topology.nodes=%d: %w", cfg.Topology.Nodes, harness.ErrNoNodes)
	}
	if err := config.Validate(cfg); err != nil {
		return config.Config{}, err
	}
	return cfg, nil
}

func handleRun(args []string) {
	fs := pflag.NewFlagSet("run", pflag.ExitOnError)
	rf := addRunFlags(fs)
	protocol := fs.String("protocol", "", "routing protocol (aodv or dsdv); prompts when omitted")
	traceFiles := fs.Bool("trace", false, "write trace artifacts under the data directory")
	promPath := fs.String("prom-textfile", "", "write a Prometheus textfile snapshot of the run")
	noHistory := fs.Bool("no-history", false, "do not record the run in the history CSV and registry")
	_ = fs.Parse(args)

	log, err := newLogger(rf.logLevel)
	if err != nil {
		fatal(err)
	}
	cfg, err := rf.load()
	if err != nil {
		fatal(err)
	}
	switch {
	case fs.Changed("protocol"):
		cfg.Protocol = *protocol
	case rf.configPath == "":
		chosen, err := promptProtocol(os.Stdin, os.Stdout)
		if err != nil {
			fatal(err)
		}
		cfg.Protocol = chosen
	}
	if *promPath != "" {
		cfg.Output.PromTextfile = *promPath
	}
	if *noHistory {
		cfg.Output.DisableHistory = true
	}

	opts := harness.Options{Log: log, Progress: os.Stdout}
	if *traceFiles {
		opts.TraceSink = &trace.FileSink{Log: log}
	}
	h, err := harness.New(cfg, opts)
	if err != nil {
		fatal(err)
	}

	fmt.Fprintln(os.Stdout, runningBanner(cfg.Topology.Nodes))
	r, err := h.Execute(os.Stdout)
	if err != nil {
		fatal(err)
	}
	fmt.Fprintln(os.Stdout, completedBanner(cfg.Topology.Nodes))
	fmt.Fprintln(os.Stdout, " ")

	record(log, cfg, h, r)
}

func handleCompare(args []string) {
	fs := pflag.NewFlagSet("compare", pflag.ExitOnError)
	rf := addRunFlags(fs)
	noHistory := fs.Bool("no-history", false, "do not record the runs")
	_ = fs.Parse(args)

	log, err := newLogger(rf.logLevel)
	if err != nil {
		fatal(err)
	}
	cfg, err := rf.load()
	if err != nil {
		fatal(err)
	}
	if cfg.Seed == 0 {
		cfg.Seed = time.Now().UnixNano()
	}
	cfg.Output.DisableHistory = cfg.Output.DisableHistory || *noHistory

	protocols := []string{"dsdv", "aodv"}
	harnesses := make([]*harness.Harness, len(protocols))
	for i, p := range protocols {
		pc := cfg
		pc.Protocol = p
		h, err := harness.New(pc, harness.Options{Log: log.WithField("protocol", p)})
		if err != nil {
			fatal(err)
		}
		harnesses[i] = h
	}

	reports := make([]model.Report, len(protocols))
	errs := make([]error, len(protocols))
	var wg sync.WaitGroup
	for i := range harnesses {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			reports[i], errs[i] = harnesses[i].Execute(io.Discard)
		}(i)
	}
	wg.Wait()
	if err := errors.Join(errs...); err != nil {
		fatal(err)
	}

	fmt.Fprintf(os.Stdout, "nodes=%d seed=%d duration=%gs\n\n", cfg.Topology.Nodes, cfg.Seed, cfg.Topology.DurationSec)
	if err := metrics.WriteComparison(os.Stdout, reports); err != nil {
		fatal(err)
	}
	for i, r := range reports {
		record(log, cfg, harnesses[i], r)
	}
}

// record persists a finished run. Failures are logged: the run itself has
// already completed.
func record(log logrus.FieldLogger, cfg config.Config, h *harness.Harness, r model.Report) {
	if !cfg.Output.DisableHistory {
		if err := metrics.AppendCSV(cfg.Output.HistoryCSV, []model.Report{r}); err != nil {
			log.WithError(err).Warn("append run history")
		}
		path := filepath.Join(cfg.Output.Dir, config.DefaultRegistryFile)
		if err := store.Append(path, store.FromReport(r, h.StartedAt())); err != nil {
			log.WithError(err).Warn("update run registry")
		}
	}
	if cfg.Output.PromTextfile != "" {
		if err := metrics.WriteTextfile(cfg.Output.PromTextfile, r, h.Collector().Collectors()...); err != nil {
			log.WithError(err).Warn("write prometheus textfile")
		}
	}
}

func handleStats(args []string) {
	fs := pflag.NewFlagSet("stats", pflag.ExitOnError)
	configPath := fs.String("config", "", "path to YAML config")
	path := fs.String("csv", "", "history CSV path override")
	protocol := fs.String("protocol", "", "only summarize this protocol")
	_ = fs.Parse(args)

	items, err := readHistory(*configPath, *path)
	if err != nil {
		fatal(err)
	}

	protocols := []string{"aodv", "dsdv"}
	if *protocol != "" {
		protocols = []string{*protocol}
	}
	printed := 0
	for _, p := range protocols {
		s := metrics.Summarize(items, p)
		if s.Count == 0 {
			continue
		}
		printed++
		fmt.Fprintf(os.Stdout, "%s runs=%d from=%s to=%s\n", s.Protocol, s.Count, s.From.Format(time.RFC3339), s.To.Format(time.RFC3339))
		fmt.Fprintf(os.Stdout, "  pdr avg=%.2f%% overhead avg=%.2f%%\n", s.AvgPDR, s.AvgOverhead)
		fmt.Fprintf(os.Stdout, "  delay avg=%.6fs p95=%.6fs min=%.6fs max=%.6fs\n", s.AvgDelay, s.P95Delay, s.MinDelay, s.MaxDelay)
		fmt.Fprintf(os.Stdout, "  packets tx=%d rx=%d lost=%d\n", s.TotalTxPackets, s.TotalRxPackets, s.TotalLostPackets)
	}
	if printed == 0 {
		fmt.Fprintln(os.Stdout, "no runs recorded")
	}
}

func handleHistory(args []string) {
	fs := pflag.NewFlagSet("history", pflag.ExitOnError)
	dataDir := fs.String("data-dir", config.DefaultOutputDir, "directory holding the run registry")
	runID := fs.String("run", "", "show only the run with this id")
	_ = fs.Parse(args)

	runs, err := store.LoadRuns(filepath.Join(*dataDir, config.DefaultRegistryFile))
	if err != nil {
		fatal(err)
	}
	if len(runs.Runs) == 0 {
		fmt.Fprintln(os.Stdout, "no runs recorded")
		return
	}
	rows := runs.Sorted()
	if *runID != "" {
		info, ok := runs.Find(*runID)
		if !ok {
			fatal(fmt.Errorf("run %q not found", *runID))
		}
		rows = []store.RunInfo{info}
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tPROTOCOL\tNODES\tSEED\tCOMPLETED\tPDR%\tOVERHEAD%\tDELAY(s)")
	for _, r := range rows {
		fmt.Fprintf(w, "%s\t%s\t%d\t%d\t%s\t%s\t%s\t%s\n",
			r.ID, r.Protocol, r.Nodes, r.Seed, r.CompletedAt.Format(time.RFC3339),
			metrics.FormatFloat(r.PDR), metrics.FormatFloat(r.RoutingOverhead), metrics.FormatFloat(r.AvgDelay))
	}
	_ = w.Flush()
}

func handleExport(args []string) {
	if len(args) == 0 {
		fmt.Fprint(os.Stderr, "export subcommand required\n")
		os.Exit(2)
	}
	if args[0] != "csv" {
		fmt.Fprintf(os.Stderr, "unknown export format %q\n", args[0])
		os.Exit(2)
	}

	fs := pflag.NewFlagSet("export csv", pflag.ExitOnError)
	configPath := fs.String("config", "", "path to YAML config")
	out := fs.String("out", "", "output file")
	path := fs.String("csv", "", "history CSV path override")
	_ = fs.Parse(args[1:])

	if *out == "" {
		fatal(errors.New("--out is required"))
	}
	items, err := readHistory(*configPath, *path)
	if err != nil {
		fatal(err)
	}

	file, err := os.Create(*out)
	if err != nil {
		fatal(err)
	}
	defer file.Close()
	if err := metrics.WriteCSV(file, items); err != nil {
		fatal(err)
	}
}

func handleConfig(args []string) {
	if len(args) == 0 || args[0] != "init" {
		fmt.Fprint(os.Stderr, "config subcommand required: init\n")
		os.Exit(2)
	}
	fs := pflag.NewFlagSet("config init", pflag.ExitOnError)
	out := fs.String("out", "manetbench.yaml", "where to write the default config")
	_ = fs.Parse(args[1:])

	if err := config.Save(*out, config.Default()); err != nil {
		fatal(err)
	}
	fmt.Fprintf(os.Stdout, "wrote %s\n", *out)
}

func readHistory(configPath, override string) ([]model.Report, error) {
	path := override
	if path == "" {
		cfg, err := loadConfig(configPath)
		if err != nil {
			return nil, err
		}
		path = cfg.Output.HistoryCSV
	}
	items, err := metrics.ReadCSV(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read history %s: %w", path, err)
	}
	return items, nil
}

func loadConfig(path string) (config.Config, error) {
	if path == "" {
		return config.Default(), nil
	}
	return config.Load(path)
}

func newLogger(level string) (*logrus.Logger, error) {
	lvl, err := logrus.ParseLevel(level)
	if err != nil {
		return nil, err
	}
	log := logrus.New()
	log.Out = os.Stderr
	log.SetLevel(lvl)
	log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	return log, nil
}

func fatal(err error) {
	if err == nil {
		return
	}
	fmt.Fprintln(os.Stderr, err)
	os.Exit(1)
}
