package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

const (
	DefaultProtocol          = "dsdv"
	DefaultNodes             = 30
	DefaultDurationSec       = 200.0
	DefaultGridPitch         = 45.0
	DefaultGridRowWidth      = 10
	DefaultAreaSize          = 500.0
	DefaultMinSpeed          = 5.0
	DefaultMaxSpeed          = 25.0
	DefaultPauseSec          = 1.0
	DefaultTxPowerDbm        = 25.0
	DefaultRxSensitivityDbm  = -101.0
	DefaultFrequencyHz       = 2.4e9
	DefaultPhyRateMbps       = 6.0
	DefaultPacketSize        = 256
	DefaultRateKbps          = 50.0
	DefaultStartSec          = 1.0
	DefaultPort              = 9
	DefaultSource            = 0
	DefaultSink              = 1
	DefaultDSDVUpdateSec     = 15.0
	DefaultAODVHelloSec      = 1.0
	DefaultActiveRouteSec    = 3.0
	DefaultRREQRetries       = 2
	DefaultNetTraversalSec   = 2.8
	DefaultMaxQueueLen       = 64
	DefaultMaxQueueTimeSec   = 30.0
	DefaultOutputDir         = "store"
	DefaultHistoryCSV        = "store/history.csv"
	DefaultRegistryFile      = "runs.yaml"
	DefaultLossCheckDelaySec = 10.0
)

// Config holds every parameter of a single harness run.
type Config struct {
	Protocol string         `yaml:"protocol"`
	Seed     int64          `yaml:"seed"`
	Topology TopologyConfig `yaml:"topology"`
	Mobility MobilityConfig `yaml:"mobility"`
	Radio    RadioConfig    `yaml:"radio"`
	Traffic  TrafficConfig  `yaml:"traffic"`
	Routing  RoutingConfig  `yaml:"routing"`
	Output   OutputConfig   `yaml:"output"`
}

// TopologyConfig sizes the network and the static grid.
type TopologyConfig struct {
	Nodes        int     `yaml:"nodes"`
	DurationSec  float64 `yaml:"duration_sec"`
	GridPitch    float64 `yaml:"grid_pitch"`
	GridRowWidth int     `yaml:"grid_row_width"`
}

// MobilityConfig parameterizes the random waypoint half of the network.
type MobilityConfig struct {
	AreaSize float64 `yaml:"area_size"`
	MinSpeed float64 `yaml:"min_speed"`
	MaxSpeed float64 `yaml:"max_speed"`
	PauseSec float64 `yaml:"pause_sec"`
}

// RadioConfig describes the shared wireless channel.
type RadioConfig struct {
	TxPowerDbm       float64 `yaml:"tx_power_dbm"`
	RxSensitivityDbm float64 `yaml:"rx_sensitivity_dbm"`
	FrequencyHz      float64 `yaml:"frequency_hz"`
	PhyRateMbps      float64 `yaml:"phy_rate_mbps"`
}

// TrafficConfig describes the single CBR flow.
type TrafficConfig struct {
	Source     int     `yaml:"source"`
	Sink       int     `yaml:"sink"`
	Port       int     `yaml:"port"`
	PacketSize int     `yaml:"packet_size"`
	RateKbps   float64 `yaml:"rate_kbps"`
	StartSec   float64 `yaml:"start_sec"`

	// LossCheckDelaySec is how long a packet may be in flight before the
	// flow monitor counts it as lost.
	LossCheckDelaySec float64 `yaml:"loss_check_delay_sec"`
}

// RoutingConfig holds protocol timers.
type RoutingConfig struct {
	DSDVUpdateSec   float64 `yaml:"dsdv_update_sec"`
	AODVHelloSec    float64 `yaml:"aodv_hello_sec"`
	ActiveRouteSec  float64 `yaml:"active_route_sec"`
	RREQRetries     int     `yaml:"rreq_retries"`
	NetTraversalSec float64 `yaml:"net_traversal_sec"`
	MaxQueueLen     int     `yaml:"max_queue_len"`
	MaxQueueTimeSec float64 `yaml:"max_queue_time_sec"`
}

// OutputConfig controls where run artifacts go.
type OutputConfig struct {
	Dir            string `yaml:"dir"`
	HistoryCSV     string `yaml:"history_csv"`
	PromTextfile   string `yaml:"prom_textfile"`
	DisableHistory bool   `yaml:"disable_history"`
}

// Default returns a config with every default applied.
func Default() Config {
	var cfg Config
	ApplyDefaults(&cfg)
	return cfg
}

// Load reads and parses a YAML config file. Keys absent from the file keep
// their defaults; keys present keep their value, zero included, and are left
// for Validate to judge.
func Load(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, err
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Save writes a YAML config file to disk as given.
func Save(path string, cfg Config) error {
	data, err := yaml.Marshal(&cfg)
	if err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}

	return os.WriteFile(path, data, 0o600)
}

// Validate rejects configurations a run cannot be built from.
// An unknown protocol name is not an error here: routing falls back to DSDV.
func Validate(cfg Config) error {
	t := cfg.Topology
	if t.Nodes <= 0 {
		return fmt.Errorf("topology.nodes must be positive, got %d", t.Nodes)
	}
	if t.DurationSec <= 0 {
		return fmt.Errorf("topology.duration_sec must be positive")
	}
	if t.GridRowWidth <= 0 {
		return fmt.Errorf("topology.grid_row_width must be positive")
	}
	m := cfg.Mobility
	if m.AreaSize <= 0 {
		return fmt.Errorf("mobility.area_size must be positive")
	}
	if m.MinSpeed <= 0 || m.MaxSpeed < m.MinSpeed {
		return fmt.Errorf("mobility speed range [%.2f, %.2f] is invalid", m.MinSpeed, m.MaxSpeed)
	}
	if m.PauseSec < 0 {
		return fmt.Errorf("mobility.pause_sec must not be negative")
	}
	tr := cfg.Traffic
	if tr.Source < 0 || tr.Source >= t.Nodes || tr.Sink < 0 || tr.Sink >= t.Nodes {
		return fmt.Errorf("traffic endpoints %d->%d outside node range [0, %d)", tr.Source, tr.Sink, t.Nodes)
	}
	if tr.Source == tr.Sink {
		return fmt.Errorf("traffic.source and traffic.sink must differ")
	}
	if tr.PacketSize <= 0 {
		return fmt.Errorf("traffic.packet_size must be positive")
	}
	if tr.RateKbps <= 0 {
		return fmt.Errorf("traffic.rate_kbps must be positive")
	}
	if tr.StartSec < 0 || tr.StartSec >= t.DurationSec {
		return fmt.Errorf("traffic.start_sec must lie in [0, duration)")
	}
	if tr.LossCheckDelaySec < 0 {
		return fmt.Errorf("traffic.loss_check_delay_sec must not be negative")
	}
	if cfg.Radio.PhyRateMbps <= 0 || cfg.Radio.FrequencyHz <= 0 {
		return fmt.Errorf("radio.phy_rate_mbps and radio.frequency_hz must be positive")
	}
	return nil
}

// ApplyDefaults fills in default values for zero fields. It cannot tell an
// explicit zero from an unset field; use Load for files.
func ApplyDefaults(cfg *Config) {
	if cfg.Protocol == "" {
		cfg.Protocol = DefaultProtocol
	}

	if cfg.Topology.Nodes == 0 {
		cfg.Topology.Nodes = DefaultNodes
	}
	if cfg.Topology.DurationSec == 0 {
		cfg.Topology.DurationSec = DefaultDurationSec
	}
	if cfg.Topology.GridPitch == 0 {
		cfg.Topology.GridPitch = DefaultGridPitch
	}
	if cfg.Topology.GridRowWidth == 0 {
		cfg.Topology.GridRowWidth = DefaultGridRowWidth
	}

	if cfg.Mobility.AreaSize == 0 {
		cfg.Mobility.AreaSize = DefaultAreaSize
	}
	if cfg.Mobility.MinSpeed == 0 {
		cfg.Mobility.MinSpeed = DefaultMinSpeed
	}
	if cfg.Mobility.MaxSpeed == 0 {
		cfg.Mobility.MaxSpeed = DefaultMaxSpeed
	}
	if cfg.Mobility.PauseSec == 0 {
		cfg.Mobility.PauseSec = DefaultPauseSec
	}

	if cfg.Radio.TxPowerDbm == 0 {
		cfg.Radio.TxPowerDbm = DefaultTxPowerDbm
	}
	if cfg.Radio.RxSensitivityDbm == 0 {
		cfg.Radio.RxSensitivityDbm = DefaultRxSensitivityDbm
	}
	if cfg.Radio.FrequencyHz == 0 {
		cfg.Radio.FrequencyHz = DefaultFrequencyHz
	}
	if cfg.Radio.PhyRateMbps == 0 {
		cfg.Radio.PhyRateMbps = DefaultPhyRateMbps
	}

	// Source defaults to node 0 already; only the sink needs filling.
	if cfg.Traffic.Sink == 0 && cfg.Traffic.Source == DefaultSource {
		cfg.Traffic.Sink = DefaultSink
	}
	if cfg.Traffic.Port == 0 {
		cfg.Traffic.Port = DefaultPort
	}
	if cfg.Traffic.PacketSize == 0 {
		cfg.Traffic.PacketSize = DefaultPacketSize
	}
	if cfg.Traffic.RateKbps == 0 {
		cfg.Traffic.RateKbps = DefaultRateKbps
	}
	if cfg.Traffic.StartSec == 0 {
		cfg.Traffic.StartSec = DefaultStartSec
	}
	if cfg.Traffic.LossCheckDelaySec == 0 {
		cfg.Traffic.LossCheckDelaySec = DefaultLossCheckDelaySec
	}

	if cfg.Routing.DSDVUpdateSec == 0 {
		cfg.Routing.DSDVUpdateSec = DefaultDSDVUpdateSec
	}
	if cfg.Routing.AODVHelloSec == 0 {
		cfg.Routing.AODVHelloSec = DefaultAODVHelloSec
	}
	if cfg.Routing.ActiveRouteSec == 0 {
		cfg.Routing.ActiveRouteSec = DefaultActiveRouteSec
	}
	if cfg.Routing.RREQRetries == 0 {
		cfg.Routing.RREQRetries = DefaultRREQRetries
	}
	if cfg.Routing.NetTraversalSec == 0 {
		cfg.Routing.NetTraversalSec = DefaultNetTraversalSec
	}
	if cfg.Routing.MaxQueueLen == 0 {
		cfg.Routing.MaxQueueLen = DefaultMaxQueueLen
	}
	if cfg.Routing.MaxQueueTimeSec == 0 {
		cfg.Routing.MaxQueueTimeSec = DefaultMaxQueueTimeSec
	}

	if cfg.Output.Dir == "" {
		cfg.Output.Dir = DefaultOutputDir
	}
	if cfg.Output.HistoryCSV == "" {
		cfg.Output.HistoryCSV = DefaultHistoryCSV
	}
}
