package store

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/natefinch/atomic"
	"gopkg.in/yaml.v3"

	"manetbench/internal/model"
)

// Runs persists completed simulation runs.
type Runs struct {
	UpdatedAt time.Time `yaml:"updated_at"`
	Runs      []RunInfo `yaml:"runs"`
}

// RunInfo is the registry snapshot of one run.
type RunInfo struct {
	ID              string    `yaml:"id"`
	Protocol        string    `yaml:"protocol"`
	Nodes           int       `yaml:"nodes"`
	Seed            int64     `yaml:"seed"`
	StartedAt       time.Time `yaml:"started_at"`
	CompletedAt     time.Time `yaml:"completed_at"`
	RoutingPackets  uint64    `yaml:"routing_packets"`
	TxPackets       uint64    `yaml:"tx_packets"`
	RxPackets       uint64    `yaml:"rx_packets"`
	LostPackets     uint64    `yaml:"lost_packets"`
	PDR             float64   `yaml:"pdr_pct"`
	RoutingOverhead float64   `yaml:"overhead_pct"`
	AvgDelay        float64   `yaml:"avg_delay_s"`
}

// FromReport builds the registry entry of a finished run.
func FromReport(r model.Report, startedAt time.Time) RunInfo {
	return RunInfo{
		ID:              r.RunID,
		Protocol:        r.Protocol,
		Nodes:           r.Nodes,
		Seed:            r.Seed,
		StartedAt:       startedAt.UTC(),
		CompletedAt:     r.CompletedAt.UTC(),
		RoutingPackets:  r.RoutingPackets,
		TxPackets:       r.TxPackets,
		RxPackets:       r.RxPackets,
		LostPackets:     r.LostPackets,
		PDR:             r.PDR,
		RoutingOverhead: r.RoutingOverhead,
		AvgDelay:        r.AvgDelay,
	}
}

// LoadRuns loads the registry from disk. If the file is missing, returns an
// empty registry.
func LoadRuns(path string) (*Runs, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return &Runs{}, nil
		}
		return nil, err
	}

	var runs Runs
	if err := yaml.Unmarshal(data, &runs); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}

	return &runs, nil
}

// SaveRuns replaces the registry on disk in a single rename.
func SaveRuns(path string, runs *Runs) error {
	if runs == nil {
		return nil
	}
	runs.UpdatedAt = time.Now().UTC()
	data, err := yaml.Marshal(runs)
	if err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}

	return atomic.WriteFile(path, bytes.NewReader(data))
}

// Append adds a run to the registry at path.
func Append(path string, info RunInfo) error {
	runs, err := LoadRuns(path)
	if err != nil {
		return err
	}
	runs.Runs = append(runs.Runs, info)
	return SaveRuns(path, runs)
}

// Find returns the run with the given id.
func (r *Runs) Find(id string) (RunInfo, bool) {
	for _, info := range r.Runs {
		if info.ID == id {
			return info, true
		}
	}
	return RunInfo{}, false
}

// Sorted returns the runs ordered by completion time, oldest first.
func (r *Runs) Sorted() []RunInfo {
	out := append([]RunInfo(nil), r.Runs...)
	sort.SliceStable(out, func(i, j int) bool { return out[i].CompletedAt.Before(out[j].CompletedAt) })
	return out
}
