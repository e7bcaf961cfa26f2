package metrics

import (
	"encoding/csv"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"manetbench/internal/model"
)

var header = []string{
	"completed_at",
	"run_id",
	"protocol",
	"nodes",
	"seed",
	"routing_packets",
	"tx_packets",
	"rx_packets",
	"lost_packets",
	"pdr_pct",
	"overhead_pct",
	"avg_delay_s",
}

// WriteCSV writes reports to CSV with a fixed column order.
func WriteCSV(w io.Writer, items []model.Report) error {
	writer := csv.NewWriter(w)
	if err := writer.Write(header); err != nil {
		return err
	}
	return writeRecords(writer, items)
}

// AppendCSV appends reports to the history file at path, writing the header
// only when the file is new or empty.
func AppendCSV(path string, items []model.Report) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	file, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	defer file.Close()

	info, err := file.Stat()
	if err != nil {
		return err
	}
	writer := csv.NewWriter(file)
	if info.Size() == 0 {
		if err := writer.Write(header); err != nil {
			return err
		}
	}
	return writeRecords(writer, items)
}

func writeRecords(writer *csv.Writer, items []model.Report) error {
	for _, r := range items {
		record := []string{
			r.CompletedAt.UTC().Format(time.RFC3339Nano),
			r.RunID,
			r.Protocol,
			strconv.Itoa(r.Nodes),
			strconv.FormatInt(r.Seed, 10),
			strconv.FormatUint(r.RoutingPackets, 10),
			strconv.FormatUint(r.TxPackets, 10),
			strconv.FormatUint(r.RxPackets, 10),
			strconv.FormatUint(r.LostPackets, 10),
			strconv.FormatFloat(r.PDR, 'f', 4, 64),
			strconv.FormatFloat(r.RoutingOverhead, 'f', 4, 64),
			strconv.FormatFloat(r.AvgDelay, 'f', 6, 64),
		}
		if err := writer.Write(record); err != nil {
			return err
		}
	}
	writer.Flush()
	return writer.Error()
}
