package metrics

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strconv"
	"time"

	"manetbench/internal/model"
)

// ReadCSV loads run reports from a CSV history file.
func ReadCSV(path string) ([]model.Report, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	return readCSV(file)
}

func readCSV(r io.Reader) ([]model.Report, error) {
	reader := csv.NewReader(r)
	records, err := reader.ReadAll()
	if err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return nil, nil
	}

	start := 0
	if len(records[0]) > 0 && records[0][0] == header[0] {
		start = 1
	}

	items := make([]model.Report, 0, len(records)-start)
	for i := start; i < len(records); i++ {
		rec := records[i]
		if len(rec) < len(header) {
			return nil, fmt.Errorf("invalid record at line %d", i+1)
		}
		ts, err := time.Parse(time.RFC3339Nano, rec[0])
		if err != nil {
			return nil, fmt.Errorf("invalid timestamp at line %d: %w", i+1, err)
		}
		nodes, _ := strconv.Atoi(rec[3])
		seed, _ := strconv.ParseInt(rec[4], 10, 64)
		routing, _ := strconv.ParseUint(rec[5], 10, 64)
		tx, _ := strconv.ParseUint(rec[6], 10, 64)
		rx, _ := strconv.ParseUint(rec[7], 10, 64)
		lost, _ := strconv.ParseUint(rec[8], 10, 64)
		pdr, _ := strconv.ParseFloat(rec[9], 64)
		overhead, _ := strconv.ParseFloat(rec[10], 64)
		delay, _ := strconv.ParseFloat(rec[11], 64)
		items = append(items, model.Report{
			CompletedAt:     ts,
			RunID:           rec[1],
			Protocol:        rec[2],
			Nodes:           nodes,
			Seed:            seed,
			RoutingPackets:  routing,
			TxPackets:       tx,
			RxPackets:       rx,
			LostPackets:     lost,
			PDR:             pdr,
			RoutingOverhead: overhead,
			AvgDelay:        delay,
		})
	}

	return items, nil
}
