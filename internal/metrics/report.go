package metrics

import (
	"fmt"
	"io"
	"strconv"

	"manetbench/internal/model"
)

// FormatFloat renders a metric the way the report prints it: up to six
// significant digits, no trailing zeros.
func FormatFloat(v float64) string {
	return strconv.FormatFloat(v, 'g', 6, 64)
}

// WriteReport prints the human-readable run report.
func WriteReport(w io.Writer, r model.Report) error {
	_, err := fmt.Fprintf(w,
		"Total Routing Packets: %d\n"+
			"Transmitted Packets: %d\n"+
			"Received Packets: %d\n"+
			"Lost Packets: %d\n"+
			" \n"+
			"Packet Delivery Ratio (PDR): %s%%\n"+
			"Routing Overhead: %s%%\n"+
			"End-to-End Delay: %s seconds\n",
		r.RoutingPackets,
		r.TxPackets,
		r.RxPackets,
		r.LostPackets,
		FormatFloat(r.PDR),
		FormatFloat(r.RoutingOverhead),
		FormatFloat(r.AvgDelay),
	)
	return err
}

// WriteComparison prints reports side by side, one column per run.
func WriteComparison(w io.Writer, reports []model.Report) error {
	rows := []struct {
		label string
		value func(model.Report) string
	}{
		{"protocol", func(r model.Report) string { return r.Protocol }},
		{"routing packets", func(r model.Report) string { return strconv.FormatUint(r.RoutingPackets, 10) }},
		{"tx packets", func(r model.Report) string { return strconv.FormatUint(r.TxPackets, 10) }},
		{"rx packets", func(r model.Report) string { return strconv.FormatUint(r.RxPackets, 10) }},
		{"lost packets", func(r model.Report) string { return strconv.FormatUint(r.LostPackets, 10) }},
		{"pdr %", func(r model.Report) string { return FormatFloat(r.PDR) }},
		{"overhead %", func(r model.Report) string { return FormatFloat(r.RoutingOverhead) }},
		{"delay s", func(r model.Report) string { return FormatFloat(r.AvgDelay) }},
	}
	for _, row := range rows {
		if _, err := fmt.Fprintf(w, "%-16s", row.label); err != nil {
			return err
		}
		for _, r := range reports {
			if _, err := fmt.Fprintf(w, " %14s", row.value(r)); err != nil {
				return err
			}
		}
		if _, err := fmt.Fprintln(w); err != nil {
			return err
		}
	}
	return nil
}
