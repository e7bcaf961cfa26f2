package metrics

import (
	"github.com/prometheus/client_golang/prometheus"

	"manetbench/internal/model"
)

// Gauges builds one gauge per headline metric of r, labelled with the run's
// protocol and id.
func Gauges(r model.Report) []prometheus.Collector {
	labels := prometheus.Labels{"protocol": r.Protocol, "run_id": r.RunID}
	gauge := func(name, help string, v float64) prometheus.Collector {
		g := prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace:   "manet",
			Name:        name,
			Help:        help,
			ConstLabels: labels,
		})
		g.Set(v)
		return g
	}
	return []prometheus.Collector{
		gauge("pdr_percent", "Packet delivery ratio of the last run.", r.PDR),
		gauge("routing_overhead_percent", "Routing overhead of the last run.", r.RoutingOverhead),
		gauge("end_to_end_delay_seconds", "Mean end-to-end delay of the last run.", r.AvgDelay),
		gauge("tx_packets", "Application packets sent in the last run.", float64(r.TxPackets)),
		gauge("rx_packets", "Application packets received in the last run.", float64(r.RxPackets)),
		gauge("lost_packets", "Application packets lost in the last run.", float64(r.LostPackets)),
	}
}

// WriteTextfile writes r, plus any extra collectors such as the run's
// transmission counters, in the Prometheus text format for a node_exporter
// textfile collector. The file is replaced atomically.
func WriteTextfile(path string, r model.Report, extra ...prometheus.Collector) error {
	reg := prometheus.NewRegistry()
	for _, c := range append(Gauges(r), extra...) {
		if err := reg.Register(c); err != nil {
			return err
		}
	}
	return prometheus.WriteToTextfile(path, reg)
}
