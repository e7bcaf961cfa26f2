package metrics

import "manetbench/internal/model"

// Totals are the flow statistics summed over every flow of a run.
type Totals struct {
	TxPackets   uint64
	RxPackets   uint64
	LostPackets uint64
	DelaySum    float64
}

// Sum adds up the flow records.
func Sum(records []model.FlowStats) Totals {
	var t Totals
	for _, r := range records {
		t.TxPackets += r.TxPackets
		t.RxPackets += r.RxPackets
		t.LostPackets += r.LostPackets
		t.DelaySum += r.DelaySum
	}
	return t
}

// Aggregate reduces the flow statistics table and the control packet count
// into the run's headline metrics. Every ratio is guarded: an empty run
// yields zeros, never NaN or Inf.
func Aggregate(records []model.FlowStats, control uint64) model.Report {
	t := Sum(records)
	r := model.Report{
		RoutingPackets: control,
		TxPackets:      t.TxPackets,
		RxPackets:      t.RxPackets,
		LostPackets:    t.LostPackets,
	}
	if t.RxPackets > 0 && t.TxPackets > 0 {
		r.PDR = float64(t.RxPackets) / float64(t.TxPackets) * 100
	}
	if t.TxPackets > 0 {
		r.RoutingOverhead = float64(control) / float64(t.TxPackets+control) * 100
	}
	if t.RxPackets > 0 {
		r.AvgDelay = t.DelaySum / float64(t.RxPackets)
	}
	return r
}
