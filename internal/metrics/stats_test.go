package metrics

import (
	"testing"
	"time"

	"manetbench/internal/model"
)

func TestSummarize_FiltersByProtocol(t *testing.T) {
	t.Parallel()

	now := time.Now().UTC()
	items := []model.Report{
		{CompletedAt: now.Add(-2 * time.Minute), Protocol: "dsdv", PDR: 80, RoutingOverhead: 10, AvgDelay: 0.01},
		{CompletedAt: now.Add(-1 * time.Minute), Protocol: "dsdv", PDR: 90, RoutingOverhead: 20, AvgDelay: 0.03},
		{CompletedAt: now, Protocol: "aodv", PDR: 99, RoutingOverhead: 5, AvgDelay: 0.5},
	}
	s := Summarize(items, "dsdv")
	if s.Count != 2 {
		t.Fatalf("count=%d", s.Count)
	}
	if s.AvgPDR != 85 || s.AvgOverhead != 15 {
		t.Fatalf("pdr=%.2f overhead=%.2f", s.AvgPDR, s.AvgOverhead)
	}
	if s.MinDelay != 0.01 || s.MaxDelay != 0.03 || s.P95Delay != 0.03 {
		t.Fatalf("min/max/p95=%v/%v/%v", s.MinDelay, s.MaxDelay, s.P95Delay)
	}
	if !s.To.Equal(now.Add(-1 * time.Minute)) {
		t.Fatalf("to=%v", s.To)
	}

	if all := Summarize(items, ""); all.Count != 3 {
		t.Fatalf("all count=%d", all.Count)
	}
	if none := Summarize(items, "olsr"); none.Count != 0 {
		t.Fatalf("olsr count=%d", none.Count)
	}
}

func TestPercentile_Edges(t *testing.T) {
	t.Parallel()

	values := []float64{1, 2, 3, 4}
	if got := percentile(values, 0); got != 1 {
		t.Fatalf("p0=%v", got)
	}
	if got := percentile(values, 1); got != 4 {
		t.Fatalf("p100=%v", got)
	}
	if got := percentile(nil, 0.5); got != 0 {
		t.Fatalf("empty=%v", got)
	}
}
