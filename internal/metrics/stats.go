package metrics

import (
	"math"
	"sort"
	"time"

	"manetbench/internal/model"
)

// Summary aggregates the history of one protocol.
type Summary struct {
	Protocol         string
	Count            int
	From             time.Time
	To               time.Time
	AvgPDR           float64
	AvgOverhead      float64
	AvgDelay         float64
	P95Delay         float64
	MinDelay         float64
	MaxDelay         float64
	TotalRxPackets   uint64
	TotalTxPackets   uint64
	TotalLostPackets uint64
}

// Summarize computes summary metrics over the reports of protocol. An empty
// protocol selects every report.
func Summarize(items []model.Report, protocol string) Summary {
	filtered := make([]model.Report, 0, len(items))
	for _, r := range items {
		if protocol == "" || r.Protocol == protocol {
			filtered = append(filtered, r)
		}
	}

	if len(filtered) == 0 {
		return Summary{Protocol: protocol}
	}

	delays := make([]float64, 0, len(filtered))
	var sumPDR, sumOverhead, sumDelay float64
	s := Summary{
		Protocol: protocol,
		Count:    len(filtered),
		From:     filtered[0].CompletedAt,
		To:       filtered[0].CompletedAt,
		MinDelay: math.MaxFloat64,
	}

	for _, r := range filtered {
		delays = append(delays, r.AvgDelay)
		sumPDR += r.PDR
		sumOverhead += r.RoutingOverhead
		sumDelay += r.AvgDelay
		s.TotalTxPackets += r.TxPackets
		s.TotalRxPackets += r.RxPackets
		s.TotalLostPackets += r.LostPackets
		if r.AvgDelay < s.MinDelay {
			s.MinDelay = r.AvgDelay
		}
		if r.AvgDelay > s.MaxDelay {
			s.MaxDelay = r.AvgDelay
		}
		if r.CompletedAt.Before(s.From) {
			s.From = r.CompletedAt
		}
		if r.CompletedAt.After(s.To) {
			s.To = r.CompletedAt
		}
	}

	sort.Float64s(delays)
	count := float64(len(filtered))
	s.AvgPDR = sumPDR / count
	s.AvgOverhead = sumOverhead / count
	s.AvgDelay = sumDelay / count
	s.P95Delay = percentile(delays, 0.95)
	return s
}

func percentile(values []float64, p float64) float64 {
	if len(values) == 0 {
		return 0
	}
	if p <= 0 {
		return values[0]
	}
	if p >= 1 {
		return values[len(values)-1]
	}
	idx := int(math.Ceil(p*float64(len(values)))) - 1
	if idx < 0 {
		idx = 0
	}
	if idx >= len(values) {
		idx = len(values) - 1
	}
	return values[idx]
}
