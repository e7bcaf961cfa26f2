package routing

import "manetbench/internal/model"

type queued struct {
	pkt model.Packet
	at  float64
}

// packetQueue buffers data packets waiting for a route. It is bounded in
// length and in how long a packet may wait.
type packetQueue struct {
	items   []queued
	maxLen  int
	maxWait float64
}

func newPacketQueue(maxLen int, maxWait float64) *packetQueue {
	return &packetQueue{maxLen: maxLen, maxWait: maxWait}
}

// Enqueue returns false when the queue is full.
func (q *packetQueue) Enqueue(pkt model.Packet, now float64) bool {
	if len(q.items) >= q.maxLen {
		return false
	}
	q.items = append(q.items, queued{pkt: pkt, at: now})
	return true
}

// Expire removes and returns packets that waited longer than maxWait.
func (q *packetQueue) Expire(now float64) []model.Packet {
	var expired []model.Packet
	kept := q.items[:0]
	for _, it := range q.items {
		if now-it.at > q.maxWait {
			expired = append(expired, it.pkt)
			continue
		}
		kept = append(kept, it)
	}
	q.items = kept
	return expired
}

// Take removes and returns every packet for dst, oldest first.
func (q *packetQueue) Take(dst int) []model.Packet {
	var out []model.Packet
	kept := q.items[:0]
	for _, it := range q.items {
		if it.pkt.Dst == dst {
			out = append(out, it.pkt)
			continue
		}
		kept = append(kept, it)
	}
	q.items = kept
	return out
}

// Destinations lists the distinct destinations with packets waiting.
func (q *packetQueue) Destinations() []int {
	seen := map[int]bool{}
	var out []int
	for _, it := range q.items {
		if !seen[it.pkt.Dst] {
			seen[it.pkt.Dst] = true
			out = append(out, it.pkt.Dst)
		}
	}
	return out
}

func (q *packetQueue) Len() int {
	return len(q.items)
}
