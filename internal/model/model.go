package model

import (
	"math"
	"time"
)

const (
	// Broadcast is the destination of a packet addressed to every neighbor.
	Broadcast = -1
	// HeaderBytes is the IPv4 + UDP overhead carried by every frame.
	HeaderBytes = 28
)

// Position is a point in the simulation area, in meters.
type Position struct {
	X float64
	Y float64
	Z float64
}

// DistanceTo returns the euclidean distance between two positions.
func (p Position) DistanceTo(o Position) float64 {
	dx := p.X - o.X
	dy := p.Y - o.Y
	dz := p.Z - o.Z
	return math.Sqrt(dx*dx + dy*dy + dz*dz)
}

// Classification tags a transmission as routing control or application data.
type Classification int

const (
	Control Classification = iota
	Data
)

func (c Classification) String() string {
	if c == Data {
		return "data"
	}
	return "control"
}

// Packet is a single frame on the shared channel.
type Packet struct {
	UID       uint64
	Kind      Classification
	Src       int // originator
	Dst       int // final destination, Broadcast for flooding
	Port      int
	Size      int // bytes
	TTL       int
	FlowID    int
	Seq       uint64
	CreatedAt float64
	Payload   any
}

// TransmissionEvent is emitted when a node's radio begins sending a frame.
type TransmissionEvent struct {
	Node int
	At   float64
}

// FlowStats is the per-flow counter record produced by the flow monitor.
type FlowStats struct {
	FlowID      int
	Src         int
	Dst         int
	TxPackets   uint64
	RxPackets   uint64
	LostPackets uint64
	TxBytes     uint64
	RxBytes     uint64
	DelaySum    float64 // seconds
}

// Report is the derived result of a single run.
type Report struct {
	RunID           string
	Protocol        string
	Nodes           int
	Seed            int64
	RoutingPackets  uint64
	TxPackets       uint64
	RxPackets       uint64
	LostPackets     uint64
	PDR             float64 // percent
	RoutingOverhead float64 // percent
	AvgDelay        float64 // seconds
	CompletedAt     time.Time
}
