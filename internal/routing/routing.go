package routing

import (
	"fmt"
	"math/rand"

	"github.com/sirupsen/logrus"

	"manetbench/internal/engine"
	"manetbench/internal/model"
	"manetbench/internal/radio"
)

// Protocol is the closed set of routing strategies a run can install.
type Protocol int

const (
	DSDV Protocol = iota
	AODV
)

func (p Protocol) String() string {
	switch p {
	case DSDV:
		return "dsdv"
	case AODV:
		return "aodv"
	}
	return fmt.Sprintf("Protocol(%d)", int(p))
}

// Port is the well-known UDP port the protocol's control messages use.
func (p Protocol) Port() int {
	if p == AODV {
		return 654
	}
	return 269
}

// Select maps a protocol name to a Protocol. Matching is exact and case
// sensitive; any other name yields DSDV and false.
func Select(name string) (Protocol, bool) {
	switch name {
	case "dsdv":
		return DSDV, true
	case "aodv":
		return AODV, true
	}
	return DSDV, false
}

// SelectStrategy is Select with the fallback logged. It never fails.
func SelectStrategy(name string, log logrus.FieldLogger) Protocol {
	p, ok := Select(name)
	if !ok {
		log.WithField("protocol", name).Warn("Invalid routing protocol specified. Using default (DSDV).")
	}
	return p
}

// Params are the protocol timers, in seconds.
type Params struct {
	DSDVUpdateInterval float64
	HelloInterval      float64
	ActiveRouteTimeout float64
	NetTraversalTime   float64
	RREQRetries        int
	MaxQueueLen        int
	MaxQueueTime       float64
}

// Env is everything a strategy instance needs from the node it runs on.
type Env struct {
	Node    int
	Sim     *engine.Simulation
	Channel *radio.Channel
	Params  Params
	Rand    *rand.Rand
	Log     logrus.FieldLogger

	// Deliver hands a data packet addressed to this node to its applications.
	Deliver func(pkt model.Packet)
	// Drop is told about data packets the strategy gives up on. Optional.
	Drop func(pkt model.Packet, reason string)
}

// Route is a read-only view of one routing table entry.
type Route struct {
	Dst     int
	NextHop int
	Hops    int
	Seq     uint32
	Valid   bool
}

// Strategy is the per-node routing behavior.
type Strategy interface {
	Protocol() Protocol
	// Start schedules the protocol's timers.
	Start()
	// Send originates a data packet at this node.
	Send(pkt model.Packet)
	// Receive is the radio receive path.
	Receive(pkt model.Packet, from int)
	// Routes snapshots the routing table.
	Routes() []Route
}

// New builds the strategy for p on one node.
func New(p Protocol, env Env) Strategy {
	switch p {
	case AODV:
		return newAODV(env)
	case DSDV:
		return newDSDV(env)
	}
	panic(fmt.Sprintf("routing: unhandled protocol %d", int(p)))
}

// Install puts the same protocol on every node, wires each into the channel's
// receive path, and starts its timers.
func Install(p Protocol, envs []Env) []Strategy {
	out := make([]Strategy, len(envs))
	for i, env := range envs {
		s := New(p, env)
		env.Channel.Attach(env.Node, s.Receive)
		s.Start()
		out[i] = s
	}
	return out
}

func (e Env) drop(pkt model.Packet, reason string) {
	e.Log.WithFields(logrus.Fields{
		"node":   e.Node,
		"uid":    pkt.UID,
		"dst":    pkt.Dst,
		"reason": reason,
	}).Trace("data packet dropped")
	if e.Drop != nil {
		e.Drop(pkt, reason)
	}
}

// jitter returns a small random offset used to desynchronize timers.
func (e Env) jitter(max float64) float64 {
	return e.Rand.Float64() * max
}

// broadcastControl sends a one-hop control frame carrying payload.
func (e Env) broadcastControl(payload any, size, ttl int) {
	e.Channel.Transmit(e.Node, model.Broadcast, model.Packet{
		UID:       e.Channel.NextUID(),
		Kind:      model.Control,
		Src:       e.Node,
		Dst:       model.Broadcast,
		Size:      size + model.HeaderBytes,
		TTL:       ttl,
		CreatedAt: e.Sim.Now(),
		Payload:   payload,
	})
}

// unicastControl sends a control frame to a neighbor.
func (e Env) unicastControl(next int, payload any, size int) bool {
	return e.Channel.Transmit(e.Node, next, model.Packet{
		UID:       e.Channel.NextUID(),
		Kind:      model.Control,
		Src:       e.Node,
		Dst:       next,
		Size:      size + model.HeaderBytes,
		TTL:       1,
		CreatedAt: e.Sim.Now(),
		Payload:   payload,
	})
}
