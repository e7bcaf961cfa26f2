package routing

import (
	"sort"

	"manetbench/internal/model"
)

const (
	// dsdvInfinity marks a broken route; it travels with an odd sequence number.
	dsdvInfinity = 255
	// dsdvHoldTimes is how many update intervals a route survives unrefreshed.
	dsdvHoldTimes = 3
	// dsdvTriggerDelay rate-limits triggered updates.
	dsdvTriggerDelay = 0.1
	dsdvAdvertBytes  = 12
)

type dsdvEntry struct {
	dst     int
	nextHop int
	hops    int
	seq     uint32
	updated float64
}

func (e *dsdvEntry) valid() bool {
	return e.hops < dsdvInfinity
}

type dsdvAdvert struct {
	Dst  int
	Hops int
	Seq  uint32
}

// dsdvUpdate is a full routing table dump.
type dsdvUpdate struct {
	Adverts []dsdvAdvert
}

// dsdv is a proactive destination-sequenced distance-vector router: every
// node periodically advertises its whole table, and changes trigger an extra
// advertisement.
type dsdv struct {
	env            Env
	seq            uint32
	table          map[int]*dsdvEntry
	queue          *packetQueue
	triggerPending bool
}

func newDSDV(env Env) *dsdv {
	d := &dsdv{
		env:   env,
		table: map[int]*dsdvEntry{},
		queue: newPacketQueue(env.Params.MaxQueueLen, env.Params.MaxQueueTime),
	}
	d.table[env.Node] = &dsdvEntry{dst: env.Node, nextHop: env.Node}
	return d
}

func (d *dsdv) Protocol() Protocol { return DSDV }

func (d *dsdv) Start() {
	d.env.Sim.Schedule(d.env.jitter(1), d.periodicUpdate)
}

func (d *dsdv) periodicUpdate() {
	now := d.env.Sim.Now()
	d.seq += 2
	d.table[d.env.Node].seq = d.seq
	d.table[d.env.Node].updated = now

	hold := dsdvHoldTimes * d.env.Params.DSDVUpdateInterval
	for _, e := range d.table {
		if e.dst != d.env.Node && e.valid() && now-e.updated > hold {
			d.breakRoute(e)
		}
	}
	d.expireQueue()
	d.advertise()
	d.env.Sim.Schedule(d.env.Params.DSDVUpdateInterval+d.env.jitter(0.1), d.periodicUpdate)
}

func (d *dsdv) advertise() {
	upd := &dsdvUpdate{Adverts: make([]dsdvAdvert, 0, len(d.table))}
	for _, e := range d.table {
		upd.Adverts = append(upd.Adverts, dsdvAdvert{Dst: e.dst, Hops: e.hops, Seq: e.seq})
	}
	sort.Slice(upd.Adverts, func(i, j int) bool { return upd.Adverts[i].Dst < upd.Adverts[j].Dst })
	d.env.broadcastControl(upd, dsdvAdvertBytes*len(upd.Adverts), 1)
}

func (d *dsdv) scheduleTriggered() {
	if d.triggerPending {
		return
	}
	d.triggerPending = true
	d.env.Sim.Schedule(dsdvTriggerDelay+d.env.jitter(0.05), func() {
		d.triggerPending = false
		d.advertise()
	})
}

func (d *dsdv) breakRoute(e *dsdvEntry) {
	e.hops = dsdvInfinity
	if e.seq%2 == 0 {
		e.seq++
	}
}

func (d *dsdv) Receive(pkt model.Packet, from int) {
	switch p := pkt.Payload.(type) {
	case *dsdvUpdate:
		d.handleUpdate(from, p)
	default:
		if pkt.Kind == model.Data {
			d.handleData(pkt)
		}
	}
}

func (d *dsdv) handleUpdate(from int, upd *dsdvUpdate) {
	now := d.env.Sim.Now()
	changed := false
	for _, adv := range upd.Adverts {
		if adv.Dst == d.env.Node {
			continue
		}
		hops := adv.Hops + 1
		if adv.Hops >= dsdvInfinity {
			hops = dsdvInfinity
		}

		cur, ok := d.table[adv.Dst]
		if !ok {
			if hops >= dsdvInfinity {
				continue
			}
			d.table[adv.Dst] = &dsdvEntry{dst: adv.Dst, nextHop: from, hops: hops, seq: adv.Seq, updated: now}
			changed = true
			continue
		}

		switch {
		case adv.Seq > cur.seq, adv.Seq == cur.seq && hops < cur.hops:
			if cur.nextHop != from || cur.hops != hops {
				changed = true
			}
			cur.nextHop, cur.hops, cur.seq, cur.updated = from, hops, adv.Seq, now
		case adv.Seq == cur.seq && cur.nextHop == from:
			cur.updated = now
		}
	}
	if changed {
		d.scheduleTriggered()
		d.flushQueue()
	}
}

func (d *dsdv) lookup(dst int) *dsdvEntry {
	e, ok := d.table[dst]
	if !ok || !e.valid() {
		return nil
	}
	return e
}

func (d *dsdv) Send(pkt model.Packet) {
	d.route(pkt)
}

func (d *dsdv) handleData(pkt model.Packet) {
	if pkt.Dst == d.env.Node {
		d.env.Deliver(pkt)
		return
	}
	pkt.TTL--
	if pkt.TTL <= 0 {
		d.env.drop(pkt, "ttl expired")
		return
	}
	d.route(pkt)
}

func (d *dsdv) route(pkt model.Packet) {
	if pkt.Dst == d.env.Node {
		d.env.Deliver(pkt)
		return
	}
	e := d.lookup(pkt.Dst)
	if e == nil {
		if !d.queue.Enqueue(pkt, d.env.Sim.Now()) {
			d.env.drop(pkt, "queue full")
		}
		return
	}
	if !d.env.Channel.Transmit(d.env.Node, e.nextHop, pkt) {
		d.linkBroken(e.nextHop)
		d.env.drop(pkt, "link broken")
	}
}

// linkBroken invalidates every route through next and tells the neighbors.
func (d *dsdv) linkBroken(next int) {
	for _, e := range d.table {
		if e.nextHop == next && e.dst != d.env.Node && e.valid() {
			d.breakRoute(e)
		}
	}
	d.scheduleTriggered()
}

func (d *dsdv) flushQueue() {
	for _, dst := range d.queue.Destinations() {
		if d.lookup(dst) == nil {
			continue
		}
		for _, pkt := range d.queue.Take(dst) {
			d.route(pkt)
		}
	}
}

func (d *dsdv) expireQueue() {
	for _, pkt := range d.queue.Expire(d.env.Sim.Now()) {
		d.env.drop(pkt, "queue timeout")
	}
}

func (d *dsdv) Routes() []Route {
	out := make([]Route, 0, len(d.table))
	for _, e := range d.table {
		out = append(out, Route{Dst: e.dst, NextHop: e.nextHop, Hops: e.hops, Seq: e.seq, Valid: e.valid()})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Dst < out[j].Dst })
	return out
}
