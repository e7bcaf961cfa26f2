package routing

import (
	"sort"

	"manetbench/internal/model"
)

const (
	aodvNetDiameter      = 35
	aodvAllowedHelloLoss = 2
	aodvRREQBytes        = 24
	aodvRREPBytes        = 20
	aodvRERRHeaderBytes  = 4
	aodvRERRDestBytes    = 8
)

type aodvRoute struct {
	dst     int
	nextHop int
	hops    int
	seq     uint32
	valid   bool
	expires float64
}

type rreqKey struct {
	origin int
	id     uint32
}

type aodvRREQ struct {
	ID         uint32
	Origin     int
	OriginSeq  uint32
	Dst        int
	DstSeq     uint32
	UnknownSeq bool
	Hops       int
}

type aodvRREP struct {
	Dst      int
	DstSeq   uint32
	Origin   int
	Hops     int
	Lifetime float64
}

type aodvUnreachable struct {
	Dst int
	Seq uint32
}

type aodvRERR struct {
	Unreachable []aodvUnreachable
}

type aodvHello struct {
	Seq uint32
}

// aodv is a reactive router: routes are discovered by flooding a request
// when data is waiting, answered by the destination, and torn down with
// route errors when a next hop stops acknowledging.
type aodv struct {
	env           Env
	seq           uint32
	rreqID        uint32
	routes        map[int]*aodvRoute
	seen          map[rreqKey]float64
	discovering   map[int]bool
	queue         *packetQueue
	lastBroadcast float64
}

func newAODV(env Env) *aodv {
	return &aodv{
		env:           env,
		routes:        map[int]*aodvRoute{},
		seen:          map[rreqKey]float64{},
		discovering:   map[int]bool{},
		queue:         newPacketQueue(env.Params.MaxQueueLen, env.Params.MaxQueueTime),
		lastBroadcast: -1,
	}
}

func (a *aodv) Protocol() Protocol { return AODV }

func (a *aodv) Start() {
	a.env.Sim.Schedule(a.env.jitter(a.env.Params.HelloInterval), a.helloTimer)
}

func (a *aodv) helloTimer() {
	now := a.env.Sim.Now()
	// Any broadcast in the last interval already told neighbors we are alive.
	if a.lastBroadcast < 0 || now-a.lastBroadcast >= a.env.Params.HelloInterval {
		a.broadcast(&aodvHello{Seq: a.seq}, aodvRREPBytes, 1)
	}
	a.purgeSeen(now)
	for _, pkt := range a.queue.Expire(now) {
		a.env.drop(pkt, "queue timeout")
	}
	a.env.Sim.Schedule(a.env.Params.HelloInterval+a.env.jitter(0.01), a.helloTimer)
}

func (a *aodv) purgeSeen(now float64) {
	ttl := 2 * a.env.Params.NetTraversalTime
	for k, at := range a.seen {
		if now-at > ttl {
			delete(a.seen, k)
		}
	}
}

func (a *aodv) broadcast(payload any, size, ttl int) {
	a.lastBroadcast = a.env.Sim.Now()
	a.env.broadcastControl(payload, size, ttl)
}

// lookup returns a usable route, expiring it first if its lifetime ran out.
func (a *aodv) lookup(dst int) *aodvRoute {
	r, ok := a.routes[dst]
	if !ok || !r.valid {
		return nil
	}
	if r.expires <= a.env.Sim.Now() {
		r.valid = false
		return nil
	}
	return r
}

// update installs or refreshes a route when the offer is fresher or shorter.
func (a *aodv) update(dst, next, hops int, seq uint32, lifetime float64) bool {
	expires := a.env.Sim.Now() + lifetime
	r, ok := a.routes[dst]
	if !ok {
		a.routes[dst] = &aodvRoute{dst: dst, nextHop: next, hops: hops, seq: seq, valid: true, expires: expires}
		return true
	}
	usable := a.lookup(dst) != nil
	if !usable || seq > r.seq || (seq == r.seq && hops < r.hops) {
		r.nextHop, r.hops, r.seq, r.valid = next, hops, seq, true
		r.expires = expires
		return true
	}
	if r.nextHop == next && expires > r.expires {
		r.expires = expires
	}
	return false
}

func (a *aodv) neighborSeen(from int) {
	lifetime := aodvAllowedHelloLoss * a.env.Params.HelloInterval
	seq := uint32(0)
	if r, ok := a.routes[from]; ok {
		seq = r.seq
	}
	a.update(from, from, 1, seq, lifetime)
}

func (a *aodv) Receive(pkt model.Packet, from int) {
	a.neighborSeen(from)
	switch p := pkt.Payload.(type) {
	case *aodvHello:
		a.update(from, from, 1, p.Seq, aodvAllowedHelloLoss*a.env.Params.HelloInterval)
	case *aodvRREQ:
		a.handleRREQ(from, p, pkt.TTL)
	case *aodvRREP:
		a.handleRREP(from, p)
	case *aodvRERR:
		a.handleRERR(from, p)
	default:
		if pkt.Kind == model.Data {
			a.handleData(pkt)
		}
	}
}

func (a *aodv) Send(pkt model.Packet) {
	if pkt.Dst == a.env.Node {
		a.env.Deliver(pkt)
		return
	}
	if r := a.lookup(pkt.Dst); r != nil {
		a.forward(pkt, r)
		return
	}
	if !a.queue.Enqueue(pkt, a.env.Sim.Now()) {
		a.env.drop(pkt, "queue full")
	}
	if !a.discovering[pkt.Dst] {
		a.discover(pkt.Dst, 0)
	}
}

func (a *aodv) discover(dst, attempt int) {
	a.discovering[dst] = true
	a.seq++
	a.rreqID++
	q := &aodvRREQ{ID: a.rreqID, Origin: a.env.Node, OriginSeq: a.seq, Dst: dst, UnknownSeq: true}
	if r, ok := a.routes[dst]; ok {
		q.DstSeq, q.UnknownSeq = r.seq, false
	}
	a.seen[rreqKey{origin: a.env.Node, id: q.ID}] = a.env.Sim.Now()
	a.broadcast(q, aodvRREQBytes, aodvNetDiameter)

	wait := a.env.Params.NetTraversalTime * float64(int(1)<<attempt)
	a.env.Sim.Schedule(wait, func() { a.checkDiscovery(dst, attempt) })
}

func (a *aodv) checkDiscovery(dst, attempt int) {
	if !a.discovering[dst] {
		return
	}
	if a.lookup(dst) != nil {
		delete(a.discovering, dst)
		a.flush(dst)
		return
	}
	if attempt < a.env.Params.RREQRetries {
		a.discover(dst, attempt+1)
		return
	}
	delete(a.discovering, dst)
	for _, pkt := range a.queue.Take(dst) {
		a.env.drop(pkt, "no route")
	}
}

func (a *aodv) handleRREQ(from int, q *aodvRREQ, ttl int) {
	key := rreqKey{origin: q.Origin, id: q.ID}
	if _, dup := a.seen[key]; dup || q.Origin == a.env.Node {
		return
	}
	a.seen[key] = a.env.Sim.Now()

	hops := q.Hops + 1
	a.update(q.Origin, from, hops, q.OriginSeq, 2*a.env.Params.NetTraversalTime)

	if q.Dst == a.env.Node {
		if !q.UnknownSeq && q.DstSeq > a.seq {
			a.seq = q.DstSeq
		}
		a.seq++
		rep := &aodvRREP{Dst: a.env.Node, DstSeq: a.seq, Origin: q.Origin, Lifetime: 2 * a.env.Params.ActiveRouteTimeout}
		if !a.env.unicastControl(from, rep, aodvRREPBytes) {
			a.linkBroken(from)
		}
		return
	}

	if ttl <= 1 {
		return
	}
	fwd := *q
	fwd.Hops = hops
	a.broadcast(&fwd, aodvRREQBytes, ttl-1)
}

func (a *aodv) handleRREP(from int, p *aodvRREP) {
	hops := p.Hops + 1
	a.update(p.Dst, from, hops, p.DstSeq, p.Lifetime)

	if p.Origin == a.env.Node {
		delete(a.discovering, p.Dst)
		a.flush(p.Dst)
		return
	}
	rev := a.lookup(p.Origin)
	if rev == nil {
		return
	}
	fwd := *p
	fwd.Hops = hops
	if !a.env.unicastControl(rev.nextHop, &fwd, aodvRREPBytes) {
		a.linkBroken(rev.nextHop)
	}
}

func (a *aodv) handleRERR(from int, e *aodvRERR) {
	var lost []aodvUnreachable
	for _, u := range e.Unreachable {
		r, ok := a.routes[u.Dst]
		if !ok || !r.valid || r.nextHop != from {
			continue
		}
		r.valid = false
		r.seq = u.Seq
		lost = append(lost, u)
	}
	if len(lost) > 0 {
		a.sendRERR(lost)
	}
}

func (a *aodv) sendRERR(lost []aodvUnreachable) {
	size := aodvRERRHeaderBytes + aodvRERRDestBytes*len(lost)
	a.broadcast(&aodvRERR{Unreachable: lost}, size, 1)
}

// linkBroken invalidates every route through next and reports them.
func (a *aodv) linkBroken(next int) {
	var lost []aodvUnreachable
	for _, r := range a.routes {
		if r.valid && r.nextHop == next {
			r.valid = false
			r.seq++
			lost = append(lost, aodvUnreachable{Dst: r.dst, Seq: r.seq})
		}
	}
	if len(lost) > 0 {
		sort.Slice(lost, func(i, j int) bool { return lost[i].Dst < lost[j].Dst })
		a.sendRERR(lost)
	}
}

func (a *aodv) handleData(pkt model.Packet) {
	if pkt.Dst == a.env.Node {
		a.env.Deliver(pkt)
		return
	}
	pkt.TTL--
	if pkt.TTL <= 0 {
		a.env.drop(pkt, "ttl expired")
		return
	}
	r := a.lookup(pkt.Dst)
	if r == nil {
		seq := uint32(0)
		if old, ok := a.routes[pkt.Dst]; ok {
			seq = old.seq
		}
		a.sendRERR([]aodvUnreachable{{Dst: pkt.Dst, Seq: seq}})
		a.env.drop(pkt, "no route")
		return
	}
	a.forward(pkt, r)
}

// forward sends data along r, keeping active routes alive.
func (a *aodv) forward(pkt model.Packet, r *aodvRoute) {
	now := a.env.Sim.Now()
	active := now + a.env.Params.ActiveRouteTimeout
	if r.expires < active {
		r.expires = active
	}
	if rev := a.lookup(pkt.Src); rev != nil && rev.expires < active {
		rev.expires = active
	}
	if !a.env.Channel.Transmit(a.env.Node, r.nextHop, pkt) {
		a.linkBroken(r.nextHop)
		a.env.drop(pkt, "link broken")
	}
}

func (a *aodv) flush(dst int) {
	for _, pkt := range a.queue.Take(dst) {
		if r := a.lookup(dst); r != nil {
			a.forward(pkt, r)
			continue
		}
		a.env.drop(pkt, "no route")
	}
}

func (a *aodv) Routes() []Route {
	now := a.env.Sim.Now()
	out := make([]Route, 0, len(a.routes))
	for _, r := range a.routes {
		out = append(out, Route{Dst: r.dst, NextHop: r.nextHop, Hops: r.hops, Seq: r.seq, Valid: r.valid && r.expires > now})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Dst < out[j].Dst })
	return out
}
