package core

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/encodeous/loom/state"
)

type distEntry struct {
	Cost uint16
	// Next is the direct neighbour traffic is forwarded through, or ""
	// for the self entry and unreachable destinations.
	Next state.NodeId
}

type neighborEntry struct {
	Port Port
	Cost uint16
}

// DVEngine implements distributed Bellman-Ford with split horizon and
// poison reverse. Every destination is kept as (cost, next hop) where cost
// is clamped at state.Infinity.
type DVEngine struct {
	dp   Dataplane
	log  *slog.Logger
	addr state.NodeId

	heartbeat     int64 // millis
	lastBroadcast int64

	dist      map[state.NodeId]distEntry
	neighbors map[state.NodeId]neighborEntry
	ports     map[Port]state.NodeId
}

func NewDVEngine(addr state.NodeId, heartbeat time.Duration, dp Dataplane, log *slog.Logger) *DVEngine {
	return &DVEngine{
		dp:        dp,
		log:       log.With("node", addr),
		addr:      addr,
		heartbeat: heartbeat.Milliseconds(),
		dist:      map[state.NodeId]distEntry{addr: {Cost: 0}},
		neighbors: make(map[state.NodeId]neighborEntry),
		ports:     make(map[Port]state.NodeId),
	}
}

// NewDVRouter wires a distance-vector engine into a generic router.
func NewDVRouter(addr state.NodeId, heartbeat time.Duration, log *slog.Logger) *Router {
	r := NewRouter(addr, nil, log)
	r.engine = NewDVEngine(addr, heartbeat, r, log)
	return r
}

func (d *DVEngine) OnNewLink(port Port, neighbor state.NodeId, cost uint16) {
	d.dist[neighbor] = distEntry{Cost: cost, Next: neighbor}
	d.neighbors[neighbor] = neighborEntry{Port: port, Cost: cost}
	d.ports[port] = neighbor
	d.broadcast()
}

func (d *DVEngine) OnLinkRemoved(port Port) {
	neighbor, ok := d.ports[port]
	if !ok {
		return
	}
	delete(d.ports, port)
	delete(d.neighbors, neighbor)
	changed := false
	for dst, entry := range d.dist {
		if entry.Next == neighbor {
			// everything learned only over the dead link is now
			// unreachable until somebody re-advertises it
			d.dist[dst] = distEntry{Cost: state.Infinity}
			changed = true
		}
	}
	if changed {
		d.broadcast()
	}
}

func (d *DVEngine) OnPacket(port Port, p *Packet) {
	if p.IsTraceroute() {
		d.forward(p)
		return
	}
	if !p.IsRouting() {
		return
	}
	neighbor := p.Src
	entry, ok := d.neighbors[neighbor]
	if !ok {
		return
	}
	vector, err := DecodeCostVector(p.Content)
	if err != nil {
		d.log.Warn("discarding undecodable cost vector", "from", neighbor, "err", err)
		return
	}
	changed := false
	for dst, advertised := range vector {
		if advertised > state.Infinity {
			advertised = state.Infinity
		}
		candidate := advertised + entry.Cost
		if candidate > state.Infinity {
			candidate = state.Infinity
		}
		cur, ok := d.dist[dst]
		if !ok {
			cur = distEntry{Cost: state.Infinity}
		}
		// adopt when strictly better, or when our current route already
		// goes through this neighbour so that cost increases it reports
		// are picked up too
		if candidate < cur.Cost || cur.Next == neighbor {
			if candidate != cur.Cost {
				d.dist[dst] = distEntry{Cost: candidate, Next: neighbor}
				changed = true
			}
		}
	}
	// the direct link is itself a candidate route to the neighbour
	cur, ok := d.dist[neighbor]
	if !ok {
		cur = distEntry{Cost: state.Infinity}
	}
	if entry.Cost < cur.Cost {
		d.dist[neighbor] = distEntry{Cost: entry.Cost, Next: neighbor}
		changed = true
	}
	if changed {
		d.broadcast()
	}
}

func (d *DVEngine) OnTick(nowMillis int64) {
	if nowMillis-d.lastBroadcast >= d.heartbeat {
		d.lastBroadcast = nowMillis
		d.broadcast()
		d.log.Debug("heartbeat", "state", d.DebugSnapshot())
	}
}

func (d *DVEngine) forward(p *Packet) {
	entry, ok := d.dist[p.Dst]
	if !ok {
		return
	}
	next, known := d.neighbors[entry.Next]
	if entry.Cost < state.Infinity && known {
		d.dp.Send(next.Port, p)
	}
}

// broadcast sends each neighbour its own poisoned view of the distance
// table: destinations routed through that neighbour are reported as
// unreachable.
func (d *DVEngine) broadcast() {
	for neighbor, entry := range d.neighbors {
		vector := make(CostVector, len(d.dist))
		for dst, de := range d.dist {
			if de.Next == neighbor {
				vector[dst] = state.Infinity
			} else {
				vector[dst] = de.Cost
			}
		}
		d.dp.Send(entry.Port, NewRouting(d.addr, vector.Encode()))
	}
}

func (d *DVEngine) DebugSnapshot() string {
	return fmt.Sprintf("DV %s: dist=%v neighbors=%v", d.addr, d.dist, d.neighbors)
}
