package core

import (
	"container/heap"
	"fmt"
	"log/slog"
	"maps"
	"slices"
	"time"

	"github.com/encodeous/loom/state"
)

type lsdbEntry struct {
	Seq   uint64
	Links map[state.NodeId]uint16
}

type portBinding struct {
	Neighbor state.NodeId
	Cost     uint16
}

// LSEngine implements link-state routing: every node floods a sequenced
// advertisement of its direct neighbour costs, and each node runs Dijkstra
// over the union of all advertisements it has accepted. The routing table
// is a pure cache over the database; it is rebuilt from scratch whenever
// the database changes.
type LSEngine struct {
	dp   Dataplane
	log  *slog.Logger
	addr state.NodeId

	heartbeat int64 // millis
	lastFlood int64

	seq   uint64
	db    map[state.NodeId]lsdbEntry
	ports map[Port]portBinding
	table map[state.NodeId]Port
}

func NewLSEngine(addr state.NodeId, heartbeat time.Duration, dp Dataplane, log *slog.Logger) *LSEngine {
	return &LSEngine{
		dp:        dp,
		log:       log.With("node", addr),
		addr:      addr,
		heartbeat: heartbeat.Milliseconds(),
		db: map[state.NodeId]lsdbEntry{
			addr: {Seq: 0, Links: make(map[state.NodeId]uint16)},
		},
		ports: make(map[Port]portBinding),
		table: make(map[state.NodeId]Port),
	}
}

// NewLSRouter wires a link-state engine into a generic router.
func NewLSRouter(addr state.NodeId, heartbeat time.Duration, log *slog.Logger) *Router {
	r := NewRouter(addr, nil, log)
	r.engine = NewLSEngine(addr, heartbeat, r, log)
	return r
}

func (l *LSEngine) OnNewLink(port Port, neighbor state.NodeId, cost uint16) {
	l.db[l.addr].Links[neighbor] = cost
	l.bumpSeq()
	l.ports[port] = portBinding{Neighbor: neighbor, Cost: cost}
	l.computeRoutes()
	l.flood()
}

func (l *LSEngine) OnLinkRemoved(port Port) {
	binding, ok := l.ports[port]
	if !ok {
		return
	}
	delete(l.ports, port)
	delete(l.db[l.addr].Links, binding.Neighbor)
	l.bumpSeq()
	l.flood()
	l.computeRoutes()
}

func (l *LSEngine) OnPacket(port Port, p *Packet) {
	if p.IsTraceroute() {
		if out, ok := l.table[p.Dst]; ok {
			l.dp.Send(out, p)
		}
		return
	}
	if !p.IsRouting() {
		return
	}
	adv, err := DecodeAdvertisement(p.Content)
	if err != nil {
		l.log.Warn("discarding undecodable advertisement", "from", p.Src, "err", err)
		return
	}
	stored, known := l.db[adv.Origin]
	// strictly greater only: duplicates and stale advertisements are
	// dropped without re-flooding, which bounds every update to a single
	// propagation wave
	if known && adv.Seq <= stored.Seq {
		return
	}
	l.db[adv.Origin] = lsdbEntry{Seq: adv.Seq, Links: adv.Links}
	for out := range l.ports {
		if out != port {
			l.dp.Send(out, p.Copy())
		}
	}
	l.computeRoutes()
}

func (l *LSEngine) OnTick(nowMillis int64) {
	if nowMillis-l.lastFlood >= l.heartbeat {
		l.lastFlood = nowMillis
		l.bumpSeq()
		l.flood()
		l.log.Debug("heartbeat", "state", l.DebugSnapshot())
	}
}

func (l *LSEngine) bumpSeq() {
	l.seq++
	entry := l.db[l.addr]
	entry.Seq = l.seq
	l.db[l.addr] = entry
}

// flood sends the local advertisement out every port.
func (l *LSEngine) flood() {
	adv := Advertisement{
		Origin: l.addr,
		Seq:    l.seq,
		Links:  maps.Clone(l.db[l.addr].Links),
	}
	packet := NewRouting(l.addr, adv.Encode())
	for port := range l.ports {
		l.dp.Send(port, packet.Copy())
	}
}

type lsItem struct {
	node state.NodeId
	cost uint32
}

type lsFrontier []lsItem

func (f lsFrontier) Len() int { return len(f) }
func (f lsFrontier) Less(i, j int) bool {
	if f[i].cost != f[j].cost {
		return f[i].cost < f[j].cost
	}
	return f[i].node < f[j].node
}
func (f lsFrontier) Swap(i, j int) { f[i], f[j] = f[j], f[i] }
func (f *lsFrontier) Push(x any)   { *f = append(*f, x.(lsItem)) }
func (f *lsFrontier) Pop() any {
	old := *f
	item := old[len(old)-1]
	*f = old[:len(old)-1]
	return item
}

// computeRoutes rebuilds the routing table by running Dijkstra from the
// local node over every advertised edge. Each advertisement contributes
// both directions of its edges; a later advertisement overwrites the
// direction it owns. Ties are broken by node id ordering.
func (l *LSEngine) computeRoutes() {
	adj := make(map[state.NodeId]map[state.NodeId]uint16)
	addEdge := func(from, to state.NodeId, cost uint16) {
		if adj[from] == nil {
			adj[from] = make(map[state.NodeId]uint16)
		}
		adj[from][to] = cost
	}
	for _, origin := range slices.Sorted(maps.Keys(l.db)) {
		for neighbor, cost := range l.db[origin].Links {
			addEdge(origin, neighbor, cost)
			addEdge(neighbor, origin, cost)
		}
	}

	dist := map[state.NodeId]uint32{l.addr: 0}
	firstHop := make(map[state.NodeId]state.NodeId)
	done := make(map[state.NodeId]bool)
	frontier := &lsFrontier{{node: l.addr, cost: 0}}
	heap.Init(frontier)
	for frontier.Len() > 0 {
		item := heap.Pop(frontier).(lsItem)
		if done[item.node] {
			continue
		}
		done[item.node] = true
		for _, neighbor := range slices.Sorted(maps.Keys(adj[item.node])) {
			candidate := item.cost + uint32(adj[item.node][neighbor])
			if cur, seen := dist[neighbor]; !seen || candidate < cur {
				dist[neighbor] = candidate
				if item.node == l.addr {
					firstHop[neighbor] = neighbor
				} else {
					firstHop[neighbor] = firstHop[item.node]
				}
				heap.Push(frontier, lsItem{node: neighbor, cost: candidate})
			}
		}
	}

	table := make(map[state.NodeId]Port)
	for dst, hop := range firstHop {
		if dst == l.addr {
			continue
		}
		for port, binding := range l.ports {
			if binding.Neighbor == hop {
				table[dst] = port
				break
			}
		}
	}
	l.table = table
}

func (l *LSEngine) DebugSnapshot() string {
	return fmt.Sprintf("LS %s: seq=%d table=%v db=%v", l.addr, l.seq, l.table, l.db)
}
