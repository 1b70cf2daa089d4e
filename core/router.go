package core

import (
	"context"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/encodeous/loom/state"
)

// Port is a process-local link identifier. Ports are not shared across
// routers; the same link is usually bound to different ports on its two
// endpoints.
type Port int

// Engine is the protocol half of a router. The generic loop owns the link
// table and the change inbox and calls the engine's hooks in order; the
// engine owns all routing state and is only ever entered from the loop
// goroutine, so it needs no locking of its own.
type Engine interface {
	OnNewLink(port Port, neighbor state.NodeId, cost uint16)
	OnLinkRemoved(port Port)
	OnPacket(port Port, p *Packet)
	OnTick(nowMillis int64)
	DebugSnapshot() string
}

// Dataplane is the engine's handle back into the router for emitting
// packets. Tests substitute a recording implementation.
type Dataplane interface {
	Send(port Port, p *Packet)
}

type ChangeKind uint8

const (
	AddLink ChangeKind = iota
	RemoveLink
)

// Change is a topology mutation submitted to a router's inbox. It is the
// only cross-goroutine mutation path into a router's state.
type Change struct {
	Kind     ChangeKind
	Port     Port
	Neighbor state.NodeId
	Link     *Link
	Cost     uint16
}

// Router runs the generic per-node control loop: drain one pending change,
// poll every port, give the engine a timer tick. All policy lives in the
// engine.
type Router struct {
	Addr state.NodeId
	Log  *slog.Logger

	engine Engine
	links  map[Port]*Link

	mu    sync.Mutex
	inbox []Change
}

func NewRouter(addr state.NodeId, engine Engine, log *slog.Logger) *Router {
	return &Router{
		Addr:   addr,
		Log:    log.With("node", addr),
		engine: engine,
		links:  make(map[Port]*Link),
	}
}

// SubmitChange appends a change to the router's inbox. Safe to call from
// any goroutine.
func (r *Router) SubmitChange(change Change) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.inbox = append(r.inbox, change)
}

func (r *Router) popChange() (Change, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.inbox) == 0 {
		return Change{}, false
	}
	change := r.inbox[0]
	r.inbox = r.inbox[1:]
	return change, true
}

// Send forwards a packet out the given port. Sending on an unbound port is
// a no-op; a link may have been removed while the packet was in flight.
func (r *Router) Send(port Port, p *Packet) {
	link, ok := r.links[port]
	if !ok {
		r.Log.Debug("send on unbound port", "port", port)
		return
	}
	link.Send(p, r.Addr)
}

func (r *Router) applyChange(change Change) {
	switch change.Kind {
	case AddLink:
		if _, ok := r.links[change.Port]; ok {
			r.detachLink(change.Port)
		}
		r.links[change.Port] = change.Link
		r.engine.OnNewLink(change.Port, change.Neighbor, change.Cost)
	case RemoveLink:
		r.detachLink(change.Port)
	}
}

func (r *Router) detachLink(port Port) {
	if _, ok := r.links[port]; !ok {
		return
	}
	delete(r.links, port)
	r.engine.OnLinkRemoved(port)
}

// Run executes the router loop until ctx is cancelled. Cancellation is
// observed at the top of the next tick; remaining queued changes and
// packets are not drained.
func (r *Router) Run(ctx context.Context) error {
	r.Log.Debug("router started")
	ticker := time.NewTicker(state.TickInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			r.Log.Debug("router stopped")
			return nil
		case <-ticker.C:
		}
		if change, ok := r.popChange(); ok {
			r.applyChange(change)
		}
		for _, port := range r.activePorts() {
			link, ok := r.links[port]
			if !ok {
				continue
			}
			packet := link.Recv(r.Addr)
			if packet != nil {
				r.engine.OnPacket(port, packet)
			}
		}
		r.engine.OnTick(time.Now().UnixMilli())
	}
}

// activePorts returns the bound ports in ascending order so packet
// dispatch is deterministic across ticks.
func (r *Router) activePorts() []Port {
	ports := make([]Port, 0, len(r.links))
	for port := range r.links {
		ports = append(ports, port)
	}
	slices.Sort(ports)
	return ports
}

// DebugSnapshot exposes the engine's state for the visualizer and logs.
func (r *Router) DebugSnapshot() string {
	return r.engine.DebugSnapshot()
}

// NewMirrorRouter wires the default reflecting engine into a router.
func NewMirrorRouter(addr state.NodeId, log *slog.Logger) *Router {
	r := NewRouter(addr, nil, log)
	r.engine = &MirrorEngine{Dp: r, Addr: addr}
	return r
}

// MirrorEngine is the default engine: it reflects every packet back out
// the port it arrived on and keeps no routing state.
type MirrorEngine struct {
	Dp   Dataplane
	Addr state.NodeId
}

func (m *MirrorEngine) OnNewLink(port Port, neighbor state.NodeId, cost uint16) {}

func (m *MirrorEngine) OnLinkRemoved(port Port) {}

func (m *MirrorEngine) OnPacket(port Port, p *Packet) {
	m.Dp.Send(port, p)
}

func (m *MirrorEngine) OnTick(nowMillis int64) {}

func (m *MirrorEngine) DebugSnapshot() string {
	return "mirror router: address " + string(m.Addr)
}
