package sim

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/encodeous/loom/core"
	"github.com/encodeous/loom/state"
	"golang.org/x/sync/errgroup"
)

// Protocol selects which engine the network's routers run.
type Protocol string

const (
	DV     Protocol = "dv"
	LS     Protocol = "ls"
	Mirror Protocol = "mirror"
)

type linkKey struct {
	a, b state.NodeId
}

func keyFor(a, b state.NodeId) linkKey {
	if b < a {
		a, b = b, a
	}
	return linkKey{a: a, b: b}
}

type linkRecord struct {
	cfg  state.LinkCfg
	link *core.Link
}

type pair struct {
	src, dst state.NodeId
}

type routeRecord struct {
	Path    []state.NodeId
	Correct bool
	At      time.Time
}

// Network owns the whole simulation: it builds routers, clients and links
// from a topology config, runs one goroutine per node plus a change
// scheduling loop, and aggregates the routes clients report.
type Network struct {
	cfg      *state.Config
	log      *slog.Logger
	protocol Protocol

	routers map[state.NodeId]*core.Router
	clients map[state.NodeId]*Client

	mu      sync.Mutex
	links   map[linkKey]*linkRecord
	correct map[pair][][]state.NodeId

	routesMu sync.Mutex
	routes   map[pair]routeRecord
}

func New(cfg *state.Config, protocol Protocol, log *slog.Logger) (*Network, error) {
	n := &Network{
		cfg:      cfg,
		log:      log,
		protocol: protocol,
		routers:  make(map[state.NodeId]*core.Router),
		clients:  make(map[state.NodeId]*Client),
		links:    make(map[linkKey]*linkRecord),
		correct:  make(map[pair][][]state.NodeId),
		routes:   make(map[pair]routeRecord),
	}
	heartbeat := cfg.Heartbeat()
	for _, addr := range cfg.Routers {
		switch protocol {
		case DV:
			n.routers[addr] = core.NewDVRouter(addr, heartbeat, log)
		case LS:
			n.routers[addr] = core.NewLSRouter(addr, heartbeat, log)
		case Mirror:
			n.routers[addr] = core.NewMirrorRouter(addr, log)
		default:
			return nil, fmt.Errorf("unknown protocol %q", protocol)
		}
	}
	for _, addr := range cfg.Clients {
		n.clients[addr] = NewClient(addr, cfg.Clients, cfg.SendRate(), n.updateRoute, log)
	}
	for _, route := range cfg.CorrectRoutes {
		p := pair{src: route[0], dst: route[len(route)-1]}
		n.correct[p] = append(n.correct[p], route)
	}
	return n, nil
}

// Run executes the simulation to completion and returns the scored final
// routes. Cancelling ctx aborts the run without a final probe round.
func (n *Network) Run(ctx context.Context) (*Report, error) {
	ctx, cancel := context.WithCancelCause(ctx)
	defer cancel(context.Canceled)
	g, gctx := errgroup.WithContext(ctx)
	for _, router := range n.routers {
		g.Go(func() error { return router.Run(gctx) })
	}
	for _, client := range n.clients {
		g.Go(func() error { return client.Run(gctx) })
	}
	for _, linkCfg := range n.cfg.Links {
		n.bringUp(linkCfg)
	}
	g.Go(func() error {
		n.runChanges(gctx)
		return nil
	})

	interrupted := false
	select {
	case <-time.After(n.cfg.Scale(n.cfg.EndTime)):
	case <-gctx.Done():
		interrupted = true
	}
	if !interrupted {
		n.finalRoutes(gctx)
	}
	for addr, snapshot := range n.Snapshot() {
		n.log.Debug("final router state", "node", addr, "state", snapshot)
	}
	report := n.buildReport()
	cancel(context.Canceled)
	err := g.Wait()
	if err != nil {
		return report, err
	}
	return report, nil
}

// bringUp allocates a link and notifies both endpoints.
func (n *Network) bringUp(cfg state.LinkCfg) {
	delayScale := time.Duration(n.cfg.LatencyMultiplier) * time.Millisecond
	link := core.NewLink(cfg.A, cfg.B, cfg.CostAB, cfg.CostBA, delayScale)
	n.log.Debug("link attached", "id", link.Id(), "a", cfg.A, "b", cfg.B)
	n.mu.Lock()
	n.links[keyFor(cfg.A, cfg.B)] = &linkRecord{cfg: cfg, link: link}
	n.mu.Unlock()
	n.attach(cfg.A, core.Port(cfg.PortA), cfg.B, link, cfg.CostAB)
	n.attach(cfg.B, core.Port(cfg.PortB), cfg.A, link, cfg.CostBA)
}

func (n *Network) attach(addr state.NodeId, port core.Port, neighbor state.NodeId, link *core.Link, cost uint16) {
	if router, ok := n.routers[addr]; ok {
		router.SubmitChange(core.Change{
			Kind:     core.AddLink,
			Port:     port,
			Neighbor: neighbor,
			Link:     link,
			Cost:     cost,
		})
	} else if client, ok := n.clients[addr]; ok {
		client.AttachLink(link)
	}
}

// bringDown notifies both endpoints to detach; the link is garbage once
// both sides drop it.
func (n *Network) bringDown(a, b state.NodeId) {
	n.mu.Lock()
	record, ok := n.links[keyFor(a, b)]
	if ok {
		delete(n.links, keyFor(a, b))
	}
	n.mu.Unlock()
	if !ok {
		n.log.Warn("change refers to a link that is not up", "a", a, "b", b)
		return
	}
	n.log.Debug("link detached", "id", record.link.Id(), "a", a, "b", b)
	n.detach(record.cfg.A, core.Port(record.cfg.PortA), record.link)
	n.detach(record.cfg.B, core.Port(record.cfg.PortB), record.link)
}

func (n *Network) detach(addr state.NodeId, port core.Port, link *core.Link) {
	if router, ok := n.routers[addr]; ok {
		router.SubmitChange(core.Change{Kind: core.RemoveLink, Port: port})
	} else if client, ok := n.clients[addr]; ok {
		client.DetachLink(link)
	}
}

// runChanges sleeps until each scheduled change is due, in timestamp
// order, and applies it.
func (n *Network) runChanges(ctx context.Context) {
	schedule := NewSchedule(n.cfg.Changes)
	start := time.Now()
	for {
		change, ok := schedule.Pop()
		if !ok {
			return
		}
		due := start.Add(n.cfg.Scale(change.At))
		if wait := time.Until(due); wait > 0 {
			select {
			case <-ctx.Done():
				return
			case <-time.After(wait):
			}
		}
		switch change.Kind {
		case state.LinkUp:
			n.log.Info("link up", "a", change.LinkCfg.A, "b", change.LinkCfg.B, "at", change.At)
			n.bringUp(change.LinkCfg)
		case state.LinkDown:
			n.log.Info("link down", "a", change.LinkCfg.A, "b", change.LinkCfg.B, "at", change.At)
			n.bringDown(change.LinkCfg.A, change.LinkCfg.B)
		}
	}
}

// updateRoute is the clients' report callback. The newest report per
// (src, dst) pair wins.
func (n *Network) updateRoute(src, dst state.NodeId, route []state.NodeId, at time.Time) {
	p := pair{src: src, dst: dst}
	correct := slices.ContainsFunc(n.correct[p], func(acceptable []state.NodeId) bool {
		return slices.Equal(acceptable, route)
	})
	n.routesMu.Lock()
	defer n.routesMu.Unlock()
	if cur, ok := n.routes[p]; ok && !at.After(cur.At) {
		return
	}
	n.routes[p] = routeRecord{Path: route, Correct: correct, At: at}
}

// finalRoutes clears the aggregate table, issues one last probe round
// from every client and waits out in-flight propagation.
func (n *Network) finalRoutes(ctx context.Context) {
	n.routesMu.Lock()
	n.routes = make(map[pair]routeRecord)
	n.routesMu.Unlock()
	for _, client := range n.clients {
		client.SendRound()
	}
	settle := time.Duration(state.SettleFactor) * n.cfg.SendRate()
	select {
	case <-ctx.Done():
	case <-time.After(settle):
	}
}

// Snapshot exposes the per-router debug state, mainly for logs and tests.
func (n *Network) Snapshot() map[state.NodeId]string {
	out := make(map[state.NodeId]string, len(n.routers))
	for addr, router := range n.routers {
		out[addr] = router.DebugSnapshot()
	}
	return out
}
