package sim

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/encodeous/loom/core"
	"github.com/encodeous/loom/state"
	"github.com/jellydator/ttlcache/v3"
)

// ReportFunc is invoked by a client whenever a traceroute probe addressed
// to it completes, with the full observed path including both endpoints.
type ReportFunc func(src, dst state.NodeId, route []state.NodeId, at time.Time)

// Client is a traffic generator attached to the network by a single link.
// It periodically probes every other client and reports the routes its
// probes took.
type Client struct {
	Addr state.NodeId
	Log  *slog.Logger

	peers    []state.NodeId
	sendRate time.Duration
	report   ReportFunc

	mu   sync.Mutex
	link *core.Link

	// seen suppresses repeated logging of an unchanged route; entries
	// expire so recovered routes get logged again.
	seen *ttlcache.Cache[string, string]

	lastSend time.Time
}

func NewClient(addr state.NodeId, peers []state.NodeId, sendRate time.Duration, report ReportFunc, log *slog.Logger) *Client {
	others := make([]state.NodeId, 0, len(peers))
	for _, p := range peers {
		if p != addr {
			others = append(others, p)
		}
	}
	return &Client{
		Addr:     addr,
		Log:      log.With("node", addr),
		peers:    others,
		sendRate: sendRate,
		report:   report,
		seen: ttlcache.New[string, string](
			ttlcache.WithTTL[string, string](time.Duration(state.SettleFactor) * sendRate),
		),
	}
}

// AttachLink binds the client's single link. Safe from any goroutine.
func (c *Client) AttachLink(link *core.Link) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.link = link
}

// DetachLink drops the client's link if it matches the given one.
func (c *Client) DetachLink(link *core.Link) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.link == link {
		c.link = nil
	}
}

// Run polls the attached link and emits a probe round every send interval
// until ctx is cancelled.
func (c *Client) Run(ctx context.Context) error {
	c.Log.Debug("client started")
	go c.seen.Start()
	defer c.seen.Stop()
	ticker := time.NewTicker(state.TickInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			c.Log.Debug("client stopped")
			return nil
		case <-ticker.C:
		}
		c.poll()
		c.mu.Lock()
		due := time.Since(c.lastSend) >= c.sendRate
		if due {
			c.lastSend = time.Now()
		}
		c.mu.Unlock()
		if due {
			c.SendRound()
		}
	}
}

func (c *Client) poll() {
	c.mu.Lock()
	link := c.link
	c.mu.Unlock()
	if link == nil {
		return
	}
	for {
		packet := link.Recv(c.Addr)
		if packet == nil {
			return
		}
		c.handlePacket(packet)
	}
}

func (c *Client) handlePacket(p *core.Packet) {
	if p.Dst != c.Addr || p.Kind != core.Traceroute {
		return
	}
	route := append(append([]state.NodeId{}, p.Route...), c.Addr)
	key := fmt.Sprintf("%s->%s", p.Src, c.Addr)
	path := fmt.Sprint(route)
	if prev := c.seen.Get(key); prev == nil || prev.Value() != path {
		c.Log.Info("route observed", "src", p.Src, "dst", c.Addr, "route", route)
	}
	c.seen.Set(key, path, ttlcache.DefaultTTL)
	c.report(p.Src, c.Addr, route, time.Now())
}

// SendRound sends one data packet and one traceroute probe to every other
// client. The orchestrator also calls this directly for the final round.
func (c *Client) SendRound() {
	c.mu.Lock()
	link := c.link
	c.mu.Unlock()
	if link == nil {
		return
	}
	for _, peer := range c.peers {
		link.Send(core.NewData(c.Addr, peer, nil), c.Addr)
		link.Send(core.NewTraceroute(c.Addr, peer, nil), c.Addr)
	}
}
