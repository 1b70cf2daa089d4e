package core

import (
	"sync"
	"time"

	"github.com/encodeous/loom/state"
	"github.com/google/uuid"
)

type queued struct {
	packet    *Packet
	deliverAt time.Time
}

// Link is a simulated point-to-point channel between two endpoints. Each
// direction has its own FIFO delivery queue and a propagation delay
// proportional to that direction's cost. Send and Recv are the only
// cross-goroutine synchronization points between two nodes.
type Link struct {
	id         uuid.UUID
	a, b       state.NodeId
	costAB     uint16
	costBA     uint16
	delayScale time.Duration

	mu   sync.Mutex
	toA  []queued
	toB  []queued
}

func NewLink(a, b state.NodeId, costAB, costBA uint16, delayScale time.Duration) *Link {
	return &Link{
		id:         uuid.New(),
		a:          a,
		b:          b,
		costAB:     costAB,
		costBA:     costBA,
		delayScale: delayScale,
	}
}

func (l *Link) Id() uuid.UUID {
	return l.id
}

// Other returns the far endpoint as seen from node, or "" if node is not
// an endpoint of this link.
func (l *Link) Other(node state.NodeId) state.NodeId {
	switch node {
	case l.a:
		return l.b
	case l.b:
		return l.a
	}
	return ""
}

// Cost returns the cost of the direction leaving from.
func (l *Link) Cost(from state.NodeId) uint16 {
	if from == l.a {
		return l.costAB
	}
	return l.costBA
}

// Send queues a copy of the packet toward the endpoint opposite from.
// Sending from a node that is not an endpoint is a no-op. Traceroute
// packets record the sender as a transit hop.
func (l *Link) Send(p *Packet, from state.NodeId) {
	if from != l.a && from != l.b {
		return
	}
	cost := l.Cost(from)
	c := p.Copy()
	if c.IsTraceroute() {
		c.Route = append(c.Route, from)
	}
	entry := queued{
		packet:    c,
		deliverAt: time.Now().Add(time.Duration(cost) * l.delayScale),
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if from == l.a {
		l.toB = append(l.toB, entry)
	} else {
		l.toA = append(l.toA, entry)
	}
}

// Recv returns the next packet destined for requester whose propagation
// delay has elapsed, or nil. Delivery is FIFO per direction; a packet is
// never returned before its delivery time.
func (l *Link) Recv(requester state.NodeId) *Packet {
	l.mu.Lock()
	defer l.mu.Unlock()
	var q *[]queued
	switch requester {
	case l.a:
		q = &l.toA
	case l.b:
		q = &l.toB
	default:
		return nil
	}
	if len(*q) == 0 || time.Now().Before((*q)[0].deliverAt) {
		return nil
	}
	head := (*q)[0].packet
	*q = (*q)[1:]
	return head
}
