package core

import (
	"encoding/json"
	"slices"

	"github.com/encodeous/loom/state"
)

type PacketKind uint8

const (
	Data PacketKind = iota
	Traceroute
	Routing
)

// Packet is the message envelope carried by links. A packet is immutable
// once sent; links hand every receiver its own copy.
type Packet struct {
	Kind    PacketKind
	Src     state.NodeId
	Dst     state.NodeId
	Content []byte
	// Route records the nodes a traceroute packet has transited. It is
	// appended by the link substrate, never by the engines, so that
	// forwarding stays opaque.
	Route []state.NodeId
}

func NewData(src, dst state.NodeId, content []byte) *Packet {
	return &Packet{Kind: Data, Src: src, Dst: dst, Content: content}
}

func NewTraceroute(src, dst state.NodeId, content []byte) *Packet {
	return &Packet{Kind: Traceroute, Src: src, Dst: dst, Content: content, Route: []state.NodeId{}}
}

func NewRouting(src state.NodeId, content []byte) *Packet {
	return &Packet{Kind: Routing, Src: src, Dst: state.Broadcast, Content: content}
}

func (p *Packet) Copy() *Packet {
	c := *p
	c.Content = slices.Clone(p.Content)
	c.Route = slices.Clone(p.Route)
	return &c
}

func (p *Packet) IsRouting() bool {
	return p.Kind == Routing
}

// IsTraceroute reports whether the packet is forwarded on the data path.
// Plain data packets follow the same forwarding rules as probes.
func (p *Packet) IsTraceroute() bool {
	return p.Kind == Data || p.Kind == Traceroute
}

// CostVector is the routing payload of the distance-vector engine: the
// advertised cost to every destination the sender knows about.
type CostVector map[state.NodeId]uint16

func (v CostVector) Encode() []byte {
	b, _ := json.Marshal(v)
	return b
}

func DecodeCostVector(content []byte) (CostVector, error) {
	var v CostVector
	err := json.Unmarshal(content, &v)
	if err != nil {
		return nil, err
	}
	return v, nil
}

// Advertisement is the routing payload of the link-state engine: one
// node's sequenced statement of its direct neighbour costs.
type Advertisement struct {
	Origin state.NodeId            `json:"origin"`
	Seq    uint64                  `json:"seq"`
	Links  map[state.NodeId]uint16 `json:"links"`
}

func (a Advertisement) Encode() []byte {
	b, _ := json.Marshal(a)
	return b
}

func DecodeAdvertisement(content []byte) (Advertisement, error) {
	var a Advertisement
	err := json.Unmarshal(content, &a)
	if err != nil {
		return Advertisement{}, err
	}
	return a, nil
}
