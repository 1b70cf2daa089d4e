package core

import (
	"log/slog"
	"testing"
	"time"

	"github.com/encodeous/loom/state"
	"github.com/google/go-cmp/cmp"
)

// recorder captures everything an engine sends, so tests can drive the
// protocol hooks directly without a running router loop.
type recorder struct {
	sends []sentPacket
}

type sentPacket struct {
	Port   Port
	Packet *Packet
}

func (r *recorder) Send(port Port, p *Packet) {
	r.sends = append(r.sends, sentPacket{Port: port, Packet: p.Copy()})
}

func (r *recorder) take() []sentPacket {
	out := r.sends
	r.sends = nil
	return out
}

// vectorsOn returns the decoded cost vectors sent out the given port since
// the last take.
func (r *recorder) vectorsOn(t *testing.T, port Port) []CostVector {
	t.Helper()
	var out []CostVector
	for _, s := range r.sends {
		if s.Port != port || !s.Packet.IsRouting() {
			continue
		}
		v, err := DecodeCostVector(s.Packet.Content)
		if err != nil {
			t.Fatalf("undecodable vector on port %d: %v", port, err)
		}
		out = append(out, v)
	}
	return out
}

// advertisementsOn returns the decoded advertisements sent out the given
// port since the last take.
func (r *recorder) advertisementsOn(t *testing.T, port Port) []Advertisement {
	t.Helper()
	var out []Advertisement
	for _, s := range r.sends {
		if s.Port != port || !s.Packet.IsRouting() {
			continue
		}
		a, err := DecodeAdvertisement(s.Packet.Content)
		if err != nil {
			t.Fatalf("undecodable advertisement on port %d: %v", port, err)
		}
		out = append(out, a)
	}
	return out
}

func (r *recorder) dataOn(port Port) []*Packet {
	var out []*Packet
	for _, s := range r.sends {
		if s.Port == port && s.Packet.IsTraceroute() {
			out = append(out, s.Packet)
		}
	}
	return out
}

func (r *recorder) assertVector(t *testing.T, port Port, want CostVector) {
	t.Helper()
	for _, got := range r.vectorsOn(t, port) {
		if cmp.Equal(got, want) {
			return
		}
	}
	t.Fatalf("no vector on port %d equal to %v, sent: %v", port, want, r.vectorsOn(t, port))
}

func testLogger() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}

func newTestDV(addr state.NodeId) (*DVEngine, *recorder) {
	rec := &recorder{}
	return NewDVEngine(addr, time.Hour, rec, testLogger()), rec
}

func newTestLS(addr state.NodeId) (*LSEngine, *recorder) {
	rec := &recorder{}
	return NewLSEngine(addr, time.Hour, rec, testLogger()), rec
}
