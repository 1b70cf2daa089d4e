package sim

import (
	"container/heap"

	"github.com/encodeous/loom/state"
)

type scheduledChange struct {
	at  int64
	seq int
	cfg state.ChangeCfg
}

type changeHeap []scheduledChange

func (h changeHeap) Len() int { return len(h) }
func (h changeHeap) Less(i, j int) bool {
	if h[i].at != h[j].at {
		return h[i].at < h[j].at
	}
	// ties fire in insertion order
	return h[i].seq < h[j].seq
}
func (h changeHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }
func (h *changeHeap) Push(x any)   { *h = append(*h, x.(scheduledChange)) }
func (h *changeHeap) Pop() any {
	old := *h
	item := old[len(old)-1]
	*h = old[:len(old)-1]
	return item
}

// Schedule is a min-priority queue of topology changes ordered by their
// due time. Not safe for concurrent use; the orchestrator's change loop is
// its only consumer.
type Schedule struct {
	heap changeHeap
}

func NewSchedule(changes []state.ChangeCfg) *Schedule {
	s := &Schedule{heap: make(changeHeap, 0, len(changes))}
	for i, change := range changes {
		s.heap = append(s.heap, scheduledChange{at: change.At, seq: i, cfg: change})
	}
	heap.Init(&s.heap)
	return s
}

func (s *Schedule) Len() int {
	return s.heap.Len()
}

// Pop removes and returns the earliest pending change.
func (s *Schedule) Pop() (state.ChangeCfg, bool) {
	if s.heap.Len() == 0 {
		return state.ChangeCfg{}, false
	}
	item := heap.Pop(&s.heap).(scheduledChange)
	return item.cfg, true
}
