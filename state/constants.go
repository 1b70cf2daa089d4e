package state

import "time"

const (
	// Infinity is the finite unreachable sentinel for distance-vector
	// costs. Keeping it small bounds how long count-to-infinity can last.
	Infinity = uint16(16)
)

var (
	// TickInterval is the period of every router and client loop.
	TickInterval = 100 * time.Millisecond

	// DefaultLatencyMultiplier converts the unitless times in a topology
	// file into simulated milliseconds.
	DefaultLatencyMultiplier = int64(100)

	// HeartbeatFactor scales the latency multiplier into the heartbeat
	// interval used by both protocol engines.
	HeartbeatFactor = int64(10)

	// SettleFactor scales the client send rate into the grace period the
	// orchestrator waits for in-flight probes after the final round. It
	// also bounds how long a client remembers an observed route.
	SettleFactor = int64(4)
)
