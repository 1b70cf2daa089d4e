package state

// NodeId is the symbolic address of a router or client in the simulated
// network. Addresses are flat identifiers, there is no prefix structure.
type NodeId string

// Broadcast is the destination sentinel used by routing packets that are
// addressed to every neighbour rather than a single node.
const Broadcast NodeId = "ALL"
