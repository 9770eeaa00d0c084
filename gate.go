package desim

import "strconv"

// ServiceType is a Gate's direction (§3 Gate "service": input|output|
// undirected).
type ServiceType uint8

const (
	// ServiceOutput gates may forward (have a next); they are not valid
	// delivery endpoints.
	ServiceOutput ServiceType = iota
	// ServiceInput gates are valid delivery endpoints; they may not have a
	// next (nothing may forward out of an input gate).
	ServiceInput
	// ServiceUndirected gates may both forward and terminate a chain.
	ServiceUndirected
)

func (s ServiceType) String() string {
	switch s {
	case ServiceOutput:
		return "output"
	case ServiceInput:
		return "input"
	case ServiceUndirected:
		return "undirected"
	default:
		return "unknown"
	}
}

// canForward reports whether a gate of this service type may have a next
// pointer (be a non-terminal hop in a chain).
func (s ServiceType) canForward() bool {
	return s == ServiceOutput || s == ServiceUndirected
}

// canTerminate reports whether a gate of this service type may be a
// delivery endpoint (the tail of a traversed chain).
func (s ServiceType) canTerminate() bool {
	return s == ServiceInput || s == ServiceUndirected
}

// Gate is a named port on a Module, possibly one of a cluster (§3). Gates
// are created at setup and chained via Connect into a linear path; a gate
// with no next is a delivery endpoint when its service type permits it.
type Gate struct {
	Owner       *Module
	Name        string
	ClusterSize int
	Index       int
	Service     ServiceType
	next        *Gate
	Channel     *Channel
}

// Next returns the gate this gate forwards to, or nil if it is a chain
// terminal.
func (g *Gate) Next() *Gate { return g.next }

// Connected reports whether Next has been set.
func (g *Gate) Connected() bool { return g.next != nil }

// connect wires g -> to, optionally interposing ch, without checking
// topology-freeze state (the caller, Topology.Connect, enforces §4.D
// "After the simulation enters the running phase, the gate graph is
// frozen").
func (g *Gate) connect(to *Gate, ch *Channel) error {
	if g.next != nil {
		return ErrGateAlreadyConnected
	}
	if !g.Service.canForward() {
		return ErrInvalidGateDirection
	}
	// walk the chain being extended; if it already reaches back to g, wiring
	// g -> to would close a cycle (§3 I3: a gate's next forms a DAG).
	for at := to; at != nil; at = at.next {
		if at == g {
			return ErrTopologyCycle
		}
	}
	g.next = to
	g.Channel = ch
	if ch != nil {
		ch.Gate = g
	}
	return nil
}

// Path returns the dotted object path this gate is addressed as,
// "<module path>.<gate name>[<index>]" for clustered gates, or
// "<module path>.<gate name>" for a singleton gate.
func (g *Gate) Path() string {
	base := g.Owner.Path() + "." + g.Name
	if g.ClusterSize > 1 {
		return base + "[" + strconv.Itoa(g.Index) + "]"
	}
	return base
}
