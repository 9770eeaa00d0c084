package desim

import (
	"sync/atomic"
	"weak"
)

// ModuleID uniquely identifies a Module within a single simulation run
// (§3 "Module id M").
type ModuleID uint64

var moduleIDSeq atomic.Uint64

func nextModuleID() ModuleID {
	return ModuleID(moduleIDSeq.Add(1))
}

// PanicPolicy selects how the runtime loop reacts to a handler panic
// (§4.H "Panic boundary").
type PanicPolicy uint8

const (
	// PanicCatch marks the module inactive and continues the run.
	PanicCatch PanicPolicy = iota
	// PanicAbort propagates the panic, aborting the run.
	PanicAbort
	// PanicRestart re-instantiates the module via its factory, resetting
	// its lifecycle to starting(0).
	PanicRestart
)

func (p PanicPolicy) String() string {
	switch p {
	case PanicCatch:
		return "catch"
	case PanicAbort:
		return "abort"
	case PanicRestart:
		return "restart"
	default:
		return "unknown"
	}
}

// Stereotype is a module's per-module policy for panic handling and
// cascading shutdown (§3 Module "stereotype", Glossary "Stereotype").
type Stereotype struct {
	OnPanic           PanicPolicy
	DropChildrenOnEnd bool
	InformParent      bool
}

// Handler is the contract a user module implements (§6 "Handler
// contract"). Embed BaseHandler to inherit no-op defaults for every method
// except HandleMessage.
type Handler interface {
	HandleMessage(ctx *Context, msg *Message)
	AtSimStart(ctx *Context, stage int)
	NumSimStartStages() int
	AtSimEnd(ctx *Context) error
	HandleParChange(ctx *Context, key string)
}

// BaseHandler supplies default (no-op) implementations of every Handler
// method except HandleMessage, which embedding types must still provide.
type BaseHandler struct{}

func (BaseHandler) AtSimStart(*Context, int)          {}
func (BaseHandler) NumSimStartStages() int             { return 1 }
func (BaseHandler) AtSimEnd(*Context) error             { return nil }
func (BaseHandler) HandleParChange(*Context, string)    {}

// Factory constructs a fresh Handler instance, consulted on initial module
// creation and on PanicRestart (§4.H).
type Factory func() Handler

// Module is a node in the simulation's module tree (§3 "Module"). Children
// are owned through the parent's children map; the parent field is a plain
// back-pointer used for navigation, not ownership. The resulting
// parent/child pointer cycle is reclaimed by Go's garbage collector.
type Module struct {
	ID         ModuleID
	Name       string
	parent     *Module
	children   map[string]*Module
	childOrder []string // insertion order, for deterministic tree walks (P3)
	gates      map[string][]*Gate

	factory Factory
	handler Handler

	state      ModuleState
	startStage int

	Meta       map[string]any
	Stereotype Stereotype

	path string // cached dotted object path
}

func newModule(name string, parent *Module, factory Factory, stereotype Stereotype) *Module {
	m := &Module{
		ID:         nextModuleID(),
		Name:       name,
		parent:     parent,
		children:   make(map[string]*Module),
		gates:      make(map[string][]*Gate),
		factory:    factory,
		handler:    factory(),
		state:      ModuleCreated,
		Meta:       make(map[string]any),
		Stereotype: stereotype,
	}
	if parent == nil || parent.path == "" {
		m.path = name
	} else {
		m.path = parent.path + "." + name
	}
	return m
}

// Path returns the module's dotted object path (§3 "Object path").
func (m *Module) Path() string { return m.path }

// Parent returns the module's parent, or nil for the root.
func (m *Module) Parent() *Module { return m.parent }

// State returns the module's current lifecycle state.
func (m *Module) State() ModuleState { return m.state }

// Addressable reports whether the module may currently receive events (I5).
func (m *Module) Addressable() bool { return m.state.addressable() }

// Children returns the module's children in creation order, the order
// at_sim_start's parent-first topological walk visits siblings in (§4.H,
// P3 determinism).
func (m *Module) Children() []*Module {
	out := make([]*Module, 0, len(m.childOrder))
	for _, name := range m.childOrder {
		if c, ok := m.children[name]; ok {
			out = append(out, c)
		}
	}
	return out
}

// Child looks up an immediate child by name.
func (m *Module) Child(name string) (*Module, bool) {
	c, ok := m.children[name]
	return c, ok
}

// addChild attaches a newly-created child module.
func (m *Module) addChild(child *Module) {
	m.children[child.Name] = child
	m.childOrder = append(m.childOrder, child.Name)
}

// detach removes the module from its parent's children, the final step of
// the ending lifecycle (§4.F "then it is detached and dropped").
func (m *Module) detach() {
	if m.parent == nil {
		return
	}
	delete(m.parent.children, m.Name)
	for i, name := range m.parent.childOrder {
		if name == m.Name {
			m.parent.childOrder = append(m.parent.childOrder[:i], m.parent.childOrder[i+1:]...)
			break
		}
	}
}

// AddGate registers a gate cluster on the module (§6 "gate-creation
// records"). clusterSize of 0 or 1 creates a single, unclustered gate.
func (m *Module) AddGate(name string, clusterSize int, service ServiceType) []*Gate {
	if clusterSize <= 0 {
		clusterSize = 1
	}
	gates := make([]*Gate, clusterSize)
	for i := range gates {
		gates[i] = &Gate{
			Owner:       m,
			Name:        name,
			ClusterSize: clusterSize,
			Index:       i,
			Service:     service,
		}
	}
	m.gates[name] = gates
	return gates
}

// Gate returns the unclustered gate registered under name.
func (m *Module) Gate(name string) (*Gate, bool) {
	g, ok := m.gates[name]
	if !ok || len(g) == 0 {
		return nil, false
	}
	return g[0], true
}

// GateAt returns element index of the clustered gate registered under
// name.
func (m *Module) GateAt(name string, index int) (*Gate, bool) {
	g, ok := m.gates[name]
	if !ok || index < 0 || index >= len(g) {
		return nil, false
	}
	return g[index], true
}

// restart re-instantiates the module's handler via its factory, per
// PanicRestart (§4.H): the handler is replaced, lifecycle resets to
// created with start stage 0 (the caller then runs runStartStages, which
// moves it through starting(0..K-1) again), and any accumulated Meta is
// cleared (a restarted module
// begins with fresh state, matching S5's "re-instantiated with a fresh
// state").
func (m *Module) restart() {
	m.handler = m.factory()
	m.state = ModuleCreated
	m.startStage = 0
	m.Meta = make(map[string]any)
}

// moduleRegistry is a side table mapping ModuleID to a weak pointer to the
// module, for O(1) id lookup (used by the shutdown-queue drain and for
// diagnostics). A lookup still succeeds after the module is detached from
// the tree, as long as it has not been garbage collected or scavenged; it
// fails once either has happened. It is grounded on the teacher's
// promise registry: a ring buffer of ids paired with weak.Pointer entries,
// periodically scavenged so that dead modules are reclaimed without the
// registry itself holding a strong reference that would keep them alive.
type moduleRegistry struct {
	data map[ModuleID]weak.Pointer[Module]
	ring []ModuleID
	head int
}

func newModuleRegistry() *moduleRegistry {
	return &moduleRegistry{
		data: make(map[ModuleID]weak.Pointer[Module]),
		ring: make([]ModuleID, 0, 256),
	}
}

func (r *moduleRegistry) register(m *Module) {
	r.data[m.ID] = weak.Make(m)
	r.ring = append(r.ring, m.ID)
}

// Lookup returns the module for id, if it has not yet been garbage
// collected.
func (r *moduleRegistry) Lookup(id ModuleID) (*Module, bool) {
	wp, ok := r.data[id]
	if !ok {
		return nil, false
	}
	m := wp.Value()
	if m == nil {
		delete(r.data, id)
		return nil, false
	}
	return m, true
}

// Scavenge drains up to batchSize ring entries, dropping any whose weak
// pointer has been collected or whose module has reached ModuleDead.
func (r *moduleRegistry) Scavenge(batchSize int) {
	if batchSize <= 0 || len(r.ring) == 0 {
		return
	}
	end := min(r.head+batchSize, len(r.ring))
	for i := r.head; i < end; i++ {
		id := r.ring[i]
		if id == 0 {
			continue
		}
		wp, ok := r.data[id]
		if !ok {
			r.ring[i] = 0
			continue
		}
		m := wp.Value()
		if m == nil || m.state == ModuleDead {
			delete(r.data, id)
			r.ring[i] = 0
		}
	}
	if end >= len(r.ring) {
		r.head = 0
		r.compact()
	} else {
		r.head = end
	}
}

// compact rebuilds the ring without null markers once a full pass
// completes, reclaiming the underlying array per the teacher's
// compactAndRenew.
func (r *moduleRegistry) compact() {
	if len(r.ring) < 256 || float64(len(r.data)) >= float64(len(r.ring))*0.25 {
		return
	}
	newRing := make([]ModuleID, 0, len(r.data))
	for _, id := range r.ring {
		if id != 0 {
			newRing = append(newRing, id)
		}
	}
	r.ring = newRing
}
