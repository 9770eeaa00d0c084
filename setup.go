package desim

import (
	"strings"
	"time"
)

// rootHandler is installed on a Topology's root module, which exists only
// to anchor the tree and never receives application messages.
type rootHandler struct{ BaseHandler }

func (rootHandler) HandleMessage(*Context, *Message) {}

// Topology is the build-time graph assembled by a setup layer before Run:
// the module tree, gate connections, channels, and parameter map of §6
// "Setup contract". It is mutable until a Runtime begins running it, at
// which point structural mutation fails with ErrTopologyFrozen (§4.D).
type Topology struct {
	root     *Module
	registry *moduleRegistry
	params   *ParamStore
	channels []*Channel
	frozen   bool
}

// NewTopology constructs an empty topology with a root module. rootStereotype
// governs panics raised outside of any user module (there should be none in
// practice, since the root never receives messages).
func NewTopology(rootStereotype Stereotype) *Topology {
	registry := newModuleRegistry()
	root := newModule("root", nil, func() Handler { return rootHandler{} }, rootStereotype)
	root.path = "" // the topology root is an anchor, invisible in object paths
	registry.register(root)
	return &Topology{
		root:     root,
		registry: registry,
		params:   NewParamStore(),
	}
}

// Root returns the topology's root module, the implicit parent of any
// module created with a nil parent.
func (t *Topology) Root() *Module { return t.root }

// AddModule creates a child module under parent (the root, if parent is
// nil), per the module-creation records of §6. Fails with ErrTopologyFrozen
// once the simulation is running, or a ConfigError on a duplicate name.
func (t *Topology) AddModule(parent *Module, name string, factory Factory, stereotype Stereotype) (*Module, error) {
	if t.frozen {
		return nil, ErrTopologyFrozen
	}
	if parent == nil {
		parent = t.root
	}
	if _, exists := parent.Child(name); exists {
		return nil, &ConfigError{Message: "duplicate module name: " + parent.path + "." + name}
	}
	m := newModule(name, parent, factory, stereotype)
	parent.addChild(m)
	t.registry.register(m)
	return m, nil
}

// NewChannel creates a channel for later use in Connect. path is the
// channel's object path, used as its rate-limit category for congestion
// logging (§4.E expansion).
func (t *Topology) NewChannel(path string, bitrateBPS float64, latency, jitter time.Duration, policy DropPolicy) *Channel {
	ch := &Channel{
		Path:       path,
		BitrateBPS: bitrateBPS,
		Latency:    latency,
		Jitter:     jitter,
		Policy:     policy,
	}
	t.channels = append(t.channels, ch)
	return ch
}

// Connect wires from -> to, optionally interposing ch, per the
// connection-creation records of §6. Fails with ErrTopologyFrozen once
// running, ErrGateAlreadyConnected on a double-connect, or
// ErrInvalidGateDirection if from cannot forward.
func (t *Topology) Connect(from, to *Gate, ch *Channel) error {
	if t.frozen {
		return ErrTopologyFrozen
	}
	return from.connect(to, ch)
}

// SetParam writes a parameter at the given object path, per the parameter
// map of §6. Fails with ErrTopologyFrozen once running.
func (t *Topology) SetParam(path, key, value string) error {
	if t.frozen {
		return ErrTopologyFrozen
	}
	t.params.Set(path, key, value)
	return nil
}

// freeze marks the topology immutable, entered by Runtime.Run immediately
// before the first at_sim_start stage (§4.D).
func (t *Topology) freeze() { t.frozen = true }

// walkModules visits every module in the tree in pre-order (parent before
// children), starting at the topology root.
func walkModules(m *Module, visit func(*Module)) {
	visit(m)
	for _, c := range m.Children() {
		walkModules(c, visit)
	}
}

// moduleByPath resolves an object path to its module, walking child links
// from the topology root. The empty path resolves to the root itself.
func (t *Topology) moduleByPath(path string) (*Module, bool) {
	if path == "" {
		return t.root, true
	}
	m := t.root
	for _, seg := range strings.Split(path, ".") {
		next, ok := m.Child(seg)
		if !ok {
			return nil, false
		}
		m = next
	}
	return m, true
}

// stageOrder returns every module in the topology (excluding the root) in
// parent-first topological order, for at_sim_start (§4.H "Lifecycle
// phases"). at_sim_end uses the reverse of this order.
func (t *Topology) stageOrder() []*Module {
	var out []*Module
	for _, c := range t.root.Children() {
		walkModules(c, func(m *Module) { out = append(out, m) })
	}
	return out
}
