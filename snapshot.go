package desim

import (
	"sort"
	"strconv"

	"github.com/joeycumines/go-utilpkg/jsonenc"
)

// WatcherStore holds named values written by handlers during a run and
// readable afterward (§6 "Observability hooks": "Watcher store: named
// values written by handlers, readable after a run"). Not safe for
// concurrent use; the runtime loop's single-threaded execution is its only
// writer.
type WatcherStore struct {
	values map[string]any
}

func newWatcherStore() *WatcherStore {
	return &WatcherStore{values: make(map[string]any)}
}

// Set records value under key, overwriting any prior value.
func (w *WatcherStore) Set(key string, value any) {
	w.values[key] = value
}

// Get returns the value recorded under key, if any.
func (w *WatcherStore) Get(key string) (any, bool) {
	v, ok := w.values[key]
	return v, ok
}

// Keys returns every recorded key, sorted, for deterministic iteration by
// an observability consumer.
func (w *WatcherStore) Keys() []string {
	out := make([]string, 0, len(w.values))
	for k := range w.values {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// Watch records a named observability value, readable after the run via
// Runtime.Watcher (§6).
func (c *Context) Watch(key string, value any) {
	if !c.live {
		return
	}
	c.rt.watchers.Set(key, value)
}

// Watcher returns the runtime's watcher store.
func (rt *Runtime) Watcher() *WatcherStore { return rt.watchers }

// GateSnapshot is the read-only description of one gate in a
// TopologySnapshot.
type GateSnapshot struct {
	Name        string
	Index       int
	Service     ServiceType
	ConnectedTo string // next gate's path, "" if unconnected
	Channel     string // channel object path, "" if none interposed
}

// ModuleSnapshot is the read-only description of one module in a
// TopologySnapshot.
type ModuleSnapshot struct {
	Path  string
	State ModuleState
	Gates []GateSnapshot
}

// TopologySnapshot is the read-only graph of §6 "Observability hooks":
// "Topology snapshot: a read-only graph describing modules and gate
// connections."
type TopologySnapshot struct {
	Time    WireTime
	Modules []ModuleSnapshot
}

// Snapshot captures the current topology and simulated time. Safe to call
// at any point during or after a run; during a run it reflects state as of
// the last completed event.
func (rt *Runtime) Snapshot() TopologySnapshot {
	snap := TopologySnapshot{Time: rt.now.MarshalWire()}
	for _, m := range rt.topology.stageOrder() {
		snap.Modules = append(snap.Modules, moduleSnapshotOf(m))
	}
	return snap
}

func moduleSnapshotOf(m *Module) ModuleSnapshot {
	gateNames := make([]string, 0, len(m.gates))
	for name := range m.gates {
		gateNames = append(gateNames, name)
	}
	sort.Strings(gateNames)

	var gates []GateSnapshot
	for _, name := range gateNames {
		for _, g := range m.gates[name] {
			gs := GateSnapshot{Name: g.Name, Index: g.Index, Service: g.Service}
			if g.next != nil {
				gs.ConnectedTo = g.next.Path()
			}
			if g.Channel != nil {
				gs.Channel = g.Channel.Path
			}
			gates = append(gates, gs)
		}
	}
	return ModuleSnapshot{Path: m.path, State: m.state, Gates: gates}
}

// MarshalJSON renders the snapshot as compact JSON, built with the
// teacher's own zero-allocation JSON primitives (jsonenc.AppendString),
// the same backend stumpy uses for log-line encoding (logging.go).
func (s TopologySnapshot) MarshalJSON() ([]byte, error) {
	buf := make([]byte, 0, 256)
	buf = append(buf, `{"time":`...)
	buf = appendWireTime(buf, s.Time)
	buf = append(buf, `,"modules":[`...)
	for i, m := range s.Modules {
		if i > 0 {
			buf = append(buf, ',')
		}
		buf = append(buf, `{"path":`...)
		buf = jsonenc.AppendString(buf, m.Path)
		buf = append(buf, `,"state":`...)
		buf = jsonenc.AppendString(buf, m.State.String())
		buf = append(buf, `,"gates":[`...)
		for j, g := range m.Gates {
			if j > 0 {
				buf = append(buf, ',')
			}
			buf = append(buf, `{"name":`...)
			buf = jsonenc.AppendString(buf, g.Name)
			buf = append(buf, `,"index":`...)
			buf = strconv.AppendInt(buf, int64(g.Index), 10)
			buf = append(buf, `,"service":`...)
			buf = jsonenc.AppendString(buf, g.Service.String())
			buf = append(buf, `,"connected_to":`...)
			buf = jsonenc.AppendString(buf, g.ConnectedTo)
			buf = append(buf, `,"channel":`...)
			buf = jsonenc.AppendString(buf, g.Channel)
			buf = append(buf, '}')
		}
		buf = append(buf, `]}`...)
	}
	buf = append(buf, `]}`...)
	return buf, nil
}

func appendWireTime(buf []byte, t WireTime) []byte {
	if !t.Extended {
		buf = append(buf, `{"nanos":`...)
		buf = strconv.AppendInt(buf, t.Nanos, 10)
		return append(buf, '}')
	}
	buf = append(buf, `{"extended":true,"sec":`...)
	buf = strconv.AppendInt(buf, t.Sec, 10)
	buf = append(buf, `,"nsec":`...)
	buf = strconv.AppendInt(buf, int64(t.Nsec), 10)
	return append(buf, '}')
}
