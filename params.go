package desim

import (
	"math/big"
	"strconv"
	"strings"
	"time"

	"github.com/joeycumines/floater"
)

// ParamStore is the read-mostly parameter tree of §3: a map from object
// path to a map of string key/value pairs, with ancestor-walk inheritance
// (a lookup for (path, key) checks path, then each ancestor in turn).
type ParamStore struct {
	byPath map[string]map[string]string
}

// NewParamStore constructs an empty parameter store.
func NewParamStore() *ParamStore {
	return &ParamStore{byPath: make(map[string]map[string]string)}
}

// Set writes a parameter at the most-specific scope named by path
// (§4.I "Writes go to the most-specific scope").
func (p *ParamStore) Set(path, key, value string) {
	m, ok := p.byPath[path]
	if !ok {
		m = make(map[string]string)
		p.byPath[path] = m
	}
	m[key] = value
}

// Lookup resolves (path, key) by checking path, then each ancestor,
// returning ("", false) if no scope on the chain defines key. Reads
// themselves are infallible (§4.I): callers treat a false ok as an empty
// string, never an error.
func (p *ParamStore) Lookup(path, key string) (string, bool) {
	for {
		if m, ok := p.byPath[path]; ok {
			if v, ok := m[key]; ok {
				return v, true
			}
		}
		idx := strings.LastIndexByte(path, '.')
		if idx < 0 {
			return "", false
		}
		path = path[:idx]
	}
}

// handle constructs a ParamHandle bound to (path, key).
func (p *ParamStore) handle(path, key string) ParamHandle {
	return ParamHandle{store: p, path: path, key: key}
}

// ParamHandle is returned by Context.Par: a lazily-resolved reference to a
// single parameter, scoped to the module path it was obtained from (§4.I
// "par(key) returns a handle that, on read, resolves by walking up the
// current module's path").
type ParamHandle struct {
	store *ParamStore
	rt    *Runtime // non-nil when obtained via Context.Par; enables change notification
	path  string
	key   string
}

// String returns the raw string value, or "" if unset anywhere on the
// ancestor chain.
func (h ParamHandle) String() string {
	if h.store == nil {
		return ""
	}
	v, _ := h.store.Lookup(h.path, h.key)
	return v
}

// Lookup is String plus an explicit "was it set anywhere" flag.
func (h ParamHandle) Lookup() (string, bool) {
	if h.store == nil {
		return "", false
	}
	return h.store.Lookup(h.path, h.key)
}

// Bool parses the parameter as a bool via strconv.ParseBool. Defaults to
// false if unset; parse failure surfaces as ErrParse.
func (h ParamHandle) Bool() (bool, error) {
	v, ok := h.Lookup()
	if !ok || v == "" {
		return false, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false, WrapError("parameter "+h.key, ErrParse)
	}
	return b, nil
}

// Int parses the parameter as a base-10 integer. Defaults to 0 if unset.
func (h ParamHandle) Int() (int64, error) {
	v, ok := h.Lookup()
	if !ok || v == "" {
		return 0, nil
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return 0, WrapError("parameter "+h.key, ErrParse)
	}
	return n, nil
}

// Duration parses the parameter via time.ParseDuration. Defaults to 0 if
// unset.
func (h ParamHandle) Duration() (time.Duration, error) {
	v, ok := h.Lookup()
	if !ok || v == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, WrapError("parameter "+h.key, ErrParse)
	}
	return d, nil
}

// Rat parses the parameter as an exact decimal via math/big.Rat, for
// lossless handling of bitrates/latencies supplied in parameter files
// (§4.I expansion). Defaults to the zero rational if unset.
func (h ParamHandle) Rat() (*big.Rat, error) {
	v, ok := h.Lookup()
	if !ok || v == "" {
		return new(big.Rat), nil
	}
	r, ok := new(big.Rat).SetString(v)
	if !ok {
		return nil, WrapError("parameter "+h.key, ErrParse)
	}
	return r, nil
}

// SetRat writes value at the handle's path/key, formatted losslessly via
// floater.FormatDecimalRat (§4.I expansion), so that round-tripping through
// Rat never loses precision to float64 rounding.
func (h ParamHandle) SetRat(value *big.Rat) {
	if h.store == nil {
		return
	}
	h.store.Set(h.path, h.key, floater.FormatDecimalRat(value, -1, 0))
	h.notifyChange()
}

// Set writes the raw string value at the handle's path/key.
func (h ParamHandle) Set(value string) {
	if h.store == nil {
		return
	}
	h.store.Set(h.path, h.key, value)
	h.notifyChange()
}

// notifyChange runs handle_par_change (§4.I) for every module whose
// resolved value of h.key changed because of the write just made, if this
// handle was obtained from a live Context.
func (h ParamHandle) notifyChange() {
	if h.rt == nil {
		return
	}
	h.rt.notifyParChange(h.path, h.key)
}

// SetParam writes a parameter at path, notifying every currently
// addressable module whose resolved value for key changes as a result
// (§4.I "handle_par_change": "Called when a parameter bound to this
// module changes"). Callable at any point, including mid-run; unlike
// Topology.SetParam it is not gated on the topology being unfrozen, since
// a running simulation's topology is always frozen.
func (rt *Runtime) SetParam(path, key, value string) {
	rt.params.Set(path, key, value)
	rt.notifyParChange(path, key)
}

// notifyParChange calls HandleParChange(key) on the module at writePath
// and on every descendant that does not define its own override for key
// at a more specific path: those descendants resolve key via ancestor-walk
// to the value just written, so their bound value changed too. A
// descendant with its own override is left alone, along with its whole
// subtree, since an override shadows further ancestor writes.
func (rt *Runtime) notifyParChange(writePath, key string) {
	m, ok := rt.topology.moduleByPath(writePath)
	if !ok {
		return
	}
	rt.notifyParChangeRec(m, writePath, key)
}

func (rt *Runtime) notifyParChangeRec(m *Module, writePath, key string) {
	if !m.Addressable() {
		return
	}
	ctx := rt.enterContext(m)
	_ = rt.callHandler(m, func() { m.handler.HandleParChange(ctx, key) })
	rt.exitContext(ctx)
	for _, c := range m.Children() {
		if c.path != writePath {
			if scope, ok := rt.params.byPath[c.path]; ok {
				if _, overridden := scope[key]; overridden {
					continue
				}
			}
		}
		rt.notifyParChangeRec(c, writePath, key)
	}
}
