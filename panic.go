package desim

import "fmt"

// recoverInfo captures a recovered panic value as an error, for logging and
// for RuntimeError.Cause when a stereotype escalates to PanicAbort.
type recoverInfo struct {
	value any
}

func (r recoverInfo) Error() string {
	if err, ok := r.value.(error); ok {
		return err.Error()
	}
	return fmt.Sprintf("%v", r.value)
}

// invokeHandler calls fn under the panic boundary of §4.H: "If a handler
// panics, consult the module's stereotype". The boundary always recovers;
// it never lets a handler panic escape past this call. The caller (the
// runtime loop) inspects the returned recovered value and policy, and acts
// accordingly (mark inactive, abort, or restart).
func (rt *Runtime) invokeHandler(m *Module, fn func()) (recovered any) {
	defer func() {
		recovered = recover()
	}()
	fn()
	return nil
}

// handlePanic applies m's stereotype to a recovered panic, per §4.H:
//   - catch: mark the module inactive (ending/dead) and continue the run.
//   - abort: return a non-nil error, propagating the failure to Run's caller.
//   - restart: re-instantiate the module via its factory, reset to
//     starting(0), subject to the restart-rate limiter; demoted to abort's
//     behavior if the limiter denies it (a restart storm).
func (rt *Runtime) handlePanic(m *Module, recovered any) error {
	policy := m.Stereotype.OnPanic
	rt.logPanic(m.path, recovered, policy)

	// per the original stereotype model, children are dropped and the
	// parent informed on every panic outcome that doesn't abort the whole
	// run, whether the module is caught or restarted.
	if policy != PanicAbort {
		rt.applyPanicCascade(m)
	}

	switch policy {
	case PanicAbort:
		return &RuntimeError{Cause: recoverInfo{recovered}, SimTime: rt.now, Events: rt.eventCount, Phase: "dispatch"}

	case PanicRestart:
		allowed := true
		if rt.restartLimiter != nil {
			_, allowed = rt.restartLimiter.Allow(m.path)
		}
		rt.logRestart(m.path, allowed)
		if !allowed {
			// restart storm: demote to abort rather than spin forever.
			return &RuntimeError{Cause: recoverInfo{recovered}, SimTime: rt.now, Events: rt.eventCount, Phase: "dispatch"}
		}
		m.restart()
		return rt.runStartStages(m)

	default: // PanicCatch
		rt.deactivateModule(m)
		return nil
	}
}

// applyPanicCascade applies the DropChildrenOnEnd and InformParent
// stereotype flags surrounding a panic (§3 Stereotype
// "on_panic_drop_children", "on_panic_inform_parent"), regardless of
// whether the panicking module is then caught or restarted.
func (rt *Runtime) applyPanicCascade(m *Module) {
	if m.Stereotype.DropChildrenOnEnd {
		for _, c := range m.Children() {
			rt.shutdownModule(c)
		}
	}
	if m.Stereotype.InformParent && m.parent != nil {
		rt.logChildPanic(m.parent.path, m.path)
	}
}

// deactivateModule marks m as no longer addressable without running
// at_sim_end (a panic already interrupted its normal lifecycle; §4.H
// "catch: mark module inactive, continue"), and detaches it from its
// parent so it cannot be reached by a later tree walk.
func (rt *Runtime) deactivateModule(m *Module) {
	m.state = ModuleEnding
	m.state = ModuleDead
	m.detach()
}
