package desim

import (
	"os"

	"github.com/joeycumines/logiface"
	"github.com/joeycumines/stumpy"
)

// defaultLogger constructs the logger used when no WithLogger option is
// supplied: a logiface.Logger backed by stumpy's zero-alloc JSON writer,
// grounded on the teacher's own default logging stack (logiface-stumpy),
// writing to stderr at informational level.
func defaultLogger() *logiface.Logger[*stumpy.Event] {
	return stumpy.L.New(
		stumpy.L.WithStumpy(stumpy.WithWriter(os.Stderr)),
		logiface.WithLevel[*stumpy.Event](logiface.LevelInformational),
	)
}

// logLifecycle records a module lifecycle transition (setup, at_sim_start
// stage, at_sim_end, ending). Never on the critical path of event ordering
// (P3): logging failures or slow writers cannot alter simulation results,
// since the logger call itself never influences scheduling decisions.
func (rt *Runtime) logLifecycle(event, path string, stage int) {
	if rt.logger == nil {
		return
	}
	rt.logger.Info().
		Str("event", event).
		Str("module", path).
		Int("stage", stage).
		Log("lifecycle transition")
}

// logDrop records a channel drop or queue-overflow signal, throttled per
// channel object path via the drop-log rate limiter (WithDropLogRateLimit,
// separate from the restart limiter; §4.E expansion) so that a pathological sender cannot turn channel congestion
// into log-volume congestion.
func (rt *Runtime) logDrop(channelPath, kind string) {
	if rt.logger == nil {
		return
	}
	if rt.dropLimiter != nil {
		if _, allowed := rt.dropLimiter.Allow(channelPath); !allowed {
			return
		}
	}
	rt.logger.Warning().
		Str("channel", channelPath).
		Str("signal", kind).
		Log("channel congestion")
}

// logPanic records a handler panic and the stereotype-determined policy
// applied to it.
func (rt *Runtime) logPanic(modulePath string, recovered any, policy PanicPolicy) {
	if rt.logger == nil {
		return
	}
	b := rt.logger.Err()
	if err, ok := recovered.(error); ok {
		b = b.Err(err)
	}
	b.Str("module", modulePath).
		Str("policy", policy.String()).
		Log("handler panic")
}

// logChildPanic records that a child module's panic was surfaced to its
// parent, per the InformParent stereotype flag (§3 Stereotype
// "on_panic_inform_parent"). There is no in-band Handler callback for
// cross-module notification in this system; the structured log is the
// informing channel a parent (or an external observer) consults.
func (rt *Runtime) logChildPanic(parentPath, childPath string) {
	if rt.logger == nil {
		return
	}
	rt.logger.Warning().
		Str("parent", parentPath).
		Str("child", childPath).
		Log("child panic informed")
}

// logRestart records a restart attempt, and whether the restart-rate
// limiter allowed it (see panic.go).
func (rt *Runtime) logRestart(modulePath string, allowed bool) {
	if rt.logger == nil {
		return
	}
	b := rt.logger.Warning()
	if !allowed {
		b = rt.logger.Err()
	}
	b.Str("module", modulePath).
		Bool("allowed", allowed).
		Log("module restart")
}
