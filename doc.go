// Package desim implements the core of a discrete-event network simulator:
// a deterministic, single-threaded engine that advances simulated time by
// extracting timestamped events from a calendar queue and dispatching
// messages between user-defined modules connected by gates and channels.
//
// # Architecture
//
// The engine is composed of three tightly coupled subsystems:
//
//   - A calendar queue (calendar.go), an amortized O(1) priority structure
//     over (simulated time, insertion sequence) pairs.
//   - A module/gate/channel runtime (module.go, gate.go, channel.go), the
//     graph of simulated entities through which messages travel.
//   - A dispatch pipeline (dispatch.go), the rules that turn a send or
//     schedule call into a future event, accumulating channel delay along
//     the way.
//
// A Runtime (runtime.go) owns exactly one of each: one calendar queue, one
// clock, one PRNG, and one module tree. Simulations are strictly
// single-threaded and non-preemptive: only one handler executes at a time,
// and it runs to completion (or panic) before the next event is considered.
// Two runtimes may exist in the same process only serialized: Runtime.Run
// holds a process-wide mutex for the duration of a run.
//
// # Determinism
//
// Given identical (seed, topology, parameters, handler code), two runs
// produce an identical sequence of delivered events and an identical final
// simulated time. The PRNG (rng.go) is seeded explicitly; nothing in the
// package consults wall-clock time to influence simulation outcomes.
//
// # Observability
//
// Structured logging (logging.go) is backed by logiface/stumpy, and is
// never on the critical path of event ordering: a logger that blocks or
// panics cannot alter simulation results. Optional percentile metrics
// (metrics.go) are disabled by default, to keep the hot dispatch path
// allocation-free. Every Run returns a Profile (profile.go) of event count,
// wall duration and simulated duration.
package desim
