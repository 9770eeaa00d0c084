package desim

import (
	"sync"
	"time"

	"github.com/joeycumines/go-catrate"
	"github.com/joeycumines/logiface"
	"github.com/joeycumines/stumpy"
)

// simGuard enforces §5 "Shared resources": at most one simulation runs at a
// time within a process. A second Run blocks until the first Run returns,
// matching the spec's "a second attempt to Run blocks rather than
// interleaving with the first" requirement.
var simGuard sync.Mutex

// Runtime is the single-threaded driver of §4.H: it owns the calendar
// queue, the clock, the PRNG, and every other piece of global mutable
// state named in §4.I, and exposes them to handlers only through Context.
type Runtime struct {
	opts     *runtimeOptions
	topology *Topology

	queue         *CalendarQueue
	now           SimTime
	rng           *RNG
	params        *ParamStore
	shutdownQueue *ShutdownQueue
	registry      *moduleRegistry
	watchers      *WatcherStore

	logger         *logiface.Logger[*stumpy.Event]
	dropLimiter    *catrate.Limiter
	restartLimiter *catrate.Limiter
	metrics        *Metrics

	state      RuntimeState
	eventCount uint64

	prof    *profiler
	profile Profile
}

// New constructs a Runtime bound to topology, applying opts over the
// package defaults (options.go). The topology is not frozen until Run is
// called, so it may still be extended after New returns and before Run
// begins (§4.D).
func New(topology *Topology, opts ...RuntimeOption) (*Runtime, error) {
	if topology == nil {
		return nil, &ConfigError{Message: "nil topology"}
	}
	cfg, err := resolveRuntimeOptions(opts)
	if err != nil {
		return nil, err
	}

	logger := cfg.logger
	if logger == nil {
		logger = defaultLogger()
	}

	// a module created with a zero-value Stereotype{} inherits the
	// runtime-wide default instead (WithDefaultStereotype); modules that
	// set any field explicitly are left alone.
	walkModules(topology.root, func(m *Module) {
		if m.Stereotype == (Stereotype{}) {
			m.Stereotype = cfg.defaultStereotype
		}
	})

	rt := &Runtime{
		opts:          cfg,
		topology:      topology,
		queue:         NewCalendarQueue(cfg.buckets, cfg.bucketSpan),
		rng:           NewRNG(cfg.seed),
		params:        topology.params,
		shutdownQueue: NewShutdownQueue(),
		registry:      topology.registry,
		watchers:      newWatcherStore(),
		logger:        logger,
		metrics:       NewMetrics(cfg.metricsEnabled),
		prof:          newProfiler(),
		state:         RuntimeIdle,
	}
	if len(cfg.restartRates) > 0 {
		rt.restartLimiter = catrate.NewLimiter(cfg.restartRates)
	}
	if len(cfg.dropLogRates) > 0 {
		rt.dropLimiter = catrate.NewLimiter(cfg.dropLogRates)
	}
	return rt, nil
}

// Metrics returns the runtime's percentile tracker, usable after Run
// returns (or mid-run, from within a handler, though values are then
// necessarily partial).
func (rt *Runtime) Metrics() *Metrics { return rt.metrics }

// Now returns the current simulated time, valid during and after a run.
func (rt *Runtime) Now() SimTime { return rt.now }

// State returns the runtime's current lifecycle state.
func (rt *Runtime) State() RuntimeState { return rt.state }

// limitReached reports whether the configured termination limits (§4.H)
// are satisfied, combined per opts.terminationMode.
func (rt *Runtime) limitReached() bool {
	haveIter := rt.opts.maxIterations > 0
	iterDone := haveIter && rt.eventCount >= rt.opts.maxIterations
	timeDone := rt.opts.hasMaxSimTime && !rt.now.Before(rt.opts.maxSimTime)

	if !haveIter && !rt.opts.hasMaxSimTime {
		return false
	}
	switch rt.opts.terminationMode {
	case TerminationBoth:
		if haveIter && !rt.opts.hasMaxSimTime {
			return iterDone
		}
		if !haveIter && rt.opts.hasMaxSimTime {
			return timeDone
		}
		return iterDone && timeDone
	default: // TerminationEither
		return iterDone || timeDone
	}
}

// enterContext installs the implicit current-module context for a handler
// invocation (§4.F).
func (rt *Runtime) enterContext(m *Module) *Context {
	return &Context{rt: rt, module: m, live: true}
}

// exitContext tears down a context, so calls made after the handler
// returns (e.g. from a captured closure) fail with ErrNoCurrentModule
// instead of silently touching stale state.
func (rt *Runtime) exitContext(ctx *Context) {
	ctx.live = false
}

// callHandler invokes fn for m under the panic boundary (§4.H, §9 "Panic
// boundary"): fn always returns normally from invokeHandler's point of
// view, with a recovered panic (if any) handled afterward via the
// module's stereotype. Returns a non-nil error only when the panic policy
// escalates to abort (directly, or via a denied restart).
func (rt *Runtime) callHandler(m *Module, fn func()) error {
	start := time.Now()
	recovered := rt.invokeHandler(m, fn)
	rt.metrics.observeDispatch(float64(time.Since(start)))
	if recovered == nil {
		return nil
	}
	return rt.handlePanic(m, recovered)
}

// runStartStages runs every at_sim_start stage for m in order, advancing
// m's lifecycle from created through starting(0..K-1) to running (§4.H
// "Lifecycle phases"). Used both by the initial lifecycle walk and by
// PanicRestart (panic.go).
func (rt *Runtime) runStartStages(m *Module) error {
	n := m.handler.NumSimStartStages()
	m.state = ModuleStarting
	for stage := 0; stage < n; stage++ {
		m.startStage = stage
		rt.logLifecycle("at_sim_start", m.path, stage)
		ctx := rt.enterContext(m)
		err := rt.callHandler(m, func() { m.handler.AtSimStart(ctx, stage) })
		rt.exitContext(ctx)
		if err != nil {
			return err
		}
		if m.state == ModuleDead || m.state == ModuleEnding {
			// a catch-policy panic during a start stage deactivated the
			// module; nothing further to run for it.
			return nil
		}
	}
	m.state = ModuleRunning
	return nil
}

// startLifecycle runs at_sim_start for every module in parent-first
// topological order (§4.H).
func (rt *Runtime) startLifecycle() error {
	rt.state = RuntimeSettingUp
	for _, m := range rt.topology.stageOrder() {
		if err := rt.runStartStages(m); err != nil {
			return err
		}
	}
	return nil
}

// endLifecycle runs at_sim_end for every module in the reverse of
// start order (children before parents, §4.H), skipping modules already
// dead. A handler's returned error is logged but does not abort the
// sequence: every module gets a chance to clean up.
func (rt *Runtime) endLifecycle() {
	rt.state = RuntimeEnding
	order := rt.topology.stageOrder()
	for i := len(order) - 1; i >= 0; i-- {
		m := order[i]
		if m.state == ModuleDead {
			continue
		}
		m.state = ModuleEnding
		rt.logLifecycle("at_sim_end", m.path, -1)
		ctx := rt.enterContext(m)
		_ = rt.callHandler(m, func() {
			if err := m.handler.AtSimEnd(ctx); err != nil {
				rt.logPanic(m.path, err, m.Stereotype.OnPanic)
			}
		})
		rt.exitContext(ctx)
		m.state = ModuleDead
		m.detach()
	}
}

// deliver dispatches a single extracted event to its target, per §4.H's
// main loop body.
func (rt *Runtime) deliver(ev *Event) error {
	switch ev.Kind {
	case EventChannelDrain:
		rt.deliverChannelDrain(ev)
		return nil
	case EventRestart:
		m := ev.Target
		if m == nil || m.state == ModuleDead {
			return nil
		}
		m.restart()
		return rt.runStartStages(m)
	case EventMessageAtModule:
		m := ev.Target
		if m == nil || !m.Addressable() {
			// the target shut down or was deactivated between send and
			// delivery (I5); the message is simply dropped.
			return nil
		}
		ctx := rt.enterContext(m)
		err := rt.callHandler(m, func() { m.handler.HandleMessage(ctx, ev.Msg) })
		rt.exitContext(ctx)
		return err
	default:
		return nil
	}
}

// drainShutdownQueue processes every request pushed during the current
// tick (§4.I "Globals": "processed by the runtime loop after each handler
// invocation returns").
func (rt *Runtime) drainShutdownQueue() {
	for {
		req, ok := rt.shutdownQueue.Pop()
		if !ok {
			return
		}
		m, found := rt.registry.Lookup(req.Module)
		if !found || m.state == ModuleDead {
			continue
		}
		switch req.Kind {
		case RequestShutdown:
			rt.shutdownModule(m)
		case RequestRestart:
			if req.At != nil && req.At.After(rt.now) {
				rt.scheduleRestart(*req.At, m)
				continue
			}
			m.restart()
			_ = rt.runStartStages(m)
		}
	}
}

// scheduleRestart enqueues a deferred schedule_restart(at) request.
func (rt *Runtime) scheduleRestart(at SimTime, m *Module) {
	ev := &Event{Kind: EventRestart, Time: at, Target: m}
	seq, err := rt.queue.Insert(at, ev)
	if err != nil {
		panic(&RuntimeError{Cause: err, SimTime: rt.now, Events: rt.eventCount, Phase: "dispatch"})
	}
	ev.ID = seq
}

// shutdownModule ends m and, per its stereotype, cascades to its children
// (§3 Stereotype "drop_children_on_end") in the same post-order used by
// endLifecycle.
func (rt *Runtime) shutdownModule(m *Module) {
	if m.state == ModuleDead {
		return
	}
	if m.Stereotype.DropChildrenOnEnd {
		for _, c := range m.Children() {
			rt.shutdownModule(c)
		}
	}
	m.state = ModuleEnding
	rt.logLifecycle("at_sim_end", m.path, -1)
	ctx := rt.enterContext(m)
	_ = rt.callHandler(m, func() {
		if err := m.handler.AtSimEnd(ctx); err != nil {
			rt.logPanic(m.path, err, m.Stereotype.OnPanic)
		}
	})
	rt.exitContext(ctx)
	m.state = ModuleDead
	m.detach()
}

// Run executes the simulation to completion: freezes the topology, runs
// at_sim_start, drives the extract/dispatch loop until the calendar queue
// empties or a termination limit is reached, then runs at_sim_end in
// reverse order (§4.H). Only one Run may be active per process at a time
// (§5); a concurrent call blocks until the first returns.
func (rt *Runtime) Run() (Profile, error) {
	simGuard.Lock()
	defer simGuard.Unlock()

	rt.prof.Mark("run_start")
	rt.topology.freeze()

	if err := rt.startLifecycle(); err != nil {
		return rt.finishProfile(), err
	}

	rt.state = RuntimeTicking
	for !rt.queue.IsEmpty() && !rt.limitReached() {
		t, payload, err := rt.queue.ExtractMin()
		if err != nil {
			break
		}
		rt.now = t
		ev := payload.(*Event)

		if err := rt.deliver(ev); err != nil {
			rt.state = RuntimeDone
			return rt.finishProfile(), err
		}
		rt.drainShutdownQueue()
		rt.eventCount++
		rt.registry.Scavenge(32)
	}

	rt.endLifecycle()
	rt.state = RuntimeDone
	return rt.finishProfile(), nil
}

func (rt *Runtime) finishProfile() Profile {
	rt.prof.Mark("run_end")
	rt.profile = Profile{
		EventCount:   rt.eventCount,
		WallDuration: rt.prof.Measure("run_start", "run_end"),
		SimDuration:  rt.now.Duration(),
	}
	return rt.profile
}
