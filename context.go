package desim

import "time"

// Context is the implicit current-module context a handler invocation runs
// inside (§4.F "implicit current module context"). It is installed by the
// runtime loop immediately before a handler call and torn down immediately
// after, even on panic (§9 "Panic boundary"); calls made after teardown
// return ErrNoCurrentModule.
type Context struct {
	rt     *Runtime
	module *Module
	live   bool
}

// Module returns the module this context belongs to.
func (c *Context) Module() *Module {
	if !c.live {
		return nil
	}
	return c.module
}

// Now returns the current simulated time.
func (c *Context) Now() SimTime {
	return c.rt.now
}

// Send dispatches msg along gate with no additional delay beyond any
// channel transit time encountered on the path (§4.G "send").
func (c *Context) Send(msg *Message, gate *Gate) error {
	if !c.live {
		return ErrNoCurrentModule
	}
	return c.rt.send(c, msg, gate, 0)
}

// SendIn is Send with an additional fixed delay d added before gate
// traversal begins (§4.G "send_in").
func (c *Context) SendIn(msg *Message, gate *Gate, d time.Duration) error {
	if !c.live {
		return ErrNoCurrentModule
	}
	return c.rt.send(c, msg, gate, d)
}

// ScheduleIn delivers msg back to the current module after delay d, with
// no gate traversal (§4.G "schedule_in").
func (c *Context) ScheduleIn(msg *Message, d time.Duration) error {
	if !c.live {
		return ErrNoCurrentModule
	}
	return c.rt.scheduleSelf(c, msg, d)
}

// ScheduleAt delivers msg back to the current module at absolute simulated
// time t (§4.G "schedule_at"). Fails if t is before now.
func (c *Context) ScheduleAt(msg *Message, t SimTime) error {
	if !c.live {
		return ErrNoCurrentModule
	}
	if t.Before(c.rt.now) {
		return &DispatchError{Cause: ErrTimeMonotonicityViolation, Message: "schedule_at targets a time before now"}
	}
	return c.rt.scheduleSelfAt(c, msg, t)
}

// Par returns a handle for reading/writing the named parameter, resolved
// relative to the current module's object path (§4.I).
func (c *Context) Par(key string) ParamHandle {
	if !c.live {
		return ParamHandle{}
	}
	h := c.rt.params.handle(c.module.path, key)
	h.rt = c.rt
	return h
}

// Rand returns the simulation's single deterministic PRNG (§4.A, §9
// "Global mutable state").
func (c *Context) Rand() *RNG {
	return c.rt.rng
}

// Shutdown appends the current module to the shutdown queue, processed by
// the runtime loop after the current handler returns (§4.I "Globals").
func (c *Context) Shutdown() {
	if !c.live {
		return
	}
	c.rt.shutdownQueue.pushShutdown(c.module.ID)
}

// ScheduleRestart appends a restart request for the current module, to a
// configurable future simulated time (nil means "as soon as possible",
// i.e. processed in the next shutdown-queue drain).
func (c *Context) ScheduleRestart(at *SimTime) {
	if !c.live {
		return
	}
	c.rt.shutdownQueue.pushRestart(c.module.ID, at)
}
