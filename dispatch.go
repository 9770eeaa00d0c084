package desim

import "time"

// traversalStep records one channel encountered during a gate-chain
// traversal, for signal logging and drain scheduling after the traversal
// completes.
type traversalStep struct {
	channel *Channel
	result  TransmitResult
}

// traverse walks a gate chain starting at gate, accumulating the
// transmission delay of any channel encountered along the way (§4.D "A
// traversal of a gate chain starts at the chain head... and walks next
// pointers, collecting any encountered channel's transmission delay").
//
// It returns the terminal gate reached, the arrival time at that point, and
// every channel transmission outcome observed. If a channel along the path
// is currently busy and queues the message (rather than dropping it),
// traversal stops at that gate: the message's eventual arrival depends on
// when the channel later drains (see deliverChannelDrain), not on a time
// known here. err wraps ErrInvalidGateDirection if the chain would forward
// through or terminate at a gate whose service type disallows it, or
// ErrChannelDropped if a drop-policy channel discarded the message.
func (rt *Runtime) traverse(now SimTime, gate *Gate, msg *Message) (tail *Gate, arrival SimTime, steps []traversalStep, err error) {
	arrival = now
	g := gate
	for {
		if g.Channel != nil {
			res := g.Channel.Transmit(arrival, msg, rt.rng)
			steps = append(steps, traversalStep{channel: g.Channel, result: res})
			if !res.Accepted {
				return g, arrival, steps, &DispatchError{Cause: ErrChannelDropped, Message: "channel dropped message at " + g.Channel.Path}
			}
			if !res.ScheduleDrain {
				// queued behind a busy channel: the final arrival time is not
				// yet known, it is determined when the channel later drains.
				return g, arrival, steps, nil
			}
			arrival = res.Arrival
		}
		next := g.Next()
		if next == nil {
			if !g.Service.canTerminate() {
				return g, arrival, steps, &DispatchError{Cause: ErrInvalidGateDirection, Message: "chain terminates at non-terminal gate " + g.Path()}
			}
			return g, arrival, steps, nil
		}
		if !g.Service.canForward() {
			return g, arrival, steps, &DispatchError{Cause: ErrInvalidGateDirection, Message: "chain cannot forward through " + g.Path()}
		}
		g = next
	}
}

// applyTraversalSignals logs drop/overflow signals observed during a
// traversal and schedules a channel-drain event for any channel that began
// a fresh transmission (§4.E expansion).
func (rt *Runtime) applyTraversalSignals(steps []traversalStep) {
	for _, s := range steps {
		if s.result.DropSignal {
			rt.logDrop(s.channel.Path, "drop")
		}
		if s.result.OverflowSignal {
			rt.logDrop(s.channel.Path, "overflow")
		}
		if s.result.ScheduleDrain {
			rt.scheduleChannelDrain(s.channel, s.result.DrainAt)
		}
		rt.metrics.observeQueueDepth(s.channel.QueueLen())
	}
}

// scheduleChannelDrain enqueues an internal EventChannelDrain for ch,
// resuming its busy-period queue once the current transmission completes
// (§4.E expansion).
func (rt *Runtime) scheduleChannelDrain(ch *Channel, at SimTime) {
	ev := &Event{Kind: EventChannelDrain, Time: at, Channel: ch}
	seq, err := rt.queue.Insert(at, ev)
	if err != nil {
		// a channel's own busy_until cannot be before now; a monotonicity
		// violation here indicates corrupted channel state, not user error.
		panic(&RuntimeError{Cause: err, SimTime: rt.now, Events: rt.eventCount, Phase: "dispatch"})
	}
	ev.ID = seq
}

// queuedBehindBusyChannel reports whether the last step of a traversal left
// the message queued (accepted, but not yet in flight).
func queuedBehindBusyChannel(steps []traversalStep) bool {
	return len(steps) > 0 && steps[len(steps)-1].result.Accepted && !steps[len(steps)-1].result.ScheduleDrain
}

// send implements §4.G send/send_in: dispatch msg along gate's chain,
// arriving after delay d plus any accumulated channel delay.
func (rt *Runtime) send(ctx *Context, msg *Message, gate *Gate, d time.Duration) error {
	if rt.state != RuntimeTicking && rt.state != RuntimeSettingUp {
		return &DispatchError{Cause: ErrModuleNotRunning, Message: "send outside of an active run"}
	}
	if gate == nil {
		return &DispatchError{Message: "send: nil gate"}
	}
	startAt, err := rt.now.Add(d)
	if err != nil {
		return &DispatchError{Cause: err, Message: "send_in delay overflows simulated time"}
	}

	tail, arrival, steps, terr := rt.traverse(startAt, gate, msg)
	rt.applyTraversalSignals(steps)
	if terr != nil {
		if de, ok := terr.(*DispatchError); ok && de.Cause == ErrChannelDropped {
			// the message was dropped by a channel's policy: not a caller
			// error, merely a signaled outcome (§4.G "apply its policy").
			return nil
		}
		return terr
	}

	msg.Header.LastGate = tail
	msg.Header.SendTime = rt.now
	msg.Header.SrcModule = ctx.module.ID

	if queuedBehindBusyChannel(steps) {
		// the message will surface via a later EventChannelDrain; see
		// deliverChannelDrain.
		return nil
	}

	msg.Header.DstModule = tail.Owner.ID
	rt.enqueueMessageAtModule(arrival, tail.Owner, msg)
	return nil
}

// enqueueMessageAtModule inserts a MessageAtModule event, assigning it the
// calendar queue's insertion sequence as its event id (I2/P2 tiebreak).
func (rt *Runtime) enqueueMessageAtModule(at SimTime, target *Module, msg *Message) {
	ev := &Event{Kind: EventMessageAtModule, Time: at, Target: target, Msg: msg}
	seq, err := rt.queue.Insert(at, ev)
	if err != nil {
		panic(&RuntimeError{Cause: err, SimTime: rt.now, Events: rt.eventCount, Phase: "dispatch"})
	}
	ev.ID = seq
}

// scheduleSelf implements §4.G schedule_in: deliver msg back to ctx's
// module after delay d, with no gate traversal.
func (rt *Runtime) scheduleSelf(ctx *Context, msg *Message, d time.Duration) error {
	at, err := rt.now.Add(d)
	if err != nil {
		return &DispatchError{Cause: err, Message: "schedule_in delay overflows simulated time"}
	}
	return rt.scheduleSelfAt(ctx, msg, at)
}

// scheduleSelfAt implements §4.G schedule_at.
func (rt *Runtime) scheduleSelfAt(ctx *Context, msg *Message, at SimTime) error {
	if at.Before(rt.now) {
		return &DispatchError{Cause: ErrTimeMonotonicityViolation, Message: "schedule_at targets a time before now"}
	}
	msg.Header.SendTime = rt.now
	msg.Header.SrcModule = ctx.module.ID
	msg.Header.DstModule = ctx.module.ID
	rt.enqueueMessageAtModule(at, ctx.module, msg)
	return nil
}

// deliverChannelDrain processes an EventChannelDrain: the channel's current
// busy period has elapsed. If a message was queued behind it, Drain starts
// that message's own transmission, and traversal resumes from the
// channel's gate onward (§4.E "when busy_until fires, dequeue head and
// re-enter transmission").
func (rt *Runtime) deliverChannelDrain(ev *Event) {
	ch := ev.Channel
	res, msg, started := ch.Drain(rt.now, rt.rng)
	if !started {
		return
	}
	rt.metrics.observeQueueDepth(ch.QueueLen())
	if res.ScheduleDrain {
		rt.scheduleChannelDrain(ch, res.DrainAt)
	}
	gate := ch.Gate
	if gate == nil {
		// a channel constructed without an owning gate (e.g. directly in a
		// unit test) has nowhere further to deliver to.
		return
	}
	next := gate.Next()
	if next == nil {
		if !gate.Service.canTerminate() {
			return
		}
		msg.Header.LastGate = gate
		msg.Header.DstModule = gate.Owner.ID
		rt.enqueueMessageAtModule(res.Arrival, gate.Owner, msg)
		return
	}
	if !gate.Service.canForward() {
		return
	}
	tail, arrival, steps, err := rt.traverse(res.Arrival, next, msg)
	rt.applyTraversalSignals(steps)
	if err != nil {
		return
	}
	msg.Header.LastGate = tail
	if queuedBehindBusyChannel(steps) {
		return
	}
	msg.Header.DstModule = tail.Owner.ID
	rt.enqueueMessageAtModule(arrival, tail.Owner, msg)
}
