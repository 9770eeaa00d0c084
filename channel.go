package desim

import "time"

// DropPolicyKind selects a Channel's busy-period overflow behavior (§4.E).
type DropPolicyKind uint8

const (
	// DropPolicyDrop discards messages that arrive while the channel is
	// busy.
	DropPolicyDrop DropPolicyKind = iota
	// DropPolicyQueue appends messages that arrive while the channel is
	// busy to an internal FIFO, signaling ChannelQueueOverflow once the
	// queue exceeds Bound (0 = unbounded).
	DropPolicyQueue
)

// DropPolicy configures how a Channel handles transmit attempts while busy.
type DropPolicy struct {
	Kind  DropPolicyKind
	Bound int // 0 means unbounded; only meaningful for DropPolicyQueue
}

// pending is a message waiting in a channel's busy-period queue.
type pending struct {
	msg         *Message
	enqueueTime SimTime
}

// Channel models the transmission-delay resource interposed on a gate
// connection (§3 Channel, §4.E). A bitrate of 0 marks a pure delay line
// with no bandwidth accounting (I4's exception): transmission is
// instantaneous and arbitrarily many messages may be "in flight"
// concurrently.
type Channel struct {
	Path       string // object path, used as the rate-limit category (§4.E expansion)
	BitrateBPS float64
	Latency    time.Duration
	Jitter     time.Duration // jitter magnitude; sampled uniformly in [-Jitter, +Jitter]
	Policy     DropPolicy
	Gate       *Gate // the gate this channel is interposed at, set by Gate.connect

	state     ChannelState
	busyUntil SimTime
	queue     []pending

	DropCount     uint64
	OverflowCount uint64
}

// TransmitResult reports the outcome of Channel.Transmit or Channel.Drain.
type TransmitResult struct {
	// Arrival is the simulated time at which the message reaches the next
	// gate, valid only if Accepted and ScheduleDrain (i.e. transmission
	// started immediately rather than being queued).
	Arrival SimTime
	// Accepted is false only when the message was dropped.
	Accepted bool
	// DropSignal is true when a DropPolicyDrop discarded the message.
	DropSignal bool
	// OverflowSignal is true when a DropPolicyQueue's bound was exceeded;
	// the message is still accepted and queued.
	OverflowSignal bool
	// ScheduleDrain is true when the caller must schedule an internal
	// drain event for DrainAt, so the channel can resume servicing its
	// queue once the current transmission's busy period ends.
	ScheduleDrain bool
	DrainAt       SimTime
}

// Transmit attempts to send msg through the channel at time now (§4.E
// state machine). If the channel is idle, transmission starts immediately.
// If busy, the configured DropPolicy applies.
func (c *Channel) Transmit(now SimTime, msg *Message, rng *RNG) TransmitResult {
	if c.state == ChannelBusy && now.Before(c.busyUntil) {
		switch c.Policy.Kind {
		case DropPolicyDrop:
			c.DropCount++
			return TransmitResult{DropSignal: true}
		default: // DropPolicyQueue
			c.queue = append(c.queue, pending{msg: msg, enqueueTime: now})
			overflow := c.Policy.Bound > 0 && len(c.queue) > c.Policy.Bound
			if overflow {
				c.OverflowCount++
			}
			return TransmitResult{Accepted: true, OverflowSignal: overflow}
		}
	}
	// idle, or a stale busy period that has already elapsed
	c.state = ChannelIdle
	return c.startTransmission(now, msg, rng)
}

// Drain is invoked by the runtime loop when a previously scheduled busy
// period (ScheduleDrain/DrainAt) elapses. It transitions the channel back
// to idle and, if a message was queued, immediately starts its
// transmission.
func (c *Channel) Drain(now SimTime, rng *RNG) (result TransmitResult, msg *Message, started bool) {
	c.state = ChannelIdle
	if len(c.queue) == 0 {
		return TransmitResult{}, nil, false
	}
	head := c.queue[0]
	c.queue = c.queue[1:]
	return c.startTransmission(now, head.msg, rng), head.msg, true
}

// QueueLen returns the current depth of the busy-period queue, for metrics
// (§8 P4) and observability.
func (c *Channel) QueueLen() int { return len(c.queue) }

func (c *Channel) startTransmission(now SimTime, msg *Message, rng *RNG) TransmitResult {
	bitTime := c.bitTime(msg)
	busyUntil := now.MustAdd(bitTime)
	arrival := busyUntil.MustAdd(c.propagationDelay(rng))
	c.state = ChannelBusy
	c.busyUntil = busyUntil
	return TransmitResult{Arrival: arrival, Accepted: true, ScheduleDrain: true, DrainAt: busyUntil}
}

func (c *Channel) bitTime(msg *Message) time.Duration {
	if c.BitrateBPS <= 0 {
		return 0
	}
	bits := float64(msg.ByteLen()) * 8
	return time.Duration(bits / c.BitrateBPS * float64(time.Second))
}

// propagationDelay samples jitter from rng and clamps the result to >= 0
// (§9 Open Questions: "this spec requires clamping propagation to >= 0").
func (c *Channel) propagationDelay(rng *RNG) time.Duration {
	d := c.Latency + rng.Jitter(c.Jitter)
	if d < 0 {
		d = 0
	}
	return d
}
