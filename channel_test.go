package desim

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestChannel_PureDelayLine(t *testing.T) {
	ch := &Channel{Latency: 100 * time.Millisecond}
	rng := NewRNG([2]uint64{1, 2})
	res := ch.Transmit(Zero, &Message{}, rng)
	require.True(t, res.Accepted)
	require.True(t, res.ScheduleDrain)
	require.Equal(t, NewSimTime(100*time.Millisecond), res.Arrival)
	require.Equal(t, Zero, res.DrainAt) // bitrate 0 => zero bit time
}

// TestChannel_BitTime checks §4.E bit_time = byte_len*8/bitrate, against
// S1's "125-byte message over 1 Mbps => 1 ms transmission".
func TestChannel_BitTime(t *testing.T) {
	ch := &Channel{BitrateBPS: 1_000_000, Latency: 100 * time.Millisecond}
	rng := NewRNG([2]uint64{1, 2})
	msg := &Message{}
	msg.SetByteLen(125)
	res := ch.Transmit(Zero, msg, rng)
	require.True(t, res.Accepted)
	require.Equal(t, NewSimTime(1*time.Millisecond), res.DrainAt)
	require.Equal(t, NewSimTime(101*time.Millisecond), res.Arrival)
}

func TestChannel_DropPolicyDiscardsWhileBusy(t *testing.T) {
	ch := &Channel{BitrateBPS: 8, Policy: DropPolicy{Kind: DropPolicyDrop}} // 1 byte/sec
	rng := NewRNG([2]uint64{1, 2})
	msg := &Message{}
	msg.SetByteLen(1)
	first := ch.Transmit(Zero, msg, rng)
	require.True(t, first.Accepted)

	second := ch.Transmit(NewSimTime(500*time.Millisecond), msg, rng)
	require.False(t, second.Accepted)
	require.True(t, second.DropSignal)
	require.EqualValues(t, 1, ch.DropCount)
}

func TestChannel_QueuePolicyBuffersAndOverflows(t *testing.T) {
	ch := &Channel{BitrateBPS: 8, Policy: DropPolicy{Kind: DropPolicyQueue, Bound: 1}}
	rng := NewRNG([2]uint64{1, 2})
	msg := &Message{}
	msg.SetByteLen(1)

	first := ch.Transmit(Zero, msg, rng)
	require.True(t, first.Accepted)
	require.True(t, first.ScheduleDrain)

	second := ch.Transmit(NewSimTime(10*time.Millisecond), msg, rng)
	require.True(t, second.Accepted)
	require.False(t, second.OverflowSignal) // within bound
	require.Equal(t, 1, ch.QueueLen())

	third := ch.Transmit(NewSimTime(20*time.Millisecond), msg, rng)
	require.True(t, third.Accepted)
	require.True(t, third.OverflowSignal)
	require.EqualValues(t, 1, ch.OverflowCount)
	require.Equal(t, 2, ch.QueueLen())
}

// TestChannel_Drain checks the busy-period state machine transitions back
// to idle and starts the queue head's transmission (S3's back-to-back
// queuing scenario, one step at a time).
func TestChannel_Drain(t *testing.T) {
	ch := &Channel{BitrateBPS: 10_000, Policy: DropPolicy{Kind: DropPolicyQueue}} // 10 kbps
	rng := NewRNG([2]uint64{1, 2})
	msg1 := &Message{}
	msg1.SetByteLen(1000) // 800ms bit_time
	msg2 := &Message{}
	msg2.SetByteLen(1000)

	first := ch.Transmit(Zero, msg1, rng)
	require.True(t, first.ScheduleDrain)
	require.Equal(t, NewSimTime(800*time.Millisecond), first.DrainAt)

	second := ch.Transmit(NewSimTime(10*time.Millisecond), msg2, rng)
	require.True(t, second.Accepted)
	require.False(t, second.ScheduleDrain) // queued, not yet in flight

	res, drained, started := ch.Drain(NewSimTime(800*time.Millisecond), rng)
	require.True(t, started)
	require.Same(t, msg2, drained)
	require.True(t, res.ScheduleDrain)
	require.Equal(t, NewSimTime(1600*time.Millisecond), res.DrainAt)

	_, _, started = ch.Drain(NewSimTime(1600*time.Millisecond), rng)
	require.False(t, started) // queue now empty
}

func TestChannel_JitterClampedNonNegative(t *testing.T) {
	ch := &Channel{Latency: time.Millisecond, Jitter: 10 * time.Millisecond}
	rng := NewRNG([2]uint64{7, 9})
	for i := 0; i < 1000; i++ {
		d := ch.propagationDelay(rng)
		require.GreaterOrEqual(t, d, time.Duration(0))
	}
}
