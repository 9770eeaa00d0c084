package desim

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func newTestRuntime(t *testing.T) (*Runtime, *Topology) {
	t.Helper()
	topo := NewTopology(Stereotype{})
	rt, err := New(topo, WithSeed([2]uint64{1, 2}))
	require.NoError(t, err)
	rt.state = RuntimeTicking
	return rt, topo
}

func TestDispatch_ScheduleSelf(t *testing.T) {
	rt, topo := newTestRuntime(t)
	m, err := topo.AddModule(nil, "m", echoFactory, Stereotype{})
	require.NoError(t, err)
	m.state = ModuleRunning

	ctx := rt.enterContext(m)
	msg := NewMessage(rt.now, "ping")
	require.NoError(t, rt.scheduleSelf(ctx, msg, 50*time.Millisecond))

	tm, payload, err := rt.queue.ExtractMin()
	require.NoError(t, err)
	require.Equal(t, NewSimTime(50*time.Millisecond), tm)
	ev := payload.(*Event)
	require.Equal(t, EventMessageAtModule, ev.Kind)
	require.Same(t, m, ev.Target)
	require.Equal(t, msg.Header.DstModule, m.ID)
}

func TestDispatch_ScheduleAtPastIsRejected(t *testing.T) {
	rt, topo := newTestRuntime(t)
	m, err := topo.AddModule(nil, "m", echoFactory, Stereotype{})
	require.NoError(t, err)
	rt.now = NewSimTime(time.Second)

	ctx := rt.enterContext(m)
	err = rt.scheduleSelfAt(ctx, NewMessage(rt.now, nil), NewSimTime(500*time.Millisecond))
	var de *DispatchError
	require.ErrorAs(t, err, &de)
	require.ErrorIs(t, de, ErrTimeMonotonicityViolation)
}

func TestDispatch_SendAcrossChannel(t *testing.T) {
	rt, topo := newTestRuntime(t)
	a, err := topo.AddModule(nil, "a", echoFactory, Stereotype{})
	require.NoError(t, err)
	b, err := topo.AddModule(nil, "b", echoFactory, Stereotype{})
	require.NoError(t, err)
	aOut := a.AddGate("out", 1, ServiceOutput)[0]
	bIn := b.AddGate("in", 1, ServiceInput)[0]
	ch := topo.NewChannel("a.out-b.in", 1_000_000, 100*time.Millisecond, 0, DropPolicy{})
	require.NoError(t, topo.Connect(aOut, bIn, ch))

	ctx := rt.enterContext(a)
	msg := NewMessage(rt.now, "payload")
	msg.SetByteLen(125)
	require.NoError(t, rt.send(ctx, msg, aOut, 0))

	tm, payload, err := rt.queue.ExtractMin()
	require.NoError(t, err)
	require.Equal(t, NewSimTime(101*time.Millisecond), tm)
	ev := payload.(*Event)
	require.Same(t, b, ev.Target)
	require.Equal(t, a.ID, msg.Header.SrcModule)
	require.Equal(t, b.ID, msg.Header.DstModule)
	require.Same(t, bIn, msg.Header.LastGate)
}

func TestDispatch_ChannelDropIsNonFatal(t *testing.T) {
	rt, topo := newTestRuntime(t)
	a, err := topo.AddModule(nil, "a", echoFactory, Stereotype{})
	require.NoError(t, err)
	b, err := topo.AddModule(nil, "b", echoFactory, Stereotype{})
	require.NoError(t, err)
	aOut := a.AddGate("out", 1, ServiceOutput)[0]
	bIn := b.AddGate("in", 1, ServiceInput)[0]
	ch := topo.NewChannel("a.out-b.in", 8, 0, 0, DropPolicy{Kind: DropPolicyDrop}) // 1 byte/sec
	require.NoError(t, topo.Connect(aOut, bIn, ch))

	ctx := rt.enterContext(a)
	m1 := NewMessage(rt.now, "one")
	m1.SetByteLen(1)
	require.NoError(t, rt.send(ctx, m1, aOut, 0))

	m2 := NewMessage(rt.now, "two")
	m2.SetByteLen(1)
	require.NoError(t, rt.send(ctx, m2, aOut, 0)) // dropped, but not an error

	// only m1's arrival and its channel-drain event are pending; m2 left
	// nothing behind.
	require.Equal(t, 2, rt.queue.Len())
	require.EqualValues(t, 1, ch.DropCount)
}

func TestDispatch_QueuedBehindBusyChannelResumesOnDrain(t *testing.T) {
	rt, topo := newTestRuntime(t)
	a, err := topo.AddModule(nil, "a", echoFactory, Stereotype{})
	require.NoError(t, err)
	b, err := topo.AddModule(nil, "b", echoFactory, Stereotype{})
	require.NoError(t, err)
	aOut := a.AddGate("out", 1, ServiceOutput)[0]
	bIn := b.AddGate("in", 1, ServiceInput)[0]
	ch := topo.NewChannel("a.out-b.in", 10_000, 0, 0, DropPolicy{Kind: DropPolicyQueue}) // 10kbps
	require.NoError(t, topo.Connect(aOut, bIn, ch))

	ctx := rt.enterContext(a)
	m1 := NewMessage(rt.now, "one")
	m1.SetByteLen(1000) // 800ms bit_time
	m2 := NewMessage(rt.now, "two")
	m2.SetByteLen(1000)

	require.NoError(t, rt.send(ctx, m1, aOut, 0))
	require.NoError(t, rt.send(ctx, m2, aOut, 0))

	// one EventMessageAtModule (m1's eventual arrival) and one
	// EventChannelDrain are pending; m2 is parked in the channel's queue.
	require.Equal(t, 2, rt.queue.Len())
	require.Equal(t, 1, ch.QueueLen())

	// advance to the drain event and deliver it, which should start m2's
	// transmission and enqueue its own arrival in turn.
	var m2Arrival *SimTime
	for rt.queue.Len() > 0 {
		tm, payload, err := rt.queue.ExtractMin()
		require.NoError(t, err)
		rt.now = tm
		ev := payload.(*Event)
		if ev.Kind == EventChannelDrain {
			rt.deliverChannelDrain(ev)
		}
		if ev.Kind == EventMessageAtModule && ev.Msg == m2 {
			m2Arrival = &tm
		}
	}
	// m2 starts transmitting when m1's 800ms busy period ends and arrives
	// after its own 800ms bit_time.
	require.NotNil(t, m2Arrival)
	require.Equal(t, NewSimTime(1600*time.Millisecond), *m2Arrival)
}
