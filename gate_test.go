package desim

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestServiceType_ForwardTerminateMatrix(t *testing.T) {
	require.True(t, ServiceOutput.canForward())
	require.False(t, ServiceOutput.canTerminate())

	require.False(t, ServiceInput.canForward())
	require.True(t, ServiceInput.canTerminate())

	require.True(t, ServiceUndirected.canForward())
	require.True(t, ServiceUndirected.canTerminate())
}

func TestGate_ConnectRejectsDoubleConnectAndWrongDirection(t *testing.T) {
	m := newModule("m", nil, echoFactory, Stereotype{})
	out := m.AddGate("out", 1, ServiceOutput)[0]
	in := m.AddGate("in", 1, ServiceInput)[0]
	in2 := m.AddGate("in2", 1, ServiceInput)[0]

	require.NoError(t, out.connect(in, nil))
	require.True(t, out.Connected())
	require.ErrorIs(t, out.connect(in2, nil), ErrGateAlreadyConnected)

	require.ErrorIs(t, in.connect(in2, nil), ErrInvalidGateDirection)
}

func TestGate_ConnectRejectsCycle(t *testing.T) {
	m := newModule("m", nil, echoFactory, Stereotype{})
	a := m.AddGate("a", 1, ServiceUndirected)[0]
	b := m.AddGate("b", 1, ServiceUndirected)[0]
	c := m.AddGate("c", 1, ServiceUndirected)[0]

	require.NoError(t, a.connect(b, nil))
	require.NoError(t, b.connect(c, nil))
	require.ErrorIs(t, c.connect(a, nil), ErrTopologyCycle, "c -> a would close a -> b -> c -> a")

	// a direct self-connect is also a (degenerate) cycle.
	d := m.AddGate("d", 1, ServiceUndirected)[0]
	require.ErrorIs(t, d.connect(d, nil), ErrTopologyCycle)
}

func TestGate_PathFormatsClusteredAndSingleton(t *testing.T) {
	m := newModule("m", nil, echoFactory, Stereotype{})
	single := m.AddGate("ctrl", 1, ServiceUndirected)[0]
	require.Equal(t, "m.ctrl", single.Path())

	cluster := m.AddGate("eth", 4, ServiceUndirected)
	require.Equal(t, "m.eth[2]", cluster[2].Path())
}
