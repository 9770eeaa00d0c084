package desim

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestWatcherStore_SetGetAndSortedKeys(t *testing.T) {
	w := newWatcherStore()
	w.Set("zeta", 1)
	w.Set("alpha", "x")

	v, ok := w.Get("alpha")
	require.True(t, ok)
	require.Equal(t, "x", v)

	_, ok = w.Get("missing")
	require.False(t, ok)

	require.Equal(t, []string{"alpha", "zeta"}, w.Keys())
}

func TestContext_WatchWritesToRuntimeWatcher(t *testing.T) {
	rt, topo := newTestRuntime(t)
	m, err := topo.AddModule(nil, "m", echoFactory, Stereotype{})
	require.NoError(t, err)

	ctx := rt.enterContext(m)
	ctx.Watch("result", 42)
	rt.exitContext(ctx)

	v, ok := rt.Watcher().Get("result")
	require.True(t, ok)
	require.Equal(t, 42, v)

	// a call after the context has been torn down is a no-op.
	ctx.Watch("late", "ignored")
	_, ok = rt.Watcher().Get("late")
	require.False(t, ok)
}

func TestRuntime_SnapshotReflectsTopology(t *testing.T) {
	rt, topo := newTestRuntime(t)
	a, err := topo.AddModule(nil, "a", echoFactory, Stereotype{})
	require.NoError(t, err)
	b, err := topo.AddModule(nil, "b", echoFactory, Stereotype{})
	require.NoError(t, err)
	aOut := a.AddGate("out", 1, ServiceOutput)[0]
	bIn := b.AddGate("in", 1, ServiceInput)[0]
	ch := topo.NewChannel("a.out-b.in", 1_000, 0, 0, DropPolicy{})
	require.NoError(t, topo.Connect(aOut, bIn, ch))
	a.state, b.state = ModuleRunning, ModuleRunning

	snap := rt.Snapshot()
	require.Len(t, snap.Modules, 2)

	var aSnap ModuleSnapshot
	for _, m := range snap.Modules {
		if m.Path == "a" {
			aSnap = m
		}
	}
	require.Equal(t, "a", aSnap.Path)
	require.Len(t, aSnap.Gates, 1)
	require.Equal(t, "out", aSnap.Gates[0].Name)
	require.Equal(t, "b.in", aSnap.Gates[0].ConnectedTo)
	require.Equal(t, "a.out-b.in", aSnap.Gates[0].Channel)
}

func TestTopologySnapshot_MarshalJSONProducesValidStructure(t *testing.T) {
	rt, topo := newTestRuntime(t)
	_, err := topo.AddModule(nil, "solo", echoFactory, Stereotype{})
	require.NoError(t, err)

	buf, err := rt.Snapshot().MarshalJSON()
	require.NoError(t, err)
	require.Contains(t, string(buf), `"path":"solo"`)
	require.Contains(t, string(buf), `"modules":[`)
}
