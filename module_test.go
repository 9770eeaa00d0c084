package desim

import (
	"testing"

	"github.com/stretchr/testify/require"
)

type noopHandler struct{ BaseHandler }

func (*noopHandler) HandleMessage(*Context, *Message) {}

func echoFactory() Handler { return &noopHandler{} }

func TestModule_ChildrenCreationOrder(t *testing.T) {
	root := newModule("root", nil, echoFactory, Stereotype{})
	names := []string{"c", "a", "b", "z", "m"}
	for _, n := range names {
		root.addChild(newModule(n, root, echoFactory, Stereotype{}))
	}
	var got []string
	for _, c := range root.Children() {
		got = append(got, c.Name)
	}
	require.Equal(t, names, got)
}

func TestModule_DetachRemovesFromChildOrder(t *testing.T) {
	root := newModule("root", nil, echoFactory, Stereotype{})
	a := newModule("a", root, echoFactory, Stereotype{})
	b := newModule("b", root, echoFactory, Stereotype{})
	root.addChild(a)
	root.addChild(b)

	a.detach()
	var got []string
	for _, c := range root.Children() {
		got = append(got, c.Name)
	}
	require.Equal(t, []string{"b"}, got)
	_, ok := root.Child("a")
	require.False(t, ok)
}

func TestModule_Path(t *testing.T) {
	root := newModule("root", nil, echoFactory, Stereotype{})
	child := newModule("leaf", root, echoFactory, Stereotype{})
	require.Equal(t, "root", root.Path())
	require.Equal(t, "root.leaf", child.Path())
}

func TestModule_Restart_ResetsLifecycleAndMeta(t *testing.T) {
	m := newModule("m", nil, echoFactory, Stereotype{})
	m.state = ModuleRunning
	m.startStage = 2
	m.Meta["k"] = "v"
	oldHandler := m.handler

	m.restart()

	require.Equal(t, ModuleCreated, m.state)
	require.Equal(t, 0, m.startStage)
	require.Empty(t, m.Meta)
	require.NotSame(t, oldHandler, m.handler)
}

func TestModule_AddressableOnlyWhenRunning(t *testing.T) {
	m := newModule("m", nil, echoFactory, Stereotype{})
	require.False(t, m.Addressable())
	m.state = ModuleRunning
	require.True(t, m.Addressable())
	m.state = ModuleEnding
	require.False(t, m.Addressable())
}

func TestModule_GateClustering(t *testing.T) {
	m := newModule("m", nil, echoFactory, Stereotype{})
	gates := m.AddGate("eth", 3, ServiceUndirected)
	require.Len(t, gates, 3)
	for i, g := range gates {
		require.Equal(t, i, g.Index)
		require.Equal(t, 3, g.ClusterSize)
	}
	g, ok := m.GateAt("eth", 1)
	require.True(t, ok)
	require.Same(t, gates[1], g)
	_, ok = m.GateAt("eth", 3)
	require.False(t, ok)
}

func TestModuleRegistry_LookupAndScavenge(t *testing.T) {
	reg := newModuleRegistry()
	m := newModule("m", nil, echoFactory, Stereotype{})
	reg.register(m)

	got, ok := reg.Lookup(m.ID)
	require.True(t, ok)
	require.Same(t, m, got)

	m.state = ModuleDead
	reg.Scavenge(10)
	_, ok = reg.data[m.ID]
	require.False(t, ok)
}
