package action_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gyaneshwarpardhi/cardflow/internal/action"
	"github.com/gyaneshwarpardhi/cardflow/internal/graph"
)

func TestBuiltinRegistersEveryKind(t *testing.T) {
	r := action.Builtin()
	names := r.Names()
	assert.Len(t, names, 16)
	for _, name := range names {
		d, ok := r.Lookup(name)
		require.True(t, ok)
		k, ok := action.ParseKind(name)
		require.True(t, ok)
		assert.Equal(t, k, d.Kind)
	}
}

func TestRegisterDuplicatePanics(t *testing.T) {
	r := action.Builtin()
	assert.Panics(t, func() { r.Alias("Add", action.KindAdd) })
}

func TestAliasNormalizesNames(t *testing.T) {
	r := action.Builtin()
	r.Alias("Caf\u00e9Power", action.KindAdd)
	d, ok := r.Lookup("Cafe\u0301Power")
	require.True(t, ok)
	assert.Equal(t, action.KindAdd, d.Kind)
}

func TestDefinePopulatesPorts(t *testing.T) {
	r := action.Builtin()
	g := graph.New(r)

	add, err := g.CreateNode("Add", graph.Position{})
	require.NoError(t, err)
	require.NotNil(t, add.Input(action.PortA))
	assert.Equal(t, graph.TypeInt, add.Output(action.PortResult).Type())
	assert.Equal(t, 0, add.Input(action.PortB).Default())

	branch, err := g.CreateNode("Branch", graph.Position{})
	require.NoError(t, err)
	assert.Equal(t, graph.Control, branch.Output(action.PortTrue).Kind())
	assert.Equal(t, graph.Control, branch.Output(action.PortFalse).Kind())

	_, err = g.CreateNode("Teleport", graph.Position{})
	assert.ErrorIs(t, err, graph.ErrUnknownDefine)
}

func TestLayoutFollowsExtra(t *testing.T) {
	r := action.Builtin()
	s := graph.Serialized{Nodes: []graph.SerializedNode{
		{ID: 1, Define: "Entry", Extra: map[string]interface{}{"vars": []interface{}{"card", "amount"}}},
		{ID: 2, Define: "RaiseEvent", Extra: map[string]interface{}{"event": "Damage", "vars": []string{"amount"}}},
		{ID: 3, Define: "Const", Extra: map[string]interface{}{"type": "int", "value": 4}},
	}}
	g, err := s.Build(r)
	require.NoError(t, err)

	entry := g.Node(1)
	assert.NotNil(t, entry.Output("card"))
	assert.NotNil(t, entry.Output("amount"))

	raise := g.Node(2)
	assert.NotNil(t, raise.Input("amount"))
	assert.NotNil(t, raise.Output("amount"))
	assert.Equal(t, graph.TypeBool, raise.Output(action.PortCancel).Type())

	assert.Equal(t, graph.TypeInt, g.Node(3).Output(action.PortValue).Type())
	assert.NotNil(t, g.Connect(g.Node(3).Output(action.PortValue), raise.Input("amount")))
}

func TestKindClassification(t *testing.T) {
	assert.True(t, action.KindAdd.Pure())
	assert.False(t, action.KindSetProp.Pure())
	assert.True(t, action.KindChoose.Suspends())
	assert.False(t, action.KindRaiseEvent.Suspends())
	assert.Equal(t, "Unknown", action.Kind(99).String())
}
