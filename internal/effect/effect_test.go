package effect_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gyaneshwarpardhi/cardflow/internal/action"
	"github.com/gyaneshwarpardhi/cardflow/internal/effect"
	"github.com/gyaneshwarpardhi/cardflow/internal/event"
	"github.com/gyaneshwarpardhi/cardflow/internal/flow"
	"github.com/gyaneshwarpardhi/cardflow/internal/game"
	"github.com/gyaneshwarpardhi/cardflow/internal/graph"
	"github.com/gyaneshwarpardhi/cardflow/internal/trigger"
)

type extra = map[string]interface{}

func conn(srcNode int, srcPort string, dstNode int, dstPort string) graph.SerializedConnection {
	return graph.SerializedConnection{SourceNode: srcNode, SourcePort: srcPort, DestNode: dstNode, DestPort: dstPort}
}

func build(t *testing.T, nodes []graph.SerializedNode, conns ...graph.SerializedConnection) *graph.Graph {
	t.Helper()
	g, err := graph.Serialized{Nodes: nodes, Connections: conns}.Build(action.Builtin())
	require.NoError(t, err)
	return g
}

func TestEnvResolve(t *testing.T) {
	g := game.New()
	require.NoError(t, g.AddCard(game.NewCard(7, "Golem", extra{"power": 4})))
	ev := event.New("Attack", extra{"amount": 3, "target": extra{"id": 2}})
	ev.SetRepeatTime(1)
	env := effect.NewEnv(g, ev, 7)

	cases := []struct {
		path []string
		want interface{}
		ok   bool
	}{
		{[]string{"event", "kind"}, "Attack", true},
		{[]string{"event", "repeat"}, 1, true},
		{[]string{"event", "canceled"}, false, true},
		{[]string{"vars", "amount"}, 3, true},
		{[]string{"vars", "target", "id"}, 2, true},
		{[]string{"amount"}, 3, true},
		{[]string{"self", "id"}, 7, true},
		{[]string{"self", "power"}, 4, true},
		{[]string{"self", "armor"}, nil, false},
		{[]string{"event", "nope"}, nil, false},
		{[]string{"missing"}, nil, false},
	}
	for _, tc := range cases {
		got, ok := env.Resolve(tc.path)
		assert.Equal(t, tc.ok, ok, "%v", tc.path)
		assert.Equal(t, tc.want, got, "%v", tc.path)
	}
	assert.Same(t, ev, env.Event())
	assert.Equal(t, 7, env.Self())
}

func TestValidate(t *testing.T) {
	g := build(t, []graph.SerializedNode{{ID: 1, Define: "Entry"}})
	cases := []struct {
		name string
		eff  effect.Effect
		err  error
	}{
		{"no graph", effect.Effect{Name: "a", Entry: 1}, effect.ErrNoGraph},
		{"bad entry", effect.Effect{Name: "b", Graph: g, Entry: 2}, effect.ErrNoEntry},
		{"bad condition entry", effect.Effect{Name: "c", Graph: g, Entry: 1, ConditionEntry: 5}, effect.ErrNoEntry},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.ErrorIs(t, tc.eff.Validate(), tc.err)
		})
	}

	bad := effect.Effect{Name: "d", Graph: g, Entry: 1, Condition: "amount >"}
	assert.Error(t, bad.Validate())
	ok := effect.Effect{Name: "e", Graph: g, Entry: 1, Condition: "amount > 2"}
	assert.NoError(t, ok.Validate())
}

// Nodes 1-2 are the effect (Entry -> SetVar hit = true); nodes 10-13 are a
// condition flow returning amount >= 3.
func conditionalGraph(t *testing.T) *graph.Graph {
	return build(t,
		[]graph.SerializedNode{
			{ID: 1, Define: "Entry"},
			{ID: 2, Define: "SetVar", Extra: extra{"name": "hit", "defaults": extra{"value": true}}},
			{ID: 10, Define: "Entry"},
			{ID: 11, Define: "Return", Extra: extra{"vars": []string{"result"}}},
			{ID: 12, Define: "GetVar", Extra: extra{"name": "amount"}},
			{ID: 13, Define: "Compare", Extra: extra{"op": ">=", "defaults": extra{"b": 3}}},
		},
		conn(1, "out", 2, "in"),
		conn(10, "out", 11, "in"),
		conn(12, "value", 13, "a"),
		conn(13, "result", 11, "result"),
	)
}

func TestConditionFlowDecidesFiring(t *testing.T) {
	ctx := context.Background()
	g := game.New()
	require.NoError(t, g.AddCard(game.NewCard(1, "Guard", nil)))
	tr, err := g.Enable(ctx, &effect.Effect{
		Name:           "retaliate",
		On:             []trigger.Time{trigger.AfterOf("Attack")},
		Graph:          conditionalGraph(t),
		Entry:          1,
		ConditionEntry: 10,
		Defs:           action.Builtin(),
	}, 1)
	require.NoError(t, err)

	weak, err := g.Raise(ctx, "Attack", extra{"amount": 1})
	require.NoError(t, err)
	assert.Nil(t, weak.Var("hit"))

	strong, err := g.Raise(ctx, "Attack", extra{"amount": 4})
	require.NoError(t, err)
	assert.Equal(t, true, strong.Var("hit"))
	assert.Equal(t, 1, tr.Fired())
	assert.Equal(t, "retaliate@1", tr.String())
}

func TestConditionFlowMayNotSuspend(t *testing.T) {
	ctx := context.Background()
	g := game.New()
	require.NoError(t, g.AddCard(game.NewCard(1, "Guard", nil)))
	gr := build(t,
		[]graph.SerializedNode{
			{ID: 1, Define: "Entry"},
			{ID: 10, Define: "Entry"},
			{ID: 11, Define: "Choose"},
		},
		conn(10, "out", 11, "in"),
	)
	_, err := g.Enable(ctx, &effect.Effect{
		Name:           "indecisive",
		On:             []trigger.Time{trigger.BeforeOf("Attack")},
		Graph:          gr,
		Entry:          1,
		ConditionEntry: 10,
		Defs:           action.Builtin(),
	}, 1)
	require.NoError(t, err)

	ev, err := g.Raise(ctx, "Attack", nil)
	require.Error(t, err)
	assert.True(t, flow.IsSuspendForbidden(err))
	assert.False(t, ev.Completed())
	assert.False(t, g.Triggers().Suspended())
}

func TestConditionFlowMustReturnBool(t *testing.T) {
	ctx := context.Background()
	g := game.New()
	require.NoError(t, g.AddCard(game.NewCard(1, "Guard", nil)))
	gr := build(t,
		[]graph.SerializedNode{
			{ID: 1, Define: "Entry"},
			{ID: 10, Define: "Entry"},
			{ID: 11, Define: "Return", Extra: extra{"vars": []string{"result"}, "defaults": extra{"result": "yes"}}},
		},
		conn(10, "out", 11, "in"),
	)
	_, err := g.Enable(ctx, &effect.Effect{
		Name: "vague", On: []trigger.Time{trigger.BeforeOf("Attack")},
		Graph: gr, Entry: 1, ConditionEntry: 10, Defs: action.Builtin(),
	}, 1)
	require.NoError(t, err)

	_, err = g.Raise(ctx, "Attack", nil)
	assert.ErrorIs(t, err, effect.ErrNotCondition)
}

func TestStepQuotaApplies(t *testing.T) {
	ctx := context.Background()
	g := game.New()
	require.NoError(t, g.AddCard(game.NewCard(1, "Looper", nil)))
	gr := build(t,
		[]graph.SerializedNode{{ID: 1, Define: "Entry"}, {ID: 2, Define: "Log"}, {ID: 3, Define: "Log"}},
		conn(1, "out", 2, "in"),
		conn(2, "out", 3, "in"),
		conn(3, "out", 2, "in"),
	)
	_, err := g.Enable(ctx, &effect.Effect{
		Name: "spin", On: []trigger.Time{trigger.AfterOf("Tick")},
		Graph: gr, Entry: 1, Defs: action.Builtin(), MaxSteps: 10,
	}, 1)
	require.NoError(t, err)

	_, err = g.Raise(ctx, "Tick", nil)
	assert.ErrorIs(t, err, flow.ErrStepQuota)
	assert.True(t, flow.IsNodeError(err))
}

// Nodes 20-21 and 30-31 are enable and disable actions writing "state" on
// card 1.
func lifecycleGraph(t *testing.T) *graph.Graph {
	return build(t,
		[]graph.SerializedNode{
			{ID: 1, Define: "Entry"},
			{ID: 20, Define: "Entry"},
			{ID: 21, Define: "SetProp", Extra: extra{"prop": "state", "defaults": extra{"target": 1, "value": "armed"}}},
			{ID: 30, Define: "Entry"},
			{ID: 31, Define: "SetProp", Extra: extra{"prop": "state", "defaults": extra{"target": 1, "value": "spent"}}},
			{ID: 40, Define: "Entry"},
			{ID: 41, Define: "Choose"},
		},
		conn(20, "out", 21, "in"),
		conn(30, "out", 31, "in"),
		conn(40, "out", 41, "in"),
	)
}

func TestEnableAndDisableActionsRun(t *testing.T) {
	ctx := context.Background()
	g := game.New()
	require.NoError(t, g.AddCard(game.NewCard(1, "Trap", nil)))
	var changes []string
	g.Triggers().OnAfter(func(ev *event.Event) {
		if ev.Kind() == game.PropChangeEvent {
			changes = append(changes, ev.Var("value").(string))
		}
	})

	tr, err := g.Enable(ctx, &effect.Effect{
		Name: "trap", On: []trigger.Time{trigger.AfterOf("Attack")},
		Graph: lifecycleGraph(t), Entry: 1, EnableEntry: 20, DisableEntry: 30,
		Defs: action.Builtin(),
	}, 1)
	require.NoError(t, err)
	v, _ := g.Prop(1, "state")
	assert.Equal(t, "armed", v)
	assert.Len(t, g.Enabled(), 1)

	require.NoError(t, g.Disable(ctx, tr))
	v, _ = g.Prop(1, "state")
	assert.Equal(t, "spent", v)
	assert.Empty(t, g.Enabled())
	assert.Equal(t, []string{"armed", "spent"}, changes)
}

func TestFailedEnableLeavesEffectDisabled(t *testing.T) {
	ctx := context.Background()
	g := game.New()
	require.NoError(t, g.AddCard(game.NewCard(1, "Trap", nil)))

	tr, err := g.Enable(ctx, &effect.Effect{
		Name: "hesitant", On: []trigger.Time{trigger.AfterOf("Attack")},
		Graph: lifecycleGraph(t), Entry: 1, EnableEntry: 40,
		Defs: action.Builtin(),
	}, 1)
	require.Error(t, err)
	assert.True(t, flow.IsSuspendForbidden(err))
	assert.Nil(t, tr)
	assert.Empty(t, g.Enabled())

	ev, err := g.Raise(ctx, "Attack", nil)
	require.NoError(t, err)
	assert.True(t, ev.Completed())
	assert.False(t, g.Triggers().Suspended())
}

// rankedGraph sets card 3's "last" to mark, and exposes the owner's "rank"
// on node 6's message input.
func rankedGraph(t *testing.T, mark string) *graph.Graph {
	return build(t,
		[]graph.SerializedNode{
			{ID: 1, Define: "Entry"},
			{ID: 2, Define: "SetProp", Extra: extra{"prop": "last", "defaults": extra{"target": 3, "value": mark}}},
			{ID: 5, Define: "GetProp", Extra: extra{"prop": "rank"}},
			{ID: 6, Define: "Log"},
		},
		conn(1, "out", 2, "in"),
		conn(5, "value", 6, "message"),
	)
}

func TestPriorityPortOrdersTriggers(t *testing.T) {
	ctx := context.Background()
	g := game.New()
	require.NoError(t, g.AddCard(game.NewCard(1, "Fixed", nil)))
	require.NoError(t, g.AddCard(game.NewCard(2, "Ranked", extra{"rank": 20})))
	require.NoError(t, g.AddCard(game.NewCard(3, "Board", nil)))
	tick := []trigger.Time{trigger.AfterOf("Tick")}

	_, err := g.Enable(ctx, &effect.Effect{
		Name: "fixed", On: tick, Priority: 10,
		Graph: rankedGraph(t, "fixed"), Entry: 1, Defs: action.Builtin(),
	}, 1)
	require.NoError(t, err)
	ranked, err := g.Enable(ctx, &effect.Effect{
		Name: "ranked", On: tick, PriorityPort: graph.PortRef{Node: 6, Port: "message"},
		Graph: rankedGraph(t, "ranked"), Entry: 1, Defs: action.Builtin(),
	}, 2)
	require.NoError(t, err)
	assert.Equal(t, 20, ranked.Priority())

	// Higher priority runs first, so the lower one writes last.
	_, err = g.Raise(ctx, "Tick", nil)
	require.NoError(t, err)
	v, _ := g.Prop(3, "last")
	assert.Equal(t, "fixed", v)

	_, err = g.SetProp(ctx, 2, "rank", 1)
	require.NoError(t, err)
	assert.Equal(t, 1, ranked.Priority())
	_, err = g.Raise(ctx, "Tick", nil)
	require.NoError(t, err)
	v, _ = g.Prop(3, "last")
	assert.Equal(t, "ranked", v)

	_, err = g.SetProp(ctx, 2, "rank", "high")
	require.NoError(t, err)
	assert.Equal(t, 0, ranked.Priority())
}

func TestValidateActionsAndPriorityPort(t *testing.T) {
	g := rankedGraph(t, "x")
	cases := []struct {
		name string
		eff  effect.Effect
		err  error
	}{
		{"bad enable entry", effect.Effect{Name: "a", Graph: g, Entry: 1, EnableEntry: 9}, effect.ErrNoEntry},
		{"bad disable entry", effect.Effect{Name: "b", Graph: g, Entry: 1, DisableEntry: 9}, effect.ErrNoEntry},
		{"unknown priority node", effect.Effect{Name: "c", Graph: g, Entry: 1, PriorityPort: graph.PortRef{Node: 9, Port: "message"}}, graph.ErrUnknownPort},
		{"unknown priority input", effect.Effect{Name: "d", Graph: g, Entry: 1, PriorityPort: graph.PortRef{Node: 6, Port: "nope"}}, graph.ErrUnknownPort},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.ErrorIs(t, tc.eff.Validate(), tc.err)
		})
	}
	ok := effect.Effect{Name: "e", Graph: g, Entry: 1, PriorityPort: graph.PortRef{Node: 6, Port: "message"}}
	assert.NoError(t, ok.Validate())
}

func TestConditionOnMissingFieldIsUnmet(t *testing.T) {
	ctx := context.Background()
	g := game.New()
	require.NoError(t, g.AddCard(game.NewCard(1, "Hero", extra{"power": 2})))
	require.NoError(t, g.AddCard(game.NewCard(2, "Wall", nil)))
	tr, err := g.Enable(ctx, &effect.Effect{
		Name: "brace", On: []trigger.Time{trigger.BeforeOf(game.PropChangeEvent)},
		Condition: "self.armor > 0",
		Graph:     build(t, []graph.SerializedNode{{ID: 1, Define: "Entry"}, {ID: 2, Define: "Cancel"}}, conn(1, "out", 2, "in")),
		Entry:     1, Defs: action.Builtin(),
	}, 2)
	require.NoError(t, err)

	ev, err := g.SetProp(ctx, 1, "power", 7)
	require.NoError(t, err)
	assert.True(t, ev.Completed())
	v, _ := g.Prop(1, "power")
	assert.Equal(t, 7, v)
	assert.Equal(t, 0, tr.Fired())
}
