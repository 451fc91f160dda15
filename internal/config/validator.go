package config

import (
	"fmt"
	"strings"

	"github.com/gyaneshwarpardhi/cardflow/internal/action"
	"github.com/gyaneshwarpardhi/cardflow/internal/condition"
	"github.com/gyaneshwarpardhi/cardflow/internal/graph"
	"github.com/gyaneshwarpardhi/cardflow/internal/trigger"
)

// Validate checks the deck for:
//   - Required fields and known define aliases
//   - Duplicate card ids, effect names per card and event kinds
//   - Graph structure (node ids, connection endpoints, entry and action
//     nodes, the priority port node)
//   - Condition syntax and trigger phases
//   - Script steps with exactly one action and resolvable revert labels
//
// Define names are checked when the deck is compiled into a session.
func Validate(cfg *Deck) error {
	if cfg.Version == "" {
		return fmt.Errorf("config: version is required")
	}
	var errs []string
	addf := func(format string, args ...interface{}) { errs = append(errs, fmt.Sprintf(format, args...)) }

	if cfg.Engine.MaxFlowSteps < 0 {
		addf("engine: max_flow_steps must not be negative")
	}
	if cfg.Engine.Workers < 0 {
		addf("engine: workers must not be negative")
	}
	for alias, kind := range cfg.Defines {
		if _, ok := action.ParseKind(kind); !ok {
			addf("defines.%s: unknown kind %q", alias, kind)
		}
	}

	kinds := make(map[string]bool)
	for i, ev := range cfg.Events {
		if ev.Kind == "" {
			addf("events[%d]: kind is required", i)
			continue
		}
		if kinds[ev.Kind] {
			addf("duplicate event kind %q", ev.Kind)
		}
		kinds[ev.Kind] = true
		validateGraph(ev.Graph, fmt.Sprintf("event %s", ev.Kind), &errs, ev.Entry)
	}

	cards := make(map[int]bool)
	for i, c := range cfg.Cards {
		if c.ID <= 0 {
			addf("cards[%d]: id must be positive", i)
			continue
		}
		if cards[c.ID] {
			addf("duplicate card id %d", c.ID)
		}
		cards[c.ID] = true
		names := make(map[string]bool)
		for j, e := range c.Effects {
			loc := fmt.Sprintf("card %d effect %s", c.ID, e.Name)
			if e.Name == "" {
				addf("card %d effects[%d]: name is required", c.ID, j)
				loc = fmt.Sprintf("card %d effects[%d]", c.ID, j)
			} else if names[e.Name] {
				addf("card %d: duplicate effect %q", c.ID, e.Name)
			}
			names[e.Name] = true
			if len(e.On) == 0 {
				addf("%s: on must not be empty", loc)
			}
			for _, t := range e.On {
				if t.Kind == "" {
					addf("%s: trigger kind is required", loc)
				}
				if t.Phase != trigger.Before && t.Phase != trigger.After {
					addf("%s: phase %q must be before or after", loc, t.Phase)
				}
			}
			if e.Times < 0 {
				addf("%s: times must not be negative", loc)
			}
			if e.Condition != "" {
				if _, err := condition.Parse(e.Condition); err != nil {
					addf("%s: condition: %v", loc, err)
				}
			}
			entries := []int{e.Entry}
			for _, id := range []int{e.ConditionEntry, e.OnEnable, e.OnDisable} {
				if id != 0 {
					entries = append(entries, id)
				}
			}
			validateGraph(e.Graph, loc, &errs, entries...)
			if p := e.PriorityPort; p.Node != 0 || p.Port != "" {
				if p.Port == "" || !hasNode(e.Graph, p.Node) {
					addf("%s: priority_port %s not in graph", loc, p)
				}
			}
		}
	}

	labels := make(map[string]bool)
	for i, s := range cfg.Script {
		loc := fmt.Sprintf("script[%d]", i)
		switch s.actions() {
		case 1:
		case 0:
			addf("%s: one of raise/set_prop/resume/revert_to must be set", loc)
		default:
			addf("%s: only one of raise/set_prop/resume/revert_to may be set", loc)
		}
		if s.SetProp != nil {
			if !cards[s.SetProp.Card] {
				addf("%s: set_prop: unknown card %d", loc, s.SetProp.Card)
			}
			if s.SetProp.Prop == "" {
				addf("%s: set_prop: prop is required", loc)
			}
		}
		if s.RevertTo != "" && !labels[s.RevertTo] {
			addf("%s: revert_to %q does not name an earlier step", loc, s.RevertTo)
		}
		for _, x := range s.Expect {
			if !cards[x.Card] {
				addf("%s: expect: unknown card %d", loc, x.Card)
			}
		}
		if s.Label != "" {
			if labels[s.Label] {
				addf("%s: duplicate label %q", loc, s.Label)
			}
			labels[s.Label] = true
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation errors:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}

func hasNode(s graph.Serialized, id int) bool {
	for _, n := range s.Nodes {
		if n.ID == id {
			return true
		}
	}
	return false
}

func validateGraph(s graph.Serialized, parent string, errs *[]string, entries ...int) {
	ids := make(map[int]bool)
	for j, n := range s.Nodes {
		switch {
		case n.ID <= 0:
			*errs = append(*errs, fmt.Sprintf("%s.graph.nodes[%d]: id must be positive", parent, j))
		case ids[n.ID]:
			*errs = append(*errs, fmt.Sprintf("%s.graph: duplicate node id %d", parent, n.ID))
		}
		if n.Define == "" {
			*errs = append(*errs, fmt.Sprintf("%s.graph.nodes[%d]: define is required", parent, j))
		}
		ids[n.ID] = true
	}
	for j, c := range s.Connections {
		if !ids[c.SourceNode] || !ids[c.DestNode] {
			*errs = append(*errs, fmt.Sprintf("%s.graph.connections[%d]: %d -> %d references a missing node", parent, j, c.SourceNode, c.DestNode))
		}
		if c.SourcePort == "" || c.DestPort == "" {
			*errs = append(*errs, fmt.Sprintf("%s.graph.connections[%d]: ports are required", parent, j))
		}
	}
	for _, e := range entries {
		if !ids[e] {
			*errs = append(*errs, fmt.Sprintf("%s: entry node %d not in graph", parent, e))
		}
	}
}
