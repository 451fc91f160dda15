package game

import (
	"sort"
	"strconv"

	"github.com/gyaneshwarpardhi/cardflow/internal/history"
)

// KindPropChange is the change kind recorded for card property writes.
const KindPropChange = "PropChange"

// Card is a minimal property container. Property writes during play go
// through Game.SetProp so they land in the ledger.
type Card struct {
	id    int
	name  string
	props map[string]interface{}
}

// NewCard creates a card; props is copied.
func NewCard(id int, name string, props map[string]interface{}) *Card {
	c := &Card{id: id, name: name, props: make(map[string]interface{}, len(props))}
	for k, v := range props {
		c.props[k] = v
	}
	return c
}

func (c *Card) ID() int { return c.id }
func (c *Card) Name() string { return c.name }

func (c *Card) ChangeKey() string { return "card:" + strconv.Itoa(c.id) }

func (c *Card) Prop(name string) (interface{}, bool) {
	v, ok := c.props[name]
	return v, ok
}

// Props returns a copy of every property.
func (c *Card) Props() map[string]interface{} {
	out := make(map[string]interface{}, len(c.props))
	for k, v := range c.props {
		out[k] = v
	}
	return out
}

// PropNames returns the property names sorted.
func (c *Card) PropNames() []string {
	names := make([]string, 0, len(c.props))
	for k := range c.props {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}

// NewPropChange describes setting prop on c from before to after. had
// reports whether the property existed; reverting then deletes it.
func NewPropChange(c *Card, prop string, before interface{}, had bool, after interface{}) history.Change {
	return history.New(c, KindPropChange,
		func(x *Card) { x.props[prop] = after },
		func(x *Card) {
			if had {
				x.props[prop] = before
			} else {
				delete(x.props, prop)
			}
		},
		map[string]interface{}{"card": c.id, "prop": prop, "before": before, "after": after},
	)
}
