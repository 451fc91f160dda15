package game

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"

	"github.com/gyaneshwarpardhi/cardflow/internal/effect"
	"github.com/gyaneshwarpardhi/cardflow/internal/event"
	"github.com/gyaneshwarpardhi/cardflow/internal/trigger"
)

// PropChangeEvent is the event kind every property write goes through.
// Its vars are card, prop and value; before triggers may rewrite value or
// cancel the write. The body adds "before" once the write happened.
const PropChangeEvent = "PropChange"

var (
	ErrUnknownCard   = errors.New("unknown card")
	ErrDuplicateCard = errors.New("duplicate card id")
	ErrBadPropChange = errors.New("malformed property change")
)

// Option configures a Game.
type Option func(*Game)

func WithLogger(l *slog.Logger) Option { return func(g *Game) { g.logger = l } }

// WithTriggerOptions passes options to the session's trigger manager.
func WithTriggerOptions(opts ...trigger.Option) Option {
	return func(g *Game) { g.triggerOpts = append(g.triggerOpts, opts...) }
}

// Game is one session: the cards, the event bodies and the trigger
// manager that owns the ledger. It implements effect.Host.
type Game struct {
	triggers    *trigger.Manager
	triggerOpts []trigger.Option
	cards       map[int]*Card
	bodies      map[string]trigger.Body
	enabled     []*effect.Trigger
	logger      *slog.Logger
}

// New creates an empty session.
func New(opts ...Option) *Game {
	g := &Game{
		cards:  make(map[int]*Card),
		bodies: make(map[string]trigger.Body),
	}
	for _, o := range opts {
		o(g)
	}
	if g.logger == nil {
		g.logger = slog.Default()
	}
	g.triggers = trigger.New(append([]trigger.Option{trigger.WithLogger(g.logger)}, g.triggerOpts...)...)
	g.bodies[PropChangeEvent] = g.propChange
	return g
}

func (g *Game) Triggers() *trigger.Manager { return g.triggers }
func (g *Game) Logger() *slog.Logger { return g.logger }

// AddCard puts c into the session.
func (g *Game) AddCard(c *Card) error {
	if _, dup := g.cards[c.ID()]; dup {
		return fmt.Errorf("%w: %d", ErrDuplicateCard, c.ID())
	}
	g.cards[c.ID()] = c
	return nil
}

// Card returns the card with id, nil when absent.
func (g *Game) Card(id int) *Card { return g.cards[id] }

// Cards returns every card ordered by id.
func (g *Game) Cards() []*Card {
	out := make([]*Card, 0, len(g.cards))
	for _, c := range g.cards {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID() < out[j].ID() })
	return out
}

func (g *Game) Prop(card int, name string) (interface{}, bool) {
	c := g.cards[card]
	if c == nil {
		return nil, false
	}
	return c.Prop(name)
}

// SetProp writes a property through a PropChange event.
func (g *Game) SetProp(ctx context.Context, card int, name string, value interface{}) (*event.Event, error) {
	if g.cards[card] == nil {
		return nil, fmt.Errorf("%w: %d", ErrUnknownCard, card)
	}
	ev := event.New(PropChangeEvent, map[string]interface{}{"card": card, "prop": name, "value": value})
	return g.triggers.Do(ctx, ev, g.propChange)
}

func (g *Game) propChange(_ context.Context, ev *event.Event) (trigger.Continuation, error) {
	id, ok := event.VarAs[int](ev, "card")
	if !ok {
		return nil, fmt.Errorf("%w: card is %T", ErrBadPropChange, ev.Var("card"))
	}
	prop, ok := event.VarAs[string](ev, "prop")
	if !ok || prop == "" {
		return nil, fmt.Errorf("%w: prop is %v", ErrBadPropChange, ev.Var("prop"))
	}
	c := g.cards[id]
	if c == nil {
		return nil, fmt.Errorf("%w: %d", ErrUnknownCard, id)
	}
	value := ev.Var("value")
	before, had := c.props[prop]
	c.props[prop] = value
	g.triggers.AddChange(NewPropChange(c, prop, before, had, value))
	ev.SetVar("before", before)
	return nil, nil
}

// DefineEvent gives events of kind a body. Kinds without one still run
// their triggers.
func (g *Game) DefineEvent(kind string, body trigger.Body) { g.bodies[kind] = body }

// DefineGraphEvent gives events of d.Kind a graph body.
func (g *Game) DefineGraphEvent(d *effect.EventDefine) error {
	if err := d.Validate(); err != nil {
		return err
	}
	g.bodies[d.Kind] = d.Body(g)
	return nil
}

// EventBody returns the body of kind, nil when it has none.
func (g *Game) EventBody(kind string) trigger.Body { return g.bodies[kind] }

// Raise runs a new event of kind with vars.
func (g *Game) Raise(ctx context.Context, kind string, vars map[string]interface{}) (*event.Event, error) {
	return g.triggers.Do(ctx, event.New(kind, vars), g.bodies[kind])
}

// Resume hands input to the suspended event.
func (g *Game) Resume(ctx context.Context, input interface{}) error {
	return g.triggers.Resume(ctx, input)
}

// Enable binds eff to card owner, subscribes it and runs its enable
// action. A failing action leaves the effect disabled.
func (g *Game) Enable(ctx context.Context, eff *effect.Effect, owner int) (*effect.Trigger, error) {
	if g.cards[owner] == nil {
		return nil, fmt.Errorf("effect %s: %w: %d", eff.Name, ErrUnknownCard, owner)
	}
	t, err := effect.Bind(eff, owner, g)
	if err != nil {
		return nil, err
	}
	t.Register(g.triggers)
	if err := t.OnEnable(ctx); err != nil {
		t.Unregister(g.triggers)
		return nil, err
	}
	g.enabled = append(g.enabled, t)
	g.logger.Debug("effect enabled", "effect", eff.Name, "owner", owner)
	return t, nil
}

// Disable runs t's disable action and unsubscribes it. t is unsubscribed
// even when the action fails.
func (g *Game) Disable(ctx context.Context, t *effect.Trigger) error {
	err := t.OnDisable(ctx)
	t.Unregister(g.triggers)
	for i, e := range g.enabled {
		if e == t {
			g.enabled = append(g.enabled[:i], g.enabled[i+1:]...)
			break
		}
	}
	g.logger.Debug("effect disabled", "effect", t.Effect().Name, "owner", t.Owner(), "error", err)
	return err
}

// Enabled lists the bound effects in enable order.
func (g *Game) Enabled() []*effect.Trigger {
	return append([]*effect.Trigger(nil), g.enabled...)
}

// Close shuts the trigger manager down.
func (g *Game) Close() error { return g.triggers.Close() }
