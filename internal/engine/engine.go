package engine

import (
	"encoding/hex"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"lukechampine.com/blake3"

	"github.com/gyaneshwarpardhi/cardflow/internal/action"
	"github.com/gyaneshwarpardhi/cardflow/internal/config"
	"github.com/gyaneshwarpardhi/cardflow/internal/effect"
	"github.com/gyaneshwarpardhi/cardflow/internal/event"
	"github.com/gyaneshwarpardhi/cardflow/internal/graph"
	"github.com/gyaneshwarpardhi/cardflow/internal/store"
)

// Option configures an Engine.
type Option func(*Engine)

func WithLogger(l *slog.Logger) Option { return func(e *Engine) { e.logger = l } }

// WithStore persists every played session.
func WithStore(s *store.Store) Option { return func(e *Engine) { e.store = s } }

// WithIDs sets the event id generator factory; each session gets its own
// generator. Defaults to UUIDv7 ids.
func WithIDs(fn func() event.IDGenerator) Option { return func(e *Engine) { e.ids = fn } }

// WithDeckName sets the deck name stored with sessions.
func WithDeckName(name string) Option { return func(e *Engine) { e.deckName = name } }

type compiledCard struct {
	def     config.CardDef
	effects []*effect.Effect
}

// Engine is a compiled deck. Graphs and effects are read-only once
// compiled, so any number of sessions may run from one Engine at once.
type Engine struct {
	deck     *config.Deck
	deckName string
	defs     *action.Registry
	events   []*effect.EventDefine
	cards    []compiledCard
	digests  map[string]string
	store    *store.Store
	ids      func() event.IDGenerator
	logger   *slog.Logger
}

// New compiles deck: define aliases are registered, every graph is built
// through the registry and every effect is validated.
func New(deck *config.Deck, opts ...Option) (*Engine, error) {
	e := &Engine{
		deck:    deck,
		defs:    action.Builtin(),
		digests: make(map[string]string),
	}
	for _, o := range opts {
		o(e)
	}
	if e.logger == nil {
		e.logger = slog.Default()
	}
	if e.ids == nil {
		e.ids = func() event.IDGenerator { return event.UUIDv7Generator{} }
	}

	aliases := make([]string, 0, len(deck.Defines))
	for alias := range deck.Defines {
		aliases = append(aliases, alias)
	}
	sort.Strings(aliases)
	for _, alias := range aliases {
		kind, ok := action.ParseKind(deck.Defines[alias])
		if !ok {
			return nil, fmt.Errorf("define %s: unknown kind %q", alias, deck.Defines[alias])
		}
		if _, exists := e.defs.Lookup(alias); exists {
			return nil, fmt.Errorf("define %s: name already registered", alias)
		}
		e.defs.Alias(alias, kind)
	}

	for _, ev := range deck.Events {
		g, err := e.build("event "+ev.Kind, ev.Graph)
		if err != nil {
			return nil, err
		}
		d := &effect.EventDefine{Kind: ev.Kind, Graph: g, Entry: ev.Entry, Defs: e.defs, MaxSteps: deck.Engine.MaxFlowSteps}
		if err := d.Validate(); err != nil {
			return nil, err
		}
		e.events = append(e.events, d)
	}

	for _, c := range deck.Cards {
		cc := compiledCard{def: c}
		for _, ed := range c.Effects {
			g, err := e.build(fmt.Sprintf("card %d effect %s", c.ID, ed.Name), ed.Graph)
			if err != nil {
				return nil, err
			}
			eff := &effect.Effect{
				Name:           ed.Name,
				On:             ed.On,
				Priority:       ed.Priority,
				PriorityPort:   ed.PriorityPort,
				Condition:      ed.Condition,
				ConditionEntry: ed.ConditionEntry,
				Graph:          g,
				Entry:          ed.Entry,
				Defs:           e.defs,
				MaxSteps:       deck.Engine.MaxFlowSteps,
				Times:          ed.Times,
				EnableEntry:    ed.OnEnable,
				DisableEntry:   ed.OnDisable,
			}
			if err := eff.Validate(); err != nil {
				return nil, fmt.Errorf("card %d: %w", c.ID, err)
			}
			cc.effects = append(cc.effects, eff)
		}
		e.cards = append(e.cards, cc)
	}
	e.logger.Debug("deck compiled", "events", len(e.events), "cards", len(e.cards), "graphs", len(e.digests))
	return e, nil
}

func (e *Engine) build(name string, s graph.Serialized) (*graph.Graph, error) {
	g, err := s.Build(e.defs)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", name, err)
	}
	d, err := graph.Digest(s)
	if err != nil {
		return nil, fmt.Errorf("%s digest: %w", name, err)
	}
	e.digests[name] = d
	return g, nil
}

// Deck returns the compiled deck.
func (e *Engine) Deck() *config.Deck { return e.deck }

// Definitions returns the node registry, define aliases included.
func (e *Engine) Definitions() *action.Registry { return e.defs }

// GraphDigests maps each graph ("event Damage", "card 1 effect empower")
// to its digest.
func (e *Engine) GraphDigests() map[string]string {
	out := make(map[string]string, len(e.digests))
	for k, v := range e.digests {
		out[k] = v
	}
	return out
}

// Digest identifies the deck's graphs as a whole.
func (e *Engine) Digest() string {
	names := make([]string, 0, len(e.digests))
	for k := range e.digests {
		names = append(names, k)
	}
	sort.Strings(names)
	var b strings.Builder
	for _, k := range names {
		b.WriteString(k)
		b.WriteByte('=')
		b.WriteString(e.digests[k])
		b.WriteByte('\n')
	}
	sum := blake3.Sum256([]byte(b.String()))
	return hex.EncodeToString(sum[:])
}
