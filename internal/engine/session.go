package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/gyaneshwarpardhi/cardflow/internal/condition"
	"github.com/gyaneshwarpardhi/cardflow/internal/config"
	"github.com/gyaneshwarpardhi/cardflow/internal/event"
	"github.com/gyaneshwarpardhi/cardflow/internal/game"
	"github.com/gyaneshwarpardhi/cardflow/internal/store"
	"github.com/gyaneshwarpardhi/cardflow/internal/trigger"
)

// Session statuses reported after play.
const (
	StatusCompleted = "completed"
	StatusSuspended = "suspended"
	StatusFailed    = "failed"
)

// StepResult is the outcome of one scripted step.
type StepResult struct {
	Step       int      `json:"step"`
	Label      string   `json:"label,omitempty"`
	Action     string   `json:"action"`
	EventID    string   `json:"event_id,omitempty"`
	Kind       string   `json:"kind,omitempty"`
	State      string   `json:"state,omitempty"`
	Reverted   int      `json:"reverted,omitempty"`
	Error      string   `json:"error,omitempty"`
	Mismatches []string `json:"mismatches,omitempty"`
}

// Report summarizes a played session.
type Report struct {
	Session    string                         `json:"session"`
	Digest     string                         `json:"digest"`
	Status     string                         `json:"status"`
	Steps      []StepResult                   `json:"steps"`
	Events     int                            `json:"events"`
	Changes    int                            `json:"changes"`
	Cards      map[int]map[string]interface{} `json:"cards"`
	DurationMs int64                          `json:"duration_ms"`
	Error      string                         `json:"error,omitempty"`
}

// Failed reports whether any step errored or missed an expectation.
func (r *Report) Failed() bool { return r.Status == StatusFailed }

// Session is one game played from the engine's deck.
type Session struct {
	id     string
	engine *Engine
	game   *game.Game
	labels map[string]int64
}

// NewSession sets up a fresh game: cards, event bodies and enabled effects.
// Enable actions run under ctx.
func (e *Engine) NewSession(ctx context.Context, id string) (*Session, error) {
	g := game.New(
		game.WithLogger(e.logger.With("session", id)),
		game.WithTriggerOptions(trigger.WithIDGenerator(e.ids())),
	)
	for _, d := range e.events {
		if err := g.DefineGraphEvent(d); err != nil {
			return nil, err
		}
	}
	for _, c := range e.cards {
		if err := g.AddCard(game.NewCard(c.def.ID, c.def.Name, c.def.Props)); err != nil {
			return nil, err
		}
	}
	for _, c := range e.cards {
		for _, eff := range c.effects {
			if _, err := g.Enable(ctx, eff, c.def.ID); err != nil {
				g.Close()
				return nil, err
			}
		}
	}
	return &Session{id: id, engine: e, game: g, labels: make(map[string]int64)}, nil
}

func (s *Session) ID() string { return s.id }
func (s *Session) Game() *game.Game { return s.game }

// Close releases the session's trigger manager.
func (s *Session) Close() error { return s.game.Close() }

// Play runs steps in order. A failing step is recorded and play goes on;
// events aborted by it are already unwound. Only ctx ending stops play early.
func (s *Session) Play(ctx context.Context, steps []config.Step) (*Report, error) {
	start := time.Now()
	rep := &Report{Session: s.id, Digest: s.engine.Digest(), Status: StatusCompleted}
	for i, st := range steps {
		if err := ctx.Err(); err != nil {
			rep.Status = StatusFailed
			rep.Error = err.Error()
			return s.finish(ctx, rep, start), err
		}
		res := s.step(ctx, i, st)
		if res.Error != "" || len(res.Mismatches) > 0 {
			rep.Status = StatusFailed
		}
		rep.Steps = append(rep.Steps, res)
	}
	if rep.Status == StatusCompleted && s.game.Triggers().Suspended() {
		rep.Status = StatusSuspended
	}
	return s.finish(ctx, rep, start), nil
}

func (s *Session) step(ctx context.Context, i int, st config.Step) StepResult {
	m := s.game.Triggers()
	res := StepResult{Step: i, Label: st.Label, Action: st.Action()}
	if st.Label != "" {
		// The index the next event will start at.
		s.labels[st.Label] = m.CurrentEventIndex() + 1
	}

	var ev *event.Event
	var err error
	switch {
	case st.Raise != "":
		ev, err = s.game.Raise(ctx, st.Raise, st.Vars)
	case st.SetProp != nil:
		ev, err = s.game.SetProp(ctx, st.SetProp.Card, st.SetProp.Prop, st.SetProp.Value)
	case st.Resume != nil:
		ev = m.Current()
		err = s.game.Resume(ctx, st.Resume.Value)
	case st.RevertTo != "":
		k, ok := s.labels[st.RevertTo]
		if !ok {
			err = fmt.Errorf("unknown label %q", st.RevertTo)
			break
		}
		res.Reverted, err = m.RevertTo(k)
	default:
		err = errors.New("step has no action")
	}
	if ev != nil {
		res.EventID = ev.ID()
		res.Kind = ev.Kind()
		res.State = string(ev.State())
	}
	if err != nil {
		res.Error = err.Error()
		s.game.Logger().Warn("step failed", "step", i, "action", res.Action, "error", err)
	}
	for _, x := range st.Expect {
		got, _ := s.game.Prop(x.Card, x.Prop)
		if ok, cerr := condition.Compare(condition.OpEq, got, x.Value); cerr != nil || !ok {
			res.Mismatches = append(res.Mismatches,
				fmt.Sprintf("card %d %s: got %v, want %v", x.Card, x.Prop, got, x.Value))
		}
	}
	return res
}

func (s *Session) finish(ctx context.Context, rep *Report, start time.Time) *Report {
	m := s.game.Triggers()
	rep.Events = len(m.RecordedEvents(true, true))
	rep.Changes = m.Ledger().Len()
	rep.Cards = make(map[int]map[string]interface{})
	for _, c := range s.game.Cards() {
		rep.Cards[c.ID()] = c.Props()
	}
	rep.DurationMs = time.Since(start).Milliseconds()

	if st := s.engine.store; st != nil {
		sess := store.Session{
			ID:     s.id,
			Deck:   s.engine.deckName,
			Digest: rep.Digest,
			Status: rep.Status,
			Steps:  len(rep.Steps),
		}
		if err := st.SaveSession(ctx, sess, m.RecordedEvents(true, true), m.Ledger().Entries()); err != nil {
			s.game.Logger().Error("save session failed", "error", err)
			rep.Error = err.Error()
		}
	}
	return rep
}

// Run plays the deck's own script in a new session.
func (e *Engine) Run(ctx context.Context, id string) (*Report, error) {
	s, err := e.NewSession(ctx, id)
	if err != nil {
		return nil, err
	}
	defer s.Close()
	return s.Play(ctx, e.deck.Script)
}
