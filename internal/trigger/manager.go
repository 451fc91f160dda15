package trigger

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/gyaneshwarpardhi/cardflow/internal/event"
	"github.com/gyaneshwarpardhi/cardflow/internal/history"
	"github.com/gyaneshwarpardhi/cardflow/internal/metrics"
)

var (
	ErrSuspended      = errors.New("an event is suspended awaiting input")
	ErrNothingPending = errors.New("no suspended event to resume")
	ErrUnresumable    = errors.New("nested event left suspended by a step that completed")
	ErrReentrant      = errors.New("resume called while events are processing")
	ErrEventInFlight  = errors.New("events are in flight")
	ErrClosed         = errors.New("trigger manager closed")
)

type stage int

const (
	stageBefore stage = iota
	stageBody
	stageAfter
)

func (s stage) state() event.State {
	switch s {
	case stageBody:
		return event.StateRunning
	case stageAfter:
		return event.StateAfter
	}
	return event.StateBefore
}

type registration struct {
	time    Time
	trigger Trigger
	seq     uint64
	removed bool
}

// frame is the cursor of one event on the stack: which phase it is in, the
// trigger snapshot of that phase and how far through it processing got.
type frame struct {
	ev      *event.Event
	body    Body
	stage   stage
	queue   []*registration
	next    int
	runs    int
	pending Continuation
}

// Option configures a Manager.
type Option func(*Manager)

func WithLogger(l *slog.Logger) Option { return func(m *Manager) { m.logger = l } }
func WithIDGenerator(g event.IDGenerator) Option { return func(m *Manager) { m.ids = g } }
func WithClock(c *history.Clock) Option { return func(m *Manager) { m.clock = c } }
func WithNow(now func() time.Time) Option { return func(m *Manager) { m.now = now } }

// Manager schedules triggers around events and keeps the session's change
// ledger. One Manager belongs to one game session; it is not safe for
// concurrent use.
//
// Events are processed depth first: Do called from inside a trigger or body
// runs the nested event to completion (or suspension) before returning.
type Manager struct {
	triggers map[Time][]*registration
	delayed  []*registration
	seq      uint64
	stack    []*frame
	recorded []*event.Event
	clock    *history.Clock
	ledger   *history.Ledger
	ids      event.IDGenerator
	now      func() time.Time
	before   []func(*event.Event)
	after    []func(*event.Event)
	logger   *slog.Logger
	active   int
	closed   bool
}

// New creates a Manager with an empty ledger.
func New(opts ...Option) *Manager {
	m := &Manager{triggers: make(map[Time][]*registration)}
	for _, o := range opts {
		o(m)
	}
	if m.logger == nil {
		m.logger = slog.Default()
	}
	if m.ids == nil {
		m.ids = event.UUIDv7Generator{}
	}
	if m.clock == nil {
		m.clock = history.NewClock()
	}
	if m.now == nil {
		m.now = time.Now
	}
	m.ledger = history.NewLedger(m.clock, m.logger)
	return m
}

// Register subscribes tr to t. It affects phases that start after the call;
// a phase already running keeps the trigger list it started with.
func (m *Manager) Register(t Time, tr Trigger) {
	m.seq++
	m.triggers[t] = append(m.triggers[t], &registration{time: t, trigger: tr, seq: m.seq})
}

// RegisterDelayed subscribes tr once no event is in flight.
func (m *Manager) RegisterDelayed(t Time, tr Trigger) {
	if len(m.stack) == 0 {
		m.Register(t, tr)
		return
	}
	m.delayed = append(m.delayed, &registration{time: t, trigger: tr})
}

// Remove unsubscribes tr from t, including a pending delayed registration.
// A removed trigger is skipped even by a phase that already listed it.
func (m *Manager) Remove(t Time, tr Trigger) bool {
	found := false
	regs := m.triggers[t]
	kept := regs[:0]
	for _, r := range regs {
		if r.trigger == tr {
			r.removed = true
			found = true
			continue
		}
		kept = append(kept, r)
	}
	m.triggers[t] = kept
	delayed := m.delayed[:0]
	for _, r := range m.delayed {
		if r.time == t && r.trigger == tr {
			found = true
			continue
		}
		delayed = append(delayed, r)
	}
	m.delayed = delayed
	return found
}

// Triggers returns the triggers registered for exactly t in firing order.
func (m *Manager) Triggers(t Time) []Trigger {
	regs := append([]*registration(nil), m.triggers[t]...)
	sortRegistrations(regs)
	out := make([]Trigger, len(regs))
	for i, r := range regs {
		out[i] = r.trigger
	}
	return out
}

// lookup snapshots the triggers for t, wildcard subscribers included, in
// descending priority with registration order breaking ties.
func (m *Manager) lookup(t Time) []*registration {
	regs := append([]*registration(nil), m.triggers[t]...)
	if t.Kind != event.AnyKind {
		regs = append(regs, m.triggers[Time{Kind: event.AnyKind, Phase: t.Phase}]...)
	}
	sortRegistrations(regs)
	return regs
}

// sortRegistrations asks each trigger for its priority once per snapshot.
func sortRegistrations(regs []*registration) {
	prio := make(map[*registration]int, len(regs))
	for _, r := range regs {
		prio[r] = r.trigger.Priority()
	}
	sort.SliceStable(regs, func(i, j int) bool {
		pi, pj := prio[regs[i]], prio[regs[j]]
		if pi != pj {
			return pi > pj
		}
		return regs[i].seq < regs[j].seq
	})
}

// OnBefore adds a listener called as each event starts.
func (m *Manager) OnBefore(fn func(*event.Event)) { m.before = append(m.before, fn) }

// OnAfter adds a listener called as each event completes or is canceled.
func (m *Manager) OnAfter(fn func(*event.Event)) { m.after = append(m.after, fn) }

// Do runs ev: before triggers, then body 1+RepeatTime times, then after
// triggers. It returns ev once it completed, was canceled or suspended; a
// trigger or body error aborts ev, which is left uncompleted.
//
// While an event is suspended and nothing is processing, Do refuses new
// top-level events with ErrSuspended.
func (m *Manager) Do(ctx context.Context, ev *event.Event, body Body) (*event.Event, error) {
	if m.closed {
		return ev, ErrClosed
	}
	if m.Suspended() {
		return ev, ErrSuspended
	}
	id := ev.ID()
	if id == "" {
		id = m.ids.Generate()
	}
	parent := m.Current()
	ev.Begin(id, parent, m.clock.Next(), m.now())
	m.recorded = append(m.recorded, ev)

	fr := &frame{ev: ev, body: body, stage: stageBefore, queue: m.lookup(BeforeOf(ev.Kind()))}
	m.stack = append(m.stack, fr)
	metrics.EventsStarted.WithLabelValues(ev.Kind()).Inc()
	m.logger.Debug("event started", "kind", ev.Kind(), "id", ev.ID(), "depth", len(m.stack))
	for _, fn := range m.before {
		fn(ev)
	}

	m.active++
	defer func() { m.active-- }()
	return ev, m.process(ctx, fr)
}

// process advances fr until it finishes, suspends or fails.
func (m *Manager) process(ctx context.Context, fr *frame) error {
	for {
		if fr.stage == stageBody {
			for fr.runs <= fr.ev.RepeatTime() && !fr.ev.Canceled() {
				fr.runs++
				if fr.body == nil {
					continue
				}
				cont, err := fr.body(ctx, fr.ev)
				if err != nil {
					return m.abort(fr, fmt.Errorf("%s body: %w", fr.ev.Kind(), err))
				}
				if cont != nil {
					return m.suspend(fr, cont)
				}
				if err := m.checkTop(fr); err != nil {
					return m.abort(fr, err)
				}
			}
			if fr.ev.Canceled() {
				m.finish(fr)
				return nil
			}
			fr.stage = stageAfter
			fr.queue = m.lookup(AfterOf(fr.ev.Kind()))
			fr.next = 0
			if err := fr.ev.SetState(event.StateAfter); err != nil {
				return m.abort(fr, err)
			}
			continue
		}

		phase := Before
		if fr.stage == stageAfter {
			phase = After
		}
		for fr.next < len(fr.queue) && !(phase == Before && fr.ev.Canceled()) {
			reg := fr.queue[fr.next]
			fr.next++
			if reg.removed {
				continue
			}
			ok, err := reg.trigger.Condition(ctx, fr.ev)
			if err != nil {
				return m.abort(fr, fmt.Errorf("%s condition: %w", reg.time, err))
			}
			if !ok {
				continue
			}
			metrics.TriggersInvoked.WithLabelValues(string(phase)).Inc()
			cont, err := reg.trigger.Invoke(ctx, fr.ev)
			if err != nil {
				return m.abort(fr, fmt.Errorf("%s trigger: %w", reg.time, err))
			}
			if cont != nil {
				return m.suspend(fr, cont)
			}
			if err := m.checkTop(fr); err != nil {
				return m.abort(fr, err)
			}
		}
		if phase == After || fr.ev.Canceled() {
			m.finish(fr)
			return nil
		}
		fr.stage = stageBody
		if err := fr.ev.SetState(event.StateRunning); err != nil {
			return m.abort(fr, err)
		}
	}
}

// Resume hands input to the innermost suspended continuation and keeps
// going, unwinding to each enclosing event as the inner ones finish.
func (m *Manager) Resume(ctx context.Context, input interface{}) error {
	if m.closed {
		return ErrClosed
	}
	if m.active > 0 {
		return ErrReentrant
	}
	if len(m.stack) == 0 {
		return ErrNothingPending
	}
	m.active++
	defer func() { m.active-- }()

	for len(m.stack) > 0 {
		fr := m.stack[len(m.stack)-1]
		cont := fr.pending
		if cont == nil {
			return ErrNothingPending
		}
		fr.pending = nil
		if err := fr.ev.SetState(fr.stage.state()); err != nil {
			err = m.abort(fr, err)
			m.abortAll(err)
			return err
		}
		m.logger.Debug("event resumed", "kind", fr.ev.Kind(), "id", fr.ev.ID())

		next, err := cont.Resume(ctx, input)
		input = nil
		if err == nil && next == nil {
			err = m.checkTop(fr)
		}
		if err != nil {
			err = m.abort(fr, fmt.Errorf("%s resume: %w", fr.ev.Kind(), err))
			m.abortAll(err)
			return err
		}
		if next != nil {
			if err := m.suspend(fr, next); err != nil {
				m.abortAll(err)
				return err
			}
			return nil
		}
		if err := m.process(ctx, fr); err != nil {
			m.abortAll(err)
			return err
		}
		if fr.pending != nil {
			return nil
		}
	}
	return nil
}

func (m *Manager) suspend(fr *frame, cont Continuation) error {
	if err := fr.ev.SetState(event.StateSuspended); err != nil {
		return m.abort(fr, err)
	}
	fr.pending = cont
	metrics.EventsSuspended.Inc()
	m.logger.Info("event suspended", "kind", fr.ev.Kind(), "id", fr.ev.ID(), "depth", len(m.stack))
	return nil
}

// checkTop verifies that a step which completed left no nested event
// suspended above fr; such an event could never be resumed.
func (m *Manager) checkTop(fr *frame) error {
	if top := m.stack[len(m.stack)-1]; top != fr {
		return fmt.Errorf("%w: %s (%s)", ErrUnresumable, top.ev.Kind(), top.ev.ID())
	}
	return nil
}

func (m *Manager) finish(fr *frame) {
	fr.ev.Finish(m.clock.Next())
	m.pop(fr)
	metrics.EventsFinished.WithLabelValues(fr.ev.Kind(), string(fr.ev.State())).Inc()
	m.logger.Debug("event finished", "kind", fr.ev.Kind(), "id", fr.ev.ID(), "state", fr.ev.State())
	for _, fn := range m.after {
		fn(fr.ev)
	}
	if len(m.stack) == 0 {
		m.flushDelayed()
	}
}

// abort fails fr and anything stranded above it, and pops them.
func (m *Manager) abort(fr *frame, err error) error {
	wrapped := fmt.Errorf("event %s (%s): %w", fr.ev.Kind(), fr.ev.ID(), err)
	for i := len(m.stack) - 1; i >= 0; i-- {
		top := m.stack[i]
		top.ev.Fail(err)
		metrics.EventsFinished.WithLabelValues(top.ev.Kind(), string(event.StateFailed)).Inc()
		if top == fr {
			m.stack = m.stack[:i]
			break
		}
	}
	m.logger.Warn("event aborted", "kind", fr.ev.Kind(), "id", fr.ev.ID(), "error", err)
	if len(m.stack) == 0 {
		m.flushDelayed()
	}
	return wrapped
}

// abortAll fails every frame left on the stack. Used when a resumed event
// fails: the enclosing events were waiting on it and cannot continue.
func (m *Manager) abortAll(err error) {
	for len(m.stack) > 0 {
		m.abort(m.stack[len(m.stack)-1], err)
	}
}

func (m *Manager) pop(fr *frame) {
	for i := len(m.stack) - 1; i >= 0; i-- {
		if m.stack[i] == fr {
			m.stack = m.stack[:i]
			return
		}
	}
}

func (m *Manager) flushDelayed() {
	regs := m.delayed
	m.delayed = nil
	for _, r := range regs {
		m.Register(r.time, r.trigger)
	}
}

// Current is the innermost event in flight, nil when idle.
func (m *Manager) Current() *event.Event {
	if len(m.stack) == 0 {
		return nil
	}
	return m.stack[len(m.stack)-1].ev
}

// Chain is the current event followed by its ancestors.
func (m *Manager) Chain() []*event.Event {
	if cur := m.Current(); cur != nil {
		return cur.Chain()
	}
	return nil
}

// Depth is the number of events in flight.
func (m *Manager) Depth() int { return len(m.stack) }

// Suspended reports whether events wait on Resume with nothing processing.
func (m *Manager) Suspended() bool { return len(m.stack) > 0 && m.active == 0 }

// RecordedEvents lists every event passed to Do in start order.
func (m *Manager) RecordedEvents(includeCanceled, includeUncompleted bool) []*event.Event {
	var out []*event.Event
	for _, ev := range m.recorded {
		if ev.Canceled() && !includeCanceled {
			continue
		}
		if !ev.Completed() && !includeUncompleted {
			continue
		}
		out = append(out, ev)
	}
	return out
}

// Close fails whatever is still in flight and drops every registration.
func (m *Manager) Close() error {
	if m.closed {
		return nil
	}
	if n := len(m.stack); n > 0 {
		m.logger.Warn("closing with events in flight", "depth", n)
		m.abortAll(ErrClosed)
	}
	m.closed = true
	m.triggers = make(map[Time][]*registration)
	m.delayed = nil
	return nil
}
