package store

import (
	"context"
	"database/sql"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/gyaneshwarpardhi/cardflow/internal/event"
	"github.com/gyaneshwarpardhi/cardflow/internal/history"
)

//go:embed schema.sql
var schemaSQL string

var ErrNotFound = errors.New("not found")

// Store persists finished sessions: their recorded events and change ledger.
type Store struct {
	db *sql.DB
}

// Session is the header row of a stored session.
type Session struct {
	ID        string    `json:"id"`
	Deck      string    `json:"deck"`
	Digest    string    `json:"digest"`
	Status    string    `json:"status"`
	Steps     int       `json:"steps"`
	CreatedAt time.Time `json:"created_at"`
}

// EventRecord is a stored event.
type EventRecord struct {
	Seq         int                    `json:"seq"`
	ID          string                 `json:"id"`
	Kind        string                 `json:"kind"`
	ParentID    string                 `json:"parent_id,omitempty"`
	State       string                 `json:"state"`
	Canceled    bool                   `json:"canceled"`
	IndexBefore int64                  `json:"index_before"`
	IndexAfter  int64                  `json:"index_after"`
	FlowNode    int                    `json:"flow_node,omitempty"`
	VarsBefore  map[string]interface{} `json:"vars_before"`
	VarsAfter   map[string]interface{} `json:"vars_after"`
	Failure     string                 `json:"failure,omitempty"`
	StartedAt   time.Time              `json:"started_at"`
}

// ChangeRecord is a stored ledger entry.
type ChangeRecord struct {
	Seq     int                    `json:"seq"`
	Index   int64                  `json:"index"`
	EventID string                 `json:"event_id,omitempty"`
	Kind    string                 `json:"kind"`
	Target  string                 `json:"target"`
	Payload map[string]interface{} `json:"payload,omitempty"`
}

// Open creates or opens the database at path and applies the schema.
func Open(path string) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("storage path is required")
	}
	dsn := filepath.Clean(path) + "?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}
	// One writer; SQLite serializes writes anyway.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	if _, err := db.Exec(schemaSQL); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}
	return &Store{db: db}, nil
}

// Close closes the database.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// SaveSession replaces everything stored for sess.ID with events and
// entries, in one transaction.
func (s *Store) SaveSession(ctx context.Context, sess Session, events []*event.Event, entries []history.Entry) error {
	if sess.ID == "" {
		return fmt.Errorf("session id is required")
	}
	if sess.CreatedAt.IsZero() {
		sess.CreatedAt = time.Now()
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	for _, table := range []string{"changes", "events", "sessions"} {
		col := "session_id"
		if table == "sessions" {
			col = "id"
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM `+table+` WHERE `+col+` = ?`, sess.ID); err != nil {
			return fmt.Errorf("clear session %s: %w", sess.ID, err)
		}
	}
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO sessions (id, deck, digest, status, steps, created_at) VALUES (?, ?, ?, ?, ?, ?)`,
		sess.ID, sess.Deck, sess.Digest, sess.Status, sess.Steps, sess.CreatedAt.UTC().UnixMilli(),
	); err != nil {
		return fmt.Errorf("insert session %s: %w", sess.ID, err)
	}

	owner := make(map[history.Change]string)
	for i, ev := range events {
		for _, c := range ev.Changes() {
			owner[c] = ev.ID()
		}
		if err := insertEvent(ctx, tx, sess.ID, i+1, ev); err != nil {
			return err
		}
	}
	for i, e := range entries {
		payload, err := json.Marshal(e.Change.Payload())
		if err != nil {
			return fmt.Errorf("change %d payload: %w", i+1, err)
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO changes (session_id, seq, event_index, event_id, kind, target, payload) VALUES (?, ?, ?, ?, ?, ?, ?)`,
			sess.ID, i+1, e.Index, owner[e.Change], e.Change.Kind(), e.Change.Target().ChangeKey(), string(payload),
		); err != nil {
			return fmt.Errorf("insert change %d: %w", i+1, err)
		}
	}
	return tx.Commit()
}

func insertEvent(ctx context.Context, tx *sql.Tx, sessionID string, seq int, ev *event.Event) error {
	before, err := json.Marshal(ev.VarsBefore())
	if err != nil {
		return fmt.Errorf("event %s vars: %w", ev.ID(), err)
	}
	after, err := json.Marshal(ev.VarsAfter())
	if err != nil {
		return fmt.Errorf("event %s vars: %w", ev.ID(), err)
	}
	parent := ""
	if p := ev.Parent(); p != nil {
		parent = p.ID()
	}
	failure := ""
	if err := ev.Failure(); err != nil {
		failure = err.Error()
	}
	_, err = tx.ExecContext(ctx,
		`INSERT INTO events (session_id, seq, id, kind, parent_id, state, canceled, index_before, index_after,
		   flow_node, vars_before, vars_after, failure, started_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		sessionID, seq, ev.ID(), ev.Kind(), parent, string(ev.State()), ev.Canceled(),
		ev.IndexBefore(), ev.IndexAfter(), ev.FlowNodeID(), string(before), string(after), failure,
		ev.StartedAt().UTC().UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("insert event %s: %w", ev.ID(), err)
	}
	return nil
}

// Sessions lists stored sessions, newest first.
func (s *Store) Sessions(ctx context.Context) ([]Session, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, deck, digest, status, steps, created_at FROM sessions ORDER BY created_at DESC, id`)
	if err != nil {
		return nil, fmt.Errorf("query sessions: %w", err)
	}
	defer rows.Close()
	var out []Session
	for rows.Next() {
		var sess Session
		var created int64
		if err := rows.Scan(&sess.ID, &sess.Deck, &sess.Digest, &sess.Status, &sess.Steps, &created); err != nil {
			return nil, fmt.Errorf("scan session: %w", err)
		}
		sess.CreatedAt = time.UnixMilli(created).UTC()
		out = append(out, sess)
	}
	return out, rows.Err()
}

// Session returns one stored session.
func (s *Store) Session(ctx context.Context, id string) (Session, error) {
	var sess Session
	var created int64
	err := s.db.QueryRowContext(ctx,
		`SELECT id, deck, digest, status, steps, created_at FROM sessions WHERE id = ?`, id,
	).Scan(&sess.ID, &sess.Deck, &sess.Digest, &sess.Status, &sess.Steps, &created)
	if errors.Is(err, sql.ErrNoRows) {
		return Session{}, fmt.Errorf("session %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return Session{}, fmt.Errorf("query session %s: %w", id, err)
	}
	sess.CreatedAt = time.UnixMilli(created).UTC()
	return sess, nil
}

// Events returns the events of a session in start order, optionally only
// those of kind.
func (s *Store) Events(ctx context.Context, sessionID, kind string) ([]EventRecord, error) {
	query := `SELECT seq, id, kind, parent_id, state, canceled, index_before, index_after, flow_node,
	            vars_before, vars_after, failure, started_at
	          FROM events WHERE session_id = ?`
	args := []interface{}{sessionID}
	if kind != "" {
		query += ` AND kind = ?`
		args = append(args, kind)
	}
	rows, err := s.db.QueryContext(ctx, query+` ORDER BY seq`, args...)
	if err != nil {
		return nil, fmt.Errorf("query events: %w", err)
	}
	defer rows.Close()
	var out []EventRecord
	for rows.Next() {
		var r EventRecord
		var before, after string
		var started int64
		if err := rows.Scan(&r.Seq, &r.ID, &r.Kind, &r.ParentID, &r.State, &r.Canceled, &r.IndexBefore,
			&r.IndexAfter, &r.FlowNode, &before, &after, &r.Failure, &started); err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		if err := json.Unmarshal([]byte(before), &r.VarsBefore); err != nil {
			return nil, fmt.Errorf("event %s vars: %w", r.ID, err)
		}
		if err := json.Unmarshal([]byte(after), &r.VarsAfter); err != nil {
			return nil, fmt.Errorf("event %s vars: %w", r.ID, err)
		}
		r.StartedAt = time.UnixMilli(started).UTC()
		out = append(out, r)
	}
	return out, rows.Err()
}

// Changes returns the ledger of a session in recording order, optionally
// only the entries touching target.
func (s *Store) Changes(ctx context.Context, sessionID, target string) ([]ChangeRecord, error) {
	query := `SELECT seq, event_index, event_id, kind, target, payload FROM changes WHERE session_id = ?`
	args := []interface{}{sessionID}
	if target != "" {
		query += ` AND target = ?`
		args = append(args, target)
	}
	rows, err := s.db.QueryContext(ctx, query+` ORDER BY seq`, args...)
	if err != nil {
		return nil, fmt.Errorf("query changes: %w", err)
	}
	defer rows.Close()
	var out []ChangeRecord
	for rows.Next() {
		var r ChangeRecord
		var payload string
		if err := rows.Scan(&r.Seq, &r.Index, &r.EventID, &r.Kind, &r.Target, &payload); err != nil {
			return nil, fmt.Errorf("scan change: %w", err)
		}
		if err := json.Unmarshal([]byte(payload), &r.Payload); err != nil {
			return nil, fmt.Errorf("change %d payload: %w", r.Seq, err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// Ping checks that the database answers.
func (s *Store) Ping(ctx context.Context) error { return s.db.PingContext(ctx) }
