package sqlite

import (
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-migrate/migrate/v4"
	migratesqlite "github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/banshee-data/attention.report/internal/attention/l1history"
	"github.com/banshee-data/attention.report/internal/attention/l2volumes"
	"github.com/banshee-data/attention.report/internal/attention/l4detect"
	"github.com/banshee-data/attention.report/internal/attention/l5states"
	"github.com/banshee-data/attention.report/internal/monitoring"
	"github.com/banshee-data/attention.report/internal/timeutil"
	"github.com/banshee-data/attention.report/internal/version"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// ErrSessionNotFound is returned when a session id has no row.
var ErrSessionNotFound = errors.New("session not found")

// Event kinds as stored in the kind column.
const (
	KindDuration = "duration"
	KindPoint    = "point"
)

// Session is one stored detection run.
type Session struct {
	SessionID     string `json:"session_id"`
	Source        string `json:"source"`
	DetectorModel string `json:"detector_model"`
	CreatedAt     int64  `json:"created_at"`
}

// Event is a stored completed or point event. Point events have
// Start == End and a zero Duration.
type Event struct {
	EventID   int64                 `json:"event_id"`
	SessionID string                `json:"session_id"`
	Kind      string                `json:"kind"`
	Key       l5states.DetectionKey `json:"key"`
	Start     float64               `json:"start"`
	End       float64               `json:"end"`
	Duration  float64               `json:"duration"`
}

// EventStore provides persistence for detection sessions and their events.
type EventStore struct {
	db    *sql.DB
	clock timeutil.Clock
}

// Open opens (or creates) the database at path and applies any pending
// migrations. A nil clock uses wall time.
func Open(path string, clock timeutil.Clock) (*EventStore, error) {
	if clock == nil {
		clock = timeutil.RealClock{}
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA foreign_keys=ON",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("execute %q: %w", pragma, err)
		}
	}

	if err := migrateUp(db); err != nil {
		db.Close()
		return nil, err
	}
	return &EventStore{db: db, clock: clock}, nil
}

func migrateUp(db *sql.DB) error {
	src, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("load embedded migrations: %w", err)
	}
	driver, err := migratesqlite.WithInstance(db, &migratesqlite.Config{})
	if err != nil {
		return fmt.Errorf("failed to create sqlite driver: %w", err)
	}
	m, err := migrate.NewWithInstance("iofs", src, "sqlite", driver)
	if err != nil {
		return fmt.Errorf("failed to create migrate instance: %w", err)
	}
	m.Log = migrateLogger{}
	// m is not closed: closing it would close db.
	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("migration up failed: %w", err)
	}
	return nil
}

type migrateLogger struct{}

func (migrateLogger) Printf(format string, v ...interface{}) {
	monitoring.Logf("[migrate] "+format, v...)
}

func (migrateLogger) Verbose() bool { return false }

// Close closes the underlying database.
func (s *EventStore) Close() error {
	return s.db.Close()
}

// CreateSession inserts a new session stamped with the current detector
// model and returns it.
func (s *EventStore) CreateSession(source string) (Session, error) {
	sess := Session{
		SessionID:     uuid.New().String(),
		Source:        source,
		DetectorModel: version.DetectorModel(),
		CreatedAt:     s.clock.Now().UnixNano(),
	}
	err := retryOnBusy(func() error {
		_, err := s.db.Exec(`
			INSERT INTO sessions (session_id, source, detector_model, created_at)
			VALUES (?, ?, ?, ?)`,
			sess.SessionID, sess.Source, sess.DetectorModel, sess.CreatedAt,
		)
		return err
	})
	if err != nil {
		return Session{}, fmt.Errorf("insert session: %w", err)
	}
	monitoring.Debugf("[store] created session %s (%s)", sess.SessionID, sess.DetectorModel)
	return sess, nil
}

// GetSession returns a session by id.
func (s *EventStore) GetSession(sessionID string) (Session, error) {
	var sess Session
	err := s.db.QueryRow(`
		SELECT session_id, source, detector_model, created_at
		FROM sessions WHERE session_id = ?`, sessionID,
	).Scan(&sess.SessionID, &sess.Source, &sess.DetectorModel, &sess.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return Session{}, fmt.Errorf("%w: %s", ErrSessionNotFound, sessionID)
	}
	if err != nil {
		return Session{}, fmt.Errorf("scan session: %w", err)
	}
	return sess, nil
}

// ListSessions returns every session, newest first.
func (s *EventStore) ListSessions() ([]Session, error) {
	rows, err := s.db.Query(`
		SELECT session_id, source, detector_model, created_at
		FROM sessions
		ORDER BY created_at DESC, session_id`)
	if err != nil {
		return nil, fmt.Errorf("query sessions: %w", err)
	}
	defer rows.Close()

	var out []Session
	for rows.Next() {
		var sess Session
		if err := rows.Scan(&sess.SessionID, &sess.Source, &sess.DetectorModel, &sess.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan session row: %w", err)
		}
		out = append(out, sess)
	}
	return out, rows.Err()
}

// InsertEvents appends events to a session in one transaction.
func (s *EventStore) InsertEvents(sessionID string, completed []l5states.CompletedEvent, points []l5states.PointEvent) error {
	return s.writeEvents(sessionID, false, completed, points)
}

// ReplaceSessionEvents atomically replaces every stored event of a session.
func (s *EventStore) ReplaceSessionEvents(sessionID string, completed []l5states.CompletedEvent, points []l5states.PointEvent) error {
	return s.writeEvents(sessionID, true, completed, points)
}

func (s *EventStore) writeEvents(sessionID string, replace bool, completed []l5states.CompletedEvent, points []l5states.PointEvent) error {
	if !replace && len(completed) == 0 && len(points) == 0 {
		return nil
	}
	return retryOnBusy(func() error {
		tx, err := s.db.Begin()
		if err != nil {
			return fmt.Errorf("begin transaction: %w", err)
		}
		defer tx.Rollback()

		var exists int
		if err := tx.QueryRow(`SELECT COUNT(*) FROM sessions WHERE session_id = ?`, sessionID).Scan(&exists); err != nil {
			return fmt.Errorf("check session: %w", err)
		}
		if exists == 0 {
			return fmt.Errorf("%w: %s", ErrSessionNotFound, sessionID)
		}

		if replace {
			if _, err := tx.Exec(`DELETE FROM events WHERE session_id = ?`, sessionID); err != nil {
				return fmt.Errorf("clear session events: %w", err)
			}
		}

		stmt, err := tx.Prepare(`
			INSERT INTO events (session_id, kind, agent, observer, state, start_time, end_time, duration)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)`)
		if err != nil {
			return fmt.Errorf("prepare insert: %w", err)
		}
		defer stmt.Close()

		for _, e := range completed {
			if _, err := stmt.Exec(sessionID, KindDuration, string(e.Key.Agent), string(e.Key.Observer),
				e.Key.State.String(), e.Start, e.End, e.Duration); err != nil {
				return fmt.Errorf("insert completed event: %w", err)
			}
		}
		for _, p := range points {
			if _, err := stmt.Exec(sessionID, KindPoint, string(p.Key.Agent), string(p.Key.Observer),
				p.Key.State.String(), p.Time, p.Time, 0.0); err != nil {
				return fmt.Errorf("insert point event: %w", err)
			}
		}
		return tx.Commit()
	})
}

// DeleteSessionEvents removes every stored event of a session.
func (s *EventStore) DeleteSessionEvents(sessionID string) error {
	return retryOnBusy(func() error {
		_, err := s.db.Exec(`DELETE FROM events WHERE session_id = ?`, sessionID)
		return err
	})
}

// ListEvents returns the session's events matching f, ordered by start
// time and then insertion order.
func (s *EventStore) ListEvents(sessionID string, f l5states.Filter) ([]Event, error) {
	var (
		where = []string{"session_id = ?"}
		args  = []any{sessionID}
	)
	if f.Agent != "" {
		where = append(where, "agent = ?")
		args = append(args, string(f.Agent))
	}
	if f.Observer != "" {
		where = append(where, "observer = ?")
		args = append(args, string(f.Observer))
	}
	if f.States != 0 {
		states := f.States.States()
		marks := make([]string, len(states))
		for i, st := range states {
			marks[i] = "?"
			args = append(args, st.String())
		}
		where = append(where, "state IN ("+strings.Join(marks, ", ")+")")
	}

	rows, err := s.db.Query(`
		SELECT event_id, session_id, kind, agent, observer, state, start_time, end_time, duration
		FROM events
		WHERE `+strings.Join(where, " AND ")+`
		ORDER BY start_time, event_id`, args...)
	if err != nil {
		return nil, fmt.Errorf("query events: %w", err)
	}
	defer rows.Close()

	var out []Event
	for rows.Next() {
		e, err := scanEvent(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func scanEvent(rows *sql.Rows) (Event, error) {
	var (
		e                      Event
		agent, observer, state string
	)
	if err := rows.Scan(&e.EventID, &e.SessionID, &e.Kind, &agent, &observer, &state,
		&e.Start, &e.End, &e.Duration); err != nil {
		return Event{}, fmt.Errorf("scan event row: %w", err)
	}
	st, ok := l4detect.ParseStateType(state)
	if !ok {
		return Event{}, fmt.Errorf("event %d: unknown state %q", e.EventID, state)
	}
	e.Key = l5states.DetectionKey{
		Agent:    l1history.AgentID(agent),
		Observer: l2volumes.ObserverID(observer),
		State:    st,
	}
	return e, nil
}

const (
	busyRetries   = 5
	busyBaseDelay = 10 * time.Millisecond
)

func isSQLiteBusy(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "SQLITE_BUSY") || strings.Contains(msg, "database is locked")
}

// retryOnBusy runs fn until it succeeds, fails with a non-busy error, or
// the retry budget is spent. Delays double from busyBaseDelay.
func retryOnBusy(fn func() error) error {
	delay := busyBaseDelay
	var err error
	for attempt := 1; attempt <= busyRetries; attempt++ {
		err = fn()
		if !isSQLiteBusy(err) {
			return err
		}
		if attempt < busyRetries {
			time.Sleep(delay)
			delay *= 2
		}
	}
	return fmt.Errorf("database busy after %d attempts: %w", busyRetries, err)
}
