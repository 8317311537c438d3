package db

import (
	"fmt"
	"time"

	"github.com/servo-cam/server/internal/monitoring"
	"github.com/servo-cam/server/internal/timeutil"
	"github.com/servo-cam/server/internal/tracker"
)

// CommandRecord is one command line delivered to the servos.
type CommandRecord struct {
	Session   string
	Time      time.Time
	Tick      uint64
	Command   string
	AngleX    int
	AngleY    int
	Count     int
	Mode      string
	HasTarget bool
	Identity  int
}

// EventRecord is one status flag switching on or off.
type EventRecord struct {
	Session string
	Time    time.Time
	Tick    uint64
	State   string
	On      bool
}

// SessionRecord describes one daemon run.
type SessionRecord struct {
	ID        string
	StartedAt time.Time
	Version   string
	Commands  int
}

func (db *DB) RecordCommand(r CommandRecord) error {
	if r.Session == "" {
		r.Session = db.session
	}
	_, err := db.Exec(
		`INSERT INTO commands (
			session_id, ts_unix_ms, tick, command, angle_x, angle_y,
			object_count, mode, has_target, identity
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.Session, r.Time.UnixMilli(), int64(r.Tick), r.Command, r.AngleX, r.AngleY,
		r.Count, r.Mode, r.HasTarget, r.Identity,
	)
	if err != nil {
		return fmt.Errorf("failed to record command: %w", err)
	}
	return nil
}

func (db *DB) RecordEvent(r EventRecord) error {
	if r.Session == "" {
		r.Session = db.session
	}
	_, err := db.Exec(
		`INSERT INTO events (session_id, ts_unix_ms, tick, state, is_on) VALUES (?, ?, ?, ?, ?)`,
		r.Session, r.Time.UnixMilli(), int64(r.Tick), r.State, r.On,
	)
	if err != nil {
		return fmt.Errorf("failed to record event: %w", err)
	}
	return nil
}

// Commands returns a session's commands in send order.
func (db *DB) Commands(session string) ([]CommandRecord, error) {
	rows, err := db.Query(
		`SELECT session_id, ts_unix_ms, tick, command, angle_x, angle_y,
			object_count, mode, has_target, identity
		FROM commands WHERE session_id = ? ORDER BY command_id`, session)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []CommandRecord
	for rows.Next() {
		var r CommandRecord
		var ts, tick int64
		if err := rows.Scan(&r.Session, &ts, &tick, &r.Command, &r.AngleX, &r.AngleY,
			&r.Count, &r.Mode, &r.HasTarget, &r.Identity); err != nil {
			return nil, err
		}
		r.Time = time.UnixMilli(ts)
		r.Tick = uint64(tick)
		out = append(out, r)
	}
	return out, rows.Err()
}

// Events returns a session's status edges in order.
func (db *DB) Events(session string) ([]EventRecord, error) {
	rows, err := db.Query(
		`SELECT session_id, ts_unix_ms, tick, state, is_on
		FROM events WHERE session_id = ? ORDER BY event_id`, session)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []EventRecord
	for rows.Next() {
		var r EventRecord
		var ts, tick int64
		if err := rows.Scan(&r.Session, &ts, &tick, &r.State, &r.On); err != nil {
			return nil, err
		}
		r.Time = time.UnixMilli(ts)
		r.Tick = uint64(tick)
		out = append(out, r)
	}
	return out, rows.Err()
}

// Sessions lists every session, newest first.
func (db *DB) Sessions() ([]SessionRecord, error) {
	rows, err := db.Query(
		`SELECT s.session_id, s.started_at, s.version, COUNT(c.command_id)
		FROM sessions s LEFT JOIN commands c ON c.session_id = s.session_id
		GROUP BY s.session_id ORDER BY s.started_at DESC, s.rowid DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []SessionRecord
	for rows.Next() {
		var r SessionRecord
		var started int64
		if err := rows.Scan(&r.ID, &started, &r.Version, &r.Commands); err != nil {
			return nil, err
		}
		r.StartedAt = time.UnixMilli(started)
		out = append(out, r)
	}
	return out, rows.Err()
}

// Recorder writes tracker outputs into the current session.
type Recorder struct {
	db    *DB
	clock timeutil.Clock
}

func NewRecorder(db *DB, clock timeutil.Clock) *Recorder {
	if clock == nil {
		clock = timeutil.RealClock{}
	}
	return &Recorder{db: db, clock: clock}
}

// Record stores the command if one was sent this tick and every status
// change. The first failure is logged and returned.
func (r *Recorder) Record(out tracker.Output) error {
	now := r.clock.Now()
	var first error
	if out.Sent {
		if err := r.db.RecordCommand(CommandRecord{
			Time:      now,
			Tick:      out.Tick,
			Command:   out.Command,
			AngleX:    out.Angles.X,
			AngleY:    out.Angles.Y,
			Count:     out.Count,
			Mode:      out.Mode.String(),
			HasTarget: out.HasTarget,
			Identity:  out.Identity,
		}); err != nil {
			first = err
		}
	}
	for _, ch := range out.Changes {
		err := r.db.RecordEvent(EventRecord{
			Time:  now,
			Tick:  out.Tick,
			State: ch.State.String(),
			On:    ch.On,
		})
		if err != nil && first == nil {
			first = err
		}
	}
	if first != nil {
		monitoring.Logf("[db] %v", first)
	}
	return first
}
