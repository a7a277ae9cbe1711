// Package storage persists process and system snapshots to a local SQLite
// database. Writes are best effort: callers log failures and carry on.
package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	apperrors "github.com/agbru/taskmaster/internal/errors"
	"github.com/agbru/taskmaster/internal/sysmon"
)

// MemoryPath opens a private in-memory database.
const MemoryPath = ":memory:"

// timeLayout is fixed width so that lexical order matches time order.
const timeLayout = "2006-01-02T15:04:05.000000000Z"

const schema = `
CREATE TABLE IF NOT EXISTS process_snapshots (
	id          INTEGER PRIMARY KEY AUTOINCREMENT,
	run_id      TEXT NOT NULL,
	timestamp   TEXT NOT NULL,
	pid         INTEGER NOT NULL,
	name        TEXT NOT NULL,
	username    TEXT,
	status      TEXT,
	cpu_percent REAL,
	memory_mb   REAL,
	threads     INTEGER,
	data        JSON
);
CREATE INDEX IF NOT EXISTS idx_process_snapshots_timestamp ON process_snapshots(timestamp);
CREATE INDEX IF NOT EXISTS idx_process_snapshots_pid ON process_snapshots(pid, timestamp);

CREATE TABLE IF NOT EXISTS system_snapshots (
	id              INTEGER PRIMARY KEY AUTOINCREMENT,
	run_id          TEXT NOT NULL,
	timestamp       TEXT NOT NULL,
	cpu_percent     REAL,
	memory_percent  REAL,
	disk_percent    REAL,
	total_processes INTEGER,
	data            JSON
);
CREATE INDEX IF NOT EXISTS idx_system_snapshots_timestamp ON system_snapshots(timestamp);

CREATE TABLE IF NOT EXISTS events (
	id          INTEGER PRIMARY KEY AUTOINCREMENT,
	run_id      TEXT NOT NULL,
	timestamp   TEXT NOT NULL,
	event_type  TEXT NOT NULL,
	description TEXT,
	data        JSON
);
CREATE INDEX IF NOT EXISTS idx_events_timestamp ON events(timestamp);
`

// FormatTime renders t as stored in the database.
func FormatTime(t time.Time) string { return t.UTC().Format(timeLayout) }

// ParseTime is the inverse of FormatTime.
func ParseTime(s string) (time.Time, error) { return time.Parse(timeLayout, s) }

// Store is a handle on the snapshot database. It is safe for concurrent use.
type Store struct {
	db    *sql.DB
	runID string
	now   func() time.Time
}

// Option configures a Store.
type Option func(*Store)

// WithClock overrides time.Now, for tests.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// WithRunID fixes the run identifier instead of generating one.
func WithRunID(id string) Option {
	return func(s *Store) { s.runID = id }
}

// Open opens or creates the database at path, creating parent directories
// as needed, and applies the schema.
func Open(path string, opts ...Option) (*Store, error) {
	dsn := path
	if path != MemoryPath {
		if dir := filepath.Dir(path); dir != "" && dir != "." {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, apperrors.StorageError{Op: "open", Cause: err}
			}
		}
		dsn = "file:" + path + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"
	}
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, apperrors.StorageError{Op: "open", Cause: err}
	}
	if path == MemoryPath {
		// Each connection to :memory: is a separate database.
		db.SetMaxOpenConns(1)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, apperrors.StorageError{Op: "migrate", Cause: err}
	}
	s := &Store{db: db, runID: uuid.NewString(), now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// RunID identifies the monitoring session that wrote each row.
func (s *Store) RunID() string { return s.runID }

// Close releases the database.
func (s *Store) Close() error {
	if err := s.db.Close(); err != nil {
		return apperrors.StorageError{Op: "close", Cause: err}
	}
	return nil
}

// InsertProcesses writes one row per entity in a single transaction, all
// stamped with the same time.
func (s *Store) InsertProcesses(ctx context.Context, es []sysmon.Entity) error {
	if len(es) == 0 {
		return nil
	}
	ts := FormatTime(s.now())
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return apperrors.StorageError{Op: "insert processes", Cause: err}
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `INSERT INTO process_snapshots
		(run_id, timestamp, pid, name, username, status, cpu_percent, memory_mb, threads, data)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return apperrors.StorageError{Op: "insert processes", Cause: err}
	}
	defer stmt.Close()

	for _, e := range es {
		data, err := json.Marshal(e)
		if err != nil {
			return apperrors.StorageError{Op: "insert processes", Cause: err}
		}
		if _, err := stmt.ExecContext(ctx, s.runID, ts, e.PID, e.Name, e.Username, e.Status,
			e.CPUPercent, e.MemoryMB, e.NumThreads, string(data)); err != nil {
			return apperrors.StorageError{Op: "insert processes", Cause: err}
		}
	}
	if err := tx.Commit(); err != nil {
		return apperrors.StorageError{Op: "insert processes", Cause: err}
	}
	return nil
}

// InsertSystem writes one system snapshot row.
func (s *Store) InsertSystem(ctx context.Context, snap sysmon.SystemSnapshot) error {
	data, err := json.Marshal(snap)
	if err != nil {
		return apperrors.StorageError{Op: "insert system", Cause: err}
	}
	_, err = s.db.ExecContext(ctx, `INSERT INTO system_snapshots
		(run_id, timestamp, cpu_percent, memory_percent, disk_percent, total_processes, data)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		s.runID, FormatTime(s.now()), snap.CPUPercent, snap.MemoryPercent, snap.DiskPercent, snap.ProcessCount, string(data))
	if err != nil {
		return apperrors.StorageError{Op: "insert system", Cause: err}
	}
	return nil
}

// LogEvent records a lifecycle or control event. data may be nil.
func (s *Store) LogEvent(ctx context.Context, eventType, description string, data map[string]any) error {
	if data == nil {
		data = map[string]any{}
	}
	b, err := json.Marshal(data)
	if err != nil {
		return apperrors.StorageError{Op: "log event", Cause: err}
	}
	_, err = s.db.ExecContext(ctx, `INSERT INTO events (run_id, timestamp, event_type, description, data)
		VALUES (?, ?, ?, ?, ?)`, s.runID, FormatTime(s.now()), eventType, description, string(b))
	if err != nil {
		return apperrors.StorageError{Op: "log event", Cause: err}
	}
	return nil
}

// ProcessRecord is a stored process row.
type ProcessRecord struct {
	RunID     string        `json:"run_id"`
	Timestamp time.Time     `json:"timestamp"`
	Entity    sysmon.Entity `json:"entity"`
}

// SystemRecord is a stored system row.
type SystemRecord struct {
	RunID     string                `json:"run_id"`
	Timestamp time.Time             `json:"timestamp"`
	Snapshot  sysmon.SystemSnapshot `json:"snapshot"`
}

// EventRecord is a stored event row.
type EventRecord struct {
	RunID       string         `json:"run_id"`
	Timestamp   time.Time      `json:"timestamp"`
	Type        string         `json:"type"`
	Description string         `json:"description"`
	Data        map[string]any `json:"data"`
}

// ProcessAverage aggregates stored rows by process name.
type ProcessAverage struct {
	Name          string  `json:"name"`
	AvgCPUPercent float64 `json:"avg_cpu_percent"`
	AvgMemoryMB   float64 `json:"avg_memory_mb"`
	Samples       int     `json:"samples"`
}

// TrendPoint is a bucketed average for one process name.
type TrendPoint struct {
	Start       time.Time `json:"start"`
	CPUPercent  float64   `json:"cpu_percent"`
	MemoryMB    float64   `json:"memory_mb"`
	SampleCount int       `json:"samples"`
}

// ProcessHistory returns rows for pid newer than since, oldest first.
// limit <= 0 means no limit.
func (s *Store) ProcessHistory(ctx context.Context, pid int32, since time.Time, limit int) ([]ProcessRecord, error) {
	q := `SELECT run_id, timestamp, data FROM process_snapshots WHERE pid = ? AND timestamp > ? ORDER BY timestamp`
	args := []any{pid, FormatTime(since)}
	if limit > 0 {
		q += ` LIMIT ?`
		args = append(args, limit)
	}
	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, apperrors.StorageError{Op: "process history", Cause: err}
	}
	defer rows.Close()

	var out []ProcessRecord
	for rows.Next() {
		var rec ProcessRecord
		var ts, data string
		if err := rows.Scan(&rec.RunID, &ts, &data); err != nil {
			return nil, apperrors.StorageError{Op: "process history", Cause: err}
		}
		if rec.Timestamp, err = ParseTime(ts); err != nil {
			return nil, apperrors.StorageError{Op: "process history", Cause: err}
		}
		if err := json.Unmarshal([]byte(data), &rec.Entity); err != nil {
			return nil, apperrors.StorageError{Op: "process history", Cause: err}
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, apperrors.StorageError{Op: "process history", Cause: err}
	}
	return out, nil
}

// SystemHistory returns system rows newer than since, oldest first.
func (s *Store) SystemHistory(ctx context.Context, since time.Time) ([]SystemRecord, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT run_id, timestamp, data FROM system_snapshots WHERE timestamp > ? ORDER BY timestamp`, FormatTime(since))
	if err != nil {
		return nil, apperrors.StorageError{Op: "system history", Cause: err}
	}
	defer rows.Close()

	var out []SystemRecord
	for rows.Next() {
		var rec SystemRecord
		var ts, data string
		if err := rows.Scan(&rec.RunID, &ts, &data); err != nil {
			return nil, apperrors.StorageError{Op: "system history", Cause: err}
		}
		if rec.Timestamp, err = ParseTime(ts); err != nil {
			return nil, apperrors.StorageError{Op: "system history", Cause: err}
		}
		if err := json.Unmarshal([]byte(data), &rec.Snapshot); err != nil {
			return nil, apperrors.StorageError{Op: "system history", Cause: err}
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, apperrors.StorageError{Op: "system history", Cause: err}
	}
	return out, nil
}

// Events returns events newer than since, oldest first.
func (s *Store) Events(ctx context.Context, since time.Time) ([]EventRecord, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT run_id, timestamp, event_type, description, data FROM events WHERE timestamp > ? ORDER BY timestamp, id`, FormatTime(since))
	if err != nil {
		return nil, apperrors.StorageError{Op: "events", Cause: err}
	}
	defer rows.Close()

	var out []EventRecord
	for rows.Next() {
		var rec EventRecord
		var ts, data string
		var desc sql.NullString
		if err := rows.Scan(&rec.RunID, &ts, &rec.Type, &desc, &data); err != nil {
			return nil, apperrors.StorageError{Op: "events", Cause: err}
		}
		rec.Description = desc.String
		if rec.Timestamp, err = ParseTime(ts); err != nil {
			return nil, apperrors.StorageError{Op: "events", Cause: err}
		}
		if err := json.Unmarshal([]byte(data), &rec.Data); err != nil {
			return nil, apperrors.StorageError{Op: "events", Cause: err}
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, apperrors.StorageError{Op: "events", Cause: err}
	}
	return out, nil
}

// TopByAverageCPU groups process rows by name and returns the highest
// average CPU consumers.
func (s *Store) TopByAverageCPU(ctx context.Context, limit int) ([]ProcessAverage, error) {
	if limit <= 0 {
		limit = 5
	}
	rows, err := s.db.QueryContext(ctx, `SELECT name, AVG(cpu_percent), AVG(memory_mb), COUNT(*)
		FROM process_snapshots GROUP BY name ORDER BY AVG(cpu_percent) DESC, name LIMIT ?`, limit)
	if err != nil {
		return nil, apperrors.StorageError{Op: "top by cpu", Cause: err}
	}
	defer rows.Close()

	var out []ProcessAverage
	for rows.Next() {
		var a ProcessAverage
		if err := rows.Scan(&a.Name, &a.AvgCPUPercent, &a.AvgMemoryMB, &a.Samples); err != nil {
			return nil, apperrors.StorageError{Op: "top by cpu", Cause: err}
		}
		out = append(out, a)
	}
	if err := rows.Err(); err != nil {
		return nil, apperrors.StorageError{Op: "top by cpu", Cause: err}
	}
	return out, nil
}

// ProcessTrend averages a process name's rows into buckets of width bucket,
// oldest first.
func (s *Store) ProcessTrend(ctx context.Context, name string, bucket time.Duration) ([]TrendPoint, error) {
	if bucket <= 0 {
		bucket = 5 * time.Minute
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT timestamp, cpu_percent, memory_mb FROM process_snapshots WHERE name = ? ORDER BY timestamp`, name)
	if err != nil {
		return nil, apperrors.StorageError{Op: "process trend", Cause: err}
	}
	defer rows.Close()

	var out []TrendPoint
	for rows.Next() {
		var ts string
		var cpu, mem float64
		if err := rows.Scan(&ts, &cpu, &mem); err != nil {
			return nil, apperrors.StorageError{Op: "process trend", Cause: err}
		}
		t, err := ParseTime(ts)
		if err != nil {
			return nil, apperrors.StorageError{Op: "process trend", Cause: err}
		}
		start := t.Truncate(bucket)
		if n := len(out); n == 0 || !out[n-1].Start.Equal(start) {
			out = append(out, TrendPoint{Start: start})
		}
		p := &out[len(out)-1]
		p.CPUPercent += cpu
		p.MemoryMB += mem
		p.SampleCount++
	}
	if err := rows.Err(); err != nil {
		return nil, apperrors.StorageError{Op: "process trend", Cause: err}
	}
	for i := range out {
		out[i].CPUPercent /= float64(out[i].SampleCount)
		out[i].MemoryMB /= float64(out[i].SampleCount)
	}
	return out, nil
}

// Cleanup deletes snapshot and event rows older than olderThan and returns
// how many rows were removed.
func (s *Store) Cleanup(ctx context.Context, olderThan time.Duration) (int64, error) {
	cutoff := FormatTime(s.now().Add(-olderThan))
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, apperrors.StorageError{Op: "cleanup", Cause: err}
	}
	defer tx.Rollback()

	var total int64
	for _, table := range []string{"process_snapshots", "system_snapshots", "events"} {
		res, err := tx.ExecContext(ctx, fmt.Sprintf(`DELETE FROM %s WHERE timestamp < ?`, table), cutoff)
		if err != nil {
			return 0, apperrors.StorageError{Op: "cleanup " + strings.TrimSuffix(table, "s"), Cause: err}
		}
		n, _ := res.RowsAffected()
		total += n
	}
	if err := tx.Commit(); err != nil {
		return 0, apperrors.StorageError{Op: "cleanup", Cause: err}
	}
	return total, nil
}
