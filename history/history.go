// Package history keeps a local record of solver runs and detected anomalies
// in a SQLite database, so that the dashboard can show what happened across
// restarts.
package history

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/go-digitaltwin/cabintwin"
	"github.com/go-digitaltwin/cabintwin/anomaly"
	"github.com/go-digitaltwin/cabintwin/fea"
)

// SchemaVersion is the version of schemaV1 below.
const SchemaVersion = 1

const schemaV1 = `
CREATE TABLE IF NOT EXISTS schema_version (
    version INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS fea_runs (
    id TEXT PRIMARY KEY,
    recorded_at TEXT NOT NULL,
    avg_temp_c REAL NOT NULL,
    max_vibration_g REAL NOT NULL,
    max_stress_mpa REAL NOT NULL,
    safety_factor REAL NOT NULL,
    solved_at TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_fea_runs_recorded ON fea_runs(recorded_at);

CREATE TABLE IF NOT EXISTS anomaly_events (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    timestamp TEXT NOT NULL,
    channel TEXT NOT NULL,
    value REAL NOT NULL,
    score REAL NOT NULL,
    kind TEXT NOT NULL,
    UNIQUE (timestamp, channel, kind)
);
CREATE INDEX IF NOT EXISTS idx_anomaly_channel ON anomaly_events(channel);
`

// Timestamps are stored in UTC with a fixed width, so that text order is time
// order.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

// DB is a handle on the history database. It is safe for concurrent use.
type DB struct {
	db  *sql.DB
	now func() time.Time
}

// Open opens (creating when missing) the history database at path. The
// special path ":memory:" opens a private in-memory database.
func Open(ctx context.Context, path string) (*DB, error) {
	dsn := ":memory:"
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("create history directory: %w", err)
		}
		dsn = path + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)"
	}
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	// SQLite has a single writer; an in-memory database lives in one connection.
	db.SetMaxOpenConns(1)

	if err := InitSchema(ctx, db); err != nil {
		db.Close()
		return nil, fmt.Errorf("initialize schema: %w", err)
	}
	return &DB{db: db, now: time.Now}, nil
}

// InitSchema creates the tables when missing and records the schema version.
func InitSchema(ctx context.Context, db *sql.DB) error {
	if _, err := db.ExecContext(ctx, schemaV1); err != nil {
		return fmt.Errorf("create tables: %w", err)
	}
	var version int
	err := db.QueryRowContext(ctx, `SELECT version FROM schema_version LIMIT 1`).Scan(&version)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		_, err = db.ExecContext(ctx, `INSERT INTO schema_version (version) VALUES (?)`, SchemaVersion)
		return err
	case err != nil:
		return fmt.Errorf("read schema version: %w", err)
	case version > SchemaVersion:
		return fmt.Errorf("database schema v%d is newer than supported v%d", version, SchemaVersion)
	}
	return nil
}

// Close releases the database.
func (h *DB) Close() error { return h.db.Close() }

// FEARun is a recorded solver invocation.
type FEARun struct {
	ID         string
	RecordedAt time.Time
	Input      fea.Input
	Output     fea.Output
}

// RecordFEARun stores a solver invocation and returns its id.
func (h *DB) RecordFEARun(ctx context.Context, in fea.Input, out fea.Output) (string, error) {
	id := uuid.NewString()
	_, err := h.db.ExecContext(ctx, `
		INSERT INTO fea_runs (id, recorded_at, avg_temp_c, max_vibration_g, max_stress_mpa, safety_factor, solved_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, id, h.now().UTC().Format(timeLayout), in.AvgTempC, in.MaxVibrationG,
		out.MaxStressVonMisesMPa, out.SafetyFactor, out.Timestamp.UTC().Format(timeLayout))
	if err != nil {
		return "", fmt.Errorf("insert fea run: %w", err)
	}
	return id, nil
}

// ListFEARuns returns up to limit runs, newest first. A non-positive limit
// returns every run.
func (h *DB) ListFEARuns(ctx context.Context, limit int) ([]FEARun, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := h.db.QueryContext(ctx, `
		SELECT id, recorded_at, avg_temp_c, max_vibration_g, max_stress_mpa, safety_factor, solved_at
		FROM fea_runs
		ORDER BY recorded_at DESC, rowid DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("query fea runs: %w", err)
	}
	defer rows.Close()

	var runs []FEARun
	for rows.Next() {
		var (
			r                  FEARun
			recorded, solvedAt string
		)
		err := rows.Scan(&r.ID, &recorded, &r.Input.AvgTempC, &r.Input.MaxVibrationG,
			&r.Output.MaxStressVonMisesMPa, &r.Output.SafetyFactor, &solvedAt)
		if err != nil {
			return nil, fmt.Errorf("scan fea run: %w", err)
		}
		if r.RecordedAt, err = time.Parse(timeLayout, recorded); err != nil {
			return nil, fmt.Errorf("parse recorded_at of %s: %w", r.ID, err)
		}
		if r.Output.Timestamp, err = time.Parse(timeLayout, solvedAt); err != nil {
			return nil, fmt.Errorf("parse solved_at of %s: %w", r.ID, err)
		}
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

// RecordAnomalies stores the events in one transaction. An event already
// recorded (same timestamp, channel and kind) is ignored, so replaying a
// dataset does not inflate the counts.
func (h *DB) RecordAnomalies(ctx context.Context, events []anomaly.Event) (err error) {
	if len(events) == 0 {
		return nil
	}
	tx, err := h.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT OR IGNORE INTO anomaly_events (timestamp, channel, value, score, kind)
		VALUES (?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("prepare: %w", err)
	}
	defer stmt.Close()

	for _, e := range events {
		_, err = stmt.ExecContext(ctx, e.Timestamp.UTC().Format(timeLayout), string(e.Channel), e.Value, e.Score, string(e.Kind))
		if err != nil {
			return fmt.Errorf("insert anomaly: %w", err)
		}
	}
	return tx.Commit()
}

// CountAnomalies returns the number of recorded events per channel.
func (h *DB) CountAnomalies(ctx context.Context) (map[cabintwin.Channel]int, error) {
	rows, err := h.db.QueryContext(ctx, `SELECT channel, count(*) FROM anomaly_events GROUP BY channel`)
	if err != nil {
		return nil, fmt.Errorf("query anomaly counts: %w", err)
	}
	defer rows.Close()

	counts := make(map[cabintwin.Channel]int)
	for rows.Next() {
		var (
			channel string
			n       int
		)
		if err := rows.Scan(&channel, &n); err != nil {
			return nil, fmt.Errorf("scan anomaly count: %w", err)
		}
		counts[cabintwin.Channel(channel)] = n
	}
	return counts, rows.Err()
}
