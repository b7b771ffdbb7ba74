// Package journal keeps a history of update and environment runs in a
// SQLite database under the application data root.
package journal

import (
	"context"
	"database/sql"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite" // Pure Go SQLite driver
)

// Kinds of recorded runs.
const (
	KindUpdate      = "update"
	KindEnvironment = "environment"
)

// OutcomeOK marks a successful run. Failed runs store their error code.
const OutcomeOK = "ok"

// Entry is one recorded run.
type Entry struct {
	ID         string
	Kind       string
	StartedAt  time.Time
	FinishedAt time.Time
	Mode       string
	Remote     string
	Revision   string
	Added      int
	Modified   int
	Removed    int
	DryRun     bool
	Outcome    string
	Message    string
}

// Succeeded reports whether the run finished without error.
func (e Entry) Succeeded() bool {
	return e.Outcome == OutcomeOK
}

const schema = `
CREATE TABLE IF NOT EXISTS runs (
	id          TEXT PRIMARY KEY,
	kind        TEXT NOT NULL,
	started_at  TEXT NOT NULL,
	finished_at TEXT NOT NULL,
	mode        TEXT NOT NULL DEFAULT '',
	remote      TEXT NOT NULL DEFAULT '',
	revision    TEXT NOT NULL DEFAULT '',
	added       INTEGER NOT NULL DEFAULT 0,
	modified    INTEGER NOT NULL DEFAULT 0,
	removed     INTEGER NOT NULL DEFAULT 0,
	dry_run     INTEGER NOT NULL DEFAULT 0,
	outcome     TEXT NOT NULL,
	message     TEXT NOT NULL DEFAULT ''
);
CREATE INDEX IF NOT EXISTS runs_started_at ON runs(started_at);
`

// Journal is an open history database.
type Journal struct {
	db *sql.DB
}

// buildDSN creates a read-write WAL DSN for the given path.
func buildDSN(dbPath string) string {
	u := url.URL{
		Scheme: "file",
		Path:   filepath.ToSlash(dbPath),
	}
	q := url.Values{}
	q.Add("_pragma", "journal_mode(WAL)")
	q.Add("_pragma", "busy_timeout(3000)")
	u.RawQuery = q.Encode()
	return u.String()
}

// Open opens (creating if needed) the journal at path.
func Open(ctx context.Context, path string) (*Journal, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, fmt.Errorf("journal path not set")
	}
	//nolint:gosec // G301: per-user data directory
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("create journal directory: %w", err)
	}
	db, err := sql.Open("sqlite", buildDSN(path))
	if err != nil {
		return nil, fmt.Errorf("open journal: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping journal: %w", err)
	}
	if _, err := db.ExecContext(ctx, schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("migrate journal: %w", err)
	}
	return &Journal{db: db}, nil
}

// Close releases the database.
func (j *Journal) Close() error {
	return j.db.Close()
}

// Record stores e, assigning an ID when empty, and returns the stored entry.
func (j *Journal) Record(ctx context.Context, e Entry) (Entry, error) {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.FinishedAt.IsZero() {
		e.FinishedAt = time.Now().UTC()
	}
	if e.StartedAt.IsZero() {
		e.StartedAt = e.FinishedAt
	}
	if e.Outcome == "" {
		e.Outcome = OutcomeOK
	}
	_, err := j.db.ExecContext(ctx, `
		INSERT INTO runs (id, kind, started_at, finished_at, mode, remote, revision,
			added, modified, removed, dry_run, outcome, message)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, e.ID, e.Kind, formatTime(e.StartedAt), formatTime(e.FinishedAt), e.Mode, e.Remote, e.Revision,
		e.Added, e.Modified, e.Removed, boolInt(e.DryRun), e.Outcome, e.Message)
	if err != nil {
		return Entry{}, fmt.Errorf("record run: %w", err)
	}
	return e, nil
}

// Recent returns up to limit entries, newest first. kind filters when
// non-empty.
func (j *Journal) Recent(ctx context.Context, kind string, limit int) ([]Entry, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := j.db.QueryContext(ctx, `
		SELECT id, kind, started_at, finished_at, mode, remote, revision,
			added, modified, removed, dry_run, outcome, message
		FROM runs
		WHERE (? = '' OR kind = ?)
		ORDER BY started_at DESC, rowid DESC
		LIMIT ?
	`, kind, kind, limit)
	if err != nil {
		return nil, fmt.Errorf("query runs: %w", err)
	}
	defer func() {
		_ = rows.Close()
	}()

	var out []Entry
	for rows.Next() {
		var (
			e                 Entry
			started, finished string
			dryRun            int
		)
		if err := rows.Scan(&e.ID, &e.Kind, &started, &finished, &e.Mode, &e.Remote, &e.Revision,
			&e.Added, &e.Modified, &e.Removed, &dryRun, &e.Outcome, &e.Message); err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		e.StartedAt = parseTime(started)
		e.FinishedAt = parseTime(finished)
		e.DryRun = dryRun != 0
		out = append(out, e)
	}
	return out, rows.Err()
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(s string) time.Time {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}
	}
	return t
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
