package runstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/sprintagent/sprintagent/internal/apperr"
)

// SQLiteStore implements Store using SQLite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens (or creates) a SQLite database and runs migrations.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("run store: open: %w", err)
	}

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("run store: wal: %w", err)
	}
	if _, err := db.Exec("PRAGMA busy_timeout=5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("run store: busy timeout: %w", err)
	}

	s := &SQLiteStore{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *SQLiteStore) migrate() error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS runs (
			id          TEXT PRIMARY KEY,
			source      TEXT NOT NULL DEFAULT '',
			input       TEXT NOT NULL,
			project_key TEXT NOT NULL DEFAULT '',
			success     INTEGER NOT NULL DEFAULT 0,
			message     TEXT NOT NULL DEFAULT '',
			tasks       TEXT NOT NULL DEFAULT '[]',
			keys        TEXT NOT NULL DEFAULT '[]',
			logs        TEXT NOT NULL DEFAULT '[]',
			created_at  TEXT NOT NULL,
			finished_at TEXT NOT NULL DEFAULT ''
		);

		CREATE TABLE IF NOT EXISTS run_tickets (
			key         TEXT PRIMARY KEY,
			run_id      TEXT NOT NULL,
			summary     TEXT NOT NULL DEFAULT '',
			project_key TEXT NOT NULL DEFAULT '',
			jira_server TEXT NOT NULL DEFAULT '',
			github_repo TEXT NOT NULL DEFAULT '',
			pr_number   INTEGER NOT NULL DEFAULT 0,
			pr_state    TEXT NOT NULL DEFAULT '',
			pr_merged   INTEGER NOT NULL DEFAULT 0,
			checked_at  TEXT,
			created_at  TEXT NOT NULL
		);

		CREATE INDEX IF NOT EXISTS idx_runs_created ON runs(created_at);
		CREATE INDEX IF NOT EXISTS idx_run_tickets_run ON run_tickets(run_id);
		CREATE INDEX IF NOT EXISTS idx_run_tickets_pending ON run_tickets(pr_merged, pr_state);
	`)
	if err != nil {
		return fmt.Errorf("run store: migrate: %w", err)
	}
	return nil
}

func (s *SQLiteStore) SaveRun(ctx context.Context, r *Run) error {
	tasks, _ := json.Marshal(nonNil(r.Tasks))
	keys, _ := json.Marshal(nonNil(r.Keys))
	logs, _ := json.Marshal(nonNil(r.Logs))
	var finished string
	if !r.FinishedAt.IsZero() {
		finished = r.FinishedAt.UTC().Format(time.RFC3339Nano)
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO runs (id, source, input, project_key, success, message, tasks, keys, logs, created_at, finished_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			source=excluded.source, input=excluded.input, project_key=excluded.project_key,
			success=excluded.success, message=excluded.message, tasks=excluded.tasks,
			keys=excluded.keys, logs=excluded.logs, finished_at=excluded.finished_at
	`, r.ID, r.Source, r.Input, r.ProjectKey, boolInt(r.Success), r.Message, string(tasks), string(keys),
		string(logs), r.CreatedAt.UTC().Format(time.RFC3339Nano), finished)
	if err != nil {
		return fmt.Errorf("run store: save run: %w", err)
	}
	return nil
}

const runColumns = "id, source, input, project_key, success, message, tasks, keys, logs, created_at, finished_at"

func (s *SQLiteStore) GetRun(ctx context.Context, id string) (*Run, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+runColumns+` FROM runs WHERE id = ?`, id)
	r, err := scanRun(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperr.NotFoundf("runstore.get", "run %q not found", id)
		}
		return nil, fmt.Errorf("run store: get run: %w", err)
	}
	return r, nil
}

func (s *SQLiteStore) ListRuns(ctx context.Context, limit int) ([]*Run, error) {
	query := `SELECT ` + runColumns + ` FROM runs ORDER BY created_at DESC`
	if limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", limit)
	}
	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("run store: list runs: %w", err)
	}
	defer rows.Close()

	var runs []*Run
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("run store: list runs scan: %w", err)
		}
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

func (s *SQLiteStore) RecordTicket(ctx context.Context, t TicketRecord) error {
	created := t.CreatedAt
	if created.IsZero() {
		created = time.Now()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO run_tickets (key, run_id, summary, project_key, jira_server, github_repo, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET
			run_id=excluded.run_id, summary=excluded.summary, github_repo=excluded.github_repo
	`, t.Key, t.RunID, t.Summary, t.ProjectKey, t.JiraServer, t.GitHubRepo, created.UTC().Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("run store: record ticket: %w", err)
	}
	return nil
}

const ticketColumns = "key, run_id, summary, project_key, jira_server, github_repo, pr_number, pr_state, pr_merged, checked_at, created_at"

func (s *SQLiteStore) RunTickets(ctx context.Context, runID string) ([]TicketRecord, error) {
	return s.queryTickets(ctx, `SELECT `+ticketColumns+` FROM run_tickets WHERE run_id = ? ORDER BY created_at, key`, runID)
}

func (s *SQLiteStore) PendingTickets(ctx context.Context, limit int) ([]TicketRecord, error) {
	query := `SELECT ` + ticketColumns + ` FROM run_tickets
		WHERE pr_merged = 0 AND pr_state != 'closed'
		ORDER BY COALESCE(checked_at, ''), created_at`
	if limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", limit)
	}
	return s.queryTickets(ctx, query)
}

func (s *SQLiteStore) queryTickets(ctx context.Context, query string, args ...any) ([]TicketRecord, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("run store: query tickets: %w", err)
	}
	defer rows.Close()

	var out []TicketRecord
	for rows.Next() {
		t, err := scanTicket(rows)
		if err != nil {
			return nil, fmt.Errorf("run store: scan ticket: %w", err)
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) UpdatePR(ctx context.Context, key string, u PRUpdate) error {
	checked := u.CheckedAt
	if checked.IsZero() {
		checked = time.Now()
	}
	result, err := s.db.ExecContext(ctx, `UPDATE run_tickets SET pr_number = ?, pr_state = ?, pr_merged = ?, checked_at = ? WHERE key = ?`,
		u.Number, u.State, boolInt(u.Merged), checked.UTC().Format(time.RFC3339Nano), key)
	if err != nil {
		return fmt.Errorf("run store: update pr: %w", err)
	}
	n, _ := result.RowsAffected()
	if n == 0 {
		return apperr.NotFoundf("runstore.update_pr", "ticket %q not recorded", key)
	}
	return nil
}

func (s *SQLiteStore) TouchChecked(ctx context.Context, key string, at time.Time) error {
	if at.IsZero() {
		at = time.Now()
	}
	result, err := s.db.ExecContext(ctx, `UPDATE run_tickets SET checked_at = ? WHERE key = ?`,
		at.UTC().Format(time.RFC3339Nano), key)
	if err != nil {
		return fmt.Errorf("run store: touch checked: %w", err)
	}
	n, _ := result.RowsAffected()
	if n == 0 {
		return apperr.NotFoundf("runstore.touch_checked", "ticket %q not recorded", key)
	}
	return nil
}

func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// DB returns the underlying database connection.
func (s *SQLiteStore) DB() *sql.DB {
	return s.db
}

// --- helpers ---

type scannable interface {
	Scan(dest ...any) error
}

func scanRun(row scannable) (*Run, error) {
	var r Run
	var success int
	var tasks, keys, logs, created, finished string
	if err := row.Scan(&r.ID, &r.Source, &r.Input, &r.ProjectKey, &success, &r.Message,
		&tasks, &keys, &logs, &created, &finished); err != nil {
		return nil, err
	}
	r.Success = success != 0
	json.Unmarshal([]byte(tasks), &r.Tasks)
	json.Unmarshal([]byte(keys), &r.Keys)
	json.Unmarshal([]byte(logs), &r.Logs)
	r.CreatedAt, _ = time.Parse(time.RFC3339Nano, created)
	if finished != "" {
		r.FinishedAt, _ = time.Parse(time.RFC3339Nano, finished)
	}
	return &r, nil
}

func scanTicket(row scannable) (TicketRecord, error) {
	var t TicketRecord
	var merged int
	var checked sql.NullString
	var created string
	if err := row.Scan(&t.Key, &t.RunID, &t.Summary, &t.ProjectKey, &t.JiraServer, &t.GitHubRepo,
		&t.PRNumber, &t.PRState, &merged, &checked, &created); err != nil {
		return TicketRecord{}, err
	}
	t.PRMerged = merged != 0
	if checked.Valid && checked.String != "" {
		if ts, err := time.Parse(time.RFC3339Nano, checked.String); err == nil {
			t.CheckedAt = &ts
		}
	}
	t.CreatedAt, _ = time.Parse(time.RFC3339Nano, created)
	return t, nil
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
