//go:build sqlite
// +build sqlite

package store

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	logx "linebell/pkg/logx"

	_ "modernc.org/sqlite"
)

//go:embed migrations.sql
var migrationsFS embed.FS

type sqliteStore struct {
	db  *sql.DB
	log logx.Logger
}

func openSQLite(cfg Config, log logx.Logger) (Store, error) {
	if strings.TrimSpace(cfg.Path) == "" {
		return nil, errors.New("sqlite path is required")
	}
	if err := os.MkdirAll(filepath.Dir(cfg.Path), 0o755); err != nil {
		return nil, persistErr("open", err)
	}

	db, err := sql.Open("sqlite", cfg.Path)
	if err != nil {
		return nil, persistErr("open", err)
	}
	// SQLite prefers a small number of concurrent writers.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if cfg.BusyTimeout > 0 {
		_, _ = db.Exec(fmt.Sprintf("PRAGMA busy_timeout = %d", cfg.BusyTimeout.Milliseconds()))
	}
	_, _ = db.Exec("PRAGMA journal_mode = WAL")
	_, _ = db.Exec("PRAGMA synchronous = NORMAL")

	st := &sqliteStore{db: db, log: log}
	if err := st.migrate(context.Background()); err != nil {
		_ = db.Close()
		return nil, persistErr("migrate", err)
	}
	return st, nil
}

func (s *sqliteStore) migrate(ctx context.Context) error {
	b, err := migrationsFS.ReadFile("migrations.sql")
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, string(b))
	return err
}

func (s *sqliteStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *sqliteStore) LoadAll(ctx context.Context) ([]Job, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, recipients, title, message, trigger_at, recurrence, week_day, delivered, last_fired, created_at
		 FROM jobs ORDER BY rowid`)
	if err != nil {
		return nil, persistErr("load", err)
	}
	defer rows.Close()

	jobs := []Job{}
	for rows.Next() {
		j, err := scanJob(rows)
		if err != nil {
			return nil, persistErr("decode", err)
		}
		jobs = append(jobs, j)
	}
	if err := rows.Err(); err != nil {
		return nil, persistErr("load", err)
	}
	return jobs, nil
}

// ReplaceAll rewrites the whole table in one transaction, mirroring the file
// driver's atomic whole-file overwrite.
func (s *sqliteStore) ReplaceAll(ctx context.Context, jobs []Job) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return persistErr("replace", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `DELETE FROM jobs`); err != nil {
		return persistErr("replace", err)
	}
	for _, j := range jobs {
		if err := insertJob(ctx, tx, j); err != nil {
			return persistErr("replace", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return persistErr("replace", err)
	}
	return nil
}

func (s *sqliteStore) AppendOne(ctx context.Context, j Job) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return persistErr("append", err)
	}
	defer func() { _ = tx.Rollback() }()
	if err := insertJob(ctx, tx, j); err != nil {
		return persistErr("append", err)
	}
	if err := tx.Commit(); err != nil {
		return persistErr("append", err)
	}
	return nil
}

func (s *sqliteStore) FindByID(ctx context.Context, id string) (Job, bool, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, recipients, title, message, trigger_at, recurrence, week_day, delivered, last_fired, created_at
		 FROM jobs WHERE id = ?`, id)
	j, err := scanJob(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Job{}, false, nil
	}
	if err != nil {
		return Job{}, false, persistErr("find", err)
	}
	return j, true, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func insertJob(ctx context.Context, tx *sql.Tx, j Job) error {
	rec, err := json.Marshal(j.Recipients)
	if err != nil {
		return err
	}
	var wd any
	if j.WeekDay != nil {
		wd = *j.WeekDay
	}
	delivered := 0
	if j.Delivered {
		delivered = 1
	}
	_, err = tx.ExecContext(ctx,
		`INSERT INTO jobs(id, recipients, title, message, trigger_at, recurrence, week_day, delivered, last_fired, created_at)
		 VALUES(?,?,?,?,?,?,?,?,?,?)`,
		j.ID, string(rec), j.Title, j.MessageText,
		j.TriggerAt.Format(time.RFC3339Nano), string(j.Recurrence), wd,
		delivered, j.LastFired, j.CreatedAt.Format(time.RFC3339Nano),
	)
	return err
}

func scanJob(r rowScanner) (Job, error) {
	var (
		j          Job
		rec        string
		triggerAt  string
		recurrence string
		weekDay    sql.NullInt64
		delivered  int
		createdAt  string
	)
	if err := r.Scan(&j.ID, &rec, &j.Title, &j.MessageText, &triggerAt, &recurrence, &weekDay, &delivered, &j.LastFired, &createdAt); err != nil {
		return Job{}, err
	}
	if err := json.Unmarshal([]byte(rec), &j.Recipients); err != nil {
		return Job{}, err
	}
	ts, err := time.Parse(time.RFC3339Nano, triggerAt)
	if err != nil {
		return Job{}, err
	}
	j.TriggerAt = ts
	if createdAt != "" {
		if ct, err := time.Parse(time.RFC3339Nano, createdAt); err == nil {
			j.CreatedAt = ct
		}
	}
	j.Recurrence = Recurrence(recurrence)
	if weekDay.Valid {
		wd := int(weekDay.Int64)
		j.WeekDay = &wd
	}
	j.Delivered = delivered != 0
	return j, nil
}
