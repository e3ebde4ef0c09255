package job

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "modernc.org/sqlite"
)

// SQLiteStore is a SQLite-backed implementation of Store. Job records
// survive restarts; artifact files do not, which is why startup recovery
// fails interrupted jobs instead of re-running them.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens (or creates) the SQLite database at dbPath and runs migrations.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}

	// WAL mode for better concurrent read performance.
	if _, err = db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enable WAL mode: %w", err)
	}

	s := &SQLiteStore{db: db}
	if err = s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return s, nil
}

func (s *SQLiteStore) migrate() error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS conversions (
			id                TEXT PRIMARY KEY,
			direction         TEXT NOT NULL,
			original_filename TEXT NOT NULL,
			source_format     TEXT NOT NULL,
			target_format     TEXT NOT NULL,
			mode              TEXT NOT NULL,
			status            TEXT NOT NULL DEFAULT 'pending',
			method            TEXT NOT NULL DEFAULT '',
			input_path        TEXT NOT NULL DEFAULT '',
			output_path       TEXT NOT NULL DEFAULT '',
			output_filename   TEXT NOT NULL DEFAULT '',
			file_size         INTEGER NOT NULL DEFAULT 0,
			error             TEXT NOT NULL DEFAULT '',
			metadata          TEXT,
			callback_url      TEXT NOT NULL DEFAULT '',
			created_at        DATETIME NOT NULL,
			started_at        DATETIME,
			completed_at      DATETIME
		);
		CREATE INDEX IF NOT EXISTS idx_conversions_status       ON conversions(status);
		CREATE INDEX IF NOT EXISTS idx_conversions_completed_at ON conversions(completed_at);
	`)
	return err
}

func (s *SQLiteStore) Create(ctx context.Context, j *Job) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO conversions
			(id, direction, original_filename, source_format, target_format, mode,
			 status, input_path, callback_url, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		j.ID, j.Direction, j.OriginalFilename, j.SourceFormat, j.TargetFormat,
		j.Mode, StatusPending, j.InputPath, j.CallbackURL, j.CreatedAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("create job: %w", err)
	}
	return nil
}

func (s *SQLiteStore) Get(ctx context.Context, id string) (*Job, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, direction, original_filename, source_format, target_format, mode,
		       status, method, input_path, output_path, output_filename, file_size,
		       error, metadata, callback_url, created_at, started_at, completed_at
		FROM conversions WHERE id = ?
	`, id)

	j, err := scanJob(row.Scan)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get job %s: %w", id, err)
	}
	return j, nil
}

func scanJob(scan func(...any) error) (*Job, error) {
	j := &Job{}
	var metadata sql.NullString
	var startedAt, completedAt sql.NullTime

	err := scan(
		&j.ID, &j.Direction, &j.OriginalFilename, &j.SourceFormat, &j.TargetFormat,
		&j.Mode, &j.Status, &j.Method, &j.InputPath, &j.OutputPath,
		&j.OutputFilename, &j.FileSize, &j.Error, &metadata, &j.CallbackURL,
		&j.CreatedAt, &startedAt, &completedAt,
	)
	if err != nil {
		return nil, err
	}

	if metadata.Valid && metadata.String != "" {
		_ = json.Unmarshal([]byte(metadata.String), &j.Metadata)
	}
	if startedAt.Valid {
		t := startedAt.Time
		j.StartedAt = &t
	}
	if completedAt.Valid {
		t := completedAt.Time
		j.CompletedAt = &t
	}
	return j, nil
}

func (s *SQLiteStore) MarkProcessing(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE conversions SET status = ?, started_at = ?
		WHERE id = ? AND status NOT IN (?, ?)
	`, StatusProcessing, time.Now().UTC(), id, StatusCompleted, StatusFailed)
	if err != nil {
		return fmt.Errorf("mark processing %s: %w", id, err)
	}
	return s.checkTransition(ctx, res, id)
}

func (s *SQLiteStore) Complete(ctx context.Context, id string, a Artifact) error {
	meta := ""
	if a.Metadata != nil {
		if b, err := json.Marshal(a.Metadata); err == nil {
			meta = string(b)
		}
	}
	res, err := s.db.ExecContext(ctx, `
		UPDATE conversions
		SET status = ?, method = ?, output_path = ?, output_filename = ?,
		    file_size = ?, metadata = ?, completed_at = ?
		WHERE id = ? AND status NOT IN (?, ?)
	`, StatusCompleted, a.Method, a.Path, a.Filename, a.Size, meta,
		time.Now().UTC(), id, StatusCompleted, StatusFailed)
	if err != nil {
		return fmt.Errorf("complete job %s: %w", id, err)
	}
	return s.checkTransition(ctx, res, id)
}

func (s *SQLiteStore) Fail(ctx context.Context, id, reason string) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE conversions SET status = ?, error = ?, completed_at = ?
		WHERE id = ? AND status NOT IN (?, ?)
	`, StatusFailed, reason, time.Now().UTC(), id, StatusCompleted, StatusFailed)
	if err != nil {
		return fmt.Errorf("fail job %s: %w", id, err)
	}
	return s.checkTransition(ctx, res, id)
}

// checkTransition distinguishes "no such job" from "already terminal" after
// a guarded UPDATE matched zero rows.
func (s *SQLiteStore) checkTransition(ctx context.Context, res sql.Result, id string) error {
	n, err := res.RowsAffected()
	if err != nil || n > 0 {
		return err
	}
	if _, err := s.Get(ctx, id); err != nil {
		return err
	}
	return ErrTerminal
}

func (s *SQLiteStore) ClearArtifact(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx, `UPDATE conversions SET output_path = '' WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("clear artifact %s: %w", id, err)
	}
	return nil
}

func (s *SQLiteStore) Delete(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM conversions WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete job %s: %w", id, err)
	}
	return nil
}

// FailProcessing marks all jobs stuck in pending/processing as failed.
// Returns the IDs of the affected jobs.
func (s *SQLiteStore) FailProcessing(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id FROM conversions WHERE status IN (?, ?)
	`, StatusPending, StatusProcessing)
	if err != nil {
		return nil, fmt.Errorf("query in-flight jobs: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan job id: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate in-flight jobs: %w", err)
	}

	if len(ids) == 0 {
		return nil, nil
	}

	_, err = s.db.ExecContext(ctx, `
		UPDATE conversions
		SET status = ?, error = 'conversion interrupted by service restart', completed_at = ?
		WHERE status IN (?, ?)
	`, StatusFailed, time.Now().UTC(), StatusPending, StatusProcessing)
	if err != nil {
		return nil, fmt.Errorf("fail in-flight jobs: %w", err)
	}
	return ids, nil
}

func (s *SQLiteStore) DeleteTerminalBefore(ctx context.Context, before time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, `
		DELETE FROM conversions
		WHERE status IN (?, ?)
		AND completed_at IS NOT NULL
		AND completed_at < ?
	`, StatusCompleted, StatusFailed, before.UTC())
	if err != nil {
		return 0, fmt.Errorf("delete terminal jobs: %w", err)
	}
	return res.RowsAffected()
}

// Close closes the underlying database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
