package store

// Package store keeps a local history of the projects this client created.
// The service owns project state; the history only remembers ids so they can
// be listed, inspected and pruned later.

import (
	"database/sql"
	"errors"
	"time"

	_ "modernc.org/sqlite"
)

// ProjectStatus is the last outcome the client observed for a project.
type ProjectStatus string

const (
	StatusUploaded  ProjectStatus = "UPLOADED"  // accepted by the service, not yet finished
	StatusCompleted ProjectStatus = "COMPLETED" // polled to success
	StatusFailed    ProjectStatus = "FAILED"    // remote job reported an error
	StatusDeleted   ProjectStatus = "DELETED"   // removed from the service
)

// ErrNotFound is returned when a project id is not in the history.
var ErrNotFound = errors.New("project not found in history")

// ProjectRecord represents a row in the 'projects' table.
type ProjectRecord struct {
	ID        string
	Files     int
	Dest      sql.NullString
	Status    ProjectStatus
	Error     sql.NullString
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Store wraps the SQL database connection.
type Store struct {
	db *sql.DB
}

// NewStore opens (or creates) the history database and runs migrations.
func NewStore(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, err
	}
	// Single writer; avoids SQLITE_BUSY between the CLI and a watch session.
	db.SetMaxOpenConns(1)

	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, err
	}

	return s, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) migrate() error {
	query := `
	PRAGMA busy_timeout = 5000;
	CREATE TABLE IF NOT EXISTS projects (
		id TEXT PRIMARY KEY,
		files INTEGER NOT NULL DEFAULT 0,
		dest TEXT,
		status TEXT NOT NULL,
		error TEXT,
		created_at DATETIME NOT NULL,
		updated_at DATETIME NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_projects_status_created ON projects(status, created_at);
	`
	_, err := s.db.Exec(query)
	return err
}

// RecordUpload stores a freshly created project.
func (s *Store) RecordUpload(id string, files int, dest string) error {
	now := time.Now().UTC()
	query := `
	INSERT INTO projects (id, files, dest, status, created_at, updated_at)
	VALUES (?, ?, ?, ?, ?, ?)
	ON CONFLICT(id) DO UPDATE SET
		files = excluded.files,
		dest = excluded.dest,
		status = excluded.status,
		updated_at = excluded.updated_at;
	`
	_, err := s.db.Exec(query, id, files, nullString(dest), StatusUploaded, now, now)
	return err
}

// MarkCompleted records a successful poll.
func (s *Store) MarkCompleted(id string) error {
	return s.setStatus(id, StatusCompleted, "")
}

// MarkFailed records a failed remote job.
func (s *Store) MarkFailed(id string, message string) error {
	return s.setStatus(id, StatusFailed, message)
}

// MarkDeleted records that the project was removed from the service.
func (s *Store) MarkDeleted(id string) error {
	return s.setStatus(id, StatusDeleted, "")
}

func (s *Store) setStatus(id string, status ProjectStatus, message string) error {
	query := `
	UPDATE projects
	SET status = ?, error = ?, updated_at = ?
	WHERE id = ?;
	`
	res, err := s.db.Exec(query, status, nullString(message), time.Now().UTC(), id)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// Get returns a single project.
func (s *Store) Get(id string) (ProjectRecord, error) {
	query := `
	SELECT id, files, dest, status, error, created_at, updated_at
	FROM projects
	WHERE id = ?
	`
	var p ProjectRecord
	err := s.db.QueryRow(query, id).Scan(&p.ID, &p.Files, &p.Dest, &p.Status, &p.Error, &p.CreatedAt, &p.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return ProjectRecord{}, ErrNotFound
	}
	return p, err
}

// List returns the most recent projects first.
func (s *Store) List(limit int) ([]ProjectRecord, error) {
	query := `
	SELECT id, files, dest, status, error, created_at, updated_at
	FROM projects
	ORDER BY created_at DESC, rowid DESC
	LIMIT ?
	`
	return s.query(query, limit)
}

// GetPruneCandidates returns projects still present on the service, skipping
// the newest keep of them. Oldest first.
func (s *Store) GetPruneCandidates(keep int) ([]ProjectRecord, error) {
	query := `
	SELECT id, files, dest, status, error, created_at, updated_at
	FROM projects
	WHERE status != ?
	ORDER BY created_at DESC, rowid DESC
	LIMIT -1 OFFSET ?
	`
	records, err := s.query(query, StatusDeleted, keep)
	if err != nil {
		return nil, err
	}
	// reverse into oldest-first order
	for i, j := 0, len(records)-1; i < j; i, j = i+1, j-1 {
		records[i], records[j] = records[j], records[i]
	}
	return records, nil
}

func (s *Store) query(query string, args ...any) ([]ProjectRecord, error) {
	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []ProjectRecord
	for rows.Next() {
		var p ProjectRecord
		if err := rows.Scan(&p.ID, &p.Files, &p.Dest, &p.Status, &p.Error, &p.CreatedAt, &p.UpdatedAt); err != nil {
			return nil, err
		}
		records = append(records, p)
	}
	return records, rows.Err()
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
