// Package store persists repository records and sync times in SQLite.
//
// A Store owns a single connection, so concurrent callers are serialized
// by the store itself and need no locking of their own.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// timeLayout is fixed-width so that stored times sort lexically.
const timeLayout = "2006-01-02T15:04:05.000000000Z"

// ErrNotFound is returned when a lookup matches no repository.
var ErrNotFound = errors.New("repository not found")

// Repository is one row of the repositories table.
type Repository struct {
	LastSync  *time.Time
	Name      string
	URL       string
	LocalPath string
	ID        int64
	Active    bool
}

// Statistics aggregates the repositories table.
type Statistics struct {
	LastSync    *time.Time
	Total       int
	Active      int
	NeverSynced int
}

// Store is the SQLite-backed record store.
type Store struct {
	db *sql.DB
}

// Open opens (creating if needed) the database at path and applies the
// schema. ":memory:" opens a private in-memory database.
func Open(path string) (*Store, error) {
	dsn := ":memory:"
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
		dsn = "file:" + path + "?_busy_timeout=5000&_foreign_keys=on"
	}

	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// One connection keeps writes ordered and keeps ":memory:" a single database.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(SchemaSQL); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	return &Store{db: db}, nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// UpsertRepository returns the id of the (name, url, localPath) row,
// inserting it if missing and reactivating it otherwise.
func (s *Store) UpsertRepository(ctx context.Context, name, url, localPath string) (int64, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var id int64
	err = tx.QueryRowContext(ctx,
		"SELECT id FROM repositories WHERE name = ? AND url = ? AND local_path = ?",
		name, url, localPath,
	).Scan(&id)

	switch {
	case errors.Is(err, sql.ErrNoRows):
		res, err := tx.ExecContext(ctx,
			"INSERT INTO repositories (name, url, local_path, is_active) VALUES (?, ?, ?, 1)",
			name, url, localPath,
		)
		if err != nil {
			return 0, fmt.Errorf("failed to insert repository %s: %w", name, err)
		}
		if id, err = res.LastInsertId(); err != nil {
			return 0, fmt.Errorf("failed to read repository id: %w", err)
		}
	case err != nil:
		return 0, fmt.Errorf("failed to look up repository %s: %w", name, err)
	default:
		if _, err := tx.ExecContext(ctx, "UPDATE repositories SET is_active = 1 WHERE id = ?", id); err != nil {
			return 0, fmt.Errorf("failed to reactivate repository %s: %w", name, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit repository %s: %w", name, err)
	}
	return id, nil
}

// UpdateLastSync records t as the last successful sync of repository id.
func (s *Store) UpdateLastSync(ctx context.Context, id int64, t time.Time) error {
	res, err := s.db.ExecContext(ctx,
		"UPDATE repositories SET last_sync = ? WHERE id = ?",
		formatTime(t), id,
	)
	if err != nil {
		return fmt.Errorf("failed to update last sync: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to update last sync: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("repository %d: %w", id, ErrNotFound)
	}
	return nil
}

// Deactivate marks repository id inactive. Its history is kept.
func (s *Store) Deactivate(ctx context.Context, id int64) error {
	res, err := s.db.ExecContext(ctx, "UPDATE repositories SET is_active = 0 WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("failed to deactivate repository: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("repository %d: %w", id, ErrNotFound)
	}
	return nil
}

// Statistics summarizes all rows.
func (s *Store) Statistics(ctx context.Context) (Statistics, error) {
	var (
		stats    Statistics
		active   sql.NullInt64
		never    sql.NullInt64
		lastSync sql.NullString
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*),
		       SUM(CASE WHEN is_active = 1 THEN 1 ELSE 0 END),
		       SUM(CASE WHEN last_sync IS NULL THEN 1 ELSE 0 END),
		       MAX(last_sync)
		FROM repositories`,
	).Scan(&stats.Total, &active, &never, &lastSync)
	if err != nil {
		return Statistics{}, fmt.Errorf("failed to compute statistics: %w", err)
	}

	stats.Active = int(active.Int64)
	stats.NeverSynced = int(never.Int64)
	if stats.LastSync, err = parseTime(lastSync); err != nil {
		return Statistics{}, err
	}
	return stats, nil
}

// ListRepositories returns repositories ordered by name, optionally only
// the active ones.
func (s *Store) ListRepositories(ctx context.Context, activeOnly bool) ([]Repository, error) {
	query := "SELECT id, name, url, local_path, last_sync, is_active FROM repositories"
	if activeOnly {
		query += " WHERE is_active = 1"
	}
	query += " ORDER BY name, id"

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list repositories: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []Repository
	for rows.Next() {
		r, err := scanRepository(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to list repositories: %w", err)
	}
	return out, nil
}

// GetByName returns the repository called name, preferring an active row
// and then the most recently added one.
func (s *Store) GetByName(ctx context.Context, name string) (*Repository, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, name, url, local_path, last_sync, is_active
		FROM repositories WHERE name = ?
		ORDER BY is_active DESC, id DESC LIMIT 1`,
		name,
	)
	r, err := scanRepository(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%s: %w", name, ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return &r, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRepository(sc scanner) (Repository, error) {
	var (
		r        Repository
		lastSync sql.NullString
		active   int
	)
	if err := sc.Scan(&r.ID, &r.Name, &r.URL, &r.LocalPath, &lastSync, &active); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Repository{}, err
		}
		return Repository{}, fmt.Errorf("failed to scan repository: %w", err)
	}
	r.Active = active == 1
	t, err := parseTime(lastSync)
	if err != nil {
		return Repository{}, err
	}
	r.LastSync = t
	return r, nil
}

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(v sql.NullString) (*time.Time, error) {
	if !v.Valid || v.String == "" {
		return nil, nil
	}
	t, err := time.Parse(timeLayout, v.String)
	if err != nil {
		return nil, fmt.Errorf("failed to parse stored time %q: %w", v.String, err)
	}
	return &t, nil
}
