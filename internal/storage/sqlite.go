package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/Epistemic-Technology/study-rag/models"
)

// SQLiteStore implements the Store interface using SQLite
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore creates a new SQLite store
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	store := &SQLiteStore{db: db}
	if err := store.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return store, nil
}

// initSchema creates the database tables if they don't exist
func (s *SQLiteStore) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS studies (
		name TEXT PRIMARY KEY,
		bundle_path TEXT NOT NULL,
		library_id TEXT NOT NULL DEFAULT '',
		kind TEXT NOT NULL DEFAULT '',
		created_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_studies_library_id ON studies(library_id);
	`

	_, err := s.db.Exec(schema)
	return err
}

// RegisterStudy adds a study or replaces the entry with the same name
func (s *SQLiteStore) RegisterStudy(ctx context.Context, study models.Study) error {
	study.Name = strings.TrimSpace(study.Name)
	if study.Name == "" {
		return errors.New("study name is required")
	}
	if study.BundlePath == "" {
		return fmt.Errorf("bundle path is required for study %s", study.Name)
	}
	if study.CreatedAt == "" {
		study.CreatedAt = time.Now().UTC().Format(time.RFC3339)
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO studies (name, bundle_path, library_id, kind, created_at)
		VALUES (?, ?, ?, ?, ?)
	`, study.Name, study.BundlePath, study.LibraryID, string(study.Kind), study.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to register study %s: %w", study.Name, err)
	}
	return nil
}

// ResolveStudy looks up a study by name
func (s *SQLiteStore) ResolveStudy(ctx context.Context, name string) (*models.Study, error) {
	var study models.Study
	var kind string
	err := s.db.QueryRowContext(ctx, `
		SELECT name, bundle_path, library_id, kind, created_at
		FROM studies WHERE name = ?
	`, strings.TrimSpace(name)).Scan(&study.Name, &study.BundlePath, &study.LibraryID, &kind, &study.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, &StudyNotFoundError{Study: name}
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query study %s: %w", name, err)
	}
	study.Kind = models.CollectionKind(kind)
	return &study, nil
}

// ListStudies returns studies ordered by name
func (s *SQLiteStore) ListStudies(ctx context.Context, libraryIDs ...string) ([]models.Study, error) {
	query := `SELECT name, bundle_path, library_id, kind, created_at FROM studies`
	args := make([]any, 0, len(libraryIDs))
	if len(libraryIDs) > 0 {
		placeholders := make([]string, len(libraryIDs))
		for i, id := range libraryIDs {
			placeholders[i] = "?"
			args = append(args, id)
		}
		query += ` WHERE library_id IN (` + strings.Join(placeholders, ", ") + `)`
	}
	query += ` ORDER BY name`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query studies: %w", err)
	}
	defer rows.Close()

	var studies []models.Study
	for rows.Next() {
		var study models.Study
		var kind string
		if err := rows.Scan(&study.Name, &study.BundlePath, &study.LibraryID, &kind, &study.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan study: %w", err)
		}
		study.Kind = models.CollectionKind(kind)
		studies = append(studies, study)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating studies: %w", err)
	}

	return studies, nil
}

// DeleteStudy removes a study from the catalog
func (s *SQLiteStore) DeleteStudy(ctx context.Context, name string) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM studies WHERE name = ?`, name)
	if err != nil {
		return fmt.Errorf("failed to delete study: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check rows affected: %w", err)
	}

	if rowsAffected == 0 {
		return &StudyNotFoundError{Study: name}
	}

	return nil
}

// ImportStudyFiles registers the entries of a study_files.json map
func (s *SQLiteStore) ImportStudyFiles(ctx context.Context, path string, libraryID string) (int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, fmt.Errorf("failed to read %s: %w", path, err)
	}

	var files map[string]string
	if err := json.Unmarshal(data, &files); err != nil {
		return 0, fmt.Errorf("failed to parse %s: %w", path, err)
	}

	names := make([]string, 0, len(files))
	for name := range files {
		names = append(names, name)
	}
	sort.Strings(names)

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	now := time.Now().UTC().Format(time.RFC3339)
	imported := 0
	for _, name := range names {
		bundlePath := strings.TrimSpace(files[name])
		if strings.TrimSpace(name) == "" || bundlePath == "" {
			continue
		}
		_, err := tx.ExecContext(ctx, `
			INSERT OR REPLACE INTO studies (name, bundle_path, library_id, kind, created_at)
			VALUES (?, ?, ?, '', ?)
		`, strings.TrimSpace(name), bundlePath, libraryID, now)
		if err != nil {
			return 0, fmt.Errorf("failed to import study %s: %w", name, err)
		}
		imported++
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit import: %w", err)
	}
	return imported, nil
}

// Close closes the database connection
func (s *SQLiteStore) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// Ensure SQLiteStore implements Store interface
var _ Store = (*SQLiteStore)(nil)
