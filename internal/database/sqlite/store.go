// Package sqlite is the single-file backend of the feature cache.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"

	"github.com/kozaktomas/photolink/internal/features"
)

// Store persists feature records as JSON documents in SQLite.
type Store struct {
	db   *sql.DB
	path string
}

// Open initializes or connects to the cache database and applies migrations.
func Open(ctx context.Context, path string) (*Store, error) {
	if path == "" {
		return nil, errors.New("sqlite path is required")
	}
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("ensure cache directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	// A single connection keeps ":memory:" databases alive and serializes writers.
	db.SetMaxOpenConns(1)

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout = 5000",
	}
	for _, pragma := range pragmas {
		if _, execErr := db.ExecContext(ctx, pragma); execErr != nil {
			_ = db.Close()
			return nil, fmt.Errorf("apply pragma %q: %w", pragma, execErr)
		}
	}

	store := &Store{db: db, path: path}
	if err := store.applyMigrations(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return store, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *Store) Name() string {
	return "sqlite"
}

// Path returns the database file location.
func (s *Store) Path() string {
	return s.path
}

func (s *Store) GetFaces(ctx context.Context, key string) (*features.FaceFeatures, error) {
	var f features.FaceFeatures
	found, err := s.get(ctx, "face_features", key, &f)
	if err != nil || !found {
		return nil, err
	}
	if f.Embeddings == nil {
		f.Embeddings = [][]float32{}
	}
	return &f, nil
}

func (s *Store) PutFaces(ctx context.Context, key string, f features.FaceFeatures) error {
	return s.put(ctx, "face_features", key, f)
}

func (s *Store) GetText(ctx context.Context, key string) (*features.TextFeatures, error) {
	var t features.TextFeatures
	found, err := s.get(ctx, "text_features", key, &t)
	if err != nil || !found {
		return nil, err
	}
	return &t, nil
}

func (s *Store) PutText(ctx context.Context, key string, t features.TextFeatures) error {
	return s.put(ctx, "text_features", key, t)
}

func (s *Store) Count(ctx context.Context) (int, int, error) {
	var faces, text int
	err := s.db.QueryRowContext(ctx,
		`SELECT (SELECT COUNT(1) FROM face_features), (SELECT COUNT(1) FROM text_features)`,
	).Scan(&faces, &text)
	if err != nil {
		return 0, 0, fmt.Errorf("count features: %w", err)
	}
	return faces, text, nil
}

func (s *Store) Clear(ctx context.Context) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin clear tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()
	for _, table := range []string{"face_features", "text_features"} {
		if _, err := tx.ExecContext(ctx, "DELETE FROM "+table); err != nil {
			return fmt.Errorf("clear %s: %w", table, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit clear: %w", err)
	}
	return nil
}

// get decodes the payload stored under key. Undecodable payloads are reported as corrupt.
func (s *Store) get(ctx context.Context, table, key string, dst any) (bool, error) {
	var payload string
	err := s.db.QueryRowContext(ctx,
		"SELECT payload FROM "+table+" WHERE fingerprint = ?", key,
	).Scan(&payload)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("query %s: %w", table, err)
	}
	if err := json.Unmarshal([]byte(payload), dst); err != nil {
		return false, fmt.Errorf("decode %s %s: %v: %w", table, key, err, features.ErrCorruptEntry)
	}
	return true, nil
}

func (s *Store) put(ctx context.Context, table, key string, v any) error {
	payload, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode %s: %w", table, err)
	}
	_, err = s.db.ExecContext(ctx,
		"INSERT INTO "+table+` (fingerprint, payload, updated_at) VALUES (?, ?, CURRENT_TIMESTAMP)
		 ON CONFLICT(fingerprint) DO UPDATE SET payload = excluded.payload, updated_at = excluded.updated_at`,
		key, string(payload),
	)
	if err != nil {
		return fmt.Errorf("upsert %s: %w", table, err)
	}
	return nil
}
