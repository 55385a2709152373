package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/kozaktomas/photolink/internal/features"
	"github.com/lib/pq"
	"github.com/pgvector/pgvector-go"
)

// FeatureStore keeps face embeddings in pgvector columns and recognized text
// in array columns.
type FeatureStore struct {
	pool *Pool
}

// NewFeatureStore creates a store over an already migrated pool.
func NewFeatureStore(pool *Pool) *FeatureStore {
	return &FeatureStore{pool: pool}
}

func (s *FeatureStore) Name() string {
	return "postgres"
}

// Close releases the connection pool.
func (s *FeatureStore) Close() error {
	return s.pool.Close()
}

// GetFaces loads the faces recorded for a fingerprint.
// A scan row whose face count disagrees with its stored faces is reported as corrupt.
func (s *FeatureStore) GetFaces(ctx context.Context, key string) (*features.FaceFeatures, error) {
	var count int
	var model string
	err := s.pool.db.QueryRowContext(ctx,
		`SELECT face_count, model FROM face_scans WHERE fingerprint = $1`, key,
	).Scan(&count, &model)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query face scan: %w", err)
	}

	rows, err := s.pool.db.QueryContext(ctx,
		`SELECT embedding FROM face_features WHERE fingerprint = $1 ORDER BY face_index`, key)
	if err != nil {
		return nil, fmt.Errorf("query face features: %w", err)
	}
	defer rows.Close()

	result := &features.FaceFeatures{Model: model, Embeddings: make([][]float32, 0, count)}
	for rows.Next() {
		var v pgvector.Vector
		if err := rows.Scan(&v); err != nil {
			return nil, fmt.Errorf("scan embedding: %w", err)
		}
		result.Embeddings = append(result.Embeddings, v.Slice())
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate face features: %w", err)
	}

	if len(result.Embeddings) != count {
		return nil, fmt.Errorf("fingerprint %s has %d of %d faces: %w",
			key, len(result.Embeddings), count, features.ErrCorruptEntry)
	}
	return result, nil
}

// PutFaces replaces the face record of a fingerprint in one transaction.
func (s *FeatureStore) PutFaces(ctx context.Context, key string, f features.FaceFeatures) error {
	tx, err := s.pool.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // no-op after commit

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO face_scans (fingerprint, face_count, model)
		VALUES ($1, $2, $3)
		ON CONFLICT (fingerprint) DO UPDATE
		SET face_count = EXCLUDED.face_count, model = EXCLUDED.model, scanned_at = NOW()
	`, key, len(f.Embeddings), f.Model); err != nil {
		return fmt.Errorf("upsert face scan: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM face_features WHERE fingerprint = $1`, key); err != nil {
		return fmt.Errorf("delete stale face features: %w", err)
	}

	for i, emb := range f.Embeddings {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO face_features (fingerprint, face_index, embedding) VALUES ($1, $2, $3)`,
			key, i, pgvector.NewVector(emb),
		); err != nil {
			return fmt.Errorf("insert face %d: %w", i, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit face features: %w", err)
	}
	return nil
}

// GetText loads recognized text for a fingerprint.
func (s *FeatureStore) GetText(ctx context.Context, key string) (*features.TextFeatures, error) {
	var texts []string
	var confidences []float64
	err := s.pool.db.QueryRowContext(ctx,
		`SELECT texts, confidences FROM text_features WHERE fingerprint = $1`, key,
	).Scan(pq.Array(&texts), pq.Array(&confidences))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query text features: %w", err)
	}
	if len(texts) != len(confidences) {
		return nil, fmt.Errorf("fingerprint %s has %d texts and %d confidences: %w",
			key, len(texts), len(confidences), features.ErrCorruptEntry)
	}

	result := &features.TextFeatures{Detections: make([]features.DetectedText, len(texts))}
	for i := range texts {
		result.Detections[i] = features.DetectedText{Text: texts[i], Confidence: confidences[i]}
	}
	return result, nil
}

// PutText stores recognized text for a fingerprint, replacing any previous record.
func (s *FeatureStore) PutText(ctx context.Context, key string, t features.TextFeatures) error {
	texts := make([]string, len(t.Detections))
	confidences := make([]float64, len(t.Detections))
	for i, d := range t.Detections {
		texts[i] = d.Text
		confidences[i] = d.Confidence
	}

	if _, err := s.pool.db.ExecContext(ctx, `
		INSERT INTO text_features (fingerprint, texts, confidences)
		VALUES ($1, $2, $3)
		ON CONFLICT (fingerprint) DO UPDATE
		SET texts = EXCLUDED.texts, confidences = EXCLUDED.confidences, scanned_at = NOW()
	`, key, pq.Array(texts), pq.Array(confidences)); err != nil {
		return fmt.Errorf("upsert text features: %w", err)
	}
	return nil
}

// Count returns the number of images with face and text records.
func (s *FeatureStore) Count(ctx context.Context) (int, int, error) {
	var faces, text int
	err := s.pool.db.QueryRowContext(ctx, `
		SELECT (SELECT COUNT(*) FROM face_scans), (SELECT COUNT(*) FROM text_features)
	`).Scan(&faces, &text)
	if err != nil {
		return 0, 0, fmt.Errorf("count features: %w", err)
	}
	return faces, text, nil
}

// Clear deletes every cached record.
func (s *FeatureStore) Clear(ctx context.Context) error {
	if _, err := s.pool.db.ExecContext(ctx, `TRUNCATE face_features, face_scans, text_features`); err != nil {
		return fmt.Errorf("truncate feature tables: %w", err)
	}
	return nil
}
