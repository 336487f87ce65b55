package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/presensia/attendance-api/internal/models"
)

// FaceRepository handles persistence for stored face embeddings.
type FaceRepository struct {
	db *sqlx.DB
}

// NewFaceRepository constructs the repository.
func NewFaceRepository(db *sqlx.DB) *FaceRepository {
	return &FaceRepository{db: db}
}

// Upsert stores the reference embedding for a student. The latest enrollment
// overwrites any previous one.
func (r *FaceRepository) Upsert(ctx context.Context, embedding *models.FaceEmbedding) (*models.FaceEmbedding, error) {
	now := time.Now().UTC()
	if embedding.ID == "" {
		embedding.ID = uuid.NewString()
	}
	if embedding.EnrolledAt.IsZero() {
		embedding.EnrolledAt = now
	}
	embedding.UpdatedAt = now
	embedding.Dimension = len(embedding.Embedding)

	const query = `INSERT INTO face_embeddings (id, student_id, embedding, dimension, enrolled_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6)
ON CONFLICT (student_id)
DO UPDATE SET embedding = EXCLUDED.embedding, dimension = EXCLUDED.dimension, enrolled_at = EXCLUDED.enrolled_at, updated_at = EXCLUDED.updated_at
RETURNING id, student_id, embedding, dimension, enrolled_at, updated_at`
	var stored models.FaceEmbedding
	if err := r.db.GetContext(ctx, &stored, query, embedding.ID, embedding.StudentID, embedding.Embedding, embedding.Dimension, embedding.EnrolledAt, embedding.UpdatedAt); err != nil {
		return nil, fmt.Errorf("upsert face embedding: %w", err)
	}
	return &stored, nil
}

// FindByStudent returns the current reference embedding for a student.
func (r *FaceRepository) FindByStudent(ctx context.Context, studentID string) (*models.FaceEmbedding, error) {
	const query = `SELECT id, student_id, embedding, dimension, enrolled_at, updated_at FROM face_embeddings WHERE student_id = $1 LIMIT 1`
	var embedding models.FaceEmbedding
	if err := r.db.GetContext(ctx, &embedding, query, studentID); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("find face embedding: %w", err)
	}
	return &embedding, nil
}

// Delete removes the stored embedding for a student.
func (r *FaceRepository) Delete(ctx context.Context, studentID string) error {
	const query = `DELETE FROM face_embeddings WHERE student_id = $1`
	if _, err := r.db.ExecContext(ctx, query, studentID); err != nil {
		return fmt.Errorf("delete face embedding: %w", err)
	}
	return nil
}
