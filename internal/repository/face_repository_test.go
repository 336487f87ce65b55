package repository

import (
	"context"
	"database/sql"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/presensia/attendance-api/internal/models"
)

func newFaceMock(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock, func()) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	return sqlx.NewDb(db, "sqlmock"), mock, func() { db.Close() }
}

func TestFaceRepositoryUpsert(t *testing.T) {
	db, mock, cleanup := newFaceMock(t)
	defer cleanup()
	repo := NewFaceRepository(db)

	now := time.Now()
	rows := sqlmock.NewRows([]string{"id", "student_id", "embedding", "dimension", "enrolled_at", "updated_at"}).
		AddRow("emb-1", "student-1", []byte(`[0.1,0.2,0.3]`), 3, now, now)
	mock.ExpectQuery("INSERT INTO face_embeddings").
		WithArgs(sqlmock.AnyArg(), "student-1", sqlmock.AnyArg(), 3, sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnRows(rows)

	stored, err := repo.Upsert(context.Background(), &models.FaceEmbedding{
		StudentID: "student-1",
		Embedding: models.Embedding{0.1, 0.2, 0.3},
		Dimension: 3,
	})
	require.NoError(t, err)
	assert.Equal(t, "emb-1", stored.ID)
	assert.Equal(t, models.Embedding{0.1, 0.2, 0.3}, stored.Embedding)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestFaceRepositoryFindByStudent(t *testing.T) {
	db, mock, cleanup := newFaceMock(t)
	defer cleanup()
	repo := NewFaceRepository(db)

	now := time.Now()
	rows := sqlmock.NewRows([]string{"id", "student_id", "embedding", "dimension", "enrolled_at", "updated_at"}).
		AddRow("emb-1", "student-1", []byte(`[0.5,0.5]`), 2, now, now)
	mock.ExpectQuery(regexp.QuoteMeta("FROM face_embeddings WHERE student_id = $1 LIMIT 1")).
		WithArgs("student-1").
		WillReturnRows(rows)

	embedding, err := repo.FindByStudent(context.Background(), "student-1")
	require.NoError(t, err)
	assert.Equal(t, 2, embedding.Dimension)
	assert.Len(t, []float64(embedding.Embedding), 2)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestFaceRepositoryFindByStudentMissing(t *testing.T) {
	db, mock, cleanup := newFaceMock(t)
	defer cleanup()
	repo := NewFaceRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta("FROM face_embeddings WHERE student_id = $1 LIMIT 1")).
		WithArgs("unknown").
		WillReturnError(sql.ErrNoRows)

	_, err := repo.FindByStudent(context.Background(), "unknown")
	assert.ErrorIs(t, err, sql.ErrNoRows)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestFaceRepositoryDelete(t *testing.T) {
	db, mock, cleanup := newFaceMock(t)
	defer cleanup()
	repo := NewFaceRepository(db)

	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM face_embeddings WHERE student_id = $1")).
		WithArgs("student-1").
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := repo.Delete(context.Background(), "student-1")
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}
