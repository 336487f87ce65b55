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

func newSessionMock(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock, func()) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	return sqlx.NewDb(db, "sqlmock"), mock, func() { db.Close() }
}

func sessionMockRows(id, token string, active bool) *sqlmock.Rows {
	now := time.Now()
	return sqlmock.NewRows([]string{"id", "course_code", "batch", "teacher_id", "date", "starts_at", "ends_at", "qr_token", "token_expires_at", "active", "latitude", "longitude", "radius_m", "created_at", "updated_at"}).
		AddRow(id, "CS101", "2026A", "teacher-1", now, now, now.Add(time.Hour), token, now.Add(10*time.Minute), active, 12.9716, 77.5946, 150.0, now, now)
}

func TestSessionRepositoryCreate(t *testing.T) {
	db, mock, cleanup := newSessionMock(t)
	defer cleanup()
	repo := NewSessionRepository(db)

	mock.ExpectExec("INSERT INTO attendance_sessions").
		WithArgs(sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))

	session := &models.AttendanceSession{CourseCode: "CS101", Batch: "2026A", TeacherID: "teacher-1", Date: time.Now(), StartsAt: time.Now(), EndsAt: time.Now().Add(time.Hour), QRToken: "tok", TokenExpiresAt: time.Now().Add(10 * time.Minute), Active: true, RadiusM: 150}
	err := repo.Create(context.Background(), session)
	require.NoError(t, err)
	assert.NotEmpty(t, session.ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSessionRepositoryFindActiveByToken(t *testing.T) {
	db, mock, cleanup := newSessionMock(t)
	defer cleanup()
	repo := NewSessionRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta("FROM attendance_sessions WHERE qr_token = $1 AND active = TRUE LIMIT 1")).
		WithArgs("tok-1").
		WillReturnRows(sessionMockRows("sess-1", "tok-1", true))

	session, err := repo.FindActiveByToken(context.Background(), "tok-1")
	require.NoError(t, err)
	assert.Equal(t, "sess-1", session.ID)
	assert.True(t, session.Active)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSessionRepositoryFindActiveByTokenMissing(t *testing.T) {
	db, mock, cleanup := newSessionMock(t)
	defer cleanup()
	repo := NewSessionRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta("FROM attendance_sessions WHERE qr_token = $1 AND active = TRUE LIMIT 1")).
		WithArgs("unknown").
		WillReturnError(sql.ErrNoRows)

	_, err := repo.FindActiveByToken(context.Background(), "unknown")
	assert.ErrorIs(t, err, sql.ErrNoRows)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSessionRepositoryUpdateToken(t *testing.T) {
	db, mock, cleanup := newSessionMock(t)
	defer cleanup()
	repo := NewSessionRepository(db)

	mock.ExpectExec(regexp.QuoteMeta("UPDATE attendance_sessions SET qr_token = $2, token_expires_at = $3, updated_at = $4 WHERE id = $1")).
		WithArgs("sess-1", "tok-2", sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := repo.UpdateToken(context.Background(), "sess-1", "tok-2", time.Now().Add(10*time.Minute))
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSessionRepositoryDeactivateExpired(t *testing.T) {
	db, mock, cleanup := newSessionMock(t)
	defer cleanup()
	repo := NewSessionRepository(db)

	mock.ExpectExec(regexp.QuoteMeta("UPDATE attendance_sessions SET active = FALSE, updated_at = $1 WHERE active = TRUE AND ends_at < $1")).
		WithArgs(sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 3))

	closed, err := repo.DeactivateExpired(context.Background(), time.Now())
	require.NoError(t, err)
	assert.Equal(t, int64(3), closed)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSessionRepositoryList(t *testing.T) {
	db, mock, cleanup := newSessionMock(t)
	defer cleanup()
	repo := NewSessionRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta("FROM attendance_sessions WHERE 1=1 AND teacher_id = $1 ORDER BY starts_at DESC LIMIT 50 OFFSET 0")).
		WithArgs("teacher-1").
		WillReturnRows(sessionMockRows("sess-1", "tok-1", true))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*) FROM attendance_sessions WHERE 1=1 AND teacher_id = $1")).
		WithArgs("teacher-1").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))

	sessions, total, err := repo.List(context.Background(), models.SessionFilter{TeacherID: "teacher-1"})
	require.NoError(t, err)
	assert.Len(t, sessions, 1)
	assert.Equal(t, 1, total)
	assert.NoError(t, mock.ExpectationsWereMet())
}
