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

func newLeaveMock(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock, func()) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	return sqlx.NewDb(db, "sqlmock"), mock, func() { db.Close() }
}

func TestLeaveRepositoryCreate(t *testing.T) {
	db, mock, cleanup := newLeaveMock(t)
	defer cleanup()
	repo := NewLeaveRepository(db)

	mock.ExpectExec("INSERT INTO leave_requests").
		WithArgs(sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))

	leave := &models.LeaveRequest{
		StudentID: "student-1",
		Type:      models.LeaveTypeMedical,
		FromDate:  time.Now(),
		ToDate:    time.Now().Add(48 * time.Hour),
		Reason:    "fever",
	}
	err := repo.Create(context.Background(), leave)
	require.NoError(t, err)
	assert.NotEmpty(t, leave.ID)
	assert.Equal(t, models.LeaveStatusPending, leave.Status)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestLeaveRepositorySetDecision(t *testing.T) {
	db, mock, cleanup := newLeaveMock(t)
	defer cleanup()
	repo := NewLeaveRepository(db)

	note := "approved with certificate"
	mock.ExpectExec(regexp.QuoteMeta("WHERE id = $1 AND status = 'pending'")).
		WithArgs("leave-1", string(models.LeaveStatusApproved), "teacher-1", note, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := repo.SetDecision(context.Background(), "leave-1", models.LeaveStatusApproved, "teacher-1", &note, time.Now())
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestLeaveRepositorySetDecisionAlreadyReviewed(t *testing.T) {
	db, mock, cleanup := newLeaveMock(t)
	defer cleanup()
	repo := NewLeaveRepository(db)

	mock.ExpectExec(regexp.QuoteMeta("WHERE id = $1 AND status = 'pending'")).
		WithArgs("leave-1", string(models.LeaveStatusRejected), "teacher-1", nil, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := repo.SetDecision(context.Background(), "leave-1", models.LeaveStatusRejected, "teacher-1", nil, time.Now())
	assert.ErrorIs(t, err, sql.ErrNoRows)
	assert.NoError(t, mock.ExpectationsWereMet())
}
