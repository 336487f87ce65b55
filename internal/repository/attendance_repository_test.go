package repository

import (
	"context"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/presensia/attendance-api/internal/models"
)

func newAttendanceMock(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock, func()) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	return sqlx.NewDb(db, "sqlmock"), mock, func() { db.Close() }
}

func attendanceMockRow(id string, status models.AttendanceStatus, confidence float64) *sqlmock.Rows {
	now := time.Now()
	return sqlmock.NewRows([]string{"id", "session_id", "student_id", "status", "marked_at", "face_verified", "face_confidence", "location_verified", "latitude", "longitude", "distance_m", "notes", "created_at", "updated_at"}).
		AddRow(id, "sess-1", "student-1", status, now, true, confidence, true, 12.9716, 77.5946, 42.5, nil, now, now)
}

func TestAttendanceRepositoryUpsert(t *testing.T) {
	db, mock, cleanup := newAttendanceMock(t)
	defer cleanup()
	repo := NewAttendanceRepository(db)

	mock.ExpectQuery("INSERT INTO attendance_records").
		WithArgs(sqlmock.AnyArg(), "sess-1", "student-1", sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnRows(attendanceMockRow("rec-1", models.AttendanceStatusPresent, 0.91))

	conf := 0.91
	stored, err := repo.Upsert(context.Background(), &models.AttendanceRecord{
		SessionID:      "sess-1",
		StudentID:      "student-1",
		Status:         models.AttendanceStatusPresent,
		FaceVerified:   true,
		FaceConfidence: &conf,
		LocVerified:    true,
	})
	require.NoError(t, err)
	assert.Equal(t, "rec-1", stored.ID)
	assert.Equal(t, models.AttendanceStatusPresent, stored.Status)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAttendanceRepositoryUpsertReplacesExisting(t *testing.T) {
	db, mock, cleanup := newAttendanceMock(t)
	defer cleanup()
	repo := NewAttendanceRepository(db)

	// A second check-in for the same session and student keeps the original
	// row id and carries the latest status.
	mock.ExpectQuery("ON CONFLICT \\(session_id, student_id\\)").
		WithArgs(sqlmock.AnyArg(), "sess-1", "student-1", sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnRows(attendanceMockRow("rec-original", models.AttendanceStatusLate, 0.84))

	stored, err := repo.Upsert(context.Background(), &models.AttendanceRecord{
		SessionID: "sess-1",
		StudentID: "student-1",
		Status:    models.AttendanceStatusLate,
	})
	require.NoError(t, err)
	assert.Equal(t, "rec-original", stored.ID)
	assert.Equal(t, models.AttendanceStatusLate, stored.Status)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAttendanceRepositorySessionReport(t *testing.T) {
	db, mock, cleanup := newAttendanceMock(t)
	defer cleanup()
	repo := NewAttendanceRepository(db)

	now := time.Now()
	rows := sqlmock.NewRows([]string{"student_id", "register_no", "student_name", "status", "face_verified", "location_verified", "face_confidence", "distance_m", "marked_at"}).
		AddRow("student-1", "REG001", "Asha Rao", models.AttendanceStatusPresent, true, true, 0.92, 12.0, now).
		AddRow("student-2", "REG002", "Vikram Iyer", models.AttendanceStatusAbsent, false, false, nil, nil, now)
	mock.ExpectQuery(regexp.QuoteMeta("WHERE ar.session_id = $1")).
		WithArgs("sess-1").
		WillReturnRows(rows)

	report, err := repo.SessionReport(context.Background(), "sess-1")
	require.NoError(t, err)
	require.Len(t, report, 2)
	assert.Equal(t, "REG001", report[0].RegisterNo)
	assert.Equal(t, models.AttendanceStatusAbsent, report[1].Status)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAttendanceRepositoryStudentSummary(t *testing.T) {
	db, mock, cleanup := newAttendanceMock(t)
	defer cleanup()
	repo := NewAttendanceRepository(db)

	rows := sqlmock.NewRows([]string{"status", "cnt"}).
		AddRow("present", 8).
		AddRow("late", 1).
		AddRow("absent", 1)
	mock.ExpectQuery(regexp.QuoteMeta("GROUP BY ar.status")).
		WithArgs("student-1", "CS101").
		WillReturnRows(rows)

	summary, err := repo.StudentSummary(context.Background(), "student-1", "CS101")
	require.NoError(t, err)
	assert.Equal(t, 8, summary.Present)
	assert.Equal(t, 1, summary.Late)
	assert.Equal(t, 1, summary.Absent)
	assert.Equal(t, 10, summary.Total)
	assert.InDelta(t, 90.0, summary.Percent, 0.001)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAttendanceRepositoryStudentSummaryEmpty(t *testing.T) {
	db, mock, cleanup := newAttendanceMock(t)
	defer cleanup()
	repo := NewAttendanceRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta("GROUP BY ar.status")).
		WithArgs("student-1", "").
		WillReturnRows(sqlmock.NewRows([]string{"status", "cnt"}))

	summary, err := repo.StudentSummary(context.Background(), "student-1", "")
	require.NoError(t, err)
	assert.Equal(t, 0, summary.Total)
	assert.Equal(t, 0.0, summary.Percent)
	assert.NoError(t, mock.ExpectationsWereMet())
}
