package repository

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/presensia/attendance-api/internal/models"
)

const attendanceColumns = `id, session_id, student_id, status, marked_at, face_verified, face_confidence, location_verified, latitude, longitude, distance_m, notes, created_at, updated_at`

// AttendanceRepository handles persistence for attendance records.
type AttendanceRepository struct {
	db *sqlx.DB
}

// NewAttendanceRepository constructs the repository.
func NewAttendanceRepository(db *sqlx.DB) *AttendanceRepository {
	return &AttendanceRepository{db: db}
}

// Upsert inserts or overwrites the record for (session, student). Last write
// wins: a repeat mark replaces all verification fields of the previous one.
func (r *AttendanceRepository) Upsert(ctx context.Context, record *models.AttendanceRecord) (*models.AttendanceRecord, error) {
	now := time.Now().UTC()
	if record.ID == "" {
		record.ID = uuid.NewString()
	}
	if record.CreatedAt.IsZero() {
		record.CreatedAt = now
	}
	if record.MarkedAt.IsZero() {
		record.MarkedAt = now
	}
	record.UpdatedAt = now

	query := fmt.Sprintf(`INSERT INTO attendance_records (id, session_id, student_id, status, marked_at, face_verified, face_confidence, location_verified, latitude, longitude, distance_m, notes, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
ON CONFLICT (session_id, student_id)
DO UPDATE SET status = EXCLUDED.status, marked_at = EXCLUDED.marked_at, face_verified = EXCLUDED.face_verified, face_confidence = EXCLUDED.face_confidence, location_verified = EXCLUDED.location_verified, latitude = EXCLUDED.latitude, longitude = EXCLUDED.longitude, distance_m = EXCLUDED.distance_m, notes = EXCLUDED.notes, updated_at = EXCLUDED.updated_at
RETURNING %s`, attendanceColumns)

	var stored models.AttendanceRecord
	if err := r.db.GetContext(ctx, &stored, query,
		record.ID, record.SessionID, record.StudentID, record.Status, record.MarkedAt,
		record.FaceVerified, record.FaceConfidence, record.LocVerified,
		record.Latitude, record.Longitude, record.DistanceM, record.Notes,
		record.CreatedAt, record.UpdatedAt,
	); err != nil {
		return nil, fmt.Errorf("upsert attendance record: %w", err)
	}
	return &stored, nil
}

// List returns attendance rows matching the provided filter.
func (r *AttendanceRepository) List(ctx context.Context, filter models.AttendanceFilter) ([]models.AttendanceRecordDetail, int, error) {
	base := `FROM attendance_records ar
JOIN students s ON s.id = ar.student_id
JOIN attendance_sessions se ON se.id = ar.session_id`
	where := []string{"1=1"}
	args := []interface{}{}
	if filter.SessionID != "" {
		where = append(where, fmt.Sprintf("ar.session_id = $%d", len(args)+1))
		args = append(args, filter.SessionID)
	}
	if filter.StudentID != "" {
		where = append(where, fmt.Sprintf("ar.student_id = $%d", len(args)+1))
		args = append(args, filter.StudentID)
	}
	if filter.CourseCode != "" {
		where = append(where, fmt.Sprintf("se.course_code = $%d", len(args)+1))
		args = append(args, filter.CourseCode)
	}
	if filter.Status != nil && filter.Status.Valid() {
		where = append(where, fmt.Sprintf("ar.status = $%d", len(args)+1))
		args = append(args, *filter.Status)
	}
	if filter.DateFrom != nil {
		where = append(where, fmt.Sprintf("se.date >= $%d", len(args)+1))
		args = append(args, *filter.DateFrom)
	}
	if filter.DateTo != nil {
		where = append(where, fmt.Sprintf("se.date <= $%d", len(args)+1))
		args = append(args, *filter.DateTo)
	}
	whereClause := strings.Join(where, " AND ")

	allowedSort := map[string]string{
		"marked_at":  "ar.marked_at",
		"status":     "ar.status",
		"created_at": "ar.created_at",
	}
	sortColumn, ok := allowedSort[filter.SortBy]
	if !ok {
		sortColumn = "ar.marked_at"
	}
	order := strings.ToUpper(filter.SortOrder)
	if order != "ASC" && order != "DESC" {
		order = "DESC"
	}
	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 || size > 200 {
		size = 50
	}
	offset := (page - 1) * size

	query := fmt.Sprintf(`SELECT ar.id, ar.session_id, ar.student_id, ar.status, ar.marked_at, ar.face_verified, ar.face_confidence, ar.location_verified, ar.latitude, ar.longitude, ar.distance_m, ar.notes, ar.created_at, ar.updated_at,
        s.register_no, s.full_name AS student_name
        %s WHERE %s
        ORDER BY %s %s
        LIMIT %d OFFSET %d`, base, whereClause, sortColumn, order, size, offset)

	var rows []models.AttendanceRecordDetail
	if err := r.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list attendance records: %w", err)
	}

	countQuery := fmt.Sprintf("SELECT COUNT(*) %s WHERE %s", base, whereClause)
	var total int
	if err := r.db.GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("count attendance records: %w", err)
	}
	return rows, total, nil
}

// SessionReport returns per-student outcomes for one session.
func (r *AttendanceRepository) SessionReport(ctx context.Context, sessionID string) ([]models.SessionReportRow, error) {
	const query = `SELECT s.id AS student_id, s.register_no, s.full_name AS student_name, ar.status, ar.face_verified, ar.location_verified, ar.face_confidence, ar.distance_m, ar.marked_at
FROM attendance_records ar
JOIN students s ON s.id = ar.student_id
WHERE ar.session_id = $1
ORDER BY s.register_no ASC`
	var rows []models.SessionReportRow
	if err := r.db.SelectContext(ctx, &rows, query, sessionID); err != nil {
		return nil, fmt.Errorf("session report: %w", err)
	}
	return rows, nil
}

// StudentHistory returns attendance history for a student.
func (r *AttendanceRepository) StudentHistory(ctx context.Context, studentID string, from, to *time.Time) ([]models.AttendanceHistoryRow, error) {
	where := []string{"ar.student_id = $1"}
	args := []interface{}{studentID}
	if from != nil {
		where = append(where, fmt.Sprintf("se.date >= $%d", len(args)+1))
		args = append(args, *from)
	}
	if to != nil {
		where = append(where, fmt.Sprintf("se.date <= $%d", len(args)+1))
		args = append(args, *to)
	}
	query := fmt.Sprintf(`SELECT ar.session_id, se.course_code, se.date, ar.status, ar.marked_at
FROM attendance_records ar
JOIN attendance_sessions se ON se.id = ar.session_id
WHERE %s
ORDER BY se.date DESC, ar.marked_at DESC`, strings.Join(where, " AND "))
	var rows []models.AttendanceHistoryRow
	if err := r.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("student attendance history: %w", err)
	}
	return rows, nil
}

// StudentSummary aggregates per-status counts for a student, optionally
// scoped to one course.
func (r *AttendanceRepository) StudentSummary(ctx context.Context, studentID, courseCode string) (*models.AttendanceSummary, error) {
	const query = `SELECT ar.status, COUNT(*) AS cnt
FROM attendance_records ar
JOIN attendance_sessions se ON se.id = ar.session_id
WHERE ar.student_id = $1 AND ($2 = '' OR se.course_code = $2)
GROUP BY ar.status`
	rows := []struct {
		Status string `db:"status"`
		Count  int    `db:"cnt"`
	}{}
	if err := r.db.SelectContext(ctx, &rows, query, studentID, courseCode); err != nil {
		return nil, fmt.Errorf("student attendance summary: %w", err)
	}
	summary := &models.AttendanceSummary{}
	for _, row := range rows {
		switch models.AttendanceStatus(row.Status) {
		case models.AttendanceStatusPresent:
			summary.Present += row.Count
		case models.AttendanceStatusAbsent:
			summary.Absent += row.Count
		case models.AttendanceStatusLate:
			summary.Late += row.Count
		case models.AttendanceStatusExcused:
			summary.Excused += row.Count
		case models.AttendanceStatusOnDuty:
			summary.OnDuty += row.Count
		case models.AttendanceStatusMedical:
			summary.Medical += row.Count
		}
		summary.Total += row.Count
	}
	if summary.Total > 0 {
		summary.Percent = float64(summary.Present+summary.Late) / float64(summary.Total) * 100
	}
	return summary, nil
}
