package models

import "time"

// AttendanceStatus represents the status for attendance records.
type AttendanceStatus string

const (
	AttendanceStatusPresent AttendanceStatus = "present"
	AttendanceStatusAbsent  AttendanceStatus = "absent"
	AttendanceStatusLate    AttendanceStatus = "late"
	AttendanceStatusExcused AttendanceStatus = "excused"
	AttendanceStatusOnDuty  AttendanceStatus = "od"
	AttendanceStatusMedical AttendanceStatus = "ml"
)

// Valid returns true when the status is a supported value.
func (s AttendanceStatus) Valid() bool {
	switch s {
	case AttendanceStatusPresent, AttendanceStatusAbsent, AttendanceStatusLate,
		AttendanceStatusExcused, AttendanceStatusOnDuty, AttendanceStatusMedical:
		return true
	default:
		return false
	}
}

// AttendanceRecord is one row per (session, student) pair. The composite key
// is enforced by a unique constraint; repeated marks upsert rather than
// duplicate.
type AttendanceRecord struct {
	ID             string           `db:"id" json:"id"`
	SessionID      string           `db:"session_id" json:"session_id"`
	StudentID      string           `db:"student_id" json:"student_id"`
	Status         AttendanceStatus `db:"status" json:"status"`
	MarkedAt       time.Time        `db:"marked_at" json:"marked_at"`
	FaceVerified   bool             `db:"face_verified" json:"face_verified"`
	FaceConfidence *float64         `db:"face_confidence" json:"face_confidence,omitempty"`
	LocVerified    bool             `db:"location_verified" json:"location_verified"`
	Latitude       *float64         `db:"latitude" json:"latitude,omitempty"`
	Longitude      *float64         `db:"longitude" json:"longitude,omitempty"`
	DistanceM      *float64         `db:"distance_m" json:"distance_m,omitempty"`
	Notes          *string          `db:"notes" json:"notes,omitempty"`
	CreatedAt      time.Time        `db:"created_at" json:"created_at"`
	UpdatedAt      time.Time        `db:"updated_at" json:"updated_at"`
}

// AttendanceRecordDetail extends a record with student metadata.
type AttendanceRecordDetail struct {
	AttendanceRecord
	RegisterNo  string `db:"register_no" json:"register_no"`
	StudentName string `db:"student_name" json:"student_name"`
}

// AttendanceFilter defines listing query filters.
type AttendanceFilter struct {
	SessionID  string
	StudentID  string
	CourseCode string
	Status     *AttendanceStatus
	DateFrom   *time.Time
	DateTo     *time.Time
	Page       int
	PageSize   int
	SortBy     string
	SortOrder  string
}

// AttendanceSummary aggregates per-status counts for a student.
type AttendanceSummary struct {
	Present int     `json:"present"`
	Absent  int     `json:"absent"`
	Late    int     `json:"late"`
	Excused int     `json:"excused"`
	OnDuty  int     `json:"od"`
	Medical int     `json:"ml"`
	Total   int     `json:"total"`
	Percent float64 `json:"percent"`
}

// AttendanceHistoryRow captures one session outcome in a student's history.
type AttendanceHistoryRow struct {
	SessionID  string           `db:"session_id" json:"session_id"`
	CourseCode string           `db:"course_code" json:"course_code"`
	Date       time.Time        `db:"date" json:"date"`
	Status     AttendanceStatus `db:"status" json:"status"`
	MarkedAt   time.Time        `db:"marked_at" json:"marked_at"`
}

// CheckInRequest is a student's self-service check-in payload. The token
// comes from a scanned session QR code.
type CheckInRequest struct {
	Token         string    `json:"token" validate:"required"`
	Latitude      *float64  `json:"latitude"`
	Longitude     *float64  `json:"longitude"`
	Embedding     []float64 `json:"embedding" validate:"required,min=1"`
	FacesDetected int       `json:"faces_detected" validate:"required,min=1"`
}

// CheckInResult is the successful outcome of a verified check-in.
type CheckInResult struct {
	Record         *AttendanceRecord `json:"record"`
	FaceConfidence float64           `json:"face_confidence"`
	DistanceM      *float64          `json:"distance_m,omitempty"`
}

// ManualMarkRequest lets a teacher set one student's status directly.
type ManualMarkRequest struct {
	StudentID string           `json:"student_id" validate:"required"`
	Status    AttendanceStatus `json:"status" validate:"required"`
	Notes     *string          `json:"notes"`
}

// BulkMarkRequest applies manual marks for several students at once.
type BulkMarkRequest struct {
	Marks []ManualMarkRequest `json:"marks" validate:"required,min=1,dive"`
}

// SessionReportRow summarises one student's outcome for a session report.
type SessionReportRow struct {
	StudentID      string           `db:"student_id" json:"student_id"`
	RegisterNo     string           `db:"register_no" json:"register_no"`
	StudentName    string           `db:"student_name" json:"student_name"`
	Status         AttendanceStatus `db:"status" json:"status"`
	FaceVerified   bool             `db:"face_verified" json:"face_verified"`
	LocVerified    bool             `db:"location_verified" json:"location_verified"`
	FaceConfidence *float64         `db:"face_confidence" json:"face_confidence,omitempty"`
	DistanceM      *float64         `db:"distance_m" json:"distance_m,omitempty"`
	MarkedAt       time.Time        `db:"marked_at" json:"marked_at"`
}
