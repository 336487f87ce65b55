package models

import "time"

// AttendanceSession is one instructor-initiated attendance window. The QR
// token identifies the session during self-service check-in; the geolocation
// anchor and radius bound where check-ins are accepted.
type AttendanceSession struct {
	ID             string    `db:"id" json:"id"`
	CourseCode     string    `db:"course_code" json:"course_code"`
	Batch          string    `db:"batch" json:"batch"`
	TeacherID      string    `db:"teacher_id" json:"teacher_id"`
	Date           time.Time `db:"date" json:"date"`
	StartsAt       time.Time `db:"starts_at" json:"starts_at"`
	EndsAt         time.Time `db:"ends_at" json:"ends_at"`
	QRToken        string    `db:"qr_token" json:"-"`
	TokenExpiresAt time.Time `db:"token_expires_at" json:"token_expires_at"`
	Active         bool      `db:"active" json:"active"`
	Latitude       *float64  `db:"latitude" json:"latitude,omitempty"`
	Longitude      *float64  `db:"longitude" json:"longitude,omitempty"`
	RadiusM        float64   `db:"radius_m" json:"radius_m"`
	CreatedAt      time.Time `db:"created_at" json:"created_at"`
	UpdatedAt      time.Time `db:"updated_at" json:"updated_at"`
}

// HasAnchor reports whether the session carries a geofence anchor.
func (s *AttendanceSession) HasAnchor() bool {
	return s.Latitude != nil && s.Longitude != nil
}

// CreateSessionRequest is the teacher-facing payload for opening a session.
type CreateSessionRequest struct {
	CourseCode string    `json:"course_code" validate:"required"`
	Batch      string    `json:"batch" validate:"required"`
	Date       time.Time `json:"date" validate:"required"`
	StartsAt   time.Time `json:"starts_at" validate:"required"`
	EndsAt     time.Time `json:"ends_at" validate:"required,gtfield=StartsAt"`
	Latitude   *float64  `json:"latitude"`
	Longitude  *float64  `json:"longitude"`
	RadiusM    *float64  `json:"radius_m" validate:"omitempty,gt=0"`
}

// UpdateSessionRequest carries optional edits to session metadata.
type UpdateSessionRequest struct {
	CourseCode *string    `json:"course_code"`
	Batch      *string    `json:"batch"`
	Date       *time.Time `json:"date"`
	StartsAt   *time.Time `json:"starts_at"`
	EndsAt     *time.Time `json:"ends_at"`
	Latitude   *float64   `json:"latitude"`
	Longitude  *float64   `json:"longitude"`
	RadiusM    *float64   `json:"radius_m" validate:"omitempty,gt=0"`
}

// SessionTokenInfo is returned to the session owner after create or rotate.
type SessionTokenInfo struct {
	SessionID      string    `json:"session_id"`
	Token          string    `json:"token"`
	TokenExpiresAt time.Time `json:"token_expires_at"`
}

// SessionFilter scopes session listing queries.
type SessionFilter struct {
	TeacherID string
	Batch     string
	Date      *time.Time
	Active    *bool
	Page      int
	PageSize  int
	SortBy    string
	SortOrder string
}
