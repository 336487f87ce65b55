package models

import "time"

// Student represents a learner profile linked to a STUDENT user.
type Student struct {
	ID         string    `db:"id" json:"id"`
	UserID     string    `db:"user_id" json:"user_id"`
	RegisterNo string    `db:"register_no" json:"register_no"`
	FullName   string    `db:"full_name" json:"full_name"`
	Department string    `db:"department" json:"department"`
	Program    string    `db:"program" json:"program"`
	Batch      string    `db:"batch" json:"batch"`
	Active     bool      `db:"active" json:"active"`
	CreatedAt  time.Time `db:"created_at" json:"created_at"`
	UpdatedAt  time.Time `db:"updated_at" json:"updated_at"`
}

// CreateStudentRequest provisions a learner profile for a STUDENT user.
type CreateStudentRequest struct {
	UserID     string `json:"user_id" validate:"required"`
	RegisterNo string `json:"register_no" validate:"required"`
	FullName   string `json:"full_name" validate:"required"`
	Department string `json:"department" validate:"required"`
	Program    string `json:"program" validate:"required"`
	Batch      string `json:"batch" validate:"required"`
}

// UpdateStudentRequest carries optional edits to a student profile.
type UpdateStudentRequest struct {
	RegisterNo *string `json:"register_no"`
	FullName   *string `json:"full_name"`
	Department *string `json:"department"`
	Program    *string `json:"program"`
	Batch      *string `json:"batch"`
	Active     *bool   `json:"active"`
}

// StudentFilter encapsulates allowed search parameters for listing students.
type StudentFilter struct {
	Search     string
	Department string
	Batch      string
	Active     *bool
	Page       int
	PageSize   int
	SortBy     string
	SortOrder  string
}
