package models

import "time"

// LeaveType distinguishes on-duty from medical leave.
type LeaveType string

const (
	LeaveTypeOnDuty  LeaveType = "od"
	LeaveTypeMedical LeaveType = "ml"
)

// Valid reports whether the leave type is supported.
func (t LeaveType) Valid() bool {
	return t == LeaveTypeOnDuty || t == LeaveTypeMedical
}

// LeaveStatus captures the approval lifecycle.
type LeaveStatus string

const (
	LeaveStatusPending  LeaveStatus = "pending"
	LeaveStatusApproved LeaveStatus = "approved"
	LeaveStatusRejected LeaveStatus = "rejected"
)

// LeaveRequest is a student's request for on-duty or medical leave. Approval
// is a separate workflow and does not write attendance records.
type LeaveRequest struct {
	ID         string      `db:"id" json:"id"`
	StudentID  string      `db:"student_id" json:"student_id"`
	Type       LeaveType   `db:"type" json:"type"`
	FromDate   time.Time   `db:"from_date" json:"from_date"`
	ToDate     time.Time   `db:"to_date" json:"to_date"`
	Reason     string      `db:"reason" json:"reason"`
	Status     LeaveStatus `db:"status" json:"status"`
	ReviewerID *string     `db:"reviewer_id" json:"reviewer_id,omitempty"`
	ReviewedAt *time.Time  `db:"reviewed_at" json:"reviewed_at,omitempty"`
	ReviewNote *string     `db:"review_note" json:"review_note,omitempty"`
	CreatedAt  time.Time   `db:"created_at" json:"created_at"`
	UpdatedAt  time.Time   `db:"updated_at" json:"updated_at"`
}

// CreateLeaveRequest is the student-facing payload for requesting leave.
type CreateLeaveRequest struct {
	Type     LeaveType `json:"type" validate:"required"`
	FromDate time.Time `json:"from_date" validate:"required"`
	ToDate   time.Time `json:"to_date" validate:"required,gtefield=FromDate"`
	Reason   string    `json:"reason" validate:"required,min=3"`
}

// LeaveDecisionRequest carries an optional note with approve or reject.
type LeaveDecisionRequest struct {
	Note *string `json:"note"`
}

// LeaveFilter scopes leave request listings.
type LeaveFilter struct {
	StudentID string
	Status    *LeaveStatus
	Page      int
	PageSize  int
}
