package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"
)

// Embedding is a fixed-length face descriptor persisted as JSONB.
type Embedding []float64

// Value marshals the embedding to JSON for persistence.
func (e Embedding) Value() (driver.Value, error) {
	data, err := json.Marshal([]float64(e))
	if err != nil {
		return nil, fmt.Errorf("marshal embedding: %w", err)
	}
	return data, nil
}

// Scan unmarshals a JSON payload into the embedding.
func (e *Embedding) Scan(value interface{}) error {
	if value == nil {
		*e = nil
		return nil
	}
	var data []byte
	switch v := value.(type) {
	case []byte:
		data = v
	case string:
		data = []byte(v)
	default:
		return fmt.Errorf("unsupported type %T for Embedding", value)
	}
	if len(data) == 0 {
		*e = nil
		return nil
	}
	if err := json.Unmarshal(data, (*[]float64)(e)); err != nil {
		return fmt.Errorf("unmarshal embedding: %w", err)
	}
	return nil
}

// FaceEmbedding is the stored reference descriptor for a student. At most one
// current row exists per student; re-enrollment overwrites.
type FaceEmbedding struct {
	ID         string    `db:"id" json:"id"`
	StudentID  string    `db:"student_id" json:"student_id"`
	Embedding  Embedding `db:"embedding" json:"embedding,omitempty"`
	Dimension  int       `db:"dimension" json:"dimension"`
	EnrolledAt time.Time `db:"enrolled_at" json:"enrolled_at"`
	UpdatedAt  time.Time `db:"updated_at" json:"updated_at"`
}

// EnrollFaceRequest carries the captured descriptor for enrollment.
type EnrollFaceRequest struct {
	Embedding     []float64 `json:"embedding" validate:"required,min=1"`
	FacesDetected int       `json:"faces_detected" validate:"required,min=1"`
}

// FaceEnrollmentStatus is the client-facing view of enrollment state. The raw
// vector is never exposed to non-admin callers.
type FaceEnrollmentStatus struct {
	StudentID  string     `json:"student_id"`
	Enrolled   bool       `json:"enrolled"`
	Dimension  int        `json:"dimension,omitempty"`
	EnrolledAt *time.Time `json:"enrolled_at,omitempty"`
}
