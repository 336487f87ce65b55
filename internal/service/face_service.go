package service

import (
	"context"
	"database/sql"
	"errors"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/presensia/attendance-api/internal/models"
	appErrors "github.com/presensia/attendance-api/pkg/errors"
	"github.com/presensia/attendance-api/pkg/face"
)

type faceRepository interface {
	Upsert(ctx context.Context, embedding *models.FaceEmbedding) (*models.FaceEmbedding, error)
	FindByStudent(ctx context.Context, studentID string) (*models.FaceEmbedding, error)
	Delete(ctx context.Context, studentID string) error
}

type studentReader interface {
	FindByID(ctx context.Context, id string) (*models.Student, error)
}

// FaceService manages face descriptor enrollment for students.
type FaceService struct {
	repo      faceRepository
	students  studentReader
	audit     sessionAuditRepository
	validator *validator.Validate
	logger    *zap.Logger
	config    VerificationConfig
}

// NewFaceService constructs a FaceService.
func NewFaceService(repo faceRepository, students studentReader, audit sessionAuditRepository, validate *validator.Validate, logger *zap.Logger, config VerificationConfig) *FaceService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if validate == nil {
		validate = validator.New()
	}
	return &FaceService{repo: repo, students: students, audit: audit, validator: validate, logger: logger, config: config}
}

// Enroll stores or replaces the reference descriptor for a student. The
// capture must contain exactly one face of the expected dimension.
func (s *FaceService) Enroll(ctx context.Context, studentID, actorID string, req models.EnrollFaceRequest) (*models.FaceEnrollmentStatus, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid enrollment payload")
	}

	if _, err := s.students.FindByID(ctx, studentID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "student not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load student")
	}

	if err := face.ValidateCapture(req.Embedding, req.FacesDetected, s.config.EmbeddingDim); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid face capture")
	}

	stored, err := s.repo.Upsert(ctx, &models.FaceEmbedding{
		StudentID: studentID,
		Embedding: models.Embedding(req.Embedding),
		Dimension: len(req.Embedding),
	})
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to store face embedding")
	}

	s.recordAudit(ctx, actorID, studentID)

	enrolledAt := stored.EnrolledAt
	return &models.FaceEnrollmentStatus{
		StudentID:  studentID,
		Enrolled:   true,
		Dimension:  stored.Dimension,
		EnrolledAt: &enrolledAt,
	}, nil
}

// Status reports whether a student has an enrolled face. The raw vector
// never leaves the service.
func (s *FaceService) Status(ctx context.Context, studentID string) (*models.FaceEnrollmentStatus, error) {
	embedding, err := s.repo.FindByStudent(ctx, studentID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return &models.FaceEnrollmentStatus{StudentID: studentID, Enrolled: false}, nil
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load enrollment status")
	}

	enrolledAt := embedding.EnrolledAt
	return &models.FaceEnrollmentStatus{
		StudentID:  studentID,
		Enrolled:   true,
		Dimension:  embedding.Dimension,
		EnrolledAt: &enrolledAt,
	}, nil
}

// Remove deletes a student's enrolled descriptor.
func (s *FaceService) Remove(ctx context.Context, studentID, actorID string) error {
	if err := s.repo.Delete(ctx, studentID); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete face embedding")
	}
	s.recordAudit(ctx, actorID, studentID)
	return nil
}

func (s *FaceService) recordAudit(ctx context.Context, actorID, studentID string) {
	if s.audit == nil {
		return
	}
	if err := s.audit.CreateAuditLog(ctx, &models.AuditLog{
		UserID:     &actorID,
		Action:     models.AuditActionFaceEnroll,
		Resource:   "face_embedding",
		ResourceID: &studentID,
	}); err != nil {
		s.logger.Warn("failed to record face audit log", zap.Error(err))
	}
}
