package service

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/presensia/attendance-api/internal/models"
	appErrors "github.com/presensia/attendance-api/pkg/errors"
)

type leaveRepository interface {
	Create(ctx context.Context, leave *models.LeaveRequest) error
	FindByID(ctx context.Context, id string) (*models.LeaveRequest, error)
	List(ctx context.Context, filter models.LeaveFilter) ([]models.LeaveRequest, int, error)
	SetDecision(ctx context.Context, id string, status models.LeaveStatus, reviewerID string, note *string, reviewedAt time.Time) error
}

// LeaveService manages the leave request lifecycle. Approval records a
// decision only; attendance for the covered sessions stays a separate
// teacher action.
type LeaveService struct {
	repo      leaveRepository
	audit     sessionAuditRepository
	validator *validator.Validate
	logger    *zap.Logger
}

// NewLeaveService constructs a LeaveService.
func NewLeaveService(repo leaveRepository, audit sessionAuditRepository, validate *validator.Validate, logger *zap.Logger) *LeaveService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if validate == nil {
		validate = validator.New()
	}
	return &LeaveService{repo: repo, audit: audit, validator: validate, logger: logger}
}

// Create files a new pending leave request for the student.
func (s *LeaveService) Create(ctx context.Context, studentID string, req models.CreateLeaveRequest) (*models.LeaveRequest, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid leave payload")
	}
	if !req.Type.Valid() {
		return nil, appErrors.Clone(appErrors.ErrValidation, "unsupported leave type")
	}

	leave := &models.LeaveRequest{
		StudentID: studentID,
		Type:      req.Type,
		FromDate:  req.FromDate,
		ToDate:    req.ToDate,
		Reason:    req.Reason,
		Status:    models.LeaveStatusPending,
	}
	if err := s.repo.Create(ctx, leave); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create leave request")
	}
	return leave, nil
}

// Get returns one leave request by id.
func (s *LeaveService) Get(ctx context.Context, id string) (*models.LeaveRequest, error) {
	leave, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "leave request not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load leave request")
	}
	return leave, nil
}

// List returns leave requests matching the filter.
func (s *LeaveService) List(ctx context.Context, filter models.LeaveFilter) ([]models.LeaveRequest, int, error) {
	leaves, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, 0, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list leave requests")
	}
	return leaves, total, nil
}

// Decide approves or rejects a pending leave request. Deciding twice is a
// conflict; the first decision wins.
func (s *LeaveService) Decide(ctx context.Context, id, reviewerID string, approve bool, note *string) (*models.LeaveRequest, error) {
	status := models.LeaveStatusRejected
	if approve {
		status = models.LeaveStatusApproved
	}

	if err := s.repo.SetDecision(ctx, id, status, reviewerID, note, time.Now().UTC()); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			if _, getErr := s.Get(ctx, id); getErr != nil {
				return nil, getErr
			}
			return nil, appErrors.Clone(appErrors.ErrConflict, "leave request already reviewed")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to record leave decision")
	}

	s.recordAudit(ctx, reviewerID, id)
	return s.Get(ctx, id)
}

func (s *LeaveService) recordAudit(ctx context.Context, reviewerID, leaveID string) {
	if s.audit == nil {
		return
	}
	if err := s.audit.CreateAuditLog(ctx, &models.AuditLog{
		UserID:     &reviewerID,
		Action:     models.AuditActionLeaveDecision,
		Resource:   "leave_request",
		ResourceID: &leaveID,
	}); err != nil {
		s.logger.Warn("failed to record leave audit log", zap.Error(err))
	}
}
