package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/presensia/attendance-api/internal/models"
	appErrors "github.com/presensia/attendance-api/pkg/errors"
	"github.com/presensia/attendance-api/pkg/face"
	"github.com/presensia/attendance-api/pkg/geo"
)

const attendanceSummaryCachePrefix = "attendance:summary:"

type attendanceRepository interface {
	Upsert(ctx context.Context, record *models.AttendanceRecord) (*models.AttendanceRecord, error)
	List(ctx context.Context, filter models.AttendanceFilter) ([]models.AttendanceRecordDetail, int, error)
	SessionReport(ctx context.Context, sessionID string) ([]models.SessionReportRow, error)
	StudentHistory(ctx context.Context, studentID string, from, to *time.Time) ([]models.AttendanceHistoryRow, error)
	StudentSummary(ctx context.Context, studentID, courseCode string) (*models.AttendanceSummary, error)
}

type faceEmbeddingReader interface {
	FindByStudent(ctx context.Context, studentID string) (*models.FaceEmbedding, error)
}

type sessionTokenValidator interface {
	ValidateToken(ctx context.Context, token string) (*models.AttendanceSession, error)
	Get(ctx context.Context, id string) (*models.AttendanceSession, error)
}

type checkinMetrics interface {
	ObserveCheckIn(result string)
	ObserveFaceConfidence(confidence float64)
	ObserveCheckInDistance(meters float64)
}

// VerificationConfig tunes geofence and face match acceptance.
type VerificationConfig struct {
	GeofenceRadiusM    float64
	FaceMatchThreshold float64
	EmbeddingDim       int
	SummaryCacheTTL    time.Duration
}

// AttendanceService records attendance, both via verified self-service
// check-in and via teacher manual marks.
type AttendanceService struct {
	repo      attendanceRepository
	faces     faceEmbeddingReader
	sessions  sessionTokenValidator
	cache     sessionCache
	audit     sessionAuditRepository
	metrics   checkinMetrics
	validator *validator.Validate
	logger    *zap.Logger
	config    VerificationConfig
}

// NewAttendanceService constructs an AttendanceService.
func NewAttendanceService(
	repo attendanceRepository,
	faces faceEmbeddingReader,
	sessions sessionTokenValidator,
	cache sessionCache,
	audit sessionAuditRepository,
	metrics checkinMetrics,
	validate *validator.Validate,
	logger *zap.Logger,
	config VerificationConfig,
) *AttendanceService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if validate == nil {
		validate = validator.New()
	}
	if config.FaceMatchThreshold <= 0 {
		config.FaceMatchThreshold = 0.6
	}
	if config.SummaryCacheTTL <= 0 {
		config.SummaryCacheTTL = 5 * time.Minute
	}
	return &AttendanceService{
		repo:      repo,
		faces:     faces,
		sessions:  sessions,
		cache:     cache,
		audit:     audit,
		metrics:   metrics,
		validator: validate,
		logger:    logger,
		config:    config,
	}
}

// CheckIn runs the full verification pipeline for a student's scan: session
// token, geofence, face match, then an idempotent record upsert. Each failure
// mode maps to a distinct error so clients can react specifically.
func (s *AttendanceService) CheckIn(ctx context.Context, studentID string, req models.CheckInRequest) (*models.CheckInResult, error) {
	if err := s.validator.Struct(req); err != nil {
		s.observe(CheckInResultError)
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid check-in payload")
	}

	session, err := s.sessions.ValidateToken(ctx, req.Token)
	if err != nil {
		s.observeCheckInError(err)
		return nil, err
	}

	var distance *float64
	locVerified := false
	if session.HasAnchor() {
		if req.Latitude == nil || req.Longitude == nil {
			s.observe(CheckInResultOutsideGeofence)
			return nil, appErrors.Clone(appErrors.ErrOutsideGeofence, "location is required for this session")
		}
		anchor := geo.Point{Latitude: *session.Latitude, Longitude: *session.Longitude}
		pos := geo.Point{Latitude: *req.Latitude, Longitude: *req.Longitude}
		radius := session.RadiusM
		if radius <= 0 {
			radius = s.config.GeofenceRadiusM
		}
		result, err := geo.Verify(anchor, pos, radius)
		if err != nil {
			s.observe(CheckInResultError)
			return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid coordinates")
		}
		if !result.WithinRange {
			s.observe(CheckInResultOutsideGeofence)
			return nil, appErrors.Clone(appErrors.ErrOutsideGeofence,
				fmt.Sprintf("you are %.0fm from the classroom, allowed radius is %.0fm", result.DistanceM, result.AllowedRadiusM))
		}
		distance = &result.DistanceM
		locVerified = true
		if s.metrics != nil {
			s.metrics.ObserveCheckInDistance(result.DistanceM)
		}
	}

	if err := face.ValidateCapture(req.Embedding, req.FacesDetected, s.config.EmbeddingDim); err != nil {
		s.observe(CheckInResultError)
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid face capture")
	}

	enrolled, err := s.faces.FindByStudent(ctx, studentID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			s.observe(CheckInResultFaceNotEnrolled)
			return nil, appErrors.Clone(appErrors.ErrFaceNotEnrolled, "no enrolled face for student, contact your administrator")
		}
		s.observe(CheckInResultError)
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load enrolled face")
	}

	match, err := face.Compare(enrolled.Embedding, req.Embedding, s.config.FaceMatchThreshold)
	if err != nil {
		s.observe(CheckInResultError)
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "face comparison failed")
	}
	if !match.Match {
		s.observe(CheckInResultFaceMismatch)
		s.logger.Info("face mismatch on check-in",
			zap.String("student_id", studentID),
			zap.String("session_id", session.ID),
			zap.Float64("confidence", match.Confidence))
		return nil, appErrors.Clone(appErrors.ErrFaceMismatch, "face not recognized, try again with better lighting")
	}

	status := models.AttendanceStatusPresent
	if time.Now().UTC().After(session.StartsAt.Add(15 * time.Minute)) {
		status = models.AttendanceStatusLate
	}

	confidence := match.Confidence
	record := &models.AttendanceRecord{
		SessionID:      session.ID,
		StudentID:      studentID,
		Status:         status,
		FaceVerified:   true,
		FaceConfidence: &confidence,
		LocVerified:    locVerified,
		Latitude:       req.Latitude,
		Longitude:      req.Longitude,
		DistanceM:      distance,
	}

	stored, err := s.repo.Upsert(ctx, record)
	if err != nil {
		s.observe(CheckInResultError)
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to record attendance")
	}

	s.invalidateSummary(ctx, studentID)
	s.observe(CheckInResultOK)
	if s.metrics != nil {
		s.metrics.ObserveFaceConfidence(match.Confidence)
	}

	return &models.CheckInResult{Record: stored, FaceConfidence: match.Confidence, DistanceM: distance}, nil
}

// ManualMark sets one student's status for a session, bypassing verification.
// Reserved for teachers and admins; the handler enforces ownership.
func (s *AttendanceService) ManualMark(ctx context.Context, sessionID, actorID string, req models.ManualMarkRequest) (*models.AttendanceRecord, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid mark payload")
	}
	if !req.Status.Valid() {
		return nil, appErrors.Clone(appErrors.ErrValidation, "unsupported attendance status")
	}

	if _, err := s.sessions.Get(ctx, sessionID); err != nil {
		return nil, err
	}

	record := &models.AttendanceRecord{
		SessionID: sessionID,
		StudentID: req.StudentID,
		Status:    req.Status,
		Notes:     req.Notes,
	}

	stored, err := s.repo.Upsert(ctx, record)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to record attendance")
	}

	s.invalidateSummary(ctx, req.StudentID)
	s.recordAudit(ctx, actorID, sessionID)
	return stored, nil
}

// BulkMark applies manual marks for several students. Marks are applied
// independently; the first failure aborts and reports how far it got.
func (s *AttendanceService) BulkMark(ctx context.Context, sessionID, actorID string, req models.BulkMarkRequest) ([]models.AttendanceRecord, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid bulk mark payload")
	}

	if _, err := s.sessions.Get(ctx, sessionID); err != nil {
		return nil, err
	}

	records := make([]models.AttendanceRecord, 0, len(req.Marks))
	for i, mark := range req.Marks {
		if !mark.Status.Valid() {
			return records, appErrors.Clone(appErrors.ErrValidation,
				fmt.Sprintf("unsupported attendance status at index %d", i))
		}
		stored, err := s.repo.Upsert(ctx, &models.AttendanceRecord{
			SessionID: sessionID,
			StudentID: mark.StudentID,
			Status:    mark.Status,
			Notes:     mark.Notes,
		})
		if err != nil {
			return records, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status,
				fmt.Sprintf("failed to record attendance at index %d", i))
		}
		records = append(records, *stored)
		s.invalidateSummary(ctx, mark.StudentID)
	}

	s.recordAudit(ctx, actorID, sessionID)
	return records, nil
}

// List returns attendance records matching the filter.
func (s *AttendanceService) List(ctx context.Context, filter models.AttendanceFilter) ([]models.AttendanceRecordDetail, int, error) {
	records, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, 0, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list attendance")
	}
	return records, total, nil
}

// SessionReport returns per-student outcomes for one session.
func (s *AttendanceService) SessionReport(ctx context.Context, sessionID string) ([]models.SessionReportRow, error) {
	if _, err := s.sessions.Get(ctx, sessionID); err != nil {
		return nil, err
	}
	rows, err := s.repo.SessionReport(ctx, sessionID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to build session report")
	}
	return rows, nil
}

// StudentHistory returns a student's attendance history in the window.
func (s *AttendanceService) StudentHistory(ctx context.Context, studentID string, from, to *time.Time) ([]models.AttendanceHistoryRow, error) {
	rows, err := s.repo.StudentHistory(ctx, studentID, from, to)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load attendance history")
	}
	return rows, nil
}

// StudentSummary aggregates a student's per-status counts, optionally scoped
// to one course. Summaries are cached briefly since they back dashboards.
func (s *AttendanceService) StudentSummary(ctx context.Context, studentID, courseCode string) (*models.AttendanceSummary, error) {
	cacheKey := attendanceSummaryCachePrefix + studentID + ":" + courseCode
	if s.cache != nil {
		var cached models.AttendanceSummary
		if err := s.cache.Get(ctx, cacheKey, &cached); err == nil {
			return &cached, nil
		}
	}

	summary, err := s.repo.StudentSummary(ctx, studentID, courseCode)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to build attendance summary")
	}

	if s.cache != nil {
		if err := s.cache.Set(ctx, cacheKey, summary, s.config.SummaryCacheTTL); err != nil {
			s.logger.Warn("failed to cache attendance summary", zap.Error(err))
		}
	}
	return summary, nil
}

func (s *AttendanceService) invalidateSummary(ctx context.Context, studentID string) {
	if s.cache == nil {
		return
	}
	type patternDeleter interface {
		DeleteByPattern(ctx context.Context, pattern string) error
	}
	if pd, ok := s.cache.(patternDeleter); ok {
		if err := pd.DeleteByPattern(ctx, attendanceSummaryCachePrefix+studentID+":*"); err != nil {
			s.logger.Warn("failed to invalidate attendance summary cache", zap.Error(err))
		}
	}
}

func (s *AttendanceService) observe(result string) {
	if s.metrics != nil {
		s.metrics.ObserveCheckIn(result)
	}
}

func (s *AttendanceService) observeCheckInError(err error) {
	var appErr *appErrors.Error
	if !errors.As(err, &appErr) {
		s.observe(CheckInResultError)
		return
	}
	switch appErr.Code {
	case appErrors.ErrSessionNotFound.Code:
		s.observe(CheckInResultInvalidSession)
	case appErrors.ErrSessionExpired.Code:
		s.observe(CheckInResultExpiredSession)
	default:
		s.observe(CheckInResultError)
	}
}

func (s *AttendanceService) recordAudit(ctx context.Context, actorID, sessionID string) {
	if s.audit == nil {
		return
	}
	if err := s.audit.CreateAuditLog(ctx, &models.AuditLog{
		UserID:     &actorID,
		Action:     models.AuditActionManualMark,
		Resource:   "attendance_record",
		ResourceID: &sessionID,
	}); err != nil {
		s.logger.Warn("failed to record attendance audit log", zap.Error(err))
	}
}
