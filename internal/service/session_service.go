package service

import (
	"context"
	"crypto/rand"
	"database/sql"
	"encoding/base64"
	"errors"
	"time"

	"github.com/go-playground/validator/v10"
	qrcode "github.com/skip2/go-qrcode"
	"go.uber.org/zap"

	"github.com/presensia/attendance-api/internal/models"
	appErrors "github.com/presensia/attendance-api/pkg/errors"
)

const sessionTokenCachePrefix = "session:token:"

type sessionRepository interface {
	Create(ctx context.Context, session *models.AttendanceSession) error
	FindByID(ctx context.Context, id string) (*models.AttendanceSession, error)
	FindActiveByToken(ctx context.Context, token string) (*models.AttendanceSession, error)
	UpdateToken(ctx context.Context, id, token string, expiresAt time.Time) error
	Update(ctx context.Context, session *models.AttendanceSession) error
	Deactivate(ctx context.Context, id string) error
	DeactivateExpired(ctx context.Context, now time.Time) (int64, error)
	List(ctx context.Context, filter models.SessionFilter) ([]models.AttendanceSession, int, error)
}

type sessionCache interface {
	Get(ctx context.Context, key string, dest interface{}) error
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
}

type sessionAuditRepository interface {
	CreateAuditLog(ctx context.Context, log *models.AuditLog) error
}

// SessionConfig tunes token issuance and the expiry sweeper.
type SessionConfig struct {
	TokenTTL        time.Duration
	SweepInterval   time.Duration
	DefaultRadiusM  float64
	QRCodeSizePixel int
}

// SessionService manages attendance session lifecycles and QR tokens.
type SessionService struct {
	repo      sessionRepository
	cache     sessionCache
	audit     sessionAuditRepository
	validator *validator.Validate
	logger    *zap.Logger
	config    SessionConfig
}

// NewSessionService constructs a SessionService.
func NewSessionService(repo sessionRepository, cache sessionCache, audit sessionAuditRepository, validate *validator.Validate, logger *zap.Logger, config SessionConfig) *SessionService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if validate == nil {
		validate = validator.New()
	}
	if config.TokenTTL <= 0 {
		config.TokenTTL = 10 * time.Minute
	}
	if config.SweepInterval <= 0 {
		config.SweepInterval = time.Minute
	}
	if config.DefaultRadiusM <= 0 {
		config.DefaultRadiusM = 150
	}
	if config.QRCodeSizePixel <= 0 {
		config.QRCodeSizePixel = 256
	}
	return &SessionService{repo: repo, cache: cache, audit: audit, validator: validate, logger: logger, config: config}
}

// Create opens a new session for a teacher and issues its first QR token.
func (s *SessionService) Create(ctx context.Context, teacherID string, req models.CreateSessionRequest) (*models.AttendanceSession, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid session payload")
	}
	if (req.Latitude == nil) != (req.Longitude == nil) {
		return nil, appErrors.Clone(appErrors.ErrValidation, "latitude and longitude must be provided together")
	}

	token, err := generateSessionToken()
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to issue session token")
	}

	radius := s.config.DefaultRadiusM
	if req.RadiusM != nil {
		radius = *req.RadiusM
	}

	session := &models.AttendanceSession{
		CourseCode:     req.CourseCode,
		Batch:          req.Batch,
		TeacherID:      teacherID,
		Date:           req.Date,
		StartsAt:       req.StartsAt,
		EndsAt:         req.EndsAt,
		QRToken:        token,
		TokenExpiresAt: time.Now().UTC().Add(s.config.TokenTTL),
		Active:         true,
		Latitude:       req.Latitude,
		Longitude:      req.Longitude,
		RadiusM:        radius,
	}

	if err := s.repo.Create(ctx, session); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create session")
	}

	s.recordAudit(ctx, teacherID, models.AuditActionSessionCreate, session.ID)
	return session, nil
}

// Get returns one session by id.
func (s *SessionService) Get(ctx context.Context, id string) (*models.AttendanceSession, error) {
	session, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "session not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load session")
	}
	return session, nil
}

// List returns sessions matching the filter with the total count.
func (s *SessionService) List(ctx context.Context, filter models.SessionFilter) ([]models.AttendanceSession, int, error) {
	sessions, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, 0, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list sessions")
	}
	return sessions, total, nil
}

// Update edits session metadata. Only the owning teacher or an admin may call
// this; the handler enforces that before delegating.
func (s *SessionService) Update(ctx context.Context, id string, req models.UpdateSessionRequest) (*models.AttendanceSession, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid session payload")
	}

	session, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	if req.CourseCode != nil {
		session.CourseCode = *req.CourseCode
	}
	if req.Batch != nil {
		session.Batch = *req.Batch
	}
	if req.Date != nil {
		session.Date = *req.Date
	}
	if req.StartsAt != nil {
		session.StartsAt = *req.StartsAt
	}
	if req.EndsAt != nil {
		session.EndsAt = *req.EndsAt
	}
	if req.Latitude != nil {
		session.Latitude = req.Latitude
	}
	if req.Longitude != nil {
		session.Longitude = req.Longitude
	}
	if req.RadiusM != nil {
		session.RadiusM = *req.RadiusM
	}
	if session.EndsAt.Before(session.StartsAt) {
		return nil, appErrors.Clone(appErrors.ErrValidation, "session must end after it starts")
	}

	if err := s.repo.Update(ctx, session); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update session")
	}
	return session, nil
}

// RotateToken invalidates the current QR token and issues a fresh one.
func (s *SessionService) RotateToken(ctx context.Context, id, actorID string) (*models.SessionTokenInfo, error) {
	session, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if !session.Active {
		return nil, appErrors.Clone(appErrors.ErrConflict, "session is no longer active")
	}

	token, err := generateSessionToken()
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to issue session token")
	}
	expiresAt := time.Now().UTC().Add(s.config.TokenTTL)

	if err := s.repo.UpdateToken(ctx, id, token, expiresAt); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to rotate session token")
	}

	s.invalidateToken(ctx, session.QRToken)
	s.recordAudit(ctx, actorID, models.AuditActionTokenRotate, id)

	return &models.SessionTokenInfo{SessionID: id, Token: token, TokenExpiresAt: expiresAt}, nil
}

// End closes a session. Its token stops validating immediately.
func (s *SessionService) End(ctx context.Context, id, actorID string) error {
	session, err := s.Get(ctx, id)
	if err != nil {
		return err
	}
	if !session.Active {
		return appErrors.Clone(appErrors.ErrConflict, "session already ended")
	}

	if err := s.repo.Deactivate(ctx, id); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to end session")
	}

	s.invalidateToken(ctx, session.QRToken)
	s.recordAudit(ctx, actorID, models.AuditActionSessionEnd, id)
	return nil
}

// QRCodePNG renders the session's current token as a PNG image.
func (s *SessionService) QRCodePNG(ctx context.Context, id string) ([]byte, error) {
	session, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if !session.Active {
		return nil, appErrors.Clone(appErrors.ErrConflict, "session is no longer active")
	}
	if time.Now().UTC().After(session.TokenExpiresAt) {
		return nil, appErrors.Clone(appErrors.ErrSessionExpired, "session token has expired, rotate it first")
	}

	png, err := qrcode.Encode(session.QRToken, qrcode.Medium, s.config.QRCodeSizePixel)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to encode qr code")
	}
	return png, nil
}

// ValidateToken resolves a scanned token to its active, unexpired session.
// Resolved sessions are cached until the token's expiry.
func (s *SessionService) ValidateToken(ctx context.Context, token string) (*models.AttendanceSession, error) {
	if token == "" {
		return nil, appErrors.Clone(appErrors.ErrSessionNotFound, "missing session token")
	}

	cacheKey := sessionTokenCachePrefix + token
	if s.cache != nil {
		var cached models.AttendanceSession
		if err := s.cache.Get(ctx, cacheKey, &cached); err == nil {
			if !time.Now().UTC().After(cached.TokenExpiresAt) {
				return &cached, nil
			}
			return nil, appErrors.Clone(appErrors.ErrSessionExpired, "session code has expired")
		}
	}

	session, err := s.repo.FindActiveByToken(ctx, token)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrSessionNotFound, "invalid session code")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to resolve session token")
	}

	now := time.Now().UTC()
	if now.After(session.TokenExpiresAt) || now.After(session.EndsAt) {
		return nil, appErrors.Clone(appErrors.ErrSessionExpired, "session code has expired")
	}

	if s.cache != nil {
		ttl := time.Until(session.TokenExpiresAt)
		if ttl > 0 {
			if err := s.cache.Set(ctx, cacheKey, session, ttl); err != nil {
				s.logger.Warn("failed to cache session token", zap.Error(err))
			}
		}
	}

	return session, nil
}

// StartSweeper closes sessions past their scheduled end at a fixed interval.
// It returns when the context is cancelled.
func (s *SessionService) StartSweeper(ctx context.Context) {
	ticker := time.NewTicker(s.config.SweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			closed, err := s.repo.DeactivateExpired(ctx, now)
			if err != nil {
				s.logger.Warn("session sweep failed", zap.Error(err))
				continue
			}
			if closed > 0 {
				s.logger.Info("closed expired sessions", zap.Int64("count", closed))
			}
		}
	}
}

func (s *SessionService) invalidateToken(ctx context.Context, token string) {
	if s.cache == nil || token == "" {
		return
	}
	if err := s.cache.Delete(ctx, sessionTokenCachePrefix+token); err != nil {
		s.logger.Warn("failed to invalidate cached session token", zap.Error(err))
	}
}

func (s *SessionService) recordAudit(ctx context.Context, actorID, action, resourceID string) {
	if s.audit == nil {
		return
	}
	if err := s.audit.CreateAuditLog(ctx, &models.AuditLog{
		UserID:     &actorID,
		Action:     action,
		Resource:   "attendance_session",
		ResourceID: &resourceID,
	}); err != nil {
		s.logger.Warn("failed to record session audit log", zap.Error(err))
	}
}

func generateSessionToken() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}
