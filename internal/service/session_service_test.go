package service

import (
	"bytes"
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/presensia/attendance-api/internal/models"
	appErrors "github.com/presensia/attendance-api/pkg/errors"
)

type mockSessionRepo struct {
	sessions       map[string]*models.AttendanceSession
	byToken        map[string]*models.AttendanceSession
	updatedToken   string
	deactivated    []string
	expiredClosed  int64
	deactivateErr  error
	findByTokenErr error
}

func newMockSessionRepo() *mockSessionRepo {
	return &mockSessionRepo{
		sessions: make(map[string]*models.AttendanceSession),
		byToken:  make(map[string]*models.AttendanceSession),
	}
}

func (m *mockSessionRepo) add(session *models.AttendanceSession) {
	m.sessions[session.ID] = session
	m.byToken[session.QRToken] = session
}

func (m *mockSessionRepo) Create(ctx context.Context, session *models.AttendanceSession) error {
	if session.ID == "" {
		session.ID = "sess-generated"
	}
	m.add(session)
	return nil
}

func (m *mockSessionRepo) FindByID(ctx context.Context, id string) (*models.AttendanceSession, error) {
	session, ok := m.sessions[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	// Return a copy so later repo mutations don't alias the caller's view,
	// matching a real repository that scans a fresh struct per query.
	copied := *session
	return &copied, nil
}

func (m *mockSessionRepo) FindActiveByToken(ctx context.Context, token string) (*models.AttendanceSession, error) {
	if m.findByTokenErr != nil {
		return nil, m.findByTokenErr
	}
	session, ok := m.byToken[token]
	if !ok || !session.Active {
		return nil, sql.ErrNoRows
	}
	return session, nil
}

func (m *mockSessionRepo) UpdateToken(ctx context.Context, id, token string, expiresAt time.Time) error {
	session := m.sessions[id]
	delete(m.byToken, session.QRToken)
	session.QRToken = token
	session.TokenExpiresAt = expiresAt
	m.byToken[token] = session
	m.updatedToken = token
	return nil
}

func (m *mockSessionRepo) Update(ctx context.Context, session *models.AttendanceSession) error {
	m.sessions[session.ID] = session
	return nil
}

func (m *mockSessionRepo) Deactivate(ctx context.Context, id string) error {
	if m.deactivateErr != nil {
		return m.deactivateErr
	}
	m.sessions[id].Active = false
	m.deactivated = append(m.deactivated, id)
	return nil
}

func (m *mockSessionRepo) DeactivateExpired(ctx context.Context, now time.Time) (int64, error) {
	return m.expiredClosed, nil
}

func (m *mockSessionRepo) List(ctx context.Context, filter models.SessionFilter) ([]models.AttendanceSession, int, error) {
	out := make([]models.AttendanceSession, 0, len(m.sessions))
	for _, s := range m.sessions {
		out = append(out, *s)
	}
	return out, len(out), nil
}

type mockCache struct {
	store   map[string][]byte
	deleted []string
}

func newMockCache() *mockCache {
	return &mockCache{store: make(map[string][]byte)}
}

func (m *mockCache) Get(ctx context.Context, key string, dest interface{}) error {
	return appErrors.ErrCacheMiss
}

func (m *mockCache) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	m.store[key] = []byte("set")
	return nil
}

func (m *mockCache) Delete(ctx context.Context, key string) error {
	m.deleted = append(m.deleted, key)
	return nil
}

type mockAuditSink struct {
	logs []*models.AuditLog
}

func (m *mockAuditSink) CreateAuditLog(ctx context.Context, log *models.AuditLog) error {
	m.logs = append(m.logs, log)
	return nil
}

func testSession(id, token string) *models.AttendanceSession {
	now := time.Now().UTC()
	return &models.AttendanceSession{
		ID:             id,
		CourseCode:     "CS101",
		Batch:          "2026A",
		TeacherID:      "teacher-1",
		Date:           now,
		StartsAt:       now.Add(-5 * time.Minute),
		EndsAt:         now.Add(55 * time.Minute),
		QRToken:        token,
		TokenExpiresAt: now.Add(10 * time.Minute),
		Active:         true,
		RadiusM:        150,
	}
}

func newTestSessionService(repo *mockSessionRepo, cache *mockCache, audit *mockAuditSink) *SessionService {
	return NewSessionService(repo, cache, audit, validator.New(), zap.NewNop(), SessionConfig{
		TokenTTL:      10 * time.Minute,
		SweepInterval: time.Minute,
	})
}

func TestSessionServiceCreateIssuesToken(t *testing.T) {
	repo := newMockSessionRepo()
	audit := &mockAuditSink{}
	svc := newTestSessionService(repo, newMockCache(), audit)

	now := time.Now().UTC()
	session, err := svc.Create(context.Background(), "teacher-1", models.CreateSessionRequest{
		CourseCode: "CS101",
		Batch:      "2026A",
		Date:       now,
		StartsAt:   now,
		EndsAt:     now.Add(time.Hour),
	})
	require.NoError(t, err)
	assert.NotEmpty(t, session.QRToken)
	assert.True(t, session.Active)
	assert.Equal(t, 150.0, session.RadiusM)
	assert.True(t, session.TokenExpiresAt.After(now))
	require.Len(t, audit.logs, 1)
	assert.Equal(t, models.AuditActionSessionCreate, audit.logs[0].Action)
}

func TestSessionServiceCreateRejectsHalfAnchor(t *testing.T) {
	svc := newTestSessionService(newMockSessionRepo(), newMockCache(), &mockAuditSink{})

	lat := 12.9716
	now := time.Now().UTC()
	_, err := svc.Create(context.Background(), "teacher-1", models.CreateSessionRequest{
		CourseCode: "CS101",
		Batch:      "2026A",
		Date:       now,
		StartsAt:   now,
		EndsAt:     now.Add(time.Hour),
		Latitude:   &lat,
	})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
}

func TestSessionServiceRotateToken(t *testing.T) {
	repo := newMockSessionRepo()
	cache := newMockCache()
	session := testSession("sess-1", "old-token")
	repo.add(session)
	svc := newTestSessionService(repo, cache, &mockAuditSink{})

	info, err := svc.RotateToken(context.Background(), "sess-1", "teacher-1")
	require.NoError(t, err)
	assert.NotEqual(t, "old-token", info.Token)
	assert.Equal(t, info.Token, repo.updatedToken)
	assert.Contains(t, cache.deleted, sessionTokenCachePrefix+"old-token")
}

func TestSessionServiceRotateInactive(t *testing.T) {
	repo := newMockSessionRepo()
	session := testSession("sess-1", "tok")
	session.Active = false
	repo.add(session)
	svc := newTestSessionService(repo, newMockCache(), &mockAuditSink{})

	_, err := svc.RotateToken(context.Background(), "sess-1", "teacher-1")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrConflict.Code, appErrors.FromError(err).Code)
}

func TestSessionServiceEnd(t *testing.T) {
	repo := newMockSessionRepo()
	cache := newMockCache()
	repo.add(testSession("sess-1", "tok"))
	svc := newTestSessionService(repo, cache, &mockAuditSink{})

	err := svc.End(context.Background(), "sess-1", "teacher-1")
	require.NoError(t, err)
	assert.Contains(t, repo.deactivated, "sess-1")
	assert.Contains(t, cache.deleted, sessionTokenCachePrefix+"tok")

	err = svc.End(context.Background(), "sess-1", "teacher-1")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrConflict.Code, appErrors.FromError(err).Code)
}

func TestSessionServiceQRCodePNG(t *testing.T) {
	repo := newMockSessionRepo()
	repo.add(testSession("sess-1", "tok"))
	svc := newTestSessionService(repo, newMockCache(), &mockAuditSink{})

	png, err := svc.QRCodePNG(context.Background(), "sess-1")
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(png, []byte("\x89PNG")))
}

func TestSessionServiceValidateToken(t *testing.T) {
	repo := newMockSessionRepo()
	cache := newMockCache()
	repo.add(testSession("sess-1", "tok"))
	svc := newTestSessionService(repo, cache, &mockAuditSink{})

	session, err := svc.ValidateToken(context.Background(), "tok")
	require.NoError(t, err)
	assert.Equal(t, "sess-1", session.ID)
	assert.Contains(t, cache.store, sessionTokenCachePrefix+"tok")
}

func TestSessionServiceValidateTokenUnknown(t *testing.T) {
	svc := newTestSessionService(newMockSessionRepo(), newMockCache(), &mockAuditSink{})

	_, err := svc.ValidateToken(context.Background(), "nope")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrSessionNotFound.Code, appErrors.FromError(err).Code)
}

func TestSessionServiceValidateTokenExpired(t *testing.T) {
	repo := newMockSessionRepo()
	session := testSession("sess-1", "tok")
	session.TokenExpiresAt = time.Now().UTC().Add(-time.Minute)
	repo.add(session)
	svc := newTestSessionService(repo, newMockCache(), &mockAuditSink{})

	_, err := svc.ValidateToken(context.Background(), "tok")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrSessionExpired.Code, appErrors.FromError(err).Code)
}
