package service

import (
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

type mockAttendanceRepo struct {
	upserted []*models.AttendanceRecord
	records  []models.AttendanceRecordDetail
	summary  *models.AttendanceSummary
}

func (m *mockAttendanceRepo) Upsert(ctx context.Context, record *models.AttendanceRecord) (*models.AttendanceRecord, error) {
	stored := *record
	if stored.ID == "" {
		stored.ID = "rec-1"
	}
	m.upserted = append(m.upserted, &stored)
	return &stored, nil
}

func (m *mockAttendanceRepo) List(ctx context.Context, filter models.AttendanceFilter) ([]models.AttendanceRecordDetail, int, error) {
	return m.records, len(m.records), nil
}

func (m *mockAttendanceRepo) SessionReport(ctx context.Context, sessionID string) ([]models.SessionReportRow, error) {
	return nil, nil
}

func (m *mockAttendanceRepo) StudentHistory(ctx context.Context, studentID string, from, to *time.Time) ([]models.AttendanceHistoryRow, error) {
	return nil, nil
}

func (m *mockAttendanceRepo) StudentSummary(ctx context.Context, studentID, courseCode string) (*models.AttendanceSummary, error) {
	if m.summary != nil {
		return m.summary, nil
	}
	return &models.AttendanceSummary{}, nil
}

type mockFaceReader struct {
	embedding *models.FaceEmbedding
	err       error
}

func (m *mockFaceReader) FindByStudent(ctx context.Context, studentID string) (*models.FaceEmbedding, error) {
	if m.err != nil {
		return nil, m.err
	}
	return m.embedding, nil
}

type mockSessionValidator struct {
	session *models.AttendanceSession
	err     error
}

func (m *mockSessionValidator) ValidateToken(ctx context.Context, token string) (*models.AttendanceSession, error) {
	if m.err != nil {
		return nil, m.err
	}
	return m.session, nil
}

func (m *mockSessionValidator) Get(ctx context.Context, id string) (*models.AttendanceSession, error) {
	if m.err != nil {
		return nil, m.err
	}
	return m.session, nil
}

type mockMetrics struct {
	results     []string
	confidences []float64
	distances   []float64
}

func (m *mockMetrics) ObserveCheckIn(result string) { m.results = append(m.results, result) }

func (m *mockMetrics) ObserveFaceConfidence(confidence float64) {
	m.confidences = append(m.confidences, confidence)
}

func (m *mockMetrics) ObserveCheckInDistance(meters float64) { m.distances = append(m.distances, meters) }

func anchoredSession() *models.AttendanceSession {
	session := testSession("sess-1", "tok")
	lat := 12.9716
	lng := 77.5946
	session.Latitude = &lat
	session.Longitude = &lng
	return session
}

func newTestAttendanceService(repo *mockAttendanceRepo, faces *mockFaceReader, sessions *mockSessionValidator, metrics *mockMetrics) *AttendanceService {
	return NewAttendanceService(repo, faces, sessions, nil, &mockAuditSink{}, metrics, validator.New(), zap.NewNop(), VerificationConfig{
		GeofenceRadiusM:    150,
		FaceMatchThreshold: 0.6,
		EmbeddingDim:       4,
	})
}

func checkInRequest(lat, lng float64, embedding []float64) models.CheckInRequest {
	return models.CheckInRequest{
		Token:         "tok",
		Latitude:      &lat,
		Longitude:     &lng,
		Embedding:     embedding,
		FacesDetected: 1,
	}
}

func TestAttendanceServiceCheckInSuccess(t *testing.T) {
	repo := &mockAttendanceRepo{}
	faces := &mockFaceReader{embedding: &models.FaceEmbedding{StudentID: "student-1", Embedding: models.Embedding{0.1, 0.2, 0.3, 0.4}, Dimension: 4}}
	sessions := &mockSessionValidator{session: anchoredSession()}
	metrics := &mockMetrics{}
	svc := newTestAttendanceService(repo, faces, sessions, metrics)

	result, err := svc.CheckIn(context.Background(), "student-1", checkInRequest(12.9716, 77.5946, []float64{0.1, 0.2, 0.3, 0.4}))
	require.NoError(t, err)
	assert.Equal(t, models.AttendanceStatusPresent, result.Record.Status)
	assert.True(t, result.Record.FaceVerified)
	assert.True(t, result.Record.LocVerified)
	assert.InDelta(t, 1.0, result.FaceConfidence, 1e-9)
	require.NotNil(t, result.DistanceM)
	assert.InDelta(t, 0.0, *result.DistanceM, 0.5)
	assert.Contains(t, metrics.results, CheckInResultOK)
}

func TestAttendanceServiceCheckInOutsideGeofence(t *testing.T) {
	repo := &mockAttendanceRepo{}
	faces := &mockFaceReader{embedding: &models.FaceEmbedding{Embedding: models.Embedding{0.1, 0.2, 0.3, 0.4}}}
	sessions := &mockSessionValidator{session: anchoredSession()}
	metrics := &mockMetrics{}
	svc := newTestAttendanceService(repo, faces, sessions, metrics)

	// Roughly 1.1km north of the anchor.
	_, err := svc.CheckIn(context.Background(), "student-1", checkInRequest(12.9816, 77.5946, []float64{0.1, 0.2, 0.3, 0.4}))
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrOutsideGeofence.Code, appErrors.FromError(err).Code)
	assert.Empty(t, repo.upserted)
	assert.Contains(t, metrics.results, CheckInResultOutsideGeofence)
}

func TestAttendanceServiceCheckInMissingLocation(t *testing.T) {
	sessions := &mockSessionValidator{session: anchoredSession()}
	svc := newTestAttendanceService(&mockAttendanceRepo{}, &mockFaceReader{}, sessions, &mockMetrics{})

	_, err := svc.CheckIn(context.Background(), "student-1", models.CheckInRequest{
		Token:         "tok",
		Embedding:     []float64{0.1, 0.2, 0.3, 0.4},
		FacesDetected: 1,
	})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrOutsideGeofence.Code, appErrors.FromError(err).Code)
}

func TestAttendanceServiceCheckInFaceMismatch(t *testing.T) {
	repo := &mockAttendanceRepo{}
	faces := &mockFaceReader{embedding: &models.FaceEmbedding{Embedding: models.Embedding{1, 1, 1, 1}}}
	sessions := &mockSessionValidator{session: anchoredSession()}
	metrics := &mockMetrics{}
	svc := newTestAttendanceService(repo, faces, sessions, metrics)

	_, err := svc.CheckIn(context.Background(), "student-1", checkInRequest(12.9716, 77.5946, []float64{-1, -1, -1, -1}))
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrFaceMismatch.Code, appErrors.FromError(err).Code)
	assert.Empty(t, repo.upserted)
	assert.Contains(t, metrics.results, CheckInResultFaceMismatch)
}

func TestAttendanceServiceCheckInNotEnrolled(t *testing.T) {
	faces := &mockFaceReader{err: sql.ErrNoRows}
	sessions := &mockSessionValidator{session: anchoredSession()}
	metrics := &mockMetrics{}
	svc := newTestAttendanceService(&mockAttendanceRepo{}, faces, sessions, metrics)

	_, err := svc.CheckIn(context.Background(), "student-1", checkInRequest(12.9716, 77.5946, []float64{0.1, 0.2, 0.3, 0.4}))
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrFaceNotEnrolled.Code, appErrors.FromError(err).Code)
	assert.Contains(t, metrics.results, CheckInResultFaceNotEnrolled)
}

func TestAttendanceServiceCheckInExpiredSession(t *testing.T) {
	sessions := &mockSessionValidator{err: appErrors.Clone(appErrors.ErrSessionExpired, "")}
	metrics := &mockMetrics{}
	svc := newTestAttendanceService(&mockAttendanceRepo{}, &mockFaceReader{}, sessions, metrics)

	_, err := svc.CheckIn(context.Background(), "student-1", checkInRequest(12.9716, 77.5946, []float64{0.1, 0.2, 0.3, 0.4}))
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrSessionExpired.Code, appErrors.FromError(err).Code)
	assert.Contains(t, metrics.results, CheckInResultExpiredSession)
}

func TestAttendanceServiceCheckInLate(t *testing.T) {
	session := anchoredSession()
	session.StartsAt = time.Now().UTC().Add(-30 * time.Minute)
	faces := &mockFaceReader{embedding: &models.FaceEmbedding{Embedding: models.Embedding{0.1, 0.2, 0.3, 0.4}}}
	sessions := &mockSessionValidator{session: session}
	svc := newTestAttendanceService(&mockAttendanceRepo{}, faces, sessions, &mockMetrics{})

	result, err := svc.CheckIn(context.Background(), "student-1", checkInRequest(12.9716, 77.5946, []float64{0.1, 0.2, 0.3, 0.4}))
	require.NoError(t, err)
	assert.Equal(t, models.AttendanceStatusLate, result.Record.Status)
}

func TestAttendanceServiceCheckInNoAnchorSkipsGeofence(t *testing.T) {
	session := testSession("sess-1", "tok")
	faces := &mockFaceReader{embedding: &models.FaceEmbedding{Embedding: models.Embedding{0.1, 0.2, 0.3, 0.4}}}
	sessions := &mockSessionValidator{session: session}
	svc := newTestAttendanceService(&mockAttendanceRepo{}, faces, sessions, &mockMetrics{})

	result, err := svc.CheckIn(context.Background(), "student-1", models.CheckInRequest{
		Token:         "tok",
		Embedding:     []float64{0.1, 0.2, 0.3, 0.4},
		FacesDetected: 1,
	})
	require.NoError(t, err)
	assert.False(t, result.Record.LocVerified)
	assert.Nil(t, result.DistanceM)
}

func TestAttendanceServiceManualMark(t *testing.T) {
	repo := &mockAttendanceRepo{}
	sessions := &mockSessionValidator{session: testSession("sess-1", "tok")}
	svc := newTestAttendanceService(repo, &mockFaceReader{}, sessions, &mockMetrics{})

	record, err := svc.ManualMark(context.Background(), "sess-1", "teacher-1", models.ManualMarkRequest{
		StudentID: "student-1",
		Status:    models.AttendanceStatusExcused,
	})
	require.NoError(t, err)
	assert.Equal(t, models.AttendanceStatusExcused, record.Status)
	assert.False(t, record.FaceVerified)
	assert.False(t, record.LocVerified)
}

func TestAttendanceServiceManualMarkInvalidStatus(t *testing.T) {
	sessions := &mockSessionValidator{session: testSession("sess-1", "tok")}
	svc := newTestAttendanceService(&mockAttendanceRepo{}, &mockFaceReader{}, sessions, &mockMetrics{})

	_, err := svc.ManualMark(context.Background(), "sess-1", "teacher-1", models.ManualMarkRequest{
		StudentID: "student-1",
		Status:    "vacationing",
	})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
}

func TestAttendanceServiceBulkMark(t *testing.T) {
	repo := &mockAttendanceRepo{}
	sessions := &mockSessionValidator{session: testSession("sess-1", "tok")}
	svc := newTestAttendanceService(repo, &mockFaceReader{}, sessions, &mockMetrics{})

	records, err := svc.BulkMark(context.Background(), "sess-1", "teacher-1", models.BulkMarkRequest{
		Marks: []models.ManualMarkRequest{
			{StudentID: "student-1", Status: models.AttendanceStatusPresent},
			{StudentID: "student-2", Status: models.AttendanceStatusAbsent},
		},
	})
	require.NoError(t, err)
	assert.Len(t, records, 2)
	assert.Len(t, repo.upserted, 2)
}
