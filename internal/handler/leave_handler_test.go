package handler

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/presensia/attendance-api/internal/middleware"
	"github.com/presensia/attendance-api/internal/models"
	"github.com/presensia/attendance-api/internal/service"
)

type leaveRepoStub struct {
	leaves map[string]*models.LeaveRequest
}

func (s *leaveRepoStub) Create(ctx context.Context, leave *models.LeaveRequest) error {
	leave.ID = "leave-1"
	stored := *leave
	s.leaves[leave.ID] = &stored
	return nil
}

func (s *leaveRepoStub) FindByID(ctx context.Context, id string) (*models.LeaveRequest, error) {
	leave, ok := s.leaves[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	copied := *leave
	return &copied, nil
}

func (s *leaveRepoStub) List(ctx context.Context, filter models.LeaveFilter) ([]models.LeaveRequest, int, error) {
	var out []models.LeaveRequest
	for _, leave := range s.leaves {
		out = append(out, *leave)
	}
	return out, len(out), nil
}

func (s *leaveRepoStub) SetDecision(ctx context.Context, id string, status models.LeaveStatus, reviewerID string, note *string, reviewedAt time.Time) error {
	leave, ok := s.leaves[id]
	if !ok || leave.Status != models.LeaveStatusPending {
		return sql.ErrNoRows
	}
	leave.Status = status
	leave.ReviewerID = &reviewerID
	leave.ReviewNote = note
	leave.ReviewedAt = &reviewedAt
	return nil
}

func newLeaveHandlerForTest() (*LeaveHandler, *leaveRepoStub) {
	repo := &leaveRepoStub{leaves: make(map[string]*models.LeaveRequest)}
	svc := service.NewLeaveService(repo, nil, nil, zap.NewNop())
	return NewLeaveHandler(svc, nil), repo
}

func teacherContext(t *testing.T, method, target string, body []byte) (*gin.Context, *httptest.ResponseRecorder) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	req, _ := http.NewRequest(method, target, bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	c.Request = req
	c.Set(middleware.ContextUserKey, &models.JWTClaims{UserID: "teacher-1", Role: models.RoleTeacher})
	return c, w
}

func TestLeaveHandlerApprove(t *testing.T) {
	handler, repo := newLeaveHandlerForTest()
	repo.leaves["leave-1"] = &models.LeaveRequest{
		ID:        "leave-1",
		StudentID: "student-1",
		Status:    models.LeaveStatusPending,
	}

	body, _ := json.Marshal(models.LeaveDecisionRequest{})
	c, w := teacherContext(t, http.MethodPost, "/leaves/leave-1/approve", body)
	c.Params = gin.Params{{Key: "id", Value: "leave-1"}}

	handler.Approve(c)
	require.Equal(t, http.StatusOK, w.Code)

	var envelope struct {
		Data models.LeaveRequest `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &envelope))
	assert.Equal(t, models.LeaveStatusApproved, envelope.Data.Status)
	require.NotNil(t, envelope.Data.ReviewerID)
	assert.Equal(t, "teacher-1", *envelope.Data.ReviewerID)
}

func TestLeaveHandlerRejectAlreadyReviewed(t *testing.T) {
	handler, repo := newLeaveHandlerForTest()
	repo.leaves["leave-1"] = &models.LeaveRequest{
		ID:        "leave-1",
		StudentID: "student-1",
		Status:    models.LeaveStatusApproved,
	}

	body, _ := json.Marshal(models.LeaveDecisionRequest{})
	c, w := teacherContext(t, http.MethodPost, "/leaves/leave-1/reject", body)
	c.Params = gin.Params{{Key: "id", Value: "leave-1"}}

	handler.Reject(c)
	require.Equal(t, http.StatusConflict, w.Code)
}

func TestLeaveHandlerApproveUnknown(t *testing.T) {
	handler, _ := newLeaveHandlerForTest()
	body, _ := json.Marshal(models.LeaveDecisionRequest{})
	c, w := teacherContext(t, http.MethodPost, "/leaves/ghost/approve", body)
	c.Params = gin.Params{{Key: "id", Value: "ghost"}}

	handler.Approve(c)
	require.Equal(t, http.StatusNotFound, w.Code)
}
