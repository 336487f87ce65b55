package handler

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/presensia/attendance-api/internal/models"
	"github.com/presensia/attendance-api/internal/service"
	appErrors "github.com/presensia/attendance-api/pkg/errors"
	"github.com/presensia/attendance-api/pkg/response"
)

// AttendanceHandler handles check-in and attendance query endpoints.
type AttendanceHandler struct {
	service  *service.AttendanceService
	sessions *service.SessionService
	students *service.StudentService
}

// NewAttendanceHandler creates a new attendance handler.
func NewAttendanceHandler(svc *service.AttendanceService, sessions *service.SessionService, students *service.StudentService) *AttendanceHandler {
	return &AttendanceHandler{service: svc, sessions: sessions, students: students}
}

// currentStudent resolves the student profile behind the authenticated user.
func (h *AttendanceHandler) currentStudent(c *gin.Context) (*models.Student, bool) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return nil, false
	}
	student, err := h.students.GetByUserID(c.Request.Context(), claims.UserID)
	if err != nil {
		response.Error(c, err)
		return nil, false
	}
	return student, true
}

func (h *AttendanceHandler) teacherOwnsSession(c *gin.Context, sessionID string) bool {
	session, err := h.sessions.Get(c.Request.Context(), sessionID)
	if err != nil {
		response.Error(c, err)
		return false
	}
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return false
	}
	if claims.Role != models.RoleAdmin && session.TeacherID != claims.UserID {
		response.Error(c, appErrors.Clone(appErrors.ErrForbidden, "session belongs to another teacher"))
		return false
	}
	return true
}

// CheckIn godoc
// @Summary Student check-in
// @Description Verifies QR token, geofence and face before recording attendance
// @Tags Attendance
// @Accept json
// @Produce json
// @Param payload body models.CheckInRequest true "Check-in payload"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Failure 410 {object} response.Envelope
// @Failure 412 {object} response.Envelope
// @Failure 422 {object} response.Envelope
// @Router /attendance/checkin [post]
func (h *AttendanceHandler) CheckIn(c *gin.Context) {
	student, ok := h.currentStudent(c)
	if !ok {
		return
	}

	var req models.CheckInRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid check-in payload"))
		return
	}

	result, err := h.service.CheckIn(c.Request.Context(), student.ID, req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, result, nil)
}

// ManualMark godoc
// @Summary Manually mark one student
// @Tags Attendance
// @Accept json
// @Produce json
// @Param id path string true "Session ID"
// @Param payload body models.ManualMarkRequest true "Mark payload"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /sessions/{id}/attendance [post]
func (h *AttendanceHandler) ManualMark(c *gin.Context) {
	sessionID := c.Param("id")
	if !h.teacherOwnsSession(c, sessionID) {
		return
	}

	var req models.ManualMarkRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid mark payload"))
		return
	}

	claims := claimsFromContext(c)
	record, err := h.service.ManualMark(c.Request.Context(), sessionID, claims.UserID, req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, record, nil)
}

// BulkMark godoc
// @Summary Manually mark several students
// @Tags Attendance
// @Accept json
// @Produce json
// @Param id path string true "Session ID"
// @Param payload body models.BulkMarkRequest true "Bulk mark payload"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /sessions/{id}/attendance/bulk [post]
func (h *AttendanceHandler) BulkMark(c *gin.Context) {
	sessionID := c.Param("id")
	if !h.teacherOwnsSession(c, sessionID) {
		return
	}

	var req models.BulkMarkRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid bulk mark payload"))
		return
	}

	claims := claimsFromContext(c)
	records, err := h.service.BulkMark(c.Request.Context(), sessionID, claims.UserID, req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, records, nil)
}

// List godoc
// @Summary List attendance records
// @Tags Attendance
// @Produce json
// @Param page query int false "Page number"
// @Param page_size query int false "Page size"
// @Param session_id query string false "Session filter"
// @Param student_id query string false "Student filter"
// @Param status query string false "Status filter"
// @Success 200 {object} response.Envelope
// @Router /attendance [get]
func (h *AttendanceHandler) List(c *gin.Context) {
	var filter models.AttendanceFilter
	filter.Page, filter.PageSize = pageQuery(c)
	filter.SessionID = c.Query("session_id")
	filter.StudentID = c.Query("student_id")
	filter.CourseCode = c.Query("course_code")
	filter.SortBy = c.Query("sort_by")
	filter.SortOrder = c.Query("sort_order")

	if status := c.Query("status"); status != "" {
		s := models.AttendanceStatus(status)
		if !s.Valid() {
			response.Error(c, appErrors.Clone(appErrors.ErrValidation, "unsupported attendance status"))
			return
		}
		filter.Status = &s
	}
	if from := c.Query("date_from"); from != "" {
		parsed, err := time.Parse("2006-01-02", from)
		if err != nil {
			response.Error(c, appErrors.Clone(appErrors.ErrValidation, "date_from must be YYYY-MM-DD"))
			return
		}
		filter.DateFrom = &parsed
	}
	if to := c.Query("date_to"); to != "" {
		parsed, err := time.Parse("2006-01-02", to)
		if err != nil {
			response.Error(c, appErrors.Clone(appErrors.ErrValidation, "date_to must be YYYY-MM-DD"))
			return
		}
		filter.DateTo = &parsed
	}

	records, total, err := h.service.List(c.Request.Context(), filter)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, records, paginationMeta(filter.Page, filter.PageSize, total))
}

// SessionReport godoc
// @Summary Per-student outcomes for one session
// @Tags Attendance
// @Produce json
// @Param id path string true "Session ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /sessions/{id}/report [get]
func (h *AttendanceHandler) SessionReport(c *gin.Context) {
	sessionID := c.Param("id")
	if !h.teacherOwnsSession(c, sessionID) {
		return
	}

	rows, err := h.service.SessionReport(c.Request.Context(), sessionID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, rows, nil)
}

// MyHistory godoc
// @Summary Own attendance history
// @Tags Attendance
// @Produce json
// @Param date_from query string false "From date (YYYY-MM-DD)"
// @Param date_to query string false "To date (YYYY-MM-DD)"
// @Success 200 {object} response.Envelope
// @Router /attendance/me/history [get]
func (h *AttendanceHandler) MyHistory(c *gin.Context) {
	student, ok := h.currentStudent(c)
	if !ok {
		return
	}
	h.history(c, student.ID)
}

// StudentHistory godoc
// @Summary Attendance history for a student
// @Tags Attendance
// @Produce json
// @Param id path string true "Student ID"
// @Success 200 {object} response.Envelope
// @Router /students/{id}/attendance/history [get]
func (h *AttendanceHandler) StudentHistory(c *gin.Context) {
	h.history(c, c.Param("id"))
}

func (h *AttendanceHandler) history(c *gin.Context, studentID string) {
	var from, to *time.Time
	if v := c.Query("date_from"); v != "" {
		parsed, err := time.Parse("2006-01-02", v)
		if err != nil {
			response.Error(c, appErrors.Clone(appErrors.ErrValidation, "date_from must be YYYY-MM-DD"))
			return
		}
		from = &parsed
	}
	if v := c.Query("date_to"); v != "" {
		parsed, err := time.Parse("2006-01-02", v)
		if err != nil {
			response.Error(c, appErrors.Clone(appErrors.ErrValidation, "date_to must be YYYY-MM-DD"))
			return
		}
		to = &parsed
	}

	rows, err := h.service.StudentHistory(c.Request.Context(), studentID, from, to)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, rows, nil)
}

// MySummary godoc
// @Summary Own attendance summary
// @Tags Attendance
// @Produce json
// @Param course_code query string false "Course filter"
// @Success 200 {object} response.Envelope
// @Router /attendance/me/summary [get]
func (h *AttendanceHandler) MySummary(c *gin.Context) {
	student, ok := h.currentStudent(c)
	if !ok {
		return
	}

	summary, err := h.service.StudentSummary(c.Request.Context(), student.ID, c.Query("course_code"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, summary, nil)
}

// StudentSummary godoc
// @Summary Attendance summary for a student
// @Tags Attendance
// @Produce json
// @Param id path string true "Student ID"
// @Param course_code query string false "Course filter"
// @Success 200 {object} response.Envelope
// @Router /students/{id}/attendance/summary [get]
func (h *AttendanceHandler) StudentSummary(c *gin.Context) {
	summary, err := h.service.StudentSummary(c.Request.Context(), c.Param("id"), c.Query("course_code"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, summary, nil)
}
