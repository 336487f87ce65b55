package handler

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/presensia/attendance-api/internal/models"
	"github.com/presensia/attendance-api/internal/service"
	appErrors "github.com/presensia/attendance-api/pkg/errors"
	"github.com/presensia/attendance-api/pkg/response"
)

// SessionHandler handles attendance session lifecycle endpoints.
type SessionHandler struct {
	service *service.SessionService
}

// NewSessionHandler creates a new session handler.
func NewSessionHandler(svc *service.SessionService) *SessionHandler {
	return &SessionHandler{service: svc}
}

// ownsSession enforces that a teacher only manages their own sessions.
// Admins bypass the check.
func (h *SessionHandler) ownsSession(c *gin.Context, id string) (*models.AttendanceSession, bool) {
	session, err := h.service.Get(c.Request.Context(), id)
	if err != nil {
		response.Error(c, err)
		return nil, false
	}

	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return nil, false
	}
	if claims.Role != models.RoleAdmin && session.TeacherID != claims.UserID {
		response.Error(c, appErrors.Clone(appErrors.ErrForbidden, "session belongs to another teacher"))
		return nil, false
	}
	return session, true
}

// Create godoc
// @Summary Create attendance session
// @Description Opens a session and issues its first QR token
// @Tags Sessions
// @Accept json
// @Produce json
// @Param payload body models.CreateSessionRequest true "Session payload"
// @Success 201 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Router /sessions [post]
func (h *SessionHandler) Create(c *gin.Context) {
	var req models.CreateSessionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid session payload"))
		return
	}

	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	session, err := h.service.Create(c.Request.Context(), claims.UserID, req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, session)
}

// List godoc
// @Summary List sessions
// @Tags Sessions
// @Produce json
// @Param page query int false "Page number"
// @Param page_size query int false "Page size"
// @Param batch query string false "Batch filter"
// @Param date query string false "Date filter (YYYY-MM-DD)"
// @Param active query bool false "Active filter"
// @Success 200 {object} response.Envelope
// @Router /sessions [get]
func (h *SessionHandler) List(c *gin.Context) {
	var filter models.SessionFilter
	filter.Page, filter.PageSize = pageQuery(c)
	filter.Batch = c.Query("batch")
	filter.SortBy = c.Query("sort_by")
	filter.SortOrder = c.Query("sort_order")

	if date := c.Query("date"); date != "" {
		parsed, err := time.Parse("2006-01-02", date)
		if err != nil {
			response.Error(c, appErrors.Clone(appErrors.ErrValidation, "date must be YYYY-MM-DD"))
			return
		}
		filter.Date = &parsed
	}
	if active := c.Query("active"); active != "" {
		if val, err := strconv.ParseBool(active); err == nil {
			filter.Active = &val
		}
	}

	claims := claimsFromContext(c)
	if claims != nil && claims.Role == models.RoleTeacher {
		filter.TeacherID = claims.UserID
	} else if teacherID := c.Query("teacher_id"); teacherID != "" {
		filter.TeacherID = teacherID
	}

	sessions, total, err := h.service.List(c.Request.Context(), filter)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, sessions, paginationMeta(filter.Page, filter.PageSize, total))
}

// Get godoc
// @Summary Get session
// @Tags Sessions
// @Produce json
// @Param id path string true "Session ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /sessions/{id} [get]
func (h *SessionHandler) Get(c *gin.Context) {
	session, err := h.service.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, session, nil)
}

// Update godoc
// @Summary Update session
// @Tags Sessions
// @Accept json
// @Produce json
// @Param id path string true "Session ID"
// @Param payload body models.UpdateSessionRequest true "Update payload"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /sessions/{id} [patch]
func (h *SessionHandler) Update(c *gin.Context) {
	if _, ok := h.ownsSession(c, c.Param("id")); !ok {
		return
	}

	var req models.UpdateSessionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid update payload"))
		return
	}

	session, err := h.service.Update(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, session, nil)
}

// RotateToken godoc
// @Summary Rotate session QR token
// @Description Invalidates the current QR token and issues a fresh one
// @Tags Sessions
// @Produce json
// @Param id path string true "Session ID"
// @Success 200 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /sessions/{id}/rotate-token [post]
func (h *SessionHandler) RotateToken(c *gin.Context) {
	if _, ok := h.ownsSession(c, c.Param("id")); !ok {
		return
	}

	claims := claimsFromContext(c)
	info, err := h.service.RotateToken(c.Request.Context(), c.Param("id"), claims.UserID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, info, nil)
}

// End godoc
// @Summary End session
// @Description Closes the session; further check-ins are rejected
// @Tags Sessions
// @Produce json
// @Param id path string true "Session ID"
// @Success 204 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /sessions/{id}/end [post]
func (h *SessionHandler) End(c *gin.Context) {
	if _, ok := h.ownsSession(c, c.Param("id")); !ok {
		return
	}

	claims := claimsFromContext(c)
	if err := h.service.End(c.Request.Context(), c.Param("id"), claims.UserID); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

// QRCode godoc
// @Summary Session QR code
// @Description Renders the current session token as a PNG QR code
// @Tags Sessions
// @Produce png
// @Param id path string true "Session ID"
// @Success 200 {file} png
// @Failure 409 {object} response.Envelope
// @Router /sessions/{id}/qrcode [get]
func (h *SessionHandler) QRCode(c *gin.Context) {
	if _, ok := h.ownsSession(c, c.Param("id")); !ok {
		return
	}

	png, err := h.service.QRCodePNG(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}

	c.Header("Cache-Control", "no-store")
	c.Data(http.StatusOK, "image/png", png)
}
