package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/presensia/attendance-api/internal/models"
	"github.com/presensia/attendance-api/internal/service"
	appErrors "github.com/presensia/attendance-api/pkg/errors"
	"github.com/presensia/attendance-api/pkg/response"
)

// FaceHandler handles face enrollment endpoints.
type FaceHandler struct {
	service  *service.FaceService
	students *service.StudentService
}

// NewFaceHandler creates a new face handler.
func NewFaceHandler(svc *service.FaceService, students *service.StudentService) *FaceHandler {
	return &FaceHandler{service: svc, students: students}
}

// targetStudent resolves the student ID the request may act on. Students are
// pinned to their own profile; staff may address any student by path param.
func (h *FaceHandler) targetStudent(c *gin.Context) (string, bool) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return "", false
	}
	if claims.Role != models.RoleStudent {
		return c.Param("id"), true
	}
	student, err := h.students.GetByUserID(c.Request.Context(), claims.UserID)
	if err != nil {
		response.Error(c, err)
		return "", false
	}
	if c.Param("id") != student.ID {
		response.Error(c, appErrors.Clone(appErrors.ErrForbidden, "face enrollment is limited to your own profile"))
		return "", false
	}
	return student.ID, true
}

// Enroll godoc
// @Summary Enroll a student's face
// @Description Stores the reference descriptor; re-enrollment replaces it
// @Tags Faces
// @Accept json
// @Produce json
// @Param id path string true "Student ID"
// @Param payload body models.EnrollFaceRequest true "Capture payload"
// @Success 201 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /students/{id}/face [put]
func (h *FaceHandler) Enroll(c *gin.Context) {
	studentID, ok := h.targetStudent(c)
	if !ok {
		return
	}
	claims := claimsFromContext(c)

	var req models.EnrollFaceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid capture payload"))
		return
	}

	status, err := h.service.Enroll(c.Request.Context(), studentID, claims.UserID, req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, status)
}

// Status godoc
// @Summary Face enrollment status
// @Tags Faces
// @Produce json
// @Param id path string true "Student ID"
// @Success 200 {object} response.Envelope
// @Router /students/{id}/face [get]
func (h *FaceHandler) Status(c *gin.Context) {
	studentID, ok := h.targetStudent(c)
	if !ok {
		return
	}
	status, err := h.service.Status(c.Request.Context(), studentID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, status, nil)
}

// Remove godoc
// @Summary Remove enrolled face
// @Tags Faces
// @Produce json
// @Param id path string true "Student ID"
// @Success 204 {object} response.Envelope
// @Router /students/{id}/face [delete]
func (h *FaceHandler) Remove(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	if err := h.service.Remove(c.Request.Context(), c.Param("id"), claims.UserID); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}
