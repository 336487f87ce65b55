package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"

	"github.com/presensia/attendance-api/internal/models"
)

func rbacContext(role models.UserRole, userID string) (*gin.Context, *httptest.ResponseRecorder) {
	gin.SetMode(gin.TestMode)
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	req, _ := http.NewRequest(http.MethodGet, "/protected", nil)
	c.Request = req
	c.Set(ContextUserKey, &models.JWTClaims{UserID: userID, Role: role})
	return c, w
}

func TestRBACAllowsMatchingRole(t *testing.T) {
	c, w := rbacContext(models.RoleTeacher, "teacher-1")
	RBAC("TEACHER", "ADMIN")(c)
	require.False(t, c.IsAborted())
	require.NotEqual(t, http.StatusForbidden, w.Code)
}

func TestRBACRejectsOtherRole(t *testing.T) {
	c, w := rbacContext(models.RoleStudent, "student-1")
	RBAC("TEACHER", "ADMIN")(c)
	require.True(t, c.IsAborted())
	require.Equal(t, http.StatusForbidden, w.Code)
}

func TestRBACRejectsMissingClaims(t *testing.T) {
	gin.SetMode(gin.TestMode)
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	req, _ := http.NewRequest(http.MethodGet, "/protected", nil)
	c.Request = req

	RBAC("ADMIN")(c)
	require.True(t, c.IsAborted())
	require.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestRBACSelfMatchesPathParam(t *testing.T) {
	c, w := rbacContext(models.RoleStudent, "user-9")
	c.Params = gin.Params{{Key: "id", Value: "user-9"}}
	RBAC("ADMIN", "SELF")(c)
	require.False(t, c.IsAborted())
	require.NotEqual(t, http.StatusForbidden, w.Code)
}

func TestRBACSelfRejectsOtherTarget(t *testing.T) {
	c, w := rbacContext(models.RoleStudent, "user-9")
	c.Params = gin.Params{{Key: "id", Value: "user-10"}}
	RBAC("ADMIN", "SELF")(c)
	require.True(t, c.IsAborted())
	require.Equal(t, http.StatusForbidden, w.Code)
}
