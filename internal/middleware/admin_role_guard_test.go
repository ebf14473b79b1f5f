package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
)

func invokeGuard(role interface{}) (*httptest.ResponseRecorder, bool) {
	e := echo.New()
	req := httptest.NewRequest(http.MethodPost, "/admin/orders/1/ship", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	if role != nil {
		c.Set(CtxUserRoleKey, role)
	}

	reached := false
	h := AdminRoleGuard()(func(c echo.Context) error {
		reached = true
		return c.NoContent(http.StatusOK)
	})
	_ = h(c)
	return rec, reached
}

func TestAdminRoleGuard_AllowsAdmin(t *testing.T) {
	rec, reached := invokeGuard(RoleAdmin)

	assert.True(t, reached)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestAdminRoleGuard_ForbidsBuyer(t *testing.T) {
	rec, reached := invokeGuard(RoleBuyer)

	assert.False(t, reached)
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestAdminRoleGuard_RejectsMissingRole(t *testing.T) {
	rec, reached := invokeGuard(nil)

	assert.False(t, reached)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}
