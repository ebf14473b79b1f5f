package middleware

import (
	"net/http"

	"github.com/labstack/echo/v4"
)

// JWT claimのrole値。BUYERは注文系、ADMINは/admin配下の出荷・突き合わせ系。
const (
	RoleBuyer = "BUYER"
	RoleAdmin = "ADMIN"
)

// AdminRoleGuard は/admin配下のルートにかける。AuthJWTの後段で使う前提。
func AdminRoleGuard() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			role, ok := c.Get(CtxUserRoleKey).(string)
			if !ok || role == "" {
				//AuthJWTを通っていない（ミドルウェアの順序ミス含む）
				return c.JSON(http.StatusUnauthorized, errorJSON("unauthorized"))
			}

			if role != RoleAdmin {
				return c.JSON(http.StatusForbidden, errorJSON("admin only"))
			}

			return next(c)
		}
	}
}
