package middleware

import (
	"github.com/gin-gonic/gin"

	"docflow/internal/core/apperror"
	appctx "docflow/internal/core/context"
)

// RequireRole rejects requests whose actor lacks role. Admins pass.
func RequireRole(role string) gin.HandlerFunc {
	return func(c *gin.Context) {
		actor := appctx.GetActor(c.Request.Context())
		if !actor.HasRole(role) {
			_ = c.Error(apperror.NewForbidden("insufficient role").WithDetail("required_role", role))
			c.Abort()
			return
		}
		c.Next()
	}
}
