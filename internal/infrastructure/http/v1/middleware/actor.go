package middleware

import (
	"strings"

	"github.com/gin-gonic/gin"

	appctx "docflow/internal/core/context"
)

// Actor headers are set by the trusted application in front of the engine.
const (
	HeaderActorID          = "X-Actor-ID"
	HeaderActorRoles       = "X-Actor-Roles"
	HeaderActorPermissions = "X-Actor-Permissions"
	HeaderActorWarehouses  = "X-Actor-Warehouses"
	HeaderActorAdmin       = "X-Actor-Admin"
)

// Actor builds an appctx.Actor from request headers. List headers are
// comma-separated. Requests without X-Actor-ID run as "system".
func Actor() gin.HandlerFunc {
	return func(c *gin.Context) {
		userID := strings.TrimSpace(c.GetHeader(HeaderActorID))
		if userID == "" {
			c.Next()
			return
		}
		actor := &appctx.Actor{
			UserID:      userID,
			Roles:       splitList(c.GetHeader(HeaderActorRoles)),
			Permissions: splitList(c.GetHeader(HeaderActorPermissions)),
			Warehouses:  splitList(c.GetHeader(HeaderActorWarehouses)),
			IsAdmin:     strings.EqualFold(c.GetHeader(HeaderActorAdmin), "true"),
		}
		c.Request = c.Request.WithContext(appctx.WithActor(c.Request.Context(), actor))
		c.Set("actor_id", userID)
		c.Next()
	}
}

func splitList(v string) []string {
	if v == "" {
		return nil
	}
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
