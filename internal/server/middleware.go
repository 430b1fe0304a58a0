package server

import (
	"crypto/subtle"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	"github.com/smallbiznis/payoutd/internal/usercontext"
)

const (
	HeaderUserID     = "X-User-ID"
	HeaderAdminToken = "X-Admin-Token"
	contextUserIDKey = "user_id"
)

// UserRequired trusts the user id forwarded by the upstream auth gateway.
func (s *Server) UserRequired() gin.HandlerFunc {
	return func(c *gin.Context) {
		raw := strings.TrimSpace(c.GetHeader(HeaderUserID))
		if raw == "" {
			AbortWithError(c, ErrUnauthorized)
			return
		}
		userID, err := snowflake.ParseString(raw)
		if err != nil || userID <= 0 {
			AbortWithError(c, ErrUnauthorized)
			return
		}

		c.Set(contextUserIDKey, userID)
		c.Request = c.Request.WithContext(usercontext.WithUserID(c.Request.Context(), userID))
		c.Next()
	}
}

// AdminRequired guards operator endpoints with a shared secret. An empty
// ADMIN_TOKEN disables them.
func (s *Server) AdminRequired() gin.HandlerFunc {
	expected := []byte(strings.TrimSpace(s.cfg.AdminToken))
	return func(c *gin.Context) {
		if len(expected) == 0 {
			AbortWithError(c, ErrForbidden)
			return
		}
		given := []byte(strings.TrimSpace(c.GetHeader(HeaderAdminToken)))
		if len(given) == 0 || subtle.ConstantTimeCompare(given, expected) != 1 {
			AbortWithError(c, ErrUnauthorized)
			return
		}
		c.Next()
	}
}

func currentUserID(c *gin.Context) snowflake.ID {
	if value, ok := c.Get(contextUserIDKey); ok {
		if id, ok := value.(snowflake.ID); ok {
			return id
		}
	}
	id, _ := usercontext.UserIDFromContext(c.Request.Context())
	return id
}
