package middleware

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"fleetdocs-backend/internal/shared/server/respond"
)

const (
	operatorKey   = "operator"
	devOperatorID = "dev"
)

// Auth guards panel routes with a static operator token sent as a Bearer credential.
// In dev-like environments an empty token disables the check.
func Auth(env, token string) gin.HandlerFunc {
	token = strings.TrimSpace(token)
	devLike := isDevLike(env)

	return func(c *gin.Context) {
		if c.Request.Method == http.MethodOptions {
			c.Status(http.StatusNoContent)
			c.Abort()
			return
		}

		if token == "" {
			if devLike {
				c.Set(operatorKey, devOperatorID)
				c.Next()
				return
			}
			respond.Error(c, http.StatusUnauthorized, "unauthorized", "panel token not configured", nil)
			return
		}

		authHeader := strings.TrimSpace(c.GetHeader("Authorization"))
		if !strings.HasPrefix(authHeader, "Bearer ") {
			respond.Error(c, http.StatusUnauthorized, "unauthorized", "missing or invalid token", nil)
			return
		}
		presented := strings.TrimSpace(strings.TrimPrefix(authHeader, "Bearer"))
		if presented == "" || subtle.ConstantTimeCompare([]byte(presented), []byte(token)) != 1 {
			respond.Error(c, http.StatusUnauthorized, "unauthorized", "missing or invalid token", nil)
			return
		}

		c.Set(operatorKey, "panel")
		c.Next()
	}
}

// OperatorFromContext returns the identity set by Auth.
func OperatorFromContext(c *gin.Context) string {
	if c == nil {
		return ""
	}
	val, _ := c.Get(operatorKey)
	if id, ok := val.(string); ok {
		return id
	}
	return ""
}

func isDevLike(env string) bool {
	switch strings.ToLower(strings.TrimSpace(env)) {
	case "", "dev", "local":
		return true
	default:
		return false
	}
}
