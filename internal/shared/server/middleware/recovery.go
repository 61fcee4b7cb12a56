package middleware

import (
	"net/http"
	"runtime/debug"

	"github.com/gin-gonic/gin"

	"fleetdocs-backend/internal/shared/server/respond"
	"fleetdocs-backend/internal/shared/telemetry"
)

// Recovery converts handler panics into a 500 error body.
func Recovery() gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if rec := recover(); rec != nil {
				telemetry.Error("panic", map[string]any{
					"request_id":  RequestIDFromContext(c),
					"document_id": c.GetString(DocumentIDKey),
					"error":       rec,
					"stack":       string(debug.Stack()),
					"path":        c.Request.URL.Path,
					"method":      c.Request.Method,
				})
				respond.Error(c, http.StatusInternalServerError, "internal", "Unexpected server error", nil)
			}
		}()
		c.Next()
	}
}
