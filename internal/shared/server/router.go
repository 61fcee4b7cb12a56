package server

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"fleetdocs-backend/internal/shared/config"
	"fleetdocs-backend/internal/shared/metrics"
	"fleetdocs-backend/internal/shared/server/middleware"
	"fleetdocs-backend/internal/shared/server/respond"
)

// RouteRegistrar is implemented by every feature handler.
type RouteRegistrar interface {
	RegisterRoutes(rg *gin.RouterGroup)
}

// RouterDeps carries the handlers the router mounts. Nil handlers are skipped.
type RouterDeps struct {
	Config          config.Config
	DocumentHandler RouteRegistrar
	ReminderHandler RouteRegistrar
	TelegramHandler RouteRegistrar
	RateLimits      map[string]middleware.RateLimitRule
	Health          func() error
}

// DefaultRateLimits bounds uploads and reprocess calls per operator.
func DefaultRateLimits() map[string]middleware.RateLimitRule {
	return map[string]middleware.RateLimitRule{
		middleware.RateGroupUpload:    {Rate: 1, Burst: 20},
		middleware.RateGroupReprocess: {Rate: 0.5, Burst: 10},
	}
}

// NewRouter constructs the Gin engine with middleware and routes registered.
func NewRouter(deps RouterDeps) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()

	r.Use(
		middleware.RequestID(),
		middleware.Logging(),
		middleware.Recovery(),
		middleware.CORS(deps.Config.CORSAllowOrigin),
	)

	api := r.Group("/api/v1")
	api.GET("/health", func(c *gin.Context) {
		if deps.Health != nil {
			if err := deps.Health(); err != nil {
				respond.Error(c, http.StatusServiceUnavailable, "unavailable", err.Error(), nil)
				return
			}
		}
		respond.JSON(c, http.StatusOK, gin.H{"ok": true})
	})
	api.GET("/metrics", metrics.Handler())

	// The webhook authenticates with its own secret header.
	if deps.TelegramHandler != nil {
		deps.TelegramHandler.RegisterRoutes(api)
	}

	rules := deps.RateLimits
	if rules == nil {
		rules = DefaultRateLimits()
	}
	panel := api.Group("")
	panel.Use(
		middleware.Auth(deps.Config.Env, deps.Config.PanelAPIToken),
		middleware.RateLimit(middleware.RateLimitConfig{Rules: rules}),
	)
	if deps.DocumentHandler != nil {
		deps.DocumentHandler.RegisterRoutes(panel)
	}
	if deps.ReminderHandler != nil {
		deps.ReminderHandler.RegisterRoutes(panel)
	}

	return r
}

// Addr normalizes the listen address.
func Addr(port string) string {
	if port == "" {
		return ":8080"
	}
	if port[0] == ':' {
		return port
	}
	return ":" + port
}
