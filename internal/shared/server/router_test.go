package server

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"

	"fleetdocs-backend/internal/shared/config"
	"fleetdocs-backend/internal/shared/server/middleware"
)

type stubRoutes struct {
	method string
	path   string
}

func (s stubRoutes) RegisterRoutes(rg *gin.RouterGroup) {
	rg.Handle(s.method, s.path, func(c *gin.Context) { c.Status(http.StatusNoContent) })
}

func newTestRouter(token string) *gin.Engine {
	return NewRouter(RouterDeps{
		Config:          config.Config{Env: "production", PanelAPIToken: token},
		DocumentHandler: stubRoutes{method: http.MethodPost, path: "/documents"},
		TelegramHandler: stubRoutes{method: http.MethodPost, path: "/telegram/webhook"},
		RateLimits: map[string]middleware.RateLimitRule{
			middleware.RateGroupUpload: {Rate: 0.001, Burst: 1},
		},
	})
}

func serve(r *gin.Engine, method, path, auth string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(""))
	if auth != "" {
		req.Header.Set("Authorization", "Bearer "+auth)
	}
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	return rec
}

func TestRouterLeavesHealthMetricsAndWebhookOpen(t *testing.T) {
	r := newTestRouter("secret")

	for _, tc := range []struct {
		method string
		path   string
		want   int
	}{
		{http.MethodGet, "/api/v1/health", http.StatusOK},
		{http.MethodGet, "/api/v1/metrics", http.StatusOK},
		{http.MethodPost, "/api/v1/telegram/webhook", http.StatusNoContent},
	} {
		if rec := serve(r, tc.method, tc.path, ""); rec.Code != tc.want {
			t.Fatalf("%s %s: expected %d, got %d", tc.method, tc.path, tc.want, rec.Code)
		}
	}
}

func TestRouterGuardsPanelRoutes(t *testing.T) {
	r := newTestRouter("secret")

	if rec := serve(r, http.MethodPost, "/api/v1/documents", ""); rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without token, got %d", rec.Code)
	}
	if rec := serve(r, http.MethodPost, "/api/v1/documents", "secret"); rec.Code != http.StatusNoContent {
		t.Fatalf("expected 204 with token, got %d", rec.Code)
	}
	if rec := serve(r, http.MethodPost, "/api/v1/documents", "secret"); rec.Code != http.StatusTooManyRequests {
		t.Fatalf("expected upload burst exhausted, got %d", rec.Code)
	}
}

func TestRouterHealthReportsFailure(t *testing.T) {
	r := NewRouter(RouterDeps{
		Config: config.Config{Env: "dev"},
		Health: func() error { return errors.New("db down") },
	})

	if rec := serve(r, http.MethodGet, "/api/v1/health", ""); rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", rec.Code)
	}
}

func TestAddr(t *testing.T) {
	for in, want := range map[string]string{"": ":8080", "9000": ":9000", ":7000": ":7000"} {
		if got := Addr(in); got != want {
			t.Fatalf("Addr(%q) = %q, want %q", in, got, want)
		}
	}
}
