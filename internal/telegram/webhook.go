package telegram

import (
	"crypto/subtle"
	"net/http"

	"github.com/gin-gonic/gin"

	"fleetdocs-backend/internal/documents"
	"fleetdocs-backend/internal/shared/server/middleware"
	"fleetdocs-backend/internal/shared/server/respond"
	"fleetdocs-backend/internal/shared/telemetry"
)

const secretHeader = "X-Telegram-Bot-Api-Secret-Token"

// WebhookHandler receives Bot API updates pushed by Telegram.
type WebhookHandler struct {
	Intake *Intake
	Secret string
}

func NewWebhookHandler(intake *Intake, secret string) *WebhookHandler {
	return &WebhookHandler{Intake: intake, Secret: secret}
}

func (h *WebhookHandler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.POST("/telegram/webhook", h.receive)
}

// receive acknowledges every well-formed update with 200, even when processing fails, so
// Telegram does not redeliver it. Failures are reported to the chat instead.
func (h *WebhookHandler) receive(c *gin.Context) {
	if h.Secret != "" {
		presented := c.GetHeader(secretHeader)
		if subtle.ConstantTimeCompare([]byte(presented), []byte(h.Secret)) != 1 {
			respond.Error(c, http.StatusUnauthorized, "unauthorized", "invalid webhook secret", nil)
			return
		}
	}

	var upd Update
	if err := c.ShouldBindJSON(&upd); err != nil {
		respond.Error(c, http.StatusBadRequest, "validation_error", "invalid update", nil)
		return
	}

	ctx := documents.WithRequestID(c.Request.Context(), middleware.RequestIDFromContext(c))
	if err := h.Intake.HandleUpdate(ctx, upd); err != nil {
		telemetry.Error("telegram.update_failed", map[string]any{
			"update_id":  upd.UpdateID,
			"error":      err.Error(),
			"request_id": middleware.RequestIDFromContext(c),
		})
	}
	respond.OK(c, gin.H{"ok": true})
}
