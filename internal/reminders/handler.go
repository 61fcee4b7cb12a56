package reminders

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"fleetdocs-backend/internal/normalize"
	"fleetdocs-backend/internal/shared/server/respond"
)

// Handler exposes reminders to the panel.
type Handler struct {
	Svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{Svc: svc}
}

func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.GET("/reminders", h.list)
}

type reminderResponse struct {
	ReminderID string    `json:"reminderId"`
	DocumentID string    `json:"documentId"`
	VehicleRef string    `json:"vehicleRef"`
	Kind       string    `json:"kind"`
	DueDate    string    `json:"dueDate"`
	Status     string    `json:"status"`
	UpdatedAt  time.Time `json:"updatedAt"`
}

func (h *Handler) list(c *gin.Context) {
	f := Filter{VehicleRef: normalize.NormalizePlate(c.Query("vehicleRef"))}
	if raw := strings.TrimSpace(c.Query("status")); raw != "" {
		status, ok := ParseStatus(strings.ToLower(raw))
		if !ok {
			respond.Error(c, http.StatusBadRequest, "validation_error", "unknown reminder status", nil)
			return
		}
		f.Status = status
	}
	if v := c.Query("limit"); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil {
			f.Limit = parsed
		}
	}

	items, err := h.Svc.List(c.Request.Context(), f)
	if err != nil {
		respond.Error(c, http.StatusInternalServerError, "internal_error", "failed to list reminders", nil)
		return
	}
	resp := make([]reminderResponse, 0, len(items))
	for _, r := range items {
		resp = append(resp, reminderResponse{
			ReminderID: r.ID,
			DocumentID: r.DocumentID,
			VehicleRef: r.VehicleRef,
			Kind:       string(r.Kind),
			DueDate:    r.DueDate.Format(dateLayout),
			Status:     string(r.Status),
			UpdatedAt:  r.UpdatedAt,
		})
	}
	respond.OK(c, gin.H{"items": resp})
}
