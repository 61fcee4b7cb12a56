package documents

import (
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"fleetdocs-backend/internal/shared/server/middleware"
	"fleetdocs-backend/internal/shared/server/respond"
)

// multipart overhead allowed on top of the image ceiling
const formOverhead = 1 << 20

// Handler wires HTTP handlers to the service.
type Handler struct {
	Svc *Service
}

// NewHandler constructs a Handler.
func NewHandler(svc *Service) *Handler {
	return &Handler{Svc: svc}
}

// RegisterRoutes attaches document routes to the router group.
func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.POST("/documents", h.upload)
	rg.GET("/documents", h.list)
	rg.GET("/documents/:id", h.get)
	rg.POST("/documents/:id/reprocess", h.reprocess)
	rg.PATCH("/documents/:id/vehicle", h.assignVehicle)
}

func (h *Handler) upload(c *gin.Context) {
	if limit := h.Svc.MaxUploadBytes; limit > 0 {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, limit+formOverhead)
	}

	fileHeader, err := c.FormFile("file")
	if err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			respond.Error(c, http.StatusRequestEntityTooLarge, "too_large", "upload exceeds size limit", nil)
			return
		}
		respond.Error(c, http.StatusBadRequest, "validation_error", "file is required", nil)
		return
	}
	if h.Svc.MaxUploadBytes > 0 && fileHeader.Size > h.Svc.MaxUploadBytes {
		respond.Error(c, http.StatusRequestEntityTooLarge, "too_large", "upload exceeds size limit", nil)
		return
	}

	file, err := fileHeader.Open()
	if err != nil {
		respond.Error(c, http.StatusBadRequest, "validation_error", "unable to read file", nil)
		return
	}
	defer file.Close()
	image, err := io.ReadAll(file)
	if err != nil {
		respond.Error(c, http.StatusBadRequest, "validation_error", "unable to read file", nil)
		return
	}

	mode := Mode("")
	if raw := strings.TrimSpace(c.PostForm("mode")); raw != "" {
		if mode = ParseMode(raw); mode == "" {
			respond.Error(c, http.StatusBadRequest, "validation_error", "mode must be inline, queue or deferred", nil)
			return
		}
	}

	ctx := WithRequestID(c.Request.Context(), middleware.RequestIDFromContext(c))
	doc, err := h.Svc.Submit(ctx, SubmitInput{
		Image:      image,
		FileName:   fileHeader.Filename,
		TypeHint:   c.PostForm("type"),
		VehicleRef: c.PostForm("vehicleRef"),
		Source:     SourcePanel,
		Mode:       mode,
	})
	if err != nil {
		writeError(c, err, "failed to upload document")
		return
	}
	c.Set("documentId", doc.ID)

	status := http.StatusCreated
	if doc.Status == StatusPending {
		status = http.StatusAccepted
	}
	respond.JSON(c, status, toResponse(doc))
}

func (h *Handler) get(c *gin.Context) {
	doc, err := h.Svc.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, err, "failed to fetch document")
		return
	}
	respond.OK(c, toResponse(doc))
}

func (h *Handler) list(c *gin.Context) {
	f := Filter{
		VehicleRef: strings.TrimSpace(c.Query("vehicleRef")),
		Limit:      queryInt(c, "limit", defaultListLimit),
		Offset:     queryInt(c, "offset", 0),
	}
	if raw := strings.TrimSpace(c.Query("status")); raw != "" {
		f.Status = Status(strings.ToLower(raw))
		if !validStatus(f.Status) {
			respond.Error(c, http.StatusBadRequest, "validation_error", "unknown status", nil)
			return
		}
	}
	if raw := strings.TrimSpace(c.Query("type")); raw != "" {
		t, ok := ParseType(raw)
		if !ok {
			respond.Error(c, http.StatusBadRequest, "validation_error", "unknown document type", nil)
			return
		}
		f.Type = t
	}
	f = f.normalized()

	docs, err := h.Svc.List(c.Request.Context(), f)
	if err != nil {
		writeError(c, err, "failed to list documents")
		return
	}

	items := make([]DocumentResponse, 0, len(docs))
	for _, doc := range docs {
		items = append(items, toResponse(doc))
	}
	respond.OK(c, ListResponse{Items: items, Limit: f.Limit, Offset: f.Offset})
}

// reprocess runs inline by default; mode=queue or mode=deferred re-arms and returns 202.
func (h *Handler) reprocess(c *gin.Context) {
	id := c.Param("id")
	c.Set("documentId", id)
	ctx := WithRequestID(c.Request.Context(), middleware.RequestIDFromContext(c))

	switch ParseMode(c.Query("mode")) {
	case ModeQueue, ModeDeferred:
		doc, err := h.Svc.Requeue(ctx, id)
		if err != nil {
			writeError(c, err, "failed to requeue document")
			return
		}
		respond.Accepted(c, toResponse(doc))
	default:
		doc, err := h.Svc.Reprocess(ctx, id)
		if err != nil {
			writeError(c, err, "failed to reprocess document")
			return
		}
		respond.OK(c, toResponse(doc))
	}
}

func (h *Handler) assignVehicle(c *gin.Context) {
	var req assignVehicleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respond.Error(c, http.StatusBadRequest, "validation_error", "invalid request body", nil)
		return
	}
	doc, err := h.Svc.AssignVehicle(c.Request.Context(), c.Param("id"), req.VehicleRef)
	if err != nil {
		writeError(c, err, "failed to assign vehicle")
		return
	}
	respond.OK(c, toResponse(doc))
}

func writeError(c *gin.Context, err error, fallback string) {
	switch {
	case errors.Is(err, ErrNotFound):
		respond.Error(c, http.StatusNotFound, "not_found", "document not found", nil)
	case errors.Is(err, ErrAlreadyProcessing):
		respond.Error(c, http.StatusConflict, "already_processing", "document is already being processed", nil)
	case errors.Is(err, ErrInvalidInput):
		respond.Error(c, http.StatusBadRequest, "validation_error", err.Error(), nil)
	case errors.Is(err, ErrTooLarge):
		respond.Error(c, http.StatusRequestEntityTooLarge, "too_large", err.Error(), nil)
	case errors.Is(err, ErrUnsupportedMedia):
		respond.Error(c, http.StatusUnsupportedMediaType, "unsupported_media", err.Error(), nil)
	default:
		respond.Error(c, http.StatusInternalServerError, "internal_error", fallback, nil)
	}
}

func queryInt(c *gin.Context, key string, def int) int {
	v := c.Query(key)
	if v == "" {
		return def
	}
	parsed, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return parsed
}

func validStatus(s Status) bool {
	switch s {
	case StatusPending, StatusProcessing, StatusDone, StatusError:
		return true
	default:
		return false
	}
}
