package documents

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/google/uuid"

	"fleetdocs-backend/internal/extraction"
	"fleetdocs-backend/internal/normalize"
	"fleetdocs-backend/internal/queue"
	"fleetdocs-backend/internal/shared/metrics"
	"fleetdocs-backend/internal/shared/storage/object"
	"fleetdocs-backend/internal/shared/telemetry"
)

var allowedMIMETypes = map[string]bool{
	"image/jpeg": true,
	"image/png":  true,
	"image/webp": true,
	"image/gif":  true,
}

// ReminderSync receives every document committed as done or reassigned to a vehicle.
type ReminderSync interface {
	SyncFromDocument(ctx context.Context, doc Document) error
}

// Service owns the document state machine and runs extraction and normalization.
type Service struct {
	Repo           Repo
	Store          object.ObjectStore
	Extractor      extraction.Extractor
	Normalizer     *normalize.Normalizer
	Queue          queue.Client
	Reminders      ReminderSync
	MaxUploadBytes int64
	DefaultMode    Mode
	Now            func() time.Time
}

// Submit stores the image, creates a pending document and schedules its first attempt.
// Extraction failures in inline mode are reported through the returned document's status.
func (s *Service) Submit(ctx context.Context, in SubmitInput) (Document, error) {
	if len(in.Image) == 0 {
		return Document{}, fmt.Errorf("%w: empty upload", ErrInvalidInput)
	}
	if s.MaxUploadBytes > 0 && int64(len(in.Image)) > s.MaxUploadBytes {
		return Document{}, ErrTooLarge
	}
	docType, ok := ParseType(in.TypeHint)
	if !ok {
		return Document{}, fmt.Errorf("%w: unknown document type %q", ErrInvalidInput, in.TypeHint)
	}

	body, mimeType, err := object.Sniff(bytes.NewReader(in.Image))
	if err != nil {
		return Document{}, err
	}
	if !allowedMIMETypes[mimeType] {
		return Document{}, fmt.Errorf("%w: %s", ErrUnsupportedMedia, mimeType)
	}

	source := in.Source
	if source == "" {
		source = SourcePanel
	}
	fileName := in.FileName
	if fileName == "" {
		fileName = "upload" + extensionFor(mimeType)
	}

	obj, err := s.Store.Save(ctx, string(source), fileName, body)
	if err != nil {
		return Document{}, fmt.Errorf("save upload: %w", err)
	}

	now := s.now()
	doc := Document{
		ID:           uuid.NewString(),
		VehicleRef:   normalize.NormalizePlate(in.VehicleRef),
		Type:         docType,
		RawUploadRef: obj.Key,
		MimeType:     mimeType,
		SizeBytes:    obj.Size,
		Source:       source,
		Status:       StatusPending,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.Repo.Create(ctx, doc); err != nil {
		return Document{}, err
	}
	metrics.IncDocumentSubmitted()
	telemetry.Info("document.submitted", map[string]any{
		"document_id":   doc.ID,
		"document_type": string(doc.Type),
		"source":        string(doc.Source),
		"mime_type":     doc.MimeType,
		"size_bytes":    doc.SizeBytes,
		"status":        string(doc.Status),
		"request_id":    RequestIDFromContext(ctx),
	})

	switch s.modeFor(in.Mode) {
	case ModeInline:
		processed, err := s.Process(ctx, doc.ID)
		if errors.Is(err, ErrAlreadyProcessing) {
			// Another caller won the claim between create and process.
			return s.Repo.GetByID(ctx, doc.ID)
		}
		return processed, err
	case ModeQueue:
		s.enqueue(ctx, doc.ID)
	}
	return doc, nil
}

// Process runs one attempt for a pending or error document. A done document is returned
// as is; a document held by another attempt yields ErrAlreadyProcessing.
func (s *Service) Process(ctx context.Context, id string) (Document, error) {
	current, err := s.Repo.GetByID(ctx, id)
	if err != nil {
		return Document{}, err
	}
	switch current.Status {
	case StatusDone:
		return current, nil
	case StatusProcessing:
		metrics.IncDocumentAlreadyProcessing()
		return Document{}, ErrAlreadyProcessing
	}
	return s.run(ctx, current, false)
}

// Reprocess runs a fresh attempt inline for any document not currently processing,
// done documents included. The attempt ceiling does not apply.
func (s *Service) Reprocess(ctx context.Context, id string) (Document, error) {
	current, err := s.Repo.GetByID(ctx, id)
	if err != nil {
		return Document{}, err
	}
	if current.Status == StatusProcessing {
		metrics.IncDocumentAlreadyProcessing()
		return Document{}, ErrAlreadyProcessing
	}
	return s.run(ctx, current, true)
}

// Requeue re-arms a done or error document to pending and hands it to the queue, or to
// the sweeper when no queue is configured.
func (s *Service) Requeue(ctx context.Context, id string) (Document, error) {
	current, err := s.Repo.GetByID(ctx, id)
	if err != nil {
		return Document{}, err
	}
	doc, err := s.Repo.Rearm(ctx, id, s.now())
	if err != nil {
		if errors.Is(err, ErrAlreadyProcessing) {
			metrics.IncDocumentAlreadyProcessing()
		}
		return Document{}, err
	}
	if current.Status != doc.Status {
		s.logTransition(ctx, current.Status, doc, nil)
	}
	s.enqueue(ctx, doc.ID)
	return doc, nil
}

// Get returns a document by ID.
func (s *Service) Get(ctx context.Context, id string) (Document, error) {
	if id == "" {
		return Document{}, ErrInvalidInput
	}
	return s.Repo.GetByID(ctx, id)
}

// List returns documents matching f, newest first.
func (s *Service) List(ctx context.Context, f Filter) ([]Document, error) {
	return s.Repo.List(ctx, f)
}

// AssignVehicle attaches a vehicle plate to a document. Done documents re-sync reminders.
func (s *Service) AssignVehicle(ctx context.Context, id, vehicleRef string) (Document, error) {
	plate := normalize.NormalizePlate(vehicleRef)
	if id == "" || plate == "" {
		return Document{}, ErrInvalidInput
	}
	doc, err := s.Repo.AssignVehicle(ctx, id, plate, s.now())
	if err != nil {
		return Document{}, err
	}
	if doc.Status == StatusDone {
		s.syncReminders(ctx, doc)
	}
	return doc, nil
}

// RecoverStale returns documents stuck in processing longer than staleAfter to pending.
func (s *Service) RecoverStale(ctx context.Context, staleAfter time.Duration) ([]string, error) {
	now := s.now()
	ids, err := s.Repo.RecoverStale(ctx, now.Add(-staleAfter), now)
	if err != nil {
		return nil, err
	}
	for _, id := range ids {
		telemetry.Info("document.status", map[string]any{
			"document_id":       id,
			"status":            string(StatusPending),
			"status_transition": transitionLabel(StatusProcessing, StatusPending),
			"transition":        string(TransitionRecover),
			"request_id":        RequestIDFromContext(ctx),
		})
	}
	return ids, nil
}

// ListEligible returns the documents a sweep may process.
func (s *Service) ListEligible(ctx context.Context, q EligibleQuery) ([]Document, error) {
	return s.Repo.ListEligible(ctx, q)
}

func (s *Service) run(ctx context.Context, prior Document, allowDone bool) (Document, error) {
	claimed, err := s.Repo.Claim(ctx, ClaimRequest{
		ID:        prior.ID,
		ClaimID:   uuid.NewString(),
		AllowDone: allowDone,
		At:        s.now(),
	})
	if err != nil {
		if errors.Is(err, ErrAlreadyProcessing) {
			metrics.IncDocumentAlreadyProcessing()
		}
		return Document{}, err
	}
	metrics.IncDocumentProcessingStarted()
	s.logTransition(ctx, prior.Status, claimed, nil)
	return s.execute(ctx, claimed)
}

// execute owns a claimed document until it is committed. Commits use a context detached
// from ctx so a cancelled caller cannot strand the record in processing.
func (s *Service) execute(ctx context.Context, doc Document) (result Document, err error) {
	commitCtx := context.WithoutCancel(ctx)
	defer func() {
		if r := recover(); r != nil {
			telemetry.Error("document.panic", map[string]any{
				"document_id": doc.ID,
				"panic":       fmt.Sprint(r),
			})
			result, err = s.fail(commitCtx, doc, fmt.Errorf("panic during processing: %v", r), nil)
		}
	}()

	completion, raw, procErr := s.extractAndNormalize(ctx, doc)
	if procErr != nil {
		return s.fail(commitCtx, doc, procErr, raw)
	}
	return s.complete(commitCtx, doc, completion)
}

func (s *Service) extractAndNormalize(ctx context.Context, doc Document) (Completion, map[string]any, error) {
	image, err := s.loadUpload(ctx, doc.RawUploadRef)
	if err != nil {
		return Completion{}, nil, err
	}

	docType := doc.Type
	payload, err := s.Extractor.Extract(ctx, extraction.Request{
		Image:        image,
		MIMEType:     doc.MimeType,
		DocumentType: string(docType),
	})
	raw := map[string]any(payload)
	if err != nil {
		return Completion{}, raw, extraction.Typed(err)
	}

	if docType == "" {
		classified, ok := ParseType(payload.DocType())
		if !ok || classified == "" {
			return Completion{}, raw, fmt.Errorf("%w: unrecognised document type %q", extraction.ErrUnsupportedContent, payload.DocType())
		}
		docType = classified
	}

	result, err := s.Normalizer.Normalize(raw, string(docType))
	if err != nil {
		return Completion{}, raw, err
	}

	vehicleRef := ""
	if doc.VehicleRef == "" {
		if plate, ok := result.Fields["plate"].(string); ok {
			vehicleRef = plate
		}
	}
	return Completion{
		Type:            docType,
		ExtractedFields: result.Fields,
		FieldIssues:     toFieldIssues(result.Issues),
		RawExtraction:   raw,
		VehicleRef:      vehicleRef,
	}, raw, nil
}

func (s *Service) loadUpload(ctx context.Context, key string) ([]byte, error) {
	rc, err := s.Store.Open(ctx, key)
	if err != nil {
		if errors.Is(err, object.ErrNotFound) {
			return nil, fmt.Errorf("open upload %s: %w", key, err)
		}
		return nil, storageError(err)
	}
	defer rc.Close()
	data, err := io.ReadAll(rc)
	if err != nil {
		return nil, storageError(err)
	}
	return data, nil
}

func (s *Service) complete(ctx context.Context, doc Document, c Completion) (Document, error) {
	c.At = s.now()
	updated, err := s.Repo.Complete(ctx, doc.ID, doc.ClaimID, c)
	if err != nil {
		s.logCommitError(ctx, doc, err)
		return Document{}, err
	}
	metrics.IncDocumentDone()
	s.logTransition(ctx, StatusProcessing, updated, map[string]any{
		"document_type": string(updated.Type),
		"field_issues":  len(updated.FieldIssues),
	})
	s.syncReminders(ctx, updated)
	return updated, nil
}

func (s *Service) fail(ctx context.Context, doc Document, cause error, raw map[string]any) (Document, error) {
	code, retryable := classifyFailure(cause)
	updated, err := s.Repo.Fail(ctx, doc.ID, doc.ClaimID, Failure{
		Code:          code,
		Detail:        sanitizeError(cause),
		Retryable:     retryable,
		RawExtraction: raw,
		At:            s.now(),
	})
	if err != nil {
		s.logCommitError(ctx, doc, err)
		return Document{}, err
	}
	metrics.IncDocumentError()
	s.logTransition(ctx, StatusProcessing, updated, map[string]any{
		"error_code":      code,
		"error_retryable": retryable,
	})
	return updated, nil
}

func (s *Service) logCommitError(ctx context.Context, doc Document, err error) {
	fields := map[string]any{
		"document_id": doc.ID,
		"attempt":     doc.AttemptCount,
		"error":       err.Error(),
		"request_id":  RequestIDFromContext(ctx),
	}
	if errors.Is(err, ErrStaleClaim) {
		metrics.IncDocumentStaleClaim()
		telemetry.Warn("document.stale_claim", fields)
		return
	}
	telemetry.Error("document.commit_failed", fields)
}

func (s *Service) syncReminders(ctx context.Context, doc Document) {
	if s.Reminders == nil {
		return
	}
	if err := s.Reminders.SyncFromDocument(ctx, doc); err != nil {
		telemetry.Error("document.reminder_sync_failed", map[string]any{
			"document_id": doc.ID,
			"error":       err.Error(),
		})
	}
}

func (s *Service) enqueue(ctx context.Context, id string) {
	if s.Queue == nil {
		telemetry.Warn("document.queue_unavailable", map[string]any{
			"document_id": id,
			"fallback":    string(ModeDeferred),
		})
		return
	}
	msg := queue.NewMessage(id, RequestIDFromContext(ctx), s.now())
	if err := s.Queue.Send(ctx, msg); err != nil {
		// The document stays pending, so the sweeper still picks it up.
		telemetry.Error("document.enqueue_failed", map[string]any{
			"document_id": id,
			"error":       err.Error(),
		})
	}
}

func (s *Service) logTransition(ctx context.Context, from Status, doc Document, extra map[string]any) {
	fields := map[string]any{
		"document_id":       doc.ID,
		"status":            string(doc.Status),
		"status_transition": transitionLabel(from, doc.Status),
		"attempt":           doc.AttemptCount,
		"request_id":        RequestIDFromContext(ctx),
	}
	if t, ok := TransitionFor(from, doc.Status); ok {
		fields["transition"] = string(t)
	}
	for k, v := range extra {
		fields[k] = v
	}
	telemetry.Info("document.status", fields)
}

func (s *Service) modeFor(requested Mode) Mode {
	if requested != "" {
		return requested
	}
	if s.DefaultMode != "" {
		return s.DefaultMode
	}
	return ModeInline
}

func (s *Service) now() time.Time {
	if s.Now != nil {
		return s.Now().UTC()
	}
	return time.Now().UTC()
}

func toFieldIssues(issues []normalize.FieldIssue) []FieldIssue {
	if len(issues) == 0 {
		return nil
	}
	out := make([]FieldIssue, 0, len(issues))
	for _, issue := range issues {
		out = append(out, FieldIssue{Field: issue.Field, Raw: issue.Raw, Reason: issue.Reason})
	}
	return out
}

func extensionFor(mimeType string) string {
	switch mimeType {
	case "image/jpeg":
		return ".jpg"
	case "image/png":
		return ".png"
	case "image/webp":
		return ".webp"
	case "image/gif":
		return ".gif"
	default:
		return ""
	}
}
