package reminders

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"

	"fleetdocs-backend/internal/documents"
	"fleetdocs-backend/internal/shared/telemetry"
)

// Service derives reminders from done documents and expires overdue ones.
type Service struct {
	Repo Repo
	Now  func() time.Time
}

// NewService constructs a Service.
func NewService(repo Repo) *Service {
	return &Service{Repo: repo}
}

// SyncFromDocument upserts the reminder for a done insurance, ITV or tachograph document.
// Documents without a vehicle or a parseable expiry_date are skipped.
func (s *Service) SyncFromDocument(ctx context.Context, doc documents.Document) error {
	if doc.Status != documents.StatusDone {
		return nil
	}
	kind, ok := KindFor(doc.Type)
	if !ok {
		return nil
	}
	raw, _ := doc.ExtractedFields["expiry_date"].(string)
	due, err := time.Parse(dateLayout, strings.TrimSpace(raw))
	if err != nil {
		telemetry.Warn("reminder.skipped", map[string]any{
			"document_id": doc.ID,
			"reason":      "expiry_date missing or invalid",
		})
		return nil
	}
	if doc.VehicleRef == "" {
		telemetry.Info("reminder.skipped", map[string]any{
			"document_id": doc.ID,
			"reason":      "no vehicle assigned",
		})
		return nil
	}

	now := s.now()
	rem, err := s.Repo.Upsert(ctx, Reminder{
		ID:         uuid.NewString(),
		DocumentID: doc.ID,
		VehicleRef: doc.VehicleRef,
		Kind:       kind,
		DueDate:    due,
		Status:     StatusActive,
		CreatedAt:  now,
		UpdatedAt:  now,
	})
	if err != nil {
		return err
	}
	telemetry.Info("reminder.synced", map[string]any{
		"reminder_id": rem.ID,
		"document_id": doc.ID,
		"vehicle_ref": rem.VehicleRef,
		"kind":        string(rem.Kind),
		"due_date":    rem.DueDate.Format(dateLayout),
		"status":      string(rem.Status),
	})
	return nil
}

// ExpireOverdue marks reminders whose due date is before today as expired.
func (s *Service) ExpireOverdue(ctx context.Context) (int, error) {
	now := s.now()
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	n, err := s.Repo.ExpireBefore(ctx, today, now)
	if err != nil {
		return 0, err
	}
	if n > 0 {
		telemetry.Info("reminder.expired", map[string]any{"count": n})
	}
	return n, nil
}

// List returns reminders ordered by due date.
func (s *Service) List(ctx context.Context, f Filter) ([]Reminder, error) {
	return s.Repo.List(ctx, f)
}

func (s *Service) now() time.Time {
	if s.Now != nil {
		return s.Now().UTC()
	}
	return time.Now().UTC()
}
