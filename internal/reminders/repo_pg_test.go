package reminders

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
)

func TestPGRepoUpsertUsesDocumentKindConflict(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	repo := &PGRepo{DB: db}

	now := time.Now().UTC()
	due := time.Date(2025, 2, 15, 0, 0, 0, 0, time.UTC)
	rem := Reminder{
		ID:         "rem-1",
		DocumentID: "doc-1",
		VehicleRef: "1234ABC",
		Kind:       KindITV,
		DueDate:    due,
		Status:     StatusActive,
		CreatedAt:  now,
		UpdatedAt:  now,
	}

	mock.ExpectQuery(`ON CONFLICT \(document_id, kind\) DO UPDATE`).
		WithArgs("rem-1", "doc-1", "1234ABC", "itv", due, "active", now).
		WillReturnRows(sqlmock.NewRows([]string{"id", "document_id", "vehicle_ref", "kind", "due_date", "status", "created_at", "updated_at"}).
			AddRow("rem-0", "doc-1", "1234ABC", "itv", due, "active", now, now))

	got, err := repo.Upsert(context.Background(), rem)
	if err != nil {
		t.Fatalf("Upsert: %v", err)
	}
	if got.ID != "rem-0" {
		t.Fatalf("expected existing reminder id, got %q", got.ID)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("ExpectationsWereMet: %v", err)
	}
}

func TestPGRepoExpireBefore(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	repo := &PGRepo{DB: db}

	day := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)
	now := day.Add(9 * time.Hour)
	mock.ExpectExec(`UPDATE reminders\s+SET status = 'expired'`).
		WithArgs(day, now).
		WillReturnResult(sqlmock.NewResult(0, 3))

	n, err := repo.ExpireBefore(context.Background(), day, now)
	if err != nil {
		t.Fatalf("ExpireBefore: %v", err)
	}
	if n != 3 {
		t.Fatalf("expected 3 expired, got %d", n)
	}
}
