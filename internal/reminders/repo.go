package reminders

import (
	"context"
	"time"
)

// Repo persists reminders.
type Repo interface {
	// Upsert inserts or updates the reminder for (DocumentID, Kind). A changed due date
	// re-activates the reminder.
	Upsert(ctx context.Context, r Reminder) (Reminder, error)
	List(ctx context.Context, f Filter) ([]Reminder, error)
	// ExpireBefore marks active and notified reminders due before day as expired.
	ExpireBefore(ctx context.Context, day, at time.Time) (int, error)
}
