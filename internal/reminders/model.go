package reminders

import (
	"errors"
	"time"

	"fleetdocs-backend/internal/documents"
)

var (
	ErrInvalidInput = errors.New("invalid input")
	ErrNotFound     = errors.New("reminder not found")
)

// Kind names the deadline a reminder tracks.
type Kind string

const (
	KindInsurance  Kind = "insurance"
	KindITV        Kind = "itv"
	KindTachograph Kind = "tachograph"
)

// Status is the reminder's notification state.
type Status string

const (
	StatusActive   Status = "active"
	StatusNotified Status = "notified"
	StatusExpired  Status = "expired"
)

const dateLayout = "2006-01-02"

// Reminder is an expiry deadline derived from a done document.
type Reminder struct {
	ID         string
	DocumentID string
	VehicleRef string
	Kind       Kind
	DueDate    time.Time
	Status     Status
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// Filter narrows List results. Zero values mean "any".
type Filter struct {
	Status     Status
	VehicleRef string
	Limit      int
}

var kindByType = map[documents.Type]Kind{
	documents.TypeInsurancePolicy: KindInsurance,
	documents.TypeITV:             KindITV,
	documents.TypeTachograph:      KindTachograph,
}

// KindFor returns the reminder kind a document type produces, if any.
func KindFor(t documents.Type) (Kind, bool) {
	k, ok := kindByType[t]
	return k, ok
}

// ParseStatus accepts the canonical status names.
func ParseStatus(raw string) (Status, bool) {
	switch s := Status(raw); s {
	case StatusActive, StatusNotified, StatusExpired:
		return s, true
	default:
		return "", false
	}
}

func (f Filter) normalized() Filter {
	if f.Limit <= 0 || f.Limit > 200 {
		f.Limit = 200
	}
	return f
}
