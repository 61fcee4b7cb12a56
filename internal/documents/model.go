package documents

import (
	"strings"
	"time"
)

// Status is a document's position in the processing state machine.
type Status string

const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusDone       Status = "done"
	StatusError      Status = "error"
)

// Type is the closed set of document kinds the pipeline understands.
type Type string

const (
	TypeFuelTicket      Type = "fuel_ticket"
	TypeInsurancePolicy Type = "insurance_policy"
	TypeITV             Type = "itv"
	TypeTachograph      Type = "tachograph"
	TypeWorkshopInvoice Type = "workshop_invoice"
	TypeTiresInvoice    Type = "tires_invoice"
)

// AllTypes lists every document type in display order.
var AllTypes = []Type{
	TypeFuelTicket,
	TypeInsurancePolicy,
	TypeITV,
	TypeTachograph,
	TypeWorkshopInvoice,
	TypeTiresInvoice,
}

var typeAliases = map[string]Type{
	"fuel":        TypeFuelTicket,
	"combustible": TypeFuelTicket,
	"insurance":   TypeInsurancePolicy,
	"seguro":      TypeInsurancePolicy,
	"tacografo":   TypeTachograph,
	"workshop":    TypeWorkshopInvoice,
	"taller":      TypeWorkshopInvoice,
	"tires":       TypeTiresInvoice,
	"tyres":       TypeTiresInvoice,
	"neumaticos":  TypeTiresInvoice,
}

// ParseType accepts canonical names and short aliases. The empty string is valid and
// means "classify from the image".
func ParseType(raw string) (Type, bool) {
	s := strings.ToLower(strings.TrimSpace(raw))
	s = strings.TrimPrefix(s, "#")
	if s == "" {
		return "", true
	}
	for _, t := range AllTypes {
		if string(t) == s {
			return t, true
		}
	}
	if t, ok := typeAliases[s]; ok {
		return t, true
	}
	return "", false
}

// Source records which intake adapter created a document.
type Source string

const (
	SourcePanel    Source = "panel"
	SourceTelegram Source = "telegram"
	SourceCLI      Source = "cli"
)

// Mode selects how Submit schedules the first processing attempt.
type Mode string

const (
	ModeInline   Mode = "inline"
	ModeQueue    Mode = "queue"
	ModeDeferred Mode = "deferred"
)

// ParseMode maps a config or request value to a Mode; unknown values yield "".
func ParseMode(raw string) Mode {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "inline", "sync":
		return ModeInline
	case "queue", "async":
		return ModeQueue
	case "deferred", "sweeper":
		return ModeDeferred
	default:
		return ""
	}
}

// Document is one submitted image and everything the pipeline learned about it.
type Document struct {
	ID              string
	VehicleRef      string
	Type            Type
	RawUploadRef    string
	MimeType        string
	SizeBytes       int64
	Source          Source
	Status          Status
	ExtractedFields map[string]any
	FieldIssues     []FieldIssue
	RawExtraction   map[string]any
	ErrorCode       string
	ErrorDetail     string
	ErrorRetryable  *bool
	AttemptCount    int
	ClaimID         string
	ClaimedAt       *time.Time
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// FieldIssue is a per-field normalization problem kept for the panel.
type FieldIssue struct {
	Field  string `json:"field"`
	Raw    string `json:"raw,omitempty"`
	Reason string `json:"reason"`
}

// Filter narrows List results. Zero values mean "any".
type Filter struct {
	Status     Status
	Type       Type
	VehicleRef string
	Limit      int
	Offset     int
}

// SubmitInput is what an intake adapter hands to Submit.
type SubmitInput struct {
	Image      []byte
	FileName   string
	TypeHint   string
	VehicleRef string
	Source     Source
	Mode       Mode
}

// Completion is the payload committed with processing → done.
type Completion struct {
	Type            Type
	ExtractedFields map[string]any
	FieldIssues     []FieldIssue
	RawExtraction   map[string]any
	VehicleRef      string
	At              time.Time
}

// Failure is the payload committed with processing → error.
type Failure struct {
	Code          string
	Detail        string
	Retryable     bool
	RawExtraction map[string]any
	At            time.Time
}

const (
	defaultListLimit = 20
	maxListLimit     = 100
)

func (f Filter) normalized() Filter {
	if f.Limit <= 0 {
		f.Limit = defaultListLimit
	}
	if f.Limit > maxListLimit {
		f.Limit = maxListLimit
	}
	if f.Offset < 0 {
		f.Offset = 0
	}
	return f
}

// eligible reports whether the sweeper may pick the document up. A nil ErrorRetryable on
// an error document is treated as retryable.
func (d Document) eligible(maxAttempts int) bool {
	if maxAttempts > 0 && d.AttemptCount >= maxAttempts {
		return false
	}
	switch d.Status {
	case StatusPending:
		return true
	case StatusError:
		return d.ErrorRetryable == nil || *d.ErrorRetryable
	default:
		return false
	}
}
