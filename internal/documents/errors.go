package documents

import (
	"errors"
	"fmt"
	"strings"

	"fleetdocs-backend/internal/extraction"
	"fleetdocs-backend/internal/normalize"
	"fleetdocs-backend/internal/shared/storage/object"
)

var (
	ErrNotFound          = errors.New("document not found")
	ErrInvalidInput      = errors.New("invalid input")
	ErrTooLarge          = errors.New("upload exceeds size limit")
	ErrUnsupportedMedia  = errors.New("unsupported media type")
	ErrAlreadyProcessing = errors.New("document already processing")
	// ErrStaleClaim means a commit found the claim superseded by stale recovery.
	ErrStaleClaim = errors.New("processing claim is stale")
)

const (
	ErrorCodeExtractionTransient   = "EXTRACTION_TRANSIENT"
	ErrorCodeExtractionInvalid     = "EXTRACTION_INVALID_RESPONSE"
	ErrorCodeExtractionUnsupported = "EXTRACTION_UNSUPPORTED"
	ErrorCodeNormalizationMissing  = "NORMALIZATION_MISSING_FIELDS"
	ErrorCodeStorage               = "STORAGE_ERROR"
	ErrorCodeInternal              = "INTERNAL_ERROR"
)

const maxErrorDetailLen = 500

// classifyFailure maps a processing error to the stored code and retry policy.
func classifyFailure(err error) (code string, retryable bool) {
	var nerr *normalize.NormalizationError
	switch {
	case errors.Is(err, extraction.ErrUnsupportedContent):
		return ErrorCodeExtractionUnsupported, false
	case errors.Is(err, extraction.ErrInvalidResponse):
		return ErrorCodeExtractionInvalid, true
	case errors.Is(err, extraction.ErrTransientService):
		return ErrorCodeExtractionTransient, true
	case errors.As(err, &nerr):
		return ErrorCodeNormalizationMissing, true
	case errors.Is(err, object.ErrNotFound):
		return ErrorCodeStorage, false
	case errors.Is(err, errStorage):
		return ErrorCodeStorage, true
	default:
		return ErrorCodeInternal, true
	}
}

var errStorage = errors.New("raw upload unavailable")

func storageError(err error) error {
	return fmt.Errorf("%w: %w", errStorage, err)
}

// sanitizeError flattens an error into a single bounded line for storage and display.
func sanitizeError(err error) string {
	if err == nil {
		return ""
	}
	msg := strings.Join(strings.Fields(err.Error()), " ")
	if len(msg) > maxErrorDetailLen {
		msg = msg[:maxErrorDetailLen]
	}
	return msg
}
