package extraction

import (
	"context"
	"errors"
	"fmt"
)

var (
	// ErrTransientService covers network failures, rate limits, 5xx and timeouts.
	ErrTransientService = errors.New("extraction service unavailable")
	// ErrInvalidResponse means the model answered but the payload could not be decoded.
	ErrInvalidResponse = errors.New("extraction response invalid")
	// ErrUnsupportedContent means the model declined or could not read the image.
	ErrUnsupportedContent = errors.New("extraction content unsupported")
	// ErrProviderRejected covers auth and configuration rejections (bad key, unknown model).
	// It is a kind of ErrUnsupportedContent so the document is not swept again until an
	// operator fixes the setup and reprocesses.
	ErrProviderRejected = fmt.Errorf("%w: provider rejected request", ErrUnsupportedContent)
)

// Typed maps err into the extraction taxonomy. Caller cancellation and untyped failures
// become ErrTransientService; already typed errors pass through unchanged.
func Typed(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, ErrTransientService), errors.Is(err, ErrInvalidResponse), errors.Is(err, ErrUnsupportedContent):
		return err
	case errors.Is(err, context.Canceled):
		return fmt.Errorf("%w: extraction cancelled: %w", ErrTransientService, err)
	default:
		return fmt.Errorf("%w: %w", ErrTransientService, err)
	}
}

// Payload is the untyped model output. It must go through the normalizer before use.
type Payload map[string]any

// Request is one image to extract. An empty DocumentType asks the model to classify.
type Request struct {
	Image        []byte
	MIMEType     string
	DocumentType string
}

// Extractor turns an image into a raw payload.
type Extractor interface {
	Extract(ctx context.Context, req Request) (Payload, error)
}

// Func adapts a function to Extractor.
type Func func(ctx context.Context, req Request) (Payload, error)

func (f Func) Extract(ctx context.Context, req Request) (Payload, error) {
	return f(ctx, req)
}

// DocType returns the doc_type reported by the model, lower-cased.
func (p Payload) DocType() string {
	if p == nil {
		return ""
	}
	s, _ := p["doc_type"].(string)
	return normalizeDocType(s)
}
