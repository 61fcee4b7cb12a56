package extraction

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
	"time"

	"fleetdocs-backend/internal/shared/metrics"
	"fleetdocs-backend/internal/shared/telemetry"
)

const defaultRetryDelay = 300 * time.Millisecond

type timeoutExtractor struct {
	base    Extractor
	timeout time.Duration
}

// WithTimeout bounds every call. Deadline expiry is reported as ErrTransientService.
func WithTimeout(base Extractor, timeout time.Duration) Extractor {
	if base == nil || timeout <= 0 {
		return base
	}
	return timeoutExtractor{base: base, timeout: timeout}
}

func (t timeoutExtractor) Extract(ctx context.Context, req Request) (Payload, error) {
	callCtx, cancel := context.WithTimeout(ctx, t.timeout)
	defer cancel()

	payload, err := t.base.Extract(callCtx, req)
	if err != nil && errors.Is(callCtx.Err(), context.DeadlineExceeded) && ctx.Err() == nil {
		return payload, fmt.Errorf("%w: extraction timeout after %s: %v", ErrTransientService, t.timeout, err)
	}
	return payload, Typed(err)
}

type retryingExtractor struct {
	base     Extractor
	attempts int
	delay    time.Duration
}

// WithRetry retries transient failures inside a single processing attempt.
func WithRetry(base Extractor, attempts int, delay time.Duration) Extractor {
	if base == nil || attempts <= 1 {
		return base
	}
	if delay <= 0 {
		delay = defaultRetryDelay
	}
	return retryingExtractor{base: base, attempts: attempts, delay: delay}
}

func (r retryingExtractor) Extract(ctx context.Context, req Request) (Payload, error) {
	var (
		payload Payload
		err     error
	)
	for attempt := 1; attempt <= r.attempts; attempt++ {
		payload, err = r.base.Extract(ctx, req)
		if err == nil || !IsTransient(err) || attempt == r.attempts {
			return payload, err
		}
		telemetry.Warn("extraction.retry", map[string]any{
			"attempt": attempt,
			"error":   err.Error(),
		})
		select {
		case <-time.After(r.delay * time.Duration(attempt)):
		case <-ctx.Done():
			return nil, fmt.Errorf("%w: %v", ErrTransientService, ctx.Err())
		}
	}
	return payload, err
}

type instrumentedExtractor struct {
	base     Extractor
	provider string
}

// Instrument records call duration and logs the outcome of each call. Errors leave it
// inside the extraction taxonomy.
func Instrument(base Extractor, provider string) Extractor {
	if base == nil {
		return nil
	}
	return instrumentedExtractor{base: base, provider: provider}
}

func (i instrumentedExtractor) Extract(ctx context.Context, req Request) (Payload, error) {
	start := time.Now()
	payload, err := i.base.Extract(ctx, req)
	err = Typed(err)
	elapsed := time.Since(start)
	metrics.ObserveExtractionDurationMs(float64(elapsed.Milliseconds()))

	fields := map[string]any{
		"provider":      i.provider,
		"document_type": req.DocumentType,
		"image_bytes":   len(req.Image),
		"duration_ms":   elapsed.Milliseconds(),
	}
	if err != nil {
		fields["error"] = err.Error()
		telemetry.Warn("extraction.failed", fields)
		return payload, err
	}
	fields["doc_type"] = payload.DocType()
	telemetry.Info("extraction.complete", fields)
	return payload, nil
}

// IsTransient reports whether err is worth retrying against the model provider.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrTransientService) || errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	if errors.Is(err, ErrInvalidResponse) || errors.Is(err, ErrUnsupportedContent) {
		return false
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	msg := strings.ToLower(err.Error())
	for _, marker := range []string{"connection reset", "connection refused", "broken pipe", "tls handshake timeout", "unexpected eof"} {
		if strings.Contains(msg, marker) {
			return true
		}
	}
	return false
}
