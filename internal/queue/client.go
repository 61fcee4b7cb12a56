package queue

import (
	"context"
	"errors"
)

// ErrNotConfigured is returned when a job is enqueued without a queue backend.
var ErrNotConfigured = errors.New("job queue not configured")

// Client sends messages to a queue backend.
type Client interface {
	Send(ctx context.Context, msg Message) error
}
