package telegram

import (
	"context"
	"time"

	"fleetdocs-backend/internal/shared/telemetry"
)

// UpdateSource is the getUpdates side of the Bot API.
type UpdateSource interface {
	GetUpdates(ctx context.Context, offset int64, timeout time.Duration) ([]Update, error)
}

// Poller is the long-polling alternative to the webhook, for hosts without a public URL.
type Poller struct {
	Source  UpdateSource
	Intake  *Intake
	Timeout time.Duration
	Backoff time.Duration
}

// Run polls until ctx is done.
func (p *Poller) Run(ctx context.Context) error {
	timeout := p.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	backoff := p.Backoff
	if backoff <= 0 {
		backoff = 5 * time.Second
	}

	var offset int64
	for {
		if ctx.Err() != nil {
			return nil
		}
		updates, err := p.Source.GetUpdates(ctx, offset, timeout)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			telemetry.Warn("telegram.poll_failed", map[string]any{"error": err.Error()})
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(backoff):
			}
			continue
		}
		for _, upd := range updates {
			if err := p.Intake.HandleUpdate(ctx, upd); err != nil {
				telemetry.Error("telegram.update_failed", map[string]any{
					"update_id": upd.UpdateID,
					"error":     err.Error(),
				})
			}
			if upd.UpdateID >= offset {
				offset = upd.UpdateID + 1
			}
		}
	}
}
