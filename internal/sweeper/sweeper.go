// Package sweeper periodically recovers stale claims and retries documents that intake
// left pending or that failed with a retryable error.
package sweeper

import (
	"context"
	"errors"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"fleetdocs-backend/internal/documents"
	"fleetdocs-backend/internal/shared/config"
	"fleetdocs-backend/internal/shared/metrics"
	"fleetdocs-backend/internal/shared/telemetry"
)

// Processor is the slice of documents.Service the sweeper drives.
type Processor interface {
	RecoverStale(ctx context.Context, staleAfter time.Duration) ([]string, error)
	ListEligible(ctx context.Context, q documents.EligibleQuery) ([]documents.Document, error)
	Process(ctx context.Context, id string) (documents.Document, error)
}

// ReminderExpirer expires overdue reminders at the end of each sweep.
type ReminderExpirer interface {
	ExpireOverdue(ctx context.Context) (int, error)
}

// Config is read once when the sweeper is built.
type Config struct {
	Enabled     bool
	Interval    time.Duration
	Concurrency int
	Batch       int
	MaxAttempts int
	StaleAfter  time.Duration
}

// ConfigFrom extracts the sweeper settings from the application config.
func ConfigFrom(cfg config.Config) Config {
	cfg = config.WithDefaults(cfg)
	return Config{
		Enabled:     cfg.SweeperEnabled,
		Interval:    cfg.SweeperInterval,
		Concurrency: cfg.SweeperConcurrency,
		Batch:       cfg.SweeperBatch,
		MaxAttempts: cfg.MaxAttempts,
		StaleAfter:  cfg.StaleAfter,
	}
}

// Result summarizes one sweep.
type Result struct {
	Recovered        int
	Selected         int
	Done             int
	Failed           int
	Skipped          int
	Errors           int
	RemindersExpired int
}

// Sweeper runs sweeps on a fixed interval.
type Sweeper struct {
	docs      Processor
	reminders ReminderExpirer
	cfg       Config

	// serializes sweeps started by Run and by explicit callers
	mu sync.Mutex
}

// New constructs a Sweeper. reminders may be nil.
func New(docs Processor, reminders ReminderExpirer, cfg Config) *Sweeper {
	if cfg.Interval <= 0 {
		cfg.Interval = 5 * time.Minute
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 1
	}
	if cfg.Batch <= 0 {
		cfg.Batch = 10
	}
	return &Sweeper{docs: docs, reminders: reminders, cfg: cfg}
}

// Run sweeps immediately and then once per interval until ctx is done. A disabled sweeper
// returns at once.
func (s *Sweeper) Run(ctx context.Context) error {
	if !s.cfg.Enabled {
		telemetry.Info("sweeper.disabled", nil)
		return nil
	}
	telemetry.Info("sweeper.started", map[string]any{
		"interval":     s.cfg.Interval.String(),
		"concurrency":  s.cfg.Concurrency,
		"batch":        s.cfg.Batch,
		"max_attempts": s.cfg.MaxAttempts,
		"stale_after":  s.cfg.StaleAfter.String(),
	})

	ticker := time.NewTicker(s.cfg.Interval)
	defer ticker.Stop()
	for {
		if _, err := s.Sweep(ctx); err != nil && ctx.Err() == nil {
			telemetry.Error("sweeper.failed", map[string]any{"error": err.Error()})
		}
		select {
		case <-ctx.Done():
			telemetry.Info("sweeper.stopped", nil)
			return nil
		case <-ticker.C:
		}
	}
}

// Sweep performs one pass: recover stale claims, process eligible documents with bounded
// parallelism, then expire overdue reminders. A failing document never stops the others.
func (s *Sweeper) Sweep(ctx context.Context) (Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	metrics.IncSweeperRun()

	var res Result
	if s.cfg.StaleAfter > 0 {
		recovered, err := s.docs.RecoverStale(ctx, s.cfg.StaleAfter)
		if err != nil {
			return res, err
		}
		res.Recovered = len(recovered)
		metrics.AddSweeperRecovered(len(recovered))
	}

	candidates, err := s.docs.ListEligible(ctx, documents.EligibleQuery{
		MaxAttempts: s.cfg.MaxAttempts,
		Limit:       s.cfg.Batch,
	})
	if err != nil {
		return res, err
	}
	res.Selected = len(candidates)

	var (
		mu sync.Mutex
		g  errgroup.Group
	)
	g.SetLimit(s.cfg.Concurrency)
	for _, doc := range candidates {
		id := doc.ID
		g.Go(func() error {
			if ctx.Err() != nil {
				return nil
			}
			processed, err := s.docs.Process(ctx, id)
			mu.Lock()
			defer mu.Unlock()
			switch {
			case errors.Is(err, documents.ErrAlreadyProcessing):
				res.Skipped++
				metrics.IncSweeperSkipped()
			case err != nil:
				res.Errors++
				telemetry.Error("sweeper.process_failed", map[string]any{
					"document_id": id,
					"error":       err.Error(),
				})
			case processed.Status == documents.StatusDone:
				res.Done++
			default:
				res.Failed++
			}
			return nil
		})
	}
	_ = g.Wait()

	if s.reminders != nil {
		n, err := s.reminders.ExpireOverdue(ctx)
		if err != nil {
			telemetry.Error("sweeper.reminders_failed", map[string]any{"error": err.Error()})
		}
		res.RemindersExpired = n
	}

	telemetry.Info("sweeper.complete", map[string]any{
		"recovered":         res.Recovered,
		"selected":          res.Selected,
		"done":              res.Done,
		"failed":            res.Failed,
		"skipped":           res.Skipped,
		"errors":            res.Errors,
		"reminders_expired": res.RemindersExpired,
	})
	return res, ctx.Err()
}
