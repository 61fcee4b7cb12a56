package workerproc

import (
	"context"
	"fmt"
	"os"

	"github.com/hibiken/asynq"

	"fleetdocs-backend/internal/queue"
	"fleetdocs-backend/internal/shared/metrics"
	"fleetdocs-backend/internal/shared/telemetry"
)

// NewAsynqHandler adapts a Processor to the document task. Undecodable payloads and
// missing documents skip asynq's retries; other failures are retried by asynq and then
// left to the sweeper.
func NewAsynqHandler(proc Processor) asynq.HandlerFunc {
	return func(ctx context.Context, task *asynq.Task) error {
		metrics.IncJobsReceived()
		body := string(task.Payload())

		msg, meta, err := ParseMessage(body)
		if err != nil {
			telemetry.Error("worker.document.decode_failed", map[string]any{
				"body_len":    meta.BodyLen,
				"body_sha256": meta.BodySHA,
				"error":       err.Error(),
			})
			metrics.IncJobsDeletedUnrecoverable()
			return fmt.Errorf("%w: %v", asynq.SkipRetry, err)
		}

		fields := map[string]any{"document_id": msg.DocumentID, "request_id": msg.RequestID}
		telemetry.Info("worker.document.received", fields)

		if err := HandleMessage(WithParsedMessage(ctx, msg), proc, body); err != nil {
			fields["error"] = err.Error()
			if Unrecoverable(err) {
				telemetry.Error("worker.document.unrecoverable", fields)
				metrics.IncJobsDeletedUnrecoverable()
				return fmt.Errorf("%w: %v", asynq.SkipRetry, err)
			}
			telemetry.Error("worker.document.failed", fields)
			metrics.IncJobsFailed()
			return err
		}

		telemetry.Info("worker.document.completed", fields)
		metrics.IncJobsCompleted()
		return nil
	}
}

// NewAsynqServer builds a server consuming document tasks from Redis.
func NewAsynqServer(opt asynq.RedisClientOpt, concurrency int) *asynq.Server {
	if concurrency <= 0 {
		concurrency = DefaultConcurrency
	}
	return asynq.NewServer(opt, asynq.Config{
		Concurrency:     concurrency,
		ShutdownTimeout: DefaultShutdownTimeout,
		Logger:          asynqLogger{},
	})
}

// RunAsynq serves document tasks until ctx is cancelled.
func RunAsynq(ctx context.Context, srv *asynq.Server, proc Processor) error {
	mux := asynq.NewServeMux()
	mux.Handle(queue.TaskProcessDocument, NewAsynqHandler(proc))
	if err := srv.Start(mux); err != nil {
		return fmt.Errorf("start asynq server: %w", err)
	}
	<-ctx.Done()
	srv.Shutdown()
	return nil
}

// asynqLogger routes asynq's own logs through telemetry.
type asynqLogger struct{}

func (asynqLogger) Debug(args ...interface{}) {}
func (asynqLogger) Info(args ...interface{}) {
	telemetry.Info("asynq", map[string]any{"detail": fmt.Sprint(args...)})
}
func (asynqLogger) Warn(args ...interface{}) {
	telemetry.Warn("asynq", map[string]any{"detail": fmt.Sprint(args...)})
}
func (asynqLogger) Error(args ...interface{}) {
	telemetry.Error("asynq", map[string]any{"detail": fmt.Sprint(args...)})
}
func (asynqLogger) Fatal(args ...interface{}) {
	telemetry.Error("asynq.fatal", map[string]any{"detail": fmt.Sprint(args...)})
	os.Exit(1)
}
