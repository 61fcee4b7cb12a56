package main

// Build the Lambda handler binary:
//   GOOS=linux GOARCH=amd64 CGO_ENABLED=0 go build -o bootstrap ./cmd/lambda-worker

import (
	"context"
	"sync"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-lambda-go/lambda"

	"fleetdocs-backend/internal/bootstrap"
	"fleetdocs-backend/internal/shared/config"
	"fleetdocs-backend/internal/shared/metrics"
	"fleetdocs-backend/internal/shared/storage/db"
	"fleetdocs-backend/internal/shared/telemetry"
	"fleetdocs-backend/internal/workerproc"
)

var (
	initOnce sync.Once
	initErr  error
	proc     workerproc.Processor
)

func initApp() {
	cfg := config.Load()
	built, err := bootstrap.BuildWith(context.Background(), cfg, bootstrap.Options{DBOptions: db.DefaultWorkerOptions(1)})
	if err != nil {
		initErr = err
		return
	}
	proc = built.DocumentsService
}

// handler reports failed records as batch item failures so SQS redelivers only those.
// Unrecoverable records are dropped.
func handler(ctx context.Context, event events.SQSEvent) (events.SQSEventResponse, error) {
	initOnce.Do(initApp)
	if initErr != nil {
		telemetry.Error("lambda.bootstrap_failed", map[string]any{"error": initErr.Error()})
		failures := make([]events.SQSBatchItemFailure, 0, len(event.Records))
		for _, record := range event.Records {
			failures = append(failures, events.SQSBatchItemFailure{ItemIdentifier: record.MessageId})
		}
		return events.SQSEventResponse{BatchItemFailures: failures}, initErr
	}
	return handleBatch(ctx, proc, event), nil
}

func handleBatch(ctx context.Context, p workerproc.Processor, event events.SQSEvent) events.SQSEventResponse {
	failures := make([]events.SQSBatchItemFailure, 0)
	for _, record := range event.Records {
		metrics.IncJobsReceived()
		err := workerproc.HandleMessage(ctx, p, record.Body)
		switch {
		case err == nil:
			metrics.IncJobsCompleted()
		case workerproc.Unrecoverable(err):
			telemetry.Error("worker.document.unrecoverable", map[string]any{"sqs_message_id": record.MessageId, "error": err.Error()})
			metrics.IncJobsDeletedUnrecoverable()
		default:
			telemetry.Error("worker.document.failed", map[string]any{"sqs_message_id": record.MessageId, "error": err.Error()})
			metrics.IncJobsFailed()
			failures = append(failures, events.SQSBatchItemFailure{ItemIdentifier: record.MessageId})
		}
	}
	return events.SQSEventResponse{BatchItemFailures: failures}
}

func main() {
	lambda.Start(handler)
}
