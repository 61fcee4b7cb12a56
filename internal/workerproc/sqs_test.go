package workerproc

import (
	"context"
	"errors"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	sqstypes "github.com/aws/aws-sdk-go-v2/service/sqs/types"

	"fleetdocs-backend/internal/documents"
	"fleetdocs-backend/internal/queue"
)

type fakeSQS struct {
	deleted []string
}

func (f *fakeSQS) ReceiveMessage(ctx context.Context, params *sqs.ReceiveMessageInput, optFns ...func(*sqs.Options)) (*sqs.ReceiveMessageOutput, error) {
	_ = ctx
	_ = params
	_ = optFns
	return &sqs.ReceiveMessageOutput{}, nil
}

func (f *fakeSQS) DeleteMessage(ctx context.Context, params *sqs.DeleteMessageInput, optFns ...func(*sqs.Options)) (*sqs.DeleteMessageOutput, error) {
	_ = ctx
	_ = optFns
	f.deleted = append(f.deleted, aws.ToString(params.ReceiptHandle))
	return &sqs.DeleteMessageOutput{}, nil
}

type fakeProcessor struct {
	err       error
	processed []string
	requestID string
}

func (f *fakeProcessor) Process(ctx context.Context, id string) (documents.Document, error) {
	f.processed = append(f.processed, id)
	f.requestID = documents.RequestIDFromContext(ctx)
	if f.err != nil {
		return documents.Document{}, f.err
	}
	return documents.Document{ID: id, Status: documents.StatusDone}, nil
}

func sqsMessage(t *testing.T, id, receipt string, msg queue.Message) sqstypes.Message {
	t.Helper()
	body, err := queue.EncodeMessage(msg)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	return sqstypes.Message{
		MessageId:     aws.String(id),
		ReceiptHandle: aws.String(receipt),
		Body:          aws.String(string(body)),
		Attributes:    map[string]string{"ApproximateReceiveCount": "1"},
	}
}

func TestWorkerDeletesMessageOnSuccess(t *testing.T) {
	client := &fakeSQS{}
	proc := &fakeProcessor{}
	consumer := &SQSConsumer{Client: client, QueueURL: "queue", Processor: proc}

	consumer.Handle(context.Background(), sqsMessage(t, "m1", "r1", queue.Message{DocumentID: "doc-1", RequestID: "req-1"}))

	if len(client.deleted) != 1 {
		t.Fatalf("expected delete, got %d", len(client.deleted))
	}
	if len(proc.processed) != 1 || proc.processed[0] != "doc-1" {
		t.Fatalf("expected doc-1 processed, got %v", proc.processed)
	}
	if proc.requestID != "req-1" {
		t.Fatalf("expected request id propagated, got %q", proc.requestID)
	}
}

func TestWorkerDoesNotDeleteOnFailure(t *testing.T) {
	client := &fakeSQS{}
	proc := &fakeProcessor{err: errors.New("boom")}
	consumer := &SQSConsumer{Client: client, QueueURL: "queue", Processor: proc}

	consumer.Handle(context.Background(), sqsMessage(t, "m2", "r2", queue.Message{DocumentID: "doc-2", RequestID: "req-2"}))

	if len(client.deleted) != 0 {
		t.Fatalf("expected no delete, got %d", len(client.deleted))
	}
}

func TestWorkerDeletesOnInvalidJSON(t *testing.T) {
	client := &fakeSQS{}
	proc := &fakeProcessor{}
	consumer := &SQSConsumer{Client: client, QueueURL: "queue", Processor: proc}
	msg := sqstypes.Message{
		MessageId:     aws.String("m3"),
		ReceiptHandle: aws.String("r3"),
		Body:          aws.String("{bad-json"),
	}

	consumer.Handle(context.Background(), msg)

	if len(client.deleted) != 1 {
		t.Fatalf("expected delete, got %d", len(client.deleted))
	}
	if len(proc.processed) != 0 {
		t.Fatalf("expected no processing, got %v", proc.processed)
	}
}

func TestWorkerDeletesMissingDocument(t *testing.T) {
	client := &fakeSQS{}
	proc := &fakeProcessor{err: documents.ErrNotFound}
	consumer := &SQSConsumer{Client: client, QueueURL: "queue", Processor: proc}

	consumer.Handle(context.Background(), sqsMessage(t, "m4", "r4", queue.Message{DocumentID: "gone"}))

	if len(client.deleted) != 1 {
		t.Fatalf("expected unrecoverable delete, got %d", len(client.deleted))
	}
}

func TestWorkerAcksDocumentHeldByAnotherAttempt(t *testing.T) {
	client := &fakeSQS{}
	proc := &fakeProcessor{err: documents.ErrAlreadyProcessing}
	consumer := &SQSConsumer{Client: client, QueueURL: "queue", Processor: proc}

	consumer.Handle(context.Background(), sqsMessage(t, "m5", "r5", queue.Message{DocumentID: "doc-5"}))

	if len(client.deleted) != 1 {
		t.Fatalf("expected delete, got %d", len(client.deleted))
	}
}

func TestWorkerRunStopsWhenCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	consumer := &SQSConsumer{Client: &fakeSQS{}, QueueURL: "queue", Processor: &fakeProcessor{}}

	consumer.Run(ctx)
}
