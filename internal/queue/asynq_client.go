package queue

import (
	"context"
	"fmt"
	"time"

	"github.com/hibiken/asynq"
)

// TaskProcessDocument is the asynq task type carrying a Message.
const TaskProcessDocument = "document:process"

// AsynqClient enqueues messages as asynq tasks on Redis.
type AsynqClient struct {
	client   *asynq.Client
	maxRetry int
	timeout  time.Duration
}

// RedisOpt builds the asynq connection options shared by client and server.
func RedisOpt(addr, password string, db int) asynq.RedisClientOpt {
	return asynq.RedisClientOpt{Addr: addr, Password: password, DB: db}
}

// NewAsynqClient constructs a Redis-backed queue client. Retries are kept low because the
// sweeper picks up documents that end in a retryable error.
func NewAsynqClient(opt asynq.RedisClientOpt, taskTimeout time.Duration) (*AsynqClient, error) {
	if opt.Addr == "" {
		return nil, fmt.Errorf("REDIS_ADDR is required for the asynq queue")
	}
	if taskTimeout <= 0 {
		taskTimeout = 2 * time.Minute
	}
	return &AsynqClient{client: asynq.NewClient(opt), maxRetry: 2, timeout: taskTimeout}, nil
}

// Send enqueues one document task. Task ids are not set, so a re-enqueue after a
// reprocess is never deduplicated away; the claim makes duplicate deliveries harmless.
func (a *AsynqClient) Send(ctx context.Context, msg Message) error {
	payload, err := EncodeMessage(msg)
	if err != nil {
		return fmt.Errorf("encode asynq task: %w", err)
	}
	task := asynq.NewTask(TaskProcessDocument, payload)
	if _, err := a.client.EnqueueContext(ctx, task, asynq.MaxRetry(a.maxRetry), asynq.Timeout(a.timeout)); err != nil {
		return fmt.Errorf("asynq enqueue: %w", err)
	}
	return nil
}

// Close releases the Redis connection.
func (a *AsynqClient) Close() error {
	return a.client.Close()
}

var _ Client = (*AsynqClient)(nil)
