package workerproc

import (
	"context"
	"errors"
	"testing"

	"github.com/hibiken/asynq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fleetdocs-backend/internal/documents"
	"fleetdocs-backend/internal/queue"
)

func TestParseMessage(t *testing.T) {
	cases := []struct {
		name    string
		body    string
		check   func(t *testing.T, err error)
		wantDoc string
	}{
		{
			name: "empty",
			body: "  ",
			check: func(t *testing.T, err error) {
				assert.ErrorAs(t, err, &ErrEmptyBody{})
			},
		},
		{
			name: "bad json",
			body: "{nope",
			check: func(t *testing.T, err error) {
				var decode ErrDecode
				require.ErrorAs(t, err, &decode)
				assert.Equal(t, 5, decode.Meta.BodyLen)
				assert.Len(t, decode.Meta.BodySHA, 64)
			},
		},
		{
			name: "missing id keeps request id",
			body: `{"documentId":" ","requestId":"req-9"}`,
			check: func(t *testing.T, err error) {
				var missing ErrMissingDocumentID
				require.ErrorAs(t, err, &missing)
				assert.Equal(t, "req-9", missing.RequestID)
			},
		},
		{
			name:    "valid",
			body:    `{"documentId":"doc-1","requestId":"req-1","version":1}`,
			check:   func(t *testing.T, err error) { assert.NoError(t, err) },
			wantDoc: "doc-1",
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			msg, _, err := ParseMessage(tc.body)
			tc.check(t, err)
			assert.Equal(t, tc.wantDoc, msg.DocumentID)
			if err != nil {
				assert.True(t, Unrecoverable(err))
			}
		})
	}
}

func TestHandleMessageUsesParsedMessageFromContext(t *testing.T) {
	proc := &fakeProcessor{}
	ctx := WithParsedMessage(context.Background(), queue.Message{DocumentID: "doc-ctx", RequestID: "req-ctx"})

	require.NoError(t, HandleMessage(ctx, proc, "ignored"))
	assert.Equal(t, []string{"doc-ctx"}, proc.processed)
	assert.Equal(t, "req-ctx", proc.requestID)
}

func TestHandleMessageWrapsProcessErrors(t *testing.T) {
	boom := errors.New("db down")
	proc := &fakeProcessor{err: boom}

	err := HandleMessage(context.Background(), proc, `{"documentId":"doc-1"}`)

	var procErr ErrProcess
	require.ErrorAs(t, err, &procErr)
	assert.Equal(t, "doc-1", procErr.DocumentID)
	assert.ErrorIs(t, err, boom)
	assert.False(t, Unrecoverable(err))
}

func TestHandleMessageWithoutProcessor(t *testing.T) {
	assert.Error(t, HandleMessage(context.Background(), nil, `{"documentId":"doc-1"}`))
}

func TestAsynqHandler(t *testing.T) {
	payload, err := queue.EncodeMessage(queue.Message{DocumentID: "doc-7", RequestID: "req-7"})
	require.NoError(t, err)

	t.Run("success", func(t *testing.T) {
		proc := &fakeProcessor{}
		err := NewAsynqHandler(proc)(context.Background(), asynq.NewTask(queue.TaskProcessDocument, payload))
		require.NoError(t, err)
		assert.Equal(t, []string{"doc-7"}, proc.processed)
	})

	t.Run("transient failure is retried", func(t *testing.T) {
		proc := &fakeProcessor{err: errors.New("db down")}
		err := NewAsynqHandler(proc)(context.Background(), asynq.NewTask(queue.TaskProcessDocument, payload))
		require.Error(t, err)
		assert.NotErrorIs(t, err, asynq.SkipRetry)
	})

	t.Run("missing document skips retry", func(t *testing.T) {
		proc := &fakeProcessor{err: documents.ErrNotFound}
		err := NewAsynqHandler(proc)(context.Background(), asynq.NewTask(queue.TaskProcessDocument, payload))
		assert.ErrorIs(t, err, asynq.SkipRetry)
	})

	t.Run("bad payload skips retry", func(t *testing.T) {
		proc := &fakeProcessor{}
		err := NewAsynqHandler(proc)(context.Background(), asynq.NewTask(queue.TaskProcessDocument, []byte("{")))
		assert.ErrorIs(t, err, asynq.SkipRetry)
		assert.Empty(t, proc.processed)
	})
}
