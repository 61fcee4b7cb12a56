package extraction

import (
	"context"
	"errors"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeStripsFences(t *testing.T) {
	payload, err := Decode("```json\n{\"doc_type\":\"fuel_ticket\",\"liters\":\"45,3\"}\n```")
	require.NoError(t, err)
	assert.Equal(t, "fuel_ticket", payload.DocType())
	assert.Equal(t, "45,3", payload["liters"])
}

func TestDecodeRejectsNonObjects(t *testing.T) {
	for _, in := range []string{"", "[1,2]", "not json", "```\n\n```"} {
		_, err := Decode(in)
		assert.ErrorIs(t, err, ErrInvalidResponse, "input %q", in)
	}
}

func TestDecodeOtherIsUnsupported(t *testing.T) {
	payload, err := Decode(`{"doc_type":"Other","confidence":0.1}`)
	require.ErrorIs(t, err, ErrUnsupportedContent)
	assert.NotNil(t, payload, "payload is kept for auditing")
}

func TestBuildPromptIncludesTypeFields(t *testing.T) {
	insurance := BuildPrompt("insurance_policy")
	assert.Contains(t, insurance, `"policy_number"`)
	assert.NotContains(t, insurance, `"tire_count"`)

	classify := BuildPrompt("")
	assert.Contains(t, classify, `"policy_number"`)
	assert.Contains(t, classify, `"tire_count"`)
	assert.Equal(t, 1, strings.Count(classify, `"invoice_number"`))
}

func TestWithTimeoutMapsDeadlineToTransient(t *testing.T) {
	slow := Func(func(ctx context.Context, req Request) (Payload, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	})
	_, err := WithTimeout(slow, 10*time.Millisecond).Extract(context.Background(), Request{Image: []byte("x")})
	require.ErrorIs(t, err, ErrTransientService)
	assert.Contains(t, err.Error(), "timeout")
}

func TestWithTimeoutReportsCallerCancellationAsTransient(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	blocked := Func(func(ctx context.Context, req Request) (Payload, error) {
		return nil, ctx.Err()
	})
	_, err := WithTimeout(blocked, time.Second).Extract(ctx, Request{})
	assert.ErrorIs(t, err, ErrTransientService)
	assert.ErrorIs(t, err, context.Canceled)
	assert.NotContains(t, err.Error(), "timeout after")
}

func TestTypedKeepsFailuresInsideTaxonomy(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want error
	}{
		{name: "cancelled", err: context.Canceled, want: ErrTransientService},
		{name: "untyped", err: errors.New("boom"), want: ErrTransientService},
		{name: "transient", err: ErrTransientService, want: ErrTransientService},
		{name: "invalid", err: ErrInvalidResponse, want: ErrInvalidResponse},
		{name: "rejected", err: ErrProviderRejected, want: ErrUnsupportedContent},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.ErrorIs(t, Typed(tt.err), tt.want)
		})
	}
	assert.NoError(t, Typed(nil))
	assert.Same(t, ErrInvalidResponse, Typed(ErrInvalidResponse))
}

func TestInstrumentTypesRawErrors(t *testing.T) {
	raw := Func(func(ctx context.Context, req Request) (Payload, error) {
		return nil, errors.New("socket closed")
	})
	_, err := Instrument(raw, "test").Extract(context.Background(), Request{})
	assert.ErrorIs(t, err, ErrTransientService)
}

func TestWithRetryRetriesTransientOnly(t *testing.T) {
	var calls atomic.Int32
	flaky := Func(func(ctx context.Context, req Request) (Payload, error) {
		if calls.Add(1) == 1 {
			return nil, ErrTransientService
		}
		return Payload{"doc_type": "itv"}, nil
	})
	payload, err := WithRetry(flaky, 2, time.Millisecond).Extract(context.Background(), Request{})
	require.NoError(t, err)
	assert.Equal(t, "itv", payload.DocType())
	assert.EqualValues(t, 2, calls.Load())

	calls.Store(0)
	invalid := Func(func(ctx context.Context, req Request) (Payload, error) {
		calls.Add(1)
		return nil, ErrInvalidResponse
	})
	_, err = WithRetry(invalid, 3, time.Millisecond).Extract(context.Background(), Request{})
	assert.ErrorIs(t, err, ErrInvalidResponse)
	assert.EqualValues(t, 1, calls.Load())
}

func TestIsTransient(t *testing.T) {
	assert.True(t, IsTransient(ErrTransientService))
	assert.True(t, IsTransient(errors.New("read: connection reset by peer")))
	assert.False(t, IsTransient(ErrUnsupportedContent))
	assert.False(t, IsTransient(ErrProviderRejected))
	assert.False(t, IsTransient(nil))
}

func TestStubReturnsCopies(t *testing.T) {
	stub := NewDevStub()
	first, err := stub.Extract(context.Background(), Request{Image: []byte("x"), DocumentType: "fuel_ticket"})
	require.NoError(t, err)
	first["fuel"].(map[string]any)["liters"] = "0"

	second, err := stub.Extract(context.Background(), Request{Image: []byte("x"), DocumentType: "fuel_ticket"})
	require.NoError(t, err)
	assert.Equal(t, "45,3", second["fuel"].(map[string]any)["liters"])

	_, err = stub.Extract(context.Background(), Request{Image: []byte("x")})
	assert.ErrorIs(t, err, ErrUnsupportedContent)
}
