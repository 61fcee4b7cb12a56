package vertex

import (
	"context"
	"errors"
	"testing"

	"cloud.google.com/go/vertexai/genai"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"fleetdocs-backend/internal/extraction"
)

type fakeGenerator struct {
	resp  *genai.GenerateContentResponse
	err   error
	parts []genai.Part
}

func (f *fakeGenerator) GenerateContent(ctx context.Context, parts ...genai.Part) (*genai.GenerateContentResponse, error) {
	f.parts = parts
	return f.resp, f.err
}

func textResponse(text string) *genai.GenerateContentResponse {
	return &genai.GenerateContentResponse{
		Candidates: []*genai.Candidate{{
			Content: &genai.Content{Parts: []genai.Part{genai.Text(text)}},
		}},
	}
}

func TestExtractDecodesCandidateText(t *testing.T) {
	gen := &fakeGenerator{resp: textResponse(`{"doc_type":"itv","date_due":"15/02/2025"}`)}
	c := &Client{model: gen}

	payload, err := c.Extract(context.Background(), extraction.Request{Image: []byte("img"), MIMEType: "image/png", DocumentType: "itv"})
	require.NoError(t, err)
	assert.Equal(t, "15/02/2025", payload["date_due"])

	require.Len(t, gen.parts, 2)
	img, ok := gen.parts[0].(genai.Blob)
	require.True(t, ok, "first part should be image data")
	assert.Equal(t, "image/png", img.MIMEType)
}

func TestExtractClassifiesErrors(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want error
	}{
		{name: "unavailable", err: status.Error(codes.Unavailable, "down"), want: extraction.ErrTransientService},
		{name: "quota", err: status.Error(codes.ResourceExhausted, "quota"), want: extraction.ErrTransientService},
		{name: "deadline", err: context.DeadlineExceeded, want: extraction.ErrTransientService},
		{name: "bad input", err: status.Error(codes.InvalidArgument, "image"), want: extraction.ErrUnsupportedContent},
		{name: "unauthenticated", err: status.Error(codes.Unauthenticated, "token"), want: extraction.ErrProviderRejected},
		{name: "permission denied", err: status.Error(codes.PermissionDenied, "iam"), want: extraction.ErrProviderRejected},
		{name: "unknown model", err: status.Error(codes.NotFound, "model"), want: extraction.ErrProviderRejected},
		{name: "cancelled", err: context.Canceled, want: extraction.ErrTransientService},
		{name: "plain error", err: errors.New("dial tcp: no route"), want: extraction.ErrTransientService},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := &Client{model: &fakeGenerator{err: tt.err}}
			_, err := c.Extract(context.Background(), extraction.Request{Image: []byte("img"), MIMEType: "image/jpeg"})
			assert.True(t, errors.Is(err, tt.want), "got %v", err)
		})
	}
}

func TestExtractEmptyCandidateIsInvalid(t *testing.T) {
	c := &Client{model: &fakeGenerator{resp: &genai.GenerateContentResponse{}}}
	_, err := c.Extract(context.Background(), extraction.Request{Image: []byte("img"), MIMEType: "image/jpeg"})
	assert.ErrorIs(t, err, extraction.ErrInvalidResponse)
}
