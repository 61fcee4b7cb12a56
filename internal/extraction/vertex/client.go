package vertex

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"cloud.google.com/go/vertexai/genai"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"fleetdocs-backend/internal/extraction"
)

const (
	defaultModel = "gemini-1.5-pro"
	systemPrompt = "You read photos of vehicle fleet documents (fuel receipts, insurance policies, ITV reports, tachograph calibrations, workshop and tire invoices) and answer with a single JSON object."
)

// generator is the part of *genai.GenerativeModel the client uses.
type generator interface {
	GenerateContent(ctx context.Context, parts ...genai.Part) (*genai.GenerateContentResponse, error)
}

// Client implements extraction.Extractor on Vertex AI Gemini.
type Client struct {
	model generator
	base  *genai.Client
}

// NewClient creates a Gemini model configured for deterministic JSON output.
func NewClient(ctx context.Context, projectID, region, model string) (*Client, error) {
	if projectID == "" || region == "" {
		return nil, fmt.Errorf("vertex: project id and region are required")
	}
	if strings.TrimSpace(model) == "" {
		model = defaultModel
	}

	base, err := genai.NewClient(ctx, projectID, region)
	if err != nil {
		return nil, fmt.Errorf("genai.NewClient: %w", err)
	}

	gm := base.GenerativeModel(model)
	gm.SystemInstruction = &genai.Content{
		Parts: []genai.Part{genai.Text(systemPrompt)},
	}
	gm.GenerationConfig = genai.GenerationConfig{
		ResponseMIMEType: "application/json",
		Temperature:      genai.Ptr[float32](0),
		MaxOutputTokens:  genai.Ptr[int32](1024),
	}
	return &Client{model: gm, base: base}, nil
}

// Close releases the underlying gRPC connection.
func (c *Client) Close() error {
	if c.base != nil {
		return c.base.Close()
	}
	return nil
}

func (c *Client) Extract(ctx context.Context, req extraction.Request) (extraction.Payload, error) {
	if len(req.Image) == 0 {
		return nil, fmt.Errorf("%w: empty image", extraction.ErrUnsupportedContent)
	}
	mimeType := req.MIMEType
	if mimeType == "" {
		mimeType = http.DetectContentType(req.Image)
	}

	// genai.ImageData takes the subtype ("jpeg"), not the full MIME type.
	format := strings.TrimPrefix(mimeType, "image/")
	resp, err := c.model.GenerateContent(ctx, genai.ImageData(format, req.Image), genai.Text(extraction.BuildPrompt(req.DocumentType)))
	if err != nil {
		return nil, classifyError(err)
	}
	return extraction.Decode(responseText(resp))
}

func responseText(resp *genai.GenerateContentResponse) string {
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return ""
	}
	var b strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if txt, ok := part.(genai.Text); ok {
			b.WriteString(string(txt))
		}
	}
	return b.String()
}

func classifyError(err error) error {
	var blocked *genai.BlockedError
	if errors.As(err, &blocked) {
		return fmt.Errorf("%w: %v", extraction.ErrUnsupportedContent, err)
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: vertex request timeout: %v", extraction.ErrTransientService, err)
	}
	if errors.Is(err, context.Canceled) {
		return fmt.Errorf("%w: vertex request cancelled: %w", extraction.ErrTransientService, err)
	}
	switch status.Code(err) {
	case codes.InvalidArgument:
		return fmt.Errorf("%w: vertex rejected input: %v", extraction.ErrUnsupportedContent, err)
	case codes.Unauthenticated, codes.PermissionDenied, codes.NotFound, codes.FailedPrecondition, codes.Unimplemented:
		return fmt.Errorf("%w: vertex: %v", extraction.ErrProviderRejected, err)
	default:
		// Unavailable, ResourceExhausted, Aborted, Internal and errors that never reached the service.
		return fmt.Errorf("%w: vertex: %v", extraction.ErrTransientService, err)
	}
}

var _ extraction.Extractor = (*Client)(nil)
