package openai

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"fleetdocs-backend/internal/extraction"
	"fleetdocs-backend/internal/shared/telemetry"
)

const (
	apiURL       = "https://api.openai.com/v1/chat/completions"
	defaultModel = "gpt-4o"
	maxTokens    = 1024
)

// Client implements extraction.Extractor using OpenAI Chat Completions with image input.
type Client struct {
	apiKey     string
	model      string
	endpoint   string
	httpClient *http.Client
}

// NewClient constructs a new OpenAI vision client. The HTTP timeout is a backstop; callers
// bound each call with extraction.WithTimeout.
func NewClient(apiKey, model string, timeout time.Duration) (*Client, error) {
	if strings.TrimSpace(apiKey) == "" {
		return nil, fmt.Errorf("OPENAI_API_KEY is required")
	}
	if strings.TrimSpace(model) == "" {
		model = defaultModel
	}
	if timeout <= 0 {
		timeout = 120 * time.Second
	}
	return &Client{
		apiKey:     apiKey,
		model:      model,
		endpoint:   apiURL,
		httpClient: &http.Client{Timeout: timeout + 5*time.Second},
	}, nil
}

type contentPart struct {
	Type     string    `json:"type"`
	Text     string    `json:"text,omitempty"`
	ImageURL *imageURL `json:"image_url,omitempty"`
}

type imageURL struct {
	URL    string `json:"url"`
	Detail string `json:"detail,omitempty"`
}

type chatMessage struct {
	Role    string        `json:"role"`
	Content []contentPart `json:"content"`
}

type chatRequest struct {
	Model          string          `json:"model"`
	Messages       []chatMessage   `json:"messages"`
	MaxTokens      int             `json:"max_tokens"`
	Temperature    *float32        `json:"temperature,omitempty"`
	ResponseFormat *responseFormat `json:"response_format,omitempty"`
}

type responseFormat struct {
	Type string `json:"type"`
}

type chatResponse struct {
	ID      string `json:"id"`
	Model   string `json:"model"`
	Choices []struct {
		FinishReason string `json:"finish_reason"`
		Message      struct {
			Content string  `json:"content"`
			Refusal *string `json:"refusal"`
		} `json:"message"`
	} `json:"choices"`
	Usage *struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
		TotalTokens      int `json:"total_tokens"`
	} `json:"usage,omitempty"`
	Error *struct {
		Message string `json:"message"`
		Type    string `json:"type"`
		Code    any    `json:"code"`
	} `json:"error,omitempty"`
}

// Extract sends the image as a data URL together with the type-specific prompt.
func (c *Client) Extract(ctx context.Context, req extraction.Request) (extraction.Payload, error) {
	if len(req.Image) == 0 {
		return nil, fmt.Errorf("%w: empty image", extraction.ErrUnsupportedContent)
	}
	mimeType := req.MIMEType
	if mimeType == "" {
		mimeType = http.DetectContentType(req.Image)
	}

	temp := float32(0)
	body := chatRequest{
		Model: c.model,
		Messages: []chatMessage{{
			Role: "user",
			Content: []contentPart{
				{Type: "text", Text: extraction.BuildPrompt(req.DocumentType)},
				{Type: "image_url", ImageURL: &imageURL{
					URL:    "data:" + mimeType + ";base64," + base64.StdEncoding.EncodeToString(req.Image),
					Detail: "high",
				}},
			},
		}},
		MaxTokens:      maxTokens,
		Temperature:    &temp,
		ResponseFormat: &responseFormat{Type: "json_object"},
	}
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("%w: encode openai request: %v", extraction.ErrProviderRejected, err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("%w: build openai request: %v", extraction.ErrProviderRejected, err)
	}
	httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || strings.Contains(err.Error(), "Client.Timeout") {
			return nil, fmt.Errorf("%w: openai request timeout: %v", extraction.ErrTransientService, err)
		}
		if errors.Is(err, context.Canceled) {
			return nil, fmt.Errorf("%w: openai request cancelled: %w", extraction.ErrTransientService, err)
		}
		return nil, fmt.Errorf("%w: openai request: %v", extraction.ErrTransientService, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: read openai response: %v", extraction.ErrTransientService, err)
	}

	if err := classifyStatus(resp.StatusCode, raw); err != nil {
		return nil, err
	}

	var parsed chatResponse
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return nil, fmt.Errorf("%w: openai response parse: %v", extraction.ErrInvalidResponse, err)
	}
	if parsed.Error != nil {
		return nil, fmt.Errorf("%w: openai error: %s (%s)", extraction.ErrInvalidResponse, parsed.Error.Message, parsed.Error.Type)
	}
	if len(parsed.Choices) == 0 {
		return nil, fmt.Errorf("%w: openai response missing choices", extraction.ErrInvalidResponse)
	}
	logUsage(c.model, parsed)

	choice := parsed.Choices[0]
	if choice.Message.Refusal != nil && strings.TrimSpace(*choice.Message.Refusal) != "" {
		return nil, fmt.Errorf("%w: model refused: %s", extraction.ErrUnsupportedContent, *choice.Message.Refusal)
	}
	if choice.FinishReason == "content_filter" {
		return nil, fmt.Errorf("%w: content filtered", extraction.ErrUnsupportedContent)
	}
	if choice.FinishReason == "length" {
		return nil, fmt.Errorf("%w: response truncated", extraction.ErrInvalidResponse)
	}
	return extraction.Decode(choice.Message.Content)
}

func classifyStatus(status int, body []byte) error {
	switch {
	case status >= 200 && status < 300:
		return nil
	case status == http.StatusTooManyRequests || status >= 500:
		return fmt.Errorf("%w: openai http status %d", extraction.ErrTransientService, status)
	case status == http.StatusRequestTimeout:
		return fmt.Errorf("%w: openai http status %d", extraction.ErrTransientService, status)
	case status == http.StatusBadRequest && bytes.Contains(bytes.ToLower(body), []byte("image")):
		return fmt.Errorf("%w: openai rejected image: %s", extraction.ErrUnsupportedContent, snippet(body))
	case status >= 400:
		// Bad key, missing model access, unknown model or a malformed request.
		return fmt.Errorf("%w: openai http status %d: %s", extraction.ErrProviderRejected, status, snippet(body))
	default:
		return fmt.Errorf("%w: openai unexpected http status %d", extraction.ErrInvalidResponse, status)
	}
}

func snippet(body []byte) string {
	s := strings.Join(strings.Fields(string(body)), " ")
	if len(s) > 200 {
		return s[:200]
	}
	return s
}

func logUsage(model string, resp chatResponse) {
	fields := map[string]any{"model": model, "response_id": resp.ID}
	if resp.Usage != nil {
		fields["prompt_tokens"] = resp.Usage.PromptTokens
		fields["completion_tokens"] = resp.Usage.CompletionTokens
		fields["total_tokens"] = resp.Usage.TotalTokens
	}
	telemetry.Info("extraction.usage", fields)
}

var _ extraction.Extractor = (*Client)(nil)
