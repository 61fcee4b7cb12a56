package extraction

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Decode parses model text into a payload. Markdown code fences are stripped first.
// A doc_type of "other" is reported as ErrUnsupportedContent.
func Decode(text string) (Payload, error) {
	cleaned := StripFences(text)
	if cleaned == "" {
		return nil, fmt.Errorf("%w: empty content", ErrInvalidResponse)
	}

	var decoded any
	if err := json.Unmarshal([]byte(cleaned), &decoded); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidResponse, err)
	}
	obj, ok := decoded.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("%w: expected a JSON object", ErrInvalidResponse)
	}

	payload := Payload(obj)
	if payload.DocType() == "other" {
		return payload, fmt.Errorf("%w: model classified the image as other", ErrUnsupportedContent)
	}
	return payload, nil
}

// StripFences removes ``` and ```json fence lines around a response.
func StripFences(text string) string {
	text = strings.TrimSpace(text)
	if !strings.HasPrefix(text, "```") {
		return text
	}
	lines := strings.Split(text, "\n")
	kept := lines[:0]
	for _, line := range lines {
		trimmed := strings.TrimSpace(line)
		if strings.HasPrefix(trimmed, "```") || trimmed == "json" {
			continue
		}
		kept = append(kept, line)
	}
	return strings.TrimSpace(strings.Join(kept, "\n"))
}
