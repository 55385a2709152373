package inference

import (
	_ "embed"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/kozaktomas/photolink/internal/features"
)

//go:embed prompts/text_detection.txt
var textDetectionPrompt string

// maxParseAttempts bounds the JSON repair loop of the vision-model extractors.
const maxParseAttempts = 3

type textDetectionResponse struct {
	Texts []struct {
		Text       string   `json:"text"`
		Confidence *float64 `json:"confidence"`
	} `json:"texts"`
}

// parseTextDetections decodes a vision model answer. A missing confidence counts as 1.
func parseTextDetections(content string) ([]features.DetectedText, error) {
	var resp textDetectionResponse
	if err := json.Unmarshal([]byte(extractJSON(content)), &resp); err != nil {
		return nil, fmt.Errorf("decode text detections: %w", err)
	}

	out := make([]features.DetectedText, 0, len(resp.Texts))
	for _, t := range resp.Texts {
		text := strings.TrimSpace(t.Text)
		if text == "" {
			continue
		}
		conf := 1.0
		if t.Confidence != nil {
			conf = min(1, max(0, *t.Confidence))
		}
		out = append(out, features.DetectedText{Text: text, Confidence: conf})
	}
	return out, nil
}

// repairMessage asks the model to fix its previous answer.
func repairMessage(err error) string {
	return fmt.Sprintf("JSON parse error: %v. Please fix the JSON and try again. Output ONLY valid JSON, no other text.", err)
}

// extractJSON attempts to extract JSON from a response that may contain extra text
func extractJSON(content string) string {
	start := strings.Index(content, "{")
	if start == -1 {
		return content
	}

	depth := 0
	for i := start; i < len(content); i++ {
		switch content[i] {
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return content[start : i+1]
			}
		}
	}

	return content[start:]
}
