package inference

import (
	"context"
	"errors"
	"fmt"

	"google.golang.org/genai"

	"github.com/kozaktomas/photolink/internal/constants"
	"github.com/kozaktomas/photolink/internal/features"
)

const geminiModel = "gemini-2.5-flash"

// GeminiTextExtractor reads text from images with a Gemini model.
type GeminiTextExtractor struct {
	client *genai.Client
}

func NewGeminiTextExtractor(ctx context.Context, apiKey string) (*GeminiTextExtractor, error) {
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini client: %w", err)
	}
	return &GeminiTextExtractor{client: client}, nil
}

func (p *GeminiTextExtractor) Name() string {
	return geminiModel
}

func (p *GeminiTextExtractor) ExtractText(ctx context.Context, imageData []byte) ([]features.DetectedText, error) {
	resizedData, err := ResizeImage(imageData, constants.MaxImageSize)
	if err != nil {
		return nil, fmt.Errorf("failed to resize image: %w", err)
	}

	contents := []*genai.Content{
		{
			Role: "user",
			Parts: []*genai.Part{
				{Text: textDetectionPrompt},
				{InlineData: &genai.Blob{Data: resizedData, MIMEType: "image/jpeg"}},
			},
		},
	}

	config := &genai.GenerateContentConfig{
		ResponseMIMEType: "application/json",
	}

	var lastError error
	var lastResponse string

	for range maxParseAttempts {
		result, err := p.client.Models.GenerateContent(ctx, geminiModel, contents, config)
		if err != nil {
			return nil, fmt.Errorf("gemini API error: %w", err)
		}

		content := result.Text()
		if content == "" {
			return nil, errors.New("no response from Gemini")
		}
		lastResponse = content

		detections, err := parseTextDetections(content)
		if err != nil {
			lastError = err
			contents = append(contents,
				&genai.Content{Role: "model", Parts: []*genai.Part{{Text: content}}},
				&genai.Content{Role: "user", Parts: []*genai.Part{{Text: repairMessage(err)}}},
			)
			continue
		}

		return detections, nil
	}

	return nil, fmt.Errorf("failed to parse text detections after %d attempts: %w (last response: %s)", maxParseAttempts, lastError, lastResponse)
}
