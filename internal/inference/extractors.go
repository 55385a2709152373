// Package inference implements the face embedding and text recognition
// backends used by the feature cache.
package inference

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/kozaktomas/photolink/internal/config"
	"github.com/kozaktomas/photolink/internal/constants"
	"github.com/kozaktomas/photolink/internal/features"
)

// NamedTextExtractor is a text extractor that reports its backend name.
type NamedTextExtractor interface {
	features.TextExtractor
	Name() string
}

var (
	errMissingOpenAIToken = errors.New("OPENAI_TOKEN is required for the openai text provider")
	errMissingGeminiKey   = errors.New("GEMINI_API_KEY is required for the gemini text provider")
)

// NewTextExtractor builds the text extractor selected by TEXT_PROVIDER.
func NewTextExtractor(ctx context.Context, cfg *config.Config, logger *slog.Logger) (NamedTextExtractor, error) {
	switch cfg.Text.Provider {
	case constants.TextTesseract, "":
		return NewTesseractTextExtractor(cfg.Tesseract.Binary, cfg.Tesseract.Lang, cfg.Tesseract.PSM, nil, logger), nil
	case constants.TextOpenAI:
		if cfg.OpenAI.Token == "" {
			return nil, errMissingOpenAIToken
		}
		return NewOpenAITextExtractor(cfg.OpenAI.Token), nil
	case constants.TextGemini:
		if cfg.Gemini.APIKey == "" {
			return nil, errMissingGeminiKey
		}
		return NewGeminiTextExtractor(ctx, cfg.Gemini.APIKey)
	case constants.TextOllama:
		return NewOllamaTextExtractor(cfg.Ollama.URL, cfg.Ollama.Model), nil
	default:
		return nil, fmt.Errorf("unknown text provider %q", cfg.Text.Provider)
	}
}

// NewFaceExtractor builds the face embedding client.
func NewFaceExtractor(cfg *config.Config) *EmbeddingClient {
	return NewEmbeddingClient(cfg.Embedding.URL, constants.MinFaceDetectionScore)
}
