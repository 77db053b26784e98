package providers

import (
	"context"
	"fmt"

	"github.com/rapidaai/mesh/internal/config"
	"github.com/rapidaai/mesh/internal/transcription"
)

// New builds the configured provider by name (openai, deepgram, google),
// per spec.md §6's TRANSCRIPTION__PROVIDER env var.
func New(ctx context.Context, cfg config.TranscriptionConfig) (transcription.Provider, error) {
	switch cfg.Provider {
	case "openai", "":
		return NewOpenAIProvider(cfg.OpenAIAPIKey, cfg.WhisperModelName)
	case "deepgram":
		return NewDeepgramProvider(cfg.DeepgramAPIKey, cfg.DeepgramModelName)
	case "google":
		return NewGoogleProvider(ctx, cfg.GoogleCredentialsFile)
	default:
		return nil, fmt.Errorf("transcription: unknown provider %q", cfg.Provider)
	}
}
