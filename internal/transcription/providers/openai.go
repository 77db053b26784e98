// Package providers implements the C4 transcription.Provider backends
// named in spec.md §4.4: a local-model provider via OpenAI's Whisper
// endpoint, Deepgram's prerecorded API, and Google Cloud Speech-to-Text.
package providers

import (
	"bytes"
	"context"
	"fmt"

	oai "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"github.com/rapidaai/mesh/internal/transcription"
)

// OpenAIProvider transcribes PCM segments via the OpenAI Whisper
// transcription endpoint, grounded on the teacher's client-construction
// pattern (option.WithAPIKey, oai.NewClient(reqOpts...)).
type OpenAIProvider struct {
	client oai.Client
	model  string
}

// NewOpenAIProvider constructs an OpenAIProvider. model defaults to
// "whisper-1" when empty.
func NewOpenAIProvider(apiKey, model string) (*OpenAIProvider, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("openai provider: apiKey must not be empty")
	}
	if model == "" {
		model = "whisper-1"
	}
	client := oai.NewClient(option.WithAPIKey(apiKey))
	return &OpenAIProvider{client: client, model: model}, nil
}

// Transcribe implements transcription.Provider by wrapping the raw PCM in
// a WAV container and submitting it to the Whisper endpoint.
func (p *OpenAIProvider) Transcribe(ctx context.Context, pcm []byte, sampleRate int, language string) (*transcription.Result, error) {
	wav := transcription.WrapWAV(pcm, sampleRate)

	params := oai.AudioTranscriptionNewParams{
		Model: oai.AudioModel(p.model),
		File:  bytes.NewReader(wav),
	}
	if language != "" {
		params.Language = oai.String(language)
	}

	resp, err := p.client.Audio.Transcriptions.New(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("openai provider: transcribe: %w", err)
	}

	result := &transcription.Result{
		Text:     resp.Text,
		Language: language,
	}
	if resp.Duration > 0 {
		result.Duration = resp.Duration
	}
	// The default json response format carries no per-segment log-probs,
	// so Confidence stays nil here; verbose_json would let us derive one
	// via exp(avg_logprob). The Deepgram and Google providers instead copy
	// their APIs' native confidence field.
	return result, nil
}
