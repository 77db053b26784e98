package providers

import (
	"bytes"
	"context"
	"fmt"

	prerecorded "github.com/deepgram/deepgram-go-sdk/v3/pkg/client/prerecorded"
	interfaces "github.com/deepgram/deepgram-go-sdk/v3/pkg/client/interfaces/v1"

	"github.com/rapidaai/mesh/internal/transcription"
)

// DeepgramProvider transcribes PCM segments via Deepgram's prerecorded
// (batch) REST API. Option names (Model, Language, Encoding, SampleRate,
// Punctuate, SmartFormat) are grounded on the teacher's
// SpeechToTextOptions shape used for its streaming client.
type DeepgramProvider struct {
	client *prerecorded.Client
	model  string
}

// NewDeepgramProvider constructs a DeepgramProvider. model defaults to
// "nova-2" when empty.
func NewDeepgramProvider(apiKey, model string) (*DeepgramProvider, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("deepgram provider: apiKey must not be empty")
	}
	if model == "" {
		model = "nova-2"
	}
	client, err := prerecorded.NewWithDefaults(apiKey)
	if err != nil {
		return nil, fmt.Errorf("deepgram provider: client init: %w", err)
	}
	return &DeepgramProvider{client: client, model: model}, nil
}

// Transcribe implements transcription.Provider by submitting raw 16-bit
// mono PCM directly, since Deepgram accepts linear16 without a WAV
// container when Encoding/SampleRate are set explicitly.
func (p *DeepgramProvider) Transcribe(ctx context.Context, pcm []byte, sampleRate int, language string) (*transcription.Result, error) {
	options := interfaces.PreRecordedTranscriptionOptions{
		Model:       p.model,
		Language:    language,
		Encoding:    "linear16",
		SampleRate:  sampleRate,
		Channels:    1,
		Punctuate:   true,
		SmartFormat: true,
	}
	if options.Language == "" {
		options.Language = "en-US"
	}

	resp, err := p.client.FromStream(ctx, bytes.NewReader(pcm), options)
	if err != nil {
		return nil, fmt.Errorf("deepgram provider: transcribe: %w", err)
	}

	channels := resp.Results.Channels
	if len(channels) == 0 || len(channels[0].Alternatives) == 0 {
		return &transcription.Result{Language: language}, nil
	}
	alt := channels[0].Alternatives[0]

	confidence := alt.Confidence
	return &transcription.Result{
		Text:       alt.Transcript,
		Language:   language,
		Confidence: &confidence,
	}, nil
}
