package providers

import (
	"context"
	"fmt"

	speech "cloud.google.com/go/speech/apiv1"
	speechpb "cloud.google.com/go/speech/apiv1/speechpb"
	"google.golang.org/api/option"

	"github.com/rapidaai/mesh/internal/transcription"
)

// GoogleProvider transcribes PCM segments via Google Cloud's synchronous
// Speech-to-Text Recognize RPC. It is offered as the third pluggable
// transcription.Provider per spec.md §4.4's "provider is selected
// dynamically" note.
type GoogleProvider struct {
	client *speech.Client
}

// NewGoogleProvider constructs a GoogleProvider from a service-account
// credentials file path.
func NewGoogleProvider(ctx context.Context, credentialsFile string) (*GoogleProvider, error) {
	var opts []option.ClientOption
	if credentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(credentialsFile))
	}
	client, err := speech.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("google provider: client init: %w", err)
	}
	return &GoogleProvider{client: client}, nil
}

// Transcribe implements transcription.Provider by submitting raw 16-bit
// mono linear PCM to the synchronous Recognize endpoint.
func (g *GoogleProvider) Transcribe(ctx context.Context, pcm []byte, sampleRate int, language string) (*transcription.Result, error) {
	if language == "" {
		language = "en-US"
	}

	req := &speechpb.RecognizeRequest{
		Config: &speechpb.RecognitionConfig{
			Encoding:        speechpb.RecognitionConfig_LINEAR16,
			SampleRateHertz: int32(sampleRate),
			LanguageCode:    language,
		},
		Audio: &speechpb.RecognitionAudio{
			AudioSource: &speechpb.RecognitionAudio_Content{Content: pcm},
		},
	}

	resp, err := g.client.Recognize(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("google provider: recognize: %w", err)
	}
	if len(resp.Results) == 0 || len(resp.Results[0].Alternatives) == 0 {
		return &transcription.Result{Language: language}, nil
	}

	alt := resp.Results[0].Alternatives[0]
	confidence := float64(alt.Confidence)
	return &transcription.Result{
		Text:       alt.Transcript,
		Language:   language,
		Confidence: &confidence,
	}, nil
}

// Close releases the underlying gRPC connection.
func (g *GoogleProvider) Close() error {
	return g.client.Close()
}
