// Package transcription implements the Mesh's C4 Transcription Pool: a
// bounded-concurrency worker pool over a pluggable Provider, grounded on
// the teacher's STT provider option pattern
// (internal/transformer/assembly-ai, internal/transformer/deepgram)
// generalized to a single Transcribe method per spec.md §9's "Dynamic
// provider selection" note.
package transcription

import "context"

// Result is the §4.4 transcription outcome for one PCM segment.
type Result struct {
	Text     string
	Duration float64
	Language string
	// Confidence is the provider's own confidence score when its
	// response carries one (Deepgram, Google); nil otherwise.
	Confidence *float64
}

// Provider converts one segment of 16-bit mono PCM into a Result. A nil
// result (with a non-nil error) means the pipeline
// continues without a transcript for that segment, per spec.md §7.
type Provider interface {
	Transcribe(ctx context.Context, pcm []byte, sampleRate int, language string) (*Result, error)
}
