package vad

import (
	"fmt"

	"github.com/streamer45/silero-vad-go/speech"
)

// sileroDetector adapts streamer45/silero-vad-go's batch-oriented
// Detector to the Segmenter's per-window SpeechDetector contract: a
// window is treated as containing speech when the model returns at
// least one segment for it. Detect's batch API is driven one window at
// a time rather than over the full stream.
type sileroDetector struct {
	detector *speech.Detector
}

// NewSileroDetector loads the ONNX model at modelPath and configures the
// detector with the Mesh's VAD threshold.
func NewSileroDetector(modelPath string, sampleRate int, threshold float32, minSilenceDurationMs int) (SpeechDetector, error) {
	d, err := speech.NewDetector(speech.DetectorConfig{
		ModelPath:            modelPath,
		SampleRate:           sampleRate,
		Threshold:            threshold,
		MinSilenceDurationMs: minSilenceDurationMs,
	})
	if err != nil {
		return nil, fmt.Errorf("load silero vad model: %w", err)
	}
	return &sileroDetector{detector: d}, nil
}

func (s *sileroDetector) DetectSpeech(window []float32) (bool, error) {
	segments, err := s.detector.Detect(window)
	if err != nil {
		return false, fmt.Errorf("silero detect: %w", err)
	}
	return len(segments) > 0, nil
}
