// Package vad implements the Mesh's C3 VAD Segmenter: a fixed-window
// Idle/Speaking state machine over 16-bit mono PCM, transcribed from
// original_source/backend/speech_to_text/src/speech_to_text/utils/vad.py
// (SileroVAD.process_audio_stream) and wired to the real
// streamer45/silero-vad-go model the way
// longregen-alicia/internal/adapters/livekit/vad.go uses it.
package vad

import (
	"encoding/binary"

	"github.com/rapidaai/mesh/internal/commons"
)

// minSpeechMs is the original's hardcoded floor (vad.py's
// min_speech_duration_ms = 100), not exposed as configuration there
// either — carried forward unchanged.
const minSpeechMs = 100

type state int

const (
	stateIdle state = iota
	stateSpeaking
)

// SpeechDetector reports whether one analysis window contains speech.
// Backed by streamer45/silero-vad-go in production; a fake in tests.
type SpeechDetector interface {
	DetectSpeech(window []float32) (bool, error)
}

// Segment is one emitted speech buffer. Per §4.3 only finals are
// produced by the segmenter itself.
type Segment struct {
	PCM     []byte
	IsFinal bool
}

// Segmenter is one instance per WebSocket session (stateful, not safe
// for concurrent use from multiple goroutines).
type Segmenter struct {
	detector     SpeechDetector
	logger       commons.Logger
	sampleRate   int
	windowBytes  int // windowSamples * 2 (int16 mono)
	windowMs     float64
	minSilenceMs float64

	raw   []byte // incoming bytes not yet grouped into a full window
	state state
	speechBuf []byte
	silenceMs float64
}

// NewSegmenter builds a Segmenter. windowSamples is the fixed analysis
// window W from §4.3 (e.g. 512 at 16kHz).
func NewSegmenter(detector SpeechDetector, sampleRate, windowSamples, minSilenceDurationMs int, logger commons.Logger) *Segmenter {
	windowBytes := windowSamples * 2
	return &Segmenter{
		detector:     detector,
		logger:       logger,
		sampleRate:   sampleRate,
		windowBytes:  windowBytes,
		windowMs:     float64(windowSamples) / float64(sampleRate) * 1000,
		minSilenceMs: float64(minSilenceDurationMs),
		state:        stateIdle,
	}
}

// ProcessChunk feeds newly-arrived bytes into the segmenter and returns
// zero or more finalized segments. An odd trailing byte in the combined
// buffer is trimmed per §4.3.
func (s *Segmenter) ProcessChunk(chunk []byte) ([]Segment, error) {
	s.raw = append(s.raw, chunk...)
	if len(s.raw)%2 == 1 {
		s.logger.Warnf("vad: trimming odd trailing byte from input stream")
		s.raw = s.raw[:len(s.raw)-1]
	}

	var out []Segment
	for len(s.raw) >= s.windowBytes {
		window := s.raw[:s.windowBytes]
		s.raw = s.raw[s.windowBytes:]

		seg, emitted, err := s.processWindow(window)
		if err != nil {
			return out, err
		}
		if emitted {
			out = append(out, seg)
		}
	}
	return out, nil
}

func (s *Segmenter) processWindow(window []byte) (Segment, bool, error) {
	samples := pcm16ToFloat32(window)
	speech, err := s.detector.DetectSpeech(samples)
	if err != nil {
		return Segment{}, false, err
	}

	if speech {
		if s.state == stateIdle {
			s.state = stateSpeaking
			s.speechBuf = append([]byte(nil), window...)
		} else {
			s.speechBuf = append(s.speechBuf, window...)
		}
		s.silenceMs = 0
		return Segment{}, false, nil
	}

	// Silence.
	if s.state != stateSpeaking {
		return Segment{}, false, nil
	}

	s.speechBuf = append(s.speechBuf, window...)
	s.silenceMs += s.windowMs

	if s.silenceMs < s.minSilenceMs {
		return Segment{}, false, nil
	}

	seg, ok := s.finalizeBuffer()
	s.resetToIdle()
	return seg, ok, nil
}

// InProgressSpeech returns the speech buffer accumulated so far while
// stateSpeaking, for callers that want to transcribe partial results
// before a final boundary is reached. It does not consume or reset the
// buffer.
func (s *Segmenter) InProgressSpeech() ([]byte, bool) {
	if s.state != stateSpeaking {
		return nil, false
	}
	return s.speechBuf, true
}

// Flush finalizes any in-progress speech buffer at end-of-stream, using
// the same minimum-duration filter as a silence-triggered final.
func (s *Segmenter) Flush() (Segment, bool) {
	if s.state != stateSpeaking {
		return Segment{}, false
	}
	seg, ok := s.finalizeBuffer()
	s.resetToIdle()
	return seg, ok
}

func (s *Segmenter) finalizeBuffer() (Segment, bool) {
	durationMs := s.bufferDurationMs()
	if durationMs < minSpeechMs {
		return Segment{}, false
	}
	return Segment{PCM: s.speechBuf, IsFinal: true}, true
}

func (s *Segmenter) bufferDurationMs() float64 {
	samples := len(s.speechBuf) / 2
	return float64(samples) / float64(s.sampleRate) * 1000
}

func (s *Segmenter) resetToIdle() {
	s.state = stateIdle
	s.speechBuf = nil
	s.silenceMs = 0
}

func pcm16ToFloat32(pcm []byte) []float32 {
	n := len(pcm) / 2
	out := make([]float32, n)
	for i := 0; i < n; i++ {
		v := int16(binary.LittleEndian.Uint16(pcm[i*2 : i*2+2]))
		out[i] = float32(v) / 32767.0
	}
	return out
}
