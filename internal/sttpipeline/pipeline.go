// Package sttpipeline implements the Mesh's C5 STT Session Pipeline: one
// instance per WebSocket, wiring ingress bytes through the C3 segmenter
// and C4 transcription pool to partial/final emission and bus
// publication, grounded on the teacher's baseStreamer buffer-accumulate-
// and-flush idiom (internal/channel/webrtc/base_streamer.go) adapted
// from a fixed-byte-threshold buffer to a VAD-segment boundary.
package sttpipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/rapidaai/mesh/internal/bus"
	"github.com/rapidaai/mesh/internal/commons"
	"github.com/rapidaai/mesh/internal/envelope"
	"github.com/rapidaai/mesh/internal/transcription"
	"github.com/rapidaai/mesh/internal/vad"
)

// Emitter writes an outgoing envelope (TranscriptRecord, SlowEnvelope,
// ErrorEnvelope, ...) to the client's WebSocket connection as JSON.
type Emitter func(v interface{}) error

// Pipeline is stateful and owns one session's worth of utterance
// accounting; it is not safe for concurrent use from multiple
// goroutines (mirrors the one-instance-per-connection baseStreamer
// contract it is grounded on).
type Pipeline struct {
	segmenter *vad.Segmenter
	pool      *transcription.Pool
	busClient bus.Client
	emit      Emitter
	logger    commons.Logger

	sessionID       string
	sampleRate      int
	language        string
	partialInterval time.Duration

	currentUtteranceID string
	segmentStartS      float64
	lastPartialAt      time.Time
}

// New builds a Pipeline. partialInterval of zero disables the partial-
// transcript cadence extension described in spec.md §4.5.
func New(segmenter *vad.Segmenter, pool *transcription.Pool, busClient bus.Client, emit Emitter, sessionID string, sampleRate int, language string, partialInterval time.Duration, logger commons.Logger) *Pipeline {
	return &Pipeline{
		segmenter:          segmenter,
		pool:               pool,
		busClient:          busClient,
		emit:               emit,
		logger:             logger,
		sessionID:          sessionID,
		sampleRate:         sampleRate,
		language:           language,
		partialInterval:    partialInterval,
		currentUtteranceID: uuid.NewString(),
	}
}

// IngestAudio feeds one chunk of 16-bit mono PCM from the WebSocket read
// loop into the segmenter, transcribes any finalized segments, and —
// when the partial cadence is enabled — opportunistically transcribes
// the in-progress speech buffer.
func (p *Pipeline) IngestAudio(ctx context.Context, chunk []byte) error {
	segments, err := p.segmenter.ProcessChunk(chunk)
	if err != nil {
		return fmt.Errorf("sttpipeline: segment: %w", err)
	}
	for _, seg := range segments {
		if err := p.handleFinal(ctx, seg); err != nil {
			return err
		}
	}

	if p.partialInterval <= 0 {
		return nil
	}
	if buf, speaking := p.segmenter.InProgressSpeech(); speaking {
		if p.lastPartialAt.IsZero() || time.Since(p.lastPartialAt) >= p.partialInterval {
			if err := p.handlePartial(ctx, buf); err != nil {
				return err
			}
			p.lastPartialAt = time.Now()
		}
	}
	return nil
}

// Close flushes any in-progress speech buffer at end-of-stream as a
// final segment, then releases no further resources of its own (the
// segmenter and pool are owned by the caller).
func (p *Pipeline) Close(ctx context.Context) error {
	seg, ok := p.segmenter.Flush()
	if !ok {
		return nil
	}
	return p.handleFinal(ctx, seg)
}

func (p *Pipeline) handleFinal(ctx context.Context, seg vad.Segment) error {
	p.notifySlowIfSaturated()
	result, err := p.pool.Transcribe(ctx, seg.PCM, p.sampleRate, p.language)
	if err != nil {
		// A transcription failure drops this segment's final but does
		// not tear down the pipeline, per the §7 propagation policy.
		p.logger.Warnf("sttpipeline: final transcription failed: %v", err)
		return nil
	}

	duration := segmentDurationS(seg.PCM, p.sampleRate)
	record := envelope.TranscriptRecord{
		Kind:        envelope.KindFinal,
		SessionID:   p.sessionID,
		UtteranceID: p.currentUtteranceID,
		MsgID:       uuid.NewString(),
		Text:        result.Text,
		TsStart:     p.segmentStartS,
		TsEnd:       p.segmentStartS + duration,
		Confidence:  result.Confidence,
	}

	if err := p.emit(record); err != nil {
		p.logger.Warnf("sttpipeline: emit final failed: %v", err)
	}
	if err := p.publish(ctx, record); err != nil {
		p.logger.Warnf("sttpipeline: publish final failed: %v", err)
	}

	// Rotate per spec.md §4.5: new utterance, ts reset to 0.
	p.currentUtteranceID = uuid.NewString()
	p.segmentStartS = 0
	p.lastPartialAt = time.Time{}
	return nil
}

func (p *Pipeline) handlePartial(ctx context.Context, pcm []byte) error {
	p.notifySlowIfSaturated()
	result, err := p.pool.Transcribe(ctx, pcm, p.sampleRate, p.language)
	if err != nil {
		p.logger.Warnf("sttpipeline: partial transcription failed: %v", err)
		return nil
	}

	// pcm is the segmenter's whole in-progress buffer, not a delta since
	// the last partial (InProgressSpeech doesn't consume it), so unlike
	// handleFinal this must not advance segmentStartS — the buffer's
	// duration would otherwise be double-counted into the eventual
	// final's ts_start.
	record := envelope.TranscriptRecord{
		Kind:        envelope.KindPartial,
		SessionID:   p.sessionID,
		UtteranceID: p.currentUtteranceID,
		MsgID:       uuid.NewString(),
		Text:        result.Text,
		TsStart:     p.segmentStartS,
		Confidence:  result.Confidence,
	}

	if err := p.emit(record); err != nil {
		p.logger.Warnf("sttpipeline: emit partial failed: %v", err)
	}
	return nil
}

// notifySlowIfSaturated emits a `slow` control message when the
// transcription pool's semaphore is fully consumed at the moment a new
// segment arrives, per spec.md §4.4's backpressure signal.
func (p *Pipeline) notifySlowIfSaturated() {
	if !p.pool.WouldBlock() {
		return
	}
	slow := envelope.SlowEnvelope{
		Kind:        envelope.KindSlow,
		ServiceName: "stt",
		Message:     "transcription pool saturated",
	}
	if err := p.emit(slow); err != nil {
		p.logger.Warnf("sttpipeline: emit slow signal failed: %v", err)
	}
}

func (p *Pipeline) publish(ctx context.Context, record envelope.TranscriptRecord) error {
	payload, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("sttpipeline: marshal transcript: %w", err)
	}
	return p.busClient.Publish(ctx, string(envelope.ChannelTranscripts), payload)
}

func segmentDurationS(pcm []byte, sampleRate int) float64 {
	samples := len(pcm) / 2
	if sampleRate <= 0 {
		return 0
	}
	return float64(samples) / float64(sampleRate)
}
