package intent

import (
	"context"
	"encoding/json"

	"github.com/rapidaai/mesh/internal/bus"
	"github.com/rapidaai/mesh/internal/commons"
	"github.com/rapidaai/mesh/internal/envelope"
)

// Service subscribes to the transcripts channel, runs Detect over each
// transcript's text, and publishes an IntentRecord for every hit,
// grounded on the original's IntentExtractor.run (subscribe-detect-
// publish loop, malformed payloads logged and dropped rather than
// crashing the loop).
type Service struct {
	busClient bus.Client
	logger    commons.Logger
}

// New builds an intent extraction Service.
func New(busClient bus.Client, logger commons.Logger) *Service {
	return &Service{busClient: busClient, logger: logger}
}

// Run subscribes to the transcripts channel and blocks until ctx is
// cancelled.
func (s *Service) Run(ctx context.Context) {
	s.busClient.Subscribe(ctx, []string{string(envelope.ChannelTranscripts)}, func(channel string, payload []byte) {
		s.handleTranscript(ctx, payload)
	})
}

func (s *Service) handleTranscript(ctx context.Context, payload []byte) {
	var record envelope.TranscriptRecord
	if err := json.Unmarshal(payload, &record); err != nil {
		s.logger.Warnf("intent: malformed transcript payload: %v", err)
		return
	}

	detection := Detect(record.Text)
	if !detection.Found {
		return
	}

	intent := envelope.IntentRecord{
		Kind:        envelope.KindIntent,
		UtteranceID: record.UtteranceID,
		Component:   detection.Component,
		Styles:      detection.Styles,
		BrandRefs:   detection.BrandRefs,
		Confidence:  detection.Confidence,
		Speaker:     record.Speaker,
	}

	out, err := json.Marshal(intent)
	if err != nil {
		s.logger.Warnf("intent: failed to marshal intent for %s: %v", record.UtteranceID, err)
		return
	}

	if err := s.busClient.Publish(ctx, string(envelope.ChannelIntents), out); err != nil {
		s.logger.Warnf("intent: publish failed for %s: %v", record.UtteranceID, err)
		return
	}
	s.logger.Infof("intent: published intent for utterance %s (component=%s)", record.UtteranceID, intent.Component)
}
