// Package sentiment implements the Mesh's Sentiment Miner collaborator
// as a stub placeholder — a full social-listening/sentiment pipeline is
// an explicit Non-goal. It still owns the design_specs-to-insights
// process boundary, publishing a fixed canned sample, grounded on
// original_source/.../sentiment_miner/service.py's handle_design_spec.
package sentiment

import (
	"context"
	"encoding/json"
	"time"

	"github.com/rapidaai/mesh/internal/bus"
	"github.com/rapidaai/mesh/internal/commons"
	"github.com/rapidaai/mesh/internal/demographic"
	"github.com/rapidaai/mesh/internal/envelope"
)

type samplePost struct {
	text      string
	sentiment float64
}

var samplePosts = []samplePost{
	{text: "Looks great", sentiment: 0.8},
	{text: "Not my style", sentiment: -0.5},
}

// Service subscribes to design_specs and publishes a canned
// InsightRecord for each, standing in for a real sentiment-mining query.
type Service struct {
	busClient bus.Client
	logger    commons.Logger
}

// New builds a Service.
func New(busClient bus.Client, logger commons.Logger) *Service {
	return &Service{busClient: busClient, logger: logger}
}

// Run subscribes to the design_specs channel and blocks until ctx is
// cancelled.
func (s *Service) Run(ctx context.Context) {
	s.busClient.Subscribe(ctx, []string{string(envelope.ChannelDesignSpecs)}, func(channel string, payload []byte) {
		s.handleDesignSpec(ctx, payload)
	})
}

func (s *Service) handleDesignSpec(ctx context.Context, payload []byte) {
	var spec envelope.DesignSpec
	if err := json.Unmarshal(payload, &spec); err != nil {
		s.logger.Warnf("sentiment: malformed design_spec payload: %v", err)
		return
	}

	record := envelope.InsightRecord{
		Kind:                 envelope.KindInsight,
		SpecID:               spec.SpecID,
		SentimentHistogram:   map[string]int{},
		DemographicBreakdown: map[string]int{},
		GeneratedAt:          time.Now().UTC(),
	}
	for _, post := range samplePosts {
		record.TopPosts = append(record.TopPosts, post.text)
		bucket := sentimentBucket(post.sentiment)
		record.SentimentHistogram[bucket]++
		for _, tag := range demographic.Classify(post.text) {
			record.DemographicBreakdown[tag]++
		}
	}

	out, err := json.Marshal(record)
	if err != nil {
		s.logger.Warnf("sentiment: marshal insight: %v", err)
		return
	}
	if err := s.busClient.Publish(ctx, string(envelope.ChannelInsights), out); err != nil {
		s.logger.Warnf("sentiment: publish insight for %s: %v", spec.SpecID, err)
	}
}

func sentimentBucket(score float64) string {
	switch {
	case score > 0.1:
		return "positive"
	case score < -0.1:
		return "negative"
	default:
		return "neutral"
	}
}
