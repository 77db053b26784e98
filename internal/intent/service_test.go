package intent

import (
	"context"
	"encoding/json"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rapidaai/mesh/internal/bus"
	"github.com/rapidaai/mesh/internal/commons"
	"github.com/rapidaai/mesh/internal/envelope"
)

type capturingBus struct {
	mu        sync.Mutex
	published []capturedPublish
}

type capturedPublish struct {
	channel string
	payload []byte
}

func (b *capturingBus) Publish(ctx context.Context, channel string, payload []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.published = append(b.published, capturedPublish{channel: channel, payload: payload})
	return nil
}

func (b *capturingBus) Subscribe(ctx context.Context, channels []string, handler bus.Handler) {
	<-ctx.Done()
}

func (b *capturingBus) Close() error { return nil }

func newTestService(t *testing.T) (*Service, *capturingBus) {
	t.Helper()
	logger, err := commons.NewDevelopmentLogger()
	require.NoError(t, err)
	busClient := &capturingBus{}
	return New(busClient, logger), busClient
}

func TestHandleTranscript_PublishesIntentOnMatch(t *testing.T) {
	svc, busClient := newTestService(t)

	record := envelope.TranscriptRecord{
		UtteranceID: "utt-1",
		Text:        "Add a pill button for Stripe connect",
	}
	raw, err := json.Marshal(record)
	require.NoError(t, err)

	svc.handleTranscript(context.Background(), raw)

	require.Len(t, busClient.published, 1)
	assert.Equal(t, string(envelope.ChannelIntents), busClient.published[0].channel)

	var intent envelope.IntentRecord
	require.NoError(t, json.Unmarshal(busClient.published[0].payload, &intent))
	assert.Equal(t, "utt-1", intent.UtteranceID)
	assert.Equal(t, "button", intent.Component)
	assert.Contains(t, intent.BrandRefs, "Stripe")
}

func TestHandleTranscript_DropsWhenNoComponentDetected(t *testing.T) {
	svc, busClient := newTestService(t)

	record := envelope.TranscriptRecord{UtteranceID: "utt-2", Text: "hello there"}
	raw, err := json.Marshal(record)
	require.NoError(t, err)

	svc.handleTranscript(context.Background(), raw)
	assert.Empty(t, busClient.published)
}

func TestHandleTranscript_DropsMalformedPayload(t *testing.T) {
	svc, busClient := newTestService(t)
	svc.handleTranscript(context.Background(), []byte("not json"))
	assert.Empty(t, busClient.published)
}
