package trigger

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rapidaai/mesh/internal/bus"
	"github.com/rapidaai/mesh/internal/commons"
	"github.com/rapidaai/mesh/internal/envelope"
	"github.com/rapidaai/mesh/internal/mappings"
)

const testMappings = `{
  "brands": {"stripe": {"primary_color_scheme": "blue-purple-gradient"}},
  "styles": {
    "pill_button": {"border_radius": "full", "padding_x": "px-6"},
    "hover_lift": {"interaction": "hover:scale-105 hover:shadow-lg"}
  },
  "tailwind_token_map": {
    "blue-purple-gradient": "bg-gradient-to-r from-blue-500 to-purple-600"
  }
}`

type capturingBus struct {
	mu        sync.Mutex
	published [][]byte
}

func (b *capturingBus) Publish(ctx context.Context, channel string, payload []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.published = append(b.published, payload)
	return nil
}

func (b *capturingBus) Subscribe(ctx context.Context, channels []string, handler bus.Handler) {
	<-ctx.Done()
}

func (b *capturingBus) Close() error { return nil }

func newTestService(t *testing.T, confidenceThreshold float64) (*Service, *capturingBus) {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "mappings.json")
	require.NoError(t, os.WriteFile(path, []byte(testMappings), 0o644))

	logger, err := commons.NewDevelopmentLogger()
	require.NoError(t, err)

	loader, err := mappings.New(path, false, logger)
	require.NoError(t, err)
	t.Cleanup(func() { _ = loader.Close() })

	busClient := &capturingBus{}
	return New(busClient, loader, confidenceThreshold, logger), busClient
}

func TestHandleIntent_PublishesDesignSpecAboveThreshold(t *testing.T) {
	svc, busClient := newTestService(t, 0.75)

	intent := envelope.IntentRecord{
		UtteranceID: "utt-1",
		Component:   "button",
		Styles:      []string{"pill_button"},
		BrandRefs:   []string{"stripe"},
		Confidence:  0.9,
	}
	raw, err := json.Marshal(intent)
	require.NoError(t, err)

	svc.handleIntent(context.Background(), raw)

	require.Len(t, busClient.published, 1)
	var spec envelope.DesignSpec
	require.NoError(t, json.Unmarshal(busClient.published[0], &spec))
	assert.Equal(t, "button", spec.Component)
	assert.Equal(t, "full", spec.ThemeTokens["border_radius"])
	assert.Equal(t, "blue-purple-gradient", spec.ThemeTokens["primary_color_scheme"])
	assert.Equal(t, []string{"utt-1"}, spec.SourceUtts)
}

func TestHandleIntent_DropsBelowThreshold(t *testing.T) {
	svc, busClient := newTestService(t, 0.75)

	intent := envelope.IntentRecord{UtteranceID: "utt-2", Component: "button", Confidence: 0.5}
	raw, err := json.Marshal(intent)
	require.NoError(t, err)

	svc.handleIntent(context.Background(), raw)
	assert.Empty(t, busClient.published)
}

func TestMap_BorderRadiusProducesRoundedClass(t *testing.T) {
	svc, _ := newTestService(t, 0.75)

	tokens, classes, usedBrands, usedStyles := svc.Map([]string{"pill_button"}, []string{"stripe"}, "button")

	assert.Equal(t, "full", tokens["border_radius"])
	assert.Equal(t, "blue-purple-gradient", tokens["primary_color_scheme"])
	assert.Contains(t, classes, "rounded-full")
	assert.Contains(t, classes, "bg-gradient-to-r from-blue-500 to-purple-600")
	assert.Equal(t, []string{"stripe"}, usedBrands)
	assert.Equal(t, []string{"pill_button"}, usedStyles)
}

func TestMap_InteractionSplitsOnWhitespace(t *testing.T) {
	svc, _ := newTestService(t, 0.75)

	_, classes, _, _ := svc.Map([]string{"hover_lift"}, nil, "")

	assert.Contains(t, classes, "hover:scale-105")
	assert.Contains(t, classes, "hover:shadow-lg")
}

func TestMap_UnknownBrandAndStyleContributeNothing(t *testing.T) {
	svc, _ := newTestService(t, 0.75)

	tokens, classes, usedBrands, usedStyles := svc.Map([]string{"unknown-style"}, []string{"unknown-brand"}, "")

	assert.Empty(t, tokens)
	assert.Empty(t, classes)
	assert.Empty(t, usedBrands)
	assert.Empty(t, usedStyles)
}
