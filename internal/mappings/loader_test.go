package mappings

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rapidaai/mesh/internal/commons"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func newTestLoader(t *testing.T, content string, hotReload bool) (*Loader, string) {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "mappings.json")
	writeFile(t, path, content)

	logger, err := commons.NewDevelopmentLogger()
	require.NoError(t, err)

	l, err := New(path, hotReload, logger)
	require.NoError(t, err)
	t.Cleanup(func() { _ = l.Close() })
	return l, path
}

const sampleMappings = `{
  "brands": {"Stripe": {"primary_color_scheme": "blue-purple-gradient"}},
  "styles": {"Pill_Button": {"border_radius": "full"}},
  "tailwind_token_map": {"blue-purple-gradient": "bg-gradient-to-r from-blue-500 to-purple-600"}
}`

func TestNew_LoadsAndNormalizesKeysToLowercase(t *testing.T) {
	l, _ := newTestLoader(t, sampleMappings, false)

	props := l.BrandProperties("STRIPE")
	require.NotNil(t, props)
	assert.Equal(t, "blue-purple-gradient", props["primary_color_scheme"])

	styleProps := l.StyleProperties("pill_button")
	require.NotNil(t, styleProps)
	assert.Equal(t, "full", styleProps["border_radius"])
}

func TestBrandProperties_UnknownReturnsNil(t *testing.T) {
	l, _ := newTestLoader(t, sampleMappings, false)
	assert.Nil(t, l.BrandProperties("unknown-brand"))
}

func TestTailwindClass_FallsBackToTokenWhenUnmapped(t *testing.T) {
	l, _ := newTestLoader(t, sampleMappings, false)

	class, ok := l.TailwindClass("blue-purple-gradient")
	require.True(t, ok)
	assert.Equal(t, "bg-gradient-to-r from-blue-500 to-purple-600", class)

	class, ok = l.TailwindClass("no-such-token")
	assert.False(t, ok)
	assert.Equal(t, "no-such-token", class)
}

func TestReload_SkipsWhenMtimeUnchanged(t *testing.T) {
	l, path := newTestLoader(t, sampleMappings, false)

	// Rewrite with identical mtime-relevant content but don't touch the
	// file on disk, simulating a no-op reload call.
	require.NoError(t, l.Reload())
	props := l.BrandProperties("stripe")
	require.NotNil(t, props)
	_ = path
}

func TestReload_PicksUpChangedContentWhenMtimeAdvances(t *testing.T) {
	l, path := newTestLoader(t, sampleMappings, false)

	updated := `{
  "brands": {"stripe": {"primary_color_scheme": "updated-scheme"}},
  "styles": {},
  "tailwind_token_map": {}
}`
	// Ensure the new mtime is observably later than the original write.
	future := time.Now().Add(time.Second)
	writeFile(t, path, updated)
	require.NoError(t, os.Chtimes(path, future, future))

	require.NoError(t, l.Reload())
	props := l.BrandProperties("stripe")
	require.NotNil(t, props)
	assert.Equal(t, "updated-scheme", props["primary_color_scheme"])
}

func TestNew_ErrorsWhenFileMissing(t *testing.T) {
	logger, err := commons.NewDevelopmentLogger()
	require.NoError(t, err)

	_, err = New(filepath.Join(t.TempDir(), "missing.json"), false, logger)
	require.Error(t, err)
}
