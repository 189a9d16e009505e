package config

import (
	"image/color"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"heatdiff/pkg/viewport"
)

func TestDefault(t *testing.T) {
	cfg := Default()
	cmp := cfg.Comparison()
	assert.True(t, cmp.RenderHeatmap)
	assert.Equal(t, "./heatmap.jpg", cmp.HeatmapPath)
	assert.Equal(t, 1000, cmp.Accuracy)
	assert.Equal(t, color.NRGBA{255, 0, 0, 255}, cmp.MarkerColor)
	assert.Equal(t, 1, cmp.Workers)
	assert.True(t, *cfg.Capture.Headless)
	assert.Equal(t, 5*time.Second, cfg.Capture.Timeout)
	assert.Equal(t, viewport.Bilinear, cfg.Resampler())
	require.NoError(t, cfg.Validate())
}

func TestParse(t *testing.T) {
	cfg, err := Parse([]byte(`
compare:
  render_heatmap: false
  heatmap_path: out/diff.jpg
  accuracy: 0
  marker_color: "#00ff80"
  workers: 4
  legend: true
normalize:
  resampler: lanczos
capture:
  headless: false
  timeout: 2s
  y_offset: 64
history:
  path: runs.db
`))
	require.NoError(t, err)

	cmp := cfg.Comparison()
	assert.False(t, cmp.RenderHeatmap)
	assert.Equal(t, "out/diff.jpg", cmp.HeatmapPath)
	assert.Equal(t, 0, cmp.Accuracy, "an explicit zero accuracy must survive defaults")
	assert.Equal(t, color.NRGBA{0, 255, 128, 255}, cmp.MarkerColor)
	assert.Equal(t, 4, cmp.Workers)
	assert.True(t, cmp.Legend)
	assert.Equal(t, viewport.Lanczos, cfg.Resampler())
	assert.False(t, *cfg.Capture.Headless)
	assert.Equal(t, 2*time.Second, cfg.Capture.Timeout)
	assert.Equal(t, 64, cfg.Capture.YOffset)
	assert.Equal(t, "runs.db", cfg.History.Path)
}

func TestParse_Invalid(t *testing.T) {
	for name, doc := range map[string]string{
		"accuracy":  "compare:\n  accuracy: 1200\n",
		"color":     "compare:\n  marker_color: red\n",
		"quality":   "compare:\n  jpeg_quality: 101\n",
		"resampler": "normalize:\n  resampler: sinc\n",
		"yaml":      "compare: [",
	} {
		_, err := Parse([]byte(doc))
		assert.Error(t, err, name)
	}
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "heatdiff.yaml")
	require.NoError(t, os.WriteFile(path, []byte("compare:\n  accuracy: 990\n"), 0644))

	cfg, err := LoadFile(path)
	require.NoError(t, err)
	assert.Equal(t, 990, cfg.Comparison().Accuracy)

	_, err = LoadFile(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestParseColor(t *testing.T) {
	c, err := ParseColor("0000ff")
	require.NoError(t, err)
	assert.Equal(t, color.NRGBA{0, 0, 255, 255}, c)

	_, err = ParseColor("#12345")
	assert.Error(t, err)
	_, err = ParseColor("#gggggg")
	assert.Error(t, err)
}

func TestBrowser(t *testing.T) {
	cfg, err := Parse([]byte("capture:\n  remote_url: ws://127.0.0.1:9222/devtools\n  stealth: true\n  timeout: 750ms\n"))
	require.NoError(t, err)

	b := cfg.Browser(nil)
	assert.Equal(t, "ws://127.0.0.1:9222/devtools", b.RemoteURL)
	assert.True(t, b.Headless)
	assert.True(t, b.Stealth)
	assert.Equal(t, 750*time.Millisecond, b.ElementTimeout)
}
