package capture

import (
	"context"
	"errors"
	"image"
	"image/color"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"heatdiff/pkg/js"
	"heatdiff/pkg/viewport"
)

// stripes builds a document whose row y (in logical pixels) has green channel y%256,
// scaled by ratio into physical pixels.
func stripes(width, height int, ratio int) *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, width*ratio, height*ratio))
	for y := 0; y < height*ratio; y++ {
		for x := 0; x < width*ratio; x++ {
			img.SetNRGBA(x, y, color.NRGBA{uint8(x / ratio), uint8((y / ratio) % 256), 10, 255})
		}
	}
	return img
}

func TestNormalized_RemovesChromeAndScale(t *testing.T) {
	page := NewScriptedPage(stripes(50, 300, 2), js.WindowState{DevicePixelRatio: 2, InnerHeight: 100}, 12, nil)
	c := New(page, 12, nil)
	c.Normalizer = viewport.NewNormalizer(viewport.NearestNeighbor)

	img, err := c.Normalized(context.Background())
	require.NoError(t, err)
	assert.Equal(t, image.Rect(0, 0, 50, 100), img.Bounds())
	assert.Equal(t, uint8(0), img.NRGBAAt(0, 0).G, "first row must be page content, not chrome")
	assert.Equal(t, uint8(99), img.NRGBAAt(10, 99).G)
	assert.Equal(t, uint8(10), img.NRGBAAt(10, 50).R)
}

func TestMetadata(t *testing.T) {
	page := NewScriptedPage(stripes(10, 10, 1), js.WindowState{InnerHeight: 10}, 0, nil)
	md, err := New(page, 3, nil).Metadata(context.Background())
	require.NoError(t, err)
	assert.Equal(t, viewport.Metadata{DevicePixelRatio: 1, VerticalOffset: 3, InnerHeight: 10}, md)
}

func TestMetadata_Missing(t *testing.T) {
	page := NewScriptedPage(stripes(10, 10, 1), js.WindowState{HideInnerHeight: true}, 0, nil)
	_, err := New(page, 0, nil).Normalized(context.Background())
	var missing *viewport.MissingViewportMetadataError
	require.True(t, errors.As(err, &missing), "got %v", err)
	assert.Equal(t, "innerHeight", missing.Field)
}

func TestElement_ScrollDriftAtDocumentEnd(t *testing.T) {
	page := NewScriptedPage(stripes(40, 200, 1), js.WindowState{DevicePixelRatio: 1, InnerHeight: 100}, 0, nil)
	page.Elements["#footer"] = viewport.Geometry{X: 5, Y: 180, Width: 20, Height: 10}

	var calls []string
	c := New(page, 0, nil)
	c.Hooks = Hooks{
		BeforeCapture: func() { calls = append(calls, "before") },
		AfterCapture:  func() { calls = append(calls, "after") },
	}

	img, err := c.Element(context.Background(), "#footer")
	require.NoError(t, err)
	assert.Equal(t, image.Rect(0, 0, 20, 10), img.Bounds())
	// The page can only scroll to 100, so the element sits 80 rows into the viewport.
	assert.Equal(t, uint8(180), img.NRGBAAt(0, 0).G)
	assert.Equal(t, uint8(5), img.NRGBAAt(0, 0).R)
	assert.Equal(t, []string{"before", "after"}, calls)
}

func TestElement_NotFound(t *testing.T) {
	page := NewScriptedPage(stripes(10, 10, 1), js.WindowState{InnerHeight: 10}, 0, nil)
	page.Delay = time.Millisecond

	afterCalled := false
	c := New(page, 0, nil)
	c.Hooks.AfterCapture = func() { afterCalled = true }

	_, err := c.Element(context.Background(), "#missing")
	var notFound *ElementNotFoundError
	require.True(t, errors.As(err, &notFound), "got %v", err)
	assert.Equal(t, "#missing", notFound.Selector)
	assert.False(t, afterCalled, "no capture may happen for a missing element")
}

func TestElement_EmptySelectorIsFullViewport(t *testing.T) {
	page := NewScriptedPage(stripes(10, 40, 1), js.WindowState{InnerHeight: 20}, 0, nil)
	img, err := New(page, 0, nil).Element(context.Background(), "")
	require.NoError(t, err)
	assert.Equal(t, image.Rect(0, 0, 10, 20), img.Bounds())
}

func TestScrollTo(t *testing.T) {
	page := NewScriptedPage(stripes(10, 500, 1), js.WindowState{InnerHeight: 100}, 0, nil)
	c := New(page, 0, nil)

	got, err := c.ScrollTo(context.Background(), 250)
	require.NoError(t, err)
	assert.Equal(t, 250, got)

	got, err = c.ScrollTo(context.Background(), 1000)
	require.NoError(t, err)
	assert.Equal(t, 400, got)
}

func TestCanceledContext(t *testing.T) {
	page := NewScriptedPage(stripes(10, 10, 1), js.WindowState{InnerHeight: 10}, 0, nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := New(page, 0, nil).Normalized(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}
