// Package capture is the boundary to the browser that produces screenshots. It queries the
// viewport state a raw capture needs for normalization and turns captures into comparable images.
package capture

import (
	"context"
	"errors"
	"fmt"
	"image"
	"log/slog"
	"math"

	"heatdiff/pkg/images"
	"heatdiff/pkg/viewport"
)

// Scripts run in the page. Every Page implementation evaluates the same source.
const (
	ScriptDevicePixelRatio = `() => window.devicePixelRatio || 1`
	ScriptInnerHeight      = `() => window.innerHeight`
	ScriptScrollTo         = `(y) => window.scroll(0, y)`
	ScriptScrollOffset     = `() => { var doc = document.documentElement; return (window.pageYOffset || doc.scrollTop) - (doc.clientTop || 0); }`
)

// ErrNoValue is returned by Page.EvalNumber when a script yields null, undefined or a non-number.
var ErrNoValue = errors.New("script returned no number")

// ElementNotFoundError reports an element lookup that timed out.
type ElementNotFoundError struct {
	Selector string
	Err      error
}

func (e *ElementNotFoundError) Error() string {
	return fmt.Sprintf("element %q not found: %v", e.Selector, e.Err)
}

func (e *ElementNotFoundError) Unwrap() error { return e.Err }

// Page is the driver surface a Capturer needs.
type Page interface {
	// Screenshot returns the encoded (PNG) capture of the current viewport.
	Screenshot(ctx context.Context) ([]byte, error)
	// EvalNumber runs a function expression with args and returns its numeric result.
	EvalNumber(ctx context.Context, script string, args ...any) (float64, error)
	// Element returns the element's box in page coordinates. When the primary geometry
	// query fails, implementations fall back to the on-screen location after scrolling
	// the element into view. Lookup timeouts are *ElementNotFoundError.
	Element(ctx context.Context, selector string) (viewport.Geometry, error)
}

// Hooks run synchronously around a capture.
type Hooks struct {
	// BeforeCapture runs before the element lookup and screenshot.
	BeforeCapture func()
	// AfterCapture runs right after the screenshot was taken.
	AfterCapture func()
}

// Capturer takes normalized screenshots from a Page.
type Capturer struct {
	Page       Page
	Normalizer *viewport.Normalizer
	// YOffset is the static height of browser chrome above the page content in raw
	// captures (e.g. a mobile status bar), in logical pixels.
	YOffset int
	Hooks   Hooks
	Logger  *slog.Logger
}

// New returns a Capturer with bilinear normalization.
func New(page Page, yOffset int, logger *slog.Logger) *Capturer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Capturer{
		Page:       page,
		Normalizer: viewport.NewNormalizer(nil),
		YOffset:    yOffset,
		Logger:     logger,
	}
}

// Metadata queries the viewport state of the page.
func (c *Capturer) Metadata(ctx context.Context) (viewport.Metadata, error) {
	ratio, err := c.Page.EvalNumber(ctx, ScriptDevicePixelRatio)
	if err != nil {
		return viewport.Metadata{}, &viewport.MissingViewportMetadataError{Field: "devicePixelRatio", Err: err}
	}
	height, err := c.Page.EvalNumber(ctx, ScriptInnerHeight)
	if err != nil {
		return viewport.Metadata{}, &viewport.MissingViewportMetadataError{Field: "innerHeight", Err: err}
	}
	return viewport.Metadata{
		DevicePixelRatio: ratio,
		VerticalOffset:   c.YOffset,
		InnerHeight:      int(math.Round(height)),
	}, nil
}

// ScrollOffset returns the current vertical scroll position.
func (c *Capturer) ScrollOffset(ctx context.Context) (int, error) {
	y, err := c.Page.EvalNumber(ctx, ScriptScrollOffset)
	if err != nil {
		return 0, fmt.Errorf("capture: scroll offset: %w", err)
	}
	return int(math.Round(y)), nil
}

// ScrollTo requests a vertical scroll and returns where the page actually settled.
func (c *Capturer) ScrollTo(ctx context.Context, y int) (int, error) {
	if _, err := c.Page.EvalNumber(ctx, ScriptScrollTo, y); err != nil && !errors.Is(err, ErrNoValue) {
		return 0, fmt.Errorf("capture: scroll to %d: %w", y, err)
	}
	return c.ScrollOffset(ctx)
}

// Raw takes an unnormalized screenshot.
func (c *Capturer) Raw(ctx context.Context) (*image.NRGBA, error) {
	data, err := c.Page.Screenshot(ctx)
	if err != nil {
		return nil, fmt.Errorf("capture: screenshot: %w", err)
	}
	return images.Decode(data)
}

// Normalized returns the viewport as logical pixels: rescaled by the device pixel ratio and
// cropped below the browser chrome to the inner viewport height.
func (c *Capturer) Normalized(ctx context.Context) (*image.NRGBA, error) {
	c.before()
	return c.normalized(ctx)
}

func (c *Capturer) normalized(ctx context.Context) (*image.NRGBA, error) {
	md, err := c.Metadata(ctx)
	if err != nil {
		return nil, err
	}
	raw, err := c.Raw(ctx)
	if err != nil {
		return nil, err
	}
	c.after()

	c.Logger.Debug("capture: normalizing",
		"raw_width", raw.Bounds().Dx(), "raw_height", raw.Bounds().Dy(),
		"ratio", md.DevicePixelRatio, "inner_height", md.InnerHeight, "y_offset", md.VerticalOffset)
	return c.Normalizer.Normalize(raw, md)
}

// Element captures the region of one element. An empty selector captures the whole viewport.
func (c *Capturer) Element(ctx context.Context, selector string) (*image.NRGBA, error) {
	if selector == "" {
		return c.Normalized(ctx)
	}

	c.before()
	geom, err := c.Page.Element(ctx, selector)
	if err != nil {
		return nil, err
	}
	scroll, err := c.ScrollTo(ctx, geom.Y)
	if err != nil {
		return nil, err
	}
	img, err := c.normalized(ctx)
	if err != nil {
		return nil, err
	}

	c.Logger.Debug("capture: element", "selector", selector, "geometry", geom, "scroll", scroll)
	return viewport.ExtractRegion(img, geom, scroll), nil
}

func (c *Capturer) before() {
	if c.Hooks.BeforeCapture != nil {
		c.Hooks.BeforeCapture()
	}
}

func (c *Capturer) after() {
	if c.Hooks.AfterCapture != nil {
		c.Hooks.AfterCapture()
	}
}
