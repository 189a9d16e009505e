package capture

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"image/png"
	"log/slog"
	"math"
	"time"

	"heatdiff/pkg/js"
	"heatdiff/pkg/viewport"
)

// ScriptedPage is an in-process Page. It renders screenshots from a fixed document image and
// answers viewport scripts with a goja runtime holding a simulated window, so the capture flow
// runs without a browser.
type ScriptedPage struct {
	engine *js.Engine
	state  js.WindowState

	// Document is the full page in physical pixels (logical size times the device pixel ratio).
	Document *image.NRGBA
	// Chrome is the height, in logical pixels, of the browser bar painted above the content.
	Chrome int
	// Elements maps selectors to page-coordinate geometry.
	Elements map[string]viewport.Geometry
	// Delay simulates how long an element lookup polls before giving up.
	Delay time.Duration
}

// NewScriptedPage builds a page whose logical document height is derived from doc.
func NewScriptedPage(doc *image.NRGBA, state js.WindowState, chrome int, logger *slog.Logger) *ScriptedPage {
	ratio := state.DevicePixelRatio
	if ratio == 0 {
		ratio = 1
	}
	if state.ScrollHeight == 0 {
		state.ScrollHeight = int(math.Round(float64(doc.Bounds().Dy()) / ratio))
	}
	return &ScriptedPage{
		engine:   js.New(state, logger),
		state:    state,
		Document: doc,
		Chrome:   chrome,
		Elements: make(map[string]viewport.Geometry),
	}
}

// EvalNumber runs script in the simulated window.
func (p *ScriptedPage) EvalNumber(ctx context.Context, script string, args ...any) (float64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	v, err := p.engine.Call(script, args...)
	if err != nil {
		return 0, err
	}
	switch n := v.(type) {
	case int64:
		return float64(n), nil
	case float64:
		return n, nil
	}
	return 0, ErrNoValue
}

// Screenshot paints the chrome bar and the visible slice of the document, like a device
// screenshot with the page scrolled to the window's current offset.
func (p *ScriptedPage) Screenshot(ctx context.Context) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	ratio := p.state.DevicePixelRatio
	if ratio == 0 {
		ratio = 1
	}
	chrome := int(math.Round(float64(p.Chrome) * ratio))
	top := int(math.Round(float64(p.engine.ScrollY()) * ratio))
	rows := int(math.Round(float64(p.state.InnerHeight) * ratio))

	shot := image.NewNRGBA(image.Rect(0, 0, p.Document.Bounds().Dx(), chrome+rows))
	draw.Draw(shot, image.Rect(0, 0, shot.Bounds().Dx(), chrome), image.NewUniform(color.NRGBA{40, 40, 40, 255}), image.Point{}, draw.Src)
	draw.Draw(shot, image.Rect(0, chrome, shot.Bounds().Dx(), chrome+rows), p.Document, image.Pt(0, top), draw.Src)

	var buf bytes.Buffer
	if err := png.Encode(&buf, shot); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Element looks selector up in Elements.
func (p *ScriptedPage) Element(ctx context.Context, selector string) (viewport.Geometry, error) {
	if g, ok := p.Elements[selector]; ok {
		return g, nil
	}
	if p.Delay > 0 {
		select {
		case <-time.After(p.Delay):
		case <-ctx.Done():
		}
	}
	return viewport.Geometry{}, &ElementNotFoundError{Selector: selector, Err: fmt.Errorf("no match after %s", p.Delay)}
}
