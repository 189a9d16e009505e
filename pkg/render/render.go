// Package render paints comparison heatmaps and writes them as annotated JPEG artifacts.
package render

import (
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"math"
	"strconv"

	"github.com/fogleman/gg"
	"golang.org/x/image/font/basicfont"
)

// Marker geometry, in pixels.
const (
	ringRadius     = 10
	ringWidth      = 3
	outerDotRadius = 5
	innerDotRadius = 3
)

// Marker alphas. Rings are half transparent; dots are nearly invisible on their own and only
// build up color where many differing pixels overlap.
const (
	ringAlpha = 128
	dotAlpha  = 2
)

// Summary carries the numbers embedded into a heatmap.
type Summary struct {
	DifferingPixels  int
	DeviationPercent float64
	SpotCount        int
}

// DifferingText is the human-readable differing pixel count.
func (s Summary) DifferingText() string {
	return fmt.Sprintf("A total of %d different pixels found", s.DifferingPixels)
}

// DeviationText is the deviation percentage with at most three decimals.
func (s Summary) DeviationText() string {
	return FormatDeviation(s.DeviationPercent) + "% deviation"
}

// SpotsText is the human-readable spot count.
func (s Summary) SpotsText() string {
	return fmt.Sprintf("%d spots found", s.SpotCount)
}

// FormatDeviation prints p with up to three decimals and no trailing zeros.
func FormatDeviation(p float64) string {
	return strconv.FormatFloat(math.Round(p*1000)/1000, 'f', -1, 64)
}

// Style controls how markers are painted and encoded.
type Style struct {
	Marker  color.NRGBA
	Legend  bool // burn the summary strings into the pixels as well
	Quality int  // JPEG quality, 1-100
}

// DefaultStyle returns red markers, no legend, quality 90.
func DefaultStyle() Style {
	return Style{
		Marker:  color.NRGBA{255, 0, 0, 255},
		Quality: 90,
	}
}

// Renderer paints heatmap markers onto a private copy of a candidate image.
type Renderer struct {
	context *gg.Context
	canvas  *image.RGBA
	style   Style
	stamp   *image.RGBA
}

// NewRenderer copies candidate into a fresh canvas. The candidate is never written to.
func NewRenderer(candidate image.Image, style Style) *Renderer {
	b := candidate.Bounds()
	canvas := image.NewRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(canvas, canvas.Bounds(), candidate, b.Min, draw.Src)
	return &Renderer{
		context: gg.NewContextForRGBA(canvas),
		canvas:  canvas,
		style:   style,
		stamp:   dotStamp(style.Marker),
	}
}

// dotStamp rasterizes the two overlapping low-alpha dots once so they can be composited
// at every differing pixel.
func dotStamp(c color.NRGBA) *image.RGBA {
	size := 2*outerDotRadius + 1
	dc := gg.NewContext(size, size)
	dc.SetRGBA255(int(c.R), int(c.G), int(c.B), dotAlpha)
	dc.DrawCircle(outerDotRadius, outerDotRadius, outerDotRadius)
	dc.Fill()
	dc.DrawCircle(outerDotRadius, outerDotRadius, innerDotRadius)
	dc.Fill()
	return dc.Image().(*image.RGBA)
}

// DrawSpot outlines a spot anchor with a ring.
func (r *Renderer) DrawSpot(p image.Point) {
	c := r.style.Marker
	r.context.SetRGBA255(int(c.R), int(c.G), int(c.B), ringAlpha)
	r.context.SetLineWidth(ringWidth)
	r.context.DrawCircle(float64(p.X), float64(p.Y), ringRadius)
	r.context.Stroke()
}

// DrawDiff paints the dots for one differing pixel.
func (r *Renderer) DrawDiff(p image.Point) {
	dst := image.Rect(p.X-outerDotRadius, p.Y-outerDotRadius, p.X+outerDotRadius+1, p.Y+outerDotRadius+1)
	draw.Draw(r.canvas, dst, r.stamp, image.Point{}, draw.Over)
}

// DrawLegend writes the summary strings in the top-left corner on a translucent backing.
func (r *Renderer) DrawLegend(s Summary) {
	lines := []string{s.DifferingText(), s.DeviationText(), s.SpotsText()}
	r.context.SetFontFace(basicfont.Face7x13)

	const pad, lineHeight = 4.0, 15.0
	width := 0.0
	for _, l := range lines {
		if w, _ := r.context.MeasureString(l); w > width {
			width = w
		}
	}
	r.context.SetRGBA255(255, 255, 255, 200)
	r.context.DrawRectangle(0, 0, width+2*pad, float64(len(lines))*lineHeight+2*pad)
	r.context.Fill()

	c := r.style.Marker
	r.context.SetRGBA255(int(c.R), int(c.G), int(c.B), 255)
	for i, l := range lines {
		r.context.DrawString(l, pad, pad+float64(i+1)*lineHeight-3)
	}
}

// Image returns the annotated canvas.
func (r *Renderer) Image() *image.RGBA {
	return r.canvas
}

// Heatmap paints a complete heatmap: dots for every differing pixel and a ring per spot.
// All markers share one color, so the painting order does not change the result.
func Heatmap(candidate image.Image, spots, diffs []image.Point, s Summary, style Style) *image.RGBA {
	r := NewRenderer(candidate, style)
	for _, p := range diffs {
		r.DrawDiff(p)
	}
	for _, p := range spots {
		r.DrawSpot(p)
	}
	if style.Legend {
		r.DrawLegend(s)
	}
	return r.Image()
}
