package render

import (
	"image"
	"image/color"
	"testing"
)

func whiteImage(w, h int) *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for i := range img.Pix {
		img.Pix[i] = 255
	}
	return img
}

func TestFormatDeviation(t *testing.T) {
	tests := []struct {
		in   float64
		want string
	}{
		{0, "0"},
		{1, "1"},
		{12.5, "12.5"},
		{1.0 / 3 * 100, "33.333"},
		{0.0004, "0"},
		{0.0006, "0.001"},
		{100, "100"},
	}
	for _, tt := range tests {
		if got := FormatDeviation(tt.in); got != tt.want {
			t.Errorf("FormatDeviation(%v) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestSummaryTexts(t *testing.T) {
	s := Summary{DifferingPixels: 42, DeviationPercent: 4.2, SpotCount: 3}
	if got := s.DifferingText(); got != "A total of 42 different pixels found" {
		t.Errorf("unexpected differing text %q", got)
	}
	if got := s.DeviationText(); got != "4.2% deviation" {
		t.Errorf("unexpected deviation text %q", got)
	}
	if got := s.SpotsText(); got != "3 spots found" {
		t.Errorf("unexpected spots text %q", got)
	}
}

func TestHeatmap_DoesNotMutateCandidate(t *testing.T) {
	candidate := whiteImage(40, 40)
	before := append([]byte(nil), candidate.Pix...)

	out := Heatmap(candidate, []image.Point{{20, 20}}, []image.Point{{20, 20}}, Summary{}, DefaultStyle())

	for i := range before {
		if candidate.Pix[i] != before[i] {
			t.Fatalf("candidate modified at byte %d", i)
		}
	}
	if out.Bounds() != candidate.Bounds() {
		t.Errorf("expected bounds %v, got %v", candidate.Bounds(), out.Bounds())
	}
}

func TestHeatmap_RingIsRed(t *testing.T) {
	out := Heatmap(whiteImage(40, 40), []image.Point{{20, 20}}, nil, Summary{}, DefaultStyle())

	// A point on the ring, 10px right of the anchor.
	c := out.RGBAAt(30, 20)
	if c.R != 255 || c.G > 160 || c.B > 160 {
		t.Errorf("expected reddish ring pixel, got %v", c)
	}
	// The anchor itself stays untouched by the ring.
	if c := out.RGBAAt(20, 20); c != (color.RGBA{255, 255, 255, 255}) {
		t.Errorf("expected white center, got %v", c)
	}
}

func TestHeatmap_DotsAccumulate(t *testing.T) {
	sparse := Heatmap(whiteImage(40, 40), nil, []image.Point{{20, 20}}, Summary{}, DefaultStyle())

	dense := make([]image.Point, 0, 200)
	for i := 0; i < 200; i++ {
		dense = append(dense, image.Point{20, 20})
	}
	solid := Heatmap(whiteImage(40, 40), nil, dense, Summary{}, DefaultStyle())

	faint := sparse.RGBAAt(20, 20)
	strong := solid.RGBAAt(20, 20)
	if faint.G < 240 {
		t.Errorf("expected a single dot to be faint, got %v", faint)
	}
	if strong.G >= faint.G {
		t.Errorf("expected overdraw to deepen the color: sparse=%v dense=%v", faint, strong)
	}
	if strong.R != 255 {
		t.Errorf("expected red channel to stay saturated, got %v", strong)
	}
}

func TestHeatmap_MarkersNearEdgeAreClipped(t *testing.T) {
	out := Heatmap(whiteImage(8, 8), []image.Point{{0, 0}}, []image.Point{{0, 0}, {7, 7}}, Summary{}, DefaultStyle())
	if out.Bounds() != image.Rect(0, 0, 8, 8) {
		t.Errorf("unexpected bounds %v", out.Bounds())
	}
}

func TestHeatmap_Legend(t *testing.T) {
	style := DefaultStyle()
	style.Legend = true
	plain := Heatmap(whiteImage(300, 60), nil, nil, Summary{}, DefaultStyle())
	withLegend := Heatmap(whiteImage(300, 60), nil, nil, Summary{DifferingPixels: 1, SpotCount: 1}, style)

	changed := false
	for i := range plain.Pix {
		if plain.Pix[i] != withLegend.Pix[i] {
			changed = true
			break
		}
	}
	if !changed {
		t.Error("expected legend to change pixels")
	}
}
