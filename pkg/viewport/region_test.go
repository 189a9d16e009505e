package viewport

import (
	"image"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExtractRegion(t *testing.T) {
	page := gradient(100, 50)

	tests := []struct {
		name   string
		geom   Geometry
		scroll int
		want   image.Rectangle
		origin [2]uint8 // R,G of the top-left output pixel
	}{
		{"scrolled exactly to element", Geometry{X: 10, Y: 300, Width: 20, Height: 15}, 300, image.Rect(0, 0, 20, 15), [2]uint8{10, 0}},
		{"scroll stopped short at document end", Geometry{X: 0, Y: 320, Width: 5, Height: 10}, 300, image.Rect(0, 0, 5, 10), [2]uint8{0, 20}},
		{"height clamped to viewport", Geometry{X: 0, Y: 340, Width: 5, Height: 40}, 300, image.Rect(0, 0, 5, 10), [2]uint8{0, 40}},
		{"width clamped to viewport", Geometry{X: 90, Y: 0, Width: 40, Height: 5}, 0, image.Rect(0, 0, 10, 5), [2]uint8{90, 0}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out := ExtractRegion(page, tt.geom, tt.scroll)
			require.Equal(t, tt.want, out.Bounds())
			px := out.NRGBAAt(0, 0)
			assert.Equal(t, tt.origin[0], px.R)
			assert.Equal(t, tt.origin[1], px.G)
		})
	}
}

func TestExtractRegion_OutsideViewport(t *testing.T) {
	out := ExtractRegion(gradient(10, 10), Geometry{X: 0, Y: 500, Width: 5, Height: 5}, 0)
	assert.True(t, out.Bounds().Empty())
}

func TestGeometryRect(t *testing.T) {
	assert.Equal(t, image.Rect(1, 2, 4, 6), Geometry{X: 1, Y: 2, Width: 3, Height: 4}.Rect())
}
