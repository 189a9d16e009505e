package viewport

import (
	"image"

	"heatdiff/pkg/images"
)

// Geometry is an element's box in logical page coordinates at capture time.
type Geometry struct {
	X      int `json:"x"`
	Y      int `json:"y"`
	Width  int `json:"width"`
	Height int `json:"height"`
}

// Rect returns the geometry as an image rectangle.
func (g Geometry) Rect() image.Rectangle {
	return image.Rect(g.X, g.Y, g.X+g.Width, g.Y+g.Height)
}

// ExtractRegion crops a normalized viewport image down to one element.
// scrollOffset is the vertical offset the page actually settled on after scrolling
// towards the element; it can differ from the requested one near the document end.
func ExtractRegion(img *image.NRGBA, g Geometry, scrollOffset int) *image.NRGBA {
	cropY := g.Y - scrollOffset
	cropHeight := max(min(g.Height, img.Bounds().Dy()-cropY), 0)
	r := image.Rect(g.X, cropY, g.X+max(g.Width, 0), cropY+cropHeight)
	return images.Crop(img, r)
}
