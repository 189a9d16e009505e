// Package viewport maps raw browser captures onto logical viewport pixels.
package viewport

import (
	"fmt"
	"image"
	"math"

	"heatdiff/pkg/images"
)

// ratioEpsilon is the distance from 1 below which a device pixel ratio is treated as 1.
const ratioEpsilon = 1e-7

// Metadata describes how a raw capture maps to logical viewport pixels.
type Metadata struct {
	DevicePixelRatio float64
	VerticalOffset   int
	InnerHeight      int
}

// MissingViewportMetadataError reports viewport metadata that is absent or unusable.
type MissingViewportMetadataError struct {
	Field string
	Err   error
}

func (e *MissingViewportMetadataError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("viewport metadata %s unavailable: %v", e.Field, e.Err)
	}
	return fmt.Sprintf("viewport metadata %s unavailable", e.Field)
}

func (e *MissingViewportMetadataError) Unwrap() error { return e.Err }

// Validate checks that md can drive a normalization.
func (md Metadata) Validate() error {
	r := md.DevicePixelRatio
	if math.IsNaN(r) || math.IsInf(r, 0) || r < 0 {
		return &MissingViewportMetadataError{Field: "devicePixelRatio", Err: fmt.Errorf("invalid value %v", r)}
	}
	if md.InnerHeight < 0 {
		return &MissingViewportMetadataError{Field: "innerHeight", Err: fmt.Errorf("invalid value %d", md.InnerHeight)}
	}
	return nil
}

// ratio returns the effective device pixel ratio; zero behaves like an unset ratio.
func (md Metadata) ratio() float64 {
	if md.DevicePixelRatio == 0 {
		return 1
	}
	return md.DevicePixelRatio
}

// Normalizer turns raw captures into canonical viewport images.
type Normalizer struct {
	Resampler Resampler
}

// NewNormalizer returns a Normalizer using r, or bilinear resampling when r is nil.
func NewNormalizer(r Resampler) *Normalizer {
	if r == nil {
		r = Bilinear
	}
	return &Normalizer{Resampler: r}
}

// Normalize is NewNormalizer(nil).Normalize.
func Normalize(raw image.Image, md Metadata) (*image.NRGBA, error) {
	return NewNormalizer(nil).Normalize(raw, md)
}

// Normalize rescales raw by the device pixel ratio and crops it to the logical viewport:
// rows [VerticalOffset, VerticalOffset+InnerHeight), full width. The input is not modified.
func (n *Normalizer) Normalize(raw image.Image, md Metadata) (*image.NRGBA, error) {
	if err := md.Validate(); err != nil {
		return nil, err
	}

	img := images.AsNRGBA(raw)
	if r := md.ratio(); math.Abs(r-1) > ratioEpsilon {
		b := img.Bounds()
		w := int(math.Round(float64(b.Dx()) / r))
		h := int(math.Round(float64(b.Dy()) / r))
		img = n.Resampler.Resize(img, w, h)
	}

	height := img.Bounds().Dy()
	offset := clamp(md.VerticalOffset, 0, height)
	rows := min(md.InnerHeight, height-offset)

	return images.Crop(img, image.Rect(0, offset, img.Bounds().Dx(), offset+rows)), nil
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
