package viewport

import (
	"fmt"
	"image"
	"strings"

	"github.com/nfnt/resize"
	"golang.org/x/image/draw"

	"heatdiff/pkg/images"
)

// Resampler scales an image to an exact size. Only the resulting dimensions are load-bearing
// for comparison; the filter choice affects how close a rescaled capture stays to its baseline.
type Resampler interface {
	Resize(src *image.NRGBA, width, height int) *image.NRGBA
}

type drawResampler struct {
	name   string
	scaler draw.Scaler
}

func (d drawResampler) Resize(src *image.NRGBA, width, height int) *image.NRGBA {
	dst := image.NewNRGBA(image.Rect(0, 0, max(width, 0), max(height, 0)))
	if dst.Bounds().Empty() || src.Bounds().Empty() {
		return dst
	}
	d.scaler.Scale(dst, dst.Bounds(), src, src.Bounds(), draw.Src, nil)
	return dst
}

func (d drawResampler) String() string { return d.name }

type lanczosResampler struct{}

func (lanczosResampler) Resize(src *image.NRGBA, width, height int) *image.NRGBA {
	if width <= 0 || height <= 0 || src.Bounds().Empty() {
		return image.NewNRGBA(image.Rect(0, 0, max(width, 0), max(height, 0)))
	}
	return images.AsNRGBA(resize.Resize(uint(width), uint(height), src, resize.Lanczos3))
}

func (lanczosResampler) String() string { return "lanczos" }

// Available resamplers.
var (
	NearestNeighbor Resampler = drawResampler{"nearest", draw.NearestNeighbor}
	Bilinear        Resampler = drawResampler{"bilinear", draw.BiLinear}
	CatmullRom      Resampler = drawResampler{"catmullrom", draw.CatmullRom}
	Lanczos         Resampler = lanczosResampler{}
)

// ParseResampler maps a configuration name onto a Resampler.
func ParseResampler(name string) (Resampler, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "bilinear":
		return Bilinear, nil
	case "nearest":
		return NearestNeighbor, nil
	case "catmullrom":
		return CatmullRom, nil
	case "lanczos":
		return Lanczos, nil
	}
	return nil, fmt.Errorf("unknown resampler %q", name)
}
