package images

import (
	"bytes"
	"context"
	"encoding/base64"
	"fmt"
	"image"
	"image/draw"
	_ "image/gif"
	_ "image/jpeg"
	"image/png"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"

	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/webp"

	stdnet "heatdiff/std/net"
)

// DecodeError reports capture bytes that could not be turned into an image.
type DecodeError struct {
	Source string
	Err    error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("decode %s: %v", e.Source, e.Err)
}

func (e *DecodeError) Unwrap() error { return e.Err }

// ImageCache caches loaded images
type ImageCache struct {
	cache map[string]*image.NRGBA
	mu    sync.RWMutex
}

// Global image cache. Baselines are loaded once per process.
var globalCache = &ImageCache{
	cache: make(map[string]*image.NRGBA),
}

// LoadImage loads an image from a file path, a data URI or an http(s) URL.
// Results are cached by location; callers must treat the returned image as read-only.
func LoadImage(location string) (*image.NRGBA, error) {
	globalCache.mu.RLock()
	if img, ok := globalCache.cache[location]; ok {
		globalCache.mu.RUnlock()
		return img, nil
	}
	globalCache.mu.RUnlock()

	img, err := Load(location)
	if err != nil {
		return nil, err
	}

	globalCache.mu.Lock()
	globalCache.cache[location] = img
	globalCache.mu.Unlock()

	return img, nil
}

// Forget drops a cached location, e.g. after a baseline has been replaced on disk.
func Forget(location string) {
	globalCache.mu.Lock()
	delete(globalCache.cache, location)
	globalCache.mu.Unlock()
}

// Load is LoadImage without the cache, for captures that change between runs.
func Load(location string) (*image.NRGBA, error) {
	return LoadContext(context.Background(), location)
}

// LoadContext is Load with a context bounding network fetches.
func LoadContext(ctx context.Context, location string) (*image.NRGBA, error) {
	switch {
	case IsDataURI(location):
		return LoadImageFromDataURI(location)
	case stdnet.IsNetworkURL(location):
		body, _, err := stdnet.Fetch(ctx, location)
		if err != nil {
			return nil, err
		}
		return decodeNamed(location, body)
	}

	data, err := os.ReadFile(location)
	if err != nil {
		return nil, err
	}
	return decodeNamed(location, data)
}

// IsDataURI reports whether uri is a data: URI
func IsDataURI(uri string) bool {
	return strings.HasPrefix(uri, "data:")
}

// LoadImageFromDataURI decodes a base64 data URI such as the ones browser drivers return.
func LoadImageFromDataURI(uri string) (*image.NRGBA, error) {
	if !IsDataURI(uri) {
		return nil, &DecodeError{Source: "data uri", Err: fmt.Errorf("not a data URI")}
	}
	comma := strings.IndexByte(uri, ',')
	if comma < 0 {
		return nil, &DecodeError{Source: "data uri", Err: fmt.Errorf("missing ',' separator")}
	}
	header, payload := uri[:comma], uri[comma+1:]
	if !strings.HasSuffix(header, ";base64") {
		return nil, &DecodeError{Source: "data uri", Err: fmt.Errorf("only base64 data URIs are supported")}
	}
	data, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return nil, &DecodeError{Source: "data uri", Err: err}
	}
	return decodeNamed("data uri", data)
}

// Decode decodes encoded image bytes (PNG, JPEG, GIF, BMP or WebP) into canonical form.
func Decode(data []byte) (*image.NRGBA, error) {
	return decodeNamed("image", data)
}

// DecodeReader is Decode for a stream.
func DecodeReader(r io.Reader) (*image.NRGBA, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, &DecodeError{Source: "reader", Err: err}
	}
	return Decode(data)
}

func decodeNamed(source string, data []byte) (*image.NRGBA, error) {
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, &DecodeError{Source: source, Err: err}
	}
	return ToNRGBA(img), nil
}

// FromPixels wraps a raw non-premultiplied RGBA buffer. The buffer is copied.
func FromPixels(width, height int, pix []byte) (*image.NRGBA, error) {
	if width < 0 || height < 0 {
		return nil, &DecodeError{Source: "pixels", Err: fmt.Errorf("negative size %dx%d", width, height)}
	}
	if len(pix) != width*height*4 {
		return nil, &DecodeError{
			Source: "pixels",
			Err:    fmt.Errorf("buffer has %d bytes, want %d for %dx%d", len(pix), width*height*4, width, height),
		}
	}
	img := image.NewNRGBA(image.Rect(0, 0, width, height))
	copy(img.Pix, pix)
	return img, nil
}

// ToNRGBA returns a fresh *image.NRGBA anchored at (0,0) holding the pixels of img.
// The source is never modified.
func ToNRGBA(img image.Image) *image.NRGBA {
	b := img.Bounds()
	out := image.NewNRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	if src, ok := img.(*image.NRGBA); ok {
		for y := 0; y < b.Dy(); y++ {
			srcOff := src.PixOffset(b.Min.X, b.Min.Y+y)
			copy(out.Pix[y*out.Stride:y*out.Stride+b.Dx()*4], src.Pix[srcOff:srcOff+b.Dx()*4])
		}
		return out
	}
	draw.Draw(out, out.Bounds(), img, b.Min, draw.Src)
	return out
}

// AsNRGBA returns img itself when it is already canonical, otherwise a converted copy.
func AsNRGBA(img image.Image) *image.NRGBA {
	if n, ok := img.(*image.NRGBA); ok && n.Rect.Min == (image.Point{}) {
		return n
	}
	return ToNRGBA(img)
}

// Crop copies the part of img inside r (intersected with the image bounds) into a new image.
func Crop(img *image.NRGBA, r image.Rectangle) *image.NRGBA {
	r = r.Intersect(img.Bounds())
	if r.Empty() {
		return image.NewNRGBA(image.Rectangle{})
	}
	return ToNRGBA(img.SubImage(r))
}

// GetImageDimensions returns the width and height of an image
func GetImageDimensions(location string) (width, height int, err error) {
	img, err := LoadImage(location)
	if err != nil {
		return 0, 0, err
	}

	bounds := img.Bounds()
	return bounds.Dx(), bounds.Dy(), nil
}

// SavePNG writes img to path, creating parent directories.
func SavePNG(img image.Image, path string) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create output directory: %w", err)
		}
	}
	file, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := png.Encode(file, img); err != nil {
		file.Close()
		return err
	}
	return file.Close()
}
