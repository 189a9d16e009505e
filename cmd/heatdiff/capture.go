package main

import (
	"context"
	"fmt"
	"image"

	"heatdiff/pkg/capture"
	"heatdiff/pkg/images"
	"heatdiff/pkg/viewport"
)

func runCapture(ctx context.Context, e *env, args []string) error {
	fs, g := newFlagSet(e, "capture", "")
	url := fs.String("url", "", "page to capture")
	width := fs.Int("w", 1280, "viewport width in logical pixels")
	height := fs.Int("h", 800, "viewport height in logical pixels")
	ratio := fs.Float64("ratio", 1, "device scale factor")
	selector := fs.String("selector", "", "capture only the element matching this CSS selector")
	raw := fs.Bool("raw", false, "save the screenshot without normalization")
	output := fs.String("o", "capture.png", "output PNG file path")
	if err := setup(e, fs, g, args); err != nil {
		return err
	}
	if *url == "" {
		fs.Usage()
		return fmt.Errorf("capture needs -url")
	}

	browser, err := capture.Launch(ctx, e.cfg.Browser(e.logger))
	if err != nil {
		return err
	}
	defer browser.Close()

	page, err := browser.Open(ctx, *url, *width, *height, *ratio)
	if err != nil {
		return err
	}
	defer page.Close()

	c := capture.New(page, e.cfg.Capture.YOffset, e.logger)
	c.Normalizer = viewport.NewNormalizer(e.cfg.Resampler())
	c.Hooks.BeforeCapture = func() { e.logger.Debug("capture: taking screenshot", "url", *url) }

	var img *image.NRGBA
	switch {
	case *raw:
		img, err = c.Raw(ctx)
	case *selector != "":
		img, err = c.Element(ctx, *selector)
	default:
		img, err = c.Normalized(ctx)
	}
	if err != nil {
		return err
	}
	if err := images.SavePNG(img, *output); err != nil {
		return err
	}
	e.logger.Info("capture: saved", "path", *output, "width", img.Bounds().Dx(), "height", img.Bounds().Dy())
	return nil
}
