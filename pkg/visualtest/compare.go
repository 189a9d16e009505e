package visualtest

import (
	"errors"
	"fmt"
	"image"
	"image/color"
	"log/slog"

	"github.com/corona10/goimagehash"
	"github.com/spf13/afero"
	"golang.org/x/sync/errgroup"

	"heatdiff/pkg/images"
	"heatdiff/pkg/render"
)

// BackgroundColor is the page whitespace color. Baseline pixels of exactly this color do not
// count as content when the tolerance is computed.
var BackgroundColor = color.NRGBA{254, 254, 254, 255}

const (
	// DefaultAccuracy demands an exact match of all content pixels.
	DefaultAccuracy = 1000
	// DefaultHeatmapPath is where heatmaps go when no path is configured.
	DefaultHeatmapPath = "./heatmap.jpg"

	// spotDistance is how far (on either axis) a differing pixel must be from the last
	// spot anchor to start a new spot.
	spotDistance = 20
)

// ErrInvalidAccuracy is returned for accuracies outside [0, 1000].
var ErrInvalidAccuracy = errors.New("accuracy must be within [0, 1000]")

// Config configures a comparison
type Config struct {
	RenderHeatmap bool
	HeatmapPath   string

	// Accuracy is a per-mille figure: 1000 tolerates no differing content pixel, lower values
	// allow differences proportional to the number of non-background pixels.
	Accuracy int

	MarkerColor color.NRGBA

	// Legend also burns the summary strings into the heatmap pixels.
	Legend      bool
	JPEGQuality int

	// Workers shards the diff scan across column ranges. Values below 1 mean 1.
	Workers int

	// PerceptualHash adds the pHash distance between the two images to the result.
	PerceptualHash bool

	// Fs receives heatmap artifacts. Nil means the OS filesystem.
	Fs     afero.Fs
	Logger *slog.Logger
}

// DefaultConfig returns the default comparison settings.
func DefaultConfig() Config {
	return Config{
		RenderHeatmap: true,
		HeatmapPath:   DefaultHeatmapPath,
		Accuracy:      DefaultAccuracy,
		MarkerColor:   color.NRGBA{255, 0, 0, 255},
		JPEGQuality:   90,
		Workers:       1,
	}
}

// Validate checks the configuration.
func (c Config) Validate() error {
	if c.Accuracy < 0 || c.Accuracy > 1000 {
		return fmt.Errorf("%w: got %d", ErrInvalidAccuracy, c.Accuracy)
	}
	if c.RenderHeatmap && c.HeatmapPath == "" {
		return errors.New("heatmap path must not be empty when rendering is enabled")
	}
	return nil
}

func (c Config) style() render.Style {
	s := render.DefaultStyle()
	s.Marker = c.MarkerColor
	s.Legend = c.Legend
	if c.JPEGQuality > 0 {
		s.Quality = c.JPEGQuality
	}
	return s
}

// Result contains the results of an image comparison
type Result struct {
	Equal               bool
	TotalPixels         int
	DifferingPixels     int
	NonBackgroundPixels int
	SpotCount           int
	MaxAllowedDiff      int
	DeviationPercent    float64
	SizeMismatch        bool

	// PerceptualDistance is the pHash Hamming distance, or -1 when it was not computed.
	PerceptualDistance int

	// HeatmapPath is set once a heatmap has been written.
	HeatmapPath string
}

// Summary returns the numbers a heatmap carries.
func (r *Result) Summary() render.Summary {
	return render.Summary{
		DifferingPixels:  r.DifferingPixels,
		DeviationPercent: r.DeviationPercent,
		SpotCount:        r.SpotCount,
	}
}

// Trace records where a comparison found differences.
type Trace struct {
	// Diffs lists every differing pixel in scan order (column by column).
	Diffs []image.Point
	// Spots lists the anchors of the spots, in the order they were opened.
	Spots []image.Point
}

// MaxAllowedDiff returns how many differing pixels are tolerated for a baseline with
// nonBackground content pixels at the given accuracy.
func MaxAllowedDiff(nonBackground, accuracy int) int {
	return absInt(nonBackground-(nonBackground/1000)*accuracy) / 100
}

// Scan compares baseline and candidate without side effects. Neither image is modified.
func Scan(baseline, candidate image.Image, accuracy, workers int) (*Result, *Trace) {
	bb, cb := baseline.Bounds(), candidate.Bounds()
	res := &Result{
		TotalPixels:        bb.Dx() * bb.Dy(),
		PerceptualDistance: -1,
	}
	trace := &Trace{}

	if bb.Size() != cb.Size() {
		res.SizeMismatch = true
		res.DifferingPixels = res.TotalPixels
		res.SpotCount = 1
	} else {
		base, cand := images.AsNRGBA(baseline), images.AsNRGBA(candidate)
		trace.Diffs, res.NonBackgroundPixels = scanPixels(base, cand, workers)
		trace.Spots = cluster(trace.Diffs)
		res.DifferingPixels = len(trace.Diffs)
		res.SpotCount = len(trace.Spots)
	}

	res.MaxAllowedDiff = MaxAllowedDiff(res.NonBackgroundPixels, accuracy)
	res.Equal = !res.SizeMismatch && res.DifferingPixels <= res.MaxAllowedDiff
	if res.TotalPixels > 0 {
		res.DeviationPercent = float64(res.DifferingPixels) * 100 / float64(res.TotalPixels)
	}
	return res, trace
}

type shard struct {
	diffs         []image.Point
	nonBackground int
}

// scanPixels walks both images column by column. Column ranges may be scanned concurrently;
// the shards are concatenated in column order so the diff list keeps the sequential order.
func scanPixels(base, cand *image.NRGBA, workers int) ([]image.Point, int) {
	width := base.Rect.Dx()
	workers = max(min(workers, width), 1)

	shards := make([]shard, workers)
	var g errgroup.Group
	for i := 0; i < workers; i++ {
		from, to := i*width/workers, (i+1)*width/workers
		g.Go(func() error {
			shards[i] = scanColumns(base, cand, from, to)
			return nil
		})
	}
	_ = g.Wait()

	var diffs []image.Point
	nonBackground := 0
	for _, s := range shards {
		diffs = append(diffs, s.diffs...)
		nonBackground += s.nonBackground
	}
	return diffs, nonBackground
}

func scanColumns(base, cand *image.NRGBA, from, to int) shard {
	var s shard
	height := base.Rect.Dy()
	for x := from; x < to; x++ {
		for y := 0; y < height; y++ {
			b := base.NRGBAAt(x, y)
			if b != BackgroundColor {
				s.nonBackground++
			}
			if b != cand.NRGBAAt(x, y) {
				s.diffs = append(s.diffs, image.Point{x, y})
			}
		}
	}
	return s
}

// cluster groups differing pixels into spots. A pixel opens a new spot when the last anchor
// lies more than spotDistance before it on either axis. The rule depends on scan order and
// undercounts clusters approached from the other axis; heatmaps and spot counts are defined
// by it, so keep it as is.
func cluster(diffs []image.Point) []image.Point {
	var spots []image.Point
	last := image.Point{-spotDistance - 1, -spotDistance - 1}
	for _, p := range diffs {
		if last.X < p.X-spotDistance || last.Y < p.Y-spotDistance {
			spots = append(spots, p)
			last = p
		}
	}
	return spots
}

// Compare scans baseline against candidate and, on mismatch, writes a heatmap when configured.
// The returned Result is complete even when the heatmap could not be written; that failure
// comes back as a *render.ArtifactWriteError next to it.
func Compare(baseline, candidate image.Image, cfg Config) (*Result, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	log := cfg.Logger
	if log == nil {
		log = slog.Default()
	}

	res, trace := Scan(baseline, candidate, cfg.Accuracy, cfg.Workers)
	if cfg.PerceptualHash {
		res.PerceptualDistance = perceptualDistance(baseline, candidate, log)
	}
	log.Debug("visualtest: compared",
		"equal", res.Equal,
		"differing", res.DifferingPixels,
		"non_background", res.NonBackgroundPixels,
		"max_allowed", res.MaxAllowedDiff,
		"spots", res.SpotCount)

	if res.Equal || !cfg.RenderHeatmap {
		return res, nil
	}

	fs := cfg.Fs
	if fs == nil {
		fs = afero.NewOsFs()
	}
	heatmap := render.Heatmap(candidate, trace.Spots, trace.Diffs, res.Summary(), cfg.style())
	if err := render.WriteHeatmap(fs, cfg.HeatmapPath, heatmap, res.Summary(), cfg.style().Quality); err != nil {
		log.Warn("visualtest: heatmap not written", "path", cfg.HeatmapPath, "error", err)
		return res, err
	}
	res.HeatmapPath = cfg.HeatmapPath
	return res, nil
}

func perceptualDistance(a, b image.Image, log *slog.Logger) int {
	ha, err := goimagehash.PerceptionHash(a)
	if err != nil {
		log.Debug("visualtest: perceptual hash failed", "error", err)
		return -1
	}
	hb, err := goimagehash.PerceptionHash(b)
	if err != nil {
		log.Debug("visualtest: perceptual hash failed", "error", err)
		return -1
	}
	d, err := ha.Distance(hb)
	if err != nil {
		return -1
	}
	return d
}

// CompareFiles loads a baseline and a candidate and compares them. Baselines go through the
// image cache, candidates are read fresh. Decode failures abort with *images.DecodeError.
func CompareFiles(baselinePath, candidatePath string, cfg Config) (*Result, error) {
	var baseline, candidate *image.NRGBA
	var g errgroup.Group
	g.Go(func() error {
		img, err := images.LoadImage(baselinePath)
		if err != nil {
			return fmt.Errorf("failed to load baseline image: %w", err)
		}
		baseline = img
		return nil
	})
	g.Go(func() error {
		img, err := images.Load(candidatePath)
		if err != nil {
			return fmt.Errorf("failed to load candidate image: %w", err)
		}
		candidate = img
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return Compare(baseline, candidate, cfg)
}

func absInt(x int) int {
	if x < 0 {
		return -x
	}
	return x
}
