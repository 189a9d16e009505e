package main

import (
	"context"
	"fmt"
	"os"
	"sort"
	"text/tabwriter"

	"github.com/spf13/afero"

	"heatdiff/pkg/history"
	"heatdiff/pkg/images"
	"heatdiff/pkg/render"
	"heatdiff/pkg/viewport"
	"heatdiff/pkg/visualtest"
)

func runNormalize(_ context.Context, e *env, args []string) error {
	fs, g := newFlagSet(e, "normalize", "<raw.png>")
	ratio := fs.Float64("ratio", 1, "device pixel ratio of the capture")
	offset := fs.Int("offset", 0, "browser chrome height above the content, logical pixels")
	innerHeight := fs.Int("inner-height", 0, "viewport height in logical pixels (0 keeps everything below the offset)")
	resampler := fs.String("resampler", "", "nearest, bilinear, catmullrom or lanczos (overrides normalize.resampler)")
	output := fs.String("o", "normalized.png", "output PNG file path")
	if err := setup(e, fs, g, args); err != nil {
		return err
	}
	if fs.NArg() != 1 {
		fs.Usage()
		return fmt.Errorf("normalize needs one argument, got %d", fs.NArg())
	}

	r := e.cfg.Resampler()
	if *resampler != "" {
		var err error
		if r, err = viewport.ParseResampler(*resampler); err != nil {
			return err
		}
	}

	raw, err := images.Load(fs.Arg(0))
	if err != nil {
		return err
	}
	md := viewport.Metadata{DevicePixelRatio: *ratio, VerticalOffset: *offset, InnerHeight: *innerHeight}
	if md.InnerHeight == 0 {
		md.InnerHeight = raw.Bounds().Dy()
	}
	img, err := viewport.NewNormalizer(r).Normalize(raw, md)
	if err != nil {
		return err
	}
	if err := images.SavePNG(img, *output); err != nil {
		return err
	}
	e.logger.Info("normalize: saved", "path", *output, "width", img.Bounds().Dx(), "height", img.Bounds().Dy())
	return nil
}

func runRegion(_ context.Context, e *env, args []string) error {
	fs, g := newFlagSet(e, "region", "<normalized.png>")
	var geom viewport.Geometry
	fs.IntVar(&geom.X, "x", 0, "element left, page coordinates")
	fs.IntVar(&geom.Y, "y", 0, "element top, page coordinates")
	fs.IntVar(&geom.Width, "w", 0, "element width")
	fs.IntVar(&geom.Height, "h", 0, "element height")
	scroll := fs.Int("scroll", 0, "vertical scroll offset at capture time")
	output := fs.String("o", "region.png", "output PNG file path")
	if err := setup(e, fs, g, args); err != nil {
		return err
	}
	if fs.NArg() != 1 {
		fs.Usage()
		return fmt.Errorf("region needs one argument, got %d", fs.NArg())
	}

	img, err := images.Load(fs.Arg(0))
	if err != nil {
		return err
	}
	region := viewport.ExtractRegion(img, geom, *scroll)
	if region.Bounds().Empty() {
		e.logger.Warn("region: element is outside the captured viewport", "geometry", geom, "scroll", *scroll)
	}
	return images.SavePNG(region, *output)
}

func runInspect(_ context.Context, e *env, args []string) error {
	fs, g := newFlagSet(e, "inspect", "<heatmap.jpg>")
	if err := setup(e, fs, g, args); err != nil {
		return err
	}
	if fs.NArg() != 1 {
		fs.Usage()
		return fmt.Errorf("inspect needs one argument, got %d", fs.NArg())
	}

	f, err := os.Open(fs.Arg(0))
	if err != nil {
		return err
	}
	defer f.Close()
	tags, err := render.ReadTags(f)
	if err != nil {
		return err
	}
	if len(tags) == 0 {
		return fmt.Errorf("%s carries no heatmap summary", fs.Arg(0))
	}

	ids := make([]int, 0, len(tags))
	for id := range tags {
		ids = append(ids, int(id))
	}
	sort.Ints(ids)
	for _, id := range ids {
		fmt.Fprintf(e.stdout, "%d: %s\n", id, tags[uint16(id)])
	}
	return nil
}

func runApprove(_ context.Context, e *env, args []string) error {
	fs, g := newFlagSet(e, "approve", "<candidate> <baseline>")
	if err := setup(e, fs, g, args); err != nil {
		return err
	}
	if fs.NArg() != 2 {
		fs.Usage()
		return fmt.Errorf("approve needs two arguments, got %d", fs.NArg())
	}
	if err := visualtest.Approve(afero.NewOsFs(), fs.Arg(0), fs.Arg(1)); err != nil {
		return err
	}
	e.logger.Info("approve: baseline replaced", "baseline", fs.Arg(1), "candidate", fs.Arg(0))
	return nil
}

func runHistory(ctx context.Context, e *env, args []string) error {
	fs, g := newFlagSet(e, "history", "")
	limit := fs.Int("n", 20, "number of runs to list (0 lists all)")
	path := fs.String("db", "", "ledger path (overrides history.path)")
	baseline := fs.String("baseline", "", "print the failure rate of this baseline instead")
	if err := setup(e, fs, g, args); err != nil {
		return err
	}
	if *path == "" {
		*path = e.cfg.History.Path
	}
	if *path == "" {
		return fmt.Errorf("no ledger configured: pass -db or set history.path")
	}

	store, err := history.Open(*path)
	if err != nil {
		return err
	}
	defer store.Close()

	if *baseline != "" {
		rate, n, err := store.FailureRate(ctx, *baseline)
		if err != nil {
			return err
		}
		fmt.Fprintf(e.stdout, "%s: %d runs, %.1f%% failed\n", *baseline, n, rate*100)
		return nil
	}

	entries, err := store.Recent(ctx, *limit)
	if err != nil {
		return err
	}
	tw := tabwriter.NewWriter(e.stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tWHEN\tRESULT\tDIFFERING\tDEVIATION\tSPOTS\tBASELINE")
	for _, en := range entries {
		verdict := "PASS"
		if !en.Equal {
			verdict = "FAIL"
		}
		fmt.Fprintf(tw, "%d\t%s\t%s\t%d\t%s%%\t%d\t%s\n",
			en.ID, en.RecordedAt.Format("2006-01-02 15:04:05"), verdict, en.DifferingPixels,
			render.FormatDeviation(en.DeviationPercent), en.SpotCount, en.Baseline)
	}
	return tw.Flush()
}
