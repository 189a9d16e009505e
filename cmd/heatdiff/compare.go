package main

import (
	"context"
	"flag"
	"fmt"
	"path/filepath"

	"heatdiff/pkg/history"
	"heatdiff/pkg/visualtest"
)

func runCompare(ctx context.Context, e *env, args []string) error {
	fs, g := newFlagSet(e, "compare", "<baseline> <candidate>")
	accuracy := fs.Int("accuracy", visualtest.DefaultAccuracy, "per-mille accuracy, 0-1000")
	heatmap := fs.String("heatmap", visualtest.DefaultHeatmapPath, "heatmap output path")
	heatmapDir := fs.String("heatmap-dir", "heatmaps", "heatmap directory for -suite")
	noHeatmap := fs.Bool("no-heatmap", false, "do not write heatmaps")
	workers := fs.Int("workers", 1, "parallel column shards per comparison")
	legend := fs.Bool("legend", false, "burn the summary into the heatmap")
	phash := fs.Bool("phash", false, "report the perceptual hash distance")
	suite := fs.Bool("suite", false, "compare two directories file by file")
	historyPath := fs.String("history", "", "record results in this ledger (overrides history.path)")
	if err := setup(e, fs, g, args); err != nil {
		return err
	}
	if fs.NArg() != 2 {
		fs.Usage()
		return fmt.Errorf("compare needs two arguments, got %d", fs.NArg())
	}

	cfg := e.cfg.Comparison()
	cfg.Logger = e.logger
	fs.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "accuracy":
			cfg.Accuracy = *accuracy
		case "heatmap":
			cfg.HeatmapPath = *heatmap
		case "no-heatmap":
			cfg.RenderHeatmap = !*noHeatmap
		case "workers":
			cfg.Workers = *workers
		case "legend":
			cfg.Legend = *legend
		case "phash":
			cfg.PerceptualHash = *phash
		case "history":
			e.cfg.History.Path = *historyPath
		}
	})

	var ledger *history.Store
	if e.cfg.History.Path != "" {
		var err error
		if ledger, err = history.Open(e.cfg.History.Path); err != nil {
			return err
		}
		defer ledger.Close()
	}

	var cases []visualtest.CaseResult
	if *suite {
		var err error
		cases, err = visualtest.RunSuite(fs.Arg(0), fs.Arg(1), *heatmapDir, cfg)
		if err != nil {
			return err
		}
	} else {
		c := visualtest.CaseResult{Name: filepath.Base(fs.Arg(0)), Baseline: fs.Arg(0), Candidate: fs.Arg(1)}
		c.Result, c.Err = visualtest.CompareFiles(c.Baseline, c.Candidate, cfg)
		cases = append(cases, c)
	}

	failed, broken := 0, 0
	for _, c := range cases {
		if c.Result == nil {
			broken++
			fmt.Fprintf(e.stdout, "ERROR %s: %v\n", c.Name, c.Err)
			continue
		}
		if c.Err != nil {
			e.logger.Warn("compare: heatmap not written", "case", c.Name, "error", c.Err)
		}
		printResult(e, c)
		if !c.Result.Equal {
			failed++
		}
		if ledger != nil {
			if _, err := ledger.Record(ctx, history.FromResult(c.Baseline, c.Candidate, c.Result)); err != nil {
				e.logger.Warn("compare: history not recorded", "case", c.Name, "error", err)
			}
		}
	}

	if *suite {
		fmt.Fprintf(e.stdout, "\n%d passed, %d failed, %d errors\n", len(cases)-failed-broken, failed, broken)
	}
	switch {
	case broken > 0:
		return fmt.Errorf("%d comparisons could not run", broken)
	case failed > 0:
		return errMismatch
	}
	return nil
}

func printResult(e *env, c visualtest.CaseResult) {
	r := c.Result
	verdict := "PASS"
	if !r.Equal {
		verdict = "FAIL"
	}
	s := r.Summary()
	fmt.Fprintf(e.stdout, "%s %s: %s, %s, %s", verdict, c.Name, s.DifferingText(), s.DeviationText(), s.SpotsText())
	if r.SizeMismatch {
		fmt.Fprint(e.stdout, " (size mismatch)")
	}
	if r.PerceptualDistance >= 0 {
		fmt.Fprintf(e.stdout, " (phash distance %d)", r.PerceptualDistance)
	}
	fmt.Fprintln(e.stdout)
	if r.HeatmapPath != "" {
		fmt.Fprintf(e.stdout, "  heatmap: %s\n", r.HeatmapPath)
	}
}
