// Command heatview shows a baseline, a candidate and their heatmap side by side.
package main

import (
	"flag"
	"fmt"
	"image"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"fyne.io/fyne/v2"
	"fyne.io/fyne/v2/app"
	"fyne.io/fyne/v2/canvas"
	"fyne.io/fyne/v2/container"
	"fyne.io/fyne/v2/widget"

	"heatdiff/pkg/config"
	"heatdiff/pkg/images"
	"heatdiff/pkg/render"
	"heatdiff/pkg/visualtest"
)

func main() {
	configPath := flag.String("config", "", "path to heatdiff.yaml")
	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: heatview [flags] [baseline] [candidate]\n\nFlags:\n")
		flag.PrintDefaults()
	}
	flag.Parse()

	cfg := config.Default()
	if *configPath != "" {
		var err error
		if cfg, err = config.LoadFile(*configPath); err != nil {
			fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
			os.Exit(1)
		}
	}

	a := app.New()
	w := a.NewWindow("heatview")
	w.Resize(fyne.NewSize(1024, 768))

	baselineImg := newView()
	candidateImg := newView()
	heatmapImg := newView()
	tabs := container.NewAppTabs(
		container.NewTabItem("Baseline", container.NewScroll(baselineImg)),
		container.NewTabItem("Candidate", container.NewScroll(candidateImg)),
		container.NewTabItem("Heatmap", container.NewScroll(heatmapImg)),
	)

	status := widget.NewLabel("Enter a baseline and a candidate, then press Compare")

	baselineEntry := widget.NewEntry()
	baselineEntry.SetPlaceHolder("baseline.png")
	candidateEntry := widget.NewEntry()
	candidateEntry.SetPlaceHolder("candidate.png")
	if flag.NArg() >= 2 {
		baselineEntry.SetText(flag.Arg(0))
		candidateEntry.SetText(flag.Arg(1))
	}

	heatmapPath := filepath.Join(os.TempDir(), "heatview-heatmap.jpg")
	compare := func() {
		baseline, candidate := baselineEntry.Text, candidateEntry.Text
		status.SetText("Comparing...")
		go func() {
			cmp := cfg.Comparison()
			cmp.HeatmapPath = heatmapPath
			cmp.Logger = slog.Default()
			images.Forget(baseline)

			res, err := visualtest.CompareFiles(baseline, candidate, cmp)
			fyne.Do(func() {
				if res == nil {
					status.SetText("Error: " + err.Error())
					return
				}
				show(baselineImg, baseline)
				show(candidateImg, candidate)
				if res.Equal {
					heatmapImg.Image = nil
					heatmapImg.Refresh()
					status.SetText("Equal: " + summaryLine(res.Summary()))
					tabs.SelectIndex(1)
					return
				}
				if res.HeatmapPath == "" {
					status.SetText("Different: " + summaryLine(res.Summary()))
					return
				}
				show(heatmapImg, res.HeatmapPath)
				status.SetText("Different: " + heatmapSummary(res.HeatmapPath))
				tabs.SelectIndex(2)
			})
		}()
	}
	baselineEntry.OnSubmitted = func(string) { compare() }
	candidateEntry.OnSubmitted = func(string) { compare() }
	compareButton := widget.NewButton("Compare", compare)

	inputs := container.NewGridWithColumns(2, baselineEntry, candidateEntry)
	topBar := container.NewBorder(nil, nil, nil, compareButton, inputs)
	w.SetContent(container.NewBorder(topBar, status, nil, nil, tabs))
	w.Canvas().Focus(baselineEntry)

	if flag.NArg() >= 2 {
		compare()
	}
	w.ShowAndRun()
}

func newView() *canvas.Image {
	img := canvas.NewImageFromImage(image.NewNRGBA(image.Rect(0, 0, 1, 1)))
	img.FillMode = canvas.ImageFillOriginal
	return img
}

func show(view *canvas.Image, path string) {
	img, err := images.Load(path)
	if err != nil {
		slog.Warn("heatview: cannot display image", "path", path, "error", err)
		return
	}
	view.Image = img
	view.Refresh()
}

func summaryLine(s render.Summary) string {
	return strings.Join([]string{s.DifferingText(), s.DeviationText(), s.SpotsText()}, ", ")
}

// heatmapSummary reads the summary back from the written artifact.
func heatmapSummary(path string) string {
	f, err := os.Open(path)
	if err != nil {
		return err.Error()
	}
	defer f.Close()
	tags, err := render.ReadTags(f)
	if err != nil {
		return err.Error()
	}
	return strings.Join([]string{tags[render.TagDiffering], tags[render.TagDeviation], tags[render.TagSpots]}, ", ")
}
