package visualtest

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/spf13/afero"

	"heatdiff/pkg/images"
)

// CaseResult is the outcome of one baseline/candidate pair in a suite.
type CaseResult struct {
	Name      string
	Baseline  string
	Candidate string
	Result    *Result
	Err       error
}

// RunSuite compares every image in baselineDir with the file of the same name in
// candidateDir. Heatmaps land in heatmapDir as <name>.jpg. A candidate missing for a
// baseline is reported as an error case; the suite continues.
func RunSuite(baselineDir, candidateDir, heatmapDir string, cfg Config) ([]CaseResult, error) {
	entries, err := os.ReadDir(baselineDir)
	if err != nil {
		return nil, fmt.Errorf("failed to read baseline directory: %w", err)
	}

	var names []string
	for _, e := range entries {
		if e.IsDir() || !isImageFile(e.Name()) {
			continue
		}
		names = append(names, e.Name())
	}
	sort.Strings(names)

	results := make([]CaseResult, 0, len(names))
	for _, name := range names {
		c := CaseResult{
			Name:      strings.TrimSuffix(name, filepath.Ext(name)),
			Baseline:  filepath.Join(baselineDir, name),
			Candidate: filepath.Join(candidateDir, name),
		}
		caseCfg := cfg
		caseCfg.HeatmapPath = filepath.Join(heatmapDir, c.Name+".jpg")
		c.Result, c.Err = CompareFiles(c.Baseline, c.Candidate, caseCfg)
		results = append(results, c)
	}
	return results, nil
}

func isImageFile(name string) bool {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".png", ".jpg", ".jpeg", ".gif", ".bmp", ".webp":
		return true
	}
	return false
}

// Approve replaces a baseline with the candidate it was compared against.
// Use this when a visual change is intentional.
func Approve(fs afero.Fs, candidatePath, baselinePath string) error {
	in, err := fs.Open(candidatePath)
	if err != nil {
		return fmt.Errorf("failed to open candidate: %w", err)
	}
	defer in.Close()

	if err := fs.MkdirAll(filepath.Dir(baselinePath), 0755); err != nil {
		return fmt.Errorf("failed to create baseline directory: %w", err)
	}
	out, err := fs.Create(baselinePath)
	if err != nil {
		return fmt.Errorf("failed to create baseline: %w", err)
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return fmt.Errorf("failed to copy candidate: %w", err)
	}
	if err := out.Close(); err != nil {
		return err
	}

	images.Forget(baselinePath)
	return nil
}
