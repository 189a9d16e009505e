package visualtest

import (
	"image/color"
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/afero"
)

func TestRunSuite(t *testing.T) {
	root := t.TempDir()
	baselines := filepath.Join(root, "baselines")
	candidates := filepath.Join(root, "candidates")
	heatmaps := filepath.Join(root, "heatmaps")
	for _, dir := range []string{baselines, candidates} {
		if err := os.MkdirAll(dir, 0755); err != nil {
			t.Fatal(err)
		}
	}

	saveTestImage(t, filled(8, 8, red), filepath.Join(baselines, "home.png"))
	saveTestImage(t, filled(8, 8, red), filepath.Join(candidates, "home.png"))
	saveTestImage(t, filled(8, 8, red), filepath.Join(baselines, "login.png"))
	saveTestImage(t, filled(8, 8, color.NRGBA{0, 255, 0, 255}), filepath.Join(candidates, "login.png"))
	saveTestImage(t, filled(8, 8, red), filepath.Join(baselines, "orphan.png"))
	if err := os.WriteFile(filepath.Join(baselines, "notes.txt"), []byte("ignored"), 0644); err != nil {
		t.Fatal(err)
	}

	results, err := RunSuite(baselines, candidates, heatmaps, DefaultConfig())
	if err != nil {
		t.Fatalf("suite failed: %v", err)
	}
	if len(results) != 3 {
		t.Fatalf("expected 3 cases, got %d", len(results))
	}

	byName := map[string]CaseResult{}
	for _, r := range results {
		byName[r.Name] = r
	}
	if c := byName["home"]; c.Err != nil || !c.Result.Equal {
		t.Errorf("expected home to pass, got %+v", c)
	}
	if c := byName["login"]; c.Err != nil || c.Result.Equal {
		t.Errorf("expected login to fail, got %+v", c)
	} else if _, err := os.Stat(filepath.Join(heatmaps, "login.jpg")); err != nil {
		t.Errorf("expected login heatmap: %v", err)
	}
	if c := byName["orphan"]; c.Err == nil {
		t.Error("expected an error for a baseline without candidate")
	}
}

func TestApprove(t *testing.T) {
	fs := afero.NewMemMapFs()
	if err := afero.WriteFile(fs, "run/candidate.png", []byte("new pixels"), 0644); err != nil {
		t.Fatal(err)
	}
	if err := afero.WriteFile(fs, "baselines/home.png", []byte("old pixels"), 0644); err != nil {
		t.Fatal(err)
	}

	if err := Approve(fs, "run/candidate.png", "baselines/home.png"); err != nil {
		t.Fatalf("approve failed: %v", err)
	}
	data, err := afero.ReadFile(fs, "baselines/home.png")
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != "new pixels" {
		t.Errorf("expected baseline to be replaced, got %q", data)
	}

	if err := Approve(fs, "run/missing.png", "baselines/home.png"); err == nil {
		t.Error("expected an error for a missing candidate")
	}
}
