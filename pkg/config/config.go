// Package config handles heatdiff configuration from YAML files.
package config

import (
	"fmt"
	"image/color"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"heatdiff/pkg/capture"
	"heatdiff/pkg/viewport"
	"heatdiff/pkg/visualtest"
)

// Config is the top-level heatdiff configuration.
type Config struct {
	Compare   CompareConfig   `yaml:"compare"`
	Normalize NormalizeConfig `yaml:"normalize"`
	Capture   CaptureConfig   `yaml:"capture"`
	History   HistoryConfig   `yaml:"history"`
}

// CompareConfig mirrors visualtest.Config.
type CompareConfig struct {
	RenderHeatmap  *bool  `yaml:"render_heatmap"`
	HeatmapPath    string `yaml:"heatmap_path"`
	Accuracy       *int   `yaml:"accuracy"`
	MarkerColor    string `yaml:"marker_color"` // #rrggbb
	Workers        int    `yaml:"workers"`
	PerceptualHash bool   `yaml:"perceptual_hash"`
	Legend         bool   `yaml:"legend"`
	JPEGQuality    int    `yaml:"jpeg_quality"`
}

// NormalizeConfig selects the resampling filter.
type NormalizeConfig struct {
	Resampler string `yaml:"resampler"` // nearest | bilinear | catmullrom | lanczos
}

// CaptureConfig controls the browser used for captures.
type CaptureConfig struct {
	RemoteURL string        `yaml:"remote_url"`
	Headless  *bool         `yaml:"headless"`
	Stealth   bool          `yaml:"stealth"`
	Timeout   time.Duration `yaml:"timeout"`
	YOffset   int           `yaml:"y_offset"`
}

// HistoryConfig locates the run ledger. An empty path disables it.
type HistoryConfig struct {
	Path string `yaml:"path"`
}

// Default returns the built-in configuration.
func Default() *Config {
	cfg := &Config{}
	cfg.applyDefaults()
	return cfg
}

// LoadFile reads a YAML configuration file.
func LoadFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return Parse(data)
}

// Parse decodes YAML, fills defaults and validates.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Compare.RenderHeatmap == nil {
		v := true
		c.Compare.RenderHeatmap = &v
	}
	if c.Compare.HeatmapPath == "" {
		c.Compare.HeatmapPath = visualtest.DefaultHeatmapPath
	}
	if c.Compare.Accuracy == nil {
		v := visualtest.DefaultAccuracy
		c.Compare.Accuracy = &v
	}
	if c.Compare.MarkerColor == "" {
		c.Compare.MarkerColor = "#ff0000"
	}
	if c.Compare.Workers <= 0 {
		c.Compare.Workers = 1
	}
	if c.Compare.JPEGQuality <= 0 {
		c.Compare.JPEGQuality = 90
	}
	if c.Normalize.Resampler == "" {
		c.Normalize.Resampler = "bilinear"
	}
	if c.Capture.Headless == nil {
		v := true
		c.Capture.Headless = &v
	}
	if c.Capture.Timeout <= 0 {
		c.Capture.Timeout = capture.DefaultElementTimeout
	}
}

// Validate checks value ranges.
func (c *Config) Validate() error {
	if _, err := ParseColor(c.Compare.MarkerColor); err != nil {
		return fmt.Errorf("config: compare.marker_color: %w", err)
	}
	if c.Compare.JPEGQuality > 100 {
		return fmt.Errorf("config: compare.jpeg_quality must be within [1, 100], got %d", c.Compare.JPEGQuality)
	}
	if _, err := viewport.ParseResampler(c.Normalize.Resampler); err != nil {
		return fmt.Errorf("config: normalize.resampler: %w", err)
	}
	if err := c.Comparison().Validate(); err != nil {
		return fmt.Errorf("config: compare: %w", err)
	}
	return nil
}

// Comparison builds the comparison settings.
func (c *Config) Comparison() visualtest.Config {
	marker, _ := ParseColor(c.Compare.MarkerColor)
	out := visualtest.DefaultConfig()
	out.RenderHeatmap = *c.Compare.RenderHeatmap
	out.HeatmapPath = c.Compare.HeatmapPath
	out.Accuracy = *c.Compare.Accuracy
	out.MarkerColor = marker
	out.Workers = c.Compare.Workers
	out.PerceptualHash = c.Compare.PerceptualHash
	out.Legend = c.Compare.Legend
	out.JPEGQuality = c.Compare.JPEGQuality
	return out
}

// Browser builds the capture browser settings.
func (c *Config) Browser(logger *slog.Logger) capture.BrowserConfig {
	return capture.BrowserConfig{
		RemoteURL:      c.Capture.RemoteURL,
		Headless:       *c.Capture.Headless,
		Stealth:        c.Capture.Stealth,
		ElementTimeout: c.Capture.Timeout,
		Logger:         logger,
	}
}

// Resampler returns the configured resampling filter.
func (c *Config) Resampler() viewport.Resampler {
	r, err := viewport.ParseResampler(c.Normalize.Resampler)
	if err != nil {
		return viewport.Bilinear
	}
	return r
}

// ParseColor parses #rrggbb (or rrggbb) into an opaque color.
func ParseColor(s string) (color.NRGBA, error) {
	hex := strings.TrimPrefix(strings.TrimSpace(s), "#")
	if len(hex) != 6 {
		return color.NRGBA{}, fmt.Errorf("want #rrggbb, got %q", s)
	}
	v, err := strconv.ParseUint(hex, 16, 32)
	if err != nil {
		return color.NRGBA{}, fmt.Errorf("want #rrggbb, got %q", s)
	}
	return color.NRGBA{uint8(v >> 16), uint8(v >> 8), uint8(v), 255}, nil
}
