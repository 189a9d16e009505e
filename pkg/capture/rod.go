package capture

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
	"github.com/go-rod/stealth"

	"heatdiff/pkg/viewport"
)

// DefaultElementTimeout bounds element lookups.
const DefaultElementTimeout = 5 * time.Second

// pageGeometryJS reads an element's box in page coordinates.
const pageGeometryJS = `function() {
	const r = this.getBoundingClientRect();
	return {x: r.left + window.pageXOffset, y: r.top + window.pageYOffset, width: r.width, height: r.height};
}`

// BrowserConfig configures Chrome for captures.
type BrowserConfig struct {
	// RemoteURL is the DevTools websocket of a running Chrome. Empty launches a local one.
	RemoteURL      string
	Headless       bool
	Stealth        bool
	// ElementTimeout bounds element lookups on opened pages. Zero means DefaultElementTimeout.
	ElementTimeout time.Duration
	Logger         *slog.Logger
}

// Browser is a connected Chrome.
type Browser struct {
	cfg     BrowserConfig
	browser *rod.Browser
	lnch    *launcher.Launcher
}

// Launch starts (or attaches to) Chrome.
func Launch(ctx context.Context, cfg BrowserConfig) (*Browser, error) {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	log := cfg.Logger

	b := &Browser{cfg: cfg}
	wsURL := cfg.RemoteURL
	if wsURL != "" {
		log.Info("capture: connecting to remote chrome", "url", wsURL)
	} else {
		l := launcher.New().Headless(cfg.Headless)
		u, err := l.Launch()
		if err != nil {
			return nil, fmt.Errorf("capture: launch: %w", err)
		}
		wsURL = u
		b.lnch = l
		log.Info("capture: launched local chrome", "url", wsURL, "headless", cfg.Headless)
	}

	b.browser = rod.New().ControlURL(wsURL).Context(ctx)
	if err := b.browser.Connect(); err != nil {
		if b.lnch != nil {
			b.lnch.Kill()
		}
		return nil, fmt.Errorf("capture: connect: %w", err)
	}
	return b, nil
}

// Open creates a tab, sizes its viewport and navigates to pageURL.
func (b *Browser) Open(ctx context.Context, pageURL string, width, height int, ratio float64) (*RodPage, error) {
	var page *rod.Page
	var err error
	if b.cfg.Stealth {
		page, err = stealth.Page(b.browser)
	} else {
		page, err = b.browser.Page(proto.TargetCreateTarget{URL: ""})
	}
	if err != nil {
		return nil, fmt.Errorf("capture: create tab: %w", err)
	}

	if width > 0 && height > 0 {
		err = page.SetViewport(&proto.EmulationSetDeviceMetricsOverride{
			Width:             width,
			Height:            height,
			DeviceScaleFactor: ratio,
		})
		if err != nil {
			page.Close()
			return nil, fmt.Errorf("capture: set viewport: %w", err)
		}
	}

	navCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	if err := page.Context(navCtx).Navigate(pageURL); err != nil {
		page.Close()
		return nil, fmt.Errorf("capture: navigate %s: %w", pageURL, err)
	}
	if err := page.Context(navCtx).WaitLoad(); err != nil {
		b.cfg.Logger.Warn("capture: wait load timeout", "url", pageURL, "error", err)
	}
	return NewRodPage(page, b.cfg.ElementTimeout), nil
}

// Close disconnects and, for launched browsers, kills Chrome.
func (b *Browser) Close() error {
	var err error
	if b.browser != nil {
		err = b.browser.Close()
	}
	if b.lnch != nil {
		b.lnch.Kill()
		b.lnch.Cleanup()
	}
	return err
}

// RodPage implements Page on a Chrome tab.
type RodPage struct {
	page    *rod.Page
	timeout time.Duration
}

// NewRodPage wraps page; element lookups give up after timeout.
func NewRodPage(page *rod.Page, timeout time.Duration) *RodPage {
	if timeout <= 0 {
		timeout = DefaultElementTimeout
	}
	return &RodPage{page: page, timeout: timeout}
}

// Close closes the tab.
func (p *RodPage) Close() error {
	return p.page.Close()
}

// Screenshot captures the visible viewport as PNG.
func (p *RodPage) Screenshot(ctx context.Context) ([]byte, error) {
	return p.page.Context(ctx).Screenshot(false, &proto.PageCaptureScreenshot{
		Format: proto.PageCaptureScreenshotFormatPng,
	})
}

// EvalNumber evaluates script in the page.
func (p *RodPage) EvalNumber(ctx context.Context, script string, args ...any) (float64, error) {
	res, err := p.page.Context(ctx).Eval(script, args...)
	if err != nil {
		return 0, err
	}
	if res.Type != proto.RuntimeRemoteObjectTypeNumber {
		return 0, ErrNoValue
	}
	return res.Value.Num(), nil
}

// Element finds selector and reads its page geometry. If the geometry script fails (some
// drivers cannot report a location for off-screen elements), the element is scrolled into
// view and its on-screen box is used instead.
func (p *RodPage) Element(ctx context.Context, selector string) (viewport.Geometry, error) {
	el, err := p.page.Context(ctx).Timeout(p.timeout).Element(selector)
	if err != nil {
		return viewport.Geometry{}, &ElementNotFoundError{Selector: selector, Err: err}
	}
	el = el.CancelTimeout().Context(ctx)

	res, err := el.Eval(pageGeometryJS)
	if err == nil {
		v := res.Value
		return viewport.Geometry{
			X:      int(math.Round(v.Get("x").Num())),
			Y:      int(math.Round(v.Get("y").Num())),
			Width:  int(math.Round(v.Get("width").Num())),
			Height: int(math.Round(v.Get("height").Num())),
		}, nil
	}

	if err := el.ScrollIntoView(); err != nil {
		return viewport.Geometry{}, fmt.Errorf("capture: scroll %q into view: %w", selector, err)
	}
	shape, err := el.Shape()
	if err != nil {
		return viewport.Geometry{}, fmt.Errorf("capture: locate %q: %w", selector, err)
	}
	box := shape.Box()
	return viewport.Geometry{
		X:      int(math.Round(box.X)),
		Y:      int(math.Round(box.Y)),
		Width:  int(math.Round(box.Width)),
		Height: int(math.Round(box.Height)),
	}, nil
}
