package browser

import (
	"errors"
	"time"

	"go.uber.org/zap"
)

var (
	// ErrNotVisible is returned when an element does not become visible
	// within the expect timeout.
	ErrNotVisible = errors.New("element not visible")
	// ErrURLMismatch is returned when the page URL does not match.
	ErrURLMismatch = errors.New("url mismatch")
	// ErrValueMismatch is returned when a field value does not match.
	ErrValueMismatch = errors.New("value mismatch")
	// ErrClosed is returned by operations on a closed session.
	ErrClosed = errors.New("browser session closed")
)

// diagnosticTimeout caps reads made only to explain a failed assertion.
const diagnosticTimeout = time.Second

// Viewport is the page size in CSS pixels.
type Viewport struct {
	Width  int
	Height int
}

// Options configure a browser session.
type Options struct {
	Headless bool
	// Timeout bounds every page action (navigation, click, fill).
	Timeout time.Duration
	// ExpectTimeout bounds visibility, URL and value assertions.
	ExpectTimeout time.Duration
	// SlowMo delays each browser operation, useful when watching a headful run.
	SlowMo   time.Duration
	Viewport Viewport
	// BrowserPath points at a Chromium executable. Empty uses the backend's
	// own managed browser.
	BrowserPath string
	// Install downloads the Playwright driver and Chromium before launch.
	// Ignored by the rod backend, which fetches its own browser on demand.
	Install bool
	Logger  *zap.Logger
}

func (o *Options) defaults() {
	if o.Timeout <= 0 {
		o.Timeout = 30 * time.Second
	}
	if o.ExpectTimeout <= 0 {
		o.ExpectTimeout = 5 * time.Second
	}
	if o.Viewport.Width <= 0 || o.Viewport.Height <= 0 {
		o.Viewport = Viewport{Width: 1280, Height: 720}
	}
	if o.Logger == nil {
		o.Logger = zap.NewNop()
	}
}

func millis(d time.Duration) float64 {
	return float64(d.Milliseconds())
}
