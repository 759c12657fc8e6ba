package helpers

import (
	"context"
	"fmt"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"go.uber.org/zap/zaptest"

	"github.com/gotrs-io/settingscheck/internal/browser"
	"github.com/gotrs-io/settingscheck/internal/config"
	"github.com/gotrs-io/settingscheck/internal/verify"
	"github.com/gotrs-io/settingscheck/tests/e2e/fixture"
)

// Drivers lists the backends every end-to-end scenario runs against.
var Drivers = []string{config.DriverPlaywright, config.DriverRod}

// FixtureEnv is a running fixture application.
type FixtureEnv struct {
	App     *fixture.App
	Server  *httptest.Server
	BaseURL string
}

// StartFixture serves a fresh fixture application for the duration of the test.
func StartFixture(t *testing.T) *FixtureEnv {
	t.Helper()
	app := fixture.New()
	srv := httptest.NewServer(app.Handler())
	t.Cleanup(srv.Close)
	return &FixtureEnv{App: app, Server: srv, BaseURL: srv.URL}
}

// BrowserOptions returns session options suited to CI: headless, short
// expect timeout, driver download unless PLAYWRIGHT_PREINSTALLED=1.
func BrowserOptions(t *testing.T) browser.Options {
	return browser.Options{
		Headless:      os.Getenv("HEADLESS") != "false",
		Timeout:       15 * time.Second,
		ExpectTimeout: 5 * time.Second,
		Viewport:      browser.Viewport{Width: 1280, Height: 720},
		Install:       os.Getenv("PLAYWRIGHT_PREINSTALLED") != "1",
		Logger:        zaptest.NewLogger(t),
	}
}

// Opener returns an opener for the named driver backend.
func Opener(t *testing.T, driver string) verify.Opener {
	opts := BrowserOptions(t)
	return func(ctx context.Context) (verify.Driver, error) {
		switch driver {
		case config.DriverPlaywright:
			drv, err := browser.OpenPlaywright(ctx, opts)
			if err != nil {
				return nil, err
			}
			return drv, nil
		case config.DriverRod:
			drv, err := browser.OpenRod(ctx, opts)
			if err != nil {
				return nil, err
			}
			return drv, nil
		}
		return nil, fmt.Errorf("unknown driver %q", driver)
	}
}

// RequireBrowser skips the test when the driver cannot launch a browser in
// this environment.
func RequireBrowser(t *testing.T, driver string) {
	t.Helper()
	if os.Getenv("SKIP_BROWSER") == "true" {
		t.Skip("Skipping browser test")
	}
	drv, err := Opener(t, driver)(context.Background())
	if err != nil {
		t.Skipf("Could not start %s browser: %v", driver, err)
		return
	}
	_ = drv.Close()
}

// NewRunner returns a runner against baseURL that narrates into the test
// log and writes its screenshot under t.TempDir.
func NewRunner(t *testing.T, baseURL string) (*verify.Runner, string) {
	shot := filepath.Join(t.TempDir(), "verification", "verification.png")
	return verify.NewRunner(verify.Options{
		BaseURL:        baseURL,
		ScreenshotPath: shot,
		Out:            testWriter{t},
		Logger:         zaptest.NewLogger(t),
	}), shot
}

type testWriter struct{ t *testing.T }

func (w testWriter) Write(p []byte) (int, error) {
	w.t.Log(string(p))
	return len(p), nil
}
