package verify

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/gotrs-io/settingscheck/internal/browser"
)

const baseURL = "http://scanner.test:3000"

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// fakeApp is the server-side state shared by every session, so it survives
// reloads and repeated runs.
type fakeApp struct {
	stored map[string]string
	// dropSaves discards every save, simulating broken persistence.
	dropSaves bool
}

type fakeDriver struct {
	app     *fakeApp
	calls   []string
	url     string
	form    map[string]string
	fail    map[string]error
	shot    []byte
	closed  int
	closeFn func() error
}

func newFakeDriver(app *fakeApp) *fakeDriver {
	return &fakeDriver{
		app:  app,
		form: map[string]string{},
		fail: map[string]error{},
		shot: []byte("\x89PNG fake screenshot"),
	}
}

func (f *fakeDriver) record(call string) error {
	f.calls = append(f.calls, call)
	return f.fail[call]
}

func (f *fakeDriver) Goto(ctx context.Context, url string) error {
	if err := f.record("goto " + url); err != nil {
		return err
	}
	f.url = url
	return nil
}

func (f *fakeDriver) CurrentURL(ctx context.Context) (string, error) {
	return f.url, nil
}

func (f *fakeDriver) ExpectVisible(ctx context.Context, t browser.Target) error {
	return f.record("expect_visible " + t.String())
}

func (f *fakeDriver) ExpectURL(ctx context.Context, url string) error {
	if err := f.record("expect_url " + url); err != nil {
		return err
	}
	if f.url != url {
		return fmt.Errorf("expected %s, got %s: %w", url, f.url, browser.ErrURLMismatch)
	}
	return nil
}

func (f *fakeDriver) Click(ctx context.Context, t browser.Target) error {
	if err := f.record("click " + t.String()); err != nil {
		return err
	}
	switch t.Name {
	case "Configure Settings":
		f.url = strings.TrimRight(f.url, "/") + "/settings.html"
	case "Save Changes":
		if !f.app.dropSaves {
			f.app.stored = copyForm(f.form)
		}
	}
	return nil
}

func (f *fakeDriver) Check(ctx context.Context, t browser.Target) error {
	return f.record("check " + t.String())
}

func (f *fakeDriver) Fill(ctx context.Context, t browser.Target, value string) error {
	if err := f.record(fmt.Sprintf("fill %s = %s", t, value)); err != nil {
		return err
	}
	f.form[t.ID] = value
	return nil
}

func (f *fakeDriver) ExpectValue(ctx context.Context, t browser.Target, value string) error {
	if err := f.record(fmt.Sprintf("expect_value %s = %s", t, value)); err != nil {
		return err
	}
	if got := f.form[t.ID]; got != value {
		return fmt.Errorf("%s: expected %q, got %q: %w", t, value, got, browser.ErrValueMismatch)
	}
	return nil
}

func (f *fakeDriver) Reload(ctx context.Context) error {
	if err := f.record("reload"); err != nil {
		return err
	}
	f.form = copyForm(f.app.stored)
	return nil
}

func (f *fakeDriver) Screenshot(ctx context.Context) ([]byte, error) {
	if err := f.record("screenshot"); err != nil {
		return nil, err
	}
	return f.shot, nil
}

func (f *fakeDriver) Close() error {
	f.closed++
	if f.closeFn != nil {
		return f.closeFn()
	}
	return nil
}

func copyForm(src map[string]string) map[string]string {
	dst := make(map[string]string, len(src))
	for k, v := range src {
		dst[k] = v
	}
	return dst
}

func opener(drv *fakeDriver) Opener {
	return func(ctx context.Context) (Driver, error) { return drv, nil }
}

type harness struct {
	out        *bytes.Buffer
	logs       *observer.ObservedLogs
	runner     *Runner
	screenshot string
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	core, logs := observer.New(zapcore.DebugLevel)
	out := &bytes.Buffer{}
	shot := filepath.Join(t.TempDir(), "verification", "verification.png")
	return &harness{
		out:        out,
		logs:       logs,
		screenshot: shot,
		runner: NewRunner(Options{
			BaseURL:        baseURL,
			ScreenshotPath: shot,
			Out:            out,
			Logger:         zap.New(core),
		}),
	}
}

var defaultCalls = []string{
	"goto " + baseURL,
	`expect_visible link "Configure Settings"`,
	`click link "Configure Settings"`,
	"expect_url " + baseURL + "/settings.html",
	`expect_visible tab "Network"`,
	`expect_visible tab "Security"`,
	`click tab "Network"`,
	`check label "Microsoft Auth"`,
	`expect_visible placeholder "Email"`,
	`expect_visible placeholder "Password (Optional)"`,
	"fill #startIp = 192.168.1.1",
	"fill #endIp = 192.168.1.255",
	"fill #email = test@example.com",
	"fill #authPassword = secret123",
	`click button "Save Changes"`,
	"reload",
	"expect_value #startIp = 192.168.1.1",
	"expect_value #email = test@example.com",
	"expect_value #authPassword = secret123",
	"screenshot",
}

func TestRunDefaultScenario(t *testing.T) {
	h := newHarness(t)
	drv := newFakeDriver(&fakeApp{})

	res, err := h.runner.Run(context.Background(), opener(drv), DefaultScenario())
	require.NoError(t, err)
	require.NotNil(t, res)

	t.Run("steps run in order", func(t *testing.T) {
		assert.Equal(t, defaultCalls, drv.calls)
	})

	t.Run("session closed once", func(t *testing.T) {
		assert.Equal(t, 1, drv.closed)
	})

	t.Run("screenshot written", func(t *testing.T) {
		data, err := os.ReadFile(h.screenshot)
		require.NoError(t, err)
		assert.NotEmpty(t, data)
		assert.Equal(t, h.screenshot, res.Screenshot)
	})

	t.Run("progress narrated", func(t *testing.T) {
		expected := strings.Join([]string{
			"Launching browser...",
			"Navigating to home...",
			"Finding Configure Settings button...",
			"Clicking settings button...",
			"Checking network tab auth fields...",
			"Filling settings...",
			"Saving changes...",
			"Verifying persistence...",
			"Taking screenshot...",
			"Screenshot saved to " + h.screenshot,
		}, "\n") + "\n"
		assert.Equal(t, expected, h.out.String())
	})

	t.Run("result summary", func(t *testing.T) {
		assert.True(t, res.Passed())
		assert.NotEmpty(t, res.RunID)
		assert.Equal(t, "settings-navigation-and-save", res.Scenario)
		assert.Len(t, res.Steps, len(defaultCalls), "narration steps are not recorded")
		for _, sr := range res.Steps {
			assert.NoError(t, sr.Err, sr.Description)
		}
		assert.Equal(t, 1, h.logs.FilterMessage("Verification passed").Len())
	})
}

func TestRunIsIdempotent(t *testing.T) {
	app := &fakeApp{}
	h := newHarness(t)

	for i := 0; i < 2; i++ {
		drv := newFakeDriver(app)
		_, err := h.runner.Run(context.Background(), opener(drv), DefaultScenario())
		require.NoError(t, err, "run %d", i+1)
		assert.Equal(t, map[string]string{
			"startIp":      "192.168.1.1",
			"endIp":        "192.168.1.255",
			"email":        "test@example.com",
			"authPassword": "secret123",
		}, app.stored, "run %d", i+1)
	}
}

func TestRunStopsAtFirstFailure(t *testing.T) {
	h := newHarness(t)
	drv := newFakeDriver(&fakeApp{})
	failing := `expect_visible link "Configure Settings"`
	drv.fail[failing] = fmt.Errorf(`link "Configure Settings": %w`, browser.ErrNotVisible)

	res, err := h.runner.Run(context.Background(), opener(drv), DefaultScenario())
	require.Error(t, err)

	var stepErr *StepError
	require.True(t, errors.As(err, &stepErr))
	assert.Equal(t, 3, stepErr.Index)
	assert.Equal(t, `expect link "Configure Settings" visible`, stepErr.Step)
	assert.ErrorIs(t, err, browser.ErrNotVisible)
	assert.Contains(t, err.Error(), "step 4")

	assert.Equal(t, defaultCalls[:2], drv.calls, "nothing runs after the failing step")
	assert.Equal(t, 1, drv.closed)
	assert.NoFileExists(t, h.screenshot)

	assert.False(t, res.Passed())
	assert.Equal(t, err, res.Err)
	assert.Empty(t, res.Screenshot)
	require.Len(t, res.Steps, 2)
	assert.Error(t, res.Steps[1].Err)

	failures := h.logs.FilterMessage("Verification failed").All()
	require.Len(t, failures, 1)
	assert.Equal(t, res.RunID, failures[0].ContextMap()["run_id"])
}

func TestRunValueNotPersisted(t *testing.T) {
	h := newHarness(t)
	drv := newFakeDriver(&fakeApp{dropSaves: true})

	_, err := h.runner.Run(context.Background(), opener(drv), DefaultScenario())
	require.Error(t, err)
	assert.ErrorIs(t, err, browser.ErrValueMismatch)
	assert.Contains(t, err.Error(), `#startIp: expected "192.168.1.1", got ""`)
	assert.Equal(t, 1, drv.closed)
	assert.NoFileExists(t, h.screenshot)
}

func TestRunURLMismatch(t *testing.T) {
	h := newHarness(t)
	drv := newFakeDriver(&fakeApp{})
	sc := Scenario{Name: "url", Steps: []Step{
		{Action: ActionGoto},
		{Action: ActionExpectURL, Path: "/settings.html"},
	}}

	_, err := h.runner.Run(context.Background(), opener(drv), sc)
	require.Error(t, err)
	assert.ErrorIs(t, err, browser.ErrURLMismatch)
	assert.Contains(t, err.Error(), "expected "+baseURL+"/settings.html, got "+baseURL)
}

func TestRunOpenFailure(t *testing.T) {
	h := newHarness(t)
	launchErr := errors.New("chromium: executable not found")

	res, err := h.runner.Run(context.Background(), func(ctx context.Context) (Driver, error) {
		return nil, launchErr
	}, DefaultScenario())

	require.Error(t, err)
	assert.ErrorIs(t, err, launchErr)
	assert.Contains(t, err.Error(), "could not open browser")
	assert.Equal(t, "Launching browser...\n", h.out.String())
	assert.Empty(t, res.Steps)
}

func TestRunUnreachableTarget(t *testing.T) {
	h := newHarness(t)
	drv := newFakeDriver(&fakeApp{})
	drv.fail["goto "+baseURL] = errors.New("net::ERR_CONNECTION_REFUSED")

	_, err := h.runner.Run(context.Background(), opener(drv), DefaultScenario())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "ERR_CONNECTION_REFUSED")
	assert.Equal(t, 1, drv.closed, "browser is released even when the app is down")
}

func TestRunInvalidScenario(t *testing.T) {
	h := newHarness(t)
	opened := false

	_, err := h.runner.Run(context.Background(), func(ctx context.Context) (Driver, error) {
		opened = true
		return nil, nil
	}, Scenario{Name: "empty"})

	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid scenario")
	assert.False(t, opened, "no browser is launched for an invalid scenario")
	assert.Empty(t, h.out.String())
}

func TestRunCloseError(t *testing.T) {
	h := newHarness(t)
	drv := newFakeDriver(&fakeApp{})
	closeErr := errors.New("browser has been closed")
	drv.closeFn = func() error { return closeErr }

	res, err := h.runner.Run(context.Background(), opener(drv), DefaultScenario())
	require.Error(t, err)
	assert.ErrorIs(t, err, closeErr)
	assert.False(t, res.Passed())
	assert.FileExists(t, h.screenshot)
}

func TestRunCancelledContext(t *testing.T) {
	h := newHarness(t)
	drv := newFakeDriver(&fakeApp{})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := h.runner.Run(ctx, opener(drv), DefaultScenario())
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, drv.calls)
	assert.Equal(t, 1, drv.closed)
}

func TestRunScreenshot(t *testing.T) {
	sc := Scenario{Name: "shot", Steps: []Step{{Action: ActionScreenshot}}}

	t.Run("overwrites previous artifact", func(t *testing.T) {
		h := newHarness(t)
		require.NoError(t, os.MkdirAll(filepath.Dir(h.screenshot), 0o755))
		require.NoError(t, os.WriteFile(h.screenshot, []byte("stale screenshot from an earlier run"), 0o644))

		drv := newFakeDriver(&fakeApp{})
		drv.shot = []byte("fresh")
		_, err := h.runner.Run(context.Background(), opener(drv), sc)
		require.NoError(t, err)

		data, err := os.ReadFile(h.screenshot)
		require.NoError(t, err)
		assert.Equal(t, "fresh", string(data))
	})

	t.Run("empty capture fails", func(t *testing.T) {
		h := newHarness(t)
		drv := newFakeDriver(&fakeApp{})
		drv.shot = nil

		_, err := h.runner.Run(context.Background(), opener(drv), sc)
		require.Error(t, err)
		assert.ErrorIs(t, err, errEmptyScreenshot)
		assert.NoFileExists(t, h.screenshot)
	})

	t.Run("unwritable path fails", func(t *testing.T) {
		dir := t.TempDir()
		blocker := filepath.Join(dir, "blocker")
		require.NoError(t, os.WriteFile(blocker, []byte("x"), 0o644))

		r := NewRunner(Options{
			BaseURL:        baseURL,
			ScreenshotPath: filepath.Join(blocker, "verification.png"),
			Out:            &bytes.Buffer{},
		})
		_, err := r.Run(context.Background(), opener(newFakeDriver(&fakeApp{})), sc)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "failed to create screenshot directory")
	})
}

func TestRunTrimsBaseURL(t *testing.T) {
	drv := newFakeDriver(&fakeApp{})
	r := NewRunner(Options{BaseURL: baseURL + "/", ScreenshotPath: filepath.Join(t.TempDir(), "v.png"), Out: &bytes.Buffer{}})

	_, err := r.Run(context.Background(), opener(drv), DefaultScenario())
	require.NoError(t, err)
	assert.Equal(t, "goto "+baseURL, drv.calls[0])
	assert.Equal(t, "expect_url "+baseURL+"/settings.html", drv.calls[3])
}
