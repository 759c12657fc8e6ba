// Package verify runs a UI verification scenario against a browser session
// and writes the resulting screenshot artifact.
package verify

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/gotrs-io/settingscheck/internal/browser"
)

// Driver is the browser session a scenario runs against.
type Driver interface {
	Goto(ctx context.Context, url string) error
	CurrentURL(ctx context.Context) (string, error)
	ExpectVisible(ctx context.Context, t browser.Target) error
	ExpectURL(ctx context.Context, url string) error
	Click(ctx context.Context, t browser.Target) error
	Check(ctx context.Context, t browser.Target) error
	Fill(ctx context.Context, t browser.Target, value string) error
	ExpectValue(ctx context.Context, t browser.Target, value string) error
	Reload(ctx context.Context) error
	Screenshot(ctx context.Context) ([]byte, error)
	Close() error
}

// Opener acquires a browser session. The session is bound to ctx.
type Opener func(ctx context.Context) (Driver, error)

// Options configure a Runner.
type Options struct {
	BaseURL        string
	ScreenshotPath string
	// Out receives the human-readable progress narration. Defaults to stdout.
	Out    io.Writer
	Logger *zap.Logger
}

// Runner executes scenarios one step at a time.
type Runner struct {
	baseURL    string
	screenshot string
	out        io.Writer
	logger     *zap.Logger
}

// StepResult is the outcome of one executed step.
type StepResult struct {
	Index       int
	Description string
	Duration    time.Duration
	Err         error
}

// Result summarizes a run. Steps after a failure are not executed and do
// not appear in Steps.
type Result struct {
	RunID      string
	Scenario   string
	Started    time.Time
	Duration   time.Duration
	Steps      []StepResult
	Screenshot string
	Err        error
}

// Passed reports whether every step succeeded and the session closed cleanly.
func (r *Result) Passed() bool {
	return r.Err == nil
}

// NewRunner creates a runner for the given target application.
func NewRunner(opts Options) *Runner {
	if opts.Out == nil {
		opts.Out = os.Stdout
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	return &Runner{
		baseURL:    strings.TrimRight(opts.BaseURL, "/"),
		screenshot: opts.ScreenshotPath,
		out:        opts.Out,
		logger:     opts.Logger,
	}
}

func (r *Runner) say(format string, args ...interface{}) {
	fmt.Fprintf(r.out, format+"\n", args...)
}

// Run validates sc, opens a session with open, executes every step in order
// and closes the session on every exit path. The first failing step aborts
// the run. The returned Result is never nil; its Err equals the returned
// error.
func (r *Runner) Run(ctx context.Context, open Opener, sc Scenario) (res *Result, err error) {
	res = &Result{
		RunID:    uuid.NewString(),
		Scenario: sc.Name,
		Started:  time.Now(),
	}
	log := r.logger.With(zap.String("run_id", res.RunID), zap.String("scenario", sc.Name))
	defer func() {
		res.Duration = time.Since(res.Started)
		res.Err = err
		if err != nil {
			log.Error("Verification failed", zap.Duration("duration", res.Duration), zap.Error(err))
			return
		}
		log.Info("Verification passed",
			zap.Duration("duration", res.Duration),
			zap.Int("steps", len(res.Steps)),
			zap.String("screenshot", res.Screenshot))
	}()

	if err := sc.Validate(); err != nil {
		return res, fmt.Errorf("invalid scenario: %w", err)
	}

	r.say("Launching browser...")
	drv, err := open(ctx)
	if err != nil {
		return res, fmt.Errorf("could not open browser: %w", err)
	}
	defer func() {
		if cerr := drv.Close(); cerr != nil {
			log.Warn("Browser teardown failed", zap.Error(cerr))
			err = multierr.Append(err, cerr)
		}
	}()

	for i, st := range sc.Steps {
		sr := r.executeStep(ctx, log, drv, i, st, res)
		if st.Action != ActionSay {
			res.Steps = append(res.Steps, sr)
		}
		if sr.Err != nil {
			if u, uerr := drv.CurrentURL(ctx); uerr == nil {
				log.Debug("Page at failure", zap.String("url", u))
			}
			return res, &StepError{Index: i, Step: sr.Description, Err: sr.Err}
		}
	}
	return res, nil
}

// executeStep runs a single step, timing it and logging the outcome.
func (r *Runner) executeStep(ctx context.Context, log *zap.Logger, drv Driver, i int, st Step, res *Result) StepResult {
	sr := StepResult{Index: i, Description: st.Describe()}
	if st.Action == ActionSay {
		r.say("%s", st.Message)
		return sr
	}
	if err := ctx.Err(); err != nil {
		sr.Err = err
		return sr
	}

	log.Debug("Executing step", zap.Int("step", i+1), zap.String("description", sr.Description))
	start := time.Now()
	sr.Err = r.apply(ctx, drv, st, res)
	sr.Duration = time.Since(start)

	if sr.Err != nil {
		log.Debug("Step failed", zap.Int("step", i+1), zap.Duration("duration", sr.Duration), zap.Error(sr.Err))
	} else {
		log.Debug("Step completed", zap.Int("step", i+1), zap.Duration("duration", sr.Duration))
	}
	return sr
}

func (r *Runner) apply(ctx context.Context, drv Driver, st Step, res *Result) error {
	switch st.Action {
	case ActionGoto:
		return drv.Goto(ctx, r.baseURL+st.Path)
	case ActionExpectVisible:
		return drv.ExpectVisible(ctx, *st.Target)
	case ActionClick:
		return drv.Click(ctx, *st.Target)
	case ActionCheck:
		return drv.Check(ctx, *st.Target)
	case ActionExpectURL:
		return drv.ExpectURL(ctx, r.baseURL+st.Path)
	case ActionFill:
		return drv.Fill(ctx, *st.Target, st.Value)
	case ActionReload:
		return drv.Reload(ctx)
	case ActionExpectValue:
		return drv.ExpectValue(ctx, *st.Target, st.Value)
	case ActionScreenshot:
		data, err := drv.Screenshot(ctx)
		if err != nil {
			return err
		}
		if err := writeArtifact(r.screenshot, data); err != nil {
			return err
		}
		res.Screenshot = r.screenshot
		r.say("Screenshot saved to %s", r.screenshot)
		return nil
	}
	return fmt.Errorf("unknown action %q", st.Action)
}

var errEmptyScreenshot = errors.New("screenshot is empty")

// writeArtifact writes data to path, creating parent directories and
// replacing any previous file.
func writeArtifact(path string, data []byte) error {
	if path == "" {
		return errors.New("screenshot path is not configured")
	}
	if len(data) == 0 {
		return errEmptyScreenshot
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create screenshot directory: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write screenshot: %w", err)
	}
	return nil
}
