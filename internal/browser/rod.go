package browser

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/launcher/flags"
	"github.com/go-rod/rod/lib/proto"
	"github.com/go-rod/rod/lib/utils"
	"go.uber.org/multierr"
	"go.uber.org/zap"
)

// labelControlJS resolves the form control of the first label whose trimmed
// text equals the argument, covering both <label for> and wrapping labels.
const labelControlJS = `(text) => {
	for (const label of document.querySelectorAll('label')) {
		if (label.textContent.trim() === text && label.control) {
			return label.control;
		}
	}
	return null;
}`

var errNotFound = errors.New("element not found")

// Rod is a browser session driven over the DevTools protocol with go-rod.
// Role names, labels and placeholders match exactly.
type Rod struct {
	launcher *launcher.Launcher
	browser  *rod.Browser
	page     *rod.Page
	opts     Options
	log      *zap.Logger

	stopDialogs context.CancelFunc
	stopWatch   func() bool
	closeOnce   sync.Once
	closeErr    error
	mu          sync.RWMutex
	closed      bool
}

// OpenRod launches a local headless Chromium (downloading it if needed),
// connects to it and opens a single page that accepts every native dialog.
// Cancelling ctx tears the session down. The caller must Close the session.
func OpenRod(ctx context.Context, opts Options) (*Rod, error) {
	opts.defaults()
	r := &Rod{opts: opts, log: opts.Logger.Named("rod")}

	r.launcher = launcher.New().Headless(opts.Headless).Leakless(false)
	if opts.BrowserPath != "" {
		r.launcher = r.launcher.Bin(opts.BrowserPath)
	}
	controlURL, err := r.launcher.Context(ctx).Launch()
	if err != nil {
		r.releaseLauncher()
		return nil, fmt.Errorf("could not launch browser: %w", err)
	}

	browser := rod.New().ControlURL(controlURL)
	if opts.SlowMo > 0 {
		browser = browser.SlowMotion(opts.SlowMo)
	}
	if err := browser.Connect(); err != nil {
		_ = r.Close()
		return nil, fmt.Errorf("could not connect to browser: %w", err)
	}
	r.browser = browser

	page, err := browser.Page(proto.TargetCreateTarget{})
	if err != nil {
		_ = r.Close()
		return nil, fmt.Errorf("could not create page: %w", err)
	}
	r.page = page

	if err := page.SetViewport(&proto.EmulationSetDeviceMetricsOverride{
		Width:             opts.Viewport.Width,
		Height:            opts.Viewport.Height,
		DeviceScaleFactor: 1,
	}); err != nil {
		_ = r.Close()
		return nil, fmt.Errorf("could not set viewport: %w", err)
	}

	dialogCtx, cancel := context.WithCancel(context.Background())
	r.stopDialogs = cancel
	wait := page.Context(dialogCtx).EachEvent(func(e *proto.PageJavascriptDialogOpening) {
		r.log.Debug("Accepting dialog",
			zap.String("type", string(e.Type)),
			zap.String("message", e.Message))
		if err := (proto.PageHandleJavaScriptDialog{Accept: true}).Call(page); err != nil {
			r.log.Warn("Failed to accept dialog", zap.Error(err))
		}
	})
	go wait()

	r.stopWatch = context.AfterFunc(ctx, func() {
		r.log.Debug("Context cancelled, closing browser")
		_ = r.Close()
	})

	r.log.Debug("Browser ready",
		zap.String("control_url", controlURL),
		zap.Bool("headless", opts.Headless))
	return r, nil
}

// action returns the page bound to ctx and the action timeout.
func (r *Rod) action(ctx context.Context) (*rod.Page, error) {
	if err := r.ready(ctx); err != nil {
		return nil, err
	}
	return r.page.Context(ctx).Timeout(r.opts.Timeout), nil
}

func (r *Rod) ready(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.closed {
		return ErrClosed
	}
	return nil
}

// expectPage returns the page bound to ctx with the expect timeout as the
// budget for every chained wait. Release it with CancelTimeout.
func (r *Rod) expectPage(ctx context.Context) (*rod.Page, error) {
	if err := r.ready(ctx); err != nil {
		return nil, err
	}
	return r.page.Context(ctx).Timeout(r.opts.ExpectTimeout), nil
}

// find resolves t, waiting on the page's sleeper until it appears or the
// page context expires.
func (r *Rod) find(page *rod.Page, t Target) (*rod.Element, error) {
	var (
		el  *rod.Element
		err error
	)
	switch {
	case t.Role != "":
		el, err = r.findByRole(page, t)
	case t.Label != "":
		el, err = page.ElementByJS(rod.Eval(labelControlJS, t.Label))
	case t.Placeholder != "":
		el, err = page.Element(cssAttr("placeholder", t.Placeholder))
	default:
		el, err = page.Element(cssAttr("id", t.ID))
	}
	if err != nil {
		return nil, fmt.Errorf("%s: %w: %w", t, errNotFound, err)
	}
	return el, nil
}

// findByRole queries the accessibility tree under the document element for
// a node with the role and accessible name of t. The tree is rebuilt while
// the page loads, so transient query errors are retried like a miss.
func (r *Rod) findByRole(page *rod.Page, t Target) (*rod.Element, error) {
	var (
		el   *rod.Element
		last error
	)
	err := utils.Retry(page.GetContext(), rod.DefaultSleeper(), func() (bool, error) {
		root, err := page.Element("html")
		if err != nil {
			return true, err
		}
		res, err := proto.AccessibilityQueryAXTree{
			ObjectID:       root.Object.ObjectID,
			AccessibleName: t.Name,
			Role:           string(t.Role),
		}.Call(page)
		if err != nil {
			last = err
			return false, nil
		}
		for _, node := range res.Nodes {
			if node.Ignored || node.BackendDOMNodeID == 0 {
				continue
			}
			el, err = page.ElementFromNode(&proto.DOMNode{BackendNodeID: node.BackendDOMNodeID})
			return true, err
		}
		return false, nil
	})
	if err != nil && last != nil {
		return nil, fmt.Errorf("%w (last query error: %v)", err, last)
	}
	return el, err
}

// wait resolves t within the expect timeout and returns it bound to ctx
// with the action timeout.
func (r *Rod) wait(ctx context.Context, t Target) (*rod.Element, error) {
	page, err := r.expectPage(ctx)
	if err != nil {
		return nil, err
	}
	defer page.CancelTimeout()

	el, err := r.find(page, t)
	if err != nil {
		return nil, err
	}
	return el.Context(ctx).Timeout(r.opts.Timeout), nil
}

// Goto navigates to url and waits for the load event.
func (r *Rod) Goto(ctx context.Context, url string) error {
	page, err := r.action(ctx)
	if err != nil {
		return err
	}
	if err := page.Navigate(url); err != nil {
		return fmt.Errorf("failed to navigate to %s: %w", url, err)
	}
	if err := page.WaitLoad(); err != nil {
		return fmt.Errorf("failed waiting for %s to load: %w", url, err)
	}
	return nil
}

func (r *Rod) CurrentURL(ctx context.Context) (string, error) {
	page, err := r.action(ctx)
	if err != nil {
		return "", err
	}
	info, err := page.Info()
	if err != nil {
		return "", fmt.Errorf("failed to read page info: %w", err)
	}
	return info.URL, nil
}

func (r *Rod) ExpectVisible(ctx context.Context, t Target) error {
	page, err := r.expectPage(ctx)
	if err != nil {
		return err
	}
	defer page.CancelTimeout()

	el, err := r.find(page, t)
	if err == nil {
		err = el.WaitVisible()
	}
	if err != nil {
		return fmt.Errorf("%s: %w: %w", t, ErrNotVisible, err)
	}
	return nil
}

func (r *Rod) ExpectURL(ctx context.Context, url string) error {
	page, err := r.expectPage(ctx)
	if err != nil {
		return err
	}
	defer page.CancelTimeout()

	if err := page.Wait(rod.Eval(`(u) => location.href === u`, url)); err != nil {
		var got string
		if info, ierr := r.page.Context(ctx).Info(); ierr == nil {
			got = info.URL
		}
		return fmt.Errorf("expected %s, got %s: %w: %w", url, got, ErrURLMismatch, err)
	}
	return nil
}

func (r *Rod) Click(ctx context.Context, t Target) error {
	el, err := r.wait(ctx, t)
	if err != nil {
		return fmt.Errorf("failed to click %s: %w", t, err)
	}
	if err := el.Click(proto.InputMouseButtonLeft, 1); err != nil {
		return fmt.Errorf("failed to click %s: %w", t, err)
	}
	return nil
}

// Check clicks t unless it is already checked, then confirms the new state.
func (r *Rod) Check(ctx context.Context, t Target) error {
	el, err := r.wait(ctx, t)
	if err != nil {
		return fmt.Errorf("failed to check %s: %w", t, err)
	}
	checked, err := el.Property("checked")
	if err != nil {
		return fmt.Errorf("failed to check %s: %w", t, err)
	}
	if checked.Bool() {
		return nil
	}
	if err := el.Click(proto.InputMouseButtonLeft, 1); err != nil {
		return fmt.Errorf("failed to check %s: %w", t, err)
	}
	checked, err = el.Property("checked")
	if err != nil {
		return fmt.Errorf("failed to check %s: %w", t, err)
	}
	if !checked.Bool() {
		return fmt.Errorf("failed to check %s: still unchecked after click", t)
	}
	return nil
}

// Fill replaces the current value of t.
func (r *Rod) Fill(ctx context.Context, t Target, value string) error {
	el, err := r.wait(ctx, t)
	if err != nil {
		return fmt.Errorf("failed to fill %s: %w", t, err)
	}
	if err := el.SelectAllText(); err != nil {
		return fmt.Errorf("failed to fill %s: %w", t, err)
	}
	if err := el.Input(value); err != nil {
		return fmt.Errorf("failed to fill %s: %w", t, err)
	}
	return nil
}

func (r *Rod) ExpectValue(ctx context.Context, t Target, value string) error {
	page, err := r.expectPage(ctx)
	if err != nil {
		return err
	}
	defer page.CancelTimeout()

	el, err := r.find(page, t)
	if err == nil {
		err = el.Wait(rod.Eval(`(v) => this.value === v`, value))
	}
	if err != nil {
		var got string
		if el != nil {
			if prop, perr := el.Context(ctx).Timeout(diagnosticTimeout).Property("value"); perr == nil {
				got = prop.Str()
			}
		}
		return fmt.Errorf("%s: expected %q, got %q: %w: %w", t, value, got, ErrValueMismatch, err)
	}
	return nil
}

func (r *Rod) Reload(ctx context.Context) error {
	page, err := r.action(ctx)
	if err != nil {
		return err
	}
	if err := page.Reload(); err != nil {
		return fmt.Errorf("failed to reload: %w", err)
	}
	if err := page.WaitLoad(); err != nil {
		return fmt.Errorf("failed waiting for reload: %w", err)
	}
	return nil
}

// Screenshot captures the full scrollable page as PNG.
func (r *Rod) Screenshot(ctx context.Context) ([]byte, error) {
	page, err := r.action(ctx)
	if err != nil {
		return nil, err
	}
	data, err := page.Screenshot(true, &proto.PageCaptureScreenshot{
		Format: proto.PageCaptureScreenshotFormatPng,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to capture screenshot: %w", err)
	}
	return data, nil
}

// Close stops the dialog handler, closes the page and browser and kills
// the launched process. Only the first call does any work.
func (r *Rod) Close() error {
	r.closeOnce.Do(func() {
		r.mu.Lock()
		r.closed = true
		r.mu.Unlock()

		if r.stopWatch != nil {
			r.stopWatch()
		}
		if r.stopDialogs != nil {
			r.stopDialogs()
		}

		var err error
		if r.page != nil {
			err = multierr.Append(err, r.page.Close())
		}
		if r.browser != nil {
			err = multierr.Append(err, r.browser.Close())
		}
		if r.launcher != nil {
			r.releaseLauncher()
		}
		if err != nil {
			r.closeErr = fmt.Errorf("failed to close browser: %w", err)
		}
		r.log.Debug("Browser closed")
	})
	return r.closeErr
}

// releaseLauncher kills the browser process and removes its user data
// directory. Cleanup blocks until the process exits, so it is only used
// once a process was actually started.
func (r *Rod) releaseLauncher() {
	if r.launcher.PID() == 0 {
		_ = os.RemoveAll(r.launcher.Get(flags.UserDataDir))
		return
	}
	r.launcher.Kill()
	r.launcher.Cleanup()
}
