package browser

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/playwright-community/playwright-go"
	"go.uber.org/multierr"
	"go.uber.org/zap"
)

// Playwright is a browser session driven through playwright-go.
type Playwright struct {
	pw      *playwright.Playwright
	browser playwright.Browser
	context playwright.BrowserContext
	page    playwright.Page
	expect  playwright.PlaywrightAssertions
	opts    Options
	log     *zap.Logger

	stopWatch func() bool
	closeOnce sync.Once
	closeErr  error
	mu        sync.RWMutex
	closed    bool
}

// OpenPlaywright installs (optionally) and starts the Playwright driver,
// launches Chromium and opens a single page. Every native dialog raised on
// that page is accepted. Cancelling ctx tears the session down, which makes
// any in-flight operation fail. The caller must Close the session.
func OpenPlaywright(ctx context.Context, opts Options) (*Playwright, error) {
	opts.defaults()
	p := &Playwright{opts: opts, log: opts.Logger.Named("playwright")}

	if opts.Install {
		p.log.Debug("Installing playwright driver", zap.Strings("browsers", []string{"chromium"}))
		if err := playwright.Install(&playwright.RunOptions{Browsers: []string{"chromium"}}); err != nil {
			return nil, fmt.Errorf("could not install playwright browsers: %w", err)
		}
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	pw, err := playwright.Run()
	if err != nil {
		return nil, fmt.Errorf("could not start playwright (ensure driver version matches image): %w", err)
	}
	p.pw = pw

	launch := playwright.BrowserTypeLaunchOptions{
		Headless: playwright.Bool(opts.Headless),
		SlowMo:   playwright.Float(millis(opts.SlowMo)),
	}
	if opts.BrowserPath != "" {
		launch.ExecutablePath = playwright.String(opts.BrowserPath)
	}
	browser, err := pw.Chromium.Launch(launch)
	if err != nil {
		_ = p.Close()
		return nil, fmt.Errorf("could not launch browser: %w", err)
	}
	p.browser = browser

	bctx, err := browser.NewContext(playwright.BrowserNewContextOptions{
		Viewport: &playwright.Size{
			Width:  opts.Viewport.Width,
			Height: opts.Viewport.Height,
		},
	})
	if err != nil {
		_ = p.Close()
		return nil, fmt.Errorf("could not create context: %w", err)
	}
	p.context = bctx

	page, err := bctx.NewPage()
	if err != nil {
		_ = p.Close()
		return nil, fmt.Errorf("could not create page: %w", err)
	}
	p.page = page

	page.SetDefaultTimeout(millis(opts.Timeout))
	page.SetDefaultNavigationTimeout(millis(opts.Timeout))
	page.OnDialog(func(dialog playwright.Dialog) {
		p.log.Debug("Accepting dialog",
			zap.String("type", dialog.Type()),
			zap.String("message", dialog.Message()))
		if err := dialog.Accept(); err != nil {
			p.log.Warn("Failed to accept dialog", zap.Error(err))
		}
	})
	p.expect = playwright.NewPlaywrightAssertions(millis(opts.ExpectTimeout))

	p.stopWatch = context.AfterFunc(ctx, func() {
		p.log.Debug("Context cancelled, closing browser")
		_ = p.Close()
	})

	p.log.Debug("Browser ready",
		zap.Bool("headless", opts.Headless),
		zap.Duration("timeout", opts.Timeout),
		zap.Duration("expect_timeout", opts.ExpectTimeout))
	return p, nil
}

func (p *Playwright) ready(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		return ErrClosed
	}
	return nil
}

// locator resolves t on the page. Names, labels and placeholders match
// exactly (case-sensitive, whitespace-trimmed), as the rod backend does.
func (p *Playwright) locator(t Target) playwright.Locator {
	switch {
	case t.Role != "":
		return p.page.GetByRole(playwright.AriaRole(t.Role), roleOptions(t))
	case t.Label != "":
		return p.page.GetByLabel(t.Label, playwright.PageGetByLabelOptions{Exact: playwright.Bool(true)})
	case t.Placeholder != "":
		return p.page.GetByPlaceholder(t.Placeholder, playwright.PageGetByPlaceholderOptions{Exact: playwright.Bool(true)})
	default:
		return p.page.Locator(cssAttr("id", t.ID))
	}
}

func roleOptions(t Target) playwright.PageGetByRoleOptions {
	opts := playwright.PageGetByRoleOptions{}
	if t.Name != "" {
		opts.Name = t.Name
		opts.Exact = playwright.Bool(true)
	}
	return opts
}

// diagnosticOptions bounds the value read used to enrich a failed value
// assertion, so a missing element does not add a full action timeout.
func (p *Playwright) diagnosticOptions() playwright.LocatorInputValueOptions {
	d := diagnosticTimeout
	if p.opts.ExpectTimeout < d {
		d = p.opts.ExpectTimeout
	}
	return playwright.LocatorInputValueOptions{Timeout: playwright.Float(millis(d))}
}

// Goto navigates to url and waits for the load event.
func (p *Playwright) Goto(ctx context.Context, url string) error {
	if err := p.ready(ctx); err != nil {
		return err
	}
	_, err := p.page.Goto(url, playwright.PageGotoOptions{
		WaitUntil: playwright.WaitUntilStateLoad,
	})
	if err != nil && strings.Contains(err.Error(), "ERR_TOO_MANY_REDIRECTS") {
		return fmt.Errorf("redirect loop navigating to %s (check base URL and redirect configuration): %w", url, err)
	}
	if err != nil {
		return fmt.Errorf("failed to navigate to %s: %w", url, err)
	}
	return nil
}

func (p *Playwright) CurrentURL(ctx context.Context) (string, error) {
	if err := p.ready(ctx); err != nil {
		return "", err
	}
	return p.page.URL(), nil
}

func (p *Playwright) ExpectVisible(ctx context.Context, t Target) error {
	if err := p.ready(ctx); err != nil {
		return err
	}
	if err := p.expect.Locator(p.locator(t)).ToBeVisible(); err != nil {
		return fmt.Errorf("%s: %w: %w", t, ErrNotVisible, err)
	}
	return nil
}

func (p *Playwright) ExpectURL(ctx context.Context, url string) error {
	if err := p.ready(ctx); err != nil {
		return err
	}
	if err := p.expect.Page(p.page).ToHaveURL(url); err != nil {
		return fmt.Errorf("expected %s, got %s: %w: %w", url, p.page.URL(), ErrURLMismatch, err)
	}
	return nil
}

func (p *Playwright) Click(ctx context.Context, t Target) error {
	if err := p.ready(ctx); err != nil {
		return err
	}
	if err := p.locator(t).Click(); err != nil {
		return fmt.Errorf("failed to click %s: %w", t, err)
	}
	return nil
}

func (p *Playwright) Check(ctx context.Context, t Target) error {
	if err := p.ready(ctx); err != nil {
		return err
	}
	if err := p.locator(t).Check(); err != nil {
		return fmt.Errorf("failed to check %s: %w", t, err)
	}
	return nil
}

func (p *Playwright) Fill(ctx context.Context, t Target, value string) error {
	if err := p.ready(ctx); err != nil {
		return err
	}
	if err := p.locator(t).Fill(value); err != nil {
		return fmt.Errorf("failed to fill %s: %w", t, err)
	}
	return nil
}

func (p *Playwright) ExpectValue(ctx context.Context, t Target, value string) error {
	if err := p.ready(ctx); err != nil {
		return err
	}
	if err := p.expect.Locator(p.locator(t)).ToHaveValue(value); err != nil {
		got, _ := p.locator(t).InputValue(p.diagnosticOptions())
		return fmt.Errorf("%s: expected %q, got %q: %w: %w", t, value, got, ErrValueMismatch, err)
	}
	return nil
}

func (p *Playwright) Reload(ctx context.Context) error {
	if err := p.ready(ctx); err != nil {
		return err
	}
	if _, err := p.page.Reload(); err != nil {
		return fmt.Errorf("failed to reload: %w", err)
	}
	return nil
}

// Screenshot captures the full scrollable page as PNG.
func (p *Playwright) Screenshot(ctx context.Context) ([]byte, error) {
	if err := p.ready(ctx); err != nil {
		return nil, err
	}
	data, err := p.page.Screenshot(playwright.PageScreenshotOptions{
		FullPage: playwright.Bool(true),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to capture screenshot: %w", err)
	}
	return data, nil
}

// Close releases the page, context, browser and driver process. Only the
// first call does any work; later calls return the same result.
func (p *Playwright) Close() error {
	p.closeOnce.Do(func() {
		p.mu.Lock()
		p.closed = true
		p.mu.Unlock()

		if p.stopWatch != nil {
			p.stopWatch()
		}

		var err error
		if p.page != nil {
			err = multierr.Append(err, p.page.Close())
		}
		if p.context != nil {
			err = multierr.Append(err, p.context.Close())
		}
		if p.browser != nil {
			err = multierr.Append(err, p.browser.Close())
		}
		if p.pw != nil {
			err = multierr.Append(err, p.pw.Stop())
		}
		if err != nil {
			p.closeErr = fmt.Errorf("failed to close browser: %w", err)
		}
		p.log.Debug("Browser closed")
	})
	return p.closeErr
}
