package config

import (
	"fmt"
	"net/url"
	"strings"
)

// Validate collects every problem with the configuration instead of
// stopping at the first one.
func (c *Config) Validate() error {
	var errs []string

	u, err := url.Parse(c.BaseURL)
	switch {
	case c.BaseURL == "":
		errs = append(errs, "base_url is required")
	case err != nil:
		errs = append(errs, fmt.Sprintf("base_url %q is not a valid URL: %v", c.BaseURL, err))
	case u.Scheme != "http" && u.Scheme != "https":
		errs = append(errs, fmt.Sprintf("base_url %q must use http or https", c.BaseURL))
	case u.Host == "":
		errs = append(errs, fmt.Sprintf("base_url %q has no host", c.BaseURL))
	}

	if strings.TrimSpace(c.ScreenshotPath) == "" {
		errs = append(errs, "screenshot_path is required")
	}

	switch c.Driver {
	case DriverPlaywright, DriverRod:
	default:
		errs = append(errs, fmt.Sprintf("driver %q is not supported (use %s or %s)", c.Driver, DriverPlaywright, DriverRod))
	}

	if c.Timeout <= 0 {
		errs = append(errs, "timeout must be positive")
	}
	if c.ExpectTimeout <= 0 {
		errs = append(errs, "expect_timeout must be positive")
	}
	if c.SlowMo < 0 {
		errs = append(errs, "slow_mo must not be negative")
	}
	if c.Viewport.Width <= 0 || c.Viewport.Height <= 0 {
		errs = append(errs, "viewport width and height must be positive")
	}

	switch c.Log.Format {
	case "console", "json":
	default:
		errs = append(errs, fmt.Sprintf("log.format %q is not supported (use console or json)", c.Log.Format))
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed:\n%s", strings.Join(errs, "\n"))
	}
	return nil
}
