package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
	"github.com/subosito/gotenv"
)

// EnvPrefix is prepended to every environment override, e.g. SETTINGSCHECK_BASE_URL.
const EnvPrefix = "SETTINGSCHECK"

// Supported browser driver backends.
const (
	DriverPlaywright = "playwright"
	DriverRod        = "rod"
)

// Config represents the verification run configuration
type Config struct {
	BaseURL        string         `mapstructure:"base_url"`
	ScreenshotPath string         `mapstructure:"screenshot_path"`
	Driver         string         `mapstructure:"driver"`
	Headless       bool           `mapstructure:"headless"`
	Timeout        time.Duration  `mapstructure:"timeout"`
	ExpectTimeout  time.Duration  `mapstructure:"expect_timeout"`
	SlowMo         time.Duration  `mapstructure:"slow_mo"`
	Viewport       ViewportConfig `mapstructure:"viewport"`
	BrowserPath    string         `mapstructure:"browser_path"`
	Install        bool           `mapstructure:"install"`
	Scenario       string         `mapstructure:"scenario"`
	StrictExit     bool           `mapstructure:"strict_exit"`
	Log            LogConfig      `mapstructure:"log"`
}

type ViewportConfig struct {
	Width  int `mapstructure:"width"`
	Height int `mapstructure:"height"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// SetDefaults registers the built-in values every other layer overrides.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("base_url", "http://localhost:3000")
	v.SetDefault("screenshot_path", "/app/verification/verification.png")
	v.SetDefault("driver", DriverPlaywright)
	v.SetDefault("headless", true)
	v.SetDefault("timeout", 30*time.Second)
	v.SetDefault("expect_timeout", 5*time.Second)
	v.SetDefault("slow_mo", time.Duration(0))
	v.SetDefault("viewport.width", 1280)
	v.SetDefault("viewport.height", 720)
	v.SetDefault("browser_path", "")
	v.SetDefault("install", true)
	v.SetDefault("scenario", "")
	v.SetDefault("strict_exit", true)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "console")
}

// New returns a viper instance with defaults and environment overrides wired.
// Flags bound by the caller take precedence over everything set here.
func New() *viper.Viper {
	v := viper.New()
	SetDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return v
}

// LoadDotEnv exports KEY=VALUE pairs from the given files into the process
// environment. Variables that are already set are left untouched and
// missing files are skipped.
func LoadDotEnv(paths ...string) error {
	for _, p := range paths {
		if err := gotenv.Load(p); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return fmt.Errorf("failed to load %s: %w", p, err)
		}
	}
	return nil
}

// Load reads the optional YAML config file into v and unmarshals the
// merged result.
func Load(v *viper.Viper, configFile string) (*Config, error) {
	if configFile != "" {
		v.SetConfigFile(configFile)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	// Images that ship browsers already skip the driver download.
	if os.Getenv("PLAYWRIGHT_PREINSTALLED") == "1" {
		cfg.Install = false
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// SettingsURL returns the page the verification expects to land on.
func (c *Config) SettingsURL() string {
	return strings.TrimRight(c.BaseURL, "/") + "/settings.html"
}
