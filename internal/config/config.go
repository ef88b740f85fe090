package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	defaultPort                = 8080
	defaultDataDir             = "data"
	defaultMinDelayMs          = 1000
	defaultMaxDelayMs          = 3000
	defaultRateLimitThreshold  = 10
	defaultRateLimitDurationMs = 600000
	defaultDailyFollowLimit    = 100
	defaultScanIntervalMs      = 1500
)

// Config describes runtime configuration for the service.
type Config struct {
	Port      int     `yaml:"port"`
	DataDir   string  `yaml:"data_dir"`
	ThreadURL string  `yaml:"thread_url"`
	AutoStart bool    `yaml:"auto_start"`
	Browser   Browser `yaml:"browser"`
	Follow    Follow  `yaml:"follow"`
	Detect    Detect  `yaml:"detect"`
}

// Browser selects how the service reaches a Chromium instance. A non-empty
// ControlURL attaches to an already running browser (the operator's logged-in
// session); otherwise a new one is launched.
type Browser struct {
	ControlURL string `yaml:"control_url"`
	Bin        string `yaml:"bin"`
	Headless   bool   `yaml:"headless"`
}

// Follow holds pacing and limit knobs for the follow engine.
type Follow struct {
	MinDelayMs          int `yaml:"min_delay_ms"`
	MaxDelayMs          int `yaml:"max_delay_ms"`
	RateLimitThreshold  int `yaml:"rate_limit_threshold"`
	RateLimitDurationMs int `yaml:"rate_limit_duration_ms"`
	DailyFollowLimit    int `yaml:"daily_follow_limit"`
}

// Detect holds thread scanning knobs.
type Detect struct {
	ScanIntervalMs int  `yaml:"scan_interval_ms"`
	VerifiedOnly   bool `yaml:"verified_only"`
}

func (f Follow) MinDelay() time.Duration { return time.Duration(f.MinDelayMs) * time.Millisecond }

func (f Follow) MaxDelay() time.Duration { return time.Duration(f.MaxDelayMs) * time.Millisecond }

func (f Follow) RateLimitDuration() time.Duration {
	return time.Duration(f.RateLimitDurationMs) * time.Millisecond
}

func (d Detect) ScanInterval() time.Duration {
	return time.Duration(d.ScanIntervalMs) * time.Millisecond
}

// Default returns sane defaults matching the documented limits.
func Default() Config {
	return Config{
		Port:    defaultPort,
		DataDir: defaultDataDir,
		Follow: Follow{
			MinDelayMs:          defaultMinDelayMs,
			MaxDelayMs:          defaultMaxDelayMs,
			RateLimitThreshold:  defaultRateLimitThreshold,
			RateLimitDurationMs: defaultRateLimitDurationMs,
			DailyFollowLimit:    defaultDailyFollowLimit,
		},
		Detect: Detect{
			ScanIntervalMs: defaultScanIntervalMs,
			VerifiedOnly:   true,
		},
	}
}

// Load reads YAML config from the provided path. If the file does not exist
// or is empty, defaults are returned with no error.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, errors.New("empty config path")
	}
	fileData, err := os.ReadFile(path) //nolint:gosec // config path is controlled by deployment
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return cfg, fmt.Errorf("read config: %w", err)
	}
	if len(fileData) == 0 {
		return cfg, nil
	}
	if err := yaml.Unmarshal(fileData, &cfg); err != nil {
		return cfg, fmt.Errorf("parse yaml: %w", err)
	}
	// basic normalization
	if cfg.Port == 0 {
		cfg.Port = defaultPort
	}
	if cfg.DataDir == "" {
		cfg.DataDir = defaultDataDir
	}
	cfg.ThreadURL = strings.TrimSpace(cfg.ThreadURL)
	cfg.Browser.ControlURL = strings.TrimSpace(cfg.Browser.ControlURL)
	// validate limits explicitly: a bad value here means a misconfigured
	// deployment, not something to silently clamp
	if cfg.Follow.MinDelayMs < 0 {
		return cfg, fmt.Errorf("invalid min_delay_ms: %d (must be >= 0)", cfg.Follow.MinDelayMs)
	}
	if cfg.Follow.MaxDelayMs < cfg.Follow.MinDelayMs {
		return cfg, fmt.Errorf("invalid max_delay_ms: %d (must be >= min_delay_ms %d)", cfg.Follow.MaxDelayMs, cfg.Follow.MinDelayMs)
	}
	if cfg.Follow.RateLimitThreshold < 1 {
		return cfg, fmt.Errorf("invalid rate_limit_threshold: %d (must be >= 1)", cfg.Follow.RateLimitThreshold)
	}
	if cfg.Follow.RateLimitDurationMs < 1 {
		return cfg, fmt.Errorf("invalid rate_limit_duration_ms: %d (must be >= 1)", cfg.Follow.RateLimitDurationMs)
	}
	if cfg.Follow.DailyFollowLimit < 1 {
		return cfg, fmt.Errorf("invalid daily_follow_limit: %d (must be >= 1)", cfg.Follow.DailyFollowLimit)
	}
	if cfg.Detect.ScanIntervalMs < 1 {
		return cfg, fmt.Errorf("invalid scan_interval_ms: %d (must be >= 1)", cfg.Detect.ScanIntervalMs)
	}
	return cfg, nil
}
