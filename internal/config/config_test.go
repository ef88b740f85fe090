package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDefaults(t *testing.T) {
	cfg := Default()
	if cfg.Port == 0 || cfg.DataDir == "" {
		t.Fatalf("default config invalid: %+v", cfg)
	}
	if cfg.Follow.MinDelayMs != 1000 || cfg.Follow.MaxDelayMs != 3000 {
		t.Fatalf("unexpected default delays: %+v", cfg.Follow)
	}
	if cfg.Follow.RateLimitThreshold != 10 || cfg.Follow.DailyFollowLimit != 100 {
		t.Fatalf("unexpected default limits: %+v", cfg.Follow)
	}
	if cfg.Follow.RateLimitDuration() != 10*time.Minute {
		t.Fatalf("unexpected cooldown duration: %v", cfg.Follow.RateLimitDuration())
	}
	if !cfg.Detect.VerifiedOnly || cfg.Detect.ScanInterval() != 1500*time.Millisecond {
		t.Fatalf("unexpected default detect: %+v", cfg.Detect)
	}
}

func TestLoadMissingFileReturnsDefaults(t *testing.T) {
	_, err := Load("not_exists.yml")
	if err != nil {
		t.Fatalf("expected no error for missing file, got %v", err)
	}
}

func TestLoadReadsAndValidates(t *testing.T) {
	tempDir := t.TempDir()
	path := filepath.Join(tempDir, "cfg.yml")
	content := []byte(`port: 9090
data_dir: testdata
thread_url: "https://x.com/user/status/123 "
browser:
  control_url: "ws://127.0.0.1:9222"
follow:
  min_delay_ms: 500
  max_delay_ms: 800
detect:
  scan_interval_ms: 2000
`)
	if err := os.WriteFile(path, content, 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Port != 9090 || cfg.DataDir != "testdata" {
		t.Fatalf("unexpected cfg: %+v", cfg)
	}
	if cfg.ThreadURL != "https://x.com/user/status/123" {
		t.Fatalf("thread_url not trimmed: %q", cfg.ThreadURL)
	}
	if cfg.Browser.ControlURL != "ws://127.0.0.1:9222" {
		t.Fatalf("unexpected browser cfg: %+v", cfg.Browser)
	}
	if cfg.Follow.MinDelay() != 500*time.Millisecond || cfg.Follow.MaxDelay() != 800*time.Millisecond {
		t.Fatalf("unexpected delays: %+v", cfg.Follow)
	}
	// fields absent from the file keep their defaults
	if cfg.Follow.DailyFollowLimit != 100 || cfg.Follow.RateLimitThreshold != 10 {
		t.Fatalf("defaults not preserved: %+v", cfg.Follow)
	}
	if cfg.Detect.ScanIntervalMs != 2000 {
		t.Fatalf("unexpected detect: %+v", cfg.Detect)
	}
}

func TestLoadRejectsInvalidValues(t *testing.T) {
	cases := []string{
		"follow:\n  min_delay_ms: -1\n",
		"follow:\n  min_delay_ms: 3000\n  max_delay_ms: 1000\n",
		"follow:\n  rate_limit_threshold: 0\n",
		"follow:\n  rate_limit_duration_ms: 0\n",
		"follow:\n  daily_follow_limit: -5\n",
		"detect:\n  scan_interval_ms: 0\n",
	}
	tempDir := t.TempDir()
	for i, content := range cases {
		path := filepath.Join(tempDir, "cfg.yml")
		if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
			t.Fatalf("write: %v", err)
		}
		if _, err := Load(path); err == nil {
			t.Fatalf("case %d: expected error for %q", i, content)
		}
	}
}
