package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/spf13/viper"
)

func newViper(t *testing.T) *viper.Viper {
	t.Helper()
	v := viper.New()
	SetDefaults(v)
	BindEnv(v)
	return v
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load(newViper(t))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Server != "http://127.0.0.1:5000" || cfg.Quality != "720p" || cfg.Format != "mp4" {
		t.Fatalf("unexpected defaults: %+v", cfg)
	}
	if cfg.ItemDelay != 2*time.Second || cfg.Tick != 300*time.Millisecond || cfg.Retries != 2 {
		t.Fatalf("unexpected timing defaults: %+v", cfg)
	}
	if cfg.Rate != 1 || cfg.Demo || cfg.Plain {
		t.Fatalf("unexpected server defaults: %+v", cfg)
	}
}

func TestLoadFromEnv(t *testing.T) {
	t.Setenv("YTPL_ITEM_DELAY", "500ms")
	t.Setenv("YTPL_FORMAT", "MP3")
	t.Setenv("YTPL_QUALITY", "1080")

	cfg, err := Load(newViper(t))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.ItemDelay != 500*time.Millisecond {
		t.Fatalf("expected env item delay, got %v", cfg.ItemDelay)
	}
	if cfg.Format != "mp3" || cfg.Quality != "1080p" {
		t.Fatalf("expected normalized format and quality, got %q %q", cfg.Format, cfg.Quality)
	}
}

func TestLoadFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	content := "server: https://svc.example.com\nretries: 5\nlog-level: debug\n"
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	v := newViper(t)
	if err := ReadFile(v, path, true); err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	cfg, err := Load(v)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Server != "https://svc.example.com" || cfg.Retries != 5 || cfg.LogLevel != "debug" {
		t.Fatalf("unexpected config: %+v", cfg)
	}
}

func TestReadFileMissing(t *testing.T) {
	missing := filepath.Join(t.TempDir(), "nope.yaml")
	if err := ReadFile(viper.New(), missing, false); err != nil {
		t.Fatalf("missing default file should be ignored, got %v", err)
	}
	if err := ReadFile(viper.New(), missing, true); err == nil {
		t.Fatalf("missing explicit file should fail")
	}
}

func TestLoadValidation(t *testing.T) {
	tests := []struct {
		name string
		key  string
		val  any
		want string
	}{
		{name: "quality", key: KeyQuality, val: "4k", want: "unsupported quality"},
		{name: "format", key: KeyFormat, val: "flac", want: "unsupported format"},
		{name: "server", key: KeyServer, val: "ftp://x", want: KeyServer},
		{name: "delay", key: KeyItemDelay, val: "-1s", want: KeyItemDelay},
		{name: "tick", key: KeyTick, val: "0s", want: KeyTick},
		{name: "level", key: KeyLogLevel, val: "loud", want: "invalid log level"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := newViper(t)
			v.Set(tt.key, tt.val)
			_, err := Load(v)
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Fatalf("expected error containing %q, got %v", tt.want, err)
			}
		})
	}
}
