package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/ctagard/inspector-mcp/internal/errors"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}
	return path
}

// TestLoadConfig_Default verifies an empty path yields the defaults.
func TestLoadConfig_Default(t *testing.T) {
	cfg, err := LoadConfig("")
	if err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}
	if cfg.Mode != ModeReadOnly {
		t.Errorf("expected mode readonly, got %s", cfg.Mode)
	}
	if cfg.Transport != TransportVMService {
		t.Errorf("expected vmservice transport, got %s", cfg.Transport)
	}
	if cfg.SessionTTL() != 30*time.Minute {
		t.Errorf("expected 30m session timeout, got %v", cfg.SessionTTL())
	}
	if cfg.CanMutate() {
		t.Error("readonly mode must not allow mutation")
	}
}

// TestLoadConfig_JSONWithComments verifies JSONC files parse.
func TestLoadConfig_JSONWithComments(t *testing.T) {
	path := writeFile(t, "inspector.json", `{
		// full mode enables inspector_set_color
		"mode": "full",
		"maxSessions": 2,
		"sessionTimeout": "5m",
		"pubRootDirectories": ["/work/app"],
		"retry": {"maxAttempts": 10, "interval": "1ms"},
	}`)

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}
	if !cfg.CanMutate() {
		t.Error("expected full mode")
	}
	if cfg.MaxSessions != 2 {
		t.Errorf("expected 2 sessions, got %d", cfg.MaxSessions)
	}
	if cfg.SessionTTL() != 5*time.Minute {
		t.Errorf("expected 5m, got %v", cfg.SessionTTL())
	}
	if len(cfg.PubRootDirectories) != 1 || cfg.PubRootDirectories[0] != "/work/app" {
		t.Errorf("unexpected pub roots: %v", cfg.PubRootDirectories)
	}
	if cfg.Retry.MaxAttempts != 10 || time.Duration(cfg.Retry.Interval) != time.Millisecond {
		t.Errorf("unexpected retry config: %+v", cfg.Retry)
	}
	// Untouched fields keep defaults
	if cfg.Screenshot.Width != 800 {
		t.Errorf("expected default screenshot width, got %d", cfg.Screenshot.Width)
	}
}

// TestLoadConfig_YAML verifies YAML files parse.
func TestLoadConfig_YAML(t *testing.T) {
	path := writeFile(t, "inspector.yaml", `
transport: dap
flutterPath: /opt/flutter/bin/flutter
requestTimeout: 3s
screenshot:
  width: 320
  height: 240
  maxPixelRatio: 2
`)

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}
	if cfg.Transport != TransportDAP {
		t.Errorf("expected dap transport, got %s", cfg.Transport)
	}
	if cfg.FlutterPath != "/opt/flutter/bin/flutter" {
		t.Errorf("unexpected flutter path %s", cfg.FlutterPath)
	}
	if cfg.RequestTTL() != 3*time.Second {
		t.Errorf("expected 3s, got %v", cfg.RequestTTL())
	}
	if cfg.Screenshot.Width != 320 || cfg.Screenshot.MaxPixelRatio != 2 {
		t.Errorf("unexpected screenshot config: %+v", cfg.Screenshot)
	}
}

// TestLoadConfig_Invalid verifies validation failures are reported as CONFIG_INVALID.
func TestLoadConfig_Invalid(t *testing.T) {
	tests := []struct {
		name    string
		file    string
		content string
	}{
		{"bad mode", "a.json", `{"mode": "godmode"}`},
		{"bad transport", "b.json", `{"transport": "carrier-pigeon"}`},
		{"zero sessions", "c.yaml", "maxSessions: 0\n"},
		{"bad duration", "d.json", `{"sessionTimeout": "soon"}`},
		{"syntax", "e.json", `{"mode": `},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadConfig(writeFile(t, tt.file, tt.content))
			if err == nil {
				t.Fatal("expected error")
			}
			if !errors.HasCode(err, errors.CodeConfigInvalid) {
				t.Errorf("expected CONFIG_INVALID, got %v", err)
			}
		})
	}
}

// TestLoadConfig_Missing verifies a missing file is an error.
func TestLoadConfig_Missing(t *testing.T) {
	if _, err := LoadConfig(filepath.Join(t.TempDir(), "nope.json")); err == nil {
		t.Error("expected error for missing file")
	}
}
