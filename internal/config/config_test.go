package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"clinicsync/internal/utils"
)

func writeConfig(t *testing.T, dir, body string) string {
	t.Helper()
	path := filepath.Join(dir, CONFIG_FILE_PATH)
	if err := os.WriteFile(path, []byte(body), CONFIG_FILE_PERM); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}
	return path
}

// TestLoadMissingFileUsesSample tests that a missing file yields the sample defaults
func TestLoadMissingFileUsesSample(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Remote.Type != "rest" || cfg.Remote.URL != "" {
		t.Errorf("remote = %+v", cfg.Remote)
	}
	if cfg.Interval() != 5*time.Minute {
		t.Errorf("Interval() = %v, want 5m", cfg.Interval())
	}
	if !cfg.Sync.AutoSync || !cfg.Sync.Realtime {
		t.Errorf("sync = %+v", cfg.Sync)
	}
	if cfg.Tracing.Exporter != "none" {
		t.Errorf("exporter = %q", cfg.Tracing.Exporter)
	}
}

// TestParsePartialFileFillsDefaults tests that omitted fields keep their defaults
func TestParsePartialFileFillsDefaults(t *testing.T) {
	cfg, err := Parse([]byte("remote:\n  url: https://clinic.example.org\nsync:\n  auto_sync: false\n"))
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	if cfg.Remote.Type != "rest" {
		t.Errorf("type = %q, want rest", cfg.Remote.Type)
	}
	if cfg.Sync.AutoSync {
		t.Error("auto_sync should be false")
	}
	if cfg.Sync.IntervalMinutes != DefaultIntervalMinutes {
		t.Errorf("interval = %d", cfg.Sync.IntervalMinutes)
	}
	if cfg.Dashboard.Port != 8765 {
		t.Errorf("port = %d", cfg.Dashboard.Port)
	}
	if cfg.RemoteHost() != "clinic.example.org" {
		t.Errorf("RemoteHost() = %q", cfg.RemoteHost())
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		yaml    string
		wantErr string
	}{
		{"valid postgres", "remote:\n  type: postgres\n  url: postgres://u:p@localhost:5432/clinic\n", ""},
		{"bad type", "remote:\n  type: firebase\n", "Type"},
		{"bad interval", "sync:\n  interval_minutes: -3\n", "IntervalMinutes"},
		{"bad exporter", "tracing:\n  exporter: jaeger\n", "Exporter"},
		{"otlp without endpoint", "tracing:\n  exporter: otlp\n", "otlp_endpoint"},
		{"bad port", "dashboard:\n  port: 70000\n", "Port"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.yaml))
			if tt.wantErr == "" {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				return
			}
			if err == nil {
				t.Fatalf("expected error containing %q", tt.wantErr)
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("error %q does not mention %q", err, tt.wantErr)
			}
			var ews *utils.ErrorWithSuggestion
			if !errors.As(err, &ews) {
				t.Errorf("expected ErrorWithSuggestion, got %T", err)
			}
		})
	}
}

func TestParseInvalidYAML(t *testing.T) {
	if _, err := Parse([]byte("remote: [unclosed")); err == nil {
		t.Error("expected YAML error")
	}
}

// TestEnvOverrides tests that environment variables win over the file
func TestEnvOverrides(t *testing.T) {
	t.Setenv(EnvRemoteURL, "https://env.example.org")
	t.Setenv(EnvRemoteAccessKey, "env-key")
	t.Setenv(EnvDatabasePath, "/tmp/env-clinic.db")

	path := writeConfig(t, t.TempDir(), "remote:\n  url: https://file.example.org\n  access_key: file-key\n")
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Remote.URL != "https://env.example.org" || cfg.Remote.AccessKey != "env-key" {
		t.Errorf("remote = %+v", cfg.Remote)
	}
	if p, _ := cfg.DatabasePath(); p != "/tmp/env-clinic.db" {
		t.Errorf("DatabasePath() = %q", p)
	}
}

func TestRemoteBackendConfig(t *testing.T) {
	cfg := Default()
	cfg.Remote.URL = "https://clinic.example.org"
	cfg.Remote.AccessKey = "from-file"

	if rc := cfg.RemoteBackendConfig(""); rc.AccessKey != "from-file" || rc.Type != "rest" {
		t.Errorf("RemoteBackendConfig(\"\") = %+v", rc)
	}
	if rc := cfg.RemoteBackendConfig("resolved"); rc.AccessKey != "resolved" {
		t.Errorf("resolved key not used: %+v", rc)
	}
}

func TestSetCustomConfigPath(t *testing.T) {
	defer func() { customConfigPath = "" }()

	dir := t.TempDir()
	SetCustomConfigPath(dir)
	if got, _ := GetConfigPath(); got != filepath.Join(dir, CONFIG_FILE_PATH) {
		t.Errorf("directory path = %q", got)
	}

	file := filepath.Join(dir, "other.yaml")
	SetCustomConfigPath(file)
	if got, _ := GetConfigPath(); got != file {
		t.Errorf("file path = %q", got)
	}
}

func TestWriteSample(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", CONFIG_FILE_PATH)
	if err := WriteSample(path); err != nil {
		t.Fatalf("WriteSample failed: %v", err)
	}
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("sample does not load: %v", err)
	}
	if cfg.Sync.IntervalMinutes != DefaultIntervalMinutes {
		t.Errorf("interval = %d", cfg.Sync.IntervalMinutes)
	}
}

// TestWatchReload tests that an edit to the file is delivered as a new config
func TestWatchReload(t *testing.T) {
	dir := t.TempDir()
	path := writeConfig(t, dir, "sync:\n  interval_minutes: 5\n")

	w, err := Watch(path)
	if err != nil {
		t.Fatalf("Watch failed: %v", err)
	}
	defer w.Stop()

	writeConfig(t, dir, "sync:\n  interval_minutes: 2\n")

	select {
	case cfg := <-w.Changes():
		if cfg.Interval() != 2*time.Minute {
			t.Errorf("reloaded interval = %v", cfg.Interval())
		}
	case err := <-w.Errors():
		t.Fatalf("reload error: %v", err)
	case <-time.After(5 * time.Second):
		t.Fatal("no reload delivered")
	}
}

func TestWatchReportsInvalidEdit(t *testing.T) {
	dir := t.TempDir()
	path := writeConfig(t, dir, "sync:\n  interval_minutes: 5\n")

	w, err := Watch(path)
	if err != nil {
		t.Fatalf("Watch failed: %v", err)
	}
	defer w.Stop()

	writeConfig(t, dir, "sync:\n  interval_minutes: 0\ntracing:\n  exporter: bogus\n")

	select {
	case <-w.Changes():
		t.Fatal("invalid config delivered as a change")
	case err := <-w.Errors():
		if !strings.Contains(err.Error(), "Exporter") {
			t.Errorf("unexpected error: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("no error delivered")
	}
}

func TestWatchStopIsIdempotent(t *testing.T) {
	path := writeConfig(t, t.TempDir(), "")
	w, err := Watch(path)
	if err != nil {
		t.Fatalf("Watch failed: %v", err)
	}
	if err := w.Stop(); err != nil {
		t.Fatalf("Stop failed: %v", err)
	}
	if err := w.Stop(); err != nil {
		t.Fatalf("second Stop failed: %v", err)
	}
	if _, ok := <-w.Changes(); ok {
		t.Error("Changes should be closed")
	}
}
