package config

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestSaveAndLoad(t *testing.T) {
	tmpDir := t.TempDir()
	path := filepath.Join(tmpDir, "config.toml")

	cfg := Default()
	cfg.DefaultSession = "work"
	cfg.Sync.PollInterval = Duration{2 * time.Second}
	cfg.Source.SelfID = "0xabc"
	if err := Save(path, cfg); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	loaded, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if loaded.DefaultSession != "work" {
		t.Errorf("DefaultSession = %q, want %q", loaded.DefaultSession, "work")
	}
	if loaded.Sync.PollInterval.Duration != 2*time.Second {
		t.Errorf("PollInterval = %v, want 2s", loaded.Sync.PollInterval)
	}
	if loaded.Source.SelfID != "0xabc" {
		t.Errorf("SelfID = %q, want 0xabc", loaded.Source.SelfID)
	}
}

func TestLoadOverlaysDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	data := `
default_session = "work"

[source]
kind = "memory"

[sync]
poll_interval = "250ms"
`
	if err := os.WriteFile(path, []byte(data), 0600); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Source.Kind != SourceMemory {
		t.Errorf("Source.Kind = %q, want memory", cfg.Source.Kind)
	}
	if cfg.Sync.PollInterval.Duration != 250*time.Millisecond {
		t.Errorf("PollInterval = %v, want 250ms", cfg.Sync.PollInterval)
	}
	if cfg.Sync.MaxBackoff.Duration != time.Minute {
		t.Errorf("MaxBackoff = %v, want default 1m", cfg.Sync.MaxBackoff)
	}
	if cfg.Sync.MessageWorkers != 4 || !cfg.Notify.Enabled || cfg.LogLevel != "info" {
		t.Errorf("defaults not kept: %+v", cfg)
	}
}

func TestLoadInvalid(t *testing.T) {
	tests := []struct {
		name string
		data string
	}{
		{"unknown source", "[source]\nkind = \"carrier-pigeon\"\n"},
		{"bad duration", "[sync]\npoll_interval = \"soon\"\n"},
		{"zero workers", "[sync]\nmessage_workers = 0\n"},
		{"bad level", "log_level = \"loud\"\n"},
		{"gateway without url", "[source]\nkind = \"gateway\"\nurl = \"\"\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "config.toml")
			if err := os.WriteFile(path, []byte(tt.data), 0600); err != nil {
				t.Fatal(err)
			}
			if _, err := Load(path); err == nil {
				t.Error("Load() expected error")
			}
		})
	}
}

func TestLoadMissing(t *testing.T) {
	_, err := Load("/nonexistent/config.toml")
	if err == nil {
		t.Error("Load() expected error for missing file")
	}

	cfg, err := LoadOrDefault("/nonexistent/config.toml")
	if err != nil {
		t.Fatalf("LoadOrDefault() error = %v", err)
	}
	if cfg.DefaultSession != "main" {
		t.Errorf("DefaultSession = %q, want main", cfg.DefaultSession)
	}
}

func TestSavePermissions(t *testing.T) {
	tmpDir := t.TempDir()
	path := filepath.Join(tmpDir, "config.toml")

	if err := Save(path, Default()); err != nil {
		t.Fatal(err)
	}

	info, err := os.Stat(path)
	if err != nil {
		t.Fatal(err)
	}
	perm := info.Mode().Perm()
	if perm != 0600 {
		t.Errorf("file permission = %o, want 0600", perm)
	}
}

func TestWriteRoundTripsDurations(t *testing.T) {
	var buf bytes.Buffer
	if err := Write(&buf, Default()); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(buf.String(), `poll_interval = "5s"`) {
		t.Errorf("durations should encode as strings:\n%s", buf.String())
	}
}
