package cli

import (
	"bytes"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/charmbracelet/log"

	"github.com/matzehuels/panelgrid/pkg/history"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.toml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadConfigDefaults(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())

	cfg, err := loadConfig("", newLogger(io.Discard, log.DebugLevel))
	if err != nil {
		t.Fatalf("loadConfig() error: %v", err)
	}
	if cfg.Server.Addr != ":8000" {
		t.Errorf("Addr = %q, want :8000", cfg.Server.Addr)
	}
	if cfg.Editor.HistoryLimit != history.DefaultLimit {
		t.Errorf("HistoryLimit = %d, want %d", cfg.Editor.HistoryLimit, history.DefaultLimit)
	}
	if got := cfg.Editor.debounce(); got != 50*time.Millisecond {
		t.Errorf("debounce() = %v, want 50ms", got)
	}
}

func TestLoadConfigFile(t *testing.T) {
	path := writeConfig(t, `
[server]
addr = ":9000"
sessions = "file"
session_dir = "/tmp/sessions"
session_ttl = "2h"
cache = "redis"

[editor]
url = "http://example.test"
history_limit = 10
`)
	cfg, err := loadConfig(path, newLogger(io.Discard, log.InfoLevel))
	if err != nil {
		t.Fatalf("loadConfig() error: %v", err)
	}
	if cfg.Server.Addr != ":9000" || cfg.Server.Sessions != backendFile || cfg.Server.Cache != backendRedis {
		t.Errorf("server = %+v", cfg.Server)
	}
	if cfg.Server.sessionTTL() != 2*time.Hour {
		t.Errorf("sessionTTL() = %v, want 2h", cfg.Server.sessionTTL())
	}
	if cfg.Editor.URL != "http://example.test" || cfg.Editor.HistoryLimit != 10 {
		t.Errorf("editor = %+v", cfg.Editor)
	}
	// Keys not in the file keep their defaults.
	if cfg.Editor.Epsilon != defaultConfig().Editor.Epsilon {
		t.Errorf("Epsilon = %v, want default", cfg.Editor.Epsilon)
	}
}

func TestLoadConfigExplicitMissing(t *testing.T) {
	_, err := loadConfig(filepath.Join(t.TempDir(), "nope.toml"), newLogger(io.Discard, log.InfoLevel))
	if err == nil {
		t.Fatal("loadConfig() of a missing explicit file should fail")
	}
}

func TestLoadConfigUnknownKeys(t *testing.T) {
	path := writeConfig(t, "[editor]\ncolour = \"blue\"\n")
	var buf bytes.Buffer
	if _, err := loadConfig(path, newLogger(&buf, log.InfoLevel)); err != nil {
		t.Fatalf("loadConfig() error: %v", err)
	}
	if !strings.Contains(buf.String(), "colour") {
		t.Errorf("warning should name the unknown key, got %q", buf.String())
	}
}

func TestLoadConfigInvalid(t *testing.T) {
	tests := []struct {
		name    string
		content string
		want    string
	}{
		{"sessions backend", "[server]\nsessions = \"sqlite\"\n", "server.sessions"},
		{"cache backend", "[server]\ncache = \"memcached\"\n", "server.cache"},
		{"presets backend", "[server]\npresets = \"s3\"\n", "server.presets"},
		{"ttl", "[server]\nsession_ttl = \"soon\"\n", "server.session_ttl"},
		{"relay without redis", "[server]\nrelay = true\n", "relay"},
		{"history limit", "[editor]\nhistory_limit = 0\n", "history_limit"},
		{"epsilon", "[editor]\nepsilon = 1.5\n", "epsilon"},
		{"syntax", "[server\n", "parse config"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := loadConfig(writeConfig(t, tt.content), newLogger(io.Discard, log.InfoLevel))
			if err == nil {
				t.Fatal("loadConfig() should fail")
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Errorf("error = %v, want it to mention %q", err, tt.want)
			}
		})
	}
}
