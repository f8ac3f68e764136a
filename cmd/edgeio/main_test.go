package main

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/danmuck/edgeio/internal/config"
	"github.com/danmuck/edgeio/internal/protocol/session"
	"github.com/danmuck/edgeio/internal/testutil/testlog"
)

func noEnv(string) (string, bool) { return "", false }

func TestResolveConfigDefaultsAndEnv(t *testing.T) {
	testlog.Start(t)
	lookup := func(key string) (string, bool) {
		if key == config.EnvToken {
			return "env-token", true
		}
		return "", false
	}
	cfg, err := resolveConfig(runOptions{}, lookup)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if cfg.Session.Token != "env-token" {
		t.Fatalf("unexpected token: %q", cfg.Session.Token)
	}
	if cfg.Session.Endpoint != session.DefaultConfig().Endpoint || cfg.AdminAddr != "" {
		t.Fatalf("unexpected defaults: %+v", cfg)
	}
}

func TestResolveConfigFlagsWin(t *testing.T) {
	testlog.Start(t)
	t.Setenv(config.EnvToken, "env-token")
	t.Setenv(config.EnvEndpoint, "")
	path := filepath.Join(t.TempDir(), "edgeio.toml")
	if err := os.WriteFile(path, []byte("token = \"file-token\"\nadmin_addr = \"127.0.0.1:7070\"\n"), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := resolveConfig(runOptions{
		configPath: path,
		token:      "flag-token",
		endpoint:   "ws://127.0.0.1:9999/ws",
		logLevel:   "debug",
	}, noEnv)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if cfg.Session.Token != "flag-token" || cfg.Session.Endpoint != "ws://127.0.0.1:9999/ws" {
		t.Fatalf("flags should win: %+v", cfg.Session)
	}
	if cfg.AdminAddr != "127.0.0.1:7070" || cfg.LogLevel != "debug" {
		t.Fatalf("unexpected process settings: %+v", cfg)
	}
}

func TestResolveConfigRejectsBadEndpoint(t *testing.T) {
	testlog.Start(t)
	_, err := resolveConfig(runOptions{endpoint: "http://relay.example.test"}, noEnv)
	if !errors.Is(err, session.ErrInvalidEndpoint) {
		t.Fatalf("expected invalid endpoint, got %v", err)
	}
}

func TestConfigInitAndValidateCommands(t *testing.T) {
	testlog.Start(t)
	t.Setenv(config.EnvToken, "")
	t.Setenv(config.EnvEndpoint, "")
	path := filepath.Join(t.TempDir(), "edgeio.yaml")

	var out bytes.Buffer
	root := newRootCmd()
	root.SetOut(&out)
	root.SetArgs([]string{"config", "init", "--output", path})
	if err := root.Execute(); err != nil {
		t.Fatalf("config init: %v", err)
	}
	if !strings.Contains(out.String(), "wrote yaml config template") {
		t.Fatalf("unexpected init output: %q", out.String())
	}

	out.Reset()
	root = newRootCmd()
	root.SetOut(&out)
	root.SetArgs([]string{"config", "validate", path})
	if err := root.Execute(); err != nil {
		t.Fatalf("config validate: %v", err)
	}
	if !strings.Contains(out.String(), "security_mode=development token_set=false") {
		t.Fatalf("unexpected validate output: %q", out.String())
	}
}

func TestVersionShort(t *testing.T) {
	testlog.Start(t)
	var out bytes.Buffer
	root := newRootCmd()
	root.SetOut(&out)
	root.SetArgs([]string{"version", "--short"})
	if err := root.Execute(); err != nil {
		t.Fatalf("version: %v", err)
	}
	if strings.TrimSpace(out.String()) != version {
		t.Fatalf("unexpected version output: %q", out.String())
	}
}
