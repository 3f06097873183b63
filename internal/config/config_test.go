package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoad_Defaults(t *testing.T) {
	Reset()
	defer Reset()

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Gateway.URL != "ws://127.0.0.1:18789/ws" {
		t.Errorf("gateway.url = %q, want ws://127.0.0.1:18789/ws", cfg.Gateway.URL)
	}
	if cfg.Chat.SessionKey != "main" {
		t.Errorf("chat.session_key = %q, want main", cfg.Chat.SessionKey)
	}
	if cfg.Log.Level != "info" {
		t.Errorf("log.level = %q, want info", cfg.Log.Level)
	}
	if cfg.Log.Format != "console" {
		t.Errorf("log.format = %q, want console", cfg.Log.Format)
	}
}

func TestLoad_FromFile(t *testing.T) {
	Reset()
	defer Reset()

	tmpDir := t.TempDir()
	configFile := filepath.Join(tmpDir, "config.yaml")

	content := `
gateway:
  url: "wss://gw.example.com/ws"
  token: "tok-123"
chat:
  agent_id: "helper"
  session_key: "side"
log:
  level: debug
  format: json
`
	if err := os.WriteFile(configFile, []byte(content), 0644); err != nil {
		t.Fatalf("Failed to write config file: %v", err)
	}

	cfg, err := Load(configFile)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Gateway.URL != "wss://gw.example.com/ws" {
		t.Errorf("gateway.url = %q, want wss://gw.example.com/ws", cfg.Gateway.URL)
	}
	if cfg.Gateway.Token != "tok-123" {
		t.Errorf("gateway.token = %q, want tok-123", cfg.Gateway.Token)
	}
	if cfg.Chat.AgentID != "helper" {
		t.Errorf("chat.agent_id = %q, want helper", cfg.Chat.AgentID)
	}
	if cfg.Chat.SessionKey != "side" {
		t.Errorf("chat.session_key = %q, want side", cfg.Chat.SessionKey)
	}
	if cfg.Log.Level != "debug" {
		t.Errorf("log.level = %q, want debug", cfg.Log.Level)
	}
}

func TestLoad_MissingFile(t *testing.T) {
	Reset()
	defer Reset()

	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	if err != nil {
		t.Fatalf("Load with missing file failed: %v", err)
	}
	if cfg.Gateway.URL == "" {
		t.Error("defaults not applied when file is missing")
	}
}

func TestLoad_MalformedFile(t *testing.T) {
	Reset()
	defer Reset()

	configFile := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(configFile, []byte("gateway: [not: valid"), 0644); err != nil {
		t.Fatalf("Failed to write config file: %v", err)
	}

	if _, err := Load(configFile); err == nil {
		t.Error("Load with malformed file succeeded, want error")
	}
}

func TestLoad_EnvOverride(t *testing.T) {
	Reset()
	defer Reset()

	t.Setenv("CLAWPANEL_GATEWAY_URL", "wss://env.example.com/ws")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Gateway.URL != "wss://env.example.com/ws" {
		t.Errorf("gateway.url = %q, want env override", cfg.Gateway.URL)
	}
}

func TestSetPersists(t *testing.T) {
	Reset()
	defer Reset()

	configFile := filepath.Join(t.TempDir(), "config.yaml")
	if _, err := Load(configFile); err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if err := Set("gateway.token", "fresh-token"); err != nil {
		t.Fatalf("Set failed: %v", err)
	}

	if got := GetConfig().Gateway.Token; got != "fresh-token" {
		t.Errorf("in-memory token = %q, want fresh-token", got)
	}

	// The written file round-trips through a fresh Load.
	Reset()
	cfg, err := Load(configFile)
	if err != nil {
		t.Fatalf("reload failed: %v", err)
	}
	if cfg.Gateway.Token != "fresh-token" {
		t.Errorf("persisted token = %q, want fresh-token", cfg.Gateway.Token)
	}

	info, err := os.Stat(configFile)
	if err != nil {
		t.Fatalf("stat config file: %v", err)
	}
	if info.Mode().Perm() != 0600 {
		t.Errorf("config file mode = %v, want 0600", info.Mode().Perm())
	}
}

func TestSaveTo(t *testing.T) {
	Reset()
	defer Reset()

	path := filepath.Join(t.TempDir(), "nested", "config.yaml")
	cfg := &Config{}
	cfg.Gateway.URL = "wss://saved.example.com/ws"

	if err := SaveTo(cfg, path); err != nil {
		t.Fatalf("SaveTo failed: %v", err)
	}

	loaded, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if loaded.Gateway.URL != "wss://saved.example.com/ws" {
		t.Errorf("gateway.url = %q, want saved value", loaded.Gateway.URL)
	}
}

func TestWatcherReloads(t *testing.T) {
	Reset()
	defer Reset()

	configFile := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(configFile, []byte("chat:\n  agent_id: before\n"), 0600); err != nil {
		t.Fatalf("Failed to write config file: %v", err)
	}
	if _, err := Load(configFile); err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	reloaded := make(chan *Config, 1)
	w, err := NewWatcher(configFile, func(cfg *Config) {
		select {
		case reloaded <- cfg:
		default:
		}
	})
	if err != nil {
		t.Fatalf("NewWatcher failed: %v", err)
	}
	if err := w.Start(); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	defer w.Stop()

	if err := os.WriteFile(configFile, []byte("chat:\n  agent_id: after\n"), 0600); err != nil {
		t.Fatalf("Failed to rewrite config file: %v", err)
	}

	select {
	case cfg := <-reloaded:
		if cfg.Chat.AgentID != "after" {
			t.Errorf("agent_id after reload = %q, want after", cfg.Chat.AgentID)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("watcher never reloaded")
	}
}
