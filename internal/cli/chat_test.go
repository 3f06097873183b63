package cli

import (
	"path/filepath"
	"testing"
	"time"

	"clawpanel/internal/config"
	"clawpanel/internal/gateway"
	"clawpanel/internal/history"
)

func newTestSession(t *testing.T, cfg gateway.Config) *chatSession {
	t.Helper()
	store, err := history.Open(filepath.Join(t.TempDir(), "history.db"))
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	session := newChatSession(cfg, store)
	t.Cleanup(session.close)
	return session
}

func TestApplyConfigSwapsSettingsAndRedials(t *testing.T) {
	session := newTestSession(t, gateway.Config{
		GatewayURL: "ws://127.0.0.1:1/ws",
		Token:      "old-token",
	})

	cfg := &config.Config{}
	cfg.Gateway.URL = "ws://127.0.0.1:2/ws"
	cfg.Gateway.Token = "new-token"
	cfg.Chat.SessionKey = "side"
	session.applyConfig(cfg)

	got := session.currentCfg()
	if got.GatewayURL != "ws://127.0.0.1:2/ws" {
		t.Errorf("gateway url = %q, want the reloaded one", got.GatewayURL)
	}
	if got.Token != "new-token" {
		t.Errorf("token = %q, want new-token", got.Token)
	}
	if session.sessionKey() != "side" {
		t.Errorf("session key = %q, want side", session.sessionKey())
	}

	// Connect was kicked off with the new settings.
	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		if state := session.client.State(); state != gateway.StateIdle {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Errorf("client state = %v, want a dial in progress after reload", session.client.State())
}

func TestApplyConfigKeepsFlagOverrides(t *testing.T) {
	session := newTestSession(t, gateway.Config{
		GatewayURL: "ws://127.0.0.1:1/ws",
		AgentID:    "flag-agent",
		SessionKey: "flag-session",
	})
	session.agentOverride = "flag-agent"
	session.sessionOverride = "flag-session"

	cfg := &config.Config{}
	cfg.Gateway.URL = "ws://127.0.0.1:2/ws"
	cfg.Chat.AgentID = "file-agent"
	cfg.Chat.SessionKey = "file-session"
	session.applyConfig(cfg)

	got := session.currentCfg()
	if got.AgentID != "flag-agent" {
		t.Errorf("agent id = %q, flag override must survive a reload", got.AgentID)
	}
	if got.SessionKey != "flag-session" {
		t.Errorf("session key = %q, flag override must survive a reload", got.SessionKey)
	}
	if got.GatewayURL != "ws://127.0.0.1:2/ws" {
		t.Errorf("gateway url = %q, want the reloaded one", got.GatewayURL)
	}
}
