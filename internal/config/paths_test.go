package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestDefaultConfigPath(t *testing.T) {
	path, err := DefaultConfigPath()
	if err != nil {
		t.Fatalf("DefaultConfigPath failed: %v", err)
	}
	if !strings.HasSuffix(path, filepath.Join(".clawpanel", "config.yaml")) {
		t.Errorf("unexpected config path: %q", path)
	}
}

func TestDefaultHistoryPath(t *testing.T) {
	path, err := DefaultHistoryPath()
	if err != nil {
		t.Fatalf("DefaultHistoryPath failed: %v", err)
	}
	if !strings.HasSuffix(path, filepath.Join(".clawpanel", "history.db")) {
		t.Errorf("unexpected history path: %q", path)
	}
}

func TestExpandPath(t *testing.T) {
	home, err := os.UserHomeDir()
	if err != nil {
		t.Fatalf("UserHomeDir failed: %v", err)
	}

	tests := []struct {
		name string
		in   string
		want string
	}{
		{"empty", "", ""},
		{"tilde only", "~", home},
		{"tilde prefix", "~/panel/config.yaml", filepath.Join(home, "panel", "config.yaml")},
		{"absolute untouched", "/etc/panel.yaml", "/etc/panel.yaml"},
		{"relative untouched", "panel.yaml", "panel.yaml"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ExpandPath(tt.in)
			if err != nil {
				t.Fatalf("ExpandPath(%q) failed: %v", tt.in, err)
			}
			if got != tt.want {
				t.Errorf("ExpandPath(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}
