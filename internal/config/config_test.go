package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestSaveAndLoadGlobal(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")

	if err := Save(path, &Global{DefaultProfile: "work"}); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	loaded, err := LoadGlobal(path)
	if err != nil {
		t.Fatalf("LoadGlobal() error = %v", err)
	}
	if loaded.DefaultProfile != "work" {
		t.Errorf("DefaultProfile = %q, want %q", loaded.DefaultProfile, "work")
	}
}

func TestLoadGlobalMissing(t *testing.T) {
	if _, err := LoadGlobal("/nonexistent/config.toml"); err == nil {
		t.Error("LoadGlobal() expected error for missing file")
	}
}

func TestLoadMissingUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.toml"))
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Conversation.PageSize != 30 || cfg.Typing.QuietPeriod.Duration != 5*time.Second {
		t.Errorf("cfg = %+v, want defaults", cfg)
	}
}

func TestLoadOverlaysFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	data := `
[socket]
url = "wss://chat.example.com/socket"
user_id = 42
transport = "grpc"

[typing]
quiet_period = "2s"
`
	if err := os.WriteFile(path, []byte(data), 0600); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Socket.UserID != 42 || cfg.Socket.Transport != "grpc" {
		t.Errorf("socket = %+v", cfg.Socket)
	}
	if cfg.Typing.QuietPeriod.Duration != 2*time.Second {
		t.Errorf("quiet_period = %v, want 2s", cfg.Typing.QuietPeriod)
	}
	if cfg.Typing.ThrottleWindow.Duration != 3*time.Second {
		t.Errorf("throttle_window = %v, want default 3s", cfg.Typing.ThrottleWindow)
	}
}

func TestLoadRejectsInvalid(t *testing.T) {
	tests := []struct {
		name string
		data string
		want string
	}{
		{"bad duration", "[typing]\nquiet_period = \"soon\"\n", "soon"},
		{"bad transport", "[socket]\ntransport = \"carrier-pigeon\"\n", "socket.transport"},
		{"zero page", "[conversation]\npage_size = 0\n", "page_size"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "config.toml")
			if err := os.WriteFile(path, []byte(tt.data), 0600); err != nil {
				t.Fatal(err)
			}
			_, err := Load(path)
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Errorf("Load() error = %v, want mention of %q", err, tt.want)
			}
		})
	}
}

func TestSaveRoundTripsDurations(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	cfg := Default()
	cfg.Typing.QuietPeriod = Duration{1500 * time.Millisecond}

	if err := Save(path, cfg); err != nil {
		t.Fatal(err)
	}
	loaded, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if loaded.Typing.QuietPeriod.Duration != 1500*time.Millisecond {
		t.Errorf("quiet_period = %v, want 1.5s", loaded.Typing.QuietPeriod)
	}
}

func TestSavePermissions(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")

	if err := Save(path, Default()); err != nil {
		t.Fatal(err)
	}

	info, err := os.Stat(path)
	if err != nil {
		t.Fatal(err)
	}
	if perm := info.Mode().Perm(); perm != 0600 {
		t.Errorf("file permission = %o, want 0600", perm)
	}
}
