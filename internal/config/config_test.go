package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/spf13/pflag"

	"github.com/user/ptyhub/configs"
)

func isolateHome(t *testing.T) string {
	t.Helper()
	home := t.TempDir()
	t.Setenv("HOME", home)
	return home
}

func TestLoadDefaults(t *testing.T) {
	home := isolateHome(t)

	cfg, err := Load("", nil)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Server.Host != DefaultHost || cfg.Server.Port != DefaultPort {
		t.Fatalf("server = %+v", cfg.Server)
	}
	if cfg.Terminal != (TerminalConfig{Cols: 120, Rows: 30, Name: "xterm-256color"}) {
		t.Fatalf("terminal = %+v", cfg.Terminal)
	}
	if cfg.Buffer.MaxLines != 0 || cfg.Buffer.MaxBytes != 0 || cfg.Hub.SendBuffer != 256 {
		t.Fatalf("buffer=%+v hub=%+v", cfg.Buffer, cfg.Hub)
	}
	if want := filepath.Join(home, ".config", "ptyhub", "history.db"); cfg.Store.Path != want {
		t.Fatalf("store path = %q, want %q", cfg.Store.Path, want)
	}
	if cfg.Notify.WebhookURL != "" || cfg.ConfigPath != "" {
		t.Fatalf("notify=%+v configPath=%q", cfg.Notify, cfg.ConfigPath)
	}
	if cfg.Addr() != "127.0.0.1:8765" {
		t.Fatalf("Addr() = %q", cfg.Addr())
	}
}

func TestLoadReadsDefaultFile(t *testing.T) {
	home := isolateHome(t)
	dir := filepath.Join(home, ".config", "ptyhub")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatal(err)
	}
	content := "server:\n  port: 9999\nstore:\n  path: ~/data/h.db\nlog:\n  level: debug\n"
	if err := os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(content), 0o600); err != nil {
		t.Fatalf("write config file error = %v", err)
	}

	cfg, err := Load("", nil)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Server.Port != 9999 {
		t.Fatalf("port = %d, want 9999", cfg.Server.Port)
	}
	if cfg.Store.Path != filepath.Join(home, "data", "h.db") {
		t.Fatalf("store path = %q", cfg.Store.Path)
	}
	if level, _ := cfg.SlogLevel(); level != slog.LevelDebug {
		t.Fatalf("level = %v", level)
	}
	if !strings.HasSuffix(cfg.ConfigPath, "config.yaml") {
		t.Fatalf("ConfigPath = %q", cfg.ConfigPath)
	}
}

func TestLoadPrecedence(t *testing.T) {
	isolateHome(t)
	path := filepath.Join(t.TempDir(), "custom.yaml")
	content := "server:\n  host: 0.0.0.0\n  port: 7000\nterminal:\n  cols: 100\nhub:\n  send_buffer: 32\n"
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}
	t.Setenv("PTYHUB_SERVER_PORT", "7100")
	t.Setenv("PTYHUB_TERMINAL_COLS", "90")

	flags := pflag.NewFlagSet("test", pflag.ContinueOnError)
	flags.Int("port", DefaultPort, "")
	flags.Int("cols", DefaultCols, "")
	if err := flags.Parse([]string{"--port", "7200"}); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path, flags)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Server.Port != 7200 {
		t.Fatalf("port = %d, flag should win", cfg.Server.Port)
	}
	if cfg.Terminal.Cols != 90 {
		t.Fatalf("cols = %d, env should beat file and an unset flag", cfg.Terminal.Cols)
	}
	if cfg.Server.Host != "0.0.0.0" || cfg.Hub.SendBuffer != 32 {
		t.Fatalf("file values lost: %+v %+v", cfg.Server, cfg.Hub)
	}
	if cfg.BaseURL() != "http://127.0.0.1:7200" {
		t.Fatalf("BaseURL() = %q", cfg.BaseURL())
	}
}

func TestLoadMissingExplicitFile(t *testing.T) {
	isolateHome(t)
	if _, err := Load(filepath.Join(t.TempDir(), "nope.yaml"), nil); err == nil {
		t.Fatal("Load() with a missing explicit file should fail")
	}
}

func TestEmptyStorePathDisablesHistory(t *testing.T) {
	isolateHome(t)
	flags := pflag.NewFlagSet("test", pflag.ContinueOnError)
	flags.String("history-db", "", "")
	if err := flags.Parse([]string{"--history-db="}); err != nil {
		t.Fatal(err)
	}
	cfg, err := Load("", flags)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Store.Path != "" {
		t.Fatalf("store path = %q, want empty", cfg.Store.Path)
	}
}

func TestValidate(t *testing.T) {
	isolateHome(t)
	tests := []struct {
		name string
		env  map[string]string
		want string
	}{
		{"port zero", map[string]string{"PTYHUB_SERVER_PORT": "0"}, "invalid port"},
		{"port too large", map[string]string{"PTYHUB_SERVER_PORT": "70000"}, "invalid port"},
		{"cols", map[string]string{"PTYHUB_TERMINAL_COLS": "0"}, "terminal.cols"},
		{"negative lines", map[string]string{"PTYHUB_BUFFER_MAX_LINES": "-1"}, "buffer limits"},
		{"send buffer", map[string]string{"PTYHUB_HUB_SEND_BUFFER": "0"}, "hub.send_buffer"},
		{"log level", map[string]string{"PTYHUB_LOG_LEVEL": "loud"}, "log.level"},
		{"log format", map[string]string{"PTYHUB_LOG_FORMAT": "xml"}, "log.format"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			_, err := Load("", nil)
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Fatalf("Load() error = %v, want it to mention %q", err, tt.want)
			}
		})
	}
}

func TestShippedConfigMatchesDefaults(t *testing.T) {
	home := isolateHome(t)
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := WriteFile(path, configs.DefaultConfig, false); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}

	fromFile, err := Load(path, nil)
	if err != nil {
		t.Fatalf("Load(shipped) error = %v", err)
	}
	defaults, err := Load("", nil)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	fromFile.ConfigPath = ""
	if *fromFile != *defaults {
		t.Fatalf("shipped config = %+v\ndefaults = %+v", fromFile, defaults)
	}
	if fromFile.Store.Path != filepath.Join(home, ".config", "ptyhub", "history.db") {
		t.Fatalf("store path = %q", fromFile.Store.Path)
	}
}

func TestWriteFileKeepsExisting(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.yaml")
	if err := WriteFile(path, []byte("a: 1\n"), false); err != nil {
		t.Fatalf("first WriteFile() error = %v", err)
	}
	if err := WriteFile(path, []byte("a: 2\n"), false); err == nil {
		t.Fatal("WriteFile() replaced an existing file without overwrite")
	}
	if err := WriteFile(path, []byte("a: 3\n"), true); err != nil {
		t.Fatalf("WriteFile(overwrite) error = %v", err)
	}
	data, _ := os.ReadFile(path)
	if string(data) != "a: 3\n" {
		t.Fatalf("content = %q", data)
	}
}
