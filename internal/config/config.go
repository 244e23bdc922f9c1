// Package config loads ptyhub settings.
//
// Sources, highest priority first:
//  1. Command-line flags bound by the caller
//  2. Environment variables (PTYHUB_*, with "." replaced by "_")
//  3. Config file (--config, or ~/.config/ptyhub/config.yaml)
//  4. Built-in defaults
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

const (
	DefaultHost       = "127.0.0.1"
	DefaultPort       = 8765
	DefaultCols       = 120
	DefaultRows       = 30
	DefaultTermName   = "xterm-256color"
	DefaultSendBuffer = 256
)

// flagKeys maps flag names to the config keys they override.
var flagKeys = map[string]string{
	"host":        "server.host",
	"port":        "server.port",
	"cols":        "terminal.cols",
	"rows":        "terminal.rows",
	"max-lines":   "buffer.max_lines",
	"max-bytes":   "buffer.max_bytes",
	"history-db":  "store.path",
	"webhook-url": "notify.webhook_url",
	"log-level":   "log.level",
	"log-format":  "log.format",
}

type Config struct {
	Server   ServerConfig   `json:"server" yaml:"server"`
	Terminal TerminalConfig `json:"terminal" yaml:"terminal"`
	Buffer   BufferConfig   `json:"buffer" yaml:"buffer"`
	Hub      HubConfig      `json:"hub" yaml:"hub"`
	Store    StoreConfig    `json:"store" yaml:"store"`
	Notify   NotifyConfig   `json:"notify" yaml:"notify"`
	Log      LogConfig      `json:"log" yaml:"log"`

	// ConfigPath is the file that was read, empty when none was found.
	ConfigPath string `json:"-" yaml:"-"`
}

type ServerConfig struct {
	Host string `json:"host" yaml:"host"`
	Port int    `json:"port" yaml:"port"`
}

type TerminalConfig struct {
	Cols int    `json:"cols" yaml:"cols"`
	Rows int    `json:"rows" yaml:"rows"`
	Name string `json:"name" yaml:"name"`
}

type BufferConfig struct {
	MaxLines int `json:"max_lines" yaml:"max_lines"`
	MaxBytes int `json:"max_bytes" yaml:"max_bytes"`
}

type HubConfig struct {
	SendBuffer int `json:"send_buffer" yaml:"send_buffer"`
}

type StoreConfig struct {
	// Path of the history database. Empty disables history.
	Path string `json:"path" yaml:"path"`
}

type NotifyConfig struct {
	// WebhookURL receives exit notifications. Empty logs them instead.
	WebhookURL string `json:"webhook_url" yaml:"webhook_url"`
}

type LogConfig struct {
	Level  string `json:"level" yaml:"level"`
	Format string `json:"format" yaml:"format"`
}

// Load resolves the configuration. path may be empty to use the default
// location; a missing default file is not an error, a missing explicit one
// is. flags may be nil.
func Load(path string, flags *pflag.FlagSet) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetConfigType("yaml")
	if path != "" {
		v.SetConfigFile(path)
	} else if dir, err := defaultDir(); err == nil {
		v.AddConfigPath(dir)
		v.SetConfigName("config")
	}

	v.SetEnvPrefix("PTYHUB")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	if flags != nil {
		for name, key := range flagKeys {
			if f := flags.Lookup(name); f != nil {
				if err := v.BindPFlag(key, f); err != nil {
					return nil, fmt.Errorf("bind flag %s: %w", name, err)
				}
			}
		}
	}

	cfg := &Config{
		Server: ServerConfig{
			Host: v.GetString("server.host"),
			Port: v.GetInt("server.port"),
		},
		Terminal: TerminalConfig{
			Cols: v.GetInt("terminal.cols"),
			Rows: v.GetInt("terminal.rows"),
			Name: v.GetString("terminal.name"),
		},
		Buffer: BufferConfig{
			MaxLines: v.GetInt("buffer.max_lines"),
			MaxBytes: v.GetInt("buffer.max_bytes"),
		},
		Hub:        HubConfig{SendBuffer: v.GetInt("hub.send_buffer")},
		Store:      StoreConfig{Path: expandHome(v.GetString("store.path"))},
		Notify:     NotifyConfig{WebhookURL: v.GetString("notify.webhook_url")},
		Log:        LogConfig{Level: v.GetString("log.level"), Format: v.GetString("log.format")},
		ConfigPath: v.ConfigFileUsed(),
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.host", DefaultHost)
	v.SetDefault("server.port", DefaultPort)
	v.SetDefault("terminal.cols", DefaultCols)
	v.SetDefault("terminal.rows", DefaultRows)
	v.SetDefault("terminal.name", DefaultTermName)
	v.SetDefault("buffer.max_lines", 0)
	v.SetDefault("buffer.max_bytes", 0)
	v.SetDefault("hub.send_buffer", DefaultSendBuffer)
	v.SetDefault("notify.webhook_url", "")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")

	storePath := ""
	if dir, err := defaultDir(); err == nil {
		storePath = filepath.Join(dir, "history.db")
	}
	v.SetDefault("store.path", storePath)
}

func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid port %d: must be between 1 and 65535", c.Server.Port)
	}
	if c.Terminal.Cols < 1 || c.Terminal.Cols > 0xffff {
		return fmt.Errorf("invalid terminal.cols %d", c.Terminal.Cols)
	}
	if c.Terminal.Rows < 1 || c.Terminal.Rows > 0xffff {
		return fmt.Errorf("invalid terminal.rows %d", c.Terminal.Rows)
	}
	if c.Buffer.MaxLines < 0 || c.Buffer.MaxBytes < 0 {
		return errors.New("buffer limits must not be negative")
	}
	if c.Hub.SendBuffer < 1 {
		return fmt.Errorf("invalid hub.send_buffer %d: must be positive", c.Hub.SendBuffer)
	}
	if _, err := c.SlogLevel(); err != nil {
		return err
	}
	switch c.Log.Format {
	case "text", "json":
	default:
		return fmt.Errorf("invalid log.format %q: must be text or json", c.Log.Format)
	}
	return nil
}

// Addr is the listen address for the HTTP server.
func (c *Config) Addr() string {
	return net.JoinHostPort(c.Server.Host, strconv.Itoa(c.Server.Port))
}

// BaseURL is where clients on this machine reach the server.
func (c *Config) BaseURL() string {
	host := c.Server.Host
	if host == "" || host == "0.0.0.0" || host == "::" {
		host = "127.0.0.1"
	}
	return "http://" + net.JoinHostPort(host, strconv.Itoa(c.Server.Port))
}

func (c *Config) SlogLevel() (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(c.Log.Level)); err != nil {
		return 0, fmt.Errorf("invalid log.level %q: %w", c.Log.Level, err)
	}
	return level, nil
}

// DefaultPath is the file Load reads when no path is given.
func DefaultPath() (string, error) {
	dir, err := defaultDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.yaml"), nil
}

// WriteFile saves a config file, creating its directory. An existing file
// is only replaced when overwrite is set.
func WriteFile(path string, data []byte, overwrite bool) error {
	if !overwrite {
		if _, err := os.Stat(path); err == nil {
			return fmt.Errorf("config file %s already exists", path)
		}
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o600)
}

func defaultDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get home directory: %w", err)
	}
	return filepath.Join(home, ".config", "ptyhub"), nil
}

func expandHome(path string) string {
	if path != "~" && !strings.HasPrefix(path, "~/") {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	return filepath.Join(home, strings.TrimPrefix(path, "~"))
}
