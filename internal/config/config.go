// Package config loads the console's YAML settings. Missing keys keep their
// defaults; the file is never written back.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// EnvPath names the environment variable that overrides the config path.
const EnvPath = "OPSDECK_CONFIG"

// Quality bounds accepted by the agent's stream endpoints.
const (
	MinQuality = 0.1
	MaxQuality = 1.0
)

type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Channel  ChannelConfig  `yaml:"channel"`
	Notify   NotifyConfig   `yaml:"notify"`
	Terminal TerminalConfig `yaml:"terminal"`
	Screen   ScreenConfig   `yaml:"screen"`
	Log      LogConfig      `yaml:"log"`
}

type ServerConfig struct {
	URL                string        `yaml:"url"`
	Token              string        `yaml:"token"`
	InsecureSkipVerify bool          `yaml:"insecure_skip_verify"`
	RequestTimeout     time.Duration `yaml:"request_timeout"`
}

type ChannelConfig struct {
	WriteTimeout time.Duration `yaml:"write_timeout"`
	PingInterval time.Duration `yaml:"ping_interval"`
	SendQueue    int           `yaml:"send_queue"`
}

type NotifyConfig struct {
	ReconnectDelay time.Duration `yaml:"reconnect_delay"`
}

type TerminalConfig struct {
	// Shell overrides the platform default when set.
	Shell string `yaml:"shell"`
}

type ScreenConfig struct {
	Codec            string  `yaml:"codec"`
	Quality          float64 `yaml:"quality"`
	PixelFormat      string  `yaml:"pixel_format"`
	KeyframeInterval int     `yaml:"keyframe_interval"`
	DecoderCommand   string  `yaml:"decoder_command"`
}

type LogConfig struct {
	Level string `yaml:"level"`
	File  string `yaml:"file"`
}

func defaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			URL:            "http://127.0.0.1:10801",
			RequestTimeout: 10 * time.Second,
		},
		Channel: ChannelConfig{
			WriteTimeout: 10 * time.Second,
			PingInterval: 30 * time.Second,
			SendQueue:    256,
		},
		Notify: NotifyConfig{
			ReconnectDelay: 3 * time.Second,
		},
		Screen: ScreenConfig{
			Codec:          "mpeg1video",
			Quality:        0.5,
			PixelFormat:    "raw",
			DecoderCommand: "ffplay",
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

// Default returns the built-in configuration.
func Default() *Config { return defaultConfig() }

// DefaultPath is $OPSDECK_CONFIG, or config.yaml under the user config dir.
func DefaultPath() string {
	if p := os.Getenv(EnvPath); p != "" {
		return p
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "config.yaml"
	}
	return filepath.Join(home, ".config", "opsdeck", "config.yaml")
}

func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	cfg := defaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

// LoadOrDefault behaves like Load but returns the defaults when path does
// not exist.
func LoadOrDefault(path string) (*Config, error) {
	cfg, err := Load(path)
	if errors.Is(err, os.ErrNotExist) {
		return defaultConfig(), nil
	}
	return cfg, err
}

// Validate rejects values the agent or the console cannot work with.
func (c *Config) Validate() error {
	u, err := url.Parse(c.Server.URL)
	if err != nil {
		return fmt.Errorf("server.url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("server.url: scheme must be http or https, got %q", u.Scheme)
	}
	if u.Host == "" {
		return errors.New("server.url: missing host")
	}
	if c.Server.RequestTimeout <= 0 {
		return errors.New("server.request_timeout must be positive")
	}
	if c.Channel.WriteTimeout <= 0 {
		return errors.New("channel.write_timeout must be positive")
	}
	if c.Channel.PingInterval <= 0 {
		return errors.New("channel.ping_interval must be positive")
	}
	if c.Channel.SendQueue <= 0 {
		return errors.New("channel.send_queue must be positive")
	}
	if c.Notify.ReconnectDelay <= 0 {
		return errors.New("notify.reconnect_delay must be positive")
	}
	switch c.Screen.Codec {
	case "mpeg1video", "rgb":
	default:
		return fmt.Errorf("screen.codec: unknown codec %q", c.Screen.Codec)
	}
	switch c.Screen.PixelFormat {
	case "raw", "abgr", "argb":
	default:
		return fmt.Errorf("screen.pixel_format: unknown format %q", c.Screen.PixelFormat)
	}
	if c.Screen.Quality < MinQuality || c.Screen.Quality > MaxQuality {
		return fmt.Errorf("screen.quality %.2f outside [%.1f, %.1f]", c.Screen.Quality, MinQuality, MaxQuality)
	}
	if c.Screen.KeyframeInterval < 0 {
		return errors.New("screen.keyframe_interval must not be negative")
	}
	switch c.Log.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("log.level: unknown level %q", c.Log.Level)
	}
	return nil
}
