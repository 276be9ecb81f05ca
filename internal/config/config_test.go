package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestLoad(t *testing.T) {
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "config.yaml")

	yaml := `
server:
  url: "https://agent.example:8443"
  token: "s3cret"
  insecure_skip_verify: true
notify:
  reconnect_delay: 500ms
screen:
  codec: rgb
  quality: 0.8
  pixel_format: argb
  keyframe_interval: 30
log:
  level: debug
`
	if err := os.WriteFile(cfgPath, []byte(yaml), 0644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(cfgPath)
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}

	if cfg.Server.URL != "https://agent.example:8443" {
		t.Errorf("Server.URL = %q", cfg.Server.URL)
	}
	if cfg.Server.Token != "s3cret" {
		t.Errorf("Server.Token = %q", cfg.Server.Token)
	}
	if !cfg.Server.InsecureSkipVerify {
		t.Error("Server.InsecureSkipVerify = false, want true")
	}
	if cfg.Notify.ReconnectDelay != 500*time.Millisecond {
		t.Errorf("Notify.ReconnectDelay = %v, want 500ms", cfg.Notify.ReconnectDelay)
	}
	if cfg.Screen.Codec != "rgb" || cfg.Screen.PixelFormat != "argb" {
		t.Errorf("Screen = %+v", cfg.Screen)
	}
	if cfg.Screen.Quality != 0.8 {
		t.Errorf("Screen.Quality = %v, want 0.8", cfg.Screen.Quality)
	}
	if cfg.Screen.KeyframeInterval != 30 {
		t.Errorf("Screen.KeyframeInterval = %d, want 30", cfg.Screen.KeyframeInterval)
	}

	// Defaults should still be applied for unspecified fields.
	if cfg.Channel.SendQueue != 256 {
		t.Errorf("Channel.SendQueue = %d, want default 256", cfg.Channel.SendQueue)
	}
	if cfg.Server.RequestTimeout != 10*time.Second {
		t.Errorf("Server.RequestTimeout = %v, want default 10s", cfg.Server.RequestTimeout)
	}
	if cfg.Screen.DecoderCommand != "ffplay" {
		t.Errorf("Screen.DecoderCommand = %q, want default ffplay", cfg.Screen.DecoderCommand)
	}
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load("/nonexistent/path/config.yaml")
	if err == nil {
		t.Fatal("Load() on missing file should return error")
	}
}

func TestLoadOrDefaultMissingFile(t *testing.T) {
	cfg, err := LoadOrDefault("/nonexistent/path/config.yaml")
	if err != nil {
		t.Fatalf("LoadOrDefault() error: %v", err)
	}
	if cfg.Server.URL != "http://127.0.0.1:10801" {
		t.Errorf("Server.URL = %q, want default", cfg.Server.URL)
	}
	if cfg.Notify.ReconnectDelay != 3*time.Second {
		t.Errorf("Notify.ReconnectDelay = %v, want 3s", cfg.Notify.ReconnectDelay)
	}
	if cfg.Screen.Codec != "mpeg1video" {
		t.Errorf("Screen.Codec = %q, want mpeg1video", cfg.Screen.Codec)
	}
}

func TestLoadInvalidYAML(t *testing.T) {
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "bad.yaml")
	if err := os.WriteFile(cfgPath, []byte(":::not valid yaml"), 0644); err != nil {
		t.Fatal(err)
	}

	_, err := Load(cfgPath)
	if err == nil {
		t.Fatal("Load() with invalid YAML should return error")
	}
}

func TestDefaultIsValid(t *testing.T) {
	if err := Default().Validate(); err != nil {
		t.Fatalf("Default().Validate() = %v", err)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"quality too low", func(c *Config) { c.Screen.Quality = 0.05 }, "screen.quality"},
		{"quality too high", func(c *Config) { c.Screen.Quality = 1.5 }, "screen.quality"},
		{"quality lower bound", func(c *Config) { c.Screen.Quality = 0.1 }, ""},
		{"quality upper bound", func(c *Config) { c.Screen.Quality = 1.0 }, ""},
		{"unknown codec", func(c *Config) { c.Screen.Codec = "h264" }, "screen.codec"},
		{"unknown pixel format", func(c *Config) { c.Screen.PixelFormat = "bgr" }, "screen.pixel_format"},
		{"zero reconnect delay", func(c *Config) { c.Notify.ReconnectDelay = 0 }, "notify.reconnect_delay"},
		{"negative ping", func(c *Config) { c.Channel.PingInterval = -time.Second }, "channel.ping_interval"},
		{"zero queue", func(c *Config) { c.Channel.SendQueue = 0 }, "channel.send_queue"},
		{"websocket url", func(c *Config) { c.Server.URL = "ws://127.0.0.1:10801" }, "server.url"},
		{"url without host", func(c *Config) { c.Server.URL = "http://" }, "server.url"},
		{"bad level", func(c *Config) { c.Log.Level = "verbose" }, "log.level"},
		{"negative keyframe", func(c *Config) { c.Screen.KeyframeInterval = -1 }, "keyframe_interval"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := defaultConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Fatalf("Validate() = %v, want nil", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Fatalf("Validate() = %v, want error mentioning %q", err, tt.wantErr)
			}
		})
	}
}

func TestLoadRejectsInvalidValues(t *testing.T) {
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(cfgPath, []byte("screen:\n  quality: 2\n"), 0644); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(cfgPath); err == nil {
		t.Fatal("Load() accepted quality 2")
	}
}

func TestDefaultPathFromEnv(t *testing.T) {
	t.Setenv(EnvPath, "/etc/opsdeck.yaml")
	if got := DefaultPath(); got != "/etc/opsdeck.yaml" {
		t.Errorf("DefaultPath() = %q", got)
	}
}
