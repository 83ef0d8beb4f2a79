//go:build linux

package main

import (
	"log/slog"
	"os"
	"testing"
	"time"
)

func TestLoadConfig_Defaults(t *testing.T) {
	t.Setenv("XDG_RUNTIME_DIR", "/run/user/1000")
	t.Setenv("WAYLAND_DISPLAY", "unused")
	os.Unsetenv("WAYLAND_DISPLAY")

	cfg, err := loadConfig()
	if err != nil {
		t.Fatalf("loadConfig failed: %v", err)
	}
	if cfg.Display != "wayland-0" {
		t.Errorf("Display = %q, want wayland-0", cfg.Display)
	}
	if cfg.SendBuffer != 32 {
		t.Errorf("SendBuffer = %d, want 32", cfg.SendBuffer)
	}
	if cfg.WriteTimeout != 10*time.Second {
		t.Errorf("WriteTimeout = %v, want 10s", cfg.WriteTimeout)
	}
	if cfg.OutputWidth != 640 || cfg.OutputHeight != 480 {
		t.Errorf("output = %dx%d, want 640x480", cfg.OutputWidth, cfg.OutputHeight)
	}
	if err := cfg.validate(); err != nil {
		t.Errorf("validate failed: %v", err)
	}
	if got := cfg.socketPath(); got != "/run/user/1000/wayland-0" {
		t.Errorf("socketPath = %q", got)
	}
}

func TestLoadConfig_Overrides(t *testing.T) {
	t.Setenv("XDG_RUNTIME_DIR", "/tmp/rt")
	t.Setenv("WAYLAND_DISPLAY", "wayland-7")
	t.Setenv("WAYBIND_SEND_BUFFER", "4")
	t.Setenv("WAYBIND_WRITE_TIMEOUT", "250ms")
	t.Setenv("WAYBIND_OUTPUT_WIDTH", "32")
	t.Setenv("WAYBIND_LOG_LEVEL", "debug")

	cfg, err := loadConfig()
	if err != nil {
		t.Fatalf("loadConfig failed: %v", err)
	}
	if cfg.SendBuffer != 4 || cfg.WriteTimeout != 250*time.Millisecond || cfg.OutputWidth != 32 {
		t.Errorf("overrides not applied: %+v", cfg)
	}
	if got := cfg.socketPath(); got != "/tmp/rt/wayland-7" {
		t.Errorf("socketPath = %q", got)
	}
	level, err := parseLevel(cfg.LogLevel)
	if err != nil || level != slog.LevelDebug {
		t.Errorf("parseLevel = %v, %v", level, err)
	}
}

func TestLoadConfig_InvalidNumber(t *testing.T) {
	t.Setenv("WAYBIND_SEND_BUFFER", "lots")

	if _, err := loadConfig(); err == nil {
		t.Error("expected an error for a non-numeric buffer size")
	}
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		modify  func(c *config)
		wantErr bool
	}{
		{"valid", func(c *config) {}, false},
		{"absolute display without runtime dir", func(c *config) { c.RuntimeDir = ""; c.Display = "/tmp/wl" }, false},
		{"relative display without runtime dir", func(c *config) { c.RuntimeDir = "" }, true},
		{"empty display", func(c *config) { c.Display = "" }, true},
		{"zero buffer", func(c *config) { c.SendBuffer = 0 }, true},
		{"zero width", func(c *config) { c.OutputWidth = 0 }, true},
		{"negative height", func(c *config) { c.OutputHeight = -1 }, true},
		{"bad level", func(c *config) { c.LogLevel = "chatty" }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := testConfig()
			c.RuntimeDir = "/run/user/1000"
			tt.modify(c)
			err := c.validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("validate() = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestSocketPath_Absolute(t *testing.T) {
	c := &config{RuntimeDir: "/run/user/1000", Display: "/tmp/custom-wl"}
	if got := c.socketPath(); got != "/tmp/custom-wl" {
		t.Errorf("socketPath = %q, want /tmp/custom-wl", got)
	}
}
