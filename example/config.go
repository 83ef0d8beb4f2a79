//go:build linux

package main

import (
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// config is loaded from the environment the way Wayland clients and compositors find each other.
type config struct {
	RuntimeDir string `envconfig:"XDG_RUNTIME_DIR"`
	Display    string `envconfig:"WAYLAND_DISPLAY" default:"wayland-0"`

	// Connection tuning
	SendBuffer   int           `envconfig:"WAYBIND_SEND_BUFFER" default:"32"`
	WriteTimeout time.Duration `envconfig:"WAYBIND_WRITE_TIMEOUT" default:"10s"`

	// ShutdownTimeout keeps the socket open for connected clients after a signal.
	ShutdownTimeout time.Duration `envconfig:"WAYBIND_SHUTDOWN_TIMEOUT" default:"2s"`

	// Virtual output advertised by serve
	OutputWidth   int32 `envconfig:"WAYBIND_OUTPUT_WIDTH" default:"640"`
	OutputHeight  int32 `envconfig:"WAYBIND_OUTPUT_HEIGHT" default:"480"`
	OutputRefresh int32 `envconfig:"WAYBIND_OUTPUT_REFRESH" default:"60000"`

	// Logging
	LogLevel string `envconfig:"WAYBIND_LOG_LEVEL" default:"info"`
}

func loadConfig() (*config, error) {
	var c config
	if err := envconfig.Process("", &c); err != nil {
		return nil, err
	}
	return &c, nil
}

// validate checks what both commands need.
func (c *config) validate() error {
	if c.RuntimeDir == "" && !filepath.IsAbs(c.Display) {
		return fmt.Errorf("config: XDG_RUNTIME_DIR is required unless WAYLAND_DISPLAY is an absolute path")
	}
	if c.Display == "" {
		return fmt.Errorf("config: WAYLAND_DISPLAY must not be empty")
	}
	if c.SendBuffer <= 0 {
		return fmt.Errorf("config: WAYBIND_SEND_BUFFER must be positive")
	}
	if c.OutputWidth <= 0 || c.OutputHeight <= 0 {
		return fmt.Errorf("config: output size %dx%d must be positive", c.OutputWidth, c.OutputHeight)
	}
	if _, err := parseLevel(c.LogLevel); err != nil {
		return err
	}
	return nil
}

// socketPath resolves the display socket. An absolute WAYLAND_DISPLAY is used as is.
func (c *config) socketPath() string {
	if filepath.IsAbs(c.Display) {
		return c.Display
	}
	return filepath.Join(c.RuntimeDir, c.Display)
}

func parseLevel(s string) (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(strings.ToUpper(s))); err != nil {
		return 0, fmt.Errorf("config: WAYBIND_LOG_LEVEL: %w", err)
	}
	return level, nil
}
