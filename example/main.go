//go:build linux

// Command example drives the waybind bindings over a real Unix socket:
// serve runs a tiny compositor, shoot is a client taking a screenshot from it.
package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

func newRootCmd() *cobra.Command {
	var noColor bool
	var cfg *config

	root := &cobra.Command{
		Use:           "example",
		Short:         "waybind demo compositor and client",
		SilenceErrors: true,
		SilenceUsage:  true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			c, err := loadConfig()
			if err != nil {
				return err
			}
			if err := c.validate(); err != nil {
				return err
			}
			level, _ := parseLevel(c.LogLevel)
			newLogger(cmd.ErrOrStderr(), level, noColor)
			cfg = c
			return nil
		},
	}
	root.PersistentFlags().BoolVar(&noColor, "no-color", false, "Disable colored log output")

	root.AddCommand(&cobra.Command{
		Use:   "serve",
		Short: "Run the demo compositor on $XDG_RUNTIME_DIR/$WAYLAND_DISPLAY",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return runServe(ctx, cfg, slog.Default())
		},
	})
	root.AddCommand(&cobra.Command{
		Use:   "shoot",
		Short: "Connect to the compositor and take a screenshot of its output",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			shot, err := runShoot(ctx, cfg, slog.Default())
			if err != nil {
				return err
			}
			return shot.print(cmd.OutOrStdout())
		},
	})

	return root
}

func main() {
	if err := newRootCmd().ExecuteContext(context.Background()); err != nil {
		slog.Error("fatal error", "error", err)
		os.Exit(1)
	}
}
