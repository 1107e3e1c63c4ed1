// Command booster runs the sound booster on a host and drives it from the
// outside: feeding audio over the FIFO bus, sending control commands, and
// configuring the Bluetooth module.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/ardnew/soundbooster/config"
	"github.com/ardnew/soundbooster/pkg"
)

type globalFlags struct {
	configPath string
	envFiles   []string
	logLevel   string
	logFormat  string
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil && !errors.Is(err, context.Canceled) {
		fmt.Fprintln(os.Stderr, "booster:", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	g := &globalFlags{}
	cmd := &cobra.Command{
		Use:           "booster",
		Short:         "USB audio gain booster with a TCP control plane",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	f := cmd.PersistentFlags()
	f.StringVar(&g.configPath, "config", "", "YAML settings file")
	f.StringSliceVar(&g.envFiles, "env", []string{".env"}, "dotenv files with BOOSTER_* overrides")
	f.StringVar(&g.logLevel, "log-level", "", "log level (debug, info, warn, error)")
	f.StringVar(&g.logFormat, "log-format", "", "log format (text, json, console)")

	cmd.AddCommand(
		newRunCmd(g),
		newFeedCmd(g),
		newCtlCmd(g),
		newBTCmd(g),
	)
	return cmd
}

// settings loads the layered configuration: defaults, file, dotenv and
// environment, then command-line logging overrides.
func (g *globalFlags) settings() (config.Settings, error) {
	s, err := config.Load(g.configPath)
	if err != nil {
		return s, err
	}
	if err := s.LoadEnv(g.envFiles...); err != nil {
		return s, err
	}
	if g.logLevel != "" {
		s.Log.Level = g.logLevel
	}
	if g.logFormat != "" {
		s.Log.Format = g.logFormat
	}
	if err := configureLogging(s.Log); err != nil {
		return s, err
	}
	return s, nil
}

func configureLogging(l config.LogSettings) error {
	var level slog.Level
	if err := level.UnmarshalText([]byte(l.Level)); err != nil {
		return fmt.Errorf("log level %q: %w", l.Level, err)
	}
	pkg.SetLogLevel(level)
	pkg.SetLogFormat(pkg.ParseLogFormat(l.Format))
	return nil
}
