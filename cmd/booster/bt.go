package main

import (
	"context"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/ardnew/soundbooster/csr8645"
)

func newBTCmd(g *globalFlags) *cobra.Command {
	var (
		port    string
		timeout time.Duration
	)
	cmd := &cobra.Command{
		Use:   "bt",
		Short: "Configure the CSR8645 Bluetooth module",
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			_, err := g.settings()
			return err
		},
	}
	cmd.PersistentFlags().StringVar(&port, "port", "/dev/ttyUSB0", "serial device of the module")
	cmd.PersistentFlags().DurationVar(&timeout, "timeout", csr8645.DefaultTimeout, "per-command timeout")

	// with opens the module and runs fn under the command timeout.
	with := func(fn func(context.Context, *csr8645.Module, io.Writer) error) func(*cobra.Command, []string) error {
		return func(cmd *cobra.Command, _ []string) error {
			m, closer, err := csr8645.Open(port, csr8645.WithTimeout(timeout))
			if err != nil {
				return err
			}
			defer closer.Close()
			ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
			defer cancel()
			return fn(ctx, m, cmd.OutOrStdout())
		}
	}

	getSet := func(use, short string, get func(context.Context, *csr8645.Module) (string, error), set func(context.Context, *csr8645.Module, string) error) *cobra.Command {
		return &cobra.Command{
			Use:   use + " [value]",
			Short: short,
			Args:  cobra.MaximumNArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				return with(func(ctx context.Context, m *csr8645.Module, out io.Writer) error {
					if len(args) == 1 {
						return set(ctx, m, args[0])
					}
					v, err := get(ctx, m)
					if err == nil {
						fmt.Fprintln(out, v)
					}
					return err
				})(cmd, args)
			},
		}
	}

	cmd.AddCommand(
		getSet("name", "Show or set the advertised name",
			func(ctx context.Context, m *csr8645.Module) (string, error) { return m.Name(ctx) },
			func(ctx context.Context, m *csr8645.Module, v string) error { return m.SetName(ctx, v) }),
		getSet("pin", "Show or set the pairing PIN",
			func(ctx context.Context, m *csr8645.Module) (string, error) { return m.PIN(ctx) },
			func(ctx context.Context, m *csr8645.Module, v string) error { return m.SetPIN(ctx, v) }),
		getSet("baud", "Show or set the UART rate",
			func(ctx context.Context, m *csr8645.Module) (string, error) {
				b, err := m.Baud(ctx)
				return strconv.FormatUint(uint64(b), 10), err
			},
			func(ctx context.Context, m *csr8645.Module, v string) error {
				b, err := strconv.ParseUint(v, 10, 32)
				if err != nil {
					return fmt.Errorf("baud %q: %w", v, err)
				}
				return m.SetBaud(ctx, uint32(b))
			}),
		&cobra.Command{
			Use:   "connect <address>",
			Short: "Connect to a remote device",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				return with(func(ctx context.Context, m *csr8645.Module, _ io.Writer) error {
					return m.Connect(ctx, args[0])
				})(cmd, args)
			},
		},
		&cobra.Command{
			Use:   "disconnect",
			Short: "Drop the current link",
			Args:  cobra.NoArgs,
			RunE: with(func(ctx context.Context, m *csr8645.Module, _ io.Writer) error {
				return m.Disconnect(ctx)
			}),
		},
		&cobra.Command{
			Use:   "status",
			Short: "Show link state",
			Args:  cobra.NoArgs,
			RunE: with(func(ctx context.Context, m *csr8645.Module, out io.Writer) error {
				st, err := m.Status(ctx)
				if err != nil {
					return err
				}
				linked, err := m.Connected(ctx)
				if err != nil {
					return err
				}
				fmt.Fprintf(out, "state=%s connected=%t\n", st, linked)
				return nil
			}),
		},
		&cobra.Command{
			Use:   "scan",
			Short: "List nearby devices",
			Args:  cobra.NoArgs,
			RunE: with(func(ctx context.Context, m *csr8645.Module, out io.Writer) error {
				addrs, err := m.Scan(ctx)
				for _, a := range addrs {
					fmt.Fprintln(out, a)
				}
				return err
			}),
		},
		&cobra.Command{
			Use:       "notify <on|off>",
			Short:     "Enable or disable link notifications",
			Args:      cobra.ExactArgs(1),
			ValidArgs: []string{"on", "off"},
			RunE: func(cmd *cobra.Command, args []string) error {
				on, err := parseSwitch(args[0])
				if err != nil {
					return err
				}
				return with(func(ctx context.Context, m *csr8645.Module, _ io.Writer) error {
					return m.SetNotifications(ctx, on)
				})(cmd, args)
			},
		},
	)
	return cmd
}

func parseSwitch(s string) (bool, error) {
	switch s {
	case "on", "1", "true":
		return true, nil
	case "off", "0", "false":
		return false, nil
	}
	return false, fmt.Errorf("expected on or off, got %q", s)
}
