package main

import (
	"context"
	"fmt"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/ardnew/soundbooster/netctl"
)

func newCtlCmd(g *globalFlags) *cobra.Command {
	var (
		addr    string
		timeout time.Duration
	)
	cmd := &cobra.Command{
		Use:   "ctl [command...]",
		Short: "Send a control command to a running booster",
		Long: `Send one control command and print the reply. Without arguments the
booster's status is queried.

Commands:
  STATUS
  GAIN <ratio|dB>   e.g. "GAIN 2.0" or "GAIN 6dB"
  MUTE <0|1>
  RESET`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if !cmd.Flags().Changed("addr") {
				s, err := g.settings()
				if err != nil {
					return err
				}
				addr = net.JoinHostPort("127.0.0.1", strconv.Itoa(int(s.Network.Port)))
			}
			line := "STATUS"
			if len(args) > 0 {
				line = strings.Join(args, " ")
			}
			// Reject locally what the booster would reject.
			if _, err := netctl.ParseCommand(line); err != nil {
				return fmt.Errorf("%q: %w", line, err)
			}

			ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
			defer cancel()
			c, err := netctl.Dial(ctx, addr)
			if err != nil {
				return err
			}
			defer c.Close()

			reply, err := c.Raw(ctx, line)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), reply)
			if strings.HasPrefix(reply, "ERR") {
				return fmt.Errorf("booster replied %q", reply)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "control address host:port (default 127.0.0.1 and the configured port)")
	cmd.Flags().DurationVar(&timeout, "timeout", 3*time.Second, "round-trip timeout")
	return cmd
}
