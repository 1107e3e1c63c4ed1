package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/ardnew/soundbooster/booster"
	"github.com/ardnew/soundbooster/csr8645"
	"github.com/ardnew/soundbooster/dsp"
	"github.com/ardnew/soundbooster/netctl"
	"github.com/ardnew/soundbooster/pkg"
	"github.com/ardnew/soundbooster/pkg/prof"
	"github.com/ardnew/soundbooster/sink"
	"github.com/ardnew/soundbooster/telemetry"
	"github.com/ardnew/soundbooster/usb/hal/fifo"
)

// sinkFrames is how far a playback sink may lag the DSP stage.
const sinkFrames = 64

// speaker is a device sink fed directly by the DSP stage.
type speaker interface {
	dsp.Output
	io.Closer
}

type runFlags struct {
	busDir     string
	iface      string
	port       uint16
	telemetry  string
	record     string
	raw        string
	btPort     string
	btTimeout  time.Duration
	speaker    bool
	cpuProfile string
	pprofAddr  string
}

func newRunCmd(g *globalFlags) *cobra.Command {
	rf := &runFlags{}
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the booster on the FIFO USB bus",
		Long: `Run the booster firmware on the host.

The USB device appears as a FIFO device directory under the bus directory;
use "booster feed" to play audio through it. The control plane listens on
the configured interface.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runBooster(cmd, g, rf)
		},
	}
	f := cmd.Flags()
	f.StringVar(&rf.busDir, "bus-dir", "", "FIFO bus directory (default from settings)")
	f.StringVar(&rf.iface, "interface", "", "network interface for the control plane")
	f.Uint16Var(&rf.port, "port", 0, "control port (default from settings)")
	f.StringVar(&rf.telemetry, "telemetry", "", "HTTP telemetry listen address")
	f.StringVar(&rf.record, "record", "", "record boosted audio to a WAV file")
	f.StringVar(&rf.raw, "raw", "", `write boosted audio as raw 16-bit PCM to a file ("-" for stdout)`)
	f.StringVar(&rf.btPort, "bt-port", "", "play boosted audio through the CSR8645 module on this serial device")
	f.DurationVar(&rf.btTimeout, "bt-timeout", csr8645.DefaultTimeout, "CSR8645 command timeout")
	f.BoolVar(&rf.speaker, "speaker", false, "play boosted audio on the default output device")
	f.StringVar(&rf.cpuProfile, "cpu-profile", "", "write a CPU profile (profile builds)")
	f.StringVar(&rf.pprofAddr, "pprof", "", "serve pprof on this address (profile builds)")
	return cmd
}

func runBooster(cmd *cobra.Command, g *globalFlags, rf *runFlags) error {
	s, err := g.settings()
	if err != nil {
		return err
	}
	flags := cmd.Flags()
	if flags.Changed("bus-dir") {
		s.USB.BusDir = rf.busDir
	}
	if flags.Changed("interface") {
		s.Network.Interface = rf.iface
	}
	if flags.Changed("port") {
		s.Network.Port = rf.port
	}
	if flags.Changed("telemetry") {
		s.Telemetry.Listen = rf.telemetry
	}
	if err := s.Validate(); err != nil {
		return err
	}

	if rf.cpuProfile != "" {
		if err := prof.StartCPU(rf.cpuProfile); err != nil {
			return err
		}
		defer prof.StopCPU()
	}

	ctx := cmd.Context()
	grp, ctx := errgroup.WithContext(ctx)

	var outputs dsp.Tee
	var closers []io.Closer
	defer func() {
		for _, c := range closers {
			if err := c.Close(); err != nil {
				pkg.LogWarn(pkg.ComponentSink, "close sink", "error", err)
			}
		}
	}()
	addSink := func(w sink.FrameWriter) {
		p := sink.NewPump(w, sinkFrames)
		outputs = append(outputs, p)
		grp.Go(func() error { return ignoreCancel(p.Run(ctx)) })
	}

	writers, sinkClosers, err := rf.frameWriters(ctx, cmd.OutOrStdout())
	closers = append(closers, sinkClosers...)
	if err != nil {
		return err
	}
	for _, w := range writers {
		addSink(w)
	}
	if rf.speaker {
		spk, err := openSpeaker()
		if err != nil {
			return err
		}
		closers = append(closers, spk)
		outputs = append(outputs, spk)
	}

	opts := booster.Options{
		Settings: s,
		HAL:      fifo.New(s.USB.BusDir),
		Net:      netctl.HostStack{Interface: s.Network.Interface},
	}
	if len(outputs) > 0 {
		opts.Sink = outputs
	}
	b, err := booster.New(opts)
	if err != nil {
		return err
	}

	grp.Go(func() error { return ignoreCancel(b.Run(ctx)) })
	if s.Telemetry.Listen != "" {
		srv := telemetry.New(b.Status)
		grp.Go(func() error { return ignoreCancel(srv.ListenAndServe(ctx, s.Telemetry.Listen)) })
	}
	if rf.pprofAddr != "" {
		grp.Go(func() error { return ignoreCancel(prof.Serve(ctx, rf.pprofAddr)) })
	}

	if err := grp.Wait(); err != nil {
		return fmt.Errorf("booster: %w", err)
	}
	return nil
}

// frameWriters opens the blocking sinks selected by flags. Closers are
// returned even on error so the caller can release what was opened.
func (rf *runFlags) frameWriters(ctx context.Context, stdout io.Writer) ([]sink.FrameWriter, []io.Closer, error) {
	var (
		writers []sink.FrameWriter
		closers []io.Closer
	)
	if rf.record != "" {
		wav, err := sink.CreateWAV(rf.record)
		if err != nil {
			return writers, closers, err
		}
		closers = append(closers, wav)
		writers = append(writers, wav)
	}
	switch rf.raw {
	case "":
	case "-":
		writers = append(writers, sink.NewRaw(stdout))
	default:
		f, err := os.Create(rf.raw)
		if err != nil {
			return writers, closers, fmt.Errorf("create raw sink: %w", err)
		}
		closers = append(closers, f)
		writers = append(writers, sink.NewRaw(f))
	}
	if rf.btPort != "" {
		m, closer, err := csr8645.Open(rf.btPort, csr8645.WithTimeout(rf.btTimeout))
		if err != nil {
			return writers, closers, err
		}
		closers = append(closers, closer)

		qctx, cancel := context.WithTimeout(ctx, rf.btTimeout)
		state, err := m.Status(qctx)
		cancel()
		if err != nil {
			pkg.LogWarn(pkg.ComponentBluetooth, "module status unavailable", "port", rf.btPort, "error", err)
		} else {
			pkg.LogInfo(pkg.ComponentBluetooth, "module attached", "port", rf.btPort, "state", string(state))
		}
		writers = append(writers, m)
	}
	return writers, closers, nil
}

func ignoreCancel(err error) error {
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}
