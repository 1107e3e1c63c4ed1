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

	"github.com/ardnew/soundbooster/audio"
	"github.com/ardnew/soundbooster/audio/wavfile"
	"github.com/ardnew/soundbooster/pkg"
	"github.com/ardnew/soundbooster/usb/hal/fifo"
)

type feedFlags struct {
	busDir string
	device string
	out    string
	tail   time.Duration
}

func newFeedCmd(g *globalFlags) *cobra.Command {
	ff := &feedFlags{}
	cmd := &cobra.Command{
		Use:   "feed <input.wav>",
		Short: "Play a WAV file into a running booster as the USB host",
		Long: `Act as the USB host: stream a 48 kHz 16-bit WAV file to the booster's OUT
endpoint at real-time pace and, optionally, record the boosted IN stream.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := g.settings()
			if err != nil {
				return err
			}
			if !cmd.Flags().Changed("bus-dir") {
				ff.busDir = s.USB.BusDir
			}
			return feed(cmd.Context(), ff, args[0], s.USB.OutEndpoint, s.USB.InEndpoint)
		},
	}
	f := cmd.Flags()
	f.StringVar(&ff.busDir, "bus-dir", "", "FIFO bus directory (default from settings)")
	f.StringVar(&ff.device, "device", "", "device directory (default: first on the bus)")
	f.StringVar(&ff.out, "out", "", "record the boosted IN stream to this WAV file")
	f.DurationVar(&ff.tail, "tail", 50*time.Millisecond, "keep recording this long after the input ends")
	return cmd
}

func feed(ctx context.Context, ff *feedFlags, input string, outEP, inEP uint8) error {
	in, err := os.Open(input)
	if err != nil {
		return err
	}
	defer in.Close()
	src, err := wavfile.NewReader(in)
	if err != nil {
		return fmt.Errorf("%s: %w", input, err)
	}
	if src.SampleRate() != audio.SampleRate {
		return fmt.Errorf("%s: %d Hz input, booster streams %d Hz", input, src.SampleRate(), audio.SampleRate)
	}

	host, err := fifo.OpenHost(ff.busDir, ff.device)
	if err != nil {
		return err
	}
	defer host.Close()
	pkg.LogInfo(pkg.ComponentHAL, "feeding device", "dir", host.Dir(), "input", input)

	grp, ctx := errgroup.WithContext(ctx)
	playCtx, stopRecord := context.WithCancel(ctx)
	defer stopRecord()

	if ff.out != "" {
		f, err := os.Create(ff.out)
		if err != nil {
			return err
		}
		defer f.Close()
		rec := wavfile.NewWriter(f)
		grp.Go(func() error {
			err := record(playCtx, host, inEP, rec)
			if cerr := rec.Close(); err == nil {
				err = cerr
			}
			fmt.Fprintf(os.Stderr, "recorded %d frames to %s\n", rec.Frames(), ff.out)
			return err
		})
	}

	grp.Go(func() error {
		defer func() {
			time.AfterFunc(ff.tail, stopRecord)
		}()
		return play(ctx, host, outEP, src)
	})

	if err := grp.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	fmt.Fprintf(os.Stderr, "sent %d frames\n", src.Frames())
	return nil
}

// play paces one frame per service interval, like an isochronous host.
func play(ctx context.Context, host *fifo.Host, ep uint8, src *wavfile.Reader) error {
	ticker := time.NewTicker(audio.FramePeriodMicros * time.Microsecond)
	defer ticker.Stop()

	var f audio.Frame
	buf := make([]byte, audio.FrameBytes)
	for {
		err := src.ReadFrame(&f)
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return err
		}
		f.MarshalTo(buf)
		if err := host.Send(ctx, ep, buf); err != nil {
			return fmt.Errorf("send: %w", err)
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

func record(ctx context.Context, host *fifo.Host, ep uint8, w *wavfile.Writer) error {
	buf := make([]byte, audio.FrameBytes)
	var f audio.Frame
	for {
		n, err := host.Receive(ctx, ep, buf)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("receive: %w", err)
		}
		if !audio.ParseFrame(buf[:n], &f) {
			continue
		}
		if err := w.WriteFrame(f); err != nil {
			return err
		}
	}
}
