package booster

import (
	"context"
	"fmt"
	"net/netip"
	"time"

	"github.com/ardnew/soundbooster/audio"
	"github.com/ardnew/soundbooster/config"
	"github.com/ardnew/soundbooster/dsp"
	"github.com/ardnew/soundbooster/netctl"
	"github.com/ardnew/soundbooster/pkg"
	"github.com/ardnew/soundbooster/sched"
	"github.com/ardnew/soundbooster/telemetry"
	"github.com/ardnew/soundbooster/usb"
	"github.com/ardnew/soundbooster/usb/class/uac"
	"github.com/ardnew/soundbooster/usb/hal"
)

// Quantum is the audio service interval: one frame per tick.
const Quantum = audio.FramePeriodMicros * time.Microsecond

// Options assemble a booster.
type Options struct {
	Settings config.Settings

	// HAL is the USB device controller.
	HAL hal.DeviceHAL

	// Net is the network stack for the control plane.
	Net netctl.Stack

	// Sink, if set, also receives every processed frame. It must not
	// block; wrap slow devices in a sink.Pump.
	Sink dsp.Output
}

// Booster is the assembled firmware: one executor running the USB audio
// task, the DSP stage, and the network control task over shared state.
type Booster struct {
	settings config.Settings
	cfg      *config.Shared
	in       *audio.Ring
	out      *audio.Ring

	stack *usb.Stack
	usb   *uac.Streaming
	stage *dsp.Stage
	net   *netctl.Task
	exec  *sched.Executor
}

// New builds the pipeline and registers its tasks. Nothing runs until Run.
func New(opts Options) (*Booster, error) {
	if opts.HAL == nil || opts.Net == nil {
		return nil, fmt.Errorf("%w: HAL and network stack are required", pkg.ErrInvalidParameter)
	}
	if err := opts.Settings.Validate(); err != nil {
		return nil, err
	}
	s := opts.Settings

	b := &Booster{
		settings: s,
		cfg:      config.NewShared(),
		in:       audio.NewRing(s.Audio.RingFrames),
		out:      audio.NewRing(s.Audio.RingFrames),
		stack:    usb.NewStack(opts.HAL),
		exec:     sched.New(),
	}

	b.usb = uac.NewStreaming(b.stack, b.in, b.out, b.cfg, s.USB.OutEndpoint, s.USB.InEndpoint)
	b.stage = dsp.NewStage(b.in, b.out, b.cfg, Quantum)
	if opts.Sink != nil {
		b.stage.SetSink(opts.Sink)
	}
	b.net = netctl.NewTask(opts.Net, b.cfg, netctl.OptionsFrom(s.Network))

	// Poll order within a tick: ingest USB, process, then control.
	usbWaker, err := b.exec.Spawn("usb", b.usb)
	if err != nil {
		return nil, err
	}
	b.usb.Bind(usbWaker)
	if err := b.exec.Every(Quantum, usbWaker); err != nil {
		return nil, err
	}

	dspWaker, err := b.exec.Spawn("dsp", b.stage)
	if err != nil {
		return nil, err
	}
	if err := b.exec.Every(b.stage.Period(), dspWaker); err != nil {
		return nil, err
	}

	netWaker, err := b.exec.Spawn("net", b.net)
	if err != nil {
		return nil, err
	}
	b.net.Bind(netWaker)

	return b, nil
}

// Run starts the USB stack and the control plane and runs the executor
// until ctx is done.
func (b *Booster) Run(ctx context.Context) error {
	if err := b.stack.Start(ctx); err != nil {
		return fmt.Errorf("start usb: %w", err)
	}
	defer func() {
		if err := b.stack.Stop(); err != nil {
			pkg.LogWarn(pkg.ComponentFirmware, "usb stop", "error", err)
		}
	}()

	b.net.Start(ctx)
	pkg.LogInfo(pkg.ComponentFirmware, "booster running",
		"ring_frames", b.in.Cap(),
		"out_ep", fmt.Sprintf("0x%02X", b.settings.USB.OutEndpoint),
		"in_ep", fmt.Sprintf("0x%02X", b.settings.USB.InEndpoint),
		"port", b.settings.Network.Port)

	err := b.exec.Run(ctx)
	pkg.LogInfo(pkg.ComponentFirmware, "booster stopped", "dsp_frames", b.exec.Polls("dsp"))
	return err
}

// Config returns the shared configuration.
func (b *Booster) Config() *config.Shared {
	return b.cfg
}

// ControlAddr returns the bound control address, or the zero value before
// the control plane is listening.
func (b *Booster) ControlAddr() netip.AddrPort {
	return b.net.Addr()
}

// ControlState returns the control plane state.
func (b *Booster) ControlState() netctl.State {
	return b.net.State()
}

// StreamState returns the USB streaming state.
func (b *Booster) StreamState() uac.State {
	return b.usb.State()
}

// Status collects a telemetry snapshot. Safe from any goroutine.
func (b *Booster) Status() telemetry.Status {
	s := telemetry.NewStatus(b.cfg.Snapshot(), b.usb.Stats(), b.net.Stats())
	s.Rings = telemetry.RingStatus{
		Input:    b.in.Len(),
		Output:   b.out.Len(),
		Capacity: b.in.Cap(),
	}
	return s
}
