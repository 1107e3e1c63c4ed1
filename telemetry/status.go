package telemetry

import (
	"github.com/ardnew/soundbooster/config"
	"github.com/ardnew/soundbooster/netctl"
	"github.com/ardnew/soundbooster/usb/class/uac"
)

// Status is one consistent view of the booster for external observers.
type Status struct {
	Gain      float64 `json:"gain"`
	Muted     bool    `json:"muted"`
	Underruns uint32  `json:"underruns"`
	Overruns  uint32  `json:"overruns"`
	Dropped   uint32  `json:"dropped"`

	USB     USBStatus     `json:"usb"`
	Network NetworkStatus `json:"network"`
	Rings   RingStatus    `json:"rings"`
}

// USBStatus summarizes the streaming interface.
type USBStatus struct {
	State      string `json:"state"`
	PacketsOut uint64 `json:"packets_out"`
	FramesIn   uint64 `json:"frames_in"`
	FramesOut  uint64 `json:"frames_out"`
	Dropped    uint64 `json:"dropped"`
	Starved    uint64 `json:"starved"`
	Sessions   uint64 `json:"sessions"`
}

// NetworkStatus summarizes the control plane.
type NetworkStatus struct {
	State     string `json:"state"`
	Address   string `json:"address,omitempty"`
	LinkLocal bool   `json:"link_local"`
	Sessions  uint64 `json:"sessions"`
	Refused   uint64 `json:"refused"`
	Commands  uint64 `json:"commands"`
	Errors    uint64 `json:"errors"`
}

// RingStatus reports ring fill levels in frames.
type RingStatus struct {
	Input    int `json:"input"`
	Output   int `json:"output"`
	Capacity int `json:"capacity"`
}

// Source produces a Status. It is called from HTTP handler goroutines and
// must be safe for concurrent use.
type Source func() Status

// NewStatus assembles a Status from its parts.
func NewStatus(cfg config.Configuration, usb uac.Stats, net netctl.Stats) Status {
	s := Status{
		Gain:      cfg.Gain.Float(),
		Muted:     cfg.Muted,
		Underruns: cfg.Underruns,
		Overruns:  cfg.Overruns,
		Dropped:   cfg.Dropped,
		USB: USBStatus{
			State:      usb.State.String(),
			PacketsOut: usb.PacketsOut,
			FramesIn:   usb.FramesIn,
			FramesOut:  usb.FramesOut,
			Dropped:    usb.Dropped,
			Starved:    usb.Starved,
			Sessions:   usb.Sessions,
		},
		Network: NetworkStatus{
			State:     net.State.String(),
			LinkLocal: net.LinkLocal,
			Sessions:  net.Sessions,
			Refused:   net.Refused,
			Commands:  net.Commands,
			Errors:    net.Errors,
		},
	}
	if net.Address.IsValid() {
		s.Network.Address = net.Address.String()
	}
	return s
}
