package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/ardnew/soundbooster/audio"
	"github.com/ardnew/soundbooster/pkg"
)

// Boot-time constants. The firmware uses these directly; the host build may
// override them from a settings file.
const (
	DefaultControlPort   = 7000
	DefaultDHCPTimeout   = 5 * time.Second
	DefaultDHCPRetries   = 4
	DefaultDHCPBackoff   = 250 * time.Millisecond
	DefaultAcceptRetries = 5
	DefaultOutEndpoint   = 0x01
	DefaultInEndpoint    = 0x81
	DefaultBusDir        = "/tmp/usb-bus"
)

// Settings holds boot parameters. They are read once at startup and never
// change at runtime.
type Settings struct {
	Audio     AudioSettings     `yaml:"audio"`
	USB       USBSettings       `yaml:"usb"`
	Network   NetworkSettings   `yaml:"network"`
	Telemetry TelemetrySettings `yaml:"telemetry"`
	Log       LogSettings       `yaml:"log"`
}

// AudioSettings sizes the pipeline buffers.
type AudioSettings struct {
	RingFrames int `yaml:"ring_frames"`
}

// USBSettings selects the streaming endpoints and the simulated bus.
type USBSettings struct {
	BusDir      string `yaml:"bus_dir"`
	OutEndpoint uint8  `yaml:"out_endpoint"`
	InEndpoint  uint8  `yaml:"in_endpoint"`
}

// NetworkSettings configures address acquisition and the control listener.
type NetworkSettings struct {
	Interface     string        `yaml:"interface"`
	Port          uint16        `yaml:"port"`
	DHCPTimeout   time.Duration `yaml:"dhcp_timeout"`
	DHCPRetries   uint64        `yaml:"dhcp_retries"`
	DHCPBackoff   time.Duration `yaml:"dhcp_backoff"`
	AcceptRetries uint64        `yaml:"accept_retries"`
}

// TelemetrySettings configures the optional HTTP telemetry surface.
// An empty Listen disables it.
type TelemetrySettings struct {
	Listen string `yaml:"listen"`
}

// LogSettings configures logging.
type LogSettings struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// DefaultSettings returns the compiled-in boot parameters.
func DefaultSettings() Settings {
	return Settings{
		Audio: AudioSettings{RingFrames: audio.DefaultRingFrames},
		USB: USBSettings{
			BusDir:      DefaultBusDir,
			OutEndpoint: DefaultOutEndpoint,
			InEndpoint:  DefaultInEndpoint,
		},
		Network: NetworkSettings{
			Port:          DefaultControlPort,
			DHCPTimeout:   DefaultDHCPTimeout,
			DHCPRetries:   DefaultDHCPRetries,
			DHCPBackoff:   DefaultDHCPBackoff,
			AcceptRetries: DefaultAcceptRetries,
		},
		Log: LogSettings{Level: "warn", Format: "text"},
	}
}

// Load reads settings from a YAML file layered over DefaultSettings.
// A missing file is not an error.
func Load(path string) (Settings, error) {
	s := DefaultSettings()
	if path == "" {
		return s, nil
	}
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		pkg.LogDebug(pkg.ComponentConfig, "settings file not found, using defaults", "path", path)
		return s, nil
	}
	if err != nil {
		return s, fmt.Errorf("read settings: %w", err)
	}
	if err := yaml.Unmarshal(data, &s); err != nil {
		return s, fmt.Errorf("parse settings %s: %w", path, err)
	}
	return s, s.Validate()
}

// LoadEnv loads KEY=VALUE pairs from the given dotenv files into the process
// environment, then applies BOOSTER_* overrides. Missing files are skipped.
func (s *Settings) LoadEnv(files ...string) error {
	for _, f := range files {
		if _, err := os.Stat(f); err != nil {
			continue
		}
		if err := godotenv.Load(f); err != nil {
			return fmt.Errorf("load %s: %w", f, err)
		}
	}
	return s.ApplyEnv(os.LookupEnv)
}

// ApplyEnv overrides settings from BOOSTER_* variables using lookup.
func (s *Settings) ApplyEnv(lookup func(string) (string, bool)) error {
	str := func(key string, dst *string) {
		if v, ok := lookup(key); ok {
			*dst = v
		}
	}
	str("BOOSTER_BUS_DIR", &s.USB.BusDir)
	str("BOOSTER_INTERFACE", &s.Network.Interface)
	str("BOOSTER_TELEMETRY", &s.Telemetry.Listen)
	str("BOOSTER_LOG_LEVEL", &s.Log.Level)
	str("BOOSTER_LOG_FORMAT", &s.Log.Format)

	if v, ok := lookup("BOOSTER_PORT"); ok {
		port, err := strconv.ParseUint(v, 10, 16)
		if err != nil {
			return fmt.Errorf("BOOSTER_PORT: %w", err)
		}
		s.Network.Port = uint16(port)
	}
	if v, ok := lookup("BOOSTER_DHCP_TIMEOUT"); ok {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("BOOSTER_DHCP_TIMEOUT: %w", err)
		}
		s.Network.DHCPTimeout = d
	}
	if v, ok := lookup("BOOSTER_DHCP_RETRIES"); ok {
		n, err := strconv.ParseUint(v, 10, 64)
		if err != nil {
			return fmt.Errorf("BOOSTER_DHCP_RETRIES: %w", err)
		}
		s.Network.DHCPRetries = n
	}
	return s.Validate()
}

// Validate checks that settings are usable.
func (s *Settings) Validate() error {
	switch {
	case s.Audio.RingFrames < 2 || s.Audio.RingFrames > 1024:
		return fmt.Errorf("%w: audio.ring_frames %d not in [2, 1024]", pkg.ErrInvalidParameter, s.Audio.RingFrames)
	case s.USB.OutEndpoint&0x80 != 0 || s.USB.OutEndpoint&0x0F == 0:
		return fmt.Errorf("%w: usb.out_endpoint 0x%02X", pkg.ErrInvalidEndpoint, s.USB.OutEndpoint)
	case s.USB.InEndpoint&0x80 == 0 || s.USB.InEndpoint&0x0F == 0:
		return fmt.Errorf("%w: usb.in_endpoint 0x%02X", pkg.ErrInvalidEndpoint, s.USB.InEndpoint)
	case s.Network.DHCPTimeout <= 0:
		return fmt.Errorf("%w: network.dhcp_timeout must be positive", pkg.ErrInvalidParameter)
	case s.Network.DHCPBackoff <= 0:
		return fmt.Errorf("%w: network.dhcp_backoff must be positive", pkg.ErrInvalidParameter)
	}
	return nil
}
