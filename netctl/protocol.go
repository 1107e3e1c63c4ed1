package netctl

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/ardnew/soundbooster/audio"
	"github.com/ardnew/soundbooster/config"
	"github.com/ardnew/soundbooster/pkg"
)

// MaxLineLength is the longest control line accepted, terminator included.
const MaxLineLength = 128

// Kind identifies a control command.
type Kind uint8

// Command kinds.
const (
	KindQueryStatus Kind = iota
	KindSetGain
	KindSetMute
	KindResetCounters
)

// String returns the protocol keyword.
func (k Kind) String() string {
	switch k {
	case KindSetGain:
		return "GAIN"
	case KindSetMute:
		return "MUTE"
	case KindResetCounters:
		return "RESET"
	default:
		return "STATUS"
	}
}

// Command is one decoded control line.
type Command struct {
	Kind Kind
	Gain audio.Gain // KindSetGain
	Mute bool       // KindSetMute
}

// String encodes the command as a protocol line without terminator.
func (c Command) String() string {
	switch c.Kind {
	case KindSetGain:
		return "GAIN " + c.Gain.String()
	case KindSetMute:
		if c.Mute {
			return "MUTE 1"
		}
		return "MUTE 0"
	default:
		return c.Kind.String()
	}
}

// ParseCommand decodes one line. Keywords are case-insensitive and the
// line terminator is optional.
func ParseCommand(line string) (Command, error) {
	if len(line) > MaxLineLength {
		return Command{}, pkg.ErrLineTooLong
	}
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return Command{}, fmt.Errorf("%w: empty line", pkg.ErrInvalidCommand)
	}

	keyword, args := strings.ToUpper(fields[0]), fields[1:]
	switch keyword {
	case "GAIN":
		value := ""
		switch {
		case len(args) == 1:
			value = args[0]
		case len(args) == 2 && strings.EqualFold(args[1], "dB"):
			// "6 dB" arrives as two fields.
			value = args[0] + args[1]
		default:
			return Command{}, fmt.Errorf("%w: GAIN takes one value", pkg.ErrInvalidCommand)
		}
		g, err := audio.ParseGain(value)
		if err != nil {
			return Command{}, err
		}
		return Command{Kind: KindSetGain, Gain: g}, nil

	case "MUTE":
		if len(args) != 1 {
			return Command{}, fmt.Errorf("%w: MUTE takes 0 or 1", pkg.ErrInvalidCommand)
		}
		switch args[0] {
		case "0":
			return Command{Kind: KindSetMute, Mute: false}, nil
		case "1":
			return Command{Kind: KindSetMute, Mute: true}, nil
		}
		return Command{}, fmt.Errorf("%w: MUTE takes 0 or 1", pkg.ErrInvalidCommand)

	case "STATUS", "RESET":
		if len(args) != 0 {
			return Command{}, fmt.Errorf("%w: %s takes no arguments", pkg.ErrInvalidCommand, keyword)
		}
		if keyword == "RESET" {
			return Command{Kind: KindResetCounters}, nil
		}
		return Command{Kind: KindQueryStatus}, nil
	}
	return Command{}, fmt.Errorf("%w: %q", pkg.ErrInvalidCommand, fields[0])
}

// Apply executes cmd under one scoped acquisition of the configuration and
// returns the resulting state.
func Apply(cmd Command, cfg *config.Shared) config.Configuration {
	var out config.Configuration
	cfg.Update(func(c *config.Configuration) {
		switch cmd.Kind {
		case KindSetGain:
			c.Gain = cmd.Gain
		case KindSetMute:
			c.Muted = cmd.Mute
		case KindResetCounters:
			c.Underruns, c.Overruns, c.Dropped = 0, 0, 0
		}
		out = *c
	})
	return out
}

// FormatStatus renders the status line, e.g.
// "OK gain=2.000 mute=0 underruns=0 overruns=0 dropped=0".
func FormatStatus(c config.Configuration) string {
	mute := 0
	if c.Muted {
		mute = 1
	}
	return fmt.Sprintf("OK gain=%s mute=%d underruns=%d overruns=%d dropped=%d",
		c.Gain, mute, c.Underruns, c.Overruns, c.Dropped)
}

// FormatError renders an error line such as "ERR busy".
func FormatError(err error) string {
	switch {
	case errors.Is(err, pkg.ErrBusy):
		return "ERR busy"
	case errors.Is(err, pkg.ErrLineTooLong):
		return "ERR line too long"
	case errors.Is(err, pkg.ErrInvalidGain):
		return "ERR invalid gain"
	default:
		return "ERR invalid command"
	}
}

// ParseStatus decodes a status line produced by FormatStatus. An "ERR"
// line is returned as an error.
func ParseStatus(line string) (config.Configuration, error) {
	line = strings.TrimSpace(line)
	if reason, ok := strings.CutPrefix(line, "ERR "); ok {
		if reason == "busy" {
			return config.Configuration{}, pkg.ErrBusy
		}
		return config.Configuration{}, fmt.Errorf("%w: %s", pkg.ErrInvalidResponse, reason)
	}
	rest, ok := strings.CutPrefix(line, "OK ")
	if !ok {
		return config.Configuration{}, fmt.Errorf("%w: %q", pkg.ErrInvalidResponse, line)
	}

	var c config.Configuration
	for _, kv := range strings.Fields(rest) {
		key, val, ok := strings.Cut(kv, "=")
		if !ok {
			return config.Configuration{}, fmt.Errorf("%w: field %q", pkg.ErrInvalidResponse, kv)
		}
		var err error
		switch key {
		case "gain":
			c.Gain, err = audio.ParseGain(val)
		case "mute":
			c.Muted = val == "1"
		case "underruns":
			c.Underruns, err = parseCounter(val)
		case "overruns":
			c.Overruns, err = parseCounter(val)
		case "dropped":
			c.Dropped, err = parseCounter(val)
		}
		if err != nil {
			return config.Configuration{}, fmt.Errorf("%w: field %q: %v", pkg.ErrInvalidResponse, kv, err)
		}
	}
	return c, nil
}

func parseCounter(s string) (uint32, error) {
	v, err := strconv.ParseUint(s, 10, 32)
	return uint32(v), err
}
