package audio

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/ardnew/soundbooster/pkg"
)

// Gain is a linear amplitude ratio in unsigned Q16.16 fixed point.
type Gain uint32

// GainFractionBits is the number of fractional bits in a Gain.
const GainFractionBits = 16

// Gain limits.
const (
	GainUnity Gain = 1 << GainFractionBits
	GainMax   Gain = 16 << GainFractionBits
)

// GainFromFloat converts a ratio to the nearest representable Gain.
func GainFromFloat(ratio float64) (Gain, error) {
	if math.IsNaN(ratio) || ratio < 0 || ratio > GainMax.Float() {
		return 0, fmt.Errorf("%w: %g outside [0, %g]", pkg.ErrInvalidGain, ratio, GainMax.Float())
	}
	return Gain(math.Round(ratio * float64(GainUnity))), nil
}

// GainFromDecibels converts an amplitude level in dB to a Gain.
func GainFromDecibels(db float64) (Gain, error) {
	return GainFromFloat(math.Pow(10, db/20))
}

// ParseGain parses a ratio ("2.0", "0.5") or a level in decibels ("6dB",
// "-3 dB").
func ParseGain(s string) (Gain, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, fmt.Errorf("%w: empty value", pkg.ErrInvalidGain)
	}
	lower := strings.ToLower(s)
	if db, ok := strings.CutSuffix(lower, "db"); ok {
		v, err := strconv.ParseFloat(strings.TrimSpace(db), 64)
		if err != nil {
			return 0, fmt.Errorf("%w: %q", pkg.ErrInvalidGain, s)
		}
		return GainFromDecibels(v)
	}
	v, err := strconv.ParseFloat(lower, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: %q", pkg.ErrInvalidGain, s)
	}
	return GainFromFloat(v)
}

// Float returns the gain as a floating-point ratio.
func (g Gain) Float() float64 {
	return float64(g) / float64(GainUnity)
}

// Decibels returns the gain as an amplitude level in dB.
// A zero gain returns negative infinity.
func (g Gain) Decibels() float64 {
	return 20 * math.Log10(g.Float())
}

// String formats the gain as a ratio with three decimals, e.g. "2.000".
func (g Gain) String() string {
	return strconv.FormatFloat(g.Float(), 'f', 3, 64)
}
