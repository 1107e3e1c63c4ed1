package dsp

import "github.com/ardnew/soundbooster/audio"

// scale returns s*g in full precision, rounded to nearest.
func scale(s int16, g audio.Gain) int64 {
	return (int64(s)*int64(g) + 1<<(audio.GainFractionBits-1)) >> audio.GainFractionBits
}

// ApplySample scales one sample by g, rounding to nearest and saturating
// to the int16 range.
func ApplySample(s int16, g audio.Gain) int16 {
	v, _ := saturate(scale(s, g))
	return v
}

func saturate(v int64) (int16, bool) {
	switch {
	case v > audio.SampleMax:
		return audio.SampleMax, true
	case v < audio.SampleMin:
		return audio.SampleMin, true
	default:
		return int16(v), false
	}
}

// Apply writes src scaled by g into dst and returns the number of samples
// that saturated.
func Apply(dst, src *audio.Frame, g audio.Gain) int {
	if g == audio.GainUnity {
		*dst = *src
		return 0
	}
	clipped := 0
	for i, s := range src {
		v, clip := saturate(scale(s, g))
		if clip {
			clipped++
		}
		dst[i] = v
	}
	return clipped
}
