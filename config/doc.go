// Package config holds the booster's shared runtime state and its boot
// settings.
//
// [Shared] is the only mutable state shared between tasks. The control plane
// writes gain and mute, the audio plane bumps counters, and the DSP stage
// takes a [Shared.Snapshot] once per frame:
//
//	cfg := config.NewShared()
//	cfg.Update(func(c *config.Configuration) {
//	    c.Gain = 2 * audio.GainUnity
//	    c.Muted = false
//	})
//
// [Settings] are boot constants. The firmware uses [DefaultSettings]; the
// host build layers a YAML file and BOOSTER_* environment variables on top.
package config
