// Package dsp implements the gain/boost stage of the booster pipeline.
//
// Samples are scaled by a Q16.16 [audio.Gain] with round-to-nearest and
// saturated to the int16 range, so boosting never wraps around. The [Stage]
// task runs once per frame period on the executor and never waits: an empty
// input ring produces a silent frame and an underrun count instead.
package dsp
