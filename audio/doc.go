// Package audio defines the sample formats and buffers shared by every stage
// of the booster pipeline.
//
// # Format
//
// Audio moves through the pipeline as [Frame] values: 1 ms of 48 kHz
// interleaved stereo signed 16-bit PCM (96 samples, 192 bytes on the wire).
// One frame is exactly one USB full-speed isochronous packet.
//
// # Gain
//
// [Gain] is a linear ratio in Q16.16 fixed point. [ParseGain] accepts either
// a ratio ("2.0") or a level in decibels ("6dB").
//
// # Ring
//
// [Ring] is the fixed-capacity SPSC queue between pipeline stages:
//
//	ring := audio.NewRing(audio.DefaultRingFrames)
//	if err := ring.Push(frame); errors.Is(err, pkg.ErrOverrun) {
//	    overruns++
//	}
//	if f, ok := ring.Pop(); !ok {
//	    // starved: emit silence
//	}
package audio
