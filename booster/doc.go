// Package booster assembles the sound booster firmware.
//
// USB audio from the host lands in the input ring, the DSP stage applies
// gain into the output ring, and the USB task plays it back on the IN
// endpoint. The network control task adjusts gain and mute through the
// shared configuration. All three run as tasks on one cooperative executor;
// only HAL I/O and sockets run on their own goroutines.
package booster
