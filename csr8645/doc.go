// Package csr8645 drives a CSR8645 Bluetooth A2DP module over a serial
// link.
//
// Configuration uses the module's AT command set, one CRLF-terminated
// command per round trip:
//
//	mod := csr8645.New(port)
//	mod.SetName(ctx, "booster")
//	mod.Connect(ctx, "001122334455")
//
// Once linked, the module doubles as a playback sink: WriteFrame sends raw
// 16-bit PCM, so a Module can sit behind a sink.Pump.
package csr8645
