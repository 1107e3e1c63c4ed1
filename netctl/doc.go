// Package netctl implements the booster's network control plane.
//
// The [Task] brings the interface up (DHCP with bounded exponential
// backoff, then a link-local fallback derived from the hardware address),
// listens on the control port, and serves one client at a time:
//
//	Unconfigured → AwaitingLease → Listening ⇄ Connected
//
// The protocol is line-oriented ASCII, LF or CRLF terminated, at most
// [MaxLineLength] bytes per line, keywords case-insensitive:
//
//	GAIN 2.0      set linear gain (or "GAIN 6dB")
//	MUTE 1        mute (0 to unmute)
//	STATUS        query
//	RESET         clear underrun/overrun/dropped counters
//
// Every accepted command is answered with a status line,
//
//	OK gain=2.000 mute=0 underruns=0 overruns=0 dropped=0
//
// and every rejected line with "ERR <reason>". A second concurrent client
// receives "ERR busy" and is disconnected.
//
// Socket work happens on goroutines that only post events. The executor
// side never blocks on the network, so a slow or hostile client cannot
// stall audio processing.
package netctl
