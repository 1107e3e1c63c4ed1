// Package fifo implements a named-pipe HAL so the booster can stream audio
// with a separate host process instead of a USB controller.
//
// Each device instance creates a unique subdirectory under a shared bus
// directory:
//
//	/tmp/usb-bus/
//	└── device-{uuid}/
//	    ├── connection       # attach/detach signal (device → host)
//	    ├── ep1_in, ep1_out  # endpoint 1 data pipes
//	    └── ...              # up to ep15_in/ep15_out
//
// Every packet travels as one message, [type, len_lo, len_hi, payload...],
// so isochronous packet boundaries survive the byte stream. The connection
// pipe carries single bytes: 0x01 when the device attaches, 0x00 when it
// detaches.
//
// [HAL] is the device side and plugs into the usb stack. [Host] is the
// other end, used by the feed command and by tests:
//
//	host, _ := fifo.OpenHost("/tmp/usb-bus", "")
//	host.WaitAttached(ctx)
//	host.Send(ctx, 0x01, packet)
//	n, _ := host.Receive(ctx, 0x81, buf)
package fifo
