// Package usb models the isochronous side of the booster's USB audio
// function: endpoints, transfers, and the [Stack] that moves them through a
// [hal.DeviceHAL].
//
// Enumeration and descriptors are below the HAL boundary. The stack only
// tracks link state, arms the audio endpoints, and runs each submitted
// [Transfer] on its own goroutine, reporting completion through the
// transfer's callback. Callbacks execute in that goroutine, which plays the
// role of an interrupt handler: record the event, wake the owning task,
// return.
//
//	stack := usb.NewStack(fifo.New("/tmp/usb-bus"))
//	stack.SetOnConnect(func() { waker.Wake() })
//	stack.Start(ctx)
//	stack.Configure(usb.NewAudioEndpoint(0x01), usb.NewAudioEndpoint(0x81))
package usb
