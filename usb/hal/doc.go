// Package hal defines the hardware boundary between the booster's USB stack
// and a device controller.
//
// The [DeviceHAL] interface is deliberately small: lifecycle, endpoint
// configuration, blocking packet I/O, and link state. Descriptor handling
// and enumeration happen below this boundary and are not modeled.
//
// Two implementations ship with the module: [github.com/ardnew/soundbooster/usb/hal/fifo]
// speaks to a host process over named pipes, and
// [github.com/ardnew/soundbooster/usb/hal/memhal] connects the stack to
// in-process channels for tests and loopback runs.
package hal
