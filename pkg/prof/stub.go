//go:build !profile

package prof

import (
	"context"
	"net/http"
)

// Enabled reports whether profiling support is compiled in.
const Enabled = false

// StartCPU returns ErrDisabled.
func StartCPU(string) error { return ErrDisabled }

// StopCPU does nothing.
func StopCPU() {}

// IsCPUActive always returns false.
func IsCPUActive() bool { return false }

// Write returns ErrDisabled.
func Write(Profile, string) error { return ErrDisabled }

// SetContentionRates does nothing.
func SetContentionRates(int, int) {}

// Handler returns a handler that answers 404.
func Handler() http.Handler { return http.NotFoundHandler() }

// Serve returns ErrDisabled.
func Serve(context.Context, string) error { return ErrDisabled }
