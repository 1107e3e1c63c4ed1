package prof

import "errors"

// Profiling errors.
var (
	// ErrDisabled is returned when the binary was built without the
	// profile tag.
	ErrDisabled = errors.New("profiling not compiled in (build with -tags profile)")

	// ErrCPUProfileActive indicates a CPU profile is already running.
	ErrCPUProfileActive = errors.New("cpu profile already active")

	// ErrInvalidProfile indicates an unknown or unsupported profile name.
	ErrInvalidProfile = errors.New("invalid profile")
)

// Profile names a runtime profile.
type Profile string

// Runtime profiles.
const (
	ProfileCPU       Profile = "cpu"
	ProfileHeap      Profile = "heap"
	ProfileAllocs    Profile = "allocs"
	ProfileGoroutine Profile = "goroutine"
	ProfileBlock     Profile = "block"
	ProfileMutex     Profile = "mutex"
)
