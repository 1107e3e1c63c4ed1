// Package pkg provides shared utilities for the soundbooster firmware.
//
// This package contains common functionality used by every pipeline stage,
// including:
//
//   - Structured logging via Go's standard [log/slog] package
//   - Sentinel error types for audio, USB, and control plane failures
//   - Component identifiers for log filtering
//
// # Logging
//
// The logging subsystem wraps [log/slog] with component context:
//
//	pkg.SetLogLevel(slog.LevelDebug)
//	pkg.SetLogFormat(pkg.LogFormatConsole)
//	pkg.LogInfo(pkg.ComponentNet, "lease acquired", "addr", addr)
//
// # Errors
//
// Common errors are defined as sentinel values:
//
//	if errors.Is(err, pkg.ErrOverrun) {
//	    // Count and move on
//	}
package pkg
