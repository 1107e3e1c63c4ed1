// Package telemetry exposes booster status to host-side observers over
// HTTP: a JSON snapshot, Prometheus metrics, and a websocket stream.
//
// It only reads. Every value comes from a [Source] that copies atomics and
// the shared configuration snapshot, so scraping never reaches into the
// executor.
package telemetry
