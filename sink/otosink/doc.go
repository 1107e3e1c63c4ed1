// Package otosink plays boosted audio through the host's speakers.
//
// The device-backed [Player] needs cgo on some platforms and is only built
// with the oto tag. [Stream], the ring-to-reader adapter it plays from, is
// always available.
package otosink
