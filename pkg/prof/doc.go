// Package prof wraps runtime/pprof for the booster host build.
//
// Support is compiled in with the "profile" build tag:
//
//	go build -tags profile ./cmd/booster
//	booster run --cpu-profile cpu.prof --pprof localhost:6060
//
// Without the tag every function is a stub returning [ErrDisabled], so call
// sites stay in place at no cost.
package prof
