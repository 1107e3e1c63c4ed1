//go:build profile

package prof

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/http/pprof"
	"os"
	"runtime"
	rpprof "runtime/pprof"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/ardnew/soundbooster/pkg"
)

// Enabled reports whether profiling support is compiled in.
const Enabled = true

var (
	cpuMutex  sync.Mutex
	cpuFile   *os.File
	cpuActive bool
)

// StartCPU starts CPU profiling into path.
// Returns ErrCPUProfileActive if a profile is already running.
func StartCPU(path string) error {
	cpuMutex.Lock()
	defer cpuMutex.Unlock()

	if cpuActive {
		return ErrCPUProfileActive
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create cpu profile: %w", err)
	}
	if err := rpprof.StartCPUProfile(f); err != nil {
		f.Close()
		return fmt.Errorf("start cpu profile: %w", err)
	}
	cpuFile, cpuActive = f, true
	pkg.LogInfo(pkg.ComponentFirmware, "cpu profile started", "path", path)
	return nil
}

// StopCPU stops CPU profiling. Safe to call when none is running.
func StopCPU() {
	cpuMutex.Lock()
	defer cpuMutex.Unlock()

	if !cpuActive {
		return
	}
	rpprof.StopCPUProfile()
	cpuFile.Close()
	cpuFile, cpuActive = nil, false
}

// IsCPUActive reports whether a CPU profile is running.
func IsCPUActive() bool {
	cpuMutex.Lock()
	defer cpuMutex.Unlock()
	return cpuActive
}

// Write saves the named runtime profile (heap, goroutine, block, mutex...)
// to path. CPU profiles use StartCPU and StopCPU instead.
func Write(profile Profile, path string) error {
	if profile == ProfileCPU {
		return fmt.Errorf("%w: use StartCPU", ErrInvalidProfile)
	}
	p := rpprof.Lookup(string(profile))
	if p == nil {
		return fmt.Errorf("%w: %s", ErrInvalidProfile, profile)
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := p.WriteTo(f, 0); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// SetContentionRates enables block and mutex sampling; 0 disables.
func SetContentionRates(blockNanos, mutexFraction int) {
	runtime.SetBlockProfileRate(blockNanos)
	runtime.SetMutexProfileFraction(mutexFraction)
}

// Handler returns the /debug/pprof endpoints.
func Handler() http.Handler {
	r := chi.NewRouter()
	r.Get("/debug/pprof/", pprof.Index)
	r.Get("/debug/pprof/cmdline", pprof.Cmdline)
	r.Get("/debug/pprof/profile", pprof.Profile)
	r.Get("/debug/pprof/symbol", pprof.Symbol)
	r.Get("/debug/pprof/trace", pprof.Trace)
	r.Get("/debug/pprof/{name}", func(w http.ResponseWriter, req *http.Request) {
		pprof.Handler(chi.URLParam(req, "name")).ServeHTTP(w, req)
	})
	return r
}

// Serve exposes Handler on addr until ctx is done.
func Serve(ctx context.Context, addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("pprof listen: %w", err)
	}
	srv := &http.Server{Handler: Handler(), ReadHeaderTimeout: 5 * time.Second}
	stop := context.AfterFunc(ctx, func() { srv.Close() })
	defer stop()

	pkg.LogInfo(pkg.ComponentFirmware, "pprof serving", "addr", ln.Addr().String())
	if err := srv.Serve(ln); !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return ctx.Err()
}
