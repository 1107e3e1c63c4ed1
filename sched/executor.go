package sched

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ardnew/soundbooster/pkg"
)

// MaxTasks is the maximum number of tasks an executor can run.
const MaxTasks = 16

// Task is a cooperative unit of work.
//
// Poll is called on the executor goroutine whenever the task has been woken.
// It must do a bounded amount of work and return; it never blocks. A task
// that needs to wait registers a wake source (a Waker handed to an I/O
// goroutine, or a timer) and returns.
type Task interface {
	Poll(now time.Time)
}

// TaskFunc adapts a function to the Task interface.
type TaskFunc func(now time.Time)

// Poll calls f(now).
func (f TaskFunc) Poll(now time.Time) { f(now) }

type taskEntry struct {
	name    string
	task    Task
	pending atomic.Uint32
	polls   atomic.Uint64
}

type timerEntry struct {
	period time.Duration
	waker  Waker
}

// Executor runs tasks on a single goroutine.
//
// Wake sources (interrupt-like goroutines, timers, other tasks) mark a task
// ready through its Waker; the executor polls ready tasks in wake order.
// Repeated wakes before a poll coalesce into one.
type Executor struct {
	tasks [MaxTasks]taskEntry
	count int

	timers [MaxTasks]timerEntry
	ntimer int

	ready chan int

	running bool
	mutex   sync.Mutex
}

// New creates an idle executor.
func New() *Executor {
	return &Executor{
		ready: make(chan int, MaxTasks),
	}
}

// Spawn registers a task and returns the Waker that schedules it.
// Tasks must be spawned before Run.
func (e *Executor) Spawn(name string, t Task) (Waker, error) {
	e.mutex.Lock()
	defer e.mutex.Unlock()

	if e.running {
		return Waker{}, pkg.ErrAlreadyRunning
	}
	if e.count >= MaxTasks {
		return Waker{}, pkg.ErrNoResources
	}

	id := e.count
	e.tasks[id].name = name
	e.tasks[id].task = t
	e.count++

	pkg.LogDebug(pkg.ComponentScheduler, "task spawned", "task", name, "id", id)
	return Waker{e: e, id: id}, nil
}

// Every wakes w once per period while the executor runs.
// Ticks that arrive while the task is already pending coalesce.
func (e *Executor) Every(period time.Duration, w Waker) error {
	if period <= 0 || w.e != e {
		return pkg.ErrInvalidParameter
	}

	e.mutex.Lock()
	defer e.mutex.Unlock()

	if e.running {
		return pkg.ErrAlreadyRunning
	}
	if e.ntimer >= len(e.timers) {
		return pkg.ErrNoResources
	}
	e.timers[e.ntimer] = timerEntry{period: period, waker: w}
	e.ntimer++
	return nil
}

// Run polls tasks until ctx is cancelled. Every task is polled once at
// startup so it can arm its wake sources.
func (e *Executor) Run(ctx context.Context) error {
	e.mutex.Lock()
	if e.running {
		e.mutex.Unlock()
		return pkg.ErrAlreadyRunning
	}
	e.running = true
	count := e.count
	timers := e.timers[:e.ntimer]
	e.mutex.Unlock()

	defer func() {
		e.mutex.Lock()
		e.running = false
		e.mutex.Unlock()
	}()

	var wg sync.WaitGroup
	defer wg.Wait()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	for i := range timers {
		wg.Add(1)
		go func(t timerEntry) {
			defer wg.Done()
			tick(ctx, t)
		}(timers[i])
	}

	for id := 0; id < count; id++ {
		Waker{e: e, id: id}.Wake()
	}

	pkg.LogDebug(pkg.ComponentScheduler, "executor running", "tasks", count)

	for {
		select {
		case <-ctx.Done():
			pkg.LogDebug(pkg.ComponentScheduler, "executor stopped")
			return ctx.Err()
		case id := <-e.ready:
			entry := &e.tasks[id]
			// Clear before polling so a wake raised during Poll re-queues.
			entry.pending.Store(0)
			entry.polls.Add(1)
			entry.task.Poll(time.Now())
		}
	}
}

// Polls returns how many times the named task has been polled.
func (e *Executor) Polls(name string) uint64 {
	e.mutex.Lock()
	count := e.count
	e.mutex.Unlock()
	for id := 0; id < count; id++ {
		if e.tasks[id].name == name {
			return e.tasks[id].polls.Load()
		}
	}
	return 0
}

// tick is a timer wake source.
func tick(ctx context.Context, t timerEntry) {
	ticker := time.NewTicker(t.period)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			t.waker.Wake()
		}
	}
}

// Waker marks one task ready. The zero Waker is a no-op.
type Waker struct {
	e  *Executor
	id int
}

// Wake schedules the task for polling. It is safe to call from any
// goroutine and never blocks.
func (w Waker) Wake() {
	if w.e == nil {
		return
	}
	entry := &w.e.tasks[w.id]
	if !entry.pending.CompareAndSwap(0, 1) {
		return
	}
	// Each task holds at most one token, so the channel never fills.
	select {
	case w.e.ready <- w.id:
	default:
		entry.pending.Store(0)
	}
}

// Valid reports whether the waker is bound to an executor.
func (w Waker) Valid() bool {
	return w.e != nil
}
