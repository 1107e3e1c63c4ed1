// Package sched provides the cooperative executor that runs every booster
// task on a single goroutine.
//
// Tasks never block. Anything that waits (USB transfers, sockets, DHCP,
// timers) runs on an interrupt-like goroutine that only enqueues an event,
// touches atomic counters, and calls [Waker.Wake]. The executor then polls
// the woken task, which drains its events and returns:
//
//	ex := sched.New()
//	dspWaker, _ := ex.Spawn("dsp", stage)
//	ex.Every(time.Millisecond, dspWaker)
//	ex.Run(ctx)
//
// Because all task code runs on one goroutine, tasks observe each other's
// effects in poll order and never run concurrently.
package sched
