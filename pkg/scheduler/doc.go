// Package scheduler dispatches timed callbacks on a single logical thread.
//
// A Scheduler mints one keypool handle per active timer, arms a Host wait
// for it, and on every firing hands the callback an Event whose Dispatcher
// can stop the timer. A timer that stops itself from inside its callback
// keeps its handle until the callback returns, so the handle is never reused
// while the callback still runs.
//
// Two hosts are provided. Loop is an active-object goroutine that owns a
// min-heap of pending waits and sleeps at most 60 seconds at a time, so
// wall-clock steps are picked up on the next wake. TickHost is driven by the
// caller through Tick, for frame-driven environments and deterministic tests.
//
// Scheduler, Host.Arm and Host.Cancel are not safe for concurrent use: they
// must run on the host's thread. Code outside a Loop reaches it through
// Loop.Submit and Loop.Do.
package scheduler
