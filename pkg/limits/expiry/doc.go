// Package expiry schedules one-shot delayed callbacks for the quota ledger.
//
// # Overview
//
// A Scheduler runs a callback once after a fixed delay. A pending callback can
// be cancelled through the Handle returned by Schedule. Two shutdown modes are
// supported:
//
//   - Shutdown: pending callbacks are discarded, running callbacks are allowed
//     to finish and Shutdown waits for them.
//   - ShutdownNow: pending callbacks are discarded, the context handed to
//     running callbacks is cancelled and ShutdownNow returns without waiting.
//
// # Execution Strategies
//
// The TimerScheduler bounds the number of callbacks running at the same time
// to Config.Workers and supports two execution strategies:
//
//   - StrategyLightweight: a fired timer runs its callback on its own goroutine
//     once a worker slot is free.
//   - StrategyHeavyweight: Workers dedicated goroutines, each locked to an OS
//     thread, consume fired callbacks from a queue.
//
// # Example
//
//	sched := expiry.NewTimerScheduler(expiry.Config{Workers: 4})
//	defer sched.Shutdown()
//
//	h, err := sched.Schedule(50*time.Millisecond, func(ctx context.Context) {
//	    // runs once, unless cancelled
//	})
//	if err == nil && h.Cancel() {
//	    // callback will never run
//	}
package expiry
