// Package journal records quota slot events for audit.
//
// # Overview
//
// A Recorder is attached to a quota.Manager as an Observer. Every slot
// transition (taken, rejected, confirmed, cancelled, expired) becomes a
// Record with a UUID, buffered and written asynchronously to a Backend:
//
//   - MemoryBackend: bounded in-memory storage, lost on exit
//   - SQLiteBackend: file-based storage using modernc.org/sqlite in WAL mode
//
// The journal is write-only from the ledger's point of view. Pools always
// start from their configured capacity and never reload journal state.
//
// # Retention
//
// A Pruner deletes records older than the retention period; a Scheduler
// runs it on a cron schedule:
//
//	pruner := journal.NewPruner(backend, 72*time.Hour)
//	sched := journal.NewScheduler(pruner, "0 3 * * *")
//	if err := sched.Start(ctx); err != nil {
//	    return err
//	}
//	defer sched.Stop()
//
// # Thread Safety
//
// All backends and the Recorder are safe for concurrent use.
package journal
