package journal

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"mercator-hq/admission/pkg/limits/quota"
)

// RecorderConfig contains configuration for the journal recorder.
type RecorderConfig struct {
	// AsyncBuffer is the size of the async write channel buffer.
	// Default: 1000
	AsyncBuffer int

	// WriteTimeout bounds both how long Observe waits for buffer space and
	// how long a single backend write may take. 0 means Observe never waits.
	// Default: 0
	WriteTimeout time.Duration

	// Kinds restricts which event kinds are recorded. Empty records all.
	Kinds []quota.EventKind
}

// Recorder journals quota slot events. It implements quota.Observer and
// writes records asynchronously so slot transitions never wait on storage.
type Recorder struct {
	backend    Backend
	config     RecorderConfig
	kinds      map[quota.EventKind]bool
	recordChan chan *Record
	wg         sync.WaitGroup
	done       chan struct{}
	closeOnce  sync.Once
	logger     *slog.Logger

	written atomic.Int64
	dropped atomic.Int64
}

var _ quota.Observer = (*Recorder)(nil)

// NewRecorder creates a recorder writing to backend and starts its worker.
func NewRecorder(backend Backend, cfg RecorderConfig) *Recorder {
	if cfg.AsyncBuffer <= 0 {
		cfg.AsyncBuffer = 1000
	}

	r := &Recorder{
		backend:    backend,
		config:     cfg,
		recordChan: make(chan *Record, cfg.AsyncBuffer),
		done:       make(chan struct{}),
		logger:     slog.Default().With("component", "journal.recorder"),
	}
	if len(cfg.Kinds) > 0 {
		r.kinds = make(map[quota.EventKind]bool, len(cfg.Kinds))
		for _, k := range cfg.Kinds {
			r.kinds[k] = true
		}
	}

	r.wg.Add(1)
	go r.worker()

	r.logger.Debug("journal recorder initialized",
		"async_buffer", cfg.AsyncBuffer,
		"write_timeout", cfg.WriteTimeout,
	)

	return r
}

// Observe enqueues ev for writing. When the buffer is full it waits up to
// WriteTimeout, then drops the event.
func (r *Recorder) Observe(ev quota.Event) {
	if r.kinds != nil && !r.kinds[ev.Kind] {
		return
	}

	select {
	case <-r.done:
		r.dropped.Add(1)
		return
	default:
	}

	record := &Record{
		ID:         uuid.New().String(),
		Pool:       ev.Pool,
		Key:        ev.Key,
		Kind:       string(ev.Kind),
		Reason:     string(ev.Reason),
		Serial:     ev.Serial,
		Remaining:  ev.Remaining,
		Held:       ev.Held,
		RecordedAt: ev.At,
	}

	select {
	case r.recordChan <- record:
		return
	default:
	}

	if r.config.WriteTimeout <= 0 {
		r.drop(record)
		return
	}

	timer := time.NewTimer(r.config.WriteTimeout)
	defer timer.Stop()

	select {
	case r.recordChan <- record:
	case <-timer.C:
		r.drop(record)
	case <-r.done:
		r.dropped.Add(1)
	}
}

func (r *Recorder) drop(record *Record) {
	if r.dropped.Add(1) == 1 {
		// Log the first drop only; Dropped reports the total.
		r.logger.Warn("journal buffer full, dropping record",
			"record_id", record.ID,
			"pool", record.Pool,
			"channel_capacity", r.config.AsyncBuffer,
		)
	}
}

// Written returns the number of records stored successfully.
func (r *Recorder) Written() int64 {
	return r.written.Load()
}

// Dropped returns the number of events that were not stored because the
// buffer was full or the recorder was closed.
func (r *Recorder) Dropped() int64 {
	return r.dropped.Load()
}

// Close stops accepting events, drains the buffer and waits for pending
// writes. It does not close the backend.
func (r *Recorder) Close() error {
	r.closeOnce.Do(func() {
		close(r.done)
		r.wg.Wait()
		r.logger.Debug("journal recorder shut down",
			"written", r.written.Load(),
			"dropped", r.dropped.Load(),
		)
	})
	return nil
}

// worker drains the record channel into the backend.
func (r *Recorder) worker() {
	defer r.wg.Done()

	for {
		select {
		case record := <-r.recordChan:
			r.writeRecord(record)

		case <-r.done:
			for {
				select {
				case record := <-r.recordChan:
					r.writeRecord(record)
				default:
					return
				}
			}
		}
	}
}

// writeRecord writes a single record to the backend.
func (r *Recorder) writeRecord(record *Record) {
	ctx := context.Background()
	if r.config.WriteTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.config.WriteTimeout)
		defer cancel()
	}

	if err := r.backend.Append(ctx, record); err != nil {
		r.logger.Error("failed to store journal record",
			"record_id", record.ID,
			"pool", record.Pool,
			"error", err,
		)
		return
	}
	r.written.Add(1)
}
