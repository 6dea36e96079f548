package recorder

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"mercator-hq/apiflow/pkg/archive"
	"mercator-hq/apiflow/pkg/logstore"
)

// Config contains recorder settings.
type Config struct {
	// AsyncBuffer is the queue size. Entries arriving while it is full are
	// dropped.
	// Default: 1000
	AsyncBuffer int

	// WriteTimeout bounds one storage write.
	// Default: 5s
	WriteTimeout time.Duration

	// OnDrop is called for every dropped entry.
	OnDrop func()
}

// DefaultConfig returns the default recorder configuration.
func DefaultConfig() *Config {
	return &Config{
		AsyncBuffer:  1000,
		WriteTimeout: 5 * time.Second,
	}
}

// Recorder writes finalized entries to a Storage from a background worker.
type Recorder struct {
	storage archive.Storage
	config  *Config
	entries chan *logstore.Entry
	wg      sync.WaitGroup
	logger  *slog.Logger

	mu     sync.RWMutex
	closed bool
	done   chan struct{}
}

// New starts a recorder writing to storage.
func New(storage archive.Storage, config *Config) *Recorder {
	if config == nil {
		config = DefaultConfig()
	}
	if config.AsyncBuffer <= 0 {
		config.AsyncBuffer = DefaultConfig().AsyncBuffer
	}
	if config.WriteTimeout <= 0 {
		config.WriteTimeout = DefaultConfig().WriteTimeout
	}

	r := &Recorder{
		storage: storage,
		config:  config,
		entries: make(chan *logstore.Entry, config.AsyncBuffer),
		done:    make(chan struct{}),
		logger:  slog.Default().With("component", "archive.recorder"),
	}

	r.wg.Add(1)
	go r.worker()

	r.logger.Info("archive recorder initialized",
		"async_buffer", config.AsyncBuffer,
		"write_timeout", config.WriteTimeout,
	)
	return r
}

// Record enqueues e without blocking. It has the logstore.Store OnFinish
// signature. Entries are dropped when the queue is full or the recorder is
// closed.
func (r *Recorder) Record(e logstore.Entry) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if r.closed {
		r.drop(&e, "recorder closed")
		return
	}

	select {
	case r.entries <- &e:
	default:
		r.drop(&e, "archive queue full")
	}
}

// Close stops accepting entries and waits for queued ones to be written.
func (r *Recorder) Close() error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil
	}
	r.closed = true
	close(r.done)
	r.mu.Unlock()

	r.wg.Wait()
	r.logger.Info("archive recorder shut down")
	return nil
}

func (r *Recorder) drop(e *logstore.Entry, reason string) {
	r.logger.Warn("dropping archive entry",
		"entry_id", e.ID,
		"reason", reason,
		"capacity", r.config.AsyncBuffer,
	)
	if r.config.OnDrop != nil {
		r.config.OnDrop()
	}
}

func (r *Recorder) worker() {
	defer r.wg.Done()

	for {
		select {
		case e := <-r.entries:
			r.write(e)
		case <-r.done:
			r.logger.Debug("draining archive queue", "pending", len(r.entries))
			for {
				select {
				case e := <-r.entries:
					r.write(e)
				default:
					return
				}
			}
		}
	}
}

func (r *Recorder) write(e *logstore.Entry) {
	ctx, cancel := context.WithTimeout(context.Background(), r.config.WriteTimeout)
	defer cancel()

	start := time.Now()
	if err := r.storage.Store(ctx, e); err != nil {
		r.logger.Error("failed to archive entry",
			"entry_id", e.ID,
			"error", err,
		)
		return
	}

	if d := time.Since(start); d > r.config.WriteTimeout/2 {
		r.logger.Warn("slow archive write",
			"entry_id", e.ID,
			"duration_ms", d.Milliseconds(),
		)
	}
}
