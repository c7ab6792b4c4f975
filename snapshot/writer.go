package snapshot

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/gofrs/flock"

	"github.com/groc-prog/cache-nest/clock"
	"github.com/groc-prog/cache-nest/logger"
)

// Source is supplied by a driver so the Writer can pull a fresh Blob on
// every tick without the snapshot package knowing anything about entry
// tables or mutexes.
type Source func() Blob

// Writer periodically encodes the caller's current state and writes it
// atomically to disk (§4.7's write cadence: "a background timer fires
// every snapshotInterval seconds ... and atomically writes the blob").
// A write failure is logged and retried on the next tick; it never
// aborts the owning driver.
type Writer struct {
	path      string
	interval  time.Duration
	source    Source
	scheduler clock.Scheduler
	log       logger.ILogger
	codec     Codec

	mu     sync.Mutex
	timer  clock.Timer
	closed bool
}

// NewWriter builds a Writer that will write to path every interval once
// Start is called.
func NewWriter(path string, interval time.Duration, source Source, scheduler clock.Scheduler, log logger.ILogger) *Writer {
	if log == nil {
		log = logger.GetDefaultLogger()
	}
	return &Writer{
		path:      path,
		interval:  interval,
		source:    source,
		scheduler: scheduler,
		log:       log,
	}
}

// Start schedules the first write; each write reschedules the next one,
// so a slow write never causes overlapping ticks.
func (w *Writer) Start() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return
	}
	w.timer = w.scheduler.AfterFunc(w.interval, w.tick)
}

// Stop cancels the next scheduled write. Idempotent.
func (w *Writer) Stop() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.closed = true
	if w.timer != nil {
		w.timer.Stop()
	}
}

func (w *Writer) tick() {
	if err := w.WriteOnce(); err != nil {
		w.log.Errorf("snapshot: write to %s failed, will retry next interval: %v", w.path, err)
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return
	}
	w.timer = w.scheduler.AfterFunc(w.interval, w.tick)
}

// WriteOnce encodes the current blob and atomically replaces path: the
// blob is written to a sibling temp file, fsynced, then renamed over
// path, guarded by a flock on the sibling path.lock file, so a reader
// never observes a half-written file.
func (w *Writer) WriteOnce() error {
	blob := w.source()
	blob.WrittenAt = w.scheduler.Now()

	fileLock := flock.New(w.path + ".lock")
	if err := fileLock.Lock(); err != nil {
		return fmt.Errorf("acquiring snapshot lock: %w", err)
	}
	defer fileLock.Unlock()

	dir := filepath.Dir(w.path)
	tmp, err := os.CreateTemp(dir, ".snapshot-*.tmp")
	if err != nil {
		return fmt.Errorf("creating temp snapshot file: %w", err)
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath)

	if err := w.codec.Encode(tmp, blob); err != nil {
		tmp.Close()
		return fmt.Errorf("encoding snapshot: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("syncing snapshot: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("closing snapshot temp file: %w", err)
	}

	if err := os.Rename(tmpPath, w.path); err != nil {
		return fmt.Errorf("renaming snapshot into place: %w", err)
	}

	return nil
}

// ReadExisting decodes the snapshot currently at path, or returns
// os.ErrNotExist when no snapshot has been written yet.
func ReadExisting(path string) (Blob, error) {
	f, err := os.Open(path)
	if err != nil {
		return Blob{}, err
	}
	defer f.Close()

	return Codec{}.Decode(f)
}
