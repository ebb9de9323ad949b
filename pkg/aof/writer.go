package aof

import (
	"bufio"
	"fmt"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/nubdb/nubdb/pkg/common/log"
	"github.com/nubdb/nubdb/pkg/config"
)

// Writer serializes mutation intents into the log file and flushes to
// stable storage per the configured policy. All appends and flushes are
// serialized by a single exclusive lock (spec section 4.2's "log mutex"),
// which the Compactor also acquires during the atomic swap in section 4.4.
type Writer struct {
	mu   sync.Mutex
	file *os.File
	buf  *bufio.Writer
	path string

	policy      config.FlushPolicy
	everyNOps   uint64
	everyNSecs  time.Duration

	opsSinceFlush atomic.Uint64
	logSizeBytes  atomic.Int64
	lastFlushUnix atomic.Int64

	logger log.Logger
}

// NewWriter opens (creating if necessary) the log file at path for
// appending and returns a Writer configured per cfg's flush policy.
func NewWriter(path string, cfg *config.Config) (*Writer, error) {
	file, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0644)
	if err != nil {
		return nil, fmt.Errorf("aof: failed to open log file: %w", err)
	}
	stat, err := file.Stat()
	if err != nil {
		file.Close()
		return nil, fmt.Errorf("aof: failed to stat log file: %w", err)
	}
	if _, err := file.Seek(0, os.SEEK_END); err != nil {
		file.Close()
		return nil, fmt.Errorf("aof: failed to seek to end of log file: %w", err)
	}

	w := &Writer{
		file:       file,
		buf:        bufio.NewWriterSize(file, 64*1024),
		path:       path,
		policy:     cfg.FlushPolicy,
		everyNOps:  cfg.FlushEveryNOps,
		everyNSecs: cfg.FlushEveryNSecs,
		logger:     log.NewComponentLogger("aof"),
	}
	w.logSizeBytes.Store(stat.Size())
	w.lastFlushUnix.Store(time.Now().Unix())
	return w, nil
}

// Append writes one frame for (op, key, value) and applies the flush
// policy. After Append returns without error and without a subsequent
// flush, the frame may still be held in the Writer's in-process buffer
// and is not yet durable.
func (w *Writer) Append(op uint8, key, value []byte) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	frame, err := Encode(time.Now().Unix(), op, key, value)
	if err != nil {
		return err
	}

	n, err := w.buf.Write(frame)
	if err != nil {
		w.logger.Error("append failed: %v", err)
		return fmt.Errorf("aof: append failed: %w", err)
	}

	w.logSizeBytes.Add(int64(n))
	w.opsSinceFlush.Add(1)

	return w.maybeFlushLocked()
}

// maybeFlushLocked flushes according to the active policy. Caller must
// hold w.mu.
func (w *Writer) maybeFlushLocked() error {
	switch w.policy {
	case config.FlushAlways:
		return w.flushLocked()
	case config.FlushEveryNOps:
		if w.opsSinceFlush.Load() >= w.everyNOps {
			return w.flushLocked()
		}
	case config.FlushEveryNSeconds:
		elapsed := time.Since(time.Unix(w.lastFlushUnix.Load(), 0))
		if elapsed >= w.everyNSecs {
			return w.flushLocked()
		}
	}
	return nil
}

// flushLocked flushes the buffer and syncs the file, then resets the
// counters. Caller must hold w.mu.
func (w *Writer) flushLocked() error {
	if err := w.buf.Flush(); err != nil {
		w.logger.Error("flush failed: %v", err)
		return fmt.Errorf("aof: flush failed: %w", err)
	}
	if err := w.file.Sync(); err != nil {
		w.logger.Error("sync failed: %v", err)
		return fmt.Errorf("aof: sync failed: %w", err)
	}
	w.opsSinceFlush.Store(0)
	w.lastFlushUnix.Store(time.Now().Unix())
	return nil
}

// ForceFlush unconditionally flushes and resets counters. Called on
// clean shutdown.
func (w *Writer) ForceFlush() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.flushLocked()
}

// LogSizeBytes returns the current tracked size of the log file. This is
// a heuristic counter, not a synchronization primitive (spec section 5).
func (w *Writer) LogSizeBytes() int64 { return w.logSizeBytes.Load() }

// OpsSinceFlush returns the number of appends since the last flush.
func (w *Writer) OpsSinceFlush() uint64 { return w.opsSinceFlush.Load() }

// Path returns the log file path.
func (w *Writer) Path() string { return w.path }

// Rotate performs spec section 4.4 steps 6-8 atomically under the log's
// exclusive lock: it closes the live log handle, renames tempPath over
// the live log path, reopens the new log for read-write, seeks to end,
// and resets logSizeBytes/opsSinceFlush to reflect the freshly-written
// file. The rename itself happens while this lock is held so no Append
// can interleave between "old file closed" and "new file live" — the
// rename is the linearization point the Compactor relies on.
func (w *Writer) Rotate(tempPath string) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if err := w.file.Close(); err != nil {
		return fmt.Errorf("aof: failed to close old log file: %w", err)
	}

	if err := os.Rename(tempPath, w.path); err != nil {
		return fmt.Errorf("aof: failed to rename compacted log into place: %w", err)
	}

	file, err := os.OpenFile(w.path, os.O_RDWR, 0644)
	if err != nil {
		return fmt.Errorf("aof: failed to reopen log file: %w", err)
	}
	stat, err := file.Stat()
	if err != nil {
		file.Close()
		return fmt.Errorf("aof: failed to stat reopened log file: %w", err)
	}
	if _, err := file.Seek(0, os.SEEK_END); err != nil {
		file.Close()
		return fmt.Errorf("aof: failed to seek reopened log file: %w", err)
	}

	w.file = file
	w.buf = bufio.NewWriterSize(file, 64*1024)
	w.logSizeBytes.Store(stat.Size())
	w.opsSinceFlush.Store(0)
	w.lastFlushUnix.Store(time.Now().Unix())

	return nil
}

// Close flushes and closes the underlying file.
func (w *Writer) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if err := w.flushLocked(); err != nil {
		return err
	}
	return w.file.Close()
}
