// Package compaction implements the background log rewrite described in
// spec section 4.4: under a shared index lock it snapshots the live
// entries into a temporary file, then atomically renames it over the
// live log while writers continue to append to the old file up until
// the swap.
package compaction

import (
	"bufio"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/nubdb/nubdb/pkg/aof"
	"github.com/nubdb/nubdb/pkg/common/log"
	"github.com/nubdb/nubdb/pkg/hashindex"
)

// nower returns the current unix time. Overridable in tests.
type nower func() int64

func defaultNow() int64 { return time.Now().Unix() }

// Compactor owns the one-shot rewrite algorithm. It does not decide when
// to run — that is the Coordinator's job — so it can also be triggered
// directly (e.g. from an administrative command).
type Compactor struct {
	idx     *hashindex.Index
	idxLock *sync.RWMutex
	writer  *aof.Writer
	logger  log.Logger
	now     nower

	mu sync.Mutex // ensures only one rewrite runs at a time
}

// New creates a Compactor over idx (guarded by idxLock) and writer. Both
// idx and writer must be the same instances the Storage Engine uses for
// user operations.
func New(idx *hashindex.Index, idxLock *sync.RWMutex, writer *aof.Writer) *Compactor {
	return &Compactor{
		idx:     idx,
		idxLock: idxLock,
		writer:  writer,
		logger:  log.NewComponentLogger("compactor"),
		now:     defaultNow,
	}
}

// Rewrite performs one full compaction cycle (spec section 4.4, steps
// 1-8). Any I/O error during the snapshot phase aborts the rewrite: the
// temp file is removed, the live log and live index are untouched, and
// the error is returned for the caller to log and retry later.
func (c *Compactor) Rewrite() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	tempPath := c.writer.Path() + ".tmp"

	if err := c.snapshotToTemp(tempPath); err != nil {
		os.Remove(tempPath)
		c.logger.Error("compaction snapshot failed: %v", err)
		return fmt.Errorf("compaction: snapshot failed: %w", err)
	}

	if err := c.writer.Rotate(tempPath); err != nil {
		os.Remove(tempPath)
		c.logger.Error("compaction rotate failed: %v", err)
		return fmt.Errorf("compaction: rotate failed: %w", err)
	}

	return nil
}

// snapshotToTemp implements spec section 4.4 steps 1-5: it takes the
// shared index lock, writes a SET frame for every live (non-expired)
// entry to a freshly-truncated temp file, and flushes it to stable
// storage before releasing the lock.
func (c *Compactor) snapshotToTemp(tempPath string) error {
	file, err := os.OpenFile(tempPath, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0644)
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	defer file.Close()

	buf := bufio.NewWriterSize(file, 64*1024)

	c.idxLock.RLock()
	defer c.idxLock.RUnlock()
	var iterErr error
	c.idx.ForEach(func(e hashindex.Entry) {
		if iterErr != nil {
			return
		}
		if e.Value.ExpiresAt > 0 && c.now() >= e.Value.ExpiresAt {
			return // TTL-expired entries may be skipped, per spec.
		}
		frame, err := aof.Encode(c.now(), aof.OpSet, e.Key, e.Value.Bytes)
		if err != nil {
			iterErr = err
			return
		}
		if _, err := buf.Write(frame); err != nil {
			iterErr = err
		}
	})

	if iterErr != nil {
		return iterErr
	}

	if err := buf.Flush(); err != nil {
		return fmt.Errorf("failed to flush temp file: %w", err)
	}
	if err := file.Sync(); err != nil {
		return fmt.Errorf("failed to sync temp file: %w", err)
	}

	return nil
}
