// Package engine implements the top-level Storage Engine surface: it
// owns the hash index and the optional AOF writer, enforces the lock
// ordering and TTL discipline of spec section 5, and exposes the public
// operations (set, get, delete, exists, increment, size, clear,
// cleanup_expired) described in spec section 4.5.
package engine

import (
	"fmt"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/nubdb/nubdb/pkg/aof"
	"github.com/nubdb/nubdb/pkg/common/log"
	"github.com/nubdb/nubdb/pkg/compaction"
	"github.com/nubdb/nubdb/pkg/config"
	"github.com/nubdb/nubdb/pkg/hashindex"
	"github.com/nubdb/nubdb/pkg/metrics"
)

// EngineStats tracks operation counters as atomics, mirroring the
// teacher's pkg/engine.EngineStats. Snapshot via Stats().
type EngineStats struct {
	SetOps        atomic.Uint64
	GetOps        atomic.Uint64
	GetHits       atomic.Uint64
	GetMisses     atomic.Uint64
	DeleteOps     atomic.Uint64
	DeleteHits    atomic.Uint64
	IncrOps       atomic.Uint64
	ExistsOps     atomic.Uint64
	ExpiredReaped atomic.Uint64
	WriteErrors   atomic.Uint64
	CompactionsRun atomic.Uint64
}

// StatsSnapshot is a point-in-time copy of EngineStats safe to read
// without further synchronization.
type StatsSnapshot struct {
	SetOps, GetOps, GetHits, GetMisses     uint64
	DeleteOps, DeleteHits, IncrOps         uint64
	ExistsOps, ExpiredReaped, WriteErrors  uint64
	CompactionsRun                         uint64
}

// Engine is the top-level, independently-constructible storage engine.
// Multiple Engines with distinct AOF paths may coexist in one process
// (spec section 9's "no global state" note).
type Engine struct {
	cfg *config.Config

	idx     *hashindex.Index
	idxLock sync.RWMutex

	writer      *aof.Writer // nil when durability is disabled
	compactor   *compaction.Compactor
	coordinator *compaction.Coordinator

	metrics  *metrics.Collectors
	stats    EngineStats
	opsCount atomic.Uint64

	logger log.Logger
	closed atomic.Bool
}

// New constructs an Engine from cfg. If cfg.AOFPath is empty, the engine
// runs purely in-memory: no replay, no writer, no compaction worker.
// Otherwise the log is replayed into a fresh index before the writer is
// opened, and a compaction Coordinator is started immediately.
func New(cfg *config.Config) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("engine: invalid config: %w", err)
	}

	idx := hashindex.New(cfg.InitialCapacity, cfg.LoadFactorPercent)

	e := &Engine{
		cfg:    cfg,
		idx:    idx,
		logger: log.NewComponentLogger("engine"),
	}

	if cfg.AOFPath == "" {
		return e, nil
	}

	if err := aof.Replay(cfg.AOFPath, idx); err != nil {
		return nil, fmt.Errorf("engine: replay failed: %w", err)
	}

	writer, err := aof.NewWriter(cfg.AOFPath, cfg)
	if err != nil {
		return nil, fmt.Errorf("engine: failed to open log: %w", err)
	}
	e.writer = writer
	e.compactor = compaction.New(idx, &e.idxLock, writer)
	e.coordinator = compaction.NewCoordinator(e.compactor, writer, cfg.CompactionInterval, cfg.RewriteThresholdBytes)
	e.coordinator.OnCycle = e.onCompactionCycle
	e.coordinator.Start()

	return e, nil
}

// SetMetrics attaches Prometheus collectors. Must be called before any
// concurrent operation begins observing them; typically wired once at
// startup by cmd/nubdb.
func (e *Engine) SetMetrics(c *metrics.Collectors) { e.metrics = c }

func (e *Engine) onCompactionCycle(ran bool, err error) {
	if ran && err == nil {
		e.stats.CompactionsRun.Add(1)
	}
	if e.metrics != nil {
		e.metrics.ObserveCompaction(ran, 0, err)
	}
}

func validateKey(key string) error {
	if len(key) == 0 {
		return ErrKeyEmpty
	}
	if len(key) > config.KeyMax {
		return ErrKeyTooLarge
	}
	if strings.ContainsAny(key, " \n\r") {
		return ErrKeyInvalid
	}
	return nil
}

func isExpired(rec hashindex.Record, now int64) bool {
	return rec.ExpiresAt > 0 && now >= rec.ExpiresAt
}

// Set stores value under key with an optional TTL (ttlSeconds == 0 means
// no expiry; a negative TTL is rejected with ErrInvalidTTL). The mutation is applied to the index before the AOF
// append; an append failure is returned to the caller with the mutation
// already visible in memory (spec section 4.5's at-least-once contract).
func (e *Engine) Set(key string, value []byte, ttlSeconds int64) (err error) {
	if e.closed.Load() {
		return ErrEngineClosed
	}
	if err := validateKey(key); err != nil {
		return err
	}
	if len(value) > config.ValueMax {
		return ErrValueTooLarge
	}
	if ttlSeconds < 0 {
		return ErrInvalidTTL
	}

	owned := append([]byte(nil), value...)
	var expiresAt int64
	now := time.Now().Unix()
	if ttlSeconds > 0 {
		expiresAt = now + ttlSeconds
	}

	e.idxLock.Lock()
	defer e.idxLock.Unlock()

	e.idx.Put([]byte(key), hashindex.Record{Bytes: owned, ExpiresAt: expiresAt})
	e.stats.SetOps.Add(1)

	if e.writer != nil {
		if werr := e.writer.Append(aof.OpSet, []byte(key), owned); werr != nil {
			e.stats.WriteErrors.Add(1)
			err = fmt.Errorf("engine: set: %w", werr)
		}
	}

	e.maybeCleanupLocked(now)

	if e.metrics != nil {
		e.metrics.ObserveOp("set", err)
	}
	return err
}

// Get returns a copy of the value stored under key. The boolean result
// is false if the key is absent or logically expired; expired entries
// are left in place for lazy cleanup (spec section 4.5 / 9).
func (e *Engine) Get(key string) ([]byte, bool, error) {
	if e.closed.Load() {
		return nil, false, ErrEngineClosed
	}

	e.idxLock.RLock()
	defer e.idxLock.RUnlock()

	rec, ok := e.idx.Get([]byte(key))
	e.stats.GetOps.Add(1)

	if !ok || isExpired(rec, time.Now().Unix()) {
		e.stats.GetMisses.Add(1)
		if e.metrics != nil {
			e.metrics.ObserveOp("get", nil)
		}
		return nil, false, nil
	}

	e.stats.GetHits.Add(1)
	out := append([]byte(nil), rec.Bytes...)
	if e.metrics != nil {
		e.metrics.ObserveOp("get", nil)
	}
	return out, true, nil
}

// Delete removes key if present, appending a DELETE frame only when a
// removal actually occurred.
func (e *Engine) Delete(key string) (removed bool, err error) {
	if e.closed.Load() {
		return false, ErrEngineClosed
	}

	e.idxLock.Lock()
	defer e.idxLock.Unlock()

	removed = e.idx.Remove([]byte(key))
	if removed {
		e.stats.DeleteHits.Add(1)
		if e.writer != nil {
			if werr := e.writer.Append(aof.OpDelete, []byte(key), nil); werr != nil {
				e.stats.WriteErrors.Add(1)
				err = fmt.Errorf("engine: delete: %w", werr)
			}
		}
	}
	e.stats.DeleteOps.Add(1)
	e.maybeCleanupLocked(time.Now().Unix())

	if e.metrics != nil {
		e.metrics.ObserveOp("delete", err)
	}
	return removed, err
}

// Exists reports whether key is present and unexpired, without copying
// its value.
func (e *Engine) Exists(key string) (bool, error) {
	if e.closed.Load() {
		return false, ErrEngineClosed
	}

	e.idxLock.RLock()
	defer e.idxLock.RUnlock()

	rec, ok := e.idx.Get([]byte(key))
	e.stats.ExistsOps.Add(1)
	if !ok || isExpired(rec, time.Now().Unix()) {
		return false, nil
	}
	return true, nil
}

// Increment parses the current value as a base-10 signed 64-bit integer
// (treating an absent or non-numeric value as 0), adds delta, stores the
// base-10 text of the result with its TTL cleared, and returns the new
// value.
func (e *Engine) Increment(key string, delta int64) (newValue int64, err error) {
	if e.closed.Load() {
		return 0, ErrEngineClosed
	}
	if err := validateKey(key); err != nil {
		return 0, err
	}

	e.idxLock.Lock()
	defer e.idxLock.Unlock()

	now := time.Now().Unix()
	var current int64
	if rec, ok := e.idx.Get([]byte(key)); ok && !isExpired(rec, now) {
		if parsed, perr := strconv.ParseInt(string(rec.Bytes), 10, 64); perr == nil {
			current = parsed
		}
	}

	newValue = current + delta
	text := []byte(strconv.FormatInt(newValue, 10))

	e.idx.Put([]byte(key), hashindex.Record{Bytes: text, ExpiresAt: 0})
	e.stats.IncrOps.Add(1)

	if e.writer != nil {
		if werr := e.writer.Append(aof.OpSet, []byte(key), text); werr != nil {
			e.stats.WriteErrors.Add(1)
			err = fmt.Errorf("engine: increment: %w", werr)
		}
	}
	e.maybeCleanupLocked(now)

	if e.metrics != nil {
		e.metrics.ObserveOp("increment", err)
	}
	return newValue, err
}

// Size returns the number of entries currently in the index, which may
// include ghost-expired keys pending lazy cleanup (spec section 9).
func (e *Engine) Size() (int, error) {
	if e.closed.Load() {
		return 0, ErrEngineClosed
	}
	e.idxLock.RLock()
	defer e.idxLock.RUnlock()
	return e.idx.Count(), nil
}

// Clear empties the index. No log entry is appended: after Clear
// followed by a crash, replay restores every key present before Clear
// (spec section 9).
func (e *Engine) Clear() error {
	if e.closed.Load() {
		return ErrEngineClosed
	}
	e.idxLock.Lock()
	defer e.idxLock.Unlock()
	e.idx.Clear()
	return nil
}

// CleanupExpired removes every logically-expired entry and returns the
// count removed. It appends no log entries.
func (e *Engine) CleanupExpired() (int, error) {
	if e.closed.Load() {
		return 0, ErrEngineClosed
	}
	e.idxLock.Lock()
	defer e.idxLock.Unlock()
	return e.cleanupExpiredLocked(time.Now().Unix()), nil
}

// cleanupExpiredLocked assumes the caller already holds idxLock for
// writing. Iteration collects candidates first since Index.ForEach
// forbids mutation mid-iteration.
func (e *Engine) cleanupExpiredLocked(now int64) int {
	var expired [][]byte
	e.idx.ForEach(func(en hashindex.Entry) {
		if isExpired(en.Value, now) {
			k := make([]byte, len(en.Key))
			copy(k, en.Key)
			expired = append(expired, k)
		}
	})
	for _, k := range expired {
		e.idx.Remove(k)
	}
	if len(expired) > 0 {
		e.stats.ExpiredReaped.Add(uint64(len(expired)))
	}
	return len(expired)
}

// maybeCleanupLocked drives spec section 4.5's "called periodically ...
// every 100 operations" recommendation from inside the engine itself,
// so callers need not remember to invoke CleanupExpired. Caller must
// already hold idxLock exclusively.
func (e *Engine) maybeCleanupLocked(now int64) {
	interval := e.cfg.CleanupOpsInterval
	if interval <= 0 {
		return
	}
	n := e.opsCount.Add(1)
	if n%uint64(interval) == 0 {
		e.cleanupExpiredLocked(now)
	}
}

// LogSizeBytes returns the tracked size of the AOF log, or 0 if
// durability is disabled.
func (e *Engine) LogSizeBytes() int64 {
	if e.writer == nil {
		return 0
	}
	return e.writer.LogSizeBytes()
}

// MaxProbeLength returns the largest PSL observed across occupied index
// slots, exposed for the index_max_probe_length gauge.
func (e *Engine) MaxProbeLength() uint32 {
	e.idxLock.RLock()
	defer e.idxLock.RUnlock()
	return e.idx.MaxPSL()
}

// Stats returns a point-in-time snapshot of the engine's counters.
func (e *Engine) Stats() StatsSnapshot {
	return StatsSnapshot{
		SetOps:         e.stats.SetOps.Load(),
		GetOps:         e.stats.GetOps.Load(),
		GetHits:        e.stats.GetHits.Load(),
		GetMisses:      e.stats.GetMisses.Load(),
		DeleteOps:      e.stats.DeleteOps.Load(),
		DeleteHits:     e.stats.DeleteHits.Load(),
		IncrOps:        e.stats.IncrOps.Load(),
		ExistsOps:      e.stats.ExistsOps.Load(),
		ExpiredReaped:  e.stats.ExpiredReaped.Load(),
		WriteErrors:    e.stats.WriteErrors.Load(),
		CompactionsRun: e.stats.CompactionsRun.Load(),
	}
}

// TriggerCompaction forces an immediate rewrite, bypassing the
// Coordinator's size threshold and schedule. Returns an error if
// durability is disabled.
func (e *Engine) TriggerCompaction() error {
	if e.coordinator == nil {
		return fmt.Errorf("engine: compaction unavailable: durability disabled")
	}
	return e.coordinator.TriggerNow()
}

// Close stops the compaction worker (if any) and flushes and closes the
// log (spec section 3's "torn down on shutdown with a final flush").
func (e *Engine) Close() error {
	if !e.closed.CompareAndSwap(false, true) {
		return nil
	}
	if e.coordinator != nil {
		e.coordinator.Stop()
	}
	if e.writer != nil {
		if err := e.writer.ForceFlush(); err != nil {
			e.logger.Error("final flush failed: %v", err)
			return fmt.Errorf("engine: final flush failed: %w", err)
		}
		return e.writer.Close()
	}
	return nil
}
