package compaction

import (
	"sync"
	"time"

	"github.com/nubdb/nubdb/pkg/aof"
	"github.com/nubdb/nubdb/pkg/common/log"
)

// Coordinator runs the Compactor on a dedicated background goroutine,
// grounded on the teacher's compactionWorker ticker loop
// (pkg/compaction.DefaultCompactionCoordinator in kevo), adapted here to
// a single rewrite-or-skip decision based on log size rather than a
// multi-level SSTable compaction strategy.
type Coordinator struct {
	compactor *Compactor
	writer    *aof.Writer
	interval  time.Duration
	threshold int64
	logger    log.Logger

	// OnCycle, if set, is invoked after every wake with whether a
	// rewrite ran and the error (if any). Used by pkg/engine to update
	// its stats and Prometheus counters without this package depending
	// on pkg/metrics.
	OnCycle func(ran bool, err error)

	mu      sync.Mutex
	running bool
	stopCh  chan struct{}
	wg      sync.WaitGroup
}

// NewCoordinator creates a Coordinator that wakes every interval and
// triggers a rewrite when the log size reaches thresholdBytes.
func NewCoordinator(compactor *Compactor, writer *aof.Writer, interval time.Duration, thresholdBytes int64) *Coordinator {
	return &Coordinator{
		compactor: compactor,
		writer:    writer,
		interval:  interval,
		threshold: thresholdBytes,
		logger:    log.NewComponentLogger("compaction-coordinator"),
	}
}

// Start begins the background worker. Calling Start on an already-running
// Coordinator is a no-op.
func (c *Coordinator) Start() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.running {
		return
	}
	c.running = true
	c.stopCh = make(chan struct{})
	c.wg.Add(1)
	go c.loop(c.stopCh)
}

// Stop halts the background worker and waits for it to exit.
func (c *Coordinator) Stop() {
	c.mu.Lock()
	if !c.running {
		c.mu.Unlock()
		return
	}
	c.running = false
	close(c.stopCh)
	c.mu.Unlock()

	c.wg.Wait()
}

func (c *Coordinator) loop(stopCh chan struct{}) {
	defer c.wg.Done()

	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	for {
		select {
		case <-stopCh:
			return
		case <-ticker.C:
			c.tick()
		}
	}
}

func (c *Coordinator) tick() {
	if c.writer.LogSizeBytes() < c.threshold {
		if c.OnCycle != nil {
			c.OnCycle(false, nil)
		}
		return
	}

	err := c.compactor.Rewrite()
	if err != nil {
		c.logger.Error("compaction cycle failed, will retry next interval: %v", err)
	}
	if c.OnCycle != nil {
		c.OnCycle(true, err)
	}
}

// TriggerNow forces a rewrite attempt outside the ticker schedule,
// regardless of the size threshold. Intended for tests and
// administrative use.
func (c *Coordinator) TriggerNow() error {
	return c.compactor.Rewrite()
}
