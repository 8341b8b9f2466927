package metrics

import (
	"context"
	"os"
	"sync"
	"time"
)

// Collector periodically refreshes the system gauges (uptime and
// database file size).
type Collector struct {
	metrics     *Metrics
	storagePath string
	interval    time.Duration
	startTime   time.Time

	stopOnce sync.Once
	stopCh   chan struct{}
	wg       sync.WaitGroup
}

// NewCollector creates a collector for the given metrics instance.
// storagePath points at the BoltDB file; empty disables the size gauge.
func NewCollector(m *Metrics, storagePath string, interval time.Duration) *Collector {
	if interval == 0 {
		interval = 5 * time.Second
	}
	return &Collector{
		metrics:     m,
		storagePath: storagePath,
		interval:    interval,
		startTime:   time.Now(),
		stopCh:      make(chan struct{}),
	}
}

// Start begins the background update loop.
func (c *Collector) Start(ctx context.Context) {
	c.wg.Add(1)
	go c.loop(ctx)
}

// Stop stops the update loop and waits for it to finish.
func (c *Collector) Stop() {
	c.stopOnce.Do(func() { close(c.stopCh) })
	c.wg.Wait()
}

func (c *Collector) loop(ctx context.Context) {
	defer c.wg.Done()

	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	c.collect()
	for {
		select {
		case <-ctx.Done():
			return
		case <-c.stopCh:
			return
		case <-ticker.C:
			c.collect()
		}
	}
}

func (c *Collector) collect() {
	c.metrics.UptimeSeconds.Set(time.Since(c.startTime).Seconds())

	if c.storagePath != "" {
		if info, err := os.Stat(c.storagePath); err == nil {
			c.metrics.StorageUsedBytes.Set(float64(info.Size()))
		}
	}
}
