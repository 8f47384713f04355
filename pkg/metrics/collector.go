package metrics

import "time"

// DepthSource is anything that can report how many operations it has
// buffered; pkg/queue.Queue satisfies this.
type DepthSource interface {
	Depth() int
}

// KeyCounter reports the live key count for a type tag, for example
// len(storage.GetAllKeysSafe(store, typeTag)). This module ships no such
// function of its own; the caller of NewCollector supplies it.
type KeyCounter func(typeTag string) int

// Collector periodically samples a Queue's depth and a set of type-tag key
// counts into the package gauges, so QueueDepth and EntriesTotal stay
// current between operations rather than only updating on writes.
type Collector struct {
	depth    DepthSource
	counters map[string]KeyCounter
	interval time.Duration
	stopCh   chan struct{}
}

// NewCollector builds a Collector. counters maps a type tag (empty string
// for untyped/blob-level) to a function reporting its live key count.
func NewCollector(depth DepthSource, counters map[string]KeyCounter, interval time.Duration) *Collector {
	if interval <= 0 {
		interval = 15 * time.Second
	}
	return &Collector{
		depth:    depth,
		counters: counters,
		interval: interval,
		stopCh:   make(chan struct{}),
	}
}

// Start begins periodic sampling on its own goroutine.
func (c *Collector) Start() {
	ticker := time.NewTicker(c.interval)
	go func() {
		c.collect()
		for {
			select {
			case <-ticker.C:
				c.collect()
			case <-c.stopCh:
				ticker.Stop()
				return
			}
		}
	}()
}

// Stop ends periodic sampling.
func (c *Collector) Stop() {
	close(c.stopCh)
}

func (c *Collector) collect() {
	if c.depth != nil {
		QueueDepth.Set(float64(c.depth.Depth()))
	}
	for typeTag, count := range c.counters {
		EntriesTotal.WithLabelValues(typeTag).Set(float64(count(typeTag)))
	}
}
