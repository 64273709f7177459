// Package stats tracks lightweight process counters for the memory service.
// Counters are in-memory only and reset on restart; durable counts (memories,
// vectors) come from the store and index at read time.
package stats

import (
	"sync/atomic"
	"time"
)

// Collector accumulates service counters. All methods are safe for
// concurrent use.
type Collector struct {
	startedAt time.Time

	searches    atomic.Int64
	vectorSkips atomic.Int64
	creates     atomic.Int64
	distills    atomic.Int64

	lastSearchUnix atomic.Int64
}

// NewCollector creates a collector with the uptime clock starting now.
func NewCollector() *Collector {
	return &Collector{
		startedAt: time.Now(),
	}
}

// RecordSearch records one search request.
func (c *Collector) RecordSearch() {
	c.searches.Add(1)
	c.lastSearchUnix.Store(time.Now().Unix())
}

// RecordVectorSkip records a search that fell back to lexical-only because
// the vector leg was unavailable or failed.
func (c *Collector) RecordVectorSkip() {
	c.vectorSkips.Add(1)
}

// RecordCreate records one stored memory (single or batch member).
func (c *Collector) RecordCreate() {
	c.creates.Add(1)
}

// RecordDistill records one distilled event.
func (c *Collector) RecordDistill() {
	c.distills.Add(1)
}

// Snapshot is a point-in-time copy of the counters.
type Snapshot struct {
	Searches      int64     `json:"searches"`
	VectorSkips   int64     `json:"vectorSkips"`
	Creates       int64     `json:"creates"`
	Distills      int64     `json:"distills"`
	LastSearchAt  time.Time `json:"lastSearchAt"`
	UptimeSeconds int64     `json:"uptimeSeconds"`
}

// Snapshot returns a copy of the current counters.
func (c *Collector) Snapshot() Snapshot {
	snap := Snapshot{
		Searches:      c.searches.Load(),
		VectorSkips:   c.vectorSkips.Load(),
		Creates:       c.creates.Load(),
		Distills:      c.distills.Load(),
		UptimeSeconds: int64(time.Since(c.startedAt).Seconds()),
	}
	if ts := c.lastSearchUnix.Load(); ts > 0 {
		snap.LastSearchAt = time.Unix(ts, 0)
	}
	return snap
}
