// Package stats holds the atomic counters the capture pipeline updates
// and the eventually-consistent snapshot operators read from them.
package stats

import (
	"sync/atomic"
	"time"
)

// Capture is the set of counters updated by the capture and processor
// stages. Each field is an independent atomic; a Snapshot is
// therefore not linearizable across fields — treat it as eventually
// consistent, never derive invariants from cross-counter equalities
// without quiescing the pipeline first.
type Capture struct {
	received        atomic.Uint64
	processed       atomic.Uint64
	dropped         atomic.Uint64
	invalid         atomic.Uint64
	checksumErrors  atomic.Uint64
	writeErrors     atomic.Uint64
	catalogErrors   atomic.Uint64
	lastSequence    atomic.Uint64
	gapsDetected    atomic.Uint64

	startedAt time.Time
}

// New creates a Capture stats block with its rate clock started now.
func New() *Capture {
	return &Capture{startedAt: time.Now()}
}

func (c *Capture) IncReceived()       { c.received.Add(1) }
func (c *Capture) IncDropped()        { c.dropped.Add(1) }
func (c *Capture) IncInvalid()        { c.invalid.Add(1) }
func (c *Capture) IncChecksumError()  { c.checksumErrors.Add(1) }
func (c *Capture) IncProcessed()      { c.processed.Add(1) }
func (c *Capture) IncWriteError()     { c.writeErrors.Add(1) }
func (c *Capture) IncCatalogError()   { c.catalogErrors.Add(1) }
func (c *Capture) IncGapDetected()    { c.gapsDetected.Add(1) }

// GapsDetected returns the lifetime count of sequence gaps observed by
// the processor. A gap is informational per §4.5/§7, never an error.
func (c *Capture) GapsDetected() uint64 { return c.gapsDetected.Load() }

// SetLastSequence stores the most recently processed sequence number.
// The processor is the sole writer; it uses relaxed (plain atomic
// store) ordering per §4.5 — Go's atomic package offers no weaker mode.
func (c *Capture) SetLastSequence(seq uint64) { c.lastSequence.Store(seq) }

// LastSequence returns the most recently processed sequence number.
func (c *Capture) LastSequence() uint64 { return c.lastSequence.Load() }

// Snapshot is a point-in-time, non-atomic-as-a-whole view of Capture.
type Snapshot struct {
	Received       uint64
	Processed      uint64
	Dropped        uint64
	Invalid        uint64
	ChecksumErrors uint64
	WriteErrors    uint64
	CatalogErrors  uint64
	LastSequence   uint64
	GapsDetected   uint64
	RatePerSecond  float64
	Since          time.Time
}

// Snapshot takes an eventually-consistent reading of every counter.
func (c *Capture) Snapshot() Snapshot {
	processed := c.processed.Load()
	elapsed := time.Since(c.startedAt).Seconds()
	var rate float64
	if elapsed > 0 {
		rate = float64(processed) / elapsed
	}
	return Snapshot{
		Received:       c.received.Load(),
		Processed:      processed,
		Dropped:        c.dropped.Load(),
		Invalid:        c.invalid.Load(),
		ChecksumErrors: c.checksumErrors.Load(),
		WriteErrors:    c.writeErrors.Load(),
		CatalogErrors:  c.catalogErrors.Load(),
		LastSequence:   c.lastSequence.Load(),
		GapsDetected:   c.gapsDetected.Load(),
		RatePerSecond:  rate,
		Since:          c.startedAt,
	}
}

// Reset clears all counters. Intended for test use only.
func (c *Capture) Reset() {
	c.received.Store(0)
	c.processed.Store(0)
	c.dropped.Store(0)
	c.invalid.Store(0)
	c.checksumErrors.Store(0)
	c.writeErrors.Store(0)
	c.catalogErrors.Store(0)
	c.lastSequence.Store(0)
	c.gapsDetected.Store(0)
	c.startedAt = time.Now()
}
