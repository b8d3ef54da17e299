// Package processor drains the ring buffer on a single goroutine,
// detects sequence gaps, and dispatches each record to storage (§4.5).
package processor

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"tickcapture/internal/ring"
	"tickcapture/internal/stats"
	"tickcapture/internal/tcerrors"
	"tickcapture/internal/wire"
)

// idleBackoff is the sleep applied when a drain finds the ring empty,
// to avoid spinning a core on a single-threaded hot loop.
const idleBackoff = 100 * time.Microsecond

// Sink is the storage stage's Store method, narrowed to the one call
// the processor needs.
type Sink interface {
	Store(record *wire.Record) error
}

// Processor is the sequencer-analog of §4.5: exactly one goroutine
// must call Run, matching the ring buffer's SPSC consumer contract.
type Processor struct {
	ring      *ring.Buffer
	pool      *ring.BatchPool
	sink      Sink
	stats     *stats.Capture
	log       *slog.Logger
	batchSize int
}

// New creates a Processor. batchSize bounds how many records are
// drained from the ring per iteration.
func New(buf *ring.Buffer, sink Sink, st *stats.Capture, log *slog.Logger, batchSize int) *Processor {
	return &Processor{
		ring:      buf,
		pool:      ring.NewBatchPool(batchSize),
		sink:      sink,
		stats:     st,
		log:       log,
		batchSize: batchSize,
	}
}

// Run drains the ring buffer until ctx is canceled, then keeps draining
// until the ring reports empty before returning: per §5, in-flight
// records at stop time are drained by the processor before it exits,
// provided capture has closed its socket and stopped producing (the
// supervisor cancels the same ctx for both, so capture stops enqueuing
// at essentially the same instant this loop starts honoring the
// cancellation). ctx is therefore only consulted once a drain comes
// back empty — a non-empty ring is always fully processed first, never
// abandoned mid-backlog. A fatal storage error (programmer-error
// symbol_id out of range) stops the loop and is returned to the
// caller, who is expected to bring the node down; every other error is
// logged and the loop continues.
func (p *Processor) Run(ctx context.Context) error {
	p.log.Info("processor started")
	for {
		batch := p.pool.Acquire()
		n := p.ring.PopBulk(batch)
		if n == 0 {
			p.pool.Release(batch)
			if ctx.Err() != nil {
				p.log.Info("processor stopping, ring drained")
				return nil
			}
			select {
			case <-ctx.Done():
			case <-time.After(idleBackoff):
			}
			continue
		}

		for i := 0; i < n; i++ {
			if err := p.processOne(&batch[i]); err != nil {
				var fatal *tcerrors.FatalSymbolError
				if errors.As(err, &fatal) {
					p.pool.Release(batch)
					return err
				}
			}
		}
		p.pool.Release(batch)
	}
}

// processOne follows the five steps of §4.5 in order: read last_sequence,
// compare for a gap, store the new last_sequence, dispatch to storage,
// then count the record as processed if the store succeeded (a
// non-fatal write error is counted in WriteErrors instead, and the
// record is not counted as processed). A gap — record.SequenceNumber
// strictly greater than last_sequence+1 — is informational: it is
// logged and counted, never treated as corruption or a reason to drop,
// because UDP multicast gives no delivery guarantee and gaps do not
// cause records to be dropped (§4.5, §7).
func (p *Processor) processOne(record *wire.Record) error {
	last := p.stats.LastSequence()
	if last > 0 && record.SequenceNumber > last+1 {
		p.log.Warn("sequence gap detected",
			slog.Uint64("last_sequence", last),
			slog.Uint64("got", record.SequenceNumber))
		p.stats.IncGapDetected()
	}
	p.stats.SetLastSequence(record.SequenceNumber)

	if err := p.sink.Store(record); err != nil {
		var fatal *tcerrors.FatalSymbolError
		if errors.As(err, &fatal) {
			p.log.Error("fatal symbol id, halting processor", slog.Any("error", err))
			return err
		}
		p.log.Warn("store failed", slog.Any("error", err))
		p.stats.IncWriteError()
		return nil
	}

	p.stats.IncProcessed()
	return nil
}
