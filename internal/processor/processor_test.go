package processor

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"tickcapture/internal/ring"
	"tickcapture/internal/stats"
	"tickcapture/internal/wire"
)

type recordingSink struct {
	stored []wire.Record
	err    error
}

func (s *recordingSink) Store(record *wire.Record) error {
	if s.err != nil {
		return s.err
	}
	s.stored = append(s.stored, *record)
	return nil
}

func newTestProcessor(sink Sink) (*Processor, *ring.Buffer, *stats.Capture) {
	buf := ring.New(64)
	st := stats.New()
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	return New(buf, sink, st, log, 16), buf, st
}

func sealedRecord(seq uint64) wire.Record {
	r := wire.Record{SequenceNumber: seq, SymbolID: 1, Type: wire.Trade}
	r.SetTrade(wire.TradeBody{Price: 10, Size: 1})
	wire.Seal(&r)
	return r
}

func TestProcessorDrainsAndStores(t *testing.T) {
	sink := &recordingSink{}
	p, buf, st := newTestProcessor(sink)

	for i := uint64(1); i <= 5; i++ {
		r := sealedRecord(i)
		buf.Push(&r)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- p.Run(ctx) }()

	deadline := time.Now().Add(200 * time.Millisecond)
	for len(sink.stored) < 5 && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	cancel()
	<-done

	if len(sink.stored) != 5 {
		t.Fatalf("stored %d records, want 5", len(sink.stored))
	}
	if st.Snapshot().Processed != 5 {
		t.Errorf("Processed = %d, want 5", st.Snapshot().Processed)
	}
}

func TestRunDrainsBacklogAfterCancelBeforeExiting(t *testing.T) {
	sink := &recordingSink{}
	p, buf, st := newTestProcessor(sink)

	const backlog = 40
	for i := uint64(1); i <= backlog; i++ {
		r := sealedRecord(i)
		if !buf.Push(&r) {
			t.Fatalf("push %d failed unexpectedly", i)
		}
	}

	// ctx is already canceled before Run is ever called: capture has
	// stopped producing and the stop flag is set, exactly as at
	// shutdown. Run must still drain every buffered record before
	// returning, per §5/§8 scenario 6.
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if err := p.Run(ctx); err != nil {
		t.Fatalf("Run returned error: %v", err)
	}

	if buf.Size() != 0 {
		t.Fatalf("ring size = %d after Run returned, want 0 (fully drained)", buf.Size())
	}
	if len(sink.stored) != backlog {
		t.Fatalf("stored %d records, want %d (backlog drained before exit)", len(sink.stored), backlog)
	}
	if st.Snapshot().Processed != backlog {
		t.Errorf("Processed = %d, want %d", st.Snapshot().Processed, backlog)
	}
}

func TestProcessOneLogsGapButContinues(t *testing.T) {
	sink := &recordingSink{}
	p, _, st := newTestProcessor(sink)

	r1 := sealedRecord(1)
	if err := p.processOne(&r1); err != nil {
		t.Fatal(err)
	}
	r3 := sealedRecord(3) // gap: expected 2
	if err := p.processOne(&r3); err != nil {
		t.Fatal(err)
	}

	if len(sink.stored) != 2 {
		t.Fatalf("stored %d records, want 2 (gap is informational, not fatal)", len(sink.stored))
	}
	if st.Snapshot().Processed != 2 {
		t.Errorf("Processed = %d, want 2", st.Snapshot().Processed)
	}
	if st.Snapshot().GapsDetected != 1 {
		t.Errorf("GapsDetected = %d, want 1", st.Snapshot().GapsDetected)
	}
}

func TestProcessOneReportsSingleGapForRun(t *testing.T) {
	sink := &recordingSink{}
	p, _, st := newTestProcessor(sink)

	for _, seq := range []uint64{1, 2, 3, 7, 8} {
		r := sealedRecord(seq)
		if err := p.processOne(&r); err != nil {
			t.Fatal(err)
		}
	}

	snap := st.Snapshot()
	if snap.Processed != 5 {
		t.Errorf("Processed = %d, want 5", snap.Processed)
	}
	if snap.GapsDetected != 1 {
		t.Errorf("GapsDetected = %d, want 1 (single observation for (3,7))", snap.GapsDetected)
	}
	if snap.Dropped != 0 || snap.Invalid != 0 {
		t.Errorf("a gap must not raise dropped or invalid counts")
	}
}

func TestProcessOneCountsWriteErrorWithoutHalting(t *testing.T) {
	sink := &recordingSink{err: errSentinel{}}
	p, _, st := newTestProcessor(sink)

	r := sealedRecord(1)
	if err := p.processOne(&r); err != nil {
		t.Fatalf("a retriable write error should not be returned: %v", err)
	}
	if st.Snapshot().WriteErrors != 1 {
		t.Errorf("WriteErrors = %d, want 1", st.Snapshot().WriteErrors)
	}
}

type errSentinel struct{}

func (errSentinel) Error() string { return "write failed" }
