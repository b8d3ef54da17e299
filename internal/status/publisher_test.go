package status

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"tickcapture/internal/coordinator"
	"tickcapture/internal/stats"
)

type fakeChannel struct {
	published []coordinator.StatusMessage
	err       error
}

func (f *fakeChannel) Publish(ctx context.Context, msg coordinator.StatusMessage) error {
	if f.err != nil {
		return f.err
	}
	f.published = append(f.published, msg)
	return nil
}

func (f *fakeChannel) Subscribe(ctx context.Context) (<-chan coordinator.PeerStatusMessage, error) {
	return nil, nil
}

func (f *fakeChannel) Close() error { return nil }

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestTickPublishesSnapshotWithNodeID(t *testing.T) {
	st := stats.New()
	st.IncReceived()
	st.IncProcessed()

	ch := &fakeChannel{}
	p := New(st, testLogger(), ch, "node-xyz")
	p.tick(context.Background())

	if len(ch.published) != 1 {
		t.Fatalf("published %d messages, want 1", len(ch.published))
	}
	msg := ch.published[0]
	if msg.NodeID != "node-xyz" || msg.Type != "status" {
		t.Errorf("unexpected message: %+v", msg)
	}
	if msg.Stats.Processed != 1 {
		t.Errorf("Stats.Processed = %d, want 1", msg.Stats.Processed)
	}
}

func TestTickWithNilChannelNeverPanics(t *testing.T) {
	st := stats.New()
	p := New(st, testLogger(), nil, "node-xyz")
	p.tick(context.Background())
}

func TestTickCountsPublishFailureWithoutPanicking(t *testing.T) {
	st := stats.New()
	ch := &fakeChannel{err: errors.New("connection refused")}
	p := New(st, testLogger(), ch, "node-xyz")

	p.tick(context.Background())
	p.tick(context.Background())

	if p.PublishFailures() != 2 {
		t.Errorf("PublishFailures() = %d, want 2", p.PublishFailures())
	}
}
