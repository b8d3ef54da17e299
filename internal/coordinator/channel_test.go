package coordinator

import (
	"io"
	"log/slog"
	"testing"
	"time"
)

func TestDecodeFrameStatus(t *testing.T) {
	raw := []byte(`{"type":"status","node_id":"abc","stats":{"received":10,"processed":9,"dropped":1}}`)
	decoded, err := decodeFrame(raw)
	if err != nil {
		t.Fatal(err)
	}
	msg, ok := decoded.(StatusMessage)
	if !ok {
		t.Fatalf("decoded type = %T, want StatusMessage", decoded)
	}
	if msg.NodeID != "abc" || msg.Stats.Received != 10 {
		t.Errorf("unexpected decode: %+v", msg)
	}
}

func TestDecodeFrameHeartbeat(t *testing.T) {
	raw := []byte(`{"type":"heartbeat","node_id":"abc","timestamp":123}`)
	decoded, err := decodeFrame(raw)
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := decoded.(HeartbeatMessage); !ok {
		t.Fatalf("decoded type = %T, want HeartbeatMessage", decoded)
	}
}

func TestDecodeFrameUnknownType(t *testing.T) {
	raw := []byte(`{"type":"bogus"}`)
	decoded, err := decodeFrame(raw)
	if err != nil {
		t.Fatal(err)
	}
	if decoded != nil {
		t.Errorf("expected nil for unrecognized frame type, got %v", decoded)
	}
}

func TestBackoffCapsAtMaxDelay(t *testing.T) {
	if d := backoff(0); d != baseDelay {
		t.Errorf("backoff(0) = %v, want %v", d, baseDelay)
	}
	if d := backoff(20); d != maxDelay {
		t.Errorf("backoff(20) = %v, want capped at %v", d, maxDelay)
	}
}

func TestHandleFrameQueuesStatusAsPeerMessage(t *testing.T) {
	w := New("ws://unused", slog.New(slog.NewTextHandler(io.Discard, nil)))
	raw := []byte(`{"type":"status","node_id":"peer-1","stats":{"received":5,"processed":4,"dropped":1}}`)
	w.handleFrame(raw)

	select {
	case peer := <-w.out:
		if peer.NodeID != "peer-1" || peer.Processed != 4 {
			t.Errorf("unexpected peer message: %+v", peer)
		}
	case <-time.After(time.Second):
		t.Fatal("expected a peer status message to be queued")
	}
}

func TestHandleFrameIgnoresHeartbeat(t *testing.T) {
	w := New("ws://unused", slog.New(slog.NewTextHandler(io.Discard, nil)))
	w.handleFrame([]byte(`{"type":"heartbeat","node_id":"peer-1","timestamp":1}`))

	select {
	case peer := <-w.out:
		t.Fatalf("heartbeat should not be queued as a peer status: %+v", peer)
	case <-time.After(50 * time.Millisecond):
	}
}
