// Package coordinator implements the pluggable status/heartbeat
// gossip transport of §4.8: a thin interface plus one websocket
// implementation grounded on the teacher's exchange-worker
// dial/reconnect/backoff loops.
package coordinator

import (
	"context"
	"encoding/json"
	"time"
)

// StatusMessage is published by this node once per second. node_id is
// the §4.8/§9 fix for the original's hard-coded peer identity: every
// message this process emits carries its own durable node id.
type StatusMessage struct {
	Type   string `json:"type"`
	NodeID string `json:"node_id"`
	Stats  struct {
		Received  uint64 `json:"received"`
		Processed uint64 `json:"processed"`
		Dropped   uint64 `json:"dropped"`
	} `json:"stats"`
}

// HeartbeatMessage is the minimal liveness frame exchanged between peers.
type HeartbeatMessage struct {
	Type      string `json:"type"`
	NodeID    string `json:"node_id"`
	Timestamp int64  `json:"timestamp"`
}

// PeerStatusMessage is a StatusMessage as observed from the wire, with
// the time it was received attached for the Fleet Registry.
type PeerStatusMessage struct {
	NodeID     string
	Received   uint64
	Processed  uint64
	Dropped    uint64
	ObservedAt time.Time
}

// Channel is the pluggable coordinator transport. Publish is used by
// the Status Publisher; Subscribe is drained by the Fleet Registry's
// peer-observation loop. Both must tolerate the coordinator endpoint
// being unreachable without blocking their caller.
type Channel interface {
	Publish(ctx context.Context, msg StatusMessage) error
	Subscribe(ctx context.Context) (<-chan PeerStatusMessage, error)
	Close() error
}

func decodeFrame(raw []byte) (any, error) {
	var probe struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(raw, &probe); err != nil {
		return nil, err
	}
	switch probe.Type {
	case "status":
		var msg StatusMessage
		if err := json.Unmarshal(raw, &msg); err != nil {
			return nil, err
		}
		return msg, nil
	case "heartbeat":
		var msg HeartbeatMessage
		if err := json.Unmarshal(raw, &msg); err != nil {
			return nil, err
		}
		return msg, nil
	default:
		return nil, nil
	}
}
