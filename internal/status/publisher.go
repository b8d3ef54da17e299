// Package status implements the Status Publisher of §4.6: a periodic
// stats snapshot logged for operators and, if a Coordinator Channel is
// configured, published as a JSON status message.
package status

import (
	"context"
	"log/slog"
	"time"

	"github.com/dustin/go-humanize"

	"tickcapture/internal/coordinator"
	"tickcapture/internal/stats"
)

const interval = 1 * time.Second
const publishTimeout = 500 * time.Millisecond

// Publisher reads a stats.Capture snapshot every second, logs a
// human-readable line, and optionally publishes it over a
// coordinator.Channel. It never blocks capture, processing, or storage:
// a failed publish is logged and counted, never retried synchronously.
type Publisher struct {
	stats   *stats.Capture
	log     *slog.Logger
	channel coordinator.Channel // nil disables publishing
	nodeID  string

	publishFailures int
}

// New creates a Publisher. channel may be nil.
func New(st *stats.Capture, log *slog.Logger, channel coordinator.Channel, nodeID string) *Publisher {
	return &Publisher{stats: st, log: log, channel: channel, nodeID: nodeID}
}

// Run ticks once per second until ctx is canceled.
func (p *Publisher) Run(ctx context.Context) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.tick(ctx)
		}
	}
}

func (p *Publisher) tick(ctx context.Context) {
	snap := p.stats.Snapshot()

	p.log.Info("capture stats",
		slog.Uint64("received", snap.Received),
		slog.Uint64("processed", snap.Processed),
		slog.Uint64("dropped", snap.Dropped),
		slog.Uint64("invalid", snap.Invalid),
		slog.String("rate", humanize.SIWithDigits(snap.RatePerSecond, 1, "msg/s")),
		slog.Uint64("last_sequence", snap.LastSequence))

	if p.channel == nil {
		return
	}

	msg := coordinator.StatusMessage{Type: "status", NodeID: p.nodeID}
	msg.Stats.Received = snap.Received
	msg.Stats.Processed = snap.Processed
	msg.Stats.Dropped = snap.Dropped

	pubCtx, cancel := context.WithTimeout(ctx, publishTimeout)
	defer cancel()
	if err := p.channel.Publish(pubCtx, msg); err != nil {
		p.publishFailures++
		p.log.Warn("status publish failed", slog.Any("error", err))
	}
}

// PublishFailures returns the lifetime count of failed publish attempts.
func (p *Publisher) PublishFailures() int { return p.publishFailures }
