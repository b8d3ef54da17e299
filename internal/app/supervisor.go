// Package app wires the capture pipeline's stages into one Node and
// owns the start/stop sequencing of §4.7: Capture, Processor, Status
// Publisher, then (if configured) the Coordinator Channel and Fleet
// Registry peer-observation loop. On stop it waits for Capture, then
// the Processor, then the Status Publisher, then closes the
// Coordinator Channel and waits for the peer-observation loop.
package app

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"tickcapture/internal/capture"
	"tickcapture/internal/config"
	"tickcapture/internal/coordinator"
	"tickcapture/internal/processor"
	"tickcapture/internal/registry"
	"tickcapture/internal/ring"
	"tickcapture/internal/stats"
	"tickcapture/internal/status"
	"tickcapture/internal/storage"
)

// Node owns every stage of one capture pipeline and the goroutines
// that run them. Exactly one goroutine runs Capture.Run, exactly one
// runs Processor.Run, matching the ring buffer's SPSC contract; a
// shared context cancellation is the one stop flag of §5.
type Node struct {
	cfg *config.Config
	log *slog.Logger

	ringBuf    *ring.Buffer
	captureSt  *stats.Capture
	storageSt  *storage.Stage
	captureStg *capture.Stage
	proc       *processor.Processor
	publisher  *status.Publisher

	wsChannel *coordinator.WSChannel
	reg       *registry.Registry
	nodeID    string

	peerWG sync.WaitGroup
}

// New constructs a Node from cfg, opening storage (and, if configured,
// the Fleet Registry catalog database) but not starting any goroutine
// yet. A non-nil error here is a startup/config failure per §6/§7 and
// should map to a non-zero process exit.
func New(cfg *config.Config, log *slog.Logger) (*Node, error) {
	var reg *registry.Registry
	var catalogSink storage.CatalogSink
	if cfg.Catalog.Path != "" || cfg.Capture.CoordinatorAddress != "" {
		path := cfg.Catalog.Path
		if path == "" {
			path = "catalog.db"
		}
		var err error
		reg, err = registry.Open(path)
		if err != nil {
			return nil, fmt.Errorf("open fleet registry: %w", err)
		}
		catalogSink = reg
	}

	nodeID := cfg.Node.ID
	if nodeID == "" && reg != nil {
		id, err := reg.NodeID(func() string { return uuid.NewString() })
		if err != nil {
			return nil, fmt.Errorf("resolve node id: %w", err)
		}
		nodeID = id
	} else if nodeID == "" {
		nodeID = uuid.NewString()
	}

	storageStage, err := storage.New(cfg.Capture.OutputDir, catalogSink)
	if err != nil {
		return nil, err
	}

	ringBuf := ring.New(cfg.Capture.RingBufferSize)
	captureSt := stats.New()

	captureStage := capture.New(capture.Config{
		MulticastAddr:    cfg.Capture.MulticastAddr,
		Port:             cfg.Capture.Port,
		UDPBufferSize:    cfg.Capture.UDPBufferSize,
		SocketBufferSize: cfg.Capture.SocketBufferSize,
		VerifyChecksums:  cfg.Capture.VerifyChecksums,
	}, ringBuf, captureSt, log)

	proc := processor.New(ringBuf, storageStage, captureSt, log, cfg.Capture.MaxBatchSize)

	var ch coordinator.Channel
	var wsChannel *coordinator.WSChannel
	if cfg.Capture.CoordinatorAddress != "" {
		wsChannel = coordinator.New(cfg.Capture.CoordinatorAddress, log)
		ch = wsChannel
	}
	publisher := status.New(captureSt, log, ch, nodeID)

	return &Node{
		cfg:        cfg,
		log:        log,
		ringBuf:    ringBuf,
		captureSt:  captureSt,
		storageSt:  storageStage,
		captureStg: captureStage,
		proc:       proc,
		publisher:  publisher,
		wsChannel:  wsChannel,
		reg:        reg,
		nodeID:     nodeID,
	}, nil
}

// Run starts Capture, Processor, Status Publisher, then (if configured)
// the Coordinator Channel and the Fleet Registry's peer-observation
// loop, in that order. It blocks until ctx is canceled; the shared ctx
// stops every stage, and Run then waits for Capture (so the ring gets no
// new records), then the Processor (which drains the ring), then the
// Status Publisher, then closes the Coordinator Channel and waits for the
// peer-observation loop, and finally flushes storage. A fatal processor
// error (programmer-error symbol_id) is returned to the caller.
func (n *Node) Run(ctx context.Context) error {
	n.log.Info("node starting", slog.String("node_id", n.nodeID))

	captureDone := make(chan error, 1)
	go func() { captureDone <- n.captureStg.Run(ctx) }()

	procDone := make(chan error, 1)
	go func() { procDone <- n.proc.Run(ctx) }()

	publisherDone := make(chan struct{})
	go func() {
		n.publisher.Run(ctx)
		close(publisherDone)
	}()

	if n.wsChannel != nil {
		n.wsChannel.Run(ctx)
		n.startPeerObservationLoop(ctx)
	}

	<-ctx.Done()
	n.log.Info("node stopping")

	captureErr := <-captureDone
	procErr := <-procDone
	<-publisherDone

	if n.wsChannel != nil {
		n.wsChannel.Close()
	}
	n.peerWG.Wait()

	if err := n.storageSt.Flush(); err != nil {
		n.log.Warn("final flush error", slog.Any("error", err))
	}
	if err := n.storageSt.Close(); err != nil {
		n.log.Warn("storage close error", slog.Any("error", err))
	}
	if n.reg != nil {
		if err := n.reg.Close(); err != nil {
			n.log.Warn("registry close error", slog.Any("error", err))
		}
	}

	if captureErr != nil {
		return captureErr
	}
	return procErr
}

// startPeerObservationLoop drains the Coordinator Channel's Subscribe
// stream and records every observed peer status in the Fleet Registry
// (§4.8/§4.9). It is read-only against capture/processor/storage state.
func (n *Node) startPeerObservationLoop(ctx context.Context) {
	peers, err := n.wsChannel.Subscribe(ctx)
	if err != nil {
		n.log.Warn("coordinator subscribe failed", slog.Any("error", err))
		return
	}
	n.peerWG.Add(1)
	go func() {
		defer n.peerWG.Done()
		for {
			select {
			case <-ctx.Done():
				return
			case peer, ok := <-peers:
				if !ok {
					return
				}
				if n.reg == nil {
					continue
				}
				if err := n.reg.RecordPeerStatus(peer.NodeID, peer.Received, peer.Processed, peer.Dropped); err != nil {
					n.log.Warn("record peer status failed", slog.Any("error", err))
				}
			}
		}
	}()
}

// Stats returns the node's live capture stats snapshot, for operator
// tooling or tests.
func (n *Node) Stats() stats.Snapshot { return n.captureSt.Snapshot() }
