package coordinator

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"math"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"tickcapture/internal/tcerrors"
)

const (
	baseDelay    = 1 * time.Second
	maxDelay     = 60 * time.Second
	maxRetries   = 10
	readTimeout  = 60 * time.Second
	writeTimeout = 5 * time.Second
)

// WSChannel is the websocket Channel implementation, grounded on the
// teacher's exchange worker dial/reconnect/backoff loop: one
// long-lived connection, reopened with exponential backoff whenever
// it drops, never allowed to block a caller beyond writeTimeout.
type WSChannel struct {
	url string
	log *slog.Logger

	mu        sync.RWMutex
	conn      *websocket.Conn
	writeMu   sync.Mutex
	connected bool

	out chan PeerStatusMessage

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New creates a WSChannel for url without dialing it; Run starts the
// background dial loop. Publish and Subscribe both tolerate the
// connection not being up yet.
func New(url string, log *slog.Logger) *WSChannel {
	return &WSChannel{
		url: url,
		log: log,
		out: make(chan PeerStatusMessage, 64),
	}
}

// Run starts the connection loop in a background goroutine and returns
// immediately. It must be called once, before Publish/Subscribe are
// used; the loop exits once ctx is canceled or Close is called.
func (w *WSChannel) Run(ctx context.Context) {
	ctx, w.cancel = context.WithCancel(ctx)
	w.wg.Add(1)
	go w.connectionLoop(ctx)
}

func (w *WSChannel) connectionLoop(ctx context.Context) {
	defer w.wg.Done()

	retry := 0
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		if err := w.connect(ctx); err != nil {
			w.log.Warn("coordinator connect failed", slog.Any("error", err), slog.Int("retry", retry))
			delay := backoff(retry)
			retry++
			if retry > maxRetries {
				retry = 0
			}
			select {
			case <-ctx.Done():
				return
			case <-time.After(delay):
				continue
			}
		}

		retry = 0
		w.readLoop(ctx)
	}
}

func backoff(retry int) time.Duration {
	d := baseDelay * time.Duration(math.Pow(2, float64(retry)))
	if d > maxDelay {
		d = maxDelay
	}
	return d
}

func (w *WSChannel) connect(ctx context.Context) error {
	dialer := websocket.Dialer{HandshakeTimeout: 10 * time.Second}
	conn, _, err := dialer.DialContext(ctx, w.url, nil)
	if err != nil {
		return &tcerrors.CoordinatorError{Op: "dial " + w.url, Err: err}
	}

	w.mu.Lock()
	w.conn = conn
	w.connected = true
	w.mu.Unlock()

	w.log.Info("coordinator connected", slog.String("url", w.url))
	return nil
}

func (w *WSChannel) readLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		w.mu.RLock()
		conn := w.conn
		w.mu.RUnlock()
		if conn == nil {
			return
		}

		conn.SetReadDeadline(time.Now().Add(readTimeout))
		_, raw, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				w.log.Warn("coordinator read error", slog.Any("error", err))
			}
			w.closeConn()
			return
		}
		w.handleFrame(raw)
	}
}

func (w *WSChannel) handleFrame(raw []byte) {
	decoded, err := decodeFrame(raw)
	if err != nil {
		w.log.Debug("coordinator frame decode error", slog.Any("error", err))
		return
	}
	status, ok := decoded.(StatusMessage)
	if !ok {
		return // heartbeat or unrecognized frame; nothing for the Fleet Registry to record
	}

	peer := PeerStatusMessage{
		NodeID:     status.NodeID,
		Received:   status.Stats.Received,
		Processed:  status.Stats.Processed,
		Dropped:    status.Stats.Dropped,
		ObservedAt: time.Now(),
	}
	select {
	case w.out <- peer:
	default:
		w.log.Warn("coordinator subscriber channel full, dropping peer status", slog.String("node_id", peer.NodeID))
	}
}

func (w *WSChannel) closeConn() {
	w.mu.Lock()
	if w.conn != nil {
		w.conn.Close()
		w.conn = nil
	}
	w.connected = false
	w.mu.Unlock()
}

// Publish writes one JSON status frame. Never blocks beyond
// writeTimeout; a disconnected channel returns a *tcerrors.CoordinatorError
// the caller is expected to log and discard, never retry synchronously.
func (w *WSChannel) Publish(ctx context.Context, msg StatusMessage) error {
	w.mu.RLock()
	conn := w.conn
	w.mu.RUnlock()
	if conn == nil {
		return &tcerrors.CoordinatorError{Op: "publish", Err: fmt.Errorf("not connected")}
	}

	data, err := json.Marshal(msg)
	if err != nil {
		return &tcerrors.CoordinatorError{Op: "publish", Err: fmt.Errorf("marshal status: %w", err)}
	}

	w.writeMu.Lock()
	defer w.writeMu.Unlock()
	conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
		return &tcerrors.CoordinatorError{Op: "publish", Err: err}
	}
	return nil
}

// Subscribe returns the channel fed by the read loop. It never errors;
// the returned channel simply carries nothing while disconnected.
func (w *WSChannel) Subscribe(ctx context.Context) (<-chan PeerStatusMessage, error) {
	return w.out, nil
}

// Close stops the connection loop and closes the socket.
func (w *WSChannel) Close() error {
	if w.cancel != nil {
		w.cancel()
	}
	w.closeConn()
	w.wg.Wait()
	return nil
}
