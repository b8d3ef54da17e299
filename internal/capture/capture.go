// Package capture owns the UDP multicast socket: it joins the market
// data group, reads datagrams, and decodes/validates them onto the
// ring buffer (§4.3).
package capture

import (
	"context"
	"fmt"
	"log/slog"
	"net"

	"tickcapture/internal/ring"
	"tickcapture/internal/stats"
	"tickcapture/internal/tcerrors"
	"tickcapture/internal/wire"
)

// Config controls the capture stage's socket and validation behavior.
type Config struct {
	MulticastAddr    string
	Port             uint16
	UDPBufferSize    int // per-recv read buffer, bytes
	SocketBufferSize int // SO_RCVBUF, bytes
	VerifyChecksums  bool
}

// Stage reads datagrams from a joined multicast group and pushes
// decoded records onto a ring.Buffer. One Stage owns exactly one
// socket; Run is not safe to call concurrently with itself.
type Stage struct {
	cfg   Config
	ring  *ring.Buffer
	stats *stats.Capture
	log   *slog.Logger

	conn *net.UDPConn
}

// New creates a capture Stage. The socket is not opened until Run.
func New(cfg Config, buf *ring.Buffer, st *stats.Capture, log *slog.Logger) *Stage {
	return &Stage{cfg: cfg, ring: buf, stats: st, log: log}
}

// Run joins the multicast group and reads datagrams until ctx is
// canceled. It returns nil on a clean shutdown, or a *tcerrors.SocketError
// if the socket could not be opened at all.
func (s *Stage) Run(ctx context.Context) error {
	conn, err := s.listen()
	if err != nil {
		return &tcerrors.SocketError{Op: "listen", Err: err}
	}
	s.conn = conn
	defer conn.Close()

	go func() {
		<-ctx.Done()
		conn.Close()
	}()

	s.log.Info("capture listening",
		slog.String("group", s.cfg.MulticastAddr),
		slog.Int("port", int(s.cfg.Port)))

	buf := make([]byte, s.cfg.UDPBufferSize)
	for {
		n, _, err := conn.ReadFromUDP(buf)
		if err != nil {
			select {
			case <-ctx.Done():
				return nil
			default:
			}
			s.log.Warn("capture read error", slog.Any("error", err))
			continue
		}
		s.handleDatagram(buf[:n])
	}
}

// handleDatagram strides payload in wire.Size chunks, decoding and
// validating each as a record (§4.3). A datagram whose length isn't a
// multiple of wire.Size yields every complete leading record plus one
// invalid count for the trailing residual bytes.
func (s *Stage) handleDatagram(payload []byte) {
	n := len(payload)
	for off := 0; off+wire.Size <= n; off += wire.Size {
		s.stats.IncReceived()

		record := wire.Decode(payload[off : off+wire.Size])
		if valid, checksumFailed := wire.ValidateDetail(&record, s.cfg.VerifyChecksums); !valid {
			s.stats.IncInvalid()
			if checksumFailed {
				s.stats.IncChecksumError()
			}
			continue
		}

		if !s.ring.Push(&record) {
			s.stats.IncDropped()
			continue
		}
	}

	if n%wire.Size != 0 {
		s.stats.IncInvalid()
	}
}

// listen opens the UDP socket with SO_REUSEADDR set before bind (via
// Control, so multiple capture nodes can share the port on a host),
// binds INADDR_ANY on the configured port, joins the multicast group,
// and requests a large SO_RCVBUF to absorb bursts ahead of the single
// reader goroutine draining it.
func (s *Stage) listen() (*net.UDPConn, error) {
	lc := net.ListenConfig{Control: controlReuseAddr}

	pc, err := lc.ListenPacket(context.Background(), "udp4", fmt.Sprintf(":%d", s.cfg.Port))
	if err != nil {
		return nil, fmt.Errorf("listen :%d: %w", s.cfg.Port, err)
	}
	conn := pc.(*net.UDPConn)

	groupIP := net.ParseIP(s.cfg.MulticastAddr)
	if groupIP == nil {
		conn.Close()
		return nil, fmt.Errorf("invalid multicast address %q", s.cfg.MulticastAddr)
	}
	if err := joinMulticastGroup(conn, groupIP); err != nil {
		conn.Close()
		return nil, fmt.Errorf("join multicast %s: %w", s.cfg.MulticastAddr, err)
	}

	if s.cfg.SocketBufferSize > 0 {
		if err := conn.SetReadBuffer(s.cfg.SocketBufferSize); err != nil {
			s.log.Warn("SetReadBuffer failed", slog.Any("error", err))
		}
	}

	return conn, nil
}
