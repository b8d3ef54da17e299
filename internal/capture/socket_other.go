//go:build !unix

package capture

import (
	"errors"
	"net"
	"syscall"
)

// controlReuseAddr is a no-op on non-unix platforms: SO_REUSEADDR has
// no portable equivalent worth wiring through x/sys here.
func controlReuseAddr(_, _ string, _ syscall.RawConn) error {
	return nil
}

// joinMulticastGroup is unsupported outside unix: capture nodes are a
// unix deployment target, this stub exists only so the package builds
// elsewhere.
func joinMulticastGroup(_ *net.UDPConn, _ net.IP) error {
	return errors.New("capture: multicast join unsupported on this platform")
}
