//go:build unix

package capture

import (
	"net"
	"syscall"

	"golang.org/x/sys/unix"
)

// controlReuseAddr is a net.ListenConfig.Control callback: it runs
// after the socket is created but before bind, the only window in
// which SO_REUSEADDR has any effect.
func controlReuseAddr(_, _ string, c syscall.RawConn) error {
	var sockErr error
	err := c.Control(func(fd uintptr) {
		sockErr = unix.SetsockoptInt(int(fd), unix.SOL_SOCKET, unix.SO_REUSEADDR, 1)
	})
	if err != nil {
		return err
	}
	return sockErr
}

// joinMulticastGroup issues IP_ADD_MEMBERSHIP on conn's underlying fd
// for group, with the interface left as INADDR_ANY so the kernel picks
// the default route's interface.
func joinMulticastGroup(conn *net.UDPConn, group net.IP) error {
	groupV4 := group.To4()
	if groupV4 == nil {
		return &net.AddrError{Err: "not an IPv4 multicast address", Addr: group.String()}
	}

	rawConn, err := conn.SyscallConn()
	if err != nil {
		return err
	}

	var mreq unix.IPMreq
	copy(mreq.Multiaddr[:], groupV4)

	var sockErr error
	err = rawConn.Control(func(fd uintptr) {
		sockErr = unix.SetsockoptIPMreq(int(fd), unix.IPPROTO_IP, unix.IP_ADD_MEMBERSHIP, &mreq)
	})
	if err != nil {
		return err
	}
	return sockErr
}
