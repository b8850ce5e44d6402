package server

import (
	"fmt"
	"net"

	"golang.org/x/sys/unix"
)

// backlog is the listen backlog, spec.md §4.1 requires ≥ 10.
const backlog = 16

// listen creates, binds, and listens on a raw non-blocking TCP socket for
// addr ("host:port" or ":port"), returning its file descriptor. The server
// deliberately bypasses net.Listener: Go's runtime netpoller already does
// its own epoll/kqueue registration under the hood, which would fight the
// demultiplexer this package owns directly. Working with raw descriptors
// end to end is also what gives Table (see table.go) a real fd-indexed key
// space to work with, matching spec.md §4.6.
func listen(addr string) (int, error) {
	host, port, err := splitHostPort(addr)
	if err != nil {
		return -1, err
	}

	fd, err := unix.Socket(unix.AF_INET, unix.SOCK_STREAM|unix.SOCK_CLOEXEC, 0)
	if err != nil {
		return -1, fmt.Errorf("server: socket: %w", err)
	}

	if err := unix.SetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_REUSEADDR, 1); err != nil {
		unix.Close(fd)
		return -1, fmt.Errorf("server: setsockopt SO_REUSEADDR: %w", err)
	}

	sa := &unix.SockaddrInet4{Port: port}
	copy(sa.Addr[:], host[:])

	if err := unix.Bind(fd, sa); err != nil {
		unix.Close(fd)
		return -1, fmt.Errorf("server: bind: %w", err)
	}
	if err := unix.Listen(fd, backlog); err != nil {
		unix.Close(fd)
		return -1, fmt.Errorf("server: listen: %w", err)
	}
	return fd, nil
}

// splitHostPort parses "host:port" into a 4-byte IPv4 address (zero value
// for "any interface") and a numeric port.
func splitHostPort(addr string) (ip [4]byte, port int, err error) {
	h, p, err := net.SplitHostPort(addr)
	if err != nil {
		return ip, 0, fmt.Errorf("server: bad address %q: %w", addr, err)
	}
	if h == "" || h == "0.0.0.0" {
		// leave ip zeroed — INADDR_ANY
	} else {
		parsed := net.ParseIP(h)
		if parsed == nil {
			return ip, 0, fmt.Errorf("server: bad host %q", h)
		}
		v4 := parsed.To4()
		if v4 == nil {
			return ip, 0, fmt.Errorf("server: only IPv4 is supported, got %q", h)
		}
		copy(ip[:], v4)
	}
	var portNum int
	if _, err := fmt.Sscanf(p, "%d", &portNum); err != nil {
		return ip, 0, fmt.Errorf("server: bad port %q: %w", p, err)
	}
	return ip, portNum, nil
}
