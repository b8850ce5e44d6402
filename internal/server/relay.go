package server

import (
	"errors"
	"time"

	"golang.org/x/sys/unix"
)

// relayBufSize is the read chunk size, matching BUFF_SIZE in the original.
const relayBufSize = 4096

// maxWriteRetries bounds how many times writeAllOrEAGAINRetry will spin
// through EAGAIN on a single write before giving up, per spec.md §4.5: a
// truly stuck target is treated as an error, not retried forever.
const maxWriteRetries = 100

var errWriteStuck = errors.New("server: peer write did not drain")

// relay runs on every post-handshake readiness of either descriptor in a
// pair (spec.md §4.5). It drains the source to EAGAIN, writing each chunk
// to the peer in full before reading the next, and tears the pair down on
// EOF or any non-transient error.
func (s *Server) relay(fd int) {
	conn := s.table.Get(fd)
	if conn == nil || conn.State != Relaying {
		return
	}
	target := conn.Peer

	buf := make([]byte, relayBufSize)
	for {
		n, err := unix.Read(fd, buf)
		if n > 0 {
			if werr := writeAllOrEAGAINRetry(target, buf[:n]); werr != nil {
				s.teardownPair(fd, target)
				return
			}
		}
		if err != nil {
			if err == unix.EAGAIN {
				return // drained — demultiplexer will re-arm on next edge
			}
			if err == unix.EINTR {
				continue
			}
			// Any other read error, including EOF (n == 0, err == nil —
			// handled below), tears the pair down.
			s.teardownPair(fd, target)
			return
		}
		if n == 0 {
			s.teardownPair(fd, target)
			return
		}
	}
}

// writeAllOrEAGAINRetry writes buf to fd in full, spinning briefly through
// EAGAIN the way the original's do/while write loop does, but only up to
// maxWriteRetries — a genuinely stuck peer is indistinguishable from an
// error at this layer and the pair gets torn down by the caller rather
// than spinning the worker forever.
func writeAllOrEAGAINRetry(fd int, buf []byte) error {
	retries := 0
	for len(buf) > 0 {
		n, err := unix.Write(fd, buf)
		if err != nil {
			if err == unix.EINTR {
				continue
			}
			if err == unix.EAGAIN {
				retries++
				if retries > maxWriteRetries {
					return errWriteStuck
				}
				time.Sleep(time.Millisecond)
				continue
			}
			return err
		}
		buf = buf[n:]
	}
	return nil
}

// teardownPair closes both descriptors of a pair idempotently and removes
// their records. Closing the socket raises SIGHUP on the shell's
// controlling terminal; closing the master does the same from the other
// side — either one tears down the shell.
func (s *Server) teardownPair(a, b int) {
	s.closeFd(a)
	s.closeFd(b)
}
