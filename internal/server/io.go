package server

import "golang.org/x/sys/unix"

// writeAll writes the whole of buf to fd, retrying on short writes and on
// transient EAGAIN/EINTR (the listening socket and the pre-handshake
// accepted socket are still blocking-ish at this point in practice, but
// the handshake's own writes happen after the socket has gone
// non-blocking, so this loop is what makes "write the whole buffer" true
// for both).
func writeAll(fd int, buf []byte) error {
	for len(buf) > 0 {
		n, err := unix.Write(fd, buf)
		if err != nil {
			if err == unix.EAGAIN || err == unix.EINTR {
				continue
			}
			return err
		}
		buf = buf[n:]
	}
	return nil
}
