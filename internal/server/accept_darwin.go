//go:build darwin

package server

import "golang.org/x/sys/unix"

// acceptConn accepts one connection on listenFd. Darwin has no accept4, so
// non-blocking and close-on-exec are set with separate fcntl calls
// immediately after accept.
func acceptConn(listenFd int) (int, error) {
	fd, _, err := unix.Accept(listenFd)
	if err != nil {
		return -1, err
	}
	if err := unix.SetNonblock(fd, true); err != nil {
		unix.Close(fd)
		return -1, err
	}
	unix.CloseOnExec(fd)
	return fd, nil
}
