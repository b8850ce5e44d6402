//go:build linux

package server

import "golang.org/x/sys/unix"

// acceptConn accepts one connection on listenFd as non-blocking and
// close-on-exec in a single syscall.
func acceptConn(listenFd int) (int, error) {
	fd, _, err := unix.Accept4(listenFd, unix.SOCK_NONBLOCK|unix.SOCK_CLOEXEC)
	return fd, err
}
