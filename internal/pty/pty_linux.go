//go:build linux

// Package pty allocates pseudo-terminal master/slave pairs for the shell
// child, following the same posix_openpt → grantpt → unlockpt → ptsname
// sequence as the original C server's set_up_pty.
package pty

import (
	"fmt"
	"os"
	"strconv"

	"golang.org/x/sys/unix"
)

// Open allocates a PTY master and returns it along with the slave's path
// name. The slave is not opened here — the shell child opens it itself
// after setsid, matching pty_exec_bash in the original source. The master
// is opened O_NONBLOCK, matching the original's posix_openpt flags: the
// relay loop depends on reads returning EAGAIN once drained under
// edge-triggered readiness, and a blocking master would instead pin a
// worker goroutine on its next read.
func Open() (master *os.File, slavePath string, err error) {
	fd, err := unix.Open("/dev/ptmx", unix.O_RDWR|unix.O_NOCTTY|unix.O_CLOEXEC|unix.O_NONBLOCK, 0)
	if err != nil {
		return nil, "", fmt.Errorf("pty: open /dev/ptmx: %w", err)
	}
	m := os.NewFile(uintptr(fd), "/dev/ptmx")

	if err := unlockpt(m); err != nil {
		m.Close()
		return nil, "", fmt.Errorf("pty: unlockpt: %w", err)
	}

	n, err := ptsname(m)
	if err != nil {
		m.Close()
		return nil, "", fmt.Errorf("pty: ptsname: %w", err)
	}

	return m, "/dev/pts/" + strconv.Itoa(n), nil
}

// unlockpt grants and unlocks the slave so it can be opened, combining
// grantpt+unlockpt from the C original into the single TIOCSPTLCK ioctl
// Linux exposes for this.
func unlockpt(m *os.File) error {
	return unix.IoctlSetPointerInt(int(m.Fd()), unix.TIOCSPTLCK, 0)
}

// ptsname returns the slave's PTY number via TIOCGPTN.
func ptsname(m *os.File) (int, error) {
	return unix.IoctlGetInt(int(m.Fd()), unix.TIOCGPTN)
}

// OpenSlave opens the slave device by path. Called from the forked child
// after setsid, per pty_exec_bash.
func OpenSlave(path string) (*os.File, error) {
	fd, err := unix.Open(path, unix.O_RDWR, 0)
	if err != nil {
		return nil, fmt.Errorf("pty: open slave %s: %w", path, err)
	}
	return os.NewFile(uintptr(fd), path), nil
}
