//go:build darwin

package pty

import (
	"fmt"
	"os"
	"unsafe"

	"golang.org/x/sys/unix"
)

const (
	tiocptyGrant = 0x20007452
	tiocptyUnlk  = 0x20007453
	tiocptyGname = 0x40807453
)

// Open allocates a PTY master and returns it along with the slave's path
// name, mirroring grantpt/unlockpt/ptsname via the BSD TIOCPTY* ioctls
// Darwin exposes in place of Linux's TIOCSPTLCK/TIOCGPTN pair.
func Open() (master *os.File, slavePath string, err error) {
	fd, err := unix.Open("/dev/ptmx", unix.O_RDWR, 0)
	if err != nil {
		return nil, "", fmt.Errorf("pty: open /dev/ptmx: %w", err)
	}
	// Darwin's ptmx has no O_NONBLOCK-at-open equivalent worth relying on;
	// set it explicitly with the same fcntl style accept_darwin.go uses for
	// accepted sockets, since the relay loop depends on EAGAIN to detect a
	// drained edge-triggered read.
	if err := unix.SetNonblock(fd, true); err != nil {
		unix.Close(fd)
		return nil, "", fmt.Errorf("pty: set nonblocking: %w", err)
	}
	m := os.NewFile(uintptr(fd), "/dev/ptmx")

	if _, _, errno := unix.Syscall(unix.SYS_IOCTL, m.Fd(), tiocptyGrant, 0); errno != 0 {
		m.Close()
		return nil, "", fmt.Errorf("pty: grantpt: %w", errno)
	}
	if _, _, errno := unix.Syscall(unix.SYS_IOCTL, m.Fd(), tiocptyUnlk, 0); errno != 0 {
		m.Close()
		return nil, "", fmt.Errorf("pty: unlockpt: %w", errno)
	}

	var name [128]byte
	if _, _, errno := unix.Syscall(unix.SYS_IOCTL, m.Fd(), tiocptyGname, uintptr(unsafe.Pointer(&name[0]))); errno != 0 {
		m.Close()
		return nil, "", fmt.Errorf("pty: ptsname: %w", errno)
	}

	return m, string(name[:clen(name[:])]), nil
}

func clen(b []byte) int {
	for i, c := range b {
		if c == 0 {
			return i
		}
	}
	return len(b)
}

// OpenSlave opens the slave device by path.
func OpenSlave(path string) (*os.File, error) {
	fd, err := unix.Open(path, unix.O_RDWR|unix.O_NOCTTY, 0)
	if err != nil {
		return nil, fmt.Errorf("pty: open slave %s: %w", path, err)
	}
	return os.NewFile(uintptr(fd), path), nil
}
