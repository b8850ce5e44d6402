//go:build linux

package server

import (
	"fmt"

	"golang.org/x/sys/unix"
)

// epollPoller implements Poller with epoll, edge-triggered (EPOLLET), the
// same facility the original C server uses directly.
type epollPoller struct {
	fd int
}

// NewPoller creates the platform readiness facility.
func NewPoller() (Poller, error) {
	fd, err := unix.EpollCreate1(unix.EPOLL_CLOEXEC)
	if err != nil {
		return nil, fmt.Errorf("server: epoll_create1: %w", err)
	}
	return &epollPoller{fd: fd}, nil
}

func (p *epollPoller) Add(fd int) error {
	ev := unix.EpollEvent{Events: unix.EPOLLIN | unix.EPOLLET, Fd: int32(fd)}
	if err := unix.EpollCtl(p.fd, unix.EPOLL_CTL_ADD, fd, &ev); err != nil {
		return fmt.Errorf("server: epoll_ctl add %d: %w", fd, err)
	}
	return nil
}

func (p *epollPoller) Remove(fd int) error {
	// Linux ignores the event argument on EPOLL_CTL_DEL but pre-2.6.9
	// kernels required a non-nil pointer; pass one for safety.
	err := unix.EpollCtl(p.fd, unix.EPOLL_CTL_DEL, fd, &unix.EpollEvent{})
	if err != nil && err != unix.ENOENT && err != unix.EBADF {
		return fmt.Errorf("server: epoll_ctl del %d: %w", fd, err)
	}
	return nil
}

func (p *epollPoller) Wait(dst []Event) ([]Event, error) {
	raw := make([]unix.EpollEvent, 64)
	for {
		n, err := unix.EpollWait(p.fd, raw, -1)
		if err != nil {
			if err == unix.EINTR {
				continue
			}
			return dst, fmt.Errorf("server: epoll_wait: %w", err)
		}
		for i := 0; i < n; i++ {
			e := raw[i]
			dst = append(dst, Event{
				Fd:       int(e.Fd),
				Readable: e.Events&unix.EPOLLIN != 0,
				HangUp:   e.Events&(unix.EPOLLHUP|unix.EPOLLERR|unix.EPOLLRDHUP) != 0,
			})
		}
		return dst, nil
	}
}

func (p *epollPoller) Close() error {
	return unix.Close(p.fd)
}
