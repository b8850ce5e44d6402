//go:build darwin

package server

import (
	"fmt"

	"golang.org/x/sys/unix"
)

// kqueuePoller implements Poller with kqueue, using EV_CLEAR for the
// edge-triggered semantics epoll gives natively on Linux.
type kqueuePoller struct {
	fd int
}

// NewPoller creates the platform readiness facility.
func NewPoller() (Poller, error) {
	fd, err := unix.Kqueue()
	if err != nil {
		return nil, fmt.Errorf("server: kqueue: %w", err)
	}
	unix.CloseOnExec(fd)
	return &kqueuePoller{fd: fd}, nil
}

func (p *kqueuePoller) Add(fd int) error {
	ev := unix.Kevent_t{
		Ident:  uint64(fd),
		Filter: unix.EVFILT_READ,
		Flags:  unix.EV_ADD | unix.EV_CLEAR,
	}
	_, err := unix.Kevent(p.fd, []unix.Kevent_t{ev}, nil, nil)
	if err != nil {
		return fmt.Errorf("server: kevent add %d: %w", fd, err)
	}
	return nil
}

func (p *kqueuePoller) Remove(fd int) error {
	ev := unix.Kevent_t{
		Ident:  uint64(fd),
		Filter: unix.EVFILT_READ,
		Flags:  unix.EV_DELETE,
	}
	_, err := unix.Kevent(p.fd, []unix.Kevent_t{ev}, nil, nil)
	if err != nil && err != unix.ENOENT && err != unix.EBADF {
		return fmt.Errorf("server: kevent del %d: %w", fd, err)
	}
	return nil
}

func (p *kqueuePoller) Wait(dst []Event) ([]Event, error) {
	raw := make([]unix.Kevent_t, 64)
	for {
		n, err := unix.Kevent(p.fd, nil, raw, nil)
		if err != nil {
			if err == unix.EINTR {
				continue
			}
			return dst, fmt.Errorf("server: kevent wait: %w", err)
		}
		for i := 0; i < n; i++ {
			e := raw[i]
			dst = append(dst, Event{
				Fd:       int(e.Ident),
				Readable: true,
				HangUp:   e.Flags&unix.EV_EOF != 0 || e.Flags&unix.EV_ERROR != 0,
			})
		}
		return dst, nil
	}
}

func (p *kqueuePoller) Close() error {
	return unix.Close(p.fd)
}
