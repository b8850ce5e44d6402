package server

import (
	"context"
	"fmt"
	"log/slog"

	"golang.org/x/sys/unix"

	"github.com/pelikenesis/rembash/internal/proto"
)

// Acceptor is the single thread of spec.md §4.1: it owns the listening
// socket, accepts connections in a blocking loop, and hands each one to
// the server's table and poller before writing the greeting.
type Acceptor struct {
	listenFd int
	srv      *Server
	log      *slog.Logger
}

func newAcceptor(srv *Server, addr string, log *slog.Logger) (*Acceptor, error) {
	fd, err := listen(addr)
	if err != nil {
		return nil, err
	}
	return &Acceptor{listenFd: fd, srv: srv, log: log}, nil
}

// Run accepts connections until ctx is canceled or a non-transient accept
// error occurs, in which case it terminates the whole process — per
// spec.md §7, startup/accept-loop failures are fatal, unlike per-connection
// failures which never escape their worker.
func (a *Acceptor) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}

		fd, err := acceptConn(a.listenFd)
		if err != nil {
			if isTransient(err) {
				continue
			}
			return fmt.Errorf("server: accept: %w", err)
		}

		a.handleNewConn(fd)
	}
}

func (a *Acceptor) handleNewConn(fd int) {
	if !a.srv.table.Fits(fd) {
		a.log.Warn("refusing connection: session capacity exceeded", "fd", fd)
		unix.Close(fd)
		return
	}

	a.srv.table.Put(fd, &Connection{Fd: fd, Peer: -1, State: AwaitingSecret})

	if err := a.srv.poller.Add(fd); err != nil {
		a.log.Error("failed to register new connection", "fd", fd, "err", err)
		a.srv.table.Delete(fd)
		unix.Close(fd)
		return
	}

	if err := writeAll(fd, []byte(proto.Greeting)); err != nil {
		a.log.Warn("failed to send greeting", "fd", fd, "err", err)
		a.srv.closeFd(fd)
		return
	}

	a.srv.observeConnect(fd)
	a.log.Debug("accepted connection", "fd", fd)
}

func isTransient(err error) bool {
	switch err {
	case unix.EAGAIN, unix.EINTR, unix.ECONNABORTED, unix.EMFILE, unix.ENFILE:
		return true
	default:
		return false
	}
}
