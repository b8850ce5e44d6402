// Package server implements the rembash server core: acceptor, readiness
// demultiplexer, worker pool, pairing table, handshake, and relay, wired
// together per spec.md §2.
package server

import (
	"context"
	"fmt"
	"log/slog"
	"runtime"

	"golang.org/x/sys/unix"
)

// Hooks lets an optional observer (internal/observe) learn about session
// lifecycle events without the core relay path depending on it. A nil
// Hooks is a safe no-op — the core never changes behavior based on whether
// anyone is watching.
type Hooks struct {
	OnConnect     func(fd int)
	OnHandshakeOK func(socketFd, masterFd, pid int)
	OnClose       func(fd int)
}

// Config holds the server's startup parameters. Per spec.md §6 there is no
// persisted configuration — these come from command-line flags only.
type Config struct {
	Addr        string // default ":4070"
	MaxSessions int    // default 1000
	ShellPath   string // default "bash"
	Hooks       Hooks
}

// Server owns the process-wide state described in spec.md §9: the pairing
// table and the poller's readiness set, constructed before any goroutine
// starts and torn down only at process exit.
type Server struct {
	table     *Table
	queue     *Queue
	poller    Poller
	pool      *Pool
	shellPath string
	hooks     Hooks
	log       *slog.Logger
}

// New constructs a Server. It does not start accepting connections yet —
// call Run for that.
func New(cfg Config, log *slog.Logger) (*Server, *Acceptor, error) {
	if cfg.Addr == "" {
		cfg.Addr = ":4070"
	}
	if cfg.MaxSessions <= 0 {
		cfg.MaxSessions = 1000
	}
	if cfg.ShellPath == "" {
		cfg.ShellPath = "bash"
	}

	poller, err := NewPoller()
	if err != nil {
		return nil, nil, err
	}

	workers := runtime.NumCPU()
	s := &Server{
		table:     NewTable(cfg.MaxSessions),
		queue:     NewQueue(workers),
		poller:    poller,
		shellPath: cfg.ShellPath,
		hooks:     cfg.Hooks,
		log:       log,
	}
	s.pool = NewPool(workers, s.queue, s.dispatch, log)

	acc, err := newAcceptor(s, cfg.Addr, log)
	if err != nil {
		poller.Close()
		return nil, nil, err
	}
	return s, acc, nil
}

// Run starts the worker pool, the child reaper, and the demultiplexer
// loop, then blocks servicing readiness events until ctx is canceled or
// the poller itself errors fatally (spec.md §7: the demultiplexer must
// never exit due to a single connection's failure, only its own).
func (s *Server) Run(ctx context.Context, acc *Acceptor) error {
	s.pool.Start()
	go reapChildren(ctx, s.log)

	go func() {
		if err := acc.Run(ctx); err != nil {
			s.log.Error("acceptor terminated", "err", err)
		}
	}()

	return s.demultiplex(ctx)
}

func (s *Server) demultiplex(ctx context.Context) error {
	var events []Event
	var err error
	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}

		events, err = s.poller.Wait(events[:0])
		if err != nil {
			return fmt.Errorf("server: demultiplexer: %w", err)
		}

		for _, ev := range events {
			conn := s.table.Get(ev.Fd)
			if conn == nil {
				continue
			}
			if ev.HangUp {
				s.closeFd(ev.Fd)
				if conn.Peer >= 0 {
					s.closeFd(conn.Peer)
				}
				continue
			}
			if ev.Readable {
				s.queue.Push(ev.Fd)
			}
		}
	}
}

// dispatch is what each worker calls for a descriptor it pops from the
// queue: handshake for a fresh connection, relay for an established one.
func (s *Server) dispatch(fd int) {
	conn := s.table.Get(fd)
	if conn == nil {
		return
	}
	switch conn.State {
	case AwaitingSecret:
		s.handshake(fd)
	case Relaying:
		s.relay(fd)
	}
}

// closeFd deregisters fd from the poller, closes it, and clears its table
// record. Idempotent: closing an already-closed or unregistered fd is a
// no-op, satisfying the invariant in spec.md §8.
func (s *Server) closeFd(fd int) {
	conn := s.table.Get(fd)
	if conn == nil {
		return
	}
	s.table.Delete(fd)
	s.poller.Remove(fd)

	if conn.File != nil {
		conn.File.Close()
	} else {
		unix.Close(fd)
	}

	if s.hooks.OnClose != nil {
		s.hooks.OnClose(fd)
	}
}

func (s *Server) observeConnect(fd int) {
	if s.hooks.OnConnect != nil {
		s.hooks.OnConnect(fd)
	}
}

func (s *Server) observeHandshakeOK(socketFd, masterFd, pid int) {
	if s.hooks.OnHandshakeOK != nil {
		s.hooks.OnHandshakeOK(socketFd, masterFd, pid)
	}
}
