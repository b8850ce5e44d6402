package server

import (
	"bytes"

	"golang.org/x/sys/unix"

	"github.com/pelikenesis/rembash/internal/proto"
	"github.com/pelikenesis/rembash/internal/pty"
)

// handshake runs the first time a socket becomes readable (spec.md §4.4).
// It validates the shared token, allocates a PTY, forks the shell, and —
// crucially, before writing <ok>\n — registers the PTY master with the
// demultiplexer, so the client can never send keystrokes the poller isn't
// watching for yet.
func (s *Server) handshake(fd int) {
	conn := s.table.Get(fd)
	if conn == nil || conn.State != AwaitingSecret {
		return
	}

	buf := make([]byte, proto.MaxHandshakeRead)
	n, err := unix.Read(fd, buf)
	if err != nil || n <= 0 {
		s.protocolFail(fd, "read secret")
		return
	}
	if !bytes.Equal(buf[:n], []byte(proto.Secret)) {
		s.log.Warn("bad handshake token", "fd", fd)
		s.protocolFail(fd, "bad token")
		return
	}

	master, slavePath, err := pty.Open()
	if err != nil {
		s.log.Error("pty allocation failed", "fd", fd, "err", err)
		s.closeFd(fd)
		return
	}

	slave, err := pty.OpenSlave(slavePath)
	if err != nil {
		s.log.Error("pty slave open failed", "fd", fd, "err", err)
		master.Close()
		s.closeFd(fd)
		return
	}

	cmd, err := pty.Spawn(s.shellPath, slave, nil)
	slave.Close() // parent no longer needs it regardless of outcome
	if err != nil {
		// Fork/exec failure: per spec.md §9, this is a per-connection setup
		// error. The original C has a missing break here that falls through
		// to registering a non-existent master anyway — deliberately not
		// reproduced.
		s.log.Error("shell spawn failed", "fd", fd, "err", err)
		master.Close()
		s.closeFd(fd)
		return
	}

	masterFd := int(master.Fd())
	if err := s.table.Put(masterFd, &Connection{Fd: masterFd, State: AwaitingSecret, File: master}); err != nil {
		s.log.Error("master fd exceeds table capacity", "fd", masterFd)
		cmd.Process.Kill()
		master.Close()
		s.closeFd(fd)
		return
	}
	if err := s.table.Pair(fd, masterFd); err != nil {
		// Can't happen: both records were just inserted above.
		s.log.Error("pairing failed", "fd", fd, "master", masterFd, "err", err)
		cmd.Process.Kill()
		s.closeFd(masterFd)
		s.closeFd(fd)
		return
	}
	conn.Shell = cmd

	if err := s.poller.Add(masterFd); err != nil {
		s.log.Error("failed to register pty master", "fd", masterFd, "err", err)
		cmd.Process.Kill()
		s.closeFd(masterFd)
		s.closeFd(fd)
		return
	}

	// Ordering requirement (spec.md §4.4): the master must be watched
	// before <ok>\n reaches the client.
	if err := writeAll(fd, []byte(proto.OK)); err != nil {
		s.log.Warn("failed to write <ok>", "fd", fd, "err", err)
		cmd.Process.Kill()
		s.closeFd(masterFd)
		s.closeFd(fd)
		return
	}

	s.observeHandshakeOK(fd, masterFd, cmd.Process.Pid)
	s.log.Info("handshake complete", "fd", fd, "master", masterFd, "pid", cmd.Process.Pid)
}

// protocolFail writes <error>\n best-effort and tears the socket down.
// Per spec.md §7 this is best-effort: a write failure here is not itself
// escalated, the socket is closed either way.
func (s *Server) protocolFail(fd int, reason string) {
	writeAll(fd, []byte(proto.ErrMsg))
	s.closeFd(fd)
	s.log.Debug("handshake protocol failure", "fd", fd, "reason", reason)
}
