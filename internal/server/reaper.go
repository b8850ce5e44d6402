package server

import (
	"context"
	"log/slog"
	"time"

	"golang.org/x/sys/unix"
)

// reapChildren is the dedicated reaper spec.md §9 allows in place of a
// process-wide SIGCHLD(SIG_IGN) disposition: it blocks on wait4(-1, ...)
// in its own goroutine, forever, so every shell child this server forks
// gets collected without the accept or dispatch paths ever touching it.
func reapChildren(ctx context.Context, log *slog.Logger) {
	for {
		if ctx.Err() != nil {
			return
		}

		var status unix.WaitStatus
		pid, err := unix.Wait4(-1, &status, 0, nil)
		switch err {
		case nil:
			log.Debug("reaped shell child", "pid", pid, "status", status.ExitStatus())
		case unix.EINTR:
			// retry immediately
		case unix.ECHILD:
			// No children exist yet — avoid a hot spin until the first
			// shell is forked.
			select {
			case <-ctx.Done():
				return
			case <-time.After(200 * time.Millisecond):
			}
		default:
			log.Error("wait4 failed", "err", err)
			return
		}
	}
}
