// Package client implements the rembash client side: connect, complete
// the handshake, put the local terminal into raw mode, and relay bytes
// between the terminal and the socket until either side closes.
//
// This is the "external collaborator" spec.md §1 describes: the shell
// executable and the client's own process-split internals are not part of
// the specified core, only the wire protocol and raw-mode contract are.
// Go's goroutines stand in for the original's fork-based stdin/stdout
// split — no actual fork is needed to get two independent copy loops.
package client

import (
	"fmt"
	"io"
	"log"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/term"

	"github.com/pelikenesis/rembash/internal/proto"
)

// Run dials addr, completes the rembash handshake, and relays the local
// terminal against the remote shell until the session ends. It blocks for
// the duration of the session and returns the error, if any, that ended
// it — nil means the remote side closed cleanly.
func Run(addr string) error {
	conn, err := net.DialTimeout("tcp", addr, 10*time.Second)
	if err != nil {
		return fmt.Errorf("client: connect: %w", err)
	}
	defer conn.Close()

	if err := handshake(conn); err != nil {
		return err
	}

	fd := int(os.Stdin.Fd())
	if !term.IsTerminal(fd) {
		return fmt.Errorf("client: stdin is not a terminal")
	}
	oldState, err := term.MakeRaw(fd)
	if err != nil {
		return fmt.Errorf("client: failed to set raw mode: %w", err)
	}
	restore := func() { term.Restore(fd, oldState) }
	defer restore()

	// The original client's sigchld_handler restores the terminal and
	// exits the moment its local I/O child dies unexpectedly; here there
	// is no local child, so the analogous signal is SIGTERM/SIGINT
	// delivered to us directly, or — if the remote shell exits — simply
	// the socket returning EOF, handled by the copy loop below.
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		restore()
		os.Exit(1)
	}()
	defer signal.Stop(sigCh)

	return relay(conn)
}

// handshake performs steps 1-3 of the wire protocol from the client's
// side: read the greeting, send the shared token, read the acknowledgment.
func handshake(conn net.Conn) error {
	if err := proto.ReadGreeting(conn, 10*time.Second); err != nil {
		return fmt.Errorf("client: unexpected greeting from server: %w", err)
	}
	if _, err := conn.Write([]byte(proto.Secret)); err != nil {
		return fmt.Errorf("client: failed to send token: %w", err)
	}
	conn.SetReadDeadline(time.Now().Add(10 * time.Second))
	defer conn.SetReadDeadline(time.Time{})
	if err := proto.ReadExact(conn, proto.OK); err != nil {
		return fmt.Errorf("client: handshake rejected by server")
	}
	return nil
}

// relay runs the two-direction copy until either side closes, mirroring
// the original's parent/child split: one loop reads the socket and writes
// stdout, the other reads stdin and writes the socket.
func relay(conn net.Conn) error {
	done := make(chan error, 2)

	go func() {
		_, err := io.Copy(os.Stdout, conn)
		done <- err
	}()
	go func() {
		_, err := io.Copy(conn, os.Stdin)
		done <- err
	}()

	err := <-done
	conn.Close() // unblock whichever copy loop is still running
	<-done
	if err != nil && err != io.EOF {
		log.Printf("client: session ended: %v", err)
	}
	return err
}
