package server

import (
	"bufio"
	"context"
	"io"
	"log/slog"
	"net"
	"testing"
	"time"

	"github.com/pelikenesis/rembash/internal/proto"
)

// testServer starts a real Server on loopback with a tiny shell ("cat",
// which echoes stdin to stdout) standing in for bash, so the relay path is
// exercised with a real forked process without depending on an
// interactive shell's prompt behavior.
func testServer(t *testing.T, maxSessions int) (addr string, cancel context.CancelFunc) {
	t.Helper()

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("find free port: %v", err)
	}
	addr = ln.Addr().String()
	ln.Close()

	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	srv, acc, err := New(Config{Addr: addr, MaxSessions: maxSessions, ShellPath: "cat"}, log)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	ctx, cancelFn := context.WithCancel(context.Background())
	go srv.Run(ctx, acc)

	// Give the acceptor a moment to start listening.
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if c, err := net.DialTimeout("tcp", addr, 50*time.Millisecond); err == nil {
			c.Close()
			break
		}
		time.Sleep(10 * time.Millisecond)
	}

	return addr, cancelFn
}

func readLine(t *testing.T, r *bufio.Reader) string {
	t.Helper()
	line, err := r.ReadString('\n')
	if err != nil {
		t.Fatalf("readLine: %v", err)
	}
	return line
}

func TestHappyHandshakeAndEchoRelay(t *testing.T) {
	addr, cancel := testServer(t, 10)
	defer cancel()

	conn, err := net.DialTimeout("tcp", addr, 2*time.Second)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()
	r := bufio.NewReader(conn)

	if got := readLine(t, r); got != proto.Greeting {
		t.Fatalf("greeting = %q, want %q", got, proto.Greeting)
	}
	conn.Write([]byte(proto.Secret))
	if got := readLine(t, r); got != proto.OK {
		t.Fatalf("ack = %q, want %q", got, proto.OK)
	}

	conn.Write([]byte("hello\n"))
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	if got := readLine(t, r); got != "hello\n" {
		t.Fatalf("echo = %q, want %q", got, "hello\n")
	}
}

func TestBadTokenNeverSeesOK(t *testing.T) {
	addr, cancel := testServer(t, 10)
	defer cancel()

	conn, err := net.DialTimeout("tcp", addr, 2*time.Second)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()
	r := bufio.NewReader(conn)

	readLine(t, r) // greeting
	conn.Write([]byte("nope\n"))

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	buf := make([]byte, 512)
	n, err := conn.Read(buf)
	got := string(buf[:n])
	if got == proto.OK {
		t.Fatalf("client observed <ok>\\n after a bad token")
	}
	if err != nil && err != io.EOF && n == 0 {
		// closed without sending anything further, which is acceptable —
		// spec.md §7 treats the error write as best-effort.
		return
	}
	if got != proto.ErrMsg && got != "" {
		t.Fatalf("unexpected response to bad token: %q", got)
	}
}

func TestClientDisconnectClosesCleanly(t *testing.T) {
	addr, cancel := testServer(t, 10)
	defer cancel()

	conn, err := net.DialTimeout("tcp", addr, 2*time.Second)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	r := bufio.NewReader(conn)
	readLine(t, r)
	conn.Write([]byte(proto.Secret))
	readLine(t, r)

	conn.Close()

	// A fresh connection must still succeed — the server must not have
	// wedged on the first client's abrupt close.
	conn2, err := net.DialTimeout("tcp", addr, 2*time.Second)
	if err != nil {
		t.Fatalf("second dial: %v", err)
	}
	defer conn2.Close()
	r2 := bufio.NewReader(conn2)
	if got := readLine(t, r2); got != proto.Greeting {
		t.Fatalf("greeting on second connection = %q, want %q", got, proto.Greeting)
	}
}

func TestCapacityBoundary(t *testing.T) {
	addr, cancel := testServer(t, 1)
	defer cancel()

	conn1, err := net.DialTimeout("tcp", addr, 2*time.Second)
	if err != nil {
		t.Fatalf("dial 1: %v", err)
	}
	defer conn1.Close()
	r1 := bufio.NewReader(conn1)
	readLine(t, r1) // consume the greeting so the session counts as "up"

	// The table's key domain for MaxSessions=1 is 2*1+16=18 — small enough
	// that a handful of extra connections can plausibly be refused once
	// their fd exceeds it, but descriptor numbers are not deterministic
	// across environments, so this only checks that SOME connection in a
	// burst is refused without a greeting, not a specific ordinal.
	var sawRefusal bool
	var conns []net.Conn
	for i := 0; i < 20; i++ {
		c, err := net.DialTimeout("tcp", addr, 500*time.Millisecond)
		if err != nil {
			continue
		}
		conns = append(conns, c)
		c.SetReadDeadline(time.Now().Add(300 * time.Millisecond))
		buf := make([]byte, len(proto.Greeting))
		n, _ := io.ReadFull(c, buf)
		if n == 0 {
			sawRefusal = true
		}
	}
	for _, c := range conns {
		c.Close()
	}
	if !sawRefusal {
		t.Skip("environment's fd numbering never exceeded the table's key domain in this run")
	}
}
