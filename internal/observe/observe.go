// Package observe is an optional operations sidecar: a small HTTP server
// that upgrades /events to a WebSocket and broadcasts session lifecycle
// notifications (connect, handshake outcome, close) to anyone watching.
// It never touches the relay data path in internal/server — it only
// listens to the Hooks callbacks that package already exposes for this
// purpose. Off by default; an operator opts in with -observe.
package observe

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	psnet "github.com/shirou/gopsutil/v3/net"
	"nhooyr.io/websocket"

	"github.com/pelikenesis/rembash/internal/server"
)

// Event is one broadcast message, serialized as JSON to every connected
// observer.
type Event struct {
	Type string `json:"type"`
	Fd   int    `json:"fd,omitempty"`
	Peer int    `json:"peer,omitempty"`
	PID  int    `json:"pid,omitempty"`
	At   string `json:"at"`
}

// Sidecar fans events out to WebSocket observers and serves a small JSON
// status snapshot, the way the teacher's WSClient dials out to a relay
// server — here run in reverse, since it's the server doing the pushing.
type Sidecar struct {
	pid int

	mu        sync.Mutex
	observers map[*observer]struct{}
	sessions  int // live paired sessions, maintained from Hooks
	now       func() time.Time
}

type observer struct {
	send chan Event
}

// New creates a Sidecar for the server process identified by pid (used to
// cross-check the in-memory session count against real OS-level TCP
// connections via gopsutil).
func New(pid int, now func() time.Time) *Sidecar {
	if now == nil {
		now = time.Now
	}
	return &Sidecar{pid: pid, observers: make(map[*observer]struct{}), now: now}
}

// Hooks adapts the Sidecar into the server.Hooks callbacks.
func (sc *Sidecar) Hooks() server.Hooks {
	return server.Hooks{
		OnConnect: func(fd int) {
			sc.broadcast(Event{Type: "session_opened", Fd: fd})
		},
		OnHandshakeOK: func(socketFd, masterFd, pid int) {
			sc.mu.Lock()
			sc.sessions++
			sc.mu.Unlock()
			sc.broadcast(Event{Type: "handshake_ok", Fd: socketFd, Peer: masterFd, PID: pid})
		},
		OnClose: func(fd int) {
			sc.broadcast(Event{Type: "session_closed", Fd: fd})
		},
	}
}

func (sc *Sidecar) broadcast(ev Event) {
	ev.At = sc.now().Format(time.RFC3339Nano)
	sc.mu.Lock()
	targets := make([]*observer, 0, len(sc.observers))
	for o := range sc.observers {
		targets = append(targets, o)
	}
	sc.mu.Unlock()

	for _, o := range targets {
		select {
		case o.send <- ev:
		default:
			// Slow observer: drop rather than block the relay-adjacent
			// hook callback.
		}
	}
}

// Status is the JSON body served at /status.
type Status struct {
	PID              int `json:"pid"`
	PairedSessions   int `json:"paired_sessions"`
	OSConnectedCount int `json:"os_tcp_connections"`
}

func (sc *Sidecar) status() Status {
	sc.mu.Lock()
	sessions := sc.sessions
	sc.mu.Unlock()

	// Cross-check against the kernel's own view of this process's TCP
	// connections, the same call davidolrik-overseer uses to verify a
	// tunnel is actually established rather than trusting in-memory state
	// alone.
	conns, err := psnet.ConnectionsPid("tcp", int32(sc.pid))
	osCount := -1
	if err == nil {
		osCount = len(conns)
	}
	return Status{PID: sc.pid, PairedSessions: sessions, OSConnectedCount: osCount}
}

// Serve runs the HTTP+WS sidecar on addr until ctx is canceled.
func (sc *Sidecar) Serve(ctx context.Context, addr string, log *slog.Logger) error {
	mux := http.NewServeMux()
	mux.HandleFunc("/status", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(sc.status())
	})
	mux.HandleFunc("/events", func(w http.ResponseWriter, r *http.Request) {
		sc.serveWS(w, r, log)
	})

	srv := &http.Server{Addr: addr, Handler: mux}
	go func() {
		<-ctx.Done()
		srv.Close()
	}()

	log.Info("observability sidecar listening", "addr", addr)
	err := srv.ListenAndServe()
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

func (sc *Sidecar) serveWS(w http.ResponseWriter, r *http.Request, log *slog.Logger) {
	conn, err := websocket.Accept(w, r, nil)
	if err != nil {
		log.Warn("observer upgrade failed", "err", err)
		return
	}
	defer conn.CloseNow()

	o := &observer{send: make(chan Event, 32)}
	sc.mu.Lock()
	sc.observers[o] = struct{}{}
	sc.mu.Unlock()
	defer func() {
		sc.mu.Lock()
		delete(sc.observers, o)
		sc.mu.Unlock()
	}()

	ctx := r.Context()
	for {
		select {
		case ev := <-o.send:
			data, _ := json.Marshal(ev)
			wctx, cancel := context.WithTimeout(ctx, 5*time.Second)
			err := conn.Write(wctx, websocket.MessageText, data)
			cancel()
			if err != nil {
				return
			}
		case <-ctx.Done():
			return
		}
	}
}
