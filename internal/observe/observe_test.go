package observe

import (
	"encoding/json"
	"testing"
	"time"
)

func fixedNow() time.Time {
	return time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
}

func TestHooksTrackPairedSessionCount(t *testing.T) {
	sc := New(1, fixedNow)
	hooks := sc.Hooks()

	hooks.OnConnect(5)
	hooks.OnHandshakeOK(5, 12, 999)
	hooks.OnHandshakeOK(6, 13, 1000)

	if sc.sessions != 2 {
		t.Fatalf("sessions = %d, want 2", sc.sessions)
	}
}

func TestBroadcastWithNoObserversDoesNotBlock(t *testing.T) {
	sc := New(1, fixedNow)
	done := make(chan struct{})
	go func() {
		sc.broadcast(Event{Type: "session_opened", Fd: 7})
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("broadcast blocked with zero observers")
	}
}

func TestBroadcastDeliversToRegisteredObserverAndStampsTime(t *testing.T) {
	sc := New(1, fixedNow)
	o := &observer{send: make(chan Event, 1)}
	sc.mu.Lock()
	sc.observers[o] = struct{}{}
	sc.mu.Unlock()

	sc.broadcast(Event{Type: "handshake_ok", Fd: 5, Peer: 12, PID: 999})

	select {
	case ev := <-o.send:
		if ev.At != fixedNow().Format(time.RFC3339Nano) {
			t.Fatalf("At = %q, want timestamp from injected clock", ev.At)
		}
		if ev.Type != "handshake_ok" || ev.Fd != 5 || ev.Peer != 12 || ev.PID != 999 {
			t.Fatalf("unexpected event: %+v", ev)
		}
	default:
		t.Fatal("registered observer received nothing")
	}
}

func TestBroadcastDropsOnFullObserverChannel(t *testing.T) {
	sc := New(1, fixedNow)
	o := &observer{send: make(chan Event)} // unbuffered, nobody reading
	sc.mu.Lock()
	sc.observers[o] = struct{}{}
	sc.mu.Unlock()

	done := make(chan struct{})
	go func() {
		sc.broadcast(Event{Type: "session_closed", Fd: 9})
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("broadcast blocked on a slow observer instead of dropping")
	}
}

func TestStatusReflectsPairedSessionsWhenProcessLookupFails(t *testing.T) {
	sc := New(-1, fixedNow) // pid -1 never resolves to a real process
	sc.Hooks().OnHandshakeOK(1, 2, 3)

	st := sc.status()
	if st.PairedSessions != 1 {
		t.Fatalf("PairedSessions = %d, want 1", st.PairedSessions)
	}
	if st.PID != -1 {
		t.Fatalf("PID = %d, want -1", st.PID)
	}

	data, err := json.Marshal(st)
	if err != nil {
		t.Fatalf("marshal status: %v", err)
	}
	var roundtrip Status
	if err := json.Unmarshal(data, &roundtrip); err != nil {
		t.Fatalf("unmarshal status: %v", err)
	}
	if roundtrip != st {
		t.Fatalf("status JSON round trip mismatch: %+v vs %+v", roundtrip, st)
	}
}
