//go:build linux

package pty

import (
	"testing"
	"time"
)

func TestOpenAndRoundTrip(t *testing.T) {
	master, slavePath, err := Open()
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer master.Close()

	slave, err := OpenSlave(slavePath)
	if err != nil {
		t.Fatalf("OpenSlave(%s): %v", slavePath, err)
	}
	defer slave.Close()

	want := "hello pty\n"
	done := make(chan struct{})
	go func() {
		defer close(done)
		master.Write([]byte(want))
	}()

	buf := make([]byte, len(want))
	slave.SetReadDeadline(time.Now().Add(2 * time.Second))
	n, err := slave.Read(buf)
	if err != nil {
		t.Fatalf("slave.Read: %v", err)
	}
	if string(buf[:n]) != want {
		t.Fatalf("slave read %q, want %q", buf[:n], want)
	}
	<-done
}
