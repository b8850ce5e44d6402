package server

import "testing"

func TestTableCapacityBoundsKeySpace(t *testing.T) {
	tbl := NewTable(2) // cap = 2*2+16 = 20
	if tbl.Cap() != 20 {
		t.Fatalf("Cap() = %d, want 20", tbl.Cap())
	}
	if !tbl.Fits(19) {
		t.Fatalf("fd 19 should fit")
	}
	if tbl.Fits(20) {
		t.Fatalf("fd 20 should not fit")
	}
	if err := tbl.Put(20, &Connection{Fd: 20}); err == nil {
		t.Fatalf("Put beyond capacity should error")
	}
}

func TestTablePairInvariant(t *testing.T) {
	tbl := NewTable(10)
	tbl.Put(5, &Connection{Fd: 5, Peer: -1, State: AwaitingSecret})
	tbl.Put(9, &Connection{Fd: 9, Peer: -1, State: Relaying})

	if err := tbl.Pair(5, 9); err != nil {
		t.Fatalf("Pair: %v", err)
	}

	a, b := tbl.Get(5), tbl.Get(9)
	if a.Peer != 9 || b.Peer != 5 {
		t.Fatalf("pairing not symmetric: a.Peer=%d b.Peer=%d", a.Peer, b.Peer)
	}
	if a.State != Relaying || b.State != Relaying {
		t.Fatalf("pairing should move both records to Relaying")
	}
}

func TestTableDeleteIsIdempotent(t *testing.T) {
	tbl := NewTable(10)
	tbl.Put(3, &Connection{Fd: 3})
	tbl.Delete(3)
	tbl.Delete(3) // must not panic
	if tbl.Get(3) != nil {
		t.Fatalf("expected nil after delete")
	}
}

func TestTablePairMissingRecordErrors(t *testing.T) {
	tbl := NewTable(10)
	tbl.Put(1, &Connection{Fd: 1})
	if err := tbl.Pair(1, 2); err == nil {
		t.Fatalf("pairing against a missing record should error")
	}
}
