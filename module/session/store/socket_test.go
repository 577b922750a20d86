package store

import (
	"context"
	"testing"

	"PSession/tools/errs"
)

func TestOpenRejectsDuplicateConnID(t *testing.T) {
	ctx := context.Background()
	s := NewSessionStore(NewMemDB())

	if _, err := s.Open(ctx, "conn-a"); err != nil {
		t.Fatalf("first open: %v", err)
	}
	_, err := s.Open(ctx, "conn-a")
	if err == nil {
		t.Fatal("second open succeeded, want duplicate error")
	}
	if !errs.IsDuplicate(err) {
		t.Fatalf("want duplicate error, got %v", err)
	}
}

func TestCloseReturnsSnapshotOnce(t *testing.T) {
	ctx := context.Background()
	s := NewSessionStore(NewMemDB())

	if _, err := s.Open(ctx, "conn-a"); err != nil {
		t.Fatalf("open: %v", err)
	}
	if err := s.BindRoom(ctx, "conn-a", "room-1", "prefix-1", 7); err != nil {
		t.Fatalf("bind room: %v", err)
	}

	rec, err := s.Close(ctx, "conn-a")
	if err != nil {
		t.Fatalf("close: %v", err)
	}
	if rec.RoomKey == nil || *rec.RoomKey != "room-1" {
		t.Fatalf("snapshot lost room binding: %+v", rec)
	}
	if rec.RoomPrefix == nil || *rec.RoomPrefix != "prefix-1" {
		t.Fatalf("snapshot lost room prefix: %+v", rec)
	}

	if _, err := s.Close(ctx, "conn-a"); !errs.IsNotFound(err) {
		t.Fatalf("second close: want not-found, got %v", err)
	}
	if _, err := s.Lookup(ctx, "conn-a"); !errs.IsNotFound(err) {
		t.Fatalf("lookup after close: want not-found, got %v", err)
	}
}

func TestBindRoomEmptyPrefixStaysNil(t *testing.T) {
	ctx := context.Background()
	s := NewSessionStore(NewMemDB())

	if _, err := s.Open(ctx, "conn-a"); err != nil {
		t.Fatalf("open: %v", err)
	}
	if err := s.BindRoom(ctx, "conn-a", "room-1", "", 1); err != nil {
		t.Fatalf("bind room: %v", err)
	}
	rec, err := s.Lookup(ctx, "conn-a")
	if err != nil {
		t.Fatalf("lookup: %v", err)
	}
	if rec.RoomPrefix != nil {
		t.Fatalf("touched binding must keep prefix nil, got %q", *rec.RoomPrefix)
	}
	if rec.RoomKey == nil || *rec.RoomKey != "room-1" {
		t.Fatalf("room key missing: %+v", rec)
	}
}

func TestBindAfterCloseIsNoop(t *testing.T) {
	ctx := context.Background()
	s := NewSessionStore(NewMemDB())

	if err := s.BindRoom(ctx, "gone", "room-1", "p", 1); err != nil {
		t.Fatalf("bind on missing conn must be a no-op, got %v", err)
	}
	if err := s.BindUser(ctx, "gone", "uk", "alice"); err != nil {
		t.Fatalf("bind user on missing conn must be a no-op, got %v", err)
	}
}

func TestRoommatesOrdering(t *testing.T) {
	ctx := context.Background()
	s := NewSessionStore(NewMemDB())

	bind := func(connID, name string) {
		t.Helper()
		if _, err := s.Open(ctx, connID); err != nil {
			t.Fatalf("open %s: %v", connID, err)
		}
		if err := s.BindRoom(ctx, connID, "room-1", "prefix-1", 1); err != nil {
			t.Fatalf("bind room %s: %v", connID, err)
		}
		if err := s.BindUser(ctx, connID, "key-"+name, name); err != nil {
			t.Fatalf("bind user %s: %v", connID, err)
		}
	}
	bind("conn-a", "alice")
	bind("conn-b", "alice")
	bind("conn-c", "bob")

	// outsider must never show up
	if _, err := s.Open(ctx, "conn-d"); err != nil {
		t.Fatalf("open outsider: %v", err)
	}

	mates, err := s.Roommates(ctx, "conn-a")
	if err != nil {
		t.Fatalf("roommates: %v", err)
	}
	got := make([]string, 0, len(mates))
	for _, m := range mates {
		got = append(got, m.ConnID)
	}
	want := []string{"conn-a", "conn-b", "conn-c"}
	if len(got) != len(want) {
		t.Fatalf("roommates = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("roommates = %v, want %v", got, want)
		}
	}
}

func TestRoommatesWithoutRoomIsSelfOnly(t *testing.T) {
	ctx := context.Background()
	s := NewSessionStore(NewMemDB())

	if _, err := s.Open(ctx, "conn-a"); err != nil {
		t.Fatalf("open: %v", err)
	}
	mates, err := s.Roommates(ctx, "conn-a")
	if err != nil {
		t.Fatalf("roommates: %v", err)
	}
	if len(mates) != 1 || mates[0].ConnID != "conn-a" {
		t.Fatalf("roommates for unbound conn = %v, want self only", mates)
	}
}
