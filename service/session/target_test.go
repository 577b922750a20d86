package session

import (
	"context"
	"reflect"
	"testing"

	"PSession/module/session/store"
)

// three room members: conn-a and conn-b share a user name, conn-c differs;
// conn-d sits outside the room.
func resolverFixture(t *testing.T) *Resolver {
	t.Helper()
	ctx := context.Background()
	sessions := store.NewSessionStore(store.NewMemDB())

	bind := func(connID, name string) {
		t.Helper()
		if _, err := sessions.Open(ctx, connID); err != nil {
			t.Fatalf("open %s: %v", connID, err)
		}
		if err := sessions.BindRoom(ctx, connID, "room-1", "prefix-1", 1); err != nil {
			t.Fatalf("bind room %s: %v", connID, err)
		}
		if err := sessions.BindUser(ctx, connID, "key-"+name, name); err != nil {
			t.Fatalf("bind user %s: %v", connID, err)
		}
	}
	bind("conn-a", "alice")
	bind("conn-b", "alice")
	bind("conn-c", "bob")
	if _, err := sessions.Open(ctx, "conn-d"); err != nil {
		t.Fatalf("open conn-d: %v", err)
	}
	return NewResolver(sessions)
}

func TestResolveRoomClasses(t *testing.T) {
	r := resolverFixture(t)
	ctx := context.Background()

	cases := []struct {
		name   string
		target SendTarget
		want   []string
	}{
		{"room", Room, []string{"conn-a", "conn-b", "conn-c"}},
		{"room-mate", RoomMate, []string{"conn-b", "conn-c"}},
		{"room-mate-other-self", RoomMateOtherSelf, []string{"conn-c"}},
		{"self-other-socket", SelfOtherSocket, []string{"conn-b"}},
		{"self", Self, []string{"conn-a"}},
		{"none", None, nil},
		{"list", ToConns("x", "y"), []string{"x", "y"}},
	}
	for _, tc := range cases {
		got, err := r.Resolve(ctx, "conn-a", tc.target)
		if err != nil {
			t.Fatalf("%s: %v", tc.name, err)
		}
		if !reflect.DeepEqual(got, tc.want) {
			t.Errorf("%s = %v, want %v", tc.name, got, tc.want)
		}
	}
}

func TestResolveAllPutsRequesterFirst(t *testing.T) {
	r := resolverFixture(t)
	ctx := context.Background()

	got, err := r.Resolve(ctx, "conn-c", All)
	if err != nil {
		t.Fatalf("all: %v", err)
	}
	want := []string{"conn-c", "conn-a", "conn-b", "conn-d"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("all = %v, want %v", got, want)
	}
}

func TestResolveAllWithoutRequester(t *testing.T) {
	r := resolverFixture(t)
	ctx := context.Background()

	got, err := r.Resolve(ctx, "", All)
	if err != nil {
		t.Fatalf("all: %v", err)
	}
	want := []string{"conn-a", "conn-b", "conn-c", "conn-d"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("server-internal all = %v, want %v", got, want)
	}
}

func TestResolveOtherExcludesRequester(t *testing.T) {
	r := resolverFixture(t)
	ctx := context.Background()

	got, err := r.Resolve(ctx, "conn-a", Other)
	if err != nil {
		t.Fatalf("other: %v", err)
	}
	want := []string{"conn-b", "conn-c", "conn-d"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("other = %v, want %v", got, want)
	}
}

func TestResolveSeesFreshMembership(t *testing.T) {
	ctx := context.Background()
	sessions := store.NewSessionStore(store.NewMemDB())
	r := NewResolver(sessions)

	for _, id := range []string{"conn-a", "conn-b"} {
		if _, err := sessions.Open(ctx, id); err != nil {
			t.Fatalf("open %s: %v", id, err)
		}
		if err := sessions.BindRoom(ctx, id, "room-1", "p", 1); err != nil {
			t.Fatalf("bind %s: %v", id, err)
		}
	}

	got, err := r.Resolve(ctx, "conn-a", RoomMate)
	if err != nil {
		t.Fatalf("room-mate: %v", err)
	}
	if len(got) != 1 || got[0] != "conn-b" {
		t.Fatalf("room-mate = %v, want [conn-b]", got)
	}

	// membership changes between resolutions must be observed
	if _, err := sessions.Close(ctx, "conn-b"); err != nil {
		t.Fatalf("close conn-b: %v", err)
	}
	got, err = r.Resolve(ctx, "conn-a", RoomMate)
	if err != nil {
		t.Fatalf("room-mate: %v", err)
	}
	if len(got) != 0 {
		t.Fatalf("room-mate after close = %v, want empty", got)
	}
}
