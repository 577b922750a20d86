package user

import (
	"context"
	"testing"

	"PSession/module/session/store"
	"PSession/tools/errs"
)

func TestFindOrCreateIsIdempotentPerName(t *testing.T) {
	ctx := context.Background()
	r := NewRegistry(store.NewMemDB())

	first, err := r.FindOrCreate(ctx, "prefix-1", "alice", "member")
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if first.Login != 0 {
		t.Fatalf("fresh user must start logged out, login=%d", first.Login)
	}

	again, err := r.FindOrCreate(ctx, "prefix-1", "alice", "member")
	if err != nil {
		t.Fatalf("find: %v", err)
	}
	if again.Key != first.Key {
		t.Fatalf("same name resolved to different users: %s != %s", again.Key, first.Key)
	}

	other, err := r.FindOrCreate(ctx, "prefix-2", "alice", "member")
	if err != nil {
		t.Fatalf("create in other namespace: %v", err)
	}
	if other.Key == first.Key {
		t.Fatal("namespaces must not share user records")
	}
}

func TestLoginDeltaClampsAtZero(t *testing.T) {
	ctx := context.Background()
	r := NewRegistry(store.NewMemDB())

	usr, err := r.FindOrCreate(ctx, "prefix-1", "alice", "member")
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	up, err := r.LoginDelta(ctx, "prefix-1", usr.Key, 1)
	if err != nil || up.Login != 1 {
		t.Fatalf("login +1 = %+v, %v", up, err)
	}
	up, err = r.LoginDelta(ctx, "prefix-1", usr.Key, 1)
	if err != nil || up.Login != 2 {
		t.Fatalf("login +1 = %+v, %v", up, err)
	}
	up, err = r.LoginDelta(ctx, "prefix-1", usr.Key, -1)
	if err != nil || up.Login != 1 {
		t.Fatalf("login -1 = %+v, %v", up, err)
	}
	up, err = r.LoginDelta(ctx, "prefix-1", usr.Key, -5)
	if err != nil || up.Login != 0 {
		t.Fatalf("login underflow must clamp to 0, got %+v, %v", up, err)
	}
}

func TestLoginDeltaUnknownUser(t *testing.T) {
	ctx := context.Background()
	r := NewRegistry(store.NewMemDB())

	_, err := r.LoginDelta(ctx, "prefix-1", "missing", 1)
	if !errs.IsNotFound(err) {
		t.Fatalf("want not-found, got %v", err)
	}
}
