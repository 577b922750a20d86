package room

import (
	"context"
	"testing"
	"time"

	"PSession/module/session/model"
	"PSession/module/session/store"
	"PSession/tools/errs"
)

func TestTouchThenEnter(t *testing.T) {
	ctx := context.Background()
	db := store.NewMemDB()
	r := NewRegistry(db)

	touched, err := r.Touch(ctx)
	if err != nil {
		t.Fatalf("touch: %v", err)
	}
	if touched.Status != model.RoomStatusTouched || touched.Detail != nil {
		t.Fatalf("touch produced non-placeholder: %+v", touched)
	}
	if touched.Order <= 0 {
		t.Fatalf("order not assigned: %d", touched.Order)
	}

	entered, err := r.Enter(ctx, touched.Key, &model.RoomDetail{Name: "daily"})
	if err != nil {
		t.Fatalf("enter: %v", err)
	}
	if entered.Status != model.RoomStatusEntered || entered.Detail == nil {
		t.Fatalf("enter did not attach detail: %+v", entered)
	}
	if entered.Detail.RoomPrefix == "" {
		t.Fatal("enter must assign a room prefix")
	}
	if entered.Order != touched.Order {
		t.Fatalf("order changed on enter: %d != %d", entered.Order, touched.Order)
	}
}

func TestEnterTwiceFails(t *testing.T) {
	ctx := context.Background()
	r := NewRegistry(store.NewMemDB())

	touched, err := r.Touch(ctx)
	if err != nil {
		t.Fatalf("touch: %v", err)
	}
	if _, err := r.Enter(ctx, touched.Key, &model.RoomDetail{Name: "one"}); err != nil {
		t.Fatalf("first enter: %v", err)
	}
	_, err = r.Enter(ctx, touched.Key, &model.RoomDetail{Name: "two"})
	if !errs.IsDuplicate(err) {
		t.Fatalf("second enter: want already-entered, got %v", err)
	}
}

func TestEnterUnknownRoomFails(t *testing.T) {
	ctx := context.Background()
	r := NewRegistry(store.NewMemDB())

	_, err := r.Enter(ctx, "no-such-room", &model.RoomDetail{Name: "x"})
	if !errs.IsNotFound(err) {
		t.Fatalf("want not-found, got %v", err)
	}
}

func TestCountersClampAtZero(t *testing.T) {
	ctx := context.Background()
	r := NewRegistry(store.NewMemDB())

	touched, err := r.Touch(ctx)
	if err != nil {
		t.Fatalf("touch: %v", err)
	}
	if _, err := r.Enter(ctx, touched.Key, &model.RoomDetail{Name: "daily"}); err != nil {
		t.Fatalf("enter: %v", err)
	}

	if n, err := r.IncrementMembership(ctx, touched.Key, 1); err != nil || n != 1 {
		t.Fatalf("member +1 = %d, %v", n, err)
	}
	if n, err := r.IncrementMembership(ctx, touched.Key, -5); err != nil || n != 0 {
		t.Fatalf("member -5 must clamp to 0, got %d, %v", n, err)
	}

	if n, err := r.IncrementLogin(ctx, touched.Key); err != nil || n != 1 {
		t.Fatalf("login +1 = %d, %v", n, err)
	}
	if n, err := r.DecrementLogin(ctx, touched.Key); err != nil || n != 0 {
		t.Fatalf("login -1 = %d, %v", n, err)
	}
	if n, err := r.DecrementLogin(ctx, touched.Key); err != nil || n != 0 {
		t.Fatalf("login underflow must clamp to 0, got %d, %v", n, err)
	}
}

func TestSweepExpiredTouched(t *testing.T) {
	ctx := context.Background()
	db := store.NewMemDB()
	r := NewRegistry(db)

	now := time.Now()
	insert := func(key string, age time.Duration, detail *model.RoomDetail) {
		t.Helper()
		order, err := db.NextRoomOrder(ctx)
		if err != nil {
			t.Fatalf("next order: %v", err)
		}
		status := model.RoomStatusTouched
		if detail != nil {
			status = model.RoomStatusEntered
		}
		err = db.InsertRoom(ctx, &model.Room{
			Key:        key,
			Order:      order,
			Status:     status,
			CreateTime: now.Add(-age).UnixMilli(),
			Detail:     detail,
		})
		if err != nil {
			t.Fatalf("insert %s: %v", key, err)
		}
	}

	insert("stale", TouchTTL+time.Second, nil)
	insert("fresh", TouchTTL-30*time.Second, nil)
	insert("entered-old", 24*time.Hour, &model.RoomDetail{Name: "keep"})

	deleted, err := r.SweepExpiredTouched(ctx, now)
	if err != nil {
		t.Fatalf("sweep: %v", err)
	}
	if len(deleted) != 1 || deleted[0].Key != "stale" {
		t.Fatalf("sweep deleted %v, want only stale", deleted)
	}

	if _, err := r.Get(ctx, "stale"); !errs.IsNotFound(err) {
		t.Fatalf("stale room must be gone, got %v", err)
	}
	if _, err := r.Get(ctx, "fresh"); err != nil {
		t.Fatalf("fresh placeholder must survive: %v", err)
	}
	if _, err := r.Get(ctx, "entered-old"); err != nil {
		t.Fatalf("entered room must survive regardless of age: %v", err)
	}
}

func TestSweepNothingExpired(t *testing.T) {
	ctx := context.Background()
	r := NewRegistry(store.NewMemDB())

	if _, err := r.Touch(ctx); err != nil {
		t.Fatalf("touch: %v", err)
	}
	deleted, err := r.SweepExpiredTouched(ctx, time.Now())
	if err != nil {
		t.Fatalf("sweep: %v", err)
	}
	if len(deleted) != 0 {
		t.Fatalf("fresh placeholder swept: %v", deleted)
	}
}
