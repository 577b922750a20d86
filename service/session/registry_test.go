package session

import (
	"testing"
	"time"
)

func TestBroadcastRacingRemoveDropsFrameSafely(t *testing.T) {
	fanout := NewFanout(1, 16)
	reg := NewRegistry(fanout)

	a := NewClient("conn-a", nil, 4)
	b := NewClient("conn-b", nil, 4)
	reg.Add(a)
	reg.Add(b)

	// a disconnect can land between snapshotting the client list and the
	// worker delivering the frame; the stale entry must be skipped, not
	// crash the pool
	stale := reg.listAll()
	reg.Remove("conn-a")
	fanout.Broadcast(stale, []byte(`{"event":"notify-room-update"}`))

	select {
	case data, ok := <-b.Send:
		if !ok || len(data) == 0 {
			t.Fatal("live client lost its frame")
		}
	case <-time.After(time.Second):
		t.Fatal("live client never received the frame")
	}

	if c := reg.Get("conn-a"); c != nil {
		t.Fatal("removed connection still registered")
	}
}

func TestClientCloseIsIdempotent(t *testing.T) {
	c := NewClient("conn-a", nil, 1)
	c.Close()
	c.Close()

	// sends after close are dropped without touching the closed queue
	c.trySend([]byte("late"))

	if _, ok := <-c.Send; ok {
		t.Fatal("closed queue still delivered a frame")
	}
}

func TestRemoveUnknownConnIsNoop(t *testing.T) {
	reg := NewRegistry(NewFanout(1, 4))
	reg.Remove("never-added")
}

func TestTrySendSkipsFullQueue(t *testing.T) {
	c := NewClient("conn-a", nil, 1)
	c.trySend([]byte("first"))
	c.trySend([]byte("second")) // queue full, dropped

	if got := <-c.Send; string(got) != "first" {
		t.Fatalf("queued frame = %q, want first", got)
	}
	select {
	case got := <-c.Send:
		t.Fatalf("unexpected extra frame %q", got)
	default:
	}
}
