package room

import (
	"context"
	"time"

	"PSession/logger"
	"PSession/module/session/model"
	"PSession/module/session/store"

	"github.com/google/uuid"
)

// TouchTTL is how long a touched room may stay a placeholder before the
// sweep deletes it.
const TouchTTL = 5 * time.Minute

// Registry owns the room lifecycle: touch -> enter -> delete, plus the
// occupancy counters. Counter underflow is clamped and logged, never fatal;
// session bookkeeping degrades gracefully under races.
type Registry struct {
	db store.DB
}

func NewRegistry(db store.DB) *Registry {
	return &Registry{db: db}
}

// Touch reserves a room slot before entry is confirmed: a placeholder with
// a fresh order index, a nil detail block and the current timestamp.
func (r *Registry) Touch(ctx context.Context) (*model.Room, error) {
	order, err := r.db.NextRoomOrder(ctx)
	if err != nil {
		return nil, err
	}
	rec := &model.Room{
		Key:        uuid.NewString(),
		Order:      order,
		Status:     model.RoomStatusTouched,
		CreateTime: time.Now().UnixMilli(),
	}
	if err := r.db.InsertRoom(ctx, rec); err != nil {
		return nil, err
	}
	return rec, nil
}

// Enter attaches detail to a placeholder. Fails with ErrRoomNotFound or
// ErrRoomAlreadyEntered.
func (r *Registry) Enter(ctx context.Context, roomKey string, detail *model.RoomDetail) (*model.Room, error) {
	if detail.RoomPrefix == "" {
		detail.RoomPrefix = uuid.NewString()
	}
	now := time.Now().UnixMilli()
	if err := r.db.AttachRoomDetail(ctx, roomKey, detail, now); err != nil {
		return nil, err
	}
	return r.db.FindRoom(ctx, roomKey)
}

func (r *Registry) Get(ctx context.Context, roomKey string) (*model.Room, error) {
	return r.db.FindRoom(ctx, roomKey)
}

func (r *Registry) List(ctx context.Context) ([]*model.Room, error) {
	return r.db.ListRooms(ctx)
}

// IncrementMembership applies delta to the member count. Underflow is
// clamped to zero and logged as an anomaly.
func (r *Registry) IncrementMembership(ctx context.Context, roomKey string, delta int) (int, error) {
	res, err := r.db.AddRoomMember(ctx, roomKey, delta)
	if err != nil {
		return 0, err
	}
	if res.Clamped {
		logger.Warnf("[room] member count underflow clamped room=%s delta=%d", roomKey, delta)
	}
	return res.Value, nil
}

// DecrementLogin drops the room's logged-in count by one, clamped at zero.
func (r *Registry) DecrementLogin(ctx context.Context, roomKey string) (int, error) {
	res, err := r.db.AddRoomLoggedIn(ctx, roomKey, -1, time.Now().UnixMilli())
	if err != nil {
		return 0, err
	}
	if res.Clamped {
		logger.Warnf("[room] logged-in count underflow clamped room=%s", roomKey)
	}
	return res.Value, nil
}

// IncrementLogin raises the room's logged-in count by one.
func (r *Registry) IncrementLogin(ctx context.Context, roomKey string) (int, error) {
	res, err := r.db.AddRoomLoggedIn(ctx, roomKey, 1, time.Now().UnixMilli())
	if err != nil {
		return 0, err
	}
	return res.Value, nil
}

// SweepExpiredTouched deletes every placeholder older than TouchTTL and
// returns the deleted set so callers can notify observers. Entered rooms
// are never deleted here regardless of age.
func (r *Registry) SweepExpiredTouched(ctx context.Context, now time.Time) ([]*model.Room, error) {
	before := now.Add(-TouchTTL).UnixMilli()
	expired, err := r.db.ListExpiredTouched(ctx, before)
	if err != nil {
		return nil, err
	}
	if len(expired) == 0 {
		return nil, nil
	}
	keys := make([]string, 0, len(expired))
	for _, rec := range expired {
		keys = append(keys, rec.Key)
	}
	if err := r.db.DeleteTouchedRooms(ctx, keys, before); err != nil {
		return nil, err
	}
	return expired, nil
}

// Delete removes a room record. The disconnect path is responsible for
// making sure no live connection still references it.
func (r *Registry) Delete(ctx context.Context, roomKey string) error {
	return r.db.DeleteRoom(ctx, roomKey)
}
