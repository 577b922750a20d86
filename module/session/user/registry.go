package user

import (
	"context"

	"PSession/logger"
	"PSession/module/session/model"
	"PSession/module/session/store"
	"PSession/tools/errs"

	"github.com/google/uuid"
)

// Registry owns per-room user records, keyed inside the room's collection
// namespace.
type Registry struct {
	db store.DB
}

func NewRegistry(db store.DB) *Registry {
	return &Registry{db: db}
}

// FindOrCreate returns the user with the given display name inside the
// room namespace, creating a fresh logged-out record when absent.
func (r *Registry) FindOrCreate(ctx context.Context, prefix, name, userType string) (*model.RoomUser, error) {
	rec, err := r.db.FindUserByName(ctx, prefix, name)
	if err == nil {
		return rec, nil
	}
	if !errs.IsNotFound(err) {
		return nil, err
	}
	rec = &model.RoomUser{
		Key:  uuid.NewString(),
		Name: name,
		Type: userType,
	}
	if err := r.db.UpsertUser(ctx, prefix, rec); err != nil {
		return nil, err
	}
	return rec, nil
}

func (r *Registry) Get(ctx context.Context, prefix, key string) (*model.RoomUser, error) {
	return r.db.FindUser(ctx, prefix, key)
}

// LoginDelta applies delta to the user's login counter and returns the
// updated record. The counter never goes negative; underflow is clamped
// and logged. When the counter reaches exactly zero the caller must also
// decrement the owning room's logged-in count — the room-level counter has
// to equal the number of users with a nonzero login counter at all times.
func (r *Registry) LoginDelta(ctx context.Context, prefix, userKey string, delta int) (*model.RoomUser, error) {
	rec, res, err := r.db.AddUserLogin(ctx, prefix, userKey, delta)
	if err != nil {
		return nil, err
	}
	if res.Clamped {
		logger.Warnf("[user] login count underflow clamped user=%s prefix=%s delta=%d", userKey, prefix, delta)
	}
	return rec, nil
}
