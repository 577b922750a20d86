package store

import (
	"context"

	"PSession/module/session/model"
)

// Collection names of the flat keyed document stores. Per-room user
// collections are namespaced by the room's collection prefix.
const (
	CollectionSocket = "socket"
	CollectionRoom   = "room"
	CollectionToken  = "token"
)

// UserCollection returns the namespaced user-list collection name.
func UserCollection(prefix string) string {
	return "user-list-" + prefix
}

// CounterResult reports an atomic clamped counter mutation. Clamped is set
// when the requested delta would have driven the counter negative; the
// store never persists a negative value.
type CounterResult struct {
	Value   int
	Clamped bool
}

// DB is the document-store contract of the session core. The production
// implementation is Mongo (mongo.go); tests run against the in-memory
// implementation (mem.go). Every counter mutation is a single atomic
// field-level update, never a read-then-write pair.
type DB interface {
	// sockets
	InsertSocket(ctx context.Context, rec *model.SocketConn) error
	FindSocket(ctx context.Context, connID string) (*model.SocketConn, error)
	SetSocketRoom(ctx context.Context, connID, roomKey, roomPrefix string, roomNo int) error
	SetSocketUser(ctx context.Context, connID, userKey, userName string) error
	SetSocketStorage(ctx context.Context, connID, storageID string) error
	PopSocket(ctx context.Context, connID string) (*model.SocketConn, error)
	ListRoomSockets(ctx context.Context, roomKey string) ([]*model.SocketConn, error)
	ListSockets(ctx context.Context) ([]*model.SocketConn, error)
	DeleteAllSockets(ctx context.Context) error

	// rooms
	InsertRoom(ctx context.Context, rec *model.Room) error
	FindRoom(ctx context.Context, key string) (*model.Room, error)
	NextRoomOrder(ctx context.Context) (int, error)
	AttachRoomDetail(ctx context.Context, key string, detail *model.RoomDetail, updateTime int64) error
	AddRoomMember(ctx context.Context, key string, delta int) (CounterResult, error)
	AddRoomLoggedIn(ctx context.Context, key string, delta int, updateTime int64) (CounterResult, error)
	DeleteRoom(ctx context.Context, key string) error
	ListRooms(ctx context.Context) ([]*model.Room, error)
	ListExpiredTouched(ctx context.Context, before int64) ([]*model.Room, error)
	DeleteTouchedRooms(ctx context.Context, keys []string, before int64) error
	ResetRoomMembers(ctx context.Context) error

	// users (per room namespace)
	UpsertUser(ctx context.Context, prefix string, rec *model.RoomUser) error
	FindUser(ctx context.Context, prefix, key string) (*model.RoomUser, error)
	FindUserByName(ctx context.Context, prefix, name string) (*model.RoomUser, error)
	AddUserLogin(ctx context.Context, prefix, key string, delta int) (*model.RoomUser, CounterResult, error)
	ResetUserLogins(ctx context.Context, prefix string) error

	// tokens
	InsertToken(ctx context.Context, rec *model.Token) error
	FindToken(ctx context.Context, key string) (*model.Token, error)
	DeleteExpiredTokens(ctx context.Context, now int64) (int64, error)
}
