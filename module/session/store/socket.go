package store

import (
	"context"
	"sort"
	"time"

	"PSession/module/session/model"
)

// SessionStore owns the connection -> room/user binding. It is the source
// of truth consulted and mutated by every other component; consumers must
// treat a lookup miss as a recoverable race with a concurrent close.
type SessionStore struct {
	db DB
}

func NewSessionStore(db DB) *SessionStore {
	return &SessionStore{db: db}
}

func (s *SessionStore) DB() DB { return s.db }

// Open inserts a bare record for a fresh connection. Fails with
// ErrDuplicateConnection when the id is already registered.
func (s *SessionStore) Open(ctx context.Context, connID string) (*model.SocketConn, error) {
	rec := &model.SocketConn{
		ConnID:      connID,
		ConnectTime: time.Now().UnixMilli(),
	}
	if err := s.db.InsertSocket(ctx, rec); err != nil {
		return nil, err
	}
	return rec, nil
}

// BindRoom attaches a room binding. roomPrefix stays empty for a room that
// was touched but not yet entered. A no-op when the record is already gone.
func (s *SessionStore) BindRoom(ctx context.Context, connID, roomKey, roomPrefix string, roomNo int) error {
	return s.db.SetSocketRoom(ctx, connID, roomKey, roomPrefix, roomNo)
}

// BindUser attaches a user binding. A no-op when the record is already gone.
func (s *SessionStore) BindUser(ctx context.Context, connID, userKey, userName string) error {
	return s.db.SetSocketUser(ctx, connID, userKey, userName)
}

// BindStorage records the room-scoped storage reference of the connection.
func (s *SessionStore) BindStorage(ctx context.Context, connID, storageID string) error {
	return s.db.SetSocketStorage(ctx, connID, storageID)
}

// Lookup fails with ErrUnknownConnection when the record is absent.
func (s *SessionStore) Lookup(ctx context.Context, connID string) (*model.SocketConn, error) {
	return s.db.FindSocket(ctx, connID)
}

// Close atomically removes and returns the record. The caller releases
// room/user resources from the returned snapshot, so a double close finds
// nothing and releases nothing.
func (s *SessionStore) Close(ctx context.Context, connID string) (*model.SocketConn, error) {
	return s.db.PopSocket(ctx, connID)
}

// Roommates returns the connections sharing the caller's room, recomputed
// fresh on every call. The caller is always first, followed by the other
// connections of the same user name, then the rest of the room. Broadcast
// tie-break rules depend on this ordering.
func (s *SessionStore) Roommates(ctx context.Context, connID string) ([]*model.SocketConn, error) {
	self, err := s.db.FindSocket(ctx, connID)
	if err != nil {
		return nil, err
	}
	if self.RoomKey == nil {
		return []*model.SocketConn{self}, nil
	}

	mates, err := s.db.ListRoomSockets(ctx, *self.RoomKey)
	if err != nil {
		return nil, err
	}

	selfName := self.UserNameOf()
	rank := func(c *model.SocketConn) int {
		switch {
		case c.ConnID == self.ConnID:
			return 0
		case c.UserNameOf() == selfName:
			return 1
		default:
			return 2
		}
	}
	sort.SliceStable(mates, func(i, j int) bool {
		ri, rj := rank(mates[i]), rank(mates[j])
		if ri != rj {
			return ri < rj
		}
		if mates[i].ConnectTime != mates[j].ConnectTime {
			return mates[i].ConnectTime < mates[j].ConnectTime
		}
		return mates[i].ConnID < mates[j].ConnID
	})
	return mates, nil
}
