package store

import (
	"context"
	"sort"
	"sync"

	"PSession/module/session/model"
	"PSession/tools/errs"
)

// memDB is the in-memory DB used by unit tests and single-node setups
// without a document store. Mutations hold the mutex for their whole
// read-modify-write, so each counter update is atomic like the pipeline
// updates of the mongo implementation.
type memDB struct {
	mu        sync.RWMutex
	sockets   map[string]*model.SocketConn
	rooms     map[string]*model.Room
	users     map[string]map[string]*model.RoomUser // prefix -> key -> user
	tokens    map[string]*model.Token
	roomOrder int
}

func NewMemDB() DB {
	return &memDB{
		sockets: make(map[string]*model.SocketConn),
		rooms:   make(map[string]*model.Room),
		users:   make(map[string]map[string]*model.RoomUser),
		tokens:  make(map[string]*model.Token),
	}
}

func copySocket(s *model.SocketConn) *model.SocketConn {
	cp := *s
	return &cp
}

func copyRoom(r *model.Room) *model.Room {
	cp := *r
	if r.Detail != nil {
		d := *r.Detail
		cp.Detail = &d
	}
	return &cp
}

func copyUser(u *model.RoomUser) *model.RoomUser {
	cp := *u
	return &cp
}

// ===== sockets =====

func (db *memDB) InsertSocket(ctx context.Context, rec *model.SocketConn) error {
	db.mu.Lock()
	defer db.mu.Unlock()
	if _, ok := db.sockets[rec.ConnID]; ok {
		return errs.ErrDuplicateConnection.WrapMsg("", "conn_id", rec.ConnID)
	}
	db.sockets[rec.ConnID] = copySocket(rec)
	return nil
}

func (db *memDB) FindSocket(ctx context.Context, connID string) (*model.SocketConn, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()
	rec, ok := db.sockets[connID]
	if !ok {
		return nil, errs.ErrUnknownConnection.WrapMsg("", "conn_id", connID)
	}
	return copySocket(rec), nil
}

func (db *memDB) SetSocketRoom(ctx context.Context, connID, roomKey, roomPrefix string, roomNo int) error {
	db.mu.Lock()
	defer db.mu.Unlock()
	rec, ok := db.sockets[connID]
	if !ok {
		return nil // connection raced a close, bind is a no-op
	}
	rec.RoomKey = &roomKey
	rec.RoomNo = &roomNo
	if roomPrefix == "" {
		rec.RoomPrefix = nil
	} else {
		rec.RoomPrefix = &roomPrefix
	}
	return nil
}

func (db *memDB) SetSocketUser(ctx context.Context, connID, userKey, userName string) error {
	db.mu.Lock()
	defer db.mu.Unlock()
	rec, ok := db.sockets[connID]
	if !ok {
		return nil
	}
	rec.UserKey = &userKey
	rec.UserName = &userName
	return nil
}

func (db *memDB) SetSocketStorage(ctx context.Context, connID, storageID string) error {
	db.mu.Lock()
	defer db.mu.Unlock()
	rec, ok := db.sockets[connID]
	if !ok {
		return nil
	}
	rec.StorageID = &storageID
	return nil
}

func (db *memDB) PopSocket(ctx context.Context, connID string) (*model.SocketConn, error) {
	db.mu.Lock()
	defer db.mu.Unlock()
	rec, ok := db.sockets[connID]
	if !ok {
		return nil, errs.ErrUnknownConnection.WrapMsg("", "conn_id", connID)
	}
	delete(db.sockets, connID)
	return rec, nil
}

func (db *memDB) ListRoomSockets(ctx context.Context, roomKey string) ([]*model.SocketConn, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()
	var out []*model.SocketConn
	for _, rec := range db.sockets {
		if rec.RoomKey != nil && *rec.RoomKey == roomKey {
			out = append(out, copySocket(rec))
		}
	}
	return out, nil
}

func (db *memDB) ListSockets(ctx context.Context) ([]*model.SocketConn, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()
	out := make([]*model.SocketConn, 0, len(db.sockets))
	for _, rec := range db.sockets {
		out = append(out, copySocket(rec))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ConnID < out[j].ConnID })
	return out, nil
}

func (db *memDB) DeleteAllSockets(ctx context.Context) error {
	db.mu.Lock()
	defer db.mu.Unlock()
	db.sockets = make(map[string]*model.SocketConn)
	return nil
}

// ===== rooms =====

func (db *memDB) InsertRoom(ctx context.Context, rec *model.Room) error {
	db.mu.Lock()
	defer db.mu.Unlock()
	db.rooms[rec.Key] = copyRoom(rec)
	return nil
}

func (db *memDB) FindRoom(ctx context.Context, key string) (*model.Room, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()
	rec, ok := db.rooms[key]
	if !ok {
		return nil, errs.ErrRoomNotFound.WrapMsg("", "room_key", key)
	}
	return copyRoom(rec), nil
}

func (db *memDB) NextRoomOrder(ctx context.Context) (int, error) {
	db.mu.Lock()
	defer db.mu.Unlock()
	db.roomOrder++
	return db.roomOrder, nil
}

func (db *memDB) AttachRoomDetail(ctx context.Context, key string, detail *model.RoomDetail, updateTime int64) error {
	db.mu.Lock()
	defer db.mu.Unlock()
	rec, ok := db.rooms[key]
	if !ok {
		return errs.ErrRoomNotFound.WrapMsg("", "room_key", key)
	}
	if rec.Detail != nil {
		return errs.ErrRoomAlreadyEntered.WrapMsg("", "room_key", key)
	}
	d := *detail
	rec.Detail = &d
	rec.Status = model.RoomStatusEntered
	rec.UpdateTime = updateTime
	return nil
}

func clampedAdd(v *int, delta int) CounterResult {
	next := *v + delta
	clamped := next < 0
	if clamped {
		next = 0
	}
	*v = next
	return CounterResult{Value: next, Clamped: clamped}
}

func (db *memDB) AddRoomMember(ctx context.Context, key string, delta int) (CounterResult, error) {
	db.mu.Lock()
	defer db.mu.Unlock()
	rec, ok := db.rooms[key]
	if !ok || rec.Detail == nil {
		return CounterResult{}, errs.ErrRoomNotFound.WrapMsg("", "room_key", key)
	}
	return clampedAdd(&rec.Detail.MemberNum, delta), nil
}

func (db *memDB) AddRoomLoggedIn(ctx context.Context, key string, delta int, updateTime int64) (CounterResult, error) {
	db.mu.Lock()
	defer db.mu.Unlock()
	rec, ok := db.rooms[key]
	if !ok || rec.Detail == nil {
		return CounterResult{}, errs.ErrRoomNotFound.WrapMsg("", "room_key", key)
	}
	rec.UpdateTime = updateTime
	return clampedAdd(&rec.Detail.LoggedIn, delta), nil
}

func (db *memDB) DeleteRoom(ctx context.Context, key string) error {
	db.mu.Lock()
	defer db.mu.Unlock()
	delete(db.rooms, key)
	return nil
}

func (db *memDB) ListRooms(ctx context.Context) ([]*model.Room, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()
	out := make([]*model.Room, 0, len(db.rooms))
	for _, rec := range db.rooms {
		out = append(out, copyRoom(rec))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Order < out[j].Order })
	return out, nil
}

func (db *memDB) ListExpiredTouched(ctx context.Context, before int64) ([]*model.Room, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()
	var out []*model.Room
	for _, rec := range db.rooms {
		if rec.Detail == nil && rec.CreateTime < before {
			out = append(out, copyRoom(rec))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Order < out[j].Order })
	return out, nil
}

func (db *memDB) DeleteTouchedRooms(ctx context.Context, keys []string, before int64) error {
	db.mu.Lock()
	defer db.mu.Unlock()
	for _, key := range keys {
		rec, ok := db.rooms[key]
		if !ok {
			continue
		}
		// re-verify at delete time
		if rec.Detail == nil && rec.CreateTime < before {
			delete(db.rooms, key)
		}
	}
	return nil
}

func (db *memDB) ResetRoomMembers(ctx context.Context) error {
	db.mu.Lock()
	defer db.mu.Unlock()
	for _, rec := range db.rooms {
		if rec.Detail != nil {
			rec.Detail.MemberNum = 0
			rec.Detail.LoggedIn = 0
		}
	}
	return nil
}

// ===== users =====

func (db *memDB) userNS(prefix string) map[string]*model.RoomUser {
	ns, ok := db.users[prefix]
	if !ok {
		ns = make(map[string]*model.RoomUser)
		db.users[prefix] = ns
	}
	return ns
}

func (db *memDB) UpsertUser(ctx context.Context, prefix string, rec *model.RoomUser) error {
	db.mu.Lock()
	defer db.mu.Unlock()
	db.userNS(prefix)[rec.Key] = copyUser(rec)
	return nil
}

func (db *memDB) FindUser(ctx context.Context, prefix, key string) (*model.RoomUser, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()
	if ns, ok := db.users[prefix]; ok {
		if rec, ok := ns[key]; ok {
			return copyUser(rec), nil
		}
	}
	return nil, errs.ErrUserNotFound.WrapMsg("", "user_key", key, "prefix", prefix)
}

func (db *memDB) FindUserByName(ctx context.Context, prefix, name string) (*model.RoomUser, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()
	if ns, ok := db.users[prefix]; ok {
		for _, rec := range ns {
			if rec.Name == name {
				return copyUser(rec), nil
			}
		}
	}
	return nil, errs.ErrUserNotFound.WrapMsg("", "user_name", name, "prefix", prefix)
}

func (db *memDB) AddUserLogin(ctx context.Context, prefix, key string, delta int) (*model.RoomUser, CounterResult, error) {
	db.mu.Lock()
	defer db.mu.Unlock()
	ns, ok := db.users[prefix]
	if !ok {
		return nil, CounterResult{}, errs.ErrUserNotFound.WrapMsg("", "user_key", key, "prefix", prefix)
	}
	rec, ok := ns[key]
	if !ok {
		return nil, CounterResult{}, errs.ErrUserNotFound.WrapMsg("", "user_key", key, "prefix", prefix)
	}
	res := clampedAdd(&rec.Login, delta)
	return copyUser(rec), res, nil
}

func (db *memDB) ResetUserLogins(ctx context.Context, prefix string) error {
	db.mu.Lock()
	defer db.mu.Unlock()
	if ns, ok := db.users[prefix]; ok {
		for _, rec := range ns {
			rec.Login = 0
		}
	}
	return nil
}

// ===== tokens =====

func (db *memDB) InsertToken(ctx context.Context, rec *model.Token) error {
	db.mu.Lock()
	defer db.mu.Unlock()
	cp := *rec
	db.tokens[rec.Key] = &cp
	return nil
}

func (db *memDB) FindToken(ctx context.Context, key string) (*model.Token, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()
	rec, ok := db.tokens[key]
	if !ok {
		return nil, errs.ErrTokenNotFound.WrapMsg("", "token_key", key)
	}
	cp := *rec
	return &cp, nil
}

func (db *memDB) DeleteExpiredTokens(ctx context.Context, now int64) (int64, error) {
	db.mu.Lock()
	defer db.mu.Unlock()
	var n int64
	for key, rec := range db.tokens {
		if rec.Expires < now {
			delete(db.tokens, key)
			n++
		}
	}
	return n, nil
}
