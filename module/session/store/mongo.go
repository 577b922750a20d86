package store

import (
	"context"

	"PSession/module/session/model"
	"PSession/tools/errs"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// mongoDB implements DB on top of the mongo driver. All counter updates go
// through aggregation-pipeline updates ($set with $max) so they stay a
// single atomic store operation even if the gateway is sharded later.
type mongoDB struct {
	db *mongo.Database
}

func NewMongoDB(db *mongo.Database) DB {
	return &mongoDB{db: db}
}

// EnsureIndexes creates the unique key indexes; call once at boot.
func EnsureIndexes(ctx context.Context, db *mongo.Database) error {
	one := int32(1)
	unique := true
	_, err := db.Collection(CollectionSocket).Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "conn_id", Value: one}}, Options: options.Index().SetUnique(unique)},
		{Keys: bson.D{{Key: "room_key", Value: one}}},
	})
	if err != nil {
		return err
	}
	_, err = db.Collection(CollectionRoom).Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: "key", Value: one}}, Options: options.Index().SetUnique(unique),
	})
	if err != nil {
		return err
	}
	_, err = db.Collection(CollectionToken).Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: "key", Value: one}}, Options: options.Index().SetUnique(unique),
	})
	return err
}

// ===== sockets =====

func (m *mongoDB) sockets() *mongo.Collection { return m.db.Collection(CollectionSocket) }
func (m *mongoDB) rooms() *mongo.Collection   { return m.db.Collection(CollectionRoom) }
func (m *mongoDB) tokens() *mongo.Collection  { return m.db.Collection(CollectionToken) }
func (m *mongoDB) users(prefix string) *mongo.Collection {
	return m.db.Collection(UserCollection(prefix))
}

func (m *mongoDB) InsertSocket(ctx context.Context, rec *model.SocketConn) error {
	_, err := m.sockets().InsertOne(ctx, rec)
	if mongo.IsDuplicateKeyError(err) {
		return errs.ErrDuplicateConnection.WrapMsg("", "conn_id", rec.ConnID)
	}
	return err
}

func (m *mongoDB) FindSocket(ctx context.Context, connID string) (*model.SocketConn, error) {
	var rec model.SocketConn
	err := m.sockets().FindOne(ctx, bson.M{"conn_id": connID}).Decode(&rec)
	if err == mongo.ErrNoDocuments {
		return nil, errs.ErrUnknownConnection.WrapMsg("", "conn_id", connID)
	}
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

func (m *mongoDB) SetSocketRoom(ctx context.Context, connID, roomKey, roomPrefix string, roomNo int) error {
	set := bson.M{"room_key": roomKey, "room_no": roomNo}
	if roomPrefix == "" {
		set["room_prefix"] = nil
	} else {
		set["room_prefix"] = roomPrefix
	}
	// matched==0 means the connection already closed; binds are no-ops then
	_, err := m.sockets().UpdateOne(ctx, bson.M{"conn_id": connID}, bson.M{"$set": set})
	return err
}

func (m *mongoDB) SetSocketUser(ctx context.Context, connID, userKey, userName string) error {
	_, err := m.sockets().UpdateOne(ctx, bson.M{"conn_id": connID},
		bson.M{"$set": bson.M{"user_key": userKey, "user_name": userName}})
	return err
}

func (m *mongoDB) SetSocketStorage(ctx context.Context, connID, storageID string) error {
	_, err := m.sockets().UpdateOne(ctx, bson.M{"conn_id": connID},
		bson.M{"$set": bson.M{"storage_id": storageID}})
	return err
}

func (m *mongoDB) PopSocket(ctx context.Context, connID string) (*model.SocketConn, error) {
	var rec model.SocketConn
	err := m.sockets().FindOneAndDelete(ctx, bson.M{"conn_id": connID}).Decode(&rec)
	if err == mongo.ErrNoDocuments {
		return nil, errs.ErrUnknownConnection.WrapMsg("", "conn_id", connID)
	}
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

func (m *mongoDB) ListRoomSockets(ctx context.Context, roomKey string) ([]*model.SocketConn, error) {
	cur, err := m.sockets().Find(ctx, bson.M{"room_key": roomKey})
	if err != nil {
		return nil, err
	}
	var out []*model.SocketConn
	if err := cur.All(ctx, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (m *mongoDB) ListSockets(ctx context.Context) ([]*model.SocketConn, error) {
	cur, err := m.sockets().Find(ctx, bson.M{})
	if err != nil {
		return nil, err
	}
	var out []*model.SocketConn
	if err := cur.All(ctx, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (m *mongoDB) DeleteAllSockets(ctx context.Context) error {
	_, err := m.sockets().DeleteMany(ctx, bson.M{})
	return err
}

// ===== rooms =====

func (m *mongoDB) InsertRoom(ctx context.Context, rec *model.Room) error {
	_, err := m.rooms().InsertOne(ctx, rec)
	return err
}

func (m *mongoDB) FindRoom(ctx context.Context, key string) (*model.Room, error) {
	var rec model.Room
	err := m.rooms().FindOne(ctx, bson.M{"key": key}).Decode(&rec)
	if err == mongo.ErrNoDocuments {
		return nil, errs.ErrRoomNotFound.WrapMsg("", "room_key", key)
	}
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

func (m *mongoDB) NextRoomOrder(ctx context.Context) (int, error) {
	after := options.After
	upsert := true
	res := m.db.Collection("counter").FindOneAndUpdate(ctx,
		bson.M{"key": "room_order"},
		bson.M{"$inc": bson.M{"seq": 1}},
		&options.FindOneAndUpdateOptions{Upsert: &upsert, ReturnDocument: &after},
	)
	var doc struct {
		Seq int `bson:"seq"`
	}
	if err := res.Decode(&doc); err != nil {
		return 0, err
	}
	return doc.Seq, nil
}

func (m *mongoDB) AttachRoomDetail(ctx context.Context, key string, detail *model.RoomDetail, updateTime int64) error {
	res, err := m.rooms().UpdateOne(ctx,
		bson.M{"key": key, "detail": nil},
		bson.M{"$set": bson.M{
			"detail":      detail,
			"status":      model.RoomStatusEntered,
			"update_time": updateTime,
		}},
	)
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		if _, ferr := m.FindRoom(ctx, key); ferr != nil {
			return ferr
		}
		return errs.ErrRoomAlreadyEntered.WrapMsg("", "room_key", key)
	}
	return nil
}

// clampedFieldAdd runs a single pipeline update field = max(0, field+delta)
// and derives the clamp flag from the pre-image.
func (m *mongoDB) clampedFieldAdd(ctx context.Context, col *mongo.Collection, filter bson.M, field string, delta int, extraSet bson.M) (CounterResult, error) {
	before := options.Before
	set := bson.M{
		field: bson.M{"$max": bson.A{0, bson.M{"$add": bson.A{"$" + field, delta}}}},
	}
	for k, v := range extraSet {
		set[k] = v
	}
	res := col.FindOneAndUpdate(ctx, filter,
		bson.A{bson.M{"$set": set}},
		&options.FindOneAndUpdateOptions{ReturnDocument: &before},
	)
	var raw bson.M
	if err := res.Decode(&raw); err != nil {
		if err == mongo.ErrNoDocuments {
			return CounterResult{}, mongo.ErrNoDocuments
		}
		return CounterResult{}, err
	}
	prev := readNestedInt(raw, field)
	next := prev + delta
	clamped := next < 0
	if clamped {
		next = 0
	}
	return CounterResult{Value: next, Clamped: clamped}, nil
}

func readNestedInt(doc bson.M, path string) int {
	cur := any(doc)
	start := 0
	for i := 0; i <= len(path); i++ {
		if i == len(path) || path[i] == '.' {
			mp, ok := cur.(bson.M)
			if !ok {
				return 0
			}
			cur = mp[path[start:i]]
			start = i + 1
		}
	}
	switch v := cur.(type) {
	case int32:
		return int(v)
	case int64:
		return int(v)
	case int:
		return v
	case float64:
		return int(v)
	}
	return 0
}

func (m *mongoDB) AddRoomMember(ctx context.Context, key string, delta int) (CounterResult, error) {
	res, err := m.clampedFieldAdd(ctx, m.rooms(),
		bson.M{"key": key, "detail": bson.M{"$ne": nil}},
		"detail.member_num", delta, nil)
	if err == mongo.ErrNoDocuments {
		return CounterResult{}, errs.ErrRoomNotFound.WrapMsg("", "room_key", key)
	}
	return res, err
}

func (m *mongoDB) AddRoomLoggedIn(ctx context.Context, key string, delta int, updateTime int64) (CounterResult, error) {
	res, err := m.clampedFieldAdd(ctx, m.rooms(),
		bson.M{"key": key, "detail": bson.M{"$ne": nil}},
		"detail.logged_in", delta, bson.M{"update_time": updateTime})
	if err == mongo.ErrNoDocuments {
		return CounterResult{}, errs.ErrRoomNotFound.WrapMsg("", "room_key", key)
	}
	return res, err
}

func (m *mongoDB) DeleteRoom(ctx context.Context, key string) error {
	_, err := m.rooms().DeleteOne(ctx, bson.M{"key": key})
	return err
}

func (m *mongoDB) ListRooms(ctx context.Context) ([]*model.Room, error) {
	cur, err := m.rooms().Find(ctx, bson.M{}, options.Find().SetSort(bson.D{{Key: "order", Value: 1}}))
	if err != nil {
		return nil, err
	}
	var out []*model.Room
	if err := cur.All(ctx, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (m *mongoDB) ListExpiredTouched(ctx context.Context, before int64) ([]*model.Room, error) {
	cur, err := m.rooms().Find(ctx, bson.M{
		"$and": bson.A{
			bson.M{"create_time": bson.M{"$lt": before}},
			bson.M{"detail": nil},
		},
	})
	if err != nil {
		return nil, err
	}
	var out []*model.Room
	if err := cur.All(ctx, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (m *mongoDB) DeleteTouchedRooms(ctx context.Context, keys []string, before int64) error {
	if len(keys) == 0 {
		return nil
	}
	// re-verify still-expired and still-placeholder at delete time
	_, err := m.rooms().DeleteMany(ctx, bson.M{
		"key":         bson.M{"$in": keys},
		"detail":      nil,
		"create_time": bson.M{"$lt": before},
	})
	return err
}

func (m *mongoDB) ResetRoomMembers(ctx context.Context) error {
	_, err := m.rooms().UpdateMany(ctx,
		bson.M{"detail": bson.M{"$ne": nil}},
		bson.A{bson.M{"$set": bson.M{"detail.member_num": 0, "detail.logged_in": 0}}},
	)
	return err
}

// ===== users =====

func (m *mongoDB) UpsertUser(ctx context.Context, prefix string, rec *model.RoomUser) error {
	upsert := true
	_, err := m.users(prefix).UpdateOne(ctx,
		bson.M{"key": rec.Key},
		bson.M{"$set": rec},
		&options.UpdateOptions{Upsert: &upsert},
	)
	return err
}

func (m *mongoDB) FindUser(ctx context.Context, prefix, key string) (*model.RoomUser, error) {
	var rec model.RoomUser
	err := m.users(prefix).FindOne(ctx, bson.M{"key": key}).Decode(&rec)
	if err == mongo.ErrNoDocuments {
		return nil, errs.ErrUserNotFound.WrapMsg("", "user_key", key, "prefix", prefix)
	}
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

func (m *mongoDB) FindUserByName(ctx context.Context, prefix, name string) (*model.RoomUser, error) {
	var rec model.RoomUser
	err := m.users(prefix).FindOne(ctx, bson.M{"name": name}).Decode(&rec)
	if err == mongo.ErrNoDocuments {
		return nil, errs.ErrUserNotFound.WrapMsg("", "user_name", name, "prefix", prefix)
	}
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

func (m *mongoDB) AddUserLogin(ctx context.Context, prefix, key string, delta int) (*model.RoomUser, CounterResult, error) {
	before := options.Before
	res := m.users(prefix).FindOneAndUpdate(ctx,
		bson.M{"key": key},
		bson.A{bson.M{"$set": bson.M{
			"login": bson.M{"$max": bson.A{0, bson.M{"$add": bson.A{"$login", delta}}}},
		}}},
		&options.FindOneAndUpdateOptions{ReturnDocument: &before},
	)
	var prev model.RoomUser
	if err := res.Decode(&prev); err != nil {
		if err == mongo.ErrNoDocuments {
			return nil, CounterResult{}, errs.ErrUserNotFound.WrapMsg("", "user_key", key, "prefix", prefix)
		}
		return nil, CounterResult{}, err
	}
	next := prev.Login + delta
	clamped := next < 0
	if clamped {
		next = 0
	}
	updated := prev
	updated.Login = next
	return &updated, CounterResult{Value: next, Clamped: clamped}, nil
}

func (m *mongoDB) ResetUserLogins(ctx context.Context, prefix string) error {
	_, err := m.users(prefix).UpdateMany(ctx, bson.M{},
		bson.A{bson.M{"$set": bson.M{"login": 0}}})
	return err
}

// ===== tokens =====

func (m *mongoDB) InsertToken(ctx context.Context, rec *model.Token) error {
	_, err := m.tokens().InsertOne(ctx, rec)
	return err
}

func (m *mongoDB) FindToken(ctx context.Context, key string) (*model.Token, error) {
	var rec model.Token
	err := m.tokens().FindOne(ctx, bson.M{"key": key}).Decode(&rec)
	if err == mongo.ErrNoDocuments {
		return nil, errs.ErrTokenNotFound.WrapMsg("", "token_key", key)
	}
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

func (m *mongoDB) DeleteExpiredTokens(ctx context.Context, now int64) (int64, error) {
	res, err := m.tokens().DeleteMany(ctx, bson.M{"expires": bson.M{"$lt": now}})
	if err != nil {
		return 0, err
	}
	return res.DeletedCount, nil
}
