package model

// Room lifecycle status.
const (
	RoomStatusTouched = "touched" // placeholder, detail pending
	RoomStatusEntered = "entered"
)

// SocketConn is the session-store record of one live transport connection.
// Exactly one record exists per live connection; optional fields stay nil
// until the connection binds a room/user.
type SocketConn struct {
	ConnID      string  `bson:"conn_id" json:"conn_id"`
	ConnectTime int64   `bson:"connect_time" json:"connect_time"` // unix ms
	RoomNo      *int    `bson:"room_no" json:"room_no"`           // display order of the bound room
	RoomKey     *string `bson:"room_key" json:"room_key"`
	RoomPrefix  *string `bson:"room_prefix" json:"room_prefix"` // namespace of the room's user collection
	StorageID   *string `bson:"storage_id" json:"storage_id"`
	UserKey     *string `bson:"user_key" json:"user_key"`
	UserName    *string `bson:"user_name" json:"user_name"`
}

// RoomDetail is attached when a touched room is actually entered. A room
// with a nil detail is a placeholder and subject to the 5-minute sweep.
type RoomDetail struct {
	Name       string         `bson:"name" json:"name"`
	MemberNum  int            `bson:"member_num" json:"member_num"`
	LoggedIn   int            `bson:"logged_in" json:"logged_in"`
	Extend     map[string]any `bson:"extend" json:"extend"`
	RoomPrefix string         `bson:"room_prefix" json:"room_prefix"`
}

type Room struct {
	Key        string      `bson:"key" json:"key"`
	Order      int         `bson:"order" json:"order"` // stable external index
	Status     string      `bson:"status" json:"status"`
	CreateTime int64       `bson:"create_time" json:"create_time"` // unix ms
	UpdateTime int64       `bson:"update_time" json:"update_time"`
	Detail     *RoomDetail `bson:"detail" json:"detail"`
}

// Touched reports whether the room is still a placeholder.
func (r *Room) Touched() bool { return r.Detail == nil }

// RoomUser lives in the per-room user collection (namespaced by the room's
// collection prefix). Login counts distinct live connections currently
// authenticated as this user; 0 means logged out but reconnectable.
type RoomUser struct {
	Key   string `bson:"key" json:"key,omitempty"`
	Name  string `bson:"name" json:"name"`
	Type  string `bson:"type" json:"type"`
	Login int    `bson:"login" json:"login"`
}

// Token is an issued claim with an absolute expiry; expired tokens never
// survive a sweep cycle.
type Token struct {
	Key     string `bson:"key" json:"key"`
	Expires int64  `bson:"expires" json:"expires"` // unix ms
	Claim   string `bson:"claim" json:"claim"`
}

// UserNameOf returns the bound user name or "" when unbound.
func (s *SocketConn) UserNameOf() string {
	if s.UserName == nil {
		return ""
	}
	return *s.UserName
}

// RoomKeyOf returns the bound room key or "" when unbound.
func (s *SocketConn) RoomKeyOf() string {
	if s.RoomKey == nil {
		return ""
	}
	return *s.RoomKey
}
