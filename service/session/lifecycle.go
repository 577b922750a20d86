package session

import (
	"context"

	"PSession/logger"
	"PSession/module/session/model"
	"PSession/tools/errs"
)

// Open registers a fresh connection in the session store and mirrors it
// into presence. The mirror is best effort; the store is authoritative.
func (c *Core) Open(ctx context.Context, connID string) (*model.SocketConn, error) {
	rec, err := c.sessions.Open(ctx, connID)
	if err != nil {
		return nil, err
	}
	if c.presence != nil {
		if perr := c.presence.Connect(ctx, connID); perr != nil {
			logger.Warnf("[lifecycle] presence connect failed conn=%s err=%v", connID, perr)
		}
	}
	return rec, nil
}

// Close releases everything a connection held, working from the atomically
// popped snapshot so that a concurrent double close releases nothing twice.
// Cleanup steps run in a fixed order and every not-found along the way is a
// benign race, swallowed after a debug log.
func (c *Core) Close(ctx context.Context, connID string) error {
	rec, err := c.sessions.Close(ctx, connID)
	if err != nil {
		if errs.IsNotFound(err) {
			logger.Debug("[lifecycle] close of unknown connection conn=" + connID)
			return nil
		}
		return err
	}

	if rec.RoomKey != nil && rec.RoomPrefix == nil {
		c.releaseTouchedRoom(ctx, *rec.RoomKey)
	}

	if rec.RoomKey != nil && rec.RoomPrefix != nil && rec.UserKey != nil {
		c.logoutUser(ctx, rec)
	}

	if c.presence != nil {
		if _, perr := c.presence.Offline(ctx, connID, true, "disconnect"); perr != nil {
			logger.Warnf("[lifecycle] presence offline failed conn=%s err=%v", connID, perr)
		}
	}
	return nil
}

// releaseTouchedRoom deletes a placeholder the closing connection had
// touched but never entered, then tells everyone the room list changed.
func (c *Core) releaseTouchedRoom(ctx context.Context, roomKey string) {
	rm, err := c.rooms.Get(ctx, roomKey)
	if err != nil {
		if !errs.IsNotFound(err) {
			logger.Warnf("[lifecycle] touched room lookup failed room=%s err=%v", roomKey, err)
		}
		return
	}
	if !rm.Touched() {
		return
	}
	if err := c.rooms.Delete(ctx, roomKey); err != nil && !errs.IsNotFound(err) {
		logger.Warnf("[lifecycle] touched room delete failed room=%s err=%v", roomKey, err)
		return
	}
	orders := []int{rm.Order}
	c.emitter.Broadcast("notify-room-delete", nil, orders)
	if c.notifier != nil {
		if err := c.notifier.PublishRoomDelete(orders); err != nil {
			logger.Warnf("[lifecycle] room delete publish failed room=%s err=%v", roomKey, err)
		}
	}
}

// logoutUser drops the closing connection's login reference. The room's
// logged-in count follows the user counter: it decrements only on the
// user's last connection.
func (c *Core) logoutUser(ctx context.Context, rec *model.SocketConn) {
	updated, err := c.users.LoginDelta(ctx, *rec.RoomPrefix, *rec.UserKey, -1)
	if err != nil {
		if !errs.IsNotFound(err) {
			logger.Warnf("[lifecycle] logout failed user=%s err=%v", *rec.UserKey, err)
		}
		return
	}
	if updated.Login != 0 {
		return
	}
	if _, err := c.rooms.DecrementLogin(ctx, *rec.RoomKey); err != nil {
		if !errs.IsNotFound(err) {
			logger.Warnf("[lifecycle] room login decrement failed room=%s err=%v", *rec.RoomKey, err)
		}
		return
	}
	rm, err := c.rooms.Get(ctx, *rec.RoomKey)
	if err != nil {
		return
	}
	c.emitter.Broadcast("notify-room-update", nil, rm)
	if c.notifier != nil {
		if err := c.notifier.PublishRoomUpdate(rm); err != nil {
			logger.Warnf("[lifecycle] room update publish failed room=%s err=%v", rm.Key, err)
		}
	}
}

// BootNormalize resets every live-connection artifact at process start.
// Connection records never outlive the process that created them, so the
// whole socket collection and all occupancy counters restart from zero.
func (c *Core) BootNormalize(ctx context.Context) error {
	db := c.sessions.DB()
	if err := db.DeleteAllSockets(ctx); err != nil {
		return err
	}
	if err := db.ResetRoomMembers(ctx); err != nil {
		return err
	}
	rooms, err := db.ListRooms(ctx)
	if err != nil {
		return err
	}
	for _, rm := range rooms {
		if rm.Detail == nil {
			continue
		}
		if err := db.ResetUserLogins(ctx, rm.Detail.RoomPrefix); err != nil {
			return err
		}
	}
	return nil
}

// NotifyUserUpdate announces a user record change. The user themself and
// their other connections get the full record; unrelated room members get
// it without the user key.
func (c *Core) NotifyUserUpdate(ctx context.Context, connID string, rec *model.RoomUser) {
	_ = c.EmitEvent(ctx, connID, Self, "notify-user-update", nil, rec)
	_ = c.EmitEvent(ctx, connID, SelfOtherSocket, "notify-user-update", nil, rec)

	masked := *rec
	masked.Key = ""
	_ = c.EmitEvent(ctx, connID, RoomMateOtherSelf, "notify-user-update", nil, &masked)
}
