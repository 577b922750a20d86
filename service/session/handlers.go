package session

import (
	"context"
	"time"

	"PSession/logger"
	"PSession/module/session/model"
	"PSession/tools/decode"
	"PSession/tools/errs"
	"PSession/tools/ids"
)

type enterRoomArg struct {
	RoomKey string         `json:"room_key"`
	Name    string         `json:"name"`
	Extend  map[string]any `json:"extend"`
}

type loginUserArg struct {
	UserName string `json:"user_name"`
	UserType string `json:"user_type"`
}

type issueTokenArg struct {
	Kind   string `json:"kind"`
	TTLSec int    `json:"ttl_sec"`
}

type mediaInfo struct {
	ImageSrc     string `json:"image_src"`
	DataLocation string `json:"data_location"`
	ArrayBuffer  any    `json:"array_buffer"`
}

type uploadMediaArg struct {
	List []mediaInfo `json:"upload_media_info_list"`
}

// RegisterCoreEvents wires the built-in session events onto the dispatcher.
func (c *Core) RegisterCoreEvents() {
	c.Register("touch-room", c.handleTouchRoom)
	c.Register("enter-room", c.handleEnterRoom)
	c.Register("login-user", c.handleLoginUser)
	c.Register("issue-token", c.handleIssueToken)
	c.Register("upload-media", c.handleUploadMedia)
}

// handleTouchRoom reserves a placeholder room and binds the requester to it.
// The placeholder is reclaimed by the sweep or by the requester's disconnect
// unless enter-room confirms it within the touch TTL.
func (c *Core) handleTouchRoom(ctx context.Context, connID string, _ any) (any, error) {
	rm, err := c.rooms.Touch(ctx)
	if err != nil {
		return nil, err
	}
	if err := c.sessions.BindRoom(ctx, connID, rm.Key, "", rm.Order); err != nil {
		return nil, err
	}
	return rm, nil
}

// handleEnterRoom attaches detail to the requester's touched room, or joins
// a room someone else already entered.
func (c *Core) handleEnterRoom(ctx context.Context, connID string, arg any) (any, error) {
	p, err := decode.Payload[enterRoomArg](arg)
	if err != nil {
		return nil, err
	}

	rm, err := c.rooms.Enter(ctx, p.RoomKey, &model.RoomDetail{
		Name:   p.Name,
		Extend: p.Extend,
	})
	if err != nil {
		if !errs.IsDuplicate(err) {
			return nil, err
		}
		rm, err = c.rooms.Get(ctx, p.RoomKey)
		if err != nil {
			return nil, err
		}
	}

	if _, err := c.rooms.IncrementMembership(ctx, rm.Key, 1); err != nil {
		return nil, err
	}
	if err := c.sessions.BindRoom(ctx, connID, rm.Key, rm.Detail.RoomPrefix, rm.Order); err != nil {
		return nil, err
	}

	rm, err = c.rooms.Get(ctx, rm.Key)
	if err != nil {
		return nil, err
	}
	c.emitter.Broadcast("notify-room-update", nil, rm)
	if c.notifier != nil {
		if perr := c.notifier.PublishRoomUpdate(rm); perr != nil {
			logger.Warnf("[handler] room update publish failed room=%s err=%v", rm.Key, perr)
		}
	}
	return rm, nil
}

// handleLoginUser binds the requester to a user record inside its room.
// The room's logged-in counter moves only on the user's first connection.
func (c *Core) handleLoginUser(ctx context.Context, connID string, arg any) (any, error) {
	p, err := decode.Payload[loginUserArg](arg)
	if err != nil {
		return nil, err
	}

	rec, err := c.sessions.Lookup(ctx, connID)
	if err != nil {
		return nil, err
	}
	if rec.RoomKey == nil || rec.RoomPrefix == nil {
		return nil, errs.ErrRoomNotFound.WrapMsg("connection has no entered room", "conn", connID)
	}
	prefix := *rec.RoomPrefix

	usr, err := c.users.FindOrCreate(ctx, prefix, p.UserName, p.UserType)
	if err != nil {
		return nil, err
	}
	usr, err = c.users.LoginDelta(ctx, prefix, usr.Key, 1)
	if err != nil {
		return nil, err
	}
	if usr.Login == 1 {
		if _, err := c.rooms.IncrementLogin(ctx, *rec.RoomKey); err != nil {
			return nil, err
		}
		if rm, rerr := c.rooms.Get(ctx, *rec.RoomKey); rerr == nil {
			c.emitter.Broadcast("notify-room-update", nil, rm)
			if c.notifier != nil {
				_ = c.notifier.PublishRoomUpdate(rm)
			}
		}
	}
	if err := c.sessions.BindUser(ctx, connID, usr.Key, usr.Name); err != nil {
		return nil, err
	}

	c.NotifyUserUpdate(ctx, connID, usr)
	return usr, nil
}

func (c *Core) handleIssueToken(ctx context.Context, connID string, arg any) (any, error) {
	p, err := decode.Payload[issueTokenArg](arg)
	if err != nil {
		return nil, err
	}
	ttl := time.Duration(p.TTLSec) * time.Second
	if ttl <= 0 {
		ttl = time.Hour
	}
	return c.tokens.Issue(ctx, p.Kind, ttl)
}

// handleUploadMedia assigns storage ids to each uploaded item and reports
// progress for multi-item batches. Server-hosted items drop their raw
// buffer once a storage id exists.
func (c *Core) handleUploadMedia(ctx context.Context, connID string, arg any) (any, error) {
	p, err := decode.Payload[uploadMediaArg](arg)
	if err != nil {
		return nil, err
	}
	if len(p.List) == 0 {
		return nil, errs.New("empty media list")
	}

	all := len(p.List)
	out := make([]map[string]any, 0, all)
	for i, item := range p.List {
		storageID := ids.GenerateString()
		if item.DataLocation == "server" {
			item.ArrayBuffer = nil
		}
		out = append(out, map[string]any{
			"storage_id":    storageID,
			"image_src":     item.ImageSrc,
			"data_location": item.DataLocation,
		})
		c.NotifyProgress(ctx, connID, all, i+1)
	}

	if err := c.sessions.BindStorage(ctx, connID, out[len(out)-1]["storage_id"].(string)); err != nil {
		return nil, err
	}
	return map[string]any{"upload_media_info_list": out}, nil
}
