package session

import (
	"context"

	"PSession/logger"
	"PSession/module/session/room"
	"PSession/module/session/store"
	"PSession/module/session/token"
	"PSession/module/session/user"
	"PSession/service/storage"
)

// Core wires the session store, the registries, the resolver and the
// transport emitter together. Everything the application layer touches
// goes through here: open/close lifecycle, resolve-and-send, and event
// registration via the dispatch wrapper.
type Core struct {
	sessions *store.SessionStore
	rooms    *room.Registry
	users    *user.Registry
	tokens   *token.Store

	resolver *Resolver
	emitter  Emitter
	disp     *Dispatcher

	presence *storage.PresenceStore // optional
	notifier Notifier               // optional, cross-node fan-out
}

type CoreOption func(*Core)

func WithPresence(p *storage.PresenceStore) CoreOption {
	return func(c *Core) { c.presence = p }
}

func WithNotifier(n Notifier) CoreOption {
	return func(c *Core) { c.notifier = n }
}

func NewCore(db store.DB, emitter Emitter, tokenSecret []byte, opts ...CoreOption) *Core {
	sessions := store.NewSessionStore(db)
	c := &Core{
		sessions: sessions,
		rooms:    room.NewRegistry(db),
		users:    user.NewRegistry(db),
		tokens:   token.NewStore(db, tokenSecret),
		resolver: NewResolver(sessions),
		emitter:  emitter,
		disp:     NewDispatcher(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Core) Sessions() *store.SessionStore { return c.sessions }
func (c *Core) Rooms() *room.Registry         { return c.rooms }
func (c *Core) Users() *user.Registry         { return c.users }
func (c *Core) Tokens() *token.Store          { return c.tokens }
func (c *Core) Resolver() *Resolver           { return c.resolver }

// EmitEvent resolves target fresh and delivers the frame to every resolved
// connection. Individual delivery failures are logged and never abort
// sibling sends.
func (c *Core) EmitEvent(ctx context.Context, connID string, target SendTarget, event string, errPayload, payload any) error {
	switch target.Class {
	case TargetNone:
		return nil
	case TargetAll:
		c.emitter.Broadcast(event, errPayload, payload)
		return nil
	case TargetSelf:
		return c.emitter.Emit(connID, event, errPayload, payload)
	case TargetOther:
		c.emitter.BroadcastExcept(connID, event, errPayload, payload)
		return nil
	}

	ids, err := c.resolver.Resolve(ctx, connID, target)
	if err != nil {
		return err
	}
	for _, id := range ids {
		if emitErr := c.emitter.Emit(id, event, errPayload, payload); emitErr != nil {
			logger.Warnf("[core] emit failed conn=%s event=%s err=%v", id, event, emitErr)
		}
	}
	return nil
}

// NotifyProgress reports bulk-operation progress to the requester; a
// single-step operation stays silent.
func (c *Core) NotifyProgress(ctx context.Context, connID string, all, current int) {
	if all > 1 {
		_ = c.emitter.Emit(connID, "notify-progress", nil, map[string]int{"all": all, "current": current})
	}
}
