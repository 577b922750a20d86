package session

import (
	"context"

	"PSession/module/session/store"
)

// TargetClass is the closed set of symbolic broadcast selectors. A send
// target is resolved into a concrete connection set at send time, never
// earlier.
type TargetClass int

const (
	TargetNone TargetClass = iota
	TargetList             // explicit connection id list
	TargetAll
	TargetSelf
	TargetOther
	TargetRoom
	TargetRoomMate          // everyone in the room after the requester
	TargetRoomMateOtherSelf // room members with a different user name
	TargetSelfOtherSocket   // other connections of the same user name
)

// SendTarget pairs a class with its payload (only TargetList carries one).
type SendTarget struct {
	Class   TargetClass
	ConnIDs []string
}

var (
	None              = SendTarget{Class: TargetNone}
	All               = SendTarget{Class: TargetAll}
	Self              = SendTarget{Class: TargetSelf}
	Other             = SendTarget{Class: TargetOther}
	Room              = SendTarget{Class: TargetRoom}
	RoomMate          = SendTarget{Class: TargetRoomMate}
	RoomMateOtherSelf = SendTarget{Class: TargetRoomMateOtherSelf}
	SelfOtherSocket   = SendTarget{Class: TargetSelfOtherSocket}
)

// ToConns builds an explicit-list target.
func ToConns(ids ...string) SendTarget {
	return SendTarget{Class: TargetList, ConnIDs: ids}
}

// Resolver turns a send target into connection ids. Room-scoped classes
// re-read membership on every call; caching across a suspension point
// would leak broadcasts to already-closed connections.
type Resolver struct {
	sessions *store.SessionStore
}

func NewResolver(sessions *store.SessionStore) *Resolver {
	return &Resolver{sessions: sessions}
}

// Resolve computes the exact connection set for target. connID may be
// empty for TargetAll (server-internal broadcasts have no requester).
// When the requester belongs to the result it is always the first element.
func (r *Resolver) Resolve(ctx context.Context, connID string, target SendTarget) ([]string, error) {
	switch target.Class {
	case TargetNone:
		return nil, nil

	case TargetList:
		return target.ConnIDs, nil

	case TargetSelf:
		return []string{connID}, nil

	case TargetAll, TargetOther:
		all, err := r.sessions.DB().ListSockets(ctx)
		if err != nil {
			return nil, err
		}
		out := make([]string, 0, len(all))
		if target.Class == TargetAll && connID != "" {
			out = append(out, connID)
		}
		for _, rec := range all {
			if rec.ConnID == connID {
				continue
			}
			out = append(out, rec.ConnID)
		}
		return out, nil

	case TargetRoom, TargetRoomMate, TargetRoomMateOtherSelf, TargetSelfOtherSocket:
		mates, err := r.sessions.Roommates(ctx, connID)
		if err != nil {
			return nil, err
		}
		self := mates[0]
		var out []string
		for idx, rec := range mates {
			switch target.Class {
			case TargetRoom:
				out = append(out, rec.ConnID)
			case TargetRoomMate:
				if idx > 0 {
					out = append(out, rec.ConnID)
				}
			case TargetRoomMateOtherSelf:
				if rec.UserNameOf() != self.UserNameOf() {
					out = append(out, rec.ConnID)
				}
			case TargetSelfOtherSocket:
				if rec.UserNameOf() == self.UserNameOf() && rec.ConnID != self.ConnID {
					out = append(out, rec.ConnID)
				}
			}
		}
		return out, nil
	}
	return nil, nil
}
