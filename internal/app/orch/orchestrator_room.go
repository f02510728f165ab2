package orch

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/Gerondiz/backend-mediasoup/internal/core"
	"github.com/Gerondiz/backend-mediasoup/internal/domain"
)

// Join admits the connection into req.RoomID, creating the room and its
// router on first use. A known session id rebinds the existing user.
func (o *Orchestrator) Join(ctx context.Context, cc *core.ConnContext, req core.JoinRequest) error {
	sid := sessionFor(cc, req.SessionID)
	if cur, room, ok := cc.Joined(); ok {
		if room.ID() != req.RoomID {
			return core.ErrAlreadyJoined
		}
		if cur.SessionID() != sid {
			o.Leave(cc)
		}
	}

	err := o.join(ctx, cc, req.RoomID, req.Username, sid)
	if errors.Is(err, core.ErrRoomClosed) {
		// The room emptied and was deleted under us; the retry gets a fresh one.
		err = o.join(ctx, cc, req.RoomID, req.Username, sid)
	}
	return err
}

func (o *Orchestrator) join(ctx context.Context, cc *core.ConnContext, roomID domain.RoomID, username string, sid domain.SessionID) error {
	room, created, err := o.Rooms.GetOrCreate(roomID)
	if err != nil {
		return err
	}
	// Only a room this join made is dropped on failure; an admin-created
	// room stays until the reaper finds it idle.
	abandon := func() {
		if created {
			o.Rooms.DeleteIfEmpty(room)
		}
	}
	if _, present := room.MemberBySession(sid); !present && !o.Rooms.CanJoin(roomID) {
		if room.Closed() {
			return core.ErrRoomClosed
		}
		return core.ErrRoomFull
	}

	rt, err := room.EnsureRouter(ctx, o.Engine.CreateRouter)
	if err != nil {
		if errors.Is(err, core.ErrRoomClosed) {
			return err
		}
		abandon()
		return core.EngineFailure("join room", err)
	}
	caps := rt.RTPCapabilities()

	user, prev, existing, err := room.Admit(sid, cc.Conn, func() (*core.Member, error) {
		u, err := domain.NewUser(username, sid)
		if err != nil {
			return nil, core.Invalid("username", err.Error())
		}
		return core.NewMember(u, cc.Conn), nil
	})
	if err != nil {
		abandon()
		return err
	}
	cc.Bind(user, room)

	if existing {
		o.publish(room, user.ID(), core.TypeUserConnectionStatus, connectionStatus{UserID: user.ID(), IsConnected: true})
		if prev != cc.Conn {
			// Resources negotiated over the previous connection are unusable.
			o.teardown(room, user)
			if prev != nil {
				prev.Close()
			}
		}
		log.Info().Str("module", "orch").Str("room_id", string(roomID)).Str("user_id", string(user.ID())).Str("sid", string(sid)).Msg("user reconnected")
	} else {
		user.SetRTPCapabilities(caps)
		o.publish(room, user.ID(), core.TypeUserJoined, userJoined{User: user.View()})
		log.Info().Str("module", "orch").Str("room_id", string(roomID)).Str("user_id", string(user.ID())).Str("username", user.Username()).Msg("user joined")
	}

	_ = cc.Send(core.TypeJoined, joined{
		RoomID:          roomID,
		Users:           room.MembersSnapshot(),
		SessionID:       sid,
		RTPCapabilities: caps,
		ChatHistory:     room.ChatHistory(),
	})
	o.publish(room, "", core.TypeUsersUpdated, usersUpdated{Users: room.MembersSnapshot()})
	return nil
}

// Leave handles an intentional leave-room. It is a no-op while Unbound.
func (o *Orchestrator) Leave(cc *core.ConnContext) {
	o.release(cc, "leave")
}

// Disconnect runs once when the connection is gone.
func (o *Orchestrator) Disconnect(cc *core.ConnContext) {
	o.release(cc, "disconnect")
}

func (o *Orchestrator) release(cc *core.ConnContext, reason string) {
	user, room, ok := cc.Joined()
	if !ok {
		return
	}
	cc.Clear()

	if !room.Depart(user, cc.Conn) {
		// The session already lives on a newer connection.
		log.Info().Str("module", "orch").Str("user_id", string(user.ID())).Str("reason", reason).Msg("stale connection released")
		return
	}

	o.publish(room, user.ID(), core.TypeUserConnectionStatus, connectionStatus{UserID: user.ID(), IsConnected: false})
	o.teardown(room, user)

	o.publish(room, "", core.TypeUserLeft, userLeft{UserID: user.ID(), Username: user.Username()})
	o.publish(room, "", core.TypeUsersUpdated, usersUpdated{Users: room.MembersSnapshot()})
	o.ChatLimiter.Forget(user.ID())

	log.Info().Str("module", "orch").Str("room_id", string(room.ID())).Str("user_id", string(user.ID())).Str("reason", reason).Msg("user left")

	if o.Rooms.DeleteIfEmpty(room) {
		log.Info().Str("module", "orch").Str("room_id", string(room.ID())).Msg("room deleted (empty)")
	}
}

// sessionFor falls back to the connection's client token and then to a
// random id when the client sent an empty session id.
func sessionFor(cc *core.ConnContext, sid domain.SessionID) domain.SessionID {
	if sid != "" {
		return sid
	}
	if cc.ClientToken != "" {
		return domain.SessionID(cc.ClientToken)
	}
	return domain.SessionID(uuid.NewString())
}
