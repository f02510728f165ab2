package orch

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/Gerondiz/backend-mediasoup/internal/core"
	"github.com/Gerondiz/backend-mediasoup/internal/domain"
)

// Chat stores the message in the room history and sends it to everyone,
// sender included.
func (o *Orchestrator) Chat(_ context.Context, cc *core.ConnContext, req core.ChatRequest) error {
	user, room, ok := cc.Joined()
	if !ok {
		return core.ErrNotInRoom
	}
	if !o.ChatLimiter.Allow(user.ID()) {
		return core.ErrRateLimited
	}
	user.Touch()
	u := user.User()
	msg := domain.NewChatMessage(&u, req.Text, time.Now())
	room.AddChat(msg)
	log.Debug().Str("module", "orch").Str("room_id", string(room.ID())).Str("user_id", string(user.ID())).Msg("chat message")
	o.publish(room, "", core.TypeChatMessage, msg)
	return nil
}

func (o *Orchestrator) ChatHistory(_ context.Context, cc *core.ConnContext) error {
	_, room, ok := cc.Joined()
	if !ok {
		return core.ErrNotInRoom
	}
	_ = cc.Send(core.TypeChatHistory, room.ChatHistory())
	return nil
}
