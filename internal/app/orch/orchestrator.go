package orch

import (
	"github.com/rs/zerolog/log"

	"github.com/Gerondiz/backend-mediasoup/internal/app"
	"github.com/Gerondiz/backend-mediasoup/internal/core"
	"github.com/Gerondiz/backend-mediasoup/internal/domain"
)

// Orchestrator implements the signaling handlers. Every handler runs on the
// read goroutine of the connection that sent the message.
type Orchestrator struct {
	Rooms       *app.RoomRegistry
	Engine      core.MediaEngine
	Policy      app.Policy
	ChatLimiter *app.RateLimiter
}

// publish broadcasts to room and applies the backpressure policy to every
// member the frame could not be queued for.
func (o *Orchestrator) publish(room *core.Room, exclude domain.UserID, msgType string, data any) core.PublishResult {
	f, err := core.EncodeMessage(msgType, data)
	if err != nil {
		log.Error().Err(err).Str("module", "orch").Str("type", msgType).Msg("encode broadcast")
		return core.PublishResult{}
	}
	res := room.Broadcast(exclude, f)
	if o.Policy == nil {
		return res
	}
	for _, slow := range res.Dropped {
		switch o.Policy.OnBackPressure(room, slow) {
		case app.KickMember:
			if conn := slow.Signal(); conn != nil {
				log.Warn().Str("module", "orch").Str("room_id", string(room.ID())).Str("user_id", string(slow.ID())).Msg("kicking slow member")
				conn.Close()
			}
		case app.NoAction:
		}
	}
	return res
}

// teardown closes everything user owns. Handles are untracked before they
// are closed so their close callbacks do not announce them a second time.
func (o *Orchestrator) teardown(room *core.Room, user *core.Member) {
	for _, p := range user.Producers() {
		if room.UntrackProducer(user, p.ID()) {
			o.publish(room, user.ID(), core.TypeProducerClosed, producerClosed{ProducerID: p.ID(), UserID: user.ID()})
		}
		p.Close()
	}
	for _, t := range user.Transports() {
		room.UntrackTransport(user, t.ID())
		t.Close()
	}
	for _, c := range user.Consumers() {
		room.UntrackConsumer(user, c.ID())
		c.Close()
	}
}
