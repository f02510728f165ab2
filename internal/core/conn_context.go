package core

import (
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/Gerondiz/backend-mediasoup/internal/domain"
)

// Stopper is implemented by the per-connection heartbeat.
type Stopper interface {
	Stop()
}

// ConnContext is the mutable per-connection state handed to every handler.
// User and room are both nil (Unbound) or both set (Joined).
type ConnContext struct {
	Conn SignalConnection
	// ClientToken is a server-issued fallback for an empty client session id.
	ClientToken string

	mu        sync.Mutex
	user      *Member
	room      *Room
	heartbeat Stopper
}

func NewConnContext(conn SignalConnection, clientToken string) *ConnContext {
	return &ConnContext{Conn: conn, ClientToken: clientToken}
}

func (cc *ConnContext) Bind(user *Member, room *Room) {
	cc.mu.Lock()
	cc.user, cc.room = user, room
	cc.mu.Unlock()
}

func (cc *ConnContext) Clear() {
	cc.mu.Lock()
	cc.user, cc.room = nil, nil
	cc.mu.Unlock()
}

// Joined returns the bound user and room, ok is false while Unbound.
func (cc *ConnContext) Joined() (*Member, *Room, bool) {
	cc.mu.Lock()
	defer cc.mu.Unlock()
	return cc.user, cc.room, cc.user != nil && cc.room != nil
}

func (cc *ConnContext) User() *Member {
	cc.mu.Lock()
	defer cc.mu.Unlock()
	return cc.user
}

func (cc *ConnContext) Room() *Room {
	cc.mu.Lock()
	defer cc.mu.Unlock()
	return cc.room
}

func (cc *ConnContext) SetHeartbeat(h Stopper) {
	cc.mu.Lock()
	cc.heartbeat = h
	cc.mu.Unlock()
}

func (cc *ConnContext) StopHeartbeat() {
	cc.mu.Lock()
	h := cc.heartbeat
	cc.heartbeat = nil
	cc.mu.Unlock()
	if h != nil {
		h.Stop()
	}
}

// Send writes a {type, data} message to this connection only. Failures are
// logged and returned; callers may ignore them.
func (cc *ConnContext) Send(msgType string, data any) error {
	f, err := EncodeMessage(msgType, data)
	if err != nil {
		log.Error().Err(err).Str("module", "core.conn").Str("type", msgType).Msg("encode message")
		return err
	}
	if err := cc.Conn.TrySend(f); err != nil {
		log.Warn().Err(err).Str("module", "core.conn").Str("type", msgType).Msg("send to client failed")
		return err
	}
	return nil
}

func (cc *ConnContext) SendError(message string) error {
	return cc.Send(TypeError, map[string]string{"message": message})
}

// Broadcast fans a message out to the current room. With excludeSelf the
// bound user does not receive it.
func (cc *ConnContext) Broadcast(msgType string, data any, excludeSelf bool) PublishResult {
	user, room, ok := cc.Joined()
	if !ok {
		return PublishResult{}
	}
	f, err := EncodeMessage(msgType, data)
	if err != nil {
		log.Error().Err(err).Str("module", "core.conn").Str("type", msgType).Msg("encode broadcast")
		return PublishResult{}
	}
	var exclude domain.UserID
	if excludeSelf {
		exclude = user.ID()
	}
	return room.Broadcast(exclude, f)
}
