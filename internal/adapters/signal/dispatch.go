package signal

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/rs/zerolog/log"

	"github.com/Gerondiz/backend-mediasoup/internal/core"
)

// Handlers is the application side of the signaling protocol.
type Handlers interface {
	Join(ctx context.Context, cc *core.ConnContext, req core.JoinRequest) error
	Leave(cc *core.ConnContext)
	Disconnect(cc *core.ConnContext)
	CreateTransport(ctx context.Context, cc *core.ConnContext, req core.CreateTransportRequest) error
	ConnectTransport(ctx context.Context, cc *core.ConnContext, req core.ConnectTransportRequest) error
	Produce(ctx context.Context, cc *core.ConnContext, req core.ProduceRequest) error
	Consume(ctx context.Context, cc *core.ConnContext, req core.ConsumeRequest) error
	Producers(ctx context.Context, cc *core.ConnContext) error
	Chat(ctx context.Context, cc *core.ConnContext, req core.ChatRequest) error
	ChatHistory(ctx context.Context, cc *core.ConnContext) error
}

type route func(ctx context.Context, cc *core.ConnContext, data json.RawMessage) error

// bind pairs a validator with its handler. joined routes answer NotInRoom
// while the connection is Unbound.
func bind[T any](validate func(json.RawMessage) (T, error), handle func(context.Context, *core.ConnContext, T) error, joined bool) route {
	return func(ctx context.Context, cc *core.ConnContext, data json.RawMessage) error {
		payload, err := validate(data)
		if err != nil {
			return err
		}
		if joined {
			if _, _, ok := cc.Joined(); !ok {
				return core.ErrNotInRoom
			}
		}
		return handle(ctx, cc, payload)
	}
}

type envelope struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

// Dispatcher routes validated inbound messages to Handlers. It holds no
// per-connection state.
type Dispatcher struct {
	routes map[string]route
}

func NewDispatcher(h Handlers) *Dispatcher {
	noData := func(fn func(context.Context, *core.ConnContext) error) func(context.Context, *core.ConnContext, core.Empty) error {
		return func(ctx context.Context, cc *core.ConnContext, _ core.Empty) error { return fn(ctx, cc) }
	}
	leave := func(_ context.Context, cc *core.ConnContext, _ core.Empty) error {
		h.Leave(cc)
		return nil
	}
	return &Dispatcher{routes: map[string]route{
		core.TypeJoinRoom:         bind(validateJoin, h.Join, false),
		core.TypeLeaveRoom:        bind(validateEmpty, leave, false),
		core.TypeCreateTransport:  bind(validateCreateTransport, h.CreateTransport, true),
		core.TypeConnectTransport: bind(validateConnectTransport, h.ConnectTransport, true),
		core.TypeProduce:          bind(validateProduce, h.Produce, true),
		core.TypeConsume:          bind(validateConsume, h.Consume, true),
		core.TypeGetProducers:     bind(validateEmpty, noData(h.Producers), true),
		core.TypeChatMessage:      bind(validateChat, h.Chat, true),
		core.TypeGetChatHistory:   bind(validateEmpty, noData(h.ChatHistory), true),
		core.TypePing:             bind(validateEmpty, handlePing, false),
		core.TypePong:             bind(validateEmpty, handlePong, false),
	}}
}

// Dispatch handles one inbound frame. Every failure becomes an error reply;
// the connection stays open.
func (d *Dispatcher) Dispatch(ctx context.Context, cc *core.ConnContext, frame []byte) {
	var env envelope
	if err := json.Unmarshal(frame, &env); err != nil || env.Type == "" {
		log.Warn().Err(err).Str("module", "signal").Msg("bad envelope")
		_ = cc.SendError("Invalid message format")
		return
	}
	r, ok := d.routes[env.Type]
	if !ok {
		err := &core.UnknownTypeError{Type: env.Type}
		log.Warn().Str("module", "signal").Str("type", env.Type).Msg("unknown message type")
		_ = cc.SendError(err.Error())
		return
	}
	if err := r(ctx, cc, env.Data); err != nil {
		logHandlerError(env.Type, cc, err)
		_ = cc.SendError(core.PublicMessage(err))
	}
}

func logHandlerError(msgType string, cc *core.ConnContext, err error) {
	ev := log.Info()
	if errors.Is(err, core.ErrEngineFailure) {
		ev = log.Error()
	}
	if u := cc.User(); u != nil {
		ev = ev.Str("user_id", string(u.ID()))
	}
	ev.Err(err).Str("module", "signal").Str("type", msgType).Msg("handler failed")
}
