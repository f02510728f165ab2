package orch

import (
	"context"

	"github.com/rs/zerolog/log"

	"github.com/Gerondiz/backend-mediasoup/internal/core"
)

func (o *Orchestrator) CreateTransport(ctx context.Context, cc *core.ConnContext, req core.CreateTransportRequest) error {
	user, room, ok := cc.Joined()
	if !ok {
		return core.ErrNotInRoom
	}
	rt := room.Router()
	if rt == nil {
		return core.ErrRoomClosed
	}
	t, err := rt.CreateTransport(ctx, core.TransportOptions{Direction: req.Direction})
	if err != nil {
		return core.EngineFailure("create transport", err)
	}
	if !room.TrackTransport(user, cc.Conn, t) {
		return o.discard(user, t)
	}
	t.OnClose(func() { room.UntrackTransport(user, t.ID()) })

	log.Info().Str("module", "orch").Str("user_id", string(user.ID())).Str("transport_id", t.ID()).Str("direction", string(req.Direction)).Msg("transport created")

	params := t.Params()
	_ = cc.Send(core.TypeTransportCreated, transportCreated{
		TransportID:    t.ID(),
		Direction:      req.Direction,
		ICEParameters:  params.ICEParameters,
		ICECandidates:  params.ICECandidates,
		DTLSParameters: params.DTLSParameters,
	})
	return nil
}

func (o *Orchestrator) ConnectTransport(ctx context.Context, cc *core.ConnContext, req core.ConnectTransportRequest) error {
	user, room, ok := cc.Joined()
	if !ok {
		return core.ErrNotInRoom
	}
	t, ok := room.Transport(req.TransportID)
	if !ok {
		return &core.NotFoundError{Kind: "Transport", ID: req.TransportID}
	}
	if err := t.Connect(ctx, req.DTLSParameters); err != nil {
		return core.EngineFailure("connect transport", err)
	}
	log.Info().Str("module", "orch").Str("user_id", string(user.ID())).Str("transport_id", t.ID()).Msg("transport connected")
	_ = cc.Send(core.TypeTransportConnected, transportConnected{TransportID: t.ID()})
	return nil
}

func (o *Orchestrator) Produce(ctx context.Context, cc *core.ConnContext, req core.ProduceRequest) error {
	user, room, ok := cc.Joined()
	if !ok {
		return core.ErrNotInRoom
	}
	t, ok := room.Transport(req.TransportID)
	if !ok {
		return &core.NotFoundError{Kind: "Transport", ID: req.TransportID}
	}
	p, err := t.Produce(ctx, core.ProduceOptions{
		Kind:          req.Kind,
		RTPParameters: req.RTPParameters,
		OwnerID:       string(user.ID()),
	})
	if err != nil {
		return core.EngineFailure("produce", err)
	}
	if !room.TrackProducer(user, cc.Conn, p) {
		return o.discard(user, p)
	}
	p.OnClose(func() {
		if room.UntrackProducer(user, p.ID()) {
			o.publish(room, "", core.TypeProducerClosed, producerClosed{ProducerID: p.ID(), UserID: user.ID()})
		}
	})

	log.Info().Str("module", "orch").Str("user_id", string(user.ID())).Str("producer_id", p.ID()).Str("kind", string(req.Kind)).Msg("producer created")

	o.publish(room, user.ID(), core.TypeNewProducer, newProducer{ProducerID: p.ID(), UserID: user.ID(), Kind: req.Kind})
	_ = cc.Send(core.TypeProduced, produced{ProducerID: p.ID()})
	return nil
}

func (o *Orchestrator) Consume(ctx context.Context, cc *core.ConnContext, req core.ConsumeRequest) error {
	user, room, ok := cc.Joined()
	if !ok {
		return core.ErrNotInRoom
	}
	t, ok := room.Transport(req.TransportID)
	if !ok {
		return &core.NotFoundError{Kind: "Transport", ID: req.TransportID}
	}
	p, ok := room.Producer(req.ProducerID)
	if !ok {
		return &core.NotFoundError{Kind: "Producer", ID: req.ProducerID}
	}
	user.SetRTPCapabilities(req.RTPCapabilities)
	rt := room.Router()
	if rt == nil || !rt.CanConsume(p.ID(), req.RTPCapabilities) {
		return core.ErrCannotConsume
	}
	c, err := t.Consume(ctx, core.ConsumeOptions{ProducerID: p.ID(), RTPCapabilities: req.RTPCapabilities})
	if err != nil {
		return core.EngineFailure("consume", err)
	}
	if !room.TrackConsumer(user, cc.Conn, c) {
		return o.discard(user, c)
	}
	c.OnClose(func() { room.UntrackConsumer(user, c.ID()) })

	log.Info().Str("module", "orch").Str("user_id", string(user.ID())).Str("consumer_id", c.ID()).Str("producer_id", p.ID()).Msg("consumer created")

	_ = cc.Send(core.TypeConsumed, consumed{
		ConsumerID:    c.ID(),
		ProducerID:    p.ID(),
		Kind:          c.Kind(),
		RTPParameters: c.RTPParameters(),
		UserID:        core.OwnerOf(p),
	})
	return nil
}

// discard closes a handle created for a connection that lost its session
// while the engine call was in flight.
func (o *Orchestrator) discard(user *core.Member, h core.Closable) error {
	log.Info().Str("module", "orch").Str("user_id", string(user.ID())).Str("handle_id", h.ID()).Msg("dropping handle of replaced connection")
	h.Close()
	return core.ErrNotInRoom
}

func (o *Orchestrator) Producers(_ context.Context, cc *core.ConnContext) error {
	_, room, ok := cc.Joined()
	if !ok {
		return core.ErrNotInRoom
	}
	_ = cc.Send(core.TypeProducersList, producersList{Producers: room.Producers()})
	return nil
}
