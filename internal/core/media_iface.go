package core

import (
	"context"
	"encoding/json"
)

type MediaKind string

const (
	KindAudio MediaKind = "audio"
	KindVideo MediaKind = "video"
)

type TransportDirection string

const (
	DirectionSend TransportDirection = "send"
	DirectionRecv TransportDirection = "recv"
)

// TransportParams is what the client needs to set up its side of a transport.
type TransportParams struct {
	ICEParameters  any `json:"iceParameters"`
	ICECandidates  any `json:"iceCandidates"`
	DTLSParameters any `json:"dtlsParameters"`
}

type TransportOptions struct {
	Direction TransportDirection
}

type ProduceOptions struct {
	Kind          MediaKind
	RTPParameters json.RawMessage
	OwnerID       string
}

type ConsumeOptions struct {
	ProducerID      string
	RTPCapabilities json.RawMessage
}

// MediaEngine is the external media collaborator. Only the handles it
// returns are tracked here; media itself never passes through this layer.
type MediaEngine interface {
	CreateRouter(ctx context.Context) (MediaRouter, error)
}

type MediaRouter interface {
	ID() string
	RTPCapabilities() json.RawMessage
	CreateTransport(ctx context.Context, opts TransportOptions) (MediaTransport, error)
	CanConsume(producerID string, caps json.RawMessage) bool
	Close()
}

// Closable handles report their closure exactly once through OnClose.
// A callback registered after closure runs immediately.
type Closable interface {
	ID() string
	Close()
	OnClose(func())
}

type MediaTransport interface {
	Closable
	Params() TransportParams
	Connect(ctx context.Context, dtlsParameters json.RawMessage) error
	Produce(ctx context.Context, opts ProduceOptions) (MediaProducer, error)
	Consume(ctx context.Context, opts ConsumeOptions) (MediaConsumer, error)
}

type MediaProducer interface {
	Closable
	Kind() MediaKind
	OwnerID() string
}

type MediaConsumer interface {
	Closable
	Kind() MediaKind
	ProducerID() string
	RTPParameters() json.RawMessage
}
