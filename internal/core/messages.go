package core

import (
	"encoding/json"

	"github.com/Gerondiz/backend-mediasoup/internal/domain"
)

// Inbound message types.
const (
	TypeJoinRoom         = "join-room"
	TypeLeaveRoom        = "leave-room"
	TypeCreateTransport  = "create-transport"
	TypeConnectTransport = "connect-transport"
	TypeProduce          = "produce"
	TypeConsume          = "consume"
	TypeGetProducers     = "get-producers"
	TypeChatMessage      = "chat-message"
	TypeGetChatHistory   = "get-chat-history"
	TypePing             = "ping"
	TypePong             = "pong"
)

// Outbound message types.
const (
	TypeJoined               = "joined"
	TypeTransportCreated     = "webRtcTransportCreated"
	TypeTransportConnected   = "transport-connected"
	TypeProduced             = "produced"
	TypeConsumed             = "consumed"
	TypeProducersList        = "producers-list"
	TypeChatHistory          = "chat-history"
	TypeUserJoined           = "user-joined"
	TypeUserLeft             = "user-left"
	TypeUserConnectionStatus = "user-connection-status"
	TypeUsersUpdated         = "users-updated"
	TypeNewProducer          = "new-producer"
	TypeProducerClosed       = "producer-closed"
	TypeMicStatusChanged     = "mic-status-changed"
	TypeError                = "error"
)

type JoinRequest struct {
	RoomID    domain.RoomID
	Username  string
	SessionID domain.SessionID
}

type CreateTransportRequest struct {
	Direction TransportDirection
}

type ConnectTransportRequest struct {
	TransportID    string
	DTLSParameters json.RawMessage
}

type ProduceRequest struct {
	TransportID   string
	Kind          MediaKind
	RTPParameters json.RawMessage
}

type ConsumeRequest struct {
	TransportID     string
	ProducerID      string
	RTPCapabilities json.RawMessage
}

type ChatRequest struct {
	Text string
}

// Empty is the payload of messages that carry no data.
type Empty struct{}
