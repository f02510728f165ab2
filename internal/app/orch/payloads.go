package orch

import (
	"encoding/json"

	"github.com/Gerondiz/backend-mediasoup/internal/core"
	"github.com/Gerondiz/backend-mediasoup/internal/domain"
)

type joined struct {
	RoomID          domain.RoomID        `json:"roomId"`
	Users           []core.UserView      `json:"users"`
	SessionID       domain.SessionID     `json:"sessionId"`
	RTPCapabilities json.RawMessage      `json:"rtpCapabilities"`
	ChatHistory     []domain.ChatMessage `json:"chatHistory"`
}

type userJoined struct {
	User core.UserView `json:"user"`
}

type userLeft struct {
	UserID   domain.UserID `json:"userId"`
	Username string        `json:"username"`
}

type connectionStatus struct {
	UserID      domain.UserID `json:"userId"`
	IsConnected bool          `json:"isConnected"`
}

type usersUpdated struct {
	Users []core.UserView `json:"users"`
}

type transportCreated struct {
	TransportID    string                  `json:"transportId"`
	Direction      core.TransportDirection `json:"direction"`
	ICEParameters  any                     `json:"iceParameters"`
	ICECandidates  any                     `json:"iceCandidates"`
	DTLSParameters any                     `json:"dtlsParameters"`
}

type transportConnected struct {
	TransportID string `json:"transportId"`
}

type produced struct {
	ProducerID string `json:"producerId"`
}

type newProducer struct {
	ProducerID string         `json:"producerId"`
	UserID     domain.UserID  `json:"userId"`
	Kind       core.MediaKind `json:"kind"`
}

type producerClosed struct {
	ProducerID string        `json:"producerId"`
	UserID     domain.UserID `json:"userId"`
}

type consumed struct {
	ConsumerID    string          `json:"consumerId"`
	ProducerID    string          `json:"producerId"`
	Kind          core.MediaKind  `json:"kind"`
	RTPParameters json.RawMessage `json:"rtpParameters"`
	UserID        domain.UserID   `json:"userId"`
}

type producersList struct {
	Producers []core.ProducerInfo `json:"producers"`
}
