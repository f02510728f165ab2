package core

import (
	"time"

	"github.com/Gerondiz/backend-mediasoup/internal/domain"
)

// PublishResult reports delivery stats/backpressure to orchestrator.
type PublishResult struct {
	SendTo  int
	Dropped []*Member
}

// UserView is the read-only listing entry sent to clients.
type UserView struct {
	ID          domain.UserID    `json:"id"`
	Username    string           `json:"username"`
	SessionID   domain.SessionID `json:"sessionId"`
	JoinedAt    time.Time        `json:"joinedAt"`
	IsConnected bool             `json:"isConnected"`
}

type RoomInfo struct {
	ID        domain.RoomID `json:"id"`
	UserCount int           `json:"userCount"`
	MaxUsers  int           `json:"maxUsers"`
	CreatedAt time.Time     `json:"createdAt"`
}

type ProducerInfo struct {
	ProducerID string        `json:"producerId"`
	UserID     domain.UserID `json:"userId"`
	Kind       MediaKind     `json:"kind"`
}
