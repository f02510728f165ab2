package domain

import "time"

type RoomID string

type Room struct {
	ID        RoomID    `json:"id"`
	MaxUsers  int       `json:"maxUsers"`
	CreatedAt time.Time `json:"createdAt"`
}
