package domain

import (
	"strconv"
	"time"
)

type ChatMessage struct {
	ID        string    `json:"id"`
	UserID    UserID    `json:"userId"`
	From      string    `json:"from"`
	Text      string    `json:"text"`
	Timestamp time.Time `json:"timestamp"`
}

func NewChatMessage(from *User, text string, at time.Time) ChatMessage {
	return ChatMessage{
		ID:        strconv.FormatInt(at.UnixNano(), 36),
		UserID:    from.ID,
		From:      from.Username,
		Text:      text,
		Timestamp: at.UTC(),
	}
}
