// Package domain contains entity without logic, just meta-data
package domain

import (
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
)

const (
	MaxUserIDLen    = 36
	MaxUsernameLen  = 64
	MaxSessionIDLen = 128
)

var (
	ErrUsernameTooLong  = errors.New("username too long")
	ErrUsernameEmpty    = errors.New("username empty")
	ErrSessionIDTooLong = errors.New("session id too long")
)

type UserID string

// SessionID is the client-supplied token that survives reconnects.
type SessionID string

type User struct {
	ID        UserID    `json:"id"`
	Username  string    `json:"username"`
	SessionID SessionID `json:"sessionId"`
	JoinedAt  time.Time `json:"joinedAt"`
}

// NewUser is a tiny helper to avoid ad-hoc struct literals in adapters.
func NewUser(username string, sid SessionID) (*User, error) {
	username = strings.TrimSpace(username)
	if len(username) == 0 {
		return nil, ErrUsernameEmpty
	}
	if len(username) > MaxUsernameLen {
		return nil, ErrUsernameTooLong
	}
	if len(sid) > MaxSessionIDLen {
		return nil, ErrSessionIDTooLong
	}
	id := UserID(uuid.NewString())
	return &User{ID: id, Username: username, SessionID: sid, JoinedAt: time.Now()}, nil
}
