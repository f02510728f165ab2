package core

import (
	"encoding/json"
	"errors"
)

// Frame is a raw encoded message.
type Frame []byte

var ErrConnClosed = errors.New("connection closed")

// SignalConnection abstracts for a system messaging transport
// Owned by the adapter; the adapter must Close() it.
type SignalConnection interface {
	TrySend(Frame) error
	Close()
}

// Message is the {type, data} envelope used in both directions. data is
// always present on the wire.
type Message struct {
	Type string `json:"type"`
	Data any    `json:"data"`
}

func EncodeMessage(msgType string, data any) (Frame, error) {
	return json.Marshal(Message{Type: msgType, Data: data})
}
