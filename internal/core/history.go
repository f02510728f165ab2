package core

import (
	"sync"

	"github.com/gammazero/deque"

	"github.com/Gerondiz/backend-mediasoup/internal/domain"
)

const DefaultHistorySize = 100

// ChatHistory keeps the last N chat messages, oldest first.
type ChatHistory struct {
	mu    sync.RWMutex
	limit int
	buf   deque.Deque[domain.ChatMessage]
}

func NewChatHistory(limit int) *ChatHistory {
	if limit <= 0 {
		limit = DefaultHistorySize
	}
	return &ChatHistory{limit: limit}
}

func (h *ChatHistory) Add(msg domain.ChatMessage) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for h.buf.Len() >= h.limit {
		h.buf.PopFront()
	}
	h.buf.PushBack(msg)
}

// Snapshot returns a copy that does not change with later Adds.
func (h *ChatHistory) Snapshot() []domain.ChatMessage {
	h.mu.RLock()
	defer h.mu.RUnlock()
	out := make([]domain.ChatMessage, h.buf.Len())
	for i := range out {
		out[i] = h.buf.At(i)
	}
	return out
}

func (h *ChatHistory) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.buf.Len()
}
