package core

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/Gerondiz/backend-mediasoup/internal/domain"
)

// Member is one participant of a room. Its identity outlives the physical
// connections it is bound to over time.
type Member struct {
	user domain.User

	mu             sync.RWMutex
	conn           SignalConnection
	connected      bool
	lastActivity   time.Time
	lastDisconnect time.Time
	rtpCaps        json.RawMessage

	// Owned by the member; the room only touches them through track/untrack.
	transports map[string]MediaTransport
	producers  map[string]MediaProducer
	consumers  map[string]MediaConsumer
}

func NewMember(user *domain.User, conn SignalConnection) *Member {
	return &Member{
		user:         *user,
		conn:         conn,
		connected:    conn != nil,
		lastActivity: time.Now(),
		transports:   make(map[string]MediaTransport),
		producers:    make(map[string]MediaProducer),
		consumers:    make(map[string]MediaConsumer),
	}
}

func (m *Member) ID() domain.UserID           { return m.user.ID }
func (m *Member) Username() string            { return m.user.Username }
func (m *Member) SessionID() domain.SessionID { return m.user.SessionID }
func (m *Member) User() domain.User           { return m.user }

func (m *Member) Signal() SignalConnection {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.conn
}

func (m *Member) Connected() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.connected
}

// Rebind swaps the live connection and returns the previous one.
func (m *Member) Rebind(conn SignalConnection) SignalConnection {
	m.mu.Lock()
	defer m.mu.Unlock()
	prev := m.conn
	m.conn = conn
	m.connected = true
	m.lastActivity = time.Now()
	return prev
}

// Unbind marks the member disconnected if conn is still its live
// connection. It reports false when the member was rebound meanwhile.
func (m *Member) Unbind(conn SignalConnection) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.conn != conn {
		return false
	}
	m.conn = nil
	m.connected = false
	m.lastDisconnect = time.Now()
	return true
}

func (m *Member) Touch() {
	m.mu.Lock()
	m.lastActivity = time.Now()
	m.mu.Unlock()
}

func (m *Member) LastActivity() time.Time {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.lastActivity
}

func (m *Member) LastDisconnect() time.Time {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.lastDisconnect
}

func (m *Member) RTPCapabilities() json.RawMessage {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.rtpCaps
}

func (m *Member) SetRTPCapabilities(caps json.RawMessage) {
	m.mu.Lock()
	m.rtpCaps = caps
	m.mu.Unlock()
}

func (m *Member) View() UserView {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return UserView{
		ID:          m.user.ID,
		Username:    m.user.Username,
		SessionID:   m.user.SessionID,
		JoinedAt:    m.user.JoinedAt,
		IsConnected: m.connected,
	}
}

func (m *Member) Transports() []MediaTransport { return snapshot(&m.mu, m.transports) }
func (m *Member) Producers() []MediaProducer   { return snapshot(&m.mu, m.producers) }
func (m *Member) Consumers() []MediaConsumer   { return snapshot(&m.mu, m.consumers) }

func (m *Member) HasTransport(id string) bool { return has(&m.mu, m.transports, id) }
func (m *Member) HasProducer(id string) bool  { return has(&m.mu, m.producers, id) }
func (m *Member) HasConsumer(id string) bool  { return has(&m.mu, m.consumers, id) }

func snapshot[T any](mu *sync.RWMutex, items map[string]T) []T {
	mu.RLock()
	defer mu.RUnlock()
	out := make([]T, 0, len(items))
	for _, v := range items {
		out = append(out, v)
	}
	return out
}

func has[T any](mu *sync.RWMutex, items map[string]T, id string) bool {
	mu.RLock()
	defer mu.RUnlock()
	_, ok := items[id]
	return ok
}
