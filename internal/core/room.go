package core

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/singleflight"

	"github.com/Gerondiz/backend-mediasoup/internal/domain"
)

// Room is a threadsafe in-memory room. Members are kept in join order.
// It never closes adapter-owned connections.
type Room struct {
	room domain.Room

	mu      sync.RWMutex
	order   []domain.UserID
	members map[domain.UserID]*Member
	router  MediaRouter
	closed  bool

	transports map[string]MediaTransport
	producers  map[string]MediaProducer
	consumers  map[string]MediaConsumer

	history *ChatHistory

	routerOnce singleflight.Group
}

// NewRoom builds a room; historySize < 0 disables chat history.
func NewRoom(id domain.RoomID, maxUsers, historySize int) *Room {
	r := &Room{
		room: domain.Room{
			ID:        id,
			MaxUsers:  maxUsers,
			CreatedAt: time.Now(),
		},
		members:    make(map[domain.UserID]*Member),
		transports: make(map[string]MediaTransport),
		producers:  make(map[string]MediaProducer),
		consumers:  make(map[string]MediaConsumer),
	}
	if historySize >= 0 {
		r.history = NewChatHistory(historySize)
	}
	return r
}

func (r *Room) ID() domain.RoomID    { return r.room.ID }
func (r *Room) MaxUsers() int        { return r.room.MaxUsers }
func (r *Room) CreatedAt() time.Time { return r.room.CreatedAt }

func (r *Room) MemberCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.members)
}

func (r *Room) IsEmpty() bool { return r.MemberCount() == 0 }

func (r *Room) HasCapacity() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return !r.closed && len(r.members) < r.room.MaxUsers
}

func (r *Room) Closed() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.closed
}

func (r *Room) Info() RoomInfo {
	return RoomInfo{
		ID:        r.room.ID,
		UserCount: r.MemberCount(),
		MaxUsers:  r.room.MaxUsers,
		CreatedAt: r.room.CreatedAt,
	}
}

// Admit returns the member already holding sid, rebound to conn, together
// with its previous connection. Otherwise it inserts the member built by
// newMember. Lookup, rebind, capacity check and insertion happen under one
// lock, so Admit and Depart on the same member never interleave.
func (r *Room) Admit(sid domain.SessionID, conn SignalConnection, newMember func() (*Member, error)) (m *Member, prev SignalConnection, existing bool, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return nil, nil, false, ErrRoomClosed
	}
	if cur := r.bySessionLocked(sid); cur != nil {
		return cur, cur.Rebind(conn), true, nil
	}
	m, err = r.insertLocked(sid, newMember)
	return m, nil, false, err
}

// AddMember inserts m unless the room is full, closed, or already holds
// m's session.
func (r *Room) AddMember(m *Member) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return ErrRoomClosed
	}
	if r.bySessionLocked(m.SessionID()) != nil {
		return ErrAlreadyExists
	}
	_, err := r.insertLocked(m.SessionID(), func() (*Member, error) { return m, nil })
	return err
}

func (r *Room) bySessionLocked(sid domain.SessionID) *Member {
	for _, uid := range r.order {
		if cur := r.members[uid]; cur.SessionID() == sid {
			return cur
		}
	}
	return nil
}

func (r *Room) insertLocked(sid domain.SessionID, newMember func() (*Member, error)) (*Member, error) {
	if len(r.members) >= r.room.MaxUsers {
		return nil, ErrRoomFull
	}
	m, err := newMember()
	if err != nil {
		return nil, err
	}
	r.members[m.ID()] = m
	r.order = append(r.order, m.ID())
	log.Info().Str("module", "core.room").Str("room_id", string(r.room.ID)).Str("user_id", string(m.ID())).Str("sid", string(sid)).Msg("member added")
	return m, nil
}

// Depart unbinds conn from m and removes m from the room in one step. It
// reports false, changing nothing, when m is no longer a member or was
// rebound to another connection.
func (r *Room) Depart(m *Member, conn SignalConnection) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.members[m.ID()] != m || !m.Unbind(conn) {
		return false
	}
	r.removeLocked(m.ID())
	return true
}

func (r *Room) RemoveMember(id domain.UserID) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.members[id]; !ok {
		return false
	}
	r.removeLocked(id)
	return true
}

func (r *Room) removeLocked(id domain.UserID) {
	delete(r.members, id)
	for i, uid := range r.order {
		if uid == id {
			r.order = append(r.order[:i:i], r.order[i+1:]...)
			break
		}
	}
	log.Info().Str("module", "core.room").Str("room_id", string(r.room.ID)).Str("user_id", string(id)).Msg("member removed")
}

func (r *Room) Member(id domain.UserID) (*Member, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	m, ok := r.members[id]
	return m, ok
}

func (r *Room) MemberBySession(sid domain.SessionID) (*Member, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	m := r.bySessionLocked(sid)
	return m, m != nil
}

// Members returns a join-ordered snapshot.
func (r *Room) Members() []*Member {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Member, 0, len(r.order))
	for _, uid := range r.order {
		out = append(out, r.members[uid])
	}
	return out
}

func (r *Room) MembersSnapshot() []UserView {
	members := r.Members()
	out := make([]UserView, 0, len(members))
	for _, m := range members {
		out = append(out, m.View())
	}
	return out
}

// Broadcast sends data to every connected member except exclude (empty
// excludes nobody). A failing member never stops the fan-out.
func (r *Room) Broadcast(exclude domain.UserID, data Frame) PublishResult {
	res := PublishResult{}
	for _, m := range r.Members() {
		if m.ID() == exclude {
			continue
		}
		conn := m.Signal()
		if conn == nil {
			continue
		}
		if err := conn.TrySend(data); err != nil {
			log.Warn().Err(err).Str("module", "core.room").Str("room_id", string(r.room.ID)).Str("user_id", string(m.ID())).Msg("broadcast send failed")
			res.Dropped = append(res.Dropped, m)
			continue
		}
		res.SendTo++
	}
	log.Debug().Str("module", "core.room").Str("room_id", string(r.room.ID)).Int("sent_to", res.SendTo).Int("dropped", len(res.Dropped)).Msg("broadcast result")
	return res
}

func (r *Room) Router() MediaRouter {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.router
}

// EnsureRouter returns the room's router, creating it through create at most
// once even when several joins race on an empty room.
func (r *Room) EnsureRouter(ctx context.Context, create func(context.Context) (MediaRouter, error)) (MediaRouter, error) {
	if rt := r.Router(); rt != nil {
		return rt, nil
	}
	v, err, _ := r.routerOnce.Do("router", func() (any, error) {
		if rt := r.Router(); rt != nil {
			return rt, nil
		}
		rt, err := create(ctx)
		if err != nil {
			return nil, err
		}
		r.mu.Lock()
		defer r.mu.Unlock()
		if r.closed {
			rt.Close()
			return nil, ErrRoomClosed
		}
		if r.router != nil {
			rt.Close()
			return r.router, nil
		}
		r.router = rt
		log.Info().Str("module", "core.room").Str("room_id", string(r.room.ID)).Str("router_id", rt.ID()).Msg("router created")
		return rt, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(MediaRouter), nil
}

// AddChat stores msg in history when history is enabled.
func (r *Room) AddChat(msg domain.ChatMessage) {
	if r.history != nil {
		r.history.Add(msg)
	}
}

func (r *Room) ChatHistory() []domain.ChatMessage {
	if r.history == nil {
		return []domain.ChatMessage{}
	}
	return r.history.Snapshot()
}

// CloseIfEmpty marks an empty room closed and releases its router. A closed
// room admits nobody. It reports whether the room is closed on return.
func (r *Room) CloseIfEmpty() bool {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return true
	}
	if len(r.members) > 0 {
		r.mu.Unlock()
		return false
	}
	r.closed = true
	rt := r.router
	r.router = nil
	r.mu.Unlock()
	if rt != nil {
		rt.Close()
	}
	return true
}

// Close closes the room regardless of membership.
func (r *Room) Close() {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return
	}
	r.closed = true
	rt := r.router
	r.router = nil
	r.mu.Unlock()
	if rt != nil {
		rt.Close()
	}
}

// OwnerOf returns the id of the user that created p.
func OwnerOf(p MediaProducer) domain.UserID { return domain.UserID(p.OwnerID()) }
