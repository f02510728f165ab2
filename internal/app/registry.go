package app

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/Gerondiz/backend-mediasoup/internal/core"
	"github.com/Gerondiz/backend-mediasoup/internal/domain"
)

const (
	DefaultMaxRooms     = 100
	DefaultMaxUsers     = 10
	DefaultReapInterval = 5 * time.Minute
)

type RegistryOptions struct {
	MaxRooms     int
	MaxUsers     int
	HistorySize  int
	ReapInterval time.Duration
}

// RoomRegistry owns every room of the process. Rooms are created on first
// join (or by the admin API) and deleted when their last member leaves;
// Run reaps rooms that became empty any other way.
type RoomRegistry struct {
	opts RegistryOptions

	mu    sync.RWMutex
	rooms map[domain.RoomID]*core.Room
}

func NewRoomRegistry(opts RegistryOptions) *RoomRegistry {
	if opts.MaxRooms <= 0 {
		opts.MaxRooms = DefaultMaxRooms
	}
	if opts.MaxUsers <= 0 {
		opts.MaxUsers = DefaultMaxUsers
	}
	if opts.ReapInterval <= 0 {
		opts.ReapInterval = DefaultReapInterval
	}
	return &RoomRegistry{
		opts:  opts,
		rooms: make(map[domain.RoomID]*core.Room),
	}
}

func (r *RoomRegistry) Options() RegistryOptions { return r.opts }

func (r *RoomRegistry) Create(id domain.RoomID) (*core.Room, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.createLocked(id)
}

func (r *RoomRegistry) createLocked(id domain.RoomID) (*core.Room, error) {
	if _, ok := r.rooms[id]; ok {
		return nil, core.ErrAlreadyExists
	}
	if len(r.rooms) >= r.opts.MaxRooms {
		return nil, core.ErrCapacityExceeded
	}
	room := core.NewRoom(id, r.opts.MaxUsers, r.opts.HistorySize)
	r.rooms[id] = room
	log.Info().Str("module", "app.registry").Str("room_id", string(id)).Int("rooms", len(r.rooms)).Msg("room created")
	return room, nil
}

func (r *RoomRegistry) Get(id domain.RoomID) (*core.Room, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	room, ok := r.rooms[id]
	return room, ok
}

// GetOrCreate is the idempotent create-if-absent used by joins. created
// reports whether this call made the room.
func (r *RoomRegistry) GetOrCreate(id domain.RoomID) (room *core.Room, created bool, err error) {
	if room, ok := r.Get(id); ok {
		return room, false, nil
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if room, ok := r.rooms[id]; ok {
		return room, false, nil
	}
	room, err = r.createLocked(id)
	return room, err == nil, err
}

func (r *RoomRegistry) CanJoin(id domain.RoomID) bool {
	room, ok := r.Get(id)
	return ok && room.HasCapacity()
}

// Delete releases the room's router and forgets it. Deleting an unknown id
// is a no-op.
func (r *RoomRegistry) Delete(id domain.RoomID) {
	r.mu.Lock()
	room, ok := r.rooms[id]
	delete(r.rooms, id)
	r.mu.Unlock()
	if !ok {
		return
	}
	room.Close()
	log.Info().Str("module", "app.registry").Str("room_id", string(id)).Msg("room deleted")
}

// DeleteIfEmpty removes room only while it has no members. It reports
// whether the room is gone.
func (r *RoomRegistry) DeleteIfEmpty(room *core.Room) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !room.CloseIfEmpty() {
		return false
	}
	if cur, ok := r.rooms[room.ID()]; ok && cur == room {
		delete(r.rooms, room.ID())
		log.Info().Str("module", "app.registry").Str("room_id", string(room.ID())).Msg("room deleted (empty)")
	}
	return true
}

// Reap deletes every room without members, however new, and returns how
// many it removed.
func (r *RoomRegistry) Reap() int { return r.reapCreatedBefore(time.Time{}) }

// reapCreatedBefore spares empty rooms created after cutoff, so a room made
// through the admin API survives until someone has had time to join it. A
// zero cutoff spares nothing.
func (r *RoomRegistry) reapCreatedBefore(cutoff time.Time) int {
	r.mu.RLock()
	candidates := make([]*core.Room, 0)
	for _, room := range r.rooms {
		if room.IsEmpty() && (cutoff.IsZero() || room.CreatedAt().Before(cutoff)) {
			candidates = append(candidates, room)
		}
	}
	r.mu.RUnlock()

	deleted := 0
	for _, room := range candidates {
		if r.DeleteIfEmpty(room) {
			deleted++
		}
	}
	if deleted > 0 {
		log.Info().Str("module", "app.registry").Int("deleted", deleted).Msg("cleaned inactive rooms")
	}
	return deleted
}

// Run reaps empty rooms every ReapInterval until ctx is done.
func (r *RoomRegistry) Run(ctx context.Context) error {
	ticker := time.NewTicker(r.opts.ReapInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			log.Info().Str("module", "app.registry").Msg("reaper stopped")
			return nil
		case now := <-ticker.C:
			r.reapCreatedBefore(now.Add(-r.opts.ReapInterval))
		}
	}
}

func (r *RoomRegistry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.rooms)
}

// List returns room infos sorted by creation time.
func (r *RoomRegistry) List() []core.RoomInfo {
	r.mu.RLock()
	out := make([]core.RoomInfo, 0, len(r.rooms))
	for _, room := range r.rooms {
		out = append(out, room.Info())
	}
	r.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out
}

// Shutdown closes every room.
func (r *RoomRegistry) Shutdown() {
	r.mu.Lock()
	rooms := r.rooms
	r.rooms = make(map[domain.RoomID]*core.Room)
	r.mu.Unlock()
	for _, room := range rooms {
		room.Close()
	}
}
