package app

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/dkeye/musicroom/internal/core"
	"github.com/dkeye/musicroom/internal/domain"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/singleflight"
)

// Registry maps room ids to live sessions. Lookups and inserts are safe under
// concurrent access and never wait on a room's own goroutine.
type Registry struct {
	store core.Store

	mu    sync.RWMutex
	rooms map[domain.RoomID]*session
	loads singleflight.Group
}

func NewRegistry(store core.Store) *Registry {
	return &Registry{
		store: store,
		rooms: make(map[domain.RoomID]*session),
	}
}

// Get returns the live session for id, loading it from the store on a miss.
func (r *Registry) Get(ctx context.Context, id domain.RoomID) (*session, error) {
	if id == "" {
		return nil, domain.ErrRoomNotFound
	}
	r.mu.RLock()
	s, ok := r.rooms[id]
	r.mu.RUnlock()
	if ok {
		return s, nil
	}

	v, err, _ := r.loads.Do(string(id), func() (any, error) {
		r.mu.RLock()
		s, ok := r.rooms[id]
		r.mu.RUnlock()
		if ok {
			return s, nil
		}
		room, err := r.store.LoadRoom(ctx, id)
		if errors.Is(err, core.ErrNotFound) {
			return nil, domain.ErrRoomNotFound
		}
		if err != nil {
			return nil, &domain.StorageError{Op: "load room", Err: err}
		}
		s = r.insert(room)
		log.Info().Str("module", "app.registry").Str("room", string(id)).Msg("room loaded")
		return s, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*session), nil
}

// Add starts a session for a freshly created room.
func (r *Registry) Add(room *domain.Room) {
	r.insert(room)
	log.Info().Str("module", "app.registry").Str("room", string(room.ID)).Msg("room added")
}

func (r *Registry) insert(room *domain.Room) *session {
	r.mu.Lock()
	defer r.mu.Unlock()
	if s, ok := r.rooms[room.ID]; ok {
		return s
	}
	s := newSession(room)
	r.rooms[room.ID] = s
	go s.run()
	return s
}

// remove drops s from the map if it is still the registered session for its id.
func (r *Registry) remove(s *session) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if cur, ok := r.rooms[s.id]; ok && cur == s {
		delete(r.rooms, s.id)
		return true
	}
	return false
}

// Sessions returns a point-in-time copy of every live session.
func (r *Registry) Sessions() []*session {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*session, 0, len(r.rooms))
	for _, s := range r.rooms {
		out = append(out, s)
	}
	return out
}

func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.rooms)
}

// EvictIdle unloads sessions idle for longer than d that have no connected
// participant. Their state is already persisted, so a later Get reloads it.
func (r *Registry) EvictIdle(d time.Duration) int {
	now := time.Now()
	evicted := 0
	for _, s := range r.Sessions() {
		if s.idleFor(now) < d {
			continue
		}
		var removed bool
		_ = s.do(func(st *roomState) error {
			if !st.roster.Connected() && r.remove(s) {
				removed = true
				s.halt()
			}
			return nil
		})
		if removed {
			s.stop()
			evicted++
			log.Info().Str("module", "app.registry").Str("room", string(s.id)).Msg("idle room unloaded")
		}
	}
	return evicted
}

// Close stops every session.
func (r *Registry) Close() {
	r.mu.Lock()
	rooms := r.rooms
	r.rooms = make(map[domain.RoomID]*session)
	r.mu.Unlock()
	for _, s := range rooms {
		s.stop()
	}
}
