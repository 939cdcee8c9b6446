// Package storage holds the core.Store backends: Redis, SQLite, and an
// in-memory store used for degraded mode and tests.
package storage

import (
	"context"
	"slices"
	"sync"

	"github.com/dkeye/musicroom/internal/core"
	"github.com/dkeye/musicroom/internal/domain"
)

// Memory keeps documents in process memory. Values are copied on the way in
// and out so callers never share slices with the store. Connection ids are
// dropped on save, like every other backend.
type Memory struct {
	mu        sync.RWMutex
	rooms     map[domain.RoomID]domain.Room
	roomOrder []domain.RoomID
	songs     map[string]domain.Song
	songOrder []string
}

func NewMemory() *Memory {
	return &Memory{
		rooms: make(map[domain.RoomID]domain.Room),
		songs: make(map[string]domain.Song),
	}
}

func cloneRoom(r domain.Room) domain.Room {
	r.Songs = slices.Clone(r.Songs)
	r.Participants = slices.Clone(r.Participants)
	if r.NowPlaying != nil {
		id := *r.NowPlaying
		r.NowPlaying = &id
	}
	return r
}

func (m *Memory) LoadRoom(_ context.Context, id domain.RoomID) (*domain.Room, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	r, ok := m.rooms[id]
	if !ok {
		return nil, core.ErrNotFound
	}
	r = cloneRoom(r)
	return &r, nil
}

func (m *Memory) SaveRoom(_ context.Context, room *domain.Room) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.rooms[room.ID]; !ok {
		m.roomOrder = append(m.roomOrder, room.ID)
	}
	stored := cloneRoom(*room)
	for i := range stored.Participants {
		stored.Participants[i].ConnID = ""
	}
	m.rooms[room.ID] = stored
	return nil
}

func (m *Memory) ListRooms(_ context.Context) ([]domain.RoomSummary, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]domain.RoomSummary, 0, len(m.roomOrder))
	for _, id := range m.roomOrder {
		r := m.rooms[id]
		out = append(out, r.Summary())
	}
	return out, nil
}

func (m *Memory) ResolveSongByURL(_ context.Context, url string) (*domain.Song, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.songs[url]
	if !ok {
		return nil, core.ErrNotFound
	}
	return &s, nil
}

func (m *Memory) CreateSong(_ context.Context, song domain.Song) (*domain.Song, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if s, ok := m.songs[song.URL]; ok {
		return &s, nil
	}
	m.songs[song.URL] = song
	m.songOrder = append(m.songOrder, song.URL)
	return &song, nil
}

func (m *Memory) ListSongs(_ context.Context) ([]domain.Song, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]domain.Song, 0, len(m.songOrder))
	for _, url := range m.songOrder {
		out = append(out, m.songs[url])
	}
	return out, nil
}

func (m *Memory) Ping(context.Context) error { return nil }

func (m *Memory) Close() error { return nil }
