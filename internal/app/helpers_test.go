package app

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/dkeye/musicroom/internal/adapters/storage"
	"github.com/dkeye/musicroom/internal/domain"
)

type published struct {
	room  domain.RoomID
	event string
	snap  domain.Snapshot
}

// recorder is a core.Gateway that keeps everything published to it.
type recorder struct {
	mu     sync.Mutex
	events []published
}

func (r *recorder) Publish(room domain.RoomID, event string, payload any) {
	snap, _ := payload.(domain.Snapshot)
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, published{room: room, event: event, snap: snap})
}

func (r *recorder) all() []published {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]published(nil), r.events...)
}

func (r *recorder) count(event string) int {
	n := 0
	for _, e := range r.all() {
		if e.event == event {
			n++
		}
	}
	return n
}

// flakyStore is an in-memory store whose SaveRoom is scripted.
type flakyStore struct {
	*storage.Memory
	mock.Mock
}

func (s *flakyStore) SaveRoom(ctx context.Context, room *domain.Room) error {
	if err := s.Called(ctx, room).Error(0); err != nil {
		return err
	}
	return s.Memory.SaveRoom(ctx, room)
}

func newTestCoordinator(t *testing.T) (*Coordinator, *recorder, *storage.Memory) {
	t.Helper()
	store := storage.NewMemory()
	rec := &recorder{}
	c := NewCoordinator(store, rec, ModeMemory)
	t.Cleanup(c.rooms.Close)
	return c, rec, store
}

func createRoom(t *testing.T, c *Coordinator, name, host string) domain.RoomID {
	t.Helper()
	res, err := c.CreateRoom(context.Background(), name, host)
	require.NoError(t, err)
	return res.Snapshot.ID
}

func desc(url string) domain.SongDescription {
	return domain.SongDescription{Title: "Song " + url, URL: "https://example.com/" + url}
}

// slowStore delays every SaveRoom so requests pile up on a room.
type slowStore struct {
	*storage.Memory
	delay time.Duration
}

func (s *slowStore) SaveRoom(ctx context.Context, room *domain.Room) error {
	time.Sleep(s.delay)
	return s.Memory.SaveRoom(ctx, room)
}
