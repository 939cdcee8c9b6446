package core

import (
	"context"
	"errors"

	"github.com/dkeye/musicroom/internal/domain"
)

// ErrNotFound is returned by a Store when a document is absent.
var ErrNotFound = errors.New("not found")

// Store is the durable key-value document store behind the coordinator.
// Implementations return plain errors; the coordinator wraps them.
type Store interface {
	LoadRoom(ctx context.Context, id domain.RoomID) (*domain.Room, error)
	SaveRoom(ctx context.Context, room *domain.Room) error
	ListRooms(ctx context.Context) ([]domain.RoomSummary, error)

	ResolveSongByURL(ctx context.Context, url string) (*domain.Song, error)
	// CreateSong inserts song unless its URL is already known, and returns
	// whichever record is stored afterwards.
	CreateSong(ctx context.Context, song domain.Song) (*domain.Song, error)
	ListSongs(ctx context.Context) ([]domain.Song, error)

	Ping(ctx context.Context) error
	Close() error
}

// Gateway fans events out to every observer of a room.
// Publish must not block on slow observers.
type Gateway interface {
	Publish(roomID domain.RoomID, event string, payload any)
}

// GatewayFunc adapts a plain function to Gateway.
type GatewayFunc func(roomID domain.RoomID, event string, payload any)

func (f GatewayFunc) Publish(roomID domain.RoomID, event string, payload any) {
	f(roomID, event, payload)
}
