package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/dkeye/musicroom/internal/core"
	"github.com/dkeye/musicroom/internal/domain"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

const (
	roomKeyPrefix = "musicroom:room:"
	roomIndexKey  = "musicroom:rooms"
	songKeyPrefix = "musicroom:song:"
	songIndexKey  = "musicroom:songs"
)

// createSongScript stores a song document and indexes its URL in one step;
// an existing document is left untouched. Returns 1 when it created one.
var createSongScript = redis.NewScript(`
if redis.call("SETNX", KEYS[1], ARGV[1]) == 1 then
	redis.call("RPUSH", KEYS[2], ARGV[2])
	return 1
end
return 0
`)

// Redis stores rooms and songs as JSON documents. Rooms expire after ttl of
// inactivity when ttl > 0; songs never expire.
type Redis struct {
	rdb *redis.Client
	ttl time.Duration
}

func NewRedis(rdb *redis.Client, ttl time.Duration) *Redis {
	return &Redis{rdb: rdb, ttl: ttl}
}

// OpenRedis parses url and returns a store over a new client. It does not
// check connectivity; call Ping for that.
func OpenRedis(url string, ttl time.Duration) (*Redis, error) {
	opt, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("invalid redis url: %w", err)
	}
	return NewRedis(redis.NewClient(opt), ttl), nil
}

// Client exposes the underlying client so the broadcast gateway can share it.
func (s *Redis) Client() *redis.Client { return s.rdb }

func roomKey(id domain.RoomID) string { return roomKeyPrefix + string(id) }

func songKey(url string) string { return songKeyPrefix + url }

func (s *Redis) LoadRoom(ctx context.Context, id domain.RoomID) (*domain.Room, error) {
	b, err := s.rdb.Get(ctx, roomKey(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, core.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get room: %w", err)
	}
	var room domain.Room
	if err := json.Unmarshal(b, &room); err != nil {
		return nil, fmt.Errorf("decode room %s: %w", id, err)
	}
	return &room, nil
}

func (s *Redis) SaveRoom(ctx context.Context, room *domain.Room) error {
	b, err := json.Marshal(room)
	if err != nil {
		return fmt.Errorf("encode room: %w", err)
	}
	_, err = s.rdb.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.Set(ctx, roomKey(room.ID), b, s.ttl)
		p.SAdd(ctx, roomIndexKey, string(room.ID))
		return nil
	})
	if err != nil {
		return fmt.Errorf("save room: %w", err)
	}
	return nil
}

func (s *Redis) ListRooms(ctx context.Context) ([]domain.RoomSummary, error) {
	ids, err := s.rdb.SMembers(ctx, roomIndexKey).Result()
	if err != nil {
		return nil, fmt.Errorf("list room ids: %w", err)
	}
	if len(ids) == 0 {
		return []domain.RoomSummary{}, nil
	}
	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = roomKey(domain.RoomID(id))
	}
	vals, err := s.rdb.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("list rooms: %w", err)
	}
	out := make([]domain.RoomSummary, 0, len(vals))
	var stale []any
	for i, v := range vals {
		raw, ok := v.(string)
		if !ok {
			stale = append(stale, ids[i])
			continue
		}
		var room domain.Room
		if err := json.Unmarshal([]byte(raw), &room); err != nil {
			log.Warn().Err(err).Str("module", "storage.redis").Str("room", ids[i]).Msg("skip undecodable room")
			continue
		}
		out = append(out, room.Summary())
	}
	if len(stale) > 0 {
		if err := s.rdb.SRem(ctx, roomIndexKey, stale...).Err(); err != nil {
			log.Warn().Err(err).Str("module", "storage.redis").Msg("prune expired rooms")
		}
	}
	return out, nil
}

func (s *Redis) ResolveSongByURL(ctx context.Context, url string) (*domain.Song, error) {
	b, err := s.rdb.Get(ctx, songKey(url)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, core.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get song: %w", err)
	}
	var song domain.Song
	if err := json.Unmarshal(b, &song); err != nil {
		return nil, fmt.Errorf("decode song: %w", err)
	}
	return &song, nil
}

func (s *Redis) CreateSong(ctx context.Context, song domain.Song) (*domain.Song, error) {
	b, err := json.Marshal(song)
	if err != nil {
		return nil, fmt.Errorf("encode song: %w", err)
	}
	created, err := createSongScript.Run(ctx, s.rdb, []string{songKey(song.URL), songIndexKey}, b, song.URL).Int()
	if err != nil {
		return nil, fmt.Errorf("create song: %w", err)
	}
	if created == 0 {
		return s.ResolveSongByURL(ctx, song.URL)
	}
	return &song, nil
}

func (s *Redis) ListSongs(ctx context.Context) ([]domain.Song, error) {
	urls, err := s.rdb.LRange(ctx, songIndexKey, 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("list song urls: %w", err)
	}
	if len(urls) == 0 {
		return []domain.Song{}, nil
	}
	keys := make([]string, len(urls))
	for i, u := range urls {
		keys[i] = songKey(u)
	}
	vals, err := s.rdb.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("list songs: %w", err)
	}
	out := make([]domain.Song, 0, len(vals))
	for i, v := range vals {
		raw, ok := v.(string)
		if !ok {
			continue
		}
		var song domain.Song
		if err := json.Unmarshal([]byte(raw), &song); err != nil {
			log.Warn().Err(err).Str("module", "storage.redis").Str("url", urls[i]).Msg("skip undecodable song")
			continue
		}
		out = append(out, song)
	}
	return out, nil
}

func (s *Redis) Ping(ctx context.Context) error {
	return s.rdb.Ping(ctx).Err()
}

func (s *Redis) Close() error {
	return s.rdb.Close()
}
