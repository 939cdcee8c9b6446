package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/dkeye/musicroom/internal/core"
	"github.com/dkeye/musicroom/internal/domain"
	_ "modernc.org/sqlite"
)

// SQLite keeps the same JSON documents as Redis in two tables. Rooms not
// saved within ttl are treated as expired when ttl > 0.
type SQLite struct {
	db  *sql.DB
	ttl time.Duration
}

// OpenSQLite opens or creates the database at path and migrates it.
func OpenSQLite(path string, ttl time.Duration) (*SQLite, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create data dir: %w", err)
		}
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	// One writer keeps SQLite from returning SQLITE_BUSY under concurrent rooms.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(`
		PRAGMA journal_mode = WAL;
		PRAGMA busy_timeout = 5000;
	`); err != nil {
		db.Close()
		return nil, fmt.Errorf("configure database: %w", err)
	}
	s := &SQLite{db: db, ttl: ttl}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migration failed: %w", err)
	}
	return s, nil
}

func (s *SQLite) migrate() error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS rooms (
			id         TEXT PRIMARY KEY,
			doc        TEXT NOT NULL,
			created_at INTEGER NOT NULL,
			updated_at INTEGER NOT NULL
		);
		CREATE TABLE IF NOT EXISTS songs (
			seq INTEGER PRIMARY KEY AUTOINCREMENT,
			url TEXT NOT NULL UNIQUE,
			doc TEXT NOT NULL
		);
	`)
	return err
}

func (s *SQLite) cutoff() int64 {
	if s.ttl <= 0 {
		return 0
	}
	return time.Now().Add(-s.ttl).UnixNano()
}

func (s *SQLite) LoadRoom(ctx context.Context, id domain.RoomID) (*domain.Room, error) {
	var doc string
	err := s.db.QueryRowContext(ctx,
		`SELECT doc FROM rooms WHERE id = ? AND updated_at >= ?`, string(id), s.cutoff()).Scan(&doc)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, core.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load room: %w", err)
	}
	var room domain.Room
	if err := json.Unmarshal([]byte(doc), &room); err != nil {
		return nil, fmt.Errorf("decode room %s: %w", id, err)
	}
	return &room, nil
}

func (s *SQLite) SaveRoom(ctx context.Context, room *domain.Room) error {
	b, err := json.Marshal(room)
	if err != nil {
		return fmt.Errorf("encode room: %w", err)
	}
	now := time.Now().UnixNano()
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO rooms (id, doc, created_at, updated_at) VALUES (?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET doc = excluded.doc, updated_at = excluded.updated_at
	`, string(room.ID), string(b), now, now)
	if err != nil {
		return fmt.Errorf("save room: %w", err)
	}
	return nil
}

func (s *SQLite) ListRooms(ctx context.Context) ([]domain.RoomSummary, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT doc FROM rooms WHERE updated_at >= ? ORDER BY created_at ASC`, s.cutoff())
	if err != nil {
		return nil, fmt.Errorf("list rooms: %w", err)
	}
	defer rows.Close()
	out := []domain.RoomSummary{}
	for rows.Next() {
		var doc string
		if err := rows.Scan(&doc); err != nil {
			return nil, fmt.Errorf("scan room: %w", err)
		}
		var room domain.Room
		if err := json.Unmarshal([]byte(doc), &room); err != nil {
			continue
		}
		out = append(out, room.Summary())
	}
	return out, rows.Err()
}

func (s *SQLite) ResolveSongByURL(ctx context.Context, url string) (*domain.Song, error) {
	var doc string
	err := s.db.QueryRowContext(ctx, `SELECT doc FROM songs WHERE url = ?`, url).Scan(&doc)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, core.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get song: %w", err)
	}
	var song domain.Song
	if err := json.Unmarshal([]byte(doc), &song); err != nil {
		return nil, fmt.Errorf("decode song: %w", err)
	}
	return &song, nil
}

func (s *SQLite) CreateSong(ctx context.Context, song domain.Song) (*domain.Song, error) {
	b, err := json.Marshal(song)
	if err != nil {
		return nil, fmt.Errorf("encode song: %w", err)
	}
	if _, err := s.db.ExecContext(ctx,
		`INSERT INTO songs (url, doc) VALUES (?, ?) ON CONFLICT(url) DO NOTHING`, song.URL, string(b)); err != nil {
		return nil, fmt.Errorf("create song: %w", err)
	}
	return s.ResolveSongByURL(ctx, song.URL)
}

func (s *SQLite) ListSongs(ctx context.Context) ([]domain.Song, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT doc FROM songs ORDER BY seq ASC`)
	if err != nil {
		return nil, fmt.Errorf("list songs: %w", err)
	}
	defer rows.Close()
	out := []domain.Song{}
	for rows.Next() {
		var doc string
		if err := rows.Scan(&doc); err != nil {
			return nil, fmt.Errorf("scan song: %w", err)
		}
		var song domain.Song
		if err := json.Unmarshal([]byte(doc), &song); err != nil {
			continue
		}
		out = append(out, song)
	}
	return out, rows.Err()
}

func (s *SQLite) Ping(ctx context.Context) error { return s.db.PingContext(ctx) }

func (s *SQLite) Close() error { return s.db.Close() }
