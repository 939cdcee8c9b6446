package domain

import (
	"errors"
	"strings"

	"github.com/google/uuid"
)

var (
	ErrSongTitleEmpty    = errors.New("song title empty")
	ErrSongURLEmpty      = errors.New("song url empty")
	ErrSongNotInPlaylist = errors.New("song not in playlist")
)

type SongID string

// Song is a catalog entry. URL uniquely determines ID.
type Song struct {
	ID       SongID `json:"id"`
	Title    string `json:"title"`
	URL      string `json:"url"`
	Duration *int   `json:"duration"` // seconds, nil when unknown
}

// SongDescription is what a participant submits when adding a song.
type SongDescription struct {
	Title    string `json:"title" binding:"required"`
	URL      string `json:"url" binding:"required"`
	Duration *int   `json:"duration,omitempty"`
}

// Normalize trims the description and validates required fields.
func (d SongDescription) Normalize() (SongDescription, error) {
	d.Title = strings.TrimSpace(d.Title)
	d.URL = strings.TrimSpace(d.URL)
	if d.Title == "" {
		return d, ErrSongTitleEmpty
	}
	if d.URL == "" {
		return d, ErrSongURLEmpty
	}
	if d.Duration != nil && *d.Duration < 0 {
		d.Duration = nil
	}
	return d, nil
}

// NewSongID derives a stable identity from the song URL, so two processes
// minting the same URL agree on the id.
func NewSongID(url string) SongID {
	return SongID(uuid.NewSHA1(uuid.NameSpaceURL, []byte(url)).String())
}

// NewSong mints a catalog entry from a normalized description.
func NewSong(d SongDescription) Song {
	return Song{
		ID:       NewSongID(d.URL),
		Title:    d.Title,
		URL:      d.URL,
		Duration: d.Duration,
	}
}
