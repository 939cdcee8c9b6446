package core

import (
	"slices"

	"github.com/dkeye/musicroom/internal/domain"
)

// Playlist is the ordered song list of one room plus its now-playing cursor.
// NowPlaying is nil or points at an entry of songs. Not safe for concurrent
// use; the room actor owns it.
type Playlist struct {
	songs      []domain.Song
	nowPlaying *domain.SongID
}

func NewPlaylist() *Playlist {
	return &Playlist{songs: make([]domain.Song, 0)}
}

// RestorePlaylist rebuilds a playlist from persisted state. Duplicates are
// dropped and a cursor pointing outside the list is cleared.
func RestorePlaylist(songs []domain.Song, nowPlaying *domain.SongID) *Playlist {
	p := NewPlaylist()
	for _, s := range songs {
		if p.indexOf(s.ID) < 0 {
			p.songs = append(p.songs, s)
		}
	}
	if nowPlaying != nil && p.indexOf(*nowPlaying) >= 0 {
		id := *nowPlaying
		p.nowPlaying = &id
	}
	return p
}

func (p *Playlist) indexOf(id domain.SongID) int {
	return slices.IndexFunc(p.songs, func(s domain.Song) bool { return s.ID == id })
}

func (p *Playlist) setCursor(i int) {
	id := p.songs[i].ID
	p.nowPlaying = &id
}

// Add appends song unless an entry with the same identity exists, in which
// case it reports false and changes nothing. The first song added to an idle
// playlist starts playing.
func (p *Playlist) Add(song domain.Song) bool {
	if p.indexOf(song.ID) >= 0 {
		return false
	}
	p.songs = append(p.songs, song)
	if p.nowPlaying == nil {
		p.setCursor(len(p.songs) - 1)
	}
	return true
}

// Remove deletes every entry with the given identity. Removing the current
// song stops playback; it does not advance.
func (p *Playlist) Remove(id domain.SongID) bool {
	n := len(p.songs)
	p.songs = slices.DeleteFunc(p.songs, func(s domain.Song) bool { return s.ID == id })
	if len(p.songs) == n {
		return false
	}
	if p.nowPlaying != nil && *p.nowPlaying == id {
		p.nowPlaying = nil
	}
	return true
}

// Skip moves the cursor forward, wrapping to the head. A nil or dangling
// cursor lands on the head. Reports false on an empty playlist.
func (p *Playlist) Skip() bool {
	if len(p.songs) == 0 {
		return false
	}
	if p.nowPlaying == nil {
		p.setCursor(0)
		return true
	}
	i := p.indexOf(*p.nowPlaying)
	if i < 0 || i == len(p.songs)-1 {
		p.setCursor(0)
		return true
	}
	p.setCursor(i + 1)
	return true
}

// Previous moves the cursor backward, wrapping to the tail. A nil or dangling
// cursor lands on the tail. Reports false on an empty playlist.
func (p *Playlist) Previous() bool {
	last := len(p.songs) - 1
	if last < 0 {
		return false
	}
	if p.nowPlaying == nil {
		p.setCursor(last)
		return true
	}
	i := p.indexOf(*p.nowPlaying)
	if i <= 0 {
		p.setCursor(last)
		return true
	}
	p.setCursor(i - 1)
	return true
}

// SetNowPlaying points the cursor at an existing entry.
func (p *Playlist) SetNowPlaying(id domain.SongID) error {
	i := p.indexOf(id)
	if i < 0 {
		return domain.ErrSongNotInPlaylist
	}
	p.setCursor(i)
	return nil
}

func (p *Playlist) Songs() []domain.Song { return slices.Clone(p.songs) }

func (p *Playlist) Len() int { return len(p.songs) }

// NowPlaying returns the current song, or false when nothing plays.
func (p *Playlist) NowPlaying() (domain.Song, bool) {
	if p.nowPlaying == nil {
		return domain.Song{}, false
	}
	i := p.indexOf(*p.nowPlaying)
	if i < 0 {
		return domain.Song{}, false
	}
	return p.songs[i], true
}

// NowPlayingID returns a copy of the cursor.
func (p *Playlist) NowPlayingID() *domain.SongID {
	if p.nowPlaying == nil {
		return nil
	}
	id := *p.nowPlaying
	return &id
}

func (p *Playlist) Clone() *Playlist {
	return &Playlist{songs: slices.Clone(p.songs), nowPlaying: p.NowPlayingID()}
}
