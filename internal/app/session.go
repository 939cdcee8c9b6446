package app

import (
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dkeye/musicroom/internal/core"
	"github.com/dkeye/musicroom/internal/domain"
)

var errSessionClosed = errors.New("room session closed")

// roomState is the authoritative in-memory copy of one room.
// Only the session's run loop touches it.
type roomState struct {
	id        domain.RoomID
	name      domain.RoomName
	createdAt time.Time
	updatedAt time.Time
	playlist  *core.Playlist
	roster    *core.Roster
}

func newRoomState(room *domain.Room) *roomState {
	return &roomState{
		id:        room.ID,
		name:      room.Name,
		createdAt: room.CreatedAt,
		updatedAt: room.UpdatedAt,
		playlist:  core.RestorePlaylist(room.Songs, room.NowPlaying),
		roster:    core.RestoreRoster(room.Participants),
	}
}

func (s *roomState) checkpoint() roomState {
	cp := *s
	cp.playlist = s.playlist.Clone()
	cp.roster = s.roster.Clone()
	return cp
}

func (s *roomState) restore(cp roomState) { *s = cp }

func (s *roomState) aggregate() *domain.Room {
	return &domain.Room{
		ID:           s.id,
		Name:         s.name,
		Songs:        s.playlist.Songs(),
		NowPlaying:   s.playlist.NowPlayingID(),
		Participants: s.roster.Members(),
		CreatedAt:    s.createdAt,
		UpdatedAt:    s.updatedAt,
	}
}

func (s *roomState) snapshot() domain.Snapshot {
	songs := s.playlist.Songs()
	members := s.roster.Members()
	snap := domain.Snapshot{
		ID:           s.id,
		Name:         s.name,
		Songs:        make([]domain.SongView, 0, len(songs)),
		Participants: make([]domain.ParticipantView, 0, len(members)),
	}
	for _, song := range songs {
		snap.Songs = append(snap.Songs, song.View())
	}
	if now, ok := s.playlist.NowPlaying(); ok {
		v := now.View()
		snap.NowPlaying = &v
	}
	for _, m := range members {
		snap.Participants = append(snap.Participants, m.View())
	}
	return snap
}

// session is the serialization unit of a room: a single goroutine executing
// requests one at a time. Blocked senders on the unbuffered inbox are served
// in arrival order.
type session struct {
	id    domain.RoomID
	state *roomState
	inbox chan func()

	quit     chan struct{}
	done     chan struct{}
	stopOnce sync.Once

	lastActive atomic.Int64
}

func newSession(room *domain.Room) *session {
	s := &session{
		id:    room.ID,
		state: newRoomState(room),
		inbox: make(chan func()),
		quit:  make(chan struct{}),
		done:  make(chan struct{}),
	}
	s.touch()
	return s
}

func (s *session) touch() { s.lastActive.Store(time.Now().UnixNano()) }

func (s *session) idleFor(now time.Time) time.Duration {
	return now.Sub(time.Unix(0, s.lastActive.Load()))
}

func (s *session) run() {
	defer close(s.done)
	for {
		select {
		case <-s.quit:
			return
		case fn := <-s.inbox:
			fn()
			s.touch()
			// fn may have halted the session; senders still queued get
			// errSessionClosed instead of the stale state.
			select {
			case <-s.quit:
				return
			default:
			}
		}
	}
}

// do runs fn on the room goroutine and waits for it. Once accepted, fn runs to
// completion regardless of what happens to the caller.
func (s *session) do(fn func(*roomState) error) error {
	errc := make(chan error, 1)
	select {
	case s.inbox <- func() { errc <- fn(s.state) }:
	case <-s.quit:
		return errSessionClosed
	}
	return <-errc
}

// halt closes quit without waiting. Called from inside the run loop, it makes
// the current request the last one the session accepts.
func (s *session) halt() {
	s.stopOnce.Do(func() { close(s.quit) })
}

func (s *session) stop() {
	s.halt()
	<-s.done
}
