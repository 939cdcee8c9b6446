package app

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/dkeye/musicroom/internal/adapters/storage"
	"github.com/dkeye/musicroom/internal/domain"
)

func TestCoordinator_CreateRoom(t *testing.T) {
	c, rec, store := newTestCoordinator(t)
	ctx := context.Background()

	res, err := c.CreateRoom(ctx, "  Friday  ", "host")
	require.NoError(t, err)
	assert.Equal(t, OutcomeApplied, res.Outcome)
	require.NotNil(t, res.Participant)
	assert.Equal(t, domain.RoomName("Friday"), res.Snapshot.Name)
	assert.Equal(t, []domain.ParticipantView{res.Participant.View()}, res.Snapshot.Participants)
	assert.NotNil(t, res.Snapshot.Songs)
	assert.Nil(t, res.Snapshot.NowPlaying)

	saved, err := store.LoadRoom(ctx, res.Snapshot.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.RoomName("Friday"), saved.Name)

	assert.Equal(t, 1, rec.count(EventRoomCreated))

	_, err = c.CreateRoom(ctx, "", "host")
	assert.ErrorIs(t, err, domain.ErrRoomNameEmpty)
	_, err = c.CreateRoom(ctx, "room", "  ")
	assert.ErrorIs(t, err, domain.ErrParticipantNameEmpty)
}

func TestCoordinator_UnknownRoom(t *testing.T) {
	c, rec, _ := newTestCoordinator(t)
	ctx := context.Background()
	missing := domain.RoomID("nope")

	calls := map[string]func() error{
		"join":     func() error { _, err := c.Join(ctx, missing, "a", ""); return err },
		"leave":    func() error { _, err := c.Leave(ctx, missing, "a"); return err },
		"add":      func() error { _, err := c.AddSong(ctx, missing, desc("a")); return err },
		"remove":   func() error { _, err := c.RemoveSong(ctx, missing, "x"); return err },
		"skip":     func() error { _, err := c.Skip(ctx, missing); return err },
		"previous": func() error { _, err := c.Previous(ctx, missing); return err },
		"set":      func() error { _, err := c.SetNowPlaying(ctx, missing, "x"); return err },
		"snapshot": func() error { _, err := c.Snapshot(ctx, missing); return err },
	}
	for name, call := range calls {
		t.Run(name, func(t *testing.T) {
			assert.ErrorIs(t, call(), domain.ErrRoomNotFound)
		})
	}

	ok, err := c.Exists(ctx, missing)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Empty(t, rec.all())
}

func TestCoordinator_AddSong(t *testing.T) {
	c, rec, _ := newTestCoordinator(t)
	ctx := context.Background()
	id := createRoom(t, c, "room", "host")

	res, err := c.AddSong(ctx, id, desc("a"))
	require.NoError(t, err)
	assert.Equal(t, OutcomeApplied, res.Outcome)
	require.Len(t, res.Snapshot.Songs, 1)
	require.NotNil(t, res.Snapshot.NowPlaying, "first song starts playing")
	assert.Equal(t, res.Snapshot.Songs[0].ID, res.Snapshot.NowPlaying.ID)

	again := desc("a")
	again.Title = "Other title"
	res, err = c.AddSong(ctx, id, again)
	require.NoError(t, err)
	assert.Equal(t, OutcomeAlreadyPresent, res.Outcome)
	assert.Len(t, res.Snapshot.Songs, 1)
	assert.Equal(t, 1, rec.count(EventPlaylistUpdated), "duplicate add is not published")

	_, err = c.AddSong(ctx, id, domain.SongDescription{Title: " ", URL: "u"})
	assert.True(t, domain.IsValidation(err))
}

func TestCoordinator_SongIdentityIsGlobal(t *testing.T) {
	c, _, _ := newTestCoordinator(t)
	ctx := context.Background()
	x := createRoom(t, c, "x", "host")
	y := createRoom(t, c, "y", "host")

	rx, err := c.AddSong(ctx, x, desc("shared"))
	require.NoError(t, err)
	d := desc("shared")
	d.Title = "Renamed"
	ry, err := c.AddSong(ctx, y, d)
	require.NoError(t, err)

	assert.Equal(t, rx.Snapshot.Songs[0].ID, ry.Snapshot.Songs[0].ID)
	assert.Equal(t, "Song shared", ry.Snapshot.Songs[0].Title, "catalog entry wins")

	songs, err := c.ListSongs(ctx)
	require.NoError(t, err)
	assert.Len(t, songs, 1)
}

func TestCoordinator_Navigation(t *testing.T) {
	c, rec, _ := newTestCoordinator(t)
	ctx := context.Background()
	id := createRoom(t, c, "room", "host")

	res, err := c.Skip(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, OutcomeNoop, res.Outcome)
	res, err = c.Previous(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, OutcomeNoop, res.Outcome)
	assert.Zero(t, rec.count(EventNowPlaying))

	var ids []domain.SongID
	for _, u := range []string{"a", "b", "c"} {
		res, err := c.AddSong(ctx, id, desc(u))
		require.NoError(t, err)
		ids = append(ids, res.Snapshot.Songs[len(res.Snapshot.Songs)-1].ID)
	}

	res, err = c.Previous(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, ids[2], res.Snapshot.NowPlaying.ID)
	res, err = c.Skip(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, ids[0], res.Snapshot.NowPlaying.ID)

	res, err = c.SetNowPlaying(ctx, id, ids[1])
	require.NoError(t, err)
	assert.Equal(t, ids[1], res.Snapshot.NowPlaying.ID)

	_, err = c.SetNowPlaying(ctx, id, "missing")
	assert.ErrorIs(t, err, domain.ErrSongNotInPlaylist)

	res, err = c.RemoveSong(ctx, id, ids[1])
	require.NoError(t, err)
	assert.Equal(t, OutcomeApplied, res.Outcome)
	assert.Nil(t, res.Snapshot.NowPlaying)

	res, err = c.RemoveSong(ctx, id, ids[1])
	require.NoError(t, err)
	assert.Equal(t, OutcomeNoop, res.Outcome)

	assert.Equal(t, 3, rec.count(EventNowPlaying))
}

func TestCoordinator_JoinLeave(t *testing.T) {
	c, rec, _ := newTestCoordinator(t)
	ctx := context.Background()
	id := createRoom(t, c, "room", "Host")

	res, err := c.Join(ctx, id, "host", "")
	require.NoError(t, err)
	assert.Equal(t, OutcomeDuplicateParticipant, res.Outcome)
	assert.Nil(t, res.Participant)
	assert.Len(t, res.Snapshot.Participants, 1)

	res, err = c.Join(ctx, id, "guest", "")
	require.NoError(t, err)
	require.NotNil(t, res.Participant)
	assert.Len(t, res.Snapshot.Participants, 2)
	assert.Equal(t, 1, rec.count(EventUserJoined))

	guest := res.Participant
	res, err = c.Connect(ctx, id, "GUEST", "c1")
	require.NoError(t, err)
	assert.Equal(t, guest.ID, res.Participant.ID)

	res, err = c.Connect(ctx, id, "guest", "c2")
	require.NoError(t, err)
	assert.Equal(t, OutcomeDuplicateParticipant, res.Outcome)

	res, err = c.Leave(ctx, id, string(guest.ID))
	require.NoError(t, err)
	assert.Equal(t, OutcomeApplied, res.Outcome)
	assert.Len(t, res.Snapshot.Participants, 1)

	res, err = c.Leave(ctx, id, string(guest.ID))
	require.NoError(t, err)
	assert.Equal(t, OutcomeNoop, res.Outcome)
	assert.Equal(t, 1, rec.count(EventUserLeft))
}

func TestCoordinator_ConcurrentMutationsAreSerialized(t *testing.T) {
	c, rec, _ := newTestCoordinator(t)
	ctx := context.Background()
	id := createRoom(t, c, "room", "host")

	const n = 50
	var wg sync.WaitGroup
	for i := range n {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := c.AddSong(ctx, id, desc(fmt.Sprintf("s%d", i)))
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	snap, err := c.Snapshot(ctx, id)
	require.NoError(t, err)
	assert.Len(t, snap.Songs, n)

	var sizes []int
	for _, e := range rec.all() {
		if e.event == EventPlaylistUpdated {
			sizes = append(sizes, len(e.snap.Songs))
		}
	}
	require.Len(t, sizes, n)
	for i, size := range sizes {
		assert.Equal(t, i+1, size, "every published snapshot reflects exactly the mutations before it")
	}
}

func TestCoordinator_RollbackOnStorageError(t *testing.T) {
	store := &flakyStore{Memory: storage.NewMemory()}
	store.On("SaveRoom", mock.Anything, mock.Anything).Return(nil).Once()
	store.On("SaveRoom", mock.Anything, mock.Anything).Return(errors.New("disk gone"))

	rec := &recorder{}
	c := NewCoordinator(store, rec, ModeDurable)
	t.Cleanup(c.rooms.Close)
	ctx := context.Background()

	id := createRoom(t, c, "room", "host")

	_, err := c.Join(ctx, id, "guest", "")
	var se *domain.StorageError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, "save room", se.Op)
	assert.Equal(t, "storage_unavailable", domain.Code(err))

	_, err = c.AddSong(ctx, id, desc("a"))
	require.ErrorAs(t, err, &se)

	snap, err := c.Snapshot(ctx, id)
	require.NoError(t, err)
	assert.Len(t, snap.Participants, 1)
	assert.Empty(t, snap.Songs)
	assert.Nil(t, snap.NowPlaying)

	assert.Zero(t, rec.count(EventUserJoined))
	assert.Zero(t, rec.count(EventPlaylistUpdated))
	store.AssertNumberOfCalls(t, "SaveRoom", 3)
}

func TestCoordinator_Sweep(t *testing.T) {
	c, rec, _ := newTestCoordinator(t)
	ctx := context.Background()
	x := createRoom(t, c, "x", "hx")
	y := createRoom(t, c, "y", "hy")
	z := createRoom(t, c, "z", "hz")

	for _, id := range []domain.RoomID{x, y} {
		res, err := c.Connect(ctx, id, "roamer", "c1")
		require.NoError(t, err)
		require.Equal(t, OutcomeApplied, res.Outcome)
	}
	_, err := c.Connect(ctx, z, "stay", "c2")
	require.NoError(t, err)

	affected, err := c.Sweep(ctx, "c1")
	require.NoError(t, err)
	assert.ElementsMatch(t, []domain.RoomID{x, y}, affected)

	for _, id := range []domain.RoomID{x, y} {
		snap, err := c.Snapshot(ctx, id)
		require.NoError(t, err)
		assert.Len(t, snap.Participants, 1)
	}
	snap, err := c.Snapshot(ctx, z)
	require.NoError(t, err)
	assert.Len(t, snap.Participants, 2)

	var swept []domain.RoomID
	for _, e := range rec.all() {
		if e.event == EventParticipantsUpdated {
			swept = append(swept, e.room)
		}
	}
	assert.ElementsMatch(t, []domain.RoomID{x, y}, swept)

	affected, err = c.Sweep(ctx, "c1")
	require.NoError(t, err)
	assert.Empty(t, affected)
}

func TestCoordinator_IdleEvictionReloads(t *testing.T) {
	c, _, _ := newTestCoordinator(t)
	ctx := context.Background()
	idle := createRoom(t, c, "idle", "host")
	live := createRoom(t, c, "live", "host")

	_, err := c.AddSong(ctx, idle, desc("a"))
	require.NoError(t, err)
	_, err = c.Connect(ctx, live, "listener", "c1")
	require.NoError(t, err)

	assert.Equal(t, 1, c.rooms.EvictIdle(0))
	assert.Equal(t, 1, c.rooms.Len())

	snap, err := c.Snapshot(ctx, idle)
	require.NoError(t, err)
	require.Len(t, snap.Songs, 1)
	require.NotNil(t, snap.NowPlaying)
	assert.Equal(t, 2, c.rooms.Len())

	ok, err := c.Exists(ctx, idle)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestCoordinator_ListRooms(t *testing.T) {
	c, _, _ := newTestCoordinator(t)
	ctx := context.Background()
	x := createRoom(t, c, "x", "host")
	_, err := c.Join(ctx, x, "guest", "")
	require.NoError(t, err)

	rooms, err := c.ListRooms(ctx)
	require.NoError(t, err)
	require.Len(t, rooms, 1)
	assert.Equal(t, domain.RoomSummary{ID: x, Name: "x", ParticipantCount: 2}, rooms[0])
}

func TestCoordinator_RunStopsSessions(t *testing.T) {
	c, _, _ := newTestCoordinator(t)
	id := createRoom(t, c, "room", "host")

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		c.Run(ctx, 0, 0)
		close(done)
	}()
	cancel()
	<-done

	assert.Zero(t, c.rooms.Len())
	// the room is still durable and comes back on demand
	_, err := c.Snapshot(context.Background(), id)
	assert.NoError(t, err)
}
