package app

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/dkeye/musicroom/internal/core"
	"github.com/dkeye/musicroom/internal/domain"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
)

// Outcome says what a mutation did to the room.
type Outcome string

const (
	OutcomeApplied              Outcome = "applied"
	OutcomeAlreadyPresent       Outcome = "already_present"
	OutcomeDuplicateParticipant Outcome = "duplicate_participant"
	OutcomeNoop                 Outcome = "noop"
)

// Event names published after a mutation is applied.
const (
	EventRoomCreated         = "room_created"
	EventUserJoined          = "user_joined"
	EventUserLeft            = "user_left"
	EventParticipantsUpdated = "participants_updated"
	EventPlaylistUpdated     = "playlist_updated"
	EventNowPlaying          = "now_playing"
)

// Result is returned by every coordinator call.
type Result struct {
	Snapshot    domain.Snapshot
	Outcome     Outcome
	Participant *domain.Participant
}

// Coordinator is the only writer of room state. Each room's mutations run one
// at a time on that room's session; different rooms proceed in parallel.
type Coordinator struct {
	store   core.Store
	catalog *Catalog
	gateway core.Gateway
	rooms   *Registry
	mode    StorageMode
	now     func() time.Time
}

func NewCoordinator(store core.Store, gateway core.Gateway, mode StorageMode) *Coordinator {
	if gateway == nil {
		gateway = core.GatewayFunc(func(domain.RoomID, string, any) {})
	}
	return &Coordinator{
		store:   store,
		catalog: NewCatalog(store),
		gateway: gateway,
		rooms:   NewRegistry(store),
		mode:    mode,
		now:     time.Now,
	}
}

func (c *Coordinator) Mode() StorageMode { return c.mode }

// Registry exposes the live sessions, mainly for health reporting.
func (c *Coordinator) Registry() *Registry { return c.rooms }

// Run unloads idle rooms every period until ctx is done, then stops all
// sessions.
func (c *Coordinator) Run(ctx context.Context, idle, period time.Duration) {
	defer c.rooms.Close()
	if idle <= 0 || period <= 0 {
		<-ctx.Done()
		return
	}
	t := time.NewTicker(period)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			if n := c.rooms.EvictIdle(idle); n > 0 {
				log.Info().Str("module", "app.coordinator").Int("rooms", n).Int("live", c.rooms.Len()).Msg("janitor pass")
			}
		}
	}
}

// CreateRoom allocates a room with host as its only participant.
func (c *Coordinator) CreateRoom(ctx context.Context, name, host string) (Result, error) {
	roomName, err := domain.NormalizeRoomName(name)
	if err != nil {
		return Result{}, err
	}
	hostName, err := domain.NormalizeParticipantName(host)
	if err != nil {
		return Result{}, err
	}
	now := c.now().UTC()
	hostP := domain.NewParticipant(hostName, "")
	room := &domain.Room{
		ID:           domain.NewRoomID(),
		Name:         roomName,
		Songs:        []domain.Song{},
		Participants: []domain.Participant{hostP},
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := c.store.SaveRoom(context.WithoutCancel(ctx), room); err != nil {
		log.Error().Err(err).Str("module", "app.coordinator").Msg("create room")
		return Result{}, &domain.StorageError{Op: "save room", Err: err}
	}
	c.rooms.Add(room)
	log.Info().Str("module", "app.coordinator").Str("room", string(room.ID)).Str("name", string(room.Name)).Str("host", hostName).Msg("room created")

	res := Result{Outcome: OutcomeApplied, Participant: &hostP}
	err = c.withSession(ctx, room.ID, func(st *roomState) error {
		res.Snapshot = st.snapshot()
		return nil
	})
	if err == nil {
		c.gateway.Publish(room.ID, EventRoomCreated, res.Snapshot)
	}
	return res, err
}

// Join adds name to the room. A case-insensitive name clash is reported as
// OutcomeDuplicateParticipant.
func (c *Coordinator) Join(ctx context.Context, id domain.RoomID, name string, conn domain.ConnID) (Result, error) {
	name, err := domain.NormalizeParticipantName(name)
	if err != nil {
		return Result{}, err
	}
	var joined *domain.Participant
	res, err := c.mutate(ctx, id, EventUserJoined, func(_ context.Context, st *roomState) (Outcome, error) {
		p, ok := st.roster.Join(name, conn)
		if !ok {
			return OutcomeDuplicateParticipant, nil
		}
		joined = &p
		return OutcomeApplied, nil
	})
	res.Participant = joined
	return res, err
}

// Connect binds a live connection to name, joining it when the name is free.
func (c *Coordinator) Connect(ctx context.Context, id domain.RoomID, name string, conn domain.ConnID) (Result, error) {
	name, err := domain.NormalizeParticipantName(name)
	if err != nil {
		return Result{}, err
	}
	var bound *domain.Participant
	res, err := c.mutate(ctx, id, EventUserJoined, func(_ context.Context, st *roomState) (Outcome, error) {
		p, ok := st.roster.Attach(name, conn)
		if !ok {
			return OutcomeDuplicateParticipant, nil
		}
		bound = &p
		return OutcomeApplied, nil
	})
	res.Participant = bound
	return res, err
}

// Leave removes the participant identified by participant id or connection id.
func (c *Coordinator) Leave(ctx context.Context, id domain.RoomID, key string) (Result, error) {
	return c.mutate(ctx, id, EventUserLeft, func(_ context.Context, st *roomState) (Outcome, error) {
		if !st.roster.Leave(key) {
			return OutcomeNoop, nil
		}
		return OutcomeApplied, nil
	})
}

// AddSong resolves d through the catalog and appends it to the playlist.
func (c *Coordinator) AddSong(ctx context.Context, id domain.RoomID, d domain.SongDescription) (Result, error) {
	d, err := d.Normalize()
	if err != nil {
		return Result{}, err
	}
	return c.mutate(ctx, id, EventPlaylistUpdated, func(ctx context.Context, st *roomState) (Outcome, error) {
		song, err := c.catalog.Resolve(ctx, d)
		if err != nil {
			return "", err
		}
		if !st.playlist.Add(song) {
			return OutcomeAlreadyPresent, nil
		}
		return OutcomeApplied, nil
	})
}

func (c *Coordinator) RemoveSong(ctx context.Context, id domain.RoomID, song domain.SongID) (Result, error) {
	return c.mutate(ctx, id, EventPlaylistUpdated, func(_ context.Context, st *roomState) (Outcome, error) {
		if !st.playlist.Remove(song) {
			return OutcomeNoop, nil
		}
		return OutcomeApplied, nil
	})
}

func (c *Coordinator) Skip(ctx context.Context, id domain.RoomID) (Result, error) {
	return c.mutate(ctx, id, EventNowPlaying, func(_ context.Context, st *roomState) (Outcome, error) {
		if !st.playlist.Skip() {
			return OutcomeNoop, nil
		}
		return OutcomeApplied, nil
	})
}

func (c *Coordinator) Previous(ctx context.Context, id domain.RoomID) (Result, error) {
	return c.mutate(ctx, id, EventNowPlaying, func(_ context.Context, st *roomState) (Outcome, error) {
		if !st.playlist.Previous() {
			return OutcomeNoop, nil
		}
		return OutcomeApplied, nil
	})
}

func (c *Coordinator) SetNowPlaying(ctx context.Context, id domain.RoomID, song domain.SongID) (Result, error) {
	return c.mutate(ctx, id, EventNowPlaying, func(_ context.Context, st *roomState) (Outcome, error) {
		if err := st.playlist.SetNowPlaying(song); err != nil {
			return "", err
		}
		return OutcomeApplied, nil
	})
}

// Sweep removes conn from every live room it belongs to and returns the
// affected room ids. Each removal is an ordinary serialized mutation.
func (c *Coordinator) Sweep(ctx context.Context, conn domain.ConnID) ([]domain.RoomID, error) {
	if conn == "" {
		return nil, nil
	}
	ctx = context.WithoutCancel(ctx)
	var (
		mu       sync.Mutex
		affected []domain.RoomID
		errs     []error
		g        errgroup.Group
	)
	for _, s := range c.rooms.Sessions() {
		g.Go(func() error {
			var res Result
			err := s.do(c.apply(ctx, EventParticipantsUpdated, &res, func(_ context.Context, st *roomState) (Outcome, error) {
				if st.roster.Sweep(conn) == 0 {
					return OutcomeNoop, nil
				}
				return OutcomeApplied, nil
			}))
			mu.Lock()
			defer mu.Unlock()
			switch {
			case errors.Is(err, errSessionClosed):
			case err != nil:
				errs = append(errs, err)
			case res.Outcome == OutcomeApplied:
				affected = append(affected, s.id)
			}
			return nil
		})
	}
	_ = g.Wait()
	if len(affected) > 0 {
		log.Info().Str("module", "app.coordinator").Str("conn", string(conn)).Int("rooms", len(affected)).Msg("connection swept")
	}
	return affected, errors.Join(errs...)
}

// Snapshot reads the room on its own goroutine, after every mutation queued
// before it.
func (c *Coordinator) Snapshot(ctx context.Context, id domain.RoomID) (domain.Snapshot, error) {
	var snap domain.Snapshot
	err := c.withSession(ctx, id, func(st *roomState) error {
		snap = st.snapshot()
		return nil
	})
	return snap, err
}

func (c *Coordinator) Exists(ctx context.Context, id domain.RoomID) (bool, error) {
	_, err := c.rooms.Get(context.WithoutCancel(ctx), id)
	if errors.Is(err, domain.ErrRoomNotFound) {
		return false, nil
	}
	return err == nil, err
}

func (c *Coordinator) ListRooms(ctx context.Context) ([]domain.RoomSummary, error) {
	rooms, err := c.store.ListRooms(ctx)
	if err != nil {
		return nil, &domain.StorageError{Op: "list rooms", Err: err}
	}
	return rooms, nil
}

func (c *Coordinator) ListSongs(ctx context.Context) ([]domain.Song, error) {
	return c.catalog.List(ctx)
}

type mutation func(ctx context.Context, st *roomState) (Outcome, error)

func (c *Coordinator) mutate(ctx context.Context, id domain.RoomID, event string, fn mutation) (Result, error) {
	ctx = context.WithoutCancel(ctx)
	var res Result
	err := c.withSession(ctx, id, c.apply(ctx, event, &res, fn))
	return res, err
}

// apply wraps fn with checkpoint, persistence and rollback. The room goroutine
// holds the room across the save, so the next queued request only ever sees
// committed state.
func (c *Coordinator) apply(ctx context.Context, event string, res *Result, fn mutation) func(*roomState) error {
	return func(st *roomState) error {
		cp := st.checkpoint()
		outcome, err := fn(ctx, st)
		if err != nil {
			st.restore(cp)
			var se *domain.StorageError
			if errors.As(err, &se) {
				log.Error().Err(err).Str("module", "app.coordinator").Str("room", string(st.id)).Str("event", event).Msg("mutation failed")
			}
			return err
		}
		if outcome == OutcomeApplied {
			st.updatedAt = c.now().UTC()
			if err := c.store.SaveRoom(ctx, st.aggregate()); err != nil {
				st.restore(cp)
				log.Error().Err(err).Str("module", "app.coordinator").Str("room", string(st.id)).Str("event", event).Msg("save room, rolled back")
				return &domain.StorageError{Op: "save room", Err: err}
			}
		}
		res.Outcome = outcome
		res.Snapshot = st.snapshot()
		if outcome == OutcomeApplied {
			c.gateway.Publish(st.id, event, res.Snapshot)
			log.Debug().Str("module", "app.coordinator").Str("room", string(st.id)).Str("event", event).Msg("mutation applied")
		}
		return nil
	}
}

// withSession runs fn on the room's goroutine. A session unloaded between
// lookup and submit is reloaded once.
func (c *Coordinator) withSession(ctx context.Context, id domain.RoomID, fn func(*roomState) error) error {
	ctx = context.WithoutCancel(ctx)
	for range 2 {
		s, err := c.rooms.Get(ctx, id)
		if err != nil {
			return err
		}
		if err = s.do(fn); !errors.Is(err, errSessionClosed) {
			return err
		}
	}
	return domain.ErrRoomNotFound
}
