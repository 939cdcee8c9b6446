package app

import (
	"context"
	"errors"

	"github.com/dkeye/musicroom/internal/core"
	"github.com/dkeye/musicroom/internal/domain"
	"github.com/rs/zerolog/log"
)

// Catalog deduplicates songs by URL across every room.
type Catalog struct {
	store core.Store
}

func NewCatalog(store core.Store) *Catalog {
	return &Catalog{store: store}
}

// Resolve returns the catalog entry for d.URL, minting one if the URL is new.
// An existing entry wins over the submitted title and duration.
func (c *Catalog) Resolve(ctx context.Context, d domain.SongDescription) (domain.Song, error) {
	d, err := d.Normalize()
	if err != nil {
		return domain.Song{}, err
	}
	existing, err := c.store.ResolveSongByURL(ctx, d.URL)
	switch {
	case err == nil:
		return *existing, nil
	case !errors.Is(err, core.ErrNotFound):
		return domain.Song{}, &domain.StorageError{Op: "resolve song", Err: err}
	}

	created, err := c.store.CreateSong(ctx, domain.NewSong(d))
	if err != nil {
		return domain.Song{}, &domain.StorageError{Op: "create song", Err: err}
	}
	log.Debug().Str("module", "app.catalog").Str("song", string(created.ID)).Str("url", created.URL).Msg("song cataloged")
	return *created, nil
}

func (c *Catalog) List(ctx context.Context) ([]domain.Song, error) {
	songs, err := c.store.ListSongs(ctx)
	if err != nil {
		return nil, &domain.StorageError{Op: "list songs", Err: err}
	}
	return songs, nil
}
