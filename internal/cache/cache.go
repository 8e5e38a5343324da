package cache

import (
	"context"

	"github.com/Baaaki/songshare/internal/models"
)

// SongCache caches the full newest-first song listing. A miss is reported
// as (nil, false, nil).
//
// Writers must read Generation before loading songs from the database and
// pass it to SetSongs; a listing loaded before an Invalidate is discarded.
type SongCache interface {
	GetSongs(ctx context.Context) ([]models.Song, bool, error)
	Generation(ctx context.Context) (int64, error)
	SetSongs(ctx context.Context, generation int64, songs []models.Song) error
	Invalidate(ctx context.Context) error
	Close() error
}

// NopCache never hits. It is used when no Redis URL is configured.
type NopCache struct{}

func (NopCache) GetSongs(context.Context) ([]models.Song, bool, error) { return nil, false, nil }
func (NopCache) Generation(context.Context) (int64, error)             { return 0, nil }
func (NopCache) SetSongs(context.Context, int64, []models.Song) error  { return nil }
func (NopCache) Invalidate(context.Context) error                      { return nil }
func (NopCache) Close() error                                          { return nil }
