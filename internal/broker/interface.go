package broker

import (
	"context"

	"github.com/Baaaki/songshare/internal/models"
)

// SongBroker carries song_created events between server instances so every
// instance can push them to its own feed subscribers.
type SongBroker interface {
	Publish(ctx context.Context, song models.Song) error

	// Subscribe returns a channel of songs published by any instance. The
	// channel is closed when ctx is done or the broker is closed.
	Subscribe(ctx context.Context) (<-chan models.Song, error)

	Close() error
}
