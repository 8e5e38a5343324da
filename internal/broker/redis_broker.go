package broker

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/Baaaki/songshare/internal/models"
	"github.com/Baaaki/songshare/pkg/logger"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const songsChannel = "songs:created"

// RedisSongBroker implements SongBroker using Redis pub/sub
type RedisSongBroker struct {
	client *redis.Client

	mu      sync.Mutex
	pubsubs []*redis.PubSub
}

// NewRedisSongBroker uses client without taking ownership of it.
func NewRedisSongBroker(client *redis.Client) *RedisSongBroker {
	return &RedisSongBroker{client: client}
}

func (r *RedisSongBroker) Publish(ctx context.Context, song models.Song) error {
	data, err := json.Marshal(song)
	if err != nil {
		return err
	}

	return r.client.Publish(ctx, songsChannel, data).Err()
}

func (r *RedisSongBroker) Subscribe(ctx context.Context) (<-chan models.Song, error) {
	pubsub := r.client.Subscribe(ctx, songsChannel)

	// Wait for the subscription so no publish after return is missed.
	if _, err := pubsub.Receive(ctx); err != nil {
		pubsub.Close()
		return nil, err
	}

	r.mu.Lock()
	r.pubsubs = append(r.pubsubs, pubsub)
	r.mu.Unlock()

	songs := make(chan models.Song, 100)

	go func() {
		defer close(songs)
		redisMsgs := pubsub.Channel()

		for {
			select {
			case <-ctx.Done():
				pubsub.Close()
				return
			case redisMsg, ok := <-redisMsgs:
				if !ok {
					return
				}

				var song models.Song
				if err := json.Unmarshal([]byte(redisMsg.Payload), &song); err != nil {
					logger.Log.Warn("Broker: Dropped malformed song event", zap.Error(err))
					continue
				}

				select {
				case songs <- song:
				case <-ctx.Done():
					pubsub.Close()
					return
				}
			}
		}
	}()

	return songs, nil
}

// Close ends every subscription. The Redis client is left open.
func (r *RedisSongBroker) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, pubsub := range r.pubsubs {
		pubsub.Close()
	}
	r.pubsubs = nil
	return nil
}
