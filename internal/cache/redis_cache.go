package cache

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/Baaaki/songshare/internal/models"
)

const (
	songsKey      = "songs:all"
	generationKey = "songs:generation"
)

// RedisSongCache implements SongCache with one key for the listing and a
// counter bumped on every invalidation.
type RedisSongCache struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisClient parses redisURL and checks the connection.
func NewRedisClient(ctx context.Context, redisURL string) (*redis.Client, error) {
	opt, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, err
	}

	client := redis.NewClient(opt)
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, err
	}
	return client, nil
}

func NewRedisSongCache(client *redis.Client, ttl time.Duration) *RedisSongCache {
	return &RedisSongCache{client: client, ttl: ttl}
}

func (c *RedisSongCache) GetSongs(ctx context.Context) ([]models.Song, bool, error) {
	data, err := c.client.Get(ctx, songsKey).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, false, nil
		}
		return nil, false, err
	}

	var songs []models.Song
	if err := json.Unmarshal(data, &songs); err != nil {
		return nil, false, err
	}
	return songs, true, nil
}

func (c *RedisSongCache) Generation(ctx context.Context) (int64, error) {
	gen, err := c.client.Get(ctx, generationKey).Int64()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	return gen, err
}

// SetSongs stores songs only if no invalidation happened since generation
// was read. A lost race is not an error.
func (c *RedisSongCache) SetSongs(ctx context.Context, generation int64, songs []models.Song) error {
	data, err := json.Marshal(songs)
	if err != nil {
		return err
	}

	err = c.client.Watch(ctx, func(tx *redis.Tx) error {
		current, err := tx.Get(ctx, generationKey).Int64()
		if err != nil && !errors.Is(err, redis.Nil) {
			return err
		}
		if current != generation {
			return nil
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, songsKey, data, c.ttl)
			return nil
		})
		return err
	}, generationKey)

	if errors.Is(err, redis.TxFailedErr) {
		return nil
	}
	return err
}

func (c *RedisSongCache) Invalidate(ctx context.Context) error {
	_, err := c.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Incr(ctx, generationKey)
		pipe.Del(ctx, songsKey)
		return nil
	})
	return err
}

func (c *RedisSongCache) Close() error {
	return c.client.Close()
}
