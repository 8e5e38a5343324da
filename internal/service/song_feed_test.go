package service

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/Baaaki/songshare/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSongFeed_PublishReachesSubscribers(t *testing.T) {
	feed := NewSongFeed(4)
	a, cancelA := feed.Subscribe()
	defer cancelA()
	b, cancelB := feed.Subscribe()
	defer cancelB()

	feed.Publish(models.Song{ID: 7, Title: "New"})

	for _, ch := range []<-chan []byte{a, b} {
		data := <-ch
		var event SongEvent
		require.NoError(t, json.Unmarshal(data, &event))
		assert.Equal(t, EventSongCreated, event.Type)
		assert.Equal(t, uint(7), event.Song.ID)
	}
}

func TestSongFeed_SlowSubscriberIsDropped(t *testing.T) {
	feed := NewSongFeed(1)
	slow, cancel := feed.Subscribe()
	defer cancel()

	feed.Publish(models.Song{ID: 1})
	feed.Publish(models.Song{ID: 2})

	assert.Equal(t, 0, feed.Subscribers())

	_, ok := <-slow
	assert.True(t, ok, "buffered event is still delivered")
	_, ok = <-slow
	assert.False(t, ok, "channel is closed after the drop")
}

func TestSongFeed_CancelIsIdempotent(t *testing.T) {
	feed := NewSongFeed(1)
	_, cancel := feed.Subscribe()
	assert.Equal(t, 1, feed.Subscribers())

	cancel()
	cancel()
	assert.Equal(t, 0, feed.Subscribers())
}

func TestSongFeed_SubscribeAfterClose(t *testing.T) {
	feed := NewSongFeed(1)
	feed.Close()

	ch, cancel := feed.Subscribe()
	defer cancel()
	_, ok := <-ch
	assert.False(t, ok)
}

type chanBroker struct {
	ch chan models.Song
}

func (b *chanBroker) Publish(_ context.Context, song models.Song) error {
	b.ch <- song
	return nil
}

func (b *chanBroker) Subscribe(context.Context) (<-chan models.Song, error) { return b.ch, nil }
func (b *chanBroker) Close() error                                          { return nil }

func TestRelaySongs(t *testing.T) {
	b := &chanBroker{ch: make(chan models.Song, 1)}
	feed := NewSongFeed(2)
	events, cancel := feed.Subscribe()
	defer cancel()

	require.NoError(t, RelaySongs(context.Background(), b, feed))

	require.NoError(t, b.Publish(context.Background(), models.Song{ID: 9}))
	data := <-events
	assert.Contains(t, string(data), `"id":9`)
	close(b.ch)
}
