package service

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/Baaaki/songshare/internal/broker"
	"github.com/Baaaki/songshare/internal/models"
	"github.com/Baaaki/songshare/pkg/logger"
	"go.uber.org/zap"
)

const EventSongCreated = "song_created"

type SongEvent struct {
	Type string      `json:"type"`
	Song models.Song `json:"song"`
}

// SongFeed fans new songs out to subscribers. Publish never blocks: a
// subscriber whose buffer is full is dropped and its channel closed.
type SongFeed struct {
	mu     sync.RWMutex
	subs   map[chan []byte]struct{}
	buffer int
	closed bool
}

func NewSongFeed(buffer int) *SongFeed {
	if buffer <= 0 {
		buffer = 16
	}
	return &SongFeed{
		subs:   make(map[chan []byte]struct{}),
		buffer: buffer,
	}
}

// Subscribe registers a subscriber. The returned cancel func is safe to
// call more than once and after the subscriber was dropped.
func (f *SongFeed) Subscribe() (<-chan []byte, func()) {
	ch := make(chan []byte, f.buffer)

	f.mu.Lock()
	if f.closed {
		f.mu.Unlock()
		close(ch)
		return ch, func() {}
	}
	f.subs[ch] = struct{}{}
	f.mu.Unlock()

	return ch, func() { f.remove(ch) }
}

func (f *SongFeed) remove(ch chan []byte) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.subs[ch]; ok {
		delete(f.subs, ch)
		close(ch)
	}
}

// Publish sends a song_created event to every subscriber.
func (f *SongFeed) Publish(song models.Song) {
	data, err := json.Marshal(SongEvent{Type: EventSongCreated, Song: song})
	if err != nil {
		logger.Log.Error("Failed to encode song event", zap.Error(err))
		return
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	for ch := range f.subs {
		select {
		case ch <- data:
		default:
			delete(f.subs, ch)
			close(ch)
			logger.Log.Warn("Dropped slow song feed subscriber")
		}
	}
}

func (f *SongFeed) Subscribers() int {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return len(f.subs)
}

// Close disconnects every subscriber.
func (f *SongFeed) Close() {
	f.mu.Lock()
	defer f.mu.Unlock()
	for ch := range f.subs {
		delete(f.subs, ch)
		close(ch)
	}
	f.closed = true
}

// RelaySongs subscribes to b and forwards songs published by any instance
// to feed until ctx is done or the broker closes. It returns once the
// subscription is live.
func RelaySongs(ctx context.Context, b broker.SongBroker, feed *SongFeed) error {
	songs, err := b.Subscribe(ctx)
	if err != nil {
		return err
	}

	go func() {
		for song := range songs {
			feed.Publish(song)
		}
	}()
	return nil
}
