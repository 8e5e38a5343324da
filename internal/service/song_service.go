package service

import (
	"context"
	"strings"
	"time"

	"github.com/Baaaki/songshare/internal/apperror"
	"github.com/Baaaki/songshare/internal/broker"
	"github.com/Baaaki/songshare/internal/cache"
	"github.com/Baaaki/songshare/internal/models"
	"github.com/Baaaki/songshare/internal/repository"
	"github.com/Baaaki/songshare/internal/storage"
	"github.com/Baaaki/songshare/internal/wal"
	"github.com/Baaaki/songshare/pkg/logger"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

var (
	ErrMissingTitle    = apperror.Validation("title is required")
	ErrMissingSongFile = apperror.Validation("song file is required")
	ErrMissingFileURL  = apperror.Validation("mp3_url is required")
)

// UploadInput is one song submission. Cover and UploaderID are optional.
type UploadInput struct {
	Title      string
	Artist     string
	Album      string
	Song       *storage.File
	Cover      *storage.File
	UploaderID *uint
}

// CreateInput registers a song whose files are already hosted elsewhere.
type CreateInput struct {
	Title      string
	Artist     string
	Album      string
	FileURL    string
	CoverURL   string
	UploaderID *uint
}

type SongService struct {
	songRepo *repository.SongRepository
	storage  storage.Backend
	journal  *wal.WAL
	cache    cache.SongCache
	feed     *SongFeed
	broker   broker.SongBroker
	now      func() time.Time
}

func NewSongService(
	songRepo *repository.SongRepository,
	backend storage.Backend,
	journal *wal.WAL,
	songCache cache.SongCache,
	feed *SongFeed,
) *SongService {
	if songCache == nil {
		songCache = cache.NopCache{}
	}
	return &SongService{
		songRepo: songRepo,
		storage:  backend,
		journal:  journal,
		cache:    songCache,
		feed:     feed,
		now:      time.Now,
	}
}

// UseBroker routes new-song events through b instead of straight to the
// local feed. Pair it with RelaySongs so the events come back to the feed.
func (s *SongService) UseBroker(b broker.SongBroker) {
	s.broker = b
}

// Upload stores the files and inserts the song row. If anything after the
// first file write fails, the stored files are deleted again. The journal
// covers the window between write and insert so a crash there is cleaned
// up by wal.Recover on the next start.
func (s *SongService) Upload(ctx context.Context, in UploadInput) (*models.Song, error) {
	start := time.Now()
	title := strings.TrimSpace(in.Title)

	if title == "" {
		return nil, ErrMissingTitle
	}
	if in.Song == nil {
		return nil, ErrMissingSongFile
	}

	uploadID := uuid.NewString()
	var stored []storage.Object

	songObj, err := s.storage.Save(ctx, storage.KindSong, *in.Song)
	if err != nil {
		logger.Log.Error("Failed to store song file",
			zap.String("upload_id", uploadID),
			zap.String("backend", s.storage.Name()),
			zap.Error(err),
		)
		return nil, apperror.Storage(err)
	}
	stored = append(stored, songObj)

	var coverURL *string
	if in.Cover != nil {
		coverObj, err := s.storage.Save(ctx, storage.KindCover, *in.Cover)
		if err != nil {
			logger.Log.Error("Failed to store cover file",
				zap.String("upload_id", uploadID),
				zap.String("backend", s.storage.Name()),
				zap.Error(err),
			)
			s.discard(uploadID, stored, false)
			return nil, apperror.Storage(err)
		}
		stored = append(stored, coverObj)
		coverURL = &coverObj.URL
	}

	if err := s.journal.Pending(uploadID, stored); err != nil {
		s.discard(uploadID, stored, false)
		return nil, apperror.Internal(err)
	}

	song := &models.Song{
		Title:      title,
		Artist:     optional(in.Artist),
		Album:      optional(in.Album),
		FileURL:    songObj.URL,
		CoverURL:   coverURL,
		UploadedAt: s.now().UTC(),
		UploadedBy: in.UploaderID,
	}

	if err := s.songRepo.CreateSong(ctx, song); err != nil {
		logger.Log.Error("Failed to insert song, removing stored files",
			zap.String("upload_id", uploadID),
			zap.String("title", title),
			zap.Error(err),
		)
		s.discard(uploadID, stored, true)
		return nil, apperror.Internal(err)
	}

	if err := s.journal.Committed(uploadID); err != nil {
		// The row exists; recovery checks references before deleting.
		logger.Log.Warn("Failed to journal committed upload",
			zap.String("upload_id", uploadID),
			zap.Error(err),
		)
	}

	s.announce(ctx, song)

	logger.Log.Info("Song uploaded",
		zap.Uint("song_id", song.ID),
		zap.String("upload_id", uploadID),
		zap.String("title", title),
		zap.Bool("has_cover", coverURL != nil),
		zap.Duration("total_duration", time.Since(start)),
	)

	return song, nil
}

// Create inserts a song row for files hosted elsewhere.
func (s *SongService) Create(ctx context.Context, in CreateInput) (*models.Song, error) {
	title := strings.TrimSpace(in.Title)
	if title == "" {
		return nil, ErrMissingTitle
	}
	fileURL := strings.TrimSpace(in.FileURL)
	if fileURL == "" {
		return nil, ErrMissingFileURL
	}

	song := &models.Song{
		Title:      title,
		Artist:     optional(in.Artist),
		Album:      optional(in.Album),
		FileURL:    fileURL,
		CoverURL:   optional(in.CoverURL),
		UploadedAt: s.now().UTC(),
		UploadedBy: in.UploaderID,
	}

	if err := s.songRepo.CreateSong(ctx, song); err != nil {
		logger.Log.Error("Failed to insert song",
			zap.String("title", title),
			zap.Error(err),
		)
		return nil, apperror.Internal(err)
	}

	s.announce(ctx, song)

	logger.Log.Info("Song registered",
		zap.Uint("song_id", song.ID),
		zap.String("title", title),
	)
	return song, nil
}

// List returns every song, newest first.
func (s *SongService) List(ctx context.Context) ([]models.Song, error) {
	songs, hit, err := s.cache.GetSongs(ctx)
	if err != nil {
		logger.Log.Warn("Song cache read failed", zap.Error(err))
	}
	if hit {
		return songs, nil
	}

	gen, genErr := s.cache.Generation(ctx)

	songs, err = s.songRepo.ListSongs(ctx)
	if err != nil {
		logger.Log.Error("Failed to list songs", zap.Error(err))
		return nil, apperror.Internal(err)
	}

	if genErr == nil {
		if err := s.cache.SetSongs(ctx, gen, songs); err != nil {
			logger.Log.Warn("Song cache write failed", zap.Error(err))
		}
	}

	return songs, nil
}

func (s *SongService) announce(ctx context.Context, song *models.Song) {
	if err := s.cache.Invalidate(ctx); err != nil {
		logger.Log.Warn("Song cache invalidation failed",
			zap.Uint("song_id", song.ID),
			zap.Error(err),
		)
	}
	if s.broker != nil {
		err := s.broker.Publish(ctx, *song)
		if err == nil {
			return
		}
		logger.Log.Warn("Failed to publish song event, using local feed",
			zap.Uint("song_id", song.ID),
			zap.Error(err),
		)
	}
	if s.feed != nil {
		s.feed.Publish(*song)
	}
}

// discard deletes stored files after a failed upload. It runs on a fresh
// context so a cancelled request still cleans up.
func (s *SongService) discard(uploadID string, objects []storage.Object, journaled bool) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	failed := 0
	for _, obj := range objects {
		if err := s.storage.Delete(ctx, obj); err != nil {
			failed++
			logger.Log.Error("Failed to delete stored file",
				zap.String("upload_id", uploadID),
				zap.String("key", obj.Key),
				zap.Error(err),
			)
		}
	}

	// Leave the entry pending if a delete failed so recovery retries it.
	if journaled && failed == 0 {
		if err := s.journal.RolledBack(uploadID); err != nil {
			logger.Log.Warn("Failed to journal rolled back upload",
				zap.String("upload_id", uploadID),
				zap.Error(err),
			)
		}
	}
}

func optional(s string) *string {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	return &s
}
