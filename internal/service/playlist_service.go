package service

import (
	"context"
	"errors"
	"strings"

	"github.com/Baaaki/songshare/internal/apperror"
	"github.com/Baaaki/songshare/internal/models"
	"github.com/Baaaki/songshare/internal/repository"
	"github.com/Baaaki/songshare/pkg/logger"
	"go.uber.org/zap"
)

var (
	ErrMissingPlaylistName = apperror.Validation("name is required")
	ErrPlaylistNotFound    = apperror.NotFound("playlist not found")
	ErrSongNotFound        = apperror.NotFound("song not found")
	ErrSongAlreadyInList   = apperror.Conflict("song already in playlist")
)

type PlaylistService struct {
	playlistRepo   *repository.PlaylistRepository
	songRepo       *repository.SongRepository
	checkOwnership bool
}

// NewPlaylistService creates the service. With checkOwnership set, a
// playlist owned by another user is reported as not found.
func NewPlaylistService(
	playlistRepo *repository.PlaylistRepository,
	songRepo *repository.SongRepository,
	checkOwnership bool,
) *PlaylistService {
	return &PlaylistService{
		playlistRepo:   playlistRepo,
		songRepo:       songRepo,
		checkOwnership: checkOwnership,
	}
}

func (s *PlaylistService) List(ctx context.Context, userID uint) ([]models.Playlist, error) {
	playlists, err := s.playlistRepo.ListByUser(ctx, userID)
	if err != nil {
		logger.Log.Error("Failed to list playlists",
			zap.Uint("user_id", userID),
			zap.Error(err),
		)
		return nil, apperror.Internal(err)
	}
	return playlists, nil
}

func (s *PlaylistService) Create(ctx context.Context, userID uint, name string) (*models.Playlist, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, ErrMissingPlaylistName
	}

	playlist := &models.Playlist{UserID: userID, Name: name}
	if err := s.playlistRepo.CreatePlaylist(ctx, playlist); err != nil {
		logger.Log.Error("Failed to create playlist",
			zap.Uint("user_id", userID),
			zap.Error(err),
		)
		return nil, apperror.Internal(err)
	}

	logger.Log.Info("Playlist created",
		zap.Uint("playlist_id", playlist.ID),
		zap.Uint("user_id", userID),
	)
	return playlist, nil
}

func (s *PlaylistService) AddSong(ctx context.Context, userID, playlistID, songID uint) error {
	if _, err := s.playlistFor(ctx, userID, playlistID); err != nil {
		return err
	}

	song, err := s.songRepo.GetSongByID(ctx, songID)
	if err != nil {
		return apperror.Internal(err)
	}
	if song == nil {
		return ErrSongNotFound
	}

	if err := s.playlistRepo.AddSong(ctx, playlistID, songID); err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			return ErrSongAlreadyInList
		}
		logger.Log.Error("Failed to add song to playlist",
			zap.Uint("playlist_id", playlistID),
			zap.Uint("song_id", songID),
			zap.Error(err),
		)
		return apperror.Internal(err)
	}

	logger.Log.Debug("Song added to playlist",
		zap.Uint("playlist_id", playlistID),
		zap.Uint("song_id", songID),
	)
	return nil
}

// RemoveSong unlinks songID. Removing a song that is not in the playlist
// succeeds.
func (s *PlaylistService) RemoveSong(ctx context.Context, userID, playlistID, songID uint) error {
	if _, err := s.playlistFor(ctx, userID, playlistID); err != nil {
		return err
	}

	removed, err := s.playlistRepo.RemoveSong(ctx, playlistID, songID)
	if err != nil {
		logger.Log.Error("Failed to remove song from playlist",
			zap.Uint("playlist_id", playlistID),
			zap.Uint("song_id", songID),
			zap.Error(err),
		)
		return apperror.Internal(err)
	}

	logger.Log.Debug("Song removed from playlist",
		zap.Uint("playlist_id", playlistID),
		zap.Uint("song_id", songID),
		zap.Int64("removed", removed),
	)
	return nil
}

func (s *PlaylistService) Songs(ctx context.Context, userID, playlistID uint) ([]models.Song, error) {
	if _, err := s.playlistFor(ctx, userID, playlistID); err != nil {
		return nil, err
	}

	songs, err := s.playlistRepo.ListSongs(ctx, playlistID)
	if err != nil {
		return nil, apperror.Internal(err)
	}
	return songs, nil
}

// playlistFor loads the playlist and applies the ownership policy.
func (s *PlaylistService) playlistFor(ctx context.Context, userID, playlistID uint) (*models.Playlist, error) {
	playlist, err := s.playlistRepo.GetPlaylistByID(ctx, playlistID)
	if err != nil {
		return nil, apperror.Internal(err)
	}
	if playlist == nil {
		return nil, ErrPlaylistNotFound
	}
	if s.checkOwnership && playlist.UserID != userID {
		logger.Log.Warn("Playlist access denied",
			zap.Uint("playlist_id", playlistID),
			zap.Uint("user_id", userID),
		)
		return nil, ErrPlaylistNotFound
	}
	return playlist, nil
}
