package repository

import (
	"context"
	"errors"

	"github.com/Baaaki/songshare/internal/models"
	"gorm.io/gorm"
)

type PlaylistRepository struct {
	db *gorm.DB
}

func NewPlaylistRepository(db *gorm.DB) *PlaylistRepository {
	return &PlaylistRepository{db: db}
}

func (r *PlaylistRepository) CreatePlaylist(ctx context.Context, playlist *models.Playlist) error {
	return translate(r.db.WithContext(ctx).Create(playlist).Error)
}

// ListByUser returns the playlists owned by userID, oldest first.
func (r *PlaylistRepository) ListByUser(ctx context.Context, userID uint) ([]models.Playlist, error) {
	playlists := make([]models.Playlist, 0)
	err := r.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("id ASC").
		Find(&playlists).Error

	return playlists, err
}

func (r *PlaylistRepository) GetPlaylistByID(ctx context.Context, id uint) (*models.Playlist, error) {
	var playlist models.Playlist
	err := r.db.WithContext(ctx).First(&playlist, id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &playlist, nil
}

// AddSong links songID to playlistID. Adding the same pair twice is
// reported as ErrDuplicate through the composite primary key.
func (r *PlaylistRepository) AddSong(ctx context.Context, playlistID, songID uint) error {
	link := &models.PlaylistSong{PlaylistID: playlistID, SongID: songID}
	return translate(r.db.WithContext(ctx).Create(link).Error)
}

// RemoveSong deletes the link if present. Removing a missing link is not
// an error; the affected row count is returned for logging.
func (r *PlaylistRepository) RemoveSong(ctx context.Context, playlistID, songID uint) (int64, error) {
	result := r.db.WithContext(ctx).
		Where("playlist_id = ? AND song_id = ?", playlistID, songID).
		Delete(&models.PlaylistSong{})

	return result.RowsAffected, result.Error
}

// ListSongs returns the songs linked to playlistID.
func (r *PlaylistRepository) ListSongs(ctx context.Context, playlistID uint) ([]models.Song, error) {
	songs := make([]models.Song, 0)
	err := r.db.WithContext(ctx).
		Joins("JOIN playlist_songs ON playlist_songs.song_id = songs.id").
		Where("playlist_songs.playlist_id = ?", playlistID).
		Order("songs.id ASC").
		Find(&songs).Error

	return songs, err
}
