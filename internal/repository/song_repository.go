package repository

import (
	"context"
	"errors"

	"github.com/Baaaki/songshare/internal/models"
	"gorm.io/gorm"
)

type SongRepository struct {
	db *gorm.DB
}

func NewSongRepository(db *gorm.DB) *SongRepository {
	return &SongRepository{db: db}
}

// CreateSong inserts song as a single statement. UploadedAt is assigned by
// the caller so the row and any derived events share one timestamp.
func (r *SongRepository) CreateSong(ctx context.Context, song *models.Song) error {
	return translate(r.db.WithContext(ctx).Create(song).Error)
}

// ListSongs returns every song, newest first. Ties on uploaded_at fall
// back to id so rows inserted within one clock tick keep insert order.
func (r *SongRepository) ListSongs(ctx context.Context) ([]models.Song, error) {
	songs := make([]models.Song, 0)
	err := r.db.WithContext(ctx).
		Order("uploaded_at DESC").
		Order("id DESC").
		Find(&songs).Error

	return songs, err
}

func (r *SongRepository) GetSongByID(ctx context.Context, id uint) (*models.Song, error) {
	var song models.Song
	err := r.db.WithContext(ctx).First(&song, id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &song, nil
}

// URLInUse reports whether any song references url as its file or cover.
func (r *SongRepository) URLInUse(ctx context.Context, url string) (bool, error) {
	if url == "" {
		return false, nil
	}
	var count int64
	err := r.db.WithContext(ctx).
		Model(&models.Song{}).
		Where("file_url = ? OR cover_url = ?", url, url).
		Count(&count).Error

	return count > 0, err
}
