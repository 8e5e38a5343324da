package testutil

import (
	"testing"
	"time"

	"github.com/Baaaki/songshare/internal/models"
	"github.com/Baaaki/songshare/internal/utils"
	"gorm.io/gorm"
)

// CreateTestUser inserts a user with a bcrypt-hashed password
func CreateTestUser(t *testing.T, db *gorm.DB, username, password string) *models.User {
	t.Helper()
	hash, err := utils.HashPassword(password)
	if err != nil {
		t.Fatalf("Failed to hash password: %v", err)
	}

	user := &models.User{Username: username, PasswordHash: hash}
	if err := db.Create(user).Error; err != nil {
		t.Fatalf("Failed to create user %s: %v", username, err)
	}
	return user
}

// CreateTestSong inserts a song uploaded at the given time
func CreateTestSong(t *testing.T, db *gorm.DB, title string, uploadedAt time.Time) *models.Song {
	t.Helper()
	song := &models.Song{
		Title:      title,
		FileURL:    "/uploads/" + title + ".mp3",
		UploadedAt: uploadedAt.UTC(),
	}
	if err := db.Create(song).Error; err != nil {
		t.Fatalf("Failed to create song %s: %v", title, err)
	}
	return song
}

// CreateTestPlaylist inserts a playlist owned by userID
func CreateTestPlaylist(t *testing.T, db *gorm.DB, userID uint, name string) *models.Playlist {
	t.Helper()
	playlist := &models.Playlist{UserID: userID, Name: name}
	if err := db.Create(playlist).Error; err != nil {
		t.Fatalf("Failed to create playlist %s: %v", name, err)
	}
	return playlist
}
