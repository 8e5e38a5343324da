package models

import "time"

type Playlist struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	UserID    uint      `gorm:"not null;index" json:"user_id"`
	Name      string    `gorm:"type:varchar(255);not null" json:"name"`
	CreatedAt time.Time `json:"created_at"`

	User User `gorm:"foreignKey:UserID;constraint:OnDelete:CASCADE" json:"-"`
}

// PlaylistSong links a song to a playlist. There is no position column:
// insertion order is not playback order.
type PlaylistSong struct {
	PlaylistID uint `gorm:"primaryKey" json:"playlist_id"`
	SongID     uint `gorm:"primaryKey" json:"song_id"`

	Playlist Playlist `gorm:"foreignKey:PlaylistID;constraint:OnDelete:CASCADE" json:"-"`
	Song     Song     `gorm:"foreignKey:SongID;constraint:OnDelete:CASCADE" json:"-"`
}
