package models

import "time"

// Song is immutable once inserted. CoverURL and UploadedBy stay nil when absent.
type Song struct {
	ID         uint      `gorm:"primaryKey" json:"id"`
	Title      string    `gorm:"type:varchar(255);not null" json:"title"`
	Artist     *string   `gorm:"type:varchar(255)" json:"artist"`
	Album      *string   `gorm:"type:varchar(255)" json:"album"`
	FileURL    string    `gorm:"type:text;not null" json:"file_url"`
	CoverURL   *string   `gorm:"type:text" json:"cover_url"`
	UploadedAt time.Time `gorm:"not null;index" json:"uploaded_at"`
	UploadedBy *uint     `gorm:"index" json:"uploaded_by"`

	Uploader *User `gorm:"foreignKey:UploadedBy;constraint:OnDelete:SET NULL" json:"-"`
}
