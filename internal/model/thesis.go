package model

import "time"

const MaxThesisTitleLength = 255

// Thesis is written once by the upload pipeline and never updated.
// FilePath is a storage key relative to the configured file store.
type Thesis struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	UserID    *uint     `gorm:"index" json:"user_id"`
	Title     string    `gorm:"size:255;not null" json:"title"`
	Summary   *string   `gorm:"type:text" json:"summary"`
	Content   string    `gorm:"type:longtext;not null" json:"content"`
	FilePath  string    `gorm:"size:255;not null" json:"file_path"`
	PageCount int       `gorm:"not null;default:0" json:"page_count"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (Thesis) TableName() string {
	return "theses"
}
