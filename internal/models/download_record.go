package models

import "time"

// DownloadRecord tracks the outcome of one remux attempt
type DownloadRecord struct {
	ID           uint      `gorm:"primaryKey" json:"id"`
	RunID        uint      `gorm:"not null;index" json:"run_id"`
	ShowID       string    `gorm:"type:varchar(64);not null;index:idx_download_records_item" json:"show_id"`
	EpisodeID    string    `gorm:"type:varchar(64);not null;index:idx_download_records_item" json:"episode_id"`
	Path         string    `gorm:"type:text;not null" json:"path"`
	Status       string    `gorm:"type:varchar(20);not null;index" json:"status"` // "downloaded", "skipped", "failed"
	Bytes        int64     `gorm:"not null;default:0" json:"bytes"`
	DurationMS   int64     `gorm:"not null;default:0" json:"duration_ms"`
	ErrorMessage *string   `gorm:"type:text" json:"error_message,omitempty"`
	CreatedAt    time.Time `gorm:"not null" json:"created_at"`
}

// TableName specifies the table name for DownloadRecord
func (DownloadRecord) TableName() string {
	return "download_records"
}
