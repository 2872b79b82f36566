package models

import "time"

// Kind classifies a show by its episode count
type Kind string

const (
	KindFilm   Kind = "film"
	KindSerial Kind = "serial"
)

// ShowRecord is one deduplicated show of a run
type ShowRecord struct {
	ID           uint      `gorm:"primaryKey" json:"id"`
	RunID        uint      `gorm:"not null;uniqueIndex:idx_show_records_run_show;index:idx_show_records_run_category" json:"run_id"`
	ShowID       string    `gorm:"type:varchar(64);not null;uniqueIndex:idx_show_records_run_show" json:"show_id"`
	Name         string    `gorm:"type:varchar(255);not null" json:"name"`
	Category     string    `gorm:"type:varchar(255);not null;index:idx_show_records_run_category" json:"category"`
	CategoryRaw  *string   `gorm:"type:varchar(255)" json:"category_raw,omitempty"`
	Img          *string   `gorm:"type:text" json:"img,omitempty"`
	Link         *string   `gorm:"type:text" json:"link,omitempty"`
	Kind         Kind      `gorm:"type:varchar(10);not null;index" json:"kind"`
	EpisodeCount int       `gorm:"not null;default:0" json:"episode_count"`
	Raw          string    `gorm:"type:text" json:"-"`
	CreatedAt    time.Time `gorm:"not null" json:"created_at"`

	// Associations
	Episodes []EpisodeRecord `gorm:"foreignKey:ShowRecordID;constraint:OnDelete:CASCADE" json:"episodes,omitempty"`
}

// TableName specifies the table name for ShowRecord
func (ShowRecord) TableName() string {
	return "show_records"
}

// EpisodeRecord is one episode of a show with its inferred position
type EpisodeRecord struct {
	ID           uint      `gorm:"primaryKey" json:"id"`
	ShowRecordID uint      `gorm:"not null;index" json:"show_record_id"`
	EpisodeID    string    `gorm:"type:varchar(64);not null" json:"episode_id"`
	Name         *string   `gorm:"type:varchar(255)" json:"name,omitempty"`
	Date         *string   `gorm:"type:varchar(64)" json:"date,omitempty"`
	Link         *string   `gorm:"type:text" json:"link,omitempty"`
	Season       int       `gorm:"not null;default:1" json:"season"`
	Episode      *int      `json:"episode,omitempty"`
	StreamURL    *string   `gorm:"type:text" json:"stream_url,omitempty"`
	Raw          string    `gorm:"type:text" json:"-"`
	CreatedAt    time.Time `gorm:"not null" json:"created_at"`
}

// TableName specifies the table name for EpisodeRecord
func (EpisodeRecord) TableName() string {
	return "episode_records"
}
