package models

import "time"

// RunStatus represents the lifecycle state of a harvest run
type RunStatus string

const (
	RunStatusRunning   RunStatus = "running"
	RunStatusCompleted RunStatus = "completed"
	RunStatusFailed    RunStatus = "failed"
)

// HarvestRun records one execution of the harvest pipeline
type HarvestRun struct {
	ID           uint       `gorm:"primaryKey" json:"id"`
	RunID        string     `gorm:"type:varchar(36);not null;uniqueIndex" json:"run_id"`
	Module       string     `gorm:"type:varchar(100);not null;index" json:"module"`
	BaseURL      string     `gorm:"type:text;not null" json:"base_url"`
	Search       *string    `gorm:"type:varchar(255)" json:"search,omitempty"`
	Status       RunStatus  `gorm:"type:varchar(20);not null;index" json:"status"`
	ShowCount    int        `gorm:"not null;default:0" json:"show_count"`
	EpisodeCount int        `gorm:"not null;default:0" json:"episode_count"`
	StreamCount  int        `gorm:"not null;default:0" json:"stream_count"`
	StartedAt    time.Time  `gorm:"not null" json:"started_at"`
	CompletedAt  *time.Time `json:"completed_at,omitempty"`
	ErrorMessage *string    `gorm:"type:text" json:"error_message,omitempty"`
	CreatedAt    time.Time  `gorm:"not null" json:"created_at"`
	UpdatedAt    time.Time  `gorm:"not null" json:"updated_at"`

	// Associations
	Shows     []ShowRecord     `gorm:"foreignKey:RunID;constraint:OnDelete:CASCADE" json:"-"`
	Downloads []DownloadRecord `gorm:"foreignKey:RunID;constraint:OnDelete:CASCADE" json:"-"`
}

// TableName specifies the table name for HarvestRun
func (HarvestRun) TableName() string {
	return "harvest_runs"
}
