package domain

import "time"

// ExportHistory is the persisted audit record written when an export job
// reaches a terminal state. Unlike the in-memory job entry it survives the
// retention sweep.
type ExportHistory struct {
	ID           uint      `gorm:"primaryKey" json:"id"`
	JobID        string    `gorm:"type:text;not null;index" json:"job_id"`
	ContactID    string    `gorm:"type:text;not null;index" json:"contact_id"`
	LocationID   string    `gorm:"type:text;not null;index" json:"location_id"`
	ContactName  string    `gorm:"type:text" json:"contact_name"`
	Status       JobStatus `json:"status"`
	FileName     string    `gorm:"type:text" json:"file_name,omitempty"`
	MessageCount int       `gorm:"default:0" json:"message_count"`
	Error        string    `gorm:"type:text" json:"error,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
}

// TableName returns the database table name for ExportHistory.
// Parameters: none.
// Returns:
//   - string: table name for GORM mapping.
func (ExportHistory) TableName() string {
	return "export_history"
}
