package types

import (
	"time"
)

// Study pairs a user-curated title with AI-generated summary and outcome
// text. Summary and outcome are filled in asynchronously after creation;
// title and import date never change once written.
type Study struct {
	ID         uint      `gorm:"primaryKey;autoIncrement" json:"id"`
	StudyID    string    `gorm:"type:varchar(64);index;not null" json:"study_id"`
	UserID     string    `gorm:"type:varchar(64);index;not null" json:"user_id"`
	Title      string    `gorm:"type:varchar(256);not null" json:"title"`
	Summary    string    `gorm:"type:text" json:"summary"`
	Outcome    string    `gorm:"type:text" json:"outcome"`
	ImportDate time.Time `gorm:"not null" json:"import_date"`
}

func (Study) TableName() string {
	return "user_studies"
}
