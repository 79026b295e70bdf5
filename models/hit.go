package models

import "time"

// Hit captures a single counted view. Rows are never edited after insert.
type Hit struct {
	ID         uint      `gorm:"primaryKey" json:"id"`
	CreatedAt  time.Time `gorm:"index;not null" json:"created"`
	IP         *string   `gorm:"column:ip;size:40;index" json:"ip"`
	Session    string    `gorm:"size:40;index;not null" json:"session"`
	UserAgent  string    `gorm:"size:255;not null" json:"user_agent"`
	UserID     *uint     `gorm:"index" json:"user_id"`
	HitCountID uint      `gorm:"index;not null" json:"hitcount_id"`
}

// TableName keeps the historical table name.
func (Hit) TableName() string {
	return "hitcount_hit"
}
