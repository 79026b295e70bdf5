package models

import "time"

// HitCount stores the cumulative hit total for one content object.
// ContentType + ObjectPK identify the target and are unique together.
type HitCount struct {
	ID          uint      `gorm:"primaryKey" json:"id"`
	Hits        int64     `gorm:"not null;default:0;index" json:"hits"`
	ContentType string    `gorm:"uniqueIndex:idx_hitcount_target;size:100;not null" json:"content_type"`
	ObjectPK    uint      `gorm:"column:object_pk;uniqueIndex:idx_hitcount_target;not null" json:"object_pk"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"modified"`
	HitRecords  []Hit     `gorm:"foreignKey:HitCountID" json:"-"`
}

// TableName keeps the historical table name.
func (HitCount) TableName() string {
	return "hitcount_hit_count"
}
