package models

import (
	"time"

	"gorm.io/gorm"
)

// User is the authenticated visitor referenced by hits and group exclusion.
// Credentials live with the identity provider; only the id and username are kept here.
type User struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	Username  string    `gorm:"size:64;uniqueIndex;not null" json:"username"`
	Groups    []Group   `gorm:"many2many:user_groups;" json:"groups,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// BeforeCreate hook ensures timestamps are set even when not provided.
func (u *User) BeforeCreate(tx *gorm.DB) error {
	now := time.Now()
	if u.CreatedAt.IsZero() {
		u.CreatedAt = now
	}
	u.UpdatedAt = now
	return nil
}

// BeforeUpdate ensures the UpdatedAt timestamp is refreshed.
func (u *User) BeforeUpdate(tx *gorm.DB) error {
	u.UpdatedAt = time.Now()
	return nil
}

// All returns every model the service migrates, in dependency order.
func All() []interface{} {
	return []interface{}{&User{}, &Group{}, &HitCount{}, &Hit{}, &BlockedIP{}, &BlockedUserAgent{}}
}
