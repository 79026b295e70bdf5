package models

// Group is a named set of users; hits from members of excluded groups are not counted.
type Group struct {
	ID    uint   `gorm:"primaryKey" json:"id"`
	Name  string `gorm:"size:150;uniqueIndex;not null" json:"name"`
	Users []User `gorm:"many2many:user_groups;" json:"-"`
}

// TableName avoids the reserved word GROUPS on MySQL 8.
func (Group) TableName() string {
	return "auth_groups"
}
