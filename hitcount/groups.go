package hitcount

import (
	"context"

	"gorm.io/gorm"
)

// GroupMembership reports whether a user belongs to any of the named groups.
type GroupMembership interface {
	MemberOfAny(ctx context.Context, userID uint, names []string) (bool, error)
}

// UserGroups resolves membership through the user_groups join table.
type UserGroups struct {
	db *gorm.DB
}

// NewUserGroups creates a GroupMembership backed by db.
func NewUserGroups(db *gorm.DB) *UserGroups {
	return &UserGroups{db: db}
}

func (g *UserGroups) MemberOfAny(ctx context.Context, userID uint, names []string) (bool, error) {
	if len(names) == 0 {
		return false, nil
	}
	var n int64
	err := g.db.WithContext(ctx).Table("user_groups").
		Joins("JOIN auth_groups ON auth_groups.id = user_groups.group_id").
		Where("user_groups.user_id = ? AND auth_groups.name IN ?", userID, names).
		Count(&n).Error
	if err != nil {
		return false, storeErr("check user groups", err)
	}
	return n > 0, nil
}
