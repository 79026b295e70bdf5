package models

// BlockedIP is a denylisted network address. Hits from it are neither counted nor recorded.
type BlockedIP struct {
	ID uint   `gorm:"primaryKey" json:"id"`
	IP string `gorm:"column:ip;size:40;uniqueIndex;not null" json:"ip"`
}

func (BlockedIP) TableName() string {
	return "hitcount_blocked_ip"
}

// BlockedUserAgent is a denylisted user agent string, matched exactly.
type BlockedUserAgent struct {
	ID        uint   `gorm:"primaryKey" json:"id"`
	UserAgent string `gorm:"size:255;uniqueIndex;not null" json:"user_agent"`
}

func (BlockedUserAgent) TableName() string {
	return "hitcount_blocked_user_agent"
}
