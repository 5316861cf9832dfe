package models

import (
	"slices"
	"time"
)

// Social platform identifiers, as stored in SocialAccount.Platform.
const (
	PlatformInstagram = "instagram"
	PlatformFacebook  = "facebook"
	PlatformTikTok    = "tiktok"
)

// SocialPlatforms lists every supported social platform.
var SocialPlatforms = []string{PlatformInstagram, PlatformFacebook, PlatformTikTok}

// IsSocialPlatform reports whether name is a supported social platform.
func IsSocialPlatform(name string) bool {
	return slices.Contains(SocialPlatforms, name)
}

// SocialAccount is a social media account linked to a user
type SocialAccount struct {
	ID        string           `json:"id" gorm:"primaryKey;type:text"`
	UserID    string           `json:"userId" gorm:"not null;uniqueIndex:idx_social_accounts_owner"`
	Platform  string           `json:"platform" gorm:"not null;uniqueIndex:idx_social_accounts_owner"`
	AccountID string           `json:"accountId" gorm:"not null;uniqueIndex:idx_social_accounts_owner"`
	Name      string           `json:"name" gorm:"not null"`
	Token     string           `json:"-" gorm:"not null"`
	Status    ConnectionStatus `json:"status" gorm:"not null;default:connected"`
	LastSync  time.Time        `json:"lastSync"`
	CreatedAt time.Time        `json:"createdAt"`
	UpdatedAt time.Time        `json:"updatedAt"`
}

// TableName specifies the table name for SocialAccount
func (SocialAccount) TableName() string {
	return "social_accounts"
}
