package models

import (
	"slices"
	"time"
)

// PostStatus is the publishing status of a post
type PostStatus string

const (
	PostDraft     PostStatus = "draft"
	PostScheduled PostStatus = "scheduled"
	PostPublished PostStatus = "published"
	PostFailed    PostStatus = "failed"
)

// PostStatuses lists every post status.
var PostStatuses = []PostStatus{PostDraft, PostScheduled, PostPublished, PostFailed}

// IsPostStatus reports whether s is a known post status.
func IsPostStatus(s string) bool {
	return slices.Contains(PostStatuses, PostStatus(s))
}

// Active reports whether the post counts towards a database's stats.
func (s PostStatus) Active() bool {
	return s == PostPublished || s == PostScheduled
}

// Post is a row of a tracked database published, or due to be published,
// to one social account
type Post struct {
	ID              string     `json:"id" gorm:"primaryKey;type:text"`
	UserID          string     `json:"userId" gorm:"not null;index"`
	DatabaseID      string     `json:"databaseId" gorm:"not null;index"`
	SocialAccountID *string    `json:"socialAccountId"`
	Title           string     `json:"title" gorm:"not null"`
	Content         string     `json:"content" gorm:"not null"`
	ImageURL        *string    `json:"imageUrl" gorm:"column:image_url"`
	Status          PostStatus `json:"status" gorm:"not null;default:draft"`
	PublishedAt     *time.Time `json:"publishedAt"`
	ScheduledFor    *time.Time `json:"scheduledFor"`
	Error           string     `json:"error,omitempty"`
	CreatedAt       time.Time  `json:"createdAt"`

	Database      *TrackedDatabase `json:"-" gorm:"foreignKey:DatabaseID"`
	SocialAccount *SocialAccount   `json:"-" gorm:"foreignKey:SocialAccountID"`
}

// TableName specifies the table name for Post
func (Post) TableName() string {
	return "posts"
}

// Platform returns the platform of the linked account, empty when the
// account was unlinked.
func (p *Post) Platform() string {
	if p.SocialAccount == nil {
		return ""
	}
	return p.SocialAccount.Platform
}
