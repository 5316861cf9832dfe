package store

import "github.com/fuomag9/notionsocial/internal/models"

// DefaultPostPageSize is the page size of the post list when none is given.
const DefaultPostPageSize = 10

// Post sort keys accepted by PostQuery.Sort.
const (
	SortCreatedAt    = "createdAt"
	SortPublishedAt  = "publishedAt"
	SortScheduledFor = "scheduledFor"
	SortTitle        = "title"
	SortStatus       = "status"
)

// PostSortColumns maps the accepted sort keys to their column.
var PostSortColumns = map[string]string{
	SortCreatedAt:    "created_at",
	SortPublishedAt:  "published_at",
	SortScheduledFor: "scheduled_for",
	SortTitle:        "title",
	SortStatus:       "status",
}

// PostQuery selects one numbered page of a user's posts.
type PostQuery struct {
	Page       int // 1-based
	Limit      int
	Search     string // case-insensitive substring of title or content
	Status     models.PostStatus
	Platform   string // platform of the linked account
	DatabaseID string
	Sort       string // one of the PostSortColumns keys
	Ascending  bool
}

// Normalize fills defaults and clamps Page and Limit. Unknown sort keys fall
// back to SortCreatedAt.
func (q PostQuery) Normalize() PostQuery {
	if q.Page < 1 {
		q.Page = 1
	}
	if q.Limit <= 0 {
		q.Limit = DefaultPostPageSize
	}
	if q.Limit > MaxPageSize {
		q.Limit = MaxPageSize
	}
	if _, ok := PostSortColumns[q.Sort]; !ok {
		q.Sort = SortCreatedAt
	}
	return q
}

// Offset is the number of rows before the requested page.
func (q PostQuery) Offset() int {
	return (q.Page - 1) * q.Limit
}

// PostList is a page of posts plus the total number of matches.
type PostList struct {
	Items []models.Post
	Total int64
}
