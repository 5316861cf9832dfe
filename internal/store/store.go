// Package store defines the persistence contracts shared by the OAuth broker,
// the database connect service and the HTTP handlers.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/fuomag9/notionsocial/internal/models"
)

var (
	// ErrNotFound is returned when no record matches, including records
	// owned by another user.
	ErrNotFound = errors.New("record not found")
	// ErrConflict is returned when a unique key is already taken.
	ErrConflict = errors.New("record already exists")
)

// DefaultPageSize is the page size of list endpoints when none is given.
const DefaultPageSize = 9

// MaxPageSize caps the page size a caller may request.
const MaxPageSize = 100

// ListQuery selects one page of a user's records.
type ListQuery struct {
	Cursor   string // id of the last record of the previous page
	Limit    int
	Search   string // case-insensitive substring of the name
	Platform string // social accounts only
}

// Normalize clamps Limit into [1, MaxPageSize].
func (q ListQuery) Normalize() ListQuery {
	if q.Limit <= 0 {
		q.Limit = DefaultPageSize
	}
	if q.Limit > MaxPageSize {
		q.Limit = MaxPageSize
	}
	return q
}

// Page is a page of records plus the cursor of the next page.
type Page[T any] struct {
	Items      []T    `json:"items"`
	HasMore    bool   `json:"hasMore"`
	NextCursor string `json:"nextCursor,omitempty"`
}

// NewPage trims a result fetched with limit+1 rows into a Page.
func NewPage[T any](rows []T, limit int, id func(T) string) Page[T] {
	p := Page[T]{Items: rows}
	if len(rows) > limit {
		p.Items = rows[:limit]
		p.HasMore = true
	}
	if p.Items == nil {
		p.Items = []T{}
	}
	if p.HasMore {
		p.NextCursor = id(p.Items[len(p.Items)-1])
	}
	return p
}

// StateStore persists authorization states.
type StateStore interface {
	CreateState(ctx context.Context, state *models.AuthorizationState) error
	// ConsumeState deletes and returns the state matching subjectKey and
	// token in one step, expired or not. ErrNotFound when there is none.
	ConsumeState(ctx context.Context, subjectKey, token string) (*models.AuthorizationState, error)
	PurgeExpiredStates(ctx context.Context, now time.Time) (int64, error)
}

// UserStore persists dashboard users.
type UserStore interface {
	GetUser(ctx context.Context, id string) (*models.User, error)
	FindOrCreateUser(ctx context.Context, email, name string) (*models.User, error)
	// UpdateUserName changes the display name. ErrNotFound for unknown ids.
	UpdateUserName(ctx context.Context, id, name string) (*models.User, error)
}

// WorkspaceStore persists linked Notion workspaces.
type WorkspaceStore interface {
	// UpsertWorkspace inserts or updates by (user, notion id).
	UpsertWorkspace(ctx context.Context, ws *models.NotionWorkspace) (*models.NotionWorkspace, error)
	GetWorkspace(ctx context.Context, userID, id string) (*models.NotionWorkspace, error)
	ListWorkspaces(ctx context.Context, userID string) ([]models.NotionWorkspace, error)
}

// AccountStore persists linked social accounts.
type AccountStore interface {
	// UpsertAccount inserts or updates by (user, platform, account id).
	UpsertAccount(ctx context.Context, acct *models.SocialAccount) (*models.SocialAccount, error)
	ListAccounts(ctx context.Context, userID string, q ListQuery) (Page[models.SocialAccount], error)
	DeleteAccount(ctx context.Context, userID, id string) error
}

// DatabaseStore persists tracked databases and their configuration.
type DatabaseStore interface {
	// CreateDatabase stores db and cfg together. ErrConflict when the user
	// already tracks db.NotionID.
	CreateDatabase(ctx context.Context, db *models.TrackedDatabase, cfg *models.DatabaseConfig) error
	FindDatabaseByNotionID(ctx context.Context, userID, notionID string) (*models.TrackedDatabase, error)
	// GetDatabase returns the database with its Config loaded.
	GetDatabase(ctx context.Context, userID, id string) (*models.TrackedDatabase, error)
	ListDatabases(ctx context.Context, userID string, q ListQuery) (Page[models.TrackedDatabase], error)
	TrackedNotionIDs(ctx context.Context, userID, workspaceID string) ([]string, error)
	UpdateDatabaseConfig(ctx context.Context, cfg *models.DatabaseConfig) error
	DeleteDatabase(ctx context.Context, userID, id string) error
	// ListActiveDatabases returns the user's active databases ordered by name.
	ListActiveDatabases(ctx context.Context, userID string) ([]models.TrackedDatabase, error)
}

// PostStore persists posts. Every read and delete is scoped to the owner.
type PostStore interface {
	CreatePost(ctx context.Context, post *models.Post) error
	// ListPosts returns one page of posts with Database and SocialAccount
	// loaded, plus the number of posts matching the filters.
	ListPosts(ctx context.Context, userID string, q PostQuery) (PostList, error)
	GetPost(ctx context.Context, userID, id string) (*models.Post, error)
	DeletePost(ctx context.Context, userID, id string) error
	// CountActivePosts counts published and scheduled posts per database.
	// Databases without any are absent from the result.
	CountActivePosts(ctx context.Context, userID string, databaseIDs []string) (map[string]int64, error)
}

// Store groups every persistence contract.
type Store interface {
	StateStore
	UserStore
	WorkspaceStore
	AccountStore
	DatabaseStore
	PostStore
}
