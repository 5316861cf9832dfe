package database

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/fuomag9/notionsocial/internal/models"
	"github.com/fuomag9/notionsocial/internal/store"
)

// Sealer encrypts access tokens before they reach the database.
type Sealer interface {
	Seal(plaintext string) (string, error)
	Open(sealed string) (string, error)
}

// Store implements store.Store on top of GORM and PostgreSQL.
type Store struct {
	db     *gorm.DB
	sealer Sealer
}

var _ store.Store = (*Store)(nil)

// NewStore wraps db. Tokens are sealed with sealer on write and opened on read.
func NewStore(db *gorm.DB, sealer Sealer) *Store {
	return &Store{db: db, sealer: sealer}
}

func translate(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, gorm.ErrRecordNotFound):
		return store.ErrNotFound
	case errors.Is(err, gorm.ErrDuplicatedKey):
		return store.ErrConflict
	default:
		return err
	}
}

func newID(id string) string {
	if id != "" {
		return id
	}
	return uuid.NewString()
}

func likePattern(search string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return "%" + r.Replace(search) + "%"
}

// Users

func (s *Store) GetUser(ctx context.Context, id string) (*models.User, error) {
	var u models.User
	if err := s.db.WithContext(ctx).Where("id = ?", id).First(&u).Error; err != nil {
		return nil, translate(err)
	}
	return &u, nil
}

func (s *Store) FindOrCreateUser(ctx context.Context, email, name string) (*models.User, error) {
	var u models.User
	err := s.db.WithContext(ctx).
		Where(models.User{Email: email}).
		Attrs(models.User{ID: uuid.NewString(), Name: name}).
		FirstOrCreate(&u).Error
	if err != nil {
		return nil, translate(err)
	}
	return &u, nil
}

func (s *Store) UpdateUserName(ctx context.Context, id, name string) (*models.User, error) {
	var u models.User
	res := s.db.WithContext(ctx).
		Model(&u).
		Clauses(clause.Returning{}).
		Where("id = ?", id).
		Update("name", name)
	if res.Error != nil {
		return nil, translate(res.Error)
	}
	if res.RowsAffected == 0 {
		return nil, store.ErrNotFound
	}
	return &u, nil
}

// Authorization states

func (s *Store) CreateState(ctx context.Context, state *models.AuthorizationState) error {
	state.ID = newID(state.ID)
	return translate(s.db.WithContext(ctx).Create(state).Error)
}

func (s *Store) ConsumeState(ctx context.Context, subjectKey, token string) (*models.AuthorizationState, error) {
	var rows []models.AuthorizationState
	err := s.db.WithContext(ctx).
		Clauses(clause.Returning{}).
		Where("subject_key = ? AND token = ?", subjectKey, token).
		Delete(&rows).Error
	if err != nil {
		return nil, translate(err)
	}
	if len(rows) == 0 {
		return nil, store.ErrNotFound
	}
	return &rows[0], nil
}

func (s *Store) PurgeExpiredStates(ctx context.Context, now time.Time) (int64, error) {
	res := s.db.WithContext(ctx).Where("expires_at <= ?", now).Delete(&models.AuthorizationState{})
	return res.RowsAffected, translate(res.Error)
}

// Workspaces

func (s *Store) openWorkspace(ws *models.NotionWorkspace) error {
	token, err := s.sealer.Open(ws.AccessToken)
	if err != nil {
		return fmt.Errorf("failed to open workspace %s token: %w", ws.ID, err)
	}
	ws.AccessToken = token
	return nil
}

func (s *Store) UpsertWorkspace(ctx context.Context, ws *models.NotionWorkspace) (*models.NotionWorkspace, error) {
	sealed, err := s.sealer.Seal(ws.AccessToken)
	if err != nil {
		return nil, err
	}

	row := *ws
	row.ID = newID(row.ID)
	row.AccessToken = sealed

	err = s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "user_id"}, {Name: "notion_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"name", "icon", "bot_id", "access_token", "status", "last_sync", "updated_at"}),
	}).Create(&row).Error
	if err != nil {
		return nil, translate(err)
	}

	var out models.NotionWorkspace
	err = s.db.WithContext(ctx).
		Where("user_id = ? AND notion_id = ?", ws.UserID, ws.NotionID).
		First(&out).Error
	if err != nil {
		return nil, translate(err)
	}
	if err := s.openWorkspace(&out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (s *Store) GetWorkspace(ctx context.Context, userID, id string) (*models.NotionWorkspace, error) {
	var ws models.NotionWorkspace
	if err := s.db.WithContext(ctx).Where("id = ? AND user_id = ?", id, userID).First(&ws).Error; err != nil {
		return nil, translate(err)
	}
	if err := s.openWorkspace(&ws); err != nil {
		return nil, err
	}
	return &ws, nil
}

func (s *Store) ListWorkspaces(ctx context.Context, userID string) ([]models.NotionWorkspace, error) {
	var rows []models.NotionWorkspace
	err := s.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at DESC, id DESC").
		Find(&rows).Error
	if err != nil {
		return nil, translate(err)
	}
	for i := range rows {
		if err := s.openWorkspace(&rows[i]); err != nil {
			return nil, err
		}
	}
	return rows, nil
}

// Social accounts

func (s *Store) UpsertAccount(ctx context.Context, acct *models.SocialAccount) (*models.SocialAccount, error) {
	sealed, err := s.sealer.Seal(acct.Token)
	if err != nil {
		return nil, err
	}

	row := *acct
	row.ID = newID(row.ID)
	row.Token = sealed

	err = s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "user_id"}, {Name: "platform"}, {Name: "account_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"name", "token", "status", "last_sync", "updated_at"}),
	}).Create(&row).Error
	if err != nil {
		return nil, translate(err)
	}

	var out models.SocialAccount
	err = s.db.WithContext(ctx).
		Where("user_id = ? AND platform = ? AND account_id = ?", acct.UserID, acct.Platform, acct.AccountID).
		First(&out).Error
	if err != nil {
		return nil, translate(err)
	}
	if out.Token, err = s.sealer.Open(out.Token); err != nil {
		return nil, fmt.Errorf("failed to open account %s token: %w", out.ID, err)
	}
	return &out, nil
}

func (s *Store) ListAccounts(ctx context.Context, userID string, q store.ListQuery) (store.Page[models.SocialAccount], error) {
	q = q.Normalize()
	tx := s.db.WithContext(ctx).Where("user_id = ?", userID)
	if q.Platform != "" {
		tx = tx.Where("platform = ?", q.Platform)
	}
	if q.Search != "" {
		tx = tx.Where("name ILIKE ?", likePattern(q.Search))
	}
	if q.Cursor != "" {
		var cursor models.SocialAccount
		err := s.db.WithContext(ctx).
			Select("id", "last_sync").
			Where("id = ? AND user_id = ?", q.Cursor, userID).
			First(&cursor).Error
		if err != nil {
			return store.Page[models.SocialAccount]{}, translate(err)
		}
		tx = tx.Where("(last_sync, id) < (?, ?)", cursor.LastSync, cursor.ID)
	}

	var rows []models.SocialAccount
	if err := tx.Order("last_sync DESC, id DESC").Limit(q.Limit + 1).Find(&rows).Error; err != nil {
		return store.Page[models.SocialAccount]{}, translate(err)
	}
	// list responses never carry tokens
	for i := range rows {
		rows[i].Token = ""
	}
	return store.NewPage(rows, q.Limit, func(a models.SocialAccount) string { return a.ID }), nil
}

func (s *Store) DeleteAccount(ctx context.Context, userID, id string) error {
	res := s.db.WithContext(ctx).Where("id = ? AND user_id = ?", id, userID).Delete(&models.SocialAccount{})
	if res.Error != nil {
		return translate(res.Error)
	}
	if res.RowsAffected == 0 {
		return store.ErrNotFound
	}
	return nil
}

// Tracked databases

func (s *Store) CreateDatabase(ctx context.Context, db *models.TrackedDatabase, cfg *models.DatabaseConfig) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		db.ID = newID(db.ID)
		if err := tx.Omit(clause.Associations).Create(db).Error; err != nil {
			return translate(err)
		}

		cfg.ID = newID(cfg.ID)
		cfg.DatabaseID = db.ID
		if err := tx.Create(cfg).Error; err != nil {
			return translate(err)
		}
		db.Config = cfg
		return nil
	})
}

func (s *Store) FindDatabaseByNotionID(ctx context.Context, userID, notionID string) (*models.TrackedDatabase, error) {
	var db models.TrackedDatabase
	err := s.db.WithContext(ctx).
		Preload("Config").
		Where("user_id = ? AND notion_id = ?", userID, notionID).
		First(&db).Error
	if err != nil {
		return nil, translate(err)
	}
	return &db, nil
}

func (s *Store) GetDatabase(ctx context.Context, userID, id string) (*models.TrackedDatabase, error) {
	var db models.TrackedDatabase
	err := s.db.WithContext(ctx).
		Preload("Config").
		Where("id = ? AND user_id = ?", id, userID).
		First(&db).Error
	if err != nil {
		return nil, translate(err)
	}
	return &db, nil
}

func (s *Store) ListDatabases(ctx context.Context, userID string, q store.ListQuery) (store.Page[models.TrackedDatabase], error) {
	q = q.Normalize()
	tx := s.db.WithContext(ctx).Preload("Config").Where("user_id = ?", userID)
	if q.Search != "" {
		tx = tx.Where("name ILIKE ?", likePattern(q.Search))
	}
	if q.Cursor != "" {
		var cursor models.TrackedDatabase
		err := s.db.WithContext(ctx).
			Select("id", "created_at").
			Where("id = ? AND user_id = ?", q.Cursor, userID).
			First(&cursor).Error
		if err != nil {
			return store.Page[models.TrackedDatabase]{}, translate(err)
		}
		tx = tx.Where("(created_at, id) < (?, ?)", cursor.CreatedAt, cursor.ID)
	}

	var rows []models.TrackedDatabase
	if err := tx.Order("created_at DESC, id DESC").Limit(q.Limit + 1).Find(&rows).Error; err != nil {
		return store.Page[models.TrackedDatabase]{}, translate(err)
	}
	return store.NewPage(rows, q.Limit, func(d models.TrackedDatabase) string { return d.ID }), nil
}

func (s *Store) TrackedNotionIDs(ctx context.Context, userID, workspaceID string) ([]string, error) {
	var ids []string
	err := s.db.WithContext(ctx).
		Model(&models.TrackedDatabase{}).
		Where("user_id = ? AND workspace_id = ?", userID, workspaceID).
		Order("notion_id").
		Pluck("notion_id", &ids).Error
	if err != nil {
		return nil, translate(err)
	}
	return ids, nil
}

func (s *Store) UpdateDatabaseConfig(ctx context.Context, cfg *models.DatabaseConfig) error {
	cfg.UpdatedAt = time.Now().UTC()
	res := s.db.WithContext(ctx).
		Model(&models.DatabaseConfig{}).
		Where("database_id = ?", cfg.DatabaseID).
		Updates(map[string]any{
			"status_column":     cfg.StatusColumn,
			"status_value":      cfg.StatusValue,
			"content_column":    cfg.ContentColumn,
			"image_column":      cfg.ImageColumn,
			"platform_column":   cfg.PlatformColumn,
			"date_column":       cfg.DateColumn,
			"update_status":     cfg.UpdateStatus,
			"notify_on_publish": cfg.NotifyOnPublish,
			"platforms":         cfg.Platforms,
			"updated_at":        cfg.UpdatedAt,
		})
	if res.Error != nil {
		return translate(res.Error)
	}
	if res.RowsAffected == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (s *Store) DeleteDatabase(ctx context.Context, userID, id string) error {
	res := s.db.WithContext(ctx).Where("id = ? AND user_id = ?", id, userID).Delete(&models.TrackedDatabase{})
	if res.Error != nil {
		return translate(res.Error)
	}
	if res.RowsAffected == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (s *Store) ListActiveDatabases(ctx context.Context, userID string) ([]models.TrackedDatabase, error) {
	var rows []models.TrackedDatabase
	err := s.db.WithContext(ctx).
		Where("user_id = ? AND active", userID).
		Order("name, id").
		Find(&rows).Error
	if err != nil {
		return nil, translate(err)
	}
	return rows, nil
}

// Posts

func (s *Store) CreatePost(ctx context.Context, post *models.Post) error {
	// the database and account must belong to the same user
	var n int64
	err := s.db.WithContext(ctx).
		Model(&models.TrackedDatabase{}).
		Where("id = ? AND user_id = ?", post.DatabaseID, post.UserID).
		Count(&n).Error
	if err != nil {
		return translate(err)
	}
	if n == 0 {
		return store.ErrNotFound
	}
	if post.SocialAccountID != nil {
		err := s.db.WithContext(ctx).
			Model(&models.SocialAccount{}).
			Where("id = ? AND user_id = ?", *post.SocialAccountID, post.UserID).
			Count(&n).Error
		if err != nil {
			return translate(err)
		}
		if n == 0 {
			return store.ErrNotFound
		}
	}

	post.ID = newID(post.ID)
	if post.Status == "" {
		post.Status = models.PostDraft
	}
	return translate(s.db.WithContext(ctx).Omit(clause.Associations).Create(post).Error)
}

// postFilter scopes a query to the user's posts matching q.
func postFilter(userID string, q store.PostQuery) func(*gorm.DB) *gorm.DB {
	return func(tx *gorm.DB) *gorm.DB {
		tx = tx.Where("posts.user_id = ?", userID)
		if q.Status != "" {
			tx = tx.Where("posts.status = ?", q.Status)
		}
		if q.DatabaseID != "" {
			tx = tx.Where("posts.database_id = ?", q.DatabaseID)
		}
		if q.Platform != "" {
			tx = tx.Where("posts.social_account_id IN (?)",
				tx.Session(&gorm.Session{NewDB: true}).
					Model(&models.SocialAccount{}).
					Select("id").
					Where("user_id = ? AND platform = ?", userID, q.Platform))
		}
		if q.Search != "" {
			pattern := likePattern(q.Search)
			tx = tx.Where("(posts.title ILIKE ? OR posts.content ILIKE ?)", pattern, pattern)
		}
		return tx
	}
}

func preloadPostRelations(tx *gorm.DB) *gorm.DB {
	return tx.
		Preload("Database", func(db *gorm.DB) *gorm.DB { return db.Select("id", "name") }).
		Preload("SocialAccount", func(db *gorm.DB) *gorm.DB { return db.Select("id", "platform") })
}

func (s *Store) ListPosts(ctx context.Context, userID string, q store.PostQuery) (store.PostList, error) {
	q = q.Normalize()
	out := store.PostList{Items: []models.Post{}}

	err := s.db.WithContext(ctx).
		Model(&models.Post{}).
		Scopes(postFilter(userID, q)).
		Count(&out.Total).Error
	if err != nil {
		return store.PostList{}, translate(err)
	}
	if out.Total == 0 {
		return out, nil
	}

	dir := "DESC"
	if q.Ascending {
		dir = "ASC"
	}
	order := fmt.Sprintf("posts.%s %s NULLS LAST, posts.id %s", store.PostSortColumns[q.Sort], dir, dir)

	err = s.db.WithContext(ctx).
		Scopes(postFilter(userID, q), preloadPostRelations).
		Order(order).
		Offset(q.Offset()).
		Limit(q.Limit).
		Find(&out.Items).Error
	if err != nil {
		return store.PostList{}, translate(err)
	}
	return out, nil
}

func (s *Store) GetPost(ctx context.Context, userID, id string) (*models.Post, error) {
	var p models.Post
	err := s.db.WithContext(ctx).
		Scopes(preloadPostRelations).
		Where("id = ? AND user_id = ?", id, userID).
		First(&p).Error
	if err != nil {
		return nil, translate(err)
	}
	return &p, nil
}

func (s *Store) DeletePost(ctx context.Context, userID, id string) error {
	res := s.db.WithContext(ctx).Where("id = ? AND user_id = ?", id, userID).Delete(&models.Post{})
	if res.Error != nil {
		return translate(res.Error)
	}
	if res.RowsAffected == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (s *Store) CountActivePosts(ctx context.Context, userID string, databaseIDs []string) (map[string]int64, error) {
	counts := map[string]int64{}
	if len(databaseIDs) == 0 {
		return counts, nil
	}

	var rows []struct {
		DatabaseID string
		Count      int64
	}
	err := s.db.WithContext(ctx).
		Model(&models.Post{}).
		Select("database_id, COUNT(*) AS count").
		Where("user_id = ? AND database_id IN ? AND status IN ?", userID, databaseIDs,
			[]models.PostStatus{models.PostPublished, models.PostScheduled}).
		Group("database_id").
		Scan(&rows).Error
	if err != nil {
		return nil, translate(err)
	}
	for _, r := range rows {
		counts[r.DatabaseID] = r.Count
	}
	return counts, nil
}
