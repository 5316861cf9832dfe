// Package memstore is an in-process implementation of store.Store used for
// local runs (DATABASE_TYPE=memory) and tests.
package memstore

import (
	"cmp"
	"context"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/fuomag9/notionsocial/internal/models"
	"github.com/fuomag9/notionsocial/internal/store"
)

// Store keeps every record in maps guarded by one mutex.
type Store struct {
	mu         sync.Mutex
	now        func() time.Time
	users      map[string]models.User
	states     map[string]models.AuthorizationState
	workspaces map[string]models.NotionWorkspace
	accounts   map[string]models.SocialAccount
	databases  map[string]models.TrackedDatabase
	configs    map[string]models.DatabaseConfig // keyed by database id
	posts      map[string]models.Post
}

var _ store.Store = (*Store)(nil)

// New creates an empty store.
func New() *Store {
	return &Store{
		now:        time.Now,
		users:      map[string]models.User{},
		states:     map[string]models.AuthorizationState{},
		workspaces: map[string]models.NotionWorkspace{},
		accounts:   map[string]models.SocialAccount{},
		databases:  map[string]models.TrackedDatabase{},
		configs:    map[string]models.DatabaseConfig{},
		posts:      map[string]models.Post{},
	}
}

// SetClock overrides the clock used for timestamps.
func (s *Store) SetClock(now func() time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.now = now
}

func newID(id string) string {
	if id != "" {
		return id
	}
	return uuid.NewString()
}

func matches(name, search string) bool {
	return search == "" || strings.Contains(strings.ToLower(name), strings.ToLower(search))
}

// paginate slices sorted rows after the cursor, keeping limit+1 rows.
func paginate[T any](rows []T, q store.ListQuery, id func(T) string) (store.Page[T], error) {
	start := 0
	if q.Cursor != "" {
		idx := slices.IndexFunc(rows, func(r T) bool { return id(r) == q.Cursor })
		if idx < 0 {
			return store.Page[T]{}, store.ErrNotFound
		}
		start = idx + 1
	}
	rows = rows[start:]
	if len(rows) > q.Limit+1 {
		rows = rows[:q.Limit+1]
	}
	return store.NewPage(rows, q.Limit, id), nil
}

// Users

func (s *Store) GetUser(_ context.Context, id string) (*models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.users[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &u, nil
}

func (s *Store) FindOrCreateUser(_ context.Context, email, name string) (*models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, u := range s.users {
		if u.Email == email {
			return &u, nil
		}
	}
	u := models.User{ID: uuid.NewString(), Email: email, Name: name, CreatedAt: s.now()}
	s.users[u.ID] = u
	return &u, nil
}

func (s *Store) UpdateUserName(_ context.Context, id, name string) (*models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.users[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	u.Name = name
	s.users[id] = u
	return &u, nil
}

// Authorization states

func (s *Store) CreateState(_ context.Context, state *models.AuthorizationState) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, existing := range s.states {
		if existing.SubjectKey == state.SubjectKey && existing.Token == state.Token {
			return store.ErrConflict
		}
	}
	state.ID = newID(state.ID)
	if state.CreatedAt.IsZero() {
		state.CreatedAt = s.now()
	}
	s.states[state.ID] = *state
	return nil
}

func (s *Store) ConsumeState(_ context.Context, subjectKey, token string) (*models.AuthorizationState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for id, st := range s.states {
		if st.SubjectKey == subjectKey && st.Token == token {
			delete(s.states, id)
			return &st, nil
		}
	}
	return nil, store.ErrNotFound
}

func (s *Store) PurgeExpiredStates(_ context.Context, now time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var n int64
	for id, st := range s.states {
		if st.Expired(now) {
			delete(s.states, id)
			n++
		}
	}
	return n, nil
}

// StateCount returns the number of stored states.
func (s *Store) StateCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.states)
}

// Workspaces

func (s *Store) UpsertWorkspace(_ context.Context, ws *models.NotionWorkspace) (*models.NotionWorkspace, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	for id, existing := range s.workspaces {
		if existing.UserID == ws.UserID && existing.NotionID == ws.NotionID {
			existing.Name = ws.Name
			existing.Icon = ws.Icon
			existing.BotID = ws.BotID
			existing.AccessToken = ws.AccessToken
			existing.Status = ws.Status
			existing.LastSync = ws.LastSync
			existing.UpdatedAt = now
			s.workspaces[id] = existing
			return &existing, nil
		}
	}

	created := *ws
	created.ID = newID(created.ID)
	created.CreatedAt = now
	created.UpdatedAt = now
	s.workspaces[created.ID] = created
	return &created, nil
}

func (s *Store) GetWorkspace(_ context.Context, userID, id string) (*models.NotionWorkspace, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ws, ok := s.workspaces[id]
	if !ok || ws.UserID != userID {
		return nil, store.ErrNotFound
	}
	return &ws, nil
}

func (s *Store) ListWorkspaces(_ context.Context, userID string) ([]models.NotionWorkspace, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := []models.NotionWorkspace{}
	for _, ws := range s.workspaces {
		if ws.UserID == userID {
			out = append(out, ws)
		}
	}
	slices.SortFunc(out, func(a, b models.NotionWorkspace) int {
		return cmp.Or(b.CreatedAt.Compare(a.CreatedAt), cmp.Compare(b.ID, a.ID))
	})
	return out, nil
}

// Social accounts

func (s *Store) UpsertAccount(_ context.Context, acct *models.SocialAccount) (*models.SocialAccount, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	for id, existing := range s.accounts {
		if existing.UserID == acct.UserID && existing.Platform == acct.Platform && existing.AccountID == acct.AccountID {
			existing.Name = acct.Name
			existing.Token = acct.Token
			existing.Status = acct.Status
			existing.LastSync = acct.LastSync
			existing.UpdatedAt = now
			s.accounts[id] = existing
			return &existing, nil
		}
	}

	created := *acct
	created.ID = newID(created.ID)
	created.CreatedAt = now
	created.UpdatedAt = now
	s.accounts[created.ID] = created
	return &created, nil
}

func (s *Store) ListAccounts(_ context.Context, userID string, q store.ListQuery) (store.Page[models.SocialAccount], error) {
	q = q.Normalize()
	s.mu.Lock()
	defer s.mu.Unlock()

	rows := []models.SocialAccount{}
	for _, a := range s.accounts {
		if a.UserID != userID || !matches(a.Name, q.Search) {
			continue
		}
		if q.Platform != "" && a.Platform != q.Platform {
			continue
		}
		a.Token = ""
		rows = append(rows, a)
	}
	slices.SortFunc(rows, func(a, b models.SocialAccount) int {
		return cmp.Or(b.LastSync.Compare(a.LastSync), cmp.Compare(b.ID, a.ID))
	})
	return paginate(rows, q, func(a models.SocialAccount) string { return a.ID })
}

func (s *Store) DeleteAccount(_ context.Context, userID, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	a, ok := s.accounts[id]
	if !ok || a.UserID != userID {
		return store.ErrNotFound
	}
	delete(s.accounts, id)
	for pid, p := range s.posts {
		if p.SocialAccountID != nil && *p.SocialAccountID == id {
			p.SocialAccountID = nil
			s.posts[pid] = p
		}
	}
	return nil
}

// AccountCount returns the number of stored social accounts.
func (s *Store) AccountCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.accounts)
}

// Tracked databases

func (s *Store) CreateDatabase(_ context.Context, db *models.TrackedDatabase, cfg *models.DatabaseConfig) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, existing := range s.databases {
		if existing.UserID == db.UserID && existing.NotionID == db.NotionID {
			return store.ErrConflict
		}
	}

	now := s.now()
	db.ID = newID(db.ID)
	db.CreatedAt = now
	db.UpdatedAt = now

	cfg.ID = newID(cfg.ID)
	cfg.DatabaseID = db.ID
	cfg.CreatedAt = now
	cfg.UpdatedAt = now

	stored := *db
	stored.Config = nil
	s.databases[db.ID] = stored
	s.configs[db.ID] = *cfg
	db.Config = cfg
	return nil
}

func (s *Store) withConfig(db models.TrackedDatabase) models.TrackedDatabase {
	if cfg, ok := s.configs[db.ID]; ok {
		db.Config = &cfg
	}
	return db
}

func (s *Store) FindDatabaseByNotionID(_ context.Context, userID, notionID string) (*models.TrackedDatabase, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, db := range s.databases {
		if db.UserID == userID && db.NotionID == notionID {
			db = s.withConfig(db)
			return &db, nil
		}
	}
	return nil, store.ErrNotFound
}

func (s *Store) GetDatabase(_ context.Context, userID, id string) (*models.TrackedDatabase, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	db, ok := s.databases[id]
	if !ok || db.UserID != userID {
		return nil, store.ErrNotFound
	}
	db = s.withConfig(db)
	return &db, nil
}

func (s *Store) ListDatabases(_ context.Context, userID string, q store.ListQuery) (store.Page[models.TrackedDatabase], error) {
	q = q.Normalize()
	s.mu.Lock()
	defer s.mu.Unlock()

	rows := []models.TrackedDatabase{}
	for _, db := range s.databases {
		if db.UserID == userID && matches(db.Name, q.Search) {
			rows = append(rows, s.withConfig(db))
		}
	}
	slices.SortFunc(rows, func(a, b models.TrackedDatabase) int {
		return cmp.Or(b.CreatedAt.Compare(a.CreatedAt), cmp.Compare(b.ID, a.ID))
	})
	return paginate(rows, q, func(d models.TrackedDatabase) string { return d.ID })
}

func (s *Store) TrackedNotionIDs(_ context.Context, userID, workspaceID string) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ids := []string{}
	for _, db := range s.databases {
		if db.UserID == userID && db.WorkspaceID == workspaceID {
			ids = append(ids, db.NotionID)
		}
	}
	slices.Sort(ids)
	return ids, nil
}

func (s *Store) UpdateDatabaseConfig(_ context.Context, cfg *models.DatabaseConfig) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.configs[cfg.DatabaseID]; !ok {
		return store.ErrNotFound
	}
	cfg.UpdatedAt = s.now()
	s.configs[cfg.DatabaseID] = *cfg
	return nil
}

func (s *Store) DeleteDatabase(_ context.Context, userID, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	db, ok := s.databases[id]
	if !ok || db.UserID != userID {
		return store.ErrNotFound
	}
	delete(s.databases, id)
	delete(s.configs, id)
	for pid, p := range s.posts {
		if p.DatabaseID == id {
			delete(s.posts, pid)
		}
	}
	return nil
}

func (s *Store) ListActiveDatabases(_ context.Context, userID string) ([]models.TrackedDatabase, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := []models.TrackedDatabase{}
	for _, db := range s.databases {
		if db.UserID == userID && db.Active {
			out = append(out, db)
		}
	}
	slices.SortFunc(out, func(a, b models.TrackedDatabase) int {
		return cmp.Or(cmp.Compare(a.Name, b.Name), cmp.Compare(a.ID, b.ID))
	})
	return out, nil
}

// Posts

func (s *Store) CreatePost(_ context.Context, post *models.Post) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	db, ok := s.databases[post.DatabaseID]
	if !ok || db.UserID != post.UserID {
		return store.ErrNotFound
	}
	if post.SocialAccountID != nil {
		if a, ok := s.accounts[*post.SocialAccountID]; !ok || a.UserID != post.UserID {
			return store.ErrNotFound
		}
	}
	post.ID = newID(post.ID)
	if post.Status == "" {
		post.Status = models.PostDraft
	}
	if post.CreatedAt.IsZero() {
		post.CreatedAt = s.now()
	}
	stored := *post
	stored.Database = nil
	stored.SocialAccount = nil
	s.posts[post.ID] = stored
	return nil
}

// withRelations attaches the id and name of the database and the id and
// platform of the account.
func (s *Store) withRelations(p models.Post) models.Post {
	if db, ok := s.databases[p.DatabaseID]; ok {
		p.Database = &models.TrackedDatabase{ID: db.ID, Name: db.Name}
	}
	if p.SocialAccountID != nil {
		if a, ok := s.accounts[*p.SocialAccountID]; ok {
			p.SocialAccount = &models.SocialAccount{ID: a.ID, Platform: a.Platform}
		}
	}
	return p
}

func (s *Store) postMatches(p models.Post, userID string, q store.PostQuery) bool {
	if p.UserID != userID {
		return false
	}
	if q.Status != "" && p.Status != q.Status {
		return false
	}
	if q.DatabaseID != "" && p.DatabaseID != q.DatabaseID {
		return false
	}
	if q.Platform != "" {
		if p.SocialAccountID == nil {
			return false
		}
		a, ok := s.accounts[*p.SocialAccountID]
		if !ok || a.Platform != q.Platform {
			return false
		}
	}
	return q.Search == "" || matches(p.Title, q.Search) || matches(p.Content, q.Search)
}

// compareTimes orders nil after any time.
func compareTimes(a, b *time.Time) int {
	switch {
	case a == nil && b == nil:
		return 0
	case a == nil:
		return 1
	case b == nil:
		return -1
	}
	return a.Compare(*b)
}

func comparePosts(a, b models.Post, q store.PostQuery) int {
	// missing timestamps go last in both directions
	if q.Sort == store.SortPublishedAt || q.Sort == store.SortScheduledFor {
		at, bt := a.PublishedAt, b.PublishedAt
		if q.Sort == store.SortScheduledFor {
			at, bt = a.ScheduledFor, b.ScheduledFor
		}
		if (at == nil) != (bt == nil) {
			return compareTimes(at, bt)
		}
	}

	var c int
	switch q.Sort {
	case store.SortPublishedAt:
		c = compareTimes(a.PublishedAt, b.PublishedAt)
	case store.SortScheduledFor:
		c = compareTimes(a.ScheduledFor, b.ScheduledFor)
	case store.SortTitle:
		c = cmp.Compare(a.Title, b.Title)
	case store.SortStatus:
		c = cmp.Compare(a.Status, b.Status)
	default:
		c = a.CreatedAt.Compare(b.CreatedAt)
	}
	c = cmp.Or(c, cmp.Compare(a.ID, b.ID))
	if !q.Ascending {
		c = -c
	}
	return c
}

func (s *Store) ListPosts(_ context.Context, userID string, q store.PostQuery) (store.PostList, error) {
	q = q.Normalize()
	s.mu.Lock()
	defer s.mu.Unlock()

	rows := []models.Post{}
	for _, p := range s.posts {
		if s.postMatches(p, userID, q) {
			rows = append(rows, s.withRelations(p))
		}
	}
	slices.SortFunc(rows, func(a, b models.Post) int { return comparePosts(a, b, q) })

	out := store.PostList{Items: []models.Post{}, Total: int64(len(rows))}
	if off := q.Offset(); off < len(rows) {
		out.Items = rows[off:min(off+q.Limit, len(rows))]
	}
	return out, nil
}

func (s *Store) GetPost(_ context.Context, userID, id string) (*models.Post, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.posts[id]
	if !ok || p.UserID != userID {
		return nil, store.ErrNotFound
	}
	p = s.withRelations(p)
	return &p, nil
}

func (s *Store) DeletePost(_ context.Context, userID, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.posts[id]
	if !ok || p.UserID != userID {
		return store.ErrNotFound
	}
	delete(s.posts, id)
	return nil
}

func (s *Store) CountActivePosts(_ context.Context, userID string, databaseIDs []string) (map[string]int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	counts := map[string]int64{}
	for _, p := range s.posts {
		if p.UserID == userID && p.Status.Active() && slices.Contains(databaseIDs, p.DatabaseID) {
			counts[p.DatabaseID]++
		}
	}
	return counts, nil
}
