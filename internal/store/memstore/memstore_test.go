package memstore

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fuomag9/notionsocial/internal/models"
	"github.com/fuomag9/notionsocial/internal/store"
)

func fixedClock(t time.Time) func() time.Time {
	return func() time.Time { return t }
}

func TestUsers(t *testing.T) {
	s := New()
	ctx := context.Background()

	u, err := s.FindOrCreateUser(ctx, "ana@example.com", "Ana")
	require.NoError(t, err)
	again, err := s.FindOrCreateUser(ctx, "ana@example.com", "Other")
	require.NoError(t, err)
	assert.Equal(t, u.ID, again.ID)
	assert.Equal(t, "Ana", again.Name)

	got, err := s.GetUser(ctx, u.ID)
	require.NoError(t, err)
	assert.Equal(t, "ana@example.com", got.Email)

	_, err = s.GetUser(ctx, "missing")
	assert.ErrorIs(t, err, store.ErrNotFound)

	renamed, err := s.UpdateUserName(ctx, u.ID, "Ana Souza")
	require.NoError(t, err)
	assert.Equal(t, "Ana Souza", renamed.Name)
	assert.Equal(t, u.Email, renamed.Email)
	got, err = s.GetUser(ctx, u.ID)
	require.NoError(t, err)
	assert.Equal(t, "Ana Souza", got.Name)

	_, err = s.UpdateUserName(ctx, "missing", "x")
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestStates(t *testing.T) {
	now := time.Date(2026, 10, 15, 9, 0, 0, 0, time.UTC)
	s := New()
	ctx := context.Background()

	st := &models.AuthorizationState{SubjectKey: "u_notion", Token: "tok", ExpiresAt: now.Add(time.Minute)}
	require.NoError(t, s.CreateState(ctx, st))
	assert.NotEmpty(t, st.ID)

	dup := &models.AuthorizationState{SubjectKey: "u_notion", Token: "tok", ExpiresAt: now.Add(time.Minute)}
	assert.ErrorIs(t, s.CreateState(ctx, dup), store.ErrConflict)

	_, err := s.ConsumeState(ctx, "u_tiktok", "tok")
	assert.ErrorIs(t, err, store.ErrNotFound)

	got, err := s.ConsumeState(ctx, "u_notion", "tok")
	require.NoError(t, err)
	assert.Equal(t, st.ID, got.ID)

	_, err = s.ConsumeState(ctx, "u_notion", "tok")
	assert.ErrorIs(t, err, store.ErrNotFound)

	require.NoError(t, s.CreateState(ctx, &models.AuthorizationState{SubjectKey: "u_notion", Token: "old", ExpiresAt: now}))
	require.NoError(t, s.CreateState(ctx, &models.AuthorizationState{SubjectKey: "u_notion", Token: "new", ExpiresAt: now.Add(time.Second)}))
	n, err := s.PurgeExpiredStates(ctx, now)
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)
	assert.Equal(t, 1, s.StateCount())
}

func TestUpsertWorkspace(t *testing.T) {
	s := New()
	ctx := context.Background()
	s.SetClock(fixedClock(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)))

	first, err := s.UpsertWorkspace(ctx, &models.NotionWorkspace{UserID: "u", NotionID: "n", Name: "Old", AccessToken: "t1"})
	require.NoError(t, err)

	s.SetClock(fixedClock(time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)))
	second, err := s.UpsertWorkspace(ctx, &models.NotionWorkspace{UserID: "u", NotionID: "n", Name: "New", AccessToken: "t2"})
	require.NoError(t, err)

	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, "New", second.Name)
	assert.Equal(t, "t2", second.AccessToken)
	assert.Equal(t, first.CreatedAt, second.CreatedAt)
	assert.True(t, second.UpdatedAt.After(first.UpdatedAt))

	_, err = s.GetWorkspace(ctx, "someone-else", first.ID)
	assert.ErrorIs(t, err, store.ErrNotFound)

	other, err := s.UpsertWorkspace(ctx, &models.NotionWorkspace{UserID: "u", NotionID: "n2", Name: "Second"})
	require.NoError(t, err)

	list, err := s.ListWorkspaces(ctx, "u")
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, other.ID, list[0].ID)
}

func TestListAccounts(t *testing.T) {
	s := New()
	ctx := context.Background()
	base := time.Date(2026, 10, 1, 0, 0, 0, 0, time.UTC)

	ids := make([]string, 0, 4)
	for i, platform := range []string{models.PlatformFacebook, models.PlatformTikTok, models.PlatformFacebook, models.PlatformInstagram} {
		a, err := s.UpsertAccount(ctx, &models.SocialAccount{
			UserID: "u", Platform: platform, AccountID: fmt.Sprint(i), Name: fmt.Sprintf("Brand %d", i),
			Token: "secret", LastSync: base.Add(time.Duration(i) * time.Hour),
		})
		require.NoError(t, err)
		ids = append(ids, a.ID)
	}
	_, err := s.UpsertAccount(ctx, &models.SocialAccount{UserID: "v", Platform: models.PlatformTikTok, AccountID: "x", Name: "Brand x"})
	require.NoError(t, err)

	page, err := s.ListAccounts(ctx, "u", store.ListQuery{Limit: 3})
	require.NoError(t, err)
	require.Len(t, page.Items, 3)
	assert.Equal(t, []string{ids[3], ids[2], ids[1]}, []string{page.Items[0].ID, page.Items[1].ID, page.Items[2].ID})
	assert.True(t, page.HasMore)
	assert.Equal(t, ids[1], page.NextCursor)
	for _, a := range page.Items {
		assert.Empty(t, a.Token)
	}

	page, err = s.ListAccounts(ctx, "u", store.ListQuery{Limit: 3, Cursor: page.NextCursor})
	require.NoError(t, err)
	require.Len(t, page.Items, 1)
	assert.False(t, page.HasMore)
	assert.Empty(t, page.NextCursor)

	page, err = s.ListAccounts(ctx, "u", store.ListQuery{Platform: models.PlatformFacebook})
	require.NoError(t, err)
	assert.Len(t, page.Items, 2)

	page, err = s.ListAccounts(ctx, "u", store.ListQuery{Search: "brand 1"})
	require.NoError(t, err)
	assert.Len(t, page.Items, 1)

	_, err = s.ListAccounts(ctx, "u", store.ListQuery{Cursor: "nope"})
	assert.ErrorIs(t, err, store.ErrNotFound)

	assert.ErrorIs(t, s.DeleteAccount(ctx, "v", ids[0]), store.ErrNotFound)
	require.NoError(t, s.DeleteAccount(ctx, "u", ids[0]))
	assert.Equal(t, 4, s.AccountCount())
}

func TestDatabases(t *testing.T) {
	s := New()
	ctx := context.Background()

	db := &models.TrackedDatabase{UserID: "u", WorkspaceID: "w", NotionID: "n1", Name: "Calendar", Active: true}
	cfg := models.DefaultDatabaseConfig("")
	require.NoError(t, s.CreateDatabase(ctx, db, &cfg))
	assert.NotEmpty(t, db.ID)
	assert.Equal(t, db.ID, cfg.DatabaseID)
	require.NotNil(t, db.Config)

	dup := &models.TrackedDatabase{UserID: "u", WorkspaceID: "w", NotionID: "n1", Name: "Again"}
	dupCfg := models.DefaultDatabaseConfig("")
	assert.ErrorIs(t, s.CreateDatabase(ctx, dup, &dupCfg), store.ErrConflict)

	found, err := s.FindDatabaseByNotionID(ctx, "u", "n1")
	require.NoError(t, err)
	assert.Equal(t, db.ID, found.ID)
	require.NotNil(t, found.Config)
	assert.Equal(t, models.DefaultStatusValue, found.Config.StatusValue)

	ids, err := s.TrackedNotionIDs(ctx, "u", "w")
	require.NoError(t, err)
	assert.Equal(t, []string{"n1"}, ids)

	found.Config.StatusValue = "📅 Agendado"
	require.NoError(t, s.UpdateDatabaseConfig(ctx, found.Config))
	got, err := s.GetDatabase(ctx, "u", db.ID)
	require.NoError(t, err)
	assert.Equal(t, "📅 Agendado", got.Config.StatusValue)

	missing := models.DefaultDatabaseConfig("unknown")
	assert.ErrorIs(t, s.UpdateDatabaseConfig(ctx, &missing), store.ErrNotFound)

	page, err := s.ListDatabases(ctx, "u", store.ListQuery{Search: "CAL"})
	require.NoError(t, err)
	require.Len(t, page.Items, 1)
	assert.NotNil(t, page.Items[0].Config)

	_, err = s.GetDatabase(ctx, "v", db.ID)
	assert.ErrorIs(t, err, store.ErrNotFound)
	assert.ErrorIs(t, s.DeleteDatabase(ctx, "v", db.ID), store.ErrNotFound)
	require.NoError(t, s.DeleteDatabase(ctx, "u", db.ID))
	_, err = s.FindDatabaseByNotionID(ctx, "u", "n1")
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestPosts(t *testing.T) {
	s := New()
	ctx := context.Background()
	base := time.Date(2026, 10, 1, 0, 0, 0, 0, time.UTC)

	db := &models.TrackedDatabase{UserID: "u", WorkspaceID: "w", NotionID: "n1", Name: "Calendar", Active: true}
	cfg := models.DefaultDatabaseConfig("")
	require.NoError(t, s.CreateDatabase(ctx, db, &cfg))
	acct, err := s.UpsertAccount(ctx, &models.SocialAccount{UserID: "u", Platform: models.PlatformTikTok, AccountID: "1", Name: "Brand"})
	require.NoError(t, err)
	foreign, err := s.UpsertAccount(ctx, &models.SocialAccount{UserID: "v", Platform: models.PlatformTikTok, AccountID: "2", Name: "Other"})
	require.NoError(t, err)

	// references must belong to the same user
	assert.ErrorIs(t, s.CreatePost(ctx, &models.Post{UserID: "v", DatabaseID: db.ID, Title: "x"}), store.ErrNotFound)
	assert.ErrorIs(t, s.CreatePost(ctx, &models.Post{UserID: "u", DatabaseID: db.ID, SocialAccountID: &foreign.ID}), store.ErrNotFound)

	ids := []string{}
	for i, status := range []models.PostStatus{models.PostPublished, models.PostScheduled, models.PostFailed, ""} {
		p := &models.Post{
			UserID: "u", DatabaseID: db.ID, SocialAccountID: &acct.ID,
			Title: fmt.Sprintf("Post %d", i), Content: "body", Status: status,
			CreatedAt: base.Add(time.Duration(i) * time.Hour),
		}
		require.NoError(t, s.CreatePost(ctx, p))
		ids = append(ids, p.ID)
	}

	got, err := s.GetPost(ctx, "u", ids[3])
	require.NoError(t, err)
	assert.Equal(t, models.PostDraft, got.Status)
	assert.Equal(t, "Calendar", got.Database.Name)
	assert.Equal(t, models.PlatformTikTok, got.Platform())
	_, err = s.GetPost(ctx, "v", ids[3])
	assert.ErrorIs(t, err, store.ErrNotFound)

	list, err := s.ListPosts(ctx, "u", store.PostQuery{Limit: 3, Page: 1})
	require.NoError(t, err)
	assert.EqualValues(t, 4, list.Total)
	require.Len(t, list.Items, 3)
	assert.Equal(t, ids[3], list.Items[0].ID)

	list, err = s.ListPosts(ctx, "u", store.PostQuery{Limit: 3, Page: 2})
	require.NoError(t, err)
	require.Len(t, list.Items, 1)
	assert.Equal(t, ids[0], list.Items[0].ID)

	counts, err := s.CountActivePosts(ctx, "u", []string{db.ID, "unknown"})
	require.NoError(t, err)
	assert.Equal(t, map[string]int64{db.ID: 2}, counts)

	// unlinking the account keeps the post without a platform
	require.NoError(t, s.DeleteAccount(ctx, "u", acct.ID))
	got, err = s.GetPost(ctx, "u", ids[0])
	require.NoError(t, err)
	assert.Nil(t, got.SocialAccountID)
	assert.Empty(t, got.Platform())
	list, err = s.ListPosts(ctx, "u", store.PostQuery{Platform: models.PlatformTikTok})
	require.NoError(t, err)
	assert.Empty(t, list.Items)

	assert.ErrorIs(t, s.DeletePost(ctx, "v", ids[0]), store.ErrNotFound)
	require.NoError(t, s.DeletePost(ctx, "u", ids[0]))
	assert.ErrorIs(t, s.DeletePost(ctx, "u", ids[0]), store.ErrNotFound)

	// removing the database removes its posts
	require.NoError(t, s.DeleteDatabase(ctx, "u", db.ID))
	list, err = s.ListPosts(ctx, "u", store.PostQuery{})
	require.NoError(t, err)
	assert.Zero(t, list.Total)
}

func TestListActiveDatabases(t *testing.T) {
	s := New()
	ctx := context.Background()

	for i, name := range []string{"Zeta", "Alpha", "Paused"} {
		db := &models.TrackedDatabase{UserID: "u", WorkspaceID: "w", NotionID: fmt.Sprint(i), Name: name, Active: name != "Paused"}
		cfg := models.DefaultDatabaseConfig("")
		require.NoError(t, s.CreateDatabase(ctx, db, &cfg))
	}

	list, err := s.ListActiveDatabases(ctx, "u")
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "Alpha", list[0].Name)
	assert.Equal(t, "Zeta", list[1].Name)

	list, err = s.ListActiveDatabases(ctx, "v")
	require.NoError(t, err)
	assert.Empty(t, list)
}
