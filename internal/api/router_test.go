package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fuomag9/notionsocial/internal/auth"
	"github.com/fuomag9/notionsocial/internal/config"
	"github.com/fuomag9/notionsocial/internal/logging"
	"github.com/fuomag9/notionsocial/internal/models"
	"github.com/fuomag9/notionsocial/internal/oauth"
	"github.com/fuomag9/notionsocial/internal/store/memstore"
	"github.com/fuomag9/notionsocial/internal/tracking"
)

const (
	testSecret = "0123456789abcdef0123456789abcdef"
	testAppURL = "http://app.test"
)

// stubClient is a provider whose exchange always succeeds for code "good".
type stubClient struct {
	provider oauth.Provider
}

func (c stubClient) Provider() oauth.Provider { return c.provider }

func (c stubClient) AuthCodeURL(state string) string {
	return "https://" + string(c.provider) + ".test/authorize?state=" + url.QueryEscape(state)
}

func (c stubClient) Exchange(_ context.Context, code string) (*oauth.Token, error) {
	if code != "good" {
		return nil, errors.New("invalid_grant")
	}
	return &oauth.Token{AccessToken: "secret-" + string(c.provider)}, nil
}

func (c stubClient) Identify(_ context.Context, tok *oauth.Token) (*oauth.Identity, error) {
	return &oauth.Identity{
		AccountID:   string(c.provider) + "-account",
		Name:        "@" + string(c.provider),
		AccessToken: tok.AccessToken,
	}, nil
}

// stubTracker returns canned results.
type stubTracker struct {
	err       error
	connected []tracking.ConnectRequest
}

func (s *stubTracker) ConnectDatabase(_ context.Context, _ string, req tracking.ConnectRequest) (*tracking.ConnectResult, error) {
	if s.err != nil {
		return nil, s.err
	}
	s.connected = append(s.connected, req)
	return &tracking.ConnectResult{Database: &models.TrackedDatabase{ID: "db-1", NotionID: req.DatabaseID, Name: req.DatabaseName}}, nil
}

func (s *stubTracker) AvailableDatabases(_ context.Context, _, workspaceID string) ([]tracking.AvailableDatabase, error) {
	if s.err != nil {
		return nil, s.err
	}
	return []tracking.AvailableDatabase{{ID: "n-1", Title: "Calendar"}}, nil
}

func (s *stubTracker) DatabaseProperties(_ context.Context, _, databaseID string) (*tracking.DatabaseDetails, error) {
	if s.err != nil {
		return nil, s.err
	}
	return &tracking.DatabaseDetails{Database: &models.TrackedDatabase{ID: databaseID}, Properties: []tracking.Column{}}, nil
}

func (s *stubTracker) UpdateConfig(_ context.Context, _, databaseID string, _ tracking.ConfigUpdate) (*models.DatabaseConfig, error) {
	if s.err != nil {
		return nil, s.err
	}
	cfg := models.DefaultDatabaseConfig(databaseID)
	return &cfg, nil
}

type testServer struct {
	handler http.Handler
	store   *memstore.Store
	tracker *stubTracker
	user    *models.User
	token   string
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	cfg := &config.Config{
		JWTSecret:   testSecret,
		Environment: "development",
		AppURL:      testAppURL,
		CORSOrigins: []string{testAppURL},
	}

	st := memstore.New()
	user, err := st.FindOrCreateUser(context.Background(), "ana@example.com", "Ana")
	require.NoError(t, err)
	token, err := auth.Sign(user.ID, testSecret, time.Hour)
	require.NoError(t, err)

	clients := []oauth.Client{
		stubClient{oauth.ProviderNotion},
		stubClient{oauth.ProviderFacebook},
		stubClient{oauth.ProviderTikTok},
	}
	broker := oauth.NewBroker(st, clients, oauth.Options{}, logging.NewSilent())
	tracker := &stubTracker{}

	handler := NewRouter(Deps{
		Config:      cfg,
		Store:       st,
		Flow:        broker,
		Tracker:     tracker,
		AuthLimiter: NewRateLimiter(100, 100),
		Log:         logging.NewSilent(),
	})
	return &testServer{handler: handler, store: st, tracker: tracker, user: user, token: token}
}

type requestOption func(*http.Request)

func withSession(token string) requestOption {
	return func(r *http.Request) { r.Header.Set("Authorization", "Bearer "+token) }
}

func withCookie(token string) requestOption {
	return func(r *http.Request) { r.AddCookie(&http.Cookie{Name: auth.CookieName, Value: token}) }
}

func (s *testServer) do(method, target string, body string, opts ...requestOption) *httptest.ResponseRecorder {
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, target, reader)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	for _, opt := range opts {
		opt(req)
	}
	rec := httptest.NewRecorder()
	s.handler.ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	return out
}

func TestHealth(t *testing.T) {
	s := newTestServer(t)
	rec := s.do(http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "OK", rec.Body.String())
	assert.Equal(t, "nosniff", rec.Header().Get("X-Content-Type-Options"))
}

func TestUnauthenticatedRequests(t *testing.T) {
	s := newTestServer(t)

	cases := []struct {
		method   string
		target   string
		status   int
		location string
	}{
		{http.MethodGet, "/api/notion/auth", http.StatusFound, testAppURL + LoginPath},
		{http.MethodGet, "/api/notion/auth/callback?code=x&state=y", http.StatusFound, testAppURL + LoginPath},
		{http.MethodGet, "/api/social/auth/tiktok/callback?code=x&state=y", http.StatusFound, testAppURL + LoginPath},
		{http.MethodGet, "/api/social/auth?platform=facebook", http.StatusUnauthorized, ""},
		{http.MethodGet, "/api/notion/workspaces", http.StatusUnauthorized, ""},
		{http.MethodGet, "/api/notion/databases", http.StatusUnauthorized, ""},
		{http.MethodPost, "/api/notion/workspace/databases", http.StatusUnauthorized, ""},
		{http.MethodGet, "/api/social/accounts", http.StatusUnauthorized, ""},
		{http.MethodDelete, "/api/social/accounts?id=1", http.StatusUnauthorized, ""},
		{http.MethodGet, "/api/posts", http.StatusUnauthorized, ""},
		{http.MethodGet, "/api/posts/1", http.StatusUnauthorized, ""},
		{http.MethodPost, "/api/settings", http.StatusUnauthorized, ""},
	}
	for _, tc := range cases {
		t.Run(tc.method+" "+tc.target, func(t *testing.T) {
			rec := s.do(tc.method, tc.target, "")
			assert.Equal(t, tc.status, rec.Code)
			if tc.location != "" {
				assert.Equal(t, tc.location, rec.Header().Get("Location"))
				return
			}
			assert.Equal(t, map[string]any{"error": "Unauthorized"}, decodeBody(t, rec))
		})
	}

	t.Run("token of unknown user", func(t *testing.T) {
		token, err := auth.Sign("ghost", testSecret, time.Hour)
		require.NoError(t, err)
		rec := s.do(http.MethodGet, "/api/notion/workspaces", "", withSession(token))
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("token signed with another secret", func(t *testing.T) {
		token, err := auth.Sign(s.user.ID, "another-secret-another-secret!!", time.Hour)
		require.NoError(t, err)
		rec := s.do(http.MethodGet, "/api/notion/workspaces", "", withSession(token))
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})
}

func TestAuthRateLimit(t *testing.T) {
	s := newTestServer(t)
	limited := NewRouter(Deps{
		Config:      &config.Config{JWTSecret: testSecret, AppURL: testAppURL, CORSOrigins: []string{testAppURL}},
		Store:       s.store,
		Flow:        oauth.NewBroker(s.store, []oauth.Client{stubClient{oauth.ProviderNotion}}, oauth.Options{}, logging.NewSilent()),
		Tracker:     s.tracker,
		AuthLimiter: NewRateLimiter(0, 2),
		Log:         logging.NewSilent(),
	})

	codes := []int{}
	for range 3 {
		req := httptest.NewRequest(http.MethodGet, "/api/notion/auth", nil)
		req.Header.Set("Authorization", "Bearer "+s.token)
		rec := httptest.NewRecorder()
		limited.ServeHTTP(rec, req)
		codes = append(codes, rec.Code)
	}
	assert.Equal(t, []int{http.StatusFound, http.StatusFound, http.StatusTooManyRequests}, codes)
}

func TestRateLimiterPrune(t *testing.T) {
	rl := NewRateLimiter(1, 1)
	rl.GetLimiter("10.0.0.1")
	rl.GetLimiter("10.0.0.2")

	assert.Zero(t, rl.Prune(time.Hour))
	assert.Equal(t, 2, rl.Prune(-time.Second))
}
