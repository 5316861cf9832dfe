package oauth

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func testOptions(srv *httptest.Server, provider Provider) ClientOptions {
	return ClientOptions{
		ClientID:     "client-id",
		ClientSecret: "client-secret",
		RedirectURL:  "https://app.test" + SocialCallbackPath(provider),
		HTTPClient:   srv.Client(),
	}
}

func TestAuthCodeURLs(t *testing.T) {
	opts := ClientOptions{ClientID: "cid", ClientSecret: "sec", RedirectURL: "https://app.test/cb"}

	cases := []struct {
		name   string
		client Client
		base   string
		scope  string
		extra  map[string]string
	}{
		{"notion", NewNotionClient(opts), NotionAuthURL, "", map[string]string{"owner": "user"}},
		{"facebook", NewFacebookClient(opts), FacebookAuthURL, facebookScope, nil},
		{"instagram", NewInstagramClient(opts), InstagramAuthURL, instagramScope, nil},
		{"tiktok", NewTikTokClient(opts), TikTokAuthURL, tiktokScope, map[string]string{"client_key": "cid"}},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			u, err := url.Parse(tc.client.AuthCodeURL("st4te"))
			require.NoError(t, err)

			assert.Equal(t, tc.base, u.Scheme+"://"+u.Host+u.Path)
			q := u.Query()
			assert.Equal(t, "cid", q.Get("client_id"))
			assert.Equal(t, "https://app.test/cb", q.Get("redirect_uri"))
			assert.Equal(t, "code", q.Get("response_type"))
			assert.Equal(t, "st4te", q.Get("state"))
			assert.Equal(t, tc.scope, q.Get("scope"))
			for k, v := range tc.extra {
				assert.Equal(t, v, q.Get(k), k)
			}
			assert.NotContains(t, u.RawQuery, "sec")
		})
	}
}

func newFacebookServer(t *testing.T, pages []facebookPage) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/oauth/access_token", func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		assert.Equal(t, "client-id", q.Get("client_id"))
		assert.Equal(t, "client-secret", q.Get("client_secret"))

		if q.Get("grant_type") == "fb_exchange_token" {
			writeJSON(w, http.StatusOK, map[string]any{"access_token": "long-" + q.Get("fb_exchange_token")})
			return
		}
		if q.Get("code") != "good" {
			writeJSON(w, http.StatusBadRequest, map[string]any{"error": map[string]any{"message": "Invalid verification code"}})
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"access_token": "short", "token_type": "bearer", "expires_in": 3600})
	})
	mux.HandleFunc("/me/accounts", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "long-short", r.URL.Query().Get("access_token"))
		writeJSON(w, http.StatusOK, map[string]any{"data": pages})
	})
	return httptest.NewServer(mux)
}

func TestFacebookClient(t *testing.T) {
	pages := []facebookPage{
		{ID: "p1", Name: "First Page", AccessToken: "page-token-1"},
		{ID: "p2", Name: "Second Page", AccessToken: "page-token-2"},
	}
	srv := newFacebookServer(t, pages)
	defer srv.Close()

	fb := NewFacebookClient(testOptions(srv, ProviderFacebook))
	fb.GraphURL = srv.URL
	ctx := context.Background()

	_, err := fb.Exchange(ctx, "bad")
	var respErr *ResponseError
	require.ErrorAs(t, err, &respErr)
	assert.Equal(t, http.StatusBadRequest, respErr.Status)

	tok, err := fb.Exchange(ctx, "good")
	require.NoError(t, err)
	assert.Equal(t, "short", tok.AccessToken)

	long, err := fb.ExchangeLongLived(ctx, tok)
	require.NoError(t, err)
	assert.Equal(t, "long-short", long.AccessToken)

	ident, err := fb.Identify(ctx, long)
	require.NoError(t, err)
	assert.Equal(t, &Identity{AccountID: "p1", Name: "First Page", AccessToken: "page-token-1"}, ident)

	fb.PageID = "p2"
	ident, err = fb.Identify(ctx, long)
	require.NoError(t, err)
	assert.Equal(t, "page-token-2", ident.AccessToken)

	fb.PageID = "p9"
	_, err = fb.Identify(ctx, long)
	assert.ErrorIs(t, err, ErrNoFacebookPage)
}

func TestFacebookClientWithoutPages(t *testing.T) {
	srv := newFacebookServer(t, []facebookPage{})
	defer srv.Close()

	fb := NewFacebookClient(testOptions(srv, ProviderFacebook))
	fb.GraphURL = srv.URL

	_, err := fb.Identify(context.Background(), &Token{AccessToken: "long-short"})
	assert.ErrorIs(t, err, ErrNoFacebookPage)
}

func TestInstagramClient(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/oauth/access_token", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.NoError(t, r.ParseForm())
		assert.Equal(t, "client-id", r.PostForm.Get("client_id"))
		assert.Equal(t, "client-secret", r.PostForm.Get("client_secret"))
		assert.Equal(t, "authorization_code", r.PostForm.Get("grant_type"))
		assert.Equal(t, "https://app.test/api/social/auth/instagram/callback", r.PostForm.Get("redirect_uri"))

		if r.PostForm.Get("code") != "good" {
			writeJSON(w, http.StatusBadRequest, map[string]any{"error_type": "OAuthException"})
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"access_token": "short", "user_id": 17841400000000000})
	})
	mux.HandleFunc("/access_token", func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		assert.Equal(t, "ig_exchange_token", q.Get("grant_type"))
		assert.Equal(t, "client-secret", q.Get("client_secret"))
		writeJSON(w, http.StatusOK, map[string]any{"access_token": "long-" + q.Get("access_token"), "expires_in": 5183944})
	})
	mux.HandleFunc("/me", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "id,username", r.URL.Query().Get("fields"))
		writeJSON(w, http.StatusOK, map[string]any{"id": "17841400000000000", "username": "brand"})
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	ig := NewInstagramClient(testOptions(srv, ProviderInstagram))
	ig.TokenURL = srv.URL + "/oauth/access_token"
	ig.GraphURL = srv.URL
	ctx := context.Background()

	_, err := ig.Exchange(ctx, "bad")
	assert.Error(t, err)

	tok, err := ig.Exchange(ctx, "good")
	require.NoError(t, err)
	assert.Equal(t, "short", tok.AccessToken)

	long, err := ig.ExchangeLongLived(ctx, tok)
	require.NoError(t, err)
	assert.Equal(t, "long-short", long.AccessToken)

	ident, err := ig.Identify(ctx, long)
	require.NoError(t, err)
	assert.Equal(t, "17841400000000000", ident.AccountID)
	assert.Equal(t, "@brand", ident.Name)
	assert.Equal(t, "long-short", ident.AccessToken)
}

func TestTikTokClient(t *testing.T) {
	var userinfo atomic.Value
	mux := http.NewServeMux()
	mux.HandleFunc("/oauth/access_token/", func(w http.ResponseWriter, r *http.Request) {
		var body map[string]string
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "client-id", body["client_key"])
		assert.Equal(t, "authorization_code", body["grant_type"])

		if body["code"] != "good" {
			// TikTok reports failures with a 200 and an error message
			writeJSON(w, http.StatusOK, map[string]any{"message": "error", "data": map[string]any{"error_code": 10007}})
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"message": "success",
			"data":    map[string]any{"access_token": "act.1", "open_id": "open-1"},
		})
	})
	mux.HandleFunc("/oauth/userinfo/", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer act.1", r.Header.Get("Authorization"))
		var body map[string]string
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "open-1", body["open_id"])
		writeJSON(w, http.StatusOK, map[string]any{"message": "success", "data": userinfo.Load()})
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	tt := NewTikTokClient(testOptions(srv, ProviderTikTok))
	tt.APIURL = srv.URL
	ctx := context.Background()

	_, err := tt.Exchange(ctx, "bad")
	assert.ErrorContains(t, err, `message "error"`)

	tok, err := tt.Exchange(ctx, "good")
	require.NoError(t, err)

	userinfo.Store(map[string]any{"username": "dancer", "display_name": "Dancer"})
	ident, err := tt.Identify(ctx, tok)
	require.NoError(t, err)
	assert.Equal(t, &Identity{AccountID: "open-1", Name: "@dancer", AccessToken: "act.1"}, ident)

	userinfo.Store(map[string]any{"display_name": "Dancer"})
	ident, err = tt.Identify(ctx, tok)
	require.NoError(t, err)
	assert.Equal(t, "@Dancer", ident.Name)
}

func TestNotionClientRejectsFailedExchange(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": "invalid_grant"})
	}))
	defer srv.Close()

	c := NewNotionClient(testOptions(srv, ProviderNotion))
	c.TokenURL = srv.URL

	_, err := c.Exchange(context.Background(), "expired")
	var respErr *ResponseError
	require.ErrorAs(t, err, &respErr)
	assert.Contains(t, respErr.Body, "invalid_grant")
}
