package api

import (
	"context"
	"net/http"
	"net/url"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/hlog"

	"github.com/fuomag9/notionsocial/internal/oauth"
)

// Dashboard pages the callbacks send the browser back to.
const (
	NotionDashboardPath = "/dashboard/notion"
	SocialDashboardPath = "/dashboard/social"
)

// CodeInvalidPlatform is put on the redirect when the callback path names
// no known social platform.
const CodeInvalidPlatform = "invalid_platform"

// Flow is the part of the OAuth broker the handlers drive.
type Flow interface {
	Begin(ctx context.Context, userID string, p oauth.Provider) (string, error)
	Complete(ctx context.Context, userID string, p oauth.Provider, cb oauth.Callback) (*oauth.Connection, error)
}

func dashboardRedirect(w http.ResponseWriter, r *http.Request, publicURL, path, key, value string) {
	q := url.Values{}
	q.Set(key, value)
	http.Redirect(w, r, publicURL+path+"?"+q.Encode(), http.StatusFound)
}

func callbackFromRequest(r *http.Request) oauth.Callback {
	q := r.URL.Query()
	return oauth.Callback{
		Code:  q.Get("code"),
		State: q.Get("state"),
		Error: q.Get("error"),
	}
}

// begin redirects to the provider, or back to the dashboard when the flow
// cannot start.
func begin(w http.ResponseWriter, r *http.Request, flow Flow, p oauth.Provider, publicURL, dashboard string) {
	user := UserFromContext(r.Context())
	authURL, err := flow.Begin(r.Context(), user.ID, p)
	if err != nil {
		hlog.FromRequest(r).Error().Err(err).Str("provider", string(p)).Msg("Failed to start authorization")
		dashboardRedirect(w, r, publicURL, dashboard, "error", oauth.ErrorCode(err))
		return
	}
	http.Redirect(w, r, authURL, http.StatusFound)
}

// complete finishes the flow and reports the outcome on the dashboard URL.
// The broker logs failure details; only the error code leaves the server.
func complete(w http.ResponseWriter, r *http.Request, flow Flow, p oauth.Provider, publicURL, dashboard string) {
	user := UserFromContext(r.Context())
	if _, err := flow.Complete(r.Context(), user.ID, p, callbackFromRequest(r)); err != nil {
		dashboardRedirect(w, r, publicURL, dashboard, "error", oauth.ErrorCode(err))
		return
	}
	dashboardRedirect(w, r, publicURL, dashboard, "success", string(p))
}

// HandleNotionAuth starts linking a Notion workspace
func HandleNotionAuth(flow Flow, publicURL string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		begin(w, r, flow, oauth.ProviderNotion, publicURL, NotionDashboardPath)
	}
}

// HandleNotionCallback completes linking a Notion workspace
func HandleNotionCallback(flow Flow, publicURL string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		complete(w, r, flow, oauth.ProviderNotion, publicURL, NotionDashboardPath)
	}
}

func socialProvider(name string) (oauth.Provider, bool) {
	p, err := oauth.ParseProvider(name)
	if err != nil || !p.IsSocial() {
		return "", false
	}
	return p, true
}

// HandleSocialAuth starts linking the social account named by ?platform=
func HandleSocialAuth(flow Flow, publicURL string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		p, ok := socialProvider(r.URL.Query().Get("platform"))
		if !ok {
			writeError(w, r, http.StatusBadRequest, "Invalid platform")
			return
		}
		begin(w, r, flow, p, publicURL, SocialDashboardPath)
	}
}

// HandleSocialCallback completes linking a social account
func HandleSocialCallback(flow Flow, publicURL string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		p, ok := socialProvider(chi.URLParam(r, "platform"))
		if !ok {
			dashboardRedirect(w, r, publicURL, SocialDashboardPath, "error", CodeInvalidPlatform)
			return
		}
		complete(w, r, flow, p, publicURL, SocialDashboardPath)
	}
}
